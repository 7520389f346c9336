package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/klog/v2"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
)

// PrometheusSource reads container usage from a Prometheus server, for
// clusters without metrics-server. It reports the same PodMetrics shape
// the metrics API would.
type PrometheusSource struct {
	client promv1.API
	url    string
	window time.Duration
}

// NewPrometheusSource creates a source against the given Prometheus URL
func NewPrometheusSource(url string) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{Address: url})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &PrometheusSource{
		client: promv1.NewAPI(client),
		url:    url,
		window: 5 * time.Minute,
	}, nil
}

// PodMetrics builds per-container usage from the cAdvisor series
func (p *PrometheusSource) PodMetrics(ctx context.Context, namespace string) ([]metricsv1beta1.PodMetrics, error) {
	cpuQuery := fmt.Sprintf(
		`sum by (pod, container) (rate(container_cpu_usage_seconds_total{namespace=%q,container!=""}[%s]))`,
		namespace, model.Duration(p.window))
	memQuery := fmt.Sprintf(
		`sum by (pod, container) (container_memory_working_set_bytes{namespace=%q,container!=""})`,
		namespace)

	cpu, err := p.queryVector(ctx, cpuQuery)
	if err != nil {
		return nil, fmt.Errorf("CPU query failed: %w", err)
	}
	mem, err := p.queryVector(ctx, memQuery)
	if err != nil {
		return nil, fmt.Errorf("memory query failed: %w", err)
	}

	byPod := make(map[string]map[string]corev1.ResourceList)
	for _, sample := range cpu {
		pod, container := string(sample.Metric["pod"]), string(sample.Metric["container"])
		ensureContainer(byPod, pod, container)[corev1.ResourceCPU] =
			*resource.NewMilliQuantity(int64(float64(sample.Value)*1000), resource.DecimalSI)
	}
	for _, sample := range mem {
		pod, container := string(sample.Metric["pod"]), string(sample.Metric["container"])
		ensureContainer(byPod, pod, container)[corev1.ResourceMemory] =
			*resource.NewQuantity(int64(sample.Value), resource.BinarySI)
	}

	var out []metricsv1beta1.PodMetrics
	for pod, containers := range byPod {
		item := metricsv1beta1.PodMetrics{}
		item.Name = pod
		item.Namespace = namespace
		for name, usage := range containers {
			item.Containers = append(item.Containers, metricsv1beta1.ContainerMetrics{
				Name:  name,
				Usage: usage,
			})
		}
		out = append(out, item)
	}
	return out, nil
}

// Available runs a trivial query to probe the server
func (p *PrometheusSource) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, _, err := p.client.Query(probeCtx, "up", time.Now())
	return err == nil
}

// Name identifies the source in logs
func (p *PrometheusSource) Name() string {
	return "prometheus (" + p.url + ")"
}

func (p *PrometheusSource) queryVector(ctx context.Context, query string) (model.Vector, error) {
	result, warnings, err := p.client.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if len(warnings) > 0 {
		klog.Warningf("Prometheus warnings for %q: %v", query, warnings)
	}

	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T for query %q", result, query)
	}
	return vector, nil
}

func ensureContainer(byPod map[string]map[string]corev1.ResourceList, pod, container string) corev1.ResourceList {
	if byPod[pod] == nil {
		byPod[pod] = make(map[string]corev1.ResourceList)
	}
	if byPod[pod][container] == nil {
		byPod[pod][container] = corev1.ResourceList{}
	}
	return byPod[pod][container]
}
