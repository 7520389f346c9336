// Package collector fetches the namespace snapshot the engine analyzes:
// pods, disruption budgets and, when a source is available, container
// usage metrics. All cluster I/O of a run happens here, once, before the
// engine starts.
package collector

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"kubecase/pkg/normalize"
)

// UsageSource provides container usage metrics for a namespace. The
// metrics-server and Prometheus implementations both satisfy it; a nil
// source means usage-based rules are skipped.
type UsageSource interface {
	// PodMetrics returns current usage for all pods in the namespace
	PodMetrics(ctx context.Context, namespace string) ([]metricsv1beta1.PodMetrics, error)

	// Available reports whether the source can currently serve queries
	Available(ctx context.Context) bool

	Name() string
}

// Collector gathers one namespace snapshot per call
type Collector struct {
	kubeClient kubernetes.Interface
	usage      UsageSource
	cluster    string
}

// New creates a collector. usage may be nil.
func New(kubeClient kubernetes.Interface, usage UsageSource, cluster string) *Collector {
	return &Collector{
		kubeClient: kubeClient,
		usage:      usage,
		cluster:    cluster,
	}
}

// Collect fetches pods, PDBs and usage for the namespace and returns the
// raw normalizer input. Missing usage metrics are logged and tolerated;
// missing pods or budgets fail the collection.
func (c *Collector) Collect(ctx context.Context, namespace string) (normalize.Input, error) {
	in := normalize.Input{
		Cluster:   c.cluster,
		Namespace: namespace,
	}

	pods, err := c.kubeClient.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return in, fmt.Errorf("failed to list pods: %w", err)
	}
	in.Pods = pods.Items

	pdbs, err := c.kubeClient.PolicyV1().PodDisruptionBudgets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return in, fmt.Errorf("failed to list PodDisruptionBudgets: %w", err)
	}
	in.Budgets = pdbs.Items

	if c.usage != nil && c.usage.Available(ctx) {
		metrics, err := c.usage.PodMetrics(ctx, namespace)
		if err != nil {
			klog.Warningf("Usage source %s failed, continuing without usage: %v", c.usage.Name(), err)
		} else {
			in.Metrics = metrics
		}
	}

	return in, nil
}

// MetricsServerSource reads usage from the metrics-server API
type MetricsServerSource struct {
	client metricsv.Interface
}

// NewMetricsServerSource wraps a metrics clientset
func NewMetricsServerSource(client metricsv.Interface) *MetricsServerSource {
	return &MetricsServerSource{client: client}
}

// PodMetrics lists current pod metrics in the namespace
func (s *MetricsServerSource) PodMetrics(ctx context.Context, namespace string) ([]metricsv1beta1.PodMetrics, error) {
	list, err := s.client.MetricsV1beta1().PodMetricses(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pod metrics: %w", err)
	}
	return list.Items, nil
}

// Available probes the metrics API with a short timeout
func (s *MetricsServerSource) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.client.MetricsV1beta1().NodeMetricses().List(probeCtx, metav1.ListOptions{Limit: 1})
	return err == nil
}

// Name identifies the source in logs
func (s *MetricsServerSource) Name() string {
	return "metrics-server"
}
