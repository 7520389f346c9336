// Package normalize converts raw namespace records from the cluster into
// the typed snapshot model the analyzers run on. Validation is eager: an
// object that does not fit the model is dropped and flagged as a Critical
// finding, and the rest of the run continues.
package normalize

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"

	"kubecase/pkg/models"
)

// Kubernetes probe defaults applied when a field is unset
const (
	defaultProbePeriodSeconds    = 10
	defaultProbeTimeoutSeconds   = 1
	defaultProbeFailureThreshold = 3
	defaultProbeSuccessThreshold = 1
)

// Input is one namespace worth of raw records fetched by the collector.
// Metrics may be empty when no metrics source is available.
type Input struct {
	Cluster   string
	Namespace string
	Pods      []corev1.Pod
	Budgets   []policyv1.PodDisruptionBudget
	Metrics   []metricsv1beta1.PodMetrics
}

// Result pairs the normalized snapshot with the findings produced while
// normalizing (malformed objects, invalid budgets)
type Result struct {
	Snapshot *models.Snapshot
	Findings []models.Finding
}

// ParseAmount parses a suffixed quantity string ("250m", "128Mi") into a
// ResourceAmount. A malformed string is a distinct error state.
func ParseAmount(raw string) (*models.ResourceAmount, error) {
	q, err := resource.ParseQuantity(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedQuantity, raw, err)
	}
	return &models.ResourceAmount{Raw: raw, Quantity: q}, nil
}

// Normalize builds the typed snapshot from raw records. Objects failing
// validation are skipped and reported as findings, never aborting the run.
func Normalize(in Input) *Result {
	res := &Result{
		Snapshot: &models.Snapshot{
			Cluster:   in.Cluster,
			Namespace: in.Namespace,
		},
	}

	usage := indexUsage(in.Metrics)
	controllers := make(map[string]*models.Controller)

	for i := range in.Pods {
		pod, err := normalizePod(&in.Pods[i], usage)
		if err != nil {
			res.Findings = append(res.Findings, models.Finding{
				Severity: models.SeverityCritical,
				Subject: models.Subject{
					Kind:      models.SubjectPod,
					Namespace: in.Namespace,
					Name:      in.Pods[i].Name,
				},
				Code:    malformedCode(err),
				Message: err.Error(),
			})
			continue
		}
		attachController(pod, &in.Pods[i], controllers)
		res.Snapshot.Pods = append(res.Snapshot.Pods, pod)
	}

	for name := range controllers {
		res.Snapshot.Controllers = append(res.Snapshot.Controllers, controllers[name])
	}
	sort.Slice(res.Snapshot.Controllers, func(i, j int) bool {
		return res.Snapshot.Controllers[i].Name < res.Snapshot.Controllers[j].Name
	})

	for i := range in.Budgets {
		budget, err := normalizeBudget(&in.Budgets[i])
		if err != nil {
			res.Findings = append(res.Findings, models.Finding{
				Severity: models.SeverityCritical,
				Subject: models.Subject{
					Kind:      models.SubjectNamespace,
					Namespace: in.Namespace,
					Name:      in.Budgets[i].Name,
				},
				Code:    models.CodeInvalidPDBSpec,
				Message: err.Error(),
			})
			continue
		}
		res.Snapshot.Budgets = append(res.Snapshot.Budgets, budget)
	}

	return res
}

// malformedCode maps a pod rejection error to its finding code: quantity
// parse failures get their own code, everything else is a malformed pod
func malformedCode(err error) string {
	if errors.Is(err, ErrMalformedQuantity) {
		return models.CodeMalformedQuantity
	}
	return models.CodeMalformedPod
}

func normalizePod(pod *corev1.Pod, usage map[string]map[string]containerUsage) (*models.Pod, error) {
	if len(pod.Spec.Containers) == 0 {
		return nil, fmt.Errorf("%w: pod %s has zero containers", ErrMalformedPod, pod.Name)
	}

	out := &models.Pod{
		Name:      pod.Name,
		Namespace: pod.Namespace,
		UID:       string(pod.UID),
		Labels:    pod.Labels,
		Ready:     isReady(pod),
		Restarts:  totalRestarts(pod),
	}

	podUsage := usage[pod.Name]

	for i := range pod.Spec.Containers {
		container, err := normalizeContainer(&pod.Spec.Containers[i])
		if err != nil {
			return nil, err
		}
		container.Pod = out
		if u, ok := podUsage[container.Name]; ok {
			container.CPUUsage = u.cpu
			container.MemoryUsage = u.memory
		}
		out.Containers = append(out.Containers, container)
	}

	return out, nil
}

func normalizeContainer(c *corev1.Container) (*models.Container, error) {
	out := &models.Container{Name: c.Name}

	var err error
	if out.CPURequest, err = amountFor(c.Resources.Requests, corev1.ResourceCPU); err != nil {
		return nil, err
	}
	if out.CPULimit, err = amountFor(c.Resources.Limits, corev1.ResourceCPU); err != nil {
		return nil, err
	}
	if out.MemoryRequest, err = amountFor(c.Resources.Requests, corev1.ResourceMemory); err != nil {
		return nil, err
	}
	if out.MemoryLimit, err = amountFor(c.Resources.Limits, corev1.ResourceMemory); err != nil {
		return nil, err
	}
	if out.StorageRequest, err = amountFor(c.Resources.Requests, corev1.ResourceEphemeralStorage); err != nil {
		return nil, err
	}
	if out.StorageLimit, err = amountFor(c.Resources.Limits, corev1.ResourceEphemeralStorage); err != nil {
		return nil, err
	}

	out.Startup = normalizeProbe(models.ProbeStartup, c.StartupProbe)
	out.Liveness = normalizeProbe(models.ProbeLiveness, c.LivenessProbe)
	out.Readiness = normalizeProbe(models.ProbeReadiness, c.ReadinessProbe)

	return out, nil
}

func amountFor(list corev1.ResourceList, name corev1.ResourceName) (*models.ResourceAmount, error) {
	q, ok := list[name]
	if !ok {
		return nil, nil
	}
	// Round-trip through the string form so the raw suffix is retained for
	// the textual rules
	return ParseAmount(q.String())
}

func normalizeProbe(kind models.ProbeKind, probe *corev1.Probe) *models.Probe {
	if probe == nil {
		return nil
	}
	out := &models.Probe{
		Kind:                kind,
		InitialDelaySeconds: probe.InitialDelaySeconds,
		PeriodSeconds:       probe.PeriodSeconds,
		TimeoutSeconds:      probe.TimeoutSeconds,
		FailureThreshold:    probe.FailureThreshold,
		SuccessThreshold:    probe.SuccessThreshold,
	}
	if out.PeriodSeconds == 0 {
		out.PeriodSeconds = defaultProbePeriodSeconds
	}
	if out.TimeoutSeconds == 0 {
		out.TimeoutSeconds = defaultProbeTimeoutSeconds
	}
	if out.FailureThreshold == 0 {
		out.FailureThreshold = defaultProbeFailureThreshold
	}
	if out.SuccessThreshold == 0 {
		out.SuccessThreshold = defaultProbeSuccessThreshold
	}
	return out
}

// attachController resolves the pod's owner one level deep and registers
// the pod with its controller group. Bare pods get a synthetic controller
// holding just themselves.
func attachController(pod *models.Pod, raw *corev1.Pod, controllers map[string]*models.Controller) {
	kind, name := ownerOf(raw)

	key := string(kind) + "/" + name
	controller, ok := controllers[key]
	if !ok {
		controller = &models.Controller{
			Name:      name,
			Kind:      kind,
			Namespace: pod.Namespace,
		}
		controllers[key] = controller
	}

	controller.Pods = append(controller.Pods, pod)
	pod.Controller = controller
}

// ownerOf reads the first owner reference only; transitive chains are not
// walked. A ReplicaSet owner is reported as its Deployment by trimming the
// template hash from the name.
func ownerOf(pod *corev1.Pod) (models.ControllerKind, string) {
	if len(pod.OwnerReferences) == 0 {
		return models.KindBare, "standalone/" + pod.Name
	}

	ref := pod.OwnerReferences[0]
	switch ref.Kind {
	case "ReplicaSet":
		if i := strings.LastIndex(ref.Name, "-"); i > 0 {
			return models.KindDeployment, ref.Name[:i]
		}
		return models.KindDeployment, ref.Name
	case "StatefulSet":
		return models.KindStatefulSet, ref.Name
	case "DaemonSet":
		return models.KindDaemonSet, ref.Name
	case "Job":
		return models.KindJob, ref.Name
	case "Deployment":
		return models.KindDeployment, ref.Name
	default:
		return models.KindBare, "standalone/" + pod.Name
	}
}

func normalizeBudget(pdb *policyv1.PodDisruptionBudget) (*models.PodDisruptionBudget, error) {
	minSet := pdb.Spec.MinAvailable != nil
	maxSet := pdb.Spec.MaxUnavailable != nil
	if minSet == maxSet {
		return nil, fmt.Errorf("%w: %s must set exactly one of minAvailable and maxUnavailable",
			ErrInvalidBudget, pdb.Name)
	}

	if pdb.Spec.Selector == nil {
		return nil, fmt.Errorf("%w: %s has no selector", ErrInvalidBudget, pdb.Name)
	}
	selector, err := metav1.LabelSelectorAsSelector(pdb.Spec.Selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %s selector: %v", ErrInvalidBudget, pdb.Name, err)
	}

	return &models.PodDisruptionBudget{
		Name:           pdb.Name,
		Namespace:      pdb.Namespace,
		Selector:       selector,
		MinAvailable:   pdb.Spec.MinAvailable,
		MaxUnavailable: pdb.Spec.MaxUnavailable,
	}, nil
}

func isReady(pod *corev1.Pod) bool {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

func totalRestarts(pod *corev1.Pod) int32 {
	var total int32
	for _, status := range pod.Status.ContainerStatuses {
		total += status.RestartCount
	}
	return total
}

type containerUsage struct {
	cpu    *resource.Quantity
	memory *resource.Quantity
}

func indexUsage(metrics []metricsv1beta1.PodMetrics) map[string]map[string]containerUsage {
	index := make(map[string]map[string]containerUsage, len(metrics))
	for i := range metrics {
		byContainer := make(map[string]containerUsage, len(metrics[i].Containers))
		for j := range metrics[i].Containers {
			c := &metrics[i].Containers[j]
			usage := containerUsage{}
			if cpu, ok := c.Usage[corev1.ResourceCPU]; ok {
				usage.cpu = &cpu
			}
			if mem, ok := c.Usage[corev1.ResourceMemory]; ok {
				usage.memory = &mem
			}
			byContainer[c.Name] = usage
		}
		index[metrics[i].Name] = byContainer
	}
	return index
}
