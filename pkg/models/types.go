package models

import (
	"time"

	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// ControllerKind identifies the workload type owning a set of pods
type ControllerKind string

const (
	KindDeployment  ControllerKind = "Deployment"
	KindStatefulSet ControllerKind = "StatefulSet"
	KindDaemonSet   ControllerKind = "DaemonSet"
	KindJob         ControllerKind = "Job"
	// KindBare marks a pod without an owner reference; the pod is its own
	// controller group, named "standalone/<pod>"
	KindBare ControllerKind = "Pod"
)

// QoSClass is the Kubernetes quality-of-service tier, always derived from
// container requests/limits and never stored independently
type QoSClass string

const (
	QoSGuaranteed QoSClass = "Guaranteed"
	QoSBurstable  QoSClass = "Burstable"
	QoSBestEffort QoSClass = "BestEffort"
)

// ProbeKind distinguishes the three container probe types
type ProbeKind string

const (
	ProbeStartup   ProbeKind = "startup"
	ProbeLiveness  ProbeKind = "liveness"
	ProbeReadiness ProbeKind = "readiness"
)

// ProbeKinds is the stable evaluation order for probe findings
var ProbeKinds = []ProbeKind{ProbeStartup, ProbeLiveness, ProbeReadiness}

// Probe holds the timing fields of a configured container probe.
// Kubernetes defaults (period 10s, failureThreshold 3, successThreshold 1,
// timeout 1s) are filled in at normalization time.
type Probe struct {
	Kind                ProbeKind `json:"kind"`
	InitialDelaySeconds int32     `json:"initial_delay_seconds"`
	PeriodSeconds       int32     `json:"period_seconds"`
	TimeoutSeconds      int32     `json:"timeout_seconds"`
	FailureThreshold    int32     `json:"failure_threshold"`
	SuccessThreshold    int32     `json:"success_threshold"`
}

// RuntimeWindowSeconds is how long a running container can be broken before
// the probe takes action: periodSeconds * failureThreshold
func (p *Probe) RuntimeWindowSeconds() int32 {
	return p.PeriodSeconds * p.FailureThreshold
}

// ColdStartSeconds is the worst-case time to first action on a cold start:
// initialDelaySeconds + periodSeconds * failureThreshold
func (p *Probe) ColdStartSeconds() int32 {
	return p.InitialDelaySeconds + p.RuntimeWindowSeconds()
}

// ResourceAmount is a parsed resource quantity together with the raw spec
// string it came from. The raw string is kept because some rules (the
// millicore-suffix-on-memory check) operate on the textual form that the
// parsed quantity erases. A nil *ResourceAmount means "unset", which is
// distinct from an explicit zero.
type ResourceAmount struct {
	Raw      string            `json:"raw"`
	Quantity resource.Quantity `json:"-"`
}

// MilliValue returns the amount in millicores (CPU) or milli-units
func (r *ResourceAmount) MilliValue() int64 {
	return r.Quantity.MilliValue()
}

// Value returns the amount in base units (bytes for memory/storage)
func (r *ResourceAmount) Value() int64 {
	return r.Quantity.Value()
}

// Container is one container spec inside a pod, with optional requests,
// limits, probes and measured usage
type Container struct {
	Name string `json:"name"`

	// Pod is a non-owning back-reference to the enclosing pod
	Pod *Pod `json:"-"`

	CPURequest     *ResourceAmount `json:"cpu_request,omitempty"`
	CPULimit       *ResourceAmount `json:"cpu_limit,omitempty"`
	MemoryRequest  *ResourceAmount `json:"memory_request,omitempty"`
	MemoryLimit    *ResourceAmount `json:"memory_limit,omitempty"`
	StorageRequest *ResourceAmount `json:"ephemeral_storage_request,omitempty"`
	StorageLimit   *ResourceAmount `json:"ephemeral_storage_limit,omitempty"`

	Startup   *Probe `json:"startup_probe,omitempty"`
	Liveness  *Probe `json:"liveness_probe,omitempty"`
	Readiness *Probe `json:"readiness_probe,omitempty"`

	// Measured usage from the metrics source; nil when metrics are not
	// collected for this container
	CPUUsage    *resource.Quantity `json:"-"`
	MemoryUsage *resource.Quantity `json:"-"`
}

// Probe returns the configured probe of the given kind, or nil
func (c *Container) Probe(kind ProbeKind) *Probe {
	switch kind {
	case ProbeStartup:
		return c.Startup
	case ProbeLiveness:
		return c.Liveness
	case ProbeReadiness:
		return c.Readiness
	}
	return nil
}

// Pod is a normalized pod snapshot. Containers is never empty; a pod with
// zero containers is rejected at normalization time.
type Pod struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace"`
	UID       string            `json:"uid"`
	Labels    map[string]string `json:"labels,omitempty"`

	// Controller is a non-owning back-reference; nil for bare pods
	Controller *Controller `json:"-"`

	Containers []*Container `json:"containers"`

	Ready    bool  `json:"ready"`
	Restarts int32 `json:"restarts"`
}

// ControllerName is the grouping identity used in reports: the owning
// controller's name, or "standalone/<pod>" for bare pods
func (p *Pod) ControllerName() string {
	if p.Controller != nil {
		return p.Controller.Name
	}
	return "standalone/" + p.Name
}

// Controller groups the pods owned by one workload. For bare pods a
// synthetic controller of kind Pod is created holding just that pod.
type Controller struct {
	Name      string         `json:"name"`
	Kind      ControllerKind `json:"kind"`
	Namespace string         `json:"namespace"`
	Pods      []*Pod         `json:"-"`
}

// PodDisruptionBudget is a normalized PDB. Exactly one of MinAvailable and
// MaxUnavailable is set; a PDB violating that is rejected at normalization
// time and never reaches the disruption simulator.
type PodDisruptionBudget struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`

	Selector labels.Selector `json:"-"`

	MinAvailable   *intstr.IntOrString `json:"min_available,omitempty"`
	MaxUnavailable *intstr.IntOrString `json:"max_unavailable,omitempty"`
}

// Matches reports whether the PDB selector matches the pod's labels
func (b *PodDisruptionBudget) Matches(pod *Pod) bool {
	if b.Selector == nil {
		return false
	}
	return b.Selector.Matches(labels.Set(pod.Labels))
}

// Snapshot is the immutable, normalized input of one analysis run
type Snapshot struct {
	Cluster     string                 `json:"cluster"`
	Namespace   string                 `json:"namespace"`
	CollectedAt time.Time              `json:"collected_at"`
	Pods        []*Pod                 `json:"pods"`
	Controllers []*Controller          `json:"controllers"`
	Budgets     []*PodDisruptionBudget `json:"pod_disruption_budgets"`
}

// TotalContainers counts containers across all pods in the snapshot
func (s *Snapshot) TotalContainers() int {
	n := 0
	for _, pod := range s.Pods {
		n += len(pod.Containers)
	}
	return n
}
