package models

// Severity classifies a finding
type Severity string

const (
	SeverityInfo     Severity = "Info"
	SeverityWarning  Severity = "Warning"
	SeverityCritical Severity = "Critical"
)

// Rank orders severities for report sorting, highest first
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// SubjectKind is the type of object a finding refers to
type SubjectKind string

const (
	SubjectNamespace  SubjectKind = "Namespace"
	SubjectController SubjectKind = "Controller"
	SubjectPod        SubjectKind = "Pod"
	SubjectContainer  SubjectKind = "Container"
)

// Rank orders subject kinds for report sorting: namespace-wide findings
// come before controller, pod and container findings
func (k SubjectKind) Rank() int {
	switch k {
	case SubjectNamespace:
		return 0
	case SubjectController:
		return 1
	case SubjectPod:
		return 2
	default:
		return 3
	}
}

// Subject identifies the object a finding is about. For containers the name
// is "<pod>/<container>" so that subject names stay unique within a kind.
type Subject struct {
	Kind      SubjectKind `json:"kind"`
	Namespace string      `json:"namespace"`
	Name      string      `json:"name"`
}

// Stable finding codes. The renderer keys legend text and grouping off
// these, so they are part of the engine's contract.
const (
	CodeMalformedQuantity    = "malformed-quantity"
	CodeMalformedPod         = "malformed-pod"
	CodeInvalidPDBSpec       = "invalid-pdb-spec"
	CodeMissingStartupProbe  = "missing-startup-probe"
	CodeMissingLivenessProbe = "missing-liveness-probe"
	CodeMissingReadiness     = "missing-readiness-probe"
	CodeAggressiveProbe      = "aggressive-probe"
	CodeInsufficientWindow   = "insufficient-probe-window"
	CodeRequestExceedsLimit  = "request-exceeds-limit"
	CodeAsymmetricResources  = "asymmetric-resource-spec"
	CodeNoResourceSpec       = "no-resource-spec"
	CodeInvalidMemorySuffix  = "invalid-memory-suffix"
	CodeUsageElevated        = "usage-elevated"
	CodeUsageNearLimit       = "usage-near-limit"
	CodeNoPDBCoverage        = "no-pdb-coverage"
	CodePDBBlocksEvictions   = "pdb-blocks-all-evictions"
	CodeCustomRule           = "custom-rule"
)

// Finding is one diagnostic result. Value carries the numeric evidence for
// threshold-based findings (a percentage, a seconds count); it is zero for
// findings without one.
type Finding struct {
	Severity Severity `json:"severity"`
	Subject  Subject  `json:"subject"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Value    float64  `json:"value,omitempty"`
}

// NamespaceSubject builds a namespace-level subject
func NamespaceSubject(namespace string) Subject {
	return Subject{Kind: SubjectNamespace, Namespace: namespace, Name: namespace}
}

// ControllerSubject builds a controller-level subject
func ControllerSubject(c *Controller) Subject {
	return Subject{Kind: SubjectController, Namespace: c.Namespace, Name: c.Name}
}

// PodSubject builds a pod-level subject
func PodSubject(p *Pod) Subject {
	return Subject{Kind: SubjectPod, Namespace: p.Namespace, Name: p.Name}
}

// ContainerSubject builds a container-level subject named "<pod>/<container>"
func ContainerSubject(c *Container) Subject {
	return Subject{
		Kind:      SubjectContainer,
		Namespace: c.Pod.Namespace,
		Name:      c.Pod.Name + "/" + c.Name,
	}
}
