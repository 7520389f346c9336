// Package report owns the final report model: the merged, ordered finding
// sequence plus the tables the external renderer consumes. No rendering
// concerns live here.
package report

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"kubecase/pkg/disruption"
	"kubecase/pkg/models"
	"kubecase/pkg/probe"
	"kubecase/pkg/resources"
)

// Version of the analysis engine, stamped into every report
const Version = "1.0.0"

// Metadata is the report front matter: where the snapshot came from and
// what it contained
type Metadata struct {
	Cluster       string    `json:"cluster"`
	Namespace     string    `json:"namespace"`
	Owners        int       `json:"owners"`
	Pods          int       `json:"pods"`
	Containers    int       `json:"containers"`
	Budgets       int       `json:"pod_disruption_budgets"`
	CollectedAt   time.Time `json:"collected_at"`
	GeneratedAt   time.Time `json:"generated_at"`
	EngineVersion string    `json:"engine_version"`
}

// Report is the complete output of one analysis run
type Report struct {
	ID       string   `json:"id"`
	Meta     Metadata `json:"meta"`
	Findings []models.Finding `json:"findings"`

	Resources       resources.Table         `json:"resources"`
	QoSDistribution map[models.QoSClass]int `json:"qos_distribution"`
	ProbeTimings    []probe.ContainerTiming `json:"probe_timings"`
	Coverage        disruption.Coverage     `json:"pdb_coverage"`
	Simulation      []disruption.Round      `json:"eviction_simulation"`
}

// NewMetadata fills the front matter from a snapshot
func NewMetadata(snapshot *models.Snapshot) Metadata {
	return Metadata{
		Cluster:       snapshot.Cluster,
		Namespace:     snapshot.Namespace,
		Owners:        len(snapshot.Controllers),
		Pods:          len(snapshot.Pods),
		Containers:    snapshot.TotalContainers(),
		Budgets:       len(snapshot.Budgets),
		CollectedAt:   snapshot.CollectedAt,
		GeneratedAt:   time.Now(),
		EngineVersion: Version,
	}
}

// New allocates an empty report with a fresh run ID
func New(snapshot *models.Snapshot) *Report {
	return &Report{
		ID:              uuid.NewString(),
		Meta:            NewMetadata(snapshot),
		QoSDistribution: map[models.QoSClass]int{},
	}
}

// MergeFindings concatenates the analyzers' finding sets and applies the
// report ordering contract: severity descending, then subject kind
// (namespace, controller, pod, container), then subject name, then code,
// all ascending. Ties keep discovery order, making the ordering total.
func MergeFindings(sets ...[]models.Finding) []models.Finding {
	merged := []models.Finding{}
	for _, set := range sets {
		merged = append(merged, set...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Subject.Kind.Rank() != b.Subject.Kind.Rank() {
			return a.Subject.Kind.Rank() < b.Subject.Kind.Rank()
		}
		if a.Subject.Name != b.Subject.Name {
			return a.Subject.Name < b.Subject.Name
		}
		return a.Code < b.Code
	})

	return merged
}

// CountBySeverity tallies the merged findings for the report summary
func CountBySeverity(findings []models.Finding) map[models.Severity]int {
	counts := map[models.Severity]int{
		models.SeverityCritical: 0,
		models.SeverityWarning:  0,
		models.SeverityInfo:     0,
	}
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
