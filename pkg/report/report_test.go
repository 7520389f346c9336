package report

import (
	"testing"
	"time"

	"kubecase/pkg/models"
)

func finding(sev models.Severity, kind models.SubjectKind, name, code string) models.Finding {
	return models.Finding{
		Severity: sev,
		Subject:  models.Subject{Kind: kind, Namespace: "default", Name: name},
		Code:     code,
	}
}

func TestMergeFindings_SeverityDescendsFirst(t *testing.T) {
	// Input deliberately ascending by severity
	merged := MergeFindings([]models.Finding{
		finding(models.SeverityInfo, models.SubjectContainer, "a/app", "missing-startup-probe"),
		finding(models.SeverityWarning, models.SubjectContainer, "a/app", "missing-liveness-probe"),
		finding(models.SeverityCritical, models.SubjectContainer, "a/app", "request-exceeds-limit"),
	})

	want := []models.Severity{
		models.SeverityCritical,
		models.SeverityWarning,
		models.SeverityInfo,
	}
	for i, f := range merged {
		if f.Severity != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], f.Severity)
		}
	}
}

func TestMergeFindings_SubjectKindBreaksSeverityTies(t *testing.T) {
	merged := MergeFindings([]models.Finding{
		finding(models.SeverityWarning, models.SubjectContainer, "p/app", "x"),
		finding(models.SeverityWarning, models.SubjectNamespace, "default", "x"),
		finding(models.SeverityWarning, models.SubjectPod, "p", "x"),
		finding(models.SeverityWarning, models.SubjectController, "web", "x"),
	})

	want := []models.SubjectKind{
		models.SubjectNamespace,
		models.SubjectController,
		models.SubjectPod,
		models.SubjectContainer,
	}
	for i, f := range merged {
		if f.Subject.Kind != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], f.Subject.Kind)
		}
	}
}

func TestMergeFindings_NameThenCode(t *testing.T) {
	merged := MergeFindings([]models.Finding{
		finding(models.SeverityWarning, models.SubjectContainer, "b/app", "aaa"),
		finding(models.SeverityWarning, models.SubjectContainer, "a/app", "zzz"),
		finding(models.SeverityWarning, models.SubjectContainer, "a/app", "aaa"),
	})

	type key struct{ name, code string }
	want := []key{
		{"a/app", "aaa"},
		{"a/app", "zzz"},
		{"b/app", "aaa"},
	}
	for i, f := range merged {
		if f.Subject.Name != want[i].name || f.Code != want[i].code {
			t.Errorf("Position %d: expected %v, got %s/%s", i, want[i], f.Subject.Name, f.Code)
		}
	}
}

func TestMergeFindings_TiesKeepDiscoveryOrder(t *testing.T) {
	first := finding(models.SeverityWarning, models.SubjectContainer, "a/app", "same-code")
	first.Message = "first"
	second := finding(models.SeverityWarning, models.SubjectContainer, "a/app", "same-code")
	second.Message = "second"

	merged := MergeFindings([]models.Finding{first}, []models.Finding{second})

	if merged[0].Message != "first" || merged[1].Message != "second" {
		t.Errorf("Full ties must keep discovery order, got %q then %q",
			merged[0].Message, merged[1].Message)
	}
}

func TestMergeFindings_Deterministic(t *testing.T) {
	setA := []models.Finding{
		finding(models.SeverityCritical, models.SubjectPod, "p1", "a"),
		finding(models.SeverityInfo, models.SubjectContainer, "p1/c", "b"),
	}
	setB := []models.Finding{
		finding(models.SeverityWarning, models.SubjectController, "web", "c"),
	}

	first := MergeFindings(setA, setB)
	for i := 0; i < 5; i++ {
		again := MergeFindings(setA, setB)
		if len(again) != len(first) {
			t.Fatalf("Length changed between runs: %d vs %d", len(first), len(again))
		}
		for j := range first {
			if again[j] != first[j] {
				t.Errorf("Run %d position %d differs: %+v vs %+v", i, j, first[j], again[j])
			}
		}
	}
}

func TestMergeFindings_EmptyInputYieldsEmptySlice(t *testing.T) {
	merged := MergeFindings()
	if merged == nil {
		t.Error("Expected an empty slice, not nil, for JSON encoding")
	}
	if len(merged) != 0 {
		t.Errorf("Expected no findings, got %d", len(merged))
	}
}

func TestCountBySeverity(t *testing.T) {
	counts := CountBySeverity([]models.Finding{
		finding(models.SeverityCritical, models.SubjectPod, "p", "a"),
		finding(models.SeverityCritical, models.SubjectPod, "p", "b"),
		finding(models.SeverityInfo, models.SubjectPod, "p", "c"),
	})

	if counts[models.SeverityCritical] != 2 {
		t.Errorf("Expected 2 critical, got %d", counts[models.SeverityCritical])
	}
	if counts[models.SeverityWarning] != 0 {
		t.Errorf("Expected 0 warning, got %d", counts[models.SeverityWarning])
	}
	if counts[models.SeverityInfo] != 1 {
		t.Errorf("Expected 1 info, got %d", counts[models.SeverityInfo])
	}
}

func TestNewMetadata(t *testing.T) {
	collected := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pod := &models.Pod{
		Name:       "web-1",
		Containers: []*models.Container{{Name: "app"}, {Name: "sidecar"}},
	}
	snapshot := &models.Snapshot{
		Cluster:     "prod",
		Namespace:   "default",
		CollectedAt: collected,
		Pods:        []*models.Pod{pod},
		Controllers: []*models.Controller{{Name: "web"}},
	}

	meta := NewMetadata(snapshot)

	if meta.Cluster != "prod" || meta.Namespace != "default" {
		t.Errorf("Unexpected front matter: %+v", meta)
	}
	if meta.Pods != 1 || meta.Containers != 2 || meta.Owners != 1 {
		t.Errorf("Expected 1 pod / 2 containers / 1 owner, got %d/%d/%d",
			meta.Pods, meta.Containers, meta.Owners)
	}
	if !meta.CollectedAt.Equal(collected) {
		t.Errorf("Expected collected_at %v, got %v", collected, meta.CollectedAt)
	}
	if meta.EngineVersion != Version {
		t.Errorf("Expected engine version %s, got %s", Version, meta.EngineVersion)
	}
}

func TestNew_AssignsUniqueIDs(t *testing.T) {
	snapshot := &models.Snapshot{Namespace: "default"}

	a := New(snapshot)
	b := New(snapshot)

	if a.ID == "" || b.ID == "" {
		t.Fatal("Expected non-empty report IDs")
	}
	if a.ID == b.ID {
		t.Errorf("Expected distinct run IDs, both were %s", a.ID)
	}
}
