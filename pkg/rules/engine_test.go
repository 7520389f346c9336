package rules

import (
	"strings"
	"testing"

	"k8s.io/apimachinery/pkg/api/resource"

	"kubecase/pkg/models"
)

func amount(s string) *models.ResourceAmount {
	return &models.ResourceAmount{Raw: s, Quantity: resource.MustParse(s)}
}

func testPod(name string, containers ...*models.Container) *models.Pod {
	pod := &models.Pod{Name: name, Namespace: "default", Containers: containers}
	for _, c := range containers {
		c.Pod = pod
	}
	return pod
}

func TestLoadFromBytes_ValidatesRules(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"missing name",
			"rules:\n  - condition: \"true\"\n    severity: Warning\n",
			"has no name",
		},
		{
			"missing condition",
			"rules:\n  - name: x\n    severity: Warning\n",
			"has no condition",
		},
		{
			"bad severity",
			"rules:\n  - name: x\n    condition: \"true\"\n    severity: Fatal\n",
			"invalid severity",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewEngine().LoadFromBytes([]byte(tc.yaml))
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestEvaluate_RuleFires(t *testing.T) {
	e := NewEngine()
	err := e.LoadFromBytes([]byte(`
rules:
  - name: oversized-memory
    description: memory limit above 4Gi
    condition: "container.memory_limit_bytes > 4 * 1024 * 1024 * 1024"
    severity: Warning
    code: oversized-memory-limit
    enabled: true
`))
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}

	big := testPod("big-1", &models.Container{Name: "app", MemoryLimit: amount("8Gi")})
	small := testPod("small-1", &models.Container{Name: "app", MemoryLimit: amount("512Mi")})

	findings := e.Evaluate([]*models.Pod{big, small})

	if len(findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Code != "oversized-memory-limit" {
		t.Errorf("Expected custom code, got %s", f.Code)
	}
	if f.Severity != models.SeverityWarning {
		t.Errorf("Expected Warning, got %s", f.Severity)
	}
	if f.Subject.Name != "big-1/app" {
		t.Errorf("Expected subject big-1/app, got %s", f.Subject.Name)
	}
}

func TestEvaluate_DisabledRuleSkipped(t *testing.T) {
	e := NewEngine()
	err := e.LoadFromBytes([]byte(`
rules:
  - name: always
    condition: "true"
    severity: Info
    enabled: false
`))
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}

	pod := testPod("web-1", &models.Container{Name: "app"})

	if findings := e.Evaluate([]*models.Pod{pod}); len(findings) != 0 {
		t.Errorf("Disabled rule must not fire, got %+v", findings)
	}
}

func TestEvaluate_UnsetAmountIsNegativeOne(t *testing.T) {
	e := NewEngine()
	err := e.LoadFromBytes([]byte(`
rules:
  - name: no-cpu-request
    condition: "container.cpu_request_milli == -1"
    severity: Info
    enabled: true
`))
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}

	pod := testPod("web-1", &models.Container{Name: "app"})

	findings := e.Evaluate([]*models.Pod{pod})
	if len(findings) != 1 {
		t.Errorf("Expected the unset sentinel to match, got %d findings", len(findings))
	}
}

func TestEvaluate_DefaultCode(t *testing.T) {
	e := NewEngine()
	err := e.LoadFromBytes([]byte(`
rules:
  - name: always
    condition: "true"
    severity: Info
    enabled: true
`))
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}

	pod := testPod("web-1", &models.Container{Name: "app"})

	findings := e.Evaluate([]*models.Pod{pod})
	if len(findings) != 1 || findings[0].Code != models.CodeCustomRule {
		t.Errorf("Expected default code %s, got %+v", models.CodeCustomRule, findings)
	}
}

func TestEvaluate_PodFactsAvailable(t *testing.T) {
	e := NewEngine()
	err := e.LoadFromBytes([]byte(`
rules:
  - name: restart-loop
    condition: "pod.restarts > 3 && !pod.ready"
    severity: Critical
    enabled: true
`))
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}

	looping := testPod("crash-1", &models.Container{Name: "app"})
	looping.Restarts = 7
	stable := testPod("ok-1", &models.Container{Name: "app"})
	stable.Ready = true

	findings := e.Evaluate([]*models.Pod{looping, stable})
	if len(findings) != 1 || findings[0].Subject.Name != "crash-1/app" {
		t.Errorf("Expected one finding for crash-1, got %+v", findings)
	}
}

func TestEvaluate_BrokenConditionIsSkippedNotFatal(t *testing.T) {
	e := NewEngine()
	err := e.LoadFromBytes([]byte(`
rules:
  - name: broken
    condition: "container.no_such_field > 1"
    severity: Info
    enabled: true
  - name: working
    condition: "true"
    severity: Info
    enabled: true
`))
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}

	pod := testPod("web-1", &models.Container{Name: "app"})

	findings := e.Evaluate([]*models.Pod{pod})
	if len(findings) != 1 {
		t.Errorf("Expected the working rule to still fire, got %d findings", len(findings))
	}
}

func TestLoadFromBytes_SortsByPriority(t *testing.T) {
	e := NewEngine()
	err := e.LoadFromBytes([]byte(`
rules:
  - name: low
    condition: "true"
    severity: Info
    priority: 1
    enabled: true
  - name: high
    condition: "true"
    severity: Info
    priority: 10
    enabled: true
`))
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}

	if e.rules.Rules[0].Name != "high" {
		t.Errorf("Expected high priority first, got %s", e.rules.Rules[0].Name)
	}
	if e.Len() != 2 {
		t.Errorf("Expected 2 rules, got %d", e.Len())
	}
}
