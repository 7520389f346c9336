// Package rules evaluates user-defined finding rules: YAML-declared
// conditions over per-container facts, compiled with expr. Rules extend
// the built-in analyzers without forking the engine.
package rules

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v2"
	"k8s.io/klog/v2"

	"kubecase/pkg/models"
)

// Rule is a single user-defined finding rule
type Rule struct {
	// Name is the unique identifier for this rule, reported as the
	// finding message prefix
	Name string `yaml:"name"`

	// Description explains what the rule catches
	Description string `yaml:"description,omitempty"`

	// Condition is an expression over the container environment that
	// must evaluate to true for the rule to fire.
	// Example: "container.memory_limit_bytes > 4 * 1024 * 1024 * 1024"
	Condition string `yaml:"condition"`

	// Severity of the finding emitted when the condition holds:
	// Info, Warning or Critical
	Severity string `yaml:"severity"`

	// Code overrides the finding code; defaults to "custom-rule"
	Code string `yaml:"code,omitempty"`

	// Priority determines evaluation order (higher first)
	Priority int `yaml:"priority,omitempty"`

	// Enabled allows temporarily disabling a rule without removing it
	Enabled bool `yaml:"enabled"`
}

// RuleSet is a collection of rules loaded from one file
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Engine compiles and evaluates rule conditions
type Engine struct {
	rules RuleSet

	// compiledPrograms caches compiled expressions per condition
	compiledPrograms map[string]*vm.Program

	// mu protects concurrent access to compiledPrograms
	mu sync.RWMutex
}

// NewEngine creates an empty rule engine
func NewEngine() *Engine {
	return &Engine{
		compiledPrograms: make(map[string]*vm.Program),
	}
}

// Load reads rules from a YAML file
func (e *Engine) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read rules file: %w", err)
	}
	return e.LoadFromBytes(data)
}

// LoadFromBytes loads rules from YAML bytes (useful for testing)
func (e *Engine) LoadFromBytes(data []byte) error {
	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return fmt.Errorf("failed to unmarshal rules: %w", err)
	}

	for i, r := range set.Rules {
		if r.Name == "" {
			return fmt.Errorf("rule at index %d has no name", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("rule %s has no condition", r.Name)
		}
		if !validSeverity(r.Severity) {
			return fmt.Errorf("rule %s has invalid severity: %s", r.Name, r.Severity)
		}
	}

	sort.Slice(set.Rules, func(i, j int) bool {
		return set.Rules[i].Priority > set.Rules[j].Priority
	})

	e.rules = set
	klog.Infof("Loaded %d custom rules", len(set.Rules))
	return nil
}

// Len returns the number of loaded rules
func (e *Engine) Len() int {
	return len(e.rules.Rules)
}

// Evaluate runs every enabled rule against every container and returns
// the findings for the ones that fired
func (e *Engine) Evaluate(pods []*models.Pod) []models.Finding {
	var findings []models.Finding

	for _, pod := range pods {
		for _, container := range pod.Containers {
			env := containerEnv(pod, container)
			for i := range e.rules.Rules {
				rule := &e.rules.Rules[i]
				if !rule.Enabled {
					continue
				}

				matched, err := e.evaluateCondition(rule.Condition, env)
				if err != nil {
					klog.Warningf("Failed to evaluate rule %s: %v", rule.Name, err)
					continue
				}
				if !matched {
					continue
				}

				code := rule.Code
				if code == "" {
					code = models.CodeCustomRule
				}
				findings = append(findings, models.Finding{
					Severity: models.Severity(rule.Severity),
					Subject:  models.ContainerSubject(container),
					Code:     code,
					Message:  fmt.Sprintf("%s: %s", rule.Name, rule.Description),
				})
			}
		}
	}

	return findings
}

func (e *Engine) evaluateCondition(condition string, env map[string]interface{}) (bool, error) {
	e.mu.RLock()
	program, exists := e.compiledPrograms[condition]
	e.mu.RUnlock()

	if !exists {
		compiled, err := expr.Compile(condition, expr.Env(env), expr.AsBool())
		if err != nil {
			return false, fmt.Errorf("failed to compile condition: %w", err)
		}

		e.mu.Lock()
		e.compiledPrograms[condition] = compiled
		e.mu.Unlock()
		program = compiled
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to run condition: %w", err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not evaluate to bool")
	}
	return matched, nil
}

// containerEnv flattens the facts a condition can reference. Unset
// amounts appear as -1 so rules can distinguish "unset" from zero.
func containerEnv(pod *models.Pod, c *models.Container) map[string]interface{} {
	return map[string]interface{}{
		"pod": map[string]interface{}{
			"name":       pod.Name,
			"namespace":  pod.Namespace,
			"controller": pod.ControllerName(),
			"labels":     pod.Labels,
			"ready":      pod.Ready,
			"restarts":   int(pod.Restarts),
		},
		"container": map[string]interface{}{
			"name":                 c.Name,
			"cpu_request_milli":    amountMilli(c.CPURequest),
			"cpu_limit_milli":      amountMilli(c.CPULimit),
			"memory_request_bytes": amountValue(c.MemoryRequest),
			"memory_limit_bytes":   amountValue(c.MemoryLimit),
			"has_liveness":         c.Liveness != nil,
			"has_readiness":        c.Readiness != nil,
			"has_startup":          c.Startup != nil,
		},
	}
}

func amountMilli(a *models.ResourceAmount) int64 {
	if a == nil {
		return -1
	}
	return a.MilliValue()
}

func amountValue(a *models.ResourceAmount) int64 {
	if a == nil {
		return -1
	}
	return a.Value()
}

func validSeverity(s string) bool {
	switch models.Severity(s) {
	case models.SeverityInfo, models.SeverityWarning, models.SeverityCritical:
		return true
	}
	return false
}
