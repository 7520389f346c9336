// Package engine runs the analyzers over one normalized snapshot and
// assembles the final report. A run is a pure, synchronous computation:
// no I/O, no retries, no shared mutable state.
package engine

import (
	"errors"
	"sync"

	"k8s.io/klog/v2"

	"kubecase/pkg/config"
	"kubecase/pkg/disruption"
	"kubecase/pkg/models"
	"kubecase/pkg/probe"
	"kubecase/pkg/qos"
	"kubecase/pkg/report"
	"kubecase/pkg/resources"
	"kubecase/pkg/rules"
)

// ErrEmptyNamespace signals that the namespace held no pods at all. It is
// not a failure; callers suppress report generation instead of emitting an
// empty artifact. A namespace whose pods were all rejected at
// normalization is not empty: those runs proceed so the report carries
// the rejection findings.
var ErrEmptyNamespace = errors.New("no pods found in namespace")

// Engine binds a config and optional custom rules to the analysis run
type Engine struct {
	cfg       *config.Config
	ruleTable *rules.Engine
}

// New creates an engine with the given config; a nil config uses defaults
func New(cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	return &Engine{cfg: cfg}
}

// WithRules attaches a loaded custom rule engine
func (e *Engine) WithRules(r *rules.Engine) *Engine {
	e.ruleTable = r
	return e
}

// Run executes all analyzers over the snapshot and returns the assembled
// report. normalizeFindings are the findings produced while building the
// snapshot; they are merged into the report's ordered sequence.
// Returns ErrEmptyNamespace before any analyzer executes when the raw
// namespace held zero pods. Emptiness is decided on the raw pod count,
// reconstructed from the snapshot plus the per-pod rejection findings, so
// an all-malformed namespace still produces a report.
func (e *Engine) Run(snapshot *models.Snapshot, normalizeFindings []models.Finding) (*report.Report, error) {
	if len(snapshot.Pods) == 0 && !hasRejectedPods(normalizeFindings) {
		return nil, ErrEmptyNamespace
	}

	// QoS feeds the resource analyzer's misconfiguration summary, so it
	// runs before the fan-out
	qosByPod := make(map[string]models.QoSClass, len(snapshot.Pods))
	for _, pod := range snapshot.Pods {
		qosByPod[pod.Name] = qos.Classify(pod)
	}

	// The analyzers are independent; each goroutine writes only its own
	// result and the merge below happens after the join
	var (
		wg             sync.WaitGroup
		probeResult    probe.Result
		resourceResult resources.Result
		disruptResult  disruption.Result
		ruleFindings   []models.Finding
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		probeResult = probe.Analyze(snapshot.Pods, e.cfg)
	}()
	go func() {
		defer wg.Done()
		resourceResult = resources.Analyze(snapshot, qosByPod, e.cfg)
	}()
	go func() {
		defer wg.Done()
		disruptResult = disruption.Simulate(snapshot, e.cfg)
	}()

	if e.ruleTable != nil && e.ruleTable.Len() > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ruleFindings = e.ruleTable.Evaluate(snapshot.Pods)
		}()
	}

	wg.Wait()

	out := report.New(snapshot)
	out.Findings = report.MergeFindings(
		normalizeFindings,
		probeResult.Findings,
		resourceResult.Findings,
		disruptResult.Findings,
		ruleFindings,
	)
	out.Resources = resourceResult.Table
	out.QoSDistribution = qos.Distribution(snapshot.Pods)
	out.ProbeTimings = probeResult.Timings
	out.Coverage = disruptResult.Coverage
	out.Simulation = disruptResult.Rounds

	klog.V(2).Infof("Analyzed namespace %s: %d pods, %d findings",
		snapshot.Namespace, len(snapshot.Pods), len(out.Findings))

	return out, nil
}

// hasRejectedPods reports whether normalization dropped at least one pod.
// Each rejected pod produced exactly one malformed finding, so their
// presence means the raw namespace was not empty.
func hasRejectedPods(findings []models.Finding) bool {
	for _, f := range findings {
		if f.Code == models.CodeMalformedPod || f.Code == models.CodeMalformedQuantity {
			return true
		}
	}
	return false
}
