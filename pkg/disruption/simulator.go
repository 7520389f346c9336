// Package disruption computes PDB coverage for a namespace and simulates
// multi-round node-eviction scenarios constrained by PDB rules.
package disruption

import (
	"fmt"
	"sort"

	"k8s.io/apimachinery/pkg/util/intstr"

	"kubecase/pkg/config"
	"kubecase/pkg/models"
)

// Coverage summarizes how much of the namespace is protected by a PDB
type Coverage struct {
	TotalPods       int     `json:"total_pods"`
	CoveredPods     int     `json:"covered_pods"`
	UncoveredPods   int     `json:"uncovered_pods"`
	CoveragePercent float64 `json:"coverage_percent"`
	Tier            string  `json:"tier"`
}

// Coverage tiers, thresholds from config
const (
	TierHealthy  = "healthy"
	TierCaution  = "caution"
	TierCritical = "critical"
)

// BlockedEviction records one pod that could not be evicted and the budget
// that blocked it
type BlockedEviction struct {
	Pod    string `json:"pod"`
	Budget string `json:"budget"`
}

// Round is one simulated eviction round. Evictions within a round are
// sequential; each decision sees the pods remaining after the previous
// ones, matching eviction API semantics.
type Round struct {
	Round   int               `json:"round"`
	Evicted []string          `json:"evicted"`
	Blocked []BlockedEviction `json:"blocked"`
}

// Result carries coverage and effectiveness findings plus the simulation
// trace
type Result struct {
	Findings []models.Finding
	Coverage Coverage
	Rounds   []Round
}

// Simulate runs the three passes: coverage, budget effectiveness, and the
// round-by-round eviction simulation.
func Simulate(snapshot *models.Snapshot, cfg *config.Config) Result {
	var res Result

	res.Coverage, res.Findings = coveragePass(snapshot, cfg)
	res.Findings = append(res.Findings, effectivenessPass(snapshot)...)
	res.Rounds = simulateEvictions(snapshot, cfg)

	return res
}

// coveragePass finds pods no PDB selects. Uncovered pods are reported per
// owning controller; bare pods individually.
func coveragePass(snapshot *models.Snapshot, cfg *config.Config) (Coverage, []models.Finding) {
	cov := Coverage{TotalPods: len(snapshot.Pods)}

	uncoveredByController := make(map[string][]*models.Pod)
	var controllerNames []string

	for _, pod := range snapshot.Pods {
		if coveredBy(pod, snapshot.Budgets) != nil {
			cov.CoveredPods++
			continue
		}
		cov.UncoveredPods++
		name := pod.ControllerName()
		if _, seen := uncoveredByController[name]; !seen {
			controllerNames = append(controllerNames, name)
		}
		uncoveredByController[name] = append(uncoveredByController[name], pod)
	}

	if cov.TotalPods > 0 {
		cov.CoveragePercent = float64(cov.CoveredPods) / float64(cov.TotalPods) * 100
	}
	cov.Tier = coverageTier(cov.CoveragePercent, cfg)

	sort.Strings(controllerNames)

	var findings []models.Finding
	for _, name := range controllerNames {
		pods := uncoveredByController[name]
		first := pods[0]

		if first.Controller == nil || first.Controller.Kind == models.KindBare {
			for _, pod := range pods {
				findings = append(findings, models.Finding{
					Severity: models.SeverityWarning,
					Subject:  models.PodSubject(pod),
					Code:     models.CodeNoPDBCoverage,
					Message:  fmt.Sprintf("bare pod %s is not covered by any PodDisruptionBudget", pod.Name),
				})
			}
			continue
		}

		findings = append(findings, models.Finding{
			Severity: models.SeverityWarning,
			Subject:  models.ControllerSubject(first.Controller),
			Code:     models.CodeNoPDBCoverage,
			Message: fmt.Sprintf("%d pod(s) of %s %s are not covered by any PodDisruptionBudget",
				len(pods), first.Controller.Kind, name),
			Value: float64(len(pods)),
		})
	}

	return cov, findings
}

func coverageTier(pct float64, cfg *config.Config) string {
	switch {
	case pct >= cfg.HealthyCoveragePercent:
		return TierHealthy
	case pct >= cfg.CautionCoveragePercent:
		return TierCaution
	default:
		return TierCritical
	}
}

// effectivenessPass flags budgets that permit zero disruption, which
// freezes rollouts and node drains
func effectivenessPass(snapshot *models.Snapshot) []models.Finding {
	var findings []models.Finding

	for _, budget := range snapshot.Budgets {
		matching, ready := matchCounts(budget, snapshot.Pods)

		if budget.MaxUnavailable != nil {
			if scaled(budget.MaxUnavailable, matching) == 0 {
				findings = append(findings, models.Finding{
					Severity: models.SeverityCritical,
					Subject:  budgetSubject(budget),
					Code:     models.CodePDBBlocksEvictions,
					Message: fmt.Sprintf("PDB %s sets maxUnavailable=0 over %d pod(s), permitting zero disruption",
						budget.Name, matching),
					Value: float64(matching),
				})
			}
			continue
		}

		if min := scaled(budget.MinAvailable, matching); min >= ready {
			findings = append(findings, models.Finding{
				Severity: models.SeverityCritical,
				Subject:  budgetSubject(budget),
				Code:     models.CodePDBBlocksEvictions,
				Message: fmt.Sprintf("PDB %s requires minAvailable=%d with only %d ready pod(s), permitting zero disruption",
					budget.Name, min, ready),
				Value: float64(ready),
			})
		}
	}

	return findings
}

// simulateEvictions models up to cfg.SimulationRounds rounds of voluntary
// evictions, each round attempting up to cfg.EvictionsPerRound pods in
// (controller name, pod name) order. A pod is evicted only if no covering
// budget's constraint would be violated given the pods still remaining.
func simulateEvictions(snapshot *models.Snapshot, cfg *config.Config) []Round {
	state := newSimState(snapshot)
	var rounds []Round

	for r := 1; r <= cfg.SimulationRounds; r++ {
		round := Round{Round: r}
		budget := cfg.EvictionsPerRound

		for _, pod := range state.candidates() {
			if budget == 0 {
				break
			}
			if blocking := state.blockingBudget(pod); blocking != nil {
				round.Blocked = append(round.Blocked, BlockedEviction{
					Pod:    pod.Name,
					Budget: blocking.Name,
				})
				continue
			}
			state.evict(pod)
			round.Evicted = append(round.Evicted, pod.Name)
			budget--
		}

		rounds = append(rounds, round)

		// Fixed point: nothing was evictable, further rounds are identical
		if len(round.Evicted) == 0 {
			break
		}
		if state.remainingCount() == 0 {
			break
		}
	}

	return rounds
}

type simState struct {
	remaining map[string]*models.Pod // keyed by pod name
	order     []*models.Pod          // (controller name, pod name) order
	budgets   []*models.PodDisruptionBudget

	// initialMatching is the expected pod count per budget, fixed at
	// simulation start; percentage budgets scale against it
	initialMatching map[string]int
}

func newSimState(snapshot *models.Snapshot) *simState {
	s := &simState{
		remaining:       make(map[string]*models.Pod, len(snapshot.Pods)),
		budgets:         snapshot.Budgets,
		initialMatching: make(map[string]int, len(snapshot.Budgets)),
	}

	s.order = make([]*models.Pod, len(snapshot.Pods))
	copy(s.order, snapshot.Pods)
	sort.Slice(s.order, func(i, j int) bool {
		ci, cj := s.order[i].ControllerName(), s.order[j].ControllerName()
		if ci != cj {
			return ci < cj
		}
		return s.order[i].Name < s.order[j].Name
	})

	for _, pod := range snapshot.Pods {
		s.remaining[pod.Name] = pod
	}
	for _, budget := range snapshot.Budgets {
		matching, _ := matchCounts(budget, snapshot.Pods)
		s.initialMatching[budget.Name] = matching
	}

	return s
}

func (s *simState) candidates() []*models.Pod {
	out := make([]*models.Pod, 0, len(s.remaining))
	for _, pod := range s.order {
		if _, ok := s.remaining[pod.Name]; ok {
			out = append(out, pod)
		}
	}
	return out
}

func (s *simState) remainingCount() int {
	return len(s.remaining)
}

func (s *simState) evict(pod *models.Pod) {
	delete(s.remaining, pod.Name)
}

// blockingBudget returns the first covering budget whose constraint the
// eviction would violate, or nil when the pod is eligible
func (s *simState) blockingBudget(pod *models.Pod) *models.PodDisruptionBudget {
	for _, budget := range s.budgets {
		if !budget.Matches(pod) {
			continue
		}

		healthy := s.healthyMatching(budget)
		afterEviction := healthy
		if pod.Ready {
			afterEviction--
		}

		if budget.MinAvailable != nil {
			min := scaled(budget.MinAvailable, s.initialMatching[budget.Name])
			if afterEviction < min {
				return budget
			}
			continue
		}

		max := scaled(budget.MaxUnavailable, s.initialMatching[budget.Name])
		unavailableAfter := s.initialMatching[budget.Name] - afterEviction
		if unavailableAfter > max {
			return budget
		}
	}
	return nil
}

func (s *simState) healthyMatching(budget *models.PodDisruptionBudget) int {
	n := 0
	for _, pod := range s.remaining {
		if pod.Ready && budget.Matches(pod) {
			n++
		}
	}
	return n
}

func coveredBy(pod *models.Pod, budgets []*models.PodDisruptionBudget) *models.PodDisruptionBudget {
	for _, budget := range budgets {
		if budget.Matches(pod) {
			return budget
		}
	}
	return nil
}

func matchCounts(budget *models.PodDisruptionBudget, pods []*models.Pod) (matching, ready int) {
	for _, pod := range pods {
		if !budget.Matches(pod) {
			continue
		}
		matching++
		if pod.Ready {
			ready++
		}
	}
	return matching, ready
}

func scaled(value *intstr.IntOrString, total int) int {
	if value.Type == intstr.Int {
		return value.IntValue()
	}
	n, err := intstr.GetScaledValueFromIntOrPercent(value, total, true)
	if err != nil {
		return 0
	}
	return n
}

// budgetSubject names the budget under the namespace subject kind. The
// subject enum has no budget kind; namespace rank sorts budget-wide
// findings ahead of controller, pod and container findings, and the
// budget name keeps the subject unique.
func budgetSubject(budget *models.PodDisruptionBudget) models.Subject {
	return models.Subject{
		Kind:      models.SubjectNamespace,
		Namespace: budget.Namespace,
		Name:      budget.Name,
	}
}
