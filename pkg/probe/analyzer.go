// Package probe evaluates startup, liveness and readiness probe
// configuration per container and flags missing or aggressive probes.
package probe

import (
	"fmt"
	"sort"

	"kubecase/pkg/config"
	"kubecase/pkg/models"
)

// Timing is the reaction-time summary of one configured probe: worst-case
// seconds to first action on a cold start, and seconds to detect a failure
// at runtime
type Timing struct {
	ColdStartSeconds     int32 `json:"cold_start_seconds"`
	RuntimeWindowSeconds int32 `json:"runtime_window_seconds"`
}

// ContainerTiming is the per-container probe timing row of the report
type ContainerTiming struct {
	Controller string  `json:"controller"`
	Pod        string  `json:"pod"`
	Container  string  `json:"container"`
	Startup    *Timing `json:"startup,omitempty"`
	Liveness   *Timing `json:"liveness,omitempty"`
	Readiness  *Timing `json:"readiness,omitempty"`
}

// Result carries probe findings plus the timing table
type Result struct {
	Findings []models.Finding
	Timings  []ContainerTiming
}

// Analyze evaluates probe rules for every container of every pod. Findings
// are grouped by pod, then container, then probe kind, in that stable
// order.
func Analyze(pods []*models.Pod, cfg *config.Config) Result {
	ordered := make([]*models.Pod, len(pods))
	copy(ordered, pods)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	var res Result
	for _, pod := range ordered {
		for _, container := range pod.Containers {
			res.Timings = append(res.Timings, timingRow(pod, container))
			for _, kind := range models.ProbeKinds {
				res.Findings = append(res.Findings, checkProbe(container, kind, cfg)...)
			}
		}
	}
	return res
}

func checkProbe(container *models.Container, kind models.ProbeKind, cfg *config.Config) []models.Finding {
	subject := models.ContainerSubject(container)
	p := container.Probe(kind)

	if p == nil {
		severity := models.SeverityWarning
		code := models.CodeMissingLivenessProbe
		switch kind {
		case models.ProbeStartup:
			// Startup probes are optional by design
			severity = models.SeverityInfo
			code = models.CodeMissingStartupProbe
		case models.ProbeReadiness:
			code = models.CodeMissingReadiness
		}
		return []models.Finding{{
			Severity: severity,
			Subject:  subject,
			Code:     code,
			Message:  fmt.Sprintf("container %s has no %s probe", container.Name, kind),
		}}
	}

	var findings []models.Finding

	if kind == models.ProbeLiveness &&
		p.InitialDelaySeconds == 0 &&
		p.PeriodSeconds <= cfg.AggressivePeriodSeconds {
		findings = append(findings, models.Finding{
			Severity: models.SeverityWarning,
			Subject:  subject,
			Code:     models.CodeAggressiveProbe,
			Message: fmt.Sprintf("liveness probe on %s has no initial delay and a %ds period, risking restart loops",
				container.Name, p.PeriodSeconds),
			Value: float64(p.PeriodSeconds),
		})
	}

	if window := p.RuntimeWindowSeconds(); window < cfg.ProbeGraceFloorSeconds {
		findings = append(findings, models.Finding{
			Severity: models.SeverityWarning,
			Subject:  subject,
			Code:     models.CodeInsufficientWindow,
			Message: fmt.Sprintf("%s probe on %s acts after %ds, below the %ds grace floor",
				kind, container.Name, window, cfg.ProbeGraceFloorSeconds),
			Value: float64(window),
		})
	}

	return findings
}

func timingRow(pod *models.Pod, container *models.Container) ContainerTiming {
	row := ContainerTiming{
		Controller: pod.ControllerName(),
		Pod:        pod.Name,
		Container:  container.Name,
	}
	row.Startup = timingOf(container.Startup)
	row.Liveness = timingOf(container.Liveness)
	row.Readiness = timingOf(container.Readiness)
	return row
}

func timingOf(p *models.Probe) *Timing {
	if p == nil {
		return nil
	}
	return &Timing{
		ColdStartSeconds:     p.ColdStartSeconds(),
		RuntimeWindowSeconds: p.RuntimeWindowSeconds(),
	}
}
