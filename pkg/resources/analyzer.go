// Package resources computes request/limit/usage aggregates at container,
// controller and namespace level and evaluates per-container
// misconfiguration rules.
package resources

import (
	"fmt"
	"sort"
	"strings"

	"kubecase/pkg/config"
	"kubecase/pkg/models"
)

// Totals sums requests, limits and measured usage for one aggregation
// level. Unset amounts contribute zero to the sums; the per-container
// rules flag them separately.
type Totals struct {
	CPURequestMilli int64 `json:"cpu_request_milli"`
	CPULimitMilli   int64 `json:"cpu_limit_milli"`
	CPUUsageMilli   int64 `json:"cpu_usage_milli"`

	MemoryRequestBytes int64 `json:"memory_request_bytes"`
	MemoryLimitBytes   int64 `json:"memory_limit_bytes"`
	MemoryUsageBytes   int64 `json:"memory_usage_bytes"`

	StorageRequestBytes int64 `json:"storage_request_bytes"`
	StorageLimitBytes   int64 `json:"storage_limit_bytes"`
}

func (t *Totals) add(other Totals) {
	t.CPURequestMilli += other.CPURequestMilli
	t.CPULimitMilli += other.CPULimitMilli
	t.CPUUsageMilli += other.CPUUsageMilli
	t.MemoryRequestBytes += other.MemoryRequestBytes
	t.MemoryLimitBytes += other.MemoryLimitBytes
	t.MemoryUsageBytes += other.MemoryUsageBytes
	t.StorageRequestBytes += other.StorageRequestBytes
	t.StorageLimitBytes += other.StorageLimitBytes
}

// ContainerRow is one container's line in the report table
type ContainerRow struct {
	Controller string          `json:"controller"`
	Pod        string          `json:"pod"`
	Container  string          `json:"container"`
	QoS        models.QoSClass `json:"qos"`
	Totals     Totals          `json:"totals"`
}

// ControllerRow aggregates all containers owned by one controller
type ControllerRow struct {
	Controller string                `json:"controller"`
	Kind       models.ControllerKind `json:"kind"`
	PodCount   int                   `json:"pod_count"`
	Totals     Totals                `json:"totals"`
}

// NamespaceRow aggregates the whole namespace
type NamespaceRow struct {
	Namespace      string `json:"namespace"`
	PodCount       int    `json:"pod_count"`
	ContainerCount int    `json:"container_count"`
	Totals         Totals `json:"totals"`
}

// Table is the three-level aggregate consumed by the renderer
type Table struct {
	Namespace   NamespaceRow    `json:"namespace"`
	Controllers []ControllerRow `json:"controllers"`
	Containers  []ContainerRow  `json:"containers"`
}

// Result carries resource findings plus the aggregate table
type Result struct {
	Findings []models.Finding
	Table    Table
}

// Analyze runs the misconfiguration rules per container and builds the
// aggregate table. qosByPod is the classifier's output, keyed by pod name;
// it annotates the container rows and the no-resource-spec findings.
func Analyze(snapshot *models.Snapshot, qosByPod map[string]models.QoSClass, cfg *config.Config) Result {
	var res Result

	res.Table.Namespace = NamespaceRow{
		Namespace:      snapshot.Namespace,
		PodCount:       len(snapshot.Pods),
		ContainerCount: snapshot.TotalContainers(),
	}

	byController := make(map[string]*ControllerRow)

	ordered := make([]*models.Pod, len(snapshot.Pods))
	copy(ordered, snapshot.Pods)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	for _, pod := range ordered {
		group := controllerRow(byController, pod)
		group.PodCount++

		for _, container := range pod.Containers {
			totals := containerTotals(container)
			group.Totals.add(totals)
			res.Table.Namespace.Totals.add(totals)

			res.Table.Containers = append(res.Table.Containers, ContainerRow{
				Controller: pod.ControllerName(),
				Pod:        pod.Name,
				Container:  container.Name,
				QoS:        qosByPod[pod.Name],
				Totals:     totals,
			})

			res.Findings = append(res.Findings, checkContainer(container, qosByPod[pod.Name], cfg)...)
		}
	}

	for name := range byController {
		res.Table.Controllers = append(res.Table.Controllers, *byController[name])
	}
	sort.Slice(res.Table.Controllers, func(i, j int) bool {
		return res.Table.Controllers[i].Controller < res.Table.Controllers[j].Controller
	})

	return res
}

func controllerRow(index map[string]*ControllerRow, pod *models.Pod) *ControllerRow {
	name := pod.ControllerName()
	row, ok := index[name]
	if !ok {
		kind := models.KindBare
		if pod.Controller != nil {
			kind = pod.Controller.Kind
		}
		row = &ControllerRow{Controller: name, Kind: kind}
		index[name] = row
	}
	return row
}

func containerTotals(c *models.Container) Totals {
	var t Totals
	if c.CPURequest != nil {
		t.CPURequestMilli = c.CPURequest.MilliValue()
	}
	if c.CPULimit != nil {
		t.CPULimitMilli = c.CPULimit.MilliValue()
	}
	if c.CPUUsage != nil {
		t.CPUUsageMilli = c.CPUUsage.MilliValue()
	}
	if c.MemoryRequest != nil {
		t.MemoryRequestBytes = c.MemoryRequest.Value()
	}
	if c.MemoryLimit != nil {
		t.MemoryLimitBytes = c.MemoryLimit.Value()
	}
	if c.MemoryUsage != nil {
		t.MemoryUsageBytes = c.MemoryUsage.Value()
	}
	if c.StorageRequest != nil {
		t.StorageRequestBytes = c.StorageRequest.Value()
	}
	if c.StorageLimit != nil {
		t.StorageLimitBytes = c.StorageLimit.Value()
	}
	return t
}

// checkContainer evaluates the independent misconfiguration rules; a
// container may trigger several at once
func checkContainer(c *models.Container, qos models.QoSClass, cfg *config.Config) []models.Finding {
	subject := models.ContainerSubject(c)
	var findings []models.Finding

	if c.CPURequest != nil && c.CPULimit != nil &&
		c.CPURequest.Quantity.Cmp(c.CPULimit.Quantity) > 0 {
		findings = append(findings, models.Finding{
			Severity: models.SeverityCritical,
			Subject:  subject,
			Code:     models.CodeRequestExceedsLimit,
			Message: fmt.Sprintf("container %s requests %s CPU but is limited to %s",
				c.Name, c.CPURequest.Raw, c.CPULimit.Raw),
		})
	}

	if noResourceSpec(c) {
		findings = append(findings, models.Finding{
			Severity: models.SeverityWarning,
			Subject:  subject,
			Code:     models.CodeNoResourceSpec,
			Message: fmt.Sprintf("container %s sets no CPU or memory requests or limits (pod QoS %s)",
				c.Name, qos),
		})
	}
	// Fully unset CPU/memory pairs never count as asymmetric, so this is
	// safe to run alongside the no-resource-spec rule; it still catches a
	// lone ephemeral-storage request or limit
	findings = append(findings, asymmetricFindings(c, subject)...)

	if amount := millicoreSuffixed(c.MemoryRequest); amount != "" {
		findings = append(findings, models.Finding{
			Severity: models.SeverityCritical,
			Subject:  subject,
			Code:     models.CodeInvalidMemorySuffix,
			Message: fmt.Sprintf("container %s memory request %q uses the millicore suffix; valid only for CPU",
				c.Name, amount),
		})
	}
	if amount := millicoreSuffixed(c.MemoryLimit); amount != "" {
		findings = append(findings, models.Finding{
			Severity: models.SeverityCritical,
			Subject:  subject,
			Code:     models.CodeInvalidMemorySuffix,
			Message: fmt.Sprintf("container %s memory limit %q uses the millicore suffix; valid only for CPU",
				c.Name, amount),
		})
	}

	findings = append(findings, usageFindings(c, subject, cfg)...)

	return findings
}

func noResourceSpec(c *models.Container) bool {
	return c.CPURequest == nil && c.CPULimit == nil &&
		c.MemoryRequest == nil && c.MemoryLimit == nil
}

func asymmetricFindings(c *models.Container, subject models.Subject) []models.Finding {
	var findings []models.Finding
	pairs := []struct {
		resource string
		request  *models.ResourceAmount
		limit    *models.ResourceAmount
	}{
		{"cpu", c.CPURequest, c.CPULimit},
		{"memory", c.MemoryRequest, c.MemoryLimit},
		{"ephemeral-storage", c.StorageRequest, c.StorageLimit},
	}
	for _, pair := range pairs {
		if (pair.request == nil) == (pair.limit == nil) {
			continue
		}
		missing, present := "limit", "request"
		if pair.request == nil {
			missing, present = "request", "limit"
		}
		findings = append(findings, models.Finding{
			Severity: models.SeverityWarning,
			Subject:  subject,
			Code:     models.CodeAsymmetricResources,
			Message: fmt.Sprintf("container %s sets a %s %s but no %s",
				c.Name, pair.resource, present, missing),
		})
	}
	return findings
}

// millicoreSuffixed reports the raw string when a memory amount carries a
// bare "m" suffix. The API server accepts it, but it means thousandths of
// a byte, which is never what the author intended.
func millicoreSuffixed(amount *models.ResourceAmount) string {
	if amount == nil {
		return ""
	}
	raw := amount.Raw
	if strings.HasSuffix(raw, "m") && !strings.HasSuffix(raw, "Mi") {
		return raw
	}
	return ""
}

// usageFindings emits at most one highlight per resource: the near-limit
// tier supersedes the elevated tier. Percentage is undefined when the
// limit is unset, in which case no highlight is produced.
func usageFindings(c *models.Container, subject models.Subject, cfg *config.Config) []models.Finding {
	var findings []models.Finding

	if c.CPUUsage != nil && c.CPULimit != nil && c.CPULimit.MilliValue() > 0 {
		pct := float64(c.CPUUsage.MilliValue()) / float64(c.CPULimit.MilliValue()) * 100
		if f := highlight(subject, "cpu", c.Name, pct, cfg); f != nil {
			findings = append(findings, *f)
		}
	}
	if c.MemoryUsage != nil && c.MemoryLimit != nil && c.MemoryLimit.Value() > 0 {
		pct := float64(c.MemoryUsage.Value()) / float64(c.MemoryLimit.Value()) * 100
		if f := highlight(subject, "memory", c.Name, pct, cfg); f != nil {
			findings = append(findings, *f)
		}
	}

	return findings
}

func highlight(subject models.Subject, resource, container string, pct float64, cfg *config.Config) *models.Finding {
	switch {
	case pct >= cfg.NearLimitUsagePercent:
		return &models.Finding{
			Severity: models.SeverityCritical,
			Subject:  subject,
			Code:     models.CodeUsageNearLimit,
			Message: fmt.Sprintf("container %s %s usage is at %.1f%% of its limit",
				container, resource, pct),
			Value: pct,
		}
	case pct >= cfg.ElevatedUsagePercent:
		return &models.Finding{
			Severity: models.SeverityWarning,
			Subject:  subject,
			Code:     models.CodeUsageElevated,
			Message: fmt.Sprintf("container %s %s usage is at %.1f%% of its limit",
				container, resource, pct),
			Value: pct,
		}
	}
	return nil
}
