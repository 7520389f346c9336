// Package qos derives the Kubernetes quality-of-service class of a pod
// from its containers' CPU and memory requests and limits.
package qos

import "kubecase/pkg/models"

// Classify returns the QoS class of a pod. Guaranteed is checked first
// (every container has CPU and memory request equal to limit), then
// BestEffort (no container sets any CPU or memory request or limit);
// anything else is Burstable. A pod mixing Guaranteed and BestEffort
// containers is Burstable, never averaged.
func Classify(pod *models.Pod) models.QoSClass {
	if allGuaranteed(pod) {
		return models.QoSGuaranteed
	}
	if allBestEffort(pod) {
		return models.QoSBestEffort
	}
	return models.QoSBurstable
}

// Distribution counts pods per QoS class
func Distribution(pods []*models.Pod) map[models.QoSClass]int {
	dist := map[models.QoSClass]int{
		models.QoSGuaranteed: 0,
		models.QoSBurstable:  0,
		models.QoSBestEffort: 0,
	}
	for _, pod := range pods {
		dist[Classify(pod)]++
	}
	return dist
}

func allGuaranteed(pod *models.Pod) bool {
	for _, c := range pod.Containers {
		if !amountsEqual(c.CPURequest, c.CPULimit) {
			return false
		}
		if !amountsEqual(c.MemoryRequest, c.MemoryLimit) {
			return false
		}
	}
	return true
}

func allBestEffort(pod *models.Pod) bool {
	for _, c := range pod.Containers {
		if c.CPURequest != nil || c.CPULimit != nil {
			return false
		}
		if c.MemoryRequest != nil || c.MemoryLimit != nil {
			return false
		}
	}
	return true
}

// amountsEqual requires both amounts set and numerically equal
func amountsEqual(request, limit *models.ResourceAmount) bool {
	if request == nil || limit == nil {
		return false
	}
	return request.Quantity.Cmp(limit.Quantity) == 0
}
