package normalize

import "errors"

var (
	// ErrMalformedQuantity marks a resource amount string that does not
	// parse; never silently treated as zero
	ErrMalformedQuantity = errors.New("malformed resource quantity")

	// ErrMalformedPod marks a pod record that fails shape validation,
	// such as a pod with zero containers
	ErrMalformedPod = errors.New("malformed pod record")

	// ErrInvalidBudget marks a PDB with both or neither of minAvailable
	// and maxUnavailable set, or an unusable selector
	ErrInvalidBudget = errors.New("invalid pod disruption budget")
)
