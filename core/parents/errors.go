package parents

import "fmt"

// FixpointError signals that the parent reconciliation did not converge
// within the iteration limit.
type FixpointError struct {
	Iterations int
}

func (e *FixpointError) Error() string {
	return fmt.Sprintf("parent reconciliation did not converge after %d passes", e.Iterations)
}
