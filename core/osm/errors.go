package osm

import "fmt"

// CorruptedError signals input that violates the element model invariants:
// an illegal visibility transition or a version jump other than +1 under
// strict validation. It is fatal; the run aborts without a partial result.
type CorruptedError struct {
	Type   ElementType
	ID     int64
	Reason string
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("corrupted input for %s/%d: %s", e.Type, e.ID, e.Reason)
}
