package overpass

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStale signals that the mirror's data horizon predates the requested
// window. The revert should be retried once the mirror catches up.
var ErrStale = errors.New("overpass is updating, please try again shortly")

// IncompleteError signals that a mirror returned fewer or more records
// than requested, or that the filtered and unfiltered queries disagree.
// The next mirror is tried before the run fails.
type IncompleteError struct {
	Reason string
}

func (e *IncompleteError) Error() string {
	return "overpass data is incomplete: " + e.Reason
}

// BadRequestError carries the human-readable messages scraped from an
// Overpass bad-request response, typically caused by an invalid query
// filter expression.
type BadRequestError struct {
	Messages []string
}

func (e *BadRequestError) Error() string {
	return "overpass rejected the query: " + strings.Join(e.Messages, "; ")
}

// combineMirrorErrors merges the per-mirror failures into one error.
// Identical failures collapse into a single message with a multiplier.
func combineMirrorErrors(errs []error) error {
	if len(errs) == 0 {
		return errors.New("no overpass mirrors configured")
	}

	allSame := true
	for _, err := range errs[1:] {
		if err.Error() != errs[0].Error() {
			allSame = false
			break
		}
	}

	if allSame {
		if len(errs) == 1 {
			return errs[0]
		}
		return fmt.Errorf("%w (x%d)", errs[0], len(errs))
	}

	return errors.Join(errs...)
}
