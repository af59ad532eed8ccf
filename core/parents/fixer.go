package parents

import (
	"context"

	"go.uber.org/zap"

	"osm-revert/core/osm"
)

// maxIterations bounds the fixpoint loop. Each pass can tombstone parents
// that become empty, which may orphan further parents in the next pass.
const maxIterations = 10

// Querier looks up the current structural parents of a set of element ids.
type Querier interface {
	StructuralParents(ctx context.Context, ids osm.IDSet) (*osm.Parents, error)
}

// Mode selects how conflicting parents are resolved.
type Mode int

const (
	// Repair edits parents so the planned deletions stay valid: stale
	// references are stripped and parents left empty are deleted too.
	Repair Mode = iota
	// Prune drops the planned deletions that still have parents, leaving
	// the parents untouched.
	Prune
)

// Fixer reconciles planned element deletions with the referential
// integrity rules of the live database.
type Fixer struct {
	querier Querier
	log     *zap.Logger
	mode    Mode
}

// New creates a Fixer.
func New(querier Querier, log *zap.Logger, mode Mode) *Fixer {
	return &Fixer{querier: querier, log: log, mode: mode}
}

// Fix iterates until the set contains no deletion that would break a
// live parent. It returns the number of parents repaired, or in Prune
// mode the number of deletions dropped.
func (f *Fixer) Fix(ctx context.Context, set *osm.ElementSet) (int, error) {
	internalIDs := make(map[osm.ElementType]map[int64]struct{})
	for _, t := range osm.Types {
		internalIDs[t] = make(map[int64]struct{})
		for _, e := range set.Of(t) {
			internalIDs[t][e.ID] = struct{}{}
		}
	}

	counter := 0

	for i := 0; i < maxIterations; i++ {
		deletingIDs := set.TombstonedIDs()
		if deletingIDs.Empty() {
			return counter, nil
		}

		parents, err := f.querier.StructuralParents(ctx, deletingIDs)
		if err != nil {
			return counter, err
		}

		deleting := make(map[osm.ElementType]map[int64]struct{})
		for _, t := range osm.Types {
			deleting[t] = make(map[int64]struct{}, len(deletingIDs[t]))
			for _, id := range deletingIDs[t] {
				deleting[t][id] = struct{}{}
			}
		}

		changed := false

		for _, parent := range append(append([]*osm.Element{}, parents.Ways...), parents.Relations...) {
			// In prune mode a parent that is itself part of the revert
			// will be rewritten anyway; leave its children alone.
			if f.mode == Prune {
				if _, internal := internalIDs[parent.Type][parent.ID]; internal {
					continue
				}
			}

			// prefer the in-flight state over the queried one
			if current := set.Find(parent.Type, parent.ID); current != nil {
				parent = current.Clone()
			} else {
				parent = parent.Clone()
			}

			if !parent.Visible {
				continue
			}

			removedChildren := f.stripDeletingChildren(parent, deleting)
			if removedChildren.Empty() {
				continue
			}
			changed = true

			if f.mode == Repair {
				if set.Find(parent.Type, parent.ID) != nil {
					set.Remove(parent.Type, parent.ID)
					set.Append(parent)
				} else {
					set.Append(parent)
					counter++
				}
				continue
			}

			// prune: keep the children the parent still needs
			for _, t := range osm.Types {
				for id := range removedChildren[t] {
					if set.Remove(t, id) {
						delete(internalIDs[t], id)
						counter++
					}
				}
			}
		}

		if !changed {
			return counter, nil
		}

		f.log.Debug("parents changed, running another pass", zap.Int("pass", i+1))
	}

	return counter, &FixpointError{Iterations: maxIterations}
}

type childIDs map[osm.ElementType]map[int64]struct{}

func (c childIDs) Empty() bool {
	for _, ids := range c {
		if len(ids) > 0 {
			return false
		}
	}
	return true
}

// stripDeletingChildren removes references to elements about to be deleted
// and tombstones the parent when nothing is left. A way reduced to a single
// node cannot exist either and is treated as empty.
func (f *Fixer) stripDeletingChildren(parent *osm.Element, deleting map[osm.ElementType]map[int64]struct{}) childIDs {
	removed := make(childIDs)
	for _, t := range osm.Types {
		removed[t] = make(map[int64]struct{})
	}

	switch parent.Type {
	case osm.TypeWay:
		kept := parent.Nds[:0:0]
		for _, nd := range parent.Nds {
			if _, gone := deleting[osm.TypeNode][nd.Ref]; gone {
				removed[osm.TypeNode][nd.Ref] = struct{}{}
			} else {
				kept = append(kept, nd)
			}
		}
		if len(kept) == 1 {
			kept = nil
		}
		parent.Nds = kept
		if len(parent.Nds) == 0 {
			parent.Visible = false
		}

	case osm.TypeRelation:
		kept := parent.Members[:0:0]
		for _, m := range parent.Members {
			if _, gone := deleting[m.Type][m.Ref]; gone {
				removed[m.Type][m.Ref] = struct{}{}
			} else {
				kept = append(kept, m)
			}
		}
		parent.Members = kept
		if len(parent.Members) == 0 {
			parent.Visible = false
		}
	}

	return removed
}
