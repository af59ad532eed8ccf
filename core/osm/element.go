package osm

// ElementType identifies one of the three element kinds.
type ElementType string

const (
	// TypeNode is a single geographic point.
	TypeNode ElementType = "node"
	// TypeWay is an ordered sequence of node references.
	TypeWay ElementType = "way"
	// TypeRelation is an ordered collection of typed member references.
	TypeRelation ElementType = "relation"
)

// Types lists the element kinds in canonical processing order.
var Types = []ElementType{TypeNode, TypeWay, TypeRelation}

// NodeRef is a reference to a node within a way.
type NodeRef struct {
	Ref int64 `json:"ref"`
}

// Member is a typed reference within a relation.
type Member struct {
	Type ElementType `json:"type"`
	Ref  int64       `json:"ref"`
	Role string      `json:"role"`
}

// Element is a single OSM element snapshot. Lat/Lon are kept as the opaque
// decimal strings the server returned so a revert never perturbs precision.
//
// Elements are mutable records passed by exclusive ownership through the
// pipeline; Clone is used wherever a snapshot must be frozen for later
// comparison or mutation.
type Element struct {
	Type      ElementType
	ID        int64
	Version   int64
	Visible   bool
	Changeset int64
	Timestamp string
	Lat       string
	Lon       string
	Tags      map[string]string
	Nds       []NodeRef
	Members   []Member

	// VisibleOriginal remembers the visibility the element had before the
	// inverter touched it. It is internal pipeline state, never serialized,
	// and is stripped before assembly.
	VisibleOriginal *bool
}

// Clone returns a deep copy of the element.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}

	clone := *e

	if e.Tags != nil {
		clone.Tags = make(map[string]string, len(e.Tags))
		for k, v := range e.Tags {
			clone.Tags[k] = v
		}
	}
	if e.Nds != nil {
		clone.Nds = make([]NodeRef, len(e.Nds))
		copy(clone.Nds, e.Nds)
	}
	if e.Members != nil {
		clone.Members = make([]Member, len(e.Members))
		copy(clone.Members, e.Members)
	}
	if e.VisibleOriginal != nil {
		v := *e.VisibleOriginal
		clone.VisibleOriginal = &v
	}

	return &clone
}

// Equal reports whether two elements are semantically identical.
// Nil and empty tag maps or reference slices compare as equal.
func (e *Element) Equal(o *Element) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.Type != o.Type || e.ID != o.ID || e.Version != o.Version || e.Visible != o.Visible {
		return false
	}
	if e.Lat != o.Lat || e.Lon != o.Lon {
		return false
	}
	if len(e.Tags) != len(o.Tags) {
		return false
	}
	for k, v := range e.Tags {
		if ov, ok := o.Tags[k]; !ok || ov != v {
			return false
		}
	}
	if len(e.Nds) != len(o.Nds) {
		return false
	}
	for i, nd := range e.Nds {
		if o.Nds[i] != nd {
			return false
		}
	}
	if len(e.Members) != len(o.Members) {
		return false
	}
	for i, m := range e.Members {
		if o.Members[i] != m {
			return false
		}
	}
	return true
}
