package osm

// ElementSet is the inversion result: for each type, the final element
// states to submit. Slices keep submission order; lookups go through Find.
type ElementSet struct {
	Nodes     []*Element
	Ways      []*Element
	Relations []*Element
}

// NewElementSet returns an empty set.
func NewElementSet() *ElementSet {
	return &ElementSet{}
}

// Of returns the elements of the given type.
func (s *ElementSet) Of(t ElementType) []*Element {
	switch t {
	case TypeNode:
		return s.Nodes
	case TypeWay:
		return s.Ways
	case TypeRelation:
		return s.Relations
	}
	return nil
}

// Replace swaps the elements of the given type.
func (s *ElementSet) Replace(t ElementType, elements []*Element) {
	switch t {
	case TypeNode:
		s.Nodes = elements
	case TypeWay:
		s.Ways = elements
	case TypeRelation:
		s.Relations = elements
	}
}

// Append adds an element under its own type.
func (s *ElementSet) Append(e *Element) {
	s.Replace(e.Type, append(s.Of(e.Type), e))
}

// Find returns the element with the given type and id, or nil.
func (s *ElementSet) Find(t ElementType, id int64) *Element {
	for _, e := range s.Of(t) {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Remove deletes the element with the given type and id, reporting whether
// it was present.
func (s *ElementSet) Remove(t ElementType, id int64) bool {
	elements := s.Of(t)
	for i, e := range elements {
		if e.ID == id {
			s.Replace(t, append(elements[:i:i], elements[i+1:]...))
			return true
		}
	}
	return false
}

// Size returns the total number of elements in the set.
func (s *ElementSet) Size() int {
	return len(s.Nodes) + len(s.Ways) + len(s.Relations)
}

// TombstonedIDs returns the ids of elements about to be deleted, per type.
func (s *ElementSet) TombstonedIDs() IDSet {
	ids := NewIDSet()
	for _, t := range Types {
		for _, e := range s.Of(t) {
			if !e.Visible {
				ids[t] = append(ids[t], e.ID)
			}
		}
	}
	return ids
}

// Parents holds the structural parents returned for a set of child ids.
// Only ways and relations can reference other elements.
type Parents struct {
	Ways      []*Element
	Relations []*Element
}
