package osm

import (
	"encoding/xml"
	"fmt"
)

// Generator is the creator name stamped on produced change documents.
const Generator = "osm-revert"

// Change is the submission bundle for the authoritative write API:
// elements grouped into modify/delete buckets, ready for serialization.
type Change struct {
	XMLName   xml.Name `xml:"osmChange"`
	Version   string   `xml:"version,attr"`
	Generator string   `xml:"generator,attr"`
	Modify    bucket   `xml:"modify"`
	Delete    bucket   `xml:"delete"`
}

type bucket struct {
	// Element tag names come from each element's own type.
	Elements []*Element `xml:"element"`
}

// XML serializes the change document with the standard XML header.
func (c *Change) XML() ([]byte, error) {
	body, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal osmChange: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// BuildChange converts an inversion result into a change document.
// Relations are ordered so that referenced relations precede their
// referents; residual circular dependencies are emitted anyway and
// reported as warnings. Deleted elements are stripped down to their
// identity. A zero changesetID leaves the attribute unset.
func BuildChange(set *ElementSet, changesetID int64) (*Change, []string) {
	change := &Change{Version: "0.6", Generator: Generator}

	relations, warnings := sortRelationsForChange(set.Relations)

	// Modify processes containers last; delete releases them first.
	modifyOrder := [][]*Element{set.Nodes, set.Ways, relations}
	for _, elements := range modifyOrder {
		for _, e := range elements {
			change.add(e, changesetID)
		}
	}

	return change, warnings
}

func (c *Change) add(e *Element, changesetID int64) {
	e = e.Clone()
	e.Changeset = changesetID

	if e.Visible {
		c.Modify.Elements = append(c.Modify.Elements, e)
		return
	}

	// A delete carries identity only.
	e.Lat = ""
	e.Lon = ""
	e.Tags = nil
	e.Nds = nil
	e.Members = nil

	// Deletes must release children before parents: relations, ways, nodes.
	c.Delete.Elements = insertDelete(c.Delete.Elements, e)
}

// insertDelete keeps the delete bucket ordered relation, way, node.
func insertDelete(elements []*Element, e *Element) []*Element {
	rank := func(t ElementType) int {
		switch t {
		case TypeRelation:
			return 0
		case TypeWay:
			return 1
		default:
			return 2
		}
	}

	i := len(elements)
	for i > 0 && rank(elements[i-1].Type) > rank(e.Type) {
		i--
	}

	elements = append(elements, nil)
	copy(elements[i+1:], elements[i:])
	elements[i] = e
	return elements
}

// sortRelationsForChange orders relations so that any relation referenced
// by another in the same submission comes first. Tombstoned relations are
// emitted after the visible ones, most-referenced first. Relations left in
// a dependency cycle are appended at the end with a warning instead of
// failing the submission.
func sortRelationsForChange(relations []*Element) ([]*Element, []string) {
	changeIDs := make(map[int64]struct{}, len(relations))
	for _, rel := range relations {
		changeIDs[rel.ID] = struct{}{}
	}

	type state struct {
		rel  *Element
		deps map[int64]struct{}
	}

	pending := make(map[int64]*state, len(relations))
	order := make([]int64, 0, len(relations))

	for _, rel := range relations {
		deps := make(map[int64]struct{})
		for _, m := range rel.Members {
			if m.Type != TypeRelation {
				continue
			}
			if _, ok := changeIDs[m.Ref]; ok {
				deps[m.Ref] = struct{}{}
			}
		}
		pending[rel.ID] = &state{rel: rel, deps: deps}
		order = append(order, rel.ID)
	}

	var noDeps []*Element
	for _, id := range order {
		if st := pending[id]; len(st.deps) == 0 {
			noDeps = append(noDeps, st.rel)
			delete(pending, id)
		}
	}

	var result, hidden []*Element

	for len(noDeps) > 0 {
		rel := noDeps[len(noDeps)-1]
		noDeps = noDeps[:len(noDeps)-1]

		if rel.Visible {
			result = append(result, rel)
		} else {
			hidden = append(hidden, rel)
		}

		for _, id := range order {
			st, ok := pending[id]
			if !ok {
				continue
			}
			if _, dep := st.deps[rel.ID]; dep {
				delete(st.deps, rel.ID)
				if len(st.deps) == 0 {
					noDeps = append(noDeps, st.rel)
					delete(pending, id)
				}
			}
		}
	}

	// Delete relations with most dependencies first.
	for i := len(hidden) - 1; i >= 0; i-- {
		result = append(result, hidden[i])
	}

	var warnings []string
	for _, id := range order {
		st, ok := pending[id]
		if !ok {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("relation/%d has %d circular dependencies", st.rel.ID, len(st.deps)))
		result = append(result, st.rel)
	}

	return result, warnings
}
