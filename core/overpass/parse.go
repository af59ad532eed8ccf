package overpass

import (
	"encoding/xml"
	"fmt"
	"html"
	"regexp"
	"strings"

	"osm-revert/core/osm"
)

// responseXML is the generic shape of an Overpass response: a data-horizon
// meta stamp, action entries for diff queries, and bare elements for plain
// queries such as the parents lookup.
type responseXML struct {
	XMLName   xml.Name       `xml:"osm"`
	Meta      metaXML        `xml:"meta"`
	Actions   []actionXML    `xml:"action"`
	Nodes     []*osm.Element `xml:"node"`
	Ways      []*osm.Element `xml:"way"`
	Relations []*osm.Element `xml:"relation"`
}

type metaXML struct {
	OsmBase string `xml:"osm_base,attr"`
}

type actionXML struct {
	Type string     `xml:"type,attr"`
	Old  *holderXML `xml:"old"`
	New  *holderXML `xml:"new"`

	// create actions carry the element directly
	Node     *osm.Element `xml:"node"`
	Way      *osm.Element `xml:"way"`
	Relation *osm.Element `xml:"relation"`
}

type holderXML struct {
	Node     *osm.Element `xml:"node"`
	Way      *osm.Element `xml:"way"`
	Relation *osm.Element `xml:"relation"`
}

func (h *holderXML) element() *osm.Element {
	if h == nil {
		return nil
	}
	switch {
	case h.Node != nil:
		return h.Node
	case h.Way != nil:
		return h.Way
	default:
		return h.Relation
	}
}

// parseAction resolves an action into (type, old, new). Old is nil for
// creations.
func parseAction(a actionXML) (osm.ElementType, *osm.Element, *osm.Element, error) {
	switch a.Type {
	case "create":
		var e *osm.Element
		switch {
		case a.Node != nil:
			e = a.Node
		case a.Way != nil:
			e = a.Way
		case a.Relation != nil:
			e = a.Relation
		}
		if e == nil {
			return "", nil, nil, &IncompleteError{Reason: "create action without element"}
		}
		return e.Type, nil, e, nil

	case "modify", "delete":
		old := a.Old.element()
		new := a.New.element()
		if new == nil {
			return "", nil, nil, &IncompleteError{Reason: a.Type + " action without new element"}
		}
		return new.Type, old, new, nil

	default:
		return "", nil, nil, fmt.Errorf("unknown action type: %q", a.Type)
	}
}

// buildCurrentMap extracts the latest element state per id from the
// actions of an unbounded diff query.
func buildCurrentMap(actions []actionXML) (map[osm.ElementType]map[int64]*osm.Element, error) {
	result := make(map[osm.ElementType]map[int64]*osm.Element)
	for _, t := range osm.Types {
		result[t] = make(map[int64]*osm.Element)
	}

	for _, a := range actions {
		t, _, new, err := parseAction(a)
		if err != nil {
			return nil, err
		}
		result[t][new.ID] = new
	}
	return result, nil
}

var htmlTagRe = regexp.MustCompile(`(?s)<.*?>`)

// scrapeBadRequest extracts the "Error: ..." lines from an Overpass
// bad-request HTML page. Returns nil when none are found.
func scrapeBadRequest(body string) []string {
	s := strings.Index(body, "<body>")
	e := strings.Index(body, "</body>")
	if s < 0 || e <= s {
		return nil
	}

	inner := htmlTagRe.ReplaceAllString(strings.TrimSpace(body[s+6:e]), "")

	var messages []string
	for _, line := range strings.Split(inner, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Error: ") {
			messages = append(messages, html.UnescapeString(strings.TrimPrefix(line, "Error: ")))
		}
	}
	return messages
}
