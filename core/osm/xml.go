package osm

import (
	"encoding/xml"
	"sort"
	"strconv"
)

// Wire representation shared by all three element kinds. The element name
// (node/way/relation) is carried by the enclosing XML tag, not the struct.
type elementXML struct {
	ID        int64       `xml:"id,attr"`
	Version   int64       `xml:"version,attr"`
	Visible   string      `xml:"visible,attr,omitempty"`
	Changeset int64       `xml:"changeset,attr,omitempty"`
	Timestamp string      `xml:"timestamp,attr,omitempty"`
	Lat       string      `xml:"lat,attr,omitempty"`
	Lon       string      `xml:"lon,attr,omitempty"`
	Tags      []tagXML    `xml:"tag"`
	Nds       []ndXML     `xml:"nd"`
	Members   []memberXML `xml:"member"`
}

type tagXML struct {
	K string `xml:"k,attr"`
	V string `xml:"v,attr"`
}

type ndXML struct {
	Ref int64 `xml:"ref,attr"`
}

type memberXML struct {
	Type string `xml:"type,attr"`
	Ref  int64  `xml:"ref,attr"`
	Role string `xml:"role,attr"`
}

// UnmarshalXML decodes an element, taking its kind from the enclosing tag
// name. A missing visible attribute defaults to true, matching server
// behavior for non-history output.
func (e *Element) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var w elementXML
	if err := d.DecodeElement(&w, &start); err != nil {
		return err
	}

	e.Type = ElementType(start.Name.Local)
	e.ID = w.ID
	e.Version = w.Version
	e.Visible = w.Visible != "false"
	e.Changeset = w.Changeset
	e.Timestamp = w.Timestamp
	e.Lat = w.Lat
	e.Lon = w.Lon

	if len(w.Tags) > 0 {
		e.Tags = make(map[string]string, len(w.Tags))
		for _, t := range w.Tags {
			e.Tags[t.K] = t.V
		}
	}
	if len(w.Nds) > 0 {
		e.Nds = make([]NodeRef, 0, len(w.Nds))
		for _, nd := range w.Nds {
			e.Nds = append(e.Nds, NodeRef{Ref: nd.Ref})
		}
	}
	if len(w.Members) > 0 {
		e.Members = make([]Member, 0, len(w.Members))
		for _, m := range w.Members {
			e.Members = append(e.Members, Member{Type: ElementType(m.Type), Ref: m.Ref, Role: m.Role})
		}
	}

	return nil
}

// MarshalXML encodes the element under a tag named after its kind.
// Tags are emitted in key order for deterministic output.
func (e *Element) MarshalXML(enc *xml.Encoder, start xml.StartElement) error {
	w := elementXML{
		ID:        e.ID,
		Version:   e.Version,
		Visible:   strconv.FormatBool(e.Visible),
		Changeset: e.Changeset,
		Timestamp: e.Timestamp,
		Lat:       e.Lat,
		Lon:       e.Lon,
	}

	if len(e.Tags) > 0 {
		keys := make([]string, 0, len(e.Tags))
		for k := range e.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		w.Tags = make([]tagXML, 0, len(keys))
		for _, k := range keys {
			w.Tags = append(w.Tags, tagXML{K: k, V: e.Tags[k]})
		}
	}
	for _, nd := range e.Nds {
		w.Nds = append(w.Nds, ndXML{Ref: nd.Ref})
	}
	for _, m := range e.Members {
		w.Members = append(w.Members, memberXML{Type: string(m.Type), Ref: m.Ref, Role: m.Role})
	}

	start.Name = xml.Name{Local: string(e.Type)}
	return enc.EncodeElement(w, start)
}
