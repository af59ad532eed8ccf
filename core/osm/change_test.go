package osm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relation(id int64, visible bool, memberRefs ...int64) *Element {
	members := make([]Member, len(memberRefs))
	for i, ref := range memberRefs {
		members[i] = Member{Type: TypeRelation, Ref: ref, Role: ""}
	}
	return &Element{Type: TypeRelation, ID: id, Version: 1, Visible: visible, Members: members}
}

func TestBuildChange_RelationOrdering(t *testing.T) {
	// 2 contains 1, 3 contains 2: referenced relations must come first
	set := NewElementSet()
	set.Append(relation(3, true, 2))
	set.Append(relation(1, true))
	set.Append(relation(2, true, 1))

	change, warnings := BuildChange(set, 55)
	require.Empty(t, warnings)
	require.Len(t, change.Modify.Elements, 3)

	pos := make(map[int64]int)
	for i, e := range change.Modify.Elements {
		pos[e.ID] = i
	}
	assert.Less(t, pos[1], pos[2])
	assert.Less(t, pos[2], pos[3])
}

func TestBuildChange_HiddenRelationsAfterVisible(t *testing.T) {
	set := NewElementSet()
	set.Append(relation(1, true))
	set.Append(relation(2, false, 1))

	change, warnings := BuildChange(set, 55)
	require.Empty(t, warnings)

	require.Len(t, change.Modify.Elements, 1)
	assert.EqualValues(t, 1, change.Modify.Elements[0].ID)
	require.Len(t, change.Delete.Elements, 1)
	assert.EqualValues(t, 2, change.Delete.Elements[0].ID)
}

func TestBuildChange_CircularDependencyWarning(t *testing.T) {
	set := NewElementSet()
	set.Append(relation(1, true, 2))
	set.Append(relation(2, true, 1))

	change, warnings := BuildChange(set, 55)

	// both are still submitted
	assert.Len(t, change.Modify.Elements, 2)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "circular dependencies")
}

func TestBuildChange_DeleteOrderAndStripping(t *testing.T) {
	n := &Element{Type: TypeNode, ID: 1, Version: 2, Visible: false, Lat: "1", Lon: "2",
		Tags: map[string]string{"name": "x"}}
	w := &Element{Type: TypeWay, ID: 2, Version: 2, Visible: false, Nds: []NodeRef{{Ref: 1}}}
	r := relation(3, false)

	set := NewElementSet()
	set.Append(n)
	set.Append(w)
	set.Append(r)

	change, _ := BuildChange(set, 55)
	require.Len(t, change.Delete.Elements, 3)

	// children are released before parents: relations, ways, nodes
	assert.Equal(t, TypeRelation, change.Delete.Elements[0].Type)
	assert.Equal(t, TypeWay, change.Delete.Elements[1].Type)
	assert.Equal(t, TypeNode, change.Delete.Elements[2].Type)

	// deletes carry identity only
	deletedNode := change.Delete.Elements[2]
	assert.Empty(t, deletedNode.Lat)
	assert.Nil(t, deletedNode.Tags)
	assert.EqualValues(t, 55, deletedNode.Changeset)
}

func TestChangeXML(t *testing.T) {
	set := NewElementSet()
	set.Append(&Element{Type: TypeNode, ID: 1, Version: 2, Visible: true, Lat: "50.1", Lon: "20.2",
		Tags: map[string]string{"b": "2", "a": "1"}})

	change, _ := BuildChange(set, 7)
	payload, err := change.XML()
	require.NoError(t, err)

	doc := string(payload)
	assert.Contains(t, doc, `<osmChange version="0.6" generator="osm-revert">`)
	assert.Contains(t, doc, `<node id="1" version="2" visible="true" changeset="7" lat="50.1" lon="20.2">`)
	// tags are emitted in key order
	assert.Less(t, strings.Index(doc, `k="a"`), strings.Index(doc, `k="b"`))
}
