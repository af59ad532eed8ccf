package invert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"osm-revert/core/osm"
)

func node(id, version int64, visible bool, tags map[string]string) *osm.Element {
	return &osm.Element{
		Type:      osm.TypeNode,
		ID:        id,
		Version:   version,
		Visible:   visible,
		Changeset: 100,
		Timestamp: "2024-01-01T00:00:00Z",
		Lat:       "50.0",
		Lon:       "20.0",
		Tags:      tags,
	}
}

func way(id, version int64, visible bool, refs ...int64) *osm.Element {
	nds := make([]osm.NodeRef, len(refs))
	for i, ref := range refs {
		nds[i] = osm.NodeRef{Ref: ref}
	}
	return &osm.Element{
		Type:      osm.TypeWay,
		ID:        id,
		Version:   version,
		Visible:   visible,
		Changeset: 100,
		Timestamp: "2024-01-01T00:00:00Z",
		Nds:       nds,
	}
}

func diffOf(entries ...osm.DiffEntry) osm.Diff {
	diff := osm.NewDiff()
	for _, entry := range entries {
		diff[entry.New.Type] = append(diff[entry.New.Type], entry)
	}
	return diff
}

func TestInvert_CreateBecomesDelete(t *testing.T) {
	created := node(1, 1, true, nil)

	set, err := New(zap.NewNop(), nil).Invert(diffOf(osm.DiffEntry{
		ID: 1, New: created, Current: created.Clone(),
	}))
	require.NoError(t, err)

	require.Len(t, set.Nodes, 1)
	assert.False(t, set.Nodes[0].Visible)
	assert.EqualValues(t, 1, set.Nodes[0].Version)
}

func TestInvert_CreateAlreadyDeleted(t *testing.T) {
	created := node(1, 1, true, nil)

	set, err := New(zap.NewNop(), nil).Invert(diffOf(osm.DiffEntry{
		ID: 1, New: created, Current: node(1, 2, false, nil),
	}))
	require.NoError(t, err)
	assert.Equal(t, 0, set.Size())
}

func TestInvert_SimpleModifyRevert(t *testing.T) {
	old := node(1, 1, true, map[string]string{"name": "before"})
	new := node(1, 2, true, map[string]string{"name": "after"})

	set, err := New(zap.NewNop(), nil).Invert(diffOf(osm.DiffEntry{
		ID: 1, Old: old, New: new, Current: new.Clone(),
	}))
	require.NoError(t, err)

	require.Len(t, set.Nodes, 1)
	assert.Equal(t, "before", set.Nodes[0].Tags["name"])
	// the submission carries the latest version
	assert.EqualValues(t, 2, set.Nodes[0].Version)
}

func TestInvert_AdvancedTagRevert(t *testing.T) {
	old := node(1, 1, true, map[string]string{"name": "before"})
	new := node(1, 2, true, map[string]string{"name": "after"})
	// a later edit added an unrelated tag
	current := node(1, 3, true, map[string]string{"name": "after", "amenity": "bench"})

	inv := New(zap.NewNop(), nil)
	set, err := inv.Invert(diffOf(osm.DiffEntry{ID: 1, Old: old, New: new, Current: current}))
	require.NoError(t, err)

	require.Len(t, set.Nodes, 1)
	assert.Equal(t, "before", set.Nodes[0].Tags["name"])
	assert.Equal(t, "bench", set.Nodes[0].Tags["amenity"])
	assert.EqualValues(t, 3, set.Nodes[0].Version)
	assert.Equal(t, 1, inv.Statistics.FixNode)
}

func TestInvert_BlockedTagRevert(t *testing.T) {
	old := node(1, 1, true, map[string]string{"name": "before"})
	new := node(1, 2, true, map[string]string{"name": "after"})
	// a later edit changed the same tag again; nothing to restore
	current := node(1, 3, true, map[string]string{"name": "newest"})

	set, err := New(zap.NewNop(), nil).Invert(diffOf(osm.DiffEntry{
		ID: 1, Old: old, New: new, Current: current,
	}))
	require.NoError(t, err)
	assert.Equal(t, 0, set.Size())
}

func TestInvert_TagDeletionRestored(t *testing.T) {
	old := node(1, 1, true, map[string]string{"name": "kept", "note": "dropped"})
	new := node(1, 2, true, map[string]string{"name": "kept"})
	current := node(1, 3, true, map[string]string{"name": "kept", "amenity": "bench"})

	set, err := New(zap.NewNop(), nil).Invert(diffOf(osm.DiffEntry{
		ID: 1, Old: old, New: new, Current: current,
	}))
	require.NoError(t, err)

	require.Len(t, set.Nodes, 1)
	assert.Equal(t, "dropped", set.Nodes[0].Tags["note"])
	assert.Equal(t, "bench", set.Nodes[0].Tags["amenity"])
}

func TestInvert_NodePositionRevert(t *testing.T) {
	old := node(1, 1, true, nil)
	new := node(1, 2, true, nil)
	new.Lat, new.Lon = "51.0", "21.0"
	current := new.Clone()
	current.Version = 3
	current.Tags = map[string]string{"added": "later"}

	set, err := New(zap.NewNop(), nil).Invert(diffOf(osm.DiffEntry{
		ID: 1, Old: old, New: new, Current: current,
	}))
	require.NoError(t, err)

	require.Len(t, set.Nodes, 1)
	assert.Equal(t, "50.0", set.Nodes[0].Lat)
	assert.Equal(t, "20.0", set.Nodes[0].Lon)
}

func TestInvert_DeleteRestored(t *testing.T) {
	old := node(1, 3, true, map[string]string{"name": "thing"})
	deleted := node(1, 4, false, nil)

	set, err := New(zap.NewNop(), nil).Invert(diffOf(osm.DiffEntry{
		ID: 1, Old: old, New: deleted, Current: deleted.Clone(),
	}))
	require.NoError(t, err)

	require.Len(t, set.Nodes, 1)
	assert.True(t, set.Nodes[0].Visible)
	assert.Equal(t, "thing", set.Nodes[0].Tags["name"])
	assert.EqualValues(t, 4, set.Nodes[0].Version)
}

func TestInvert_DeleteNotRestoredAfterResurrection(t *testing.T) {
	old := node(1, 3, true, nil)
	deleted := node(1, 4, false, nil)
	// somebody restored the element since; leave it alone
	current := node(1, 5, true, nil)

	set, err := New(zap.NewNop(), nil).Invert(diffOf(osm.DiffEntry{
		ID: 1, Old: old, New: deleted, Current: current,
	}))
	require.NoError(t, err)
	assert.Equal(t, 0, set.Size())
}

func TestInvert_CarriesStateAcrossEntries(t *testing.T) {
	// two changesets edited the same node; entries arrive newest-first
	newer := osm.DiffEntry{
		Timestamp: 200, ID: 1,
		Old:     node(1, 2, true, map[string]string{"name": "B"}),
		New:     node(1, 3, true, map[string]string{"name": "C"}),
		Current: node(1, 3, true, map[string]string{"name": "C"}),
	}
	older := osm.DiffEntry{
		Timestamp: 100, ID: 1,
		Old:     node(1, 1, true, map[string]string{"name": "A"}),
		New:     node(1, 2, true, map[string]string{"name": "B"}),
		Current: node(1, 3, true, map[string]string{"name": "C"}),
	}

	set, err := New(zap.NewNop(), nil).Invert(diffOf(newer, older))
	require.NoError(t, err)

	require.Len(t, set.Nodes, 1)
	assert.Equal(t, "A", set.Nodes[0].Tags["name"])
	assert.EqualValues(t, 3, set.Nodes[0].Version)
}

func TestInvert_NoDoubleDelete(t *testing.T) {
	// the newer changeset deleted the node, the older one created it;
	// reverting both must not delete an element that is already gone
	deleted := node(1, 2, false, nil)
	newer := osm.DiffEntry{
		Timestamp: 200, ID: 1,
		Old:     node(1, 1, true, nil),
		New:     deleted,
		Current: deleted.Clone(),
	}
	older := osm.DiffEntry{
		Timestamp: 100, ID: 1,
		New:     node(1, 1, true, nil),
		Current: deleted.Clone(),
	}

	set, err := New(zap.NewNop(), nil).Invert(diffOf(newer, older))
	require.NoError(t, err)
	assert.Equal(t, 0, set.Size())
}

func TestInvert_OnlyTags(t *testing.T) {
	t.Run("SkipsCreations", func(t *testing.T) {
		created := node(1, 1, true, map[string]string{"name": "x"})

		set, err := New(zap.NewNop(), []string{"name"}).Invert(diffOf(osm.DiffEntry{
			ID: 1, New: created, Current: created.Clone(),
		}))
		require.NoError(t, err)
		assert.Equal(t, 0, set.Size())
	})

	t.Run("RevertsOnlyListedKeys", func(t *testing.T) {
		old := node(1, 1, true, map[string]string{"name": "before", "ref": "1"})
		new := node(1, 2, true, map[string]string{"name": "after", "ref": "2"})

		set, err := New(zap.NewNop(), []string{"name"}).Invert(diffOf(osm.DiffEntry{
			ID: 1, Old: old, New: new, Current: new.Clone(),
		}))
		require.NoError(t, err)

		require.Len(t, set.Nodes, 1)
		assert.Equal(t, "before", set.Nodes[0].Tags["name"])
		assert.Equal(t, "2", set.Nodes[0].Tags["ref"])
	})
}

func TestInvert_WaySimpleNodeRevert(t *testing.T) {
	old := way(1, 1, true, 10, 11, 12)
	new := way(1, 2, true, 10, 11)
	// version moved on but the node list still matches the edit
	current := way(1, 3, true, 10, 11)
	current.Tags = map[string]string{"highway": "path"}

	set, err := New(zap.NewNop(), nil).Invert(diffOf(osm.DiffEntry{
		ID: 1, Old: old, New: new, Current: current,
	}))
	require.NoError(t, err)

	require.Len(t, set.Ways, 1)
	assert.Equal(t, []osm.NodeRef{{Ref: 10}, {Ref: 11}, {Ref: 12}}, set.Ways[0].Nds)
}

func TestInvert_WayPatchedNodeRevert(t *testing.T) {
	old := way(1, 1, true, 10, 11, 12)
	new := way(1, 2, true, 10, 11, 12, 13)
	// a later edit appended another node
	current := way(1, 3, true, 10, 11, 12, 13, 14)

	inv := New(zap.NewNop(), nil)
	set, err := inv.Invert(diffOf(osm.DiffEntry{ID: 1, Old: old, New: new, Current: current}))
	require.NoError(t, err)

	require.Len(t, set.Ways, 1)
	refs := make([]int64, 0, len(set.Ways[0].Nds))
	for _, nd := range set.Ways[0].Nds {
		refs = append(refs, nd.Ref)
	}
	assert.ElementsMatch(t, []int64{10, 11, 12, 14}, refs)
	assert.Equal(t, 1, inv.Statistics.PatchWay)
	assert.Empty(t, inv.Warnings[osm.TypeWay])
}

func TestInvert_CorruptedTransition(t *testing.T) {
	old := node(1, 1, false, nil)
	new := node(1, 2, false, nil)

	_, err := New(zap.NewNop(), nil).Invert(diffOf(osm.DiffEntry{
		ID: 1, Old: old, New: new, Current: new.Clone(),
	}))

	var corrupted *osm.CorruptedError
	require.ErrorAs(t, err, &corrupted)
	assert.EqualValues(t, 1, corrupted.ID)
}
