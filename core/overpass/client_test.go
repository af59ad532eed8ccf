package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"osm-revert/core/osm"
)

const partitionTime = "2024-01-01T00:00:00Z"

func testChangeset() *osm.Changeset {
	ids := osm.NewIDSet()
	ids[osm.TypeNode] = []int64{1}
	return &osm.Changeset{
		ID:         100,
		Partitions: map[string]osm.IDSet{partitionTime: ids},
	}
}

const partitionResponse = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
<meta osm_base="2024-01-01T00:05:00Z"/>
<action type="modify">
  <old><node id="1" version="1" timestamp="2023-12-30T00:00:00Z" changeset="90" lat="50.0" lon="20.0"/></old>
  <new><node id="1" version="2" timestamp="2024-01-01T00:00:00Z" changeset="100" lat="51.0" lon="20.0"/></new>
</action>
</osm>`

const currentResponse = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
<meta osm_base="2024-01-01T00:05:00Z"/>
<action type="modify">
  <old><node id="1" version="2" timestamp="2024-01-01T00:00:00Z" changeset="100" lat="51.0" lon="20.0"/></old>
  <new><node id="1" version="3" timestamp="2024-02-01T00:00:00Z" changeset="105" lat="52.0" lon="20.0"/></new>
</action>
</osm>`

// mirrorHandler serves the canned partition and current responses based on
// the requested time window.
func mirrorHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		data := r.FormValue("data")
		require.NotEmpty(t, data)

		if strings.Contains(data, `[adiff:"2023-12-31T23:59:59Z"`) {
			_, _ = w.Write([]byte(partitionResponse))
			return
		}
		_, _ = w.Write([]byte(currentResponse))
	}
}

func newTestClient(urls ...string) *Client {
	cfg := Config{URLs: strings.Join(urls, " "), TimeoutSeconds: 5}
	return NewClient(cfg, zap.NewNop())
}

func TestChangesetElementsHistory(t *testing.T) {
	server := httptest.NewServer(mirrorHandler(t))
	defer server.Close()

	diff, err := newTestClient(server.URL).ChangesetElementsHistory(context.Background(), testChangeset(), "")
	require.NoError(t, err)

	require.Len(t, diff[osm.TypeNode], 1)
	entry := diff[osm.TypeNode][0]
	assert.EqualValues(t, 1, entry.ID)
	assert.EqualValues(t, 1, entry.Old.Version)
	assert.EqualValues(t, 2, entry.New.Version)
	assert.EqualValues(t, 3, entry.Current.Version)
	assert.Equal(t, "52.0", entry.Current.Lat)
}

func TestChangesetElementsHistory_RetriesServerError(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		mirrorHandler(t)(w, r)
	}))
	defer server.Close()

	// a transient server error is retried within the query timeout budget,
	// not escalated to the next mirror
	diff, err := newTestClient(server.URL).ChangesetElementsHistory(context.Background(), testChangeset(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, diff.Size())
	assert.EqualValues(t, 3, requests.Load())
}

func TestChangesetElementsHistory_StaleMirrorFailover(t *testing.T) {
	stale := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// data horizon has not reached the partition yet
		_, _ = w.Write([]byte(`<osm><meta osm_base="` + partitionTime + `"/></osm>`))
	}))
	defer stale.Close()

	fresh := httptest.NewServer(mirrorHandler(t))
	defer fresh.Close()

	diff, err := newTestClient(stale.URL, fresh.URL).ChangesetElementsHistory(context.Background(), testChangeset(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, diff.Size())
}

func TestChangesetElementsHistory_AllMirrorsStale(t *testing.T) {
	stale := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<osm><meta osm_base="` + partitionTime + `"/></osm>`))
	}))
	defer stale.Close()

	_, err := newTestClient(stale.URL, stale.URL).ChangesetElementsHistory(context.Background(), testChangeset(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStale)
	// identical mirror failures collapse into one message
	assert.Contains(t, err.Error(), "(x2)")
}

func TestChangesetElementsHistory_Incomplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// fresh horizon but no actions for the requested id
		_, _ = w.Write([]byte(`<osm><meta osm_base="2024-01-01T00:05:00Z"/></osm>`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ChangesetElementsHistory(context.Background(), testChangeset(), "")
	require.Error(t, err)

	var incomplete *IncompleteError
	assert.ErrorAs(t, err, &incomplete)
}

func TestChangesetElementsHistory_BadFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		data := r.FormValue("data")

		if strings.Contains(data, "[highway]") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`<html><body><p>Error: line 1: parse error</p></body></html>`))
			return
		}
		_, _ = w.Write([]byte(partitionResponse))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ChangesetElementsHistory(context.Background(), testChangeset(), "node[highway]")
	require.Error(t, err)

	var bad *BadRequestError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, []string{"line 1: parse error"}, bad.Messages)
}

func TestStructuralParents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Contains(t, r.FormValue("data"), "way(bn.n)")

		_, _ = w.Write([]byte(`<osm>
<way id="10" version="2" timestamp="2024-01-01T00:00:00Z" changeset="50"><nd ref="1"/><nd ref="2"/></way>
<relation id="20" version="1" timestamp="2024-01-01T00:00:00Z" changeset="50"><member type="node" ref="1" role="stop"/></relation>
</osm>`))
	}))
	defer server.Close()

	ids := osm.NewIDSet()
	ids[osm.TypeNode] = []int64{1}

	parents, err := newTestClient(server.URL).StructuralParents(context.Background(), ids)
	require.NoError(t, err)

	require.Len(t, parents.Ways, 1)
	assert.Equal(t, []osm.NodeRef{{Ref: 1}, {Ref: 2}}, parents.Ways[0].Nds)
	require.Len(t, parents.Relations, 1)
	assert.Equal(t, osm.Member{Type: osm.TypeNode, Ref: 1, Role: "stop"}, parents.Relations[0].Members[0])
}
