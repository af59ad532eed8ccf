package osm

import (
	"fmt"
	"time"
)

// TimeLayout is the timestamp format used across the OSM APIs.
const TimeLayout = "2006-01-02T15:04:05Z"

// ParseTimestamp converts an API timestamp to a unix time.
func ParseTimestamp(s string) (int64, error) {
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t.Unix(), nil
}

// DiffEntry is the reconstructed history of a single element around a
// target edit: its state immediately before (nil on creation), immediately
// after, and the latest state known server-side.
type DiffEntry struct {
	Timestamp int64
	ID        int64
	Old       *Element
	New       *Element
	Current   *Element
}

// Diff groups reconstructed entries by element type.
type Diff map[ElementType][]DiffEntry

// NewDiff returns a Diff with all three type buckets present.
func NewDiff() Diff {
	return Diff{TypeNode: nil, TypeWay: nil, TypeRelation: nil}
}

// Size returns the total number of entries across all types.
func (d Diff) Size() int {
	n := 0
	for _, entries := range d {
		n += len(entries)
	}
	return n
}

// IDSet holds element ids per type.
type IDSet map[ElementType][]int64

// NewIDSet returns an IDSet with all three type buckets present.
func NewIDSet() IDSet {
	return IDSet{TypeNode: nil, TypeWay: nil, TypeRelation: nil}
}

// Size returns the total number of ids across all types.
func (s IDSet) Size() int {
	n := 0
	for _, ids := range s {
		n += len(ids)
	}
	return n
}

// Empty reports whether the set holds no ids at all.
func (s IDSet) Empty() bool {
	return s.Size() == 0
}

// Changeset describes a target change set: its id, optional bounding box,
// and the affected element ids partitioned by edit timestamp. Elements
// edited atomically together share a partition.
type Changeset struct {
	ID int64
	// UID is the id of the user who made the change set.
	UID int64
	// BBox is the pre-rendered Overpass bbox setting ("[bbox:...]"),
	// empty when the changeset has none.
	BBox string
	// Partitions maps an edit timestamp to the ids edited at that instant.
	Partitions map[string]IDSet
}

// Size returns the total number of elements across all partitions.
func (c *Changeset) Size() int {
	n := 0
	for _, ids := range c.Partitions {
		n += ids.Size()
	}
	return n
}
