package invert

import (
	"strconv"
	"strings"

	"osm-revert/core/osm"
)

// Statistics counts the non-trivial reconciliation work done during a run.
// It is created fresh per Inverter and read-only after Invert returns.
type Statistics struct {
	// FixNode/FixWay/FixRelation count advanced reverts per element type.
	FixNode     int
	FixWay      int
	FixRelation int

	// PatchWay/PatchRelation count successful ordered-reference patches;
	// the id lists identify the patched elements.
	PatchWay         int
	PatchWayIDs      []int64
	PatchRelation    int
	PatchRelationIDs []int64

	// PatchFailWay/PatchFailRelation count patches that fell back to the
	// conservative partial revert; the listed ids need manual review.
	PatchFailWay         int
	PatchFailWayIDs      []int64
	PatchFailRelation    int
	PatchFailRelationIDs []int64
}

func (s *Statistics) countFix(t osm.ElementType) {
	switch t {
	case osm.TypeNode:
		s.FixNode++
	case osm.TypeWay:
		s.FixWay++
	case osm.TypeRelation:
		s.FixRelation++
	}
}

// Tags flattens the statistics into submission metadata tags. Zero counters
// and empty id lists are omitted; id lists are semicolon-joined.
func (s *Statistics) Tags() map[string]string {
	tags := make(map[string]string)

	put := func(key string, count int) {
		if count != 0 {
			tags[key] = strconv.Itoa(count)
		}
	}
	putIDs := func(key string, ids []int64) {
		if len(ids) != 0 {
			tags[key] = joinIDs(ids)
		}
	}

	put("fix:node", s.FixNode)
	put("fix:way", s.FixWay)
	put("fix:relation", s.FixRelation)
	put("dmp:way", s.PatchWay)
	putIDs("dmp:way:id", s.PatchWayIDs)
	put("dmp:relation", s.PatchRelation)
	putIDs("dmp:relation:id", s.PatchRelationIDs)
	put("dmp:fail:way", s.PatchFailWay)
	putIDs("dmp:fail:way:id", s.PatchFailWayIDs)
	put("dmp:fail:relation", s.PatchFailRelation)
	putIDs("dmp:fail:relation:id", s.PatchFailRelationIDs)

	return tags
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ";")
}
