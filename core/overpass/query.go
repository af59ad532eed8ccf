package overpass

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"osm-revert/core/osm"
)

var (
	selectorRe       = regexp.MustCompile(`\b(nwr|nw|nr|wr|node|way|relation)\b`)
	relAliasRe       = regexp.MustCompile(`\brel\b`)
	exclusionRe      = regexp.MustCompile(`\(\s*!\s*id\s*:((?:\s*(?:,\s*)?\d+)+)\s*\)`)
	selectorBeforeRe = regexp.MustCompile(`(?s).*\b(nwr|nw|nr|wr|node|way|relation)\b`)
)

// changesetAdiff renders the bounded history window for a partition:
// (timestamp - 1s, timestamp], or (revertToDate, timestamp] when a revert
// target date is configured.
func changesetAdiff(timestamp, revertToDate string) (string, error) {
	if revertToDate != "" {
		return fmt.Sprintf(`[adiff:"%s","%s"]`, revertToDate, timestamp), nil
	}

	t, err := time.ParseInLocation(osm.TimeLayout, timestamp, time.UTC)
	if err != nil {
		return "", fmt.Errorf("failed to parse partition timestamp %q: %w", timestamp, err)
	}
	before := t.Add(-1 * time.Second).Format(osm.TimeLayout)
	return fmt.Sprintf(`[adiff:"%s","%s"]`, before, timestamp), nil
}

// currentAdiff renders the unbounded window used to fetch present-day state.
func currentAdiff(timestamp string) string {
	return fmt.Sprintf(`[adiff:"%s"]`, timestamp)
}

// typesFromSelector expands a selector keyword into element types.
// Exact kind names match themselves; combined forms (nwr, nw, nr, wr) match
// by the letters they contain.
func typesFromSelector(selector string) []osm.ElementType {
	switch selector {
	case "node":
		return []osm.ElementType{osm.TypeNode}
	case "way":
		return []osm.ElementType{osm.TypeWay}
	case "relation":
		return []osm.ElementType{osm.TypeRelation}
	}

	var types []osm.ElementType
	if strings.Contains(selector, "n") {
		types = append(types, osm.TypeNode)
	}
	if strings.Contains(selector, "w") {
		types = append(types, osm.TypeWay)
	}
	if strings.Contains(selector, "r") {
		types = append(types, osm.TypeRelation)
	}
	return types
}

// buildQueryFiltered renders the statement block that selects exactly the
// given element ids, optionally narrowed by a caller-supplied filter
// expression. The filter supports node/way/relation selectors, the
// combined nwr/nw/nr/wr forms, the "rel" alias, and a custom (!id:...)
// exclusion-list form. When a filter is present, way children are queried
// implicitly so in-scope ways bring their nodes along.
func buildQueryFiltered(ids osm.IDSet, queryFilter string) string {
	implicitWayChildren := queryFilter != ""

	// default everything filter
	if queryFilter == "" {
		queryFilter = "node;way;relation;"
	}
	if !strings.HasSuffix(queryFilter, ";") {
		queryFilter += ";"
	}

	queryFilter = relAliasRe.ReplaceAllString(queryFilter, "relation")

	// handle the custom (!id:...) exclusion form
	exclusions := exclusionRe.FindAllStringSubmatchIndex(queryFilter, -1)
	for i := len(exclusions) - 1; i >= 0; i-- {
		m := exclusions[i]
		start, end := m[0], m[1]

		excluded := make(map[int64]struct{})
		for _, part := range strings.Split(queryFilter[m[2]:m[3]], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if id, err := strconv.ParseInt(part, 10, 64); err == nil {
				excluded[id] = struct{}{}
			}
		}

		sel := selectorBeforeRe.FindStringSubmatch(queryFilter[:start])
		var kept []int64
		if sel != nil {
			for _, t := range typesFromSelector(sel[1]) {
				for _, id := range ids[t] {
					if _, skip := excluded[id]; !skip {
						kept = append(kept, id)
					}
				}
			}
		}

		queryFilter = queryFilter[:start] + "(id:" + joinIDs(kept) + ")" + queryFilter[end:]
	}

	// apply element id filtering after every selector
	selectors := selectorRe.FindAllStringSubmatchIndex(queryFilter, -1)
	for i := len(selectors) - 1; i >= 0; i-- {
		m := selectors[i]
		end := m[1]

		var all []int64
		for _, t := range typesFromSelector(queryFilter[m[2]:m[3]]) {
			all = append(all, ids[t]...)
		}

		queryFilter = queryFilter[:end] + "(id:" + joinIDs(all) + ")" + queryFilter[end:]
	}

	if implicitWayChildren {
		return "(" + queryFilter + ");out meta;node(w);out meta;"
	}
	return "(" + queryFilter + ");out meta;"
}

// buildQueryParentsByIDs renders the structural-parents query: all ways
// referencing the given nodes and all relations referencing any of the
// given elements.
func buildQueryParentsByIDs(ids osm.IDSet) string {
	return fmt.Sprintf(
		"node(id:%s)->.n;way(id:%s)->.w;rel(id:%s)->.r;"+
			"(way(bn.n);rel(bn.n);rel(bw.w);rel(br.r););out meta;",
		joinIDs(ids[osm.TypeNode]), joinIDs(ids[osm.TypeWay]), joinIDs(ids[osm.TypeRelation]),
	)
}

// joinIDs renders a deduplicated, sorted id list. An empty list yields
// "-1" to keep the query valid.
func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "-1"
	}

	unique := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	sorted := make([]int64, 0, len(unique))
	for id := range unique {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
