package invert

import (
	"encoding/json"
	"sort"

	"go.uber.org/zap"

	"osm-revert/core/diffpatch"
	"osm-revert/core/osm"
)

// Inverter computes, per element, the minimal edit that restores pre-change
// semantics while preserving independent later edits. All state is owned by
// the instance; create a fresh Inverter per run.
type Inverter struct {
	log      *zap.Logger
	onlyTags map[string]struct{}

	// currentMap carries the freshest inverted state per element across
	// multiple target change sets; once established it supersedes the
	// source history's current snapshot for older entries of the same id.
	currentMap map[osm.ElementType]map[int64]*osm.Element

	// versionMap records the latest server-side version per element,
	// restored on output so the submission is valid.
	versionMap map[osm.ElementType]map[int64]int64

	runCounter map[string]int

	// Statistics is populated during Invert and read-only afterwards.
	Statistics *Statistics

	// Warnings lists element ids whose ordered references could only be
	// partially reverted; they should be verified by hand.
	Warnings map[osm.ElementType][]int64
}

// New creates an Inverter. When onlyTags is non-empty, inversion is
// restricted to the listed tag keys: creations and deletions are left
// alone and only matching tag edits are reverted.
func New(log *zap.Logger, onlyTags []string) *Inverter {
	only := make(map[string]struct{}, len(onlyTags))
	for _, tag := range onlyTags {
		if tag != "" {
			only[tag] = struct{}{}
		}
	}

	inv := &Inverter{
		log:        log,
		onlyTags:   only,
		currentMap: make(map[osm.ElementType]map[int64]*osm.Element),
		versionMap: make(map[osm.ElementType]map[int64]int64),
		runCounter: make(map[string]int),
		Statistics: &Statistics{},
		Warnings:   make(map[osm.ElementType][]int64),
	}
	for _, t := range osm.Types {
		inv.currentMap[t] = make(map[int64]*osm.Element)
		inv.versionMap[t] = make(map[int64]int64)
	}
	return inv
}

// shouldLog rate-limits a recurring message to the given budget per run.
func (inv *Inverter) shouldLog(name string, limit int) bool {
	inv.runCounter[name]++
	current := inv.runCounter[name]
	if current == limit+1 {
		inv.log.Info("suppressing further messages", zap.String("name", name))
	}
	return current <= limit
}

// Invert consumes a merged diff whose entries are sorted newest-first per
// type and produces the element set to submit. The returned set restores
// each element's latest version and omits elements that would re-delete an
// already tombstoned state.
func (inv *Inverter) Invert(diff osm.Diff) (*osm.ElementSet, error) {
	for _, t := range osm.Types {
		for _, entry := range diff[t] {
			old := entry.Old
			new := entry.New
			current := entry.Current

			if _, ok := inv.versionMap[t][entry.ID]; !ok {
				inv.versionMap[t][entry.ID] = current.Version
			}

			// Older entries for an id must see the already inverted state,
			// not a stale snapshot from the source history.
			if last, ok := inv.currentMap[t][entry.ID]; ok {
				current = last.Clone()
			}

			setVisibleOriginal(old, current)
			setVisibleOriginal(new, current)
			setVisibleOriginal(current, current)

			if err := inv.invertElement(t, entry.ID, old, new, current); err != nil {
				return nil, err
			}
		}
	}

	result := osm.NewElementSet()
	for _, t := range osm.Types {
		ids := make([]int64, 0, len(inv.currentMap[t]))
		for id := range inv.currentMap[t] {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			e := inv.currentMap[t][id]
			e.Version = inv.versionMap[t][id]

			// Don't delete already deleted elements; this can happen when
			// reverting multiple changesets that touch the same id.
			if !e.Visible && e.VisibleOriginal != nil && !*e.VisibleOriginal {
				continue
			}

			e.VisibleOriginal = nil
			result.Append(e)
		}
	}

	return result, nil
}

func (inv *Inverter) invertElement(t osm.ElementType, id int64, old, new, current *osm.Element) error {
	switch {
	// create
	case (old == nil || !old.Visible) && new.Visible:
		// only-tags mode never deletes elements
		if len(inv.onlyTags) > 0 {
			return nil
		}
		// absolute delete, unless someone already removed it
		if current.Visible {
			current.Visible = false
			inv.currentMap[t][id] = current
		}

	// modify
	case old != nil && old.Visible && new.Visible:
		// simple revert; only-tags mode requires the advanced path
		if current.Version == new.Version && len(inv.onlyTags) == 0 {
			inv.currentMap[t][id] = old
		} else if current.Visible {
			if inv.shouldLog("advanced revert", 50) {
				inv.log.Info("performing advanced revert", zap.String("type", string(t)), zap.Int64("id", id))
			}
			inv.Statistics.countFix(t)

			if current.Tags == nil {
				current.Tags = make(map[string]string)
			}
			snapshot := current.Clone()

			inv.invertTags(old, new, current)

			if len(inv.onlyTags) == 0 {
				switch t {
				case osm.TypeNode:
					invertNodePosition(old, new, current)
				case osm.TypeWay:
					inv.invertWayNodes(old, new, current)
				case osm.TypeRelation:
					inv.invertRelationMembers(old, new, current)
				}
			}

			if !current.Equal(snapshot) {
				inv.currentMap[t][id] = current
			}
		}

	// delete
	case old != nil && old.Visible && !new.Visible:
		// only-tags mode never restores elements
		if len(inv.onlyTags) > 0 {
			return nil
		}
		// do not restore repeatedly deleted elements
		if current.Version == new.Version {
			inv.currentMap[t][id] = old
		}

	default:
		return &osm.CorruptedError{Type: t, ID: id, Reason: "illegal visibility transition"}
	}

	return nil
}

// skipTag reports whether only-tags mode excludes the given key.
func (inv *Inverter) skipTag(key string) bool {
	if len(inv.onlyTags) == 0 {
		return false
	}
	_, ok := inv.onlyTags[key]
	return !ok
}

func (inv *Inverter) invertTags(old, new, current *osm.Element) {
	oldTags := old.Tags
	newTags := new.Tags
	currentTags := current.Tags

	// created by the edit: remove, if still holding exactly the created value
	for key, value := range newTags {
		if oldValue, ok := oldTags[key]; ok && oldValue == value {
			continue // unchanged by the edit
		}
		if inv.skipTag(key) {
			continue
		}
		if _, ok := oldTags[key]; ok {
			continue // modified, handled below
		}
		if currentValue, ok := currentTags[key]; !ok || currentValue != value {
			continue // independently edited since; leave it
		}
		delete(currentTags, key)
	}

	// modified by the edit: restore the old value, if still at the new one
	for key, value := range newTags {
		if oldValue, ok := oldTags[key]; ok && oldValue == value {
			continue
		}
		if inv.skipTag(key) {
			continue
		}
		if _, ok := oldTags[key]; !ok {
			continue // created, handled above
		}
		if currentValue, ok := currentTags[key]; !ok || currentValue != value {
			continue
		}
		currentTags[key] = oldTags[key]
	}

	// deleted by the edit: restore, if nobody recreated the key since
	for key, value := range oldTags {
		if newValue, ok := newTags[key]; ok && newValue == value {
			continue // unchanged by the edit
		}
		if inv.skipTag(key) {
			continue
		}
		if _, ok := newTags[key]; ok {
			continue // modified, not deleted
		}
		if _, ok := currentTags[key]; ok {
			continue // recreated since; leave it
		}
		currentTags[key] = value
	}
}

func invertNodePosition(old, new, current *osm.Element) {
	// ignore unmoved
	if old.Lat == new.Lat && old.Lon == new.Lon {
		return
	}
	// expect to be at the new location
	if current.Lat != new.Lat || current.Lon != new.Lon {
		return
	}
	current.Lat = old.Lat
	current.Lon = old.Lon
}

func (inv *Inverter) invertWayNodes(old, new, current *osm.Element) {
	oldTokens := ndTokens(old.Nds)
	newTokens := ndTokens(new.Nds)
	currentTokens := ndTokens(current.Nds)

	// ignore unmodified
	if equalTokens(oldTokens, newTokens) {
		return
	}

	// already reverted
	if !equalTokens(currentTokens, newTokens) && sameTokenSet(oldTokens, currentTokens) {
		return
	}

	// simple revert if no more edits
	if equalTokens(currentTokens, newTokens) {
		current.Nds = old.Clone().Nds
		return
	}

	inv.log.Info("performing diff patch", zap.String("type", "way"), zap.Int64("id", new.ID))

	patched, err := diffpatch.Reconcile(oldTokens, newTokens, currentTokens)
	if err == nil {
		current.Nds = ndsFromTokens(patched)
		inv.Statistics.PatchWay++
		inv.Statistics.PatchWayIDs = append(inv.Statistics.PatchWayIDs, new.ID)
		return
	}

	// conservative partial revert: drop exactly the references the edit
	// introduced, leave the rest to manual review
	created := make(map[int64]struct{})
	for _, nd := range new.Nds {
		created[nd.Ref] = struct{}{}
	}
	for _, nd := range old.Nds {
		delete(created, nd.Ref)
	}

	kept := make([]osm.NodeRef, 0, len(current.Nds))
	for _, nd := range current.Nds {
		if _, ok := created[nd.Ref]; !ok {
			kept = append(kept, nd)
		}
	}
	current.Nds = kept

	inv.Statistics.PatchFailWay++
	inv.Statistics.PatchFailWayIDs = append(inv.Statistics.PatchFailWayIDs, new.ID)
	inv.Warnings[osm.TypeWay] = append(inv.Warnings[osm.TypeWay], new.ID)
}

func (inv *Inverter) invertRelationMembers(old, new, current *osm.Element) {
	oldTokens := memberTokens(old.Members)
	newTokens := memberTokens(new.Members)
	currentTokens := memberTokens(current.Members)

	// ignore unmodified
	if equalTokens(oldTokens, newTokens) {
		return
	}

	// already reverted
	if !equalTokens(currentTokens, newTokens) && sameTokenSet(oldTokens, currentTokens) {
		return
	}

	// simple revert if no more edits
	if equalTokens(currentTokens, newTokens) {
		current.Members = old.Clone().Members
		return
	}

	inv.log.Info("performing diff patch", zap.String("type", "relation"), zap.Int64("id", new.ID))

	patched, err := diffpatch.Reconcile(oldTokens, newTokens, currentTokens)
	if err == nil {
		current.Members = membersFromTokens(patched)
		inv.Statistics.PatchRelation++
		inv.Statistics.PatchRelationIDs = append(inv.Statistics.PatchRelationIDs, new.ID)
		return
	}

	created := make(map[int64]struct{})
	for _, m := range new.Members {
		created[m.Ref] = struct{}{}
	}
	for _, m := range old.Members {
		delete(created, m.Ref)
	}

	kept := make([]osm.Member, 0, len(current.Members))
	for _, m := range current.Members {
		if _, ok := created[m.Ref]; !ok {
			kept = append(kept, m)
		}
	}
	current.Members = kept

	inv.Statistics.PatchFailRelation++
	inv.Statistics.PatchFailRelationIDs = append(inv.Statistics.PatchFailRelationIDs, new.ID)
	inv.Warnings[osm.TypeRelation] = append(inv.Warnings[osm.TypeRelation], new.ID)
}

func setVisibleOriginal(target, current *osm.Element) {
	if target != nil && target.VisibleOriginal == nil {
		v := current.Visible
		target.VisibleOriginal = &v
	}
}

// The ordered-reference reconciliation serializes each reference to an
// opaque token so the generic diff-patch engine can operate on it; the
// format is an implementation detail of this package.

func ndTokens(nds []osm.NodeRef) []string {
	tokens := make([]string, len(nds))
	for i, nd := range nds {
		b, _ := json.Marshal(nd)
		tokens[i] = string(b)
	}
	return tokens
}

func ndsFromTokens(tokens []string) []osm.NodeRef {
	nds := make([]osm.NodeRef, 0, len(tokens))
	for _, token := range tokens {
		var nd osm.NodeRef
		if err := json.Unmarshal([]byte(token), &nd); err == nil {
			nds = append(nds, nd)
		}
	}
	return nds
}

func memberTokens(members []osm.Member) []string {
	tokens := make([]string, len(members))
	for i, m := range members {
		b, _ := json.Marshal(m)
		tokens[i] = string(b)
	}
	return tokens
}

func membersFromTokens(tokens []string) []osm.Member {
	members := make([]osm.Member, 0, len(tokens))
	for _, token := range tokens {
		var m osm.Member
		if err := json.Unmarshal([]byte(token), &m); err == nil {
			members = append(members, m)
		}
	}
	return members
}

func equalTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameTokenSet(a, b []string) bool {
	setA := make(map[string]struct{}, len(a))
	for _, token := range a {
		setA[token] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, token := range b {
		setB[token] = struct{}{}
	}
	if len(setA) != len(setB) {
		return false
	}
	for token := range setA {
		if _, ok := setB[token]; !ok {
			return false
		}
	}
	return true
}
