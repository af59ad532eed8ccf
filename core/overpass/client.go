package overpass

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"osm-revert/core/httpx"
	"osm-revert/core/osm"
)

// Client talks to one or more mirrored Overpass endpoints. A reconstruction
// is attempted against each mirror in order until one fully succeeds; the
// client holds no mutable state, so independent reconstructions may run
// concurrently.
type Client struct {
	mirrors []*httpx.Client
	cfg     Config
	log     *zap.Logger
}

// NewClient creates a Client for the configured mirrors.
func NewClient(cfg Config, log *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	// Queries run for minutes, so the retry budget follows the query
	// timeout instead of the short default.
	retry := httpx.DefaultRetry()
	retry.MaxElapsedTime = timeout

	var mirrors []*httpx.Client
	for _, u := range strings.Fields(cfg.URLs) {
		mirrors = append(mirrors, httpx.New(u, timeout, nil).WithRetry(retry))
	}

	return &Client{mirrors: mirrors, cfg: cfg, log: log}
}

// ChangesetElementsHistory reconstructs, for every element of the target
// changeset, its state immediately before the edit, immediately after, and
// at present. Mirrors are tried in order; identical failures collapse into
// one error, differing failures are reported together. Corrupted input
// aborts immediately since every mirror would return the same data.
func (c *Client) ChangesetElementsHistory(ctx context.Context, cs *osm.Changeset, queryFilter string) (osm.Diff, error) {
	var errs []error

	for _, mirror := range c.mirrors {
		if len(errs) > 0 {
			c.log.Info("retrying with next mirror", zap.String("mirror", mirror.BaseURL()))
		}

		diff, err := c.fetchHistory(ctx, mirror, cs, queryFilter)
		if err == nil {
			return diff, nil
		}

		var corrupted *osm.CorruptedError
		if errors.As(err, &corrupted) {
			return nil, err
		}

		errs = append(errs, err)
	}

	return nil, combineMirrorErrors(errs)
}

type reconstructedEdit struct {
	t   osm.ElementType
	old *osm.Element
	new *osm.Element
}

func (c *Client) fetchHistory(ctx context.Context, mirror *httpx.Client, cs *osm.Changeset, queryFilter string) (osm.Diff, error) {
	timestamps := make([]string, 0, len(cs.Partitions))
	for ts := range cs.Partitions {
		timestamps = append(timestamps, ts)
	}
	sort.Strings(timestamps)

	var edits []reconstructedEdit
	var currentActions []actionXML

	for i, ts := range timestamps {
		ids := cs.Partitions[ts]

		adiff, err := changesetAdiff(ts, c.cfg.RevertToDate)
		if err != nil {
			return nil, err
		}
		unfiltered := buildQueryFiltered(ids, "")

		// 1. state transition inside the partition window
		partition, err := c.fetch(ctx, mirror, "[timeout:180]"+cs.BBox+adiff+";"+unfiltered, false)
		if err != nil {
			return nil, err
		}

		horizon, err := osm.ParseTimestamp(partition.Meta.OsmBase)
		if err != nil {
			return nil, err
		}
		partitionTime, err := osm.ParseTimestamp(ts)
		if err != nil {
			return nil, err
		}
		if horizon <= partitionTime {
			return nil, ErrStale
		}

		// 2. completeness: one action per requested id
		if len(partition.Actions) != ids.Size() {
			return nil, &IncompleteError{Reason: fmt.Sprintf("%d actions != %d requested", len(partition.Actions), ids.Size())}
		}

		if queryFilter != "" {
			merged, err := c.fetchFiltered(ctx, mirror, cs, ids, queryFilter, adiff, partition.Actions)
			if err != nil {
				return nil, err
			}
			edits = append(edits, merged...)
		} else {
			for _, a := range partition.Actions {
				t, old, new, err := parseAction(a)
				if err != nil {
					return nil, err
				}
				edits = append(edits, reconstructedEdit{t: t, old: old, new: new})
			}
		}

		// 4. present-day state, anchored at the partition timestamp
		current, err := c.fetch(ctx, mirror, "[timeout:180]"+cs.BBox+currentAdiff(ts)+";"+unfiltered, false)
		if err != nil {
			return nil, err
		}
		currentActions = append(currentActions, current.Actions...)

		c.log.Info("partition reconstructed",
			zap.Int64("changeset", cs.ID),
			zap.Int("partition", i+1),
			zap.Int("partitions", len(timestamps)),
		)
	}

	currentMap, err := buildCurrentMap(currentActions)
	if err != nil {
		return nil, err
	}

	diff := osm.NewDiff()

	for _, edit := range edits {
		// Version-skip anomalies are expected while unrelated change sets
		// touch the same ids; only strict mode treats them as corruption.
		if c.cfg.StrictVersions {
			if edit.old != nil && edit.new.Version != edit.old.Version+1 {
				return nil, &osm.CorruptedError{Type: edit.t, ID: edit.new.ID, Reason: "version jump other than +1"}
			}
			if edit.old == nil && edit.new.Version != 1 && c.cfg.RevertToDate == "" {
				return nil, &osm.CorruptedError{Type: edit.t, ID: edit.new.ID, Reason: "creation with version > 1"}
			}
		}

		timestamp, err := osm.ParseTimestamp(edit.new.Timestamp)
		if err != nil {
			return nil, err
		}

		current, ok := currentMap[edit.t][edit.new.ID]
		if !ok {
			// untouched since the target edit
			current = edit.new
		}

		diff[edit.t] = append(diff[edit.t], osm.DiffEntry{
			Timestamp: timestamp,
			ID:        edit.new.ID,
			Old:       edit.old,
			New:       edit.new,
			Current:   current,
		})
	}

	return diff, nil
}

// fetchFiltered runs the caller-scoped query at the same window and merges
// its discoveries with the unfiltered structural data, validating that both
// queries agree on element versions.
func (c *Client) fetchFiltered(ctx context.Context, mirror *httpx.Client, cs *osm.Changeset, ids osm.IDSet, queryFilter, adiff string, unfilteredActions []actionXML) ([]reconstructedEdit, error) {
	filtered, err := c.fetch(ctx, mirror, "[timeout:180]"+cs.BBox+adiff+";"+buildQueryFiltered(ids, queryFilter), true)
	if err != nil {
		return nil, err
	}

	type pair struct {
		old *osm.Element
		new *osm.Element
	}
	dataMap := make(map[osm.ElementType]map[int64]pair)
	for _, t := range osm.Types {
		dataMap[t] = make(map[int64]pair)
	}
	for _, a := range unfilteredActions {
		t, old, new, err := parseAction(a)
		if err != nil {
			return nil, err
		}
		dataMap[t][new.ID] = pair{old: old, new: new}
	}

	dedupNodes := make(map[int64]struct{})
	var edits []reconstructedEdit

	for _, a := range filtered.Actions {
		t, _, new, err := parseAction(a)
		if err != nil {
			return nil, err
		}

		if t == osm.TypeNode {
			// nodes of filtered query elements are often unrelated skeleton
			if new.Changeset != cs.ID {
				continue
			}
			// the double "out" can emit duplicate nodes
			if _, seen := dedupNodes[new.ID]; seen {
				continue
			}
			dedupNodes[new.ID] = struct{}{}
		}

		merged, ok := dataMap[t][new.ID]
		if !ok {
			return nil, &IncompleteError{Reason: "missing merge"}
		}
		if merged.new.Version != new.Version {
			return nil, &IncompleteError{Reason: "merge version mismatch"}
		}

		edits = append(edits, reconstructedEdit{t: t, old: merged.old, new: merged.new})
	}

	return edits, nil
}

// StructuralParents returns all ways and relations that reference any of
// the given element ids.
func (c *Client) StructuralParents(ctx context.Context, ids osm.IDSet) (*osm.Parents, error) {
	resp, err := c.fetch(ctx, c.mirrors[0], "[timeout:180];"+buildQueryParentsByIDs(ids), false)
	if err != nil {
		return nil, err
	}
	return &osm.Parents{Ways: resp.Ways, Relations: resp.Relations}, nil
}

func (c *Client) fetch(ctx context.Context, mirror *httpx.Client, query string, checkBadRequest bool) (*responseXML, error) {
	form := url.Values{"data": []string{query}}

	resp, err := mirror.DoRetry(ctx, http.MethodPost, "/interpreter", httpx.WithForm(form))
	if err != nil {
		return nil, err
	}

	if checkBadRequest && resp.StatusCode == http.StatusBadRequest {
		if messages := scrapeBadRequest(string(resp.Body)); messages != nil {
			return nil, &BadRequestError{Messages: messages}
		}
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var parsed responseXML
	if err := xml.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse overpass response: %w", err)
	}
	return &parsed, nil
}
