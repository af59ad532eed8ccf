package revert

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"osm-revert/core/archive"
	"osm-revert/core/invert"
	"osm-revert/core/osm"
	"osm-revert/core/osmapi"
	"osm-revert/core/overpass"
	"osm-revert/core/parents"
)

// Options describes a single revert run.
type Options struct {
	// ChangesetIDs are the change sets to revert.
	ChangesetIDs []int64
	// Comment is the submission comment, required when uploading.
	Comment string
	// QueryFilter optionally narrows the revert to matching elements.
	QueryFilter string
	// OnlyTags restricts the revert to the given tag keys.
	OnlyTags []string
	// FixParents selects whether conflicting parents are repaired (true)
	// or the conflicting deletions dropped (false).
	FixParents bool
	// OscFile writes the change document to a file instead of uploading.
	OscFile string
	// PrintOsc prints the change document instead of uploading.
	PrintOsc bool
	// Discussion is an optional comment posted to the reverted change
	// sets after a successful upload.
	Discussion string
	// DiscussionTarget selects which change sets receive the discussion
	// comment: all, newest, or oldest.
	DiscussionTarget string
}

// Service runs the revert pipeline: download, reconstruct, invert, fix
// parents, and submit.
type Service struct {
	log      *zap.Logger
	api      *osmapi.Client
	overpass *overpass.Client
	archiver *archive.Archiver
	cfg      Config
	osmURL   string
}

// NewService creates a Service. The archiver may be nil when archival is
// disabled.
func NewService(log *zap.Logger, api *osmapi.Client, op *overpass.Client, archiver *archive.Archiver, cfg Config, osmURL string) *Service {
	return &Service{log: log, api: api, overpass: op, archiver: archiver, cfg: cfg, osmURL: osmURL}
}

// Run executes a revert run end to end.
func (s *Service) Run(ctx context.Context, opts Options) error {
	if len(opts.ChangesetIDs) == 0 {
		return fmt.Errorf("missing changeset ids")
	}

	changesetIDs := dedupeSorted(opts.ChangesetIDs)

	var onlyTags []string
	for _, tag := range opts.OnlyTags {
		if tag = strings.TrimSpace(tag); tag != "" {
			onlyTags = append(onlyTags, tag)
		}
	}

	user, err := s.api.AuthorizedUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to authorize: %w", err)
	}

	userEdits := user.Changesets.Count
	moderator := user.Moderator()

	s.log.Info("logged in",
		zap.String("user", user.DisplayName),
		zap.Int64("edits", userEdits),
		zap.Bool("moderator", moderator),
	)

	if err := s.checkLimits(changesetIDs, userEdits, moderator); err != nil {
		return err
	}

	diffs, err := s.reconstructAll(ctx, changesetIDs, userEdits, moderator, opts.QueryFilter)
	if err != nil {
		return err
	}

	s.log.Info("generating a revert")
	merged := MergeAndSortDiffs(diffs)

	inverter := invert.New(s.log, onlyTags)
	set, err := inverter.Invert(merged)
	if err != nil {
		return err
	}

	mode := parents.Prune
	if opts.FixParents {
		mode = parents.Repair
	}
	fixed, err := parents.New(s.overpass, s.log, mode).Fix(ctx, set)
	if err != nil {
		return err
	}
	if fixed > 0 {
		if opts.FixParents {
			s.log.Info("fixing parents", zap.Int("parents", fixed))
		} else {
			s.log.Info("skipping elements that are not orphaned", zap.Int("elements", fixed))
		}
	}

	if set.Size() == 0 {
		s.log.Info("nothing to revert")
		return nil
	}

	if opts.OscFile != "" || opts.PrintOsc {
		err = s.export(ctx, set, opts)
	} else {
		err = s.upload(ctx, set, inverter.Statistics, changesetIDs, userEdits, opts)
	}
	if err != nil {
		return err
	}

	s.warnElements(inverter.Warnings)
	return nil
}

// checkLimits enforces the per-user revert batch limit.
func (s *Service) checkLimits(changesetIDs []int64, userEdits int64, moderator bool) error {
	limit := revertLimit(userEdits, moderator)

	if limit == 0 {
		return fmt.Errorf("you need to make at least %d edits to use this tool", minEditsRequired(moderator))
	}
	if limit < len(changesetIDs) {
		if next, ok := nextLimitIncrease(userEdits, moderator); ok {
			return fmt.Errorf("for safety, you can only revert up to %d changesets at a time; to increase this limit, make at least %d edits", limit, next)
		}
		return fmt.Errorf("for safety, you can only revert up to %d changesets at a time", limit)
	}
	return nil
}

// reconstructAll downloads and reconstructs every change set. The
// per-changeset work is independent and runs concurrently.
func (s *Service) reconstructAll(ctx context.Context, changesetIDs []int64, userEdits int64, moderator bool, queryFilter string) ([]osm.Diff, error) {
	diffs := make([]osm.Diff, len(changesetIDs))
	errs := make([]error, len(changesetIDs))

	var wg sync.WaitGroup
	for i, id := range changesetIDs {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			diffs[i], errs[i] = s.reconstruct(ctx, id, userEdits, moderator, queryFilter)
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	result := diffs[:0]
	for _, diff := range diffs {
		if diff != nil {
			result = append(result, diff)
		}
	}
	return result, nil
}

func (s *Service) reconstruct(ctx context.Context, changesetID, userEdits int64, moderator bool, queryFilter string) (osm.Diff, error) {
	s.log.Info("downloading changeset", zap.Int64("changeset", changesetID))

	cs, err := s.api.Changeset(ctx, changesetID)
	if err != nil {
		return nil, fmt.Errorf("failed to download changeset %d: %w", changesetID, err)
	}

	if userEdits < s.cfg.ModeratorRevertLimit && !moderator {
		author, err := s.api.User(ctx, cs.UID)
		if err != nil {
			return nil, err
		}
		if author != nil && author.Moderator() {
			return nil, fmt.Errorf("moderators changesets cannot be reverted")
		}
	}

	size := cs.Size()
	s.log.Info("changeset downloaded",
		zap.Int64("changeset", changesetID),
		zap.Int("elements", size),
		zap.Int("partitions", len(cs.Partitions)),
	)
	if size == 0 {
		return nil, nil
	}

	diff, err := s.overpass.ChangesetElementsHistory(ctx, cs, queryFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct changeset %d: %w", changesetID, err)
	}

	if diff.Size() > size {
		return nil, fmt.Errorf("reconstruction of changeset %d is larger than the changeset: %d > %d", changesetID, diff.Size(), size)
	}

	s.log.Info("changeset reconstructed",
		zap.Int64("changeset", changesetID),
		zap.Int("elements", diff.Size()),
		zap.Bool("filtered", queryFilter != ""),
	)
	return diff, nil
}

// export renders the change document to a file or standard output without
// uploading.
func (s *Service) export(ctx context.Context, set *osm.ElementSet, opts Options) error {
	s.log.Info("saving changes", zap.Int("elements", set.Size()))

	change, warnings := osm.BuildChange(set, 0)
	for _, w := range warnings {
		s.log.Warn(w)
	}

	payload, err := change.XML()
	if err != nil {
		return err
	}

	if opts.OscFile != "" {
		if err := os.WriteFile(opts.OscFile, payload, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.OscFile, err)
		}
	}
	if opts.PrintOsc {
		fmt.Println(string(payload))
	}

	return s.archiveChange(ctx, payload)
}

func (s *Service) upload(ctx context.Context, set *osm.ElementSet, stats *invert.Statistics, changesetIDs []int64, userEdits int64, opts Options) error {
	maxSize, err := s.api.ChangesetMaxSize(ctx)
	if err != nil {
		return err
	}
	if set.Size() > maxSize {
		hints := ""
		if len(changesetIDs) > 1 {
			hints += "; try reducing the amount of changesets to revert at once"
		}
		if opts.FixParents {
			hints += "; try disabling parent fixing"
		}
		return fmt.Errorf("revert is too big: %d > %d%s", set.Size(), maxSize, hints)
	}

	s.log.Info("uploading changes", zap.Int("elements", set.Size()))

	extra := map[string]string{
		"changesets_count": strconv.FormatInt(userEdits+1, 10),
		"created_by":       osm.Generator,
		"website":          s.cfg.Website,
		"id":               s.idTag(changesetIDs),
	}
	if opts.QueryFilter != "" {
		extra["filter"] = opts.QueryFilter
	}
	for k, v := range stats.Tags() {
		extra[k] = v
	}

	changesetID, err := s.api.Upload(ctx, set, opts.Comment, extra)
	if err != nil {
		return err
	}

	changesetURL := fmt.Sprintf("%s/changeset/%d", s.osmURL, changesetID)
	s.log.Info("changes uploaded", zap.String("url", changesetURL))

	s.discuss(ctx, changesetIDs, changesetURL, opts)

	change, _ := osm.BuildChange(set, changesetID)
	payload, err := change.XML()
	if err != nil {
		return err
	}
	return s.archiveChange(ctx, payload)
}

// idTag renders the submission tag linking back to the reverted change
// sets: a full URL for a single one, a joined id list otherwise.
func (s *Service) idTag(changesetIDs []int64) string {
	if len(changesetIDs) == 1 {
		return fmt.Sprintf("%s/changeset/%d", s.osmURL, changesetIDs[0])
	}

	parts := make([]string, len(changesetIDs))
	for i, id := range changesetIDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ";")
}

// discuss posts the optional discussion comment to the targeted change
// sets. Failures are logged, not fatal: the revert itself succeeded.
func (s *Service) discuss(ctx context.Context, changesetIDs []int64, changesetURL string, opts Options) {
	discussion := strings.TrimSpace(opts.Discussion)

	// prevent accidental discussions
	if len(discussion) < 4 {
		return
	}
	discussion += "\n\n" + changesetURL

	targets := filterDiscussionChangesets(changesetIDs, opts.DiscussionTarget)
	if len(targets) == 0 {
		s.log.Warn("unknown discussion target", zap.String("target", opts.DiscussionTarget))
		return
	}
	s.log.Info("discussing changesets", zap.Int("changesets", len(targets)))

	for _, id := range targets {
		status, err := s.api.PostDiscussionComment(ctx, id, discussion)
		if err != nil {
			s.log.Warn("failed to discuss changeset", zap.Int64("changeset", id), zap.Error(err))
			continue
		}
		s.log.Info("changeset discussed", zap.Int64("changeset", id), zap.String("status", status))
	}
}

// filterDiscussionChangesets selects which of the ascending-sorted change
// sets receive the discussion comment.
func filterDiscussionChangesets(changesetIDs []int64, target string) []int64 {
	switch target {
	case "", "all":
		return changesetIDs
	case "newest":
		return changesetIDs[len(changesetIDs)-1:]
	case "oldest":
		return changesetIDs[:1]
	}
	return nil
}

func (s *Service) archiveChange(ctx context.Context, payload []byte) error {
	if s.archiver == nil {
		return nil
	}

	name := uuid.NewString() + ".osc"
	if err := s.archiver.Store(ctx, name, payload); err != nil {
		s.log.Warn("failed to archive change document", zap.Error(err))
	}
	return nil
}

// warnElements asks the operator to verify elements whose ordered
// references could only be restored approximately.
func (s *Service) warnElements(warnings map[osm.ElementType][]int64) {
	for _, t := range osm.Types {
		for _, id := range warnings[t] {
			s.log.Warn("please verify", zap.String("url", fmt.Sprintf("%s/%s/%d", s.osmURL, t, id)))
		}
	}
}

func dedupeSorted(ids []int64) []int64 {
	unique := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	result := make([]int64, 0, len(unique))
	for id := range unique {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
