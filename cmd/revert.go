package cmd

import (
	"context"
	"fmt"

	"osm-revert/core/archive"
	"osm-revert/core/config"
	"osm-revert/core/logger"
	"osm-revert/core/osmapi"
	"osm-revert/core/overpass"
	"osm-revert/feature/revert"

	"github.com/spf13/cobra"
)

var (
	// Flags for the revert command
	revertChangesets       []int64
	revertComment          string
	revertQueryFilter      string
	revertOnlyTags         []string
	revertNoFixParents     bool
	revertOscFile          string
	revertPrintOsc         bool
	revertDiscussion       string
	revertDiscussionTarget string
)

// revertCmd reverts one or more changesets.
var revertCmd = &cobra.Command{
	Use:   "revert",
	Short: "Revert one or more changesets",
	Long: `Revert changesets by reconstructing the edited elements from Overpass
history, inverting the changes, and uploading the result.

Examples:
  # Revert a single changeset
  osm-revert revert --changeset 123456 --comment "revert vandalism"

  # Revert multiple changesets at once
  osm-revert revert --changeset 123456 --changeset 123457 --comment "revert import"

  # Only revert elements matching a filter
  osm-revert revert --changeset 123456 --comment "revert" --query-filter "way(!id:1,2)"

  # Write the change document to a file instead of uploading
  osm-revert revert --changeset 123456 --osc-file revert.osc`,
	RunE: runRevert,
}

func init() {
	revertCmd.Flags().Int64SliceVar(&revertChangesets, "changeset", nil, "Changeset id to revert (repeatable)")
	revertCmd.Flags().StringVar(&revertComment, "comment", "", "Changeset comment for the revert")
	revertCmd.Flags().StringVar(&revertQueryFilter, "query-filter", "", "Overpass filter narrowing the reverted elements")
	revertCmd.Flags().StringSliceVar(&revertOnlyTags, "only-tags", nil, "Only revert changes to the given tag keys")
	revertCmd.Flags().BoolVar(&revertNoFixParents, "no-fix-parents", false, "Drop conflicting deletions instead of repairing parents")
	revertCmd.Flags().StringVar(&revertOscFile, "osc-file", "", "Write the change document to a file instead of uploading")
	revertCmd.Flags().BoolVar(&revertPrintOsc, "print-osc", false, "Print the change document instead of uploading")
	revertCmd.Flags().StringVar(&revertDiscussion, "discussion", "", "Comment to post to the reverted changesets")
	revertCmd.Flags().StringVar(&revertDiscussionTarget, "discussion-target", "all", "Which changesets to discuss: all, newest, oldest")

	_ = revertCmd.MarkFlagRequired("changeset")

	RootCmd.AddCommand(revertCmd)
}

func runRevert(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if revertComment == "" && revertOscFile == "" && !revertPrintOsc {
		return fmt.Errorf("a comment is required when uploading")
	}

	api := osmapi.NewClient(cfg.OSM, l)
	op := overpass.NewClient(cfg.Overpass, l)

	var archiver *archive.Archiver
	if cfg.Archive.Enabled {
		client, err := archive.NewClient(cfg.Archive)
		if err != nil {
			return fmt.Errorf("failed to connect to archive storage: %w", err)
		}
		archiver = archive.NewArchiver(client, cfg.Archive, l)
	}

	service := revert.NewService(l, api, op, archiver, cfg.Revert, cfg.OSM.URL)

	return service.Run(ctx, revert.Options{
		ChangesetIDs:     revertChangesets,
		Comment:          revertComment,
		QueryFilter:      revertQueryFilter,
		OnlyTags:         revertOnlyTags,
		FixParents:       !revertNoFixParents,
		OscFile:          revertOscFile,
		PrintOsc:         revertPrintOsc,
		Discussion:       revertDiscussion,
		DiscussionTarget: revertDiscussionTarget,
	})
}
