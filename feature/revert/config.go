package revert

// Config holds the revert policy settings.
type Config struct {
	// Website is advertised in the submission tags, empty to omit.
	Website string `mapstructure:"website" default:""`
	// ModeratorRevertLimit is the edit count above which a user may revert
	// privileged change sets.
	ModeratorRevertLimit int64 `mapstructure:"moderator_revert_limit" default:"2000"`
}
