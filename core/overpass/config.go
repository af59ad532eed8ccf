package overpass

// Config holds configuration for the Overpass mirrors.
type Config struct {
	// URLs is a space-separated list of mirror base URLs, tried in order.
	URLs string `mapstructure:"urls" default:"https://overpass-api.de/api https://overpass.private.coffee/api"`
	// TimeoutSeconds is the per-request timeout; diff queries can be slow.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"300"`
	// RevertToDate optionally widens the lower bound of the history window
	// so elements are reverted to their state at this date instead of just
	// before the target edit.
	RevertToDate string `mapstructure:"revert_to_date" default:""`
	// StrictVersions enables strict version validation of reconstructed
	// histories. Off by default: version skips are expected when unrelated
	// change sets touch the same elements at the same time.
	StrictVersions bool `mapstructure:"strict_versions" default:"false"`
}
