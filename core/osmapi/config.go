package osmapi

// Config holds the authoritative API connection settings.
type Config struct {
	URL            string `mapstructure:"url" default:"https://www.openstreetmap.org"`
	APIURL         string `mapstructure:"api_url" default:"https://api.openstreetmap.org"`
	AccessToken    string `mapstructure:"access_token" default:""`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" default:"30"`
}
