// Package config provides configuration management for the revert tool.
//
// It utilizes Viper for loading configuration from environment variables
// and an optional .env file.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Log: Logging level and format
//   - OSM: Editing API endpoint and access token
//   - Overpass: History mirror URLs and timeouts
//   - Archive: S3/MinIO credentials for change document archival
//   - Revert: Revert policy settings
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Overpass.URLs)
package config
