// Package config loads cratemap.yml and CRATEMAP_* environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds the settings for an indexing run.
type Config struct {
	Output           string // report directory; relative paths resolve against the project
	Workers          int
	HotspotThreshold int
	SkipParseErrors  bool
	Strict           bool
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Output:           ".codebase-index",
		Workers:          runtime.NumCPU(),
		HotspotThreshold: 3,
	}
}

// Load reads cratemap.yml from projectRoot when present and applies
// CRATEMAP_* environment overrides on top of the defaults. A missing
// config file is not an error.
func Load(projectRoot string) (Config, error) {
	v := viper.New()
	v.SetConfigName("cratemap")
	v.SetConfigType("yaml")
	v.AddConfigPath(projectRoot)

	v.AutomaticEnv()
	v.SetEnvPrefix("CRATEMAP")

	def := Default()
	v.SetDefault("output", def.Output)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("hotspot_threshold", def.HotspotThreshold)
	v.SetDefault("skip_parse_errors", def.SkipParseErrors)
	v.SetDefault("strict", def.Strict)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read cratemap.yml: %w", err)
		}
	}

	cfg := Config{
		Output:           v.GetString("output"),
		Workers:          v.GetInt("workers"),
		HotspotThreshold: v.GetInt("hotspot_threshold"),
		SkipParseErrors:  v.GetBool("skip_parse_errors"),
		Strict:           v.GetBool("strict"),
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.HotspotThreshold <= 0 {
		cfg.HotspotThreshold = def.HotspotThreshold
	}
	return cfg, nil
}
