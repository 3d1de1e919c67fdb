package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// globalSettings are process-wide defaults, layered over per-invocation
// flags: the auto-snapshot staleness threshold and whether the askpass
// broker is enabled. These live outside any one repository, unlike the
// per-project metadata in internal/state.
type globalSettings struct {
	v *viper.Viper

	AutoSnapshotThreshold time.Duration
	AskpassEnabled        bool
}

const (
	defaultAutoSnapshotThreshold = 5 * time.Minute
	defaultAskpassEnabled        = true
)

// loadGlobalSettings reads "config.toml" from dir (typically
// $XDG_CONFIG_HOME/but, overridden by callers for tests), falling back
// to built-in defaults for anything unset.
func loadGlobalSettings(dir string) (*globalSettings, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)

	v.SetDefault("auto_snapshot_threshold", defaultAutoSnapshotThreshold.String())
	v.SetDefault("askpass_enabled", defaultAskpassEnabled)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	threshold, err := time.ParseDuration(v.GetString("auto_snapshot_threshold"))
	if err != nil {
		threshold = defaultAutoSnapshotThreshold
	}

	return &globalSettings{
		v:                     v,
		AutoSnapshotThreshold: threshold,
		AskpassEnabled:        v.GetBool("askpass_enabled"),
	}, nil
}

// defaultConfigDir returns the directory loadGlobalSettings reads from
// by default, honoring GITBUTLER_CLI_DATA_DIR per spec §6.
func defaultConfigDir() string {
	if dir := os.Getenv("GITBUTLER_CLI_DATA_DIR"); dir != "" {
		return dir
	}
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(cfg, "but")
}
