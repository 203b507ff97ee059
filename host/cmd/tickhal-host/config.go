package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig is the optional TOML configuration. Flags given on the command
// line win over the file.
type fileConfig struct {
	Device        string `toml:"device"`
	Baud          int    `toml:"baud"`
	ReadTimeoutMs int    `toml:"read_timeout_ms"`
	CallTimeoutS  int    `toml:"call_timeout_s"`
	LogLevel      *int   `toml:"log_level"`

	Drift driftConfig `toml:"drift"`
}

type driftConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Device:        "/dev/ttyACM0",
		Baud:          250000,
		ReadTimeoutMs: 100,
		CallTimeoutS:  5,
		Drift: driftConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
	}
}

func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("config %s: unsupported key [%s]", path, undecoded[0])
	}
	if cfg.Baud <= 0 || cfg.ReadTimeoutMs < 0 || cfg.CallTimeoutS <= 0 {
		return cfg, fmt.Errorf("config %s: baud, read_timeout_ms and call_timeout_s must be positive", path)
	}
	return cfg, nil
}

func (c fileConfig) callTimeout() time.Duration {
	return time.Duration(c.CallTimeoutS) * time.Second
}
