package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// fileConfig is the optional .repotrim.toml at the repository root. It
// supplies defaults for rewrite flags; explicit flags win.
type fileConfig struct {
	MaxBlobSize string `toml:"max_blob_size"`
	Workers     int    `toml:"workers"`
	SignKey     string `toml:"sign_key"`
	Rules       string `toml:"rules"`
}

const configName = ".repotrim.toml"

func loadConfig(root string) (fileConfig, error) {
	var cfg fileConfig
	path := filepath.Join(root, configName)
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("load %s: %w", path, err)
	}
	if cfg.Rules != "" && !filepath.IsAbs(cfg.Rules) {
		cfg.Rules = filepath.Join(root, cfg.Rules)
	}
	return cfg, nil
}
