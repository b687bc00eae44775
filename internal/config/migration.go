package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// MigrationResult describes an upgrade from an older configuration
// version. Changes lists rewritten settings; Warnings lists settings that
// were dropped.
type MigrationResult struct {
	FromVersion int
	ToVersion   int
	Backup      string
	Changes     []string
	Warnings    []string
}

func (r *MigrationResult) change(format string, args ...any) {
	r.Changes = append(r.Changes, fmt.Sprintf(format, args...))
}

func (r *MigrationResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// upgrades[v] moves a configuration from version v to v+1. Version 0 is a
// file written without a version key and is treated as version 1.
var upgrades = map[int]func(*Config, *MigrationResult){
	0: intervalToMilliseconds,
	1: intervalToMilliseconds,
}

// MigrateConfig upgrades cfg in place to Version. It returns nil when cfg
// is already current.
func MigrateConfig(cfg *Config) (*MigrationResult, error) {
	if cfg.Version >= Version {
		return nil, nil
	}

	result := &MigrationResult{FromVersion: cfg.Version, ToVersion: Version}
	for cfg.Version < Version {
		step, ok := upgrades[cfg.Version]
		if !ok {
			return result, fmt.Errorf("no upgrade from config version %d", cfg.Version)
		}
		step(cfg, result)
		if cfg.Version == 0 {
			cfg.Version = 1
		}
		cfg.Version++
	}
	return result, nil
}

// intervalToMilliseconds replaces the version 1 playback.interval_sec,
// fractional seconds, with playback.interval_ms.
func intervalToMilliseconds(cfg *Config, r *MigrationResult) {
	sec := cfg.Playback.IntervalSec
	if sec == 0 {
		return
	}
	cfg.Playback.IntervalSec = 0
	if sec < 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		r.warn("dropped invalid playback.interval_sec %v", sec)
		return
	}
	cfg.Playback.IntervalMs = int(math.Round(sec * 1000))
	r.change("playback.interval_sec %v -> playback.interval_ms %d", sec, cfg.Playback.IntervalMs)
}

// MigrateFile upgrades the file at path and rewrites it in the current
// version, after copying the original to a timestamped backup. It returns
// nil when the file is already current.
func MigrateFile(path string) (*MigrationResult, error) {
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	if cfg.Version >= Version {
		return nil, nil
	}

	backup, err := backupFile(path)
	if err != nil {
		return nil, err
	}
	result, err := MigrateConfig(cfg)
	if err != nil {
		return result, err
	}
	result.Backup = backup
	return result, SaveConfig(cfg, path)
}

// backupFile copies path to path.backup-<timestamp>. A missing file has
// no backup and yields "".
func backupFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("back up config: %w", err)
	}
	backup := path + ".backup-" + time.Now().Format("20060102-150405")
	if err := os.WriteFile(backup, data, 0o600); err != nil {
		return "", fmt.Errorf("back up config: %w", err)
	}
	return backup, nil
}

// Encode renders the configuration in the format named by ext
// (".toml", ".json", ".yaml"); unknown extensions use TOML.
func Encode(cfg *Config, ext string) ([]byte, error) {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	var buf bytes.Buffer
	switch ext {
	case ".json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	default:
		buf.WriteString("# macrorec configuration\n\n")
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// SaveConfig writes cfg to path, in the format given by its extension,
// through a temporary file so readers never see a partial file.
func SaveConfig(cfg *Config, path string) error {
	data, err := Encode(cfg, filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}
