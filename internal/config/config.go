// Package config loads the bridge's TOML settings surface. It is a thin
// producer for Bridge.UpdateConfig: it does not validate settings
// semantics, it only decodes the struct (the settings loader is explicitly
// out of scope for the core).
package config

import (
	"fmt"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"

	"analysisbridge/internal/bridge"
)

// MegabytesToBytes converts a config-file megabyte value to a byte count,
// falling back to 0 (unbounded) on overflow or a negative input rather than
// wrapping around to a bogus bound.
func MegabytesToBytes(mb int) int64 {
	scaled, err := safecast.Conv[int64](mb)
	if err != nil || scaled < 0 {
		return 0
	}
	return scaled * 1024 * 1024
}

// fileConfig mirrors bridge.Config with toml tags; bridge.Config itself
// stays free of serialization concerns.
type fileConfig struct {
	Checker struct {
		Enabled       bool     `toml:"enabled"`
		BinaryPath    string   `toml:"binaryPath"`
		Flags         []string `toml:"flags"`
		MaxTypeDepth  int      `toml:"maxTypeDepth"`
		FileTimeoutMs int      `toml:"fileTimeoutMs"`
		MaxMemoryMb   int      `toml:"maxMemoryMb"`
	} `toml:"checker"`

	Linter struct {
		Enabled       bool              `toml:"enabled"`
		BinaryPath    string            `toml:"binaryPath"`
		ConfigPath    string            `toml:"configPath"`
		FileTimeoutMs int               `toml:"fileTimeoutMs"`
		Rules         map[string]string `toml:"rules"`
	} `toml:"linter"`

	Logging struct {
		Level         string `toml:"level"`
		File          string `toml:"file"`
		MaxFileSizeMb int    `toml:"maxFileSizeMb"`
		PrettyPrint   bool   `toml:"prettyPrint"`
	} `toml:"logging"`

	Cache struct {
		Enabled    bool `toml:"enabled"`
		MaxEntries int  `toml:"maxEntries"`
		MaxSizeMb  int  `toml:"maxSizeMb"`
		TTLSeconds int  `toml:"ttlSeconds"`
	} `toml:"cache"`

	Watch struct {
		DebounceMs int `toml:"debounceMs"`
	} `toml:"watch"`

	Inspector struct {
		MaxTraceHistory int `toml:"maxTraceHistory"`
	} `toml:"inspector"`
}

// Load decodes path over bridge.DefaultConfig(), so any [section] or key
// the file omits keeps its documented default.
func Load(path string) (bridge.Config, error) {
	cfg := bridge.DefaultConfig()

	var fc fileConfig
	applyDefaults(&fc, cfg)

	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return bridge.Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}

	return toBridgeConfig(fc), nil
}

// applyDefaults seeds fc with cfg's values so fields absent from the TOML
// file decode to the documented default rather than the zero value.
func applyDefaults(fc *fileConfig, cfg bridge.Config) {
	fc.Checker.Enabled = cfg.Checker.Enabled
	fc.Checker.BinaryPath = cfg.Checker.BinaryPath
	fc.Checker.Flags = cfg.Checker.Flags
	fc.Checker.MaxTypeDepth = cfg.Checker.MaxTypeDepth
	fc.Checker.FileTimeoutMs = cfg.Checker.FileTimeoutMs
	fc.Checker.MaxMemoryMb = cfg.Checker.MaxMemoryMb

	fc.Linter.Enabled = cfg.Linter.Enabled
	fc.Linter.BinaryPath = cfg.Linter.BinaryPath
	fc.Linter.ConfigPath = cfg.Linter.ConfigPath
	fc.Linter.FileTimeoutMs = cfg.Linter.FileTimeoutMs
	fc.Linter.Rules = cfg.Linter.Rules

	fc.Logging.Level = cfg.Logging.Level
	fc.Logging.File = cfg.Logging.File
	fc.Logging.MaxFileSizeMb = cfg.Logging.MaxFileSizeMb
	fc.Logging.PrettyPrint = cfg.Logging.PrettyPrint

	fc.Cache.Enabled = cfg.Cache.Enabled
	fc.Cache.MaxEntries = cfg.Cache.MaxEntries
	fc.Cache.MaxSizeMb = cfg.Cache.MaxSizeMb
	fc.Cache.TTLSeconds = cfg.Cache.TTLSeconds

	fc.Watch.DebounceMs = cfg.Watch.DebounceMs

	fc.Inspector.MaxTraceHistory = cfg.Inspector.MaxTraceHistory
}

func toBridgeConfig(fc fileConfig) bridge.Config {
	return bridge.Config{
		Checker: bridge.CheckerConfig{
			Enabled:       fc.Checker.Enabled,
			BinaryPath:    fc.Checker.BinaryPath,
			Flags:         fc.Checker.Flags,
			MaxTypeDepth:  fc.Checker.MaxTypeDepth,
			FileTimeoutMs: fc.Checker.FileTimeoutMs,
			MaxMemoryMb:   fc.Checker.MaxMemoryMb,
		},
		Linter: bridge.LinterConfig{
			Enabled:       fc.Linter.Enabled,
			BinaryPath:    fc.Linter.BinaryPath,
			ConfigPath:    fc.Linter.ConfigPath,
			FileTimeoutMs: fc.Linter.FileTimeoutMs,
			Rules:         fc.Linter.Rules,
		},
		Logging: bridge.LoggingConfig{
			Level:         fc.Logging.Level,
			File:          fc.Logging.File,
			MaxFileSizeMb: fc.Logging.MaxFileSizeMb,
			PrettyPrint:   fc.Logging.PrettyPrint,
		},
		Cache: bridge.CacheConfig{
			Enabled:    fc.Cache.Enabled,
			MaxEntries: fc.Cache.MaxEntries,
			MaxSizeMb:  fc.Cache.MaxSizeMb,
			TTLSeconds: fc.Cache.TTLSeconds,
		},
		Watch: bridge.WatchConfig{
			DebounceMs: fc.Watch.DebounceMs,
		},
		Inspector: bridge.InspectorConfig{
			MaxTraceHistory: fc.Inspector.MaxTraceHistory,
		},
	}
}
