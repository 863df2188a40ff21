// Package bridge implements the Analysis Bridge: the dispatcher sitting
// between the editor-facing caller and the checker/linter pools, owning
// the result cache, dependency graph, tracer, and structured logger.
package bridge

// CheckerConfig is the checker group of the configuration surface.
type CheckerConfig struct {
	Enabled       bool
	BinaryPath    string
	Flags         []string
	MaxTypeDepth  int
	FileTimeoutMs int
	MaxMemoryMb   int
}

// LinterConfig is the linter group of the configuration surface.
type LinterConfig struct {
	Enabled       bool
	BinaryPath    string
	ConfigPath    string
	FileTimeoutMs int
	Rules         map[string]string // rule name -> severity override (disable/warn/deny)
}

// RuleSlices splits Rules into the three argv-shaped buckets
// linterpool.Config expects, one per override kind. An override value
// other than "disable"/"warn"/"deny" is ignored.
func (c LinterConfig) RuleSlices() (disabled, warn, deny []string) {
	for rule, override := range c.Rules {
		switch override {
		case "disable":
			disabled = append(disabled, rule)
		case "warn":
			warn = append(warn, rule)
		case "deny":
			deny = append(deny, rule)
		}
	}
	return disabled, warn, deny
}

// LoggingConfig is the logging group of the configuration surface.
type LoggingConfig struct {
	Level         string
	File          string
	MaxFileSizeMb int
	PrettyPrint   bool
}

// CacheConfig is the cache group of the configuration surface.
type CacheConfig struct {
	Enabled     bool
	MaxEntries  int
	MaxSizeMb   int
	TTLSeconds  int
}

// WatchConfig is exposed for callers; it does not affect cache keys.
type WatchConfig struct {
	DebounceMs int
}

// InspectorConfig is the inspector group of the configuration surface.
type InspectorConfig struct {
	MaxTraceHistory int
}

// Config is the full hot-reloadable configuration surface spec.md §6
// enumerates.
type Config struct {
	Checker   CheckerConfig
	Linter    LinterConfig
	Logging   LoggingConfig
	Cache     CacheConfig
	Watch     WatchConfig
	Inspector InspectorConfig
}

// DefaultConfig returns the documented defaults for every group.
func DefaultConfig() Config {
	return Config{
		Checker: CheckerConfig{
			Enabled:       true,
			FileTimeoutMs: 30_000,
			MaxTypeDepth:  30,
		},
		Linter: LinterConfig{
			Enabled:       true,
			FileTimeoutMs: 30_000,
		},
		Logging: LoggingConfig{
			Level:         "info",
			MaxFileSizeMb: 10,
			PrettyPrint:   true,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 500,
			MaxSizeMb:  64,
			TTLSeconds: 300,
		},
		Watch: WatchConfig{
			DebounceMs: 300,
		},
		Inspector: InspectorConfig{
			MaxTraceHistory: 1000,
		},
	}
}
