package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Browser     BrowserConfig   `toml:"browser"`
	Portal      PortalConfig    `toml:"portal"`
	Refresh     RefreshConfig   `toml:"refresh"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Snapshots   SnapshotsConfig `toml:"snapshots"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level         string   `toml:"level"`           // "debug", "info", "warn", "error"
	Format        string   `toml:"format"`          // "json" or "text"
	Output        []string `toml:"output"`          // "stdout", "file"
	MinEventLevel string   `toml:"min_event_level"` // Minimum log level to broadcast to WebSocket clients
}

// BrowserConfig contains the automated browsing context configuration.
// Headless/visible is an explicit setting passed into session construction,
// never a process-wide flag.
type BrowserConfig struct {
	Headless        bool          `toml:"headless"`         // Run Chrome headless (default: true)
	NoSandbox       bool          `toml:"no_sandbox"`       // Disable Chrome sandbox (required in most containers)
	DisableGPU      bool          `toml:"disable_gpu"`      // Disable GPU acceleration
	UserAgent       string        `toml:"user_agent"`       // User agent string presented to the portal
	WindowWidth     int           `toml:"window_width"`     // Viewport width
	WindowHeight    int           `toml:"window_height"`    // Viewport height
	NavigateTimeout time.Duration `toml:"navigate_timeout"` // Per-navigation deadline
	FieldTimeout    time.Duration `toml:"field_timeout"`    // Whole-field selector resolution budget
	SettleDelay     time.Duration `toml:"settle_delay"`     // Fixed post-submit settle wait, never a network-idle wait
	SubmitTimeout   time.Duration `toml:"submit_timeout"`   // Deadline for the whole submit-and-settle step
}

// PortalConfig points at the portal profile and carries optional
// operator-supplied credentials for scheduled refresh. The service itself
// never persists credentials.
type PortalConfig struct {
	ProfilePath      string        `toml:"profile_path"`       // Optional YAML profile overriding the built-in portal definition
	Username         string        `toml:"username"`           // Used only by scheduled refresh
	Password         string        `toml:"password"`           // Used only by scheduled refresh
	MinLoginInterval time.Duration `toml:"min_login_interval"` // Minimum spacing between automated login attempts
	CookieMaxAge     time.Duration `toml:"cookie_max_age"`     // Age after which a stored record is reported stale
}

// RefreshConfig controls periodic automated re-login.
type RefreshConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule format
}

// WebSocketConfig contains configuration for the flow-event stream
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level"`        // Minimum log level to broadcast ("debug", "info", "warn", "error")
	ExcludePatterns []string `toml:"exclude_patterns"` // Log message patterns to exclude from broadcasting
	// Throttle intervals for high-frequency events. Map of event type to duration string.
	// Example: {"flow_state_changed": "250ms"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// SnapshotsConfig controls page snapshots captured on terminal failures.
type SnapshotsConfig struct {
	Enabled  bool   `toml:"enabled"`   // Save a markdown snapshot of the page on field_not_found/failed
	Dir      string `toml:"dir"`       // Snapshot directory
	MaxFiles int    `toml:"max_files"` // Oldest snapshots beyond this count are pruned
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in clavis.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "text",
			Output:        []string{"stdout", "file"},
			MinEventLevel: "info",
		},
		Browser: BrowserConfig{
			Headless:        true,
			NoSandbox:       true, // Container deployments; harmless on a workstation
			DisableGPU:      true,
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			WindowWidth:     1920,
			WindowHeight:    1080,
			NavigateTimeout: 30 * time.Second,
			FieldTimeout:    10 * time.Second,
			SettleDelay:     3 * time.Second,
			SubmitTimeout:   45 * time.Second,
		},
		Portal: PortalConfig{
			MinLoginInterval: 30 * time.Second,
			CookieMaxAge:     6 * time.Hour, // Matches the default refresh cadence
		},
		Refresh: RefreshConfig{
			Enabled:  false,         // Disabled by default - user must explicitly opt-in
			Schedule: "0 */6 * * *", // Every 6 hours
		},
		WebSocket: WebSocketConfig{
			MinLevel: "info",
			ExcludePatterns: []string{
				"WebSocket client connected",
				"WebSocket client disconnected",
				"HTTP request",
				"HTTP response",
				"Publishing event",
			},
			ThrottleIntervals: map[string]string{
				"flow_state_changed": "250ms",
			},
		},
		Snapshots: SnapshotsConfig{
			Enabled:  false, // Opt-in; snapshots can contain page content
			Dir:      "./data/snapshots",
			MaxFiles: 20,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI. Later files override
// earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Apply environment variables (overrides all file configs)
	applyEnvOverrides(config)

	// Resolve {NAME} references against the environment so credentials can
	// stay out of the config file
	if err := ReplaceInStruct(config, EnvReferenceMap(), GetLogger()); err != nil {
		return nil, fmt.Errorf("failed to resolve key references in config: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: CLAVIS_ENV, fallback: GO_ENV)
	if env := os.Getenv("CLAVIS_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("CLAVIS_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CLAVIS_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("CLAVIS_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("CLAVIS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("CLAVIS_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("CLAVIS_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Browser configuration
	if headless := os.Getenv("CLAVIS_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if noSandbox := os.Getenv("CLAVIS_BROWSER_NO_SANDBOX"); noSandbox != "" {
		if ns, err := strconv.ParseBool(noSandbox); err == nil {
			config.Browser.NoSandbox = ns
		}
	}
	if userAgent := os.Getenv("CLAVIS_BROWSER_USER_AGENT"); userAgent != "" {
		config.Browser.UserAgent = userAgent
	}
	if navigateTimeout := os.Getenv("CLAVIS_BROWSER_NAVIGATE_TIMEOUT"); navigateTimeout != "" {
		if nt, err := time.ParseDuration(navigateTimeout); err == nil {
			config.Browser.NavigateTimeout = nt
		}
	}
	if fieldTimeout := os.Getenv("CLAVIS_BROWSER_FIELD_TIMEOUT"); fieldTimeout != "" {
		if ft, err := time.ParseDuration(fieldTimeout); err == nil {
			config.Browser.FieldTimeout = ft
		}
	}
	if settleDelay := os.Getenv("CLAVIS_BROWSER_SETTLE_DELAY"); settleDelay != "" {
		if sd, err := time.ParseDuration(settleDelay); err == nil {
			config.Browser.SettleDelay = sd
		}
	}

	// Portal configuration
	if profilePath := os.Getenv("CLAVIS_PORTAL_PROFILE"); profilePath != "" {
		config.Portal.ProfilePath = profilePath
	}
	if username := os.Getenv("CLAVIS_PORTAL_USERNAME"); username != "" {
		config.Portal.Username = username
	}
	if password := os.Getenv("CLAVIS_PORTAL_PASSWORD"); password != "" {
		config.Portal.Password = password
	}
	if minInterval := os.Getenv("CLAVIS_PORTAL_MIN_LOGIN_INTERVAL"); minInterval != "" {
		if mi, err := time.ParseDuration(minInterval); err == nil {
			config.Portal.MinLoginInterval = mi
		}
	}
	if maxAge := os.Getenv("CLAVIS_PORTAL_COOKIE_MAX_AGE"); maxAge != "" {
		if ma, err := time.ParseDuration(maxAge); err == nil {
			config.Portal.CookieMaxAge = ma
		}
	}

	// Refresh configuration
	if enabled := os.Getenv("CLAVIS_REFRESH_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Refresh.Enabled = e
		}
	}
	if schedule := os.Getenv("CLAVIS_REFRESH_SCHEDULE"); schedule != "" {
		config.Refresh.Schedule = schedule
	}

	// WebSocket configuration
	if minLevel := os.Getenv("CLAVIS_WEBSOCKET_MIN_LEVEL"); minLevel != "" {
		config.WebSocket.MinLevel = minLevel
	}

	// Snapshots configuration
	if enabled := os.Getenv("CLAVIS_SNAPSHOTS_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Snapshots.Enabled = e
		}
	}
	if dir := os.Getenv("CLAVIS_SNAPSHOTS_DIR"); dir != "" {
		config.Snapshots.Dir = dir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ValidateRefreshSchedule validates a cron schedule expression and ensures
// a minimum 5-minute interval so the portal is not hammered.
func ValidateRefreshSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}
	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		interval, err := strconv.Atoi(intervalStr)
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// DeepCloneConfig creates a deep copy of the Config struct
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c

	if len(c.Logging.Output) > 0 {
		clone.Logging.Output = make([]string, len(c.Logging.Output))
		copy(clone.Logging.Output, c.Logging.Output)
	}

	if len(c.WebSocket.ExcludePatterns) > 0 {
		clone.WebSocket.ExcludePatterns = make([]string, len(c.WebSocket.ExcludePatterns))
		copy(clone.WebSocket.ExcludePatterns, c.WebSocket.ExcludePatterns)
	}

	if len(c.WebSocket.ThrottleIntervals) > 0 {
		clone.WebSocket.ThrottleIntervals = make(map[string]string, len(c.WebSocket.ThrottleIntervals))
		for k, v := range c.WebSocket.ThrottleIntervals {
			clone.WebSocket.ThrottleIntervals[k] = v
		}
	}

	return &clone
}
