package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.True(t, config.Browser.Headless)
	assert.Equal(t, 30*time.Second, config.Portal.MinLoginInterval)
	assert.Equal(t, 6*time.Hour, config.Portal.CookieMaxAge)
	assert.False(t, config.Refresh.Enabled)
	assert.Equal(t, "0 */6 * * *", config.Refresh.Schedule)
	assert.Equal(t, "info", config.WebSocket.MinLevel)
	assert.Equal(t, "250ms", config.WebSocket.ThrottleIntervals["flow_state_changed"])
	assert.False(t, config.Snapshots.Enabled)
}

func TestLoadFromFiles_MergeOrder(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
[server]
port = 9000
host = "base-host"
`), 0644))

	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(override, []byte(`
[server]
port = 9001
`), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	// Later file wins where it speaks; earlier file holds elsewhere
	assert.Equal(t, 9001, config.Server.Port)
	assert.Equal(t, "base-host", config.Server.Host)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	t.Setenv("CLAVIS_SERVER_PORT", "9100")
	t.Setenv("CLAVIS_PORTAL_MIN_LOGIN_INTERVAL", "45s")
	t.Setenv("CLAVIS_PORTAL_COOKIE_MAX_AGE", "2h")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, 45*time.Second, config.Portal.MinLoginInterval)
	assert.Equal(t, 2*time.Hour, config.Portal.CookieMaxAge)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 9200, "0.0.0.0")
	assert.Equal(t, 9200, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	// Zero values leave the config untouched
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 9200, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}

func TestValidateRefreshSchedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"every 6 hours", "0 */6 * * *", false},
		{"daily at 3am", "0 3 * * *", false},
		{"every 15 minutes", "*/15 * * * *", false},
		{"every minute rejected", "* * * * *", true},
		{"every 2 minutes rejected", "*/2 * * * *", true},
		{"garbage rejected", "not a cron", true},
		{"too few fields", "0 3 *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRefreshSchedule(tt.schedule)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
