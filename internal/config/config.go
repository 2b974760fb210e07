// Package config loads application settings from a .env file and environment
// variables. Environment variables always take precedence over .env values.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the server settings.
type Config struct {
	// Upstream timing source.
	SourceURL      string
	SourceInterval time.Duration
	SourceTimeout  time.Duration

	// HTTP listen address.
	ListenAddr string

	Debug bool
}

// ViewerConfig holds the viewer settings. Display parameters are purely
// local; two viewers may run with different values.
type ViewerConfig struct {
	// Server websocket endpoint and reconnect cadence.
	ServerURL      string
	ReconnectEvery time.Duration

	// Render scheduler wall-clock budget per application cycle.
	RenderBudget time.Duration

	// Mass-start grouping parameters.
	GroupGapSeconds float64
	MaxGroups       int

	// Local state database; empty disables persistence.
	StatePath string

	Debug bool
}

// Load reads server configuration.
func Load() *Config {
	v := newViper()

	v.SetDefault("DATA_SOURCE_URL", "http://localhost:8080/api/data")
	v.SetDefault("DATA_SOURCE_INTERVAL", "1s")
	v.SetDefault("DATA_SOURCE_TIMEOUT", "10s")
	v.SetDefault("LISTEN_ADDR", ":8000")
	v.SetDefault("DEBUG", false)

	return &Config{
		SourceURL:      v.GetString("DATA_SOURCE_URL"),
		SourceInterval: v.GetDuration("DATA_SOURCE_INTERVAL"),
		SourceTimeout:  v.GetDuration("DATA_SOURCE_TIMEOUT"),
		ListenAddr:     v.GetString("LISTEN_ADDR"),
		Debug:          v.GetBool("DEBUG"),
	}
}

// LoadViewer reads viewer configuration.
func LoadViewer() *ViewerConfig {
	v := newViper()

	v.SetDefault("SERVER_WS_URL", "ws://localhost:8000/ws")
	v.SetDefault("RECONNECT_INTERVAL", "5s")
	v.SetDefault("RENDER_BUDGET", "50ms")
	v.SetDefault("GROUP_GAP_SECONDS", 2.0)
	v.SetDefault("MAX_GROUPS", 8)
	v.SetDefault("VIEWER_STATE_PATH", "viewer-state.db")
	v.SetDefault("DEBUG", false)

	return &ViewerConfig{
		ServerURL:       v.GetString("SERVER_WS_URL"),
		ReconnectEvery:  v.GetDuration("RECONNECT_INTERVAL"),
		RenderBudget:    v.GetDuration("RENDER_BUDGET"),
		GroupGapSeconds: v.GetFloat64("GROUP_GAP_SECONDS"),
		MaxGroups:       v.GetInt("MAX_GROUPS"),
		StatePath:       v.GetString("VIEWER_STATE_PATH"),
		Debug:           v.GetBool("DEBUG"),
	}
}

func newViper() *viper.Viper {
	// Ignore the error: a missing .env simply means env-only configuration.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}
