package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	// Streaming server the player resolves tracks against.
	Server ServerConfig `koanf:"server"`

	// Last.fm scrobbling (enables scrobbling when configured)
	Lastfm LastfmConfig `koanf:"lastfm"`

	// Player defaults applied on first run.
	Playback PlaybackConfig `koanf:"playback"`
}

// ServerConfig holds the streaming server connection settings.
type ServerConfig struct {
	URL      string `koanf:"url"` // e.g., "https://music.example.com"
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// LastfmConfig holds Last.fm scrobbling configuration.
type LastfmConfig struct {
	APIKey    string `koanf:"api_key"`
	APISecret string `koanf:"api_secret"`
}

// PlaybackConfig holds playback defaults.
type PlaybackConfig struct {
	Volume       float64 `koanf:"volume"`        // initial volume (0.0-1.0, default: 1.0)
	HistoryDepth int     `koanf:"history_depth"` // undo/redo depth (default: 50)
	CoverSize    int     `koanf:"cover_size"`    // cover art edge in pixels (default: 300)
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	configPaths := getConfigPaths()

	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	// Normalize server URL (remove trailing slash)
	cfg.Server.URL = strings.TrimSuffix(cfg.Server.URL, "/")

	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/sonique/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sonique", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

// HasServerConfig returns true if a streaming server is configured.
func (c *Config) HasServerConfig() bool {
	return c.Server.URL != ""
}

// HasLastfmConfig returns true if Last.fm scrobbling is configured.
func (c *Config) HasLastfmConfig() bool {
	return c.Lastfm.APIKey != "" && c.Lastfm.APISecret != ""
}

// GetPlaybackConfig returns the playback configuration with defaults applied.
func (c *Config) GetPlaybackConfig() PlaybackConfig {
	cfg := c.Playback

	if cfg.Volume <= 0 || cfg.Volume > 1 {
		cfg.Volume = 1.0
	}
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = 50
	}
	if cfg.CoverSize <= 0 {
		cfg.CoverSize = 300
	}

	return cfg
}
