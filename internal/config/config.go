// Package config loads application configuration from TOML with
// environment-variable overrides.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Spotify  SpotifyConfig  `toml:"spotify"`
	Database DatabaseConfig `toml:"database"`
	Lastfm   LastfmConfig   `toml:"lastfm"`
	Mixing   MixingConfig   `toml:"mixing"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr        string `toml:"addr"`
	RedirectURL string `toml:"redirect_url"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// LastfmConfig contains Last.fm API credentials.
type LastfmConfig struct {
	APIKey string `toml:"api_key"`
}

// MixingConfig contains tunables for mix generation.
type MixingConfig struct {
	RateLimitPerSecond float64 `toml:"rate_limit_per_second"`
	EnrichConcurrency  int     `toml:"enrich_concurrency"`
}

// Load reads the config file at path, falling back to embedded defaults
// when the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config.applyEnv()
	return config, nil
}

// Default returns a Config built from the embedded example config.
func Default() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("parsing embedded default config: %v", err))
	}
	return &config
}

// WriteExample creates a config file at the specified path from the
// embedded example config.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// applyEnv overrides file values with environment variables, which win
// over the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("SPOTIFY_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		c.Lastfm.APIKey = v
	}
	if v := os.Getenv("BLENDFM_ADDR"); v != "" {
		c.Server.Addr = v
	}
}
