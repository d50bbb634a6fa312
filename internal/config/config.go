package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gdamore/tcell/v2"
	"gopkg.in/yaml.v3"
)

const (
	AppName           = "Spotplay CLI"
	AppTagline        = "Terminal preview player"
	AppDescription    = "A terminal music player for Spotify previews with YouTube fallback"
	AppAuthor         = "Ilya Glebov"
	AppAuthorURL      = "https://ilyaglebov.dev"
	AppAuthorURLShort = "ilyaglebov.dev"
	AppProjectURL     = "https://github.com/glebovdev/spotplay-cli"
	AppProjectShort   = "github.com/glebovdev/spotplay-cli"

	ConfigDir      = ".config/spotplay"
	ConfigFileName = "config.yml"
	DefaultVolume  = 70
	MinVolume      = 0
	MaxVolume      = 100

	DefaultMarket             = "US"
	DefaultPreviewCeiling     = 31
	DefaultPollIntervalMs     = 1000
	DefaultErrorClearSeconds  = 10
	MinPollIntervalMs         = 100
	EnvSpotifyClientID        = "SPOTPLAY_SPOTIFY_CLIENT_ID"
	EnvSpotifyClientSecret    = "SPOTPLAY_SPOTIFY_CLIENT_SECRET"
	EnvYouTubeAPIKey          = "SPOTPLAY_YOUTUBE_API_KEY"
	defaultMPVExecutable      = "mpv"
	defaultNotificationsOnOff = true
)

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/spotplay-cli/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

// UserAgent identifies the client in outgoing HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("Spotplay-CLI/%s", AppVersion)
}

type Theme struct {
	Background                string `yaml:"background"`
	Foreground                string `yaml:"foreground"`
	Borders                   string `yaml:"borders"`
	Highlight                 string `yaml:"highlight"`
	MutedVolume               string `yaml:"muted_volume"`
	HeaderBackground          string `yaml:"header_background"`
	TrackListHeaderBackground string `yaml:"track_list_header_background"`
	TrackListHeaderForeground string `yaml:"track_list_header_foreground"`
	HelpBackground            string `yaml:"help_background"`
	HelpForeground            string `yaml:"help_foreground"`
	HelpHotkey                string `yaml:"help_hotkey"`
	FallbackBadge             string `yaml:"fallback_badge"`
	Error                     string `yaml:"error"`
	ModalBackground           string `yaml:"modal_background"`
}

type Spotify struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Market       string `yaml:"market"`
}

type YouTube struct {
	APIKey string `yaml:"api_key"`
}

// Player holds the playback tunables.
type Player struct {
	PreviewCeilingSeconds int    `yaml:"preview_ceiling_seconds"`
	PollIntervalMs        int    `yaml:"poll_interval_ms"`
	ErrorClearSeconds     int    `yaml:"error_clear_seconds"`
	MPVPath               string `yaml:"mpv_path"`
	ResolveStreams        bool   `yaml:"resolve_streams"`
}

type Config struct {
	Volume        int      `yaml:"volume"`
	LastTrack     string   `yaml:"last_track"`
	Autostart     bool     `yaml:"autostart"`
	LibraryDir    string   `yaml:"library_dir"`
	Notifications bool     `yaml:"notifications"`
	Favorites     []string `yaml:"favorites"`
	Spotify       Spotify  `yaml:"spotify"`
	YouTube       YouTube  `yaml:"youtube"`
	Player        Player   `yaml:"player"`
	Theme         Theme    `yaml:"theme"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		cfg := DefaultConfig()
		cfg.applyEnv()
		return cfg, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		cfg := DefaultConfig()
		cfg.applyEnv()
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = DefaultConfig()
		cfg.applyEnv()
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Volume = ClampVolume(cfg.Volume)
	cfg.normalize()
	cfg.applyEnv()

	return cfg, nil
}

func (c *Config) normalize() {
	if c.Player.PreviewCeilingSeconds <= 0 {
		c.Player.PreviewCeilingSeconds = DefaultPreviewCeiling
	}
	if c.Player.PollIntervalMs < MinPollIntervalMs {
		c.Player.PollIntervalMs = DefaultPollIntervalMs
	}
	if c.Player.ErrorClearSeconds <= 0 {
		c.Player.ErrorClearSeconds = DefaultErrorClearSeconds
	}
	if c.Player.MPVPath == "" {
		c.Player.MPVPath = defaultMPVExecutable
	}
	if c.Spotify.Market == "" {
		c.Spotify.Market = DefaultMarket
	}
}

// Environment variables win over the file so credentials need not be stored on disk.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvSpotifyClientID); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv(EnvSpotifyClientSecret); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv(EnvYouTubeAPIKey); v != "" {
		c.YouTube.APIKey = v
	}
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Volume:        DefaultVolume,
		LastTrack:     "",
		Autostart:     false,
		Notifications: defaultNotificationsOnOff,
		Favorites:     []string{},
		Spotify: Spotify{
			Market: DefaultMarket,
		},
		Player: Player{
			PreviewCeilingSeconds: DefaultPreviewCeiling,
			PollIntervalMs:        DefaultPollIntervalMs,
			ErrorClearSeconds:     DefaultErrorClearSeconds,
			MPVPath:               defaultMPVExecutable,
			ResolveStreams:        false,
		},
		Theme: Theme{
			Background:                "#121212",
			Foreground:                "#b3b3b3",
			Borders:                   "#282828",
			Highlight:                 "#1db954",
			MutedVolume:               "#fe0702",
			HeaderBackground:          "#181818",
			TrackListHeaderBackground: "#282828",
			TrackListHeaderForeground: "#ffffff",
			HelpBackground:            "#181818",
			HelpForeground:            "#b3b3b3",
			HelpHotkey:                "#1db954",
			FallbackBadge:             "#ff4e45",
			Error:                     "#ef4444",
			ModalBackground:           "#282828",
		},
	}
}

// PreviewCeiling is the longest clip still treated as a preview rather than a full track.
func (c *Config) PreviewCeiling() time.Duration {
	return time.Duration(c.Player.PreviewCeilingSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Player.PollIntervalMs) * time.Millisecond
}

func (c *Config) ErrorClearDelay() time.Duration {
	return time.Duration(c.Player.ErrorClearSeconds) * time.Second
}

// HasSpotifyCredentials reports whether the catalog can be queried.
func (c *Config) HasSpotifyCredentials() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

func (c *Config) IsFavorite(trackID string) bool {
	for _, id := range c.Favorites {
		if id == trackID {
			return true
		}
	}
	return false
}

func (c *Config) ToggleFavorite(trackID string) {
	for i, id := range c.Favorites {
		if id == trackID {
			c.Favorites = append(c.Favorites[:i], c.Favorites[i+1:]...)
			return
		}
	}
	c.Favorites = append(c.Favorites, trackID)
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
