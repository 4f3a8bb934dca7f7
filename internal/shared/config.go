package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Log         LogConfig         `toml:"log"`
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Export      ExportConfig      `toml:"export"`
	HTTP        HTTPConfig        `toml:"http"`
	Tidal       TidalConfig       `toml:"tidal"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig    `toml:"spotify"`
	Deezer  DeezerConfig     `toml:"deezer"`
	YouTube YouTubeConfig    `toml:"youtube"`
	Tidal   TidalCredentials `toml:"tidal"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	AccessToken  string `toml:"access_token"`
}

// DeezerConfig contains the Deezer API endpoint, optional token and client-side quota.
type DeezerConfig struct {
	BaseURL           string  `toml:"base_url"`
	AccessToken       string  `toml:"access_token"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// YouTubeConfig contains YouTube Music proxy settings.
type YouTubeConfig struct {
	ProxyURL    string `toml:"proxy_url"`
	HeadersPath string `toml:"headers_path"`
}

// TidalCredentials contains Tidal client credentials used for ID mapping.
type TidalCredentials struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	CountryCode  string `toml:"country_code"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ExportConfig controls where and how export documents are produced.
type ExportConfig struct {
	OutputDir string `toml:"output_dir"`
	PageSize  int    `toml:"page_size"`
	Prefetch  bool   `toml:"prefetch"`
}

// HTTPConfig holds the retry policy shared by every upstream client.
type HTTPConfig struct {
	Timeout     time.Duration `toml:"timeout"`
	MaxAttempts int           `toml:"max_attempts"`
	BaseDelay   time.Duration `toml:"base_delay"`
	MaxDelay    time.Duration `toml:"max_delay"`
}

// TidalConfig controls the optional Tidal ID mapping phase.
type TidalConfig struct {
	Enabled           bool    `toml:"enabled"`
	Workers           int     `toml:"workers"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.HTTP.MaxAttempts < 1 {
		return fmt.Errorf("%w: http.max_attempts must be at least 1", ErrInvalidConfig)
	}
	if c.HTTP.BaseDelay < 0 || c.HTTP.MaxDelay < c.HTTP.BaseDelay {
		return fmt.Errorf("%w: http.max_delay must be >= http.base_delay", ErrInvalidConfig)
	}
	if c.Export.PageSize < 1 {
		return fmt.Errorf("%w: export.page_size must be positive", ErrInvalidConfig)
	}
	if c.Tidal.Workers < 1 {
		c.Tidal.Workers = 1
	}
	return nil
}

// ApplyEnv loads .env files (when present) and lets environment variables override credentials.
func (c *Config) ApplyEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}

	overrides := []struct {
		key    string
		target *string
	}{
		{"SPOTIFY_ID", &c.Credentials.Spotify.ClientID},
		{"SPOTIFY_SECRET", &c.Credentials.Spotify.ClientSecret},
		{"SPOTIFY_TOKEN", &c.Credentials.Spotify.AccessToken},
		{"DEEZER_TOKEN", &c.Credentials.Deezer.AccessToken},
		{"TIDAL_CLIENT_ID", &c.Credentials.Tidal.ClientID},
		{"TIDAL_CLIENT_SECRET", &c.Credentials.Tidal.ClientSecret},
		{"YTMUSIC_PROXY_URL", &c.Credentials.YouTube.ProxyURL},
		{"MUSIXPORTER_DB", &c.Database.Path},
		{"MUSIXPORTER_LOG_LEVEL", &c.Log.Level},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.key); ok && v != "" {
			*o.target = v
		}
	}
}

// TidalEnabled reports whether ID mapping can run with the configured credentials.
func (c *Config) TidalEnabled() bool {
	return c.Tidal.Enabled && c.Credentials.Tidal.ClientID != "" && c.Credentials.Tidal.ClientSecret != ""
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
