// Package config loads courtside settings from config.yaml, COURTSIDE_*
// environment variables and built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	// FileName is the configuration file inside the config directory.
	FileName = "config.yaml"

	// EnvPrefix prefixes environment overrides, e.g. COURTSIDE_API_BASE_URL.
	EnvPrefix = "COURTSIDE"
)

// ErrInvalid wraps every validation failure returned by Load and Parse.
var ErrInvalid = errors.New("invalid config")

// Config keys.
const (
	KeyAPIBaseURL     = "api_base_url"
	KeyWebSocketURL   = "websocket_url"
	KeyToken          = "token"
	KeyDataDir        = "data_dir"
	KeyCacheBackend   = "cache_backend"
	KeyRequestTimeout = "request_timeout"
	KeyRateLimit      = "rate_limit"
	KeyRateBurst      = "rate_burst"
	KeyPollSpec       = "poll_spec"
	KeyPageSize       = "page_size"
	KeyLogLevel       = "log_level"
	KeyLogFile        = "log_file"
)

// Defaults returns the built-in configuration.
func Defaults() types.Config {
	return types.Config{
		APIBaseURL:     "http://localhost:8000/api/v1",
		WebSocketURL:   "ws://localhost:8000/ws",
		CacheBackend:   types.CacheSQLite,
		RequestTimeout: 30 * time.Second,
		RateLimit:      10,
		RateBurst:      5,
		PageSize:       25,
		LogLevel:       "info",
	}
}

const header = `# courtside configuration
# Every key can be overridden with a COURTSIDE_<KEY> environment variable,
# e.g. COURTSIDE_API_BASE_URL. data_dir is also set by --data-dir.

`

// Load reads config.yaml from configDir, creating the directory and a
// default file on first run, and returns the validated configuration. A
// missing config.yaml is not an error.
func Load(configDir string) (types.Config, error) {
	if _, _, err := EnsureDefaultFile(configDir); err != nil {
		return types.Config{}, err
	}

	v := newViper()
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return types.Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v)
}

// Parse reads configuration from YAML bytes, applying defaults and
// environment overrides.
func Parse(data []byte) (types.Config, error) {
	v := newViper()
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return types.Config{}, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault(KeyAPIBaseURL, d.APIBaseURL)
	v.SetDefault(KeyWebSocketURL, d.WebSocketURL)
	v.SetDefault(KeyToken, d.Token)
	v.SetDefault(KeyDataDir, d.DataDir)
	v.SetDefault(KeyCacheBackend, d.CacheBackend)
	v.SetDefault(KeyRequestTimeout, d.RequestTimeout)
	v.SetDefault(KeyRateLimit, d.RateLimit)
	v.SetDefault(KeyRateBurst, d.RateBurst)
	v.SetDefault(KeyPollSpec, d.PollSpec)
	v.SetDefault(KeyPageSize, d.PageSize)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFile, d.LogFile)

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return cfg, nil
}

// EnsureDefaultFile creates configDir and writes a default config.yaml when
// none exists. It returns the file path and whether it was created.
func EnsureDefaultFile(configDir string) (string, bool, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", false, fmt.Errorf("ensure config dir: %w", err)
	}
	path := filepath.Join(configDir, FileName)
	_, err := os.Stat(path)
	if err == nil {
		return path, false, nil
	}
	if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("stat config file: %w", err)
	}

	body, err := yaml.Marshal(Defaults())
	if err != nil {
		return "", false, fmt.Errorf("encode default config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(header), body...), 0o644); err != nil {
		return "", false, fmt.Errorf("write default config: %w", err)
	}
	return path, true, nil
}
