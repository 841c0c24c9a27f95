package types

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds everything a courtside client needs to reach the federation
// backend and where to keep local state.
type Config struct {
	APIBaseURL     string        `json:"api_base_url" yaml:"api_base_url" mapstructure:"api_base_url"`
	WebSocketURL   string        `json:"websocket_url" yaml:"websocket_url" mapstructure:"websocket_url"`
	Token          string        `json:"token" yaml:"token,omitempty" mapstructure:"token"`
	DataDir        string        `json:"data_dir" yaml:"data_dir,omitempty" mapstructure:"data_dir"`
	CacheBackend   string        `json:"cache_backend" yaml:"cache_backend" mapstructure:"cache_backend"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`
	RateLimit      float64       `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst      int           `json:"rate_burst" yaml:"rate_burst" mapstructure:"rate_burst"`
	PollSpec       string        `json:"poll_spec" yaml:"poll_spec,omitempty" mapstructure:"poll_spec"`
	PageSize       int           `json:"page_size" yaml:"page_size" mapstructure:"page_size"`
	LogLevel       string        `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogFile        string        `json:"log_file" yaml:"log_file,omitempty" mapstructure:"log_file"`
}

// Cache backends.
const (
	CacheSQLite = "sqlite"
	CacheJSONL  = "jsonl"
	CacheMemory = "memory"
)

// Config validation errors.
var (
	ErrAPIBaseURLEmpty   = errors.New("api base URL must not be empty")
	ErrAPIBaseURLInvalid = errors.New("api base URL must be an absolute http(s) URL")
	ErrWebSocketInvalid  = errors.New("websocket URL must be an absolute ws(s) URL")
	ErrRateLimitInvalid  = errors.New("rate limit must not be negative")
	ErrPageSizeInvalid   = errors.New("page size must be positive")
	ErrPollSpecInvalid   = errors.New("invalid poll schedule")

	ErrCacheBackendInvalid = errors.New("cache backend must be sqlite, jsonl or memory")
)

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return ErrAPIBaseURLEmpty
	}
	if !hasScheme(c.APIBaseURL, "http", "https") {
		return ErrAPIBaseURLInvalid
	}
	if c.WebSocketURL != "" && !hasScheme(c.WebSocketURL, "ws", "wss") {
		return ErrWebSocketInvalid
	}
	if c.RateLimit < 0 {
		return ErrRateLimitInvalid
	}
	if c.PageSize <= 0 {
		return ErrPageSizeInvalid
	}
	switch c.CacheBackend {
	case "", CacheSQLite, CacheJSONL, CacheMemory:
	default:
		return fmt.Errorf("%w: %q", ErrCacheBackendInvalid, c.CacheBackend)
	}
	if c.PollSpec != "" {
		if _, err := cron.ParseStandard(c.PollSpec); err != nil {
			return fmt.Errorf("%w: %v", ErrPollSpecInvalid, err)
		}
	}
	return nil
}

func hasScheme(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}
