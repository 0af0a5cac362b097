package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tanq16/refetch/internal/utils"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "REFETCH_"

const (
	ConflictOverwrite = "overwrite"
	ConflictAbort     = "abort"
	ConflictAsk       = "ask"
)

// Config is everything the CLI needs to build an engine. Flags override
// values from the environment, which override the config file.
type Config struct {
	URL          string        `yaml:"url"`
	TargetDir    string        `yaml:"target_dir"`
	DeleteDelay  int           `yaml:"delete_delay"`
	OnConflict   string        `yaml:"on_conflict"`
	ChunkSize    int           `yaml:"chunk_size"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	HTTP         HTTPConfig    `yaml:"http"`
}

type HTTPConfig struct {
	Timeout       time.Duration     `yaml:"timeout"`
	KeepAlive     time.Duration     `yaml:"keep_alive"`
	Proxy         string            `yaml:"proxy"`
	ProxyUsername string            `yaml:"proxy_username"`
	ProxyPassword string            `yaml:"proxy_password"`
	UserAgent     string            `yaml:"user_agent"`
	Token         string            `yaml:"token"`
	Headers       map[string]string `yaml:"headers"`
	LargeBuffers  bool              `yaml:"large_buffers"`
}

func Default() Config {
	return Config{
		TargetDir:    ".",
		OnConflict:   ConflictOverwrite,
		ChunkSize:    utils.DefaultChunkSize,
		RetryBackoff: utils.DefaultRetryBackoff,
		HTTP: HTTPConfig{
			Timeout:   3 * time.Minute,
			KeepAlive: 90 * time.Second,
			UserAgent: utils.ToolUserAgent,
		},
	}
}

// yamlConfig keeps durations as strings so "5s" style values parse.
type yamlConfig struct {
	URL          string         `yaml:"url"`
	TargetDir    string         `yaml:"target_dir"`
	DeleteDelay  int            `yaml:"delete_delay"`
	OnConflict   string         `yaml:"on_conflict"`
	ChunkSize    int            `yaml:"chunk_size"`
	RetryBackoff string         `yaml:"retry_backoff"`
	HTTP         yamlHTTPConfig `yaml:"http"`
}

type yamlHTTPConfig struct {
	Timeout       string            `yaml:"timeout"`
	KeepAlive     string            `yaml:"keep_alive"`
	Proxy         string            `yaml:"proxy"`
	ProxyUsername string            `yaml:"proxy_username"`
	ProxyPassword string            `yaml:"proxy_password"`
	UserAgent     string            `yaml:"user_agent"`
	Token         string            `yaml:"token"`
	Headers       map[string]string `yaml:"headers"`
	LargeBuffers  bool              `yaml:"large_buffers"`
}

func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	override := Config{
		URL:         yc.URL,
		TargetDir:   yc.TargetDir,
		DeleteDelay: yc.DeleteDelay,
		OnConflict:  yc.OnConflict,
		ChunkSize:   yc.ChunkSize,
		HTTP: HTTPConfig{
			Proxy:         yc.HTTP.Proxy,
			ProxyUsername: yc.HTTP.ProxyUsername,
			ProxyPassword: yc.HTTP.ProxyPassword,
			UserAgent:     yc.HTTP.UserAgent,
			Token:         yc.HTTP.Token,
			Headers:       yc.HTTP.Headers,
			LargeBuffers:  yc.HTTP.LargeBuffers,
		},
	}
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"retry_backoff", yc.RetryBackoff, &override.RetryBackoff},
		{"http.timeout", yc.HTTP.Timeout, &override.HTTP.Timeout},
		{"http.keep_alive", yc.HTTP.KeepAlive, &override.HTTP.KeepAlive},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return Default().Merge(override), nil
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv applies REFETCH_* variables onto c.
func (c *Config) LoadFromEnv() error {
	strs := map[string]*string{
		"URL":            &c.URL,
		"TARGET_DIR":     &c.TargetDir,
		"ON_CONFLICT":    &c.OnConflict,
		"PROXY":          &c.HTTP.Proxy,
		"PROXY_USERNAME": &c.HTTP.ProxyUsername,
		"PROXY_PASSWORD": &c.HTTP.ProxyPassword,
		"USER_AGENT":     &c.HTTP.UserAgent,
		"TOKEN":          &c.HTTP.Token,
	}
	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	ints := map[string]*int{
		"DELETE_DELAY": &c.DeleteDelay,
		"CHUNK_SIZE":   &c.ChunkSize,
	}
	for key, dst := range ints {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}
	durations := map[string]*time.Duration{
		"RETRY_BACKOFF": &c.RetryBackoff,
		"TIMEOUT":       &c.HTTP.Timeout,
		"KEEP_ALIVE":    &c.HTTP.KeepAlive,
	}
	for key, dst := range durations {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}
	if v := os.Getenv(EnvPrefix + "LARGE_BUFFERS"); v != "" {
		c.HTTP.LargeBuffers = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvPrefix + "HEADERS"); v != "" {
		if c.HTTP.Headers == nil {
			c.HTTP.Headers = make(map[string]string)
		}
		for k, val := range utils.ParseHeaderArgs(strings.Split(v, ";")) {
			c.HTTP.Headers[k] = val
		}
	}
	return nil
}

// Merge returns c with the non-zero fields of override applied. Headers are
// merged key by key.
func (c Config) Merge(override Config) Config {
	if override.URL != "" {
		c.URL = override.URL
	}
	if override.TargetDir != "" {
		c.TargetDir = override.TargetDir
	}
	if override.DeleteDelay != 0 {
		c.DeleteDelay = override.DeleteDelay
	}
	if override.OnConflict != "" {
		c.OnConflict = override.OnConflict
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.RetryBackoff != 0 {
		c.RetryBackoff = override.RetryBackoff
	}
	if override.HTTP.Timeout != 0 {
		c.HTTP.Timeout = override.HTTP.Timeout
	}
	if override.HTTP.KeepAlive != 0 {
		c.HTTP.KeepAlive = override.HTTP.KeepAlive
	}
	if override.HTTP.Proxy != "" {
		c.HTTP.Proxy = override.HTTP.Proxy
	}
	if override.HTTP.ProxyUsername != "" {
		c.HTTP.ProxyUsername = override.HTTP.ProxyUsername
	}
	if override.HTTP.ProxyPassword != "" {
		c.HTTP.ProxyPassword = override.HTTP.ProxyPassword
	}
	if override.HTTP.UserAgent != "" {
		c.HTTP.UserAgent = override.HTTP.UserAgent
	}
	if override.HTTP.Token != "" {
		c.HTTP.Token = override.HTTP.Token
	}
	if override.HTTP.LargeBuffers {
		c.HTTP.LargeBuffers = true
	}
	if len(override.HTTP.Headers) > 0 {
		merged := make(map[string]string, len(c.HTTP.Headers)+len(override.HTTP.Headers))
		for k, v := range c.HTTP.Headers {
			merged[k] = v
		}
		for k, v := range override.HTTP.Headers {
			merged[k] = v
		}
		c.HTTP.Headers = merged
	}
	return c
}

// Validate checks everything except the URL, which may still be set later
// from the interactive menu. Use ValidateURL before starting a download.
func (c *Config) Validate() error {
	if c.DeleteDelay < 0 || c.DeleteDelay > utils.MaxDeleteDelay {
		return fmt.Errorf("config: delete_delay must be between 0 and %d seconds", utils.MaxDeleteDelay)
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.RetryBackoff < 0 {
		return errors.New("config: retry_backoff must not be negative")
	}
	switch c.OnConflict {
	case ConflictOverwrite, ConflictAbort, ConflictAsk:
	default:
		return fmt.Errorf("config: on_conflict must be %s, %s or %s", ConflictOverwrite, ConflictAbort, ConflictAsk)
	}
	return nil
}

func (c *Config) ValidateURL() error {
	if !utils.ValidateURL(c.URL) {
		return fmt.Errorf("%w: %q", utils.ErrInvalidURL, c.URL)
	}
	return nil
}

func (c *Config) Download() utils.DownloadConfig {
	return utils.DownloadConfig{URL: strings.TrimSpace(c.URL), TargetDir: c.TargetDir, DeleteDelay: c.DeleteDelay}
}

func (c *Config) Client() utils.HTTPClientConfig {
	return utils.HTTPClientConfig{
		Timeout:       c.HTTP.Timeout,
		KATimeout:     c.HTTP.KeepAlive,
		ProxyURL:      c.HTTP.Proxy,
		ProxyUsername: c.HTTP.ProxyUsername,
		ProxyPassword: c.HTTP.ProxyPassword,
		UserAgent:     c.HTTP.UserAgent,
		BearerToken:   c.HTTP.Token,
		Headers:       c.HTTP.Headers,
		LargeBuffers:  c.HTTP.LargeBuffers,
	}
}
