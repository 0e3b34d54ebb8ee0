// Package config loads devworld settings from ~/.devworld/config.json, a
// .env file and DEVWORLD_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

const configFile = "config.json"

// Store backends.
const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// Config holds both server and client settings. The file may contain
// comments and trailing commas.
type Config struct {
	ServerURL  string `json:"server_url"`
	ListenAddr string `json:"listen_addr,omitempty"`
	Token      string `json:"token,omitempty"`
	AdminToken string `json:"admin_token,omitempty"`
	// ListenURL is the event stream the bridge subscribes to; derived from
	// ServerURL if empty.
	ListenURL          string            `json:"listen_url,omitempty"`
	WorkspaceRoot      string            `json:"workspace_root,omitempty"`
	MaxRunsPerSec      float64           `json:"max_runs_per_sec,omitempty"`
	Store              string            `json:"store,omitempty"`
	DataDir            string            `json:"data_dir,omitempty"`
	RedisAddr          string            `json:"redis_addr,omitempty"`
	RedisUsername      string            `json:"redis_username,omitempty"`
	RedisPassword      string            `json:"redis_password,omitempty"`
	RedisKey           string            `json:"redis_key,omitempty"`
	PACFile            string            `json:"pac_file,omitempty"`
	Callers            map[string]string `json:"callers,omitempty"`
	Hostnames          []string          `json:"hostnames,omitempty"`
	Upstream           string            `json:"upstream,omitempty"`
	TLSCertFile        string            `json:"tls_cert,omitempty"`
	TLSKeyFile         string            `json:"tls_key,omitempty"`
	InsecureSkipVerify bool              `json:"insecure_skip_verify,omitempty"`
	LogLevel           string            `json:"log_level,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerURL:     "http://localhost:12345",
		ListenAddr:    ":12345",
		WorkspaceRoot: HomeDir(),
		MaxRunsPerSec: 1,
		Store:         StoreFile,
		Hostnames:     []string{"dev", "d"},
		Upstream:      "localhost:12345",
		LogLevel:      "info",
	}
}

// Load reads the config file (if present) and applies environment overrides.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config at path on top of the defaults. A missing file
// is not an error. Environment variables override file values.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"DEVWORLD_SERVER":         &c.ServerURL,
		"DEVWORLD_LISTEN_ADDR":    &c.ListenAddr,
		"DEVWORLD_TOKEN":          &c.Token,
		"DEVWORLD_ADMIN_TOKEN":    &c.AdminToken,
		"DEVWORLD_LISTEN_URL":     &c.ListenURL,
		"DEVWORLD_WORKSPACE_ROOT": &c.WorkspaceRoot,
		"DEVWORLD_STORE":          &c.Store,
		"DEVWORLD_DATA_DIR":       &c.DataDir,
		"DEVWORLD_REDIS_ADDR":     &c.RedisAddr,
		"DEVWORLD_REDIS_USERNAME": &c.RedisUsername,
		"DEVWORLD_REDIS_PASSWORD": &c.RedisPassword,
		"DEVWORLD_REDIS_KEY":      &c.RedisKey,
		"DEVWORLD_PAC_FILE":       &c.PACFile,
		"DEVWORLD_UPSTREAM":       &c.Upstream,
		"DEVWORLD_TLS_CERT":       &c.TLSCertFile,
		"DEVWORLD_TLS_KEY":        &c.TLSKeyFile,
		"DEVWORLD_LOG_LEVEL":      &c.LogLevel,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("DEVWORLD_MAX_RUNS_PER_SEC"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DEVWORLD_MAX_RUNS_PER_SEC: %w", err)
		}
		c.MaxRunsPerSec = f
	}
	if v := os.Getenv("DEVWORLD_INSECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEVWORLD_INSECURE: %w", err)
		}
		c.InsecureSkipVerify = b
	}
	if v := os.Getenv("DEVWORLD_HOSTNAMES"); v != "" {
		c.Hostnames = splitList(v)
	}
	if v := os.Getenv("DEVWORLD_CALLERS"); v != "" {
		callers, err := ParseCallers(v)
		if err != nil {
			return fmt.Errorf("DEVWORLD_CALLERS: %w", err)
		}
		c.Callers = callers
	}
	return nil
}

// ParseCallers parses "token=identity,token=identity".
func ParseCallers(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range splitList(s) {
		token, identity, ok := strings.Cut(pair, "=")
		token, identity = strings.TrimSpace(token), strings.TrimSpace(identity)
		if !ok || token == "" || identity == "" {
			return nil, fmt.Errorf("malformed caller %q, want token=identity", pair)
		}
		out[token] = identity
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks settings that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.MaxRunsPerSec <= 0 {
		return fmt.Errorf("max_runs_per_sec must be positive, got %v", c.MaxRunsPerSec)
	}
	switch c.Store {
	case StoreFile:
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("redis_addr is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if len(c.Hostnames) == 0 {
		return errors.New("at least one hostname is required")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("tls_cert and tls_key must be set together")
	}
	return nil
}

// EffectiveDataDir returns DataDir or the default under the config dir.
func (c *Config) EffectiveDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return DefaultDataDir()
}

// Endpoint joins an API path onto ServerURL.
func (c *Config) Endpoint(path string) string {
	return strings.TrimSuffix(c.ServerURL, "/") + path
}

// EventStreamURL is the URL the bridge subscribes to.
func (c *Config) EventStreamURL() string {
	if c.ListenURL != "" {
		return c.ListenURL
	}
	return c.Endpoint("/api/listen-open-file")
}

// Save writes cfg to the config file.
func Save(cfg *Config) error {
	return SaveTo(ConfigPath(), cfg)
}

// SaveTo writes cfg as indented JSON readable only by the owner.
func SaveTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}
