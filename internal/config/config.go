// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/orphion/orphion/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete Orphion configuration.
type Config struct {
	Inference InferenceConfig `toml:"inference" json:"inference"`
	Search    SearchConfig    `toml:"search" json:"search"`
	Storage   StorageConfig   `toml:"storage" json:"storage"`
	UI        UIConfig        `toml:"ui" json:"ui"`
	Log       LogConfig       `toml:"log" json:"log"`
}

// InferenceConfig configures the chat completion API.
type InferenceConfig struct {
	// BaseURL is the OpenAI-compatible API root
	BaseURL string `toml:"base_url" json:"base_url"`
	// APIKey authenticates with the API (prefer ORPHION_API_KEY)
	APIKey string `toml:"api_key" json:"api_key"`
	// Model answers chat messages
	Model string `toml:"model" json:"model"`
	// TitleModel names sessions; empty uses Model
	TitleModel string `toml:"title_model" json:"title_model"`
	// VisionModel describes attached images
	VisionModel string `toml:"vision_model" json:"vision_model"`
	MaxTokens   int    `toml:"max_tokens" json:"max_tokens"`
	MaxRetries  int    `toml:"max_retries" json:"max_retries"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
	// SystemPrompt replaces the built-in system prompt when set
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`
}

// SearchConfig configures web search.
type SearchConfig struct {
	// Provider is "tavily" or "duckduckgo"
	Provider string `toml:"provider" json:"provider"`
	APIKey   string `toml:"api_key" json:"api_key"`
	BaseURL  string `toml:"base_url" json:"base_url"`
	// DefaultMode is "General" or "Deep Search"
	DefaultMode       string  `toml:"default_mode" json:"default_mode"`
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
}

// StorageConfig selects where sessions are kept.
type StorageConfig struct {
	// Backend is "file", "sqlite", "redis" or "memory"
	Backend string `toml:"backend" json:"backend"`
	// DataDir holds the file backend; empty means ~/.orphion/data
	DataDir    string `toml:"data_dir" json:"data_dir"`
	SQLitePath string `toml:"sqlite_path" json:"sqlite_path"`
	RedisAddr  string `toml:"redis_addr" json:"redis_addr"`
	RedisDB    int    `toml:"redis_db" json:"redis_db"`
	// Key is the storage key of the session collection
	Key string `toml:"key" json:"key"`
	// Events enables the cross-process event bridge over Redis
	Events bool `toml:"events" json:"events"`
}

// UIConfig configures terminal rendering.
type UIConfig struct {
	// Width is the render width; 0 means detect
	Width int `toml:"width" json:"width"`
	// CodeStyle is the chroma style for code blocks
	CodeStyle string `toml:"code_style" json:"code_style"`
	// Color is "auto", "always" or "never"
	Color string `toml:"color" json:"color"`
	// ShowReasoning prints model reasoning above answers
	ShowReasoning bool `toml:"show_reasoning" json:"show_reasoning"`
	// Stream prints replies as they arrive
	Stream bool `toml:"stream" json:"stream"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `toml:"level" json:"level"`
	// Format is "console" or "json"
	Format string `toml:"format" json:"format"`
	// File receives log output; empty means stderr
	File string `toml:"file" json:"file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Inference: InferenceConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "openrouter/auto",
			VisionModel: "openai/gpt-4o-mini",
			MaxTokens:   4096,
			MaxRetries:  2,
			TimeoutSecs: 60,
		},
		Search: SearchConfig{
			Provider:          "tavily",
			BaseURL:           "https://api.tavily.com",
			DefaultMode:       "General",
			RequestsPerSecond: 2,
		},
		Storage: StorageConfig{
			Backend:   "file",
			RedisAddr: "127.0.0.1:6379",
			Key:       "orphion.chat_sessions",
		},
		UI: UIConfig{
			CodeStyle: "monokai",
			Color:     "auto",
			Stream:    true,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// HomeEnv overrides the configuration directory.
const HomeEnv = "ORPHION_HOME"

// ConfigDir returns the Orphion configuration directory.
func ConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".orphion"), nil
}

// ConfigPath returns the path of config.toml.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir creates the configuration directory.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}

// ResolvedDataDir returns the file backend directory.
func (c *Config) ResolvedDataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return expandHome(c.Storage.DataDir)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}

// ResolvedSQLitePath returns the SQLite database path.
func (c *Config) ResolvedSQLitePath() (string, error) {
	if c.Storage.SQLitePath != "" {
		return expandHome(c.Storage.SQLitePath)
	}
	dir, err := c.ResolvedDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "orphion.db"), nil
}

// TitleModel returns the model used for titles.
func (c *Config) TitleModel() string {
	if c.Inference.TitleModel != "" {
		return c.Inference.TitleModel
	}
	return c.Inference.Model
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ensureSecurePermissions tightens a config file to 0600.
// SECURITY: the file may hold API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads ~/.orphion/config.toml if it exists, then applies
// environment overrides and validates. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		cfg := Default()
		return finish(cfg)
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the TOML file at path, then applies environment
// overrides and validates.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path over cfg. Keys absent from the file keep the
// values already in cfg. Unknown keys are an error.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// SetDefaults fills zero values that must not stay zero.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Inference.BaseURL == "" {
		c.Inference.BaseURL = d.Inference.BaseURL
	}
	if c.Inference.Model == "" {
		c.Inference.Model = d.Inference.Model
	}
	if c.Inference.VisionModel == "" {
		c.Inference.VisionModel = d.Inference.VisionModel
	}
	if c.Inference.MaxTokens == 0 {
		c.Inference.MaxTokens = d.Inference.MaxTokens
	}
	if c.Inference.TimeoutSecs == 0 {
		c.Inference.TimeoutSecs = d.Inference.TimeoutSecs
	}
	if c.Search.Provider == "" {
		c.Search.Provider = d.Search.Provider
	}
	if c.Search.DefaultMode == "" {
		c.Search.DefaultMode = d.Search.DefaultMode
	}
	if c.Search.RequestsPerSecond == 0 {
		c.Search.RequestsPerSecond = d.Search.RequestsPerSecond
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Storage.Key == "" {
		c.Storage.Key = d.Storage.Key
	}
	if c.UI.CodeStyle == "" {
		c.UI.CodeStyle = d.UI.CodeStyle
	}
	if c.UI.Color == "" {
		c.UI.Color = d.UI.Color
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to ~/.orphion/config.toml.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg to path atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# Orphion configuration file\n")
	buf.WriteString("# Environment variables (ORPHION_*) override these values.\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	// RELIABILITY: atomic write so a crash never leaves half a config.
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid setting.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate reports every invalid setting as ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	checkURL := func(field, raw string) {
		if raw == "" {
			return
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add(field, "invalid URL '%s', must be http(s)://host", raw)
		}
	}

	checkURL("inference.base_url", c.Inference.BaseURL)
	if c.Inference.MaxTokens < 0 {
		add("inference.max_tokens", "must not be negative, got %d", c.Inference.MaxTokens)
	}
	if c.Inference.MaxRetries < 0 || c.Inference.MaxRetries > 10 {
		add("inference.max_retries", "must be between 0 and 10, got %d", c.Inference.MaxRetries)
	}
	if c.Inference.TimeoutSecs < 0 {
		add("inference.timeout_secs", "must not be negative, got %d", c.Inference.TimeoutSecs)
	}

	switch strings.ToLower(c.Search.Provider) {
	case "tavily", "duckduckgo":
	default:
		add("search.provider", "invalid provider '%s', must be one of: tavily, duckduckgo", c.Search.Provider)
	}
	checkURL("search.base_url", c.Search.BaseURL)
	switch c.Search.DefaultMode {
	case "General", "Deep Search", "general", "deep":
	default:
		add("search.default_mode", "invalid mode '%s', must be 'General' or 'Deep Search'", c.Search.DefaultMode)
	}
	if c.Search.RequestsPerSecond < 0 {
		add("search.requests_per_second", "must not be negative")
	}

	switch c.Storage.Backend {
	case "file", "sqlite", "memory":
	case "redis":
		if c.Storage.RedisAddr == "" {
			add("storage.redis_addr", "required for the redis backend")
		}
	default:
		add("storage.backend", "invalid backend '%s', must be one of: file, sqlite, redis, memory", c.Storage.Backend)
	}
	if c.Storage.Events && c.Storage.RedisAddr == "" {
		add("storage.events", "the event bridge needs storage.redis_addr")
	}

	if c.UI.Width < 0 {
		add("ui.width", "must not be negative")
	}
	switch c.UI.Color {
	case "auto", "always", "never":
	default:
		add("ui.color", "invalid value '%s', must be one of: auto, always, never", c.UI.Color)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		add("log.format", "invalid format '%s', must be 'console' or 'json'", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variables over file values:
//   - ORPHION_API_KEY: inference.api_key
//   - ORPHION_MODEL: inference.model
//   - ORPHION_BASE_URL: inference.base_url
//   - ORPHION_SEARCH_KEY: search.api_key
//   - ORPHION_STORAGE: storage.backend
//   - ORPHION_DATA_DIR: storage.data_dir
//   - ORPHION_REDIS_ADDR: storage.redis_addr
//   - ORPHION_LOG_LEVEL: log.level
func (c *Config) ApplyEnvOverrides() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"ORPHION_API_KEY", &c.Inference.APIKey},
		{"ORPHION_MODEL", &c.Inference.Model},
		{"ORPHION_BASE_URL", &c.Inference.BaseURL},
		{"ORPHION_SEARCH_KEY", &c.Search.APIKey},
		{"ORPHION_STORAGE", &c.Storage.Backend},
		{"ORPHION_DATA_DIR", &c.Storage.DataDir},
		{"ORPHION_REDIS_ADDR", &c.Storage.RedisAddr},
		{"ORPHION_LOG_LEVEL", &c.Log.Level},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.dst = v
		}
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get returns the value at a dot-notation key such as "inference.model".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set parses value into the field at a dot-notation key.
func (c *Config) Set(key, value string) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	return setFieldValue(field, value)
}

// lookup walks the struct by TOML tag names.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i], "."))
		}
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	if v.Kind() == reflect.Struct {
		return reflect.Value{}, fmt.Errorf("'%s' is a section, not a value", key)
	}
	return v, nil
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if strings.EqualFold(t.Field(i).Tag.Get("toml"), name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue converts a string into the field's kind.
func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value: %w", err)
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value: %w", err)
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %w", err)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("cannot set field of type %s", field.Type())
	}
	return nil
}

// Keys returns every settable key in dot notation.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, section.Tag.Get("toml")+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// =============================================================================
// DISPLAY
// =============================================================================

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Redacted returns a copy with API keys masked.
// SECURITY: used for anything printed or logged.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	if safe.Inference.APIKey != "" {
		safe.Inference.APIKey = "[REDACTED]"
	}
	if safe.Search.APIKey != "" {
		safe.Search.APIKey = "[REDACTED]"
	}
	return safe
}

// String returns the redacted configuration as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}
