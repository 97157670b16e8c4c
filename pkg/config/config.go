package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	errs "vkharvest/pkg/errors"
	"vkharvest/pkg/ratelimit"
	"vkharvest/pkg/schedule"
)

const envPrefix = "VKHARVEST_"

// Config holds all configuration options for the harvester
type Config struct {
	// Provider API settings
	API APIConfig `yaml:"api" json:"api"`

	// Request pacing
	Pacing PacingConfig `yaml:"pacing" json:"pacing"`

	// Credential references, resolved by pkg/auth
	Credentials []string `yaml:"credentials" json:"credentials"`

	// Egress proxies
	Proxies ProxyConfig `yaml:"proxies" json:"proxies"`

	// State store location
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Round checkpointing
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// APIConfig holds provider-specific configuration
type APIConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Version string        `yaml:"version" json:"version"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	Methods []string      `yaml:"methods" json:"methods"`
	// MaxWorkers caps the worker count below the CPU count; 0 means no cap
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`
}

// PacingConfig controls request spacing within a worker
type PacingConfig struct {
	MinInterval time.Duration `yaml:"min_interval" json:"min_interval"`
	Strategy    string        `yaml:"strategy" json:"strategy"`
}

// ProxyConfig lists egress proxies, one per worker
type ProxyConfig struct {
	List               []Proxy `yaml:"list" json:"list"`
	UseOriginalAddress bool    `yaml:"use_original_address" json:"use_original_address"`
}

// Proxy is one egress address with optional basic auth
type Proxy struct {
	Address  string `yaml:"address" json:"address"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Direct reports whether the binding uses no proxy
func (p Proxy) Direct() bool {
	return p.Address == ""
}

// URL returns the proxy URL with credentials attached, or nil for a direct binding
func (p Proxy) URL() (*url.URL, error) {
	if p.Direct() {
		return nil, nil
	}
	raw := p.Address
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address %q: %w", p.Address, err)
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u, nil
}

// StorageConfig holds the state store location
type StorageConfig struct {
	DataDir  string `yaml:"data_dir" json:"data_dir"`
	Database string `yaml:"database" json:"database"`
	// CommitAttempts bounds retries of a locked round commit
	CommitAttempts int `yaml:"commit_attempts" json:"commit_attempts"`
}

// Path returns the database file path
func (s StorageConfig) Path() string {
	if filepath.IsAbs(s.Database) {
		return s.Database
	}
	return filepath.Join(s.DataDir, s.Database)
}

// CheckpointConfig controls round sizing and the run manifest
type CheckpointConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
	Manifest bool          `yaml:"manifest" json:"manifest"`
	// MaxPasses stops repeating passes after this many; 0 repeats until
	// coverage is complete
	MaxPasses int `yaml:"max_passes" json:"max_passes"`
}

// MetricsConfig holds the Prometheus listener settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	Format     string `yaml:"format" json:"format"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// DefaultConfig returns a Config instance with the provider's known limits
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://api.vk.com/method",
			Version: "5.199",
			Timeout: 30 * time.Second,
			Methods: []string{"users", "groups", "walls"},
		},
		Pacing: PacingConfig{
			MinInterval: 400 * time.Millisecond,
			Strategy:    string(ratelimit.StrategyChain),
		},
		Storage: StorageConfig{
			DataDir:        "./data",
			Database:       "harvest.db",
			CommitAttempts: 5,
		},
		Checkpoint: CheckpointConfig{
			Interval: 120 * time.Second,
			Manifest: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9464",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "auto",
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// Methods parses the configured method names in pass order
func (c *Config) Methods() ([]schedule.Method, error) {
	want := make(map[schedule.Method]bool, len(c.API.Methods))
	for _, name := range c.API.Methods {
		m, err := schedule.ParseMethod(name)
		if err != nil {
			return nil, err
		}
		want[m] = true
	}
	out := make([]schedule.Method, 0, len(want))
	for _, m := range schedule.Order {
		if want[m] {
			out = append(out, m)
		}
	}
	return out, nil
}

// Bindings returns the proxy bindings in worker order. An empty list yields a
// single direct binding; UseOriginalAddress appends one to a non-empty list.
func (c *Config) Bindings() []Proxy {
	if len(c.Proxies.List) == 0 {
		return []Proxy{{}}
	}
	out := append([]Proxy(nil), c.Proxies.List...)
	if c.Proxies.UseOriginalAddress {
		out = append(out, Proxy{})
	}
	return out
}

// LoadFromEnv loads configuration from VKHARVEST_* environment variables
func (c *Config) LoadFromEnv() error {
	var errList []error

	if v := os.Getenv(envPrefix + "CREDENTIALS"); v != "" {
		c.Credentials = splitList(v)
	}
	if v := os.Getenv(envPrefix + "PROXIES"); v != "" {
		c.Proxies.List = nil
		for _, addr := range splitList(v) {
			c.Proxies.List = append(c.Proxies.List, Proxy{Address: addr})
		}
	}
	if v := os.Getenv(envPrefix + "USE_ORIGINAL_ADDRESS"); v != "" {
		c.Proxies.UseOriginalAddress = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv(envPrefix + "API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(envPrefix + "METHODS"); v != "" {
		c.API.Methods = splitList(v)
	}
	if v := os.Getenv(envPrefix + "MAX_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errList = append(errList, fmt.Errorf("%sMAX_WORKERS: %w", envPrefix, err))
		} else {
			c.API.MaxWorkers = n
		}
	}
	durations := map[string]*time.Duration{
		"CHECKPOINT_INTERVAL": &c.Checkpoint.Interval,
		"MIN_INTERVAL":        &c.Pacing.MinInterval,
		"TIMEOUT":             &c.API.Timeout,
	}
	for name, target := range durations {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			continue
		}
		d, err := parseDuration(v)
		if err != nil {
			errList = append(errList, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			continue
		}
		*target = d
	}
	if v := os.Getenv(envPrefix + "PACING_STRATEGY"); v != "" {
		c.Pacing.Strategy = v
	}
	if v := os.Getenv(envPrefix + "DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv(envPrefix + "DATABASE"); v != "" {
		c.Storage.Database = v
	}
	if v := os.Getenv(envPrefix + "METRICS_LISTEN"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Listen = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	return errors.Join(errList...)
}

// parseDuration accepts Go durations and bare seconds
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"vkharvest.yaml",
		".vkharvest.yaml",
		".vkharvest.yml",
		filepath.Join(home, ".config", "vkharvest", "config.yaml"),
		filepath.Join(home, ".config", "vkharvest", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid. Every failure is a
// configuration error and therefore fatal.
func (c *Config) Validate() error {
	var errList []error

	if len(c.Credentials) == 0 {
		errList = append(errList, errors.New("at least one credential is required"))
	}
	if c.API.BaseURL == "" {
		errList = append(errList, errors.New("api base url is required"))
	}
	if c.API.Timeout <= 0 {
		errList = append(errList, errors.New("api timeout must be positive"))
	}
	if c.API.MaxWorkers < 0 {
		errList = append(errList, errors.New("max workers cannot be negative"))
	}
	if c.Checkpoint.MaxPasses < 0 {
		errList = append(errList, errors.New("max passes cannot be negative"))
	}

	methods, err := c.Methods()
	if err != nil {
		errList = append(errList, err)
	} else if len(methods) == 0 {
		errList = append(errList, errors.New("at least one method is required"))
	}
	for _, m := range methods {
		if _, err := schedule.RoundSize(c.Checkpoint.Interval, m.Latency(), c.Pacing.MinInterval); err != nil {
			errList = append(errList, fmt.Errorf("method %s: %w", m, err))
		}
	}

	if _, err := ratelimit.NewFactory(ratelimit.Strategy(c.Pacing.Strategy), c.Pacing.MinInterval); err != nil {
		errList = append(errList, err)
	}

	for i, p := range c.Proxies.List {
		if p.Direct() {
			errList = append(errList, fmt.Errorf("proxy %d has no address", i))
			continue
		}
		if _, err := p.URL(); err != nil {
			errList = append(errList, err)
		}
	}

	if c.Storage.Database == "" {
		errList = append(errList, errors.New("database file name is required"))
	}
	if c.Storage.CommitAttempts <= 0 {
		errList = append(errList, errors.New("commit attempts must be positive"))
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errList = append(errList, errors.New("metrics listen address is required when metrics are enabled"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errList = append(errList, errors.New("invalid log level"))
	}
	validFormats := map[string]bool{"auto": true, "console": true, "json": true, "": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errList = append(errList, errors.New("invalid log format"))
	}

	if len(errList) > 0 {
		return errs.Wrap(errs.ErrorTypeConfig, "invalid configuration", errors.Join(errList...))
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["data-dir"].(string); ok && v != "" {
		c.Storage.DataDir = v
	}
	if v, ok := flags["database"].(string); ok && v != "" {
		c.Storage.Database = v
	}
	if v, ok := flags["credential"].([]string); ok && len(v) > 0 {
		c.Credentials = v
	}
	if v, ok := flags["methods"].([]string); ok && len(v) > 0 {
		c.API.Methods = v
	}
	if v, ok := flags["checkpoint"].(time.Duration); ok && v > 0 {
		c.Checkpoint.Interval = v
	}
	if v, ok := flags["max-workers"].(int); ok && v > 0 {
		c.API.MaxWorkers = v
	}
	if v, ok := flags["max-passes"].(int); ok && v > 0 {
		c.Checkpoint.MaxPasses = v
	}
	if v, ok := flags["pacing"].(string); ok && v != "" {
		c.Pacing.Strategy = v
	}
	if v, ok := flags["metrics-listen"].(string); ok && v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Listen = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
}

// Load loads configuration from all sources with proper precedence and
// validates the result.
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	config, err := Read(configPath, flags)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Read merges every source like Load but skips validation, for commands that
// only inspect the data directory
func Read(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".vkharvest.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, "failed to load config file", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, "failed to load environment variables", err)
	}

	config.MergeCommandLineFlags(flags)
	return config, nil
}
