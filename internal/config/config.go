package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

var (
	//go:embed prompts/classification.txt
	defaultClassificationPrompt string
	//go:embed prompts/extraction.txt
	defaultExtractionPrompt string
	//go:embed prompts/update_detection.txt
	defaultUpdatePrompt string
)

// minSummarySpan leaves room for the ellipsis on truncated summaries.
const minSummarySpan = 3

// ErrConfiguration is returned for configuration that cannot start a run.
var ErrConfiguration = errors.New("configuration error")

type Config struct {
	Sources        map[string]Source `yaml:"sources"`
	LLM            LLM               `yaml:"llm"`
	Scraper        Scraper           `yaml:"scraper"`
	Classification Classification    `yaml:"classification"`
	Validation     Validation        `yaml:"validation"`
	Prompts        Prompts           `yaml:"prompts"`
	Output         Output            `yaml:"output"`
	Logging        Logging           `yaml:"logging"`
}

// Source is a feed entry as written in YAML. Setting enabled to false drops
// a default feed.
type Source struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Language string `yaml:"language"`
	Enabled  *bool  `yaml:"enabled,omitempty"`
}

// mergeOver fills fields left empty in an override from the default entry.
func (s Source) mergeOver(def Source) Source {
	if s.Name == "" {
		s.Name = def.Name
	}
	if s.URL == "" {
		s.URL = def.URL
	}
	if s.Language == "" {
		s.Language = def.Language
	}
	if s.Enabled == nil {
		s.Enabled = def.Enabled
	}
	return s
}

// FeedSource is an enabled feed keyed by its id.
type FeedSource struct {
	ID       string
	Name     string
	URL      string
	Language string
}

type LLM struct {
	APIKey            string        `yaml:"api_key"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxTokens         int           `yaml:"max_tokens"`
	UpdateMaxTokens   int           `yaml:"update_max_tokens"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

type Scraper struct {
	LookbackHours     int           `yaml:"lookback_hours"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	MaxPerFeed        int           `yaml:"max_per_feed"`
	Workers           int           `yaml:"workers"`
	UpdateWindowDays  int           `yaml:"update_window_days"`
	UpdateWindowLimit int           `yaml:"update_window_limit"`
}

type Classification struct {
	Enabled             bool    `yaml:"enabled"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	MaxTokens           int     `yaml:"max_tokens"`
}

type Validation struct {
	MinSummaryLength int     `yaml:"min_summary_length"`
	MaxSummaryLength int     `yaml:"max_summary_length"`
	UpdateConfidence float64 `yaml:"update_confidence"`
}

// Prompts override the embedded templates. Placeholders use {name} syntax.
type Prompts struct {
	Classification  string `yaml:"classification"`
	Extraction      string `yaml:"extraction"`
	UpdateDetection string `yaml:"update_detection"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
	File  bool   `yaml:"file"`
}

// ConfigDir returns the XDG config directory for breachwatch.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "breachwatch")
}

// DataDir returns the XDG data directory for breachwatch.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "breachwatch")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/breachwatch/config.yaml > ./config.yaml.
// An empty path with a nil error means no file exists and the embedded
// defaults plus environment apply.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: config file not found: %s", ErrConfiguration, explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}
	return "", nil
}

// Load reads a config YAML file over the defaults and applies environment
// overrides. An empty path loads the defaults alone.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the embedded defaults without environment overrides.
func Default() (*Config, error) {
	return parse(nil)
}

// parse layers YAML bytes over the embedded defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(DefaultConfigYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing default config: %w", err)
	}
	defaults := make(map[string]Source, len(cfg.Sources))
	for id, src := range cfg.Sources {
		defaults[id] = src
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing config: %v", ErrConfiguration, err)
	}
	for id, src := range cfg.Sources {
		if def, ok := defaults[id]; ok {
			cfg.Sources[id] = src.mergeOver(def)
		}
	}

	if cfg.Prompts.Classification == "" {
		cfg.Prompts.Classification = defaultClassificationPrompt
	}
	if cfg.Prompts.Extraction == "" {
		cfg.Prompts.Extraction = defaultExtractionPrompt
	}
	if cfg.Prompts.UpdateDetection == "" {
		cfg.Prompts.UpdateDetection = defaultUpdatePrompt
	}
	return cfg, nil
}

// FeedSources returns the enabled feeds sorted by id.
func (c *Config) FeedSources() []FeedSource {
	out := make([]FeedSource, 0, len(c.Sources))
	for id, s := range c.Sources {
		if s.Enabled != nil && !*s.Enabled {
			continue
		}
		out = append(out, FeedSource{ID: id, Name: s.Name, URL: s.URL, Language: s.Language})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validate checks values a run depends on. Credentials are checked
// separately so offline commands work without an API key.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(len(c.FeedSources()) > 0, "no feed sources enabled")
	for _, s := range c.FeedSources() {
		check(s.URL != "", "source %q has no url", s.ID)
	}
	check(c.LLM.BaseURL != "", "llm.base_url is empty")
	check(c.LLM.Model != "", "llm.model is empty")
	check(c.LLM.MaxTokens > 0, "llm.max_tokens must be positive")
	check(c.LLM.UpdateMaxTokens > 0, "llm.update_max_tokens must be positive")
	check(c.LLM.RequestsPerMinute > 0, "llm.requests_per_minute must be positive")
	check(c.Scraper.LookbackHours > 0, "scraper.lookback_hours must be positive")
	check(c.Scraper.MaxRetries > 0, "scraper.max_retries must be at least 1")
	check(c.Scraper.RetryDelay >= 0, "scraper.retry_delay must not be negative")
	check(c.Scraper.RequestTimeout > 0, "scraper.request_timeout must be positive")
	check(c.Scraper.Workers > 0, "scraper.workers must be positive")
	check(c.Scraper.UpdateWindowDays > 0, "scraper.update_window_days must be positive")
	check(c.Classification.ConfidenceThreshold >= 0 && c.Classification.ConfidenceThreshold <= 1,
		"classification.confidence_threshold %v outside [0,1]", c.Classification.ConfidenceThreshold)
	check(c.Classification.MaxTokens > 0, "classification.max_tokens must be positive")
	check(c.Validation.MinSummaryLength > 0, "validation.min_summary_length must be positive")
	check(c.Validation.MaxSummaryLength >= c.Validation.MinSummaryLength+minSummarySpan,
		"validation.max_summary_length %d must be at least min_summary_length %d + %d",
		c.Validation.MaxSummaryLength, c.Validation.MinSummaryLength, minSummarySpan)
	check(c.Validation.UpdateConfidence >= 0 && c.Validation.UpdateConfidence <= 1,
		"validation.update_confidence %v outside [0,1]", c.Validation.UpdateConfidence)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// ValidateCredentials checks the backend API key is present.
func (c *Config) ValidateCredentials() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("%w: no API key; set %s", ErrConfiguration, c.LLM.APIKeyEnv)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// LogDir is where log files are written.
func (c *Config) LogDir() string {
	return filepath.Join(c.GetDataDir(), "logs")
}

// LogFile returns the log file path, or "" when file logging is off.
func (c *Config) LogFile() string {
	if !c.Logging.File {
		return ""
	}
	return filepath.Join(c.LogDir(), "breachwatch.log")
}

// DatabasePath is the SQLite store holding breaches and the ledger.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.GetDataDir(), "breachwatch.db")
}

// EnsureDirs creates the data and log directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.GetDataDir(), c.LogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
