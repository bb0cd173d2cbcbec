// Package config provides configuration management for the harvester.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bbsharvest/internal/models"
	"bbsharvest/pkg/utils"
)

// DefaultPath is where the CLI looks for a config file when none is given.
const DefaultPath = "config/config.yaml"

// Configuration validation errors.
var (
	ErrNoTargets             = errors.New("spider.targets must contain at least one target")
	ErrTargetMissingKey      = errors.New("target key is required")
	ErrTargetMissingSection  = errors.New("target section_id is required")
	ErrTargetMissingTopic    = errors.New("target topic_class_id is required")
	ErrDuplicateTargetKey    = errors.New("target key is duplicated")
	ErrUnknownDefaultTarget  = errors.New("spider.default_target does not name a configured target")
	ErrInvalidPageSize       = errors.New("spider.page_size must be at least 1")
	ErrInvalidMaxPages       = errors.New("spider.max_pages must be at least 1")
	ErrInvalidTimeout        = errors.New("spider.request_timeout_sec must be at least 1")
	ErrInvalidDelay          = errors.New("spider delays must be non-negative")
	ErrInvalidEarlyExitPage  = errors.New("spider.early_exit_after_page must be non-negative")
	ErrMissingDataDir        = errors.New("data.dir is required")
	ErrMissingBaseFilename   = errors.New("data.base_filename is required")
	ErrInvalidLogLevel       = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat      = errors.New("logging.format must be 'text' or 'json'")
	ErrInvalidScheduleMode   = errors.New("schedule.mode must be 'batch' or 'incremental'")
	ErrMissingScheduleCron   = errors.New("schedule.cron is required")
	ErrMissingCookieVariable = errors.New("spider.cookie_env is required")
	ErrInvalidBaseURL        = errors.New("base_url must be an absolute http(s) URL")
	ErrInvalidTargetKey      = errors.New("target key cannot name a corpus file")
)

// Config represents the complete harvester configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Spider   SpiderConfig   `yaml:"spider"`
	Data     DataConfig     `yaml:"data"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SpiderConfig holds pagination, pacing and target settings.
type SpiderConfig struct {
	Headers            map[string]string    `yaml:"headers"`
	BaseURL            string               `yaml:"base_url"`
	CookieEnv          string               `yaml:"cookie_env"`
	DefaultTarget      string               `yaml:"default_target"`
	Targets            []models.CrawlTarget `yaml:"targets"`
	MaxPages           int                  `yaml:"max_pages"`
	PageSize           int                  `yaml:"page_size"`
	RequestTimeoutSec  int                  `yaml:"request_timeout_sec"`
	RequestDelayMs     int                  `yaml:"request_delay_ms"`
	BatchDelayMs       int                  `yaml:"batch_delay_ms"`
	EarlyExitAfterPage int                  `yaml:"early_exit_after_page"`
}

// DataConfig defines where the corpus and the crawl history live.
type DataConfig struct {
	Dir          string `yaml:"dir"`
	BaseFilename string `yaml:"base_filename"`
	HistoryFile  string `yaml:"history_file"`
	WriteCSV     bool   `yaml:"write_csv"`
}

// ScheduleConfig drives the periodic harvest command.
type ScheduleConfig struct {
	Cron        string `yaml:"cron"`
	Mode        string `yaml:"mode"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns the built-in configuration. Values from a config file
// are decoded on top of it.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Spider: SpiderConfig{
			BaseURL:            models.DefaultBaseURL,
			MaxPages:           100,
			PageSize:           12,
			RequestTimeoutSec:  10,
			RequestDelayMs:     1000,
			BatchDelayMs:       2000,
			EarlyExitAfterPage: 3,
			CookieEnv:          "COOKIES",
			DefaultTarget:      "original",
			Headers: map[string]string{
				"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
				"Accept":          "application/json, text/plain, */*",
				"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
				"Referer":         "https://www.hiascend.com/",
			},
			Targets: []models.CrawlTarget{
				{
					Key:          "original",
					SectionID:    "0157117713657966001",
					TopicClassID: "0672154839186846001",
					Name:         "原始配置",
					Description:  "原始的爬取配置",
				},
				{
					Key:          "new_target",
					SectionID:    "0101178462695499013",
					TopicClassID: "0697178462739351002",
					Name:         "新目标配置",
					Description:  "新增的爬取目标配置",
				},
			},
		},
		Data: DataConfig{
			Dir:          "data",
			BaseFilename: "articles",
			HistoryFile:  "crawl_history.json",
			WriteCSV:     true,
		},
		Schedule: ScheduleConfig{
			Cron: "0 */6 * * *",
			Mode: "incremental",
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigOrDefault behaves like LoadConfig, except that a missing file
// yields the defaults. The boolean reports whether a file was read.
func LoadConfigOrDefault(path string) (*Config, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()

		return cfg, false, cfg.Validate()
	}

	cfg, err := LoadConfig(path)

	return cfg, err == nil, err
}

// SaveConfig saves configuration to YAML file.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Spider.Targets) == 0 {
		return ErrNoTargets
	}

	urls := utils.NewHTTPHelper()

	if c.Spider.BaseURL != "" && !urls.IsValidURL(c.Spider.BaseURL) {
		return fmt.Errorf("%w: spider.base_url %q", ErrInvalidBaseURL, c.Spider.BaseURL)
	}

	seen := make(map[string]bool, len(c.Spider.Targets))

	for i, t := range c.Spider.Targets {
		if t.Key == "" {
			return fmt.Errorf("%w: targets[%d]", ErrTargetMissingKey, i)
		}

		if t.SectionID == "" {
			return fmt.Errorf("%w: targets[%d] (%s)", ErrTargetMissingSection, i, t.Key)
		}

		if t.TopicClassID == "" {
			return fmt.Errorf("%w: targets[%d] (%s)", ErrTargetMissingTopic, i, t.Key)
		}

		if err := ValidateTargetKey(t.Key); err != nil {
			return fmt.Errorf("%w: targets[%d]", err, i)
		}

		if t.BaseURL != "" && !urls.IsValidURL(t.BaseURL) {
			return fmt.Errorf("%w: targets[%d] (%s) %q", ErrInvalidBaseURL, i, t.Key, t.BaseURL)
		}

		if seen[t.Key] {
			return fmt.Errorf("%w: %s", ErrDuplicateTargetKey, t.Key)
		}

		seen[t.Key] = true
	}

	if c.Spider.DefaultTarget != "" && !seen[c.Spider.DefaultTarget] {
		return fmt.Errorf("%w: %s", ErrUnknownDefaultTarget, c.Spider.DefaultTarget)
	}

	if c.Spider.PageSize < 1 {
		return ErrInvalidPageSize
	}

	if c.Spider.MaxPages < 1 {
		return ErrInvalidMaxPages
	}

	if c.Spider.RequestTimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	if c.Spider.RequestDelayMs < 0 || c.Spider.BatchDelayMs < 0 {
		return ErrInvalidDelay
	}

	if c.Spider.EarlyExitAfterPage < 0 {
		return ErrInvalidEarlyExitPage
	}

	if c.Spider.CookieEnv == "" {
		return ErrMissingCookieVariable
	}

	if c.Data.Dir == "" {
		return ErrMissingDataDir
	}

	if c.Data.BaseFilename == "" {
		return ErrMissingBaseFilename
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return ErrInvalidLogFormat
	}

	if c.Schedule.Cron == "" {
		return ErrMissingScheduleCron
	}

	if c.Schedule.Mode != "batch" && c.Schedule.Mode != "incremental" {
		return ErrInvalidScheduleMode
	}

	return nil
}

// ValidateTargetKey checks that key can be embedded in the corpus file names
// <base>_<key>.json and <base>_<key>_incremental.json without colliding with
// the combined corpus, another target's increment, or leaving the data dir.
func ValidateTargetKey(key string) error {
	switch {
	case key == "all":
		return fmt.Errorf("%w: %q is reserved for the combined corpus", ErrInvalidTargetKey, key)
	case strings.HasSuffix(key, "_incremental"):
		return fmt.Errorf("%w: %q ends with the increment suffix", ErrInvalidTargetKey, key)
	case strings.ContainsAny(key, `/\`) || strings.Contains(key, ".."):
		return fmt.Errorf("%w: %q contains a path element", ErrInvalidTargetKey, key)
	}

	return nil
}

// ResolvedTargets returns the targets with spider.base_url applied to any
// target that does not carry its own endpoint.
func (c *Config) ResolvedTargets() []models.CrawlTarget {
	targets := make([]models.CrawlTarget, 0, len(c.Spider.Targets))

	for _, t := range c.Spider.Targets {
		if t.BaseURL == "" {
			t.BaseURL = c.Spider.BaseURL
		}

		targets = append(targets, t)
	}

	return targets
}

// GetTimeout returns the per-request timeout.
func (s *SpiderConfig) GetTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSec) * time.Second
}

// GetRequestDelay returns the pause between two page requests.
func (s *SpiderConfig) GetRequestDelay() time.Duration {
	return time.Duration(s.RequestDelayMs) * time.Millisecond
}

// GetBatchDelay returns the pause between two targets of a batch.
func (s *SpiderConfig) GetBatchDelay() time.Duration {
	return time.Duration(s.BatchDelayMs) * time.Millisecond
}

// HistoryPath returns the full path of the crawl history file.
func (d *DataConfig) HistoryPath() string {
	name := d.HistoryFile
	if name == "" {
		name = "crawl_history.json"
	}

	return filepath.Join(d.Dir, name)
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Targets: %d, MaxPages: %d, PageSize: %d, DataDir: %s}",
		len(c.Spider.Targets),
		c.Spider.MaxPages,
		c.Spider.PageSize,
		c.Data.Dir,
	)
}
