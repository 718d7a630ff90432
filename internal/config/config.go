package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/refset/account-health/internal/portfolio"
	"github.com/refset/account-health/internal/scoring"
)

// DefaultPath is read when no explicit config file is given.
const DefaultPath = "config.yaml"

type Config struct {
	Scoring   scoring.Config  `yaml:"scoring"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	CRM       CRMConfig       `yaml:"crm"`
	Redis     RedisConfig     `yaml:"redis"`
	Server    ServerConfig    `yaml:"server"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	LogLevel  string          `yaml:"log_level"`
}

type PortfolioConfig struct {
	RenewalBuckets    []int    `yaml:"renewal_buckets"`
	RenewalWindowDays int      `yaml:"renewal_window_days"`
	TopN              int      `yaml:"top_n"`
	Industries        []string `yaml:"industries"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	ResultsTopic string   `yaml:"results_topic"`
	ReportsTopic string   `yaml:"reports_topic"`
}

// Enabled reports whether results should be published at all.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type CRMConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	PageSize int    `yaml:"page_size"`
}

type RedisConfig struct {
	Addr string        `yaml:"addr"`
	Key  string        `yaml:"key"`
	TTL  time.Duration `yaml:"ttl"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type PipelineConfig struct {
	Interval time.Duration `yaml:"interval"`

	// AsOf pins the evaluation date (YYYY-MM-DD); empty means the start of
	// each cycle.
	AsOf string `yaml:"as_of"`
}

// Default returns the built-in configuration.
func Default() *Config {
	p := portfolio.DefaultOptions(time.Time{})
	return &Config{
		Scoring: scoring.DefaultConfig(),
		Portfolio: PortfolioConfig{
			RenewalBuckets:    p.RenewalBuckets,
			RenewalWindowDays: p.RenewalWindowDays,
			TopN:              p.TopN,
		},
		Database: DatabaseConfig{
			DSN: "postgres://localhost:5432/account_health?sslmode=disable",
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			ResultsTopic: "account-health-results",
			ReportsTopic: "account-health-reports",
		},
		CRM: CRMConfig{
			BaseURL:  "http://localhost:8081/api",
			PageSize: 100,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			Key:  "account-health:snapshot",
			TTL:  24 * time.Hour,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Pipeline: PipelineConfig{
			Interval: 15 * time.Minute,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (if it exists), then environment overrides. An empty path means
// DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// Override from environment
	if v := os.Getenv("HEALTH_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CRM_BASE_URL"); v != "" {
		cfg.CRM.BaseURL = v
	}
	if v := os.Getenv("CRM_USERNAME"); v != "" {
		cfg.CRM.Username = v
	}
	if v := os.Getenv("CRM_PASSWORD"); v != "" {
		cfg.CRM.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("HEALTH_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

// PortfolioOptions returns the aggregation options evaluated at asOf.
func (c *Config) PortfolioOptions(asOf time.Time) portfolio.Options {
	return portfolio.Options{
		AsOf:              asOf,
		RenewalBuckets:    append([]int(nil), c.Portfolio.RenewalBuckets...),
		RenewalWindowDays: c.Portfolio.RenewalWindowDays,
		TopN:              c.Portfolio.TopN,
		Industries:        append([]string(nil), c.Portfolio.Industries...),
	}
}

// EvaluationDate returns the pinned as-of date or, when none is set, now
// truncated to the UTC day.
func (c *Config) EvaluationDate(now time.Time) (time.Time, error) {
	if c.Pipeline.AsOf != "" {
		t, err := time.Parse(time.DateOnly, c.Pipeline.AsOf)
		if err != nil {
			return time.Time{}, fmt.Errorf("pipeline.as_of: %w", err)
		}
		return t, nil
	}
	n := now.UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC), nil
}

// Validate checks the scoring and aggregation settings so that a bad
// configuration fails before any record is read.
func (c *Config) Validate() error {
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	return c.PortfolioOptions(time.Unix(0, 0)).Validate()
}
