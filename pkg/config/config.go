package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MetricFilter holds per-metric smoothing parameters. Zero fields fall back
// to the defaults section.
type MetricFilter struct {
	KalmanQ          float64 `yaml:"kalman_q"`
	KalmanR          float64 `yaml:"kalman_r"`
	ThresholdBandK   float64 `yaml:"threshold_band_k"`
	MinBandWidth     float64 `yaml:"min_band_width"`
	HysteresisMargin float64 `yaml:"hysteresis_margin"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"console"`
	Output string `yaml:"output" default:"stdout"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

type PipelineConfig struct {
	Symbols       []string      `yaml:"symbols" validate:"min=1"`
	BatchInterval time.Duration `yaml:"batch_interval" default:"15m"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" default:"30s"`
	FetchURL      string        `yaml:"fetch_url"`
}

type SmoothingConfig struct {
	Defaults MetricFilter            `yaml:"defaults"`
	Metrics  map[string]MetricFilter `yaml:"metrics"`
}

type ScoringConfig struct {
	ModelPath           string    `yaml:"ml_model_path" default:"data/ml_models/alert_scorer.json"`
	ModelVersion        string    `yaml:"ml_model_version"`
	TierThresholds      []float64 `yaml:"tier_confidence_thresholds"` // descending: tier1, tier2
	RecencyHalfLifeSecs float64   `yaml:"recency_half_life_seconds" default:"900"`
}

type StateConfig struct {
	Path                     string  `yaml:"path" default:"data/alert_state"`
	CooldownBaseSeconds      int     `yaml:"cooldown_base_seconds" default:"3600" validate:"gt=0"`
	CooldownMaxSeconds       int     `yaml:"cooldown_max_seconds" default:"86400" validate:"gt=0"`
	BackoffMultiplier        float64 `yaml:"backoff_multiplier" default:"2.0" validate:"gte=1"`
	BurstEscalationThreshold int     `yaml:"burst_escalation_threshold" default:"5" validate:"gt=0"`
	EscalationWindowSeconds  int     `yaml:"escalation_window_seconds" default:"7200"`
	WriteRetries             int     `yaml:"write_retries" default:"3"`
	RetentionDays            int     `yaml:"retention_days"` // 0 = keep forever
}

type QueueConfig struct {
	WindowSeconds     int    `yaml:"queue_window_seconds" default:"300" validate:"gt=0"`
	MaxSize           int    `yaml:"queue_max_size" default:"10" validate:"gt=0"`
	PushWindowSeconds int    `yaml:"push_window_seconds" default:"30"`
	BundleKey         string `yaml:"bundle_key" default:"symbol" validate:"oneof=symbol tier"`
}

type DispatchConfig struct {
	Backend    string          `yaml:"backend" default:"webhook" validate:"oneof=webhook kafka log"`
	WebhookURL string          `yaml:"webhook_url"`
	Timeout    time.Duration   `yaml:"timeout" default:"10s"`
	Redeliver  RedeliverConfig `yaml:"redeliver"`
}

// RedeliverConfig controls the out-of-band redelivery queue for bundles
// dropped after the in-band retry. Requires Redis.
type RedeliverConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Workers    int           `yaml:"workers" default:"1"`
	RetryLimit int           `yaml:"retry_limit" default:"3"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
}

type PushConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Source         string        `yaml:"source" default:"kafka" validate:"oneof=kafka websocket"`
	Symbols        []string      `yaml:"symbols"` // tier-1 symbols
	WebSocketURL   string        `yaml:"websocket_url"`
	APIKey         string        `yaml:"api_key"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	MaxSampleRate  int           `yaml:"max_samples_per_second" default:"20"`
}

type KafkaProducerConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	Linger       time.Duration `yaml:"linger" default:"50ms"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

type KafkaConsumerConfig struct {
	GroupID    string        `yaml:"group_id" default:"alertpulse"`
	BufferSize int           `yaml:"buffer_size" default:"256"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"250ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"10s"`
	MinBytes   int           `yaml:"min_bytes" default:"1"`
	MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
}

type KafkaConfig struct {
	Brokers        []string            `yaml:"brokers"`
	CandidateTopic string              `yaml:"candidate_topic" default:"alerts.candidates"`
	BundleTopic    string              `yaml:"bundle_topic" default:"alerts.bundles"`
	RequiredAcks   int                 `yaml:"required_acks" default:"1"`
	Compression    string              `yaml:"compression" default:"snappy"`
	Producer       KafkaProducerConfig `yaml:"producer"`
	Consumer       KafkaConsumerConfig `yaml:"consumer"`
}

type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr" default:"localhost:6379"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl" default:"10m"`
}

type ClickHouseConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host" default:"localhost"`
	Port         int           `yaml:"port" default:"9000"`
	Database     string        `yaml:"database" default:"alertpulse"`
	User         string        `yaml:"user" default:"default"`
	Password     string        `yaml:"password"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

type TrackerConfig struct {
	RefreshIntervalSeconds int `yaml:"dashboard_refresh_interval_seconds" default:"60" validate:"gt=0"`
}

type Config struct {
	Environment string `yaml:"environment" validate:"required"`

	Logging    LoggingConfig    `yaml:"logging"`
	Server     ServerConfig     `yaml:"server"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Smoothing  SmoothingConfig  `yaml:"smoothing"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	State      StateConfig      `yaml:"state"`
	Queue      QueueConfig      `yaml:"queue"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Push       PushConfig       `yaml:"push"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Tracker    TrackerConfig    `yaml:"tracker"`
}

// Load reads, defaults, parses and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Pipeline.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Dispatch.WebhookURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("STATE_PATH"); v != "" {
		c.State.Path = v
	}
	if v := os.Getenv("STREAM_API_KEY"); v != "" {
		c.Push.APIKey = v
	}

	return c, nil
}

// Validate checks cross-field rules the struct tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.State.CooldownMaxSeconds < c.State.CooldownBaseSeconds {
		return fmt.Errorf("cooldown_max_seconds must be >= cooldown_base_seconds")
	}
	if c.Dispatch.Backend == "webhook" && c.Dispatch.WebhookURL == "" {
		return fmt.Errorf("dispatch.webhook_url is required for the webhook backend")
	}
	if c.Dispatch.Backend == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required for the kafka dispatch backend")
	}
	if c.Dispatch.Redeliver.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("dispatch.redeliver requires redis to be enabled")
	}
	if c.Push.Enabled {
		switch c.Push.Source {
		case "kafka":
			if len(c.Kafka.Brokers) == 0 {
				return fmt.Errorf("kafka.brokers required for the kafka push source")
			}
		case "websocket":
			if c.Push.WebSocketURL == "" {
				return fmt.Errorf("push.websocket_url required for the websocket push source")
			}
		}
	}
	for i := 1; i < len(c.Scoring.TierThresholds); i++ {
		if c.Scoring.TierThresholds[i] > c.Scoring.TierThresholds[i-1] {
			return fmt.Errorf("tier_confidence_thresholds must be non-increasing")
		}
	}
	return nil
}

// FilterFor resolves smoothing parameters for a metric, applying defaults
// for any unset field.
func (c *Config) FilterFor(metric string) MetricFilter {
	f := c.Smoothing.Defaults
	if f.KalmanQ == 0 {
		f.KalmanQ = 0.01
	}
	if f.KalmanR == 0 {
		f.KalmanR = 0.1
	}
	if f.ThresholdBandK == 0 {
		f.ThresholdBandK = 2.0
	}
	override, ok := c.Smoothing.Metrics[metric]
	if !ok {
		return f
	}
	if override.KalmanQ != 0 {
		f.KalmanQ = override.KalmanQ
	}
	if override.KalmanR != 0 {
		f.KalmanR = override.KalmanR
	}
	if override.ThresholdBandK != 0 {
		f.ThresholdBandK = override.ThresholdBandK
	}
	if override.MinBandWidth != 0 {
		f.MinBandWidth = override.MinBandWidth
	}
	if override.HysteresisMargin != 0 {
		f.HysteresisMargin = override.HysteresisMargin
	}
	return f
}
