package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the transaction monitoring service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Narrative NarrativeConfig `mapstructure:"narrative"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxRequestSize  int64         `mapstructure:"max_request_size"`
	// JobTimeout bounds one pipeline execution
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxOpenConns      int           `mapstructure:"max_open_conns"`
	MaxIdleConns      int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime   time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime   time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationsEnabled bool          `mapstructure:"migrations_enabled"`
}

// DSN renders the pgx connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Password          string        `mapstructure:"password"`
	DB                int           `mapstructure:"db"`
	PoolSize          int           `mapstructure:"pool_size"`
	MinIdleConns      int           `mapstructure:"min_idle_conns"`
	MaxRetries        int           `mapstructure:"max_retries"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ReferenceCacheTTL time.Duration `mapstructure:"reference_cache_ttl"`
	KeyPrefix         string        `mapstructure:"key_prefix"`
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	ClientID    string   `mapstructure:"client_id"`
	AlertsTopic string   `mapstructure:"alerts_topic"`
	JobsTopic   string   `mapstructure:"jobs_topic"`
	MaxRetries  int      `mapstructure:"max_retries"`
}

// PipelineConfig holds detection pipeline configuration
type PipelineConfig struct {
	PartitionDir             string `mapstructure:"partition_dir"`
	MaxPartitions            int    `mapstructure:"max_partitions"`
	BatchSize                int    `mapstructure:"batch_size"`
	FetchWorkers             int    `mapstructure:"fetch_workers"`
	EvidenceWindowDays       int    `mapstructure:"evidence_window_days"`
	PriorAlertLookbackMonths int    `mapstructure:"prior_alert_lookback_months"`
	BaselineMonths           int    `mapstructure:"baseline_months"`
	AlertIDStart             int64  `mapstructure:"alert_id_start"`
	PersistChunkSize         int    `mapstructure:"persist_chunk_size"`
	// AsOf pins the detection date (YYYY-MM-DD); empty means today
	AsOf string `mapstructure:"as_of"`
}

// AsOfDate resolves the detection as-of date
func (c PipelineConfig) AsOfDate(now time.Time) (time.Time, error) {
	if c.AsOf == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse("2006-01-02", c.AsOf)
}

// ScoringConfig holds per-scenario threshold scoring configuration
type ScoringConfig struct {
	AutoCloseMaxScore float64                           `mapstructure:"auto_close_max_score"`
	Scenarios         map[string]ThresholdScoringConfig `mapstructure:"scenarios"`
}

// ThresholdScoringConfig describes how alert attributes feed the threshold scorer
type ThresholdScoringConfig struct {
	Fields     []FieldMapping     `mapstructure:"fields"`
	Thresholds []ThresholdMapping `mapstructure:"thresholds"`
}

// FieldMapping copies an evidence attribute into a numeric scoring column
type FieldMapping struct {
	SourceAttribute string  `mapstructure:"source_attribute"`
	Column          string  `mapstructure:"column"`
	Default         float64 `mapstructure:"default"`
}

// ThresholdMapping scores one column against a named threshold
type ThresholdMapping struct {
	ThresholdName string `mapstructure:"threshold_name"`
	AttributeName string `mapstructure:"attribute_name"`
	Column        string `mapstructure:"column"`
	Deviation     string `mapstructure:"deviation"` // percentage, change
}

// NarrativeConfig holds narrative service client configuration
type NarrativeConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Endpoint           string        `mapstructure:"endpoint"`
	APIKey             string        `mapstructure:"api_key"`
	Model              string        `mapstructure:"model"`
	Timeout            time.Duration `mapstructure:"timeout"`
	BreakerMaxRequests uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval    time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
	BreakerFailures    uint32        `mapstructure:"breaker_failures"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	Environment   string  `mapstructure:"environment"`
	OTLPEndpoint  string  `mapstructure:"otlp_endpoint"`
	SamplingRatio float64 `mapstructure:"sampling_ratio"`
	Debug         bool    `mapstructure:"debug"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	JWTSecret          string   `mapstructure:"jwt_secret"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`
}

// Load loads configuration from environment and config files
func Load() (*Config, error) {
	// Local .env (optional)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("TXN_MONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/txn-monitoring")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, use defaults + env
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.metrics_port", 9095)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30m")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_request_size", 1048576) // 1MB
	v.SetDefault("server.job_timeout", "2h")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "txn_monitoring")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")
	v.SetDefault("database.migrations_enabled", true)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "1s")
	v.SetDefault("redis.write_timeout", "1s")
	v.SetDefault("redis.reference_cache_ttl", "15m")
	v.SetDefault("redis.key_prefix", "txnmon")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.client_id", "txn-monitoring-service")
	v.SetDefault("kafka.alerts_topic", "banking.monitoring.alerts")
	v.SetDefault("kafka.jobs_topic", "banking.monitoring.jobs")
	v.SetDefault("kafka.max_retries", 3)

	// Pipeline defaults
	v.SetDefault("pipeline.partition_dir", "Parquet_Data")
	v.SetDefault("pipeline.max_partitions", 6)
	v.SetDefault("pipeline.batch_size", 25000)
	v.SetDefault("pipeline.fetch_workers", 4)
	v.SetDefault("pipeline.evidence_window_days", 90)
	v.SetDefault("pipeline.prior_alert_lookback_months", 9)
	v.SetDefault("pipeline.baseline_months", 6)
	v.SetDefault("pipeline.alert_id_start", 1000001)
	v.SetDefault("pipeline.persist_chunk_size", 500)
	v.SetDefault("pipeline.as_of", "")

	// Scoring defaults
	v.SetDefault("scoring.auto_close_max_score", 35.0)

	// Narrative defaults
	v.SetDefault("narrative.enabled", false)
	v.SetDefault("narrative.endpoint", "http://localhost:8090/v1/narratives")
	v.SetDefault("narrative.model", "default")
	v.SetDefault("narrative.timeout", "30s")
	v.SetDefault("narrative.breaker_max_requests", 1)
	v.SetDefault("narrative.breaker_interval", "60s")
	v.SetDefault("narrative.breaker_timeout", "30s")
	v.SetDefault("narrative.breaker_failures", 5)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "txn-monitoring-service")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sampling_ratio", 0.1)
	v.SetDefault("telemetry.debug", false)

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.rate_limit_per_minute", 600)
}
