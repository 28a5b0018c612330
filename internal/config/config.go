package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Neo4j          Neo4jConfig          `mapstructure:"neo4j"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Neo4jConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		ModelEvents string `mapstructure:"model_events"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RecommendationConfig holds every knob of the training and serving pipeline.
type RecommendationConfig struct {
	Factorization FactorizationConfig `mapstructure:"factorization"`
	Popularity    PopularityConfig    `mapstructure:"popularity"`
	// WeightPolicy resolves duplicate (user, item) interactions: "max" keeps
	// the strongest signal, "sum" accumulates.
	WeightPolicy string `mapstructure:"weight_policy"`
	// ExtractTimeout bounds the interaction-extraction step of a training
	// run, independent of scoring latency.
	ExtractTimeout time.Duration `mapstructure:"extract_timeout"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	// TrainSchedule is a cron expression; empty disables scheduled retraining.
	TrainSchedule string `mapstructure:"train_schedule"`
}

type FactorizationConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Factors        int     `mapstructure:"factors"`
	Epochs         int     `mapstructure:"epochs"`
	Workers        int     `mapstructure:"workers"`
	LearningRate   float64 `mapstructure:"learning_rate"`
	Regularization float64 `mapstructure:"regularization"`
	// MaxSampled caps negative sampling attempts per positive example.
	MaxSampled int   `mapstructure:"max_sampled"`
	Seed       int64 `mapstructure:"seed"`
	// MinUsers and MinItems gate factorization; below either threshold the
	// trainer routes to popularity mode.
	MinUsers int `mapstructure:"min_users"`
	MinItems int `mapstructure:"min_items"`
}

type PopularityConfig struct {
	// Metric is "weight_sum" (summed interaction weight) or "user_count"
	// (distinct interacting users).
	Metric string `mapstructure:"metric"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.url", "localhost:6379")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Neo4j defaults
	viper.SetDefault("neo4j.url", "bolt://localhost:7687")
	viper.SetDefault("neo4j.username", "neo4j")

	// Kafka defaults
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topics.model_events", "model-events")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Recommendation defaults
	viper.SetDefault("recommendation.weight_policy", "max")
	viper.SetDefault("recommendation.extract_timeout", "30s")
	viper.SetDefault("recommendation.cache_ttl", "1h")
	viper.SetDefault("recommendation.train_schedule", "")
	viper.SetDefault("recommendation.factorization.enabled", true)
	viper.SetDefault("recommendation.factorization.factors", 30)
	viper.SetDefault("recommendation.factorization.epochs", 30)
	viper.SetDefault("recommendation.factorization.workers", 1)
	viper.SetDefault("recommendation.factorization.learning_rate", 0.05)
	viper.SetDefault("recommendation.factorization.regularization", 0.01)
	viper.SetDefault("recommendation.factorization.max_sampled", 10)
	viper.SetDefault("recommendation.factorization.seed", 42)
	viper.SetDefault("recommendation.factorization.min_users", 2)
	viper.SetDefault("recommendation.factorization.min_items", 2)
	viper.SetDefault("recommendation.popularity.metric", "weight_sum")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")
}
