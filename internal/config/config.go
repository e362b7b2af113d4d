package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "STOREFRONT"

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Auth     AuthConfig
	Log      LogConfig
	OTP      OTPConfig
	Order    OrderConfig
	Kafka    KafkaConfig
	HTTP     HTTPConfig
	GRPC     GRPCConfig
}

type AppConfig struct {
	Name string
	Env  string
}

func (c AppConfig) IsProduction() bool { return c.Env == "production" }

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// DSN builds a go-sql-driver DSN. parseTime is needed for DATETIME scanning,
// multiStatements for migrations, and clientFoundRows so that a no-op UPDATE
// still reports the matched row.
func (c DatabaseConfig) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.MultiStatements = true
	mc.ClientFoundRows = true
	mc.Loc = time.UTC
	return mc.FormatDSN()
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type AuthConfig struct {
	BcryptCost int
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

type OTPConfig struct {
	Store       string // memory or redis
	TTL         time.Duration
	MaxAttempts int
}

type OrderConfig struct {
	TxTimeout         time.Duration
	DispatchWorkers   int
	DispatchQueueSize int
	DispatchRetries   int
	DispatchBackoff   time.Duration
	DispatchTimeout   time.Duration
}

type KafkaConfig struct {
	Enabled                 bool
	Brokers                 []string
	TopicOrderCreated       string
	TopicOrderStatusUpdated string
	TopicOTPIssued          string
	AutoCreateTopics        bool
	Partitions              int
}

type HTTPConfig struct {
	Port                  string
	ReadTimeout           time.Duration
	WriteTimeout          time.Duration
	IdleTimeout           time.Duration
	ShutdownTimeout       time.Duration
	AuthRateLimitEnabled  bool
	AuthRateLimitRequests int
	AuthRateLimitWindow   time.Duration
	TrustedProxies        []string
}

type GRPCConfig struct {
	Port string
}

// Load reads configuration with the following priority, highest first:
//  1. environment variables with the STOREFRONT_ prefix
//  2. a .env file in the working directory
//  3. config.toml
//  4. built-in defaults
func Load() (*Config, error) {
	return load([]string{".env"}, []string{".", "/app"})
}

func load(envFiles, configPaths []string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			PoolSize: v.GetInt("redis.pool_size"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Issuer:     v.GetString("jwt.issuer"),
			Expiration: v.GetDuration("jwt.expiration"),
		},
		Auth: AuthConfig{
			BcryptCost: v.GetInt("auth.bcrypt_cost"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		OTP: OTPConfig{
			Store:       v.GetString("otp.store"),
			TTL:         v.GetDuration("otp.ttl"),
			MaxAttempts: v.GetInt("otp.max_attempts"),
		},
		Order: OrderConfig{
			TxTimeout:         v.GetDuration("order.tx_timeout"),
			DispatchWorkers:   v.GetInt("order.dispatch_workers"),
			DispatchQueueSize: v.GetInt("order.dispatch_queue_size"),
			DispatchRetries:   v.GetInt("order.dispatch_retries"),
			DispatchBackoff:   v.GetDuration("order.dispatch_backoff"),
			DispatchTimeout:   v.GetDuration("order.dispatch_timeout"),
		},
		Kafka: KafkaConfig{
			Enabled:                 v.GetBool("kafka.enabled"),
			Brokers:                 splitList(v.GetStringSlice("kafka.brokers")),
			TopicOrderCreated:       v.GetString("kafka.topic_order_created"),
			TopicOrderStatusUpdated: v.GetString("kafka.topic_order_status_updated"),
			TopicOTPIssued:          v.GetString("kafka.topic_otp_issued"),
			AutoCreateTopics:        v.GetBool("kafka.auto_create_topics"),
			Partitions:              v.GetInt("kafka.partitions"),
		},
		HTTP: HTTPConfig{
			Port:                  v.GetString("http.port"),
			ReadTimeout:           v.GetDuration("http.read_timeout"),
			WriteTimeout:          v.GetDuration("http.write_timeout"),
			IdleTimeout:           v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:       v.GetDuration("http.shutdown_timeout"),
			AuthRateLimitEnabled:  v.GetBool("http.auth_rate_limit_enabled"),
			AuthRateLimitRequests: v.GetInt("http.auth_rate_limit_requests"),
			AuthRateLimitWindow:   v.GetDuration("http.auth_rate_limit_window"),
			TrustedProxies:        splitList(v.GetStringSlice("http.trusted_proxies")),
		},
		GRPC: GRPCConfig{
			Port: v.GetString("grpc.port"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList accepts both TOML arrays and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "storefront"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 3306
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "root"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "storefront"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 50
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 25
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 100
	}

	if cfg.JWT.Secret == "" && !cfg.App.IsProduction() {
		cfg.JWT.Secret = "storefront-development-secret"
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = cfg.App.Name
	}
	if cfg.JWT.Expiration == 0 {
		cfg.JWT.Expiration = 24 * time.Hour
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		if cfg.App.IsProduction() {
			cfg.Log.Format = "json"
		} else {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.OTP.Store == "" {
		cfg.OTP.Store = "memory"
	}
	if cfg.OTP.TTL == 0 {
		cfg.OTP.TTL = 10 * time.Minute
	}
	if cfg.OTP.MaxAttempts == 0 {
		cfg.OTP.MaxAttempts = 5
	}

	if cfg.Order.TxTimeout == 0 {
		cfg.Order.TxTimeout = 5 * time.Second
	}
	if cfg.Order.DispatchWorkers == 0 {
		cfg.Order.DispatchWorkers = 4
	}
	if cfg.Order.DispatchQueueSize == 0 {
		cfg.Order.DispatchQueueSize = 1000
	}
	if cfg.Order.DispatchRetries == 0 {
		cfg.Order.DispatchRetries = 3
	}
	if cfg.Order.DispatchBackoff == 0 {
		cfg.Order.DispatchBackoff = 200 * time.Millisecond
	}
	if cfg.Order.DispatchTimeout == 0 {
		cfg.Order.DispatchTimeout = 5 * time.Second
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.TopicOrderCreated == "" {
		cfg.Kafka.TopicOrderCreated = "order-created"
	}
	if cfg.Kafka.TopicOrderStatusUpdated == "" {
		cfg.Kafka.TopicOrderStatusUpdated = "order-status-updated"
	}
	if cfg.Kafka.TopicOTPIssued == "" {
		cfg.Kafka.TopicOTPIssued = "otp-issued"
	}
	if cfg.Kafka.Partitions == 0 {
		cfg.Kafka.Partitions = 3
	}

	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HTTP.AuthRateLimitRequests == 0 {
		cfg.HTTP.AuthRateLimitRequests = 10
	}
	if cfg.HTTP.AuthRateLimitWindow == 0 {
		cfg.HTTP.AuthRateLimitWindow = time.Minute
	}

	if cfg.GRPC.Port == "" {
		cfg.GRPC.Port = "50051"
	}
}

func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.OTP.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("otp.store must be memory or redis, got %q", c.OTP.Store)
	}
	if c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("otp.max_attempts must be at least 1")
	}
	if c.OTP.TTL < 0 {
		return fmt.Errorf("otp.ttl cannot be negative")
	}

	if c.Order.DispatchWorkers < 1 {
		return fmt.Errorf("order.dispatch_workers must be at least 1")
	}
	if c.Order.DispatchQueueSize < 1 {
		return fmt.Errorf("order.dispatch_queue_size must be at least 1")
	}
	if c.Order.DispatchRetries < 0 {
		return fmt.Errorf("order.dispatch_retries cannot be negative")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}

	if c.App.IsProduction() {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
	}
	return nil
}
