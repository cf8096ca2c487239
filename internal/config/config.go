package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Provider ProviderConfig `mapstructure:"provider"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port          int        `mapstructure:"port"`
	Mode          string     `mapstructure:"mode"`
	MaxUploadSize int64      `mapstructure:"max_upload_size"`
	CORS          CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`   // sqlite file
	URL             string        `mapstructure:"url"`    // postgres DSN
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogQueries      bool          `mapstructure:"log_queries"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.URL
	}
	return c.Path
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // local, s3, r2, s3compatible
	LocalDir  string `mapstructure:"local_dir"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type EngineConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"` // 0 = unbounded
	PartTimeout    time.Duration `mapstructure:"part_timeout"`    // 0 = none
}

type QueueConfig struct {
	Backend       string        `mapstructure:"backend"` // fs, table
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	InboundDir    string        `mapstructure:"inbound_dir"`
	OutputDir     string        `mapstructure:"output_dir"`
	FailedDir     string        `mapstructure:"failed_dir"`
	Watch         bool          `mapstructure:"watch"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
	StaleAfter    time.Duration `mapstructure:"stale_after"` // 0 = never fail stale jobs
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	File        string `mapstructure:"file"`
	Environment string `mapstructure:"environment"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("provider.api_key", "OPENAI_API_KEY")
	v.BindEnv("provider.base_url", "OPENAI_BASE_URL")
	v.BindEnv("provider.model", "OPENAI_MODEL")
	v.BindEnv("queue.backend", "QUEUE_BACKEND")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Provider.ResolveEnvVars()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_upload_size", 64<<20)
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/slidewise.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_dir", "./data/uploads")
	v.SetDefault("storage.bucket", "slidewise")
	v.SetDefault("provider.client", "resty")
	v.SetDefault("provider.model", "gpt-3.5-turbo")
	v.SetDefault("provider.base_url", "https://api.openai.com/v1")
	v.SetDefault("provider.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("provider.max_tokens", 200)
	v.SetDefault("provider.timeout", 60*time.Second)
	v.SetDefault("provider.retry_count", 2)
	v.SetDefault("engine.max_concurrency", 0)
	v.SetDefault("engine.part_timeout", 0)
	v.SetDefault("queue.backend", "table")
	v.SetDefault("queue.poll_interval", 10*time.Second)
	v.SetDefault("queue.inbound_dir", "./data/uploads")
	v.SetDefault("queue.output_dir", "./data/outputs")
	v.SetDefault("queue.failed_dir", "./data/failed")
	v.SetDefault("queue.watch", true)
	v.SetDefault("queue.watch_debounce", 500*time.Millisecond)
	v.SetDefault("queue.stale_after", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "local")
}

// Validate checks cross-field constraints that defaults cannot express.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database: path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database: url is required for postgres")
		}
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}

	switch c.Queue.Backend {
	case "fs":
		if c.Queue.InboundDir == "" || c.Queue.OutputDir == "" {
			return fmt.Errorf("queue: inbound_dir and output_dir are required for the fs backend")
		}
	case "table":
	default:
		return fmt.Errorf("queue: unknown backend %q", c.Queue.Backend)
	}

	if c.Queue.PollInterval <= 0 {
		return fmt.Errorf("queue: poll_interval must be positive")
	}
	if c.Engine.MaxConcurrency < 0 {
		return fmt.Errorf("engine: max_concurrency must not be negative")
	}

	switch c.Storage.Type {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage: local_dir is required for local storage")
		}
	case "s3", "r2", "s3compatible":
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			return fmt.Errorf("storage: endpoint and bucket are required for %s", c.Storage.Type)
		}
	default:
		return fmt.Errorf("storage: unknown type %q", c.Storage.Type)
	}

	return c.Provider.Validate()
}
