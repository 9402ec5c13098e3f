package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Remote    RemoteConfig    `mapstructure:"remote"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Export    ExportConfig    `mapstructure:"export"`
	Job       JobConfig       `mapstructure:"job"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type RemoteConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	Auth      AuthConfig    `mapstructure:"auth"`
}

// AuthConfig enables OAuth2 client-credentials when TokenURL is set.
type AuthConfig struct {
	TokenURL     string        `mapstructure:"token_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Scopes       []string      `mapstructure:"scopes"`
	Skew         time.Duration `mapstructure:"skew"`
}

// Enabled reports whether bearer tokens should be attached to remote calls.
func (a AuthConfig) Enabled() bool {
	return a.TokenURL != ""
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Backoff     string        `mapstructure:"backoff"`
	Jitter      float64       `mapstructure:"jitter"`
}

type FetchConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Interval    time.Duration `mapstructure:"interval"`
	PageSize    int           `mapstructure:"page_size"`
}

type StoreConfig struct {
	ChunkSize    int    `mapstructure:"chunk_size"`
	RemoteDriver string `mapstructure:"remote_driver"` // database, s3
	EmulatorPath string `mapstructure:"emulator_path"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	URL             string        `mapstructure:"url"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogQueries      bool          `mapstructure:"log_queries"`
}

// DSN returns the connection string for the configured driver.
func (c DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		if c.URL != "" {
			return c.URL
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type StorageConfig struct {
	Type         string `mapstructure:"type"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Prefix       string `mapstructure:"prefix"`
	CreateBucket bool   `mapstructure:"create_bucket"`
}

type CacheConfig struct {
	Driver    string `mapstructure:"driver"` // memory, valkey
	Address   string `mapstructure:"address"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

type JobConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"` // 0 means no overall deadline
	DefaultDestination string        `mapstructure:"default_destination"`
	HistoryLimit       int           `mapstructure:"history_limit"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type SchedulerConfig struct {
	Timezone string          `mapstructure:"timezone"`
	Entries  []ScheduleEntry `mapstructure:"entries"`
}

// ScheduleEntry runs one family on a cron expression.
type ScheduleEntry struct {
	Family      string `mapstructure:"family"`
	Cron        string `mapstructure:"cron"`
	Destination string `mapstructure:"destination"`
	Period      int    `mapstructure:"period"`
	Limit       int    `mapstructure:"limit"`
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

	// Secrets are bound explicitly so they never need to live in the YAML file.
	_ = v.BindEnv("remote.auth.client_id", "REMOTE_CLIENT_ID")
	_ = v.BindEnv("remote.auth.client_secret", "REMOTE_CLIENT_SECRET")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("database.password", "DATABASE_PASSWORD")
	_ = v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	_ = v.BindEnv("cache.address", "VALKEY_ADDRESS")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.base_url", "https://dadosabertos.camara.leg.br/api/v2")
	v.SetDefault("remote.timeout", 30*time.Second)
	v.SetDefault("remote.user_agent", "legisync/1.0")
	v.SetDefault("remote.auth.skew", time.Minute)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.min_delay", 100*time.Millisecond)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("retry.backoff", "exponential")
	v.SetDefault("retry.jitter", 0.1)

	v.SetDefault("fetch.concurrency", 1)
	v.SetDefault("fetch.interval", 200*time.Millisecond)
	v.SetDefault("fetch.page_size", 100)

	v.SetDefault("store.chunk_size", 500)
	v.SetDefault("store.remote_driver", "database")
	v.SetDefault("store.emulator_path", "./data/emulator.db")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/legisync.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "legisync")

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.key_prefix", "legisync:")

	v.SetDefault("export.dir", "./data/export")

	v.SetDefault("job.timeout", 0)
	v.SetDefault("job.default_destination", "emulator")
	v.SetDefault("job.history_limit", 50)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("scheduler.timezone", "America/Sao_Paulo")
}
