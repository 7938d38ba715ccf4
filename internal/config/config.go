package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the service configuration, resolved from the environment
type Config struct {
	Port     string         `mapstructure:"port"`
	App      AppConfig      `mapstructure:"app"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	S3       S3Config       `mapstructure:"s3"`
	Log      LogConfig      `mapstructure:"log"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Presence PresenceConfig `mapstructure:"presence"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
}

type CORSConfig struct {
	Origins string `mapstructure:"origins"`
}

type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// RedisConfig enables the shared session registry and cross-instance fan-out
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type S3Config struct {
	Endpoint      string `mapstructure:"endpoint"`
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// Enabled reports whether enough is configured to reach a bucket
func (c S3Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type GatewayConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	TypingRate   float64       `mapstructure:"typing_rate"`
	TypingBurst  int           `mapstructure:"typing_burst"`
}

type PresenceConfig struct {
	ResetOnStart bool `mapstructure:"reset_on_start"`
}

// Load resolves the configuration from environment variables. Nested keys map
// to upper-case underscore names, e.g. database.url -> DATABASE_URL.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	if c.Gateway.PingInterval <= 0 || c.Gateway.PongWait <= 0 {
		return fmt.Errorf("gateway ping interval and pong wait must be positive")
	}
	return nil
}

// viper only resolves env overrides for keys it already knows about, so every
// key gets a default here
func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("app.name", "Chat Engine API v1.0")
	v.SetDefault("cors.origins", "http://localhost:3000")

	v.SetDefault("database.url", "")
	v.SetDefault("database.migrate", true)

	v.SetDefault("jwt.secret", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.use_ssl", false)
	v.SetDefault("s3.public_base_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.directory", "")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 30)
	v.SetDefault("log.max_age", 90)
	v.SetDefault("log.compress", true)

	v.SetDefault("gateway.ping_interval", 30*time.Second)
	v.SetDefault("gateway.pong_wait", 10*time.Second)
	v.SetDefault("gateway.send_buffer", 256)
	v.SetDefault("gateway.typing_rate", 5.0)
	v.SetDefault("gateway.typing_burst", 10)

	v.SetDefault("presence.reset_on_start", true)
}
