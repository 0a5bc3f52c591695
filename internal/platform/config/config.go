package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Session   SessionConfig   `mapstructure:"session"`
	Invites   InvitesConfig   `mapstructure:"invites"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type SessionConfig struct {
	CookieName   string `mapstructure:"cookie_name"`
	CookieSecure bool   `mapstructure:"cookie_secure"`
}

type InvitesConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
	// SweepInterval is how often cmd/worker marks overdue invites expired.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RateLimitConfig struct {
	// Backend is "memory" or "redis".
	Backend           string        `mapstructure:"backend"`
	AuthPerMinute     int           `mapstructure:"auth_per_minute"`
	APIWritePerMinute int           `mapstructure:"api_write_per_minute"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NotifyConfig struct {
	Endpoints []string      `mapstructure:"endpoints"`
	Secret    string        `mapstructure:"secret"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.url", "file:./data/agencycrm.db")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("jwt.issuer", "agencycrm")
	v.SetDefault("jwt.access_token_ttl", 24*time.Hour)

	v.SetDefault("session.cookie_name", "crm_session")
	v.SetDefault("session.cookie_secure", true)

	v.SetDefault("invites.ttl", 7*24*time.Hour)
	v.SetDefault("invites.sweep_interval", time.Hour)

	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.auth_per_minute", 20)
	v.SetDefault("rate_limit.api_write_per_minute", 300)
	v.SetDefault("rate_limit.idle_ttl", 10*time.Minute)

	v.SetDefault("notify.timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads the YAML file at path. Environment variables override file values,
// with dots replaced by underscores (JWT_SECRET overrides jwt.secret).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
