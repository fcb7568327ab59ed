package config

import (
	"errors"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port           string `envconfig:"APP_PORT" default:"8080"`
	Env            string `envconfig:"APP_ENV" default:"dev"`
	DatabaseDSN    string `envconfig:"DATABASE_DSN" default:"host=localhost user=postgres password=postgres dbname=chatcore port=5432 sslmode=disable TimeZone=UTC"`
	CacheDir       string `envconfig:"CACHE_DIR" default:""`
	JWTSecret      string `envconfig:"JWT_SECRET" default:"dev-secret-change-me"`
	CacheTTLSecs   int    `envconfig:"CACHE_TTL_SECONDS" default:"3600"`
	MaxMessageSize int64  `envconfig:"WS_MAX_MESSAGE_BYTES" default:"1048576"`
	SendBuffer     int    `envconfig:"WS_SEND_BUFFER" default:"256"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that are unsafe outside dev.
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port must not be empty")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("database dsn must not be empty")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == "dev-secret-change-me" {
		return errors.New("default jwt secret not allowed outside dev")
	}
	if cfg.SendBuffer <= 0 {
		return errors.New("send buffer must be positive")
	}
	return nil
}
