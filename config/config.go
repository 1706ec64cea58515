package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the API process needs to start. Values come from an
// optional YAML file and are overridden by environment variables, which always
// win so deployments can keep secrets out of the file.
type Config struct {
	HTTP struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"http"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist) and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// env-only deployments are fine
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("config: database url not set (DATABASE_URL)")
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: jwt secret not set (JWT_SECRET)")
	}

	return cfg, nil
}

func defaults() Config {
	var cfg Config
	cfg.HTTP.Addr = ":8080"
	cfg.HTTP.ShutdownTimeout = 10 * time.Second
	cfg.Auth.TokenTTL = 24 * time.Hour
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.TokenTTL = d
		}
	}
}
