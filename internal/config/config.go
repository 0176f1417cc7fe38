package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	DatabaseURL  string `env:"DATABASE_URL" env-default:""`
	OutputDir    string `env:"SPECQL_OUTPUT_DIR" env-default:"generated/sql"`
	TemplatesDir string `env:"SPECQL_TEMPLATES_DIR" env-default:"templates"`
	ConfigPath   string `env:"SPECQL_CONFIG" env-default:"specql.yaml"`
}

func Load() (*Config, error) {
	var cfg Config

	// Environment variables only; CLI flags override per invocation.
	err := cleanenv.ReadEnv(&cfg)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return &cfg, nil
}
