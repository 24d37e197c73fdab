package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

// envConfig holds flag defaults taken from the environment, so CI jobs
// can pin the output shape without repeating flags.
type envConfig struct {
	Format        string        `env:"STACKPLAN_FORMAT" envDefault:"yaml"`
	Output        string        `env:"STACKPLAN_OUTPUT"`
	WatchDebounce time.Duration `env:"STACKPLAN_WATCH_DEBOUNCE" envDefault:"500ms"`
}

func loadEnvConfig() (envConfig, error) {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return envConfig{}, fmt.Errorf("reading environment: %w", err)
	}
	return cfg, nil
}
