package cmd

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "FEDSIM_"

// envConfig holds the environment overrides. They apply only to options whose
// flag was not set explicitly.
type envConfig struct {
	LogLevel  string `env:"LOG_LEVEL"`
	ResultDir string `env:"RESULT_DIR"`
	Workers   int    `env:"WORKERS" envDefault:"-1"`
}

func loadEnvConfig() (envConfig, error) {
	var e envConfig
	if err := env.ParseWithOptions(&e, env.Options{Prefix: envPrefix}); err != nil {
		return e, fmt.Errorf("failed to load environment configuration: %w", err)
	}
	return e, nil
}

// apply copies set environment values into cfg unless changed reports the flag as set.
func (e envConfig) apply(cfg *RunConfig, changed func(name string) bool) {
	if e.LogLevel != "" && !changed("log") {
		cfg.LogLevel = e.LogLevel
	}
	if e.ResultDir != "" && !changed("result-dir") {
		cfg.ResultDir = e.ResultDir
	}
	if e.Workers >= 0 && !changed("workers") {
		cfg.Workers = e.Workers
	}
}
