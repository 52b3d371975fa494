// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package xtract

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sassoftware/pdf-xtract/cache"
	"github.com/sassoftware/pdf-xtract/logger"
	"gopkg.in/yaml.v3"
)

type ParsingMode string

const (
	Strict     ParsingMode = "strict"
	BestEffort ParsingMode = "best-effort"
)

type Config struct {
	MaxConcurrentPDFs int           `yaml:"maxConcurrentPDFs" validate:"min=1,max=10"`
	MaxWorkersPerPDF  int           `yaml:"maxWorkersPerPDF" validate:"min=1,max=10"`
	WorkerTimeout     time.Duration `yaml:"workerTimeout" validate:"required"`
	ParsingMode       ParsingMode   `yaml:"parsingMode" validate:"oneof=strict best-effort"`
	MaxRetries        int           `yaml:"maxRetries" validate:"min=0,max=3"`
	MaxTotalChars     int           `yaml:"maxTotalChars" validate:"min=0"`
	DebugOn           bool          `yaml:"debug"`
	// Text holds the whitespace thresholds. A zero value means the defaults.
	Text TextOptions `yaml:"text"`
	// CacheTTL is how long cached results live; zero keeps them until the
	// store evicts them.
	CacheTTL time.Duration `yaml:"cacheTTL" validate:"min=0"`

	Logger logger.LogFunc `yaml:"-"`
	Cache  cache.Store    `yaml:"-"`
}

func NewDefaultConfig() *Config {
	return &Config{
		MaxConcurrentPDFs: 5,
		MaxWorkersPerPDF:  1,
		WorkerTimeout:     5 * time.Second,
		ParsingMode:       BestEffort,
		MaxRetries:        3,
		MaxTotalChars:     0,
		DebugOn:           false,
		Text:              DefaultTextOptions(),
	}
}

// textOptions returns the configured thresholds, or the defaults when
// none are set.
func (cfg *Config) textOptions() TextOptions {
	if cfg.Text == (TextOptions{}) {
		return DefaultTextOptions()
	}
	return cfg.Text
}

func (cfg *Config) Validate() error {
	logger.Debug("Validating Config Object")
	c := *cfg
	c.Text = cfg.textOptions()
	validate := validator.New()
	return validate.Struct(&c)
}

// LoadConfig reads a YAML file over the default configuration and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
