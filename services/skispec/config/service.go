// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Service Configuration
// =============================================================================

// ServiceConfig configures the SkiSpec service process.
//
// Description:
//
//	Loaded from an optional YAML file, then overridden by environment
//	variables, then validated with struct tags. Zero values are replaced with
//	defaults before validation.
type ServiceConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	Rules     RulesFileConfig `yaml:"rules"`
	Generator GeneratorConfig `yaml:"generator"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr  string `yaml:"addr" validate:"required,hostname_port"`
	Debug bool   `yaml:"debug"`
}

// SessionConfig selects the session backend.
type SessionConfig struct {
	// Backend is "memory" or "badger" (in-memory BadgerDB).
	Backend string `yaml:"backend" validate:"required,oneof=memory badger"`
}

// RulesFileConfig points at an optional rules override file.
type RulesFileConfig struct {
	// Path is a rules YAML file. Empty uses the embedded defaults.
	Path string `yaml:"path" validate:"omitempty,filepath"`

	// Watch hot-reloads Path when it changes.
	Watch bool `yaml:"watch"`
}

// GeneratorConfig configures the optional external text generator.
type GeneratorConfig struct {
	// Provider is "none", "ollama", or "openai".
	Provider string `yaml:"provider" validate:"required,oneof=none ollama openai"`

	// Model is the provider model name.
	Model string `yaml:"model" validate:"required_unless=Provider none"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`

	// APIKey authenticates with the provider. Usually from OPENAI_API_KEY.
	APIKey string `yaml:"-" validate:"required_if=Provider openai"`

	// Timeout bounds a single generation.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// RatePerMinute caps generator calls; 0 disables the generator limit.
	RatePerMinute int `yaml:"rate_per_minute" validate:"gte=0"`
}

// TracingConfig selects the OpenTelemetry span exporter.
type TracingConfig struct {
	// Exporter is "none", "stdout", or "otlp".
	Exporter string `yaml:"exporter" validate:"required,oneof=none stdout otlp"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `yaml:"endpoint" validate:"required_if=Exporter otlp"`
}

const (
	// DefaultAddr matches the loopback port the web client expects.
	DefaultAddr = "127.0.0.1:8000"

	// DefaultGeneratorTimeout bounds a single generation.
	DefaultGeneratorTimeout = 30 * time.Second

	// DefaultGeneratorRatePerMinute caps generator calls per minute.
	DefaultGeneratorRatePerMinute = 60
)

// ErrInvalidServiceConfig wraps validation failures.
var ErrInvalidServiceConfig = errors.New("invalid service config")

var serviceValidator = validator.New(validator.WithRequiredStructEnabled())

// DefaultServiceConfig returns the configuration used when no file is given.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Server:  ServerConfig{Addr: DefaultAddr},
		Session: SessionConfig{Backend: "memory"},
		Generator: GeneratorConfig{
			Provider:      "none",
			Timeout:       DefaultGeneratorTimeout,
			RatePerMinute: DefaultGeneratorRatePerMinute,
		},
		Tracing: TracingConfig{Exporter: "none"},
	}
}

// LoadServiceConfig loads the service configuration.
//
// Description:
//
//	Starts from DefaultServiceConfig, overlays the YAML file at path when
//	path is non-empty, applies environment overrides, and validates.
//
// Inputs:
//
//	path - YAML config file. Empty skips the file.
//
// Outputs:
//
//	ServiceConfig - The validated configuration.
//	error - Non-nil on read, parse, or validation failure.
func LoadServiceConfig(path string) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return ServiceConfig{}, fmt.Errorf("LoadServiceConfig: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return ServiceConfig{}, fmt.Errorf("LoadServiceConfig: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg, os.Getenv)
	applyServiceDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return ServiceConfig{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func (c ServiceConfig) Validate() error {
	if err := serviceValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidServiceConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidServiceConfig, err)
	}
	return nil
}

func applyServiceDefaults(cfg *ServiceConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "memory"
	}
	if cfg.Generator.Provider == "" {
		cfg.Generator.Provider = "none"
	}
	if cfg.Generator.Timeout == 0 {
		cfg.Generator.Timeout = DefaultGeneratorTimeout
	}
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = "none"
	}
}

// applyEnvOverrides overlays environment variables onto cfg.
func applyEnvOverrides(cfg *ServiceConfig, getenv func(string) string) {
	if v := getenv("SKISPEC_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := getenv("SKISPEC_SESSION_BACKEND"); v != "" {
		cfg.Session.Backend = v
	}
	if v := getenv("SKISPEC_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := getenv("SKISPEC_GENERATOR"); v != "" {
		cfg.Generator.Provider = v
	}
	if v := getenv("SKISPEC_GENERATOR_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generator.RatePerMinute = n
		} else {
			slog.Warn("ignoring invalid SKISPEC_GENERATOR_RPM", slog.String("value", v))
		}
	}
	if v := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}

	switch cfg.Generator.Provider {
	case "ollama":
		if v := getenv("OLLAMA_BASE_URL"); v != "" {
			cfg.Generator.BaseURL = v
		}
		if v := getenv("OLLAMA_MODEL"); v != "" {
			cfg.Generator.Model = v
		}
	case "openai":
		if v := getenv("OPENAI_BASE_URL"); v != "" {
			cfg.Generator.BaseURL = v
		}
		if v := getenv("OPENAI_MODEL"); v != "" {
			cfg.Generator.Model = v
		}
		if v := getenv("OPENAI_API_KEY"); v != "" {
			cfg.Generator.APIKey = v
		}
	}
}
