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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultServiceConfig_Valid(t *testing.T) {
	cfg := DefaultServiceConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:8000", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, "none", cfg.Generator.Provider)
}

func TestLoadServiceConfig_File(t *testing.T) {
	t.Setenv("SKISPEC_ADDR", "")
	path := filepath.Join(t.TempDir(), "skispec.yaml")
	data := []byte(`
server:
  addr: "0.0.0.0:9000"
session:
  backend: badger
generator:
  provider: ollama
  model: llama3.2
  timeout: 5s
tracing:
  exporter: stdout
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadServiceConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "badger", cfg.Session.Backend)
	assert.Equal(t, "ollama", cfg.Generator.Provider)
	assert.Equal(t, 5*time.Second, cfg.Generator.Timeout)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
}

func TestServiceConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServiceConfig)
	}{
		{"unknown backend", func(c *ServiceConfig) { c.Session.Backend = "redis" }},
		{"unknown provider", func(c *ServiceConfig) { c.Generator.Provider = "gemini" }},
		{"ollama without model", func(c *ServiceConfig) { c.Generator.Provider = "ollama" }},
		{"openai without key", func(c *ServiceConfig) {
			c.Generator.Provider = "openai"
			c.Generator.Model = "gpt-4o-mini"
		}},
		{"otlp without endpoint", func(c *ServiceConfig) { c.Tracing.Exporter = "otlp" }},
		{"negative rate", func(c *ServiceConfig) { c.Generator.RatePerMinute = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServiceConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidServiceConfig))
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"SKISPEC_ADDR":          "127.0.0.1:9999",
		"SKISPEC_GENERATOR":     "openai",
		"SKISPEC_GENERATOR_RPM": "12",
		"OPENAI_API_KEY":        "sk-test",
		"OPENAI_MODEL":          "gpt-4o-mini",
		"OLLAMA_MODEL":          "ignored",
	}
	cfg := DefaultServiceConfig()
	applyEnvOverrides(&cfg, func(k string) string { return env[k] })

	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "openai", cfg.Generator.Provider)
	assert.Equal(t, 12, cfg.Generator.RatePerMinute)
	assert.Equal(t, "sk-test", cfg.Generator.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.Generator.Model)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvOverrides_InvalidRate(t *testing.T) {
	cfg := DefaultServiceConfig()
	applyEnvOverrides(&cfg, func(k string) string {
		if k == "SKISPEC_GENERATOR_RPM" {
			return "lots"
		}
		return ""
	})
	assert.Equal(t, DefaultGeneratorRatePerMinute, cfg.Generator.RatePerMinute)
}
