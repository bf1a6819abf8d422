// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generator adapts external language models to advisor.Generator.
//
// Generated text is never trusted: the advisor pipeline cleans and validates
// every candidate, and any error here makes it fall back to the heuristic
// synthesizer. The package therefore only has to produce text, bound the
// cost of producing it, and keep credentials out of the logs.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/SkiSpec/services/skispec/advisor"
	"github.com/AleutianAI/SkiSpec/services/skispec/config"
)

var generatorTracer = otel.Tracer("skispec.generator")

// Generation settings. Temperature zero keeps output as repeatable as the
// provider allows.
const (
	DefaultTemperature = 0.0
	DefaultMaxTokens   = 128
)

const (
	statusOK          = "ok"
	statusError       = "error"
	statusTimeout     = "timeout"
	statusRateLimited = "rate_limited"
)

var (
	// ErrRateLimited is returned when the call budget is exhausted.
	ErrRateLimited = errors.New("generator rate limit exceeded")

	// ErrEmptyOutput is returned when the model produced no text.
	ErrEmptyOutput = errors.New("generator returned empty output")

	// ErrUnknownProvider is returned by New for an unsupported provider.
	ErrUnknownProvider = errors.New("unknown generator provider")
)

// =============================================================================
// LangChain Generator
// =============================================================================

// LangChainGenerator produces candidates with a langchaingo model.
//
// Thread Safety: Safe for concurrent use if the model is.
type LangChainGenerator struct {
	model        llms.Model
	historyChars int
}

// NewLangChainGenerator wraps model.
//
// Inputs:
//
//	model - Any langchaingo model. Must not be nil.
//	historyChars - Conversation budget passed to BuildPrompt.
func NewLangChainGenerator(model llms.Model, historyChars int) *LangChainGenerator {
	if model == nil {
		panic("generator: model must not be nil")
	}
	return &LangChainGenerator{model: model, historyChars: historyChars}
}

// Generate implements advisor.Generator.
func (g *LangChainGenerator) Generate(ctx context.Context, req advisor.GenerationRequest) (string, error) {
	msgs := BuildPrompt(req.History, req.Message, g.historyChars)
	resp, err := g.model.GenerateContent(ctx, msgs,
		llms.WithTemperature(DefaultTemperature),
		llms.WithMaxTokens(DefaultMaxTokens),
		llms.WithStopWords([]string{advisor.EndOfSequence}),
	)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", ErrEmptyOutput
	}
	return resp.Choices[0].Content, nil
}

// =============================================================================
// Guarded
// =============================================================================

// GuardConfig bounds a wrapped generator.
type GuardConfig struct {
	// Provider labels metrics and spans.
	Provider string

	// Timeout bounds each call. Zero means no extra bound.
	Timeout time.Duration

	// RatePerMinute caps calls. Zero disables the cap.
	RatePerMinute int

	// Logger for failures. Nil uses slog.Default().
	Logger *slog.Logger
}

// Guarded wraps a generator with a rate limit, a timeout, tracing, and metrics.
//
// Description:
//
//	Calls over budget fail immediately with ErrRateLimited rather than
//	queueing, so a busy provider degrades to the synthesizer instead of
//	stalling chat requests. Errors are logged with credentials redacted.
//
// Thread Safety: Safe for concurrent use.
type Guarded struct {
	next     advisor.Generator
	provider string
	timeout  time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewGuarded wraps next.
func NewGuarded(next advisor.Generator, cfg GuardConfig) *Guarded {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	g := &Guarded{
		next:     next,
		provider: cfg.Provider,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
	if cfg.RatePerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute)
	}
	return g
}

// Generate implements advisor.Generator.
func (g *Guarded) Generate(ctx context.Context, req advisor.GenerationRequest) (string, error) {
	ctx, span := generatorTracer.Start(ctx, "generator.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("provider", g.provider))

	start := time.Now()
	if g.limiter != nil && !g.limiter.Allow() {
		recordGeneration(g.provider, statusRateLimited, 0)
		span.SetStatus(codes.Error, statusRateLimited)
		return "", ErrRateLimited
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	out, err := g.next.Generate(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		status := statusError
		if errors.Is(err, context.DeadlineExceeded) {
			status = statusTimeout
		}
		recordGeneration(g.provider, status, elapsed)
		safe := SafeLogString(err.Error())
		span.SetStatus(codes.Error, safe)
		g.logger.Warn("generation failed",
			slog.String("provider", g.provider),
			slog.String("status", status),
			slog.String("error", safe),
			slog.Duration("elapsed", elapsed),
		)
		return "", fmt.Errorf("%s: %w", g.provider, err)
	}

	recordGeneration(g.provider, statusOK, elapsed)
	span.SetAttributes(attribute.Int("output_chars", len(out)))
	return out, nil
}

// =============================================================================
// Construction from config
// =============================================================================

// New builds the configured generator.
//
// Description:
//
//	Provider "none" returns (nil, nil): the pipeline then uses the heuristic
//	synthesizer only. "ollama" and "openai" build a langchaingo model and wrap
//	it in Guarded.
//
// Inputs:
//
//	cfg - Validated generator configuration.
//	historyChars - Conversation budget for prompts.
//	logger - Logger for failures. Nil uses slog.Default().
//
// Outputs:
//
//	advisor.Generator - The generator, or nil when disabled.
//	error - Non-nil if the provider client cannot be built.
func New(cfg config.GeneratorConfig, historyChars int, logger *slog.Logger) (advisor.Generator, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model), openai.WithToken(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %s", cfg.Provider, SafeLogString(err.Error()))
	}

	return NewGuarded(NewLangChainGenerator(model, historyChars), GuardConfig{
		Provider:      cfg.Provider,
		Timeout:       cfg.Timeout,
		RatePerMinute: cfg.RatePerMinute,
		Logger:        logger,
	}), nil
}
