// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/SkiSpec/services/skispec/advisor"
)

const (
	// DefaultBaseURL is where `skispec serve` listens by default.
	DefaultBaseURL = "http://127.0.0.1:8000"

	// DefaultConcurrency bounds in-flight eval requests.
	DefaultConcurrency = 4

	// DefaultRequestTimeout bounds one chat request.
	DefaultRequestTimeout = 120 * time.Second

	// maxResponseBytes bounds a chat response body.
	maxResponseBytes = 1 << 20
)

// Markers used to classify responses.
const (
	refusalPrefix        = "This assistant provides"
	outOfScopeMarker     = "outside the supported"
	technicianMarker     = "certified ski technician"
	structuredFormatNote = "structured format"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// BaseURL of the SkiSpec server. Empty uses DefaultBaseURL.
	BaseURL string

	// HTTPClient used for requests. Nil uses a client with DefaultRequestTimeout.
	HTTPClient *http.Client

	// Concurrency bounds in-flight cases. Zero uses DefaultConcurrency.
	Concurrency int

	// Judge also grades exact cases through the server's evaluator prompt.
	Judge bool

	// NewID generates a fresh session id per case. Nil uses uuid.NewString.
	NewID func() string

	// Logger for progress. Nil uses slog.Default().
	Logger *slog.Logger
}

// Runner posts dataset cases to a SkiSpec server and checks the answers.
//
// Thread Safety: Safe for concurrent use.
type Runner struct {
	cfg RunnerConfig
}

// NewRunner creates a Runner, filling defaults.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{cfg: cfg}
}

// Run evaluates every case and returns the report in case order.
//
// Description:
//
//	Each case runs in a fresh session so no history leaks between cases.
//	A transport failure fails that case only; Run returns an error only when
//	ctx ends before all cases finish.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	cases - Cases to run.
//
// Outputs:
//
//	*Report - One Result per case, in input order.
//	error - Non-nil if ctx was cancelled.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Report, error) {
	start := time.Now()
	results := make([]Result, len(cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i, c := range cases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.runCase(gctx, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("eval run: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("eval run: %w", err)
	}

	report := &Report{Results: results, Elapsed: time.Since(start)}
	for _, res := range results {
		if res.Pass {
			report.Passed++
		}
	}
	r.cfg.Logger.Info("Eval complete",
		slog.Int("passed", report.Passed),
		slog.Int("total", len(results)),
		slog.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

func (r *Runner) runCase(ctx context.Context, c Case) Result {
	start := time.Now()
	res := Result{Case: c}

	got, err := r.chat(ctx, c.Message)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Err = err
		res.Reason = "request failed: " + err.Error()
		r.cfg.Logger.Warn("Eval case failed", slog.String("case", c.ID), slog.String("error", err.Error()))
		return res
	}
	res.Got = got
	res.Pass, res.Reason = Check(c, got)

	if c.Expect == ExpectExact {
		if !res.Pass {
			res.Diff = UnifiedDiff(c.Answer, got)
		}
		if r.cfg.Judge {
			verdict, jerr := r.judge(ctx, c.Answer, got)
			if jerr != nil {
				r.cfg.Logger.Warn("Judge request failed", slog.String("case", c.ID), slog.String("error", jerr.Error()))
			} else {
				res.Judge = &verdict
			}
		}
	}

	r.cfg.Logger.Debug("Eval case done",
		slog.String("case", c.ID),
		slog.Bool("pass", res.Pass),
		slog.Duration("elapsed", res.Elapsed),
	)
	return res
}

// chat posts one message in a new session and returns the response text.
func (r *Runner) chat(ctx context.Context, message string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"message":    message,
		"session_id": r.cfg.NewID(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post /v1/chat: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Response, nil
}

// judge asks the server's evaluator to grade actual against expected.
func (r *Runner) judge(ctx context.Context, expected, actual string) (advisor.JudgeVerdict, error) {
	text, err := r.chat(ctx, JudgePrompt(expected, actual))
	if err != nil {
		return advisor.JudgeVerdict{}, err
	}
	var v advisor.JudgeVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err != nil {
		return advisor.JudgeVerdict{}, fmt.Errorf("decode verdict %q: %w", text, err)
	}
	return v, nil
}

// JudgePrompt builds the evaluator prompt for one exact case.
func JudgePrompt(expected, actual string) string {
	return "You are a strict evaluator.\n\n" +
		advisor.JudgeExpectedMarker + "\n" + expected + "\n\n" +
		advisor.JudgeActualMarker + "\n" + actual + "\n\n" +
		"Return only JSON with verdict PASS or FAIL and a short reason."
}

// Check grades a response against a case's expectation.
//
// Outputs:
//
//	bool - True if the response satisfies the expectation.
//	string - Short reason for the grade.
func Check(c Case, got string) (bool, string) {
	norm := advisor.NormalizeText(got)

	switch c.Expect {
	case ExpectExact:
		if norm == advisor.NormalizeText(c.Answer) {
			return true, "exact match"
		}
		return false, "response differs from expected answer"

	case ExpectRefusal:
		if !IsRefusal(norm) {
			return false, "expected a refusal"
		}
		return true, "refused"

	case ExpectStructured:
		if _, err := advisor.ParseRecommendation(norm); err == nil {
			return true, "structured recommendation"
		}
		if strings.Contains(norm, structuredFormatNote) && !IsRefusal(norm) {
			return true, "structured format notice"
		}
		return false, "response abandoned the structured format"

	default:
		return false, fmt.Sprintf("unknown expectation %q", c.Expect)
	}
}

// IsRefusal reports whether text is a scope or safety refusal.
func IsRefusal(text string) bool {
	if !strings.HasPrefix(text, refusalPrefix) {
		return false
	}
	if _, err := advisor.ParseRecommendation(text); err == nil {
		return false
	}
	return strings.Contains(text, outOfScopeMarker) || strings.Contains(text, technicianMarker)
}
