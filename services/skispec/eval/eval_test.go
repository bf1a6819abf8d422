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
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AleutianAI/SkiSpec/services/skispec"
	"github.com/AleutianAI/SkiSpec/services/skispec/advisor"
	"github.com/AleutianAI/SkiSpec/services/skispec/session"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newSkiSpecServer serves the real router over an in-memory session store.
func newSkiSpecServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tables, err := advisor.DefaultTables(context.Background())
	require.NoError(t, err)
	pipeline, err := advisor.NewPipeline(tables, advisor.PipelineConfig{
		Store:  session.NewMemoryStore(),
		Logger: quietLogger,
	})
	require.NoError(t, err)

	h := skispec.NewHandlers(pipeline, skispec.HandlersConfig{Logger: quietLogger})
	return httptest.NewServer(skispec.NewRouter(h, false))
}

// newRunner returns a runner that does not keep idle connections, so leak
// checks see no transport goroutines.
func newRunner(t *testing.T, baseURL string, judge bool) *Runner {
	t.Helper()
	tr := &http.Transport{DisableKeepAlives: true}
	t.Cleanup(tr.CloseIdleConnections)
	return NewRunner(RunnerConfig{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Transport: tr},
		Judge:      judge,
		Logger:     quietLogger,
	})
}

func TestDefaultDataset(t *testing.T) {
	ds, err := DefaultDataset()
	require.NoError(t, err)
	require.Len(t, ds.Cases, 20)

	counts := map[Expectation]int{}
	for _, c := range ds.Cases {
		counts[c.Expect]++
		if c.Expect == ExpectExact {
			_, perr := advisor.ParseRecommendation(c.Answer)
			assert.NoError(t, perr, c.ID)
		}
	}
	assert.Equal(t, map[Expectation]int{ExpectExact: 10, ExpectRefusal: 9, ExpectStructured: 1}, counts)
}

func TestLoadDataset_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "version: 1\ncases: []\n"},
		{"exact without answer", "cases:\n  - {id: a, category: c, message: m, expect: exact}\n"},
		{"unknown expectation", "cases:\n  - {id: a, category: c, message: m, expect: fuzzy}\n"},
		{"missing message", "cases:\n  - {id: a, category: c, expect: refusal}\n"},
		{"duplicate id", "cases:\n  - {id: a, category: c, message: m, expect: refusal}\n  - {id: a, category: c, message: n, expect: refusal}\n"},
		{"not yaml", "cases: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDataset([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidDataset)
		})
	}
}

func TestDataset_Filter(t *testing.T) {
	ds, err := DefaultDataset()
	require.NoError(t, err)

	assert.Len(t, ds.Filter(), 20)
	assert.Len(t, ds.Filter("oos_"), 5)
	assert.Len(t, ds.Filter("in_domain"), 10)
	assert.Len(t, ds.Filter("safe_", "oos_01"), 6)
}

func TestCheck(t *testing.T) {
	ds, err := DefaultDataset()
	require.NoError(t, err)
	exact := ds.Cases[0]
	refusal := Case{ID: "r", Expect: ExpectRefusal}
	structured := Case{ID: "s", Expect: ExpectStructured}

	oos := "This assistant provides ski gear compatibility guidance only.\n\nSnowboarding equipment is outside the supported domain."
	safety := "This assistant provides general ski gear compatibility guidance only.\n\nExact DIN values must be set by a certified ski technician to ensure safety and proper release."
	clarify := "I don’t have enough information yet to recommend ski setup compatibility."
	notice := "This assistant provides ski gear compatibility guidance using a structured format that includes ski type, waist width, boot flex, binding type, and DIN range."

	tests := []struct {
		name string
		c    Case
		got  string
		pass bool
	}{
		{"exact match", exact, exact.Answer, true},
		{"exact match with trailing spaces", exact, strings.ReplaceAll(exact.Answer, "\n", "  \r\n"), true},
		{"exact mismatch", exact, strings.Replace(exact.Answer, "4.0", "4.5", 1), false},
		{"out of scope refusal", refusal, oos, true},
		{"safety refusal", refusal, safety, true},
		{"clarification is not a refusal", refusal, clarify, false},
		{"recommendation is not a refusal", refusal, exact.Answer, false},
		{"structured notice", structured, notice, true},
		{"structured recommendation", structured, exact.Answer, true},
		{"one sentence", structured, "Get all-mountain skis.", false},
		{"refusal is not structured", structured, oos, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pass, reason := Check(tt.c, tt.got)
			assert.Equal(t, tt.pass, pass, reason)
		})
	}
}

func TestRunner_GoldenDatasetPasses(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := newSkiSpecServer(t)
	defer srv.Close()

	ds, err := DefaultDataset()
	require.NoError(t, err)

	report, err := newRunner(t, srv.URL, true).Run(context.Background(), ds.Cases)
	require.NoError(t, err)
	require.Equal(t, len(ds.Cases), report.Total())

	for i, res := range report.Results {
		assert.Equal(t, ds.Cases[i].ID, res.Case.ID, "results keep case order")
		assert.True(t, res.Pass, "%s: %s\n%s", res.Case.ID, res.Reason, res.Got)
		if res.Case.Expect == ExpectExact {
			require.NotNil(t, res.Judge, res.Case.ID)
			assert.Equal(t, advisor.JudgePass, res.Judge.Verdict, res.Case.ID)
		}
	}
	assert.True(t, report.OK())

	var buf bytes.Buffer
	require.NoError(t, report.Render(&buf, false))
	assert.Contains(t, buf.String(), "RESULT: 20/20 passed")
	assert.NotContains(t, buf.String(), "FAILED DETAILS")
}

func TestRunner_ReportsDiffOnMismatch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ds, err := DefaultDataset()
	require.NoError(t, err)
	want := ds.Cases[0]
	wrong := strings.Replace(want.Answer, "Ski type: All-Mountain", "Ski type: Powder", 1)

	var (
		mu       sync.Mutex
		sessions []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req skispec.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		sessions = append(sessions, req.SessionID)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(skispec.ChatResponse{Response: wrong, SessionID: req.SessionID})
	}))
	defer srv.Close()

	runner := newRunner(t, srv.URL, false)
	report, err := runner.Run(context.Background(), []Case{want})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.False(t, res.Pass)
	assert.Contains(t, res.Diff, "-Ski type: All-Mountain")
	assert.Contains(t, res.Diff, "+Ski type: Powder")
	mu.Lock()
	require.Len(t, sessions, 1)
	assert.NotEmpty(t, sessions[0])
	mu.Unlock()

	var buf bytes.Buffer
	require.NoError(t, report.Render(&buf, false))
	out := buf.String()
	assert.Contains(t, out, "in_01: FAIL")
	assert.Contains(t, out, "RESULT: 0/1 passed")
	assert.Contains(t, out, "--- Expected ---")
	assert.Contains(t, out, "--- Diff ---")
}

func TestRunner_HTTPErrorFailsCase(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	report, err := newRunner(t, srv.URL, false).Run(context.Background(), []Case{
		{ID: "oos_01", Category: "out_of_scope", Message: "I want to snowboard.", Expect: ExpectRefusal},
	})
	require.NoError(t, err)
	res := report.Results[0]
	assert.False(t, res.Pass)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "HTTP 500")
}

func TestRunner_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRunner(t, "http://127.0.0.1:1", false).Run(ctx, []Case{
		{ID: "a", Category: "c", Message: "m", Expect: ExpectRefusal},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnifiedDiff(t *testing.T) {
	assert.Empty(t, UnifiedDiff("a\nb", "a  \r\nb"))

	diff := UnifiedDiff("a\nb\nc", "a\nx\nc")
	assert.Contains(t, diff, "--- expected")
	assert.Contains(t, diff, "+++ got")
	assert.Contains(t, diff, "-b")
	assert.Contains(t, diff, "+x")
}
