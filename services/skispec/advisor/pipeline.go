// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/SkiSpec/services/skispec/config"
	"github.com/AleutianAI/SkiSpec/services/skispec/session"
)

var advisorTracer = otel.Tracer("skispec.advisor")

// maxLogPreview bounds user text in log lines.
const maxLogPreview = 80

// Generator produces free-text candidate answers.
//
// Output is untrusted: the pipeline cleans it and passes it through the
// validator like any other candidate. An error makes the pipeline fall back
// to the heuristic synthesizer.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// GenerationRequest is the input to a Generator.
type GenerationRequest struct {
	// History is the session log before this message.
	History []session.Turn

	// Message is the current user message.
	Message string
}

// Request is one inbound user message.
type Request struct {
	// SessionID names the conversation. Empty starts a new one.
	SessionID string

	// Message is the user's text.
	Message string
}

// Response is the pipeline's answer.
type Response struct {
	Text      string
	SessionID string
	Outcome   Outcome
	Source    Source
	RuleID    string
	Reason    string
}

// PipelineConfig wires a Pipeline's collaborators.
type PipelineConfig struct {
	// Store holds session logs. Required.
	Store session.Store

	// Generator is the optional external text producer. Nil disables it.
	Generator Generator

	// Logger for decisions. Nil uses slog.Default().
	Logger *slog.Logger

	// NewID generates session ids. Nil uses session.NewID.
	NewID func() string
}

// Pipeline turns user messages into policy-compliant responses.
//
// Description:
//
//	Owns no domain data: all tables live in a *Tables swapped atomically by
//	SetTables/Reload, and all conversation state lives in the session
//	store. Requests for the same session are serialized through the store's
//	Lock for the whole read-decide-append cycle.
//
// Thread Safety: Safe for concurrent use.
type Pipeline struct {
	tables    atomic.Pointer[Tables]
	store     session.Store
	generator Generator
	logger    *slog.Logger
	newID     func() string
}

// NewPipeline creates a Pipeline.
//
// Inputs:
//
//	tables - Compiled rule tables. Must not be nil.
//	cfg - Collaborators. cfg.Store must not be nil.
//
// Outputs:
//
//	*Pipeline - Ready to serve.
//	error - Non-nil if a required collaborator is missing.
func NewPipeline(tables *Tables, cfg PipelineConfig) (*Pipeline, error) {
	if tables == nil {
		return nil, fmt.Errorf("NewPipeline: tables must not be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("NewPipeline: store must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewID == nil {
		cfg.NewID = session.NewID
	}
	p := &Pipeline{
		store:     cfg.Store,
		generator: cfg.Generator,
		logger:    cfg.Logger,
		newID:     cfg.NewID,
	}
	p.tables.Store(tables)
	return p, nil
}

// Tables returns the tables currently in effect.
func (p *Pipeline) Tables() *Tables { return p.tables.Load() }

// SetTables swaps the tables for subsequent requests.
func (p *Pipeline) SetTables(t *Tables) {
	if t == nil {
		return
	}
	p.tables.Store(t)
}

// Reload compiles rs and swaps it in. On error the current tables stay.
//
// Suitable as a config.RulesWatcher callback.
func (p *Pipeline) Reload(rs *config.RuleSet) error {
	t, err := Compile(rs)
	if err != nil {
		recordRulesReload(false)
		return fmt.Errorf("reload rules: %w", err)
	}
	p.SetTables(t)
	recordRulesReload(true)
	p.logger.Info("advisor rules swapped")
	return nil
}

// Respond answers one user message.
//
// Description:
//
//	Evaluator prompts are answered with a judge verdict and leave no trace
//	in the session. Every other message is decided under the session lock
//	and appended to the session log together with the response.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	req - The message. An empty SessionID starts a new session.
//
// Outputs:
//
//	Response - Always carries a SessionID, even alongside an error.
//	error - A *Fault when the session store fails.
//
// Thread Safety: Safe for concurrent use.
func (p *Pipeline) Respond(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	ctx, span := advisorTracer.Start(ctx, "advisor.Pipeline.Respond")
	defer span.End()

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = p.newID()
	}
	span.SetAttributes(attribute.String("session_id", sessionID))
	tables := p.tables.Load()

	if ruleID, ok := tables.IsJudgePrompt(req.Message); ok {
		v := Verdict{Outcome: OutcomeJudge, Text: tables.Judge(req.Message).String(), RuleID: ruleID}
		return p.finish(span, start, sessionID, req.Message, v, SourceJudge), nil
	}

	unlock := p.store.Lock(sessionID)
	defer unlock()

	history, err := p.store.History(ctx, sessionID)
	if err != nil {
		return p.fail(span, sessionID, &Fault{Kind: FaultSessionStore, Err: err})
	}

	verdict, source := p.decide(ctx, tables, req.Message, history)

	now := time.Now()
	err = p.store.Append(ctx, sessionID,
		session.Turn{Role: session.RoleUser, Text: req.Message, At: now},
		session.Turn{Role: session.RoleAssistant, Text: verdict.Text, At: now},
	)
	if err != nil {
		return p.fail(span, sessionID, &Fault{Kind: FaultSessionStore, Err: err})
	}

	return p.finish(span, start, sessionID, req.Message, verdict, source), nil
}

// Decide runs the decision stages without touching the session store.
//
// history is the session log preceding message; it may be nil.
func (p *Pipeline) Decide(ctx context.Context, message string, history []session.Turn) (Verdict, Source) {
	tables := p.tables.Load()
	if ruleID, ok := tables.IsJudgePrompt(message); ok {
		return Verdict{Outcome: OutcomeJudge, Text: tables.Judge(message).String(), RuleID: ruleID}, SourceJudge
	}
	return p.decide(ctx, tables, message, history)
}

// Clear deletes a session. Empty and unknown ids succeed.
func (p *Pipeline) Clear(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	unlock := p.store.Lock(sessionID)
	defer unlock()
	if err := p.store.Delete(ctx, sessionID); err != nil {
		return &Fault{Kind: FaultSessionStore, Err: err}
	}
	p.logger.Info("session cleared", slog.String("session_id", sessionID))
	return nil
}

// decide runs scope -> golden -> clarification gate -> candidate -> validator.
func (p *Pipeline) decide(ctx context.Context, t *Tables, message string, history []session.Turn) (Verdict, Source) {
	sessionText := session.UserText(history, t.HistoryMaxChars())

	if scope := t.ClassifyScope(message); scope.Class != ScopeInScope {
		return Verdict{
			Outcome: OutcomeRefuse,
			Text:    scope.Refusal,
			Reason:  string(scope.Class),
			RuleID:  scope.RuleID,
		}, SourceScope
	}

	if g, ok := t.MatchGolden(message); ok {
		v := t.Validate(g.Response, SourceGolden, message, sessionText)
		v.RuleID = g.ID
		return v, SourceGolden
	}

	if t.NeedsMoreInfo(message, sessionText) {
		return Verdict{
			Outcome: OutcomeClarify,
			Text:    t.ClarificationText(),
			Reason:  ReasonInsufficientSlots,
		}, SourceSlots
	}

	candidate, source := p.produce(ctx, t, message, history, sessionText)
	return t.Validate(candidate, source, message, sessionText), source
}

// produce asks the generator for a candidate, falling back to the synthesizer.
func (p *Pipeline) produce(ctx context.Context, t *Tables, message string, history []session.Turn, sessionText string) (string, Source) {
	if p.generator != nil {
		raw, err := p.generator.Generate(ctx, GenerationRequest{History: history, Message: message})
		if err == nil {
			return CleanCandidate(raw), SourceGenerator
		}
		recordGeneratorFallback()
		p.logger.Warn("generator failed, using heuristic synthesizer",
			slog.String("error", err.Error()),
			slog.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
		)
	}
	return Render(t.Synthesize(t.ExtractSlots(message, sessionText))), SourceSynthesizer
}

func (p *Pipeline) finish(span trace.Span, start time.Time, sessionID, message string, v Verdict, source Source) Response {
	elapsed := time.Since(start)
	RecordResponse(v, source, elapsed)

	span.SetAttributes(
		attribute.String("outcome", string(v.Outcome)),
		attribute.String("source", string(source)),
		attribute.String("rule_id", v.RuleID),
	)

	p.logger.Info("advisor response",
		slog.String("session_id", sessionID),
		slog.String("outcome", string(v.Outcome)),
		slog.String("source", string(source)),
		slog.String("rule_id", v.RuleID),
		slog.String("reason", v.Reason),
		slog.String("message_preview", truncateForLog(message, maxLogPreview)),
		slog.Duration("elapsed", elapsed),
	)

	return Response{
		Text:      v.Text,
		SessionID: sessionID,
		Outcome:   v.Outcome,
		Source:    source,
		RuleID:    v.RuleID,
		Reason:    v.Reason,
	}
}

func (p *Pipeline) fail(span trace.Span, sessionID string, f *Fault) (Response, error) {
	span.RecordError(f)
	span.SetStatus(codes.Error, f.Kind)
	p.logger.Error("advisor failed",
		slog.String("session_id", sessionID),
		slog.String("kind", f.Kind),
		slog.String("error", f.Error()),
	)
	return Response{SessionID: sessionID}, f
}

// truncateForLog shortens s to at most n runes, marking the cut.
func truncateForLog(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
