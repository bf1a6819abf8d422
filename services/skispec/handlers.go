// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package skispec is the HTTP transport for the ski gear compatibility
// advisor: JSON chat and clear endpoints, a websocket chat stream, health,
// and the embedded single-page client.
package skispec

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/SkiSpec/services/skispec/advisor"
	"github.com/AleutianAI/SkiSpec/services/skispec/session"
)

//go:embed static/index.html
var indexHTML []byte

// requestIDHeader carries the request correlation id.
const requestIDHeader = "X-Request-ID"

// maxWSMessageBytes bounds one inbound websocket frame.
const maxWSMessageBytes = 64 << 10

// Responder answers chat messages. *advisor.Pipeline implements it.
type Responder interface {
	Respond(ctx context.Context, req advisor.Request) (advisor.Response, error)
	Clear(ctx context.Context, sessionID string) error
}

// HandlersConfig configures Handlers.
type HandlersConfig struct {
	// GeneratorEnabled is reported by the health endpoint.
	GeneratorEnabled bool

	// Logger for request logs. Nil uses slog.Default().
	Logger *slog.Logger

	// NewID generates session ids when a request cannot be decoded.
	// Nil uses session.NewID.
	NewID func() string
}

// Handlers serves the SkiSpec HTTP API.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	responder Responder
	cfg       HandlersConfig
	upgrader  websocket.Upgrader
	startedAt time.Time
}

// NewHandlers creates Handlers backed by responder.
func NewHandlers(responder Responder, cfg HandlersConfig) *Handlers {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewID == nil {
		cfg.NewID = session.NewID
	}
	return &Handlers{
		responder: responder,
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
		startedAt: time.Now(),
	}
}

// HandleChat handles POST /v1/chat.
//
// Description:
//
//	Runs one message through the advisor pipeline. Every outcome, including
//	internal faults, is a 200 with a ChatResponse whose text names the
//	fault; only an undecodable body is a 400, still with a ChatResponse.
//
// Request Body:
//
//	ChatRequest
//
// Response:
//
//	200 OK: ChatResponse
//	400 Bad Request: ChatResponse describing the decode failure
func (h *Handlers) HandleChat(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.cfg.Logger.With("request_id", requestID, "handler", "HandleChat")

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid chat request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ChatResponse{
			Response:  advisor.ServerErrorText(&advisor.Fault{Kind: advisor.FaultBadRequest, Err: err}),
			SessionID: h.cfg.NewID(),
		})
		return
	}

	c.JSON(http.StatusOK, h.respond(c.Request.Context(), logger, req))
}

// HandleClear handles POST /v1/clear.
//
// Description:
//
//	Deletes a session. The id is taken from the session_id query parameter,
//	or from a JSON body when the query is empty. Always reports success.
//
// Response:
//
//	200 OK: {"status": "ok"}
func (h *Handlers) HandleClear(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.cfg.Logger.With("request_id", requestID, "handler", "HandleClear")

	sessionID := c.Query("session_id")
	if sessionID == "" && c.Request.ContentLength != 0 {
		var body ClearRequest
		if err := c.ShouldBindJSON(&body); err == nil {
			sessionID = body.SessionID
		}
	}

	if err := h.responder.Clear(c.Request.Context(), sessionID); err != nil {
		logger.Error("Failed to clear session",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// HandleHealth handles GET /v1/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Generator:     h.cfg.GeneratorEnabled,
	})
}

// HandleIndex serves the embedded single-page client at GET /.
func (h *Handlers) HandleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

// HandleWebSocket handles GET /v1/chat/ws.
//
// Description:
//
//	Upgrades to a websocket and answers each inbound ChatRequest frame with
//	one ChatResponse frame, in order. A frame that does not decode as a
//	ChatRequest, truncated or empty frames included, gets a BadRequest
//	ChatResponse and the connection stays open. The connection
//	closes when the client closes it or the request context ends.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.cfg.Logger.With("request_id", requestID, "handler", "HandleWebSocket")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxWSMessageBytes)

	ctx := c.Request.Context()
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("WebSocket closed by client")
			} else {
				logger.Debug("WebSocket read ended", slog.String("error", err.Error()))
			}
			return
		}

		var reply ChatResponse
		var req ChatRequest
		if err := json.Unmarshal(frame, &req); err != nil {
			reply = ChatResponse{
				Response:  advisor.ServerErrorText(&advisor.Fault{Kind: advisor.FaultBadRequest, Err: err}),
				SessionID: h.cfg.NewID(),
			}
		} else {
			reply = h.respond(ctx, logger, req)
		}

		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("WebSocket write failed", slog.String("error", err.Error()))
			return
		}
	}
}

// HandleNotFound answers unknown routes.
func (h *Handlers) HandleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error: fmt.Sprintf("no route for %s %s", c.Request.Method, c.Request.URL.Path),
		Code:  "NOT_FOUND",
	})
}

// respond runs the pipeline and converts every failure, including a panic,
// into a displayable ChatResponse.
func (h *Handlers) respond(ctx context.Context, logger *slog.Logger, req ChatRequest) (out ChatResponse) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = h.cfg.NewID()
	}

	defer func() {
		if r := recover(); r != nil {
			fault := advisor.PanicFault(r)
			logger.Error("Panic while answering chat",
				slog.String("session_id", sessionID),
				slog.String("error", fault.Error()),
			)
			out = ChatResponse{Response: advisor.ServerErrorText(fault), SessionID: sessionID}
		}
	}()

	resp, err := h.responder.Respond(ctx, advisor.Request{SessionID: sessionID, Message: req.Message})
	if err != nil {
		logger.Error("Chat request failed",
			slog.String("session_id", sessionID),
			slog.String("kind", advisor.FaultKind(err)),
			slog.String("error", err.Error()),
		)
		return ChatResponse{Response: advisor.ServerErrorText(err), SessionID: sessionID}
	}
	if resp.SessionID != "" {
		sessionID = resp.SessionID
	}
	return ChatResponse{Response: resp.Text, SessionID: sessionID}
}

// getOrCreateRequestID returns the inbound X-Request-ID or a new one, and
// echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	id := c.GetHeader(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Header(requestIDHeader, id)
	return id
}

// sameOrigin accepts requests without an Origin header and those whose
// Origin host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, host, ok := strings.Cut(origin, "://")
	return ok && strings.EqualFold(host, r.Host)
}

