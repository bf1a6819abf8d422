// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package skispec

// =============================================================================
// Request/Response Types
// =============================================================================

// ChatRequest is the request body for POST /v1/chat and each websocket frame.
type ChatRequest struct {
	// Message is the user's text.
	Message string `json:"message"`

	// SessionID continues a conversation. Empty starts a new one.
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is returned for every chat request, including failures.
//
// Response always holds displayable text and SessionID is always set, so a
// client can parse every reply the same way.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// ClearRequest is the optional body for POST /v1/clear.
type ClearRequest struct {
	SessionID string `json:"session_id"`
}

// StatusResponse is returned by POST /v1/clear.
type StatusResponse struct {
	Status string `json:"status"`
}

// HealthResponse is returned by GET /v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Generator     bool   `json:"generator"`
}

// ErrorResponse is returned for requests rejected before reaching a handler.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
