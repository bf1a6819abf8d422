// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/SkiSpec/services/skispec"
)

// chatClient talks to a running SkiSpec server.
type chatClient struct {
	baseURL string
	http    *http.Client
}

func newChatClient(baseURL string) *chatClient {
	return &chatClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// Chat sends one message. An empty sessionID starts a new session.
//
// A 400 still carries a ChatResponse, so it is returned without error.
func (c *chatClient) Chat(ctx context.Context, sessionID, message string) (skispec.ChatResponse, error) {
	body, err := json.Marshal(skispec.ChatRequest{Message: message, SessionID: sessionID})
	if err != nil {
		return skispec.ChatResponse{}, err
	}
	raw, status, err := c.post(ctx, "/v1/chat", body)
	if err != nil {
		return skispec.ChatResponse{}, err
	}

	var resp skispec.ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.SessionID == "" {
		return skispec.ChatResponse{}, fmt.Errorf("HTTP %d: unexpected body: %s", status, strings.TrimSpace(string(raw)))
	}
	return resp, nil
}

// Clear deletes a session.
func (c *chatClient) Clear(ctx context.Context, sessionID string) error {
	_, status, err := c.post(ctx, "/v1/clear?session_id="+url.QueryEscape(sessionID), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("clear: HTTP %d", status)
	}
	return nil
}

func (c *chatClient) post(ctx context.Context, path string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}
