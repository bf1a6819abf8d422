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
)

// Fault kinds surfaced to clients.
const (
	FaultSessionStore = "SessionStoreError"
	FaultTimeout      = "Timeout"
	FaultCanceled     = "Canceled"
	FaultPanic        = "Panic"
	FaultBadRequest   = "BadRequest"
	FaultInternal     = "InternalError"
)

// Fault is an error tagged with a client-visible kind.
type Fault struct {
	Kind string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return f.Kind
	}
	return f.Kind + ": " + f.Err.Error()
}

func (f *Fault) Unwrap() error { return f.Err }

// FaultKind names the kind of err for client display.
func FaultKind(err error) string {
	var f *Fault
	switch {
	case errors.As(err, &f):
		return f.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return FaultTimeout
	case errors.Is(err, context.Canceled):
		return FaultCanceled
	default:
		return FaultInternal
	}
}

// ServerErrorText renders err as the response text returned in place of an
// answer: "Server error: <Kind>: <message>".
func ServerErrorText(err error) string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
		var f *Fault
		if errors.As(err, &f) && f.Err != nil {
			msg = f.Err.Error()
		}
	}
	return fmt.Sprintf("Server error: %s: %s", FaultKind(err), msg)
}

// PanicFault converts a recovered panic value into a Fault.
func PanicFault(v any) *Fault {
	if err, ok := v.(error); ok {
		return &Fault{Kind: FaultPanic, Err: err}
	}
	return &Fault{Kind: FaultPanic, Err: fmt.Errorf("%v", v)}
}
