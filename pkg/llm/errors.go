package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/tasktree/pkg/domain"
)

// ErrorKind classifies client failures.
type ErrorKind string

const (
	KindTimeout            ErrorKind = "timeout"
	KindTransport          ErrorKind = "transport"
	KindMalformedPayload   ErrorKind = "malformed_payload"
	KindUnsupportedDialect ErrorKind = "unsupported_dialect"
	KindBackend            ErrorKind = "backend"
	KindStopped            ErrorKind = "stopped"
	KindTruncated          ErrorKind = "truncated"
)

// ErrStopped is returned when a stream ends because Stop was called.
var ErrStopped = &Error{Kind: KindStopped, Message: "stream stopped"}

// Error is the single error type surfaced by the client.
// Every Error matches domain.ErrProtocol.
type Error struct {
	Kind    ErrorKind
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("llm %s: %s", e.Kind, e.Message)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is domain.ErrProtocol.
func (e *Error) Is(target error) bool {
	return target == domain.ErrProtocol
}

// transportError converts an I/O failure, telling timeouts apart from the rest.
func transportError(ctx context.Context, msg string, err error) *Error {
	kind := KindTransport
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Message: msg, Detail: err.Error(), Err: err}
}
