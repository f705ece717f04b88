// Package failure defines the typed failures returned at every pipeline
// component boundary. Components never let a raw provider error escape;
// they convert it into an *Error whose Kind drives retry and fallback
// decisions in the turn orchestrator.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a component failure.
type Kind string

const (
	// KindTransientNetwork covers connection resets, DNS failures, 429 and 5xx.
	KindTransientNetwork Kind = "transient_network"

	// KindAuth indicates rejected credentials. Retrying cannot help.
	KindAuth Kind = "auth"

	// KindNotYetAvailable indicates the resource exists but is still being
	// produced, such as a recording that is still processing.
	KindNotYetAvailable Kind = "not_yet_available"

	// KindEmptyResponse indicates a success status with no usable payload.
	KindEmptyResponse Kind = "empty_response"

	// KindMalformedInput indicates the caller's audio or text could not be used.
	KindMalformedInput Kind = "malformed_input"

	// KindDownstreamProvider is any provider failure not otherwise classified.
	KindDownstreamProvider Kind = "downstream_provider"

	// KindTimeout indicates the stage deadline expired.
	KindTimeout Kind = "timeout"

	// KindStorage indicates a failed write of published audio.
	KindStorage Kind = "storage"
)

// Error is a classified component failure.
type Error struct {
	Kind       Kind
	Component  string
	Op         string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Component)
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	fmt.Fprintf(&b, " [%s]", e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransientNetwork, KindNotYetAvailable, KindEmptyResponse, KindTimeout:
		return true
	default:
		return false
	}
}

// New creates a classified failure.
func New(kind Kind, component, op string, err error) *Error {
	return &Error{Kind: kind, Component: component, Op: op, Err: err}
}

// FromHTTPStatus classifies a non-2xx HTTP response. The body excerpt, if
// any, becomes the cause so operators can reproduce the failure.
func FromHTTPStatus(component, op string, status int, body []byte) *Error {
	var cause error
	if excerpt := strings.TrimSpace(string(body)); excerpt != "" {
		if len(excerpt) > 512 {
			excerpt = excerpt[:512]
		}
		cause = errors.New(excerpt)
	} else {
		cause = errors.New(http.StatusText(status))
	}

	e := &Error{Component: component, Op: op, StatusCode: status, Err: cause}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuth
	case status == http.StatusNotFound:
		e.Kind = KindNotYetAvailable
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		e.Kind = KindTransientNetwork
	default:
		e.Kind = KindDownstreamProvider
	}
	return e
}

// FromTransport classifies an error returned before any HTTP status was
// received: context expiry becomes KindTimeout, everything else on the wire
// is KindTransientNetwork.
func FromTransport(component, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(KindTimeout, component, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return New(KindTimeout, component, op, err)
	}
	return New(KindTransientNetwork, component, op, err)
}

// KindOf returns the Kind of err. Unclassified errors report
// KindDownstreamProvider; nil reports the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindDownstreamProvider
}

// IsRetryable reports whether err is a retryable classified failure.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
