package endpoint

import (
	"errors"
	"net"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindMissingParams means a resolver was wired with a parameter type the
	// pipeline never supplied.
	KindMissingParams
	// KindResolution wraps a failure of the resolution strategy itself.
	KindResolution
	KindMalformedURI
	KindApplication
	KindInvalidHeader
	KindMissingResolver
	// KindCanceled is returned when the request attempt was canceled or timed
	// out before the endpoint could be applied.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindMissingParams:
		return "missing_params"
	case KindResolution:
		return "resolution_failure"
	case KindMalformedURI:
		return "malformed_endpoint_uri"
	case KindApplication:
		return "application_failure"
	case KindInvalidHeader:
		return "invalid_header_syntax"
	case KindMissingResolver:
		return "missing_resolver"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is returned by every operation in this package.
//
// Endpoint and Request are diagnostic views filled for KindApplication.
type Error struct {
	Kind     Kind
	Msg      string
	Endpoint string
	Request  string
	Err      error
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrMissingParams   = &Error{Kind: KindMissingParams}
	ErrResolution      = &Error{Kind: KindResolution}
	ErrMalformedURI    = &Error{Kind: KindMalformedURI}
	ErrApplication     = &Error{Kind: KindApplication}
	ErrInvalidHeader   = &Error{Kind: KindInvalidHeader}
	ErrMissingResolver = &Error{Kind: KindMissingResolver}
	ErrCanceled        = &Error{Kind: KindCanceled}
)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("endpoint: ")
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Endpoint != "" || e.Request != "" {
		b.WriteString(" (endpoint=")
		b.WriteString(e.Endpoint)
		b.WriteString(" request=")
		b.WriteString(e.Request)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether an outer layer may retry the attempt. Only a
// resolution strategy failing with a network timeout qualifies; every other
// kind is a wiring or data fault.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindResolution {
		return false
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

func resolutionError(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindResolution, Msg: "endpoint resolution failed", Err: err}
}
