package types

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("transfer not found")

	// ErrTerminal is returned when starting a transfer that has already
	// completed, failed or been cancelled.
	ErrTerminal = errors.New("transfer is in a terminal state")

	// ErrActive is returned by operations that need the transfer stopped.
	ErrActive = errors.New("transfer is running")
)

// NotFoundError is returned when an operation references an unknown id.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("transfer %d not found", e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InvalidPlanError is returned when a size cannot be split into the
// requested number of ranges.
type InvalidPlanError struct {
	TotalBytes  int64
	Connections int
}

func (e *InvalidPlanError) Error() string {
	return fmt.Sprintf("cannot split %d bytes into %d chunks", e.TotalBytes, e.Connections)
}

// TransportError wraps network and TLS failures from HEAD and GET requests.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	TLS        bool
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError builds a TransportError, flagging TLS failures.
func NewTransportError(op, url string, err error) *TransportError {
	return &TransportError{Op: op, URL: url, Err: err, TLS: IsTLSFailure(err)}
}

// IoError wraps filesystem failures.
type IoError struct {
	Op   string
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}

// IsTLSFailure recognises certificate and handshake errors.
func IsTLSFailure(err error) bool {
	if err == nil {
		return false
	}
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var certErr x509.CertificateInvalidError
	if errors.As(err, &unknownAuth) || errors.As(err, &hostErr) || errors.As(err, &certErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"x509", "tls", "ssl", "certificate", "chain validation failed"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// IsCancellation reports whether err is a cooperative cancel rather than a
// failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Summary renders err for the last_error column. TLS failures are prefixed
// and keep the context they were wrapped in.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	var te *TransportError
	if errors.As(err, &te) && te.TLS {
		return "TLS: " + err.Error()
	}
	return err.Error()
}
