// Package errs holds the sentinel error values that callers across the
// daemon and client branch on with errors.Is. Every other failure is wrapped
// with fmt.Errorf("...: %w", err) and left uncategorized.
package errs

import "errors"

var (
	// ErrDaemonAlreadyRunning is returned when the endpoint file is claimed
	// by a live daemon.
	ErrDaemonAlreadyRunning = errors.New("daemon already running")

	// ErrDaemonUnreachable is returned when the endpoint exists but no
	// daemon answers.
	ErrDaemonUnreachable = errors.New("daemon unreachable")

	// ErrNotFound is returned when an addressed record is absent.
	ErrNotFound = errors.New("not found")

	// ErrSubscriptionRejected is returned when the subscriber cap is full.
	ErrSubscriptionRejected = errors.New("subscription rejected")

	// ErrInvalidInput is returned for user-facing argument validation
	// failures (out-of-range dates, bad limits, unknown commands).
	ErrInvalidInput = errors.New("invalid input")

	// ErrProtocol is returned for malformed or unexpected IPC frames.
	ErrProtocol = errors.New("protocol error")
)
