package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindConfig covers malformed configuration, including invalid trigger
	// phrases rejected during registry validation.
	KindConfig Kind = "config"
	// KindPermission marks an upstream engine that lacks authorization.
	// Fatal until externally resolved; callers must not retry.
	KindPermission Kind = "permission"
	// KindEngine marks a transient transcription-engine fault. Callers may
	// retry once before surfacing.
	KindEngine Kind = "engine"
	// KindSession marks lifecycle failures such as a session start that did
	// not complete.
	KindSession   Kind = "session"
	KindDetect    Kind = "detect"
	KindSink      Kind = "sink"
	KindTransport Kind = "transport"
	KindStorage   Kind = "storage"
	KindBootstrap Kind = "bootstrap"
	KindUnknown   Kind = "unknown"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// IsKind checks whether any error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	for err != nil {
		if errors.As(err, &target) {
			return target.Kind == kind
		}
		err = errors.Unwrap(err)
	}
	return false
}
