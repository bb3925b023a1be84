package media

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
)

// ErrorKind classifies why a device request failed.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPermissionDenied
	KindDeviceNotFound
	KindDeviceBusy
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission denied"
	case KindDeviceNotFound:
		return "device not found"
	case KindDeviceBusy:
		return "device busy"
	default:
		return "unknown"
	}
}

// ErrBusy is returned when an acquisition is already in flight.
var ErrBusy = errors.New("media acquisition already in progress")

// Error is the user-facing failure of an acquisition.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("media: %s", e.Kind)
	}
	return fmt.Sprintf("media: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the user may reasonably ask to try again.
func (e *Error) Retryable() bool {
	return e.Kind == KindDeviceBusy || e.Kind == KindUnknown
}

// Classify maps a capture failure onto an ErrorKind.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var merr *Error
	if errors.As(err, &merr) {
		return merr
	}

	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, fs.ErrPermission),
		errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EPERM),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "not allowed"):
		return &Error{Kind: KindPermissionDenied, Message: "permission denied", Err: err}

	case errors.Is(err, syscall.EBUSY),
		strings.Contains(msg, "busy"),
		strings.Contains(msg, "in use"),
		strings.Contains(msg, "could not start"):
		return &Error{Kind: KindDeviceBusy, Message: "device in use", Err: err}

	case errors.Is(err, syscall.ENODEV),
		errors.Is(err, fs.ErrNotExist),
		strings.Contains(msg, "failed to find"),
		strings.Contains(msg, "not found"),
		strings.Contains(msg, "no such device"):
		return &Error{Kind: KindDeviceNotFound, Message: "no camera or microphone found", Err: err}

	default:
		return &Error{Kind: KindUnknown, Message: err.Error(), Err: err}
	}
}
