// Package apperr defines the error taxonomy shared by the scheduling services
// and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind groups errors by how callers should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindStaleState
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStaleState:
		return "stale_state"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Code is a stable, machine-readable error identifier.
type Code string

const (
	CodeValidation             Code = "ValidationFailed"
	CodeScheduleNotFound       Code = "ScheduleNotFound"
	CodeSlotNotFound           Code = "SlotNotFound"
	CodeAppointmentNotFound    Code = "AppointmentNotFound"
	CodeAttendanceNotFound     Code = "AttendanceNotFound"
	CodeSlotOverlap            Code = "SlotOverlap"
	CodeSlotUnavailable        Code = "SlotUnavailable"
	CodeAlreadyCanceled        Code = "AlreadyCanceled"
	CodeAppointmentPast        Code = "AppointmentPast"
	CodeAlreadyRecorded        Code = "AlreadyRecorded"
	CodeOnLeave                Code = "OnLeave"
	CodeAlreadyCheckedIn       Code = "AlreadyCheckedIn"
	CodeNotCheckedIn           Code = "NotCheckedIn"
	CodeAlreadyCheckedOut      Code = "AlreadyCheckedOut"
	CodeAttendanceWindowClosed Code = "AttendanceWindowClosed"
	CodeInvalidTransition      Code = "InvalidTransition"
	CodeForbidden              Code = "Forbidden"
	CodeInternal               Code = "Internal"
)

// Error is the error type returned by services.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Code, so errors.Is(err, apperr.New(...)) works
// across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Retryable reports whether the caller could succeed by retrying with
// different input (another slot, corrected fields).
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindValidation, KindStaleState:
		return true
	case KindConflict:
		return e.Code == CodeSlotUnavailable || e.Code == CodeSlotOverlap
	default:
		return false
	}
}

// New builds an error of the given kind and code.
func New(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an infrastructure failure.
func Internal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFound builds a KindNotFound error.
func NotFound(code Code, format string, args ...any) *Error {
	return New(KindNotFound, code, format, args...)
}

// Conflict builds a KindConflict error.
func Conflict(code Code, format string, args ...any) *Error {
	return New(KindConflict, code, format, args...)
}

// Forbidden builds a KindForbidden error.
func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, CodeForbidden, format, args...)
}

// Validation collects field level problems before any storage is touched.
type Validation struct {
	fields map[string]string
}

// Add records a problem for field. The first message per field wins.
func (v *Validation) Add(field, message string) {
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	if _, ok := v.fields[field]; !ok {
		v.fields[field] = message
	}
}

// HasErrors reports whether any field problems were recorded.
func (v *Validation) HasErrors() bool { return len(v.fields) > 0 }

// Err returns nil when no problems were recorded.
func (v *Validation) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: "validation failed", Fields: v.fields}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}
