package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Base error types
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrTransport          = errors.New("transport error")
	ErrProtocol           = errors.New("protocol error")
	ErrDecode             = errors.New("decode error")
	ErrConflict           = errors.New("identity conflict")
	ErrUnsupportedCadence = errors.New("unsupported cadence")
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeConfiguration      ErrorType = "configuration"
	ErrorTypeTransport          ErrorType = "transport"
	ErrorTypeProtocol           ErrorType = "protocol"
	ErrorTypeDecode             ErrorType = "decode"
	ErrorTypeConflict           ErrorType = "conflict"
	ErrorTypeUnsupportedCadence ErrorType = "unsupported_cadence"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeValidation         ErrorType = "validation"
)

// GatewayDetail is one entry of the gateway's structured error list.
type GatewayDetail struct {
	Category string `json:"category,omitempty"`
	Code     string `json:"code"`
	Detail   string `json:"detail,omitempty"`
	Field    string `json:"field,omitempty"`
}

// Error is the structured error returned by every bridge operation.
type Error struct {
	Type       ErrorType
	Op         string // Operation that failed (e.g., "create_customer", "sync_payment")
	Err        error  // Underlying error
	StatusCode int    // HTTP status code if applicable
	Details    []GatewayDetail
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(" failed")
	} else {
		sb.WriteString(string(e.Type))
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if len(e.Details) > 0 {
		parts := make([]string, 0, len(e.Details))
		for _, d := range e.Details {
			code := d.Code
			if code == "" {
				code = "UNKNOWN"
			}
			parts = append(parts, code+": "+d.Detail)
		}
		sb.WriteString(" [")
		sb.WriteString(strings.Join(parts, " | "))
		sb.WriteString("]")
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrConfiguration:
		return e.Type == ErrorTypeConfiguration
	case ErrTransport:
		return e.Type == ErrorTypeTransport
	case ErrProtocol:
		return e.Type == ErrorTypeProtocol
	case ErrDecode:
		return e.Type == ErrorTypeDecode
	case ErrConflict:
		return e.Type == ErrorTypeConflict
	case ErrUnsupportedCadence:
		return e.Type == ErrorTypeUnsupportedCadence
	case ErrNotFound:
		return e.Type == ErrorTypeNotFound
	case ErrValidation:
		return e.Type == ErrorTypeValidation
	}

	return errors.Is(e.Err, target)
}

// New creates a new Error
func New(errorType ErrorType, op string, err error) *Error {
	return &Error{
		Type: errorType,
		Op:   op,
		Err:  err,
	}
}

// WithStatusCode adds HTTP status code to the error
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// WithDetails attaches the gateway error list.
func (e *Error) WithDetails(details []GatewayDetail) *Error {
	e.Details = details
	return e
}

// Helper functions

func Configuration(op, format string, args ...any) error {
	return New(ErrorTypeConfiguration, op, fmt.Errorf(format, args...))
}

func Transport(op string, err error) error {
	return New(ErrorTypeTransport, op, err)
}

func Protocol(op string, statusCode int, details []GatewayDetail) error {
	return New(ErrorTypeProtocol, op, nil).WithStatusCode(statusCode).WithDetails(details)
}

func Decode(op string, err error) error {
	return New(ErrorTypeDecode, op, err)
}

func Conflict(op, format string, args ...any) error {
	return New(ErrorTypeConflict, op, fmt.Errorf(format, args...))
}

func UnsupportedCadence(op, format string, args ...any) error {
	return New(ErrorTypeUnsupportedCadence, op, fmt.Errorf(format, args...))
}

func NotFound(op, format string, args ...any) error {
	return New(ErrorTypeNotFound, op, fmt.Errorf(format, args...))
}

func Validation(op, format string, args ...any) error {
	return New(ErrorTypeValidation, op, fmt.Errorf(format, args...))
}

// TypeOf returns the ErrorType of the first *Error in err's chain, or "".
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// GatewayDetails returns the structured gateway error list carried by err, if any.
func GatewayDetails(err error) []GatewayDetail {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
