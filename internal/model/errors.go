package model

import (
	"errors"
	"fmt"
)

// Common errors used across the application
var (
	// Board errors
	ErrBoardNotFound  = errors.New("board not found")
	ErrInvalidBoardID = errors.New("invalid board id")
	ErrBoardLocked    = errors.New("board is locked")
	ErrAuthFailed     = errors.New("authentication failed")
	ErrNotInABoard    = errors.New("not in a board")

	// Request errors
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrTimeout          = errors.New("request timed out")

	// Sound errors (raised by peers)
	ErrSoundNotCached = errors.New("sound not cached")

	// ErrDropped means the request does not apply in the current state and
	// gets no reply at all
	ErrDropped = errors.New("request dropped")
)

// ErrorCode is the wire name of a protocol failure
type ErrorCode string

const (
	CodeInvalidArguments ErrorCode = "InvalidArguments"
	CodeInvalidBoardID   ErrorCode = "InvalidBoardId"
	CodeBoardLocked      ErrorCode = "BoardLocked"
	CodeAuthFailed       ErrorCode = "AuthFailed"
	CodeNotInABoard      ErrorCode = "NotInABoard"
	CodeTimeout          ErrorCode = "Timeout"
	CodeSoundNotCached   ErrorCode = "SoundNotCached"

	// CodeInternal reports a server-side failure such as a storage outage
	CodeInternal ErrorCode = "InternalError"
)

var codeSentinels = map[ErrorCode]error{
	CodeInvalidArguments: ErrInvalidArguments,
	CodeInvalidBoardID:   ErrInvalidBoardID,
	CodeBoardLocked:      ErrBoardLocked,
	CodeAuthFailed:       ErrAuthFailed,
	CodeNotInABoard:      ErrNotInABoard,
	CodeTimeout:          ErrTimeout,
	CodeSoundNotCached:   ErrSoundNotCached,
}

var codeMessages = map[ErrorCode]string{
	CodeInvalidArguments: "Invalid arguments",
	CodeInvalidBoardID:   "Invalid board id",
	CodeBoardLocked:      "Board is locked",
	CodeAuthFailed:       "Authentication failed",
	CodeNotInABoard:      "Not in a board",
	CodeTimeout:          "Request timed out",
	CodeSoundNotCached:   "Sound is not cached",
	CodeInternal:         "Internal server error",
}

// ProtocolError is a failure returned to a client as {code, message, cause}
type ProtocolError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   any       `json:"cause,omitempty"`

	// Raw is the error exactly as a peer sent it. Relayed errors go back on
	// the wire as Raw so fields the server does not know about survive.
	Raw any `json:"-"`
}

// DecodeProtocolError wraps an error value received from the wire. Objects
// fill in code, message and cause where present; any other value is kept
// only as Raw.
func DecodeProtocolError(v any) *ProtocolError {
	pe := &ProtocolError{Raw: v}
	if m, ok := v.(map[string]any); ok {
		if code, ok := m["code"].(string); ok {
			pe.Code = ErrorCode(code)
		}
		if msg, ok := m["message"].(string); ok {
			pe.Message = msg
		}
		pe.Cause = m["cause"]
	}
	return pe
}

// Wire returns the value to encode for this error
func (e *ProtocolError) Wire() any {
	if e.Raw != nil {
		return e.Raw
	}
	return e
}

// NewProtocolError creates a ProtocolError with the standard message for code
func NewProtocolError(code ErrorCode, cause any) *ProtocolError {
	msg, ok := codeMessages[code]
	if !ok {
		msg = string(code)
	}
	return &ProtocolError{Code: code, Message: msg, Cause: cause}
}

// Error implements error interface
func (e *ProtocolError) Error() string {
	if e.Code == "" && e.Raw != nil {
		return fmt.Sprintf("peer error: %v", e.Raw)
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches the sentinel error for the code, so errors.Is works across the wire
func (e *ProtocolError) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && sentinel == target
}

// ToProtocolError converts an error into a ProtocolError. Errors that are
// already protocol errors pass through unchanged; known sentinels get their
// code; anything else is reported as an internal error without a cause.
func ToProtocolError(err error, cause any) *ProtocolError {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe
	}
	for code, sentinel := range codeSentinels {
		if errors.Is(err, sentinel) {
			return NewProtocolError(code, cause)
		}
	}
	return NewProtocolError(CodeInternal, nil)
}
