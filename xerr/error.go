package xerr

import (
	"errors"
	"fmt"
)

// Code classifies a connection outcome.
type Code uint8

const (
	BadURL Code = iota + 1
	TransportFailed
	TLSFailed
	HandshakeFailed
	ProtocolViolation
	Timeout
	Closed
	NotOpen
	BadArgument
)

var codeNames = map[Code]string{
	BadURL:            "bad url",
	TransportFailed:   "transport failed",
	TLSFailed:         "tls failed",
	HandshakeFailed:   "handshake failed",
	ProtocolViolation: "protocol violation",
	Timeout:           "timeout",
	Closed:            "closed",
	NotOpen:           "not open",
	BadArgument:       "bad argument",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown"
}

// Error carries an outcome code and a diagnostic message.
type Error struct {
	Code    Code
	Message string
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Message
}

// CodeOf returns the outcome code carried by err, or 0 when err is nil or
// was not produced by this package.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
