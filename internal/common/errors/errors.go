// Package errors provides the structured error taxonomy for the HFT
// core. Per the error handling design, nothing in this taxonomy ever
// crosses the orchestrator's public boundary as a returned error —
// components construct an *HFTError, log it, and fold it into counters
// or dashboard state. The type exists so the recovery paths have a
// stable code to switch on, not so callers propagate it upward.
package errors

import (
	"fmt"
	"runtime"
	"time"
)

// Code identifies a failure kind from the error handling taxonomy.
type Code string

const (
	// CodeRoutingFailure: no venue available for a signal; the signal is dropped.
	CodeRoutingFailure Code = "ROUTING_FAILURE"
	// CodeRiskRejected: an order failed one or more pre-trade risk checks.
	CodeRiskRejected Code = "RISK_REJECTED"
	// CodeGatewayReject: a venue rejected a submitted order.
	CodeGatewayReject Code = "GATEWAY_REJECT"
	// CodeQueueOverflow: the bounded event queue dropped its oldest entry.
	CodeQueueOverflow Code = "QUEUE_OVERFLOW"
	// CodeCircuitBreakerActive: the risk gate's daily-loss latch is tripped.
	CodeCircuitBreakerActive Code = "CIRCUIT_BREAKER_ACTIVE"
	// CodeBookInvariantViolation: a market data event would violate an order book invariant (negative size/price).
	CodeBookInvariantViolation Code = "BOOK_INVARIANT_VIOLATION"
	// CodeLoopException: a loop iteration panicked or returned an unexpected error; the loop recovers and continues.
	CodeLoopException Code = "LOOP_EXCEPTION"
	// CodeConfigInvalid: the loaded configuration failed validation.
	CodeConfigInvalid Code = "CONFIG_INVALID"
)

// HFTError is a structured, loggable error carrying a stable code plus
// optional structured detail and an underlying cause.
type HFTError struct {
	Code      Code
	Message   string
	Details   map[string]interface{}
	Timestamp time.Time
	File      string
	Line      int
	Cause     error
}

func (e *HFTError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *HFTError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a structured detail, returning the same error for chaining.
func (e *HFTError) WithDetail(key string, value interface{}) *HFTError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New constructs an HFTError, capturing the caller's file/line.
func New(code Code, message string) *HFTError {
	_, file, line, _ := runtime.Caller(1)
	return &HFTError{Code: code, Message: message, Timestamp: time.Now(), File: file, Line: line}
}

// Newf constructs an HFTError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *HFTError {
	_, file, line, _ := runtime.Caller(1)
	return &HFTError{Code: code, Message: fmt.Sprintf(format, args...), Timestamp: time.Now(), File: file, Line: line}
}

// Wrap wraps an existing error with a code and message, or returns nil if err is nil.
func Wrap(err error, code Code, message string) *HFTError {
	if err == nil {
		return nil
	}
	_, file, line, _ := runtime.Caller(1)
	return &HFTError{Code: code, Message: message, Timestamp: time.Now(), File: file, Line: line, Cause: err}
}

// Is reports whether err is an *HFTError with the given code.
func Is(err error, code Code) bool {
	var herr *HFTError
	if As(err, &herr) {
		return herr.Code == code
	}
	return false
}

// As walks err's Unwrap chain looking for an *HFTError, writing it to target.
func As(err error, target *(*HFTError)) bool {
	if err == nil {
		return false
	}
	if herr, ok := err.(*HFTError); ok {
		*target = herr
		return true
	}
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return As(unwrapper.Unwrap(), target)
	}
	return false
}

// GetCode extracts the Code from err, or "" if err is not an *HFTError.
func GetCode(err error) Code {
	var herr *HFTError
	if As(err, &herr) {
		return herr.Code
	}
	return ""
}
