package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeCapture      = "CAPTURE_FAILED"
	ErrCodeTimeout      = "CAPTURE_TIMEOUT"
	ErrCodeComparison   = "COMPARISON_FAILED"
	ErrCodePersistence  = "PERSISTENCE_FAILED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// Pipeline stages attached to a DiffError for log context.
const (
	StageValidate    = "validate"
	StagePlaceholder = "placeholder"
	StageCapture     = "capture"
	StageCompare     = "compare"
	StagePersist     = "persist"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DiffError is the internal error type carrying an error code, the pipeline
// stage that failed and, when relevant, the URL being processed.
type DiffError struct {
	Code    string
	Stage   string
	URL     string
	Message string
	Err     error // wrapped original error
}

func (e *DiffError) Error() string {
	msg := e.Code + ": " + e.Message
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DiffError) Unwrap() error {
	return e.Err
}

// NewDiffError creates a new DiffError.
func NewDiffError(code, message string, err error) *DiffError {
	return &DiffError{Code: code, Message: message, Err: err}
}

// WithStage returns a copy of e tagged with the failing stage and URL.
func (e *DiffError) WithStage(stage, url string) *DiffError {
	c := *e
	c.Stage = stage
	if url != "" {
		c.URL = url
	}
	return &c
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *DiffError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the DiffError code found in err's chain, or
// ErrCodeInternal when err carries none.
func CodeOf(err error) string {
	var de *DiffError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}

// IsCaptureError reports whether err is a capture failure. Timeouts count
// as capture failures.
func IsCaptureError(err error) bool {
	switch CodeOf(err) {
	case ErrCodeCapture, ErrCodeTimeout:
		return true
	}
	return false
}
