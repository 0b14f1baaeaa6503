package extraction

import (
	"errors"
	"fmt"
)

// ExtractionErrorCode represents specific extraction error types.
type ExtractionErrorCode string

const (
	ErrUnsupportedFormat ExtractionErrorCode = "UNSUPPORTED_FORMAT"
	ErrCorruptDocument   ExtractionErrorCode = "CORRUPT_DOCUMENT"
	ErrEncoding          ExtractionErrorCode = "ENCODING_ERROR"
	ErrInvalidDocument   ExtractionErrorCode = "INVALID_DOCUMENT"
	ErrOCRUnavailable    ExtractionErrorCode = "OCR_UNAVAILABLE"
)

// ExtractionError is a structured error for extraction failures.
type ExtractionError struct {
	Code      ExtractionErrorCode
	Message   string
	Format    Format
	Retryable bool
	Cause     error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether this error is retryable.
func (e *ExtractionError) IsRetryable() bool {
	return e.Retryable
}

// Fatal reports whether the error must stop the request. OCR failures are
// absorbed by the extractor and never reach callers.
func (e *ExtractionError) Fatal() bool {
	return e.Code != ErrOCRUnavailable
}

// CodeOf returns the extraction error code carried by err, or "" if none.
func CodeOf(err error) ExtractionErrorCode {
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return extErr.Code
	}
	return ""
}

func newError(code ExtractionErrorCode, format Format, msg string, cause error) *ExtractionError {
	return &ExtractionError{Code: code, Format: format, Message: msg, Cause: cause}
}

// InvalidDocument reports a request with nothing to analyse.
func InvalidDocument(msg string) *ExtractionError {
	return newError(ErrInvalidDocument, "", msg, nil)
}
