package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrNotReady             = errors.New("session has no enhanced result yet")
	ErrAdjustmentOutOfRange = errors.New("adjustment value out of range")
	ErrUnknownChannel       = errors.New("unknown adjustment channel")

	ErrUnreadableFile    = errors.New("file could not be read as an image")
	ErrUnsupportedFormat = errors.New("invalid or unsupported image format")
	ErrFileTooLarge      = errors.New("file size exceeds maximum allowed")
	ErrProcessingFailed  = errors.New("image processing failed")
)

type IngestionErrorKind string

const (
	IngestionUnreadableFile    IngestionErrorKind = "unreadable_file"
	IngestionUnsupportedFormat IngestionErrorKind = "unsupported_format"
	IngestionTooLarge          IngestionErrorKind = "too_large"
)

// IngestionError is returned when a selected file cannot become an
// UploadedImage. The session is left as it was.
type IngestionError struct {
	Kind   IngestionErrorKind
	Detail string
	Err    error
}

func NewIngestionError(kind IngestionErrorKind, detail string, err error) *IngestionError {
	return &IngestionError{Kind: kind, Detail: detail, Err: err}
}

func (e *IngestionError) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IngestionError) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *IngestionError) sentinel() error {
	switch e.Kind {
	case IngestionTooLarge:
		return ErrFileTooLarge
	case IngestionUnsupportedFormat:
		return ErrUnsupportedFormat
	default:
		return ErrUnreadableFile
	}
}

type EnhancementErrorKind string

const EnhancementProcessingFailed EnhancementErrorKind = "processing_failed"

type EnhancementError struct {
	Kind      EnhancementErrorKind
	RequestID uint64
	Err       error
}

func NewEnhancementError(requestID uint64, err error) *EnhancementError {
	return &EnhancementError{Kind: EnhancementProcessingFailed, RequestID: requestID, Err: err}
}

func (e *EnhancementError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (request %d)", e.Kind, e.RequestID)
	}
	return fmt.Sprintf("%s (request %d): %v", e.Kind, e.RequestID, e.Err)
}

func (e *EnhancementError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProcessingFailed}
	}
	return []error{ErrProcessingFailed, e.Err}
}
