package services

import (
	"errors"
	"strings"
)

// ErrorKind classifies analysis failures for the caller boundary.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidInput
	KindFetch
	KindFormat
	KindUpstream
	KindPaused
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindFetch:
		return "fetch"
	case KindFormat:
		return "format"
	case KindUpstream:
		return "upstream"
	case KindPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// User-facing messages. Underlying causes never leak into these.
const (
	MsgInvalidFormat = "AI returned an invalid response format."
	MsgFetchFailed   = "Could not process the image from the provided URL. Please check the URL or try uploading the file directly."
	MsgUpstream      = "The AI model request failed. Please try again later."
	MsgPaused        = "Analysis is temporarily paused."
	MsgUnknown       = "An unknown error occurred."
)

var (
	ErrEmptyResponse   = errors.New("empty model response")
	ErrMalformedOutput = errors.New("malformed AI output")
	ErrSchemaMismatch  = errors.New("AI output does not match the verdict schema")
	ErrPaused          = errors.New("analysis paused")
)

// AnalysisError is a failure with a public Message and a private cause.
type AnalysisError struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

func (e *AnalysisError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Field != "" {
		b.WriteString(" (")
		b.WriteString(e.Field)
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AnalysisError) Unwrap() error { return e.Err }

func InvalidInput(field, message string) *AnalysisError {
	return &AnalysisError{Kind: KindInvalidInput, Field: field, Message: message}
}

func formatError(err error) *AnalysisError {
	return &AnalysisError{Kind: KindFormat, Message: MsgInvalidFormat, Err: err}
}

func upstreamError(err error) *AnalysisError {
	return &AnalysisError{Kind: KindUpstream, Message: MsgUpstream, Err: err}
}

func fetchError(err error) *AnalysisError {
	return &AnalysisError{Kind: KindFetch, Message: MsgFetchFailed, Err: err}
}

func pausedError() *AnalysisError {
	return &AnalysisError{Kind: KindPaused, Message: MsgPaused, Err: ErrPaused}
}

// KindOf returns the kind of the first AnalysisError in err's chain.
func KindOf(err error) ErrorKind {
	var aerr *AnalysisError
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return KindUnknown
}

// PublicMessage reduces err to the text shown to the end user.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var aerr *AnalysisError
	if errors.As(err, &aerr) {
		if aerr.Message != "" {
			return aerr.Message
		}
		if aerr.Err != nil && aerr.Err.Error() != "" {
			return aerr.Err.Error()
		}
		return MsgUnknown
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return MsgUnknown
}
