package models

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MinTextLength is the shortest text, in characters, accepted for analysis.
const MinTextLength = 10

const (
	InputUpload = "upload"
	InputURL    = "url"
)

var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New(validator.WithRequiredStructEnabled())
	requestValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidationError is a field-scoped rejection of raw request data.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// TextAnalysisRequest is the text form submission.
type TextAnalysisRequest struct {
	Text string `json:"text" form:"text" validate:"min=10"`
}

// Validate checks the text length (counted in characters, not bytes).
func (r *TextAnalysisRequest) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		return fieldError(err, map[string]string{
			"text": "Text must be at least 10 characters long.",
		}, "Invalid input.")
	}
	return nil
}

// ImageAnalysisRequest is the image form submission. InputType selects which
// of ImageDataURI or ImageURL is meaningful.
type ImageAnalysisRequest struct {
	InputType    string `json:"inputType" form:"inputType"`
	ImageDataURI string `json:"imageDataUri" form:"imageDataUri"`
	ImageURL     string `json:"imageUrl" form:"imageUrl"`
	Hint         string `json:"hint" form:"hint"`
}

// Validate checks the locator that matches InputType.
//
// Uploads must be data URIs declaring an image/* media type; URLs must be
// absolute http(s) URLs. Nothing is fetched here.
func (r *ImageAnalysisRequest) Validate() error {
	switch r.InputType {
	case InputUpload:
		if err := requestValidate.Var(r.ImageDataURI, "required,startswith=data:image/"); err != nil {
			return &ValidationError{Field: "imageDataUri", Message: "Invalid image data URI."}
		}
	case InputURL:
		if err := requestValidate.Var(r.ImageURL, "required,http_url"); err != nil {
			return &ValidationError{Field: "imageUrl", Message: "Invalid URL format."}
		}
	default:
		return &ValidationError{Field: "inputType", Message: "Invalid input type selected."}
	}
	return nil
}

func fieldError(err error, messages map[string]string, fallback string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: fallback}
	}
	first := verrs[0]
	msg, ok := messages[first.Field()]
	if !ok {
		msg = fallback
	}
	return &ValidationError{Field: first.Field(), Message: msg}
}
