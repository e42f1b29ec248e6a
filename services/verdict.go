package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"hoax-guard/models"
)

var verdictValidate *validator.Validate

func init() {
	verdictValidate = validator.New(validator.WithRequiredStructEnabled())
	verdictValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
}

// verdictDoc mirrors the schema the model is asked to emit. Pointers separate
// "absent" from zero values so that a missing field fails validation.
type verdictDoc struct {
	Label      string         `json:"label" validate:"required,oneof=hoax not_hoax uncertain"`
	Confidence *float64       `json:"confidence" validate:"required,gte=0,lte=1"`
	Rationale  *string        `json:"rationale" validate:"required"`
	References []referenceDoc `json:"references" validate:"required,dive"`
	OCRText    *string        `json:"ocr_text"`
}

type referenceDoc struct {
	Title string `json:"title" validate:"required"`
	URL   string `json:"url" validate:"required,http_url"`
}

// ParseTextVerdict decodes and validates a candidate produced by ExtractJSON.
// An ocr_text field, if the model adds one, is ignored like any other extra.
func ParseTextVerdict(candidate string) (models.TextVerdict, error) {
	doc, err := decodeVerdict(candidate)
	if err != nil {
		return models.TextVerdict{}, err
	}
	return doc.textVerdict(), nil
}

// ParseImageVerdict is ParseTextVerdict plus the optional ocr_text field.
func ParseImageVerdict(candidate string) (models.ImageVerdict, error) {
	doc, err := decodeVerdict(candidate)
	if err != nil {
		return models.ImageVerdict{}, err
	}
	v := models.ImageVerdict{TextVerdict: doc.textVerdict()}
	if doc.OCRText != nil {
		v.OCRText = *doc.OCRText
	}
	return v, nil
}

// decodeVerdict reads the candidate with exact, case-sensitive keys. The
// model's spelling of field names is not trusted, so "Label" counts as a
// missing "label".
func decodeVerdict(candidate string) (*verdictDoc, error) {
	if !strings.HasPrefix(strings.TrimSpace(candidate), "{") {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrMalformedOutput)
	}

	var fields map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(candidate))
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	// Exactly one JSON value: anything after it is malformed output too.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after JSON object", ErrMalformedOutput)
	}

	var (
		doc  verdictDoc
		refs []map[string]json.RawMessage
	)
	for _, f := range []struct {
		key string
		dst any
	}{
		{"label", &doc.Label},
		{"confidence", &doc.Confidence},
		{"rationale", &doc.Rationale},
		{"references", &refs},
		{"ocr_text", &doc.OCRText},
	} {
		if err := decodeField(fields, f.key, f.dst); err != nil {
			return nil, err
		}
	}

	if refs != nil {
		doc.References = make([]referenceDoc, len(refs))
		for i, ref := range refs {
			if err := decodeField(ref, "title", &doc.References[i].Title); err != nil {
				return nil, err
			}
			if err := decodeField(ref, "url", &doc.References[i].URL); err != nil {
				return nil, err
			}
		}
	}

	if err := verdictValidate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaMismatch, describeValidation(err))
	}
	return &doc, nil
}

// decodeField unmarshals fields[key] into dst. An absent key leaves dst
// untouched for the validator to report.
func decodeField(fields map[string]json.RawMessage, key string, dst any) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: field %s: %v", ErrSchemaMismatch, key, err)
	}
	return nil
}

func (d *verdictDoc) textVerdict() models.TextVerdict {
	refs := make([]models.Reference, 0, len(d.References))
	for _, r := range d.References {
		refs = append(refs, models.Reference{Title: r.Title, URL: r.URL})
	}
	return models.TextVerdict{
		Label:      models.Label(d.Label),
		Confidence: *d.Confidence,
		Rationale:  *d.Rationale,
		References: refs,
	}
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
