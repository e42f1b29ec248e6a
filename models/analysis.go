package models

// Label is the three-way verdict produced by the model.
type Label string

const (
	LabelHoax      Label = "hoax"
	LabelNotHoax   Label = "not_hoax"
	LabelUncertain Label = "uncertain"
)

// Labels lists every accepted verdict label.
var Labels = []Label{LabelHoax, LabelNotHoax, LabelUncertain}

// Valid reports whether l is one of the accepted labels.
func (l Label) Valid() bool {
	for _, known := range Labels {
		if l == known {
			return true
		}
	}
	return false
}

// Reference is a cited source offered as evidence for a verdict.
type Reference struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type TextVerdict struct {
	Label      Label       `json:"label"`
	Confidence float64     `json:"confidence"`
	Rationale  string      `json:"rationale"`
	References []Reference `json:"references"`
}

// ImageVerdict extends the text verdict with any text read off the image.
type ImageVerdict struct {
	TextVerdict
	OCRText string `json:"ocr_text,omitempty"`
}

// ResultType discriminates the AnalysisResult variants on the wire.
type ResultType string

const (
	ResultText  ResultType = "text"
	ResultImage ResultType = "image"
)

// AnalysisResult is either a *TextResult or an *ImageResult.
type AnalysisResult interface {
	Kind() ResultType
	analysisResult()
}

type TextResult struct {
	Type ResultType `json:"type"`
	TextVerdict
}

// ImageResult carries the locator of the analysed image for re-display only.
type ImageResult struct {
	Type     ResultType `json:"type"`
	ImageURL string     `json:"imageUrl,omitempty"`
	ImageVerdict
}

func NewTextResult(v TextVerdict) *TextResult {
	if v.References == nil {
		v.References = []Reference{}
	}
	return &TextResult{Type: ResultText, TextVerdict: v}
}

func NewImageResult(v ImageVerdict, imageURL string) *ImageResult {
	if v.References == nil {
		v.References = []Reference{}
	}
	return &ImageResult{Type: ResultImage, ImageURL: imageURL, ImageVerdict: v}
}

func (r *TextResult) Kind() ResultType  { return ResultText }
func (r *ImageResult) Kind() ResultType { return ResultImage }

func (*TextResult) analysisResult()  {}
func (*ImageResult) analysisResult() {}

// ErrorResponse is the failure half of the result-or-error contract.
type ErrorResponse struct {
	Error string `json:"error"`
}
