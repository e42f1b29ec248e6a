package services

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"hoax-guard/models"
)

var errNoImageSource = errors.New("no image source configured")

// ImageSource turns an image URL into a data URI.
type ImageSource interface {
	FetchDataURI(ctx context.Context, imageURL string) (string, error)
}

type AnalyzerService struct {
	client  ModelClient
	images  ImageSource
	prompts *PromptConfig
	logger  *slog.Logger

	// IsPaused rejects new analyses while set. Toggled by the admin API.
	IsPaused atomic.Bool
}

func NewAnalyzerService(client ModelClient, images ImageSource, prompts *PromptConfig, logger *slog.Logger) *AnalyzerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzerService{
		client:  client,
		images:  images,
		prompts: prompts,
		logger:  logger.With("component", "analyzer"),
	}
}

// AnalyzeText runs the text verdict flow. The text is expected to have been
// validated by the caller.
func (s *AnalyzerService) AnalyzeText(ctx context.Context, text string) (models.TextVerdict, error) {
	if s.IsPaused.Load() {
		return models.TextVerdict{}, pausedError()
	}

	log := s.logger.With("flow", "text")
	log.Info("analysis started", "chars", utf8.RuneCountInString(text))

	raw, err := s.generate(ctx, log, s.prompts.BuildTextPrompt(text))
	if err != nil {
		return models.TextVerdict{}, err
	}

	candidate, err := ExtractJSON(raw)
	if err != nil {
		return models.TextVerdict{}, s.rejectOutput(log, raw, err)
	}
	verdict, err := ParseTextVerdict(candidate)
	if err != nil {
		return models.TextVerdict{}, s.rejectOutput(log, raw, err)
	}

	log.Info("analysis finished", "label", verdict.Label, "confidence", verdict.Confidence,
		"references", len(verdict.References))
	return verdict, nil
}

// AnalyzeImage runs the image verdict flow on an embedded image.
func (s *AnalyzerService) AnalyzeImage(ctx context.Context, imageDataURI, hint string) (models.ImageVerdict, error) {
	if s.IsPaused.Load() {
		return models.ImageVerdict{}, pausedError()
	}

	log := s.logger.With("flow", "image")
	log.Info("analysis started", "uri_bytes", len(imageDataURI), "hint", hint != "")

	raw, err := s.generate(ctx, log, s.prompts.BuildImagePrompt(imageDataURI, hint))
	if err != nil {
		return models.ImageVerdict{}, err
	}

	candidate, err := ExtractJSON(raw)
	if err != nil {
		return models.ImageVerdict{}, s.rejectOutput(log, raw, err)
	}
	verdict, err := ParseImageVerdict(candidate)
	if err != nil {
		return models.ImageVerdict{}, s.rejectOutput(log, raw, err)
	}

	log.Info("analysis finished", "label", verdict.Label, "confidence", verdict.Confidence,
		"ocr_chars", utf8.RuneCountInString(verdict.OCRText))
	return verdict, nil
}

// AnalyzeImageURL fetches the image first. A failed fetch ends the flow
// before the model is called.
func (s *AnalyzerService) AnalyzeImageURL(ctx context.Context, imageURL, hint string) (models.ImageVerdict, error) {
	if s.IsPaused.Load() {
		return models.ImageVerdict{}, pausedError()
	}
	if s.images == nil {
		return models.ImageVerdict{}, &AnalysisError{Kind: KindUnknown, Message: MsgUnknown, Err: errNoImageSource}
	}

	dataURI, err := s.images.FetchDataURI(ctx, imageURL)
	if err != nil {
		return models.ImageVerdict{}, err
	}
	return s.AnalyzeImage(ctx, dataURI, hint)
}

func (s *AnalyzerService) generate(ctx context.Context, log *slog.Logger, prompt Prompt) (string, error) {
	start := time.Now()
	raw, err := s.client.Generate(ctx, prompt)
	if err != nil {
		log.Error("model call failed", "error", err, "took", time.Since(start))
		return "", upstreamError(err)
	}
	log.Debug("model output received", "chars", len(raw), "took", time.Since(start))
	return raw, nil
}

func (s *AnalyzerService) rejectOutput(log *slog.Logger, raw string, err error) error {
	log.Warn("model output rejected", "error", err, "raw", raw)
	return formatError(err)
}
