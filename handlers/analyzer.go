package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hoax-guard/metrics"
	"hoax-guard/models"
	"hoax-guard/services"
)

const (
	textFailurePrefix = "Failed to analyze text: "
	msgInvalidDataURI = "Invalid image data URI."
)

type AnalyzerHandler struct {
	service        *services.AnalyzerService
	limits         *services.RateLimitTracker
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewAnalyzerHandler(service *services.AnalyzerService, limits *services.RateLimitTracker, maxUploadBytes int64, logger *slog.Logger) *AnalyzerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzerHandler{
		service:        service,
		limits:         limits,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With("component", "handlers"),
	}
}

// AnalyzeText handles POST /api/analyze/text with a JSON or form body.
func (h *AnalyzerHandler) AnalyzeText(c *gin.Context) {
	log := requestLogger(c, h.logger)

	var req models.TextAnalysisRequest
	if err := c.ShouldBind(&req); err != nil {
		log.Warn("text request not bound", "error", err)
		h.fail(c, "text", services.InvalidInput("", "Invalid request body."), "")
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(c, "text", inputError(err), "")
		return
	}

	verdict, err := h.service.AnalyzeText(c.Request.Context(), req.Text)
	if err != nil {
		log.Warn("text analysis failed", "kind", services.KindOf(err), "error", err)
		prefix := textFailurePrefix
		if services.KindOf(err) == services.KindPaused {
			prefix = ""
		}
		h.fail(c, "text", err, prefix)
		return
	}

	metrics.ObserveAnalysis("text", "ok")
	metrics.ObserveVerdict("text", string(verdict.Label))
	c.JSON(http.StatusOK, models.NewTextResult(verdict))
}

// AnalyzeImage handles POST /api/analyze/image. Uploads arrive as a data URI
// field or as a multipart file named "image"; URLs are fetched server side.
func (h *AnalyzerHandler) AnalyzeImage(c *gin.Context) {
	log := requestLogger(c, h.logger)

	var req models.ImageAnalysisRequest
	if err := c.ShouldBind(&req); err != nil {
		log.Warn("image request not bound", "error", err)
		h.fail(c, "image", services.InvalidInput("", "Invalid request body."), "")
		return
	}

	if req.InputType == models.InputUpload && req.ImageDataURI == "" && c.ContentType() == gin.MIMEMultipartPOSTForm {
		uri, err := h.uploadedDataURI(c)
		if err != nil {
			log.Warn("image upload rejected", "error", err)
			h.fail(c, "image", services.InvalidInput("image", msgInvalidDataURI), "")
			return
		}
		req.ImageDataURI = uri
	}

	if err := req.Validate(); err != nil {
		h.fail(c, "image", inputError(err), "")
		return
	}
	if req.InputType == models.InputUpload {
		if _, _, err := services.ParseDataURI(req.ImageDataURI); err != nil {
			log.Warn("image data URI rejected", "error", err)
			h.fail(c, "image", services.InvalidInput("imageDataUri", msgInvalidDataURI), "")
			return
		}
	}

	ctx := c.Request.Context()
	var (
		verdict models.ImageVerdict
		locator string
		err     error
	)
	switch req.InputType {
	case models.InputURL:
		locator = req.ImageURL
		verdict, err = h.service.AnalyzeImageURL(ctx, req.ImageURL, req.Hint)
	default:
		locator = req.ImageDataURI
		verdict, err = h.service.AnalyzeImage(ctx, req.ImageDataURI, req.Hint)
	}
	if err != nil {
		log.Warn("image analysis failed", "input", req.InputType, "kind", services.KindOf(err), "error", err)
		h.fail(c, "image", err, "")
		return
	}

	metrics.ObserveAnalysis("image", "ok")
	metrics.ObserveVerdict("image", string(verdict.Label))
	c.JSON(http.StatusOK, models.NewImageResult(verdict, locator))
}

func (h *AnalyzerHandler) uploadedDataURI(c *gin.Context) (string, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		return "", err
	}
	mediaType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("upload content type %q is not an image", mediaType)
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		return "", fmt.Errorf("upload of %d bytes exceeds %d", fh.Size, h.maxUploadBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return services.EncodeDataURI(mediaType, data), nil
}

func (h *AnalyzerHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Limits reports the last rate-limit headers seen per provider.
func (h *AnalyzerHandler) Limits(c *gin.Context) {
	if h.limits == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, h.limits.Snapshot())
}

func (h *AnalyzerHandler) fail(c *gin.Context, flow string, err error, prefix string) {
	kind := services.KindOf(err)
	var aerr *services.AnalysisError
	if errors.As(err, &aerr) && aerr.Field != "" {
		requestLogger(c, h.logger).Info("input rejected", "flow", flow, "field", aerr.Field)
	}
	metrics.ObserveAnalysis(flow, kind.String())
	c.JSON(statusFor(kind), models.ErrorResponse{Error: prefix + services.PublicMessage(err)})
}

func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindInvalidInput:
		return http.StatusBadRequest
	case services.KindFetch:
		return http.StatusUnprocessableEntity
	case services.KindFormat, services.KindUpstream:
		return http.StatusBadGateway
	case services.KindPaused:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// inputError carries a request validation failure into the analysis error
// taxonomy, keeping the offending field.
func inputError(err error) *services.AnalysisError {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return services.InvalidInput(verr.Field, verr.Message)
	}
	return services.InvalidInput("", services.PublicMessage(err))
}
