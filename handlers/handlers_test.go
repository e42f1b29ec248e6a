package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoax-guard/config"
	"hoax-guard/logger"
	"hoax-guard/models"
	"hoax-guard/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const hoaxReply = "```json\n" + `{
  "label": "hoax",
  "confidence": 0.92,
  "rationale": "No physical mechanism links vaccines to magnetism.",
  "references": [{"title": "Vaccines are not magnetic", "url": "https://www.cdc.gov/vaccines/facts.html"}]
}` + "\n```"

type stubModel struct {
	mu      sync.Mutex
	reply   string
	prompts []services.Prompt
}

func (m *stubModel) Generate(_ context.Context, p services.Prompt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, p)
	return m.reply, nil
}

func (m *stubModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

type testEnv struct {
	router   *gin.Engine
	model    *stubModel
	analyzer *services.AnalyzerService
	logs     *logger.Broadcaster
}

func newTestEnv(t *testing.T, adminToken string) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Fetch: config.FetchConfig{
			Timeout:           5 * time.Second,
			MaxBytes:          1 << 20,
			UserAgent:         "test-agent",
			AllowPrivateHosts: true,
		},
		CORS:       config.CORSConfig{AllowOrigins: []string{"*"}},
		AdminToken: adminToken,
	}
	prompts, err := services.LoadPromptConfig("")
	require.NoError(t, err)

	logs := logger.NewBroadcaster(io.Discard)
	log := logger.New("debug", "text", logs)
	model := &stubModel{reply: hoaxReply}
	analyzer := services.NewAnalyzerService(model, services.NewImageFetcher(cfg.Fetch, log), prompts, log)

	return &testEnv{
		router:   NewRouter(cfg, analyzer, services.NewRateLimitTracker(), logs, log),
		model:    model,
		analyzer: analyzer,
		logs:     logs,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func postJSON(path string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestAnalyzeText_EndToEnd(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(postJSON("/api/analyze/text", map[string]string{"text": "Vaccines cause magnetism in arms."}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, "text", body["type"])
	assert.Equal(t, "hoax", body["label"])
	assert.InDelta(t, 0.92, body["confidence"], 1e-9)
	assert.NotEmpty(t, body["rationale"])
	assert.Len(t, body["references"], 1)
	assert.NotContains(t, body, "imageUrl")
	assert.Equal(t, 1, env.model.calls())
}

func TestAnalyzeText_LengthBoundary(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(postJSON("/api/analyze/text", map[string]string{"text": "123456789"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Text must be at least 10 characters long.", decodeBody(t, w)["error"])
	assert.Equal(t, 0, env.model.calls())

	w = env.do(postJSON("/api/analyze/text", map[string]string{"text": "1234567890"}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.model.calls())
}

func TestAnalyzeText_FormPost(t *testing.T) {
	env := newTestEnv(t, "")

	form := url.Values{"text": {"The moon landing was staged in a studio."}}
	req := httptest.NewRequest(http.MethodPost, "/api/analyze/text", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, env.model.prompts[0].User, "The moon landing was staged in a studio.")
}

func TestAnalyzeText_InvalidModelOutput(t *testing.T) {
	env := newTestEnv(t, "")
	env.model.reply = `{"label": "hoax", "confidence": 0.5,}`

	w := env.do(postJSON("/api/analyze/text", map[string]string{"text": "some claim to check"}))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Failed to analyze text: AI returned an invalid response format.", decodeBody(t, w)["error"])
}

func TestAnalyzeText_MalformedBody(t *testing.T) {
	env := newTestEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/analyze/text", strings.NewReader(`{"text":`))
	req.Header.Set("Content-Type", "application/json")

	w := env.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, env.model.calls())
}

func TestAnalyzeImage_Upload(t *testing.T) {
	env := newTestEnv(t, "")
	uri := services.EncodeDataURI("image/png", []byte("fake png"))

	w := env.do(postJSON("/api/analyze/image", map[string]string{
		"inputType":    "upload",
		"imageDataUri": uri,
		"hint":         "shared on a messenger",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, "image", body["type"])
	assert.Equal(t, uri, body["imageUrl"])
	assert.Equal(t, "hoax", body["label"])

	require.Equal(t, 1, env.model.calls())
	assert.Equal(t, uri, env.model.prompts[0].ImageDataURI)
	assert.Contains(t, env.model.prompts[0].User, "shared on a messenger")
}

func TestAnalyzeImage_MultipartFile(t *testing.T) {
	env := newTestEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("inputType", "upload"))
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="meme.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, _ = part.Write([]byte("jpeg"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 1, env.model.calls())
	assert.Equal(t, "data:image/jpeg;base64,anBlZw==", env.model.prompts[0].ImageDataURI)
}

func TestAnalyzeImage_URL(t *testing.T) {
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/photo.png" {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer images.Close()

	t.Run("image is fetched and analyzed", func(t *testing.T) {
		env := newTestEnv(t, "")
		w := env.do(postJSON("/api/analyze/image", map[string]string{
			"inputType": "url",
			"imageUrl":  images.URL + "/photo.png",
		}))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, images.URL+"/photo.png", decodeBody(t, w)["imageUrl"])
		assert.Equal(t, "data:image/png;base64,cG5n", env.model.prompts[0].ImageDataURI)
	})

	t.Run("html is rejected before the model", func(t *testing.T) {
		env := newTestEnv(t, "")
		w := env.do(postJSON("/api/analyze/image", map[string]string{
			"inputType": "url",
			"imageUrl":  images.URL + "/article.html",
		}))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, services.MsgFetchFailed, decodeBody(t, w)["error"])
		assert.Equal(t, 0, env.model.calls())
	})
}

func TestAnalyzeImage_InvalidInput(t *testing.T) {
	env := newTestEnv(t, "")
	cases := []struct {
		body map[string]string
		want string
	}{
		{map[string]string{"inputType": "camera"}, "Invalid input type selected."},
		{map[string]string{"inputType": "upload", "imageDataUri": "data:text/plain;base64,aGk="}, "Invalid image data URI."},
		{map[string]string{"inputType": "url", "imageUrl": "not a url"}, "Invalid URL format."},
		{map[string]string{"inputType": "url", "imageUrl": "ftp://example.com/a.png"}, "Invalid URL format."},
	}
	for _, tc := range cases {
		w := env.do(postJSON("/api/analyze/image", tc.body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, tc.want, decodeBody(t, w)["error"])
	}
	assert.Equal(t, 0, env.model.calls())
}

func TestAnalyzeImage_UndecodableDataURI(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(postJSON("/api/analyze/image", map[string]string{
		"inputType":    "upload",
		"imageDataUri": "data:image/png;base64,***",
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid image data URI.", decodeBody(t, w)["error"])
	assert.Equal(t, 0, env.model.calls())
}

func TestInputError_KeepsField(t *testing.T) {
	err := inputError(&models.ValidationError{Field: "imageUrl", Message: "Invalid URL format."})
	assert.Equal(t, services.KindInvalidInput, err.Kind)
	assert.Equal(t, "imageUrl", err.Field)
	assert.Equal(t, "Invalid URL format.", services.PublicMessage(err))

	err = inputError(errors.New("text is required"))
	assert.Equal(t, services.KindInvalidInput, err.Kind)
	assert.Empty(t, err.Field)
}

func TestAnalyze_PausedReturns503(t *testing.T) {
	env := newTestEnv(t, "")
	env.analyzer.IsPaused.Store(true)

	w := env.do(postJSON("/api/analyze/text", map[string]string{"text": "some claim to check"}))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, services.MsgPaused, decodeBody(t, w)["error"])

	w = env.do(postJSON("/api/analyze/image", map[string]string{
		"inputType":    "upload",
		"imageDataUri": services.EncodeDataURI("image/png", []byte("png")),
	}))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 0, env.model.calls())
}

func TestAdmin_PauseResume(t *testing.T) {
	env := newTestEnv(t, "secret")

	req := httptest.NewRequest(http.MethodPost, "/api/admin/pause", nil)
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/pause", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/pause", nil)
	req.Header.Set("X-Admin-Token", "secret")
	assert.Equal(t, http.StatusOK, env.do(req).Code)
	assert.True(t, env.analyzer.IsPaused.Load())

	req = httptest.NewRequest(http.MethodGet, "/api/admin/status", nil)
	req.Header.Set("X-Admin-Token", "secret")
	w := env.do(req)
	assert.JSONEq(t, `{"is_paused": true}`, w.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/admin/resume", nil)
	req.Header.Set("X-Admin-Token", "secret")
	assert.Equal(t, http.StatusOK, env.do(req).Code)
	assert.False(t, env.analyzer.IsPaused.Load())
}

func TestAdmin_DisabledWithoutToken(t *testing.T) {
	env := newTestEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/admin/pause", nil)
	req.Header.Set("X-Admin-Token", "")
	assert.Equal(t, http.StatusNotFound, env.do(req).Code)
}

func TestAdmin_StreamLogs(t *testing.T) {
	env := newTestEnv(t, "secret")
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/admin/logs?token="
	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"secret", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.logs.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	_, _ = env.logs.Write([]byte("hello from the log\n"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		if string(msg) == "hello from the log\n" {
			break
		}
	}
}

func TestRouter_RequestIDAndMetrics(t *testing.T) {
	env := newTestEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := env.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/limits", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	env.do(postJSON("/api/analyze/text", map[string]string{"text": "some claim to check"}))
	w = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `hoax_guard_analyses_total{kind="text",outcome="ok"}`)
}
