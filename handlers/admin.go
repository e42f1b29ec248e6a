package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"hoax-guard/logger"
	"hoax-guard/models"
	"hoax-guard/services"
)

type AdminHandler struct {
	token    string
	analyzer *services.AnalyzerService
	logs     *logger.Broadcaster
	logger   *slog.Logger
}

func NewAdminHandler(token string, analyzer *services.AnalyzerService, logs *logger.Broadcaster, log *slog.Logger) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		token:    token,
		analyzer: analyzer,
		logs:     logs,
		logger:   log.With("component", "admin"),
	}
}

func (h *AdminHandler) Pause(c *gin.Context) {
	h.analyzer.IsPaused.Store(true)
	h.logger.Info("analysis paused by admin")
	c.JSON(http.StatusOK, gin.H{"is_paused": true})
}

func (h *AdminHandler) Resume(c *gin.Context) {
	h.analyzer.IsPaused.Store(false)
	h.logger.Info("analysis resumed by admin")
	c.JSON(http.StatusOK, gin.H{"is_paused": false})
}

func (h *AdminHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"is_paused": h.analyzer.IsPaused.Load()})
}

// AuthMiddleware checks the X-Admin-Token header.
func (h *AdminHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.authorized(c.GetHeader("X-Admin-Token")) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
			return
		}
		c.Next()
	}
}

func (h *AdminHandler) authorized(token string) bool {
	if h.token == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamLogs upgrades to a websocket and forwards every log line until the
// client goes away. Browsers cannot set headers on websocket requests, so the
// token travels as a query parameter.
func (h *AdminHandler) StreamLogs(c *gin.Context) {
	if !h.authorized(c.Query("token")) {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	lines := h.logs.Subscribe()
	defer h.logs.Unsubscribe(lines)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-lines:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
