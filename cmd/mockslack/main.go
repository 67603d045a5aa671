// Command mockslack serves the subset of the Slack Web API the dispatcher
// uses, backed by an in-memory workspace.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	ws      *Workspace
	token   string
	baseURL string
}

func NewHandler(ws *Workspace, token, baseURL string) *Handler {
	return &Handler{ws: ws, token: token, baseURL: strings.TrimRight(baseURL, "/")}
}

func slackError(c *gin.Context, code string) {
	c.JSON(http.StatusOK, gin.H{"ok": false, "error": code})
}

// Auth rejects calls without the configured bot token.
func (h *Handler) Auth(c *gin.Context) {
	if h.token != "" && c.GetHeader("Authorization") != "Bearer "+h.token {
		c.AbortWithStatusJSON(http.StatusOK, gin.H{"ok": false, "error": "invalid_auth"})
		return
	}
	c.Next()
}

// Chaos fails a share of calls with a 500 to exercise the circuit breaker.
func (h *Handler) Chaos(c *gin.Context) {
	if h.ws.ShouldFail() {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal_error"})
		return
	}
	c.Next()
}

func (h *Handler) PostMessage(c *gin.Context) {
	var req struct {
		Channel  string `json:"channel" binding:"required"`
		Text     string `json:"text"`
		ThreadTS string `json:"thread_ts"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		slackError(c, "invalid_arguments")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		slackError(c, "no_text")
		return
	}

	msg, ok := h.ws.Post(req.Channel, req.Text, req.ThreadTS, "")
	if !ok {
		slackError(c, "channel_not_found")
		return
	}
	log.Info().
		Str("channel", req.Channel).
		Str("ts", msg.TS).
		Str("thread_ts", req.ThreadTS).
		Msg("Message posted")
	c.JSON(http.StatusOK, gin.H{"ok": true, "channel": req.Channel, "ts": msg.TS})
}

func (h *Handler) UsersList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	members, next := h.ws.Members(c.Query("cursor"), limit)
	c.JSON(http.StatusOK, gin.H{
		"ok":                true,
		"members":           members,
		"response_metadata": gin.H{"next_cursor": next},
	})
}

func (h *Handler) ConversationsList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	channels, next := h.ws.Channels(c.Query("cursor"), limit)
	c.JSON(http.StatusOK, gin.H{
		"ok":                true,
		"channels":          channels,
		"response_metadata": gin.H{"next_cursor": next},
	})
}

func (h *Handler) ConversationsHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	msgs, ok := h.ws.History(c.Query("channel"), limit)
	if !ok {
		slackError(c, "channel_not_found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "messages": msgs})
}

func (h *Handler) GetUploadURL(c *gin.Context) {
	filename := c.PostForm("filename")
	length, err := strconv.Atoi(c.PostForm("length"))
	if filename == "" || err != nil || length < 0 {
		slackError(c, "invalid_arguments")
		return
	}
	id := h.ws.ReserveUpload(filename, length)
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"file_id":    id,
		"upload_url": fmt.Sprintf("%s/upload/%s", h.baseURL, id),
	})
}

func (h *Handler) Upload(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if !h.ws.ReceiveUpload(c.Param("file_id"), len(body)) {
		c.Status(http.StatusNotFound)
		return
	}
	log.Info().Str("file_id", c.Param("file_id")).Int("bytes", len(body)).Msg("File bytes received")
	c.String(http.StatusOK, "OK - %d", len(body))
}

func (h *Handler) CompleteUpload(c *gin.Context) {
	var req struct {
		Files []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"files" binding:"required"`
		ChannelID      string `json:"channel_id"`
		InitialComment string `json:"initial_comment"`
		ThreadTS       string `json:"thread_ts"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Files) == 0 {
		slackError(c, "invalid_arguments")
		return
	}

	id := req.Files[0].ID
	if _, err := h.ws.CompleteUpload(id, req.ChannelID, req.InitialComment, req.ThreadTS); err != nil {
		slackError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "files": []gin.H{{"id": id, "title": req.Files[0].Title}}})
}

// UpdateConfig allows changing the failure rate at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		FailureRate *float64 `json:"failure_rate"`
	}
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if config.FailureRate != nil && *config.FailureRate >= 0 && *config.FailureRate <= 1.0 {
		h.ws.SetFailureRate(*config.FailureRate)
		log.Info().Float64("rate", *config.FailureRate).Msg("Updated failure rate")
	}
	c.JSON(http.StatusOK, gin.H{"failure_rate": h.ws.FailureRate()})
}

func (h *Handler) Messages(c *gin.Context) {
	msgs, ok := h.ws.History(c.Param("channel"), 0)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown channel"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	api := router.Group("/api", handler.Chaos, handler.Auth)
	{
		api.POST("/chat.postMessage", handler.PostMessage)
		api.GET("/users.list", handler.UsersList)
		api.GET("/conversations.list", handler.ConversationsList)
		api.GET("/conversations.history", handler.ConversationsHistory)
		api.POST("/files.getUploadURLExternal", handler.GetUploadURL)
		api.POST("/files.completeUploadExternal", handler.CompleteUpload)
	}
	router.POST("/upload/:file_id", handler.Upload)

	mock := router.Group("/_mock")
	{
		mock.PUT("/config", handler.UpdateConfig)
		mock.GET("/channels/:channel/messages", handler.Messages)
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8082")
	token := getEnv("SLACK_BOT_TOKEN", "xoxb-mock")
	baseURL := getEnv("PUBLIC_URL", "http://localhost:"+port)
	failureRate := getEnvFloat("FAILURE_RATE", 0)

	log.Info().
		Str("port", port).
		Float64("failure_rate", failureRate).
		Msg("Starting Mock Slack")

	handler := NewHandler(NewWorkspace(failureRate), token, baseURL)
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
