package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"visionaid/internal/auth"
	"visionaid/internal/imaging"
	"visionaid/internal/logger"
	"visionaid/internal/models"
	"visionaid/internal/pipeline"
	"visionaid/internal/worker"
)

// Pipeline is the session controller driven by the HTTP layer.
type Pipeline interface {
	LoadImage(handle models.ImageHandle) bool
	State() models.SessionState
	Gates() map[models.Stage]bool
	End()
	Run(ctx context.Context, stage models.Stage) (pipeline.Outcome, error)
}

// RunLister reads the stage run audit log.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]models.StageRun, error)
}

// Options tune request limits.
type Options struct {
	MaxUploadMB       int
	MaxImageDimension int
	RequestTimeout    time.Duration
}

const (
	defaultRequestTimeout = 2 * time.Minute
	maxRunsLimit          = 500
)

// Handler wires HTTP routes to the pipeline controller.
type Handler struct {
	pipeline       Pipeline
	runs           RunLister
	guard          *auth.Guard
	maxUploadBytes int64
	maxImageDim    int
	requestTimeout time.Duration
	log            *zap.Logger
}

// NewHandler constructs a Handler. runs may be nil when the audit log is disabled.
func NewHandler(p Pipeline, runs RunLister, guard *auth.Guard, opts Options, log *zap.Logger) *Handler {
	if guard == nil {
		guard = auth.NewGuard("")
	}
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = 10
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	return &Handler{
		pipeline:       p,
		runs:           runs,
		guard:          guard,
		maxUploadBytes: int64(opts.MaxUploadMB) << 20,
		maxImageDim:    opts.MaxImageDimension,
		requestTimeout: opts.RequestTimeout,
		log:            logger.OrNop(log),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)
	api := router.Group("/api")
	api.GET("/healthz", h.health)
	api.Use(h.guard.Middleware())
	api.POST("/image", h.uploadImage)
	api.GET("/session", h.getSession)
	api.DELETE("/session", h.endSession)
	api.GET("/stages/:stage", h.getArtifact)
	api.POST("/stages/:stage", h.runStage)
	api.POST("/stages/:stage/stream", h.streamStage)
	api.GET("/runs", h.listRuns)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) uploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+(1<<20))
	file, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
		return
	}

	handle, err := imaging.Normalize(data, filepath.Base(file.Filename), h.maxImageDim)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, imaging.ErrUnsupported):
			status = http.StatusUnsupportedMediaType
		case errors.Is(err, imaging.ErrTooManyPixels):
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	reset := h.pipeline.LoadImage(handle)
	c.JSON(http.StatusCreated, gin.H{
		"image": handle.Info(),
		"reset": reset,
		"gates": h.pipeline.Gates(),
	})
}

func (h *Handler) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state": h.pipeline.State(),
		"gates": h.pipeline.Gates(),
	})
}

func (h *Handler) endSession(c *gin.Context) {
	h.pipeline.End()
	c.Status(http.StatusNoContent)
}

// getArtifact returns the stored text of one stage without running it.
func (h *Handler) getArtifact(c *gin.Context) {
	stage, ok := models.ParseStage(c.Param("stage"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown stage: " + c.Param("stage")})
		return
	}
	text, ok := h.pipeline.State().Artifact(stage)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no " + string(stage) + " result"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stage": stage, "text": text})
}

func (h *Handler) runStage(c *gin.Context) {
	stage, ok := models.ParseStage(c.Param("stage"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown stage: " + c.Param("stage")})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	out, err := h.pipeline.Run(ctx, stage)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "gates": h.pipeline.Gates()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result":      out.Result,
		"audio":       out.Audio,
		"audio_error": out.AudioError,
		"gates":       h.pipeline.Gates(),
	})
}

func (h *Handler) streamStage(c *gin.Context) {
	stage, ok := models.ParseStage(c.Param("stage"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown stage: " + c.Param("stage")})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := sendEvent("ack", gin.H{"stage": stage}); err != nil {
		return
	}
	out, err := h.pipeline.Run(ctx, stage)
	if err != nil {
		_ = sendEvent("error", gin.H{"message": err.Error(), "status": statusFor(err)})
		return
	}
	if err := sendEvent("result", out.Result); err != nil {
		return
	}
	switch {
	case out.Audio != nil:
		if err := sendEvent("audio", out.Audio); err != nil {
			return
		}
	case out.AudioError != "":
		if err := sendEvent("audio_error", gin.H{"message": out.AudioError}); err != nil {
			return
		}
	}
	_ = sendEvent("done", gin.H{"gates": h.pipeline.Gates()})
}

func (h *Handler) listRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run log disabled"})
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxRunsLimit)
	}
	runs, err := h.runs.Recent(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("list runs failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list runs failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrUnknownStage):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, worker.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, worker.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
