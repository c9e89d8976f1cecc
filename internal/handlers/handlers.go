package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/face-score/internal/analyzer"
	"github.com/example/face-score/internal/auth"
	"github.com/example/face-score/internal/logging"
)

// DefaultMaxUploadSize applies when Options.MaxUploadBytes is not set.
const DefaultMaxUploadSize = 10 << 20

// multipartOverhead is the room left for form boundaries and headers on top of the file limit.
const multipartOverhead = 64 << 10

// ReportService is the analyzer surface used by the HTTP layer.
type ReportService interface {
	Analyze(ctx context.Context, image []byte) (*analyzer.Result, error)
	Cached(ctx context.Context, digest string) (*analyzer.Result, error)
	Metrics() analyzer.MetricsSummary
}

// Options tune the routes. A nil Auth leaves /analyze public.
type Options struct {
	MaxUploadBytes int64
	Auth           gin.HandlerFunc
	Logger         *zap.Logger
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc ReportService, opts Options) {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &handler{svc: svc, maxUpload: opts.MaxUploadBytes, logger: opts.Logger.Named("http")}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Metrics())
	})
	router.GET("/reports/:digest", h.cachedReport)

	analyze := []gin.HandlerFunc{h.analyze}
	if opts.Auth != nil {
		analyze = append([]gin.HandlerFunc{opts.Auth}, analyze...)
	}
	router.POST("/analyze", analyze...)
}

type handler struct {
	svc       ReportService
	maxUpload int64
	logger    *zap.Logger
}

func (h *handler) analyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if file.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}

	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported content type", "content_type": mt.String()})
		return
	}

	res, err := h.svc.Analyze(c.Request.Context(), data)
	if err != nil {
		subject, _ := auth.Subject(c.Request.Context())
		h.logger.Error("analysis failed", zap.Error(err), zap.String("subject", subject))
		if logging.OperationOf(err) == "analyzer.detect_landmarks" {
			c.JSON(http.StatusBadGateway, gin.H{"error": "landmark provider unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		return
	}

	status := http.StatusOK
	if res.Err() != nil {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, resultBody(res))
}

func (h *handler) cachedReport(c *gin.Context) {
	res, err := h.svc.Cached(c.Request.Context(), c.Param("digest"))
	if err != nil {
		if errors.Is(err, analyzer.ErrNotCached) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		h.logger.Error("cache lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache lookup failed"})
		return
	}
	c.JSON(http.StatusOK, resultBody(res))
}

func resultBody(res *analyzer.Result) gin.H {
	body := gin.H{
		"request_id": res.RequestID,
		"digest":     res.Digest,
		"outcome":    res.Outcome,
		"cached":     res.Cached,
		"report":     res.Text,
	}
	if res.Scores != nil {
		body["total"] = res.Scores.Total
		body["categories"] = res.Scores.Categories
		body["scores"] = res.Scores.Map()
	}
	return body
}
