// Package handlers wires the HTTP surface: analysis, transcription and
// operational endpoints.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"xray-diagnosis-service/bodyregion"
	"xray-diagnosis-service/cache"
	"xray-diagnosis-service/config"
	"xray-diagnosis-service/imaging"
	"xray-diagnosis-service/metrics"
	"xray-diagnosis-service/models"
	"xray-diagnosis-service/report"
	"xray-diagnosis-service/router"
	"xray-diagnosis-service/version"
)

// Analyzer is the router contract the handlers depend on.
type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.NormalizedDiagnosis, error)
	Providers() []map[string]any
}

// Transcriber is the audio chain contract the handlers depend on.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, fileName, mimeType string) (*models.TranscriptionResult, error)
}

// Handler carries the wired dependencies for all routes.
type Handler struct {
	cfg         *config.Config
	analyzer    Analyzer
	transcriber Transcriber
	detector    *bodyregion.Detector
	store       cache.Store
	rec         *metrics.Recorder
	started     time.Time
}

// New creates the handler set.
func New(cfg *config.Config, analyzer Analyzer, transcriber Transcriber, detector *bodyregion.Detector, store cache.Store, rec *metrics.Recorder) *Handler {
	return &Handler{
		cfg:         cfg,
		analyzer:    analyzer,
		transcriber: transcriber,
		detector:    detector,
		store:       store,
		rec:         rec,
		started:     time.Now(),
	}
}

// Analyze handles POST /api/v3/analyze. The upload is written to a
// temporary file that is removed on every exit path.
func (h *Handler) Analyze(c *gin.Context) {
	start := time.Now()

	fileHeader, err := c.FormFile("xray_image")
	if err != nil {
		badRequest(c, "xray_image file is required")
		return
	}
	if fileHeader.Size > h.cfg.MaxUploadBytes {
		badRequest(c, fmt.Sprintf("file exceeds maximum size of %d bytes", h.cfg.MaxUploadBytes))
		return
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileHeader.Filename)), ".")
	if !contains(h.cfg.AllowedExtensions, ext) {
		badRequest(c, fmt.Sprintf("unsupported file type %q, allowed: %s", ext, strings.Join(h.cfg.AllowedExtensions, ", ")))
		return
	}

	mode := models.AnalysisMode(strings.ToLower(c.DefaultPostForm("analysis_mode", string(models.ModeDetailed))))
	if mode != models.ModeFast && mode != models.ModeDetailed {
		badRequest(c, "analysis_mode must be \"fast\" or \"detailed\"")
		return
	}
	symptoms := strings.TrimSpace(c.PostForm("symptoms"))
	region := strings.ToLower(strings.TrimSpace(c.PostForm("body_region")))

	path := filepath.Join(h.cfg.UploadDir, uuid.New().String()+"."+ext)
	if err := c.SaveUploadedFile(fileHeader, path); err != nil {
		log.WithError(err).Error("failed to save upload")
		serverError(c, "failed to store uploaded file")
		return
	}
	defer os.Remove(path)

	imageBytes, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).Error("failed to read upload back")
		serverError(c, "failed to read uploaded file")
		return
	}

	// Safety gate runs before any provider spend.
	if region != "" {
		img, err := imaging.Load(path)
		if err != nil {
			badRequest(c, "uploaded file is not a decodable image")
			return
		}
		if ok, msg := h.detector.Check(img, region, nil); !ok {
			h.rec.GateBlock()
			log.WithFields(log.Fields{
				"requested_region": region,
			}).Warn("analysis blocked by body region gate")
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"error":   msg,
			})
			return
		}
	}

	key := cache.Key(imageBytes, symptoms, mode, region)
	if cached, ok := h.store.Get(c.Request.Context(), key); ok {
		h.rec.CacheHit()
		h.respondDiagnosis(c, cached, mode, start, true)
		return
	}
	h.rec.CacheMiss()

	diagnosis, err := h.analyzer.Analyze(c.Request.Context(), models.AnalysisRequest{
		ImagePath:       path,
		Symptoms:        symptoms,
		Mode:            mode,
		RequestedRegion: region,
	})
	switch {
	case err == nil:
	case errors.Is(err, router.ErrAllProvidersUnavailable), errors.Is(err, router.ErrFastModeUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	default:
		badRequest(c, "failed to process image: "+err.Error())
		return
	}

	h.store.Set(c.Request.Context(), key, diagnosis)
	h.respondDiagnosis(c, diagnosis, mode, start, false)
}

func (h *Handler) respondDiagnosis(c *gin.Context, d *models.NormalizedDiagnosis, mode models.AnalysisMode, start time.Time, cached bool) {
	elapsed := time.Since(start)
	h.rec.AnalyzeRequest(string(mode), elapsed)
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"cached":             cached,
		"diagnosis":          d,
		"report":             report.Render(d),
		"processing_time_ms": elapsed.Milliseconds(),
	})
}

// Transcribe handles POST /api/v3/transcribe.
func (h *Handler) Transcribe(c *gin.Context) {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		badRequest(c, "audio file is required")
		return
	}
	if fileHeader.Size > h.cfg.MaxUploadBytes {
		badRequest(c, fmt.Sprintf("file exceeds maximum size of %d bytes", h.cfg.MaxUploadBytes))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		serverError(c, "failed to open uploaded audio")
		return
	}
	defer f.Close()
	audio, err := io.ReadAll(f)
	if err != nil {
		serverError(c, "failed to read uploaded audio")
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	result, err := h.transcriber.Transcribe(c.Request.Context(), audio, fileHeader.Filename, mimeType)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"transcription": result.Transcription,
		"symptoms":      result.Symptoms,
		"provider":      result.Provider,
	})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "xray-diagnosis-service",
	})
}

// Status handles GET /api/v3/status. It reports chain configuration and
// key presence only; key material never appears in responses.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"uptime_seconds":   int(time.Since(h.started).Seconds()),
		"vision_providers": h.analyzer.Providers(),
		"audio_providers":  h.cfg.AudioProviderOrder,
		"fast_mode":        h.cfg.ClassifierURL != "",
		"cache_backend":    cacheBackend(h.cfg.RedisURL),
	})
}

// Version handles GET /version.
func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Info())
}

func cacheBackend(redisURL string) string {
	if redisURL != "" {
		return "redis"
	}
	return "memory"
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

func serverError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": msg})
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
