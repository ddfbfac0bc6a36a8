package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Afaqak/asr-worker/internal/config"
	"github.com/Afaqak/asr-worker/internal/domain"
	"github.com/Afaqak/asr-worker/internal/logger"
	"github.com/Afaqak/asr-worker/internal/services"
	"github.com/Afaqak/asr-worker/internal/storage"
)

// pipelineRunner runs one request end to end.
type pipelineRunner interface {
	Run(ctx context.Context, req domain.ProcessRequest) (domain.ProcessResult, error)
}

// batchRunner fans a batch of requests out over the pipeline.
type batchRunner interface {
	Run(ctx context.Context, items []domain.ProcessRequest) []domain.BatchItemResult
}

// videoProber looks up video metadata without downloading anything.
type videoProber interface {
	Probe(ctx context.Context, sourceURL string) (domain.VideoInfo, error)
}

type API struct {
	cfg    config.Config
	log    *logger.Logger
	runner pipelineRunner
	batch  batchRunner
	prober videoProber
	store  storage.BlobStore
	local  *storage.Local

	toolAvailable func(string) bool
}

func NewAPI(cfg config.Config, log *logger.Logger, runner pipelineRunner, batch batchRunner, prober videoProber, store storage.BlobStore, local *storage.Local) *API {
	return &API{
		cfg:           cfg,
		log:           log,
		runner:        runner,
		batch:         batch,
		prober:        prober,
		store:         store,
		local:         local,
		toolAvailable: services.ToolAvailable,
	}
}

func registerRoutes(r *gin.Engine, api *API) {
	r.GET("/health", api.handleHealth)
	r.GET("/diagnostics", api.handleDiagnostics)

	protected := r.Group("/", SharedSecret(api.cfg))
	{
		protected.POST("/process-asr", api.handleProcessASR)
		protected.POST("/batch", api.handleBatch)
		protected.POST("/probe", api.handleProbe)
		protected.GET("/audio", api.handleListAudio)
		protected.DELETE("/audio/*key", api.handleDeleteAudio)
	}

	// Signed URLs are their own authorization; the serve route stays
	// outside the shared-secret group and only exists for local storage.
	if api.local != nil {
		r.GET(storage.AudioFileRoute+"/*key", api.handleServeAudioFile)
	}
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) handleDiagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":            "asr-worker",
		"yt_dlp_available":   a.toolAvailable(a.cfg.YtdlpPath),
		"storage_provider":   a.cfg.StorageProvider,
		"bucket_configured":  a.cfg.BucketName != "",
		"api_key_configured": a.cfg.TranscribeAPIKey != "",
		"webhook_configured": a.cfg.WebhookURL != "",
		"proxy_configured":   a.cfg.ProxyURL != "",
	})
}

func (a *API) handleProcessASR(c *gin.Context) {
	if err := a.cfg.ValidateProcessing(); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	var req domain.ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid request body")
		return
	}
	req.YouTubeURL = strings.TrimSpace(req.YouTubeURL)
	req.VideoID = strings.TrimSpace(req.VideoID)
	if req.YouTubeURL == "" {
		respondMessage(c, http.StatusBadRequest, "missing youtube_url")
		return
	}
	if req.VideoID == "" {
		respondMessage(c, http.StatusBadRequest, "missing video_id")
		return
	}

	result, err := a.runner.Run(c.Request.Context(), req)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (a *API) handleBatch(c *gin.Context) {
	if err := a.cfg.ValidateProcessing(); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	var payload domain.BatchRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(payload.Items) == 0 {
		respondMessage(c, http.StatusBadRequest, "missing items")
		return
	}
	for i, item := range payload.Items {
		if strings.TrimSpace(item.YouTubeURL) == "" || strings.TrimSpace(item.VideoID) == "" {
			respondMessage(c, http.StatusBadRequest, fmt.Sprintf("item %d missing youtube_url or video_id", i))
			return
		}
	}

	results := a.batch.Run(c.Request.Context(), payload.Items)

	succeeded := 0
	for _, r := range results {
		if r.Error == "" {
			succeeded++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"count":     len(results),
		"succeeded": succeeded,
	})
}

func (a *API) handleProbe(c *gin.Context) {
	var payload struct {
		YouTubeURL string `json:"youtube_url"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid request body")
		return
	}
	payload.YouTubeURL = strings.TrimSpace(payload.YouTubeURL)
	if payload.YouTubeURL == "" {
		respondMessage(c, http.StatusBadRequest, "missing youtube_url")
		return
	}

	info, err := a.prober.Probe(c.Request.Context(), payload.YouTubeURL)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

func (a *API) handleListAudio(c *gin.Context) {
	if a.store == nil {
		respondError(c, http.StatusInternalServerError, &config.MissingSettingError{Setting: "BUCKET_NAME"})
		return
	}

	objects, err := a.store.List(c.Request.Context(), storage.ObjectKeyNamespace+"/")
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	for i := range objects {
		signed, err := a.store.SignedURL(c.Request.Context(), objects[i].Key, a.cfg.SignedURLTTL)
		if err != nil {
			a.log.WithError(err).WithField("object_key", objects[i].Key).Warn("signing listing url failed")
			continue
		}
		objects[i].SignedURL = signed
	}

	c.JSON(http.StatusOK, gin.H{"files": objects, "count": len(objects)})
}

func (a *API) handleDeleteAudio(c *gin.Context) {
	if a.store == nil {
		respondError(c, http.StatusInternalServerError, &config.MissingSettingError{Setting: "BUCKET_NAME"})
		return
	}

	key := strings.TrimPrefix(c.Param("key"), "/")
	if !strings.HasPrefix(key, storage.ObjectKeyNamespace+"/") {
		respondMessage(c, http.StatusBadRequest, "key must be under "+storage.ObjectKeyNamespace+"/")
		return
	}

	if err := a.store.Delete(c.Request.Context(), key); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			respondMessage(c, http.StatusNotFound, "object not found")
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": key})
}

func (a *API) handleServeAudioFile(c *gin.Context) {
	expiresParam := c.Query("exp")
	signature := c.Query("sig")

	if expiresParam == "" || signature == "" {
		respondMessage(c, http.StatusBadRequest, "missing signature")
		return
	}

	expires, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid expiration")
		return
	}

	if expires < time.Now().Unix() {
		respondMessage(c, http.StatusGone, "link expired")
		return
	}

	if !storage.ValidateObjectSignature(c.Request.URL.Path, expires, signature, a.cfg.StorageSigningSecret) {
		respondMessage(c, http.StatusForbidden, "invalid signature")
		return
	}

	key := strings.TrimPrefix(c.Param("key"), "/")
	path, contentType, err := a.local.Open(key)
	if err != nil {
		respondMessage(c, http.StatusNotFound, "object not found")
		return
	}

	c.Header("Content-Type", contentType)
	c.File(path)
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
