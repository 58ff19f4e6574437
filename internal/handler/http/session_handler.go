package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"
	"github.com/yokitheyo/imageenhancer/internal/domain"
	"github.com/yokitheyo/imageenhancer/internal/dto"
)

type SessionHandler struct {
	service       domain.SessionService
	maxUploadSize int64
}

func NewSessionHandler(service domain.SessionService, maxUploadSize int64) *SessionHandler {
	return &SessionHandler{
		service:       service,
		maxUploadSize: maxUploadSize,
	}
}

func (h *SessionHandler) RegisterRoutes(engine *ginext.Engine) {
	engine.POST("/api/sessions", h.CreateSession)
	engine.GET("/api/sessions/:id", h.GetSession)
	engine.POST("/api/sessions/:id/upload", h.Upload)
	engine.PUT("/api/sessions/:id/adjustments/:channel", h.SetAdjustment)
	engine.GET("/api/sessions/:id/original", h.GetOriginal)
	engine.GET("/api/sessions/:id/preview", h.GetPreview)
	engine.GET("/api/sessions/:id/download", h.Download)
}

// CreateSession POST /api/sessions
func (h *SessionHandler) CreateSession(c *ginext.Context) {
	snapshot, err := h.service.CreateSession(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.MapSessionToResponse(snapshot, h.getBaseURL(c), false))
}

// GetSession GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *ginext.Context) {
	snapshot, err := h.service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	embed, _ := strconv.ParseBool(c.Query("embed"))
	c.JSON(http.StatusOK, dto.MapSessionToResponse(snapshot, h.getBaseURL(c), embed))
}

// Upload POST /api/sessions/:id/upload
func (h *SessionHandler) Upload(c *ginext.Context) {
	id := c.Param("id")

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("session_id", id).Msg("failed to get file from request")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: "No image file provided",
		})
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		h.writeError(c, domain.NewIngestionError(domain.IngestionTooLarge,
			fmt.Sprintf("maximum is %d MB", h.maxUploadSize/(1024*1024)), nil))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		h.writeError(c, domain.NewIngestionError(domain.IngestionUnreadableFile, "read failed", err))
		return
	}

	snapshot, err := h.service.IngestFile(c.Request.Context(), id, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.MapSessionToResponse(snapshot, h.getBaseURL(c), false))
}

// SetAdjustment PUT /api/sessions/:id/adjustments/:channel
func (h *SessionHandler) SetAdjustment(c *ginext.Context) {
	ch, err := domain.ParseChannel(c.Param("channel"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req dto.SetAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: "Body must be {\"value\": <0-200>}",
		})
		return
	}

	snapshot, err := h.service.SetAdjustment(c.Request.Context(), c.Param("id"), ch, *req.Value)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapSessionToResponse(snapshot, h.getBaseURL(c), false))
}

// GetOriginal GET /api/sessions/:id/original
func (h *SessionHandler) GetOriginal(c *ginext.Context) {
	img, err := h.service.Original(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", img.Filename))
	c.Data(http.StatusOK, img.MimeType, img.Data)
}

// GetPreview GET /api/sessions/:id/preview
func (h *SessionHandler) GetPreview(c *ginext.Context) {
	var buf bytes.Buffer
	info, err := h.service.Preview(c.Request.Context(), c.Param("id"), &buf)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, info.MimeType, buf.Bytes())
}

// Download GET /api/sessions/:id/download
func (h *SessionHandler) Download(c *ginext.Context) {
	id := c.Param("id")

	var buf bytes.Buffer
	info, filename, err := h.service.Export(c.Request.Context(), id, &buf)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, info.MimeType, buf.Bytes())
	zlog.Logger.Info().
		Str("session_id", id).
		Str("filename", filename).
		Int("bytes_written", buf.Len()).
		Msg("enhanced image sent successfully")
}

// Helper methods

func (h *SessionHandler) writeError(c *ginext.Context, err error) {
	var ingestErr *domain.IngestionError
	switch {
	case errors.As(err, &ingestErr):
		status := http.StatusBadRequest
		if ingestErr.Kind == domain.IngestionTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, dto.ErrorResponse{Error: string(ingestErr.Kind), Message: ingestErr.Error()})
	case errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "not_found", Message: "Session not found"})
	case errors.Is(err, domain.ErrNotReady):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "not_ready", Message: err.Error()})
	case errors.Is(err, domain.ErrAdjustmentOutOfRange):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "out_of_range",
			Message: fmt.Sprintf("Adjustment must be between %d and %d", domain.AdjustmentMin, domain.AdjustmentMax),
		})
	case errors.Is(err, domain.ErrUnknownChannel):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "unknown_channel",
			Message: "Channel must be one of: brightness, contrast, saturation",
		})
	default:
		zlog.Logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "server_error",
			Message: "Internal server error",
		})
	}
}

func (h *SessionHandler) getBaseURL(c *ginext.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request.Host)
}
