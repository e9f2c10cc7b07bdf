// Package asset holds the HTTP handlers for the asset API.
package asset

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/api/middleware"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/logging"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/models"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/services"
	"github.com/gin-gonic/gin"
)

// Service is the part of services.AssetService the handlers call.
type Service interface {
	UploadBatch(ctx context.Context, ownerID string, payloads []services.Payload) []services.UploadResult
	GetInfo(ctx context.Context, storageName string) (*models.Asset, error)
	Download(ctx context.Context, storageName string) (io.ReadCloser, *models.Asset, error)
	Thumbnail(ctx context.Context, storageName string) (io.ReadCloser, *models.Asset, error)
	Delete(ctx context.Context, storageName, requesterID string) error
	ListOwnerAssets(ctx context.Context, requesterID, ownerID string, page, limit int) (*models.AssetPage, error)
	OwnerStats(ctx context.Context, requesterID, ownerID string) (models.OwnerStats, error)
	Health(ctx context.Context) (services.HealthStatus, bool)
}

// multipartOverhead covers part headers and boundaries on top of the file
// bytes themselves.
const multipartOverhead = 1 << 20

type Handler struct {
	assets   Service
	log      logging.Logger
	maxFiles int
	// maxBody caps an upload request before any of it is parsed.
	maxBody int64
}

// NewHandler builds the handlers. maxFileBytes is the per-file upload limit;
// zero or less falls back to the service default.
func NewHandler(assets Service, log logging.Logger, maxFileBytes int64) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	if maxFileBytes <= 0 {
		maxFileBytes = services.DefaultConstraints().MaxSizeBytes
	}
	const maxFiles = 20
	return &Handler{
		assets:   assets,
		log:      log.With("component", "http"),
		maxFiles: maxFiles,
		maxBody:  maxFiles*maxFileBytes + multipartOverhead,
	}
}

func requester(c *gin.Context) (string, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	}
	return id, ok
}

// statusFor maps a service error to an HTTP status and a message that is
// safe to show to clients.
func statusFor(err error) (int, string) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		if ve.Kind == services.TooLarge {
			return http.StatusRequestEntityTooLarge, ve.Error()
		}
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "access denied"
	case errors.Is(err, services.ErrNoThumbnail):
		return http.StatusNotFound, "thumbnail not available"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "asset not found"
	default:
		return http.StatusInternalServerError, "internal storage error"
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "name", c.Param("name"), "error", err)
	}
	c.JSON(status, gin.H{"error": msg})
}
