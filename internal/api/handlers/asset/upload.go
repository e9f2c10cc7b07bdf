package asset

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/models"
	"github.com/File-Sharing-BondBridg/Asset-Service/internal/services"
	"github.com/gin-gonic/gin"
)

// UploadResult is the per-file result object returned to the client.
type UploadResult struct {
	Success     bool          `json:"success"`
	StorageName string        `json:"storage_name,omitempty"`
	URL         string        `json:"url,omitempty"`
	File        *models.Asset `json:"file,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Upload accepts one or more files under the "files" or "file" form field.
// Each file succeeds or fails on its own; results keep request order.
func (h *Handler) Upload(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}

	if c.Request.ContentLength > h.maxBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse multipart form"})
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}
	if len(files) > h.maxFiles {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many files in one request"})
		return
	}

	payloads := make([]services.Payload, 0, len(files))
	for _, fh := range files {
		payloads = append(payloads, services.Payload{
			Name: fh.Filename,
			Size: fh.Size,
			Open: openPart(fh),
		})
	}

	outcomes := h.assets.UploadBatch(c.Request.Context(), userID, payloads)

	results := make([]UploadResult, 0, len(outcomes))
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			_, msg := statusFor(o.Err)
			results = append(results, UploadResult{Success: false, Error: msg})
			continue
		}
		results = append(results, UploadResult{
			Success:     true,
			StorageName: o.Asset.StorageName,
			URL:         downloadURL(o.Asset.StorageName),
			File:        o.Asset,
		})
	}

	status := http.StatusOK
	if failed == len(outcomes) {
		status, _ = statusFor(outcomes[0].Err)
	}
	c.JSON(status, gin.H{"results": results})
}

func openPart(fh *multipart.FileHeader) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return fh.Open()
	}
}

func downloadURL(storageName string) string {
	return "/api/assets/" + storageName + "/download"
}
