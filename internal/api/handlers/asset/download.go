package asset

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var filenameReplacer = strings.NewReplacer(`"`, "'", `\`, "_", "\r", "", "\n", "")

func (h *Handler) Download(c *gin.Context) {
	if _, ok := requester(c); !ok {
		return
	}
	rc, asset, err := h.assets.Download(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, asset.Size, asset.MimeType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, filenameReplacer.Replace(asset.OriginalName)),
	})
}

// Thumbnail streams the derived JPEG. The size is not tracked, so the
// response is chunked.
func (h *Handler) Thumbnail(c *gin.Context) {
	if _, ok := requester(c); !ok {
		return
	}
	rc, _, err := h.assets.Thumbnail(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, -1, "image/jpeg", rc, map[string]string{
		"Cache-Control": "private, max-age=3600",
	})
}
