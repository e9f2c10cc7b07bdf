package asset

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetInfo(c *gin.Context) {
	if _, ok := requester(c); !ok {
		return
	}
	asset, err := h.assets.GetInfo(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, asset)
}

// List returns one page of an owner's assets. owner defaults to the caller.
func (h *Handler) List(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}
	owner := c.DefaultQuery("owner", userID)
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 20)

	result, err := h.assets.ListOwnerAssets(c.Request.Context(), userID, owner, page, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) Stats(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}
	stats, err := h.assets.OwnerStats(c.Request.Context(), userID, c.DefaultQuery("owner", userID))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return n
}

func (h *Handler) Health(c *gin.Context) {
	status, healthy := h.assets.Health(c.Request.Context())
	code := http.StatusOK
	state := "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(code, gin.H{"status": state, "checks": status})
}
