package asset

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Delete(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}
	name := c.Param("name")
	if err := h.assets.Delete(c.Request.Context(), name, userID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":      "asset deleted",
		"storage_name": name,
	})
}
