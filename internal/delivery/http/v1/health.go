package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *handlerImpl) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}
