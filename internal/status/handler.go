package status

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler serves the tracker over HTTP
func Handler(t *Tracker) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, t.Snapshot())
	})
	return r
}
