package server

import (
	"time"

	"github.com/gin-gonic/gin"
)

// meta mirrors the hub's response envelope metadata.
type meta struct {
	Timestamp string `json:"timestamp"`
	Instance  string `json:"instance,omitempty"`
}

// respond writes a {data, meta} envelope.
func (s *Server) respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"data": data,
		"meta": meta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Instance:  s.cfg.InstanceID,
		},
	})
}

// problem writes a problem-details error and aborts the request.
func (s *Server) problem(c *gin.Context, status int, title, detail string) {
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(status, gin.H{
		"type":   "about:blank",
		"title":  title,
		"status": status,
		"detail": detail,
	})
}
