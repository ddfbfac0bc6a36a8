package http

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Afaqak/asr-worker/internal/config"
	"github.com/Afaqak/asr-worker/internal/logger"
)

func CORS(cfg config.Config) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Request-ID", cfg.RunSecretHeader},
		AllowCredentials: true,
	}
	return cors.New(corsConfig)
}

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		entry := log.WithRequest(c.Request)

		c.Next()

		entry.WithFields(logrus.Fields{
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request handled")
	}
}

func MaxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// SharedSecret rejects requests whose secret header does not match the
// configured value. An empty configured secret disables the check.
func SharedSecret(cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.RunSecret == "" {
			c.Next()
			return
		}
		got := c.GetHeader(cfg.RunSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.RunSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
