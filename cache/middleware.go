package cache

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware caches successful JSON responses of GET requests under the key
// returned by keyFor. An empty key skips caching for that request.
func Middleware(store Store, ttl time.Duration, keyFor func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := keyFor(c)
		if key == "" {
			c.Next()
			return
		}

		cached, err := store.Get(c.Request.Context(), key)
		if err == nil {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
			c.Abort()
			return
		}
		if !errors.Is(err, ErrCacheMiss) {
			slog.Warn("error reading response cache", "key", key, "error", err)
		}

		c.Header("X-Cache", "MISS")

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
		}
		c.Writer = writer

		c.Next()

		if c.Writer.Status() != http.StatusOK ||
			!strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "application/json") {
			return
		}
		if err := store.Set(c.Request.Context(), key, writer.body.Bytes(), ttl); err != nil {
			slog.Warn("error writing response cache", "key", key, "error", err)
		}
	}
}
