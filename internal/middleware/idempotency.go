package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"glamtrack/internal/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
)

// replayedResponse is the stored form of one status push response.
type replayedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
}

// captureWriter tees the response body so it can be stored for replay.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays mutating requests that repeat an
// Idempotency-Key instead of re-applying them. Backends retrying a
// status push after a dropped response get the original answer back
// without pushing the status a second time. The key is scoped to the
// method and request path, so the same key against two different
// orders is two distinct requests.
func IdempotencyMiddleware(cache redis.ResponseCacheInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		data, found, err := cache.GetResponse(ctx, cacheKey)
		if err != nil {
			// Cache trouble must not block the status push itself.
			c.Next()
			return
		}
		if found {
			var stored replayedResponse
			if err := json.Unmarshal(data, &stored); err == nil {
				c.Data(stored.StatusCode, "application/json", stored.Body)
				c.Abort()
				return
			}
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// Server errors stay retryable; everything else is replayed.
		if c.Writer.Status() >= http.StatusInternalServerError {
			return
		}
		stored, err := json.Marshal(replayedResponse{
			StatusCode: c.Writer.Status(),
			Body:       w.body.Bytes(),
		})
		if err != nil {
			return
		}
		_ = cache.SetResponse(ctx, cacheKey, stored, idempotencyTTL)
	}
}
