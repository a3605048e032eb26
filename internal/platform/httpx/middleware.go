package httpx

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	ctxRequestID    = "reqid"
)

// RequestID keeps the caller's X-Request-ID or issues a new one, echoes it back
// and logs the request once it completes.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Set(ctxRequestID, id)

		start := time.Now()
		c.Next()
		log.Printf("[REQ] id=%s %s %s status=%d dur=%s",
			id, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// RequestIDFrom returns the id set by RequestID, "" outside of it.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

// Recovery turns a panic into the same error body the handlers use.
func Recovery(exposeDetail bool) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Printf("[ERROR] panic id=%s %s %s: %v", RequestIDFrom(c), c.Request.Method, c.Request.URL.Path, recovered)
		msg := "Internal Server Error"
		if exposeDetail {
			if err, ok := recovered.(error); ok {
				msg = err.Error()
			} else if s, ok := recovered.(string); ok {
				msg = s
			}
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "INTERNAL", "message": msg},
		})
	})
}
