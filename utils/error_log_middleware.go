package utils

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

type errorLogWriter struct {
	gin.ResponseWriter
	gc     *gin.Context
	logger *slog.Logger
}

func (w errorLogWriter) Write(b []byte) (int, error) {
	status := w.gc.Writer.Status()
	if status >= 400 {
		w.logger.Debug("error response",
			"status", status,
			"path", w.gc.Request.URL.Path,
			"request_id", RequestIDOf(w.gc),
			"body", string(b))
	}
	return w.ResponseWriter.Write(b)
}

// ErrorLogMiddleware logs the body of every >= 400 response. It must be
// installed after gzip, or it sees compressed bytes.
func ErrorLogMiddleware(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		c.Writer = &errorLogWriter{ResponseWriter: c.Writer, gc: c, logger: logger}
		c.Next()
	}
}
