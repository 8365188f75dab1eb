package daemon

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// requestLogger logs every request at a level picked from its status code.
// Successful polls of the status page are frequent, so they stay at debug.
func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"status":    status,
			"latencyMs": time.Since(start).Milliseconds(),
			"method":    c.Request.Method,
			"path":      path,
			"peer":      peerName(c.Request),
			"size":      max(0, c.Writer.Size()),
		})
		if query != "" {
			entry = entry.WithField("query", query)
		}

		switch {
		case len(c.Errors) > 0:
			entry.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		case path == "/api/events":
			entry.Info("event stream closed")
		default:
			entry.Debug("request served")
		}
	}
}

// peerName is the client address, or "unix" for requests over the
// local socket, which carry no remote address.
func peerName(r *http.Request) string {
	if r.RemoteAddr == "" || r.RemoteAddr == "@" {
		return "unix"
	}
	return r.RemoteAddr
}
