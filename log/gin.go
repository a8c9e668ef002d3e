package log

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger is a gin middleware that writes one zerolog line per
// request, leveled by response status.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = Error()
		case status >= 400:
			event = Warn()
		default:
			event = Info()
		}

		url := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			url += "?" + q
		}

		event.
			Str("method", c.Request.Method).
			Str("url", url).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Str("client", c.ClientIP())

		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			event.Str("error", errs.String())
		}

		event.Msg("http request")
	}
}
