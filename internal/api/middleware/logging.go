// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	"github.com/tracelight/tracelight/internal/log"
)

// Logging emits one structured access log line per request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		logger := log.FromContext(r.Context(), "http")
		evt := logger.Info()
		if sw.status >= 500 {
			evt = logger.Error()
		} else if sw.status >= 400 {
			evt = logger.Warn()
		}
		evt.
			Str(log.FieldMethod, r.Method).
			Str(log.FieldPath, r.URL.Path).
			Int(log.FieldStatus, sw.status).
			Str(log.FieldRemoteIP, r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
