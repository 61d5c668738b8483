// SPDX-License-Identifier: MIT

package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/tracelight/tracelight/internal/log"
	"github.com/tracelight/tracelight/internal/metrics"
	"github.com/tracelight/tracelight/tracker"
)

// requireWriteKey rejects requests without a configured write key. The
// comparison is constant time per key so the check does not leak key
// bytes through timing.
func (s *Server) requireWriteKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(tracker.WriteKeyHeader)
		if key == "" {
			// Fallback for clients that can only set Authorization.
			if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
				key = auth[7:]
			}
		}
		if !s.validWriteKey(key) {
			logger := log.FromContext(r.Context(), "api")
			logger.Warn().
				Str(log.FieldRemoteIP, r.RemoteAddr).
				Str(log.FieldPath, r.URL.Path).
				Msg("write key rejected")
			metrics.IngestError("unauthorized")
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or unknown write key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) validWriteKey(key string) bool {
	if key == "" {
		return false
	}
	valid := false
	for _, k := range s.cfg.WriteKeys {
		if len(k) == len(key) && subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			valid = true
		}
	}
	return valid
}
