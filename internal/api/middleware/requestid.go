// SPDX-License-Identifier: MIT

// Package middleware provides HTTP middleware for the collector's API
// server.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tracelight/tracelight/internal/log"
)

// RequestIDHeader carries the request ID on responses and may supply one
// on requests from trusted infrastructure.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request a correlation ID, stores it in the
// context and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		ctx := log.ContextWithRequestID(r.Context(), id)
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
