// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package middleware

import (
	"bytes"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kalepool/kalepool/log"
)

// maxLoggedBody caps the request body captured per log line. Planted-set
// notifications grow with the farmer count and carry sealed secrets, so
// whole bodies never belong in the log.
const maxLoggedBody = 2048

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLoggerMiddleware returns a middleware logging every request while
// enabled. When slowThreshold is non-zero, requests slower than it are
// logged even while disabled.
func RequestLoggerMiddleware(logger log.Logger, enabled *atomic.Bool, slowThreshold time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled.Load() && slowThreshold == 0 {
				next.ServeHTTP(w, r)
				return
			}

			// The body can only be read once; replay it for the handler.
			var body []byte
			if r.Body != nil {
				var err error
				if body, err = io.ReadAll(r.Body); err != nil {
					logger.Warn("unexpected body read error", "err", err)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			if enabled.Load() || (slowThreshold > 0 && duration > slowThreshold) {
				logger.Info("api request",
					"method", r.Method,
					"uri", r.URL.String(),
					"status", rec.status,
					"durationMs", duration.Milliseconds(),
					"body", truncated(body),
				)
			}
		})
	}
}

func truncated(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "…(truncated)"
	}
	return string(body)
}
