// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package api assembles the pool coordination HTTP API served by the
// executor process.
package api

import (
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/kalepool/kalepool/api/backend"
	"github.com/kalepool/kalepool/api/exits"
	"github.com/kalepool/kalepool/api/middleware"
	"github.com/kalepool/kalepool/api/node"
	"github.com/kalepool/kalepool/api/ops"
	"github.com/kalepool/kalepool/health"
	"github.com/kalepool/kalepool/log"
)

var logger = log.WithContext("pkg", "api")

type Options struct {
	PoolerToken    string
	AllowedOrigins string
	Role           string
	EnableMetrics  bool
	// LogRequests gates the request logger middleware. The admin server
	// shares the same toggle so operators can flip it at runtime. Nil
	// disables request logging entirely.
	LogRequests *atomic.Bool
}

// New return api router
func New(
	sched backend.Scheduler,
	settler exits.Settler,
	store ops.Store,
	healthTracker *health.Health,
	opts Options,
) http.HandlerFunc {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}
	role := opts.Role
	if role == "" {
		role = "executor"
	}

	router := mux.NewRouter()

	backend.New(sched, opts.PoolerToken).
		Mount(router, "/backend")
	exits.New(settler).
		Mount(router, "/exits")
	ops.New(store).
		Mount(router, "/operations")
	node.New(healthTracker, role).
		Mount(router, "/node")

	if opts.EnableMetrics {
		router.Use(metricsMiddleware)
	}

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type", "authorization"}),
	)(handler)

	if opts.LogRequests != nil {
		handler = middleware.RequestLoggerMiddleware(logger, opts.LogRequests, 0)(handler)
	}

	return handler.ServeHTTP
}
