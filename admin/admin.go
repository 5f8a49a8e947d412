// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package admin serves the operator endpoints: runtime log level, the
// request logging toggle and a liveness probe. It is meant to listen on a
// loopback or otherwise private address, separate from the public API.
package admin

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/kalepool/kalepool/api/apiutil"
	"github.com/kalepool/kalepool/health"
	"github.com/kalepool/kalepool/log"
)

var logger = log.WithContext("pkg", "admin")

type admin struct {
	logLevel      *slog.LevelVar
	healthTracker *health.Health
	logRequests   *atomic.Bool
}

// HTTPHandler assembles the admin endpoints under /admin.
func HTTPHandler(logLevel *slog.LevelVar, healthTracker *health.Health, logRequests *atomic.Bool) http.Handler {
	a := &admin{
		logLevel:      logLevel,
		healthTracker: healthTracker,
		logRequests:   logRequests,
	}

	router := mux.NewRouter()
	sub := router.PathPrefix("/admin").Subrouter()

	sub.Path("/loglevel").
		Methods(http.MethodGet).
		Name("admin_get_loglevel").
		HandlerFunc(apiutil.WrapHandlerFunc(a.handleGetLogLevel))
	sub.Path("/loglevel").
		Methods(http.MethodPost).
		Name("admin_post_loglevel").
		HandlerFunc(apiutil.WrapHandlerFunc(a.handleSetLogLevel))

	sub.Path("/apilogs").
		Methods(http.MethodGet).
		Name("admin_get_apilogs").
		HandlerFunc(apiutil.WrapHandlerFunc(a.handleGetRequestLogs))
	sub.Path("/apilogs").
		Methods(http.MethodPost).
		Name("admin_post_apilogs").
		HandlerFunc(apiutil.WrapHandlerFunc(a.handleSetRequestLogs))

	sub.Path("/health").
		Methods(http.MethodGet).
		Name("admin_get_health").
		HandlerFunc(apiutil.WrapHandlerFunc(a.handleHealth))

	return handlers.CompressHandler(router)
}
