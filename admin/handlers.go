// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package admin

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/kalepool/kalepool/api/apiutil"
	"github.com/kalepool/kalepool/log"
)

type logLevelRequest struct {
	Level string `json:"level"`
}

type logLevelResponse struct {
	CurrentLevel string `json:"currentLevel"`
}

type requestLogsBody struct {
	Enabled *bool `json:"enabled"`
}

func (a *admin) handleGetLogLevel(w http.ResponseWriter, _ *http.Request) error {
	return apiutil.WriteJSON(w, logLevelResponse{
		CurrentLevel: a.logLevel.Level().String(),
	})
}

func (a *admin) handleSetLogLevel(w http.ResponseWriter, req *http.Request) error {
	var body logLevelRequest
	if err := apiutil.ParseJSON(req.Body, &body); err != nil {
		return apiutil.BadRequest(errors.WithMessage(err, "body"))
	}

	switch body.Level {
	case "trace":
		a.logLevel.Set(log.LevelTrace)
	case "debug":
		a.logLevel.Set(log.LevelDebug)
	case "info":
		a.logLevel.Set(log.LevelInfo)
	case "warn":
		a.logLevel.Set(log.LevelWarn)
	case "error":
		a.logLevel.Set(log.LevelError)
	case "crit":
		a.logLevel.Set(log.LevelCrit)
	default:
		return apiutil.BadRequest(errors.Errorf("invalid verbosity level: %s", body.Level))
	}

	logger.Warn("log level changed", "level", log.LevelString(a.logLevel.Level()))

	return apiutil.WriteJSON(w, logLevelResponse{
		CurrentLevel: a.logLevel.Level().String(),
	})
}

func (a *admin) handleGetRequestLogs(w http.ResponseWriter, _ *http.Request) error {
	enabled := a.logRequests.Load()
	return apiutil.WriteJSON(w, requestLogsBody{Enabled: &enabled})
}

func (a *admin) handleSetRequestLogs(w http.ResponseWriter, req *http.Request) error {
	var body requestLogsBody
	if err := apiutil.ParseJSON(req.Body, &body); err != nil {
		return apiutil.BadRequest(errors.WithMessage(err, "body"))
	}
	if body.Enabled == nil {
		return apiutil.BadRequest(errors.New("enabled: missing"))
	}

	a.logRequests.Store(*body.Enabled)
	logger.Warn("request logging changed", "enabled", *body.Enabled)

	return apiutil.WriteJSON(w, requestLogsBody{Enabled: body.Enabled})
}

// handleHealth reports 503 when the process is degraded so that container
// orchestrators can restart it off this endpoint alone.
func (a *admin) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	status, err := a.healthTracker.Status()
	if err != nil {
		return err
	}

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	return apiutil.WriteJSONStatus(w, code, status)
}
