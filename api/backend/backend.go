// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package backend exposes the pool-internal endpoints the discoverer calls.
package backend

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/kalepool/kalepool/api/apiutil"
	"github.com/kalepool/kalepool/executor"
)

// Scheduler queues planted-farmer notifications for the work phase.
type Scheduler interface {
	Schedule(n *executor.Notification) (int, error)
}

type Backend struct {
	sched Scheduler
	token string
}

// New creates the backend endpoint group. Callers must present token as a
// bearer credential.
func New(sched Scheduler, token string) *Backend {
	return &Backend{
		sched,
		token,
	}
}

type plantedFarmersResponse struct {
	Success          bool `json:"success"`
	FarmersScheduled int  `json:"farmersScheduled"`
}

func (b *Backend) handlePlantedFarmers(w http.ResponseWriter, req *http.Request) error {
	if !b.authorized(req) {
		return apiutil.Unauthorized(errors.New("invalid bearer token"))
	}

	var n executor.Notification
	if err := apiutil.ParseJSON(req.Body, &n); err != nil {
		return apiutil.BadRequest(errors.WithMessage(err, "body"))
	}

	scheduled, err := b.sched.Schedule(&n)
	if err != nil {
		return apiutil.BadRequest(err)
	}

	return apiutil.WriteJSON(w, &plantedFarmersResponse{
		Success:          true,
		FarmersScheduled: scheduled,
	})
}

func (b *Backend) authorized(req *http.Request) bool {
	const prefix = "Bearer "

	auth := req.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(auth, prefix)), []byte(b.token)) == 1
}

func (b *Backend) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/planted-farmers").
		Methods(http.MethodPost).
		Name("backend_post_planted_farmers").
		HandlerFunc(apiutil.WrapHandlerFunc(b.handlePlantedFarmers))
}
