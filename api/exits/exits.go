// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package exits exposes exit settlement: initiating a farmer's exit and
// reading back the split as it settles. Errors render as {code, message};
// internal failures carry a correlation id and never leak their cause.
package exits

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/kalepool/kalepool/api/apiutil"
	"github.com/kalepool/kalepool/log"
	"github.com/kalepool/kalepool/pooldb"
	"github.com/kalepool/kalepool/settle"
)

var logger = log.WithContext("pkg", "api")

// API-layer codes, complementing the settlement codes.
const (
	codeBadRequest   = "BAD_REQUEST"
	codeExitNotFound = "EXIT_NOT_FOUND"
)

// Settler initiates and reads exit settlements.
type Settler interface {
	InitiateExit(ctx context.Context, req *settle.ExitRequest) (*pooldb.ExitSplit, error)
	Exit(ctx context.Context, id uuid.UUID) (*pooldb.ExitSplit, error)
	AuditTrail(ctx context.Context, id uuid.UUID) ([]pooldb.ExitAudit, error)
}

type Exits struct {
	settler Settler
}

// New creates the exit endpoint group.
func New(settler Settler) *Exits {
	return &Exits{settler}
}

type initiateRequest struct {
	FarmerID       uuid.UUID `json:"farmerId"`
	ExternalWallet string    `json:"externalWallet"`
	Reason         string    `json:"reason"`
}

type initiateResponse struct {
	ExitID uuid.UUID         `json:"exitId"`
	Status pooldb.ExitStatus `json:"status"`
}

func (e *Exits) handleInitiateExit(w http.ResponseWriter, req *http.Request) error {
	var body initiateRequest
	if err := apiutil.ParseJSON(req.Body, &body); err != nil {
		return writeCoded(w, http.StatusBadRequest, codeBadRequest, "body: "+err.Error(), "")
	}
	if body.FarmerID == uuid.Nil {
		return writeCoded(w, http.StatusBadRequest, codeBadRequest, "farmerId missing", "")
	}

	split, err := e.settler.InitiateExit(req.Context(), &settle.ExitRequest{
		FarmerID:       body.FarmerID,
		ExternalWallet: body.ExternalWallet,
		Reason:         body.Reason,
		Immediate:      true,
	})
	if err != nil {
		return writeSettleError(w, err)
	}

	return apiutil.WriteJSONStatus(w, http.StatusAccepted, &initiateResponse{
		ExitID: split.ID,
		Status: split.Status,
	})
}

func (e *Exits) handleGetExit(w http.ResponseWriter, req *http.Request) error {
	id, err := uuid.Parse(mux.Vars(req)["id"])
	if err != nil {
		return writeCoded(w, http.StatusBadRequest, codeBadRequest, "id: "+err.Error(), "")
	}

	split, err := e.settler.Exit(req.Context(), id)
	if err != nil {
		if pooldb.IsNotFound(err) {
			return writeCoded(w, http.StatusNotFound, codeExitNotFound, "exit not found", "")
		}
		return writeSettleError(w, err)
	}
	return apiutil.WriteJSON(w, convertExit(split))
}

func (e *Exits) handleGetAudit(w http.ResponseWriter, req *http.Request) error {
	id, err := uuid.Parse(mux.Vars(req)["id"])
	if err != nil {
		return writeCoded(w, http.StatusBadRequest, codeBadRequest, "id: "+err.Error(), "")
	}

	trail, err := e.settler.AuditTrail(req.Context(), id)
	if err != nil {
		return writeSettleError(w, err)
	}
	if len(trail) == 0 {
		return writeCoded(w, http.StatusNotFound, codeExitNotFound, "exit not found", "")
	}
	return apiutil.WriteJSON(w, convertAudit(trail))
}

func (e *Exits) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodPost).
		Name("exits_post_exit").
		HandlerFunc(apiutil.WrapHandlerFunc(e.handleInitiateExit))
	sub.Path("/{id}").
		Methods(http.MethodGet).
		Name("exits_get_exit").
		HandlerFunc(apiutil.WrapHandlerFunc(e.handleGetExit))
	sub.Path("/{id}/audit").
		Methods(http.MethodGet).
		Name("exits_get_exit_audit").
		HandlerFunc(apiutil.WrapHandlerFunc(e.handleGetAudit))
}

type errorBody struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// writeSettleError renders a settlement failure in the {code, message}
// shape. Uncoded errors and INTERNAL_ERROR get a correlation id that is
// logged next to the cause.
func writeSettleError(w http.ResponseWriter, err error) error {
	code := settle.ErrorCode(err)
	status := statusOf(code)

	message := "internal error"
	var ce *settle.CodedError
	if errors.As(err, &ce) && code != settle.CodeInternal {
		message = ce.Message
	}

	var correlation string
	if status == http.StatusInternalServerError {
		correlation = uuid.New().String()
		logger.Error("exit request failed", "correlation", correlation, "err", err)
	}
	return writeCoded(w, status, code, message, correlation)
}

func writeCoded(w http.ResponseWriter, status int, code, message, correlation string) error {
	return apiutil.WriteJSONStatus(w, status, &errorBody{
		Code:          code,
		Message:       message,
		CorrelationID: correlation,
	})
}

func statusOf(code string) int {
	switch code {
	case settle.CodeFarmerNotFound:
		return http.StatusNotFound
	case settle.CodeNoActiveContract, settle.CodeExitInProgress:
		return http.StatusConflict
	case settle.CodeInvalidWallet, settle.CodeBelowMinimum:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
