// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package ops serves read-only views of block operations.
package ops

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/kalepool/kalepool/api/apiutil"
	"github.com/kalepool/kalepool/pooldb"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Store is the slice of the pool store this endpoint group reads.
type Store interface {
	GetBlockOperation(ctx context.Context, blockIndex uint32) (*pooldb.BlockOperation, error)
	ListBlockOperations(ctx context.Context, limit int) ([]pooldb.BlockOperation, error)
}

type Ops struct {
	store Store
}

// New creates the block operation endpoint group.
func New(store Store) *Ops {
	return &Ops{store}
}

func (o *Ops) handleList(w http.ResponseWriter, req *http.Request) error {
	limit := defaultListLimit
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return apiutil.BadRequest(errors.Errorf("limit: invalid value %q", raw))
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := o.store.ListBlockOperations(req.Context(), limit)
	if err != nil {
		return err
	}
	converted := make([]*JSONBlockOperation, 0, len(rows))
	for i := range rows {
		converted = append(converted, convertOperation(&rows[i]))
	}
	return apiutil.WriteJSON(w, converted)
}

func (o *Ops) handleGet(w http.ResponseWriter, req *http.Request) error {
	index, err := strconv.ParseUint(mux.Vars(req)["index"], 10, 32)
	if err != nil {
		return apiutil.BadRequest(errors.WithMessage(err, "index"))
	}

	op, err := o.store.GetBlockOperation(req.Context(), uint32(index))
	if err != nil {
		if pooldb.IsNotFound(err) {
			return apiutil.NotFound(errors.New("block operation not found"))
		}
		return err
	}
	return apiutil.WriteJSON(w, convertOperation(op))
}

func (o *Ops) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		Name("operations_list").
		HandlerFunc(apiutil.WrapHandlerFunc(o.handleList))
	sub.Path("/{index}").
		Methods(http.MethodGet).
		Name("operations_get_operation").
		HandlerFunc(apiutil.WrapHandlerFunc(o.handleGet))
}
