// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ops_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalepool/kalepool/api/ops"
	"github.com/kalepool/kalepool/pooldb"
)

type fakeStore struct {
	ops       map[uint32]*pooldb.BlockOperation
	lastLimit int
}

func (f *fakeStore) GetBlockOperation(_ context.Context, blockIndex uint32) (*pooldb.BlockOperation, error) {
	if op, ok := f.ops[blockIndex]; ok {
		return op, nil
	}
	return nil, pooldb.ErrNotFound
}

func (f *fakeStore) ListBlockOperations(_ context.Context, limit int) ([]pooldb.BlockOperation, error) {
	f.lastLimit = limit
	var rows []pooldb.BlockOperation
	for _, op := range f.ops {
		if len(rows) == limit {
			break
		}
		rows = append(rows, *op)
	}
	return rows, nil
}

func newServer(t *testing.T, store *fakeStore) *httptest.Server {
	router := mux.NewRouter()
	ops.New(store).Mount(router, "/operations")
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func blockOp(index uint32) *pooldb.BlockOperation {
	return &pooldb.BlockOperation{
		ID:               uuid.New(),
		BlockIndex:       index,
		Status:           pooldb.OpCompleted,
		Entropy:          "6ff17896294e2fb6467a3451ba52f4842bd8aa497cd5b4ede302ec2a16258ed1",
		BlockTimestamp:   time.Now().Unix() - 300,
		Plantable:        true,
		TotalFarmers:     3,
		SuccessfulPlants: 2,
		TotalStaked:      1_000_000,
		DiscoveredAt:     time.Now().UTC(),
	}
}

func TestGetOperation(t *testing.T) {
	store := &fakeStore{ops: map[uint32]*pooldb.BlockOperation{42: blockOp(42)}}
	srv := newServer(t, store)

	resp, body := httpGet(t, srv.URL+"/operations/42")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got ops.JSONBlockOperation
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, uint32(42), got.BlockIndex)
	assert.Equal(t, pooldb.OpCompleted, got.Status)
	assert.Equal(t, 3, got.TotalFarmers)
	assert.Equal(t, 2, got.SuccessfulPlants)
}

func TestGetOperationNotFound(t *testing.T) {
	srv := newServer(t, &fakeStore{ops: map[uint32]*pooldb.BlockOperation{}})

	resp, _ := httpGet(t, srv.URL+"/operations/7")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetOperationBadIndex(t *testing.T) {
	srv := newServer(t, &fakeStore{ops: map[uint32]*pooldb.BlockOperation{}})

	resp, _ := httpGet(t, srv.URL+"/operations/soon")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListOperations(t *testing.T) {
	store := &fakeStore{ops: map[uint32]*pooldb.BlockOperation{
		1: blockOp(1),
		2: blockOp(2),
		3: blockOp(3),
	}}
	srv := newServer(t, store)

	resp, body := httpGet(t, srv.URL+"/operations")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 20, store.lastLimit)

	var got []ops.JSONBlockOperation
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Len(t, got, 3)

	httpGet(t, srv.URL+"/operations?limit=2")
	assert.Equal(t, 2, store.lastLimit)

	// oversized limits clamp instead of failing
	httpGet(t, srv.URL+"/operations?limit=1000")
	assert.Equal(t, 100, store.lastLimit)
}

func TestListOperationsBadLimit(t *testing.T) {
	srv := newServer(t, &fakeStore{ops: map[uint32]*pooldb.BlockOperation{}})

	for _, limit := range []string{"0", "-3", "soon"} {
		resp, _ := httpGet(t, srv.URL+"/operations?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", limit)
	}
}
