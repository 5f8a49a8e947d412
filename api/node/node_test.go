// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalepool/kalepool/api/node"
	"github.com/kalepool/kalepool/health"
)

func getStatus(t *testing.T, tracker *health.Health, role string) *node.Status {
	router := mux.NewRouter()
	node.New(tracker, role).Mount(router, "/node")
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/node/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status node.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	return &status
}

func TestStatusHealthy(t *testing.T) {
	tracker := health.New(0)
	tracker.NewBestBlock(1234)
	tracker.ChainOK(true)
	tracker.StoreOK(true)

	status := getStatus(t, tracker, "executor")
	assert.Equal(t, "executor", status.Role)
	assert.True(t, status.Healthy)
	assert.True(t, status.ChainReachable)
	assert.True(t, status.StoreReachable)
	require.NotNil(t, status.BestBlock)
	assert.Equal(t, uint32(1234), status.BestBlock.Index)
	assert.False(t, status.BestBlock.DiscoveredAt.IsZero())
}

func TestStatusDegraded(t *testing.T) {
	tracker := health.New(0)
	tracker.NewBestBlock(1234)
	tracker.ChainOK(true)
	tracker.StoreOK(false)

	status := getStatus(t, tracker, "discoverer")
	assert.Equal(t, "discoverer", status.Role)
	assert.False(t, status.Healthy)
	assert.True(t, status.ChainReachable)
	assert.False(t, status.StoreReachable)
}

func TestStatusNoBlockSeen(t *testing.T) {
	tracker := health.New(0)
	tracker.ChainOK(true)
	tracker.StoreOK(true)

	status := getStatus(t, tracker, "executor")
	assert.False(t, status.Healthy)
	assert.Nil(t, status.BestBlock)
}
