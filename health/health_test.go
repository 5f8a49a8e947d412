// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusStartsUnhealthy(t *testing.T) {
	h := New(0)

	status, err := h.Status()
	require.NoError(t, err)
	assert.False(t, status.Healthy)
	assert.False(t, status.ChainReachable)
	assert.False(t, status.StoreReachable)
	assert.Nil(t, status.BestBlock)
}

func TestStatusHealthyWhenAllFresh(t *testing.T) {
	h := New(0)
	h.NewBestBlock(81935)
	h.ChainOK(true)
	h.StoreOK(true)

	status, err := h.Status()
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	require.NotNil(t, status.BestBlock)
	assert.Equal(t, uint32(81935), status.BestBlock.Index)
}

func TestStatusUnhealthyOnFailedProbe(t *testing.T) {
	h := New(0)
	h.NewBestBlock(81935)
	h.ChainOK(true)
	h.StoreOK(true)

	h.ChainOK(false)

	status, err := h.Status()
	require.NoError(t, err)
	assert.False(t, status.Healthy)
	assert.False(t, status.ChainReachable)
	assert.True(t, status.StoreReachable)
}
