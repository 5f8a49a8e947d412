// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package health

import (
	"sync"
	"time"
)

// BestBlock describes the most recent farm block the process has seen.
type BestBlock struct {
	Index        uint32    `json:"index"`
	DiscoveredAt time.Time `json:"discoveredAt"`
}

// Status is the externally visible health snapshot.
type Status struct {
	Healthy        bool       `json:"healthy"`
	BestBlock      *BestBlock `json:"bestBlock"`
	ChainReachable bool       `json:"chainReachable"`
	StoreReachable bool       `json:"storeReachable"`
}

const (
	defaultBlockTolerance = 15 * time.Minute
	defaultProbeTolerance = 90 * time.Second
)

// Health tracks liveness signals fed in by the engines: the age of the best
// known block, the last successful chain call and the last store ping.
type Health struct {
	lock           sync.RWMutex
	bestBlock      *BestBlock
	lastChainOK    time.Time
	lastStoreOK    time.Time
	blockTolerance time.Duration
	probeTolerance time.Duration
}

// New creates a Health tracker. A blockTolerance of zero selects the default.
func New(blockTolerance time.Duration) *Health {
	if blockTolerance == 0 {
		blockTolerance = defaultBlockTolerance
	}
	return &Health{
		blockTolerance: blockTolerance,
		probeTolerance: defaultProbeTolerance,
	}
}

// NewBestBlock records that a farm block has been observed now.
func (h *Health) NewBestBlock(index uint32) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.bestBlock = &BestBlock{Index: index, DiscoveredAt: time.Now()}
}

// ChainOK records the outcome of the latest chain probe.
func (h *Health) ChainOK(ok bool) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if ok {
		h.lastChainOK = time.Now()
	} else {
		h.lastChainOK = time.Time{}
	}
}

// StoreOK records the outcome of the latest store ping.
func (h *Health) StoreOK(ok bool) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if ok {
		h.lastStoreOK = time.Now()
	} else {
		h.lastStoreOK = time.Time{}
	}
}

// Status reports the current health snapshot. The process counts as healthy
// when both chain and store probes are fresh and the best block is not stale.
func (h *Health) Status() (*Status, error) {
	h.lock.RLock()
	defer h.lock.RUnlock()

	chainOK := !h.lastChainOK.IsZero() && time.Since(h.lastChainOK) <= h.probeTolerance
	storeOK := !h.lastStoreOK.IsZero() && time.Since(h.lastStoreOK) <= h.probeTolerance

	blockFresh := h.bestBlock != nil && time.Since(h.bestBlock.DiscoveredAt) <= h.blockTolerance

	return &Status{
		Healthy:        chainOK && storeOK && blockFresh,
		BestBlock:      h.bestBlock,
		ChainReachable: chainOK,
		StoreReachable: storeOK,
	}, nil
}
