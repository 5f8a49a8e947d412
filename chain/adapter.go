// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chain

import (
	"context"

	"github.com/kalepool/kalepool/kale"
)

// HeadInfo describes the farm contract's view of the chain head.
type HeadInfo struct {
	Index     uint32       `json:"index"`
	Entropy   kale.Entropy `json:"entropy"`
	Timestamp int64        `json:"timestamp"` // unix seconds, start of the block
	Plantable bool         `json:"plantable"`
	MinStake  kale.Stroops `json:"minStake"`
	MaxStake  kale.Stroops `json:"maxStake"`
	MinZeros  uint32       `json:"minZeros"`
	MaxZeros  uint32       `json:"maxZeros"`
}

// Age returns the head's age in seconds at the given unix time, never negative.
func (h *HeadInfo) Age(now int64) uint64 {
	if now <= h.Timestamp {
		return 0
	}
	return uint64(now - h.Timestamp)
}

// Receipt is the outcome of a successfully submitted transaction.
type Receipt struct {
	TxHash string `json:"txHash"`
	Ledger uint32 `json:"ledger"`
}

// HarvestResult carries the reward claimed by a harvest transaction.
type HarvestResult struct {
	Receipt
	Reward kale.Stroops `json:"reward"`
}

// Funding reports a custodial account's balance against the funding floor.
type Funding struct {
	Balance  kale.Stroops `json:"balance"`
	IsFunded bool         `json:"isFunded"`
}

// Adapter is the wallet-facing chain interface the engines consume. All
// methods are synchronous and bounded by the per-op timeout of the
// implementation; secret parameters are strkey "S..." seeds, decoded only
// transiently for signing.
type Adapter interface {
	// Head returns the current chain head with farm metadata.
	Head(ctx context.Context) (*HeadInfo, error)

	// Plant submits a plant (stake) transaction for the given block.
	Plant(ctx context.Context, secret string, index uint32, stake kale.Stroops) (*Receipt, error)

	// Work submits a nonce found by the miner.
	Work(ctx context.Context, secret string, nonce uint64, hash string) (*Receipt, error)

	// Harvest claims the reward accrued for the given block.
	Harvest(ctx context.Context, secret string, index uint32) (*HarvestResult, error)

	// Transfer moves native asset from the secret's account to dest.
	Transfer(ctx context.Context, secret string, dest kale.Address, amount kale.Stroops) (*Receipt, error)

	// CheckFunding loads the account's balance and funding state.
	CheckFunding(ctx context.Context, account kale.Address) (*Funding, error)

	// Health probes the chain RPC for liveness.
	Health(ctx context.Context) error
}
