// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kale

// Constants of the farming cycle.
const (
	BlockInterval uint64 = 300 // (unit: second) approximate spacing of farm blocks.

	PlantAge    uint64 = 30 // (unit: second) head age at which planting opens.
	PlantCutoff uint64 = 90 // (unit: second) head age beyond which planting is skipped.

	WorkDelay    uint64 = 240 // (unit: second) wait after block start before submitting work.
	WorkDeadline uint64 = 60  // (unit: second) window after WorkDelay to complete all work.

	MinerTimeout uint64 = 120 // (unit: second) hard cap on a single nonce-search run.

	DrainSeconds uint64 = 30 // (unit: second) shutdown budget for in-flight bursts.

	DefaultTargetZeros uint32 = 5 // leading hex zeros requested from the nonce search.

	MinHarvestInterval uint32 = 1
	MaxHarvestInterval uint32 = 20
)

// Concurrency ceilings for on-chain bursts.
const (
	PlantConcurrency   = 10
	HarvestConcurrency = 5
	SettleConcurrency  = 4
)

// MinFund is the custodial balance at which a wallet counts as funded.
const MinFund Stroops = 1 * StroopsPerKale

// DefaultBaseStake is the reference stake a full-rate (10000 bps) contract
// plants per block, before clamping to the farmer's balance.
const DefaultBaseStake Stroops = 100 * StroopsPerKale

// Settlement parameters.
const (
	// RateScale is the fixed-point scale for fee and split rates.
	// A rate of 0.05 is stored as 500.
	RateScale = 10_000

	DefaultPlatformFeeBps = 500  // 5% of gross rewards.
	DefaultFarmerSplitBps = 7000 // 70% of net rewards.

	// MinExit is the smallest total payout an exit split may settle.
	MinExit Stroops = 1_000_000 // 0.1 KALE

	MaxPayoutRetries = 3
)
