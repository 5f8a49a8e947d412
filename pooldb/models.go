// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package pooldb

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/kalepool/kalepool/kale"
)

// FarmerStatus is the lifecycle state of a custodial farmer wallet.
type FarmerStatus string

const (
	FarmerWalletCreated FarmerStatus = "wallet_created"
	FarmerFunded        FarmerStatus = "funded"
	FarmerActiveInPool  FarmerStatus = "active_in_pool"
	FarmerExiting       FarmerStatus = "exiting"
	FarmerExited        FarmerStatus = "exited"
)

// OpStatus is the lifecycle state of a block operation. Transitions only
// move forward; every update guards on the expected predecessor state.
type OpStatus string

const (
	OpDiscovered        OpStatus = "discovered"
	OpPlantingCompleted OpStatus = "planting_completed"
	OpWorkCompleted     OpStatus = "work_completed"
	OpCompleted         OpStatus = "completed"
	OpFailed            OpStatus = "failed"
)

// RecordStatus is the terminal outcome of a per-farmer plant, work or
// harvest attempt.
type RecordStatus string

const (
	RecordSuccess RecordStatus = "success"
	RecordFailed  RecordStatus = "failed"
)

// ContractStatus is the lifecycle state of a pool contract.
type ContractStatus string

const (
	ContractPending   ContractStatus = "pending"
	ContractActive    ContractStatus = "active"
	ContractExiting   ContractStatus = "exiting"
	ContractCompleted ContractStatus = "completed"
)

// ExitStatus is the lifecycle state of an exit settlement.
type ExitStatus string

const (
	ExitProcessing ExitStatus = "processing"
	ExitCompleted  ExitStatus = "completed"
	ExitFailed     ExitStatus = "failed"
	ExitCancelled  ExitStatus = "cancelled"
)

// ExitLeg names one of the three payout transfers of a settlement.
type ExitLeg string

const (
	LegFarmer   ExitLeg = "farmer"
	LegPooler   ExitLeg = "pooler"
	LegPlatform ExitLeg = "platform"
)

// User is a registered account owner.
type User struct {
	ID             uuid.UUID  `db:"id"`
	Email          string     `db:"email"`
	ExternalWallet string     `db:"external_wallet"`
	Status         string     `db:"status"`
	CreatedAt      time.Time  `db:"created_at"`
	VerifiedAt     *time.Time `db:"verified_at"`
}

// Farmer is a custodial wallet farming on behalf of a user. The secret key
// is stored sealed (see package wallet) and never leaves the database in
// clear form.
type Farmer struct {
	ID                    uuid.UUID    `db:"id"`
	UserID                uuid.UUID    `db:"user_id"`
	CustodialPublicKey    string       `db:"custodial_public_key"`
	CustodialSecretSealed string       `db:"custodial_secret_sealed"`
	PayoutWalletAddress   string       `db:"payout_wallet_address"`
	Status                FarmerStatus `db:"status"`
	CurrentBalance        kale.Stroops `db:"current_balance"`
	IsFunded              bool         `db:"is_funded"`
	BalanceRecheck        bool         `db:"balance_recheck"`
	FundedAt              *time.Time   `db:"funded_at"`
	JoinedPoolAt          *time.Time   `db:"joined_pool_at"`
}

// Pooler is a mining pool operator coordinating many farmers.
type Pooler struct {
	ID             uuid.UUID `db:"id"`
	Name           string    `db:"name"`
	WalletAddress  string    `db:"wallet_address"`
	RewardBps      int       `db:"reward_bps"`
	MaxFarmers     int       `db:"max_farmers"`
	CurrentFarmers int       `db:"current_farmers"`
	Status         string    `db:"status"`
	APIEndpoint    string    `db:"api_endpoint"`
	APIKey         string    `db:"api_key"`
}

// PoolContract binds a farmer to a pooler with the agreed staking and
// reward terms. All rates are basis points (1/100th of a percent).
type PoolContract struct {
	ID              uuid.UUID      `db:"id"`
	FarmerID        uuid.UUID      `db:"farmer_id"`
	PoolerID        uuid.UUID      `db:"pooler_id"`
	StakeBps        int            `db:"stake_bps"`
	HarvestInterval uint32         `db:"harvest_interval"`
	RewardSplitBps  int            `db:"reward_split_bps"`
	PlatformFeeBps  int            `db:"platform_fee_bps"`
	Status          ContractStatus `db:"status"`
	ContractTerms   types.JSONText `db:"contract_terms"`
	CreatedAt       time.Time      `db:"created_at"`
	ConfirmedAt     *time.Time     `db:"confirmed_at"`
	ExitRequestedAt *time.Time     `db:"exit_requested_at"`
}

// BlockOperation tracks the pool-wide lifecycle of one chain block.
type BlockOperation struct {
	ID                 uuid.UUID    `db:"id"`
	BlockIndex         uint32       `db:"block_index"`
	PoolerID           uuid.UUID    `db:"pooler_id"`
	Status             OpStatus     `db:"status"`
	Entropy            string       `db:"entropy"`
	BlockTimestamp     int64        `db:"block_timestamp"`
	BlockAgeS          int64        `db:"block_age_s"`
	Plantable          bool         `db:"plantable"`
	MinZeros           uint32       `db:"min_zeros"`
	MaxZeros           uint32       `db:"max_zeros"`
	MinStake           kale.Stroops `db:"min_stake"`
	MaxStake           kale.Stroops `db:"max_stake"`
	TotalFarmers       int          `db:"total_farmers"`
	SuccessfulPlants   int          `db:"successful_plants"`
	SuccessfulWorks    int          `db:"successful_works"`
	SuccessfulHarvests int          `db:"successful_harvests"`
	TotalStaked        kale.Stroops `db:"total_staked"`
	TotalRewards       kale.Stroops `db:"total_rewards"`
	ErrorMessage       *string      `db:"error_message"`
	DiscoveredAt       time.Time    `db:"discovered_at"`
	PlantRequestedAt   *time.Time   `db:"plant_requested_at"`
	PlantCompletedAt   *time.Time   `db:"plant_completed_at"`
	WorkCompletedAt    *time.Time   `db:"work_completed_at"`
}

// Planting is the per-farmer outcome of a plant attempt for one block.
type Planting struct {
	ID              uuid.UUID    `db:"id"`
	BlockIndex      uint32       `db:"block_index"`
	FarmerID        uuid.UUID    `db:"farmer_id"`
	PoolerID        uuid.UUID    `db:"pooler_id"`
	CustodialWallet string       `db:"custodial_wallet"`
	StakeAmount     kale.Stroops `db:"stake_amount"`
	TransactionHash *string      `db:"transaction_hash"`
	Status          RecordStatus `db:"status"`
	ErrorMessage    *string      `db:"error_message"`
	PlantedAt       time.Time    `db:"planted_at"`
}

// Work is the per-farmer outcome of a proof-of-work attempt for one block.
type Work struct {
	ID                   uuid.UUID    `db:"id"`
	BlockIndex           uint32       `db:"block_index"`
	FarmerID             uuid.UUID    `db:"farmer_id"`
	Nonce                int64        `db:"nonce"`
	Hash                 string       `db:"hash"`
	Zeros                uint32       `db:"zeros"`
	Gap                  int          `db:"gap"`
	TransactionHash      *string      `db:"transaction_hash"`
	Status               RecordStatus `db:"status"`
	CompensationRequired bool         `db:"compensation_required"`
	ErrorMessage         *string      `db:"error_message"`
	WorkedAt             time.Time    `db:"worked_at"`
}

// Harvest is the per-farmer outcome of a reward claim for one block.
type Harvest struct {
	ID              uuid.UUID    `db:"id"`
	BlockIndex      uint32       `db:"block_index"`
	FarmerID        uuid.UUID    `db:"farmer_id"`
	RewardAmount    kale.Stroops `db:"reward_amount"`
	TransactionHash *string      `db:"transaction_hash"`
	Status          RecordStatus `db:"status"`
	IncludedInExit  bool         `db:"included_in_exit"`
	ExitSplitID     *uuid.UUID   `db:"exit_split_id"`
	ErrorMessage    *string      `db:"error_message"`
	HarvestedAt     time.Time    `db:"harvested_at"`
}

// ExitSplit is the settlement record of a farmer leaving the pool: the
// immutable three-way division of accumulated rewards and the delivery
// state of each payout leg.
type ExitSplit struct {
	ID                    uuid.UUID    `db:"id"`
	FarmerID              uuid.UUID    `db:"farmer_id"`
	PoolerID              uuid.UUID    `db:"pooler_id"`
	ContractID            uuid.UUID    `db:"contract_id"`
	TotalRewards          kale.Stroops `db:"total_rewards"`
	FarmerShare           kale.Stroops `db:"farmer_share"`
	PoolerShare           kale.Stroops `db:"pooler_share"`
	PlatformFee           kale.Stroops `db:"platform_fee"`
	RewardSplitBps        int          `db:"reward_split_bps"`
	PlatformFeeBps        int          `db:"platform_fee_bps"`
	FarmerExternalWallet  string       `db:"farmer_external_wallet"`
	FarmerCustodialWallet string       `db:"farmer_custodial_wallet"`
	PoolerWallet          string       `db:"pooler_wallet"`
	PlatformWallet        string       `db:"platform_wallet"`
	FarmerTxHash          *string      `db:"farmer_tx_hash"`
	PoolerTxHash          *string      `db:"pooler_tx_hash"`
	PlatformTxHash        *string      `db:"platform_tx_hash"`
	Status                ExitStatus   `db:"status"`
	RetryCount            int          `db:"retry_count"`
	BlocksIncluded        int          `db:"blocks_included"`
	HarvestsIncluded      int          `db:"harvests_included"`
	ExitReason            string       `db:"exit_reason"`
	FailureDetails        *string      `db:"failure_details"`
	ClaimedAt             *time.Time   `db:"claimed_at"`
	InitiatedAt           time.Time    `db:"initiated_at"`
	CompletedAt           *time.Time   `db:"completed_at"`
}

// LegHash returns the recorded transaction hash of the given payout leg,
// or nil when that leg has not been delivered yet.
func (e *ExitSplit) LegHash(leg ExitLeg) *string {
	switch leg {
	case LegFarmer:
		return e.FarmerTxHash
	case LegPooler:
		return e.PoolerTxHash
	case LegPlatform:
		return e.PlatformTxHash
	}
	return nil
}

// ExitAudit is one append-only audit trail entry of an exit settlement.
type ExitAudit struct {
	Seq         int64          `db:"seq"`
	ExitSplitID uuid.UUID      `db:"exit_split_id"`
	Action      string         `db:"action"`
	OldStatus   *string        `db:"old_status"`
	NewStatus   *string        `db:"new_status"`
	Details     types.JSONText `db:"details"`
	PerformedBy string         `db:"performed_by"`
	PerformedAt time.Time      `db:"performed_at"`
}

// EligibleFarmer is a farmer cleared for planting: funded, active in the
// pool and bound by an active contract.
type EligibleFarmer struct {
	ID                    uuid.UUID    `db:"id"`
	CustodialPublicKey    string       `db:"custodial_public_key"`
	CustodialSecretSealed string       `db:"custodial_secret_sealed"`
	CurrentBalance        kale.Stroops `db:"current_balance"`
	ContractID            uuid.UUID    `db:"contract_id"`
	PoolerID              uuid.UUID    `db:"pooler_id"`
	StakeBps              int          `db:"stake_bps"`
	HarvestInterval       uint32       `db:"harvest_interval"`
}

// WorkCandidate is a farmer that planted successfully on a block and now
// awaits proof-of-work. The same rows form the planted set the discoverer
// notifies the executor with.
type WorkCandidate struct {
	FarmerID              uuid.UUID    `db:"farmer_id"`
	CustodialWallet       string       `db:"custodial_wallet"`
	CustodialPublicKey    string       `db:"custodial_public_key"`
	CustodialSecretSealed string       `db:"custodial_secret_sealed"`
	StakeAmount           kale.Stroops `db:"stake_amount"`
	PlantedAt             time.Time    `db:"planted_at"`
}

// HarvestCandidate is a worked block whose reward is due for claiming.
type HarvestCandidate struct {
	FarmerID              uuid.UUID `db:"farmer_id"`
	BlockIndex            uint32    `db:"block_index"`
	CustodialWallet       string    `db:"custodial_wallet"`
	CustodialSecretSealed string    `db:"custodial_secret_sealed"`
}

// ContractView is a live contract joined with the pooler payout wallet,
// as needed by exit settlement.
type ContractView struct {
	ID              uuid.UUID      `db:"id"`
	FarmerID        uuid.UUID      `db:"farmer_id"`
	PoolerID        uuid.UUID      `db:"pooler_id"`
	StakeBps        int            `db:"stake_bps"`
	HarvestInterval uint32         `db:"harvest_interval"`
	RewardSplitBps  int            `db:"reward_split_bps"`
	PlatformFeeBps  int            `db:"platform_fee_bps"`
	Status          ContractStatus `db:"status"`
	PoolerWallet    string         `db:"pooler_wallet"`
}
