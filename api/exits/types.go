// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package exits

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/pooldb"
)

// ExitSnapshot is the user-visible state of an exit split. Amounts are in
// stroops.
type ExitSnapshot struct {
	ID               uuid.UUID         `json:"id"`
	FarmerID         uuid.UUID         `json:"farmerId"`
	Status           pooldb.ExitStatus `json:"status"`
	TotalRewards     kale.Stroops      `json:"totalRewards"`
	FarmerShare      kale.Stroops      `json:"farmerShare"`
	PoolerShare      kale.Stroops      `json:"poolerShare"`
	PlatformFee      kale.Stroops      `json:"platformFee"`
	ExternalWallet   string            `json:"externalWallet"`
	FarmerTxHash     *string           `json:"farmerTxHash,omitempty"`
	PoolerTxHash     *string           `json:"poolerTxHash,omitempty"`
	PlatformTxHash   *string           `json:"platformTxHash,omitempty"`
	RetryCount       int               `json:"retryCount"`
	BlocksIncluded   int               `json:"blocksIncluded"`
	HarvestsIncluded int               `json:"harvestsIncluded"`
	Reason           string            `json:"reason"`
	FailureDetails   *string           `json:"failureDetails,omitempty"`
	InitiatedAt      time.Time         `json:"initiatedAt"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
}

func convertExit(s *pooldb.ExitSplit) *ExitSnapshot {
	return &ExitSnapshot{
		ID:               s.ID,
		FarmerID:         s.FarmerID,
		Status:           s.Status,
		TotalRewards:     s.TotalRewards,
		FarmerShare:      s.FarmerShare,
		PoolerShare:      s.PoolerShare,
		PlatformFee:      s.PlatformFee,
		ExternalWallet:   s.FarmerExternalWallet,
		FarmerTxHash:     s.FarmerTxHash,
		PoolerTxHash:     s.PoolerTxHash,
		PlatformTxHash:   s.PlatformTxHash,
		RetryCount:       s.RetryCount,
		BlocksIncluded:   s.BlocksIncluded,
		HarvestsIncluded: s.HarvestsIncluded,
		Reason:           s.ExitReason,
		FailureDetails:   s.FailureDetails,
		InitiatedAt:      s.InitiatedAt,
		CompletedAt:      s.CompletedAt,
	}
}

// AuditEntry is one step of an exit's audit trail.
type AuditEntry struct {
	Seq         int64          `json:"seq"`
	Action      string         `json:"action"`
	OldStatus   *string        `json:"oldStatus,omitempty"`
	NewStatus   *string        `json:"newStatus,omitempty"`
	Details     types.JSONText `json:"details,omitempty"`
	PerformedBy string         `json:"performedBy"`
	PerformedAt time.Time      `json:"performedAt"`
}

func convertAudit(trail []pooldb.ExitAudit) []AuditEntry {
	entries := make([]AuditEntry, 0, len(trail))
	for i := range trail {
		a := &trail[i]
		entries = append(entries, AuditEntry{
			Seq:         a.Seq,
			Action:      a.Action,
			OldStatus:   a.OldStatus,
			NewStatus:   a.NewStatus,
			Details:     a.Details,
			PerformedBy: a.PerformedBy,
			PerformedAt: a.PerformedAt,
		})
	}
	return entries
}
