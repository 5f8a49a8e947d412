// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package pooldb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const exitColumns = `id, farmer_id, pooler_id, contract_id,
	total_rewards, farmer_share, pooler_share, platform_fee,
	reward_split_bps, platform_fee_bps,
	farmer_external_wallet, farmer_custodial_wallet, pooler_wallet, platform_wallet,
	farmer_tx_hash, pooler_tx_hash, platform_tx_hash,
	status, retry_count, blocks_included, harvests_included,
	exit_reason, failure_details, claimed_at, initiated_at, completed_at`

// auditAction values written to the exit audit trail.
const (
	AuditInitiated  = "initiated"
	AuditFarmerPaid = "farmer_paid"
	AuditCompleted  = "completed"
	AuditFailed     = "failed"
)

// RetryAction names the audit entry for a retried payout leg.
func RetryAction(leg ExitLeg) string {
	return string(leg) + "_retried"
}

func appendAudit(ctx context.Context, tx *sqlx.Tx, exitID uuid.UUID, action string, oldStatus, newStatus *ExitStatus, details map[string]any, performedBy string) error {
	buf := []byte(`{}`)
	if details != nil {
		var err error
		if buf, err = json.Marshal(details); err != nil {
			return err
		}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO exit_audit_log (exit_split_id, action, old_status, new_status, details, performed_by)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		exitID, action, oldStatus, newStatus, buf, performedBy)
	return err
}

// HasProcessingExit reports whether the farmer already has an in-flight
// settlement.
func (s *Store) HasProcessingExit(ctx context.Context, farmerID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM exit_splits WHERE farmer_id = $1 AND status = 'processing')`,
		farmerID)
	return exists, err
}

// CreateExitSplit atomically persists a computed settlement: the immutable
// split record, the consumed harvests, the contract and farmer lifecycle
// moves and the opening audit entry. A concurrent settlement for the same
// farmer, or a harvest already consumed elsewhere, rolls everything back
// with ErrConflict.
func (s *Store) CreateExitSplit(ctx context.Context, split *ExitSplit, harvestIDs []uuid.UUID) error {
	if split.ID == uuid.Nil {
		split.ID = uuid.New()
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &split.InitiatedAt,
			`INSERT INTO exit_splits
				(id, farmer_id, pooler_id, contract_id,
				 total_rewards, farmer_share, pooler_share, platform_fee,
				 reward_split_bps, platform_fee_bps,
				 farmer_external_wallet, farmer_custodial_wallet, pooler_wallet, platform_wallet,
				 status, blocks_included, harvests_included, exit_reason)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
				 'processing', $15, $16, $17)
			 RETURNING initiated_at`,
			split.ID, split.FarmerID, split.PoolerID, split.ContractID,
			split.TotalRewards, split.FarmerShare, split.PoolerShare, split.PlatformFee,
			split.RewardSplitBps, split.PlatformFeeBps,
			split.FarmerExternalWallet, split.FarmerCustodialWallet, split.PoolerWallet, split.PlatformWallet,
			split.BlocksIncluded, split.HarvestsIncluded, split.ExitReason,
		); err != nil {
			return err
		}
		split.Status = ExitProcessing

		res, err := tx.ExecContext(ctx,
			`UPDATE harvests SET included_in_exit = TRUE, exit_split_id = $1
			 WHERE id = ANY($2) AND NOT included_in_exit`,
			split.ID, pq.Array(harvestIDs))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != int64(len(harvestIDs)) {
			return ErrConflict
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE pool_contracts SET status = 'exiting', exit_requested_at = now()
			 WHERE id = $1 AND status = 'active'`,
			split.ContractID)
		if err != nil {
			return err
		}
		if n, err = res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return ErrConflict
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE farmers SET status = 'exiting'
			 WHERE id = $1 AND status = 'active_in_pool'`,
			split.FarmerID)
		if err != nil {
			return err
		}
		if n, err = res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return ErrConflict
		}

		newStatus := ExitProcessing
		return appendAudit(ctx, tx, split.ID, AuditInitiated, nil, &newStatus, map[string]any{
			"total_rewards":     split.TotalRewards,
			"farmer_share":      split.FarmerShare,
			"pooler_share":      split.PoolerShare,
			"platform_fee":      split.PlatformFee,
			"harvests_included": split.HarvestsIncluded,
			"reason":            split.ExitReason,
		}, "settlement")
	})
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// RecordFailedSplit persists a settlement that was rejected before it could
// start, for the audit trail. No harvests are consumed and no lifecycle
// states move; the farmer may initiate again.
func (s *Store) RecordFailedSplit(ctx context.Context, split *ExitSplit, details string) error {
	if split.ID == uuid.Nil {
		split.ID = uuid.New()
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &split.InitiatedAt,
			`INSERT INTO exit_splits
				(id, farmer_id, pooler_id, contract_id,
				 total_rewards, farmer_share, pooler_share, platform_fee,
				 reward_split_bps, platform_fee_bps,
				 farmer_external_wallet, farmer_custodial_wallet, pooler_wallet, platform_wallet,
				 status, blocks_included, harvests_included, exit_reason, failure_details)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
				 'failed', $15, $16, $17, $18)
			 RETURNING initiated_at`,
			split.ID, split.FarmerID, split.PoolerID, split.ContractID,
			split.TotalRewards, split.FarmerShare, split.PoolerShare, split.PlatformFee,
			split.RewardSplitBps, split.PlatformFeeBps,
			split.FarmerExternalWallet, split.FarmerCustodialWallet, split.PoolerWallet, split.PlatformWallet,
			split.BlocksIncluded, split.HarvestsIncluded, split.ExitReason, details,
		); err != nil {
			return err
		}
		split.Status = ExitFailed
		split.FailureDetails = &details

		newStatus := ExitFailed
		return appendAudit(ctx, tx, split.ID, AuditFailed, nil, &newStatus, map[string]any{
			"details": details,
		}, "settlement")
	})
}

// GetExitSplit returns the settlement with the given id.
func (s *Store) GetExitSplit(ctx context.Context, id uuid.UUID) (*ExitSplit, error) {
	var e ExitSplit
	err := s.db.GetContext(ctx, &e,
		`SELECT `+exitColumns+` FROM exit_splits WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &e, nil
}

// ClaimExits leases up to limit processing settlements to the caller,
// skipping rows already claimed within the lease window and rows locked by
// a concurrent claimer. Crashed claimers lose their lease after it expires.
func (s *Store) ClaimExits(ctx context.Context, limit int, lease time.Duration) ([]ExitSplit, error) {
	var rows []ExitSplit
	err := s.db.SelectContext(ctx, &rows,
		`UPDATE exit_splits SET claimed_at = now()
		 WHERE id IN (
			SELECT id FROM exit_splits
			WHERE status = 'processing'
			  AND (claimed_at IS NULL OR claimed_at < now() - make_interval(secs => $2))
			ORDER BY initiated_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+exitColumns,
		limit, lease.Seconds())
	return rows, err
}

// MarkExitLegPaid records the transaction hash of a delivered payout leg.
// A leg is paid at most once; a replay of an already delivered leg changes
// nothing and reports false. When auditAction is non-empty and the leg was
// newly recorded, an audit entry is appended in the same transaction.
func (s *Store) MarkExitLegPaid(ctx context.Context, id uuid.UUID, leg ExitLeg, txHash string, auditAction string) (bool, error) {
	var col string
	switch leg {
	case LegFarmer:
		col = "farmer_tx_hash"
	case LegPooler:
		col = "pooler_tx_hash"
	case LegPlatform:
		col = "platform_tx_hash"
	default:
		return false, fmt.Errorf("unknown payout leg %q", leg)
	}

	var recorded bool
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE exit_splits SET %[1]s = $2 WHERE id = $1 AND %[1]s IS NULL`, col),
			id, txHash)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		recorded = n == 1
		if !recorded || auditAction == "" {
			return nil
		}
		return appendAudit(ctx, tx, id, auditAction, nil, nil, map[string]any{
			"leg":     string(leg),
			"tx_hash": txHash,
		}, "settlement")
	})
	return recorded, err
}

// RecordExitRetry bumps the retry counter and appends a retry audit entry
// naming the failed leg.
func (s *Store) RecordExitRetry(ctx context.Context, id uuid.UUID, leg ExitLeg, attempt int, cause string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE exit_splits SET retry_count = retry_count + 1 WHERE id = $1`, id); err != nil {
			return err
		}
		return appendAudit(ctx, tx, id, RetryAction(leg), nil, nil, map[string]any{
			"leg":     string(leg),
			"attempt": attempt,
			"error":   cause,
		}, "settlement")
	})
}

// CompleteExit finishes a settlement whose three legs are all delivered:
// the split becomes completed, the contract completed, the farmer exited.
// Completing an already finished settlement changes nothing.
func (s *Store) CompleteExit(ctx context.Context, id uuid.UUID) (bool, error) {
	var advanced bool
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var e ExitSplit
		if err := tx.GetContext(ctx, &e,
			`SELECT `+exitColumns+` FROM exit_splits WHERE id = $1 FOR UPDATE`, id); err != nil {
			return wrapNotFound(err)
		}
		if e.Status != ExitProcessing {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE exit_splits SET status = 'completed', completed_at = now()
			 WHERE id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE pool_contracts SET status = 'completed'
			 WHERE id = $1 AND status = 'exiting'`, e.ContractID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE farmers SET status = 'exited', balance_recheck = TRUE
			 WHERE id = $1 AND status = 'exiting'`, e.FarmerID); err != nil {
			return err
		}
		advanced = true
		oldStatus, newStatus := ExitProcessing, ExitCompleted
		return appendAudit(ctx, tx, id, AuditCompleted, &oldStatus, &newStatus, map[string]any{
			"farmer_tx_hash":   deref(e.FarmerTxHash),
			"pooler_tx_hash":   deref(e.PoolerTxHash),
			"platform_tx_hash": deref(e.PlatformTxHash),
		}, "settlement")
	})
	return advanced, err
}

// FailExit terminates a settlement that exhausted its retries. The contract
// and farmer stay in their exiting states for operator review.
func (s *Store) FailExit(ctx context.Context, id uuid.UUID, details string) (bool, error) {
	var advanced bool
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE exit_splits SET status = 'failed', failure_details = $2
			 WHERE id = $1 AND status = 'processing'`,
			id, details)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return nil
		}
		advanced = true
		oldStatus, newStatus := ExitProcessing, ExitFailed
		return appendAudit(ctx, tx, id, AuditFailed, &oldStatus, &newStatus, map[string]any{
			"details": details,
		}, "settlement")
	})
	return advanced, err
}

// ExitAuditTrail returns the audit entries of a settlement in append order.
func (s *Store) ExitAuditTrail(ctx context.Context, exitID uuid.UUID) ([]ExitAudit, error) {
	var rows []ExitAudit
	err := s.db.SelectContext(ctx, &rows,
		`SELECT seq, exit_split_id, action, old_status, new_status, details, performed_by, performed_at
		 FROM exit_audit_log
		 WHERE exit_split_id = $1
		 ORDER BY seq`,
		exitID)
	return rows, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
