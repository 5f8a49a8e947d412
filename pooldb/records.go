// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package pooldb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// RecordPlanting stores the per-farmer outcome of a plant attempt. A replay
// may overwrite a failed attempt but never a successful one. Any attempt
// flags the farmer for a balance recheck, since even failed submissions can
// consume fees.
func (s *Store) RecordPlanting(ctx context.Context, p *Planting) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO plantings
				(id, block_index, farmer_id, pooler_id, custodial_wallet,
				 stake_amount, transaction_hash, status, error_message)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (block_index, farmer_id) DO UPDATE SET
				stake_amount     = EXCLUDED.stake_amount,
				transaction_hash = EXCLUDED.transaction_hash,
				status           = EXCLUDED.status,
				error_message    = EXCLUDED.error_message,
				planted_at       = now()
			WHERE plantings.status <> 'success'`,
			p.ID, p.BlockIndex, p.FarmerID, p.PoolerID, p.CustodialWallet,
			p.StakeAmount, p.TransactionHash, p.Status, p.ErrorMessage)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE farmers SET balance_recheck = TRUE WHERE id = $1`, p.FarmerID)
		return err
	})
}

// SuccessfulPlantings returns the farmers that planted on the given block.
func (s *Store) SuccessfulPlantings(ctx context.Context, blockIndex uint32) ([]Planting, error) {
	var rows []Planting
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, block_index, farmer_id, pooler_id, custodial_wallet,
			stake_amount, transaction_hash, status, error_message, planted_at
		 FROM plantings
		 WHERE block_index = $1 AND status = 'success'
		 ORDER BY farmer_id`,
		blockIndex)
	return rows, err
}

// WorkCandidates returns the farmers that planted successfully on the given
// block joined with their sealed custodial secrets, ready for the work phase.
func (s *Store) WorkCandidates(ctx context.Context, blockIndex uint32) ([]WorkCandidate, error) {
	var rows []WorkCandidate
	err := s.db.SelectContext(ctx, &rows,
		`SELECT p.farmer_id, p.custodial_wallet, p.stake_amount, p.planted_at,
			f.custodial_public_key, f.custodial_secret_sealed
		 FROM plantings p
		 JOIN farmers f ON f.id = p.farmer_id
		 WHERE p.block_index = $1 AND p.status = 'success'
		 ORDER BY p.farmer_id`,
		blockIndex)
	return rows, err
}

// RecordWork stores the per-farmer outcome of a proof-of-work attempt,
// following the same replay rule as RecordPlanting.
func (s *Store) RecordWork(ctx context.Context, w *Work) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO works
				(id, block_index, farmer_id, nonce, hash, zeros, gap,
				 transaction_hash, status, compensation_required, error_message)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (block_index, farmer_id) DO UPDATE SET
				nonce                 = EXCLUDED.nonce,
				hash                  = EXCLUDED.hash,
				zeros                 = EXCLUDED.zeros,
				gap                   = EXCLUDED.gap,
				transaction_hash      = EXCLUDED.transaction_hash,
				status                = EXCLUDED.status,
				compensation_required = EXCLUDED.compensation_required,
				error_message         = EXCLUDED.error_message,
				worked_at             = now()
			WHERE works.status <> 'success'`,
			w.ID, w.BlockIndex, w.FarmerID, w.Nonce, w.Hash, w.Zeros, w.Gap,
			w.TransactionHash, w.Status, w.CompensationRequired, w.ErrorMessage)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE farmers SET balance_recheck = TRUE WHERE id = $1`, w.FarmerID)
		return err
	})
}

// ListCompensationDue returns works flagged for compensation, oldest first.
func (s *Store) ListCompensationDue(ctx context.Context, limit int) ([]Work, error) {
	var rows []Work
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, block_index, farmer_id, nonce, hash, zeros, gap,
			transaction_hash, status, compensation_required, error_message, worked_at
		 FROM works
		 WHERE compensation_required
		 ORDER BY worked_at
		 LIMIT $1`,
		limit)
	return rows, err
}

// DueHarvests returns the worked, not yet harvested blocks of every farmer
// whose harvest interval has elapsed at the given block index. The first
// interval is measured from the farmer's first successful work; afterwards
// from the latest successfully harvested block. An eligible farmer has all
// outstanding blocks returned at once.
func (s *Store) DueHarvests(ctx context.Context, poolerID uuid.UUID, currentIndex uint32) ([]HarvestCandidate, error) {
	var rows []HarvestCandidate
	err := s.db.SelectContext(ctx, &rows,
		`SELECT w.farmer_id, w.block_index, f.custodial_public_key AS custodial_wallet, f.custodial_secret_sealed
		 FROM works w
		 JOIN farmers f ON f.id = w.farmer_id
		 JOIN pool_contracts c ON c.farmer_id = w.farmer_id AND c.status = 'active'
		 WHERE c.pooler_id = $1
		   AND w.status = 'success'
		   AND NOT EXISTS (
			SELECT 1 FROM harvests h
			WHERE h.farmer_id = w.farmer_id AND h.block_index = w.block_index AND h.status = 'success'
		   )
		   AND COALESCE(
			(SELECT MAX(h2.block_index) FROM harvests h2
			 WHERE h2.farmer_id = w.farmer_id AND h2.status = 'success'),
			(SELECT MIN(w2.block_index) FROM works w2
			 WHERE w2.farmer_id = w.farmer_id AND w2.status = 'success')
		   ) + c.harvest_interval <= $2
		 ORDER BY w.farmer_id, w.block_index`,
		poolerID, currentIndex)
	return rows, err
}

// RecordHarvest stores the per-farmer outcome of a reward claim. A
// successful claim credits the farmer balance and the block operation
// totals in the same transaction; a replay of an already successful
// harvest changes nothing.
func (s *Store) RecordHarvest(ctx context.Context, h *Harvest) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO harvests
				(id, block_index, farmer_id, reward_amount, transaction_hash, status, error_message)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (block_index, farmer_id) DO UPDATE SET
				reward_amount    = EXCLUDED.reward_amount,
				transaction_hash = EXCLUDED.transaction_hash,
				status           = EXCLUDED.status,
				error_message    = EXCLUDED.error_message,
				harvested_at     = now()
			WHERE harvests.status <> 'success'`,
			h.ID, h.BlockIndex, h.FarmerID, h.RewardAmount, h.TransactionHash, h.Status, h.ErrorMessage)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 || h.Status != RecordSuccess {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE farmers SET current_balance = current_balance + $2, balance_recheck = TRUE
			 WHERE id = $1`,
			h.FarmerID, h.RewardAmount); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE block_operations SET
				successful_harvests = successful_harvests + 1,
				total_rewards = total_rewards + $2
			 WHERE block_index = $1`,
			h.BlockIndex, h.RewardAmount)
		return err
	})
}

// UnexitedHarvests returns the successful harvests of a farmer that have
// not been consumed by an exit settlement, ordered by block index.
func (s *Store) UnexitedHarvests(ctx context.Context, farmerID uuid.UUID) ([]Harvest, error) {
	var rows []Harvest
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, block_index, farmer_id, reward_amount, transaction_hash,
			status, included_in_exit, exit_split_id, error_message, harvested_at
		 FROM harvests
		 WHERE farmer_id = $1 AND status = 'success' AND NOT included_in_exit
		 ORDER BY block_index`,
		farmerID)
	return rows, err
}
