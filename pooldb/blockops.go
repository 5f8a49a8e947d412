// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package pooldb

import (
	"context"

	"github.com/google/uuid"

	"github.com/kalepool/kalepool/kale"
)

const blockOpColumns = `id, block_index, pooler_id, status, entropy, block_timestamp, block_age_s,
	plantable, min_zeros, max_zeros, min_stake, max_stake,
	total_farmers, successful_plants, successful_works, successful_harvests,
	total_staked, total_rewards, error_message,
	discovered_at, plant_requested_at, plant_completed_at, work_completed_at`

// UpsertBlockOperation records a newly discovered block. Discovering the
// same index again refreshes the chain metadata but keeps the stored row,
// so replays always resolve to the original operation id. The returned flag
// reports whether the row was created by this call.
func (s *Store) UpsertBlockOperation(ctx context.Context, op *BlockOperation) (bool, error) {
	candidate := op.ID
	if candidate == uuid.Nil {
		candidate = uuid.New()
	}
	query := `INSERT INTO block_operations
		(id, block_index, pooler_id, status, entropy, block_timestamp, block_age_s,
		 plantable, min_zeros, max_zeros, min_stake, max_stake)
	VALUES ($1, $2, $3, 'discovered', $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (block_index) DO UPDATE SET
		block_age_s = EXCLUDED.block_age_s,
		plantable   = EXCLUDED.plantable,
		min_zeros   = EXCLUDED.min_zeros,
		max_zeros   = EXCLUDED.max_zeros,
		min_stake   = EXCLUDED.min_stake,
		max_stake   = EXCLUDED.max_stake
	RETURNING ` + blockOpColumns

	if err := s.db.GetContext(ctx, op, query,
		candidate, op.BlockIndex, op.PoolerID, op.Entropy, op.BlockTimestamp, op.BlockAgeS,
		op.Plantable, op.MinZeros, op.MaxZeros, op.MinStake, op.MaxStake,
	); err != nil {
		return false, err
	}
	return op.ID == candidate, nil
}

// GetBlockOperation returns the operation tracking the given block index.
func (s *Store) GetBlockOperation(ctx context.Context, blockIndex uint32) (*BlockOperation, error) {
	var op BlockOperation
	err := s.db.GetContext(ctx, &op,
		`SELECT `+blockOpColumns+` FROM block_operations WHERE block_index = $1`, blockIndex)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &op, nil
}

// ListBlockOperations returns the most recent operations, newest first.
func (s *Store) ListBlockOperations(ctx context.Context, limit int) ([]BlockOperation, error) {
	var ops []BlockOperation
	err := s.db.SelectContext(ctx, &ops,
		`SELECT `+blockOpColumns+` FROM block_operations ORDER BY block_index DESC LIMIT $1`, limit)
	return ops, err
}

// ClaimPlanting marks the operation as having entered the planting phase.
// Only one caller wins the claim; replays and concurrent discoveries of the
// same block return false and must not submit plant transactions again.
func (s *Store) ClaimPlanting(ctx context.Context, blockIndex uint32) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE block_operations SET plant_requested_at = now()
		 WHERE block_index = $1 AND status = 'discovered' AND plant_requested_at IS NULL`,
		blockIndex)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CompletePlanting advances the operation to planting_completed and stores
// the aggregate plant totals. It reports false when the operation already
// moved past the discovered state.
func (s *Store) CompletePlanting(ctx context.Context, blockIndex uint32, totalFarmers, successfulPlants int, totalStaked kale.Stroops) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE block_operations SET
			status = 'planting_completed',
			total_farmers = $2,
			successful_plants = $3,
			total_staked = $4,
			plant_completed_at = now()
		 WHERE block_index = $1 AND status = 'discovered'`,
		blockIndex, totalFarmers, successfulPlants, totalStaked)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CompleteBlockWithoutFarmers finishes an operation that had no eligible
// farmers. The block is recorded as completed, not failed.
func (s *Store) CompleteBlockWithoutFarmers(ctx context.Context, blockIndex uint32) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE block_operations SET
			status = 'completed',
			total_farmers = 0,
			plant_completed_at = now()
		 WHERE block_index = $1 AND status = 'discovered'`,
		blockIndex)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CompleteWork advances the operation to work_completed with the number of
// successful proof submissions.
func (s *Store) CompleteWork(ctx context.Context, blockIndex uint32, successfulWorks int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE block_operations SET
			status = 'work_completed',
			successful_works = $2,
			work_completed_at = now()
		 WHERE block_index = $1 AND status = 'planting_completed'`,
		blockIndex, successfulWorks)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CompleteBlockOperation marks the operation finished after its harvest
// check ran.
func (s *Store) CompleteBlockOperation(ctx context.Context, blockIndex uint32) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE block_operations SET status = 'completed'
		 WHERE block_index = $1 AND status = 'work_completed'`,
		blockIndex)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// FailBlockOperation terminates a non-finished operation with an error
// message. Finished operations are left untouched.
func (s *Store) FailBlockOperation(ctx context.Context, blockIndex uint32, message string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE block_operations SET status = 'failed', error_message = $2
		 WHERE block_index = $1 AND status NOT IN ('completed', 'failed')`,
		blockIndex, message)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
