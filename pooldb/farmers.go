// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package pooldb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kalepool/kalepool/kale"
)

const farmerColumns = `id, user_id, custodial_public_key, custodial_secret_sealed,
	payout_wallet_address, status, current_balance, is_funded, balance_recheck,
	funded_at, joined_pool_at`

// CreateUser inserts a registered account owner.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := s.db.GetContext(ctx, &u.CreatedAt,
		`INSERT INTO users (id, email, external_wallet, status)
		 VALUES ($1, $2, $3, $4) RETURNING created_at`,
		u.ID, u.Email, u.ExternalWallet, u.Status)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// CreateFarmer inserts a freshly provisioned custodial wallet for a user.
// The secret key must already be sealed by the caller.
func (s *Store) CreateFarmer(ctx context.Context, f *Farmer) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.Status == "" {
		f.Status = FarmerWalletCreated
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO farmers
			(id, user_id, custodial_public_key, custodial_secret_sealed,
			 payout_wallet_address, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.UserID, f.CustodialPublicKey, f.CustodialSecretSealed,
		f.PayoutWalletAddress, f.Status)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// GetFarmer returns the farmer with the given id.
func (s *Store) GetFarmer(ctx context.Context, id uuid.UUID) (*Farmer, error) {
	var f Farmer
	err := s.db.GetContext(ctx, &f,
		`SELECT `+farmerColumns+` FROM farmers WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &f, nil
}

// FarmersForFundingCheck returns farmers whose custodial balance needs
// verification against the chain: never funded yet, or flagged for a
// recheck after wallet activity.
func (s *Store) FarmersForFundingCheck(ctx context.Context, limit int) ([]Farmer, error) {
	var rows []Farmer
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+farmerColumns+` FROM farmers
		 WHERE (NOT is_funded AND status = 'wallet_created') OR balance_recheck
		 ORDER BY id
		 LIMIT $1`,
		limit)
	return rows, err
}

// SetFarmerFunding stores a freshly verified balance and clears the recheck
// flag. The first time a wallet crosses the funding floor it is promoted
// from wallet_created to funded.
func (s *Store) SetFarmerFunding(ctx context.Context, id uuid.UUID, balance kale.Stroops, funded bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE farmers SET
			current_balance = $2,
			is_funded = $3,
			balance_recheck = FALSE,
			funded_at = CASE WHEN $3 AND funded_at IS NULL THEN now() ELSE funded_at END,
			status = CASE WHEN $3 AND status = 'wallet_created' THEN 'funded' ELSE status END
		 WHERE id = $1`,
		id, balance, funded)
	return err
}

// EligibleFarmers returns the pooler's farmers cleared for planting: funded,
// active in the pool and bound by an active contract.
func (s *Store) EligibleFarmers(ctx context.Context, poolerID uuid.UUID) ([]EligibleFarmer, error) {
	var rows []EligibleFarmer
	err := s.db.SelectContext(ctx, &rows,
		`SELECT f.id, f.custodial_public_key, f.custodial_secret_sealed, f.current_balance,
			c.id AS contract_id, c.pooler_id, c.stake_bps, c.harvest_interval
		 FROM farmers f
		 JOIN pool_contracts c ON c.farmer_id = f.id AND c.status = 'active'
		 WHERE c.pooler_id = $1 AND f.is_funded AND f.status = 'active_in_pool'
		 ORDER BY f.id`,
		poolerID)
	return rows, err
}

// CreatePooler inserts a pool operator.
func (s *Store) CreatePooler(ctx context.Context, p *Pooler) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = "active"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO poolers
			(id, name, wallet_address, reward_bps, max_farmers, current_farmers,
			 status, api_endpoint, api_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Name, p.WalletAddress, p.RewardBps, p.MaxFarmers, p.CurrentFarmers,
		p.Status, p.APIEndpoint, p.APIKey)
	return err
}

// GetPooler returns the pooler with the given id.
func (s *Store) GetPooler(ctx context.Context, id uuid.UUID) (*Pooler, error) {
	var p Pooler
	err := s.db.GetContext(ctx, &p,
		`SELECT id, name, wallet_address, reward_bps, max_farmers, current_farmers,
			status, api_endpoint, api_key
		 FROM poolers WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

// CreateContract inserts a pending pool contract binding a farmer to a
// pooler. The partial unique index rejects a second live contract for the
// same farmer.
func (s *Store) CreateContract(ctx context.Context, c *PoolContract) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = ContractPending
	}
	if len(c.ContractTerms) == 0 {
		c.ContractTerms = []byte(`{}`)
	}
	err := s.db.GetContext(ctx, &c.CreatedAt,
		`INSERT INTO pool_contracts
			(id, farmer_id, pooler_id, stake_bps, harvest_interval,
			 reward_split_bps, platform_fee_bps, status, contract_terms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		c.ID, c.FarmerID, c.PoolerID, c.StakeBps, c.HarvestInterval,
		c.RewardSplitBps, c.PlatformFeeBps, c.Status, c.ContractTerms)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// ActivateContract confirms a pending contract and moves its funded farmer
// into the pool, both in one transaction.
func (s *Store) ActivateContract(ctx context.Context, contractID uuid.UUID) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var farmerID uuid.UUID
		err := tx.GetContext(ctx, &farmerID,
			`UPDATE pool_contracts SET status = 'active', confirmed_at = now()
			 WHERE id = $1 AND status = 'pending'
			 RETURNING farmer_id`,
			contractID)
		if err != nil {
			return wrapNotFound(err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE farmers SET status = 'active_in_pool', joined_pool_at = now()
			 WHERE id = $1 AND status = 'funded'`,
			farmerID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrConflict
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE poolers SET current_farmers = current_farmers + 1
			 WHERE id = (SELECT pooler_id FROM pool_contracts WHERE id = $1)`,
			contractID)
		return err
	})
}

// LiveContract returns the farmer's live contract joined with the pooler
// payout wallet, or ErrNotFound when the farmer has none.
func (s *Store) LiveContract(ctx context.Context, farmerID uuid.UUID) (*ContractView, error) {
	var c ContractView
	err := s.db.GetContext(ctx, &c,
		`SELECT c.id, c.farmer_id, c.pooler_id, c.stake_bps, c.harvest_interval,
			c.reward_split_bps, c.platform_fee_bps, c.status,
			p.wallet_address AS pooler_wallet
		 FROM pool_contracts c
		 JOIN poolers p ON p.id = c.pooler_id
		 WHERE c.farmer_id = $1 AND c.status IN ('pending', 'active', 'exiting')`,
		farmerID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &c, nil
}
