// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package settle implements exit settlement: it turns a farmer's
// accumulated harvest rewards into an immutable three-way split and pays
// the legs out of the custodial wallet, with persisted partial progress so
// a crashed payout resumes instead of double-paying.
package settle

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/kalepool/kalepool/chain"
	"github.com/kalepool/kalepool/co"
	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/log"
	"github.com/kalepool/kalepool/pooldb"
	"github.com/kalepool/kalepool/wallet"
)

var logger = log.WithContext("pkg", "settle")

const (
	defaultClaimInterval = 15 * time.Second
	defaultClaimLimit    = 16
	defaultClaimLease    = 10 * time.Minute
	defaultRetryBase     = 30 * time.Second
	defaultRetryCap      = 5 * time.Minute
)

// Store is the slice of the pool store the settlement engine consumes.
type Store interface {
	GetFarmer(ctx context.Context, id uuid.UUID) (*pooldb.Farmer, error)
	LiveContract(ctx context.Context, farmerID uuid.UUID) (*pooldb.ContractView, error)
	HasProcessingExit(ctx context.Context, farmerID uuid.UUID) (bool, error)
	UnexitedHarvests(ctx context.Context, farmerID uuid.UUID) ([]pooldb.Harvest, error)
	CreateExitSplit(ctx context.Context, split *pooldb.ExitSplit, harvestIDs []uuid.UUID) error
	RecordFailedSplit(ctx context.Context, split *pooldb.ExitSplit, details string) error
	GetExitSplit(ctx context.Context, id uuid.UUID) (*pooldb.ExitSplit, error)
	ExitAuditTrail(ctx context.Context, exitID uuid.UUID) ([]pooldb.ExitAudit, error)
	ClaimExits(ctx context.Context, limit int, lease time.Duration) ([]pooldb.ExitSplit, error)
	MarkExitLegPaid(ctx context.Context, id uuid.UUID, leg pooldb.ExitLeg, txHash string, auditAction string) (bool, error)
	RecordExitRetry(ctx context.Context, id uuid.UUID, leg pooldb.ExitLeg, attempt int, cause string) error
	CompleteExit(ctx context.Context, id uuid.UUID) (bool, error)
	FailExit(ctx context.Context, id uuid.UUID, details string) (bool, error)
}

// ExitRequest asks to settle a farmer out of the pool.
type ExitRequest struct {
	FarmerID       uuid.UUID
	ExternalWallet string
	Reason         string
	// Immediate kicks the payout runner instead of waiting for its next
	// claim cycle.
	Immediate bool
}

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	PlatformWallet kale.Address
	ClaimInterval  time.Duration
	ClaimLimit     int
	ClaimLease     time.Duration
	Concurrency    int64
	RetryBase      time.Duration
	RetryCap       time.Duration
}

// Engine validates and initiates exits and runs the payout loop.
type Engine struct {
	store Store
	chain chain.Adapter
	keys  *wallet.Keystore

	platformWallet kale.Address
	claimInterval  time.Duration
	claimLimit     int
	claimLease     time.Duration
	concurrency    int64
	retryBase      time.Duration
	retryCap       time.Duration

	kick   co.Signal
	ctx    context.Context
	cancel context.CancelFunc
	goes   co.Goes
}

// New creates a settlement engine and starts its payout runner.
func New(store Store, chainAdapter chain.Adapter, keys *wallet.Keystore, opts *Options) *Engine {
	e := &Engine{
		store:          store,
		chain:          chainAdapter,
		keys:           keys,
		platformWallet: opts.PlatformWallet,
		claimInterval:  opts.ClaimInterval,
		claimLimit:     opts.ClaimLimit,
		claimLease:     opts.ClaimLease,
		concurrency:    opts.Concurrency,
		retryBase:      opts.RetryBase,
		retryCap:       opts.RetryCap,
	}
	if e.claimInterval == 0 {
		e.claimInterval = defaultClaimInterval
	}
	if e.claimLimit == 0 {
		e.claimLimit = defaultClaimLimit
	}
	if e.claimLease == 0 {
		e.claimLease = defaultClaimLease
	}
	if e.concurrency == 0 {
		e.concurrency = kale.SettleConcurrency
	}
	if e.retryBase == 0 {
		e.retryBase = defaultRetryBase
	}
	if e.retryCap == 0 {
		e.retryCap = defaultRetryCap
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.goes.Go(e.runLoop)
	return e
}

// Close stops the payout runner and waits for in-flight settlements to
// finish their current step. Claimed but unfinished exits are picked up
// again after their lease expires.
func (e *Engine) Close() {
	e.cancel()
	e.goes.Wait()
	logger.Info("settlement engine closed")
}

// InitiateExit checks eligibility, computes the split and persists the
// settlement. The heavy payout work happens asynchronously in the runner;
// the returned split is in the processing state.
func (e *Engine) InitiateExit(ctx context.Context, req *ExitRequest) (*pooldb.ExitSplit, error) {
	if _, err := kale.ParseAddress(req.ExternalWallet); err != nil {
		return nil, codedErrorf(CodeInvalidWallet, "external wallet %q is not a valid account address", req.ExternalWallet)
	}

	farmer, err := e.store.GetFarmer(ctx, req.FarmerID)
	if err != nil {
		if pooldb.IsNotFound(err) {
			return nil, codedErrorf(CodeFarmerNotFound, "farmer %s not found", req.FarmerID)
		}
		return nil, e.internal(err, "load farmer")
	}

	if busy, err := e.store.HasProcessingExit(ctx, farmer.ID); err != nil {
		return nil, e.internal(err, "check processing exits")
	} else if busy {
		return nil, codedErrorf(CodeExitInProgress, "farmer %s already has an exit in progress", farmer.ID)
	}

	contract, err := e.store.LiveContract(ctx, farmer.ID)
	if err != nil {
		if pooldb.IsNotFound(err) {
			return nil, codedErrorf(CodeNoActiveContract, "farmer %s has no active pool contract", farmer.ID)
		}
		return nil, e.internal(err, "load contract")
	}
	if contract.Status != pooldb.ContractActive {
		return nil, codedErrorf(CodeExitInProgress, "pool contract is already %s", contract.Status)
	}

	harvests, err := e.store.UnexitedHarvests(ctx, farmer.ID)
	if err != nil {
		return nil, e.internal(err, "load harvests")
	}

	var (
		total      kale.Stroops
		harvestIDs = make([]uuid.UUID, 0, len(harvests))
		blocks     = make(map[uint32]struct{}, len(harvests))
		firstAt    time.Time
		lastAt     time.Time
	)
	for _, h := range harvests {
		total += h.RewardAmount
		harvestIDs = append(harvestIDs, h.ID)
		blocks[h.BlockIndex] = struct{}{}
		if firstAt.IsZero() || h.HarvestedAt.Before(firstAt) {
			firstAt = h.HarvestedAt
		}
		if h.HarvestedAt.After(lastAt) {
			lastAt = h.HarvestedAt
		}
	}
	if total < kale.MinExit {
		return nil, codedErrorf(CodeBelowMinimum,
			"accumulated rewards %v are below the exit minimum %v", total, kale.MinExit)
	}

	reason := req.Reason
	if reason == "" {
		reason = "user_requested"
	}
	row := &pooldb.ExitSplit{
		ID:                    uuid.New(),
		FarmerID:              farmer.ID,
		PoolerID:              contract.PoolerID,
		ContractID:            contract.ID,
		TotalRewards:          total,
		RewardSplitBps:        contract.RewardSplitBps,
		PlatformFeeBps:        contract.PlatformFeeBps,
		FarmerExternalWallet:  req.ExternalWallet,
		FarmerCustodialWallet: farmer.CustodialPublicKey,
		PoolerWallet:          contract.PoolerWallet,
		PlatformWallet:        e.platformWallet.String(),
		BlocksIncluded:        len(blocks),
		HarvestsIncluded:      len(harvests),
		ExitReason:            reason,
	}

	split, err := SplitRewards(total, contract.PlatformFeeBps, contract.RewardSplitBps)
	if err != nil {
		// No payouts for an unbalanced split; the failed row keeps the
		// evidence and the harvests stay spendable by a later exit.
		if ferr := e.store.RecordFailedSplit(ctx, row, err.Error()); ferr != nil {
			logger.Error("record imbalanced split failed", "farmer", farmer.ID, "err", ferr)
		}
		metricExits().AddWithLabel(1, map[string]string{"status": "imbalance"})
		logger.Error("settlement split imbalance", "farmer", farmer.ID, "total", total, "err", err)
		return nil, codedErrorf(CodeCalculationImbalance, "reward split could not be balanced")
	}
	row.FarmerShare = split.FarmerShare
	row.PoolerShare = split.PoolerShare
	row.PlatformFee = split.PlatformFee

	if err := e.store.CreateExitSplit(ctx, row, harvestIDs); err != nil {
		if pooldb.IsConflict(err) {
			return nil, codedErrorf(CodeExitInProgress, "farmer %s already has an exit in progress", farmer.ID)
		}
		return nil, e.internal(err, "persist exit split")
	}

	metricExits().AddWithLabel(1, map[string]string{"status": "initiated"})
	logger.Info("exit initiated",
		"exit", row.ID,
		"farmer", farmer.ID,
		"total", total,
		"farmerShare", row.FarmerShare,
		"poolerShare", row.PoolerShare,
		"platformFee", row.PlatformFee,
		"harvests", len(harvests),
		"blocks", len(blocks),
		"firstHarvest", firstAt.UTC().Format(time.RFC3339),
		"lastHarvest", lastAt.UTC().Format(time.RFC3339))

	if req.Immediate {
		e.kick.Signal()
	}
	return row, nil
}

// Exit returns the settlement with the given id.
func (e *Engine) Exit(ctx context.Context, id uuid.UUID) (*pooldb.ExitSplit, error) {
	return e.store.GetExitSplit(ctx, id)
}

// AuditTrail returns the settlement's audit entries in append order.
func (e *Engine) AuditTrail(ctx context.Context, id uuid.UUID) ([]pooldb.ExitAudit, error) {
	return e.store.ExitAuditTrail(ctx, id)
}

func (e *Engine) runLoop() {
	logger.Debug("enter settlement loop")
	defer logger.Debug("leave settlement loop")

	ticker := time.NewTicker(e.claimInterval)
	defer ticker.Stop()

	waiter := e.kick.NewWaiter()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
		case <-waiter.C():
		}
		e.settleClaimed(e.ctx)
	}
}

// settleClaimed drains the processing queue: exits are claimed in batches
// under a lease and settled in parallel across farmers, each farmer's legs
// strictly in order.
func (e *Engine) settleClaimed(ctx context.Context) {
	for {
		splits, err := e.store.ClaimExits(ctx, e.claimLimit, e.claimLease)
		if err != nil {
			logger.Error("claim exits failed", "err", err)
			return
		}
		if len(splits) == 0 {
			return
		}

		var goes co.Goes
		sem := semaphore.NewWeighted(e.concurrency)
		for i := range splits {
			split := &splits[i]
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			goes.Go(func() {
				defer sem.Release(1)
				e.processExit(ctx, split)
			})
		}
		goes.Wait()

		if len(splits) < e.claimLimit {
			return
		}
	}
}

type payoutLeg struct {
	leg    pooldb.ExitLeg
	dest   string
	amount kale.Stroops
	audit  string
}

// processExit pays out one claimed settlement. Legs whose hash is already
// recorded are skipped, so a resumed exit never double-pays.
func (e *Engine) processExit(ctx context.Context, split *pooldb.ExitSplit) {
	log := logger.With("exit", split.ID, "farmer", split.FarmerID)
	startTime := mclock.Now()

	farmer, err := e.store.GetFarmer(ctx, split.FarmerID)
	if err != nil {
		// Leave the split processing; the lease expires and a later
		// cycle retries.
		log.Error("load farmer failed", "err", err)
		return
	}
	kp, err := e.keys.Open(farmer.CustodialSecretSealed)
	if err != nil {
		e.failExit(ctx, split, "unseal custodial secret: "+err.Error())
		return
	}
	if kp.Address().String() != split.FarmerCustodialWallet {
		e.failExit(ctx, split, "custodial wallet mismatch between split and farmer record")
		return
	}

	legs := []payoutLeg{
		{leg: pooldb.LegFarmer, dest: split.FarmerExternalWallet, amount: split.FarmerShare, audit: pooldb.AuditFarmerPaid},
		{leg: pooldb.LegPooler, dest: split.PoolerWallet, amount: split.PoolerShare},
		{leg: pooldb.LegPlatform, dest: split.PlatformWallet, amount: split.PlatformFee},
	}
	for i := range legs {
		if split.LegHash(legs[i].leg) != nil {
			continue
		}
		if !e.payLeg(ctx, split, kp.Seed(), &legs[i]) {
			return
		}
	}

	if advanced, err := e.store.CompleteExit(ctx, split.ID); err != nil {
		log.Error("complete exit failed", "err", err)
	} else if advanced {
		metricExits().AddWithLabel(1, map[string]string{"status": "completed"})
		metricSettleDuration().Observe(int64(mclock.Now()-startTime) / int64(time.Millisecond))
		log.Info("exit settled",
			"total", split.TotalRewards,
			"farmerShare", split.FarmerShare,
			"poolerShare", split.PoolerShare,
			"platformFee", split.PlatformFee)
	}
}

// payLeg delivers one transfer, retrying transient failures with
// exponential backoff. Permanent failures and exhausted retries fail the
// whole exit; already delivered legs are never reversed.
func (e *Engine) payLeg(ctx context.Context, split *pooldb.ExitSplit, seed string, l *payoutLeg) bool {
	log := logger.With("exit", split.ID, "leg", l.leg)

	if l.amount == 0 {
		// Nothing to move; record the leg as settled.
		if _, err := e.store.MarkExitLegPaid(ctx, split.ID, l.leg, "", l.audit); err != nil {
			log.Error("record empty leg failed", "err", err)
			return false
		}
		return true
	}

	dest, err := kale.ParseAddress(l.dest)
	if err != nil {
		e.failExit(ctx, split, fmt.Sprintf("%s leg: bad destination %q", l.leg, l.dest))
		return false
	}

	for attempt := 0; ; attempt++ {
		receipt, err := e.chain.Transfer(ctx, seed, dest, l.amount)
		if err == nil {
			if _, merr := e.store.MarkExitLegPaid(ctx, split.ID, l.leg, receipt.TxHash, l.audit); merr != nil {
				log.Error("record leg payment failed", "tx", receipt.TxHash, "err", merr)
				return false
			}
			log.Debug("payout delivered", "amount", l.amount, "dest", l.dest, "tx", receipt.TxHash)
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		permanent := !chain.IsRetryable(err) && chain.KindOf(err) != chain.KindUnknown
		if permanent || attempt >= kale.MaxPayoutRetries {
			e.failExit(ctx, split, fmt.Sprintf("%s leg: %v", l.leg, err))
			return false
		}

		log.Warn("payout transfer failed", "attempt", attempt+1, "err", err)
		if rerr := e.store.RecordExitRetry(ctx, split.ID, l.leg, attempt+1, err.Error()); rerr != nil {
			log.Error("record payout retry failed", "err", rerr)
		}
		metricPayoutRetries().Add(1)
		if !e.sleep(ctx, backoffDelay(attempt, e.retryBase, e.retryCap)) {
			return false
		}
	}
}

func (e *Engine) failExit(ctx context.Context, split *pooldb.ExitSplit, cause string) {
	if _, err := e.store.FailExit(ctx, split.ID, cause); err != nil {
		logger.Error("fail exit failed", "exit", split.ID, "err", err)
		return
	}
	metricExits().AddWithLabel(1, map[string]string{"status": "failed"})
	logger.Warn("exit failed", "exit", split.ID, "cause", cause)
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Engine) internal(err error, op string) error {
	logger.Error("settlement internal error", "op", op, "err", err)
	return &CodedError{Code: CodeInternal, Message: "internal error"}
}

func backoffDelay(attempt int, base, limit time.Duration) time.Duration {
	d := base << uint(attempt)
	if d <= 0 || d > limit {
		return limit
	}
	return d
}
