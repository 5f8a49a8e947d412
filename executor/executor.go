// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package executor drives the work and harvest phases of the block
// lifecycle. The discoverer notifies it of planted blocks; the executor
// sleeps until each block's work window opens, runs the nonce search per
// planted farmer, submits the results on chain and claims matured rewards
// afterwards.
package executor

import (
	"context"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/kalepool/kalepool/cache"
	"github.com/kalepool/kalepool/chain"
	"github.com/kalepool/kalepool/co"
	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/log"
	"github.com/kalepool/kalepool/miner"
	"github.com/kalepool/kalepool/pooldb"
	"github.com/kalepool/kalepool/wallet"
)

var logger = log.WithContext("pkg", "executor")

// maxWorkRecoveries is how many times a nonce search is retried, each retry
// doubling the budget, before the farmer's work is recorded failed.
const maxWorkRecoveries = 3

const keypairCacheSize = 512

// Store is the slice of the pool store the executor consumes.
type Store interface {
	WorkCandidates(ctx context.Context, blockIndex uint32) ([]pooldb.WorkCandidate, error)
	RecordWork(ctx context.Context, w *pooldb.Work) error
	CompleteWork(ctx context.Context, blockIndex uint32, successfulWorks int) (bool, error)
	FailBlockOperation(ctx context.Context, blockIndex uint32, message string) (bool, error)
	DueHarvests(ctx context.Context, poolerID uuid.UUID, currentIndex uint32) ([]pooldb.HarvestCandidate, error)
	RecordHarvest(ctx context.Context, h *pooldb.Harvest) error
	CompleteBlockOperation(ctx context.Context, blockIndex uint32) (bool, error)
}

// Searcher runs nonce searches. *miner.Runner satisfies it.
type Searcher interface {
	Search(ctx context.Context, job *miner.Job) (*miner.Solution, error)
}

// WorkCompletedEvent is posted once the work phase of a block has finished.
type WorkCompletedEvent struct {
	BlockIndex      uint32
	SuccessfulWorks int
	// Aborted is set when the deadline passed before any work could start.
	Aborted bool
}

// BlockCompletedEvent is posted once the harvest check following a block's
// work phase has finished.
type BlockCompletedEvent struct {
	BlockIndex uint32
	Harvested  int
}

// Options configures an Executor. Zero durations and counts select the
// protocol defaults.
type Options struct {
	PoolerID           uuid.UUID
	TargetZeros        uint32
	WorkDelay          time.Duration
	WorkDeadline       time.Duration
	HarvestConcurrency int64
	NonceCount         uint64
}

// Executor owns the work/harvest half of the block lifecycle.
type Executor struct {
	store    Store
	chain    chain.Adapter
	searcher Searcher

	poolerID           uuid.UUID
	targetZeros        uint32
	workDelay          time.Duration
	workDeadline       time.Duration
	harvestConcurrency int64
	nonceCount         uint64

	sched    *schedule
	wakeCh   chan struct{}
	keys     *wallet.Keystore
	keypairs *cache.LRU

	workFeed event.Feed
	doneFeed event.Feed
	scope    event.SubscriptionScope

	ctx    context.Context
	cancel context.CancelFunc
	goes   co.Goes
}

// New creates an executor and starts its loops.
func New(store Store, chainAdapter chain.Adapter, keys *wallet.Keystore, searcher Searcher, opts *Options) *Executor {
	e := &Executor{
		store:              store,
		chain:              chainAdapter,
		searcher:           searcher,
		poolerID:           opts.PoolerID,
		targetZeros:        opts.TargetZeros,
		workDelay:          opts.WorkDelay,
		workDeadline:       opts.WorkDeadline,
		harvestConcurrency: opts.HarvestConcurrency,
		nonceCount:         opts.NonceCount,
		sched:              newSchedule(),
		wakeCh:             make(chan struct{}, 1),
		keys:               keys,
	}
	if e.targetZeros == 0 {
		e.targetZeros = kale.DefaultTargetZeros
	}
	if e.workDelay == 0 {
		e.workDelay = time.Duration(kale.WorkDelay) * time.Second
	}
	if e.workDeadline == 0 {
		e.workDeadline = time.Duration(kale.WorkDeadline) * time.Second
	}
	if e.harvestConcurrency == 0 {
		e.harvestConcurrency = kale.HarvestConcurrency
	}
	if e.nonceCount == 0 {
		e.nonceCount = miner.DefaultNonceCount
	}
	e.keypairs, _ = cache.NewLRU(keypairCacheSize)

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.goes.Go(e.runLoop)
	e.goes.Go(e.harvestLoop)

	logger.Debug("executor started",
		"pooler", e.poolerID,
		"targetZeros", e.targetZeros,
		"workDelay", e.workDelay,
		"workDeadline", e.workDeadline)
	return e
}

// Schedule queues the notified block for work at T + workDelay, where T is
// the block timestamp. A repeated notification for the same index overwrites
// the queued one. It returns the number of farmers scheduled.
func (e *Executor) Schedule(n *Notification) (int, error) {
	if err := n.Validate(); err != nil {
		return 0, errors.Wrap(err, "invalid notification")
	}

	wake := time.Unix(n.BlockTimestamp, 0).Add(e.workDelay)
	replaced := e.sched.set(n, wake)
	metricScheduleDepth().Set(int64(e.sched.len()))

	msg := "block work scheduled"
	if replaced {
		msg = "block work rescheduled"
	}
	logger.Info(msg,
		"index", n.BlockIndex,
		"farmers", len(n.PlantedFarmers),
		"wake", wake.UTC().Format(time.RFC3339))

	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
	return len(n.PlantedFarmers), nil
}

// SubscribeWorkCompleted subscribes to work phase completions.
func (e *Executor) SubscribeWorkCompleted(ch chan *WorkCompletedEvent) event.Subscription {
	return e.scope.Track(e.workFeed.Subscribe(ch))
}

// SubscribeBlockCompleted subscribes to block completions, posted after the
// harvest check that closes out each block.
func (e *Executor) SubscribeBlockCompleted(ch chan *BlockCompletedEvent) event.Subscription {
	return e.scope.Track(e.doneFeed.Subscribe(ch))
}

// Close stops the loops and waits for them to drain. In-flight nonce
// searches are killed; transactions already submitted are left to settle.
func (e *Executor) Close() {
	e.cancel()
	e.scope.Close()
	e.goes.Wait()
	logger.Info("executor closed")
}

func (e *Executor) runLoop() {
	logger.Debug("enter work loop")
	defer logger.Debug("leave work loop")

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		var timerC <-chan time.Time
		if wake, ok := e.sched.peek(); ok {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(time.Until(wake))
			timerC = timer.C
		}

		select {
		case <-e.ctx.Done():
			return
		case <-e.wakeCh:
		case <-timerC:
			for _, n := range e.sched.popDue(time.Now()) {
				e.processBlock(e.ctx, n)
			}
			metricScheduleDepth().Set(int64(e.sched.len()))
		}
	}
}

func (e *Executor) harvestLoop() {
	logger.Debug("enter harvest loop")
	defer logger.Debug("leave harvest loop")

	ch := make(chan *WorkCompletedEvent, 16)
	sub := e.workFeed.Subscribe(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case <-e.ctx.Done():
			return
		case ev := <-ch:
			e.runHarvestCheck(e.ctx, ev.BlockIndex)
		}
	}
}

// processBlock runs the work phase of one block. Farmers are worked
// sequentially: the nonce search saturates the machine and the custodial
// wallets sign one transaction at a time anyway.
func (e *Executor) processBlock(ctx context.Context, n *Notification) {
	log := logger.With("index", n.BlockIndex)
	deadline := time.Unix(n.BlockTimestamp, 0).Add(e.workDelay + e.workDeadline)
	startTime := mclock.Now()

	candidates, err := e.store.WorkCandidates(ctx, n.BlockIndex)
	if err != nil {
		log.Error("load work candidates failed", "err", err)
		return
	}
	log.Info("work phase started",
		"farmers", len(candidates),
		"deadline", deadline.UTC().Format(time.RFC3339))

	successes, missed := 0, 0
	for i := range candidates {
		if ctx.Err() != nil {
			return
		}
		c := &candidates[i]
		if !time.Now().Before(deadline) {
			e.recordWork(ctx, failedWork(n.BlockIndex, c.FarmerID, "work deadline exceeded", true))
			missed++
			continue
		}
		if e.workFarmer(ctx, n, c) {
			successes++
		}
	}

	aborted := missed > 0 && missed == len(candidates)
	if aborted {
		log.Warn("work phase aborted, deadline passed before work could start", "farmers", missed)
		if _, err := e.store.FailBlockOperation(ctx, n.BlockIndex, "work deadline exceeded"); err != nil {
			log.Error("fail block operation failed", "err", err)
		}
	} else {
		advanced, err := e.store.CompleteWork(ctx, n.BlockIndex, successes)
		if err != nil {
			log.Error("complete work failed", "err", err)
		} else if !advanced {
			log.Warn("block operation not awaiting work, result counters dropped")
		}
		log.Info("work phase finished",
			"ok", successes,
			"failed", len(candidates)-successes,
			"elapsed", common.PrettyDuration(mclock.Now()-startTime))
	}
	metricWorkPhaseDuration().Observe(int64(time.Duration(mclock.Now()-startTime) / time.Millisecond))

	e.workFeed.Send(&WorkCompletedEvent{
		BlockIndex:      n.BlockIndex,
		SuccessfulWorks: successes,
		Aborted:         aborted,
	})
}

// workFarmer searches a nonce for one farmer and submits it. Failed searches
// are retried with a doubled budget. Returns whether the work landed.
func (e *Executor) workFarmer(ctx context.Context, n *Notification, c *pooldb.WorkCandidate) bool {
	log := logger.With("index", n.BlockIndex, "farmer", c.FarmerID)

	kp, err := e.unseal(c.CustodialSecretSealed)
	if err != nil {
		log.Error("unseal custodial secret failed", "err", err)
		e.recordWork(ctx, failedWork(n.BlockIndex, c.FarmerID, "unseal custodial secret: "+err.Error(), true))
		return false
	}

	job := &miner.Job{
		FarmerHex:  hex.EncodeToString(kp.Address().Bytes()),
		BlockIndex: n.BlockIndex,
		Entropy:    n.Entropy,
		NonceCount: e.nonceCount,
	}

	var (
		sol     *miner.Solution
		lastErr error
	)
	for attempt := 0; attempt <= maxWorkRecoveries; attempt++ {
		if attempt > 0 {
			job.NonceCount *= 2
			metricWorkRecoveries().Add(1)
			log.Debug("nonce search recovery", "attempt", attempt, "budget", job.NonceCount)
		}
		s, err := e.searcher.Search(ctx, job)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			lastErr = err
			continue
		}
		if s.Zeros < e.targetZeros {
			lastErr = errors.Errorf("best hash has %d leading zeros, target %d", s.Zeros, e.targetZeros)
			continue
		}
		sol = s
		break
	}
	if sol == nil {
		log.Warn("nonce search exhausted", "err", lastErr)
		e.recordWork(ctx, failedWork(n.BlockIndex, c.FarmerID, lastErr.Error(), true))
		return false
	}

	receipt, err := e.chain.Work(ctx, kp.Seed(), sol.Nonce, sol.Hash)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		log.Warn("work submission failed", "err", err)
		cause := err.Error()
		e.recordWork(ctx, &pooldb.Work{
			BlockIndex:           n.BlockIndex,
			FarmerID:             c.FarmerID,
			Nonce:                int64(sol.Nonce),
			Hash:                 sol.Hash,
			Zeros:                sol.Zeros,
			Gap:                  int(sol.Zeros) - int(e.targetZeros),
			Status:               pooldb.RecordFailed,
			CompensationRequired: true,
			ErrorMessage:         &cause,
		})
		return false
	}

	e.recordWork(ctx, &pooldb.Work{
		BlockIndex:      n.BlockIndex,
		FarmerID:        c.FarmerID,
		Nonce:           int64(sol.Nonce),
		Hash:            sol.Hash,
		Zeros:           sol.Zeros,
		Gap:             int(sol.Zeros) - int(e.targetZeros),
		TransactionHash: &receipt.TxHash,
		Status:          pooldb.RecordSuccess,
	})
	log.Debug("work submitted",
		"nonce", sol.Nonce,
		"zeros", sol.Zeros,
		"gap", int(sol.Zeros)-int(e.targetZeros),
		"tx", receipt.TxHash)
	return true
}

// runHarvestCheck claims every reward due at the given block index. Blocks
// of one farmer are claimed sequentially since its wallet signs one
// transaction at a time; distinct farmers run in parallel under the
// concurrency cap. The block operation is completed afterwards.
func (e *Executor) runHarvestCheck(ctx context.Context, blockIndex uint32) {
	log := logger.With("index", blockIndex)

	cands, err := e.store.DueHarvests(ctx, e.poolerID, blockIndex)
	if err != nil {
		log.Error("load due harvests failed", "err", err)
		return
	}

	var harvested atomic.Int64
	if len(cands) > 0 {
		order := make([]uuid.UUID, 0, len(cands))
		groups := make(map[uuid.UUID][]pooldb.HarvestCandidate)
		for _, c := range cands {
			if _, ok := groups[c.FarmerID]; !ok {
				order = append(order, c.FarmerID)
			}
			groups[c.FarmerID] = append(groups[c.FarmerID], c)
		}
		log.Info("harvest burst started", "farmers", len(order), "blocks", len(cands))

		var goes co.Goes
		sem := semaphore.NewWeighted(e.harvestConcurrency)
		for _, farmerID := range order {
			blocks := groups[farmerID]
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			goes.Go(func() {
				defer sem.Release(1)
				harvested.Add(e.harvestFarmer(ctx, blocks))
			})
		}
		goes.Wait()
		log.Info("harvest burst finished", "claimed", harvested.Load(), "due", len(cands))
	}

	if _, err := e.store.CompleteBlockOperation(ctx, blockIndex); err != nil {
		log.Error("complete block operation failed", "err", err)
	}
	e.doneFeed.Send(&BlockCompletedEvent{
		BlockIndex: blockIndex,
		Harvested:  int(harvested.Load()),
	})
}

// harvestFarmer claims the given blocks for one farmer, oldest first, and
// returns the number of successful claims.
func (e *Executor) harvestFarmer(ctx context.Context, cands []pooldb.HarvestCandidate) int64 {
	log := logger.With("farmer", cands[0].FarmerID)

	kp, err := e.unseal(cands[0].CustodialSecretSealed)
	if err != nil {
		log.Error("unseal custodial secret failed", "err", err)
		for i := range cands {
			e.recordHarvest(ctx, failedHarvest(&cands[i], "unseal custodial secret: "+err.Error()))
		}
		return 0
	}

	var ok int64
	for i := range cands {
		if ctx.Err() != nil {
			return ok
		}
		c := &cands[i]
		res, err := e.chain.Harvest(ctx, kp.Seed(), c.BlockIndex)
		if err != nil {
			if ctx.Err() != nil {
				return ok
			}
			log.Warn("harvest failed", "index", c.BlockIndex, "err", err)
			e.recordHarvest(ctx, failedHarvest(c, err.Error()))
			continue
		}
		e.recordHarvest(ctx, &pooldb.Harvest{
			BlockIndex:      c.BlockIndex,
			FarmerID:        c.FarmerID,
			RewardAmount:    res.Reward,
			TransactionHash: &res.TxHash,
			Status:          pooldb.RecordSuccess,
		})
		log.Debug("harvest claimed", "index", c.BlockIndex, "reward", res.Reward, "tx", res.TxHash)
		ok++
	}
	return ok
}

// unseal opens a sealed custodial secret, caching the keypair so repeated
// phases of the same farmer skip the key derivation cost.
func (e *Executor) unseal(sealed string) (*wallet.Keypair, error) {
	v, err := e.keypairs.GetOrLoad(sealed, func(any) (any, error) {
		return e.keys.Open(sealed)
	})
	if err != nil {
		return nil, err
	}
	return v.(*wallet.Keypair), nil
}

func (e *Executor) recordWork(ctx context.Context, w *pooldb.Work) {
	if err := e.store.RecordWork(ctx, w); err != nil {
		logger.Error("record work failed", "index", w.BlockIndex, "farmer", w.FarmerID, "err", err)
	}
	metricWorkCount().AddWithLabel(1, map[string]string{"status": string(w.Status)})
}

func (e *Executor) recordHarvest(ctx context.Context, h *pooldb.Harvest) {
	if err := e.store.RecordHarvest(ctx, h); err != nil {
		logger.Error("record harvest failed", "index", h.BlockIndex, "farmer", h.FarmerID, "err", err)
	}
	metricHarvestCount().AddWithLabel(1, map[string]string{"status": string(h.Status)})
}

func failedWork(blockIndex uint32, farmerID uuid.UUID, cause string, compensation bool) *pooldb.Work {
	return &pooldb.Work{
		BlockIndex:           blockIndex,
		FarmerID:             farmerID,
		Status:               pooldb.RecordFailed,
		CompensationRequired: compensation,
		ErrorMessage:         &cause,
	}
}

func failedHarvest(c *pooldb.HarvestCandidate, cause string) *pooldb.Harvest {
	return &pooldb.Harvest{
		BlockIndex:   c.BlockIndex,
		FarmerID:     c.FarmerID,
		Status:       pooldb.RecordFailed,
		ErrorMessage: &cause,
	}
}
