// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package discoverer opens the block lifecycle. It polls the chain head,
// records every new farm block, stakes the eligible farmers inside the plant
// window and hands the planted set to the executor.
package discoverer

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kalepool/kalepool/cache"
	"github.com/kalepool/kalepool/chain"
	"github.com/kalepool/kalepool/co"
	"github.com/kalepool/kalepool/executor"
	"github.com/kalepool/kalepool/health"
	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/log"
	"github.com/kalepool/kalepool/pooldb"
	"github.com/kalepool/kalepool/wallet"
)

var logger = log.WithContext("pkg", "discoverer")

const (
	defaultPollInterval = 5 * time.Second
	minPollInterval     = time.Second
	maxPollInterval     = 30 * time.Second

	// blockQueueDepth bounds how many discovered heads may wait behind an
	// in-flight plant burst before the oldest is dropped.
	blockQueueDepth = 4

	defaultHousekeepInterval = time.Minute
	fundingBatchSize         = 50

	keypairCacheSize = 512
)

// Store is the slice of the pool store the discoverer consumes.
type Store interface {
	UpsertBlockOperation(ctx context.Context, op *pooldb.BlockOperation) (bool, error)
	EligibleFarmers(ctx context.Context, poolerID uuid.UUID) ([]pooldb.EligibleFarmer, error)
	CompleteBlockWithoutFarmers(ctx context.Context, blockIndex uint32) (bool, error)
	ClaimPlanting(ctx context.Context, blockIndex uint32) (bool, error)
	RecordPlanting(ctx context.Context, p *pooldb.Planting) error
	CompletePlanting(ctx context.Context, blockIndex uint32, totalFarmers, successfulPlants int, totalStaked kale.Stroops) (bool, error)
	WorkCandidates(ctx context.Context, blockIndex uint32) ([]pooldb.WorkCandidate, error)
	FailBlockOperation(ctx context.Context, blockIndex uint32, message string) (bool, error)
	FarmersForFundingCheck(ctx context.Context, limit int) ([]pooldb.Farmer, error)
	SetFarmerFunding(ctx context.Context, id uuid.UUID, balance kale.Stroops, funded bool) error
	Ping(ctx context.Context) error
}

// Options configures a Discoverer. Zero values select the defaults; the poll
// interval is clamped to [1s, 30s].
type Options struct {
	PoolerID          uuid.UUID
	PollInterval      time.Duration
	PlantAge          time.Duration
	PlantCutoff       time.Duration
	Concurrency       int64
	BaseStake         kale.Stroops
	HousekeepInterval time.Duration
}

// Discoverer owns the discovery/plant half of the block lifecycle.
type Discoverer struct {
	store    Store
	chain    chain.Adapter
	keys     *wallet.Keystore
	notifier Notifier
	health   *health.Health

	poolerID          uuid.UUID
	pollInterval      time.Duration
	plantAge          time.Duration
	plantCutoff       time.Duration
	concurrency       int64
	baseStake         kale.Stroops
	housekeepInterval time.Duration

	queue    chan *chain.HeadInfo
	lastSeen uint32
	keypairs *cache.LRU

	ctx    context.Context
	cancel context.CancelFunc
	goes   co.Goes
}

// New creates a discoverer and starts its loops.
func New(store Store, chainAdapter chain.Adapter, keys *wallet.Keystore, notifier Notifier, healthTracker *health.Health, opts *Options) *Discoverer {
	d := &Discoverer{
		store:             store,
		chain:             chainAdapter,
		keys:              keys,
		notifier:          notifier,
		health:            healthTracker,
		poolerID:          opts.PoolerID,
		pollInterval:      opts.PollInterval,
		plantAge:          opts.PlantAge,
		plantCutoff:       opts.PlantCutoff,
		concurrency:       opts.Concurrency,
		baseStake:         opts.BaseStake,
		housekeepInterval: opts.HousekeepInterval,
		queue:             make(chan *chain.HeadInfo, blockQueueDepth),
	}
	if d.health == nil {
		d.health = health.New(0)
	}
	if d.pollInterval == 0 {
		d.pollInterval = defaultPollInterval
	}
	if d.pollInterval < minPollInterval {
		d.pollInterval = minPollInterval
	}
	if d.pollInterval > maxPollInterval {
		d.pollInterval = maxPollInterval
	}
	if d.plantAge == 0 {
		d.plantAge = time.Duration(kale.PlantAge) * time.Second
	}
	if d.plantCutoff == 0 {
		d.plantCutoff = time.Duration(kale.PlantCutoff) * time.Second
	}
	if d.concurrency == 0 {
		d.concurrency = kale.PlantConcurrency
	}
	if d.baseStake == 0 {
		d.baseStake = kale.DefaultBaseStake
	}
	if d.housekeepInterval == 0 {
		d.housekeepInterval = defaultHousekeepInterval
	}
	d.keypairs, _ = cache.NewLRU(keypairCacheSize)

	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.goes.Go(d.pollLoop)
	d.goes.Go(d.burstLoop)
	d.goes.Go(d.houseKeeping)

	logger.Debug("discoverer started",
		"pooler", d.poolerID,
		"pollInterval", d.pollInterval,
		"plantAge", d.plantAge,
		"baseStake", d.baseStake)
	return d
}

// Close stops the loops and waits for them to drain. Plant transactions
// already submitted are left to settle.
func (d *Discoverer) Close() {
	d.cancel()
	d.goes.Wait()
	logger.Info("discoverer closed")
}

func (d *Discoverer) pollLoop() {
	logger.Debug("enter poll loop")
	defer logger.Debug("leave poll loop")

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.pollOnce(d.ctx)
		}
	}
}

func (d *Discoverer) pollOnce(ctx context.Context) {
	head, err := d.chain.Head(ctx)
	if err != nil {
		d.health.ChainOK(false)
		logger.Warn("head poll failed", "err", err)
		return
	}
	d.health.ChainOK(true)

	switch {
	case head.Index == d.lastSeen:
		return
	case head.Index < d.lastSeen:
		// Reorgs never rewrite history here; the newer index already won.
		logger.Debug("chain head regressed", "head", head.Index, "seen", d.lastSeen)
		return
	}
	if d.lastSeen != 0 && head.Index > d.lastSeen+1 {
		// Only the head block accepts plants, so skipped indexes are gone.
		logger.Warn("chain head jumped",
			"from", d.lastSeen, "to", head.Index, "missed", head.Index-d.lastSeen-1)
	}
	d.lastSeen = head.Index
	d.health.NewBestBlock(head.Index)
	d.discover(ctx, head)
}

// discover records the block operation and routes it onward: fresh blocks
// enter the plant queue, blocks planted by an earlier run that never reached
// the executor are re-notified.
func (d *Discoverer) discover(ctx context.Context, head *chain.HeadInfo) {
	op := &pooldb.BlockOperation{
		BlockIndex:     head.Index,
		PoolerID:       d.poolerID,
		Entropy:        head.Entropy.String(),
		BlockTimestamp: head.Timestamp,
		BlockAgeS:      int64(head.Age(time.Now().Unix())),
		Plantable:      head.Plantable,
		MinZeros:       head.MinZeros,
		MaxZeros:       head.MaxZeros,
		MinStake:       head.MinStake,
		MaxStake:       head.MaxStake,
	}
	created, err := d.store.UpsertBlockOperation(ctx, op)
	if err != nil {
		logger.Error("record block failed", "index", head.Index, "err", err)
		return
	}
	if created {
		metricBlockCount().AddWithLabel(1, map[string]string{"result": "discovered"})
		logger.Info("block discovered",
			"index", head.Index,
			"entropy", head.Entropy.AbbrevString(),
			"age", common.PrettyDuration(time.Duration(op.BlockAgeS)*time.Second),
			"plantable", head.Plantable)
	} else {
		metricBlockCount().AddWithLabel(1, map[string]string{"result": "rediscovered"})
		logger.Info("block rediscovered", "index", head.Index, "status", op.Status)
	}

	switch op.Status {
	case pooldb.OpDiscovered:
		d.enqueue(head)
	case pooldb.OpPlantingCompleted:
		// Planted before, but the executor was never told.
		d.goes.Go(func() { d.notifyPlanted(d.ctx, head.Index, head.Entropy, head.Timestamp) })
	}
}

// enqueue adds the head to the plant queue, dropping the oldest queued block
// when the queue is full.
func (d *Discoverer) enqueue(head *chain.HeadInfo) {
	for {
		select {
		case d.queue <- head:
			metricQueueDepth().Set(int64(len(d.queue)))
			return
		default:
		}
		select {
		case dropped := <-d.queue:
			logger.Warn("plant queue full, dropping oldest block", "index", dropped.Index)
			d.failBlock(d.ctx, dropped.Index, "plant queue overflow")
		default:
		}
	}
}

func (d *Discoverer) burstLoop() {
	logger.Debug("enter burst loop")
	defer logger.Debug("leave burst loop")

	for {
		select {
		case <-d.ctx.Done():
			return
		case head := <-d.queue:
			metricQueueDepth().Set(int64(len(d.queue)))
			d.processBlock(d.ctx, head)
		}
	}
}

// processBlock runs steps three to seven of the discovery algorithm for one
// block: select farmers, gate on age, burst the plants, aggregate, notify.
func (d *Discoverer) processBlock(ctx context.Context, head *chain.HeadInfo) {
	log := logger.With("index", head.Index)

	age := func() time.Duration {
		return time.Duration(head.Age(time.Now().Unix())) * time.Second
	}
	if a := age(); a >= d.plantCutoff {
		log.Warn("plant window missed", "age", common.PrettyDuration(a))
		d.failBlock(ctx, head.Index, "plant window missed")
		return
	}

	farmers, err := d.store.EligibleFarmers(ctx, d.poolerID)
	if err != nil {
		log.Error("load eligible farmers failed", "err", err)
		return
	}
	if len(farmers) == 0 {
		if _, err := d.store.CompleteBlockWithoutFarmers(ctx, head.Index); err != nil {
			log.Error("complete block without farmers failed", "err", err)
			return
		}
		log.Info("no eligible farmers, block completed")
		return
	}

	if !head.Plantable {
		if wait := d.plantAge - age(); wait > 0 {
			log.Debug("waiting for plant window", "wait", common.PrettyDuration(wait))
			if !sleepContext(ctx, wait) {
				return
			}
		}
	}

	// A single planter per block, across every discoverer instance.
	won, err := d.store.ClaimPlanting(ctx, head.Index)
	if err != nil {
		log.Error("claim planting failed", "err", err)
		return
	}
	if !won {
		log.Debug("planting already claimed elsewhere")
		return
	}

	log.Info("plant burst started", "farmers", len(farmers))
	startTime := mclock.Now()

	var (
		planted atomic.Int64
		staked  atomic.Int64
		goes    co.Goes
	)
	sem := semaphore.NewWeighted(d.concurrency)
	for i := range farmers {
		f := &farmers[i]
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		goes.Go(func() {
			defer sem.Release(1)
			if stake, ok := d.plantFarmer(ctx, head, f); ok {
				planted.Add(1)
				staked.Add(int64(stake))
			}
		})
	}
	goes.Wait()

	advanced, err := d.store.CompletePlanting(ctx, head.Index,
		len(farmers), int(planted.Load()), kale.Stroops(staked.Load()))
	if err != nil {
		log.Error("complete planting failed", "err", err)
	} else if !advanced {
		log.Warn("block operation not awaiting plants, totals dropped")
	}
	log.Info("plant burst finished",
		"ok", planted.Load(),
		"failed", int64(len(farmers))-planted.Load(),
		"staked", kale.Stroops(staked.Load()),
		"elapsed", common.PrettyDuration(mclock.Now()-startTime))
	metricPlantPhaseDuration().Observe(int64(time.Duration(mclock.Now()-startTime) / time.Millisecond))

	d.notifyPlanted(ctx, head.Index, head.Entropy, head.Timestamp)
}

// plantFarmer stakes one farmer on the block. Returns the staked amount and
// whether the plant landed.
func (d *Discoverer) plantFarmer(ctx context.Context, head *chain.HeadInfo, f *pooldb.EligibleFarmer) (kale.Stroops, bool) {
	log := logger.With("index", head.Index, "farmer", f.ID)

	kp, err := d.unseal(f.CustodialSecretSealed)
	if err != nil {
		log.Error("unseal custodial secret failed", "err", err)
		d.recordPlanting(ctx, failedPlanting(head.Index, f, "unseal custodial secret: "+err.Error()))
		return 0, false
	}

	stake := stakeAmount(f.StakeBps, d.baseStake, f.CurrentBalance)
	receipt, err := d.chain.Plant(ctx, kp.Seed(), head.Index, stake)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false
		}
		log.Warn("plant failed", "stake", stake, "err", err)
		d.recordPlanting(ctx, failedPlanting(head.Index, f, err.Error()))
		return 0, false
	}

	d.recordPlanting(ctx, &pooldb.Planting{
		BlockIndex:      head.Index,
		FarmerID:        f.ID,
		PoolerID:        f.PoolerID,
		CustodialWallet: f.CustodialPublicKey,
		StakeAmount:     stake,
		TransactionHash: &receipt.TxHash,
		Status:          pooldb.RecordSuccess,
	})
	log.Debug("planted", "stake", stake, "tx", receipt.TxHash)
	return stake, true
}

// notifyPlanted sends the block's planted set to the executor. On failure
// the operation stays at planting_completed, so a rediscovery of the block
// resends the same set.
func (d *Discoverer) notifyPlanted(ctx context.Context, blockIndex uint32, entropy kale.Entropy, blockTimestamp int64) {
	cands, err := d.store.WorkCandidates(ctx, blockIndex)
	if err != nil {
		logger.Error("load planted set failed", "index", blockIndex, "err", err)
		return
	}

	n := &executor.Notification{
		BlockIndex:     blockIndex,
		Entropy:        entropy,
		BlockTimestamp: blockTimestamp,
		PlantedFarmers: make([]executor.PlantedFarmer, 0, len(cands)),
	}
	for i := range cands {
		c := &cands[i]
		n.PlantedFarmers = append(n.PlantedFarmers, executor.PlantedFarmer{
			FarmerID:           c.FarmerID,
			CustodialWallet:    c.CustodialWallet,
			CustodialSecretKey: c.CustodialSecretSealed,
			StakeAmount:        strconv.FormatInt(int64(c.StakeAmount), 10),
			PlantingTime:       c.PlantedAt,
		})
	}

	if err := d.notifier.Notify(ctx, n); err != nil {
		metricNotifyCount().AddWithLabel(1, map[string]string{"status": "failed"})
		logger.Error("executor notification failed",
			"index", blockIndex, "farmers", len(n.PlantedFarmers), "err", err)
		return
	}
	metricNotifyCount().AddWithLabel(1, map[string]string{"status": "delivered"})
	logger.Info("executor notified", "index", blockIndex, "farmers", len(n.PlantedFarmers))
}

func (d *Discoverer) houseKeeping() {
	logger.Debug("enter house keeping")

	fundingTicker := time.NewTicker(d.housekeepInterval)
	probeTicker := time.NewTicker(30 * time.Second)
	clockSyncTicker := time.NewTicker(10 * time.Minute)

	defer func() {
		logger.Debug("leave house keeping")
		fundingTicker.Stop()
		probeTicker.Stop()
		clockSyncTicker.Stop()
	}()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-fundingTicker.C:
			d.checkFunding(d.ctx)
		case <-probeTicker.C:
			d.refreshProbes(d.ctx)
		case <-clockSyncTicker.C:
			go checkClockOffset()
		}
	}
}

// checkFunding re-verifies custodial balances against the chain for wallets
// that were never funded or saw activity since the last check.
func (d *Discoverer) checkFunding(ctx context.Context) {
	farmers, err := d.store.FarmersForFundingCheck(ctx, fundingBatchSize)
	if err != nil {
		logger.Error("load farmers for funding check failed", "err", err)
		return
	}
	for i := range farmers {
		if ctx.Err() != nil {
			return
		}
		f := &farmers[i]
		addr, err := kale.ParseAddress(f.CustodialPublicKey)
		if err != nil {
			logger.Error("bad custodial wallet on record", "farmer", f.ID, "err", err)
			continue
		}
		funding, err := d.chain.CheckFunding(ctx, addr)
		if err != nil {
			logger.Warn("funding check failed", "farmer", f.ID, "err", err)
			continue
		}
		if err := d.store.SetFarmerFunding(ctx, f.ID, funding.Balance, funding.IsFunded); err != nil {
			logger.Error("store funding failed", "farmer", f.ID, "err", err)
			continue
		}
		metricFundingChecks().Add(1)
		if funding.IsFunded && !f.IsFunded {
			logger.Info("farmer wallet funded", "farmer", f.ID, "balance", funding.Balance)
		}
	}
}

func (d *Discoverer) refreshProbes(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		d.health.ChainOK(d.chain.Health(ctx) == nil)
		return nil
	})
	g.Go(func() error {
		d.health.StoreOK(d.store.Ping(ctx) == nil)
		return nil
	})
	_ = g.Wait()
}

func checkClockOffset() {
	resp, err := ntp.Query("pool.ntp.org")
	if err != nil {
		logger.Debug("failed to access NTP", "err", err)
		return
	}
	// Plant and work windows are wall-clock relative, so clock drift eats
	// directly into the burst deadlines.
	if resp.ClockOffset.Abs() > time.Duration(kale.PlantAge)*time.Second/2 {
		logger.Warn("clock offset detected", "offset", common.PrettyDuration(resp.ClockOffset))
	}
}

func (d *Discoverer) failBlock(ctx context.Context, blockIndex uint32, message string) {
	if _, err := d.store.FailBlockOperation(ctx, blockIndex, message); err != nil {
		logger.Error("fail block operation failed", "index", blockIndex, "err", err)
	}
}

// unseal opens a sealed custodial secret, caching the keypair so repeated
// bursts skip the key derivation cost.
func (d *Discoverer) unseal(sealed string) (*wallet.Keypair, error) {
	v, err := d.keypairs.GetOrLoad(sealed, func(any) (any, error) {
		return d.keys.Open(sealed)
	})
	if err != nil {
		return nil, err
	}
	return v.(*wallet.Keypair), nil
}

func (d *Discoverer) recordPlanting(ctx context.Context, p *pooldb.Planting) {
	if err := d.store.RecordPlanting(ctx, p); err != nil {
		logger.Error("record planting failed", "index", p.BlockIndex, "farmer", p.FarmerID, "err", err)
	}
	metricPlantCount().AddWithLabel(1, map[string]string{"status": string(p.Status)})
}

// stakeAmount applies the contract's stake rate to the base stake and clamps
// the result to what the wallet holds.
func stakeAmount(stakeBps int, base, balance kale.Stroops) kale.Stroops {
	stake := base * kale.Stroops(stakeBps) / kale.RateScale
	if stake < 0 {
		stake = 0
	}
	if stake > balance {
		stake = balance
	}
	return stake
}

func failedPlanting(blockIndex uint32, f *pooldb.EligibleFarmer, cause string) *pooldb.Planting {
	return &pooldb.Planting{
		BlockIndex:      blockIndex,
		FarmerID:        f.ID,
		PoolerID:        f.PoolerID,
		CustodialWallet: f.CustodialPublicKey,
		Status:          pooldb.RecordFailed,
		ErrorMessage:    &cause,
	}
}
