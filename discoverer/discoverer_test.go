// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package discoverer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalepool/kalepool/cache"
	"github.com/kalepool/kalepool/chain"
	"github.com/kalepool/kalepool/executor"
	"github.com/kalepool/kalepool/health"
	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/pooldb"
	"github.com/kalepool/kalepool/wallet"
)

var testEntropy = kale.MustParseEntropy("6ff17896294e2fb6467a3451ba52f4842bd8aa497cd5b4ede302ec2a16258ed1")

type plantTotals struct {
	total  int
	ok     int
	staked kale.Stroops
}

type fundingUpdate struct {
	balance kale.Stroops
	funded  bool
}

type fakeStore struct {
	mu             sync.Mutex
	ops            map[uint32]*pooldb.BlockOperation
	eligible       []pooldb.EligibleFarmer
	sealedByFarmer map[uuid.UUID]string
	plantings      map[uint32][]pooldb.Planting
	noFarmers      []uint32
	completions    map[uint32]plantTotals
	failures       map[uint32]string
	claims         map[uint32]int
	fundingDue     []pooldb.Farmer
	fundingSet     map[uuid.UUID]fundingUpdate
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		ops:            make(map[uint32]*pooldb.BlockOperation),
		sealedByFarmer: make(map[uuid.UUID]string),
		plantings:      make(map[uint32][]pooldb.Planting),
		completions:    make(map[uint32]plantTotals),
		failures:       make(map[uint32]string),
		claims:         make(map[uint32]int),
		fundingSet:     make(map[uuid.UUID]fundingUpdate),
	}
}

func (s *fakeStore) UpsertBlockOperation(_ context.Context, op *pooldb.BlockOperation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ex, ok := s.ops[op.BlockIndex]; ok {
		ex.BlockAgeS = op.BlockAgeS
		ex.Plantable = op.Plantable
		op.ID = ex.ID
		op.Status = ex.Status
		return false, nil
	}
	op.ID = uuid.New()
	op.Status = pooldb.OpDiscovered
	cp := *op
	s.ops[op.BlockIndex] = &cp
	return true, nil
}

func (s *fakeStore) EligibleFarmers(context.Context, uuid.UUID) ([]pooldb.EligibleFarmer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pooldb.EligibleFarmer(nil), s.eligible...), nil
}

func (s *fakeStore) CompleteBlockWithoutFarmers(_ context.Context, blockIndex uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noFarmers = append(s.noFarmers, blockIndex)
	if op, ok := s.ops[blockIndex]; ok {
		op.Status = pooldb.OpCompleted
	}
	return true, nil
}

func (s *fakeStore) ClaimPlanting(_ context.Context, blockIndex uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[blockIndex]++
	op, ok := s.ops[blockIndex]
	return s.claims[blockIndex] == 1 && ok && op.Status == pooldb.OpDiscovered, nil
}

func (s *fakeStore) RecordPlanting(_ context.Context, p *pooldb.Planting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.PlantedAt = time.Now().UTC()
	s.plantings[p.BlockIndex] = append(s.plantings[p.BlockIndex], cp)
	return nil
}

func (s *fakeStore) CompletePlanting(_ context.Context, blockIndex uint32, totalFarmers, successfulPlants int, totalStaked kale.Stroops) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions[blockIndex] = plantTotals{totalFarmers, successfulPlants, totalStaked}
	op, ok := s.ops[blockIndex]
	if !ok || op.Status != pooldb.OpDiscovered {
		return false, nil
	}
	op.Status = pooldb.OpPlantingCompleted
	return true, nil
}

func (s *fakeStore) WorkCandidates(_ context.Context, blockIndex uint32) ([]pooldb.WorkCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []pooldb.WorkCandidate
	for _, p := range s.plantings[blockIndex] {
		if p.Status != pooldb.RecordSuccess {
			continue
		}
		rows = append(rows, pooldb.WorkCandidate{
			FarmerID:              p.FarmerID,
			CustodialWallet:       p.CustodialWallet,
			CustodialPublicKey:    p.CustodialWallet,
			CustodialSecretSealed: s.sealedByFarmer[p.FarmerID],
			StakeAmount:           p.StakeAmount,
			PlantedAt:             p.PlantedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].FarmerID.String() < rows[j].FarmerID.String()
	})
	return rows, nil
}

func (s *fakeStore) FailBlockOperation(_ context.Context, blockIndex uint32, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[blockIndex] = message
	if op, ok := s.ops[blockIndex]; ok {
		op.Status = pooldb.OpFailed
	}
	return true, nil
}

func (s *fakeStore) FarmersForFundingCheck(context.Context, int) ([]pooldb.Farmer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pooldb.Farmer(nil), s.fundingDue...), nil
}

func (s *fakeStore) SetFarmerFunding(_ context.Context, id uuid.UUID, balance kale.Stroops, funded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fundingSet[id] = fundingUpdate{balance, funded}
	return nil
}

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) plantingsOf(blockIndex uint32) []pooldb.Planting {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pooldb.Planting(nil), s.plantings[blockIndex]...)
}

type plantCall struct {
	secret string
	index  uint32
	stake  kale.Stroops
	at     time.Time
}

type fakeChain struct {
	mu       sync.Mutex
	plantErr map[string]error // keyed by signing secret
	plants   []plantCall
	fundings map[string]*chain.Funding // keyed by account address
	seq      int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		plantErr: make(map[string]error),
		fundings: make(map[string]*chain.Funding),
	}
}

func (f *fakeChain) Head(context.Context) (*chain.HeadInfo, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeChain) Plant(_ context.Context, secret string, index uint32, stake kale.Stroops) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.plantErr[secret]; err != nil {
		return nil, err
	}
	f.plants = append(f.plants, plantCall{secret, index, stake, time.Now()})
	f.seq++
	return &chain.Receipt{TxHash: fmt.Sprintf("plant-%d", f.seq), Ledger: uint32(f.seq)}, nil
}

func (f *fakeChain) Work(context.Context, string, uint64, string) (*chain.Receipt, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeChain) Harvest(context.Context, string, uint32) (*chain.HarvestResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeChain) Transfer(context.Context, string, kale.Address, kale.Stroops) (*chain.Receipt, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeChain) CheckFunding(_ context.Context, acc kale.Address) (*chain.Funding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if funding, ok := f.fundings[acc.String()]; ok {
		return funding, nil
	}
	return &chain.Funding{}, nil
}

func (f *fakeChain) Health(context.Context) error { return nil }

func (f *fakeChain) plantCalls() []plantCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]plantCall(nil), f.plants...)
}

type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	notes []*executor.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n *executor.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := *n
	cp.PlantedFarmers = append([]executor.PlantedFarmer(nil), n.PlantedFarmers...)
	f.notes = append(f.notes, &cp)
	return nil
}

func (f *fakeNotifier) notifications() []*executor.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*executor.Notification(nil), f.notes...)
}

// newTestDiscoverer builds a discoverer without starting its loops, so tests
// drive the steps directly.
func newTestDiscoverer(t *testing.T, store *fakeStore, ch chain.Adapter, notifier Notifier) *Discoverer {
	ks, err := wallet.NewKeystore("unit-test-master-key")
	require.NoError(t, err)
	d := &Discoverer{
		store:        store,
		chain:        ch,
		keys:         ks,
		notifier:     notifier,
		health:       health.New(0),
		poolerID:     uuid.New(),
		pollInterval: defaultPollInterval,
		plantAge:     time.Duration(kale.PlantAge) * time.Second,
		plantCutoff:  time.Duration(kale.PlantCutoff) * time.Second,
		concurrency:  kale.PlantConcurrency,
		baseStake:    kale.DefaultBaseStake,
		queue:        make(chan *chain.HeadInfo, blockQueueDepth),
	}
	d.keypairs, _ = cache.NewLRU(16)
	d.ctx, d.cancel = context.WithCancel(context.Background())
	t.Cleanup(d.cancel)
	return d
}

// addFarmer seeds one eligible farmer and returns its id and keypair.
func addFarmer(t *testing.T, d *Discoverer, store *fakeStore, stakeBps int, balance kale.Stroops) (uuid.UUID, *wallet.Keypair) {
	kp, err := wallet.Generate()
	require.NoError(t, err)
	sealed, err := d.keys.Seal(kp)
	require.NoError(t, err)

	id := uuid.New()
	store.mu.Lock()
	defer store.mu.Unlock()
	store.eligible = append(store.eligible, pooldb.EligibleFarmer{
		ID:                    id,
		CustodialPublicKey:    kp.Address().String(),
		CustodialSecretSealed: sealed,
		CurrentBalance:        balance,
		ContractID:            uuid.New(),
		PoolerID:              d.poolerID,
		StakeBps:              stakeBps,
		HarvestInterval:       2,
	})
	store.sealedByFarmer[id] = sealed
	return id, kp
}

func plantableHead(index uint32, ageSeconds int64) *chain.HeadInfo {
	return &chain.HeadInfo{
		Index:     index,
		Entropy:   testEntropy,
		Timestamp: time.Now().Unix() - ageSeconds,
		Plantable: true,
		MinZeros:  4,
		MaxZeros:  8,
	}
}

func TestPlantBurstIsolatesFailures(t *testing.T) {
	store := newFakeStore()
	ch := newFakeChain()
	notifier := &fakeNotifier{}
	d := newTestDiscoverer(t, store, ch, notifier)

	idA, _ := addFarmer(t, d, store, 5000, 200*kale.StroopsPerKale)
	idB, kpB := addFarmer(t, d, store, 5000, 200*kale.StroopsPerKale)
	idC, _ := addFarmer(t, d, store, 5000, 1000) // stake clamps to balance
	ch.plantErr[kpB.Seed()] = chain.Errorf(chain.KindInsufficientFunds, "account underfunded")

	head := plantableHead(42, 31)
	d.discover(d.ctx, head)
	require.Len(t, d.queue, 1)
	d.processBlock(d.ctx, <-d.queue)

	// Farmer B's failure must not disturb A and C.
	stakeA := kale.Stroops(50 * kale.StroopsPerKale)
	rows := store.plantingsOf(42)
	require.Len(t, rows, 3)
	byFarmer := make(map[uuid.UUID]pooldb.Planting, len(rows))
	for _, p := range rows {
		byFarmer[p.FarmerID] = p
	}
	assert.Equal(t, pooldb.RecordSuccess, byFarmer[idA].Status)
	assert.Equal(t, stakeA, byFarmer[idA].StakeAmount)
	assert.NotNil(t, byFarmer[idA].TransactionHash)
	assert.Equal(t, pooldb.RecordFailed, byFarmer[idB].Status)
	require.NotNil(t, byFarmer[idB].ErrorMessage)
	assert.Contains(t, *byFarmer[idB].ErrorMessage, "underfunded")
	assert.Equal(t, pooldb.RecordSuccess, byFarmer[idC].Status)
	assert.Equal(t, kale.Stroops(1000), byFarmer[idC].StakeAmount)

	assert.Equal(t, plantTotals{total: 3, ok: 2, staked: stakeA + 1000}, store.completions[42])
	assert.Equal(t, pooldb.OpPlantingCompleted, store.ops[42].Status)

	// The executor hears about exactly the planted farmers.
	notes := notifier.notifications()
	require.Len(t, notes, 1)
	n := notes[0]
	assert.Equal(t, uint32(42), n.BlockIndex)
	assert.Equal(t, testEntropy, n.Entropy)
	assert.Equal(t, head.Timestamp, n.BlockTimestamp)
	require.Len(t, n.PlantedFarmers, 2)

	want := []uuid.UUID{idA, idC}
	sort.Slice(want, func(i, j int) bool { return want[i].String() < want[j].String() })
	got := []uuid.UUID{n.PlantedFarmers[0].FarmerID, n.PlantedFarmers[1].FarmerID}
	assert.Equal(t, want, got)
	for _, pf := range n.PlantedFarmers {
		assert.Equal(t, store.sealedByFarmer[pf.FarmerID], pf.CustodialSecretKey)
		assert.False(t, pf.PlantingTime.IsZero())
		switch pf.FarmerID {
		case idA:
			assert.Equal(t, "500000000", pf.StakeAmount)
		case idC:
			assert.Equal(t, "1000", pf.StakeAmount)
		}
	}
}

func TestRediscoveryRenotifiesPlantedBlock(t *testing.T) {
	store := newFakeStore()
	ch := newFakeChain()
	notifier := &fakeNotifier{}
	d := newTestDiscoverer(t, store, ch, notifier)

	// A previous run planted block 7 but never reached the executor.
	farmerID := uuid.New()
	sealed := "sealed-secret"
	store.sealedByFarmer[farmerID] = sealed
	opID := uuid.New()
	ts := time.Now().Unix() - 40
	store.ops[7] = &pooldb.BlockOperation{
		ID:             opID,
		BlockIndex:     7,
		Status:         pooldb.OpPlantingCompleted,
		Entropy:        testEntropy.String(),
		BlockTimestamp: ts,
	}
	store.plantings[7] = []pooldb.Planting{{
		BlockIndex:      7,
		FarmerID:        farmerID,
		CustodialWallet: "GWALLET",
		StakeAmount:     123,
		Status:          pooldb.RecordSuccess,
		PlantedAt:       time.Now().Add(-time.Minute),
	}}

	head := plantableHead(7, 40)
	head.Timestamp = ts
	d.discover(d.ctx, head)
	d.goes.Wait()

	assert.Empty(t, d.queue)
	assert.Empty(t, ch.plantCalls())

	notes := notifier.notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, uint32(7), notes[0].BlockIndex)
	assert.Equal(t, ts, notes[0].BlockTimestamp)
	require.Len(t, notes[0].PlantedFarmers, 1)
	assert.Equal(t, farmerID, notes[0].PlantedFarmers[0].FarmerID)
	assert.Equal(t, sealed, notes[0].PlantedFarmers[0].CustodialSecretKey)
	assert.Equal(t, "123", notes[0].PlantedFarmers[0].StakeAmount)

	// The operation id never changes across discoveries.
	assert.Equal(t, opID, store.ops[7].ID)
}

func TestRediscoverySkipsSettledBlock(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	d := newTestDiscoverer(t, store, newFakeChain(), notifier)

	store.ops[9] = &pooldb.BlockOperation{
		ID:         uuid.New(),
		BlockIndex: 9,
		Status:     pooldb.OpCompleted,
	}

	d.discover(d.ctx, plantableHead(9, 10))
	d.goes.Wait()

	assert.Empty(t, d.queue)
	assert.Empty(t, notifier.notifications())
}

func TestNoEligibleFarmersCompletesBlock(t *testing.T) {
	store := newFakeStore()
	ch := newFakeChain()
	notifier := &fakeNotifier{}
	d := newTestDiscoverer(t, store, ch, notifier)

	head := plantableHead(5, 31)
	d.discover(d.ctx, head)
	d.processBlock(d.ctx, <-d.queue)

	assert.Equal(t, []uint32{5}, store.noFarmers)
	assert.Empty(t, ch.plantCalls())
	assert.Empty(t, notifier.notifications())
	assert.Zero(t, store.claims[5])
}

func TestPlantWindowMissed(t *testing.T) {
	store := newFakeStore()
	ch := newFakeChain()
	d := newTestDiscoverer(t, store, ch, &fakeNotifier{})
	addFarmer(t, d, store, 5000, 10*kale.StroopsPerKale)

	head := plantableHead(6, 120) // past the cutoff
	head.Plantable = false
	d.discover(d.ctx, head)
	d.processBlock(d.ctx, <-d.queue)

	assert.Equal(t, "plant window missed", store.failures[6])
	assert.Empty(t, ch.plantCalls())
	assert.Zero(t, store.claims[6])
}

func TestPlantWaitsForWindow(t *testing.T) {
	store := newFakeStore()
	ch := newFakeChain()
	d := newTestDiscoverer(t, store, ch, &fakeNotifier{})
	d.plantAge = time.Second
	addFarmer(t, d, store, 10_000, 10*kale.StroopsPerKale)

	head := plantableHead(8, 0)
	head.Timestamp = time.Now().Unix() + 1 // age stays zero until the block starts
	head.Plantable = false

	start := time.Now()
	d.discover(d.ctx, head)
	d.processBlock(d.ctx, <-d.queue)

	calls := ch.plantCalls()
	require.Len(t, calls, 1)
	assert.GreaterOrEqual(t, calls[0].at.Sub(start), d.plantAge)
	assert.Equal(t, uint32(8), calls[0].index)
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	store := newFakeStore()
	d := newTestDiscoverer(t, store, newFakeChain(), &fakeNotifier{})

	for idx := uint32(1); idx <= uint32(blockQueueDepth)+2; idx++ {
		store.ops[idx] = &pooldb.BlockOperation{ID: uuid.New(), BlockIndex: idx, Status: pooldb.OpDiscovered}
		d.enqueue(plantableHead(idx, 5))
	}

	assert.Equal(t, "plant queue overflow", store.failures[1])
	assert.Equal(t, "plant queue overflow", store.failures[2])

	var queued []uint32
	for len(d.queue) > 0 {
		queued = append(queued, (<-d.queue).Index)
	}
	assert.Equal(t, []uint32{3, 4, 5, 6}, queued)
}

func TestCheckFundingUpdatesFarmers(t *testing.T) {
	store := newFakeStore()
	ch := newFakeChain()
	d := newTestDiscoverer(t, store, ch, &fakeNotifier{})

	kp, err := wallet.Generate()
	require.NoError(t, err)
	goodID, badID := uuid.New(), uuid.New()
	store.fundingDue = []pooldb.Farmer{
		{ID: badID, CustodialPublicKey: "not-a-wallet"},
		{ID: goodID, CustodialPublicKey: kp.Address().String()},
	}
	ch.fundings[kp.Address().String()] = &chain.Funding{Balance: 3 * kale.StroopsPerKale, IsFunded: true}

	d.checkFunding(d.ctx)

	require.Contains(t, store.fundingSet, goodID)
	assert.Equal(t, fundingUpdate{3 * kale.StroopsPerKale, true}, store.fundingSet[goodID])
	assert.NotContains(t, store.fundingSet, badID)
}
