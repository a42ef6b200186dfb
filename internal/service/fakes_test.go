package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// In-memory store implementations backing the service tests. Mutation rules
// mirror the postgres stores: conditional updates fail with the idempotency
// errors, transfers are all-or-nothing.

// errStorage stands in for an infrastructure failure injected into a fake.
var errStorage = errors.New("storage unavailable")

var (
	_ domain.ProtocolStore  = (*memProtocol)(nil)
	_ domain.ArenaStore     = (*memArenas)(nil)
	_ domain.EntryStore     = (*memEntries)(nil)
	_ domain.WhitelistStore = (*memWhitelist)(nil)
	_ domain.Ledger         = (*memLedger)(nil)
	_ domain.AuditStore     = (*memAudit)(nil)
	_ domain.LockManager    = (*memLocks)(nil)
	_ domain.SignalBus      = (*memBus)(nil)
	_ domain.Oracle         = (*fakeOracle)(nil)
)

type memProtocol struct {
	mu     sync.Mutex
	st     domain.ProtocolState
	inited bool
}

func (m *memProtocol) Init(_ context.Context, st domain.ProtocolState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inited {
		return domain.ErrAlreadyExists
	}
	m.st = st
	m.inited = true
	return nil
}

func (m *memProtocol) Get(_ context.Context) (domain.ProtocolState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inited {
		return domain.ProtocolState{}, domain.ErrNotFound
	}
	return m.st, nil
}

func (m *memProtocol) Update(_ context.Context, st domain.ProtocolState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inited {
		return domain.ErrNotFound
	}
	m.st = st
	return nil
}

type statsKey struct {
	arenaID uint64
	asset   domain.AssetIndex
}

type memArenas struct {
	mu     sync.Mutex
	arenas map[uint64]domain.Arena
	stats  map[statsKey]domain.AssetStats

	// One-shot injected failures, consumed by the next matching call.
	failUpsert error
	failUpdate error
}

func newMemArenas() *memArenas {
	return &memArenas{
		arenas: make(map[uint64]domain.Arena),
		stats:  make(map[statsKey]domain.AssetStats),
	}
}

func (m *memArenas) Create(_ context.Context, a domain.Arena) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.arenas[a.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.arenas[a.ID] = a
	return nil
}

func (m *memArenas) Get(_ context.Context, id uint64) (domain.Arena, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.arenas[id]
	if !ok {
		return domain.Arena{}, domain.ErrNotFound
	}
	return a, nil
}

func (m *memArenas) Update(_ context.Context, a domain.Arena) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failUpdate; err != nil {
		m.failUpdate = nil
		return err
	}
	if _, ok := m.arenas[a.ID]; !ok {
		return domain.ErrNotFound
	}
	m.arenas[a.ID] = a
	return nil
}

func (m *memArenas) List(_ context.Context, opts domain.ListOpts) ([]domain.Arena, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Arena
	for _, a := range m.arenas {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *memArenas) ListByStatus(_ context.Context, status domain.ArenaStatus, opts domain.ListOpts) ([]domain.Arena, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Arena
	for _, a := range m.arenas {
		if a.Status == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *memArenas) ListTerminalBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Arena, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Arena
	for _, a := range m.arenas {
		if a.Status.Terminal() && !a.SettledAt.IsZero() && a.SettledAt.Before(cutoff) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SettledAt.Before(out[j].SettledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memArenas) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.arenas[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.arenas, id)
	for k := range m.stats {
		if k.arenaID == id {
			delete(m.stats, k)
		}
	}
	return nil
}

func (m *memArenas) UpsertAssetStats(_ context.Context, st domain.AssetStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failUpsert; err != nil {
		m.failUpsert = nil
		return err
	}
	m.stats[statsKey{st.ArenaID, st.Asset}] = st
	return nil
}

func (m *memArenas) GetAssetStats(_ context.Context, arenaID uint64, asset domain.AssetIndex) (domain.AssetStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[statsKey{arenaID, asset}]
	if !ok {
		return domain.AssetStats{}, domain.ErrNotFound
	}
	return st, nil
}

func (m *memArenas) ListAssetStats(_ context.Context, arenaID uint64) ([]domain.AssetStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AssetStats
	for k, st := range m.stats {
		if k.arenaID == arenaID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

type entryKey struct {
	arenaID     uint64
	participant string
}

type memEntries struct {
	mu      sync.Mutex
	entries map[entryKey]domain.Entry
}

func newMemEntries() *memEntries {
	return &memEntries{entries: make(map[entryKey]domain.Entry)}
}

func (m *memEntries) Create(_ context.Context, e domain.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entryKey{e.ArenaID, e.Participant}
	if _, ok := m.entries[k]; ok {
		return domain.ErrDuplicateEntry
	}
	m.entries[k] = e
	return nil
}

func (m *memEntries) Get(_ context.Context, arenaID uint64, participant string) (domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entryKey{arenaID, participant}]
	if !ok {
		return domain.Entry{}, domain.ErrNotFound
	}
	return e, nil
}

func (m *memEntries) GetBySlot(_ context.Context, arenaID uint64, slot uint8) (domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if k.arenaID == arenaID && e.Slot == slot {
			return e, nil
		}
	}
	return domain.Entry{}, domain.ErrNotFound
}

func (m *memEntries) ListByArena(_ context.Context, arenaID uint64) ([]domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Entry
	for k, e := range m.entries {
		if k.arenaID == arenaID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

func (m *memEntries) Delete(_ context.Context, arenaID uint64, participant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entryKey{arenaID, participant}
	if _, ok := m.entries[k]; !ok {
		return domain.ErrNotFound
	}
	delete(m.entries, k)
	return nil
}

func (m *memEntries) DeleteByArena(_ context.Context, arenaID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if k.arenaID == arenaID {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *memEntries) MarkStakeClaimed(_ context.Context, arenaID uint64, participant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entryKey{arenaID, participant}
	e, ok := m.entries[k]
	if !ok {
		return domain.ErrNotFound
	}
	if e.StakeClaimed {
		return domain.ErrAlreadyClaimed
	}
	e.StakeClaimed = true
	m.entries[k] = e
	return nil
}

func (m *memEntries) MarkFeeCollected(_ context.Context, arenaID uint64, participant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entryKey{arenaID, participant}
	e, ok := m.entries[k]
	if !ok {
		return domain.ErrNotFound
	}
	if e.FeeCollected {
		return domain.ErrFeeAlreadyCollected
	}
	e.FeeCollected = true
	m.entries[k] = e
	return nil
}

func (m *memEntries) ClaimLoserBit(_ context.Context, arenaID uint64, winner string, loserSlot uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entryKey{arenaID, winner}
	e, ok := m.entries[k]
	if !ok {
		return domain.ErrNotFound
	}
	if e.Claimed.Bit(loserSlot) {
		return domain.ErrAlreadyClaimed
	}
	e.Claimed = e.Claimed.Set(loserSlot)
	m.entries[k] = e
	return nil
}

type memWhitelist struct {
	mu     sync.Mutex
	assets map[domain.AssetIndex]domain.WhitelistedAsset
}

func newMemWhitelist() *memWhitelist {
	return &memWhitelist{assets: make(map[domain.AssetIndex]domain.WhitelistedAsset)}
}

func (m *memWhitelist) Upsert(_ context.Context, w domain.WhitelistedAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[w.Index] = w
	return nil
}

func (m *memWhitelist) Get(_ context.Context, index domain.AssetIndex) (domain.WhitelistedAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.assets[index]
	if !ok {
		return domain.WhitelistedAsset{}, domain.ErrAssetNotWhitelisted
	}
	return w, nil
}

func (m *memWhitelist) List(_ context.Context, activeOnly bool) ([]domain.WhitelistedAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WhitelistedAsset
	for _, w := range m.assets {
		if activeOnly && !w.Active {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *memWhitelist) Deactivate(_ context.Context, index domain.AssetIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.assets[index]
	if !ok {
		return domain.ErrAssetNotWhitelisted
	}
	w.Active = false
	m.assets[index] = w
	return nil
}

type memLedger struct {
	mu       sync.Mutex
	balances map[string]uint64
}

func newMemLedger() *memLedger {
	return &memLedger{balances: make(map[string]uint64)}
}

func (m *memLedger) Transfer(_ context.Context, from, to string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount == 0 {
		return nil
	}
	if m.balances[from] < amount {
		return fmt.Errorf("ledger: %s: %w", from, domain.ErrInsufficientFunds)
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}

func (m *memLedger) Balance(_ context.Context, account string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account], nil
}

func (m *memLedger) Deposit(_ context.Context, account string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] += amount
	return nil
}

func (m *memLedger) Withdraw(_ context.Context, account string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[account] < amount {
		return fmt.Errorf("ledger: %s: %w", account, domain.ErrInsufficientFunds)
	}
	m.balances[account] -= amount
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditEntry{
		ID:        int64(len(m.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *memAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *memAudit) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memAudit) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.AuditEntry
	var removed int64
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return removed, nil
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool

	// afterAcquire runs once after the next successful acquire, outside the
	// fake's mutex. Tests use it to interleave a concurrent mutation.
	afterAcquire func(key string)
}

func newMemLocks() *memLocks {
	return &memLocks{held: make(map[string]bool)}
}

func (m *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	if m.held[key] {
		m.mu.Unlock()
		return nil, domain.ErrLockHeld
	}
	m.held[key] = true
	hook := m.afterAcquire
	m.afterAcquire = nil
	m.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
	}, nil
}

type memBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{messages: make(map[string][][]byte)}
}

func (m *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[channel] = append(m.messages[channel], payload)
	return nil
}

func (m *memBus) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// fakeOracle serves fixed quotes keyed by feed id.
type fakeOracle struct {
	mu     sync.Mutex
	quotes map[string]domain.PriceQuote
	err    error
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{quotes: make(map[string]domain.PriceQuote)}
}

func (o *fakeOracle) setPrice(feedID string, price uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[feedID] = domain.PriceQuote{
		FeedID:      feedID,
		Price:       price,
		Expo:        -8,
		PublishedAt: time.Now().UTC(),
	}
}

func (o *fakeOracle) GetPrice(_ context.Context, asset domain.WhitelistedAsset, _ time.Duration) (domain.PriceQuote, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return domain.PriceQuote{}, o.err
	}
	q, ok := o.quotes[asset.FeedID]
	if !ok {
		return domain.PriceQuote{}, domain.ErrMissingPriceData
	}
	return q, nil
}
