package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/card-fund-service/internal/model"
)

// Memory is an in-process Store. Each Update works on a private copy of the state and
// swaps it in on success, so a failed unit of work leaves nothing behind.
type Memory struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	system    *model.System
	channels  map[string]model.PartnerChannel
	funds     map[string]model.CardFund
	index     map[string]string
	allowlist map[string]model.AllowlistEntry
	pending   map[string]model.PendingWithdrawal
	submitted map[string]model.LedgerSubmission
	proofs    map[string]time.Time
	events    []model.Event
}

func NewMemory() *Memory {
	return &Memory{state: &memState{
		channels:  make(map[string]model.PartnerChannel),
		funds:     make(map[string]model.CardFund),
		index:     make(map[string]string),
		allowlist: make(map[string]model.AllowlistEntry),
		pending:   make(map[string]model.PendingWithdrawal),
		submitted: make(map[string]model.LedgerSubmission),
		proofs:    make(map[string]time.Time),
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		channels:  maps.Clone(s.channels),
		funds:     maps.Clone(s.funds),
		index:     maps.Clone(s.index),
		allowlist: maps.Clone(s.allowlist),
		pending:   maps.Clone(s.pending),
		submitted: maps.Clone(s.submitted),
		proofs:    maps.Clone(s.proofs),
		events:    slices.Clone(s.events),
	}
	if s.system != nil {
		sys := *s.system
		c.system = &sys
	}
	return c
}

func (m *Memory) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	if err := fn(&memTx{state: next}); err != nil {
		return err
	}
	m.state = next
	return nil
}

func (m *Memory) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	snapshot := m.state.clone()
	m.mu.RUnlock()
	return fn(&memTx{state: snapshot, readOnly: true})
}

func (m *Memory) ListEvents(ctx context.Context, filter EventFilter) ([]*model.Event, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*model.Event
	for i := len(m.state.events) - 1; i >= 0; i-- {
		e := m.state.events[i]
		if filter.matches(&e) {
			matched = append(matched, copyEvent(&e))
		}
	}

	page, perPage := filter.normalized()
	total := len(matched)
	start := (page - 1) * perPage
	if start >= total {
		return []*model.Event{}, total, nil
	}
	end := min(start+perPage, total)
	return matched[start:end], total, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

type memTx struct {
	state    *memState
	readOnly bool
}

var errReadOnly = errors.New("write in read-only transaction")

func (t *memTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *memTx) System(ctx context.Context) (*model.System, error) {
	if t.state.system == nil {
		return nil, ErrNotFound
	}
	sys := *t.state.system
	return &sys, nil
}

func (t *memTx) PutSystem(ctx context.Context, sys *model.System) error {
	if err := t.writable(); err != nil {
		return err
	}
	cp := *sys
	t.state.system = &cp
	return nil
}

func (t *memTx) Channel(ctx context.Context, address string) (*model.PartnerChannel, error) {
	ch, ok := t.state.channels[address]
	if !ok {
		return nil, ErrNotFound
	}
	ch.Assets = slices.Clone(ch.Assets)
	return &ch, nil
}

func (t *memTx) ChannelByName(ctx context.Context, name string) (*model.PartnerChannel, error) {
	for address, ch := range t.state.channels {
		if ch.Name == name {
			return t.Channel(ctx, address)
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) PutChannel(ctx context.Context, ch *model.PartnerChannel) error {
	if err := t.writable(); err != nil {
		return err
	}
	for address, existing := range t.state.channels {
		if existing.Name == ch.Name && address != ch.Address {
			return fmt.Errorf("channel name %q: %w", ch.Name, ErrDuplicate)
		}
	}
	cp := *ch
	cp.Assets = slices.Clone(ch.Assets)
	t.state.channels[ch.Address] = cp
	return nil
}

func (t *memTx) DeleteChannel(ctx context.Context, address string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.channels[address]; !ok {
		return ErrNotFound
	}
	delete(t.state.channels, address)
	return nil
}

func (t *memTx) CardFund(ctx context.Context, address string) (*model.CardFund, error) {
	f, ok := t.state.funds[address]
	if !ok {
		return nil, ErrNotFound
	}
	f.Assets = slices.Clone(f.Assets)
	return &f, nil
}

func (t *memTx) PutCardFund(ctx context.Context, fund *model.CardFund) error {
	if err := t.writable(); err != nil {
		return err
	}
	cp := *fund
	cp.Assets = slices.Clone(fund.Assets)
	t.state.funds[fund.Address] = cp
	return nil
}

func (t *memTx) DeleteCardFund(ctx context.Context, address string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.funds[address]; !ok {
		return ErrNotFound
	}
	delete(t.state.funds, address)
	return nil
}

func (t *memTx) FundIndex(ctx context.Context, key string) (string, error) {
	address, ok := t.state.index[key]
	if !ok {
		return "", ErrNotFound
	}
	return address, nil
}

func (t *memTx) InsertFundIndex(ctx context.Context, key, address string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.index[key]; ok {
		return ErrDuplicate
	}
	t.state.index[key] = address
	return nil
}

func (t *memTx) DeleteFundIndex(ctx context.Context, key string) error {
	if err := t.writable(); err != nil {
		return err
	}
	delete(t.state.index, key)
	return nil
}

func (t *memTx) AllowlistEntry(ctx context.Context, asset string) (*model.AllowlistEntry, error) {
	e, ok := t.state.allowlist[asset]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (t *memTx) PutAllowlistEntry(ctx context.Context, entry *model.AllowlistEntry) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.allowlist[entry.Asset] = *entry
	return nil
}

func (t *memTx) DeleteAllowlistEntry(ctx context.Context, asset string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.allowlist[asset]; !ok {
		return ErrNotFound
	}
	delete(t.state.allowlist, asset)
	return nil
}

func (t *memTx) PendingWithdrawal(ctx context.Context, principal string) (*model.PendingWithdrawal, error) {
	p, ok := t.state.pending[principal]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) InsertPendingWithdrawal(ctx context.Context, pending *model.PendingWithdrawal) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.pending[pending.Principal]; ok {
		return ErrDuplicate
	}
	t.state.pending[pending.Principal] = *pending
	return nil
}

func (t *memTx) DeletePendingWithdrawal(ctx context.Context, principal string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.pending[principal]; !ok {
		return ErrNotFound
	}
	delete(t.state.pending, principal)
	return nil
}

func (t *memTx) LedgerSubmission(ctx context.Context, key string) (*model.LedgerSubmission, error) {
	sub, ok := t.state.submitted[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (t *memTx) PutLedgerSubmission(ctx context.Context, sub *model.LedgerSubmission) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.submitted[sub.Key] = *sub
	return nil
}

func (t *memTx) DeleteLedgerSubmission(ctx context.Context, key string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.submitted[key]; !ok {
		return ErrNotFound
	}
	delete(t.state.submitted, key)
	return nil
}

func (t *memTx) ConsumeFundingProof(ctx context.Context, reference string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.proofs[reference]; ok {
		return ErrDuplicate
	}
	t.state.proofs[reference] = time.Now().UTC()
	return nil
}

func (t *memTx) AppendEvent(ctx context.Context, event *model.Event) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.events = append(t.state.events, *copyEvent(event))
	return nil
}

func copyEvent(e *model.Event) *model.Event {
	cp := *e
	cp.Attributes = maps.Clone(e.Attributes)
	return &cp
}
