package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/bso/internal/release"
	"github.com/google/uuid"
)

// ChildOrder is a sales order held by Memory.
type ChildOrder struct {
	ID     string
	Header ChildOrderHeader
	Lines  []ChildOrderLine
}

type memoryState struct {
	orders   map[string]*release.BlanketOrder
	inactive map[string]map[string]bool
	children map[string]ChildOrder
	releases []ReleaseEntry
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		orders:   make(map[string]*release.BlanketOrder, len(s.orders)),
		inactive: make(map[string]map[string]bool, len(s.inactive)),
		children: make(map[string]ChildOrder, len(s.children)),
		releases: append([]ReleaseEntry(nil), s.releases...),
	}
	for id, o := range s.orders {
		c.orders[id] = o.Clone()
	}
	for id, lines := range s.inactive {
		m := make(map[string]bool, len(lines))
		for l, v := range lines {
			m[l] = v
		}
		c.inactive[id] = m
	}
	for id, ch := range s.children {
		c.children[id] = ch
	}
	return c
}

// Memory is an in-process Store. Orders are copied on the way in and out, so
// callers never share state with the store.
type Memory struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	state memoryState
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{state: memoryState{
		orders:   make(map[string]*release.BlanketOrder),
		inactive: make(map[string]map[string]bool),
		children: make(map[string]ChildOrder),
	}}
}

// PutOrder adds or replaces a blanket order.
func (m *Memory) PutOrder(order *release.BlanketOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.orders[order.ID] = order.Clone()
}

// DeactivateLine marks a line inactive. Inactive lines are hidden from
// LoadOrder and cannot be saved.
func (m *Memory) DeactivateLine(orderID, lineID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.inactive[orderID] == nil {
		m.state.inactive[orderID] = make(map[string]bool)
	}
	m.state.inactive[orderID][lineID] = true
}

// ChildOrder returns a created sales order by ID.
func (m *Memory) ChildOrder(id string) (ChildOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.children[id]
	return c, ok
}

func (m *Memory) LoadOrder(_ context.Context, id string) (*release.BlanketOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.state.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	order := stored.Clone()
	order.Lines = order.Lines[:0]
	for _, l := range stored.Lines {
		if !m.state.inactive[id][l.ID] {
			order.Lines = append(order.Lines, l)
		}
	}
	return order, nil
}

func (m *Memory) SaveOrder(_ context.Context, order *release.BlanketOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.state.orders[order.ID]
	if !ok {
		return ErrOrderNotFound
	}

	updated := stored.Clone()
	for _, l := range order.Lines {
		target := updated.Line(l.ID)
		if target == nil || m.state.inactive[order.ID][l.ID] {
			return &release.StaleLineError{OrderID: order.ID, LineID: l.ID}
		}
		target.ReleasedQuantity = l.ReleasedQuantity
		target.RemainingQuantity = l.RemainingQuantity
	}
	updated.Status = order.Status
	m.state.orders[order.ID] = updated
	return nil
}

func (m *Memory) CreateChildOrder(_ context.Context, header ChildOrderHeader, lines []ChildOrderLine) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.state.children[id] = ChildOrder{
		ID:     id,
		Header: header,
		Lines:  append([]ChildOrderLine(nil), lines...),
	}
	return id, nil
}

func (m *Memory) RecordRelease(_ context.Context, entry ReleaseEntry) (ReleaseEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.state.releases = append(m.state.releases, entry)
	return entry, nil
}

func (m *Memory) ListReleases(_ context.Context, orderID string, limit int) ([]ReleaseEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ReleaseEntry
	for i := len(m.state.releases) - 1; i >= 0; i-- {
		if e := m.state.releases[i]; e.BlanketOrderID == orderID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InTx runs fn against the store and restores the previous state if fn
// fails. Transactions are serialized against each other but not isolated
// from plain calls made outside them.
func (m *Memory) InTx(_ context.Context, fn func(Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.state.clone()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}
