package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tablemaster-pos/engine/internal/model"
)

// Memory is an in-process store used by tests and single-node dev setups.
// It applies the same per-order version check as the postgres store.
type Memory struct {
	mu        sync.RWMutex
	orders    map[string]model.Order
	stock     []model.StockItem
	users     map[string]model.User
	roomStock map[string][]model.RoomStockItem
	printers  []model.PrinterSetting
	settings  model.Settings
}

func NewMemory() *Memory {
	return &Memory{
		orders:    make(map[string]model.Order),
		users:     make(map[string]model.User),
		roomStock: make(map[string][]model.RoomStockItem),
	}
}

// --- OrderStore ---

func (m *Memory) GetOrder(_ context.Context, id string) (model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return cloneOrder(o), nil
}

func (m *Memory) ListOrders(_ context.Context) ([]model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

func (m *Memory) CreateOrder(_ context.Context, o model.Order) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return model.Order{}, fmt.Errorf("%w: order %s", ErrDuplicateID, o.ID)
	}
	o.Version = 1
	m.orders[o.ID] = cloneOrder(o)
	return o, nil
}

func (m *Memory) SaveOrder(_ context.Context, o model.Order) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok {
		return model.Order{}, fmt.Errorf("%w: order %s", ErrNotFound, o.ID)
	}
	if cur.Version != o.Version {
		return model.Order{}, fmt.Errorf("%w: order %s (have v%d, got v%d)", ErrVersionConflict, o.ID, cur.Version, o.Version)
	}
	o.Version++
	m.orders[o.ID] = cloneOrder(o)
	return o, nil
}

func (m *Memory) CountOrdersForUserSince(_ context.Context, userID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, o := range m.orders {
		if o.UserID == userID && !o.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// --- StockStore ---

func (m *Memory) ListStockItems(_ context.Context) ([]model.StockItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.StockItem, len(m.stock))
	copy(out, m.stock)
	return out, nil
}

func (m *Memory) SaveStockItems(_ context.Context, items []model.StockItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock = make([]model.StockItem, len(items))
	copy(m.stock, items)
	return nil
}

// --- UserStore ---

func (m *Memory) GetUser(_ context.Context, id string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return u, nil
}

func (m *Memory) SaveUser(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

// --- RoomStockStore ---

func (m *Memory) GetRoomStock(_ context.Context, roomNumber string) ([]model.RoomStockItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := m.roomStock[roomNumber]
	out := make([]model.RoomStockItem, len(items))
	copy(out, items)
	return out, nil
}

func (m *Memory) SaveRoomStock(_ context.Context, roomNumber string, items []model.RoomStockItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]model.RoomStockItem, len(items))
	copy(cp, items)
	m.roomStock[roomNumber] = cp
	return nil
}

// --- PrinterStore / SettingsStore ---

func (m *Memory) ListPrinterSettings(_ context.Context) ([]model.PrinterSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.PrinterSetting, len(m.printers))
	copy(out, m.printers)
	return out, nil
}

func (m *Memory) GetSettings(_ context.Context) (model.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings, nil
}

// SetPrinters and SetSettings seed fixture data.
func (m *Memory) SetPrinters(printers []model.PrinterSetting) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.printers = printers
}

func (m *Memory) SetSettings(s model.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
}

// cloneOrder deep-copies the mutable slices so callers cannot alias stored
// history or items.
func cloneOrder(o model.Order) model.Order {
	items := make([]model.OrderItem, len(o.Items))
	copy(items, o.Items)
	history := make([]model.OrderHistoryEvent, len(o.History))
	copy(history, o.History)
	o.Items = items
	o.History = history
	return o
}
