package order

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tablemaster-pos/engine/internal/enum"
	"github.com/tablemaster-pos/engine/internal/model"
	"github.com/tablemaster-pos/engine/internal/notify"
	"github.com/tablemaster-pos/engine/internal/store"
)

// --- store mocks ---

type mockOrderStore struct {
	GetOrderFunc                func(ctx context.Context, id string) (model.Order, error)
	ListOrdersFunc              func(ctx context.Context) ([]model.Order, error)
	CreateOrderFunc             func(ctx context.Context, o model.Order) (model.Order, error)
	SaveOrderFunc               func(ctx context.Context, o model.Order) (model.Order, error)
	CountOrdersForUserSinceFunc func(ctx context.Context, userID string, since time.Time) (int, error)
}

func (m *mockOrderStore) GetOrder(ctx context.Context, id string) (model.Order, error) {
	return m.GetOrderFunc(ctx, id)
}

func (m *mockOrderStore) ListOrders(ctx context.Context) ([]model.Order, error) {
	return m.ListOrdersFunc(ctx)
}

func (m *mockOrderStore) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	return m.CreateOrderFunc(ctx, o)
}

func (m *mockOrderStore) SaveOrder(ctx context.Context, o model.Order) (model.Order, error) {
	return m.SaveOrderFunc(ctx, o)
}

func (m *mockOrderStore) CountOrdersForUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	return m.CountOrdersForUserSinceFunc(ctx, userID, since)
}

type mockStockStore struct {
	ListStockItemsFunc func(ctx context.Context) ([]model.StockItem, error)
	SaveStockItemsFunc func(ctx context.Context, items []model.StockItem) error
}

func (m *mockStockStore) ListStockItems(ctx context.Context) ([]model.StockItem, error) {
	return m.ListStockItemsFunc(ctx)
}

func (m *mockStockStore) SaveStockItems(ctx context.Context, items []model.StockItem) error {
	return m.SaveStockItemsFunc(ctx, items)
}

type mockUserStore struct {
	GetUserFunc  func(ctx context.Context, id string) (model.User, error)
	SaveUserFunc func(ctx context.Context, u model.User) error
}

func (m *mockUserStore) GetUser(ctx context.Context, id string) (model.User, error) {
	return m.GetUserFunc(ctx, id)
}

func (m *mockUserStore) SaveUser(ctx context.Context, u model.User) error {
	return m.SaveUserFunc(ctx, u)
}

type mockRoomStockStore struct {
	GetRoomStockFunc  func(ctx context.Context, roomNumber string) ([]model.RoomStockItem, error)
	SaveRoomStockFunc func(ctx context.Context, roomNumber string, items []model.RoomStockItem) error
}

func (m *mockRoomStockStore) GetRoomStock(ctx context.Context, roomNumber string) ([]model.RoomStockItem, error) {
	return m.GetRoomStockFunc(ctx, roomNumber)
}

func (m *mockRoomStockStore) SaveRoomStock(ctx context.Context, roomNumber string, items []model.RoomStockItem) error {
	return m.SaveRoomStockFunc(ctx, roomNumber, items)
}

type mockSettingsStore struct {
	settings model.Settings
}

func (m *mockSettingsStore) GetSettings(_ context.Context) (model.Settings, error) {
	return m.settings, nil
}

// --- collaborator mocks ---

type mockKOT struct {
	enqueued []model.Order
	err      error
}

func (m *mockKOT) Enqueue(_ context.Context, o model.Order) error {
	m.enqueued = append(m.enqueued, o)
	return m.err
}

type mockMailer struct {
	sent []notify.Email
	err  error
}

func (m *mockMailer) Send(_ context.Context, e notify.Email) error {
	m.sent = append(m.sent, e)
	return m.err
}

type mockPlatform struct {
	sent    []model.Order
	updated []model.Order
	err     error
}

func (m *mockPlatform) SendOrder(_ context.Context, o model.Order) error {
	m.sent = append(m.sent, o)
	return m.err
}

func (m *mockPlatform) UpdateOrderStatus(_ context.Context, o model.Order) error {
	m.updated = append(m.updated, o)
	return m.err
}

type mockBroadcaster struct {
	updates []model.Order
}

func (m *mockBroadcaster) OrderUpdated(o model.Order) {
	m.updates = append(m.updates, o)
}

// --- fixtures ---

// fixture bundles a service whose stores are backed by a single mutable
// order plus recording collaborators.
type fixture struct {
	svc      *Service
	stored   *model.Order
	saves    *[]model.Order
	stock    *[]model.StockItem
	users    map[string]*model.User
	kot      *mockKOT
	mailer   *mockMailer
	platform *mockPlatform
	events   *mockBroadcaster
}

func newFixture(stored model.Order, settings model.Settings) *fixture {
	f := &fixture{
		stored:   &stored,
		saves:    &[]model.Order{},
		stock:    &[]model.StockItem{},
		users:    map[string]*model.User{},
		kot:      &mockKOT{},
		mailer:   &mockMailer{},
		platform: &mockPlatform{},
		events:   &mockBroadcaster{},
	}

	orders := &mockOrderStore{
		GetOrderFunc: func(_ context.Context, id string) (model.Order, error) {
			return *f.stored, nil
		},
		SaveOrderFunc: func(_ context.Context, o model.Order) (model.Order, error) {
			o.Version++
			*f.stored = o
			*f.saves = append(*f.saves, o)
			return o, nil
		},
		CreateOrderFunc: func(_ context.Context, o model.Order) (model.Order, error) {
			o.Version = 1
			*f.stored = o
			*f.saves = append(*f.saves, o)
			return o, nil
		},
		CountOrdersForUserSinceFunc: func(_ context.Context, _ string, _ time.Time) (int, error) {
			return 0, nil
		},
	}
	stock := &mockStockStore{
		ListStockItemsFunc: func(_ context.Context) ([]model.StockItem, error) {
			return *f.stock, nil
		},
		SaveStockItemsFunc: func(_ context.Context, items []model.StockItem) error {
			*f.stock = items
			return nil
		},
	}
	users := &mockUserStore{
		GetUserFunc: func(_ context.Context, id string) (model.User, error) {
			if u, ok := f.users[id]; ok {
				return *u, nil
			}
			return model.User{}, store.ErrNotFound
		},
		SaveUserFunc: func(_ context.Context, u model.User) error {
			f.users[u.ID] = &u
			return nil
		},
	}
	roomStock := &mockRoomStockStore{
		GetRoomStockFunc: func(_ context.Context, _ string) ([]model.RoomStockItem, error) {
			return nil, nil
		},
		SaveRoomStockFunc: func(_ context.Context, _ string, _ []model.RoomStockItem) error {
			return nil
		},
	}

	f.svc = NewService(Deps{
		Orders:    orders,
		Stock:     stock,
		Users:     users,
		RoomStock: roomStock,
		Settings:  &mockSettingsStore{settings: settings},
		KOT:       f.kot,
		Mailer:    f.mailer,
		Platform:  f.platform,
		Events:    f.events,
		Log:       zerolog.Nop(),
	})
	f.svc.now = func() time.Time { return fixedNow }
	f.svc.newID = func() string { return "ORD-test" }
	return f
}

var fixedNow = time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)

func pendingOrder() model.Order {
	return model.Order{
		ID:           "ORD-1",
		CustomerName: "Asha",
		Items: []model.OrderItem{
			{MenuItemID: "menu-1", Name: "Masala Dosa", Quantity: 2, Price: decimal.NewFromInt(120)},
		},
		Total:     decimal.NewFromInt(240),
		Status:    enum.OrderStatusPending,
		OrderType: enum.OrderTypeWalkIn,
		CreatedAt: fixedNow.Add(-time.Hour),
		History: []model.OrderHistoryEvent{
			{Status: enum.OrderStatusPending, Timestamp: fixedNow.Add(-time.Hour), Notes: "order placed"},
		},
		Version: 1,
	}
}
