package store

import (
	"context"
	"errors"
	"time"

	"github.com/tablemaster-pos/engine/internal/model"
)

// Errors shared by every store implementation.
var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicateID     = errors.New("record already exists")
	ErrVersionConflict = errors.New("record was modified concurrently")
)

// OrderStore persists orders one record at a time. SaveOrder checks the
// order's Version against the stored one and fails with ErrVersionConflict
// on mismatch, so concurrent sessions cannot silently overwrite each other.
type OrderStore interface {
	GetOrder(ctx context.Context, id string) (model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
	CreateOrder(ctx context.Context, o model.Order) (model.Order, error)
	SaveOrder(ctx context.Context, o model.Order) (model.Order, error)
	CountOrdersForUserSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// StockStore holds storeroom stock with menu-item mappings.
type StockStore interface {
	ListStockItems(ctx context.Context) ([]model.StockItem, error)
	SaveStockItems(ctx context.Context, items []model.StockItem) error
}

// UserStore holds the account slice the engine touches (loyalty balance).
type UserStore interface {
	GetUser(ctx context.Context, id string) (model.User, error)
	SaveUser(ctx context.Context, u model.User) error
}

// RoomStockStore holds per-room minibar stock for in-room orders.
type RoomStockStore interface {
	GetRoomStock(ctx context.Context, roomNumber string) ([]model.RoomStockItem, error)
	SaveRoomStock(ctx context.Context, roomNumber string, items []model.RoomStockItem) error
}

// PrinterStore is the printer registry collaborator.
type PrinterStore interface {
	ListPrinterSettings(ctx context.Context) ([]model.PrinterSetting, error)
}

// SettingsStore returns the general-settings snapshot.
type SettingsStore interface {
	GetSettings(ctx context.Context) (model.Settings, error)
}
