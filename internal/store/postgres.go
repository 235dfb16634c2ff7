package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tablemaster-pos/engine/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres stores the engine's documents as JSONB rows. Orders get a
// version column checked on save, which is what turns the old last-write-wins
// full-collection replace into per-record optimistic concurrency.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate brings the schema up to date. Safe to run on every start.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// --- OrderStore ---

func (p *Postgres) GetOrder(ctx context.Context, id string) (model.Order, error) {
	var doc []byte
	var version int64
	err := p.pool.QueryRow(ctx,
		`SELECT doc, version FROM orders WHERE id = $1`, id).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}
	return decodeOrder(doc, version)
}

func (p *Postgres) ListOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := p.pool.Query(ctx, `SELECT doc, version FROM orders ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		var doc []byte
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o, err := decodeOrder(doc, version)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	o.Version = 1
	doc, err := json.Marshal(o)
	if err != nil {
		return model.Order{}, fmt.Errorf("encode order: %w", err)
	}
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO orders (id, user_id, created_at, version, doc)
		 VALUES ($1, $2, $3, 1, $4)
		 ON CONFLICT (id) DO NOTHING`,
		o.ID, o.UserID, o.CreatedAt, doc)
	if err != nil {
		return model.Order{}, fmt.Errorf("create order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Order{}, fmt.Errorf("%w: order %s", ErrDuplicateID, o.ID)
	}
	return o, nil
}

func (p *Postgres) SaveOrder(ctx context.Context, o model.Order) (model.Order, error) {
	expected := o.Version
	o.Version = expected + 1
	doc, err := json.Marshal(o)
	if err != nil {
		return model.Order{}, fmt.Errorf("encode order: %w", err)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE orders SET doc = $1, user_id = $2, version = version + 1
		 WHERE id = $3 AND version = $4`,
		doc, o.UserID, o.ID, expected)
	if err != nil {
		return model.Order{}, fmt.Errorf("save order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or concurrently bumped; disambiguate for the caller.
		var exists bool
		if err := p.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
			return model.Order{}, fmt.Errorf("save order: %w", err)
		}
		if !exists {
			return model.Order{}, fmt.Errorf("%w: order %s", ErrNotFound, o.ID)
		}
		return model.Order{}, fmt.Errorf("%w: order %s", ErrVersionConflict, o.ID)
	}
	return o, nil
}

func (p *Postgres) CountOrdersForUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1 AND created_at >= $2`,
		userID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

// --- StockStore ---

func (p *Postgres) ListStockItems(ctx context.Context) ([]model.StockItem, error) {
	rows, err := p.pool.Query(ctx, `SELECT doc FROM stock_items`)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	defer rows.Close()

	var out []model.StockItem
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		var s model.StockItem
		if err := json.Unmarshal(doc, &s); err != nil {
			return nil, fmt.Errorf("decode stock item: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveStockItems(ctx context.Context, items []model.StockItem) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, s := range items {
		doc, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode stock item: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO stock_items (id, doc) VALUES ($1, $2)
			 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
			s.ID, doc); err != nil {
			return fmt.Errorf("save stock item: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// --- UserStore ---

func (p *Postgres) GetUser(ctx context.Context, id string) (model.User, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM users WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	var u model.User
	if err := json.Unmarshal(doc, &u); err != nil {
		return model.User{}, fmt.Errorf("decode user: %w", err)
	}
	return u, nil
}

func (p *Postgres) SaveUser(ctx context.Context, u model.User) error {
	doc, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO users (id, doc) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
		u.ID, doc)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// --- RoomStockStore ---

func (p *Postgres) GetRoomStock(ctx context.Context, roomNumber string) ([]model.RoomStockItem, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT room_number, menu_item_id, quantity FROM room_stock WHERE room_number = $1`,
		roomNumber)
	if err != nil {
		return nil, fmt.Errorf("get room stock: %w", err)
	}
	defer rows.Close()

	var out []model.RoomStockItem
	for rows.Next() {
		var it model.RoomStockItem
		if err := rows.Scan(&it.RoomNumber, &it.MenuItemID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan room stock: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveRoomStock(ctx context.Context, roomNumber string, items []model.RoomStockItem) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM room_stock WHERE room_number = $1`, roomNumber); err != nil {
		return fmt.Errorf("clear room stock: %w", err)
	}
	for _, it := range items {
		if _, err := tx.Exec(ctx,
			`INSERT INTO room_stock (room_number, menu_item_id, quantity) VALUES ($1, $2, $3)`,
			roomNumber, it.MenuItemID, it.Quantity); err != nil {
			return fmt.Errorf("save room stock: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// --- PrinterStore / SettingsStore ---

func (p *Postgres) ListPrinterSettings(ctx context.Context) ([]model.PrinterSetting, error) {
	rows, err := p.pool.Query(ctx, `SELECT doc FROM printer_settings`)
	if err != nil {
		return nil, fmt.Errorf("list printers: %w", err)
	}
	defer rows.Close()

	var out []model.PrinterSetting
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan printer: %w", err)
		}
		var ps model.PrinterSetting
		if err := json.Unmarshal(doc, &ps); err != nil {
			return nil, fmt.Errorf("decode printer: %w", err)
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

func (p *Postgres) GetSettings(ctx context.Context) (model.Settings, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT doc FROM general_settings WHERE id = 1`).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Settings{}, nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	var s model.Settings
	if err := json.Unmarshal(doc, &s); err != nil {
		return model.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

func decodeOrder(doc []byte, version int64) (model.Order, error) {
	var o model.Order
	if err := json.Unmarshal(doc, &o); err != nil {
		return model.Order{}, fmt.Errorf("decode order: %w", err)
	}
	o.Version = version
	return o, nil
}
