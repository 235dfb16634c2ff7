package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tablemaster-pos/engine/internal/enum"
	"github.com/tablemaster-pos/engine/internal/model"
	"github.com/tablemaster-pos/engine/internal/notify"
	"github.com/tablemaster-pos/engine/internal/store"
)

// Errors returned by the lifecycle manager.
var (
	ErrUnknownStatus      = errors.New("unknown order status")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrOrderLocked        = errors.New("order is locked and no override PIN is configured")
	ErrInvalidPIN         = errors.New("override PIN does not match")
	ErrEmptyItems         = errors.New("items are required")
	ErrInvalidQuantity    = errors.New("quantity must be > 0")
	ErrMissingRoom        = errors.New("room number is required")
	ErrMissingUser        = errors.New("user is required")
	ErrInsufficientStock  = errors.New("insufficient room stock")
	ErrDailyLimitExceeded = errors.New("daily order limit reached")
)

// lockedStatuses are terminal: any further mutation needs the override PIN.
var lockedStatuses = map[string]bool{
	enum.OrderStatusCompleted: true,
	enum.OrderStatusCancelled: true,
}

// transitions is the forward state machine. Cancelled is reachable from any
// non-terminal state; PIN-authorized edits on locked orders bypass this map.
var transitions = map[string][]string{
	enum.OrderStatusPending: {
		enum.OrderStatusPreparing,
		enum.OrderStatusCancelled,
	},
	enum.OrderStatusPreparing: {
		enum.OrderStatusReadyForPickup,
		enum.OrderStatusOutForDelivery,
		enum.OrderStatusCancelled,
	},
	enum.OrderStatusReadyForPickup: {
		enum.OrderStatusCompleted,
		enum.OrderStatusCancelled,
	},
	enum.OrderStatusOutForDelivery: {
		enum.OrderStatusCompleted,
		enum.OrderStatusCancelled,
	},
}

// KOTDispatcher receives orders entering Preparing. Satisfied by *kot.Queue.
type KOTDispatcher interface {
	Enqueue(ctx context.Context, order model.Order) error
}

// PlatformNotifier mirrors order events to an external delivery platform.
// Best-effort: failures never roll back the local transition.
type PlatformNotifier interface {
	SendOrder(ctx context.Context, order model.Order) error
	UpdateOrderStatus(ctx context.Context, order model.Order) error
}

// Broadcaster pushes order changes to connected display screens.
// Satisfied by *ws.Hub.
type Broadcaster interface {
	OrderUpdated(order model.Order)
}

// Service drives orders through the lifecycle state machine and owns every
// side effect hanging off a transition.
type Service struct {
	orders    store.OrderStore
	stock     store.StockStore
	users     store.UserStore
	roomStock store.RoomStockStore
	settings  store.SettingsStore

	kot      KOTDispatcher
	mailer   notify.Mailer
	platform PlatformNotifier
	events   Broadcaster

	log   zerolog.Logger
	now   func() time.Time
	newID func() string
}

// Deps bundles the collaborators; optional ones (platform, events) may be nil.
type Deps struct {
	Orders    store.OrderStore
	Stock     store.StockStore
	Users     store.UserStore
	RoomStock store.RoomStockStore
	Settings  store.SettingsStore
	KOT       KOTDispatcher
	Mailer    notify.Mailer
	Platform  PlatformNotifier
	Events    Broadcaster
	Log       zerolog.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		orders:    d.Orders,
		stock:     d.Stock,
		users:     d.Users,
		roomStock: d.RoomStock,
		settings:  d.Settings,
		kot:       d.KOT,
		mailer:    d.Mailer,
		platform:  d.Platform,
		events:    d.Events,
		log:       d.Log,
		now:       time.Now,
		newID:     func() string { return "ORD-" + uuid.NewString()[:8] },
	}
}

// UpdateStatus moves an order to newStatus. Same-status calls are idempotent
// no-ops: no history entry, no side effect fires twice. The bool reports
// whether a transition actually happened, so callers can answer
// "already COMPLETED" instead of pretending a change occurred.
func (s *Service) UpdateStatus(ctx context.Context, orderID, newStatus, pin string) (model.Order, bool, error) {
	if !isKnownStatus(newStatus) {
		return model.Order{}, false, fmt.Errorf("%w: %q", ErrUnknownStatus, newStatus)
	}

	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return model.Order{}, false, fmt.Errorf("load settings: %w", err)
	}
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return model.Order{}, false, err
	}

	if o.Status == newStatus {
		// Re-requesting the current status must not deduct stock or award
		// points a second time.
		return o, false, nil
	}

	if lockedStatuses[o.Status] {
		if err := checkPIN(settings, pin); err != nil {
			return model.Order{}, false, err
		}
	} else if !transitionAllowed(o.Status, newStatus) {
		return model.Order{}, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, newStatus)
	}

	prev := o.Status
	o.Status = newStatus
	o.History = append(o.History, model.OrderHistoryEvent{
		Status:    newStatus,
		Timestamp: s.now(),
		Notes:     fmt.Sprintf("status changed from %s", prev),
	})

	saved, err := s.orders.SaveOrder(ctx, o)
	if err != nil {
		return model.Order{}, false, fmt.Errorf("persist order %s: %w", orderID, err)
	}

	if err := s.runTransitionEffects(ctx, settings, saved, prev); err != nil {
		return model.Order{}, true, err
	}
	return saved, true, nil
}

// runTransitionEffects fires the side effects for a committed transition.
// Stock and loyalty persistence failures surface to the caller; notification
// and integration failures are logged and swallowed.
func (s *Service) runTransitionEffects(ctx context.Context, settings model.Settings, o model.Order, prev string) error {
	if o.Status == enum.OrderStatusPreparing && s.kot != nil {
		if err := s.kot.Enqueue(ctx, o); err != nil {
			s.log.Warn().Err(err).Str("order", o.ID).Msg("KOT dispatch failed")
		}
	}

	pointsAwarded := int64(0)
	if o.Status == enum.OrderStatusCompleted && prev != enum.OrderStatusCompleted {
		if err := s.deductStock(ctx, o); err != nil {
			return err
		}
		var err error
		pointsAwarded, err = s.awardLoyalty(ctx, settings, o)
		if err != nil {
			return err
		}
	}

	if o.OrderType == enum.OrderTypeDelivery && s.platform != nil {
		if err := s.platform.UpdateOrderStatus(ctx, o); err != nil {
			s.log.Warn().Err(err).Str("order", o.ID).Msg("platform status mirror failed")
		}
	}

	s.notifyCustomer(ctx, settings, o, pointsAwarded)

	if s.events != nil {
		s.events.OrderUpdated(o)
	}
	return nil
}

// UpdateOrder overwrites the full record behind the same lock/PIN gate.
// CreatedAt and History always come from the stored record, whatever the
// caller supplies.
func (s *Service) UpdateOrder(ctx context.Context, incoming model.Order, pin string) (model.Order, error) {
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return model.Order{}, fmt.Errorf("load settings: %w", err)
	}
	stored, err := s.orders.GetOrder(ctx, incoming.ID)
	if err != nil {
		return model.Order{}, err
	}

	if lockedStatuses[stored.Status] {
		if err := checkPIN(settings, pin); err != nil {
			return model.Order{}, err
		}
	}
	if incoming.Status != "" && !isKnownStatus(incoming.Status) {
		return model.Order{}, fmt.Errorf("%w: %q", ErrUnknownStatus, incoming.Status)
	}

	incoming.CreatedAt = stored.CreatedAt
	incoming.History = stored.History
	if incoming.Status == "" {
		incoming.Status = stored.Status
	}
	if incoming.Status != stored.Status {
		// Keep the invariant: the last history entry matches Status.
		incoming.History = append(incoming.History, model.OrderHistoryEvent{
			Status:    incoming.Status,
			Timestamp: s.now(),
			Notes:     "full record edit",
		})
	}
	if incoming.Version == 0 {
		incoming.Version = stored.Version
	}

	saved, err := s.orders.SaveOrder(ctx, incoming)
	if err != nil {
		return model.Order{}, fmt.Errorf("persist order %s: %w", incoming.ID, err)
	}
	if s.events != nil {
		s.events.OrderUpdated(saved)
	}
	return saved, nil
}

// deductStock walks every stock-to-menu-item mapping matching the order's
// items and persists the decrements before returning.
func (s *Service) deductStock(ctx context.Context, o model.Order) error {
	items, err := s.stock.ListStockItems(ctx)
	if err != nil {
		return fmt.Errorf("load stock: %w", err)
	}

	changed := false
	for i := range items {
		for _, mapping := range items[i].Mappings {
			for _, line := range o.Items {
				if mapping.MenuItemID != line.MenuItemID {
					continue
				}
				used := mapping.QuantityUsedPerServing.Mul(decimalFromQty(line.Quantity))
				items[i].CurrentStock = items[i].CurrentStock.Sub(used)
				changed = true
			}
		}
	}
	if !changed {
		return nil
	}
	if err := s.stock.SaveStockItems(ctx, items); err != nil {
		return fmt.Errorf("persist stock deduction for %s: %w", o.ID, err)
	}
	return nil
}

// awardLoyalty credits floor(total * pointsPerCurrencyUnit) to the ordering
// user and persists the new balance before returning. A failed save aborts
// the operation like any other persistence failure; only an unknown user is
// a skip.
func (s *Service) awardLoyalty(ctx context.Context, settings model.Settings, o model.Order) (int64, error) {
	if !settings.LoyaltyEnabled || o.UserID == "" {
		return 0, nil
	}
	points := o.Total.Mul(settings.PointsPerCurrencyUnit).Floor().IntPart()
	if points <= 0 {
		return 0, nil
	}

	u, err := s.users.GetUser(ctx, o.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.log.Warn().Str("order", o.ID).Str("user", o.UserID).Msg("loyalty accrual skipped, user not found")
			return 0, nil
		}
		return 0, fmt.Errorf("load user %s: %w", o.UserID, err)
	}
	u.LoyaltyPoints += points
	if err := s.users.SaveUser(ctx, u); err != nil {
		return 0, fmt.Errorf("persist loyalty points for %s: %w", o.ID, err)
	}
	return points, nil
}

// notifyCustomer emails the customer unless notifications are disabled. The
// message forks on completion vs. everything else. Best-effort.
func (s *Service) notifyCustomer(ctx context.Context, settings model.Settings, o model.Order, pointsAwarded int64) {
	if !settings.EmailNotifications || s.mailer == nil || o.UserID == "" {
		return
	}
	u, err := s.users.GetUser(ctx, o.UserID)
	if err != nil || u.Email == "" {
		return
	}

	var email notify.Email
	if o.Status == enum.OrderStatusCompleted {
		email = notify.CompletionEmail(o, u.Email, pointsAwarded, u.LoyaltyPoints)
	} else {
		email = notify.StatusUpdateEmail(o, u.Email)
	}
	if err := s.mailer.Send(ctx, email); err != nil {
		s.log.Warn().Err(err).Str("order", o.ID).Msg("customer notification failed")
	}
}

// --- helpers ---

func isKnownStatus(s string) bool {
	switch s {
	case enum.OrderStatusPending, enum.OrderStatusPreparing,
		enum.OrderStatusReadyForPickup, enum.OrderStatusOutForDelivery,
		enum.OrderStatusCompleted, enum.OrderStatusCancelled:
		return true
	}
	return false
}

func transitionAllowed(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkPIN is fail-closed: with no configured PIN, locked orders can never
// be unlocked again.
func checkPIN(settings model.Settings, pin string) error {
	if settings.OverridePIN == "" {
		return ErrOrderLocked
	}
	if pin != settings.OverridePIN {
		return ErrInvalidPIN
	}
	return nil
}
