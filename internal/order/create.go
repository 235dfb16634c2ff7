package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tablemaster-pos/engine/internal/enum"
	"github.com/tablemaster-pos/engine/internal/model"
)

// WalkInInput places an order taken at a table or the counter.
type WalkInInput struct {
	CustomerName string            `json:"customer_name"`
	TableNumber  string            `json:"table_number"`
	Items        []model.OrderItem `json:"items"`
	PaymentType  string            `json:"payment_type"`
	UserID       string            `json:"user_id"`
}

// InRoomInput places a minibar/room-service order against a hotel room.
type InRoomInput struct {
	CustomerName string            `json:"customer_name"`
	RoomNumber   string            `json:"room_number"`
	BookingID    string            `json:"booking_id"`
	Items        []model.OrderItem `json:"items"`
	UserID       string            `json:"user_id"`
}

// TakeawayInput places an order from the public self-service surface.
// These are the only orders subject to per-role daily caps.
type TakeawayInput struct {
	CustomerName string            `json:"customer_name"`
	Items        []model.OrderItem `json:"items"`
	PaymentType  string            `json:"payment_type"`
	UserID       string            `json:"user_id"`
}

// PlaceWalkInOrder creates a staff-entered order.
func (s *Service) PlaceWalkInOrder(ctx context.Context, in WalkInInput) (model.Order, error) {
	if err := validateItems(in.Items); err != nil {
		return model.Order{}, err
	}
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return model.Order{}, fmt.Errorf("load settings: %w", err)
	}

	o := s.newOrder(settings, in.Items)
	o.CustomerName = in.CustomerName
	o.OrderType = enum.OrderTypeWalkIn
	o.TableNumber = in.TableNumber
	o.PaymentType = in.PaymentType
	o.UserID = in.UserID

	return s.commitNewOrder(ctx, o)
}

// PlaceInRoomOrder creates a room-service order. Minibar stock for the room
// is checked before the order is committed and decremented after; a failed
// decrement leaves the order standing and is logged as an inconsistency for
// staff to reconcile.
func (s *Service) PlaceInRoomOrder(ctx context.Context, in InRoomInput) (model.Order, error) {
	if err := validateItems(in.Items); err != nil {
		return model.Order{}, err
	}
	if in.RoomNumber == "" {
		return model.Order{}, ErrMissingRoom
	}
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return model.Order{}, fmt.Errorf("load settings: %w", err)
	}

	roomStock, err := s.roomStock.GetRoomStock(ctx, in.RoomNumber)
	if err != nil {
		return model.Order{}, fmt.Errorf("load stock for room %s: %w", in.RoomNumber, err)
	}
	remaining, err := consumeRoomStock(roomStock, in.Items)
	if err != nil {
		return model.Order{}, err
	}

	o := s.newOrder(settings, in.Items)
	o.CustomerName = in.CustomerName
	o.OrderType = enum.OrderTypeInRoom
	o.RoomNumber = in.RoomNumber
	o.BookingID = in.BookingID
	o.UserID = in.UserID

	saved, err := s.commitNewOrder(ctx, o)
	if err != nil {
		return model.Order{}, err
	}

	if err := s.roomStock.SaveRoomStock(ctx, in.RoomNumber, remaining); err != nil {
		// The order is already placed; the minibar count is now stale.
		s.log.Error().Err(err).
			Str("order", saved.ID).
			Str("room", in.RoomNumber).
			Msg("room stock decrement not persisted, counts need manual reconciliation")
	}
	return saved, nil
}

// PlacePublicTakeawayOrder creates a customer-placed takeaway order,
// enforcing the per-role daily cap counted from local midnight.
func (s *Service) PlacePublicTakeawayOrder(ctx context.Context, in TakeawayInput) (model.Order, error) {
	if err := validateItems(in.Items); err != nil {
		return model.Order{}, err
	}
	if in.UserID == "" {
		return model.Order{}, ErrMissingUser
	}
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return model.Order{}, fmt.Errorf("load settings: %w", err)
	}

	u, err := s.users.GetUser(ctx, in.UserID)
	if err != nil {
		return model.Order{}, fmt.Errorf("load user %s: %w", in.UserID, err)
	}
	if limit := settings.DailyOrderLimits[u.Role]; limit > 0 {
		placed, err := s.orders.CountOrdersForUserSince(ctx, in.UserID, startOfDay(s.now()))
		if err != nil {
			return model.Order{}, fmt.Errorf("count orders for %s: %w", in.UserID, err)
		}
		if placed >= limit {
			return model.Order{}, fmt.Errorf("%w: %d per day for role %s", ErrDailyLimitExceeded, limit, u.Role)
		}
	}

	o := s.newOrder(settings, in.Items)
	o.CustomerName = in.CustomerName
	o.OrderType = enum.OrderTypeTakeaway
	o.PaymentType = in.PaymentType
	o.UserID = in.UserID

	return s.commitNewOrder(ctx, o)
}

// newOrder seeds the shared fields. The auto-approval flag decides whether
// the order starts in the kitchen or waits for staff confirmation.
func (s *Service) newOrder(settings model.Settings, items []model.OrderItem) model.Order {
	status := enum.OrderStatusPending
	if settings.AutoApproveOrders {
		status = enum.OrderStatusPreparing
	}
	now := s.now()
	return model.Order{
		ID:        s.newID(),
		Items:     items,
		Total:     itemsTotal(items),
		Status:    status,
		CreatedAt: now,
		History: []model.OrderHistoryEvent{
			{Status: status, Timestamp: now, Notes: "order placed"},
		},
	}
}

// commitNewOrder persists the order and fires the placement side effects.
func (s *Service) commitNewOrder(ctx context.Context, o model.Order) (model.Order, error) {
	saved, err := s.orders.CreateOrder(ctx, o)
	if err != nil {
		return model.Order{}, fmt.Errorf("persist order %s: %w", o.ID, err)
	}

	if saved.Status == enum.OrderStatusPreparing && s.kot != nil {
		if err := s.kot.Enqueue(ctx, saved); err != nil {
			s.log.Warn().Err(err).Str("order", saved.ID).Msg("KOT dispatch failed")
		}
	}
	if saved.OrderType == enum.OrderTypeDelivery && s.platform != nil {
		if err := s.platform.SendOrder(ctx, saved); err != nil {
			s.log.Warn().Err(err).Str("order", saved.ID).Msg("platform order mirror failed")
		}
	}
	if s.events != nil {
		s.events.OrderUpdated(saved)
	}

	s.log.Info().
		Str("order", saved.ID).
		Str("type", saved.OrderType).
		Str("status", saved.Status).
		Msg("order placed")
	return saved, nil
}

// consumeRoomStock returns the room's stock after deducting the ordered
// quantities, or ErrInsufficientStock if any line cannot be covered.
func consumeRoomStock(stock []model.RoomStockItem, items []model.OrderItem) ([]model.RoomStockItem, error) {
	remaining := make([]model.RoomStockItem, len(stock))
	copy(remaining, stock)

	for _, line := range items {
		found := false
		for i := range remaining {
			if remaining[i].MenuItemID != line.MenuItemID {
				continue
			}
			found = true
			if remaining[i].Quantity < line.Quantity {
				return nil, fmt.Errorf("%w: %s has %d, need %d",
					ErrInsufficientStock, line.Name, remaining[i].Quantity, line.Quantity)
			}
			remaining[i].Quantity -= line.Quantity
			break
		}
		if !found {
			return nil, fmt.Errorf("%w: %s is not stocked in this room", ErrInsufficientStock, line.Name)
		}
	}
	return remaining, nil
}

func validateItems(items []model.OrderItem) error {
	if len(items) == 0 {
		return ErrEmptyItems
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidQuantity, it.Name)
		}
	}
	return nil
}

func itemsTotal(items []model.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price.Mul(decimalFromQty(it.Quantity)))
	}
	return total
}

func decimalFromQty(q int32) decimal.Decimal {
	return decimal.NewFromInt32(q)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
