package order

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tablemaster-pos/engine/internal/enum"
	"github.com/tablemaster-pos/engine/internal/model"
	"github.com/tablemaster-pos/engine/internal/store"
)

func TestUpdateStatusValidTransition(t *testing.T) {
	f := newFixture(pendingOrder(), model.Settings{})

	got, changed, err := f.svc.UpdateStatus(context.Background(), "ORD-1", enum.OrderStatusPreparing, "")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if !changed {
		t.Errorf("changed = false for a real transition")
	}
	if got.Status != enum.OrderStatusPreparing {
		t.Errorf("status = %s, want PREPARING", got.Status)
	}
	if len(got.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(got.History))
	}
	last := got.History[len(got.History)-1]
	if last.Status != enum.OrderStatusPreparing {
		t.Errorf("last history status = %s, want PREPARING", last.Status)
	}
	if len(f.kot.enqueued) != 1 {
		t.Errorf("KOT enqueued %d times, want 1", len(f.kot.enqueued))
	}
	if len(f.events.updates) != 1 {
		t.Errorf("broadcast %d times, want 1", len(f.events.updates))
	}
}

func TestUpdateStatusSameStatusIsNoOp(t *testing.T) {
	f := newFixture(pendingOrder(), model.Settings{})

	got, changed, err := f.svc.UpdateStatus(context.Background(), "ORD-1", enum.OrderStatusPending, "")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if changed {
		t.Errorf("changed = true for a same-status update")
	}
	if len(got.History) != 1 {
		t.Errorf("history grew on a same-status update: %d entries", len(got.History))
	}
	if len(*f.saves) != 0 {
		t.Errorf("order was saved on a same-status update")
	}
	if len(f.kot.enqueued) != 0 || len(f.events.updates) != 0 {
		t.Errorf("side effects fired on a same-status update")
	}
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	f := newFixture(pendingOrder(), model.Settings{})

	_, _, err := f.svc.UpdateStatus(context.Background(), "ORD-1", enum.OrderStatusCompleted, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if len(*f.saves) != 0 {
		t.Errorf("order was saved despite invalid transition")
	}
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
	f := newFixture(pendingOrder(), model.Settings{})

	_, _, err := f.svc.UpdateStatus(context.Background(), "ORD-1", "SHIPPED", "")
	if !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("err = %v, want ErrUnknownStatus", err)
	}
}

func TestUpdateStatusLockedFailsClosedWithoutPIN(t *testing.T) {
	o := pendingOrder()
	o.Status = enum.OrderStatusCompleted
	f := newFixture(o, model.Settings{}) // no OverridePIN configured

	_, _, err := f.svc.UpdateStatus(context.Background(), "ORD-1", enum.OrderStatusPreparing, "0000")
	if !errors.Is(err, ErrOrderLocked) {
		t.Fatalf("err = %v, want ErrOrderLocked", err)
	}
	if f.stored.Status != enum.OrderStatusCompleted {
		t.Errorf("stored order mutated: status = %s", f.stored.Status)
	}
}

func TestUpdateStatusLockedWrongPIN(t *testing.T) {
	o := pendingOrder()
	o.Status = enum.OrderStatusCancelled
	f := newFixture(o, model.Settings{OverridePIN: "4321"})

	_, _, err := f.svc.UpdateStatus(context.Background(), "ORD-1", enum.OrderStatusPending, "1234")
	if !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("err = %v, want ErrInvalidPIN", err)
	}
	if f.stored.Status != enum.OrderStatusCancelled {
		t.Errorf("stored order mutated: status = %s", f.stored.Status)
	}
}

func TestUpdateStatusLockedCorrectPINUnlocks(t *testing.T) {
	o := pendingOrder()
	o.Status = enum.OrderStatusCompleted
	f := newFixture(o, model.Settings{OverridePIN: "4321"})

	got, _, err := f.svc.UpdateStatus(context.Background(), "ORD-1", enum.OrderStatusPreparing, "4321")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if got.Status != enum.OrderStatusPreparing {
		t.Errorf("status = %s, want PREPARING", got.Status)
	}
}

func TestUpdateStatusCompletionDeductsStockOnce(t *testing.T) {
	o := pendingOrder()
	o.Status = enum.OrderStatusReadyForPickup
	f := newFixture(o, model.Settings{})
	*f.stock = []model.StockItem{
		{
			Name:         "Rice Batter",
			CurrentStock: decimal.NewFromInt(10),
			Mappings: []model.StockMapping{
				{MenuItemID: "menu-1", QuantityUsedPerServing: decimal.NewFromFloat(0.5)},
			},
		},
	}

	if _, _, err := f.svc.UpdateStatus(context.Background(), "ORD-1", enum.OrderStatusCompleted, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	// 2 servings x 0.5 per serving.
	if got := (*f.stock)[0].CurrentStock; !got.Equal(decimal.NewFromInt(9)) {
		t.Errorf("stock after completion = %s, want 9", got)
	}

	// Completing again is a same-status no-op: no second deduction.
	if _, _, err := f.svc.UpdateStatus(context.Background(), "ORD-1", enum.OrderStatusCompleted, ""); err != nil {
		t.Fatalf("repeat UpdateStatus: %v", err)
	}
	if got := (*f.stock)[0].CurrentStock; !got.Equal(decimal.NewFromInt(9)) {
		t.Errorf("stock deducted twice: %s", got)
	}
}

func TestUpdateStatusCompletionAwardsLoyalty(t *testing.T) {
	o := pendingOrder()
	o.Status = enum.OrderStatusReadyForPickup
	o.UserID = "user-1"
	o.Total = decimal.NewFromFloat(249.90)
	f := newFixture(o, model.Settings{
		LoyaltyEnabled:        true,
		PointsPerCurrencyUnit: decimal.NewFromFloat(0.1),
		EmailNotifications:    true,
	})
	f.users["user-1"] = &model.User{ID: "user-1", Email: "asha@example.com", LoyaltyPoints: 5}

	if _, _, err := f.svc.UpdateStatus(context.Background(), "ORD-1", enum.OrderStatusCompleted, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	// floor(249.90 * 0.1) = 24, on top of the existing 5.
	if got := f.users["user-1"].LoyaltyPoints; got != 29 {
		t.Errorf("loyalty balance = %d, want 29", got)
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(f.mailer.sent))
	}
	if !strings.Contains(f.mailer.sent[0].HTML, "24") {
		t.Errorf("completion email missing awarded points: %q", f.mailer.sent[0].HTML)
	}
}

func TestUpdateStatusLoyaltySaveFailureSurfaces(t *testing.T) {
	o := pendingOrder()
	o.Status = enum.OrderStatusReadyForPickup
	o.UserID = "user-1"
	f := newFixture(o, model.Settings{
		LoyaltyEnabled:        true,
		PointsPerCurrencyUnit: decimal.NewFromFloat(0.1),
	})
	f.users["user-1"] = &model.User{ID: "user-1", Email: "asha@example.com", LoyaltyPoints: 5}

	users := f.svc.users.(*mockUserStore)
	users.SaveUserFunc = func(_ context.Context, _ model.User) error {
		return errors.New("disk full")
	}

	_, _, err := f.svc.UpdateStatus(context.Background(), "ORD-1", enum.OrderStatusCompleted, "")
	if err == nil {
		t.Fatal("loyalty persistence failure must surface, not report success")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("err = %v, want the save failure wrapped", err)
	}
}

func TestUpdateStatusLoyaltyDisabled(t *testing.T) {
	o := pendingOrder()
	o.Status = enum.OrderStatusReadyForPickup
	o.UserID = "user-1"
	f := newFixture(o, model.Settings{LoyaltyEnabled: false})
	f.users["user-1"] = &model.User{ID: "user-1", Email: "asha@example.com", LoyaltyPoints: 5}

	if _, _, err := f.svc.UpdateStatus(context.Background(), "ORD-1", enum.OrderStatusCompleted, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if got := f.users["user-1"].LoyaltyPoints; got != 5 {
		t.Errorf("loyalty balance = %d, want unchanged 5", got)
	}
}

func TestUpdateStatusDeliveryMirrorsToPlatform(t *testing.T) {
	o := pendingOrder()
	o.OrderType = enum.OrderTypeDelivery
	f := newFixture(o, model.Settings{})

	if _, _, err := f.svc.UpdateStatus(context.Background(), "ORD-1", enum.OrderStatusPreparing, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if len(f.platform.updated) != 1 {
		t.Errorf("platform mirror called %d times, want 1", len(f.platform.updated))
	}
}

func TestUpdateStatusPlatformFailureDoesNotRollBack(t *testing.T) {
	o := pendingOrder()
	o.OrderType = enum.OrderTypeDelivery
	f := newFixture(o, model.Settings{})
	f.platform.err = errors.New("broker unreachable")

	got, _, err := f.svc.UpdateStatus(context.Background(), "ORD-1", enum.OrderStatusPreparing, "")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if got.Status != enum.OrderStatusPreparing {
		t.Errorf("transition rolled back on platform failure")
	}
}

func TestUpdateStatusEmailDisabled(t *testing.T) {
	o := pendingOrder()
	o.UserID = "user-1"
	f := newFixture(o, model.Settings{EmailNotifications: false})
	f.users["user-1"] = &model.User{ID: "user-1", Email: "asha@example.com"}

	if _, _, err := f.svc.UpdateStatus(context.Background(), "ORD-1", enum.OrderStatusPreparing, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if len(f.mailer.sent) != 0 {
		t.Errorf("email sent despite notifications disabled")
	}
}

func TestUpdateStatusVersionConflictPropagates(t *testing.T) {
	f := newFixture(pendingOrder(), model.Settings{})
	orders := f.svc.orders.(*mockOrderStore)
	orders.SaveOrderFunc = func(_ context.Context, _ model.Order) (model.Order, error) {
		return model.Order{}, store.ErrVersionConflict
	}

	_, _, err := f.svc.UpdateStatus(context.Background(), "ORD-1", enum.OrderStatusPreparing, "")
	if !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
}

func TestUpdateOrderPreservesCreatedAtAndHistory(t *testing.T) {
	stored := pendingOrder()
	f := newFixture(stored, model.Settings{})

	incoming := stored
	incoming.CustomerName = "Asha K"
	incoming.CreatedAt = fixedNow.Add(48 * time.Hour) // caller-supplied garbage
	incoming.History = nil

	got, err := f.svc.UpdateOrder(context.Background(), incoming, "")
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if !got.CreatedAt.Equal(stored.CreatedAt) {
		t.Errorf("CreatedAt overwritten: %v", got.CreatedAt)
	}
	if len(got.History) != 1 {
		t.Errorf("history length = %d, want stored history preserved", len(got.History))
	}
	if got.CustomerName != "Asha K" {
		t.Errorf("edit not applied: %s", got.CustomerName)
	}
}

func TestUpdateOrderStatusChangeAppendsHistory(t *testing.T) {
	stored := pendingOrder()
	f := newFixture(stored, model.Settings{})

	incoming := stored
	incoming.Status = enum.OrderStatusPreparing

	got, err := f.svc.UpdateOrder(context.Background(), incoming, "")
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if len(got.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(got.History))
	}
	if got.History[1].Status != enum.OrderStatusPreparing {
		t.Errorf("appended history status = %s", got.History[1].Status)
	}
}

func TestUpdateOrderDefaultsVersionFromStored(t *testing.T) {
	stored := pendingOrder()
	stored.Version = 7
	f := newFixture(stored, model.Settings{})

	incoming := stored
	incoming.Version = 0

	var savedVersion int64
	orders := f.svc.orders.(*mockOrderStore)
	inner := orders.SaveOrderFunc
	orders.SaveOrderFunc = func(ctx context.Context, o model.Order) (model.Order, error) {
		savedVersion = o.Version
		return inner(ctx, o)
	}

	if _, err := f.svc.UpdateOrder(context.Background(), incoming, ""); err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if savedVersion != 7 {
		t.Errorf("saved with version %d, want stored version 7", savedVersion)
	}
}

func TestUpdateOrderLockedRequiresPIN(t *testing.T) {
	stored := pendingOrder()
	stored.Status = enum.OrderStatusCompleted
	f := newFixture(stored, model.Settings{OverridePIN: "4321"})

	incoming := stored
	incoming.CustomerName = "Changed"

	if _, err := f.svc.UpdateOrder(context.Background(), incoming, "9999"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("err = %v, want ErrInvalidPIN", err)
	}
	if f.stored.CustomerName != "Asha" {
		t.Errorf("stored order mutated behind a failed PIN check")
	}

	got, err := f.svc.UpdateOrder(context.Background(), incoming, "4321")
	if err != nil {
		t.Fatalf("UpdateOrder with correct PIN: %v", err)
	}
	if got.CustomerName != "Changed" {
		t.Errorf("edit not applied after PIN check")
	}
}
