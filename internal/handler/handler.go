package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tablemaster-pos/engine/internal/enum"
	"github.com/tablemaster-pos/engine/internal/fiscal"
	"github.com/tablemaster-pos/engine/internal/model"
	"github.com/tablemaster-pos/engine/internal/order"
	"github.com/tablemaster-pos/engine/internal/printer"
	"github.com/tablemaster-pos/engine/internal/store"
)

// OrderService is the slice of the lifecycle manager the HTTP layer uses.
type OrderService interface {
	UpdateStatus(ctx context.Context, orderID, newStatus, pin string) (model.Order, bool, error)
	UpdateOrder(ctx context.Context, incoming model.Order, pin string) (model.Order, error)
	PlaceWalkInOrder(ctx context.Context, in order.WalkInInput) (model.Order, error)
	PlaceInRoomOrder(ctx context.Context, in order.InRoomInput) (model.Order, error)
	PlacePublicTakeawayOrder(ctx context.Context, in order.TakeawayInput) (model.Order, error)
}

// KOTQueue is the manual entry point into the dispatch queue.
type KOTQueue interface {
	Flush(ctx context.Context) error
	PendingCount() int
}

// PrintClient sends a rendered document to one printer.
type PrintClient interface {
	Print(ctx context.Context, p model.PrinterSetting, doc string) error
}

// Handler wires the HTTP surface to the engine.
type Handler struct {
	Orders   OrderService
	Store    store.OrderStore
	Printers store.PrinterStore
	Settings store.SettingsStore
	KOT      KOTQueue
	Client   PrintClient
	Renderer *printer.Renderer
	Log      zerolog.Logger
}

// response is the envelope every endpoint answers with.
type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Log.Error().Err(err).Msg("write response")
	}
}

func (h *Handler) ok(w http.ResponseWriter, message string, data any) {
	h.writeJSON(w, http.StatusOK, response{Success: true, Message: message, Data: data})
}

func (h *Handler) fail(w http.ResponseWriter, err error, message string) {
	h.writeJSON(w, statusFor(err), response{Success: false, Message: message, Details: err.Error()})
}

// statusFor maps engine errors onto HTTP codes. Unknown errors are internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, order.ErrOrderLocked), errors.Is(err, order.ErrInvalidPIN):
		return http.StatusForbidden
	case errors.Is(err, order.ErrDailyLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrMissingRoom),
		errors.Is(err, order.ErrMissingUser),
		errors.Is(err, order.ErrInsufficientStock),
		errors.Is(err, fiscal.ErrNoConversionRate),
		errors.Is(err, fiscal.ErrInvalidDiscountType),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, printer.ErrTimeout),
		errors.Is(err, printer.ErrPrematureClose),
		errors.Is(err, printer.ErrRejected),
		errors.Is(err, printer.ErrNoAddress):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

// --- health ---

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.ok(w, "ok", nil)
}

// --- orders ---

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Store.ListOrders(r.Context())
	if err != nil {
		h.fail(w, err, "could not list orders")
		return
	}
	h.ok(w, "orders", orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Store.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err, "could not load order")
		return
	}
	h.ok(w, "order", o)
}

// placeOrderRequest is the discriminated union behind POST /orders.
type placeOrderRequest struct {
	OrderType    string            `json:"order_type"`
	CustomerName string            `json:"customer_name"`
	TableNumber  string            `json:"table_number"`
	RoomNumber   string            `json:"room_number"`
	BookingID    string            `json:"booking_id"`
	Items        []model.OrderItem `json:"items"`
	PaymentType  string            `json:"payment_type"`
	UserID       string            `json:"user_id"`
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, errBadRequest, "invalid request body")
		return
	}

	var (
		o   model.Order
		err error
	)
	switch req.OrderType {
	case enum.OrderTypeInRoom:
		o, err = h.Orders.PlaceInRoomOrder(r.Context(), order.InRoomInput{
			CustomerName: req.CustomerName,
			RoomNumber:   req.RoomNumber,
			BookingID:    req.BookingID,
			Items:        req.Items,
			UserID:       req.UserID,
		})
	case enum.OrderTypeTakeaway:
		o, err = h.Orders.PlacePublicTakeawayOrder(r.Context(), order.TakeawayInput{
			CustomerName: req.CustomerName,
			Items:        req.Items,
			PaymentType:  req.PaymentType,
			UserID:       req.UserID,
		})
	default:
		o, err = h.Orders.PlaceWalkInOrder(r.Context(), order.WalkInInput{
			CustomerName: req.CustomerName,
			TableNumber:  req.TableNumber,
			Items:        req.Items,
			PaymentType:  req.PaymentType,
			UserID:       req.UserID,
		})
	}
	if err != nil {
		h.fail(w, err, "could not place order")
		return
	}
	h.writeJSON(w, http.StatusCreated, response{Success: true, Message: "order placed", Data: o})
}

type updateStatusRequest struct {
	Status      string `json:"status"`
	OverridePIN string `json:"override_pin"`
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, errBadRequest, "invalid request body")
		return
	}

	o, changed, err := h.Orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.OverridePIN)
	if err != nil {
		h.fail(w, err, "could not update order status")
		return
	}
	if !changed {
		h.ok(w, "already "+o.Status, o)
		return
	}
	h.ok(w, "order status updated", o)
}

type updateOrderRequest struct {
	model.Order
	OverridePIN string `json:"override_pin"`
}

func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, errBadRequest, "invalid request body")
		return
	}
	req.Order.ID = chi.URLParam(r, "id")

	o, err := h.Orders.UpdateOrder(r.Context(), req.Order, req.OverridePIN)
	if err != nil {
		h.fail(w, err, "could not update order")
		return
	}
	h.ok(w, "order updated", o)
}

// --- invoice printing ---

type printInvoiceRequest struct {
	PrinterID    string          `json:"printer_id"`
	Currency     string          `json:"currency"`
	DiscountType string          `json:"discount_type"`
	Discount     decimal.Decimal `json:"discount_value"`
}

func (h *Handler) PrintInvoice(w http.ResponseWriter, r *http.Request) {
	var req printInvoiceRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.fail(w, errBadRequest, "invalid request body")
			return
		}
	}

	o, err := h.Store.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err, "could not load order")
		return
	}
	settings, err := h.Settings.GetSettings(r.Context())
	if err != nil {
		h.fail(w, err, "could not load settings")
		return
	}

	var disc *fiscal.Discount
	if req.DiscountType != "" {
		disc = &fiscal.Discount{Type: req.DiscountType, Value: req.Discount}
	}
	breakdown, err := fiscal.Compute(
		o.Total,
		disc,
		fiscal.TaxConfigFromSettings(settings),
		req.Currency,
		fiscal.ConversionTable{BaseCurrency: settings.BaseCurrency, Rates: settings.ConversionRates},
	)
	if err != nil {
		h.fail(w, err, "could not compute invoice totals")
		return
	}

	p, err := h.resolvePrinter(r.Context(), req.PrinterID)
	if err != nil {
		h.fail(w, err, "could not resolve printer")
		return
	}

	doc := h.Renderer.RenderInvoice(printer.InvoiceData{
		Order:     o,
		Breakdown: breakdown,
		Extras:    fiscal.AggregateExtras(o.Items),
		Settings:  settings,
	}, p)
	if err := h.Client.Print(r.Context(), p, doc); err != nil {
		h.fail(w, err, "invoice print failed")
		return
	}
	h.ok(w, "invoice printed", breakdown)
}

// resolvePrinter picks the requested printer, or the default one when the
// request names none.
func (h *Handler) resolvePrinter(ctx context.Context, printerID string) (model.PrinterSetting, error) {
	printers, err := h.Printers.ListPrinterSettings(ctx)
	if err != nil {
		return model.PrinterSetting{}, err
	}
	if printerID != "" {
		id, err := uuid.Parse(printerID)
		if err != nil {
			return model.PrinterSetting{}, errBadRequest
		}
		for _, p := range printers {
			if p.ID == id {
				return p, nil
			}
		}
		return model.PrinterSetting{}, store.ErrNotFound
	}
	for _, p := range printers {
		if p.Role == enum.PrinterRoleMain {
			return p, nil
		}
	}
	return model.PrinterSetting{}, store.ErrNotFound
}

// --- printers ---

func (h *Handler) TestPrint(w http.ResponseWriter, r *http.Request) {
	p, err := h.resolvePrinter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err, "could not resolve printer")
		return
	}

	doc := h.Renderer.RenderTestPage(p)
	if err := h.Client.Print(r.Context(), p, doc); err != nil {
		h.fail(w, err, "test print failed")
		return
	}
	h.ok(w, "test page sent", nil)
}

// --- KOT ---

func (h *Handler) FlushKOT(w http.ResponseWriter, r *http.Request) {
	pending := h.KOT.PendingCount()
	if err := h.KOT.Flush(r.Context()); err != nil {
		h.fail(w, err, "could not print pending KOTs")
		return
	}
	h.ok(w, "pending KOTs printed", map[string]int{"printed": pending})
}
