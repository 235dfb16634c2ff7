package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the unit of work driven through the fulfillment state machine.
// History is append-only; its last entry's status always equals Status.
// Version is bumped on every save and checked by the store to reject
// concurrent lost updates.
type Order struct {
	ID           string              `json:"id"`
	CustomerName string              `json:"customer_name"`
	Items        []OrderItem         `json:"items"`
	Total        decimal.Decimal     `json:"total"`
	Status       string              `json:"status"`
	OrderType    string              `json:"order_type"`
	TableNumber  string              `json:"table_number,omitempty"`
	BookingID    string              `json:"booking_id,omitempty"`
	RoomNumber   string              `json:"room_number,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	History      []OrderHistoryEvent `json:"history"`
	PaymentType  string              `json:"payment_type,omitempty"`
	PaymentID    string              `json:"payment_id,omitempty"`
	UserID       string              `json:"user_id,omitempty"`
	Version      int64               `json:"version"`
}

// OrderItem is a single line on an order. Cost and nutrition snapshots are
// late-bound: they are filled at invoice-render time, not at order creation,
// so historical invoices reflect current costs.
type OrderItem struct {
	MenuItemID      string          `json:"menu_item_id"`
	Name            string          `json:"name"`
	Quantity        int32           `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	SelectedPortion string          `json:"selected_portion,omitempty"`
	Note            string          `json:"note,omitempty"`
	CalculatedCost  decimal.Decimal `json:"calculated_cost,omitempty"`
	Calories        decimal.Decimal `json:"calories,omitempty"`
}

// OrderHistoryEvent is immutable once appended.
type OrderHistoryEvent struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Notes     string    `json:"notes,omitempty"`
}

// StockItem maps a storeroom ingredient to the menu items that consume it.
type StockItem struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	Unit         string          `json:"unit"`
	Mappings     []StockMapping  `json:"mappings"`
}

// StockMapping links a stock item to a menu item with the quantity consumed
// per serving.
type StockMapping struct {
	MenuItemID             string          `json:"menu_item_id"`
	QuantityUsedPerServing decimal.Decimal `json:"quantity_used_per_serving"`
}

// RoomStockItem is per-room minibar stock, decremented by in-room orders.
type RoomStockItem struct {
	RoomNumber string `json:"room_number"`
	MenuItemID string `json:"menu_item_id"`
	Quantity   int32  `json:"quantity"`
}

// User is the slice of the account record the engine needs: identity, role
// for daily caps, and the loyalty balance it accrues into.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	LoyaltyPoints int64  `json:"loyalty_points"`
}

// PrinterSetting describes one configured printer. Only network printers are
// driven over a socket; the other connection types defer to the OS dialog.
type PrinterSetting struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Role           string    `json:"role"`
	ConnectionType string    `json:"connection_type"`
	IPAddress      string    `json:"ip_address"`
	Port           int       `json:"port"`
	PaperWidth     int       `json:"paper_width"`
	DPI            int       `json:"dpi"`
	AutoCut        bool      `json:"auto_cut"`
	LinesBeforeCut int       `json:"lines_before_cut"`
	OpenCashDrawer string    `json:"open_cash_drawer"`
}

// Settings is the read-only snapshot of general settings consumed per
// operation; the engine never mutates it.
type Settings struct {
	CompanyName             string          `json:"company_name"`
	CompanyAddress          string          `json:"company_address"`
	ServiceChargePercentage decimal.Decimal `json:"service_charge_percentage"`
	GSTPercentage           decimal.Decimal `json:"gst_percentage"`
	VATPercentage           decimal.Decimal `json:"vat_percentage"`
	CessPercentage          decimal.Decimal `json:"cess_percentage"`
	IsCompositionScheme     bool            `json:"is_composition_scheme"`
	EstablishmentType       string          `json:"establishment_type"`
	HotelTariffBracket      string          `json:"hotel_tariff_bracket"`

	BaseCurrency    string                     `json:"base_currency"`
	ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`

	AutoApproveOrders     bool            `json:"auto_approve_orders"`
	OverridePIN           string          `json:"override_pin"`
	LoyaltyEnabled        bool            `json:"loyalty_enabled"`
	PointsPerCurrencyUnit decimal.Decimal `json:"points_per_currency_unit"`
	EmailNotifications    bool            `json:"email_notifications"`

	// DailyOrderLimits caps publicly placed orders per role per day.
	// 0 (or a missing role) means unlimited.
	DailyOrderLimits map[string]int `json:"daily_order_limits"`

	KOTMode               string   `json:"kot_mode"`
	KOTBatchThreshold     int      `json:"kot_batch_threshold"`
	InvoiceSectionOrder   []string `json:"invoice_section_order,omitempty"`
	InvoiceFooterText     string   `json:"invoice_footer_text,omitempty"`
	InvoiceClosingMessage string   `json:"invoice_closing_message,omitempty"`
}
