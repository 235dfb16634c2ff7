package enum

// --- Order state machine ---

const (
	OrderStatusPending        = "PENDING"
	OrderStatusPreparing      = "PREPARING"
	OrderStatusReadyForPickup = "READY_FOR_PICKUP"
	OrderStatusOutForDelivery = "OUT_FOR_DELIVERY"
	OrderStatusCompleted      = "COMPLETED"
	OrderStatusCancelled      = "CANCELLED"
)

const (
	OrderTypeWalkIn   = "WALK_IN"
	OrderTypeInRoom   = "IN_ROOM"
	OrderTypeTakeaway = "TAKEAWAY"
	OrderTypeDelivery = "DELIVERY"
)

// --- Fiscal ---

const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed_amount"
)

const (
	EstablishmentTypeHotel      = "hotel"
	EstablishmentTypeStandalone = "standalone"
)

const HotelTariffAbove7500 = "above_7500"

// --- Printing ---

const (
	ConnectionTypeNetwork   = "network"
	ConnectionTypeUSB       = "usb"
	ConnectionTypeBluetooth = "bluetooth"
	ConnectionTypeSystem    = "system"
)

const (
	CashDrawerBeforePrint = "before_print"
	CashDrawerAfterPrint  = "after_print"
	CashDrawerDisabled    = "disabled"
)

// Printer roles looked up during KOT dispatch.
const (
	PrinterRoleChefKOT = "CHEF_KOT"
	PrinterRoleMain    = "MAIN"
)

const (
	KOTModeImmediate = "immediate"
	KOTModeBatch     = "batch"
)
