package fiscal

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tablemaster-pos/engine/internal/enum"
	"github.com/tablemaster-pos/engine/internal/model"
)

// Errors returned by the fiscal engine.
var (
	ErrNoConversionRate    = errors.New("no conversion rate for display currency")
	ErrInvalidDiscountType = errors.New("invalid discount type")
)

var hundred = decimal.NewFromInt(100)

// TaxConfig is the read-only tax snapshot for one computation.
type TaxConfig struct {
	ServiceChargePct    decimal.Decimal
	GSTPct              decimal.Decimal
	VATPct              decimal.Decimal
	CessPct             decimal.Decimal
	IsCompositionScheme bool
	EstablishmentType   string
	HotelTariffBracket  string
}

// TaxConfigFromSettings extracts the tax snapshot from general settings.
func TaxConfigFromSettings(s model.Settings) TaxConfig {
	return TaxConfig{
		ServiceChargePct:    s.ServiceChargePercentage,
		GSTPct:              s.GSTPercentage,
		VATPct:              s.VATPercentage,
		CessPct:             s.CessPercentage,
		IsCompositionScheme: s.IsCompositionScheme,
		EstablishmentType:   s.EstablishmentType,
		HotelTariffBracket:  s.HotelTariffBracket,
	}
}

// Discount is applied at most once per computation, supplied by the caller.
type Discount struct {
	Type  string
	Value decimal.Decimal
}

// ConversionTable converts base-currency amounts into a display currency.
type ConversionTable struct {
	BaseCurrency string
	Rates        map[string]decimal.Decimal
}

// Convert fails rather than falling back to the base symbol: a missing rate
// must never ship an incorrectly priced invoice.
func (t ConversionTable) Convert(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	if currency == "" || currency == t.BaseCurrency {
		return amount, nil
	}
	rate, ok := t.Rates[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s -> %s", ErrNoConversionRate, t.BaseCurrency, currency)
	}
	return amount.Mul(rate), nil
}

// Breakdown is the result of one waterfall computation. All components are
// kept at full precision; only GrandTotal is rounded (half-up, 2 decimals).
type Breakdown struct {
	Currency      string
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	AfterDiscount decimal.Decimal
	ServiceCharge decimal.Decimal
	Taxable       decimal.Decimal
	GSTRate       decimal.Decimal
	GST           decimal.Decimal
	VAT           decimal.Decimal
	Cess          decimal.Decimal
	GrandTotal    decimal.Decimal
}

// Compute runs the subtotal → discount → service charge → tax waterfall.
// Pure: no side effects, safe to call from every render path so email, PDF
// and thermal output stay numerically identical.
//
// Under the composition scheme every tax line (GST, VAT, cess) is zeroed;
// the service charge still applies.
func Compute(total decimal.Decimal, disc *Discount, cfg TaxConfig, currency string, rates ConversionTable) (Breakdown, error) {
	subtotal, err := rates.Convert(total, currency)
	if err != nil {
		return Breakdown{}, err
	}

	discount := decimal.Zero
	if disc != nil {
		switch disc.Type {
		case enum.DiscountTypePercentage:
			discount = subtotal.Mul(disc.Value).Div(hundred)
		case enum.DiscountTypeFixed:
			discount, err = rates.Convert(disc.Value, currency)
			if err != nil {
				return Breakdown{}, err
			}
		default:
			return Breakdown{}, fmt.Errorf("%w: %q", ErrInvalidDiscountType, disc.Type)
		}
	}

	afterDiscount := subtotal.Sub(discount)
	if afterDiscount.IsNegative() {
		afterDiscount = decimal.Zero
	}

	serviceCharge := afterDiscount.Mul(cfg.ServiceChargePct).Div(hundred)
	taxable := afterDiscount.Add(serviceCharge)

	gstRate := gstRateFor(cfg)
	gst := taxable.Mul(gstRate).Div(hundred)
	vat := taxable.Mul(cfg.VATPct).Div(hundred)
	if cfg.IsCompositionScheme {
		gst = decimal.Zero
		vat = decimal.Zero
	}

	cess := taxable.Add(gst).Add(vat).Mul(cfg.CessPct).Div(hundred)
	if cfg.IsCompositionScheme {
		cess = decimal.Zero
	}

	grand := taxable.Add(gst).Add(vat).Add(cess).Round(2)

	if currency == "" {
		currency = rates.BaseCurrency
	}
	return Breakdown{
		Currency:      currency,
		Subtotal:      subtotal,
		Discount:      discount,
		AfterDiscount: afterDiscount,
		ServiceCharge: serviceCharge,
		Taxable:       taxable,
		GSTRate:       gstRate,
		GST:           gst,
		VAT:           vat,
		Cess:          cess,
		GrandTotal:    grand,
	}, nil
}

// gstRateFor selects the slab: composition filers stay on the flat 5%,
// hotels in the above_7500 tariff bracket pay 18%, everyone else 5%.
func gstRateFor(cfg TaxConfig) decimal.Decimal {
	if cfg.IsCompositionScheme {
		return decimal.NewFromInt(5)
	}
	if cfg.EstablishmentType == enum.EstablishmentTypeHotel && cfg.HotelTariffBracket == enum.HotelTariffAbove7500 {
		return decimal.NewFromInt(18)
	}
	return decimal.NewFromInt(5)
}

// LineExtras aggregates the display-only cost and nutrition snapshots on the
// order lines. Never feeds GrandTotal.
type LineExtras struct {
	TotalCost     decimal.Decimal
	TotalCalories decimal.Decimal
}

// AggregateExtras sums cost/nutrition snapshots across items, weighted by
// quantity.
func AggregateExtras(items []model.OrderItem) LineExtras {
	var e LineExtras
	for _, it := range items {
		qty := decimal.NewFromInt32(it.Quantity)
		e.TotalCost = e.TotalCost.Add(it.CalculatedCost.Mul(qty))
		e.TotalCalories = e.TotalCalories.Add(it.Calories.Mul(qty))
	}
	return e
}
