package printer

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/tablemaster-pos/engine/internal/enum"
	"github.com/tablemaster-pos/engine/internal/fiscal"
	"github.com/tablemaster-pos/engine/internal/model"
)

// Invoice section identifiers. The render order is user-configurable;
// unknown identifiers are skipped.
const (
	SectionCompanyHeader  = "company_header"
	SectionInvoiceHeader  = "invoice_header"
	SectionOrderDetails   = "order_details"
	SectionItemsTable     = "items_table"
	SectionTotals         = "totals"
	SectionTaxInfo        = "tax_info"
	SectionQRCode         = "qr_code"
	SectionFooterText     = "footer_text"
	SectionClosingMessage = "closing_message"
)

// DefaultSectionOrder is used when settings carry no explicit order.
var DefaultSectionOrder = []string{
	SectionCompanyHeader,
	SectionInvoiceHeader,
	SectionOrderDetails,
	SectionItemsTable,
	SectionTotals,
	SectionTaxInfo,
	SectionQRCode,
	SectionFooterText,
	SectionClosingMessage,
}

// InvoiceData is everything a single invoice render needs. Totals come from
// the fiscal engine so every channel prints the same numbers.
type InvoiceData struct {
	Order     model.Order
	Breakdown fiscal.Breakdown
	Extras    fiscal.LineExtras
	Settings  model.Settings
}

// Renderer emits the tagged document stream for invoices and KOTs.
type Renderer struct {
	Now func() time.Time
}

func NewRenderer() *Renderer {
	return &Renderer{Now: time.Now}
}

// RenderInvoice walks the configured section order and produces the tagged
// stream. [OPENCASHDRAWER] is placed before or after the body per printer
// setting and [CUT] terminates the document.
func (r *Renderer) RenderInvoice(data InvoiceData, p model.PrinterSetting) string {
	order := data.Settings.InvoiceSectionOrder
	if len(order) == 0 {
		order = DefaultSectionOrder
	}

	var b strings.Builder
	b.WriteString(TagInit + "\n")
	if p.OpenCashDrawer == enum.CashDrawerBeforePrint {
		b.WriteString(TagOpenCashDrawer + "\n")
	}

	for _, section := range order {
		r.renderSection(&b, section, data, p)
	}

	if p.OpenCashDrawer == enum.CashDrawerAfterPrint {
		b.WriteString(TagOpenCashDrawer + "\n")
	}
	b.WriteString(TagCut + "\n")
	return b.String()
}

func (r *Renderer) renderSection(b *strings.Builder, section string, data InvoiceData, p model.PrinterSetting) {
	width := LineWidth(p)
	cur := data.Breakdown.Currency

	switch section {
	case SectionCompanyHeader:
		fmt.Fprintf(b, "%s%s%s%s%s\n", TagCenter, TagBig, data.Settings.CompanyName, TagBigOff, TagLeft)
		if data.Settings.CompanyAddress != "" {
			fmt.Fprintf(b, "%s%s%s\n", TagCenter, data.Settings.CompanyAddress, TagLeft)
		}
	case SectionInvoiceHeader:
		fmt.Fprintf(b, "%s%sINVOICE%s%s\n", TagCenter, TagBold, TagBoldOff, TagLeft)
		fmt.Fprintf(b, "Invoice for order %s\n", data.Order.ID)
		fmt.Fprintf(b, "Date: %s\n", r.Now().Format("02 Jan 2006 15:04"))
	case SectionOrderDetails:
		fmt.Fprintf(b, "Customer: %s\n", data.Order.CustomerName)
		fmt.Fprintf(b, "Type: %s\n", data.Order.OrderType)
		if data.Order.TableNumber != "" {
			fmt.Fprintf(b, "Table: %s\n", data.Order.TableNumber)
		}
		if data.Order.RoomNumber != "" {
			fmt.Fprintf(b, "Room: %s\n", data.Order.RoomNumber)
		}
	case SectionItemsTable:
		b.WriteString(divider(width) + "\n")
		for _, it := range data.Order.Items {
			name := it.Name
			if it.SelectedPortion != "" {
				name = fmt.Sprintf("%s (%s)", name, it.SelectedPortion)
			}
			amount := it.Price.Mul(decimal.NewFromInt32(it.Quantity)).StringFixed(2)
			b.WriteString(padLine(fmt.Sprintf("%dx %s", it.Quantity, name), amount, width) + "\n")
			if it.Note != "" {
				fmt.Fprintf(b, "   * %s\n", it.Note)
			}
		}
		b.WriteString(divider(width) + "\n")
	case SectionTotals:
		bd := data.Breakdown
		b.WriteString(moneyLine("Subtotal", cur, bd.Subtotal, width) + "\n")
		if bd.Discount.IsPositive() {
			b.WriteString(moneyLine("Discount", cur, bd.Discount.Neg(), width) + "\n")
		}
		if bd.ServiceCharge.IsPositive() {
			b.WriteString(moneyLine("Service Charge", cur, bd.ServiceCharge, width) + "\n")
		}
		fmt.Fprintf(b, "%s%s%s\n", TagBold, moneyLine("TOTAL", cur, bd.GrandTotal, width), TagBoldOff)
	case SectionTaxInfo:
		bd := data.Breakdown
		if bd.GST.IsPositive() {
			b.WriteString(moneyLine(fmt.Sprintf("GST (%s%%)", bd.GSTRate.String()), cur, bd.GST, width) + "\n")
		}
		if bd.VAT.IsPositive() {
			b.WriteString(moneyLine("VAT", cur, bd.VAT, width) + "\n")
		}
		if bd.Cess.IsPositive() {
			b.WriteString(moneyLine("Cess", cur, bd.Cess, width) + "\n")
		}
	case SectionQRCode:
		if data.Order.PaymentID != "" {
			fmt.Fprintf(b, "%sPayment ref: %s%s\n", TagCenter, data.Order.PaymentID, TagLeft)
		}
	case SectionFooterText:
		if data.Settings.InvoiceFooterText != "" {
			fmt.Fprintf(b, "%s%s%s\n", TagCenter, data.Settings.InvoiceFooterText, TagLeft)
		}
	case SectionClosingMessage:
		msg := data.Settings.InvoiceClosingMessage
		if msg == "" {
			msg = "Thank you, visit again!"
		}
		fmt.Fprintf(b, "%s%s%s\n", TagCenter, msg, TagLeft)
	}
}

// RenderKOT produces a single-order kitchen ticket. No prices: the kitchen
// only needs items, portions and notes.
func (r *Renderer) RenderKOT(order model.Order, p model.PrinterSetting) string {
	var b strings.Builder
	width := LineWidth(p)

	b.WriteString(TagInit + "\n")
	fmt.Fprintf(&b, "%s%sKITCHEN ORDER TICKET%s%s\n", TagCenter, TagBig, TagBigOff, TagLeft)
	fmt.Fprintf(&b, "Order: %s  (%s)\n", order.ID, order.OrderType)
	if order.TableNumber != "" {
		fmt.Fprintf(&b, "Table: %s\n", order.TableNumber)
	}
	if order.RoomNumber != "" {
		fmt.Fprintf(&b, "Room: %s\n", order.RoomNumber)
	}
	fmt.Fprintf(&b, "Time: %s\n", r.Now().Format("15:04"))
	b.WriteString(divider(width) + "\n")
	writeKOTItems(&b, order.Items)
	b.WriteString(divider(width) + "\n")
	b.WriteString(TagCut + "\n")
	return b.String()
}

// RenderConsolidatedKOT prints every queued order on one ticket with a
// running pending-item count, for batch-mode flushes.
func (r *Renderer) RenderConsolidatedKOT(orders []model.Order, p model.PrinterSetting) string {
	var b strings.Builder
	width := LineWidth(p)

	b.WriteString(TagInit + "\n")
	fmt.Fprintf(&b, "%s%sCONSOLIDATED KOT%s%s\n", TagCenter, TagBig, TagBigOff, TagLeft)
	fmt.Fprintf(&b, "Orders: %d  Time: %s\n", len(orders), r.Now().Format("15:04"))
	b.WriteString(divider(width) + "\n")

	pending := 0
	for _, o := range orders {
		fmt.Fprintf(&b, "%s# %s", TagBold, o.ID)
		if o.TableNumber != "" {
			fmt.Fprintf(&b, " / Table %s", o.TableNumber)
		}
		b.WriteString(TagBoldOff + "\n")
		writeKOTItems(&b, o.Items)
		for _, it := range o.Items {
			pending += int(it.Quantity)
		}
		fmt.Fprintf(&b, "pending items so far: %d\n", pending)
	}

	b.WriteString(divider(width) + "\n")
	b.WriteString(TagCut + "\n")
	return b.String()
}

// RenderTestPage exercises every tag the encoder supports so a misconfigured
// printer shows up immediately.
func (r *Renderer) RenderTestPage(p model.PrinterSetting) string {
	var b strings.Builder
	width := LineWidth(p)

	b.WriteString(TagInit + "\n")
	fmt.Fprintf(&b, "%s%sPRINTER TEST%s%s\n", TagCenter, TagBig, TagBigOff, TagLeft)
	fmt.Fprintf(&b, "Printer: %s (%s)\n", p.Name, p.Role)
	fmt.Fprintf(&b, "Paper: %dmm  DPI: %d  Width: %d chars\n", p.PaperWidth, p.DPI, width)
	fmt.Fprintf(&b, "Time: %s\n", r.Now().Format("02 Jan 2006 15:04"))
	b.WriteString(divider(width) + "\n")
	fmt.Fprintf(&b, "%sbold%s %scenter%s %sright%s\n", TagBold, TagBoldOff, TagCenter, TagLeft, TagRight, TagLeft)
	b.WriteString(divider(width) + "\n")
	b.WriteString(TagCut + "\n")
	return b.String()
}

func writeKOTItems(b *strings.Builder, items []model.OrderItem) {
	for _, it := range items {
		name := it.Name
		if it.SelectedPortion != "" {
			name = fmt.Sprintf("%s (%s)", name, it.SelectedPortion)
		}
		fmt.Fprintf(b, "%dx %s\n", it.Quantity, name)
		if it.Note != "" {
			fmt.Fprintf(b, "   * %s\n", it.Note)
		}
	}
}

// --- layout helpers ---

func divider(width int) string {
	return strings.Repeat("-", width)
}

// padLine right-aligns value against label on a single line of the given
// width, falling back to a space when the content is too wide. Width is
// measured in runes so accented item names keep the amount column aligned.
func padLine(label, value string, width int) string {
	gap := width - utf8.RuneCountInString(label) - utf8.RuneCountInString(value)
	if gap < 1 {
		gap = 1
	}
	return label + strings.Repeat(" ", gap) + value
}

func moneyLine(label, currency string, d decimal.Decimal, width int) string {
	return padLine(label, currency+" "+d.StringFixed(2), width)
}
