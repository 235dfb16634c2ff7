package notify

import (
	"fmt"
	"strings"

	"github.com/tablemaster-pos/engine/internal/model"
)

// StatusUpdateEmail is the generic notification for any non-completion
// transition.
func StatusUpdateEmail(order model.Order, to string) Email {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p>", order.CustomerName)
	fmt.Fprintf(&b, "<p>Your order <strong>%s</strong> is now <strong>%s</strong>.</p>", order.ID, order.Status)
	b.WriteString("<p>We'll keep you posted.</p>")
	return Email{
		To:      to,
		Subject: fmt.Sprintf("Order %s: %s", order.ID, order.Status),
		HTML:    b.String(),
	}
}

// CompletionEmail carries the loyalty summary alongside the thank-you note.
// pointsAwarded is 0 when loyalty is disabled or the order has no user.
func CompletionEmail(order model.Order, to string, pointsAwarded, pointsBalance int64) Email {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p>", order.CustomerName)
	fmt.Fprintf(&b, "<p>Your order <strong>%s</strong> is complete. Thank you!</p>", order.ID)
	if pointsAwarded > 0 {
		fmt.Fprintf(&b, "<p>You earned <strong>%d</strong> loyalty points on this order. Your balance is %d.</p>",
			pointsAwarded, pointsBalance)
	}
	b.WriteString("<p>We hope to see you again soon.</p>")
	return Email{
		To:      to,
		Subject: fmt.Sprintf("Order %s completed", order.ID),
		HTML:    b.String(),
	}
}
