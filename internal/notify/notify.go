// Package notify sends customer-facing emails through Postmark.
package notify

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"

	"github.com/agrichain/marketplace/internal/metrics"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/keighl/postmark"
)

const kindOrderConfirmation = "order_confirmation"

// Notifier tells customers about their orders
type Notifier interface {
	OrderPlaced(ctx context.Context, customer *models.Account, order *models.Order) error
}

type emailSender interface {
	SendEmail(email postmark.Email) (postmark.EmailResponse, error)
}

// PostmarkNotifier delivers notifications as Postmark emails
type PostmarkNotifier struct {
	client  emailSender
	from    string
	metrics *metrics.AppMetrics
}

// NewPostmark creates a notifier using a Postmark server token
func NewPostmark(serverToken, from string, m *metrics.AppMetrics) *PostmarkNotifier {
	return &PostmarkNotifier{
		client:  postmark.NewClient(serverToken, ""),
		from:    from,
		metrics: m,
	}
}

// OrderPlaced sends the order confirmation email
func (n *PostmarkNotifier) OrderPlaced(ctx context.Context, customer *models.Account, order *models.Order) error {
	if customer.Email == "" {
		return nil
	}

	_, err := n.client.SendEmail(postmark.Email{
		From:     n.from,
		To:       customer.Email,
		Subject:  "Order Confirmation",
		HtmlBody: orderConfirmationHTML(customer, order),
		TextBody: orderConfirmationText(customer, order),
		Tag:      kindOrderConfirmation,
	})
	n.metrics.RecordEmail(ctx, kindOrderConfirmation, err == nil)
	if err != nil {
		return fmt.Errorf("failed to send order confirmation for %s: %w", order.ID, err)
	}

	log.Printf("[EMAIL] Order confirmation for %s sent to %s", order.ID, customer.Email)
	return nil
}

func orderConfirmationHTML(customer *models.Account, order *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<strong>Dear %s,</strong><br><br>", html.EscapeString(customer.Name))
	fmt.Fprintf(&b, "Thank you for your purchase! Your order (ID: %s) has been placed successfully.<br><br><ul>",
		html.EscapeString(order.ID))
	for _, l := range order.Lines {
		fmt.Fprintf(&b, "<li>%d %s %s at %s</li>",
			l.Quantity, html.EscapeString(l.Unit), html.EscapeString(l.Name), l.Price.StringFixed(2))
	}
	fmt.Fprintf(&b, "</ul>Total Amount: <strong>%s</strong><br><br>Thank you for buying from our farmers!",
		order.TotalPrice.StringFixed(2))
	return b.String()
}

func orderConfirmationText(customer *models.Account, order *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\nYour order %s has been placed successfully.\n\n", customer.Name, order.ID)
	for _, l := range order.Lines {
		fmt.Fprintf(&b, "- %d %s %s at %s\n", l.Quantity, l.Unit, l.Name, l.Price.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotal Amount: %s\n", order.TotalPrice.StringFixed(2))
	return b.String()
}

// Nop discards notifications; used when no Postmark token is configured
type Nop struct{}

func (Nop) OrderPlaced(context.Context, *models.Account, *models.Order) error { return nil }
