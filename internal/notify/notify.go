// Package notify delivers post-commit side effects. Publish is called only
// after the sale transaction has committed; a delivery failure is logged by
// the caller and never rolls the sale back.
package notify

import "context"

const (
	EventSaleCompleted = "sale.completed"
	EventSaleVoided    = "sale.voided"
	EventSaleDelivered = "sale.delivered"
)

type Event struct {
	Type       string `json:"type"`
	SaleID     string `json:"sale_id"`
	CustomerID string `json:"customer_id,omitempty"`
	TotalCents int64  `json:"total_cents,omitempty"`
	ReceiptURL string `json:"receipt_url,omitempty"`
	At         string `json:"at"`
}

type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

type NoopNotifier struct{}

func (NoopNotifier) Publish(_ context.Context, _ Event) error {
	return nil
}
