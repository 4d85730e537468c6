package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Edson1589/pixel-retro-store-sub000/internal/domain"
	"github.com/Edson1589/pixel-retro-store-sub000/internal/notify"
	"github.com/Edson1589/pixel-retro-store-sub000/internal/store"
)

var (
	// ErrCardDeclined wraps every terminal simulator decline, including a
	// failed OTP. The result carries the specific reason.
	ErrCardDeclined = errors.New("card declined")

	// ErrPaymentFinalized means the intent already reached a terminal
	// state and cannot be confirmed again.
	ErrPaymentFinalized = errors.New("payment already finalized")

	ErrForbidden = errors.New("forbidden")
)

type Service struct {
	repo           store.Repository
	notifier       notify.Notifier
	currency       string
	receiptBaseURL string
}

func New(repo store.Repository, notifier notify.Notifier, currency string, receiptBaseURL string) *Service {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if currency == "" {
		currency = "BOB"
	}

	return &Service{
		repo:           repo,
		notifier:       notifier,
		currency:       currency,
		receiptBaseURL: strings.TrimRight(receiptBaseURL, "/"),
	}
}

func (s *Service) receiptURL(saleID string) string {
	if s.receiptBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/receipts/%s.pdf", s.receiptBaseURL, saleID)
}

// emit publishes a post-commit event. The sale is already durable, so a
// delivery failure is only logged.
func (s *Service) emit(ctx context.Context, event notify.Event) {
	if event.At == "" {
		event.At = time.Now().UTC().Format(time.RFC3339)
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		log.Printf("[service] WARN: failed to publish %s for sale %s: %v", event.Type, event.SaleID, err)
	}
}

func (s *Service) saleResponse(ctx context.Context, sale *domain.Sale) (*domain.SaleResponse, error) {
	resp := &domain.SaleResponse{
		Sale:      *sale,
		ItemsSold: sale.ItemsSold(),
	}
	customer, err := s.repo.GetCustomer(ctx, sale.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return resp, nil
		}
		return nil, err
	}
	resp.Customer = customer
	return resp, nil
}
