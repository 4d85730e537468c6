package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/Edson1589/pixel-retro-store-sub000/internal/cardsim"
	"github.com/Edson1589/pixel-retro-store-sub000/internal/domain"
	"github.com/Edson1589/pixel-retro-store-sub000/internal/notify"
	"github.com/Edson1589/pixel-retro-store-sub000/internal/store"
	"github.com/Edson1589/pixel-retro-store-sub000/internal/xid"
)

// CreateIntent prices the cart server-side from the catalog and records a
// payment in requires_confirmation with a typed metadata snapshot. No stock
// is touched here; reservation happens only at finalization.
func (s *Service) CreateIntent(ctx context.Context, req domain.CreateIntentRequest) (*domain.IntentResponse, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: no items", store.ErrInvalidSale)
	}
	if req.Customer.ID == "" && strings.TrimSpace(req.Customer.Name) == "" {
		return nil, fmt.Errorf("%w: customer required", store.ErrInvalidSale)
	}

	quantities := make(map[int64]int, len(req.Items))
	ids := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be at least 1", store.ErrInvalidSale)
		}
		if _, seen := quantities[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	amount := int64(0)
	for _, id := range ids {
		product, ok := products[id]
		if !ok {
			return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, id)
		}
		if product.Status != domain.ProductStatusActive {
			return nil, fmt.Errorf("%w: %s", store.ErrProductInactive, product.Name)
		}
		if product.IsUnique && quantities[id] > 1 {
			return nil, fmt.Errorf("%w: %s allows at most one unit per sale", store.ErrInvalidSale, product.Name)
		}
		amount += product.PriceCents * int64(quantities[id])
	}

	if req.Customer.ID != "" {
		if _, err := s.repo.GetCustomer(ctx, req.Customer.ID); err != nil {
			return nil, err
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.currency
	}

	payment := domain.Payment{
		IntentID:     xid.New("pi"),
		ClientSecret: newClientSecret(),
		AmountCents:  amount,
		Currency:     currency,
		Status:       domain.PaymentStatusRequiresConfirmation,
		Metadata: domain.PaymentMetadata{
			Customer: req.Customer,
			Items:    req.Items,
		},
	}

	created, err := s.repo.CreatePayment(ctx, payment)
	if err != nil {
		return nil, err
	}

	if err := s.repo.AppendPaymentEvent(ctx, domain.PaymentEvent{
		PaymentID: created.ID,
		Type:      domain.PaymentEventIntentCreated,
		Data:      fmt.Sprintf(`{"amount_cents":%d,"currency":%q}`, amount, currency),
	}); err != nil {
		return nil, err
	}

	return &domain.IntentResponse{
		ID:           created.IntentID,
		ClientSecret: created.ClientSecret,
		AmountCents:  created.AmountCents,
		Currency:     created.Currency,
		Status:       created.Status,
	}, nil
}

// ConfirmIntent runs the card through the simulator and, on success,
// finalizes the sale. Confirming is only valid from requires_confirmation;
// a terminal intent returns a conflict so a double submit can never charge
// or decrement twice.
func (s *Service) ConfirmIntent(ctx context.Context, intentID string, req domain.ConfirmIntentRequest) (*domain.ConfirmResult, error) {
	payment, err := s.authorizeIntent(ctx, intentID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	if result, err := s.rejectNonConfirmable(payment, domain.PaymentStatusRequiresConfirmation); err != nil {
		return result, err
	}

	if strings.TrimSpace(req.CardNumber) == "" {
		return nil, fmt.Errorf("%w: card number required", store.ErrInvalidSale)
	}

	payment.Brand = cardsim.Brand(req.CardNumber)
	payment.Last4 = cardsim.Last4(req.CardNumber)

	outcome := cardsim.Simulate(req.CardNumber)
	switch outcome.Status {
	case cardsim.StatusFailed:
		return s.failPayment(ctx, payment, outcome.Reason)

	case cardsim.StatusRequiresAction:
		payment.Status = domain.PaymentStatusRequiresAction
		payment.RequiresAction = true
		payment.NextAction = outcome.NextAction
		if _, err := s.repo.UpdatePayment(ctx, *payment); err != nil {
			return nil, err
		}
		if err := s.repo.AppendPaymentEvent(ctx, domain.PaymentEvent{
			PaymentID: payment.ID,
			Type:      domain.PaymentEventRequiresAction,
			Data:      fmt.Sprintf(`{"next_action":%q}`, outcome.NextAction),
		}); err != nil {
			return nil, err
		}
		return &domain.ConfirmResult{
			Status:       domain.PaymentStatusRequiresAction,
			NextAction:   outcome.NextAction,
			IntentID:     payment.IntentID,
			ClientSecret: payment.ClientSecret,
		}, nil

	default:
		if _, err := s.repo.UpdatePayment(ctx, *payment); err != nil {
			if errors.Is(err, store.ErrConflict) {
				if result, echoErr := s.echoIfFinalized(ctx, payment.IntentID); echoErr != nil {
					return result, echoErr
				}
			}
			return nil, err
		}
		return s.finalizeFromPayment(ctx, payment)
	}
}

// Verify3DS resolves a pending OTP challenge. Only valid from
// requires_action; a wrong OTP is a terminal failure, not a retry.
func (s *Service) Verify3DS(ctx context.Context, intentID string, req domain.VerifyOTPRequest) (*domain.ConfirmResult, error) {
	payment, err := s.authorizeIntent(ctx, intentID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	if result, err := s.rejectNonConfirmable(payment, domain.PaymentStatusRequiresAction); err != nil {
		return result, err
	}

	if req.OTP != cardsim.ValidOTP {
		return s.failPayment(ctx, payment, domain.FailureReasonOTPInvalid)
	}

	return s.finalizeFromPayment(ctx, payment)
}

func (s *Service) ListPaymentEvents(ctx context.Context, paymentID string) ([]domain.PaymentEvent, error) {
	return s.repo.ListPaymentEvents(ctx, paymentID)
}

// authorizeIntent requires the id and secret to match as a pair. A wrong
// secret is indistinguishable from a missing intent.
func (s *Service) authorizeIntent(ctx context.Context, intentID string, clientSecret string) (*domain.Payment, error) {
	payment, err := s.repo.GetPaymentByIntentID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if clientSecret == "" || payment.ClientSecret != clientSecret {
		return nil, store.ErrNotFound
	}
	return payment, nil
}

// rejectNonConfirmable returns a conflict unless the payment sits in the
// expected state. For an already succeeded payment the result echoes the
// original sale so the caller can report the earlier outcome.
func (s *Service) rejectNonConfirmable(payment *domain.Payment, expected string) (*domain.ConfirmResult, error) {
	if payment.Status == expected {
		return nil, nil
	}
	if domain.IsTerminalPaymentStatus(payment.Status) {
		result := &domain.ConfirmResult{
			Status:   payment.Status,
			Reason:   payment.FailureReason,
			IntentID: payment.IntentID,
		}
		if payment.Status == domain.PaymentStatusSucceeded && payment.SaleID != "" {
			result.PaymentRef = payment.ID
			result.SaleID = payment.SaleID
			result.TotalCents = payment.AmountCents
		}
		return result, ErrPaymentFinalized
	}
	return nil, fmt.Errorf("%w: payment is %s", store.ErrConflict, payment.Status)
}

// echoIfFinalized re-reads the payment after a linking conflict. When a
// concurrent confirm of the same intent already drove it to a terminal
// state, the earlier outcome is echoed instead of downgrading a payment
// that in fact succeeded.
func (s *Service) echoIfFinalized(ctx context.Context, intentID string) (*domain.ConfirmResult, error) {
	latest, err := s.repo.GetPaymentByIntentID(ctx, intentID)
	if err != nil || !domain.IsTerminalPaymentStatus(latest.Status) {
		return nil, nil
	}
	return s.rejectNonConfirmable(latest, domain.PaymentStatusRequiresConfirmation)
}

func (s *Service) failPayment(ctx context.Context, payment *domain.Payment, reason string) (*domain.ConfirmResult, error) {
	payment.Status = domain.PaymentStatusFailed
	payment.FailureReason = reason
	payment.RequiresAction = false
	payment.NextAction = ""
	if _, err := s.repo.UpdatePayment(ctx, *payment); err != nil {
		return nil, err
	}
	if err := s.repo.AppendPaymentEvent(ctx, domain.PaymentEvent{
		PaymentID: payment.ID,
		Type:      domain.PaymentEventFailed,
		Data:      fmt.Sprintf(`{"reason":%q}`, reason),
	}); err != nil {
		return nil, err
	}
	return &domain.ConfirmResult{
		Status:   domain.PaymentStatusFailed,
		Reason:   reason,
		IntentID: payment.IntentID,
	}, fmt.Errorf("%w: %s", ErrCardDeclined, reason)
}

// finalizeFromPayment replays the metadata snapshot through the
// transactional finalizer. A stock or transaction failure downgrades the
// payment to a terminal failure instead of leaving it dangling.
func (s *Service) finalizeFromPayment(ctx context.Context, payment *domain.Payment) (*domain.ConfirmResult, error) {
	lines := make([]store.SaleLine, 0, len(payment.Metadata.Items))
	for _, item := range payment.Metadata.Items {
		lines = append(lines, store.SaleLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	sale, err := s.repo.FinalizeSale(ctx, store.FinalizeSaleInput{
		Customer:   payment.Metadata.Customer,
		Lines:      lines,
		Status:     domain.SaleStatusPaid,
		PaymentID:  payment.ID,
		PaymentRef: payment.ID,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			if result, echoErr := s.echoIfFinalized(ctx, payment.IntentID); echoErr != nil {
				return result, echoErr
			}
		}
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInsufficientStock) ||
			errors.Is(err, store.ErrProductInactive) || errors.Is(err, store.ErrInvalidSale) ||
			errors.Is(err, store.ErrConflict) {
			if _, failErr := s.failPayment(ctx, payment, domain.FailureReasonStockOrTransaction); failErr != nil && !errors.Is(failErr, ErrCardDeclined) {
				return nil, failErr
			}
			return &domain.ConfirmResult{
				Status:   domain.PaymentStatusFailed,
				Reason:   domain.FailureReasonStockOrTransaction,
				IntentID: payment.IntentID,
			}, fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
		return nil, err
	}

	s.emit(ctx, notify.Event{
		Type:       notify.EventSaleCompleted,
		SaleID:     sale.ID,
		CustomerID: sale.CustomerID,
		TotalCents: sale.TotalCents,
		ReceiptURL: s.receiptURL(sale.ID),
	})

	return &domain.ConfirmResult{
		Status:     domain.PaymentStatusSucceeded,
		IntentID:   payment.IntentID,
		PaymentRef: payment.ID,
		SaleID:     sale.ID,
		TotalCents: sale.TotalCents,
		ReceiptURL: s.receiptURL(sale.ID),
	}, nil
}

func newClientSecret() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return xid.New("secret")
	}
	return "cs_" + hex.EncodeToString(buf)
}
