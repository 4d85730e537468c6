package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/Edson1589/pixel-retro-store-sub000/internal/domain"
	"github.com/Edson1589/pixel-retro-store-sub000/internal/store"
)

func finalizedPayment(t *testing.T, repo *Store) *domain.Payment {
	t.Helper()
	ctx := context.Background()

	payment, err := repo.CreatePayment(ctx, domain.Payment{
		IntentID:    "pi_test",
		AmountCents: 45000,
		Currency:    "BOB",
		Status:      domain.PaymentStatusRequiresConfirmation,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}

	if _, err := repo.FinalizeSale(ctx, store.FinalizeSaleInput{
		Customer:  domain.CustomerPayload{ID: "cus-seed-1"},
		Lines:     []store.SaleLine{{ProductID: 103, Quantity: 1}},
		Status:    domain.SaleStatusPaid,
		PaymentID: payment.ID,
	}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	linked, err := repo.GetPaymentByIntentID(ctx, payment.IntentID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	return linked
}

func TestUpdatePaymentCannotOverwriteLinkedPayment(t *testing.T) {
	repo := NewSeeded()
	linked := finalizedPayment(t, repo)

	stale := *linked
	stale.Status = domain.PaymentStatusFailed
	stale.FailureReason = domain.FailureReasonStockOrTransaction
	stale.SaleID = ""

	if _, err := repo.UpdatePayment(context.Background(), stale); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	after, err := repo.GetPaymentByIntentID(context.Background(), linked.IntentID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if after.Status != domain.PaymentStatusSucceeded || after.SaleID != linked.SaleID || after.FailureReason != "" {
		t.Fatalf("linked payment mutated: %+v", after)
	}
}

func TestUpdatePaymentNeverWritesSaleID(t *testing.T) {
	repo := NewSeeded()
	ctx := context.Background()

	payment, err := repo.CreatePayment(ctx, domain.Payment{
		IntentID: "pi_unlinked",
		Status:   domain.PaymentStatusRequiresConfirmation,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}

	update := *payment
	update.Status = domain.PaymentStatusRequiresAction
	update.SaleID = "sale_forged"
	if _, err := repo.UpdatePayment(ctx, update); err != nil {
		t.Fatalf("update: %v", err)
	}

	after, err := repo.GetPaymentByIntentID(ctx, payment.IntentID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if after.SaleID != "" {
		t.Fatalf("expected sale id untouched, got %q", after.SaleID)
	}
	if after.Status != domain.PaymentStatusRequiresAction {
		t.Fatalf("expected status update to apply, got %s", after.Status)
	}
}
