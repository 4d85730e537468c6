package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Edson1589/pixel-retro-store-sub000/internal/domain"
	"github.com/Edson1589/pixel-retro-store-sub000/internal/store"
)

var (
	adminActor = domain.Actor{Username: "admin", Role: "admin"}
	clerkActor = domain.Actor{Username: "clerk", Role: "clerk"}
)

func TestPOSSaleWithExistingCustomer(t *testing.T) {
	svc, repo := newTestService()
	before := productStock(t, repo, 101)

	resp, err := svc.CreatePOSSale(context.Background(), clerkActor, domain.POSSaleRequest{
		CustomerID:    "cus-seed-1",
		Items:         []domain.POSSaleLine{{ProductID: 101, Quantity: 1}, {ProductID: 108, Quantity: 3}},
		DiscountCents: 5000,
	})
	if err != nil {
		t.Fatalf("pos sale: %v", err)
	}

	if resp.Sale.TotalCents != 120000+3*5000-5000 {
		t.Fatalf("unexpected total %d", resp.Sale.TotalCents)
	}
	if resp.ItemsSold != 4 {
		t.Fatalf("expected 4 items sold, got %d", resp.ItemsSold)
	}
	if resp.Customer == nil || resp.Customer.ID != "cus-seed-1" {
		t.Fatalf("expected seeded customer in response, got %+v", resp.Customer)
	}
	if resp.Sale.UserID != "clerk" {
		t.Fatalf("expected sale recorded for clerk, got %s", resp.Sale.UserID)
	}
	if got := productStock(t, repo, 101); got != before-1 {
		t.Fatalf("expected stock %d, got %d", before-1, got)
	}

	sum := int64(0)
	for _, detail := range resp.Sale.Details {
		sum += detail.SubtotalCents
	}
	if sum-resp.Sale.DiscountCents != resp.Sale.TotalCents {
		t.Fatalf("details sum %d - discount %d != total %d", sum, resp.Sale.DiscountCents, resp.Sale.TotalCents)
	}
}

func TestPOSSaleWalkInCreatesCustomer(t *testing.T) {
	svc, repo := newTestService()

	resp, err := svc.CreatePOSSale(context.Background(), clerkActor, domain.POSSaleRequest{
		Customer: &domain.CustomerPayload{Name: "Marco Flores", Email: "marco@example.com", CI: "5512333"},
		Items:    []domain.POSSaleLine{{ProductID: 106, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("pos sale: %v", err)
	}
	if resp.Sale.CustomerID == "" {
		t.Fatalf("expected customer created for walk-in")
	}

	customer, err := repo.GetCustomer(context.Background(), resp.Sale.CustomerID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if customer.Name != "Marco Flores" || customer.CI != "5512333" {
		t.Fatalf("unexpected customer %+v", customer)
	}
}

func TestPOSSaleRequiresActorAndCustomer(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreatePOSSale(context.Background(), domain.Actor{}, domain.POSSaleRequest{
		CustomerID: "cus-seed-1",
		Items:      []domain.POSSaleLine{{ProductID: 106, Quantity: 1}},
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	_, err = svc.CreatePOSSale(context.Background(), clerkActor, domain.POSSaleRequest{
		Items: []domain.POSSaleLine{{ProductID: 106, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale without customer, got %v", err)
	}
}

func TestPOSSaleUniqueProductSingleUnit(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreatePOSSale(context.Background(), clerkActor, domain.POSSaleRequest{
		CustomerID: "cus-seed-1",
		Items:      []domain.POSSaleLine{{ProductID: 104, Quantity: 2}},
	})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale, got %v", err)
	}

	// Split lines for the same unique product must also be rejected.
	_, err = svc.CreatePOSSale(context.Background(), clerkActor, domain.POSSaleRequest{
		CustomerID: "cus-seed-1",
		Items: []domain.POSSaleLine{
			{ProductID: 104, Quantity: 1},
			{ProductID: 104, Quantity: 1},
		},
	})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for aggregated lines, got %v", err)
	}
}

func TestPOSSaleServiceProductSkipsStock(t *testing.T) {
	svc, repo := newTestService()

	resp, err := svc.CreatePOSSale(context.Background(), clerkActor, domain.POSSaleRequest{
		CustomerID: "cus-seed-1",
		Items:      []domain.POSSaleLine{{ProductID: 105, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("pos sale: %v", err)
	}
	if resp.Sale.TotalCents != 12000 {
		t.Fatalf("expected total 12000, got %d", resp.Sale.TotalCents)
	}
	if got := productStock(t, repo, 105); got != 0 {
		t.Fatalf("service product stock must stay 0, got %d", got)
	}
}

func TestVoidRestoresStockExactlyOnce(t *testing.T) {
	svc, repo := newTestService()
	before := productStock(t, repo, 106)

	resp, err := svc.CreatePOSSale(context.Background(), clerkActor, domain.POSSaleRequest{
		CustomerID: "cus-seed-1",
		Items:      []domain.POSSaleLine{{ProductID: 106, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("pos sale: %v", err)
	}
	if got := productStock(t, repo, 106); got != before-2 {
		t.Fatalf("expected stock %d, got %d", before-2, got)
	}

	voided, err := svc.VoidSale(context.Background(), adminActor, resp.Sale.ID, domain.VoidSaleRequest{Reason: "customer changed mind"})
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if !voided.Sale.IsCanceled || voided.Sale.CanceledBy != "admin" {
		t.Fatalf("unexpected voided sale %+v", voided.Sale)
	}
	if got := productStock(t, repo, 106); got != before {
		t.Fatalf("expected stock restored to %d, got %d", before, got)
	}

	_, err = svc.VoidSale(context.Background(), adminActor, resp.Sale.ID, domain.VoidSaleRequest{Reason: "again"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on second void, got %v", err)
	}
	if got := productStock(t, repo, 106); got != before {
		t.Fatalf("second void must not restock, got %d", got)
	}
}

func TestVoidRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.CreatePOSSale(context.Background(), clerkActor, domain.POSSaleRequest{
		CustomerID: "cus-seed-1",
		Items:      []domain.POSSaleLine{{ProductID: 108, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("pos sale: %v", err)
	}

	_, err = svc.VoidSale(context.Background(), clerkActor, resp.Sale.ID, domain.VoidSaleRequest{})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestDeliveryRequiresMatchingCI(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.CreatePOSSale(context.Background(), clerkActor, domain.POSSaleRequest{
		CustomerID: "cus-seed-1",
		Items:      []domain.POSSaleLine{{ProductID: 108, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("pos sale: %v", err)
	}
	saleID := resp.Sale.ID

	_, err = svc.MarkDelivered(context.Background(), clerkActor, saleID, domain.DeliverSaleRequest{CI: "9999999"})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale on CI mismatch, got %v", err)
	}

	// Surrounding whitespace is tolerated, the digits must match.
	delivered, err := svc.MarkDelivered(context.Background(), clerkActor, saleID, domain.DeliverSaleRequest{
		CI:    " 6723918 ",
		Notes: "picked up at counter",
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if delivered.Sale.DeliveryStatus != domain.DeliveryStatusDelivered {
		t.Fatalf("expected delivered, got %s", delivered.Sale.DeliveryStatus)
	}
	if delivered.Sale.DeliveredToCI != "6723918" || delivered.Sale.DeliveredBy != "clerk" {
		t.Fatalf("unexpected delivery record %+v", delivered.Sale)
	}

	_, err = svc.MarkDelivered(context.Background(), clerkActor, saleID, domain.DeliverSaleRequest{CI: "6723918"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on re-delivery, got %v", err)
	}
}

func TestDeliveryBlockedForVoidedAndUnpaidSales(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.CreatePOSSale(context.Background(), clerkActor, domain.POSSaleRequest{
		CustomerID: "cus-seed-1",
		Items:      []domain.POSSaleLine{{ProductID: 108, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("pos sale: %v", err)
	}
	saleID := resp.Sale.ID

	if _, err := svc.UpdateSaleStatus(context.Background(), adminActor, saleID, domain.UpdateSaleStatusRequest{Status: domain.SaleStatusPending}); err != nil {
		t.Fatalf("set pending: %v", err)
	}
	_, err = svc.MarkDelivered(context.Background(), clerkActor, saleID, domain.DeliverSaleRequest{CI: "6723918"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for unpaid sale, got %v", err)
	}

	if _, err := svc.UpdateSaleStatus(context.Background(), adminActor, saleID, domain.UpdateSaleStatusRequest{Status: domain.SaleStatusPaid}); err != nil {
		t.Fatalf("set paid: %v", err)
	}
	if _, err := svc.VoidSale(context.Background(), adminActor, saleID, domain.VoidSaleRequest{Reason: "test"}); err != nil {
		t.Fatalf("void: %v", err)
	}
	_, err = svc.MarkDelivered(context.Background(), clerkActor, saleID, domain.DeliverSaleRequest{CI: "6723918"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for voided sale, got %v", err)
	}
}

func TestUpdateSaleStatusValidation(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.CreatePOSSale(context.Background(), clerkActor, domain.POSSaleRequest{
		CustomerID: "cus-seed-1",
		Items:      []domain.POSSaleLine{{ProductID: 108, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("pos sale: %v", err)
	}

	_, err = svc.UpdateSaleStatus(context.Background(), clerkActor, resp.Sale.ID, domain.UpdateSaleStatusRequest{Status: domain.SaleStatusFailed})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for clerk, got %v", err)
	}

	_, err = svc.UpdateSaleStatus(context.Background(), adminActor, resp.Sale.ID, domain.UpdateSaleStatusRequest{Status: "shipped"})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for unknown status, got %v", err)
	}

	updated, err := svc.UpdateSaleStatus(context.Background(), adminActor, resp.Sale.ID, domain.UpdateSaleStatusRequest{Status: domain.SaleStatusFailed})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Sale.Status != domain.SaleStatusFailed {
		t.Fatalf("expected failed, got %s", updated.Sale.Status)
	}
}

func TestListSalesNewestFirst(t *testing.T) {
	svc, _ := newTestService()

	var last string
	for i := 0; i < 3; i++ {
		resp, err := svc.CreatePOSSale(context.Background(), clerkActor, domain.POSSaleRequest{
			CustomerID: "cus-seed-1",
			Items:      []domain.POSSaleLine{{ProductID: 108, Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("pos sale %d: %v", i, err)
		}
		last = resp.Sale.ID
	}

	sales, err := svc.ListSales(context.Background(), clerkActor, 2)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected 2 sales, got %d", len(sales))
	}
	if sales[0].Sale.ID != last {
		t.Fatalf("expected newest sale first")
	}
}
