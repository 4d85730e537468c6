package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Edson1589/pixel-retro-store-sub000/internal/domain"
	"github.com/Edson1589/pixel-retro-store-sub000/internal/notify"
	"github.com/Edson1589/pixel-retro-store-sub000/internal/store"
)

// CreatePOSSale records a counter sale through the same transactional
// finalizer the checkout uses. The actor comes from the caller, never from
// ambient state.
func (s *Service) CreatePOSSale(ctx context.Context, actor domain.Actor, req domain.POSSaleRequest) (*domain.SaleResponse, error) {
	if actor.Username == "" {
		return nil, ErrForbidden
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: no items", store.ErrInvalidSale)
	}

	var customer domain.CustomerPayload
	switch {
	case req.CustomerID != "":
		customer.ID = req.CustomerID
	case req.Customer != nil && strings.TrimSpace(req.Customer.Name) != "":
		customer = *req.Customer
		customer.ID = ""
	default:
		return nil, fmt.Errorf("%w: customer_id or inline customer required", store.ErrInvalidSale)
	}

	lines := make([]store.SaleLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, store.SaleLine{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}

	sale, err := s.repo.FinalizeSale(ctx, store.FinalizeSaleInput{
		Customer:      customer,
		Lines:         lines,
		DiscountCents: req.DiscountCents,
		UserID:        actor.Username,
		Status:        domain.SaleStatusPaid,
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, notify.Event{
		Type:       notify.EventSaleCompleted,
		SaleID:     sale.ID,
		CustomerID: sale.CustomerID,
		TotalCents: sale.TotalCents,
		ReceiptURL: s.receiptURL(sale.ID),
	})

	return s.saleResponse(ctx, sale)
}

// VoidSale cancels a sale and restores its stock. One-way and admin only.
func (s *Service) VoidSale(ctx context.Context, actor domain.Actor, saleID string, req domain.VoidSaleRequest) (*domain.SaleResponse, error) {
	if actor.Role != "admin" {
		return nil, ErrForbidden
	}

	sale, err := s.repo.VoidSale(ctx, saleID, strings.TrimSpace(req.Reason), actor.Username, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.emit(ctx, notify.Event{
		Type:       notify.EventSaleVoided,
		SaleID:     sale.ID,
		CustomerID: sale.CustomerID,
		TotalCents: sale.TotalCents,
	})

	return s.saleResponse(ctx, sale)
}

// MarkDelivered hands the goods over after the CI identity check. The
// comparison happens inside the store transaction against the stored
// customer record.
func (s *Service) MarkDelivered(ctx context.Context, actor domain.Actor, saleID string, req domain.DeliverSaleRequest) (*domain.SaleResponse, error) {
	if actor.Username == "" {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(req.CI) == "" {
		return nil, fmt.Errorf("%w: ci required", store.ErrInvalidSale)
	}

	sale, err := s.repo.MarkDelivered(ctx, saleID, store.DeliveryInput{
		CI:          req.CI,
		Notes:       strings.TrimSpace(req.Notes),
		DeliveredBy: actor.Username,
		At:          time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, notify.Event{
		Type:       notify.EventSaleDelivered,
		SaleID:     sale.ID,
		CustomerID: sale.CustomerID,
	})

	return s.saleResponse(ctx, sale)
}

// UpdateSaleStatus is the admin corrective override among pending, paid
// and failed. It never touches stock or delivery state.
func (s *Service) UpdateSaleStatus(ctx context.Context, actor domain.Actor, saleID string, req domain.UpdateSaleStatusRequest) (*domain.SaleResponse, error) {
	if actor.Role != "admin" {
		return nil, ErrForbidden
	}

	sale, err := s.repo.UpdateSaleStatus(ctx, saleID, strings.TrimSpace(req.Status))
	if err != nil {
		return nil, err
	}
	return s.saleResponse(ctx, sale)
}

func (s *Service) GetSale(ctx context.Context, actor domain.Actor, saleID string) (*domain.SaleResponse, error) {
	if actor.Username == "" {
		return nil, ErrForbidden
	}

	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	return s.saleResponse(ctx, sale)
}

func (s *Service) ListSales(ctx context.Context, actor domain.Actor, limit int) ([]domain.SaleResponse, error) {
	if actor.Username == "" {
		return nil, ErrForbidden
	}

	sales, err := s.repo.ListSales(ctx, limit)
	if err != nil {
		return nil, err
	}

	responses := make([]domain.SaleResponse, 0, len(sales))
	for i := range sales {
		resp, err := s.saleResponse(ctx, &sales[i])
		if err != nil {
			return nil, err
		}
		responses = append(responses, *resp)
	}
	return responses, nil
}
