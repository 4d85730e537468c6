package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Edson1589/pixel-retro-store-sub000/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductInactive   = errors.New("product inactive")
	ErrInvalidSale       = errors.New("invalid sale")
	ErrConflict          = errors.New("conflict")
)

// SaleLine is one requested line of a finalization. UnitPriceCents of zero
// means "use the current catalog price".
type SaleLine struct {
	ProductID      int64
	Quantity       int
	UnitPriceCents int64
}

// FinalizeSaleInput is everything the transactional finalizer needs. When
// PaymentID is set, the payment's sale_id is linked and its status flipped
// to succeeded inside the same transaction.
type FinalizeSaleInput struct {
	Customer      domain.CustomerPayload
	Lines         []SaleLine
	DiscountCents int64
	UserID        string
	Status        string
	PaymentID     string
	PaymentRef    string
	PickupDocPath string
}

// NormalizeLines aggregates duplicate product ids and sorts ascending by
// product id, the lock order every finalization path uses. Both
// repositories normalize through here so their validation cannot drift.
func NormalizeLines(lines []SaleLine) ([]SaleLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrInvalidSale)
	}

	agg := make(map[int64]SaleLine, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidSale)
		}
		current := agg[line.ProductID]
		current.ProductID = line.ProductID
		current.Quantity += line.Quantity
		if line.UnitPriceCents > 0 {
			current.UnitPriceCents = line.UnitPriceCents
		}
		agg[line.ProductID] = current
	}

	normalized := make([]SaleLine, 0, len(agg))
	for _, line := range agg {
		normalized = append(normalized, line)
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i].ProductID < normalized[j].ProductID })
	return normalized, nil
}

type DeliveryInput struct {
	CI          string
	Notes       string
	DeliveredBy string
	At          time.Time
}

type Repository interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error)

	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)

	CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	GetPaymentByIntentID(ctx context.Context, intentID string) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	AppendPaymentEvent(ctx context.Context, event domain.PaymentEvent) error
	ListPaymentEvents(ctx context.Context, paymentID string) ([]domain.PaymentEvent, error)

	FinalizeSale(ctx context.Context, input FinalizeSaleInput) (*domain.Sale, error)
	VoidSale(ctx context.Context, saleID string, reason string, canceledBy string, at time.Time) (*domain.Sale, error)
	MarkDelivered(ctx context.Context, saleID string, input DeliveryInput) (*domain.Sale, error)
	UpdateSaleStatus(ctx context.Context, saleID string, status string) (*domain.Sale, error)
	GetSale(ctx context.Context, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, limit int) ([]domain.Sale, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
