package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Edson1589/pixel-retro-store-sub000/internal/domain"
	"github.com/Edson1589/pixel-retro-store-sub000/internal/store"
	"github.com/Edson1589/pixel-retro-store-sub000/internal/xid"
)

// Store is the in-memory repository used for dev/demo mode and tests. A
// single mutex guards every mutation, so a finalization holds the lock for
// its whole read-validate-write sequence, matching the row-lock semantics
// of the postgres store.
type Store struct {
	mu               sync.RWMutex
	products         map[int64]domain.Product
	customersByID    map[string]domain.Customer
	paymentsByID     map[string]*domain.Payment
	paymentsByIntent map[string]*domain.Payment
	paymentEvents    map[string][]domain.PaymentEvent
	salesByID        map[string]*domain.Sale
	saleOrder        []string
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:         make(map[int64]domain.Product),
		customersByID:    make(map[string]domain.Customer),
		paymentsByID:     make(map[string]*domain.Payment),
		paymentsByIntent: make(map[string]*domain.Payment),
		paymentEvents:    make(map[string][]domain.PaymentEvent),
		salesByID:        make(map[string]*domain.Sale),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory staff accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CLERK_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These are never
// used in production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	clerkPwd := envOr("SEED_CLERK_PASSWORD", "clerk123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CLERK_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CLERK_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"clerk", clerkPwd, "clerk"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store preloaded with a small retro-game catalog and
// dev staff accounts.
func NewSeeded() *Store {
	s := New()

	products := []domain.Product{
		{ID: 101, Name: "SNES Classic Console", Category: "console", PriceCents: 120000, Stock: 8, Status: domain.ProductStatusActive},
		{ID: 102, Name: "Game Boy Color Teal", Category: "handheld", PriceCents: 85000, Stock: 12, Status: domain.ProductStatusActive},
		{ID: 103, Name: "Chrono Trigger Cartridge", Category: "game", PriceCents: 45000, Stock: 5, Status: domain.ProductStatusActive},
		{ID: 104, Name: "EarthBound Boxed CIB", Category: "game", PriceCents: 390000, Stock: 1, IsUnique: true, Status: domain.ProductStatusActive},
		{ID: 105, Name: "Controller Deep Clean", Category: "service", PriceCents: 6000, IsService: true, Status: domain.ProductStatusActive},
		{ID: 106, Name: "N64 Expansion Pak", Category: "accessory", PriceCents: 28000, Stock: 6, Status: domain.ProductStatusActive},
		{ID: 107, Name: "Sega Saturn (faulty drive)", Category: "console", PriceCents: 60000, Stock: 2, Status: domain.ProductStatusInactive},
		{ID: 108, Name: "AV Composite Cable", Category: "accessory", PriceCents: 5000, Stock: 30, Status: domain.ProductStatusActive},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}

	s.customersByID["cus-seed-1"] = domain.Customer{
		ID:        "cus-seed-1",
		Name:      "Valeria Mamani",
		Email:     "valeria@example.com",
		CI:        "6723918",
		Phone:     "591-70000001",
		CreatedAt: time.Now().UTC(),
	}

	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			result[id] = product
		}
	}
	return result, nil
}

// SetProduct upserts a catalog row. Test/seed helper; the checkout core
// never creates products.
func (s *Store) SetProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := customer
	return &copied, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCustomerLocked(customer)
}

func (s *Store) createCustomerLocked(customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, fmt.Errorf("%w: customer name required", store.ErrInvalidSale)
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	copied := customer
	return &copied, nil
}

func (s *Store) CreatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	payment.UpdatedAt = payment.CreatedAt

	stored := payment
	s.paymentsByID[payment.ID] = &stored
	s.paymentsByIntent[payment.IntentID] = &stored
	return &payment, nil
}

func (s *Store) GetPaymentByIntentID(_ context.Context, intentID string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, ok := s.paymentsByIntent[intentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *payment
	return &copied, nil
}

func (s *Store) UpdatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.paymentsByID[payment.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if stored.Status == domain.PaymentStatusSucceeded && stored.SaleID != "" {
		return nil, fmt.Errorf("%w: payment already linked to sale %s", store.ErrConflict, stored.SaleID)
	}
	payment.CreatedAt = stored.CreatedAt
	// sale_id is written only by FinalizeSale; updates never move it.
	payment.SaleID = stored.SaleID
	payment.UpdatedAt = time.Now().UTC()
	*stored = payment
	copied := payment
	return &copied, nil
}

func (s *Store) AppendPaymentEvent(_ context.Context, event domain.PaymentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendPaymentEventLocked(event)
	return nil
}

func (s *Store) appendPaymentEventLocked(event domain.PaymentEvent) {
	if event.ID == "" {
		event.ID = xid.New("evt")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.paymentEvents[event.PaymentID] = append(s.paymentEvents[event.PaymentID], event)
}

func (s *Store) ListPaymentEvents(_ context.Context, paymentID string) ([]domain.PaymentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.paymentEvents[paymentID]
	out := make([]domain.PaymentEvent, len(events))
	copy(out, events)
	return out, nil
}

// FinalizeSale is the transactional choke point. The mutex stands in for
// the row locks of the postgres store: validation, decrement, sale insert
// and payment link all happen under one critical section, and any failure
// leaves every product untouched.
func (s *Store) FinalizeSale(_ context.Context, input store.FinalizeSaleInput) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := store.NormalizeLines(input.Lines)
	if err != nil {
		return nil, err
	}

	customerID := input.Customer.ID
	newCustomer := customerID == ""
	if !newCustomer {
		if _, ok := s.customersByID[customerID]; !ok {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, customerID)
		}
	}

	var payment *domain.Payment
	if input.PaymentID != "" {
		stored, ok := s.paymentsByID[input.PaymentID]
		if !ok {
			return nil, fmt.Errorf("%w: payment %s", store.ErrNotFound, input.PaymentID)
		}
		if stored.SaleID != "" {
			return nil, fmt.Errorf("%w: payment already linked to sale %s", store.ErrConflict, stored.SaleID)
		}
		payment = stored
	}

	// Validate every line before touching stock so a late failure cannot
	// leave a partial decrement.
	type reservation struct {
		product domain.Product
		line    store.SaleLine
	}
	reservations := make([]reservation, 0, len(lines))
	for _, line := range lines {
		product, ok := s.products[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, line.ProductID)
		}
		if product.Status != domain.ProductStatusActive {
			return nil, fmt.Errorf("%w: %s", store.ErrProductInactive, product.Name)
		}
		if product.IsUnique && line.Quantity > 1 {
			return nil, fmt.Errorf("%w: %s allows at most one unit per sale", store.ErrInvalidSale, product.Name)
		}
		if !product.IsService && product.Stock < line.Quantity {
			return nil, fmt.Errorf("%w: %s", store.ErrInsufficientStock, product.Name)
		}
		reservations = append(reservations, reservation{product: product, line: line})
	}

	subtotal := int64(0)
	details := make([]domain.SaleDetail, 0, len(reservations))
	for _, r := range reservations {
		unitPrice := r.line.UnitPriceCents
		if unitPrice <= 0 {
			unitPrice = r.product.PriceCents
		}
		lineSubtotal := unitPrice * int64(r.line.Quantity)
		subtotal += lineSubtotal
		details = append(details, domain.SaleDetail{
			ProductID:      r.product.ID,
			ProductName:    r.product.Name,
			Quantity:       r.line.Quantity,
			UnitPriceCents: unitPrice,
			SubtotalCents:  lineSubtotal,
		})
	}

	if input.DiscountCents < 0 || input.DiscountCents > subtotal {
		return nil, fmt.Errorf("%w: discount out of range", store.ErrInvalidSale)
	}

	if newCustomer {
		created, err := s.createCustomerLocked(domain.Customer{
			Name:  input.Customer.Name,
			Email: input.Customer.Email,
			CI:    input.Customer.CI,
			Phone: input.Customer.Phone,
		})
		if err != nil {
			return nil, err
		}
		customerID = created.ID
	}

	for _, r := range reservations {
		if r.product.IsService {
			continue
		}
		product := s.products[r.product.ID]
		product.Stock -= r.line.Quantity
		s.products[r.product.ID] = product
	}

	now := time.Now().UTC()
	sale := domain.Sale{
		ID:             xid.New("sale"),
		UserID:         input.UserID,
		CustomerID:     customerID,
		TotalCents:     subtotal - input.DiscountCents,
		DiscountCents:  input.DiscountCents,
		Status:         input.Status,
		PaymentRef:     input.PaymentRef,
		DeliveryStatus: domain.DeliveryStatusToDeliver,
		PickupDocPath:  input.PickupDocPath,
		CreatedAt:      now,
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusPaid
	}
	for i := range details {
		details[i].SaleID = sale.ID
	}
	sale.Details = details

	stored := sale
	s.salesByID[sale.ID] = &stored
	s.saleOrder = append(s.saleOrder, sale.ID)

	if payment != nil {
		payment.SaleID = sale.ID
		payment.Status = domain.PaymentStatusSucceeded
		payment.RequiresAction = false
		payment.NextAction = ""
		payment.UpdatedAt = now
		s.appendPaymentEventLocked(domain.PaymentEvent{
			PaymentID: payment.ID,
			Type:      domain.PaymentEventSucceeded,
			Data:      fmt.Sprintf(`{"sale_id":%q}`, sale.ID),
		})
	}

	return &sale, nil
}

func (s *Store) VoidSale(_ context.Context, saleID string, reason string, canceledBy string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.IsCanceled {
		return nil, fmt.Errorf("%w: sale already voided", store.ErrConflict)
	}

	for _, detail := range sale.Details {
		product, ok := s.products[detail.ProductID]
		if !ok || product.IsService {
			continue
		}
		product.Stock += detail.Quantity
		s.products[detail.ProductID] = product
	}

	sale.IsCanceled = true
	sale.CanceledAt = &at
	sale.CanceledBy = canceledBy
	sale.CancelReason = reason
	sale.DeliveryStatus = domain.DeliveryStatusToDeliver
	sale.DeliveredAt = nil
	sale.DeliveredBy = ""
	sale.DeliveredToCI = ""
	sale.DeliveredToName = ""
	sale.DeliveryNotes = ""

	copied := *sale
	return &copied, nil
}

func (s *Store) MarkDelivered(_ context.Context, saleID string, input store.DeliveryInput) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.IsCanceled {
		return nil, fmt.Errorf("%w: sale is voided", store.ErrConflict)
	}
	if sale.Status != domain.SaleStatusPaid {
		return nil, fmt.Errorf("%w: sale is not paid", store.ErrConflict)
	}
	if sale.DeliveryStatus == domain.DeliveryStatusDelivered {
		return nil, fmt.Errorf("%w: sale already delivered", store.ErrConflict)
	}

	customer, ok := s.customersByID[sale.CustomerID]
	if !ok {
		return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, sale.CustomerID)
	}
	if strings.TrimSpace(customer.CI) == "" {
		return nil, fmt.Errorf("%w: customer has no CI on file", store.ErrInvalidSale)
	}
	if !strings.EqualFold(strings.TrimSpace(input.CI), strings.TrimSpace(customer.CI)) {
		return nil, fmt.Errorf("%w: CI does not match customer record", store.ErrInvalidSale)
	}

	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	sale.DeliveryStatus = domain.DeliveryStatusDelivered
	sale.DeliveredAt = &at
	sale.DeliveredBy = input.DeliveredBy
	sale.DeliveredToCI = customer.CI
	sale.DeliveredToName = customer.Name
	sale.DeliveryNotes = input.Notes

	copied := *sale
	return &copied, nil
}

func (s *Store) UpdateSaleStatus(_ context.Context, saleID string, status string) (*domain.Sale, error) {
	switch status {
	case domain.SaleStatusPending, domain.SaleStatusPaid, domain.SaleStatusFailed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrInvalidSale, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale.Status = status
	copied := *sale
	return &copied, nil
}

func (s *Store) GetSale(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *sale
	return &copied, nil
}

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	out := make([]domain.Sale, 0, limit)
	for i := len(s.saleOrder) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.salesByID[s.saleOrder[i]])
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("%w: username taken", store.ErrConflict)
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
