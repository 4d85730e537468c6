package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Edson1589/pixel-retro-store-sub000/internal/domain"
	"github.com/Edson1589/pixel-retro-store-sub000/internal/store"
	"github.com/Edson1589/pixel-retro-store-sub000/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, price_cents, stock, is_unique, is_service, status
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Category, &product.PriceCents, &product.Stock, &product.IsUnique, &product.IsService, &product.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	result := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_cents, stock, is_unique, is_service, status
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Stock, &p.IsUnique, &p.IsService, &p.Status); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, COALESCE(ci,''), COALESCE(phone,''), created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Name, &customer.Email, &customer.CI, &customer.Phone, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, fmt.Errorf("%w: customer name required", store.ErrInvalidSale)
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, ci, phone, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, customer.Name, customer.Email, nullIfEmpty(customer.CI), nullIfEmpty(customer.Phone), customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: customer exists", store.ErrConflict)
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	payment.UpdatedAt = payment.CreatedAt

	metadata, err := json.Marshal(payment.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO payments (
			id, intent_id, client_secret, amount_cents, currency, status,
			brand, last4, failure_reason, requires_action, next_action,
			metadata, sale_id, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, payment.ID, payment.IntentID, payment.ClientSecret, payment.AmountCents, payment.Currency, payment.Status,
		nullIfEmpty(payment.Brand), nullIfEmpty(payment.Last4), nullIfEmpty(payment.FailureReason),
		payment.RequiresAction, nullIfEmpty(payment.NextAction), metadata, nullIfEmpty(payment.SaleID),
		payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: intent exists", store.ErrConflict)
		}
		return nil, err
	}

	created := payment
	return &created, nil
}

func (s *Store) GetPaymentByIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	return scanPayment(s.db.QueryRowContext(ctx, `
		SELECT id, intent_id, client_secret, amount_cents, currency, status,
			COALESCE(brand,''), COALESCE(last4,''), COALESCE(failure_reason,''),
			requires_action, COALESCE(next_action,''), metadata, COALESCE(sale_id,''),
			created_at, updated_at
		FROM payments
		WHERE intent_id = $1
	`, intentID))
}

// UpdatePayment never touches sale_id, and a payment that already
// succeeded with a linked sale is immutable here; only FinalizeSale writes
// that pair, so a racing confirm cannot downgrade the winner's record.
func (s *Store) UpdatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	payment.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, brand = $3, last4 = $4, failure_reason = $5,
			requires_action = $6, next_action = $7, updated_at = $8
		WHERE id = $1 AND NOT (status = $9 AND sale_id IS NOT NULL)
	`, payment.ID, payment.Status, nullIfEmpty(payment.Brand), nullIfEmpty(payment.Last4),
		nullIfEmpty(payment.FailureReason), payment.RequiresAction, nullIfEmpty(payment.NextAction), payment.UpdatedAt,
		domain.PaymentStatusSucceeded)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var saleID sql.NullString
		err := s.db.QueryRowContext(ctx, `SELECT sale_id FROM payments WHERE id = $1`, payment.ID).Scan(&saleID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: payment already linked to sale %s", store.ErrConflict, saleID.String)
	}

	updated := payment
	return &updated, nil
}

func (s *Store) AppendPaymentEvent(ctx context.Context, event domain.PaymentEvent) error {
	if event.ID == "" {
		event.ID = xid.New("evt")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_events (id, payment_id, type, data, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, event.ID, event.PaymentID, event.Type, nullIfEmpty(event.Data), event.CreatedAt)
	return err
}

func (s *Store) ListPaymentEvents(ctx context.Context, paymentID string) ([]domain.PaymentEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payment_id, type, COALESCE(data,''), created_at
		FROM payment_events
		WHERE payment_id = $1
		ORDER BY created_at ASC, id ASC
	`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.PaymentEvent, 0, 8)
	for rows.Next() {
		var event domain.PaymentEvent
		if err := rows.Scan(&event.ID, &event.PaymentID, &event.Type, &event.Data, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// FinalizeSale performs the entire finalization in one serializable
// transaction: customer resolution, product row locks in ascending id
// order, stock validation and decrement, sale plus detail inserts, and
// the one-shot payment link. Any error rolls everything back.
func (s *Store) FinalizeSale(ctx context.Context, input store.FinalizeSaleInput) (*domain.Sale, error) {
	lines, err := store.NormalizeLines(input.Lines)
	if err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	customerID := input.Customer.ID
	if customerID != "" {
		var exists bool
		err := pgTx.QueryRowContext(ctx, `SELECT true FROM customers WHERE id = $1`, customerID).Scan(&exists)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, customerID)
			}
			return nil, err
		}
	} else {
		if strings.TrimSpace(input.Customer.Name) == "" {
			return nil, fmt.Errorf("%w: customer name required", store.ErrInvalidSale)
		}
		customerID = xid.New("cus")
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO customers (id, name, email, ci, phone, created_at)
			VALUES ($1,$2,$3,$4,$5,now())
		`, customerID, input.Customer.Name, input.Customer.Email, nullIfEmpty(input.Customer.CI), nullIfEmpty(input.Customer.Phone))
		if err != nil {
			return nil, err
		}
	}

	// Lines arrive sorted ascending by product id, so the row locks are
	// always taken in the same order.
	subtotal := int64(0)
	details := make([]domain.SaleDetail, 0, len(lines))
	for _, line := range lines {
		var product domain.Product
		err := pgTx.QueryRowContext(ctx, `
			SELECT id, name, price_cents, stock, is_unique, is_service, status
			FROM products
			WHERE id = $1
			FOR UPDATE
		`, line.ProductID).Scan(&product.ID, &product.Name, &product.PriceCents, &product.Stock, &product.IsUnique, &product.IsService, &product.Status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, line.ProductID)
			}
			return nil, err
		}
		if product.Status != domain.ProductStatusActive {
			return nil, fmt.Errorf("%w: %s", store.ErrProductInactive, product.Name)
		}
		if product.IsUnique && line.Quantity > 1 {
			return nil, fmt.Errorf("%w: %s allows at most one unit per sale", store.ErrInvalidSale, product.Name)
		}
		if !product.IsService {
			if product.Stock < line.Quantity {
				return nil, fmt.Errorf("%w: %s", store.ErrInsufficientStock, product.Name)
			}
			_, err = pgTx.ExecContext(ctx, `
				UPDATE products
				SET stock = stock - $1, updated_at = now()
				WHERE id = $2
			`, line.Quantity, product.ID)
			if err != nil {
				return nil, err
			}
		}

		unitPrice := line.UnitPriceCents
		if unitPrice <= 0 {
			unitPrice = product.PriceCents
		}
		lineSubtotal := unitPrice * int64(line.Quantity)
		subtotal += lineSubtotal
		details = append(details, domain.SaleDetail{
			ProductID:      product.ID,
			ProductName:    product.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: unitPrice,
			SubtotalCents:  lineSubtotal,
		})
	}

	if input.DiscountCents < 0 || input.DiscountCents > subtotal {
		return nil, fmt.Errorf("%w: discount out of range", store.ErrInvalidSale)
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

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, user_id, customer_id, total_cents, discount_cents, status,
			payment_ref, is_canceled, delivery_status, pickup_doc_path, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,false,$8,$9,$10)
	`, sale.ID, nullIfEmpty(sale.UserID), sale.CustomerID, sale.TotalCents, sale.DiscountCents, sale.Status,
		nullIfEmpty(sale.PaymentRef), sale.DeliveryStatus, nullIfEmpty(sale.PickupDocPath), sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i := range details {
		details[i].SaleID = sale.ID
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_details (sale_id, product_id, product_name, quantity, unit_price_cents, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, details[i].ProductID, details[i].ProductName, details[i].Quantity, details[i].UnitPriceCents, details[i].SubtotalCents)
		if err != nil {
			return nil, err
		}
	}
	sale.Details = details

	if input.PaymentID != "" {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE payments
			SET sale_id = $2, status = $3, requires_action = false, next_action = NULL, updated_at = now()
			WHERE id = $1 AND sale_id IS NULL
		`, input.PaymentID, sale.ID, domain.PaymentStatusSucceeded)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: payment already linked", store.ErrConflict)
		}
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO payment_events (id, payment_id, type, data, created_at)
			VALUES ($1,$2,$3,$4,$5)
		`, xid.New("evt"), input.PaymentID, domain.PaymentEventSucceeded, fmt.Sprintf(`{"sale_id":%q}`, sale.ID), now)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) VoidSale(ctx context.Context, saleID string, reason string, canceledBy string, at time.Time) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var isCanceled bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT is_canceled
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, saleID).Scan(&isCanceled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if isCanceled {
		return nil, fmt.Errorf("%w: sale already voided", store.ErrConflict)
	}

	rows, err := pgTx.QueryContext(ctx, `
		SELECT sd.product_id, sd.quantity, p.is_service
		FROM sale_details sd
		JOIN products p ON p.id = sd.product_id
		WHERE sd.sale_id = $1
		ORDER BY sd.product_id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	type restock struct {
		productID int64
		quantity  int
		isService bool
	}
	restocks := make([]restock, 0, 8)
	for rows.Next() {
		var r restock
		if err := rows.Scan(&r.productID, &r.quantity, &r.isService); err != nil {
			_ = rows.Close()
			return nil, err
		}
		restocks = append(restocks, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, r := range restocks {
		if r.isService {
			continue
		}
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $1, updated_at = now()
			WHERE id = $2
		`, r.quantity, r.productID)
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET is_canceled = true, canceled_at = $2, canceled_by = $3, cancel_reason = $4,
			delivery_status = $5, delivered_at = NULL, delivered_by = NULL,
			delivered_to_ci = NULL, delivered_to_name = NULL, delivery_notes = NULL
		WHERE id = $1
	`, saleID, at, canceledBy, reason, domain.DeliveryStatusToDeliver)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetSale(ctx, saleID)
}

func (s *Store) MarkDelivered(ctx context.Context, saleID string, input store.DeliveryInput) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	var deliveryStatus string
	var isCanceled bool
	var customerID string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status, delivery_status, is_canceled, customer_id
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, saleID).Scan(&status, &deliveryStatus, &isCanceled, &customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if isCanceled {
		return nil, fmt.Errorf("%w: sale is voided", store.ErrConflict)
	}
	if status != domain.SaleStatusPaid {
		return nil, fmt.Errorf("%w: sale is not paid", store.ErrConflict)
	}
	if deliveryStatus == domain.DeliveryStatusDelivered {
		return nil, fmt.Errorf("%w: sale already delivered", store.ErrConflict)
	}

	var customerName string
	var customerCI string
	err = pgTx.QueryRowContext(ctx, `
		SELECT name, COALESCE(ci,'')
		FROM customers
		WHERE id = $1
	`, customerID).Scan(&customerName, &customerCI)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, customerID)
		}
		return nil, err
	}
	if strings.TrimSpace(customerCI) == "" {
		return nil, fmt.Errorf("%w: customer has no CI on file", store.ErrInvalidSale)
	}
	if !strings.EqualFold(strings.TrimSpace(input.CI), strings.TrimSpace(customerCI)) {
		return nil, fmt.Errorf("%w: CI does not match customer record", store.ErrInvalidSale)
	}

	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET delivery_status = $2, delivered_at = $3, delivered_by = $4,
			delivered_to_ci = $5, delivered_to_name = $6, delivery_notes = $7
		WHERE id = $1
	`, saleID, domain.DeliveryStatusDelivered, at, input.DeliveredBy, customerCI, customerName, nullIfEmpty(input.Notes))
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetSale(ctx, saleID)
}

func (s *Store) UpdateSaleStatus(ctx context.Context, saleID string, status string) (*domain.Sale, error) {
	switch status {
	case domain.SaleStatusPending, domain.SaleStatusPaid, domain.SaleStatusFailed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrInvalidSale, status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sales
		SET status = $2
		WHERE id = $1
	`, saleID, status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetSale(ctx, saleID)
}

func (s *Store) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, saleSelect+` WHERE id = $1`, saleID))
	if err != nil {
		return nil, err
	}

	details, err := s.saleDetails(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Details = details
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, saleSelect+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		details, err := s.saleDetails(ctx, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Details = details
	}
	return sales, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return fmt.Errorf("%w: username and password required", store.ErrInvalidSale)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username taken", store.ErrConflict)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const saleSelect = `
	SELECT id, COALESCE(user_id,''), customer_id, total_cents, discount_cents, status,
		COALESCE(payment_ref,''), is_canceled, canceled_at, COALESCE(canceled_by,''),
		COALESCE(cancel_reason,''), delivery_status, delivered_at, COALESCE(delivered_by,''),
		COALESCE(delivered_to_ci,''), COALESCE(delivered_to_name,''), COALESCE(delivery_notes,''),
		COALESCE(pickup_doc_path,''), created_at
	FROM sales`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var canceledAt sql.NullTime
	var deliveredAt sql.NullTime
	err := row.Scan(
		&sale.ID,
		&sale.UserID,
		&sale.CustomerID,
		&sale.TotalCents,
		&sale.DiscountCents,
		&sale.Status,
		&sale.PaymentRef,
		&sale.IsCanceled,
		&canceledAt,
		&sale.CanceledBy,
		&sale.CancelReason,
		&sale.DeliveryStatus,
		&deliveredAt,
		&sale.DeliveredBy,
		&sale.DeliveredToCI,
		&sale.DeliveredToName,
		&sale.DeliveryNotes,
		&sale.PickupDocPath,
		&sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	if canceledAt.Valid {
		at := canceledAt.Time.UTC()
		sale.CanceledAt = &at
	}
	if deliveredAt.Valid {
		at := deliveredAt.Time.UTC()
		sale.DeliveredAt = &at
	}
	return &sale, nil
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var payment domain.Payment
	var metadata []byte
	err := row.Scan(
		&payment.ID,
		&payment.IntentID,
		&payment.ClientSecret,
		&payment.AmountCents,
		&payment.Currency,
		&payment.Status,
		&payment.Brand,
		&payment.Last4,
		&payment.FailureReason,
		&payment.RequiresAction,
		&payment.NextAction,
		&metadata,
		&payment.SaleID,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &payment.Metadata); err != nil {
			return nil, err
		}
	}
	payment.CreatedAt = payment.CreatedAt.UTC()
	payment.UpdatedAt = payment.UpdatedAt.UTC()
	return &payment, nil
}

func (s *Store) saleDetails(ctx context.Context, saleID string) ([]domain.SaleDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, product_name, quantity, unit_price_cents, subtotal_cents
		FROM sale_details
		WHERE sale_id = $1
		ORDER BY product_id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := make([]domain.SaleDetail, 0, 8)
	for rows.Next() {
		var detail domain.SaleDetail
		if err := rows.Scan(&detail.SaleID, &detail.ProductID, &detail.ProductName, &detail.Quantity, &detail.UnitPriceCents, &detail.SubtotalCents); err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return details, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
