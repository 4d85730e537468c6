package domain

import "time"

// Product is owned by the catalog subsystem. The checkout core only reads
// price/flags and adjusts stock through the store's lock-held primitives.
type Product struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
	IsUnique   bool   `json:"is_unique"`
	IsService  bool   `json:"is_service"`
	Status     string `json:"status"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CI        string    `json:"ci"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomerPayload is the inline create shape accepted by checkout and POS
// walk-in sales, and the customer half of a payment metadata snapshot.
type CustomerPayload struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	CI    string `json:"ci,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type IntentItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"qty"`
}

// PaymentMetadata is the typed snapshot persisted on a payment at intent
// creation and replayed at finalization. Transported as JSON, never a
// free-form blob.
type PaymentMetadata struct {
	Customer CustomerPayload `json:"customer"`
	Items    []IntentItem    `json:"items"`
}

type Payment struct {
	ID             string          `json:"id"`
	IntentID       string          `json:"intent_id"`
	ClientSecret   string          `json:"-"`
	AmountCents    int64           `json:"amount_cents"`
	Currency       string          `json:"currency"`
	Status         string          `json:"status"`
	Brand          string          `json:"brand,omitempty"`
	Last4          string          `json:"last4,omitempty"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	RequiresAction bool            `json:"requires_action"`
	NextAction     string          `json:"next_action,omitempty"`
	Metadata       PaymentMetadata `json:"metadata"`
	SaleID         string          `json:"sale_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PaymentEvent is an append-only audit record. Never mutated.
type PaymentEvent struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"payment_id"`
	Type      string    `json:"type"`
	Data      string    `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SaleDetail struct {
	SaleID         string `json:"sale_id"`
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type Sale struct {
	ID              string       `json:"id"`
	UserID          string       `json:"user_id,omitempty"`
	CustomerID      string       `json:"customer_id"`
	TotalCents      int64        `json:"total_cents"`
	DiscountCents   int64        `json:"discount_cents"`
	Status          string       `json:"status"`
	PaymentRef      string       `json:"payment_ref,omitempty"`
	IsCanceled      bool         `json:"is_canceled"`
	CanceledAt      *time.Time   `json:"canceled_at,omitempty"`
	CanceledBy      string       `json:"canceled_by,omitempty"`
	CancelReason    string       `json:"cancel_reason,omitempty"`
	DeliveryStatus  string       `json:"delivery_status"`
	DeliveredAt     *time.Time   `json:"delivered_at,omitempty"`
	DeliveredBy     string       `json:"delivered_by,omitempty"`
	DeliveredToCI   string       `json:"delivered_to_ci,omitempty"`
	DeliveredToName string       `json:"delivered_to_name,omitempty"`
	DeliveryNotes   string       `json:"delivery_notes,omitempty"`
	PickupDocPath   string       `json:"pickup_doc_path,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	Details         []SaleDetail `json:"details"`
}

// ItemsSold sums quantities across the sale's details.
func (s Sale) ItemsSold() int {
	total := 0
	for _, detail := range s.Details {
		total += detail.Quantity
	}
	return total
}

// Actor identifies the authenticated staff member performing an operation.
// Threaded explicitly into service calls, never pulled from a session.
type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type CreateIntentRequest struct {
	Customer CustomerPayload `json:"customer"`
	Items    []IntentItem    `json:"items"`
	Currency string          `json:"currency,omitempty"`
}

type IntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

type ConfirmIntentRequest struct {
	ClientSecret string `json:"client_secret"`
	CardNumber   string `json:"card_number"`
	ExpMonth     int    `json:"exp_month"`
	ExpYear      int    `json:"exp_year"`
	CVC          string `json:"cvc"`
}

type VerifyOTPRequest struct {
	ClientSecret string `json:"client_secret"`
	OTP          string `json:"otp"`
}

// ConfirmResult carries every field the confirm/verify responses can need;
// the HTTP layer picks the shape from Status.
type ConfirmResult struct {
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	NextAction   string `json:"next_action,omitempty"`
	IntentID     string `json:"id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	PaymentRef   string `json:"payment_ref,omitempty"`
	SaleID       string `json:"sale_id,omitempty"`
	TotalCents   int64  `json:"total_cents,omitempty"`
	ReceiptURL   string `json:"receipt_url,omitempty"`
}

type POSSaleLine struct {
	ProductID      int64 `json:"product_id"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents,omitempty"`
}

type POSSaleRequest struct {
	CustomerID    string           `json:"customer_id,omitempty"`
	Customer      *CustomerPayload `json:"customer,omitempty"`
	Items         []POSSaleLine    `json:"items"`
	DiscountCents int64            `json:"discount_cents,omitempty"`
}

type VoidSaleRequest struct {
	Reason string `json:"reason,omitempty"`
}

type DeliverSaleRequest struct {
	CI    string `json:"ci"`
	Notes string `json:"notes,omitempty"`
}

type UpdateSaleStatusRequest struct {
	Status string `json:"status"`
}

type SaleResponse struct {
	Sale      Sale      `json:"sale"`
	Customer  *Customer `json:"customer,omitempty"`
	ItemsSold int       `json:"items_sold"`
}

const (
	PaymentStatusRequiresConfirmation = "requires_confirmation"
	PaymentStatusRequiresAction       = "requires_action"
	PaymentStatusSucceeded            = "succeeded"
	PaymentStatusFailed               = "failed"
	PaymentStatusCanceled             = "canceled"
)

// IsTerminalPaymentStatus reports whether a payment can never transition again.
func IsTerminalPaymentStatus(status string) bool {
	switch status {
	case PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCanceled:
		return true
	default:
		return false
	}
}

const (
	PaymentEventIntentCreated  = "intent.created"
	PaymentEventFailed         = "payment.failed"
	PaymentEventRequiresAction = "payment.requires_action"
	PaymentEventSucceeded      = "payment.succeeded"
)

const (
	SaleStatusPending = "pending"
	SaleStatusPaid    = "paid"
	SaleStatusFailed  = "failed"
)

const (
	DeliveryStatusToDeliver = "to_deliver"
	DeliveryStatusDelivered = "delivered"
)

const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)

const (
	FailureReasonCardDeclined       = "card_declined"
	FailureReasonInsufficientFunds  = "insufficient_funds"
	FailureReasonExpiredCard        = "expired_card"
	FailureReasonOTPInvalid         = "otp_invalid"
	FailureReasonStockOrTransaction = "stock_or_transaction"
)
