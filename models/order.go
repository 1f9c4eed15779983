package models

import (
	"time"

	"restaurant-order-system/availability"
	"restaurant-order-system/orderstatus"
	"restaurant-order-system/pricing"
)

// CheckoutRequest starts an OrderWorkflow
type CheckoutRequest struct {
	OrderID      string             `json:"order_id"`
	CustomerName string             `json:"customer_name"`
	Lines        []pricing.CartLine `json:"lines"`
	PromoCode    string             `json:"promo_code,omitempty"`
	IsFirstOrder bool               `json:"is_first_order"`
	EnforceHours bool               `json:"enforce_hours"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Order is the persisted shape of an order
type Order struct {
	ID        string                 `json:"id"`
	Status    orderstatus.Status     `json:"status"`
	Breakdown pricing.PriceBreakdown `json:"breakdown"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// AvailabilityRequest asks whether the restaurant is open at a given instant
type AvailabilityRequest struct {
	OrderID string    `json:"order_id"`
	At      time.Time `json:"at"`
}

// PricingRequest carries the cart to the pricing activity
type PricingRequest struct {
	OrderID      string             `json:"order_id"`
	Lines        []pricing.CartLine `json:"lines"`
	PromoCode    string             `json:"promo_code,omitempty"`
	IsFirstOrder bool               `json:"is_first_order"`
}

// PricingResult is the computed breakdown plus the promotion rejection, if any
type PricingResult struct {
	Breakdown        pricing.PriceBreakdown `json:"breakdown"`
	PromotionMessage string                 `json:"promotion_message,omitempty"`
}

// PaymentRequest is the input of the PaymentWorkflow child. The breakdown
// travels with the charge so the payment side can refuse one that does not
// add up.
type PaymentRequest struct {
	OrderID   string                 `json:"order_id"`
	Breakdown pricing.PriceBreakdown `json:"breakdown"`
}

// Amount is the amount to charge.
func (r PaymentRequest) Amount() pricing.Money {
	return r.Breakdown.Total
}

// PaymentResult describes a captured payment
type PaymentResult struct {
	AuthorizationID string        `json:"authorization_id"`
	TransactionID   string        `json:"transaction_id"`
	Amount          pricing.Money `json:"amount"`
	CapturedAt      time.Time     `json:"captured_at"`
}

// StatusChangeRequest is sent by the admin tool to move an order along
type StatusChangeRequest struct {
	Requested orderstatus.Status `json:"requested"`
	Actor     string             `json:"actor,omitempty"`
	Reason    string             `json:"reason,omitempty"`
}

// StatusChange records one applied transition
type StatusChange struct {
	From      orderstatus.Status `json:"from"`
	To        orderstatus.Status `json:"to"`
	Actor     string             `json:"actor,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	ChangedAt time.Time          `json:"changed_at"`
}

// WorkflowState represents the current state of the workflow
type WorkflowState struct {
	OrderID              string                 `json:"order_id"`
	Status               orderstatus.Status     `json:"status"`
	Breakdown            pricing.PriceBreakdown `json:"breakdown"`
	Availability         availability.Verdict   `json:"availability"`
	PromotionMessage     string                 `json:"promotion_message,omitempty"`
	PaymentTransactionID string                 `json:"payment_transaction_id,omitempty"`
	RefundID             string                 `json:"refund_id,omitempty"`
	LastRejection        string                 `json:"last_rejection,omitempty"`
	History              []StatusChange         `json:"history"`
	LastUpdated          time.Time              `json:"last_updated"`
}
