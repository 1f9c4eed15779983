package activities

import (
	"context"
	"fmt"
	"time"

	"restaurant-order-system/models"

	"github.com/shopspring/decimal"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// ErrTypePaymentDeclined marks authorizations that retrying cannot fix.
const ErrTypePaymentDeclined = "PaymentDeclined"

// AuthorizationLimit is the largest amount the simulated gateway accepts.
var AuthorizationLimit = decimal.NewFromInt(9999)

// PaymentActivities simulates a card gateway. Delay is the artificial
// latency of each call.
type PaymentActivities struct {
	Delay time.Duration
}

// NewPaymentActivities creates a new PaymentActivities instance
func NewPaymentActivities() *PaymentActivities {
	return &PaymentActivities{Delay: time.Second}
}

// AuthorizePayment authorizes a payment for the given order
func (p *PaymentActivities) AuthorizePayment(ctx context.Context, req models.PaymentRequest) (string, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Authorizing payment", "order_id", req.OrderID, "amount", req.Amount().StringFixed(2))

	if err := p.wait(ctx); err != nil {
		return "", err
	}

	activity.RecordHeartbeat(ctx, "authorizing payment")

	if !req.Amount().IsPositive() {
		return "", temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid payment amount: %s", req.Amount().StringFixed(2)), ErrTypePaymentDeclined, nil)
	}
	if req.Amount().GreaterThan(AuthorizationLimit) {
		return "", temporal.NewNonRetryableApplicationError(
			"payment amount exceeds authorization limit", ErrTypePaymentDeclined, nil)
	}

	info := activity.GetInfo(ctx)
	authorizationID := fmt.Sprintf("AUTH-%s-%d", shortID(req.OrderID), info.Attempt)

	logger.Info("Payment authorized successfully", "order_id", req.OrderID, "authorization_id", authorizationID)
	return authorizationID, nil
}

// CapturePayment captures a previously authorized payment
func (p *PaymentActivities) CapturePayment(ctx context.Context, req models.PaymentRequest, authorizationID string) (string, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Capturing payment", "order_id", req.OrderID, "authorization_id", authorizationID)

	if err := p.wait(ctx); err != nil {
		return "", err
	}

	activity.RecordHeartbeat(ctx, "capturing payment")

	if authorizationID == "" {
		return "", fmt.Errorf("invalid authorization ID")
	}

	info := activity.GetInfo(ctx)
	transactionID := fmt.Sprintf("TXN-%s-%d", shortID(req.OrderID), info.Attempt)

	logger.Info("Payment captured successfully", "order_id", req.OrderID, "transaction_id", transactionID)
	return transactionID, nil
}

// VoidAuthorization voids a payment authorization
func (p *PaymentActivities) VoidAuthorization(ctx context.Context, authorizationID string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Voiding authorization", "authorization_id", authorizationID)

	if err := p.wait(ctx); err != nil {
		return err
	}

	logger.Info("Authorization voided successfully", "authorization_id", authorizationID)
	return nil
}

// RefundPayment refunds a captured payment in full
func (p *PaymentActivities) RefundPayment(ctx context.Context, payment models.PaymentResult) (string, error) {
	logger := activity.GetLogger(ctx)
	transactionID := payment.TransactionID
	logger.Info("Refunding payment", "transaction_id", transactionID, "amount", payment.Amount.StringFixed(2))

	if transactionID == "" {
		return "", temporal.NewNonRetryableApplicationError("refund without a transaction", ErrTypePaymentDeclined, nil)
	}

	if err := p.wait(ctx); err != nil {
		return "", err
	}

	activity.RecordHeartbeat(ctx, "processing refund")

	info := activity.GetInfo(ctx)
	// Skip the "TXN-" prefix when present
	txnIDPart := transactionID
	if len(transactionID) > 12 {
		txnIDPart = transactionID[4:12]
	}
	refundID := fmt.Sprintf("REFUND-%s-%d", txnIDPart, info.Attempt)

	logger.Info("Refund processed successfully", "transaction_id", transactionID, "refund_id", refundID)
	return refundID, nil
}

func (p *PaymentActivities) wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(p.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
