package workflows

import (
	"fmt"
	"time"

	"restaurant-order-system/activities"
	"restaurant-order-system/models"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	PaymentWorkflowName = "PaymentWorkflow"
)

// ErrTypeBreakdownMismatch fails a charge whose breakdown does not add up to
// its total.
const ErrTypeBreakdownMismatch = "BreakdownMismatch"

var paymentActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 20 * time.Second,
	HeartbeatTimeout:    5 * time.Second,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:        1 * time.Second,
		BackoffCoefficient:     2.0,
		MaximumInterval:        10 * time.Second,
		MaximumAttempts:        3,
		NonRetryableErrorTypes: []string{activities.ErrTypePaymentDeclined},
	},
}

// PaymentWorkflow charges the total of a priced order. The breakdown is
// checked before the gateway sees it; the amount is then authorized and
// captured, and a failed capture releases the authorization.
func PaymentWorkflow(ctx workflow.Context, req models.PaymentRequest) (models.PaymentResult, error) {
	logger := workflow.GetLogger(ctx)
	amount := req.Amount()
	logger.Info("PaymentWorkflow started", "order_id", req.OrderID, "amount", amount.StringFixed(2))

	if !req.Breakdown.Balanced() {
		b := req.Breakdown
		logger.Error("Refusing unbalanced breakdown", "order_id", req.OrderID,
			"subtotal", b.Subtotal.StringFixed(2), "discount", b.Discount.StringFixed(2),
			"delivery_fee", b.DeliveryFee.StringFixed(2), "tax", b.Tax.StringFixed(2), "total", amount.StringFixed(2))
		return models.PaymentResult{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("breakdown of order %s does not add up to %s", req.OrderID, amount.StringFixed(2)),
			ErrTypeBreakdownMismatch, nil)
	}

	ctx = workflow.WithActivityOptions(ctx, paymentActivityOptions)

	var paymentAct *activities.PaymentActivities
	result := models.PaymentResult{Amount: amount}

	err := workflow.ExecuteActivity(ctx, paymentAct.AuthorizePayment, req).Get(ctx, &result.AuthorizationID)
	if err != nil {
		logger.Error("Payment authorization failed", "order_id", req.OrderID, "error", err)
		return models.PaymentResult{}, fmt.Errorf("payment authorization failed: %w", err)
	}
	logger.Info("Payment authorized", "order_id", req.OrderID, "authorization_id", result.AuthorizationID)

	err = workflow.ExecuteActivity(ctx, paymentAct.CapturePayment, req, result.AuthorizationID).Get(ctx, &result.TransactionID)
	if err != nil {
		logger.Error("Payment capture failed", "order_id", req.OrderID, "authorization_id", result.AuthorizationID, "error", err)
		voidAuthorization(ctx, result.AuthorizationID)
		return models.PaymentResult{}, fmt.Errorf("payment capture failed: %w", err)
	}
	result.CapturedAt = workflow.Now(ctx)

	logger.Info("Payment captured", "order_id", req.OrderID, "transaction_id", result.TransactionID, "amount", amount.StringFixed(2))
	return result, nil
}

func voidAuthorization(ctx workflow.Context, authorizationID string) {
	var paymentAct *activities.PaymentActivities
	voidCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
	})
	if err := workflow.ExecuteActivity(voidCtx, paymentAct.VoidAuthorization, authorizationID).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("Failed to void authorization", "authorization_id", authorizationID, "error", err)
	}
}

// refundPayment returns a captured payment in full and reports the refund ID.
// An uncaptured payment has nothing to refund. Failures are logged and left
// to the finance team.
func refundPayment(ctx workflow.Context, orderID string, payment models.PaymentResult) string {
	if payment.TransactionID == "" {
		return ""
	}
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, paymentActivityOptions)

	var paymentAct *activities.PaymentActivities
	var refundID string
	if err := workflow.ExecuteActivity(ctx, paymentAct.RefundPayment, payment).Get(ctx, &refundID); err != nil {
		logger.Error("Refund failed", "order_id", orderID, "transaction_id", payment.TransactionID, "error", err)
		return ""
	}
	logger.Info("Payment refunded", "order_id", orderID, "refund_id", refundID, "amount", payment.Amount.StringFixed(2))
	return refundID
}
