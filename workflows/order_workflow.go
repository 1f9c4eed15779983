package workflows

import (
	"errors"
	"fmt"
	"time"

	"restaurant-order-system/activities"
	"restaurant-order-system/availability"
	"restaurant-order-system/models"
	"restaurant-order-system/orderstatus"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	OrderWorkflowName      = "OrderWorkflow"
	SignalCancel           = "cancel"
	QueryState             = "state"
	UpdateTransitionStatus = "transition-status"
)

// Error types of the application errors OrderWorkflow fails with.
const (
	ErrTypeRestaurantClosed = "RestaurantClosed"
	ErrTypeEmptyCart        = "EmptyCart"
	ErrTypeCancelled        = "OrderCancelled"
)

// ActorCustomer is recorded for cancellations received through SignalCancel.
const ActorCustomer = "customer"

// A customer cancellation that cannot be recorded is retried after
// cancelRetryInterval, doubling up to cancelRetryMaxInterval, at most
// cancelMaxAttempts times.
const (
	cancelRetryInterval    = 30 * time.Second
	cancelRetryMaxInterval = 5 * time.Minute
	cancelMaxAttempts      = 5
)

// The hours lookup gets a short budget of its own; it fails open rather than
// holding up checkout.
var availabilityActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 30 * time.Second,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval: 1 * time.Second,
		MaximumAttempts: 2,
	},
}

var errNotAccepting = errors.New("order is still being checked out")

// statusMessages are the customer notifications sent on each status.
var statusMessages = map[orderstatus.Status]string{
	orderstatus.Pending:        "We received your order",
	orderstatus.Confirmed:      "Your order has been confirmed",
	orderstatus.Preparing:      "Your order is being prepared",
	orderstatus.Ready:          "Your order is ready",
	orderstatus.OutForDelivery: "Your order is on its way",
	orderstatus.Delivered:      "Your order has been delivered",
	orderstatus.Cancelled:      "Your order has been cancelled",
}

// OrderWorkflow checks a cart out and then follows the order through its
// lifecycle until it is delivered or cancelled.
//
// Checkout checks opening hours, prices the cart, takes payment through
// PaymentWorkflow and records the order as pending. Afterwards staff move the
// order with the transition-status update and customers cancel it with the
// cancel signal. Status changes are applied one at a time.
func OrderWorkflow(ctx workflow.Context, req models.CheckoutRequest) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("OrderWorkflow started", "order_id", req.OrderID)

	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = workflow.Now(ctx)
	}

	state := models.WorkflowState{
		OrderID:     req.OrderID,
		Status:      orderstatus.Pending,
		History:     []models.StatusChange{},
		LastUpdated: workflow.Now(ctx),
	}

	err := workflow.SetQueryHandler(ctx, QueryState, func() (models.WorkflowState, error) {
		return state, nil
	})
	if err != nil {
		return fmt.Errorf("failed to set query handler: %w", err)
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		HeartbeatTimeout:    5 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var act *activities.Activities

	// accepting opens the lifecycle once the order is persisted; applying
	// serializes status changes.
	var (
		accepting       bool
		applying        bool
		cancelRequested bool
		cancelReason    string
	)

	apply := func(ctx workflow.Context, change models.StatusChangeRequest) (orderstatus.Status, error) {
		if err := workflow.Await(ctx, func() bool { return !applying }); err != nil {
			return state.Status, err
		}
		applying = true
		defer func() { applying = false }()

		// Re-validate: another change may have been applied while waiting.
		from := state.Status
		to, err := orderstatus.Transition(from, change.Requested)
		if err != nil {
			state.LastRejection = err.Error()
			logger.Warn("Status change rejected", "order_id", req.OrderID, "from", from, "requested", change.Requested, "error", err)
			return from, err
		}

		applied := models.StatusChange{
			From:      from,
			To:        to,
			Actor:     change.Actor,
			Reason:    change.Reason,
			ChangedAt: workflow.Now(ctx),
		}
		if err := workflow.ExecuteActivity(ctx, act.RecordStatusChange, req.OrderID, applied).Get(ctx, nil); err != nil {
			logger.Error("Failed to record status change", "order_id", req.OrderID, "to", to, "error", err)
			err = fmt.Errorf("failed to record status change: %w", err)
			state.LastRejection = err.Error()
			return from, err
		}

		state.Status = to
		state.LastRejection = ""
		state.History = append(state.History, applied)
		state.LastUpdated = applied.ChangedAt
		logger.Info("Order status changed", "order_id", req.OrderID, "from", from, "to", to, "actor", change.Actor)

		if err := workflow.ExecuteActivity(ctx, act.NotifyCustomer, req.OrderID, applied, statusMessages[to]).Get(ctx, nil); err != nil {
			logger.Warn("Failed to notify customer", "order_id", req.OrderID, "error", err)
		}
		return to, nil
	}

	err = workflow.SetUpdateHandlerWithOptions(ctx, UpdateTransitionStatus, apply, workflow.UpdateHandlerOptions{
		Validator: func(change models.StatusChangeRequest) error {
			if !accepting {
				return errNotAccepting
			}
			_, err := orderstatus.Transition(state.Status, change.Requested)
			return err
		},
	})
	if err != nil {
		return fmt.Errorf("failed to set update handler: %w", err)
	}

	cancelChan := workflow.GetSignalChannel(ctx, SignalCancel)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		for {
			var reason string
			cancelChan.Receive(gCtx, &reason)
			cancelRequested = true
			cancelReason = reason
			logger.Info("Cancellation requested", "order_id", req.OrderID, "reason", reason)
		}
	})

	if len(req.Lines) == 0 {
		return temporal.NewNonRetryableApplicationError("cart is empty", ErrTypeEmptyCart, nil)
	}

	// Step 1: Opening hours
	availabilityCtx := workflow.WithActivityOptions(ctx, availabilityActivityOptions)
	err = workflow.ExecuteActivity(availabilityCtx, act.CheckAvailability, models.AvailabilityRequest{
		OrderID: req.OrderID,
		At:      createdAt,
	}).Get(ctx, &state.Availability)
	if err != nil {
		logger.Warn("Availability check failed, accepting order", "order_id", req.OrderID, "error", err)
		state.Availability = availability.Verdict{Open: true, FailedOpen: true}
	}
	if req.EnforceHours && !state.Availability.Open && !state.Availability.FailedOpen {
		logger.Info("Restaurant closed, rejecting order", "order_id", req.OrderID, "hours", state.Availability.ActiveWindowDescription)
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("restaurant is closed (hours: %s)", state.Availability.ActiveWindowDescription),
			ErrTypeRestaurantClosed, nil)
	}

	// Step 2: Pricing
	var priced models.PricingResult
	err = workflow.ExecuteActivity(ctx, act.PriceOrder, models.PricingRequest{
		OrderID:      req.OrderID,
		Lines:        req.Lines,
		PromoCode:    req.PromoCode,
		IsFirstOrder: req.IsFirstOrder,
	}).Get(ctx, &priced)
	if err != nil {
		logger.Error("Pricing failed", "order_id", req.OrderID, "error", err)
		return fmt.Errorf("pricing failed: %w", err)
	}
	state.Breakdown = priced.Breakdown
	state.PromotionMessage = priced.PromotionMessage
	state.LastUpdated = workflow.Now(ctx)

	if cancelRequested {
		logger.Info("Order cancelled before payment", "order_id", req.OrderID)
		state.Status = orderstatus.Cancelled
		return temporal.NewNonRetryableApplicationError("order cancelled by customer", ErrTypeCancelled, nil)
	}

	// Step 3: Payment (Child Workflow)
	childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID:               fmt.Sprintf("payment-%s", req.OrderID),
		WorkflowExecutionTimeout: 2 * time.Minute,
	})
	var payment models.PaymentResult
	err = workflow.ExecuteChildWorkflow(childCtx, PaymentWorkflow, models.PaymentRequest{
		OrderID:   req.OrderID,
		Breakdown: state.Breakdown,
	}).Get(ctx, &payment)
	if err != nil {
		logger.Error("Payment processing failed", "order_id", req.OrderID, "error", err)
		return fmt.Errorf("payment failed: %w", err)
	}
	state.PaymentTransactionID = payment.TransactionID
	state.LastUpdated = workflow.Now(ctx)

	if cancelRequested {
		logger.Info("Order cancelled after payment", "order_id", req.OrderID)
		state.Status = orderstatus.Cancelled
		state.RefundID = refundPayment(ctx, req.OrderID, payment)
		return temporal.NewNonRetryableApplicationError("order cancelled by customer", ErrTypeCancelled, nil)
	}

	// Step 4: Persist as pending
	err = workflow.ExecuteActivity(ctx, act.RecordOrder, models.Order{
		ID:        req.OrderID,
		Status:    orderstatus.Pending,
		Breakdown: state.Breakdown,
		CreatedAt: createdAt,
		UpdatedAt: workflow.Now(ctx),
	}).Get(ctx, nil)
	if err != nil {
		logger.Error("Failed to record order", "order_id", req.OrderID, "error", err)
		state.RefundID = refundPayment(ctx, req.OrderID, payment)
		return fmt.Errorf("failed to record order: %w", err)
	}

	received := models.StatusChange{To: orderstatus.Pending, ChangedAt: createdAt}
	state.History = append(state.History, received)
	if err := workflow.ExecuteActivity(ctx, act.NotifyCustomer, req.OrderID, received, statusMessages[orderstatus.Pending]).Get(ctx, nil); err != nil {
		logger.Warn("Failed to notify customer", "order_id", req.OrderID, "error", err)
	}

	// Step 5: Lifecycle
	accepting = true
	cancelAttempts := 0
	for !state.Status.IsTerminal() {
		if err := workflow.Await(ctx, func() bool { return state.Status.IsTerminal() || cancelRequested }); err != nil {
			return err
		}
		if !cancelRequested || state.Status.IsTerminal() {
			continue
		}
		cancelRequested = false
		_, err := apply(ctx, models.StatusChangeRequest{
			Requested: orderstatus.Cancelled,
			Actor:     ActorCustomer,
			Reason:    cancelReason,
		})
		var activityErr *temporal.ActivityError
		if err == nil || !errors.As(err, &activityErr) {
			// Applied, or refused by the status machine; nothing to retry.
			cancelAttempts = 0
			continue
		}

		cancelAttempts++
		if cancelAttempts >= cancelMaxAttempts {
			logger.Error("Giving up on cancellation", "order_id", req.OrderID, "attempts", cancelAttempts, "error", err)
			cancelAttempts = 0
			continue
		}
		backoff := cancelBackoff(cancelAttempts)
		logger.Warn("Cancellation not recorded, retrying", "order_id", req.OrderID, "attempt", cancelAttempts, "retry_in", backoff)
		if _, err := workflow.AwaitWithTimeout(ctx, backoff, func() bool { return state.Status.IsTerminal() }); err != nil {
			return err
		}
		cancelRequested = true
	}
	accepting = false

	if state.Status == orderstatus.Cancelled {
		state.RefundID = refundPayment(ctx, req.OrderID, payment)
	}

	if err := workflow.Await(ctx, func() bool { return workflow.AllHandlersFinished(ctx) }); err != nil {
		return err
	}

	logger.Info("OrderWorkflow completed", "order_id", req.OrderID, "status", state.Status)
	return nil
}

// cancelBackoff is the wait before retrying a cancellation that failed
// attempt times.
func cancelBackoff(attempt int) time.Duration {
	backoff := cancelRetryInterval
	for i := 1; i < attempt && backoff < cancelRetryMaxInterval; i++ {
		backoff *= 2
	}
	return min(backoff, cancelRetryMaxInterval)
}
