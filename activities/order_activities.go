package activities

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"restaurant-order-system/availability"
	"restaurant-order-system/models"
	"restaurant-order-system/notify"
	"restaurant-order-system/pricing"
	"restaurant-order-system/storage"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// Error types reported to workflows as non-retryable application errors.
const (
	ErrTypeInvalidLine = "InvalidLine"
	ErrTypeStaleStatus = "StaleStatus"
	ErrTypeNotFound    = "OrderNotFound"
)

// Dependencies wires the collaborators of Activities. Zero values fall back
// to defaults, except Repo and Publisher which are required.
type Dependencies struct {
	HoursBaseURL string
	HoursTimeout time.Duration
	Location     *time.Location
	Pricing      *pricing.Engine
	Evaluator    *availability.Evaluator
	Repo         storage.OrderRepository
	Publisher    notify.Publisher
}

// Activities contains all order processing activities
type Activities struct {
	httpClient   *http.Client
	hoursBaseURL string
	location     *time.Location
	pricing      *pricing.Engine
	evaluator    availability.Evaluator
	repo         storage.OrderRepository
	publisher    notify.Publisher
}

// NewActivities creates a new Activities instance
func NewActivities(deps Dependencies) *Activities {
	a := &Activities{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		hoursBaseURL: deps.HoursBaseURL,
		location:     time.Local,
		pricing:      pricing.DefaultEngine(),
		evaluator:    availability.DefaultEvaluator,
		repo:         deps.Repo,
		publisher:    deps.Publisher,
	}
	if deps.HoursTimeout > 0 {
		a.httpClient.Timeout = deps.HoursTimeout
	}
	if deps.Location != nil {
		a.location = deps.Location
	}
	if deps.Pricing != nil {
		a.pricing = deps.Pricing
	}
	if deps.Evaluator != nil {
		a.evaluator = *deps.Evaluator
	}
	return a
}

// CheckAvailability fetches the weekly hours and evaluates them at req.At on
// the restaurant's wall clock. It never fails: an unreachable or malformed
// hours source yields a FailedOpen verdict.
func (a *Activities) CheckAvailability(ctx context.Context, req models.AvailabilityRequest) (availability.Verdict, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Checking opening hours", "order_id", req.OrderID, "at", req.At)

	schedule, err := a.fetchSchedule(ctx)
	if err != nil {
		logger.Warn("Opening hours unavailable, accepting order", "order_id", req.OrderID, "error", err)
		schedule = nil
	}

	verdict := a.evaluator.IsOpenNow(schedule, req.At.In(a.location))
	logger.Info("Opening hours evaluated",
		"order_id", req.OrderID,
		"open", verdict.Open,
		"hours", verdict.ActiveWindowDescription,
		"failed_open", verdict.FailedOpen)
	return verdict, nil
}

func (a *Activities) fetchSchedule(ctx context.Context) (availability.WeeklySchedule, error) {
	url := fmt.Sprintf("%s/hours", a.hoursBaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create hours request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	activity.RecordHeartbeat(ctx, "calling hours service")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call hours service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read hours response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hours service returned status %d: %s", resp.StatusCode, string(body))
	}
	return availability.ParseHoursDocument(body)
}

// PriceOrder computes the breakdown of a cart. A rejected promotion is not an
// error: the undiscounted breakdown is returned with the rejection message.
func (a *Activities) PriceOrder(ctx context.Context, req models.PricingRequest) (models.PricingResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Pricing order", "order_id", req.OrderID, "lines", len(req.Lines), "promo_code", req.PromoCode)

	var promo *pricing.PromotionRequest
	if req.PromoCode != "" {
		promo = &pricing.PromotionRequest{Code: req.PromoCode, IsFirstOrder: req.IsFirstOrder}
	}

	breakdown, err := a.pricing.ComputeBreakdown(req.Lines, promo)

	var invalidLine *pricing.InvalidLineError
	if errors.As(err, &invalidLine) {
		return models.PricingResult{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidLine, err)
	}

	result := models.PricingResult{Breakdown: breakdown}

	var invalidPromo *pricing.PromotionInvalidError
	switch {
	case errors.As(err, &invalidPromo):
		logger.Info("Promotion rejected", "order_id", req.OrderID, "code", invalidPromo.Code, "reason", invalidPromo.Reason)
		result.PromotionMessage = err.Error()
	case err != nil:
		return models.PricingResult{}, fmt.Errorf("failed to price order: %w", err)
	}

	logger.Info("Order priced",
		"order_id", req.OrderID,
		"subtotal", breakdown.Subtotal.StringFixed(2),
		"discount", breakdown.Discount.StringFixed(2),
		"total", breakdown.Total.StringFixed(2))
	return result, nil
}

// RecordOrder persists a new order. Saving the same order twice is treated
// as a retried attempt and succeeds.
func (a *Activities) RecordOrder(ctx context.Context, order models.Order) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Recording order", "order_id", order.ID, "status", order.Status)

	err := a.repo.CreateOrder(ctx, order)
	if errors.Is(err, storage.ErrDuplicate) {
		logger.Info("Order already recorded", "order_id", order.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record order: %w", err)
	}
	return nil
}

// RecordStatusChange stores an applied transition. The store only accepts
// it if the order is still in change.From.
func (a *Activities) RecordStatusChange(ctx context.Context, orderID string, change models.StatusChange) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Recording status change", "order_id", orderID, "from", change.From, "to", change.To, "actor", change.Actor)

	err := a.repo.UpdateStatus(ctx, orderID, change.From, change.To, change.Actor, change.ChangedAt)
	switch {
	case errors.Is(err, storage.ErrStaleStatus):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeStaleStatus, err)
	case errors.Is(err, storage.ErrNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotFound, err)
	case err != nil:
		return fmt.Errorf("failed to record status change: %w", err)
	}
	return nil
}

// NotifyCustomer publishes a status change for the notification services
func (a *Activities) NotifyCustomer(ctx context.Context, orderID string, change models.StatusChange, message string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Notifying customer", "order_id", orderID, "status", change.To, "message", message)

	evt := notify.NewStatusChangedEvent(orderID, change.From, change.To, message, change.ChangedAt)
	if err := a.publisher.Publish(ctx, evt); err != nil {
		return fmt.Errorf("failed to publish status change: %w", err)
	}

	logger.Info("Customer notified successfully", "order_id", orderID, "event_id", evt.EventID)
	return nil
}
