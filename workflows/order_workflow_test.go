package workflows

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"restaurant-order-system/activities"
	"restaurant-order-system/availability"
	"restaurant-order-system/models"
	"restaurant-order-system/notify"
	"restaurant-order-system/orderstatus"
	"restaurant-order-system/pricing"
	"restaurant-order-system/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const lunchAndDinner = `{"hours": {"monday": {"intervals": [{"open": "11:00", "close": "14:00"}, {"open": "18:00", "close": "22:00"}]}}}`

// 2024-01-01 was a Monday.
var mondayNoon = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	env        *testsuite.TestWorkflowEnvironment
	repo       *storage.MemoryStore
	events     *observer.ObservedLogs
	paymentAct *activities.PaymentActivities
}

func newHarness(t *testing.T, hoursHandler http.HandlerFunc) *harness {
	t.Helper()

	server := httptest.NewServer(hoursHandler)
	t.Cleanup(server.Close)

	core, events := observer.New(zap.InfoLevel)
	h := &harness{
		repo:       storage.NewMemoryStore(),
		events:     events,
		paymentAct: &activities.PaymentActivities{},
	}

	testSuite := &testsuite.WorkflowTestSuite{}
	h.env = testSuite.NewTestWorkflowEnvironment()
	h.env.SetStartTime(mondayNoon)
	h.env.RegisterWorkflow(OrderWorkflow)
	h.env.RegisterWorkflow(PaymentWorkflow)
	h.env.RegisterActivity(activities.NewActivities(activities.Dependencies{
		HoursBaseURL: server.URL,
		Location:     time.UTC,
		Repo:         h.repo,
		Publisher:    notify.LogPublisher{Logger: zap.New(core)},
	}))
	h.env.RegisterActivity(h.paymentAct)
	return h
}

func serveHours(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func checkout(id string) models.CheckoutRequest {
	return models.CheckoutRequest{
		OrderID:      id,
		CustomerName: "Camille",
		Lines: []pricing.CartLine{
			{ProductID: "PIZZA-MARG", UnitPrice: decimal.RequireFromString("12.50"), Quantity: 2},
			{ProductID: "TIRAMISU", UnitPrice: decimal.RequireFromString("4.00"), Quantity: 1,
				OptionModifiers: []pricing.Money{decimal.RequireFromString("0.50")}},
		},
	}
}

type updateOutcome struct {
	accepted    bool
	rejectErr   error
	completed   bool
	completeErr error
}

func (h *harness) requestStatus(id string, to orderstatus.Status) *updateOutcome {
	out := &updateOutcome{}
	h.env.UpdateWorkflow(UpdateTransitionStatus, id, &testsuite.TestUpdateCallback{
		OnAccept: func() { out.accepted = true },
		OnReject: func(err error) { out.rejectErr = err },
		OnComplete: func(_ interface{}, err error) {
			out.completed = true
			out.completeErr = err
		},
	}, models.StatusChangeRequest{Requested: to, Actor: "kitchen"})
	return out
}

func (h *harness) state(t *testing.T) models.WorkflowState {
	t.Helper()
	val, err := h.env.QueryWorkflow(QueryState)
	require.NoError(t, err)
	var state models.WorkflowState
	require.NoError(t, val.Get(&state))
	return state
}

// hasApplicationError walks the cause chain, since workflow errors wrap the
// activity failure that caused them.
func hasApplicationError(err error, errType string) bool {
	for err != nil {
		var appErr *temporal.ApplicationError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type() == errType {
			return true
		}
		err = appErr.Unwrap()
	}
	return false
}

func TestOrderWorkflow_FullLifecycle(t *testing.T) {
	h := newHarness(t, serveHours(lunchAndDinner))

	chain := []orderstatus.Status{
		orderstatus.Confirmed,
		orderstatus.Preparing,
		orderstatus.Ready,
		orderstatus.OutForDelivery,
		orderstatus.Delivered,
	}
	outcomes := make([]*updateOutcome, len(chain))
	for i, to := range chain {
		i, to := i, to
		h.env.RegisterDelayedCallback(func() {
			outcomes[i] = h.requestStatus(string(to), to)
		}, time.Duration(i+1)*time.Minute)
	}

	h.env.ExecuteWorkflow(OrderWorkflow, checkout("ORD-LIFE-1"))

	require.True(t, h.env.IsWorkflowCompleted())
	require.NoError(t, h.env.GetWorkflowError())

	for i, out := range outcomes {
		require.NotNil(t, out, chain[i])
		assert.True(t, out.accepted, chain[i])
		assert.NoError(t, out.rejectErr, chain[i])
		assert.True(t, out.completed, chain[i])
		assert.NoError(t, out.completeErr, chain[i])
	}

	state := h.state(t)
	assert.Equal(t, orderstatus.Delivered, state.Status)
	assert.Equal(t, "29.50", state.Breakdown.Subtotal.StringFixed(2))
	assert.Equal(t, "37.85", state.Breakdown.Total.StringFixed(2))
	assert.True(t, state.Availability.Open)
	assert.Equal(t, "11:00 - 14:00, 18:00 - 22:00", state.Availability.ActiveWindowDescription)
	assert.NotEmpty(t, state.PaymentTransactionID)
	assert.Empty(t, state.RefundID)
	require.Len(t, state.History, 6)
	assert.Equal(t, orderstatus.Pending, state.History[0].To)
	assert.Equal(t, orderstatus.Delivered, state.History[5].To)

	stored, err := h.repo.GetOrder(context.Background(), "ORD-LIFE-1")
	require.NoError(t, err)
	assert.Equal(t, orderstatus.Delivered, stored.Status)

	assert.Equal(t, 6, h.events.FilterMessage("order status changed").Len())
}

func TestOrderWorkflow_RejectsIllegalTransitionThenCancels(t *testing.T) {
	h := newHarness(t, serveHours(lunchAndDinner))
	h.env.OnActivity(h.paymentAct.RefundPayment, mock.Anything, mock.Anything).Return("REFUND-TEST", nil).Once()

	var skip, confirm *updateOutcome
	h.env.RegisterDelayedCallback(func() {
		skip = h.requestStatus("skip", orderstatus.Ready)
	}, time.Minute)
	h.env.RegisterDelayedCallback(func() {
		confirm = h.requestStatus("confirm", orderstatus.Confirmed)
	}, 2*time.Minute)
	h.env.RegisterDelayedCallback(func() {
		h.env.SignalWorkflow(SignalCancel, "ordered twice by mistake")
	}, 3*time.Minute)

	h.env.ExecuteWorkflow(OrderWorkflow, checkout("ORD-CANCEL-1"))

	require.True(t, h.env.IsWorkflowCompleted())
	require.NoError(t, h.env.GetWorkflowError())

	require.NotNil(t, skip)
	require.Error(t, skip.rejectErr)
	assert.Contains(t, skip.rejectErr.Error(), "illegal status transition pending -> ready")
	assert.False(t, skip.completed)

	require.NotNil(t, confirm)
	assert.NoError(t, confirm.completeErr)

	state := h.state(t)
	assert.Equal(t, orderstatus.Cancelled, state.Status)
	last := state.History[len(state.History)-1]
	assert.Equal(t, orderstatus.Confirmed, last.From)
	assert.Equal(t, ActorCustomer, last.Actor)
	assert.Equal(t, "ordered twice by mistake", last.Reason)
	assert.Equal(t, "REFUND-TEST", state.RefundID)

	stored, err := h.repo.GetOrder(context.Background(), "ORD-CANCEL-1")
	require.NoError(t, err)
	assert.Equal(t, orderstatus.Cancelled, stored.Status)

	h.env.AssertExpectations(t)
}

func TestOrderWorkflow_ConcurrentUpdatesAreSerialized(t *testing.T) {
	h := newHarness(t, serveHours(lunchAndDinner))

	var first, second *updateOutcome
	h.env.RegisterDelayedCallback(func() {
		first = h.requestStatus("desk-a", orderstatus.Confirmed)
		second = h.requestStatus("desk-b", orderstatus.Confirmed)
	}, time.Minute)
	h.env.RegisterDelayedCallback(func() {
		h.env.SignalWorkflow(SignalCancel, "")
	}, 5*time.Minute)

	h.env.ExecuteWorkflow(OrderWorkflow, checkout("ORD-RACE-1"))
	require.NoError(t, h.env.GetWorkflowError())

	succeeded := 0
	for _, out := range []*updateOutcome{first, second} {
		require.NotNil(t, out)
		if out.rejectErr == nil && out.completed && out.completeErr == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one confirmation may win")

	confirmations := 0
	for _, change := range h.state(t).History {
		if change.To == orderstatus.Confirmed {
			confirmations++
		}
	}
	assert.Equal(t, 1, confirmations)
}

func TestOrderWorkflow_Checkout(t *testing.T) {
	tests := []struct {
		name            string
		hours           http.HandlerFunc
		mutate          func(req *models.CheckoutRequest)
		wantErrType     string
		wantFailedOpen  bool
		wantTotal       string
		wantPromoReject string
	}{
		{
			name:        "Closed restaurant is rejected when enforcing hours",
			hours:       serveHours(`{"hours": {"monday": {"closed": true}}}`),
			mutate:      func(req *models.CheckoutRequest) { req.EnforceHours = true },
			wantErrType: ErrTypeRestaurantClosed,
		},
		{
			name:      "Closed restaurant is accepted when not enforcing",
			hours:     serveHours(`{"hours": {"monday": {"closed": true}}}`),
			wantTotal: "37.85",
		},
		{
			name: "Unreachable hours fail open even when enforcing",
			hours: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			mutate:         func(req *models.CheckoutRequest) { req.EnforceHours = true },
			wantFailedOpen: true,
			wantTotal:      "37.85",
		},
		{
			name:  "Welcome promotion on first order",
			hours: serveHours(lunchAndDinner),
			mutate: func(req *models.CheckoutRequest) {
				req.PromoCode = "WELCOME20"
				req.IsFirstOrder = true
			},
			wantTotal: "31.48",
		},
		{
			name:            "Rejected promotion keeps the order at full price",
			hours:           serveHours(lunchAndDinner),
			mutate:          func(req *models.CheckoutRequest) { req.PromoCode = "SUMMER50" },
			wantTotal:       "37.85",
			wantPromoReject: "unknown promotion code",
		},
		{
			name:        "Empty cart",
			hours:       serveHours(lunchAndDinner),
			mutate:      func(req *models.CheckoutRequest) { req.Lines = nil },
			wantErrType: ErrTypeEmptyCart,
		},
		{
			name:  "Invalid line",
			hours: serveHours(lunchAndDinner),
			mutate: func(req *models.CheckoutRequest) {
				req.Lines[0].Quantity = 0
			},
			wantErrType: activities.ErrTypeInvalidLine,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.hours)

			req := checkout("ORD-CHECKOUT-1")
			if tt.mutate != nil {
				tt.mutate(&req)
			}
			if tt.wantErrType == "" {
				h.env.OnActivity(h.paymentAct.RefundPayment, mock.Anything, mock.Anything).Return("REFUND-TEST", nil)
				h.env.RegisterDelayedCallback(func() {
					h.env.SignalWorkflow(SignalCancel, "test done")
				}, time.Minute)
			}

			h.env.ExecuteWorkflow(OrderWorkflow, req)
			require.True(t, h.env.IsWorkflowCompleted())

			if tt.wantErrType != "" {
				err := h.env.GetWorkflowError()
				require.Error(t, err)
				assert.True(t, hasApplicationError(err, tt.wantErrType), "want %s, got %v", tt.wantErrType, err)

				_, getErr := h.repo.GetOrder(context.Background(), req.OrderID)
				assert.ErrorIs(t, getErr, storage.ErrNotFound)
				return
			}

			require.NoError(t, h.env.GetWorkflowError())
			state := h.state(t)
			assert.Equal(t, tt.wantFailedOpen, state.Availability.FailedOpen)
			assert.Equal(t, tt.wantTotal, state.Breakdown.Total.StringFixed(2))
			if tt.wantPromoReject == "" {
				assert.Empty(t, state.PromotionMessage)
			} else {
				assert.Contains(t, state.PromotionMessage, tt.wantPromoReject)
			}
		})
	}
}

func TestOrderWorkflow_AvailabilityActivityFailureFailsOpen(t *testing.T) {
	h := newHarness(t, serveHours(lunchAndDinner))
	h.env.OnActivity("CheckAvailability", mock.Anything, mock.Anything).
		Return(availability.Verdict{}, errors.New("hours client unavailable"))
	h.env.OnActivity(h.paymentAct.RefundPayment, mock.Anything, mock.Anything).Return("REFUND-TEST", nil).Once()
	h.env.RegisterDelayedCallback(func() {
		h.env.SignalWorkflow(SignalCancel, "test done")
	}, time.Minute)

	req := checkout("ORD-HOURS-DOWN")
	req.EnforceHours = true
	h.env.ExecuteWorkflow(OrderWorkflow, req)

	require.True(t, h.env.IsWorkflowCompleted())
	require.NoError(t, h.env.GetWorkflowError())

	state := h.state(t)
	assert.True(t, state.Availability.Open)
	assert.True(t, state.Availability.FailedOpen)
	assert.Equal(t, "37.85", state.Breakdown.Total.StringFixed(2))
	assert.NotEmpty(t, state.PaymentTransactionID)
	assert.Equal(t, orderstatus.Cancelled, state.Status)
	h.env.AssertExpectations(t)
}

func TestOrderWorkflow_CancellationRetriedUntilRecorded(t *testing.T) {
	h := newHarness(t, serveHours(lunchAndDinner))
	storeDown := temporal.NewNonRetryableApplicationError("database unavailable", "StoreDown", nil)
	h.env.OnActivity("RecordStatusChange", mock.Anything, mock.Anything, mock.Anything).Return(storeDown).Twice()
	h.env.OnActivity("RecordStatusChange", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	h.env.OnActivity(h.paymentAct.RefundPayment, mock.Anything, mock.Anything).Return("REFUND-TEST", nil).Once()

	h.env.RegisterDelayedCallback(func() {
		h.env.SignalWorkflow(SignalCancel, "changed my mind")
	}, time.Minute)
	var midway models.WorkflowState
	h.env.RegisterDelayedCallback(func() {
		midway = h.state(t)
	}, 75*time.Second)

	h.env.ExecuteWorkflow(OrderWorkflow, checkout("ORD-CANCEL-RETRY"))

	require.True(t, h.env.IsWorkflowCompleted())
	require.NoError(t, h.env.GetWorkflowError())

	assert.Equal(t, orderstatus.Pending, midway.Status)
	assert.Contains(t, midway.LastRejection, "database unavailable")

	state := h.state(t)
	assert.Equal(t, orderstatus.Cancelled, state.Status)
	assert.Empty(t, state.LastRejection)
	last := state.History[len(state.History)-1]
	assert.Equal(t, ActorCustomer, last.Actor)
	assert.Equal(t, "changed my mind", last.Reason)
	assert.Equal(t, "REFUND-TEST", state.RefundID)
	h.env.AssertExpectations(t)
}

func TestCancelBackoff(t *testing.T) {
	assert.Equal(t, 30*time.Second, cancelBackoff(1))
	assert.Equal(t, time.Minute, cancelBackoff(2))
	assert.Equal(t, 4*time.Minute, cancelBackoff(4))
	assert.Equal(t, cancelRetryMaxInterval, cancelBackoff(10))
}

func balancedBreakdown(t *testing.T) pricing.PriceBreakdown {
	t.Helper()
	b, err := pricing.ComputeBreakdown(checkout("unused").Lines, nil)
	require.NoError(t, err)
	return b
}

func TestPaymentWorkflow_VoidsOnCaptureFailure(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	paymentAct := &activities.PaymentActivities{}
	env.RegisterActivity(paymentAct)
	env.OnActivity(paymentAct.CapturePayment, mock.Anything, mock.Anything, mock.Anything).
		Return("", temporal.NewNonRetryableApplicationError("card expired", "CaptureFailed", nil))
	env.OnActivity(paymentAct.VoidAuthorization, mock.Anything, mock.Anything).Return(nil).Once()

	env.ExecuteWorkflow(PaymentWorkflow, models.PaymentRequest{OrderID: "ORD-PAY-1", Breakdown: balancedBreakdown(t)})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payment capture failed")
	env.AssertExpectations(t)
}

func TestPaymentWorkflow_Success(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterActivity(&activities.PaymentActivities{})

	env.ExecuteWorkflow(PaymentWorkflow, models.PaymentRequest{OrderID: "ORD-PAY-2", Breakdown: balancedBreakdown(t)})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result models.PaymentResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Contains(t, result.TransactionID, "TXN-ORD-PAY-")
	assert.Contains(t, result.AuthorizationID, "AUTH-ORD-PAY-")
	assert.Equal(t, "37.85", result.Amount.StringFixed(2))
	assert.False(t, result.CapturedAt.IsZero())
}

func TestPaymentWorkflow_RefusesUnbalancedBreakdown(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterActivity(&activities.PaymentActivities{})

	breakdown := balancedBreakdown(t)
	breakdown.Total = breakdown.Total.Sub(decimal.RequireFromString("10.00"))
	env.ExecuteWorkflow(PaymentWorkflow, models.PaymentRequest{OrderID: "ORD-PAY-3", Breakdown: breakdown})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.True(t, hasApplicationError(err, ErrTypeBreakdownMismatch), "got %v", err)
}
