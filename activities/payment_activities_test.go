package activities

import (
	"strings"
	"testing"

	"restaurant-order-system/models"
	"restaurant-order-system/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

// charge builds a payment request whose breakdown totals total.
func charge(orderID, total string) models.PaymentRequest {
	return models.PaymentRequest{
		OrderID:   orderID,
		Breakdown: pricing.PriceBreakdown{Subtotal: money(total), DiscountedSubtotal: money(total), Total: money(total)},
	}
}

func TestAuthorizePayment(t *testing.T) {
	tests := []struct {
		name          string
		req           models.PaymentRequest
		wantErr       bool
		errorContains string
		wantID        string
	}{
		{
			name:   "Success - Valid Amount",
			req:    charge("ORD-PAY-001", "28.45"),
			wantID: "AUTH-ORD-PAY--",
		},
		{
			name:   "Success - Short Order ID",
			req:    charge("A1", "5.99"),
			wantID: "AUTH-A1-",
		},
		{
			name:          "Failure - Zero Amount",
			req:           charge("ORD-PAY-002", "0"),
			wantErr:       true,
			errorContains: "invalid payment amount",
		},
		{
			name:          "Failure - Exceeds Authorization Limit",
			req:           charge("ORD-PAY-003", "10000.00"),
			wantErr:       true,
			errorContains: "exceeds authorization limit",
		},
		{
			name:   "Success - Maximum Valid Amount",
			req:    charge("ORD-PAY-004", "9999.00"),
			wantID: "AUTH-ORD-PAY--",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestActivityEnvironment()

			paymentAct := &PaymentActivities{}
			env.RegisterActivity(paymentAct)

			val, err := env.ExecuteActivity(paymentAct.AuthorizePayment, tt.req)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				assert.Equal(t, ErrTypePaymentDeclined, nonRetryableType(t, err))
				return
			}
			require.NoError(t, err)

			var authID string
			require.NoError(t, val.Get(&authID))
			assert.True(t, strings.HasPrefix(authID, tt.wantID), authID)
		})
	}
}

func TestPaymentActivities_FullFlow(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()

	paymentAct := &PaymentActivities{}
	env.RegisterActivity(paymentAct)

	req := charge("0f6c2a9e-1b7d-4c55-9d0e-7a1b2c3d4e5f", "42.10")

	val, err := env.ExecuteActivity(paymentAct.AuthorizePayment, req)
	require.NoError(t, err)
	var authID string
	require.NoError(t, val.Get(&authID))
	require.True(t, strings.HasPrefix(authID, "AUTH-0f6c2a9e-"), authID)

	val, err = env.ExecuteActivity(paymentAct.CapturePayment, req, authID)
	require.NoError(t, err)
	var txnID string
	require.NoError(t, val.Get(&txnID))
	require.True(t, strings.HasPrefix(txnID, "TXN-0f6c2a9e-"), txnID)

	val, err = env.ExecuteActivity(paymentAct.RefundPayment, models.PaymentResult{
		AuthorizationID: authID,
		TransactionID:   txnID,
		Amount:          req.Amount(),
	})
	require.NoError(t, err)
	var refundID string
	require.NoError(t, val.Get(&refundID))
	assert.True(t, strings.HasPrefix(refundID, "REFUND-0f6c2a9e-"), refundID)

	_, err = env.ExecuteActivity(paymentAct.VoidAuthorization, authID)
	assert.NoError(t, err)
}

func TestRefundPayment_MissingTransaction(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()

	paymentAct := &PaymentActivities{}
	env.RegisterActivity(paymentAct)

	_, err := env.ExecuteActivity(paymentAct.RefundPayment, models.PaymentResult{Amount: money("10")})
	require.Error(t, err)
	assert.Equal(t, ErrTypePaymentDeclined, nonRetryableType(t, err))
}

func TestCapturePayment_MissingAuthorization(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()

	paymentAct := &PaymentActivities{}
	env.RegisterActivity(paymentAct)

	_, err := env.ExecuteActivity(paymentAct.CapturePayment, charge("ORD-1", "10"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid authorization ID")
}
