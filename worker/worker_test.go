package main

import (
	"testing"

	"restaurant-order-system/config"
	"restaurant-order-system/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingEngine(t *testing.T) {
	engine, err := pricingEngine(config.Default())
	require.NoError(t, err)
	assert.True(t, pricing.DefaultTaxRate.Equal(engine.TaxRate))
	assert.True(t, pricing.DefaultDeliveryFee.Equal(engine.DeliveryFee))
	assert.Equal(t, pricing.WelcomeCode, engine.PromotionCode)

	badRate := config.Default()
	badRate.Pricing.TaxRate = "eight percent"
	_, err = pricingEngine(badRate)
	assert.ErrorContains(t, err, "invalid tax rate")

	badFee := config.Default()
	badFee.Pricing.DeliveryFee = "-1"
	_, err = pricingEngine(badFee)
	assert.ErrorContains(t, err, "delivery fee -1 is negative")
}
