// Package pricing computes what a customer owes for a cart: subtotal,
// promotional discount, tax on the discounted base, delivery fee and total.
//
// All functions are pure. An Engine holds only configuration and may be
// shared between goroutines.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a monetary amount in the restaurant's single currency.
type Money = decimal.Decimal

// Business constants used by DefaultEngine.
var (
	DefaultTaxRate       = decimal.RequireFromString("0.08")
	DefaultDeliveryFee   = decimal.RequireFromString("5.99")
	DefaultPromotionRate = decimal.RequireFromString("0.20")
)

// WelcomeCode is the only promotion code the restaurant recognizes.
const WelcomeCode = "WELCOME20"

// CartLine is one cart entry as supplied by the checkout flow.
type CartLine struct {
	ProductID       string  `json:"product_id,omitempty"`
	Name            string  `json:"name,omitempty"`
	UnitPrice       Money   `json:"unit_price"`
	Quantity        int     `json:"quantity"`
	OptionModifiers []Money `json:"option_modifiers,omitempty"`
}

// PromotionRequest carries the code typed by the customer. The subtotal it
// applies to is always the engine's own computed subtotal.
type PromotionRequest struct {
	Code         string `json:"code"`
	IsFirstOrder bool   `json:"is_first_order"`
}

// PriceBreakdown is the result of pricing a cart. Values are rounded to cents.
type PriceBreakdown struct {
	Subtotal           Money  `json:"subtotal"`
	Discount           Money  `json:"discount"`
	DiscountedSubtotal Money  `json:"discounted_subtotal"`
	DeliveryFee        Money  `json:"delivery_fee"`
	Tax                Money  `json:"tax"`
	Total              Money  `json:"total"`
	PromotionCode      string `json:"promotion_code,omitempty"`
}

// Balanced reports whether the breakdown's fields add up: the discount taken
// off the subtotal, then fee and tax added on top.
func (b PriceBreakdown) Balanced() bool {
	if b.Discount.IsNegative() || b.Discount.GreaterThan(b.Subtotal) {
		return false
	}
	if !b.Subtotal.Sub(b.Discount).Equal(b.DiscountedSubtotal) {
		return false
	}
	return b.DiscountedSubtotal.Add(b.DeliveryFee).Add(b.Tax).Equal(b.Total)
}

// Engine holds the pricing parameters.
type Engine struct {
	TaxRate       Money
	DeliveryFee   Money
	PromotionRate Money
	PromotionCode string
}

// DefaultEngine returns the engine with the restaurant's standard constants.
func DefaultEngine() *Engine {
	return &Engine{
		TaxRate:       DefaultTaxRate,
		DeliveryFee:   DefaultDeliveryFee,
		PromotionRate: DefaultPromotionRate,
		PromotionCode: WelcomeCode,
	}
}

var defaultEngine = DefaultEngine()

// ComputeBreakdown prices lines with DefaultEngine.
func ComputeBreakdown(lines []CartLine, promo *PromotionRequest) (PriceBreakdown, error) {
	return defaultEngine.ComputeBreakdown(lines, promo)
}

// ApplyPromotion evaluates a promotion code with DefaultEngine.
func ApplyPromotion(code string, subtotal Money, isFirstOrder bool) (Money, error) {
	return defaultEngine.ApplyPromotion(code, subtotal, isFirstOrder)
}

// Round rounds m to cents, halves away from zero.
func Round(m Money) Money {
	return m.Round(2)
}

// ComputeBreakdown prices a cart.
//
// A malformed line yields an *InvalidLineError and a zero breakdown. A
// rejected promotion yields a *PromotionInvalidError together with the full
// breakdown priced without discount, so callers can show the message and
// keep going.
func (e *Engine) ComputeBreakdown(lines []CartLine, promo *PromotionRequest) (PriceBreakdown, error) {
	subtotal, err := sumLines(lines)
	if err != nil {
		return PriceBreakdown{}, err
	}
	subtotal = Round(subtotal)

	var (
		discount = decimal.Zero
		code     string
		promoErr error
	)
	if promo != nil {
		discount, promoErr = e.ApplyPromotion(promo.Code, subtotal, promo.IsFirstOrder)
		if promoErr == nil {
			code = normalizeCode(promo.Code)
		}
	}

	discounted := subtotal.Sub(discount)
	if discounted.IsNegative() {
		discounted = decimal.Zero
	}

	fee := decimal.Zero
	if len(lines) > 0 {
		fee = e.DeliveryFee
	}
	tax := Round(discounted.Mul(e.TaxRate))

	return PriceBreakdown{
		Subtotal:           subtotal,
		Discount:           discount,
		DiscountedSubtotal: discounted,
		DeliveryFee:        fee,
		Tax:                tax,
		Total:              discounted.Add(fee).Add(tax),
		PromotionCode:      code,
	}, promoErr
}

// ApplyPromotion returns the discount granted by code on subtotal. Rejected
// codes return a zero discount and a *PromotionInvalidError.
func (e *Engine) ApplyPromotion(code string, subtotal Money, isFirstOrder bool) (Money, error) {
	normalized := normalizeCode(code)
	if normalized != e.PromotionCode {
		return decimal.Zero, &PromotionInvalidError{Code: normalized, Reason: "unknown promotion code"}
	}
	if !isFirstOrder {
		return decimal.Zero, &PromotionInvalidError{Code: normalized, Reason: "only valid on a first order"}
	}
	if !subtotal.IsPositive() {
		return decimal.Zero, nil
	}

	discount := Round(subtotal.Mul(e.PromotionRate))
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	return discount, nil
}

func sumLines(lines []CartLine) (Money, error) {
	total := decimal.Zero
	for i, line := range lines {
		if line.Quantity < 1 {
			return decimal.Zero, &InvalidLineError{Index: i, Reason: "quantity must be at least 1"}
		}
		if line.UnitPrice.IsNegative() {
			return decimal.Zero, &InvalidLineError{Index: i, Reason: "unit price is negative"}
		}
		unit := line.UnitPrice
		for _, mod := range line.OptionModifiers {
			if mod.IsNegative() {
				return decimal.Zero, &InvalidLineError{Index: i, Reason: "option modifier is negative"}
			}
			unit = unit.Add(mod)
		}
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
