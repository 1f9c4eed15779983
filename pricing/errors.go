package pricing

import "fmt"

// InvalidLineError reports a cart line that cannot be priced.
type InvalidLineError struct {
	Index  int
	Reason string
}

func (e *InvalidLineError) Error() string {
	return fmt.Sprintf("invalid cart line %d: %s", e.Index, e.Reason)
}

// PromotionInvalidError is returned when a promotion code is unknown or the
// customer is not eligible. Its message is meant to be shown to the customer.
type PromotionInvalidError struct {
	Code   string
	Reason string
}

func (e *PromotionInvalidError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("promotion code rejected: %s", e.Reason)
	}
	return fmt.Sprintf("promotion code %q rejected: %s", e.Code, e.Reason)
}
