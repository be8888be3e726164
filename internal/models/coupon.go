package models

import (
	"github.com/shopspring/decimal"
)

// Coupon is a claimed, redeemable reward.
type Coupon struct {
	CouponID         string          `json:"coupon_id"`
	SourceActivityID string          `json:"source_activity_id,omitempty"` // lookup only
	Title            string          `json:"title"`
	Price            decimal.Decimal `json:"price"`
	ValidFrom        string          `json:"valid_from"` // YYYY-MM-DD
	ValidTo          string          `json:"valid_to"`   // YYYY-MM-DD
	Validity         string          `json:"validity,omitempty"`
	ImageURL         string          `json:"image_url,omitempty"`
}

// Expired reports whether the coupon's last valid day is before the reference date.
// Both sides are YYYY-MM-DD literals, so lexical order is date order.
func (c Coupon) Expired(referenceDate string) bool {
	return c.ValidTo < referenceDate
}

// Validate checks the fields every stored coupon must carry.
func (c Coupon) Validate() error {
	switch {
	case c.CouponID == "":
		return missingField("coupon_id")
	case c.Title == "":
		return missingField("title")
	case c.ValidFrom == "":
		return missingField("valid_from")
	case c.ValidTo == "":
		return missingField("valid_to")
	}
	if _, err := ParseDate(c.ValidFrom); err != nil {
		return err
	}
	if _, err := ParseDate(c.ValidTo); err != nil {
		return err
	}
	if c.Price.IsNegative() {
		return &FieldError{Field: "price", Reason: "must not be negative"}
	}
	return nil
}
