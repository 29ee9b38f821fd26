package promotion

import "time"

// Rule is an admin-defined discount script. Source must be a JavaScript
// function expression taking an order summary and returning a discount in
// minor units, e.g.
//
//	function(order) { return order.subtotal_cents >= 10000 ? 1000 : 0 }
type Rule struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
