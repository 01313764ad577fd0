package cart

import "errors"

// Errors returned by cart session operations. Notices are not errors;
// see Notice in session.go.
var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrNoShop         = errors.New("no shop context")
	ErrLineNotFound   = errors.New("line not found in cart")
	ErrSubmitInFlight = errors.New("checkout already in progress")
	ErrUnknownSKU     = errors.New("no product matches scanned code")
)
