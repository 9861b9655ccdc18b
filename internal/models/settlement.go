package models

// Settlement is the payload of a payment transaction: one member paying
// another back outside the app.
type Settlement struct {
	// FromUserID paid; their balance goes up.
	FromUserID string

	// ToUserID received; their balance goes down.
	ToUserID string

	Amount float64
}
