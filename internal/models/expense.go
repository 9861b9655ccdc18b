package models

// SplitMethod is the rule for dividing an Expense among its participants.
type SplitMethod string

const (
	// SplitEqual divides the amount evenly among participants.
	SplitEqual SplitMethod = "equal"
	// SplitShares divides the amount in proportion to each participant's weight.
	SplitShares SplitMethod = "shares"
)

// Category tags an expense for analytics. It has no financial meaning.
type Category string

const (
	CategorySelf          Category = "Self"
	CategoryRent          Category = "Rent"
	CategoryTravel        Category = "Travel"
	CategoryFood          Category = "Food"
	CategoryBooze         Category = "Booze"
	CategoryShopping      Category = "Shopping"
	CategoryQuickDelivery Category = "Quick Delivery"
	CategoryOther         Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategorySelf,
	CategoryRent,
	CategoryTravel,
	CategoryFood,
	CategoryBooze,
	CategoryShopping,
	CategoryQuickDelivery,
	CategoryOther,
}

// Expense is a purchase paid by one member and split between participants.
type Expense struct {
	// Description is the human-readable name of the expense (e.g., "Dinner").
	Description string

	// Amount is the total paid. Always positive for writes made through the session.
	Amount float64

	// PayerID is the user who paid the full amount.
	PayerID string

	// SplitMethod selects equal or weighted division.
	SplitMethod SplitMethod

	// Participants is the set of user IDs the expense is split between.
	// The payer is a participant only if they also consume part of it.
	Participants []string

	// Shares maps participant ID to a non-negative weight when SplitMethod is
	// SplitShares. A participant missing from the map has weight zero.
	Shares map[string]float64

	// Category is the analytics tag.
	Category Category
}

// HasParticipant reports whether userID is one of the expense's participants.
func (e Expense) HasParticipant(userID string) bool {
	for _, p := range e.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
