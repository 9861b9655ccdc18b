package models

// Balance is a derived (User, signed amount) pair. It is never persisted.
// Positive Amount means the user is owed that much; negative means the user owes it.
type Balance struct {
	User   User
	Amount float64
}

// Notification is what gets announced to the current user for a fresh transaction.
type Notification struct {
	Title string
	Body  string

	// GroupID and TransactionID identify what the notification is about.
	GroupID       string
	TransactionID string

	// Link is where activating the notification navigates: the owning group.
	Link string
}
