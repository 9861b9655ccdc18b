package models

// Group is a set of users sharing a ledger.
//
// MemberIDs is authoritative. Members and Transactions are derived from the
// latest user directory and transaction snapshots and are never persisted.
type Group struct {
	// ID is the unique identifier for the group.
	ID string

	// Name is the display name of the group (e.g., "Roommates", "Goa Trip").
	Name string

	// MemberIDs is the set of member user IDs. Order carries no meaning.
	MemberIDs []string

	// Members is MemberIDs resolved through the user directory.
	// IDs with no matching user are omitted.
	Members []User

	// Transactions is the group's ledger, newest first.
	Transactions []Transaction

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64
}

// HasMember reports whether userID is in the group's member set.
func (g Group) HasMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
