package coordinator

import (
	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
)

// State is one immutable view of the ledger as seen by a session. A new State
// is published after every snapshot; published values are never modified.
type State struct {
	// Version increases with every publish.
	Version uint64

	CurrentUserID string

	// CurrentUser is nil until the user directory contains the current user.
	CurrentUser *models.User

	// Users is the user directory in store order.
	Users []models.User

	// Groups holds the groups the current user belongs to, with members
	// resolved and transactions newest first.
	Groups []models.Group

	// Loading is true until the first groups snapshot has been merged.
	Loading bool

	users  map[string]models.User
	groups map[string]int
}

func newState(version uint64, currentUserID string, users []models.User, groups []models.Group, loading bool) *State {
	s := &State{
		Version:       version,
		CurrentUserID: currentUserID,
		Users:         users,
		Groups:        groups,
		Loading:       loading,
		users:         make(map[string]models.User, len(users)),
		groups:        make(map[string]int, len(groups)),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	for i, g := range groups {
		s.groups[g.ID] = i
	}
	if u, ok := s.users[currentUserID]; ok {
		s.CurrentUser = &u
	}
	return s
}

// User looks up a user in the directory.
func (s *State) User(id string) (models.User, bool) {
	u, ok := s.users[id]
	return u, ok
}

// Directory returns the user directory keyed by ID. Callers must not modify it.
func (s *State) Directory() map[string]models.User {
	return s.users
}

// Group looks up one of the current user's groups.
func (s *State) Group(id string) (models.Group, bool) {
	i, ok := s.groups[id]
	if !ok {
		return models.Group{}, false
	}
	return s.Groups[i], true
}

// GroupBalances computes the balances of a group's resolved members.
func (s *State) GroupBalances(groupID string) ([]models.Balance, bool) {
	g, ok := s.Group(groupID)
	if !ok {
		return nil, false
	}
	return calculator.CalculateBalances(g.Members, g.Transactions), true
}

// GlobalBalances nets the current user's balances across every group.
func (s *State) GlobalBalances() []models.Balance {
	return calculator.CalculateGlobalBalances(s.Groups, s.Users, s.CurrentUserID)
}
