// Package notify decides which fresh transactions the current user hears
// about and delivers those announcements.
package notify

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

// UnknownPayer stands in for a payer missing from the user directory.
const UnknownPayer = "Someone"

// Decide returns the notification for a fresh transaction, or false if the
// current user should not be notified. It has no side effects.
//
// Expenses notify participants who did not pay, if either expense preference
// is on. Settlements notify the receiver, if the settlement preference is on.
func Decide(tx models.Transaction, group models.Group, currentUser models.User, users map[string]models.User) (models.Notification, bool) {
	prefs := currentUser.Preferences()

	switch tx.Kind {
	case models.KindExpense:
		e := tx.Expense
		if e == nil || e.PayerID == currentUser.ID || !e.HasParticipant(currentUser.ID) {
			return models.Notification{}, false
		}
		if !prefs.OnAddedToTransaction && !prefs.OnGroupExpenseAdded {
			return models.Notification{}, false
		}
		return models.Notification{
			Title:         fmt.Sprintf("New expense in %s", group.Name),
			Body:          fmt.Sprintf("%s added %q · %s", payerName(users, e.PayerID), e.Description, FormatAmount(e.Amount)),
			GroupID:       group.ID,
			TransactionID: tx.ID,
			Link:          GroupLink(group.ID),
		}, true

	case models.KindSettlement:
		s := tx.Settlement
		if s == nil || s.ToUserID != currentUser.ID || s.FromUserID == currentUser.ID {
			return models.Notification{}, false
		}
		if !prefs.OnSettlement {
			return models.Notification{}, false
		}
		return models.Notification{
			Title:         "Payment received",
			Body:          fmt.Sprintf("%s paid you %s", payerName(users, s.FromUserID), FormatAmount(s.Amount)),
			GroupID:       group.ID,
			TransactionID: tx.ID,
			Link:          GroupLink(group.ID),
		}, true
	}

	return models.Notification{}, false
}

// GroupLink is where activating a notification navigates.
func GroupLink(groupID string) string {
	return "/group/" + groupID
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}

func payerName(users map[string]models.User, id string) string {
	if u, ok := users[id]; ok && u.Name != "" {
		return u.Name
	}
	return UnknownPayer
}
