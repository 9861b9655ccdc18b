package service

import (
	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/pkg/api"
)

func toAPIUser(u models.User) api.User {
	out := api.User{
		ID:           u.ID,
		Name:         u.Name,
		AvatarURL:    u.AvatarURL,
		Email:        u.Email,
		MonthlyLimit: u.MonthlyLimit,
	}
	if u.NotificationPreferences != nil {
		p := toAPIPreferences(*u.NotificationPreferences)
		out.NotificationPreferences = &p
	}
	return out
}

func toAPIUsers(users []models.User) []api.User {
	out := make([]api.User, len(users))
	for i, u := range users {
		out[i] = toAPIUser(u)
	}
	return out
}

func toAPIPreferences(p models.NotificationPreferences) api.NotificationPreferences {
	return api.NotificationPreferences{
		OnAddedToTransaction: p.OnAddedToTransaction,
		OnGroupExpenseAdded:  p.OnGroupExpenseAdded,
		OnSettlement:         p.OnSettlement,
	}
}

func fromAPIPreferences(p api.NotificationPreferences) models.NotificationPreferences {
	return models.NotificationPreferences{
		OnAddedToTransaction: p.OnAddedToTransaction,
		OnGroupExpenseAdded:  p.OnGroupExpenseAdded,
		OnSettlement:         p.OnSettlement,
	}
}

func toAPIGroup(g models.Group) api.Group {
	txs := make([]api.Transaction, len(g.Transactions))
	for i, tx := range g.Transactions {
		txs[i] = toAPITransaction(tx)
	}
	return api.Group{
		ID:           g.ID,
		Name:         g.Name,
		MemberIDs:    g.MemberIDs,
		Members:      toAPIUsers(g.Members),
		Transactions: txs,
		CreatedAt:    g.CreatedAt,
	}
}

func toAPITransaction(tx models.Transaction) api.Transaction {
	out := api.Transaction{
		ID:      tx.ID,
		GroupID: tx.GroupID,
		Kind:    string(tx.Kind),
		Date:    tx.Date,
	}
	if e := tx.Expense; e != nil {
		out.Expense = &api.Expense{
			Description:  e.Description,
			Amount:       e.Amount,
			PayerID:      e.PayerID,
			SplitMethod:  string(e.SplitMethod),
			Participants: e.Participants,
			Shares:       e.Shares,
			Category:     string(e.Category),
		}
	}
	if s := tx.Settlement; s != nil {
		out.Settlement = &api.Settlement{
			FromUserID: s.FromUserID,
			ToUserID:   s.ToUserID,
			Amount:     s.Amount,
		}
	}
	return out
}

// fromAPITransaction rebuilds a transaction for editing. The variant that
// does not match Kind is ignored.
func fromAPITransaction(tx api.Transaction) models.Transaction {
	out := models.Transaction{
		ID:      tx.ID,
		GroupID: tx.GroupID,
		Kind:    models.TransactionKind(tx.Kind),
		Date:    tx.Date,
	}
	switch out.Kind {
	case models.KindExpense:
		if e := tx.Expense; e != nil {
			out.Expense = &models.Expense{
				Description:  e.Description,
				Amount:       e.Amount,
				PayerID:      e.PayerID,
				SplitMethod:  models.SplitMethod(e.SplitMethod),
				Participants: e.Participants,
				Shares:       e.Shares,
				Category:     models.Category(e.Category),
			}
		}
	case models.KindSettlement:
		if s := tx.Settlement; s != nil {
			out.Settlement = &models.Settlement{
				FromUserID: s.FromUserID,
				ToUserID:   s.ToUserID,
				Amount:     s.Amount,
			}
		}
	}
	return out
}

func toAPIBalances(balances []models.Balance) []api.Balance {
	out := make([]api.Balance, len(balances))
	for i, b := range balances {
		out[i] = api.Balance{User: toAPIUser(b.User), Amount: b.Amount}
	}
	return out
}

func toAPIDebts(edges []calculator.DebtEdge) []api.DebtEdge {
	out := make([]api.DebtEdge, len(edges))
	for i, e := range edges {
		out[i] = api.DebtEdge{From: toAPIUser(e.From), To: toAPIUser(e.To), Amount: e.Amount}
	}
	return out
}

func toAPINotification(n models.Notification) *api.Notification {
	return &api.Notification{
		Title:         n.Title,
		Body:          n.Body,
		GroupID:       n.GroupID,
		TransactionID: n.TransactionID,
		Link:          n.Link,
	}
}
