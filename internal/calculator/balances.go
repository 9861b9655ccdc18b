package calculator

import (
	"math"
	"sort"

	"github.com/mmynk/splitledger/internal/models"
)

// DebtEdge represents a debt from one person to another.
type DebtEdge struct {
	From   models.User // Person who owes
	To     models.User // Person who is owed
	Amount float64
}

// CalculateBalances folds a group's transactions into one Balance per member.
//
// Algorithm:
//   - Expense: the payer is credited the full amount, each participant is debited
//     their share (see ShareAmounts)
//   - Settlement: the payer (FromUserID) is credited, the receiver (ToUserID) is debited
//
// The fold is a sum of independent terms, so transaction order never matters, and
// every term nets to zero except a shares split with zero total weight, where the
// payer is credited and nobody is debited.
//
// Transactions may mention IDs that are not (or no longer) members; those amounts
// are accumulated but only members are reported, in the order given.
func CalculateBalances(members []models.User, transactions []models.Transaction) []models.Balance {
	balances := make(map[string]float64, len(members))
	for _, m := range members {
		balances[m.ID] = 0
	}

	for _, tx := range transactions {
		switch tx.Kind {
		case models.KindExpense:
			e := tx.Expense
			balances[e.PayerID] += e.Amount
			for participant, share := range ShareAmounts(*e) {
				balances[participant] -= share
			}
		case models.KindSettlement:
			s := tx.Settlement
			// Paying shrinks the payer's debt, receiving shrinks the receiver's credit.
			balances[s.FromUserID] += s.Amount
			balances[s.ToUserID] -= s.Amount
		}
	}

	result := make([]models.Balance, len(members))
	for i, m := range members {
		result[i] = models.Balance{User: m, Amount: balances[m.ID]}
	}
	return result
}

// CalculateGlobalBalances nets the current user's position against every
// counterparty across all of the given groups.
//
// For each transaction the current user takes part in:
//   - Expense paid by the current user: every other participant owes their share
//   - Expense paid by someone else: the current user owes the payer their own share
//   - Settlement sent by the current user: their debt to the receiver shrinks
//   - Settlement received by the current user: the sender's debt shrinks
//
// Counterparties whose net is within SettledEpsilon of zero, and IDs missing from
// the user directory, are dropped. The result is sorted largest "owed to me" first.
func CalculateGlobalBalances(groups []models.Group, users []models.User, currentUserID string) []models.Balance {
	net := make(map[string]float64)

	for _, group := range groups {
		for _, tx := range group.Transactions {
			if !tx.Involves(currentUserID) {
				continue
			}

			switch tx.Kind {
			case models.KindExpense:
				e := tx.Expense
				shares := ShareAmounts(*e)
				if e.PayerID == currentUserID {
					for participant, share := range shares {
						if participant != currentUserID {
							net[participant] += share
						}
					}
				} else {
					net[e.PayerID] -= shares[currentUserID]
				}
			case models.KindSettlement:
				s := tx.Settlement
				if s.FromUserID == currentUserID {
					net[s.ToUserID] += s.Amount
				} else {
					net[s.FromUserID] -= s.Amount
				}
			}
		}
	}

	var result []models.Balance
	for _, user := range users {
		if user.ID == currentUserID {
			continue
		}
		amount, ok := net[user.ID]
		if !ok || math.Abs(amount) <= SettledEpsilon {
			continue
		}
		result = append(result, models.Balance{User: user, Amount: amount})
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Amount != result[j].Amount {
			return result[i].Amount > result[j].Amount
		}
		if result[i].User.Name != result[j].User.Name {
			return result[i].User.Name < result[j].User.Name
		}
		return result[i].User.ID < result[j].User.ID
	})
	return result
}

// SimplifyDebts turns a group's member balances into a short list of payments
// that would settle everyone.
//
// Greedy algorithm: match the largest debtor with the largest creditor, settle
// the smaller of the two amounts, and move on once either side is within
// SettledEpsilon of zero.
func SimplifyDebts(balances []models.Balance) []DebtEdge {
	var creditors, debtors []models.Balance
	for _, b := range balances {
		if b.Amount > SettledEpsilon {
			creditors = append(creditors, b)
		} else if b.Amount < -SettledEpsilon {
			debtors = append(debtors, models.Balance{User: b.User, Amount: -b.Amount}) // Make positive
		}
	}

	byAmount := func(list []models.Balance) {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Amount > list[j].Amount })
	}
	byAmount(creditors)
	byAmount(debtors)

	var edges []DebtEdge
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := math.Min(debtors[i].Amount, creditors[j].Amount)

		if amount > SettledEpsilon { // Avoid floating point noise
			edges = append(edges, DebtEdge{
				From:   debtors[i].User,
				To:     creditors[j].User,
				Amount: amount,
			})
		}

		debtors[i].Amount -= amount
		creditors[j].Amount -= amount

		// Move to next debtor/creditor if fully settled
		if debtors[i].Amount <= SettledEpsilon {
			i++
		}
		if creditors[j].Amount <= SettledEpsilon {
			j++
		}
	}

	return edges
}
