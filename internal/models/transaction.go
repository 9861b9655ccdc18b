package models

import "time"

// TransactionKind discriminates the two transaction variants.
type TransactionKind string

const (
	KindExpense    TransactionKind = "expense"
	KindSettlement TransactionKind = "settlement"
)

// Transaction is one entry of a group's ledger.
//
// Exactly one of Expense or Settlement is set, matching Kind. Construct values
// with NewExpense or NewSettlement to keep the two in agreement.
type Transaction struct {
	// ID is unique within the owning group.
	ID string

	// GroupID is the group whose ledger holds this transaction.
	GroupID string

	// Kind selects the variant.
	Kind TransactionKind

	// Date is the creation timestamp.
	Date time.Time

	Expense    *Expense
	Settlement *Settlement
}

// NewExpense wraps e as a Transaction of kind KindExpense.
func NewExpense(id, groupID string, date time.Time, e Expense) Transaction {
	return Transaction{ID: id, GroupID: groupID, Kind: KindExpense, Date: date, Expense: &e}
}

// NewSettlement wraps s as a Transaction of kind KindSettlement.
func NewSettlement(id, groupID string, date time.Time, s Settlement) Transaction {
	return Transaction{ID: id, GroupID: groupID, Kind: KindSettlement, Date: date, Settlement: &s}
}

// Amount returns the transaction amount regardless of kind.
func (t Transaction) Amount() float64 {
	switch t.Kind {
	case KindExpense:
		return t.Expense.Amount
	case KindSettlement:
		return t.Settlement.Amount
	default:
		return 0
	}
}

// Involves reports whether userID pays, participates in, or is a party to the transaction.
func (t Transaction) Involves(userID string) bool {
	switch t.Kind {
	case KindExpense:
		return t.Expense.PayerID == userID || t.Expense.HasParticipant(userID)
	case KindSettlement:
		return t.Settlement.FromUserID == userID || t.Settlement.ToUserID == userID
	default:
		return false
	}
}
