// Package api defines the wire messages of the splitledger.v1 services.
// Messages travel as JSON; field names follow the stored document fields.
package api

import "time"

type User struct {
	ID                      string                   `json:"id"`
	Name                    string                   `json:"name"`
	AvatarURL               string                   `json:"avatarUrl,omitempty"`
	Email                   string                   `json:"email,omitempty"`
	MonthlyLimit            *float64                 `json:"monthlyLimit,omitempty"`
	NotificationPreferences *NotificationPreferences `json:"notificationPreferences,omitempty"`
}

type NotificationPreferences struct {
	OnAddedToTransaction bool `json:"onAddedToTransaction"`
	OnGroupExpenseAdded  bool `json:"onGroupExpenseAdded"`
	OnSettlement         bool `json:"onSettlement"`
}

type Group struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	MemberIDs    []string      `json:"memberIds"`
	Members      []User        `json:"members"`
	Transactions []Transaction `json:"transactions"`
	CreatedAt    int64         `json:"createdAt"`
}

// Transaction carries exactly one of Expense or Settlement, matching Kind.
type Transaction struct {
	ID         string      `json:"id"`
	GroupID    string      `json:"groupId"`
	Kind       string      `json:"kind"`
	Date       time.Time   `json:"date,omitzero"`
	Expense    *Expense    `json:"expense,omitempty"`
	Settlement *Settlement `json:"settlement,omitempty"`
}

type Expense struct {
	Description  string             `json:"description"`
	Amount       float64            `json:"amount"`
	PayerID      string             `json:"paidById"`
	SplitMethod  string             `json:"splitMethod"`
	Participants []string           `json:"splitBetween"`
	Shares       map[string]float64 `json:"splitShares,omitempty"`
	Category     string             `json:"category,omitempty"`
}

type Settlement struct {
	FromUserID string  `json:"fromId"`
	ToUserID   string  `json:"toId"`
	Amount     float64 `json:"amount"`
}

// Balance is signed: positive means the user is owed.
type Balance struct {
	User   User    `json:"user"`
	Amount float64 `json:"amount"`
}

type DebtEdge struct {
	From   User    `json:"from"`
	To     User    `json:"to"`
	Amount float64 `json:"amount"`
}

type CategorySpend struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

type Notification struct {
	Title         string `json:"title"`
	Body          string `json:"body"`
	GroupID       string `json:"groupId"`
	TransactionID string `json:"transactionId"`
	Link          string `json:"link"`
}

// Auth

type RegisterRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

type LogoutRequest struct{}

type LogoutResponse struct{}

type GetCurrentUserRequest struct{}

type GetCurrentUserResponse struct {
	User User `json:"user"`
}

// Ledger reads

type GetStateRequest struct{}

type GetStateResponse struct {
	Version     uint64  `json:"version"`
	Loading     bool    `json:"loading"`
	CurrentUser *User   `json:"currentUser,omitempty"`
	Users       []User  `json:"users"`
	Groups      []Group `json:"groups"`
}

type GetGroupBalancesRequest struct {
	GroupID string `json:"groupId"`
}

type GetGroupBalancesResponse struct {
	Balances []Balance `json:"balances"`
}

type GetGlobalBalancesRequest struct{}

type GetGlobalBalancesResponse struct {
	Balances []Balance `json:"balances"`
}

type GetSimplifiedDebtsRequest struct {
	GroupID string `json:"groupId"`
}

type GetSimplifiedDebtsResponse struct {
	Debts []DebtEdge `json:"debts"`
}

// GetInsightsRequest selects a month as "YYYY-MM". Empty means the current month.
type GetInsightsRequest struct {
	Month string `json:"month"`
}

type GetInsightsResponse struct {
	Month      string          `json:"month"`
	Spent      float64         `json:"spent"`
	Limit      float64         `json:"limit"`
	HasLimit   bool            `json:"hasLimit"`
	Remaining  float64         `json:"remaining"`
	OverLimit  bool            `json:"overLimit"`
	ByCategory []CategorySpend `json:"byCategory"`
}

// Ledger writes

type AddGroupRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"memberIds"`
}

type AddGroupResponse struct {
	GroupID string `json:"groupId"`
}

type AddExpenseRequest struct {
	GroupID      string             `json:"groupId"`
	Description  string             `json:"description"`
	Amount       float64            `json:"amount"`
	PayerID      string             `json:"paidById"`
	SplitMethod  string             `json:"splitMethod"`
	Participants []string           `json:"splitBetween"`
	Shares       map[string]float64 `json:"splitShares,omitempty"`
	Category     string             `json:"category,omitempty"`
}

type SettleUpRequest struct {
	GroupID    string  `json:"groupId"`
	FromUserID string  `json:"fromId"`
	ToUserID   string  `json:"toId"`
	Amount     float64 `json:"amount"`
}

type TransactionResponse struct {
	TransactionID string `json:"transactionId"`
}

type EditTransactionRequest struct {
	Transaction Transaction `json:"transaction"`
}

type DeleteTransactionRequest struct {
	GroupID       string `json:"groupId"`
	TransactionID string `json:"transactionId"`
}

type DeleteGroupRequest struct {
	GroupID string `json:"groupId"`
}

type UpdateUserLimitRequest struct {
	MonthlyLimit float64 `json:"monthlyLimit"`
}

type UpdateNotificationPreferencesRequest struct {
	Preferences NotificationPreferences `json:"preferences"`
}

type FindUserByEmailRequest struct {
	Email string `json:"email"`
}

// FindUserByEmailResponse has a nil User when nobody has the address.
type FindUserByEmailResponse struct {
	User *User `json:"user,omitempty"`
}

type Empty struct{}

type WatchNotificationsRequest struct{}
