package storage

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/splitledger/internal/models"
)

// Document field names shared by every client of the store.
const (
	fieldID                 = "id"
	fieldName               = "name"
	fieldAvatarURL          = "avatarUrl"
	fieldEmail              = "email"
	fieldMonthlyLimit       = "monthlyLimit"
	fieldNotificationPrefs  = "notificationPreferences"
	fieldOnAddedToTx        = "onAddedToTransaction"
	fieldOnGroupExpense     = "onGroupExpenseAdded"
	fieldOnSettlement       = "onSettlement"
	fieldMemberIDs          = "memberIds"
	fieldCreatedAt          = "createdAt"
	fieldKind               = "kind"
	fieldGroupID            = "groupId"
	fieldDescription        = "description"
	fieldAmount             = "amount"
	fieldPaidByID           = "paidById"
	fieldSplitMethod        = "splitMethod"
	fieldSplitBetween       = "splitBetween"
	fieldSplitShares        = "splitShares"
	fieldCategory           = "category"
	fieldFromID             = "fromId"
	fieldToID               = "toId"
	fieldDate               = "date"
	fieldPasswordHash       = "passwordHash"
	fieldCredentialUserID   = "userId"
	fieldCredentialCreateAt = "createdAt"
)

// MemberIDsField is the group field holding member IDs, used by membership filters.
const MemberIDsField = fieldMemberIDs

// EmailField is the user and credential field holding the email address.
const EmailField = fieldEmail

// UserFields encodes a user document.
func UserFields(u models.User) map[string]any {
	fields := map[string]any{
		fieldID:        u.ID,
		fieldName:      u.Name,
		fieldAvatarURL: u.AvatarURL,
		fieldEmail:     u.Email,
	}
	if u.MonthlyLimit != nil {
		fields[fieldMonthlyLimit] = *u.MonthlyLimit
	}
	if u.NotificationPreferences != nil {
		fields[fieldNotificationPrefs] = PreferencesFields(*u.NotificationPreferences)
	}
	return fields
}

// MonthlyLimitFields is the partial update that sets a user's monthly limit.
func MonthlyLimitFields(limit float64) map[string]any {
	return map[string]any{fieldMonthlyLimit: limit}
}

// PreferencesFields encodes notification preferences as a nested map.
func PreferencesFields(p models.NotificationPreferences) map[string]any {
	return map[string]any{
		fieldOnAddedToTx:    p.OnAddedToTransaction,
		fieldOnGroupExpense: p.OnGroupExpenseAdded,
		fieldOnSettlement:   p.OnSettlement,
	}
}

// NotificationPreferencesUpdate is the partial update that replaces a user's preferences.
func NotificationPreferencesUpdate(p models.NotificationPreferences) map[string]any {
	return map[string]any{fieldNotificationPrefs: PreferencesFields(p)}
}

// DecodeUser decodes a user document. Missing fields decode to zero values.
func DecodeUser(doc Document) models.User {
	r := fieldReader(doc.Fields.GetFields())
	user := models.User{
		ID:           doc.ID,
		Name:         r.str(fieldName),
		AvatarURL:    r.str(fieldAvatarURL),
		Email:        r.str(fieldEmail),
		MonthlyLimit: r.optNum(fieldMonthlyLimit),
	}
	if prefs := r[fieldNotificationPrefs].GetStructValue(); prefs != nil {
		p := fieldReader(prefs.GetFields())
		user.NotificationPreferences = &models.NotificationPreferences{
			OnAddedToTransaction: p.boolOr(fieldOnAddedToTx, true),
			OnGroupExpenseAdded:  p.boolOr(fieldOnGroupExpense, true),
			OnSettlement:         p.boolOr(fieldOnSettlement, true),
		}
	}
	return user
}

// GroupFields encodes a new group document.
func GroupFields(name string, memberIDs []string, createdAt time.Time) map[string]any {
	return map[string]any{
		fieldName:      name,
		fieldMemberIDs: anySlice(memberIDs),
		fieldCreatedAt: float64(createdAt.Unix()),
	}
}

// DecodeGroup decodes a group document. Derived fields are left empty.
func DecodeGroup(doc Document) models.Group {
	r := fieldReader(doc.Fields.GetFields())
	return models.Group{
		ID:        doc.ID,
		Name:      r.str(fieldName),
		MemberIDs: r.strs(fieldMemberIDs),
		CreatedAt: int64(r.num(fieldCreatedAt)),
	}
}

// TransactionFields encodes a transaction document. The ID is not part of the
// fields; it is the document ID. A zero Date is omitted so that updates keep
// the stored date.
func TransactionFields(tx models.Transaction) (map[string]any, error) {
	fields := map[string]any{
		fieldKind:    string(tx.Kind),
		fieldGroupID: tx.GroupID,
	}
	if !tx.Date.IsZero() {
		fields[fieldDate] = tx.Date.UTC().Format(time.RFC3339Nano)
	}

	switch tx.Kind {
	case models.KindExpense:
		if tx.Expense == nil {
			return nil, fmt.Errorf("expense transaction %q has no expense", tx.ID)
		}
		e := tx.Expense
		fields[fieldDescription] = e.Description
		fields[fieldAmount] = e.Amount
		fields[fieldPaidByID] = e.PayerID
		fields[fieldSplitMethod] = string(e.SplitMethod)
		fields[fieldSplitBetween] = anySlice(e.Participants)
		fields[fieldCategory] = string(e.Category)
		if e.SplitMethod == models.SplitShares {
			shares := make(map[string]any, len(e.Shares))
			for id, w := range e.Shares {
				shares[id] = w
			}
			fields[fieldSplitShares] = shares
		}
	case models.KindSettlement:
		if tx.Settlement == nil {
			return nil, fmt.Errorf("settlement transaction %q has no settlement", tx.ID)
		}
		s := tx.Settlement
		fields[fieldFromID] = s.FromUserID
		fields[fieldToID] = s.ToUserID
		fields[fieldAmount] = s.Amount
	default:
		return nil, fmt.Errorf("unknown transaction kind: %q", tx.Kind)
	}
	return fields, nil
}

// DecodeTransaction decodes a transaction document of the given group.
// It fails on a missing or unknown kind and on malformed required fields.
func DecodeTransaction(groupID string, doc Document) (models.Transaction, error) {
	r := fieldReader(doc.Fields.GetFields())

	var date time.Time
	if raw := r.str(fieldDate); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("transaction %s: invalid date %q: %w", doc.ID, raw, err)
		}
		date = parsed
	} else {
		date = doc.CreateTime
	}

	amount, ok := r.number(fieldAmount)
	if !ok {
		return models.Transaction{}, fmt.Errorf("transaction %s: missing amount", doc.ID)
	}

	switch kind := models.TransactionKind(r.str(fieldKind)); kind {
	case models.KindExpense:
		payer := r.str(fieldPaidByID)
		if payer == "" {
			return models.Transaction{}, fmt.Errorf("transaction %s: missing payer", doc.ID)
		}
		method := models.SplitMethod(r.str(fieldSplitMethod))
		switch method {
		case models.SplitEqual, models.SplitShares:
		case "":
			method = models.SplitEqual
		default:
			return models.Transaction{}, fmt.Errorf("transaction %s: unknown split method %q", doc.ID, method)
		}
		e := models.Expense{
			Description:  r.str(fieldDescription),
			Amount:       amount,
			PayerID:      payer,
			SplitMethod:  method,
			Participants: r.strs(fieldSplitBetween),
			Category:     models.Category(r.str(fieldCategory)),
		}
		// A stale splitShares field survives a merge that switched to equal.
		if method == models.SplitShares {
			e.Shares = r.nums(fieldSplitShares)
		}
		return models.NewExpense(doc.ID, groupID, date, e), nil
	case models.KindSettlement:
		from, to := r.str(fieldFromID), r.str(fieldToID)
		if from == "" || to == "" {
			return models.Transaction{}, fmt.Errorf("transaction %s: settlement missing parties", doc.ID)
		}
		return models.NewSettlement(doc.ID, groupID, date, models.Settlement{
			FromUserID: from,
			ToUserID:   to,
			Amount:     amount,
		}), nil
	default:
		return models.Transaction{}, fmt.Errorf("transaction %s: unknown kind %q", doc.ID, kind)
	}
}

// Credential is the stored sign-in secret of a user.
type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	CreatedAt    int64
}

// CredentialFields encodes a credential document.
func CredentialFields(c Credential) map[string]any {
	return map[string]any{
		fieldCredentialUserID:   c.UserID,
		fieldEmail:              c.Email,
		fieldPasswordHash:       c.PasswordHash,
		fieldCredentialCreateAt: float64(c.CreatedAt),
	}
}

// DecodeCredential decodes a credential document.
func DecodeCredential(doc Document) Credential {
	r := fieldReader(doc.Fields.GetFields())
	return Credential{
		UserID:       r.str(fieldCredentialUserID),
		Email:        r.str(fieldEmail),
		PasswordHash: r.str(fieldPasswordHash),
		CreatedAt:    int64(r.num(fieldCredentialCreateAt)),
	}
}

// anySlice converts a string slice to the []any form structpb accepts.
func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

type fieldReader map[string]*structpb.Value

func (r fieldReader) str(key string) string {
	return r[key].GetStringValue()
}

func (r fieldReader) number(key string) (float64, bool) {
	v, ok := r[key].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return v.NumberValue, true
}

func (r fieldReader) num(key string) float64 {
	n, _ := r.number(key)
	return n
}

func (r fieldReader) optNum(key string) *float64 {
	n, ok := r.number(key)
	if !ok {
		return nil
	}
	return &n
}

func (r fieldReader) boolOr(key string, fallback bool) bool {
	v, ok := r[key].GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return fallback
	}
	return v.BoolValue
}

func (r fieldReader) strs(key string) []string {
	values := r[key].GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
			out = append(out, s.StringValue)
		}
	}
	return out
}

func (r fieldReader) nums(key string) map[string]float64 {
	m := r[key].GetStructValue()
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m.GetFields()))
	for k, v := range m.GetFields() {
		if n, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
			out[k] = n.NumberValue
		}
	}
	return out
}
