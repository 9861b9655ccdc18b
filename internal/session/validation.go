package session

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmynk/splitledger/internal/models"
)

var (
	// ErrInvalidInput wraps every validation failure of caller-supplied data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownGroup is returned for groups the current user does not belong to.
	ErrUnknownGroup = errors.New("unknown group")
)

// GroupInput is the data for a new group.
type GroupInput struct {
	Name      string   `validate:"required,max=100"`
	MemberIDs []string `validate:"dive,required"`
}

// ExpenseInput is the data for a new or edited expense.
type ExpenseInput struct {
	GroupID      string             `validate:"required"`
	Description  string             `validate:"required,max=200"`
	Amount       float64            `validate:"gt=0"`
	PayerID      string             `validate:"required"`
	SplitMethod  models.SplitMethod `validate:"required,oneof=equal shares"`
	Participants []string           `validate:"min=1,dive,required"`
	Shares       map[string]float64 `validate:"omitempty,dive,keys,required,endkeys,gte=0"`
	Category     models.Category
}

// SettlementInput is the data for a new or edited settlement.
type SettlementInput struct {
	GroupID    string  `validate:"required"`
	FromUserID string  `validate:"required"`
	ToUserID   string  `validate:"required,nefield=FromUserID"`
	Amount     float64 `validate:"gt=0"`
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// invalid wraps a validation failure in ErrInvalidInput.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// checkStruct runs the struct tags and describes every failing field.
func checkStruct(v *validator.Validate, in any) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return invalid("%s", strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "gte":
		return fe.Field() + " must not be negative"
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s is longer than %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "nefield":
		return fe.Field() + " must differ from " + fe.Param()
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// normalizeExpense validates an expense against the group it belongs to and
// returns the expense to store: category defaulted, weights of
// non-participants dropped.
func normalizeExpense(v *validator.Validate, in ExpenseInput, group models.Group) (models.Expense, error) {
	if err := checkStruct(v, in); err != nil {
		return models.Expense{}, err
	}
	if !finite(in.Amount) {
		return models.Expense{}, invalid("Amount must be a finite number")
	}
	if !group.HasMember(in.PayerID) {
		return models.Expense{}, invalid("payer %s is not a member of the group", in.PayerID)
	}

	participants := dedupe(in.Participants)
	for _, id := range participants {
		if !group.HasMember(id) {
			return models.Expense{}, invalid("participant %s is not a member of the group", id)
		}
	}

	category := in.Category
	if category == "" {
		category = models.CategoryOther
	}
	if !validCategory(category) {
		return models.Expense{}, invalid("unknown category %q", category)
	}

	e := models.Expense{
		Description:  strings.TrimSpace(in.Description),
		Amount:       in.Amount,
		PayerID:      in.PayerID,
		SplitMethod:  in.SplitMethod,
		Participants: participants,
		Category:     category,
	}
	if e.Description == "" {
		return models.Expense{}, invalid("Description is required")
	}

	if in.SplitMethod == models.SplitShares {
		shares := make(map[string]float64, len(participants))
		var total float64
		for _, id := range participants {
			w := in.Shares[id]
			if !finite(w) {
				return models.Expense{}, invalid("weight of %s must be a finite number", id)
			}
			shares[id] = w
			total += w
		}
		if total <= 0 {
			return models.Expense{}, invalid("total weight must be greater than 0")
		}
		e.Shares = shares
	}
	return e, nil
}

// normalizeSettlement validates a settlement against its group.
func normalizeSettlement(v *validator.Validate, in SettlementInput, group models.Group) (models.Settlement, error) {
	if err := checkStruct(v, in); err != nil {
		return models.Settlement{}, err
	}
	if !finite(in.Amount) {
		return models.Settlement{}, invalid("Amount must be a finite number")
	}
	for _, id := range []string{in.FromUserID, in.ToUserID} {
		if !group.HasMember(id) {
			return models.Settlement{}, invalid("%s is not a member of the group", id)
		}
	}
	return models.Settlement{FromUserID: in.FromUserID, ToUserID: in.ToUserID, Amount: in.Amount}, nil
}

func validCategory(c models.Category) bool {
	for _, known := range models.Categories {
		if c == known {
			return true
		}
	}
	return false
}

// dedupe drops repeated IDs, keeping first occurrences in order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
