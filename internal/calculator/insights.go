package calculator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

// CategorySpend is the current user's total consumption in one category.
type CategorySpend struct {
	Category models.Category
	Amount   float64
}

// MonthlySummary describes one calendar month of the user's spending against
// their monthly limit.
type MonthlySummary struct {
	// Month is the first instant of the month, in the location it was requested in.
	Month time.Time

	// Spent is the user's share of every expense dated within the month.
	Spent float64

	// Limit is the user's monthly limit. HasLimit is false when none is set (or it is 0).
	Limit    float64
	HasLimit bool

	// Remaining is Limit - Spent. Negative once the limit is exceeded.
	Remaining float64

	ByCategory []CategorySpend
}

// OverLimit reports whether the month's spend exceeds a set limit.
func (m MonthlySummary) OverLimit() bool {
	return m.HasLimit && m.Remaining < 0
}

// SpendingByCategory sums userID's own share of every expense they participate
// in, dated in [from, to). A zero from or to leaves that side unbounded.
// Settlements are transfers, not spending, and are ignored.
// Categories with no spend are omitted; the rest are sorted largest first.
func SpendingByCategory(groups []models.Group, userID string, from, to time.Time) []CategorySpend {
	totals := make(map[models.Category]decimal.Decimal)

	for _, group := range groups {
		for _, tx := range group.Transactions {
			if tx.Kind != models.KindExpense || !inRange(tx.Date, from, to) {
				continue
			}
			share, ok := ShareAmounts(*tx.Expense)[userID]
			if !ok || share <= 0 {
				continue
			}
			category := tx.Expense.Category
			if category == "" {
				category = models.CategoryOther
			}
			totals[category] = totals[category].Add(decimal.NewFromFloat(share))
		}
	}

	result := make([]CategorySpend, 0, len(totals))
	for category, total := range totals {
		result = append(result, CategorySpend{
			Category: category,
			Amount:   total.Round(2).InexactFloat64(),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Amount != result[j].Amount {
			return result[i].Amount > result[j].Amount
		}
		return result[i].Category < result[j].Category
	})
	return result
}

// SummarizeMonth reports the user's spending for the calendar month containing month.
func SummarizeMonth(groups []models.Group, user models.User, month time.Time) MonthlySummary {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())
	end := start.AddDate(0, 1, 0)

	byCategory := SpendingByCategory(groups, user.ID, start, end)
	spent := decimal.Zero
	for _, c := range byCategory {
		spent = spent.Add(decimal.NewFromFloat(c.Amount))
	}

	summary := MonthlySummary{
		Month:      start,
		Spent:      spent.Round(2).InexactFloat64(),
		ByCategory: byCategory,
	}
	if user.MonthlyLimit != nil && *user.MonthlyLimit > 0 {
		summary.HasLimit = true
		summary.Limit = *user.MonthlyLimit
		summary.Remaining = decimal.NewFromFloat(summary.Limit).Sub(spent).Round(2).InexactFloat64()
	}
	return summary
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
