package calculator

import (
	"github.com/mmynk/splitledger/internal/models"
)

// SettledEpsilon is the absolute amount at or below which a balance counts as settled.
const SettledEpsilon = 0.01

// ShareAmounts computes how much of an expense each participant consumes.
//
// Equal split: amount / len(participants) each. Shares split: amount × weight /
// totalWeight, where totalWeight sums the weights of participants only and a
// participant missing from the weight map has weight zero.
//
// The degenerate cases return an empty map rather than an error: no participants,
// or a shares split whose total weight is zero.
func ShareAmounts(e models.Expense) map[string]float64 {
	shares := make(map[string]float64, len(e.Participants))
	if len(e.Participants) == 0 {
		return shares
	}

	switch e.SplitMethod {
	case models.SplitShares:
		var totalWeight float64
		for _, p := range e.Participants {
			totalWeight += e.Shares[p]
		}
		if totalWeight == 0 {
			return shares
		}
		for _, p := range e.Participants {
			shares[p] += e.Amount * e.Shares[p] / totalWeight
		}
	default:
		perPerson := e.Amount / float64(len(e.Participants))
		for _, p := range e.Participants {
			shares[p] += perPerson
		}
	}

	return shares
}
