package calculator

import (
	"math"
	"testing"

	"github.com/mmynk/splitledger/internal/models"
)

func TestShareAmounts(t *testing.T) {
	tests := []struct {
		name         string
		expense      models.Expense
		validateFunc func(t *testing.T, shares map[string]float64)
	}{
		{
			name: "equal split among three",
			expense: models.Expense{
				Amount:       90,
				PayerID:      "alice",
				SplitMethod:  models.SplitEqual,
				Participants: []string{"alice", "bob", "charlie"},
			},
			validateFunc: func(t *testing.T, shares map[string]float64) {
				for _, p := range []string{"alice", "bob", "charlie"} {
					if math.Abs(shares[p]-30) > 1e-9 {
						t.Errorf("%s share = %v, want 30", p, shares[p])
					}
				}
			},
		},
		{
			name: "shares split weighted 1:2",
			expense: models.Expense{
				Amount:       90,
				PayerID:      "alice",
				SplitMethod:  models.SplitShares,
				Participants: []string{"alice", "bob"},
				Shares:       map[string]float64{"alice": 1, "bob": 2},
			},
			validateFunc: func(t *testing.T, shares map[string]float64) {
				if math.Abs(shares["alice"]-30) > 1e-9 {
					t.Errorf("alice share = %v, want 30", shares["alice"])
				}
				if math.Abs(shares["bob"]-60) > 1e-9 {
					t.Errorf("bob share = %v, want 60", shares["bob"])
				}
			},
		},
		{
			name: "participant missing from weights has weight zero",
			expense: models.Expense{
				Amount:       50,
				PayerID:      "alice",
				SplitMethod:  models.SplitShares,
				Participants: []string{"alice", "bob"},
				Shares:       map[string]float64{"bob": 3},
			},
			validateFunc: func(t *testing.T, shares map[string]float64) {
				if shares["alice"] != 0 {
					t.Errorf("alice share = %v, want 0", shares["alice"])
				}
				if math.Abs(shares["bob"]-50) > 1e-9 {
					t.Errorf("bob share = %v, want 50", shares["bob"])
				}
			},
		},
		{
			name: "weights outside participants are ignored",
			expense: models.Expense{
				Amount:       40,
				PayerID:      "alice",
				SplitMethod:  models.SplitShares,
				Participants: []string{"alice", "bob"},
				Shares:       map[string]float64{"alice": 1, "bob": 1, "mallory": 6},
			},
			validateFunc: func(t *testing.T, shares map[string]float64) {
				if math.Abs(shares["alice"]-20) > 1e-9 || math.Abs(shares["bob"]-20) > 1e-9 {
					t.Errorf("shares = %v, want 20 each", shares)
				}
				if _, ok := shares["mallory"]; ok {
					t.Error("non-participant should not get a share")
				}
			},
		},
		{
			name: "zero total weight is a no-op",
			expense: models.Expense{
				Amount:       40,
				PayerID:      "alice",
				SplitMethod:  models.SplitShares,
				Participants: []string{"alice", "bob"},
				Shares:       map[string]float64{"alice": 0, "bob": 0},
			},
			validateFunc: func(t *testing.T, shares map[string]float64) {
				if len(shares) != 0 {
					t.Errorf("expected no shares, got %v", shares)
				}
			},
		},
		{
			name: "shares method with no weight map is a no-op",
			expense: models.Expense{
				Amount:       40,
				PayerID:      "alice",
				SplitMethod:  models.SplitShares,
				Participants: []string{"alice", "bob"},
			},
			validateFunc: func(t *testing.T, shares map[string]float64) {
				if len(shares) != 0 {
					t.Errorf("expected no shares, got %v", shares)
				}
			},
		},
		{
			name: "no participants does not divide by zero",
			expense: models.Expense{
				Amount:      40,
				PayerID:     "alice",
				SplitMethod: models.SplitEqual,
			},
			validateFunc: func(t *testing.T, shares map[string]float64) {
				if len(shares) != 0 {
					t.Errorf("expected no shares, got %v", shares)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validateFunc(t, ShareAmounts(tt.expense))
		})
	}
}
