package destiny

import "fmt"

// Rules describes the shape of a ticket: how many distinct primary balls are drawn
// from 1..PrimaryMax, followed by one bonus ball from 1..BonusMax.
type Rules struct {
	PrimaryCount int `json:"primary_count"`
	PrimaryMax   int `json:"primary_max"`
	BonusMax     int `json:"bonus_max"`
	HistorySize  int `json:"history_size"`
}

// DefaultRules returns the Powerball layout: 5 of 69 plus 1 of 26, history of 5
func DefaultRules() Rules {
	return Rules{
		PrimaryCount: DefaultPrimaryCount,
		PrimaryMax:   DefaultPrimaryMax,
		BonusMax:     DefaultBonusMax,
		HistorySize:  DefaultHistorySize,
	}
}

// TicketSize is the number of balls on a complete ticket
func (r Rules) TicketSize() int { return r.PrimaryCount + 1 }

// Validate checks that the rules describe a drawable ticket
func (r Rules) Validate() error {
	switch {
	case r.PrimaryCount <= 0:
		return ErrInvalidRules.WithDetails(fmt.Sprintf("primary count must be positive, got %d", r.PrimaryCount))
	case r.PrimaryMax < r.PrimaryCount:
		return ErrInvalidRules.WithDetails(fmt.Sprintf("primary pool 1..%d cannot supply %d distinct balls", r.PrimaryMax, r.PrimaryCount))
	case r.BonusMax <= 0:
		return ErrInvalidRules.WithDetails(fmt.Sprintf("bonus max must be positive, got %d", r.BonusMax))
	case r.HistorySize < 0 || r.HistorySize > MaxHistorySize:
		return ErrInvalidRules.WithDetails(fmt.Sprintf("history size must be between 0 and %d, got %d", MaxHistorySize, r.HistorySize))
	}
	return nil
}

// primaryPool returns the ascending untaken primary values
func (r Rules) primaryPool(taken []Ball) []int {
	used := make(map[int]struct{}, len(taken))
	for _, b := range taken {
		if b.Category == Primary {
			used[b.Value] = struct{}{}
		}
	}

	pool := make([]int, 0, r.PrimaryMax-len(used))
	for v := 1; v <= r.PrimaryMax; v++ {
		if _, ok := used[v]; !ok {
			pool = append(pool, v)
		}
	}
	return pool
}
