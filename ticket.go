package destiny

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Phase is the lifecycle position of a ticket
type Phase string

const (
	PhaseEmpty          Phase = "EMPTY"
	PhaseDrawingPrimary Phase = "DRAWING_PRIMARY"
	PhaseDrawingBonus   Phase = "DRAWING_BONUS"
	PhaseComplete       Phase = "COMPLETE"
)

// Ticket is the ordered sequence of balls drawn in one cycle.
//
// Completeness is always derived from the length, never stored.
type Ticket struct {
	balls []Ball
}

// NewTicket builds a ticket from balls (copied)
func NewTicket(balls ...Ball) Ticket {
	return Ticket{balls: append([]Ball(nil), balls...)}
}

// Len returns the number of balls drawn so far
func (t Ticket) Len() int { return len(t.balls) }

// Balls returns a copy of the balls in draw order
func (t Ticket) Balls() []Ball {
	return append([]Ball(nil), t.balls...)
}

// Primaries returns the primary balls in draw order
func (t Ticket) Primaries() []Ball {
	out := make([]Ball, 0, len(t.balls))
	for _, b := range t.balls {
		if b.Category == Primary {
			out = append(out, b)
		}
	}
	return out
}

// Bonus returns the bonus ball, if drawn
func (t Ticket) Bonus() (Ball, bool) {
	for _, b := range t.balls {
		if b.Category == Bonus {
			return b, true
		}
	}
	return Ball{}, false
}

// IsComplete reports whether the ticket holds every ball the rules require
func (t Ticket) IsComplete(rules Rules) bool {
	return len(t.balls) == rules.TicketSize()
}

// Phase derives the lifecycle position from the ball count
func (t Ticket) Phase(rules Rules) Phase {
	switch n := len(t.balls); {
	case n == 0:
		return PhaseEmpty
	case n < rules.PrimaryCount:
		return PhaseDrawingPrimary
	case n == rules.PrimaryCount:
		return PhaseDrawingBonus
	default:
		return PhaseComplete
	}
}

// Validate checks every ticket invariant against rules
func (t Ticket) Validate(rules Rules) error {
	if len(t.balls) > rules.TicketSize() {
		return ErrTicketCorrupted.WithDetails(fmt.Sprintf("%d balls exceed ticket size %d", len(t.balls), rules.TicketSize()))
	}

	seen := make(map[int]struct{}, rules.PrimaryCount)
	for i, b := range t.balls {
		if i < rules.PrimaryCount {
			if b.Category != Primary {
				return ErrTicketCorrupted.WithDetails(fmt.Sprintf("ball %d must be %s, got %s", i+1, Primary, b.Category))
			}
			if b.Value < 1 || b.Value > rules.PrimaryMax {
				return ErrTicketCorrupted.WithDetails(fmt.Sprintf("primary %d out of range 1..%d", b.Value, rules.PrimaryMax))
			}
			if _, dup := seen[b.Value]; dup {
				return ErrTicketCorrupted.WithDetails(fmt.Sprintf("primary %d drawn twice", b.Value))
			}
			seen[b.Value] = struct{}{}
			continue
		}

		if b.Category != Bonus {
			return ErrTicketCorrupted.WithDetails(fmt.Sprintf("ball %d must be %s, got %s", i+1, Bonus, b.Category))
		}
		if b.Value < 1 || b.Value > rules.BonusMax {
			return ErrTicketCorrupted.WithDetails(fmt.Sprintf("bonus %d out of range 1..%d", b.Value, rules.BonusMax))
		}
	}
	return nil
}

// Numbers renders the ticket as "3, 17, 26, 40, 61 | 9"
func (t Ticket) Numbers() string {
	primaries := t.Primaries()
	parts := make([]string, len(primaries))
	for i, b := range primaries {
		parts[i] = strconv.Itoa(b.Value)
	}

	s := strings.Join(parts, ", ")
	if bonus, ok := t.Bonus(); ok {
		s += " | " + strconv.Itoa(bonus.Value)
	}
	return s
}

// MarshalJSON encodes the ticket as its ball array
func (t Ticket) MarshalJSON() ([]byte, error) {
	if t.balls == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.balls)
}

// UnmarshalJSON decodes a ball array
func (t *Ticket) UnmarshalJSON(data []byte) error {
	var balls []Ball
	if err := json.Unmarshal(data, &balls); err != nil {
		return err
	}
	t.balls = balls
	return nil
}

func (t Ticket) with(b Ball) Ticket {
	balls := make([]Ball, len(t.balls), len(t.balls)+1)
	copy(balls, t.balls)
	return Ticket{balls: append(balls, b)}
}

// History keeps the most recent completed tickets, newest first
type History struct {
	capacity int
	entries  []Ticket
}

// NewHistory creates a history bounded to capacity entries
func NewHistory(capacity int) *History {
	if capacity < 0 {
		capacity = 0
	}
	return &History{capacity: capacity}
}

// Push puts t at the front and drops entries beyond capacity
func (h *History) Push(t Ticket) {
	if h.capacity == 0 {
		return
	}
	entries := make([]Ticket, 0, h.capacity)
	entries = append(entries, NewTicket(t.balls...))
	entries = append(entries, h.entries...)
	if len(entries) > h.capacity {
		entries = entries[:h.capacity]
	}
	h.entries = entries
}

// Len returns the number of stored tickets
func (h *History) Len() int { return len(h.entries) }

// Capacity returns the bound
func (h *History) Capacity() int { return h.capacity }

// Entries returns copies of the stored tickets, newest first
func (h *History) Entries() []Ticket {
	out := make([]Ticket, len(h.entries))
	for i, t := range h.entries {
		out[i] = NewTicket(t.balls...)
	}
	return out
}
