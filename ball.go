package destiny

import (
	"encoding/json"
	"fmt"
)

// BallCategory tells which pool a ball came from
type BallCategory string

const (
	// Primary balls are the distinct white balls
	Primary BallCategory = "PRIMARY"
	// Bonus is the single final ball drawn from its own pool
	Bonus BallCategory = "BONUS"
)

// Valid reports whether c is a known category
func (c BallCategory) Valid() bool {
	return c == Primary || c == Bonus
}

// Ball is one drawn number together with the timestamp (ms) of the draw action
type Ball struct {
	Value     int          `json:"value"`
	Category  BallCategory `json:"category"`
	Timestamp int64        `json:"timestamp"`
}

// String renders the ball as "PRIMARY 26" / "BONUS 7"
func (b Ball) String() string {
	return fmt.Sprintf("%s %d", b.Category, b.Value)
}

// UnmarshalJSON rejects unknown categories
func (b *Ball) UnmarshalJSON(data []byte) error {
	type plain Ball
	var tmp plain
	if err := json.Unmarshal(data, &tmp); err != nil {
		return ErrDeserializationFailed.WithCause(err)
	}
	if !tmp.Category.Valid() {
		return ErrDeserializationFailed.WithDetails(fmt.Sprintf("unknown ball category %q", tmp.Category))
	}
	*b = Ball(tmp)
	return nil
}
