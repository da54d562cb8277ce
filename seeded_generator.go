package destiny

import "fmt"

// RandomGenerator is the randomness source used for one draw action
type RandomGenerator interface {
	// GenerateInRange returns a number within [min, max] (inclusive)
	GenerateInRange(min, max int) (int, error)

	// GenerateFloat returns a float in [0, 1)
	GenerateFloat() (float64, error)
}

// GeneratorFactory builds a fresh generator for one draw action
type GeneratorFactory func(seed int64) RandomGenerator

// DefaultGeneratorFactory seeds a Park-Miller generator with the draw timestamp
func DefaultGeneratorFactory(seed int64) RandomGenerator {
	return NewSeededGenerator(seed)
}

// SeededGenerator is the Park-Miller "minimal standard" Lehmer generator.
//
// The same seed always yields the same sequence. Instances share nothing.
// Not safe for concurrent use; the draw controller owns each instance exclusively.
type SeededGenerator struct {
	state int64
}

// NewSeededGenerator creates a generator whose register starts at seed
func NewSeededGenerator(seed int64) *SeededGenerator {
	return &SeededGenerator{state: seed}
}

// step advances the register: state = state * 16807 mod (2^31 - 1).
//
// The register is reduced before multiplying so any int64 seed is accepted; the
// result equals (state * 16807) % (2^31 - 1) computed without overflow.
func (g *SeededGenerator) step() int64 {
	g.state = ((g.state % lcgModulus) * lcgMultiplier) % lcgModulus
	return g.state
}

// folded returns the register as a value in [0, 2^31 - 2]; negative seeds
// leave a negative remainder that is shifted up by the modulus.
func (g *SeededGenerator) folded() uint64 {
	s := g.state
	if s < 0 {
		s += lcgModulus
	}
	return uint64(s)
}

// NextInt advances the register and returns min + state mod (max - min + 1).
// Panics if min > max.
func (g *SeededGenerator) NextInt(min, max int) int {
	if min > max {
		panic(fmt.Sprintf("destiny: NextInt precondition violated: min %d > max %d", min, max))
	}

	g.step()
	state := g.folded()

	// max-min wraps for wide ranges; as uint64 it is still the exact distance
	width := uint64(max-min) + 1
	if width == 0 {
		// [math.MinInt, math.MaxInt] on 64-bit: every state is already in range
		return min + int(state)
	}
	return min + int(state%width)
}

// Next advances the register and returns (state - 1) / (2^31 - 2), in [0, 1).
// The degenerate zero register yields 0.
func (g *SeededGenerator) Next() float64 {
	g.step()
	state := g.folded()
	if state == 0 {
		return 0
	}
	return float64(state-1) / float64(lcgModulus-1)
}

// State returns the current register value
func (g *SeededGenerator) State() int64 { return g.state }

// GenerateInRange implements RandomGenerator
func (g *SeededGenerator) GenerateInRange(min, max int) (int, error) {
	if err := ValidateRange(min, max); err != nil {
		return 0, err
	}
	return g.NextInt(min, max), nil
}

// GenerateFloat implements RandomGenerator
func (g *SeededGenerator) GenerateFloat() (float64, error) {
	return g.Next(), nil
}

// ValidateRange validates range parameters
func ValidateRange(min, max int) error {
	if min > max {
		return ErrInvalidRange.WithDetails(fmt.Sprintf("min=%d, max=%d", min, max))
	}
	return nil
}
