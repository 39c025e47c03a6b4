package engine

import (
	"crypto/sha256"
	"fmt"
	"math/bits"
)

// nibblesPerBlock is how many 4-bit draws one entropy block holds.
const nibblesPerBlock = 64

// Dice draws uniform integers from 256 bits of live entropy plus a nibble
// cursor. When the cursor exhausts the block the entropy is rehashed with
// SHA-256 and the cursor resets, so a run can consume arbitrarily many draws.
//
// Dice is stateful and strictly sequential: one instance per simulation run,
// never shared. Given the same seed and the same sequence of Roll calls, two
// independent implementations must return identical results; the replay
// runtime depends on it.
type Dice struct {
	entropy [32]byte
	cursor  int
}

// NewDice creates a dice stream positioned at the start of the seed.
func NewDice(seed Seed) *Dice {
	return &Dice{entropy: seed}
}

// Roll returns a uniform integer in [0, n). It panics if n <= 0: callers
// control n at compile time and a zero-sided die is a programming error, not
// a runtime condition to paper over.
func (d *Dice) Roll(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("engine: Roll(%d): n must be positive", n))
	}

	bitsNeeded := bits.Len(uint(n - 1))
	nibblesNeeded := (bitsNeeded + 3) / 4
	if nibblesNeeded == 0 {
		nibblesNeeded = 1
	}

	// Rejection sampling: discard candidates above the largest multiple of n
	// that fits in 16^nibblesNeeded, so the modulo below carries no bias.
	max := 1 << (4 * nibblesNeeded)
	limit := max - max%n

	for {
		candidate := 0
		for i := 0; i < nibblesNeeded; i++ {
			candidate = candidate<<4 | d.nextNibble()
		}
		if candidate < limit {
			return candidate % n
		}
	}
}

// nextNibble consumes one 4-bit value, most-significant half of each byte
// first. The exhaustion check runs per nibble, so a multi-nibble draw may
// straddle a rehash; the replay implementation follows the same rule.
func (d *Dice) nextNibble() int {
	if d.cursor == nibblesPerBlock {
		d.entropy = sha256.Sum256(d.entropy[:])
		d.cursor = 0
	}
	b := d.entropy[d.cursor/2]
	var v int
	if d.cursor%2 == 0 {
		v = int(b >> 4)
	} else {
		v = int(b & 0x0f)
	}
	d.cursor++
	return v
}
