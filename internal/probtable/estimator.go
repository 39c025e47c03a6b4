package probtable

import (
	"fmt"

	"github.com/raceforge/lane-derby-go/internal/engine"
	"github.com/raceforge/lane-derby-go/internal/race"
)

// Estimate runs trials independent races for one sorted tuple and returns
// each sorted position's win probability in basis points, summing to exactly
// 10000.
//
// Trial seeds are HMAC-derived from the table seed and the tuple's index, so
// estimates are reproducible per tuple and statistically independent across
// tuples. Raw counts round to the nearest basis point and clamp to [1,10000]
// (a lane never quotes at zero from sampling noise); the rounding residual is
// then settled deterministically by adjusting the lane with the largest win
// count, lowest index on ties.
func Estimate(tuple []int, trials int, tableSeed string, cfg race.Config) ([]int, error) {
	if trials < 1 {
		return nil, fmt.Errorf("probtable: trials must be positive, got %d", trials)
	}
	if len(tuple) != cfg.Lanes {
		return nil, fmt.Errorf("probtable: tuple length %d does not match %d lanes", len(tuple), cfg.Lanes)
	}
	index, err := Index(tuple)
	if err != nil {
		return nil, err
	}

	wins := make([]int, cfg.Lanes)
	for trial := 0; trial < trials; trial++ {
		seed := engine.DeriveSeed(tableSeed, fmt.Sprintf("%d:%d", index, trial))
		result, err := race.Simulate(seed, tuple, cfg)
		if err != nil {
			return nil, fmt.Errorf("probtable: trial %d for tuple %v: %w", trial, tuple, err)
		}
		wins[result.Winner]++
	}

	return winsToBps(wins, trials), nil
}

func winsToBps(wins []int, trials int) []int {
	bps := make([]int, len(wins))
	sum := 0
	for lane, w := range wins {
		v := (w*10000 + trials/2) / trials
		if v < 1 {
			v = 1
		}
		if v > 10000 {
			v = 10000
		}
		bps[lane] = v
		sum += v
	}

	// Settle the rounding residual on the strongest lane so the entry sums
	// to exactly 10000 and weak lanes keep their floor of 1.
	largest := 0
	for lane := 1; lane < len(wins); lane++ {
		if wins[lane] > wins[largest] {
			largest = lane
		}
	}
	bps[largest] += 10000 - sum
	return bps
}
