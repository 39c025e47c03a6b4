package race

import (
	"errors"
	"fmt"
	"sort"

	"github.com/raceforge/lane-derby-go/internal/engine"
)

// ErrNoFinisher means the tick cap was exhausted with no lane at the finish
// line. With a validated Config this cannot happen; seeing it means the
// parameters were corrupted at the source and must be fixed there.
var ErrNoFinisher = errors.New("race: no lane reached the finish line within the tick cap")

// Result is the full outcome of one simulated race.
//
// Ticks holds one distance snapshot per tick (all lanes, cumulative), which
// is what a replay renderer animates. FinishOrder ranks lanes by final
// distance descending; the winner is always first, and on a dead heat it is
// the lane picked by the tie-break draw, not necessarily the lowest index.
type Result struct {
	Winner      int     `json:"winner"`
	FinishOrder []int   `json:"finish_order"`
	Ticks       [][]int `json:"ticks"`
}

// Simulate runs one race from a published seed and per-lane scores.
//
// The draw order is part of the wire contract with the replay runtime: per
// tick, lanes advance in index order, each drawing a base speed and, when the
// handicap leaves a remainder, one rounding pick; a dead heat costs exactly
// one extra draw after the final tick.
func Simulate(seed engine.Seed, scores []int, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(scores) != cfg.Lanes {
		return nil, fmt.Errorf("race: expected %d scores, got %d", cfg.Lanes, len(scores))
	}

	dice := engine.NewDice(seed)

	handicaps := make([]int, cfg.Lanes)
	for lane, score := range scores {
		handicaps[lane] = HandicapBps(score, cfg.MinHandicapBps)
	}

	distances := make([]int, cfg.Lanes)
	ticks := make([][]int, 0, cfg.TrackLength/((cfg.SpeedRange+1)/2)+1)
	finished := false

	for tick := 0; tick < cfg.MaxTicks && !finished; tick++ {
		for lane := 0; lane < cfg.Lanes; lane++ {
			baseSpeed := dice.Roll(cfg.SpeedRange) + 1
			raw := baseSpeed * handicaps[lane]
			q := raw / 10000
			rem := raw % 10000
			// Probabilistic rounding: carry the fractional part with
			// probability rem/10000 so the expected advance matches the true
			// handicap instead of always truncating down.
			if rem > 0 && dice.Roll(10000) < rem {
				q++
			}
			if q < 1 {
				q = 1
			}
			distances[lane] += q
		}

		snapshot := make([]int, cfg.Lanes)
		copy(snapshot, distances)
		ticks = append(ticks, snapshot)

		for _, d := range distances {
			if d >= cfg.TrackLength {
				finished = true
				break
			}
		}
	}

	if !finished {
		return nil, ErrNoFinisher
	}

	maxDistance := distances[0]
	for _, d := range distances[1:] {
		if d > maxDistance {
			maxDistance = d
		}
	}
	leaders := make([]int, 0, cfg.Lanes)
	for lane, d := range distances {
		if d == maxDistance {
			leaders = append(leaders, lane)
		}
	}

	winner := leaders[0]
	if len(leaders) > 1 {
		// Dead heat: one more draw settles it, consuming dice state
		// identically in both runtimes.
		winner = leaders[dice.Roll(len(leaders))]
	}

	return &Result{
		Winner:      winner,
		FinishOrder: finishOrder(distances, winner),
		Ticks:       ticks,
	}, nil
}

// finishOrder ranks lanes by final distance descending, winner first, other
// ties broken by lane index.
func finishOrder(distances []int, winner int) []int {
	rest := make([]int, 0, len(distances)-1)
	for lane := range distances {
		if lane != winner {
			rest = append(rest, lane)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return distances[rest[i]] > distances[rest[j]]
	})
	return append([]int{winner}, rest...)
}
