// Package probtable builds, packs, and serves the precomputed win-probability
// table: one entry per sorted score tuple, estimated by Monte Carlo and
// addressed by a closed-form combinatorial rank.
package probtable

import (
	"errors"
	"fmt"

	"github.com/raceforge/lane-derby-go/internal/race"
)

// ErrNotSorted is returned for tuples that are not non-decreasing. The
// indexer never reorders its input: sorting with permutation tracking is the
// caller's job (see ShardSet.LookupScores), and a silently accepted unsorted
// tuple would index the wrong entry.
var ErrNotSorted = errors.New("probtable: tuple is not sorted non-decreasing")

// Count returns the number of distinct sorted score tuples for the given
// lane count: combinations with repetition, C(10+lanes-1, lanes). 715 for 4
// lanes, 5005 for 6.
func Count(lanes int) int {
	return int(binomial(race.MaxScore-race.MinScore+lanes, lanes))
}

// Index returns the rank of a sorted tuple within the lexicographic
// enumeration of all non-decreasing tuples over [1,10]. Stars-and-bars
// arithmetic only; no iteration over the enumeration.
func Index(tuple []int) (int, error) {
	if err := validateTuple(tuple); err != nil {
		return 0, err
	}
	index := 0
	lower := race.MinScore
	for pos, v := range tuple {
		remaining := len(tuple) - pos - 1
		for w := lower; w < v; w++ {
			// Tuples that put w at this position: any non-decreasing
			// continuation of length `remaining` over [w, 10].
			index += int(sequences(w, remaining))
		}
		lower = v
	}
	return index, nil
}

// TupleAt inverts Index: it reconstructs the sorted tuple at the given rank
// without enumerating its predecessors.
func TupleAt(index, lanes int) ([]int, error) {
	if lanes < 1 {
		return nil, fmt.Errorf("probtable: lanes must be positive, got %d", lanes)
	}
	total := Count(lanes)
	if index < 0 || index >= total {
		return nil, fmt.Errorf("probtable: index %d out of range [0,%d)", index, total)
	}
	tuple := make([]int, lanes)
	lower := race.MinScore
	for pos := 0; pos < lanes; pos++ {
		remaining := lanes - pos - 1
		for w := lower; ; w++ {
			c := int(sequences(w, remaining))
			if index < c {
				tuple[pos] = w
				lower = w
				break
			}
			index -= c
		}
	}
	return tuple, nil
}

// Enumerate visits every sorted tuple in index order, reusing one backing
// slice; callers must copy if they retain it. Used once per build, offline.
func Enumerate(lanes int, fn func(index int, tuple []int) error) error {
	if lanes < 1 {
		return fmt.Errorf("probtable: lanes must be positive, got %d", lanes)
	}
	tuple := make([]int, lanes)
	for i := range tuple {
		tuple[i] = race.MinScore
	}
	index := 0
	for {
		if err := fn(index, tuple); err != nil {
			return err
		}
		index++
		// Advance to the next non-decreasing tuple: bump the rightmost
		// position that can still grow and reset everything after it.
		pos := lanes - 1
		for pos >= 0 && tuple[pos] == race.MaxScore {
			pos--
		}
		if pos < 0 {
			return nil
		}
		tuple[pos]++
		for i := pos + 1; i < lanes; i++ {
			tuple[i] = tuple[pos]
		}
	}
}

func validateTuple(tuple []int) error {
	if len(tuple) == 0 {
		return errors.New("probtable: empty tuple")
	}
	prev := race.MinScore
	for i, v := range tuple {
		if v < race.MinScore || v > race.MaxScore {
			return fmt.Errorf("probtable: score %d at position %d out of range [%d,%d]", v, i, race.MinScore, race.MaxScore)
		}
		if v < prev {
			return ErrNotSorted
		}
		prev = v
	}
	return nil
}

// sequences counts non-decreasing sequences of length r over [lower, 10]:
// C(10-lower+r, r).
func sequences(lower, r int) int64 {
	return binomial(race.MaxScore-lower+r, r)
}

func binomial(n, k int) int64 {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	result := int64(1)
	for i := 0; i < k; i++ {
		result = result * int64(n-i) / int64(i+1)
	}
	return result
}
