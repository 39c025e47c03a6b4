package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dop251/goja"

	"github.com/raceforge/lane-derby-go/internal/engine"
	"github.com/raceforge/lane-derby-go/internal/race"
)

type raceVector struct {
	Description string `json:"description"`
	Seed        string `json:"seed"`
	Scores      []int  `json:"scores"`
	Winner      int    `json:"winner"`
	TickCount   int    `json:"tick_count"`
}

func loadRaceVectors(t *testing.T) []raceVector {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", "race_golden.json"))
	if err != nil {
		t.Fatalf("failed to read golden vectors: %v", err)
	}
	var vectors []raceVector
	if err := json.Unmarshal(data, &vectors); err != nil {
		t.Fatalf("failed to parse golden vectors: %v", err)
	}
	return vectors
}

func newReplayer(t *testing.T) *Replayer {
	t.Helper()
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

// The JS runtime must reproduce the golden vectors that pin the Go
// simulator. Passing here means both runtimes agree with the published
// fixtures, not merely with each other.
func TestReplayGoldenVectors(t *testing.T) {
	r := newReplayer(t)
	cfg := race.DefaultConfig()

	for _, v := range loadRaceVectors(t) {
		t.Run(v.Description, func(t *testing.T) {
			result, err := r.Replay(v.Seed, v.Scores, cfg)
			if err != nil {
				t.Fatalf("Replay: %v", err)
			}
			if result.Winner != v.Winner {
				t.Errorf("winner = %d, want %d", result.Winner, v.Winner)
			}
			if len(result.Ticks) != v.TickCount {
				t.Errorf("tick count = %d, want %d", len(result.Ticks), v.TickCount)
			}
		})
	}
}

// Both runtimes run from the same seeds across a spread of lineups; winner
// and full distance trace must be bit-identical every time.
func TestReplayConformance(t *testing.T) {
	r := newReplayer(t)
	cfg := race.DefaultConfig()

	lineups := [][]int{
		{10, 10, 10, 10},
		{1, 1, 1, 1},
		{1, 10, 1, 10},
		{3, 5, 7, 9},
		{2, 2, 9, 4},
	}
	for _, scores := range lineups {
		for trial := 0; trial < 5; trial++ {
			seed := engine.DeriveSeed("conformance", fmt.Sprintf("%v:%d", scores, trial))

			authoritative, err := race.Simulate(seed, scores, cfg)
			if err != nil {
				t.Fatalf("Simulate(%v): %v", scores, err)
			}
			replayed, err := r.Replay(seed.String(), scores, cfg)
			if err != nil {
				t.Fatalf("Replay(%v): %v", scores, err)
			}

			if replayed.Winner != authoritative.Winner {
				t.Fatalf("scores %v trial %d: winner %d in JS, %d in Go", scores, trial, replayed.Winner, authoritative.Winner)
			}
			if !reflect.DeepEqual(replayed.Ticks, authoritative.Ticks) {
				t.Fatalf("scores %v trial %d: distance traces diverge", scores, trial)
			}
		}
	}
}

// Conformance must hold off the default parameter set too.
func TestReplayConformanceNonDefaultConfig(t *testing.T) {
	r := newReplayer(t)
	cfg := race.Config{
		Lanes:          6,
		TrackLength:    200,
		MaxTicks:       250,
		SpeedRange:     8,
		MinHandicapBps: 9000,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	seed := engine.DeriveSeed("conformance", "six lanes")
	scores := []int{1, 3, 5, 7, 9, 10}

	authoritative, err := race.Simulate(seed, scores, cfg)
	if err != nil {
		t.Fatal(err)
	}
	replayed, err := r.Replay(seed.String(), scores, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if replayed.Winner != authoritative.Winner || !reflect.DeepEqual(replayed.Ticks, authoritative.Ticks) {
		t.Fatal("six-lane race diverged between runtimes")
	}
}

func TestSessionFramesMatchFullReplay(t *testing.T) {
	r := newReplayer(t)
	cfg := race.DefaultConfig()
	seed := engine.DeriveSeed("conformance", "session")
	scores := []int{4, 6, 8, 10}

	full, err := r.Replay(seed.String(), scores, cfg)
	if err != nil {
		t.Fatal(err)
	}

	session, err := r.NewSession(seed.String(), scores, cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	for tick := 0; tick < len(full.Ticks); tick++ {
		frame, err := session.NextFrame()
		if err != nil {
			t.Fatalf("NextFrame(%d): %v", tick, err)
		}
		if !reflect.DeepEqual(frame.Distances, full.Ticks[tick]) {
			t.Fatalf("frame %d distances %v, full replay has %v", tick, frame.Distances, full.Ticks[tick])
		}
		last := tick == len(full.Ticks)-1
		if frame.Finished != last {
			t.Fatalf("frame %d finished=%v, want %v", tick, frame.Finished, last)
		}
		if last && frame.Winner != full.Winner {
			t.Fatalf("final frame winner %d, full replay winner %d", frame.Winner, full.Winner)
		}
	}
}

func TestVerifyReportsAgreement(t *testing.T) {
	r := newReplayer(t)
	cfg := race.DefaultConfig()
	seed := engine.DeriveSeed("conformance", "verify")

	result, report, err := r.Verify(seed, []int{5, 5, 5, 5}, cfg)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.WinnerMatch || !report.TraceMatch {
		t.Fatalf("runtimes disagree: %+v", report)
	}
	if report.AuthoritativeWinner != result.Winner || report.ReplayWinner != result.Winner {
		t.Fatalf("report winners %+v do not match result winner %d", report, result.Winner)
	}
	if report.Seed != seed.String() {
		t.Fatalf("report seed %q, want %q", report.Seed, seed.String())
	}
}

func TestReplayRejectsBadInput(t *testing.T) {
	r := newReplayer(t)
	cfg := race.DefaultConfig()

	if _, err := r.Replay("not-hex", []int{5, 5, 5, 5}, cfg); err == nil {
		t.Error("malformed seed accepted")
	}
	if _, err := r.Replay(engine.Seed{}.String(), []int{5, 5}, cfg); err == nil {
		t.Error("wrong score count accepted")
	}
}

// The sandbox strips every host capability except the hash function.
func TestSandboxBlocksHostAccess(t *testing.T) {
	r := newReplayer(t)
	for _, name := range []string{"require", "fetch", "XMLHttpRequest", "eval", "Function"} {
		if v := r.vm.Get(name); v != nil && !goja.IsUndefined(v) {
			t.Errorf("%s is reachable from the script", name)
		}
	}
}
