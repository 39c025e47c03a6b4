// Package replay is the verification runtime: it re-runs a race from the
// published seed inside a sandboxed JavaScript VM and checks the outcome
// against the authoritative Go simulation. The two implementations share
// nothing but this package's sha256 host function and the published inputs.
package replay

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/raceforge/lane-derby-go/internal/engine"
	"github.com/raceforge/lane-derby-go/internal/race"
)

// Replayer wraps a goja runtime with the race script loaded. Safe for
// concurrent use; calls serialize on an internal mutex because a goja
// runtime is single-threaded.
type Replayer struct {
	mu         sync.Mutex
	vm         *goja.Runtime
	simulate   goja.Callable
	createRace goja.Callable
}

// ReplayResult mirrors the authoritative race.Result shape for comparison.
type ReplayResult struct {
	Winner int     `json:"winner"`
	Ticks  [][]int `json:"ticks"`
}

// Frame is one tick of a lazily replayed race.
type Frame struct {
	Distances []int `json:"distances"`
	Finished  bool  `json:"finished"`
	Winner    int   `json:"winner"`
}

// VerifyReport compares the two runtimes for one race. A mismatch is not an
// error: it is observable integrity data that operators must be able to see
// and act on.
type VerifyReport struct {
	Seed                string `json:"seed"`
	AuthoritativeWinner int    `json:"authoritative_winner"`
	ReplayWinner        int    `json:"replay_winner"`
	WinnerMatch         bool   `json:"winner_match"`
	TraceMatch          bool   `json:"trace_match"`
}

// New loads the race script into a sandboxed VM.
func New() (*Replayer, error) {
	vm := goja.New()

	// The script gets exactly one host capability.
	if err := vm.Set("sha256Hex", func(call goja.FunctionCall) goja.Value {
		input := call.Argument(0).String()
		raw, err := hex.DecodeString(input)
		if err != nil {
			panic(vm.NewTypeError("sha256Hex: invalid hex input"))
		}
		sum := sha256.Sum256(raw)
		return vm.ToValue(hex.EncodeToString(sum[:]))
	}); err != nil {
		return nil, fmt.Errorf("replay: inject sha256Hex: %w", err)
	}

	// Block everything a hostile or confused script could reach for.
	for _, name := range []string{"require", "fetch", "XMLHttpRequest", "eval", "Function"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return nil, fmt.Errorf("replay: sandbox %s: %w", name, err)
		}
	}

	if _, err := vm.RunString(raceScript); err != nil {
		return nil, fmt.Errorf("replay: load race script: %w", err)
	}

	r := &Replayer{vm: vm}
	var ok bool
	if r.simulate, ok = goja.AssertFunction(vm.Get("simulate")); !ok {
		return nil, fmt.Errorf("replay: race script does not define simulate()")
	}
	if r.createRace, ok = goja.AssertFunction(vm.Get("createRace")); !ok {
		return nil, fmt.Errorf("replay: race script does not define createRace()")
	}
	return r, nil
}

// Replay runs the full race in the JS runtime and returns its outcome.
func (r *Replayer) Replay(seedHex string, scores []int, cfg race.Config) (*ReplayResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, err := r.call(r.simulate, seedHex, scores, cfg)
	if err != nil {
		return nil, err
	}

	obj := value.ToObject(r.vm)
	result := &ReplayResult{}
	if err := r.vm.ExportTo(obj.Get("winner"), &result.Winner); err != nil {
		return nil, fmt.Errorf("replay: decode winner: %w", err)
	}
	if err := r.vm.ExportTo(obj.Get("ticks"), &result.Ticks); err != nil {
		return nil, fmt.Errorf("replay: decode ticks: %w", err)
	}
	return result, nil
}

// Session replays a race one frame at a time, the way a renderer consumes
// it. Frames are produced lazily; the race state lives inside the VM.
type Session struct {
	r         *Replayer
	nextFrame goja.Callable
}

// NewSession starts a lazy replay.
func (r *Replayer) NewSession(seedHex string, scores []int, cfg race.Config) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, err := r.call(r.createRace, seedHex, scores, cfg)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(value.ToObject(r.vm).Get("nextFrame"))
	if !ok {
		return nil, fmt.Errorf("replay: race object does not expose nextFrame()")
	}
	return &Session{r: r, nextFrame: fn}, nil
}

// NextFrame advances the replay by one tick.
func (s *Session) NextFrame() (*Frame, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	value, err := s.nextFrame(goja.Undefined())
	if err != nil {
		return nil, fmt.Errorf("replay: next frame: %w", err)
	}
	obj := value.ToObject(s.r.vm)
	frame := &Frame{}
	if err := s.r.vm.ExportTo(obj.Get("distances"), &frame.Distances); err != nil {
		return nil, fmt.Errorf("replay: decode distances: %w", err)
	}
	if err := s.r.vm.ExportTo(obj.Get("finished"), &frame.Finished); err != nil {
		return nil, fmt.Errorf("replay: decode finished: %w", err)
	}
	if err := s.r.vm.ExportTo(obj.Get("winner"), &frame.Winner); err != nil {
		return nil, fmt.Errorf("replay: decode frame winner: %w", err)
	}
	return frame, nil
}

// Verify runs both runtimes from the same seed and reports whether they
// agree on the winner and on the full distance trace.
func (r *Replayer) Verify(seed engine.Seed, scores []int, cfg race.Config) (*race.Result, *VerifyReport, error) {
	authoritative, err := race.Simulate(seed, scores, cfg)
	if err != nil {
		return nil, nil, err
	}
	replayed, err := r.Replay(seed.String(), scores, cfg)
	if err != nil {
		return nil, nil, err
	}

	report := &VerifyReport{
		Seed:                seed.String(),
		AuthoritativeWinner: authoritative.Winner,
		ReplayWinner:        replayed.Winner,
		WinnerMatch:         authoritative.Winner == replayed.Winner,
		TraceMatch:          tracesEqual(authoritative.Ticks, replayed.Ticks),
	}
	return authoritative, report, nil
}

func (r *Replayer) call(fn goja.Callable, seedHex string, scores []int, cfg race.Config) (goja.Value, error) {
	cfgObj := r.vm.NewObject()
	for key, v := range map[string]int{
		"lanes":          cfg.Lanes,
		"trackLength":    cfg.TrackLength,
		"maxTicks":       cfg.MaxTicks,
		"speedRange":     cfg.SpeedRange,
		"minHandicapBps": cfg.MinHandicapBps,
	} {
		if err := cfgObj.Set(key, v); err != nil {
			return nil, fmt.Errorf("replay: build config object: %w", err)
		}
	}
	value, err := fn(goja.Undefined(), r.vm.ToValue(seedHex), r.vm.ToValue(scores), cfgObj)
	if err != nil {
		return nil, fmt.Errorf("replay: script error: %w", err)
	}
	return value, nil
}

func tracesEqual(a, b [][]int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}
