// Package build runs the offline table build: a worker pool estimates win
// probabilities tuple by tuple while a single coordinator commits results to
// the checkpoint store in strict index order, so a crashed build resumes
// from its last committed row with no gap validation.
package build

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/raceforge/lane-derby-go/internal/engine"
	"github.com/raceforge/lane-derby-go/internal/probtable"
	"github.com/raceforge/lane-derby-go/internal/race"
	"github.com/raceforge/lane-derby-go/internal/store"
)

// maxWorkers caps the pool; estimation saturates memory bandwidth well
// before it saturates a large core count.
const maxWorkers = 8

// Options configures one table build.
type Options struct {
	Workers      int
	Trials       int
	ShardEntries int
	TableSeed    string
	Config       race.Config
	Quiet        bool
}

// Builder coordinates the estimation workers and owns the checkpoint.
type Builder struct {
	opts Options
	db   store.DB
	rows []store.Row // committed rows, index order
}

// Summary reports what a build run did.
type Summary struct {
	RunID     string        `json:"run_id"`
	Total     int           `json:"total"`
	Resumed   int           `json:"resumed"`
	Estimated int           `json:"estimated"`
	Elapsed   time.Duration `json:"elapsed"`
}

// New validates options and prepares a builder.
func New(opts Options, db store.DB) (*Builder, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Trials < 1 {
		return nil, fmt.Errorf("build: trials must be positive, got %d", opts.Trials)
	}
	if opts.ShardEntries < 1 {
		return nil, fmt.Errorf("build: shard entries must be positive, got %d", opts.ShardEntries)
	}
	if opts.TableSeed == "" {
		return nil, fmt.Errorf("build: table seed must not be empty")
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Workers > maxWorkers {
		opts.Workers = maxWorkers
	}
	return &Builder{opts: opts, db: db}, nil
}

type result struct {
	index int
	row   store.Row
	err   error
}

// Run executes the build. An empty runID starts a fresh run; a known runID
// resumes from its checkpoint. Any worker error aborts the whole build —
// a partial table must never reach the shard writer.
func (b *Builder) Run(ctx context.Context, runID string) (*Summary, error) {
	start := time.Now()
	total := probtable.Count(b.opts.Config.Lanes)

	run, err := b.resolveRun(runID)
	if err != nil {
		return nil, err
	}

	next, err := b.db.NextIndex(run.ID)
	if err != nil {
		return nil, err
	}
	if next > 0 {
		if b.rows, err = b.db.Rows(run.ID); err != nil {
			return nil, err
		}
	}

	bar := pb.StartNew(total)
	if b.opts.Quiet {
		bar.SetWriter(io.Discard)
	}
	bar.SetCurrent(int64(next))

	summary := &Summary{RunID: run.ID, Total: total, Resumed: next}

	if next < total {
		if err := b.estimate(ctx, run.ID, next, total, bar); err != nil {
			bar.Finish()
			return nil, err
		}
		summary.Estimated = total - next
	}
	bar.Finish()

	if err := b.db.MarkRunDone(run.ID); err != nil {
		return nil, err
	}
	summary.Elapsed = time.Since(start)
	return summary, nil
}

func (b *Builder) resolveRun(runID string) (*store.BuildRun, error) {
	if runID != "" {
		run, err := b.db.GetRun(runID)
		if err != nil {
			return nil, err
		}
		if run.Lanes != b.opts.Config.Lanes || run.MinHandicapBps != b.opts.Config.MinHandicapBps ||
			run.Trials != b.opts.Trials || run.TableSeedHash != engine.Hash(b.opts.TableSeed) {
			return nil, fmt.Errorf("build: run %s was started under different parameters", runID)
		}
		return run, nil
	}
	run := &store.BuildRun{
		ID:             uuid.New().String(),
		TableSeedHash:  engine.Hash(b.opts.TableSeed),
		Lanes:          b.opts.Config.Lanes,
		MinHandicapBps: b.opts.Config.MinHandicapBps,
		Trials:         b.opts.Trials,
	}
	if err := b.db.CreateRun(run); err != nil {
		return nil, err
	}
	return run, nil
}

// estimate fans tuple indices out to the workers and commits their results
// in increasing index order, buffering whatever completes early.
func (b *Builder) estimate(ctx context.Context, runID string, next, total int, bar *pb.ProgressBar) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int, b.opts.Workers*2)
	results := make(chan result, b.opts.Workers*2)

	var wg sync.WaitGroup
	for w := 0; w < b.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.worker(ctx, jobs, results)
		}()
	}

	go func() {
		defer close(jobs)
		for index := next; index < total; index++ {
			select {
			case jobs <- index:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	pending := make(map[int]store.Row)
	commit := next
	var errs error

	for res := range results {
		if res.err != nil {
			errs = multierr.Append(errs, fmt.Errorf("build: tuple %d: %w", res.index, res.err))
			cancel()
			continue // drain remaining workers
		}
		if errs != nil {
			continue
		}
		pending[res.index] = res.row
		for {
			row, ok := pending[commit]
			if !ok {
				break
			}
			if err := b.db.SaveRow(runID, row); err != nil {
				errs = multierr.Append(errs, err)
				cancel()
				break
			}
			delete(pending, commit)
			b.rows = append(b.rows, row)
			bar.Increment()
			commit++
		}
	}

	if errs != nil {
		return errs
	}
	if commit != total {
		return fmt.Errorf("build: committed %d of %d rows", commit, total)
	}
	return nil
}

func (b *Builder) worker(ctx context.Context, jobs <-chan int, results chan<- result) {
	for {
		select {
		case index, ok := <-jobs:
			if !ok {
				return
			}
			tuple, err := probtable.TupleAt(index, b.opts.Config.Lanes)
			if err != nil {
				results <- result{index: index, err: err}
				continue
			}
			probs, err := probtable.Estimate(tuple, b.opts.Trials, b.opts.TableSeed, b.opts.Config)
			if err != nil {
				results <- result{index: index, err: err}
				continue
			}
			results <- result{index: index, row: store.Row{Index: index, Tuple: tuple, Probs: probs}}
		case <-ctx.Done():
			return
		}
	}
}

// WriteShards packs the committed rows into shard artifacts under dir. It
// refuses to write anything until every row is committed.
func (b *Builder) WriteShards(dir string, compress bool) error {
	total := probtable.Count(b.opts.Config.Lanes)
	if len(b.rows) != total {
		return fmt.Errorf("build: only %d of %d rows committed, refusing to write shards", len(b.rows), total)
	}

	router := probtable.Router{ShardEntries: b.opts.ShardEntries, Total: total}
	for shard := 0; shard < router.NumShards(); shard++ {
		start := shard * b.opts.ShardEntries
		end := start + b.opts.ShardEntries
		if end > total {
			end = total
		}
		entries := make([][]int, 0, end-start)
		for _, row := range b.rows[start:end] {
			entries = append(entries, row.Probs)
		}
		header := probtable.HeaderFor(b.opts.Config, start, len(entries))
		path := filepath.Join(dir, probtable.ShardFileName(shard, compress))
		if err := probtable.WriteShardFile(path, header, entries, compress); err != nil {
			return fmt.Errorf("build: shard %d: %w", shard, err)
		}
	}
	return nil
}
