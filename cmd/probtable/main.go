// probtable builds the win-probability table offline and writes it out as
// packed, sharded artifacts. Safe to interrupt: rerun with -run to resume
// from the checkpoint database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/raceforge/lane-derby-go/internal/build"
	"github.com/raceforge/lane-derby-go/internal/race"
	"github.com/raceforge/lane-derby-go/internal/store"
)

func main() {
	var (
		trials       = flag.Int("trials", 50000, "Monte Carlo trials per tuple")
		workers      = flag.Int("workers", 0, "worker count (0 = all cores, capped)")
		out          = flag.String("out", "table", "output directory for shard artifacts")
		shardEntries = flag.Int("shard-entries", 850, "entries per shard artifact")
		dbPath       = flag.String("db", "probtable.db", "checkpoint database path")
		runID        = flag.String("run", "", "resume an existing build run by id")
		tableSeed    = flag.String("seed", "", "table seed for reproducible estimation (required)")
		configPath   = flag.String("config", "", "race config yaml (defaults when empty)")
		compress     = flag.Bool("compress", false, "zstd-compress shard artifacts")
		quiet        = flag.Bool("quiet", false, "suppress the progress bar")
	)
	flag.Parse()

	if *tableSeed == "" {
		log.Fatal("missing required -seed")
	}

	cfg := race.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = race.LoadConfig(*configPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	db, err := store.NewSQLiteDB(*dbPath)
	if err != nil {
		log.Fatalf("open checkpoint db: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatalf("migrate checkpoint db: %v", err)
	}

	builder, err := build.New(build.Options{
		Workers:      *workers,
		Trials:       *trials,
		ShardEntries: *shardEntries,
		TableSeed:    *tableSeed,
		Config:       cfg,
		Quiet:        *quiet,
	}, db)
	if err != nil {
		log.Fatalf("configure build: %v", err)
	}

	summary, err := builder.Run(context.Background(), *runID)
	if err != nil {
		log.Fatalf("build failed: %v", err)
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}
	if err := builder.WriteShards(*out, *compress); err != nil {
		log.Fatalf("write shards: %v", err)
	}

	fmt.Printf("run %s: %d entries (%d resumed, %d estimated) in %s, shards in %s\n",
		summary.RunID, summary.Total, summary.Resumed, summary.Estimated, summary.Elapsed.Round(time.Second), *out)
}
