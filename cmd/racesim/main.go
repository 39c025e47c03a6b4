// racesim runs one race from a published seed and lineup, optionally
// cross-checking the result against the independent replay runtime.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/raceforge/lane-derby-go/internal/engine"
	"github.com/raceforge/lane-derby-go/internal/race"
	"github.com/raceforge/lane-derby-go/internal/replay"
)

func main() {
	var (
		seedHex    = flag.String("seed", "", "64-char hex race seed (required)")
		scoresCSV  = flag.String("scores", "", "comma-separated lane scores, e.g. 10,7,3,1 (required)")
		configPath = flag.String("config", "", "race config yaml (defaults when empty)")
		asJSON     = flag.Bool("json", false, "emit the full result as JSON")
		verify     = flag.Bool("verify", false, "also replay in the JS runtime and compare")
	)
	flag.Parse()

	if *seedHex == "" || *scoresCSV == "" {
		flag.Usage()
		os.Exit(2)
	}

	seed, err := engine.ParseSeed(*seedHex)
	if err != nil {
		log.Fatalf("bad seed: %v", err)
	}
	scores, err := parseScores(*scoresCSV)
	if err != nil {
		log.Fatalf("bad scores: %v", err)
	}

	cfg := race.DefaultConfig()
	if *configPath != "" {
		if cfg, err = race.LoadConfig(*configPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	result, err := race.Simulate(seed, scores, cfg)
	if err != nil {
		log.Fatalf("simulate: %v", err)
	}

	if *asJSON {
		if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
			log.Fatalf("encode result: %v", err)
		}
	} else {
		final := result.Ticks[len(result.Ticks)-1]
		fmt.Printf("winner: lane %d after %d ticks\n", result.Winner, len(result.Ticks))
		fmt.Printf("finish order: %v\n", result.FinishOrder)
		fmt.Printf("final distances: %v\n", final)
	}

	if *verify {
		replayer, err := replay.New()
		if err != nil {
			log.Fatalf("start replay runtime: %v", err)
		}
		_, report, err := replayer.Verify(seed, scores, cfg)
		if err != nil {
			log.Fatalf("verify: %v", err)
		}
		if report.WinnerMatch && report.TraceMatch {
			fmt.Println("verify: replay runtime agrees")
		} else {
			fmt.Printf("verify: MISMATCH authoritative=%d replay=%d trace_match=%v\n",
				report.AuthoritativeWinner, report.ReplayWinner, report.TraceMatch)
			os.Exit(1)
		}
	}
}

func parseScores(csv string) ([]int, error) {
	parts := strings.Split(csv, ",")
	scores := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("score %q: %w", p, err)
		}
		scores[i] = v
	}
	return scores, nil
}
