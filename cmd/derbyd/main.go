// derbyd serves the settlement-facing HTTP API: authoritative simulation,
// dual-runtime verification, and probability table lookups.
package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/raceforge/lane-derby-go/internal/api"
	"github.com/raceforge/lane-derby-go/internal/probtable"
	"github.com/raceforge/lane-derby-go/internal/race"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "listen address")
		tableDir   = flag.String("table-dir", "", "directory of probability table shards (odds disabled when empty)")
		configPath = flag.String("config", "", "race config yaml (defaults when empty)")
	)
	flag.Parse()

	cfg := race.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = race.LoadConfig(*configPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	var tables *probtable.ShardSet
	if *tableDir != "" {
		var err error
		if tables, err = probtable.LoadShardSet(*tableDir, cfg); err != nil {
			log.Fatalf("load probability table: %v", err)
		}
		log.Printf("loaded %d-entry probability table from %s", tables.Total(), *tableDir)
	} else {
		log.Print("no table directory given; odds endpoint disabled")
	}

	server, err := api.NewServer(cfg, tables)
	if err != nil {
		log.Fatalf("start server: %v", err)
	}

	log.Printf("derbyd listening on %s", *addr)
	if err := http.ListenAndServe(*addr, server.Routes()); err != nil {
		log.Fatal(err)
	}
}
