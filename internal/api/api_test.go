package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raceforge/lane-derby-go/internal/probtable"
	"github.com/raceforge/lane-derby-go/internal/race"
)

func newTestServer(t *testing.T, tables *probtable.ShardSet) http.Handler {
	t.Helper()
	srv, err := NewServer(race.DefaultConfig(), tables)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv.Routes()
}

// buildTestTable writes a full synthetic 4-lane table (715 entries, shards of
// 200) where every entry is derived from its global index, then loads it the
// way derbyd does at startup.
func buildTestTable(t *testing.T) *probtable.ShardSet {
	t.Helper()
	cfg := race.DefaultConfig()
	total := probtable.Count(cfg.Lanes)
	dir := t.TempDir()

	const shardEntries = 200
	router := probtable.Router{ShardEntries: shardEntries, Total: total}
	for shard := 0; shard < router.NumShards(); shard++ {
		start := shard * shardEntries
		count := shardEntries
		if start+count > total {
			count = total - start
		}
		entries := make([][]int, count)
		for i := range entries {
			entries[i] = testEntry(start+i, cfg.Lanes)
		}
		header := probtable.HeaderFor(cfg, start, count)
		path := filepath.Join(dir, probtable.ShardFileName(shard, false))
		if err := probtable.WriteShardFile(path, header, entries, false); err != nil {
			t.Fatalf("write shard %d: %v", shard, err)
		}
	}

	set, err := probtable.LoadShardSet(dir, cfg)
	if err != nil {
		t.Fatalf("LoadShardSet: %v", err)
	}
	return set
}

func testEntry(index, lanes int) []int {
	entry := make([]int, lanes)
	rest := 10000
	for lane := 0; lane < lanes-1; lane++ {
		entry[lane] = index%100 + lane + 1
		rest -= entry[lane]
	}
	entry[lanes-1] = rest
	return entry
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func goldenRace(t *testing.T) (seed string, scores []int, winner, tickCount int) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", "race_golden.json"))
	if err != nil {
		t.Fatalf("failed to read golden vectors: %v", err)
	}
	var vectors []struct {
		Seed      string `json:"seed"`
		Scores    []int  `json:"scores"`
		Winner    int    `json:"winner"`
		TickCount int    `json:"tick_count"`
	}
	if err := json.Unmarshal(data, &vectors); err != nil {
		t.Fatalf("failed to parse golden vectors: %v", err)
	}
	v := vectors[0]
	return v.Seed, v.Scores, v.Winner, v.TickCount
}

func TestHealth(t *testing.T) {
	handler := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Engine-Version"); got != EngineVersion {
		t.Errorf("X-Engine-Version = %q, want %q", got, EngineVersion)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["table_loaded"] != false {
		t.Errorf("table_loaded = %v with no table", body["table_loaded"])
	}
}

func TestSimulateEndpoint(t *testing.T) {
	handler := newTestServer(t, nil)
	seed, scores, winner, tickCount := goldenRace(t)

	rec := postJSON(t, handler, "/api/v1/simulate", SimulateRequest{Seed: seed, Scores: scores})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[SimulateResponse](t, rec)
	if resp.Winner != winner {
		t.Errorf("winner = %d, want %d", resp.Winner, winner)
	}
	if resp.TickCount != tickCount || len(resp.Ticks) != tickCount {
		t.Errorf("tick count = %d/%d, want %d", resp.TickCount, len(resp.Ticks), tickCount)
	}
	if resp.FinishOrder[0] != winner {
		t.Errorf("finish order %v does not start with winner", resp.FinishOrder)
	}
	if resp.EngineVersion != EngineVersion {
		t.Errorf("engine version %q", resp.EngineVersion)
	}
}

func TestSimulateRejects(t *testing.T) {
	handler := newTestServer(t, nil)
	seed, _, _, _ := goldenRace(t)

	cases := []struct {
		name string
		body any
	}{
		{"bad seed", SimulateRequest{Seed: "zz", Scores: []int{5, 5, 5, 5}}},
		{"wrong score count", SimulateRequest{Seed: seed, Scores: []int{5, 5}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, handler, "/api/v1/simulate", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d, want 400", rec.Code)
			}
			errResp := decodeBody[EngineError](t, rec)
			if errResp.Type != ErrTypeValidation {
				t.Errorf("error type %q, want %q", errResp.Type, ErrTypeValidation)
			}
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/simulate", strings.NewReader("{nope"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status %d, want 400", rec.Code)
		}
	})
}

func TestVerifyEndpoint(t *testing.T) {
	handler := newTestServer(t, nil)
	seed, scores, winner, _ := goldenRace(t)

	rec := postJSON(t, handler, "/api/v1/verify", VerifyRequest{Seed: seed, Scores: scores})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[VerifyResponse](t, rec)
	if !resp.WinnerMatch || !resp.TraceMatch {
		t.Fatalf("runtimes disagree: %+v", resp)
	}
	if resp.AuthoritativeWinner != winner || resp.ReplayWinner != winner {
		t.Fatalf("winners %d/%d, want %d", resp.AuthoritativeWinner, resp.ReplayWinner, winner)
	}
	if resp.Seed != seed {
		t.Fatalf("seed echoed as %q", resp.Seed)
	}
}

func TestOddsWithoutTable(t *testing.T) {
	handler := newTestServer(t, nil)
	rec := postJSON(t, handler, "/api/v1/odds", OddsRequest{Scores: []int{5, 5, 5, 5}})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", rec.Code)
	}
	errResp := decodeBody[EngineError](t, rec)
	if errResp.Type != ErrTypeNoTable {
		t.Errorf("error type %q, want %q", errResp.Type, ErrTypeNoTable)
	}
}

func TestOddsEndpoint(t *testing.T) {
	tables := buildTestTable(t)
	handler := newTestServer(t, tables)

	scores := []int{7, 3, 9, 1}
	rec := postJSON(t, handler, "/api/v1/odds", OddsRequest{Scores: scores})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[OddsResponse](t, rec)

	wantIndex, err := probtable.Index([]int{1, 3, 7, 9})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TableIndex != wantIndex {
		t.Errorf("table index %d, want %d", resp.TableIndex, wantIndex)
	}

	wantProbs, err := tables.LookupScores(scores)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Lanes) != len(scores) {
		t.Fatalf("%d lane quotes, want %d", len(resp.Lanes), len(scores))
	}
	for lane, quote := range resp.Lanes {
		if quote.Lane != lane || quote.Score != scores[lane] {
			t.Errorf("quote %d echoes lane=%d score=%d", lane, quote.Lane, quote.Score)
		}
		if quote.WinProbabilityBps != wantProbs[lane] {
			t.Errorf("lane %d quoted %d bps, want %d", lane, quote.WinProbabilityBps, wantProbs[lane])
		}
		if quote.ImpliedMultiplier == "" {
			t.Errorf("lane %d has no implied multiplier", lane)
		}
	}
}

func TestOddsMultiplierQuoting(t *testing.T) {
	cases := []struct {
		bps  int
		want string
	}{
		{2500, "4"},
		{3333, "3.0003"},
		{10000, "1"},
		{1, "10000"},
	}
	for _, tc := range cases {
		if got := impliedMultiplier(tc.bps); got != tc.want {
			t.Errorf("impliedMultiplier(%d) = %q, want %q", tc.bps, got, tc.want)
		}
	}
}

func TestOddsRejectsWrongScoreCount(t *testing.T) {
	handler := newTestServer(t, buildTestTable(t))
	rec := postJSON(t, handler, "/api/v1/odds", OddsRequest{Scores: []int{5}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestTableInfoEndpoint(t *testing.T) {
	tables := buildTestTable(t)
	handler := newTestServer(t, tables)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/table", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	info := decodeBody[TableInfo](t, rec)
	cfg := race.DefaultConfig()
	if info.Lanes != cfg.Lanes || info.MinHandicapBps != cfg.MinHandicapBps {
		t.Errorf("table info %+v does not match config", info)
	}
	if info.Entries != probtable.Count(cfg.Lanes) {
		t.Errorf("entries = %d, want %d", info.Entries, probtable.Count(cfg.Lanes))
	}

	noTable := newTestServer(t, nil)
	rec = httptest.NewRecorder()
	noTable.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/table", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d without table, want 503", rec.Code)
	}
}
