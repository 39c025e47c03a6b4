package probtable

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/raceforge/lane-derby-go/internal/race"
)

// Router maps a global table index to its owning shard by range arithmetic.
type Router struct {
	ShardEntries int
	Total        int
}

// Locate resolves a global index to (shard, local index).
func (r Router) Locate(index int) (int, int, error) {
	if r.ShardEntries < 1 {
		return 0, 0, fmt.Errorf("probtable: router shard capacity %d", r.ShardEntries)
	}
	if index < 0 || index >= r.Total {
		return 0, 0, fmt.Errorf("probtable: index %d out of range [0,%d)", index, r.Total)
	}
	return index / r.ShardEntries, index % r.ShardEntries, nil
}

// NumShards returns how many shards cover the table.
func (r Router) NumShards() int {
	if r.ShardEntries < 1 || r.Total < 1 {
		return 0
	}
	return (r.Total + r.ShardEntries - 1) / r.ShardEntries
}

// ShardFileName is the canonical on-disk name for a shard.
func ShardFileName(shard int, compressed bool) string {
	name := fmt.Sprintf("table-%04d.bin", shard)
	if compressed {
		name += ".zst"
	}
	return name
}

// ShardSet is a loaded, read-only probability table reassembled from shard
// artifacts. It serves both sharded lookups (by global index) and the
// convenience lane-order lookup used at bet-quoting time.
type ShardSet struct {
	header ShardHeader // parameters, shared by every shard
	router Router
	shards [][][]int
}

// LoadShardSet reads every shard artifact in dir (table-*.bin or .bin.zst),
// validates that they agree on parameters, tile the index space contiguously
// from zero, and match the runtime config.
func LoadShardSet(dir string, cfg race.Config) (*ShardSet, error) {
	names, err := shardFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("probtable: no shard files in %s", dir)
	}

	set := &ShardSet{shards: make([][][]int, 0, len(names))}
	nextStart := 0
	for i, name := range names {
		header, entries, err := ReadShardFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("probtable: shard %s: %w", name, err)
		}
		if err := header.CheckConfig(cfg); err != nil {
			return nil, fmt.Errorf("probtable: shard %s: %w", name, err)
		}
		if header.StartIndex != nextStart {
			return nil, fmt.Errorf("probtable: shard %s starts at %d, want %d", name, header.StartIndex, nextStart)
		}
		if i == 0 {
			set.header = header
			set.router.ShardEntries = header.EntryCount
		} else if header.EntryCount > set.router.ShardEntries ||
			(i < len(names)-1 && header.EntryCount != set.router.ShardEntries) {
			// Every shard is full-capacity except possibly the last.
			return nil, fmt.Errorf("probtable: shard %s holds %d entries, want %d", name, header.EntryCount, set.router.ShardEntries)
		}
		set.shards = append(set.shards, entries)
		nextStart += header.EntryCount
	}
	set.router.Total = nextStart

	if want := Count(cfg.Lanes); set.router.Total != want {
		return nil, fmt.Errorf("probtable: shards cover %d entries, want %d", set.router.Total, want)
	}
	return set, nil
}

// Header returns the shared shard parameters (StartIndex/EntryCount are the
// first shard's).
func (s *ShardSet) Header() ShardHeader {
	return s.header
}

// Total returns the number of entries across all shards.
func (s *ShardSet) Total() int {
	return s.router.Total
}

// Lookup returns the basis-point entry for a global index. The returned
// slice is shared, read-only table data.
func (s *ShardSet) Lookup(index int) ([]int, error) {
	shard, local, err := s.router.Locate(index)
	if err != nil {
		return nil, err
	}
	return s.shards[shard][local], nil
}

// LookupScores quotes win probabilities for scores in lane order. The tuple
// is sorted with its permutation tracked, looked up, and the probabilities
// un-permuted back so result[lane] belongs to scores[lane].
func (s *ShardSet) LookupScores(scores []int) ([]int, error) {
	if len(scores) != s.header.Lanes {
		return nil, fmt.Errorf("probtable: expected %d scores, got %d", s.header.Lanes, len(scores))
	}

	lanes := make([]int, len(scores))
	for i := range lanes {
		lanes[i] = i
	}
	sort.SliceStable(lanes, func(i, j int) bool {
		return scores[lanes[i]] < scores[lanes[j]]
	})

	sorted := make([]int, len(scores))
	for pos, lane := range lanes {
		sorted[pos] = race.ClampScore(scores[lane])
	}

	index, err := Index(sorted)
	if err != nil {
		return nil, err
	}
	entry, err := s.Lookup(index)
	if err != nil {
		return nil, err
	}

	out := make([]int, len(scores))
	for pos, lane := range lanes {
		out[lane] = entry[pos]
	}
	return out, nil
}

func shardFiles(dir string) ([]string, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		name := item.Name()
		if item.IsDir() || !strings.HasPrefix(name, "table-") {
			continue
		}
		if strings.HasSuffix(name, ".bin") || strings.HasSuffix(name, ".bin.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
