package store

import (
	"errors"
	"time"
)

// ErrRunNotFound is returned when a build run id does not exist.
var ErrRunNotFound = errors.New("store: build run not found")

// DB persists table-build checkpoints. Commits arrive strictly in increasing
// index order from a single coordinator; the store relies on that to make
// resume a simple count, never a gap scan.
type DB interface {
	Close() error
	Migrate() error
	CreateRun(run *BuildRun) error
	GetRun(id string) (*BuildRun, error)
	MarkRunDone(id string) error
	SaveRow(runID string, row Row) error
	Rows(runID string) ([]Row, error)
	NextIndex(runID string) (int, error)
}

// BuildRun records one table build: the parameters it was started under and
// how far it has committed. The table seed is stored only as a SHA-256 hash.
type BuildRun struct {
	ID             string    `json:"id"`
	TableSeedHash  string    `json:"table_seed_hash"`
	Lanes          int       `json:"lanes"`
	MinHandicapBps int       `json:"min_handicap_bps"`
	Trials         int       `json:"trials"`
	Status         string    `json:"status"`
	Committed      int       `json:"committed"`
	CreatedAt      time.Time `json:"created_at"`
}

// Run statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
)

// Row is one committed table entry: the tuple at Index and its estimated
// win probabilities in basis points.
type Row struct {
	Index int   `json:"index"`
	Tuple []int `json:"tuple"`
	Probs []int `json:"probs"`
}
