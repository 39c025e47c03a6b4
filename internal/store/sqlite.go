package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteDB implements DB on a single sqlite file.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) the checkpoint database.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps readers out of the coordinator's way during long builds.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Migrate creates the checkpoint schema. Idempotent.
func (s *SQLiteDB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS build_runs (
			id TEXT PRIMARY KEY,
			table_seed_hash TEXT NOT NULL,
			lanes INTEGER NOT NULL,
			min_handicap_bps INTEGER NOT NULL,
			trials INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'running',
			committed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS build_rows (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			tuple TEXT NOT NULL,
			probs BLOB NOT NULL,
			PRIMARY KEY (run_id, idx),
			FOREIGN KEY (run_id) REFERENCES build_runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_build_rows_run ON build_rows(run_id, idx)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreateRun inserts a new build run.
func (s *SQLiteDB) CreateRun(run *BuildRun) error {
	if run.Status == "" {
		run.Status = StatusRunning
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO build_runs (id, table_seed_hash, lanes, min_handicap_bps, trials, status, committed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.TableSeedHash, run.Lanes, run.MinHandicapBps, run.Trials, run.Status, run.Committed, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun fetches a run by id.
func (s *SQLiteDB) GetRun(id string) (*BuildRun, error) {
	run := &BuildRun{}
	err := s.db.QueryRow(
		`SELECT id, table_seed_hash, lanes, min_handicap_bps, trials, status, committed, created_at
		 FROM build_runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.TableSeedHash, &run.Lanes, &run.MinHandicapBps, &run.Trials, &run.Status, &run.Committed, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// MarkRunDone flips a run's status once every row is committed.
func (s *SQLiteDB) MarkRunDone(id string) error {
	res, err := s.db.Exec(`UPDATE build_runs SET status = ? WHERE id = ?`, StatusDone, id)
	if err != nil {
		return fmt.Errorf("failed to mark run done: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// SaveRow commits one table row and bumps the run's committed counter in the
// same transaction, so a crash never leaves the two disagreeing.
func (s *SQLiteDB) SaveRow(runID string, row Row) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO build_rows (run_id, idx, tuple, probs) VALUES (?, ?, ?, ?)`,
		runID, row.Index, encodeTuple(row.Tuple), encodeProbs(row.Probs),
	); err != nil {
		return fmt.Errorf("failed to save row %d: %w", row.Index, err)
	}
	if _, err := tx.Exec(
		`UPDATE build_runs SET committed = committed + 1 WHERE id = ?`, runID,
	); err != nil {
		return fmt.Errorf("failed to bump committed count: %w", err)
	}
	return tx.Commit()
}

// Rows returns all committed rows for a run in index order.
func (s *SQLiteDB) Rows(runID string) ([]Row, error) {
	rows, err := s.db.Query(
		`SELECT idx, tuple, probs FROM build_rows WHERE run_id = ? ORDER BY idx`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row   Row
			tuple string
			probs []byte
		)
		if err := rows.Scan(&row.Index, &tuple, &probs); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if row.Tuple, err = decodeTuple(tuple); err != nil {
			return nil, err
		}
		row.Probs = decodeProbs(probs)
		out = append(out, row)
	}
	return out, rows.Err()
}

// NextIndex returns the lowest uncommitted index. Commits are contiguous
// from zero, so this is the row count; a gap means the checkpoint was
// tampered with and the build must not resume from it.
func (s *SQLiteDB) NextIndex(runID string) (int, error) {
	var count, maxIdx sql.NullInt64
	err := s.db.QueryRow(
		`SELECT COUNT(*), MAX(idx) FROM build_rows WHERE run_id = ?`, runID,
	).Scan(&count, &maxIdx)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	n := int(count.Int64)
	if n > 0 && int(maxIdx.Int64) != n-1 {
		return 0, fmt.Errorf("store: checkpoint for run %s is not contiguous (count %d, max index %d)", runID, n, maxIdx.Int64)
	}
	return n, nil
}

func encodeTuple(tuple []int) string {
	parts := make([]string, len(tuple))
	for i, v := range tuple {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func decodeTuple(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	tuple := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("store: bad tuple %q: %w", s, err)
		}
		tuple[i] = v
	}
	return tuple, nil
}

// Probs are stored the same way the shard format packs them: big-endian
// uint16 basis points.
func encodeProbs(probs []int) []byte {
	buf := make([]byte, 2*len(probs))
	for i, v := range probs {
		binary.BigEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return buf
}

func decodeProbs(buf []byte) []int {
	probs := make([]int, len(buf)/2)
	for i := range probs {
		probs[i] = int(binary.BigEndian.Uint16(buf[2*i:]))
	}
	return probs
}
