// Package store checkpoints completed trials in SQLite so an interrupted
// run can resume where it stopped.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite"

	"responsio/pkg/contract"
)

// Store is a checkpoint database. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Record is one persisted trial.
type Record struct {
	Stats       contract.TrialStats
	Composition map[string]int
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// one writer; SQLite serializes anyway
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS trials (
		run TEXT NOT NULL,
		idx INTEGER NOT NULL,
		t_pos_prose REAL NOT NULL,
		t_song_prose REAL NOT NULL,
		t_pos_lyric REAL NOT NULL,
		t_song_lyric REAL NOT NULL,
		composition TEXT,
		PRIMARY KEY (run, idx)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: create tables: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// RunKey fingerprints everything that changes trial outcomes. Runs with
// equal keys produce identical trials at identical indices.
func RunKey(parts ...string) string {
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(parts, "\x00")), 16)
}

// Begin registers a run; re-registering an existing run is a no-op.
func (s *Store) Begin(ctx context.Context, run, fingerprint string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (run, fingerprint, created_at) VALUES (?, ?, ?)`,
		run, fingerprint, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: begin %s: %w", run, err)
	}
	return nil
}

// Put saves one trial, replacing an earlier copy of the same index.
func (s *Store) Put(ctx context.Context, run string, st contract.TrialStats, composition map[string]int) error {
	var comp []byte
	if len(composition) > 0 {
		b, err := json.Marshal(composition)
		if err != nil {
			return err
		}
		comp = b
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO trials (run, idx, t_pos_prose, t_song_prose, t_pos_lyric, t_song_lyric, composition)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run, st.Index, st.PosProse, st.SongProse, st.PosLyric, st.SongLyric, string(comp))
	if err != nil {
		return fmt.Errorf("store: put trial %d: %w", st.Index, err)
	}
	return nil
}

// Completed returns the contiguous run of trials starting at from.
// A gap ends the sequence; later trials are recomputed on resume.
func (s *Store) Completed(ctx context.Context, run string, from int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, t_pos_prose, t_song_prose, t_pos_lyric, t_song_lyric, composition
		 FROM trials WHERE run = ? AND idx >= ? ORDER BY idx`, run, from)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", run, err)
	}
	defer rows.Close()

	var out []Record
	next := from
	for rows.Next() {
		var (
			rec  Record
			comp sql.NullString
		)
		st := &rec.Stats
		if err := rows.Scan(&st.Index, &st.PosProse, &st.SongProse, &st.PosLyric, &st.SongLyric, &comp); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		if st.Index != next {
			break
		}
		if comp.Valid && comp.String != "" {
			if err := json.Unmarshal([]byte(comp.String), &rec.Composition); err != nil {
				return nil, fmt.Errorf("store: trial %d composition: %w", st.Index, err)
			}
		}
		out = append(out, rec)
		next++
	}
	return out, rows.Err()
}

// Sink binds the store to one run.
func (s *Store) Sink(run string) *RunSink { return &RunSink{s: s, run: run} }

// RunSink writes trials of a single run.
type RunSink struct {
	s   *Store
	run string
}

// Put saves one trial.
func (r *RunSink) Put(ctx context.Context, st contract.TrialStats, composition map[string]int) error {
	return r.s.Put(ctx, r.run, st, composition)
}
