// Package persist is the embedded persistence layer: a SQLite database
// holding the latest state snapshot per show plus append-only auxiliary
// tables for post-hoc analysis.
//
// The snapshot is the only authority for crash recovery. The aux tables
// (users, votes, lobby responses) are written best-effort and never read
// back by the core.
package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// ErrNoSnapshot is returned by LoadLatest when the store holds no snapshot
// for the show.
var ErrNoSnapshot = errors.New("persist: no snapshot")

const schemaVersion = 1

// Store is the SQLite-backed persistence layer. Writes go through the
// engine serialiser, so the store is effectively single-writer.
type Store struct {
	DB *sql.DB
}

// Open initialises the store at dbPath (":memory:" works for tests) and
// runs migrations. The DSN carries the PRAGMAs so they apply to every
// connection in the pool.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, (5 * time.Second).Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("persist: open failed: %w", err)
	}
	// A single writer keeps WAL contention out of the command path.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persist: ping failed: %w", err)
	}

	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persist: migration failed: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Ping verifies the store is reachable. Used by the readiness checker.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *Store) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	schema := `
	CREATE TABLE IF NOT EXISTS shows (
		show_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS show_users (
		show_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		seat_id TEXT,
		faction_id INTEGER,
		joined_at_ms INTEGER NOT NULL,
		recorded_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_show_users_show ON show_users(show_id, user_id);

	CREATE TABLE IF NOT EXISTS show_votes (
		show_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		row_index INTEGER NOT NULL,
		attempt INTEGER NOT NULL,
		faction_vote TEXT NOT NULL,
		personal_vote TEXT NOT NULL,
		voted_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_show_votes_row ON show_votes(show_id, row_index, attempt);

	CREATE TABLE IF NOT EXISTS show_responses (
		show_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		response TEXT NOT NULL,
		recorded_at_ms INTEGER NOT NULL
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveSnapshot atomically upserts the serialised state for showID. The
// transaction wrapping the upsert is the atomicity guarantee: a crash
// mid-write leaves the previous snapshot intact.
func (s *Store) SaveSnapshot(ctx context.Context, showID string, state []byte, version int, updatedAtMs int64) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist: begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shows (show_id, state, version, updated_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(show_id) DO UPDATE SET
			state = excluded.state,
			version = excluded.version,
			updated_at_ms = excluded.updated_at_ms`,
		showID, string(state), version, updatedAtMs)
	if err != nil {
		return fmt.Errorf("persist: upsert snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist: commit snapshot: %w", err)
	}
	return nil
}

// LoadLatest returns the stored snapshot for showID.
func (s *Store) LoadLatest(ctx context.Context, showID string) ([]byte, int, error) {
	var state string
	var version int
	err := s.DB.QueryRowContext(ctx,
		`SELECT state, version FROM shows WHERE show_id = ?`, showID).
		Scan(&state, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNoSnapshot
	}
	if err != nil {
		return nil, 0, fmt.Errorf("persist: load snapshot: %w", err)
	}
	return []byte(state), version, nil
}

// AppendUser records a user sighting in the append-only audit table.
func (s *Store) AppendUser(ctx context.Context, showID, userID, seatID string, factionID *int, joinedAtMs, nowMs int64) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO show_users (show_id, user_id, seat_id, faction_id, joined_at_ms, recorded_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		showID, userID, seatID, factionID, joinedAtMs, nowMs)
	if err != nil {
		return fmt.Errorf("persist: append user: %w", err)
	}
	return nil
}

// AppendVote records a vote in the append-only audit table.
func (s *Store) AppendVote(ctx context.Context, showID, userID string, rowIndex, attempt int, factionVote, personalVote string, votedAtMs int64) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO show_votes (show_id, user_id, row_index, attempt, faction_vote, personal_vote, voted_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		showID, userID, rowIndex, attempt, factionVote, personalVote, votedAtMs)
	if err != nil {
		return fmt.Errorf("persist: append vote: %w", err)
	}
	return nil
}

// AppendResponse records a lobby prompt response in the audit table.
func (s *Store) AppendResponse(ctx context.Context, showID, userID, response string, nowMs int64) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO show_responses (show_id, user_id, response, recorded_at_ms)
		VALUES (?, ?, ?, ?)`,
		showID, userID, response, nowMs)
	if err != nil {
		return fmt.Errorf("persist: append response: %w", err)
	}
	return nil
}
