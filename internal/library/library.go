// Package library stores recordings in a SQLite database.
//
// Each recording is kept as its JSON document together with a BLAKE2b
// digest of that document, so storing the same recording twice returns
// the existing entry. Recordings are addressed by id (a UUIDv7) or by
// name, a name resolving to its most recent recording.
package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/blake2b"

	"macrorec/internal/logging"
	"macrorec/internal/macro"
	"macrorec/internal/recfile"
)

var (
	// ErrNotFound is returned when no recording matches a reference.
	ErrNotFound = errors.New("recording not found")

	// ErrInvalidName is returned for empty or whitespace-only names.
	ErrInvalidName = errors.New("invalid recording name")
)

// Recording describes a stored recording.
type Recording struct {
	ID           uuid.UUID
	Name         string
	Digest       [blake2b.Size256]byte
	Events       int
	Duration     float64
	CreatedAt    time.Time
	PlayCount    int
	LastPlayedAt time.Time
}

// Library is a SQLite recording library.
type Library struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens or creates the library at path and runs migrations.
func Open(path string, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = logging.Default().WithComponent("library")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create library directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Library{db: db, log: logger}, nil
}

// Close closes the database connection.
func (l *Library) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (l *Library) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Digest returns the content digest of a recording document.
func Digest(body []byte) [blake2b.Size256]byte {
	return blake2b.Sum256(body)
}

// Put stores events under name. When an identical recording is already
// stored, Put returns it and created is false.
func (l *Library) Put(ctx context.Context, name string, events []macro.Event) (rec Recording, created bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Recording{}, false, ErrInvalidName
	}
	if len(events) == 0 {
		return Recording{}, false, recfile.ErrEmpty
	}
	body, err := recfile.Marshal(events, recfile.FormatJSON)
	if err != nil {
		return Recording{}, false, err
	}
	digest := Digest(body)

	existing, err := scanOne(l.db.QueryRowContext(ctx,
		selectRecording+" WHERE digest = ?", digest[:]))
	switch {
	case err == nil:
		l.log.Debug("recording already stored", "id", existing.ID, "name", existing.Name)
		return existing, false, nil
	case !errors.Is(err, ErrNotFound):
		return Recording{}, false, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Recording{}, false, fmt.Errorf("new id: %w", err)
	}
	info := recfile.Describe(events)
	rec = Recording{
		ID:        id,
		Name:      name,
		Digest:    digest,
		Events:    info.Events,
		Duration:  info.Duration,
		CreatedAt: time.Now(),
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO recordings (id, name, digest, events, duration, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Name, digest[:], rec.Events, rec.Duration, string(body), rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return Recording{}, false, fmt.Errorf("insert recording: %w", err)
	}
	l.log.Info("recording stored", "id", rec.ID, "name", rec.Name, "events", rec.Events)
	return rec, true, nil
}

// Get returns the recording ref names and its events.
func (l *Library) Get(ctx context.Context, ref string) (Recording, []macro.Event, error) {
	rec, err := l.Resolve(ctx, ref)
	if err != nil {
		return Recording{}, nil, err
	}
	var body string
	if err := l.db.QueryRowContext(ctx,
		"SELECT body FROM recordings WHERE id = ?", rec.ID.String()).Scan(&body); err != nil {
		return Recording{}, nil, fmt.Errorf("read recording %s: %w", rec.ID, err)
	}
	events, err := recfile.Unmarshal([]byte(body), recfile.FormatJSON)
	if err != nil {
		return Recording{}, nil, fmt.Errorf("recording %s: %w", rec.ID, err)
	}
	return rec, events, nil
}

// Resolve finds the recording a reference names: an id, or else the most
// recent recording with that name.
func (l *Library) Resolve(ctx context.Context, ref string) (Recording, error) {
	if id, err := uuid.Parse(ref); err == nil {
		rec, err := scanOne(l.db.QueryRowContext(ctx, selectRecording+" WHERE id = ?", id.String()))
		if err == nil || !errors.Is(err, ErrNotFound) {
			return rec, err
		}
	}
	rec, err := scanOne(l.db.QueryRowContext(ctx,
		selectRecording+" WHERE name = ? ORDER BY created_at DESC, id DESC LIMIT 1", ref))
	if errors.Is(err, ErrNotFound) {
		return Recording{}, fmt.Errorf("%q: %w", ref, ErrNotFound)
	}
	return rec, err
}

// List returns every recording, oldest first.
func (l *Library) List(ctx context.Context) ([]Recording, error) {
	rows, err := l.db.QueryContext(ctx, selectRecording+" ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var recs []Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Delete removes the recording ref names.
func (l *Library) Delete(ctx context.Context, ref string) error {
	rec, err := l.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if _, err := l.db.ExecContext(ctx, "DELETE FROM recordings WHERE id = ?", rec.ID.String()); err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	l.log.Info("recording deleted", "id", rec.ID, "name", rec.Name)
	return nil
}

// Rename gives the recording ref names a new name.
func (l *Library) Rename(ctx context.Context, ref, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	rec, err := l.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if _, err := l.db.ExecContext(ctx,
		"UPDATE recordings SET name = ? WHERE id = ?", name, rec.ID.String()); err != nil {
		return fmt.Errorf("rename recording: %w", err)
	}
	return nil
}

// MarkPlayed records a playback of the recording with id.
func (l *Library) MarkPlayed(ctx context.Context, id uuid.UUID) error {
	res, err := l.db.ExecContext(ctx,
		"UPDATE recordings SET play_count = play_count + 1, last_played_at = ? WHERE id = ?",
		time.Now().UnixNano(), id.String())
	if err != nil {
		return fmt.Errorf("mark played: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

const selectRecording = `
	SELECT id, name, digest, events, duration, created_at, play_count, last_played_at
	FROM recordings`

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (Recording, error) {
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, ErrNotFound
	}
	return rec, err
}

func scanRecording(s scanner) (Recording, error) {
	var (
		rec        Recording
		id         string
		digest     []byte
		createdAt  int64
		lastPlayed sql.NullInt64
	)
	if err := s.Scan(&id, &rec.Name, &digest, &rec.Events, &rec.Duration, &createdAt, &rec.PlayCount, &lastPlayed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Recording{}, err
		}
		return Recording{}, fmt.Errorf("scan recording: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Recording{}, fmt.Errorf("recording id %q: %w", id, err)
	}
	rec.ID = parsed
	copy(rec.Digest[:], digest)
	rec.CreatedAt = time.Unix(0, createdAt)
	if lastPlayed.Valid {
		rec.LastPlayedAt = time.Unix(0, lastPlayed.Int64)
	}
	return rec, nil
}
