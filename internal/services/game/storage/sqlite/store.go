package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/louisbranch/roundtable/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/roundtable/internal/services/game/domain/replay"
	"github.com/louisbranch/roundtable/internal/services/game/storage"
	"github.com/louisbranch/roundtable/internal/services/game/storage/sqlite/migrations"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock sets the clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is a SQLite-backed recording store.
type Store struct {
	sqlDB  *sql.DB
	now    func() time.Time
	logger zerolog.Logger
}

// Open opens the store at path and applies its migrations. The path
// ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path + "?_pragma=foreign_keys(ON)"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, now: time.Now, logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	applied, err := sqlitemigrate.Apply(ctx, sqlDB, migrations.RecordingsFS, "recordings")
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if len(applied) > 0 {
		store.logger.Info().Strs("migrations", applied).Str("path", path).Msg("recording schema migrated")
	}
	return store, nil
}

// Close closes the database. It is nil-safe.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveRecording stores entries under id in one transaction.
func (s *Store) SaveRecording(ctx context.Context, id string, entries []replay.Entry) (storage.RecordingRecord, error) {
	if s == nil || s.sqlDB == nil {
		return storage.RecordingRecord{}, errors.New("recording store is required")
	}
	record, sorted, err := storage.Describe(id, entries, s.now())
	if err != nil {
		return storage.RecordingRecord{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.RecordingRecord{}, fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM recordings WHERE id = ?", record.ID).Scan(&exists)
	switch {
	case err == nil:
		return storage.RecordingRecord{}, storage.ErrRecordingExists
	case !errors.Is(err, sql.ErrNoRows):
		return storage.RecordingRecord{}, fmt.Errorf("check recording: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO recordings (id, entry_count, session_count, last_tick, digest, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.Entries, record.Sessions, int64(record.LastTick), record.Digest, toMillis(record.CreatedAt),
	); err != nil {
		return storage.RecordingRecord{}, fmt.Errorf("insert recording: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO recording_entries (recording_id, position, tick, session_id, command_type, command_json) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storage.RecordingRecord{}, fmt.Errorf("prepare entries: %w", err)
	}
	defer stmt.Close()
	for i, e := range sorted {
		if len(e.Command.Payload) == 0 {
			e.Command.Payload = json.RawMessage("{}")
		}
		commandJSON, err := json.Marshal(e.Command)
		if err != nil {
			return storage.RecordingRecord{}, fmt.Errorf("encode entry %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, record.ID, i, int64(e.Tick), e.SessionID, e.Command.Type, string(commandJSON)); err != nil {
			return storage.RecordingRecord{}, fmt.Errorf("insert entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.RecordingRecord{}, fmt.Errorf("commit save: %w", err)
	}
	return record, nil
}

// LoadRecording returns the record and entries saved under id.
func (s *Store) LoadRecording(ctx context.Context, id string) (storage.RecordingRecord, []replay.Entry, error) {
	if s == nil || s.sqlDB == nil {
		return storage.RecordingRecord{}, nil, errors.New("recording store is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.RecordingRecord{}, nil, storage.ErrRecordingIDRequired
	}

	record, err := scanRecord(s.sqlDB.QueryRowContext(ctx,
		`SELECT id, entry_count, session_count, last_tick, digest, created_at FROM recordings WHERE id = ?`, id))
	if err != nil {
		return storage.RecordingRecord{}, nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT tick, session_id, command_json FROM recording_entries WHERE recording_id = ? ORDER BY position`, id)
	if err != nil {
		return storage.RecordingRecord{}, nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]replay.Entry, 0, record.Entries)
	for rows.Next() {
		var (
			tick        int64
			sessionID   string
			commandJSON string
		)
		if err := rows.Scan(&tick, &sessionID, &commandJSON); err != nil {
			return storage.RecordingRecord{}, nil, fmt.Errorf("scan entry: %w", err)
		}
		e := replay.Entry{Tick: uint64(tick), SessionID: sessionID}
		if err := json.Unmarshal([]byte(commandJSON), &e.Command); err != nil {
			return storage.RecordingRecord{}, nil, fmt.Errorf("decode entry %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return storage.RecordingRecord{}, nil, fmt.Errorf("read entries: %w", err)
	}

	digest, err := replay.Digest(entries)
	if err != nil {
		return storage.RecordingRecord{}, nil, err
	}
	if digest != record.Digest {
		s.logger.Warn().Str("recording_id", id).Str("stored", record.Digest).Str("computed", digest).Msg("recording digest mismatch")
		return storage.RecordingRecord{}, nil, fmt.Errorf("recording %s: digest mismatch", id)
	}
	return record, entries, nil
}

// ListRecordings returns every record ordered by id.
func (s *Store) ListRecordings(ctx context.Context) ([]storage.RecordingRecord, error) {
	if s == nil || s.sqlDB == nil {
		return nil, errors.New("recording store is required")
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, entry_count, session_count, last_tick, digest, created_at FROM recordings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var records []storage.RecordingRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read recordings: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (storage.RecordingRecord, error) {
	var (
		record    storage.RecordingRecord
		lastTick  int64
		createdAt int64
	)
	err := row.Scan(&record.ID, &record.Entries, &record.Sessions, &lastTick, &record.Digest, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RecordingRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.RecordingRecord{}, fmt.Errorf("scan recording: %w", err)
	}
	record.LastTick = uint64(lastTick)
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

var _ storage.LogStore = (*Store)(nil)
