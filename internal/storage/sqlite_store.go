package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"tracker-codec/internal/pipeline"
)

const MaxUplinks = 500

var ErrClosed = errors.New("storage: store closed")

// SqliteStore keeps the append-only uplink history.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore does not touch the file; connections open on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// the schema has to exist before a read-only connection can query it
		if _, err := s.getWriteDB(); err != nil {
			s.readDBErr = err
			return
		}
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) Name() string { return "sqlite" }

// Save implements pipeline.Sink. A record whose ID is already stored is
// ignored.
func (s *SqliteStore) Save(ctx context.Context, tr *pipeline.TrackingObject) (err error) {
	data, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("marshaling tracking: %w", err)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertUplinkSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx,
		tr.ID,
		tr.DevEUI,
		tr.FPort,
		tr.FCnt,
		tr.Datetime.UnixNano(),
		string(tr.Kind),
		tr.Payload,
		boolToInt(tr.Plausible),
		boolToInt(tr.Consistent),
		string(data),
	); err != nil {
		return fmt.Errorf("inserting uplink: %w", err)
	}
	return nil
}

// Uplinks returns up to limit records of a device, newest first. limit is
// clamped to [1, MaxUplinks].
func (s *SqliteStore) Uplinks(ctx context.Context, devEUI string, limit int) (out []*pipeline.TrackingObject, err error) {
	limit = min(max(limit, 1), MaxUplinks)

	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectUplinksSQL, devEUI, limit)
	if err != nil {
		return nil, fmt.Errorf("querying uplinks: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var raw string
		if err = rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning uplink: %w", err)
		}
		var tr pipeline.TrackingObject
		if err = json.Unmarshal([]byte(raw), &tr); err != nil {
			return nil, fmt.Errorf("decoding uplink: %w", err)
		}
		out = append(out, &tr)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating uplinks: %w", err)
	}
	return out, nil
}

func (s *SqliteStore) Count(ctx context.Context, devEUI string) (n int64, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return 0, fmt.Errorf("getting read connection: %w", err)
	}
	if err = db.QueryRowContext(ctx, countUplinksSQL, devEUI).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting uplinks: %w", err)
	}
	return n, nil
}

// Close is safe to call concurrently with other methods. Once it returns,
// every call fails with ErrClosed.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		// Do waits for an open in flight and keeps later ones from running
		s.readDBOnce.Do(func() { s.readDBErr = ErrClosed })
		s.writeDBOnce.Do(func() { s.writeDBErr = ErrClosed })

		var errs []error
		if s.readDB != nil {
			errs = append(errs, s.readDB.Close())
		}
		if s.writeDB != nil {
			errs = append(errs, s.writeDB.Close())
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
