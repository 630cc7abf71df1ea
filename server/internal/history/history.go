package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/sleeperqc/sleeperqc/server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS journal (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    container_id TEXT    NOT NULL,
    kind         TEXT    NOT NULL,
    payload      TEXT    NOT NULL,
    created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_journal_created_at ON journal(created_at);
CREATE INDEX IF NOT EXISTS idx_journal_container ON journal(container_id);
`

const pruneInterval = time.Hour

// Journal is the SQLite-backed mutation log of the shift store.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	// A single writer keeps AUTOINCREMENT order equal to append order.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: initialize schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Append writes one entry. It implements store.Journal.
func (j *Journal) Append(ctx context.Context, e store.Entry) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO journal (container_id, kind, payload, created_at) VALUES (?, ?, ?, ?)`,
		e.ContainerID, string(e.Kind), string(e.Payload), e.At.UnixNano())
	if err != nil {
		return fmt.Errorf("history: append %s for %q: %w", e.Kind, e.ContainerID, err)
	}
	return nil
}

// Replay calls fn for every entry in append order. It stops at the first
// error fn returns.
func (j *Journal) Replay(ctx context.Context, fn func(store.Entry) error) (int, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT container_id, kind, payload, created_at FROM journal ORDER BY seq`)
	if err != nil {
		return 0, fmt.Errorf("history: query journal: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			e       store.Entry
			kind    string
			payload string
			at      int64
		)
		if err := rows.Scan(&e.ContainerID, &kind, &payload, &at); err != nil {
			return n, fmt.Errorf("history: scan journal row: %w", err)
		}
		e.Kind = store.Kind(kind)
		e.Payload = []byte(payload)
		e.At = time.Unix(0, at).UTC()
		if err := fn(e); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("history: iterate journal: %w", err)
	}
	return n, nil
}

// Prune deletes entries of containers whose newest entry is older than
// before, so a container is always kept or dropped as a whole. It returns the
// number of rows removed.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `
DELETE FROM journal WHERE container_id IN (
    SELECT container_id FROM journal GROUP BY container_id HAVING MAX(created_at) < ?
)`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history: prune rows affected: %w", err)
	}
	return n, nil
}

// Run prunes containers idle for longer than retention once an hour, and
// once immediately. It blocks until ctx is cancelled.
func (j *Journal) Run(ctx context.Context, retention time.Duration) {
	prune := func(now time.Time) {
		n, err := j.Prune(ctx, now.Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			slog.Warn("history: prune failed", "err", err)
		case n > 0:
			slog.Info("history: pruned journal entries", "rows", n, "retention", retention)
		}
	}
	prune(time.Now())

	t := time.NewTicker(pruneInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			prune(now)
		}
	}
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
