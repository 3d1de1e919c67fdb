// Package forgecache stores ancillary forge-derived data (review
// status, CI checks) that the core doesn't need to be crash-safe
// about, keyed per stack and provider, in a local SQLite database.
//
// Every row carries a struct_version column. A row whose version
// doesn't match the version this build knows how to decode is treated
// as a miss and refetched rather than causing an error, so schema
// changes degrade gracefully instead of breaking old caches.
package forgecache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tidwall/gjson"
)

// structVersion is bumped whenever the JSON shape of a cached payload
// changes incompatibly. Rows written by an older or newer struct
// version are ignored rather than decoded.
const structVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS review_status (
	stack_id       TEXT NOT NULL,
	provider       TEXT NOT NULL,
	struct_version INTEGER NOT NULL,
	payload        TEXT NOT NULL,
	fetched_at     TEXT NOT NULL,
	PRIMARY KEY (stack_id, provider)
);

CREATE TABLE IF NOT EXISTS ci_check (
	stack_id       TEXT NOT NULL,
	provider       TEXT NOT NULL,
	check_name     TEXT NOT NULL,
	struct_version INTEGER NOT NULL,
	payload        TEXT NOT NULL,
	fetched_at     TEXT NOT NULL,
	PRIMARY KEY (stack_id, provider, check_name)
);
`

// ReviewStatus is the cached state of a stack's review on a forge.
type ReviewStatus struct {
	State     string `json:"state"` // e.g. "open", "approved", "changes_requested", "merged"
	Reviewers []string `json:"reviewers"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CICheck is the cached state of a single CI check run against a
// stack's review.
type CICheck struct {
	Name       string    `json:"name"`
	Conclusion string    `json:"conclusion"` // e.g. "success", "failure", "pending"
	URL        string    `json:"url"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DB is a handle to the ancillary SQLite store.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema exists.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &DB{sql: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.sql.Close()
}

// SaveReviewStatus upserts the cached review status for a stack on a
// given forge provider.
func (db *DB) SaveReviewStatus(ctx context.Context, stackID, provider string, status ReviewStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal review status: %w", err)
	}

	_, err = db.sql.ExecContext(ctx, `
		INSERT INTO review_status (stack_id, provider, struct_version, payload, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (stack_id, provider) DO UPDATE SET
			struct_version = excluded.struct_version,
			payload        = excluded.payload,
			fetched_at     = excluded.fetched_at
	`, stackID, provider, structVersion, string(payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save review status: %w", err)
	}
	return nil
}

// ErrMiss is returned when no usable cache entry exists for a key,
// either because nothing was ever cached or because the cached row's
// struct_version doesn't match what this build understands.
var ErrMiss = errors.New("forgecache: miss")

// LoadReviewStatus loads the cached review status for a stack, or
// ErrMiss if there isn't a decodable one.
func (db *DB) LoadReviewStatus(ctx context.Context, stackID, provider string) (ReviewStatus, error) {
	var (
		version int
		payload string
	)
	err := db.sql.QueryRowContext(ctx, `
		SELECT struct_version, payload FROM review_status
		WHERE stack_id = ? AND provider = ?
	`, stackID, provider).Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ReviewStatus{}, ErrMiss
	}
	if err != nil {
		return ReviewStatus{}, fmt.Errorf("load review status: %w", err)
	}
	if version != structVersion {
		return ReviewStatus{}, ErrMiss
	}

	var status ReviewStatus
	if err := json.Unmarshal([]byte(payload), &status); err != nil {
		return ReviewStatus{}, fmt.Errorf("decode review status: %w", err)
	}
	return status, nil
}

// SaveCICheck upserts a single cached CI check result.
func (db *DB) SaveCICheck(ctx context.Context, stackID, provider string, check CICheck) error {
	payload, err := json.Marshal(check)
	if err != nil {
		return fmt.Errorf("marshal CI check: %w", err)
	}

	_, err = db.sql.ExecContext(ctx, `
		INSERT INTO ci_check (stack_id, provider, check_name, struct_version, payload, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (stack_id, provider, check_name) DO UPDATE SET
			struct_version = excluded.struct_version,
			payload        = excluded.payload,
			fetched_at     = excluded.fetched_at
	`, stackID, provider, check.Name, structVersion, string(payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save CI check: %w", err)
	}
	return nil
}

// ListCICheck returns every cached CI check for a stack on a provider,
// skipping rows whose struct_version is unrecognized.
func (db *DB) ListCICheck(ctx context.Context, stackID, provider string) ([]CICheck, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT struct_version, payload FROM ci_check
		WHERE stack_id = ? AND provider = ?
		ORDER BY check_name
	`, stackID, provider)
	if err != nil {
		return nil, fmt.Errorf("list CI checks: %w", err)
	}
	defer rows.Close()

	var checks []CICheck
	for rows.Next() {
		var (
			version int
			payload string
		)
		if err := rows.Scan(&version, &payload); err != nil {
			return nil, fmt.Errorf("scan CI check: %w", err)
		}
		if version != structVersion {
			continue
		}

		var check CICheck
		if err := json.Unmarshal([]byte(payload), &check); err != nil {
			return nil, fmt.Errorf("decode CI check: %w", err)
		}
		checks = append(checks, check)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list CI checks: %w", err)
	}

	return checks, nil
}

// AggregateConclusion extracts just the "conclusion" field out of a
// raw forge webhook/API payload without decoding it into a typed
// struct first, for forges whose check payload shape varies enough
// that a full struct isn't worth maintaining.
func AggregateConclusion(rawPayload []byte) string {
	return gjson.GetBytes(rawPayload, "conclusion").String()
}
