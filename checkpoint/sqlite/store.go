// Package sqlite persists checkpoints in a local SQLite database. Commits are
// confirmed durable (synchronous=FULL, WAL) before Commit returns, so a
// consumer never double-claims completion of an event whose checkpoint write
// was lost.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/datateam2/eventstream/checkpoint"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cursors (
	partition_id INTEGER NOT NULL,
	group_id TEXT NOT NULL,
	committed_offset INTEGER NOT NULL,
	owner_token TEXT NOT NULL,
	updated_at_utc_ns INTEGER NOT NULL,
	PRIMARY KEY (partition_id, group_id)
);

CREATE TABLE IF NOT EXISTS ownership (
	partition_id INTEGER NOT NULL,
	group_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	owner_token TEXT NOT NULL,
	claimed_at_utc_ns INTEGER NOT NULL,
	PRIMARY KEY (partition_id, group_id)
);
`

var _ checkpoint.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply checkpoint schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context, partition int32, group string) (checkpoint.Cursor, bool, error) {
	var (
		c         checkpoint.Cursor
		updatedNs int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT committed_offset, owner_token, updated_at_utc_ns
FROM cursors WHERE partition_id = ? AND group_id = ?`,
		partition, group,
	).Scan(&c.Offset, &c.OwnerToken, &updatedNs)
	if errors.Is(err, sql.ErrNoRows) {
		return checkpoint.Cursor{}, false, nil
	}
	if err != nil {
		return checkpoint.Cursor{}, false, fmt.Errorf("load cursor: %w", err)
	}

	c.Partition = partition
	c.Group = group
	c.UpdatedAt = time.Unix(0, updatedNs).UTC()
	return c, true, nil
}

func (s *Store) Commit(ctx context.Context, c checkpoint.Cursor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit tx: %w", err)
	}
	defer tx.Rollback()

	var ownerToken string
	err = tx.QueryRowContext(ctx, `
SELECT owner_token FROM ownership WHERE partition_id = ? AND group_id = ?`,
		c.Partition, c.Group,
	).Scan(&ownerToken)
	if errors.Is(err, sql.ErrNoRows) {
		return checkpoint.ErrFenced
	}
	if err != nil {
		return fmt.Errorf("read ownership: %w", err)
	}
	if ownerToken != c.OwnerToken {
		return checkpoint.ErrFenced
	}

	var stored int64
	err = tx.QueryRowContext(ctx, `
SELECT committed_offset FROM cursors WHERE partition_id = ? AND group_id = ?`,
		c.Partition, c.Group,
	).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read cursor: %w", err)
	}
	if err == nil && c.Offset < stored {
		return checkpoint.ErrStaleOffset
	}

	now := time.Now().UTC().UnixNano()
	_, err = tx.ExecContext(ctx, `
INSERT INTO cursors(partition_id, group_id, committed_offset, owner_token, updated_at_utc_ns)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(partition_id, group_id)
DO UPDATE SET committed_offset=excluded.committed_offset,
	owner_token=excluded.owner_token,
	updated_at_utc_ns=excluded.updated_at_utc_ns`,
		c.Partition, c.Group, c.Offset, c.OwnerToken, now)
	if err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cursor tx: %w", err)
	}
	return nil
}

func (s *Store) ClaimOwnership(ctx context.Context, partition int32, group, ownerID string) (string, error) {
	token := uuid.NewString()
	now := time.Now().UTC().UnixNano()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO ownership(partition_id, group_id, owner_id, owner_token, claimed_at_utc_ns)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(partition_id, group_id)
DO UPDATE SET owner_id=excluded.owner_id,
	owner_token=excluded.owner_token,
	claimed_at_utc_ns=excluded.claimed_at_utc_ns`,
		partition, group, ownerID, token, now)
	if err != nil {
		return "", fmt.Errorf("claim ownership: %w", err)
	}
	return token, nil
}

func (s *Store) Ownership(ctx context.Context, partition int32, group string) (checkpoint.Ownership, bool, error) {
	var (
		o         checkpoint.Ownership
		claimedNs int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT owner_id, owner_token, claimed_at_utc_ns
FROM ownership WHERE partition_id = ? AND group_id = ?`,
		partition, group,
	).Scan(&o.OwnerID, &o.Token, &claimedNs)
	if errors.Is(err, sql.ErrNoRows) {
		return checkpoint.Ownership{}, false, nil
	}
	if err != nil {
		return checkpoint.Ownership{}, false, fmt.Errorf("read ownership: %w", err)
	}

	o.Partition = partition
	o.Group = group
	o.ClaimedAt = time.Unix(0, claimedNs).UTC()
	return o, true, nil
}

func (s *Store) ResetGroup(ctx context.Context, group string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cursors WHERE group_id = ?`, group); err != nil {
		return fmt.Errorf("reset cursors: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ownership WHERE group_id = ?`, group); err != nil {
		return fmt.Errorf("reset ownership: %w", err)
	}
	return tx.Commit()
}
