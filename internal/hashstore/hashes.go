package hashstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"setgen/internal/changes"
)

var _ changes.Baseline = (*Store)(nil)

// Load returns the committed snapshot for a pair. found is false when the pair
// has never been committed.
func (s *Store) Load(ctx context.Context, setID, lang string) (changes.Snapshot, bool, error) {
	ctx = ensureContext(ctx)
	snap := changes.Snapshot{SetID: setID, Lang: lang}

	err := s.db.QueryRowContext(ctx,
		`SELECT rollup FROM set_hashes WHERE set_id = ? AND lang = ?`, setID, lang,
	).Scan(&snap.RollUp)
	if errors.Is(err, sql.ErrNoRows) {
		return changes.Snapshot{}, false, nil
	}
	if err != nil {
		return changes.Snapshot{}, false, fmt.Errorf("load roll-up %s/%s: %w", setID, lang, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, hash FROM record_hashes WHERE set_id = ? AND lang = ?`, setID, lang)
	if err != nil {
		return changes.Snapshot{}, false, fmt.Errorf("load record hashes %s/%s: %w", setID, lang, err)
	}
	defer rows.Close()

	snap.Records = make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return changes.Snapshot{}, false, err
		}
		snap.Records[id] = hash
	}
	if err := rows.Err(); err != nil {
		return changes.Snapshot{}, false, err
	}
	return snap, true, nil
}

// Commit replaces the stored state of every given pair in one transaction.
func (s *Store) Commit(ctx context.Context, snaps []changes.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		return s.commitTx(ctx, snaps)
	})
}

func (s *Store) commitTx(ctx context.Context, snaps []changes.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	for _, snap := range snaps {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM record_hashes WHERE set_id = ? AND lang = ?`, snap.SetID, snap.Lang); err != nil {
			return fmt.Errorf("clear record hashes %s/%s: %w", snap.SetID, snap.Lang, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO set_hashes (set_id, lang, rollup, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(set_id, lang) DO UPDATE SET rollup = excluded.rollup, updated_at = excluded.updated_at`,
			snap.SetID, snap.Lang, snap.RollUp, now); err != nil {
			return fmt.Errorf("store roll-up %s/%s: %w", snap.SetID, snap.Lang, err)
		}
		for id, hash := range snap.Records {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO record_hashes (set_id, lang, record_id, hash) VALUES (?, ?, ?, ?)`,
				snap.SetID, snap.Lang, id, hash); err != nil {
				return fmt.Errorf("store record hash %s: %w", id, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit hashes: %w", err)
	}
	return nil
}

// PairSummary describes one committed pair.
type PairSummary struct {
	SetID     string
	Lang      string
	RollUp    string
	Records   int
	UpdatedAt time.Time
}

// Pairs lists every committed pair ordered by set and language.
func (s *Store) Pairs(ctx context.Context) ([]PairSummary, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.set_id, h.lang, h.rollup, h.updated_at,
		       (SELECT COUNT(1) FROM record_hashes r WHERE r.set_id = h.set_id AND r.lang = h.lang)
		FROM set_hashes h
		ORDER BY h.set_id, h.lang`)
	if err != nil {
		return nil, fmt.Errorf("list pairs: %w", err)
	}
	defer rows.Close()

	var out []PairSummary
	for rows.Next() {
		var (
			pair    PairSummary
			updated sql.NullString
		)
		if err := rows.Scan(&pair.SetID, &pair.Lang, &pair.RollUp, &updated, &pair.Records); err != nil {
			return nil, err
		}
		pair.UpdatedAt = parseTime(updated)
		out = append(out, pair)
	}
	return out, rows.Err()
}
