package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/raskol/raskol/internal/raskol"
)

// isBusy reports whether err represents SQLite failing to acquire the
// writer lock within busy_timeout.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func wrapBusy(err error) error {
	if isBusy(err) {
		return raskol.ErrStoreBusy
	}
	return err
}

// RecordHit atomically upserts the hits row for uid and returns the
// pre-update (count_of_all, time_of_last). The read and the write happen in
// one transaction on the single-writer connection so a concurrent RecordHit
// for the same uid cannot observe a half-applied update.
func (s *Store) RecordHit(ctx context.Context, uid string, now int64) (prevCount uint64, prevTime int64, err error) {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, wrapBusy(err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT count_of_all, time_of_last FROM hits WHERE uid = ?`, uid)
	scanErr := row.Scan(&prevCount, &prevTime)
	switch {
	case errors.Is(scanErr, sql.ErrNoRows):
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO hits (uid, count_of_all, time_of_last) VALUES (?, 1, ?)`, uid, now); err != nil {
			return 0, 0, wrapBusy(err)
		}
		prevCount, prevTime = 0, 0
	case scanErr != nil:
		return 0, 0, wrapBusy(scanErr)
	default:
		if _, err = tx.ExecContext(ctx,
			`UPDATE hits SET count_of_all = count_of_all + 1, time_of_last = ? WHERE uid = ?`, now, uid); err != nil {
			return 0, 0, wrapBusy(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, wrapBusy(err)
	}
	return prevCount, prevTime, nil
}

// AddTokens upserts the (uid, date) token total, adding tokens to any
// existing total. The insert-or-add is one statement, so it is atomic with
// respect to concurrent AddTokens calls for the same key without an
// explicit transaction.
func (s *Store) AddTokens(ctx context.Context, uid, date string, tokens int64) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO tokens (uid, date, total) VALUES (?, ?, ?)
		 ON CONFLICT(uid, date) DO UPDATE SET total = total + excluded.total`,
		uid, date, tokens,
	)
	return wrapBusy(err)
}

// StatsFor returns uid's current hit count, today's UTC token total, and
// the full per-day history in descending date order.
func (s *Store) StatsFor(ctx context.Context, uid string, today string) (raskol.Stats, error) {
	stats := raskol.Stats{UID: uid}

	var hitCount uint64
	err := s.read.QueryRowContext(ctx, `SELECT count_of_all FROM hits WHERE uid = ?`, uid).Scan(&hitCount)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Unknown uid: no hit has been recorded for it yet, so the
		// counters stay zero.
	case err != nil:
		return stats, wrapBusy(err)
	default:
		stats.HitCount = hitCount
	}

	rows, err := s.read.QueryContext(ctx,
		`SELECT date, total FROM tokens WHERE uid = ? ORDER BY date DESC`, uid)
	if err != nil {
		return stats, wrapBusy(err)
	}
	defer rows.Close()

	for rows.Next() {
		var td raskol.TokenDay
		td.UID = uid
		var total int64
		if err := rows.Scan(&td.Date, &total); err != nil {
			return stats, err
		}
		td.Total = uint64(total)
		stats.PerDay = append(stats.PerDay, td)
		if td.Date == today {
			stats.TodayTokens = td.Total
		}
	}
	return stats, rows.Err()
}

// TotalStats returns the same shape as StatsFor for every known uid.
func (s *Store) TotalStats(ctx context.Context, today string) ([]raskol.Stats, error) {
	rows, err := s.read.QueryContext(ctx, `SELECT uid, count_of_all FROM hits ORDER BY uid`)
	if err != nil {
		return nil, wrapBusy(err)
	}
	defer rows.Close()

	var uids []string
	counts := make(map[string]uint64)
	for rows.Next() {
		var uid string
		var count uint64
		if err := rows.Scan(&uid, &count); err != nil {
			return nil, err
		}
		uids = append(uids, uid)
		counts[uid] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]raskol.Stats, 0, len(uids))
	for _, uid := range uids {
		st, err := s.StatsFor(ctx, uid, today)
		if err != nil {
			return nil, fmt.Errorf("stats for %q: %w", uid, err)
		}
		st.HitCount = counts[uid]
		out = append(out, st)
	}
	return out, nil
}
