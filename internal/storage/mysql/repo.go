package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"booking_feed/internal/domain"
	"booking_feed/internal/shared"
)

const evictBatch = 1000

// lower bound for "no cursor"; DATETIME cannot hold Go's zero time
var minTime = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// far upper bound for queries without Until
var maxTime = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

func valTime(t time.Time, def time.Time) any {
	if t.IsZero() {
		return def
	}
	return t.UTC()
}

func valDate(d domain.Date) any { return d.String() }

// Repo is the MySQL change buffer. The DSN must not set clientFoundRows:
// Append reads the dedup outcome from the affected-row count.
type Repo struct {
	db     *sql.DB
	clock  *shared.Clock
	window time.Duration
}

func New(db *sql.DB, clock *shared.Clock, dedupWindow time.Duration) *Repo {
	if clock == nil {
		clock = shared.NewClock(nil)
	}
	return &Repo{db: db, clock: clock, window: dedupWindow}
}

func (r *Repo) Append(ctx context.Context, c domain.NewChange) (domain.AppendResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.AppendResult{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := r.clock.Next()
	res, err := tx.ExecContext(ctx, claimDedupSQL, c.LocationID, c.BookingID, now, now.Add(-r.window))
	if err != nil {
		return domain.AppendResult{}, fmt.Errorf("claim dedup key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.AppendResult{}, err
	}
	if n == 0 {
		return domain.AppendResult{Reason: domain.ReasonDuplicate}, nil
	}

	if _, err := tx.ExecContext(ctx, insertChangeSQL,
		c.LocationID,
		c.BookingID,
		string(c.Payload),
		valDate(c.ArrivalDate),
		valDate(c.DepartureDate),
		now,
	); err != nil {
		return domain.AppendResult{}, fmt.Errorf("insert change: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.AppendResult{}, fmt.Errorf("commit: %w", err)
	}
	return domain.AppendResult{Inserted: true, Reason: domain.ReasonInserted}, nil
}

func (r *Repo) Query(ctx context.Context, q domain.ChangeQuery) ([]domain.ChangeRecord, error) {
	from, to := valDate(q.DateFrom), valDate(q.DateTo)
	rows, err := r.db.QueryContext(ctx, queryChangesSQL,
		q.LocationID,
		from, to,
		from, to,
		from, to,
		valTime(q.Since, minTime),
		valTime(q.Until, maxTime),
	)
	if err != nil {
		return nil, err
	}
	return scanChanges(rows)
}

func (r *Repo) Evict(ctx context.Context, ttl time.Duration) (int64, error) {
	now := r.clock.Now()
	removed, err := deleteBatched(ctx, r.db, evictChangesSQL, now.Add(-ttl))
	if err != nil {
		return removed, fmt.Errorf("evict changes: %w", err)
	}
	// dedup keys are only needed for the length of the window
	if _, err := deleteBatched(ctx, r.db, evictDedupSQL, now.Add(-r.window)); err != nil {
		return removed, fmt.Errorf("evict dedup keys: %w", err)
	}
	return removed, nil
}

func deleteBatched(ctx context.Context, db *sql.DB, query string, cutoff time.Time) (int64, error) {
	var total int64
	for {
		res, err := db.ExecContext(ctx, query, cutoff, evictBatch)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
		if n < evictBatch {
			return total, nil
		}
	}
}

func (r *Repo) Stats(ctx context.Context) (domain.BufferStats, error) {
	var st domain.BufferStats
	var oldest, newest sql.NullTime
	if err := r.db.QueryRowContext(ctx, statsSQL).Scan(&st.Count, &oldest, &newest); err != nil {
		return domain.BufferStats{}, err
	}
	if oldest.Valid {
		t := oldest.Time.UTC()
		st.Oldest = &t
	}
	if newest.Valid {
		t := newest.Time.UTC()
		st.Newest = &t
	}
	return st, nil
}

func (r *Repo) Recent(ctx context.Context, locationID *int64, limit int) ([]domain.ChangeRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if locationID != nil {
		rows, err = r.db.QueryContext(ctx, recentByLocationSQL, *locationID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, recentSQL, limit)
	}
	if err != nil {
		return nil, err
	}
	return scanChanges(rows)
}

func scanChanges(rows *sql.Rows) ([]domain.ChangeRecord, error) {
	defer rows.Close()

	var out []domain.ChangeRecord
	for rows.Next() {
		var (
			rec                domain.ChangeRecord
			payload            []byte
			arrival, departure time.Time
			detectedAt         time.Time
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.LocationID,
			&rec.BookingID,
			&payload,
			&arrival,
			&departure,
			&detectedAt,
		); err != nil {
			return nil, err
		}
		rec.Payload = payload
		rec.ArrivalDate = domain.DateOf(arrival)
		rec.DepartureDate = domain.DateOf(departure)
		rec.DetectedAt = detectedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Watermarks persists per-location poll watermarks.
type Watermarks struct{ db *sql.DB }

func NewWatermarks(db *sql.DB) *Watermarks { return &Watermarks{db: db} }

func (w *Watermarks) Get(ctx context.Context, locationID int64) (time.Time, bool, error) {
	var t time.Time
	err := w.db.QueryRowContext(ctx, getWatermarkSQL, locationID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), true, nil
}

func (w *Watermarks) Set(ctx context.Context, locationID int64, t time.Time) error {
	_, err := w.db.ExecContext(ctx, upsertWatermarkSQL, locationID, t.UTC())
	return err
}
