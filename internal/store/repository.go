// Package store persists the dashboard documents in PostgreSQL JSONB columns and publishes a
// change notification after every write.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gymops/gymops/internal/calendar"
	"github.com/gymops/gymops/internal/members"
	"github.com/gymops/gymops/internal/platform/db"
	"github.com/gymops/gymops/internal/ranking"
	"github.com/gymops/gymops/internal/schedule"
	"github.com/gymops/gymops/internal/shared"
)

//go:embed schema.sql
var schemaSQL string

// ErrDuplicateChange indicates a change record id that was already appended.
var ErrDuplicateChange = errors.New("store: duplicate change record")

// Repository reads and writes the dashboard documents.
type Repository struct {
	pool     *pgxpool.Pool
	notifier *Notifier
}

// NewRepository wires the pool and an optional change notifier.
func NewRepository(pool *pgxpool.Pool, notifier *Notifier) *Repository {
	return &Repository{pool: pool, notifier: notifier}
}

// EnsureSchema creates the tables when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Centers lists every center ordered by id.
func (r *Repository) Centers(ctx context.Context) ([]calendar.Center, error) {
	rows, err := r.pool.Query(ctx, `SELECT doc FROM centers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: centers: %w", err)
	}
	return collectDocs[calendar.Center](rows)
}

// SaveCenter upserts a center document.
func (r *Repository) SaveCenter(ctx context.Context, center calendar.Center) error {
	doc, err := json.Marshal(center)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO centers (id, doc) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`, center.ID, doc)
	if err != nil {
		return fmt.Errorf("store: save center: %w", err)
	}
	r.publish(ctx, SourceCenters, "")
	return nil
}

// Catalog returns the schedules in creation order.
func (r *Repository) Catalog(ctx context.Context) (schedule.Catalog, error) {
	rows, err := r.pool.Query(ctx, `SELECT doc FROM schedules ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("store: schedules: %w", err)
	}
	list, err := collectDocs[schedule.Schedule](rows)
	if err != nil {
		return nil, err
	}
	return schedule.Catalog(list), nil
}

// SaveSchedule upserts a schedule after checking the resulting catalog stays valid.
func (r *Repository) SaveSchedule(ctx context.Context, s schedule.Schedule) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT doc FROM schedules WHERE id <> $1 ORDER BY seq`, s.ID)
		if err != nil {
			return err
		}
		others, err := collectDocs[schedule.Schedule](rows)
		if err != nil {
			return err
		}
		if err := schedule.Catalog(append(others, s)).Validate(); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		doc, err := json.Marshal(s)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
INSERT INTO schedules (id, doc) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`, s.ID, doc)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: save schedule: %w", err)
	}
	r.publish(ctx, SourceSchedules, "")
	return nil
}

// Exceptions returns every stored fiscal year of exception dates.
func (r *Repository) Exceptions(ctx context.Context) ([]calendar.Exceptions, error) {
	rows, err := r.pool.Query(ctx, `SELECT doc FROM exception_sets ORDER BY year`)
	if err != nil {
		return nil, fmt.Errorf("store: exceptions: %w", err)
	}
	return collectDocs[calendar.Exceptions](rows)
}

// SaveExceptions replaces the exception sets of one fiscal year.
func (r *Repository) SaveExceptions(ctx context.Context, set calendar.Exceptions) error {
	doc, err := json.Marshal(set)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO exception_sets (year, doc) VALUES ($1, $2)
ON CONFLICT (year) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`, set.Year, doc)
	if err != nil {
		return fmt.Errorf("store: save exceptions: %w", err)
	}
	r.publish(ctx, SourceExceptions, "")
	return nil
}

// Overrides loads every per-date override document.
func (r *Repository) Overrides(ctx context.Context) (schedule.Overrides, error) {
	rows, err := r.pool.Query(ctx, `SELECT date_key, sessions FROM overrides`)
	if err != nil {
		return nil, fmt.Errorf("store: overrides: %w", err)
	}
	defer rows.Close()
	out := make(schedule.Overrides)
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var list []schedule.Session
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("store: decode override %s: %w", key, err)
		}
		out[key] = list
	}
	return out, rows.Err()
}

// ApplyEdit stores the override list produced by an edit and appends its change record in one
// transaction. A restore drops the override instead.
func (r *Repository) ApplyEdit(ctx context.Context, edit schedule.Edit) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if edit.Restore {
			if _, err := tx.Exec(ctx, `DELETE FROM overrides WHERE date_key = $1`, edit.Date); err != nil {
				return err
			}
		} else {
			doc, err := json.Marshal(edit.List)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
INSERT INTO overrides (date_key, sessions) VALUES ($1, $2)
ON CONFLICT (date_key) DO UPDATE SET sessions = EXCLUDED.sessions, updated_at = now()`, edit.Date, doc); err != nil {
				return err
			}
		}
		return appendChange(ctx, tx, edit.Change)
	})
	if err != nil {
		return fmt.Errorf("store: apply edit %s: %w", edit.Date, err)
	}
	r.publish(ctx, SourceOverrides, edit.Date)
	return nil
}

func appendChange(ctx context.Context, tx pgx.Tx, change schedule.ChangeRecord) error {
	original, err := nullableJSON(change.Original)
	if err != nil {
		return err
	}
	next, err := nullableJSON(change.New)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO session_changes (id, date_key, session_index, action, reason, original, new_session, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		change.ID, change.Date, change.SessionIndex, string(change.Action), change.Reason, original, next, change.Timestamp)
	if isUniqueViolation(err) {
		return ErrDuplicateChange
	}
	return err
}

// Changes returns the change log of a date, oldest first.
func (r *Repository) Changes(ctx context.Context, date string) ([]schedule.ChangeRecord, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, date_key, session_index, action, reason, original, new_session, created_at
FROM session_changes WHERE date_key = $1 ORDER BY created_at, id`, date)
	if err != nil {
		return nil, fmt.Errorf("store: changes: %w", err)
	}
	defer rows.Close()
	out := make([]schedule.ChangeRecord, 0)
	for rows.Next() {
		var rec schedule.ChangeRecord
		var action string
		var original, next []byte
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.SessionIndex, &action, &rec.Reason, &original, &next, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.Action = schedule.Action(action)
		if rec.Original, err = decodeSession(original); err != nil {
			return nil, err
		}
		if rec.New, err = decodeSession(next); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const memberColumns = `id, name, sessions, total_sessions, first_session, last_session, days_since_last_session, ranking_cache`

// Members returns the roster ordered by id.
func (r *Repository) Members(ctx context.Context) ([]members.Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+memberColumns+` FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: members: %w", err)
	}
	defer rows.Close()
	out := make([]members.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Member loads one member.
func (r *Repository) Member(ctx context.Context, id string) (members.Member, error) {
	m, err := scanMember(r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return members.Member{}, fmt.Errorf("store: member %s: %w", id, shared.ErrNotFound)
	}
	return m, err
}

// SaveMember upserts a member. Derived counters are stored as given; callers run Recompute first.
// The ranking cache column is owned by the ranking job and left untouched.
func (r *Repository) SaveMember(ctx context.Context, m members.Member) error {
	sessions, err := json.Marshal(m.Sessions)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO members (id, name, sessions, total_sessions, first_session, last_session, days_since_last_session)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    sessions = EXCLUDED.sessions,
    total_sessions = EXCLUDED.total_sessions,
    first_session = EXCLUDED.first_session,
    last_session = EXCLUDED.last_session,
    days_since_last_session = EXCLUDED.days_since_last_session,
    updated_at = now()`,
		m.ID, m.Name, sessions, m.TotalSessions, m.FirstSession, m.LastSession, m.DaysSinceLastSession)
	if err != nil {
		return fmt.Errorf("store: save member: %w", err)
	}
	r.publish(ctx, SourceMembers, "")
	return nil
}

// WriteRankingBatch overwrites the ranking cache of every member in batch within one
// transaction. It does not publish a change: the cache is advisory and not part of the
// derived chain inputs.
func (r *Repository) WriteRankingBatch(ctx context.Context, batch []ranking.Update) error {
	if len(batch) == 0 {
		return nil
	}
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		queued := &pgx.Batch{}
		const query = `UPDATE members SET ranking_cache = $2, updated_at = now() WHERE id = $1`
		for _, u := range batch {
			doc, err := json.Marshal(u.Cache)
			if err != nil {
				return err
			}
			queued.Queue(query, u.MemberID, doc)
		}
		results := tx.SendBatch(ctx, queued)
		for range batch {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return err
			}
		}
		return results.Close()
	})
}

func (r *Repository) publish(ctx context.Context, source Source, date string) {
	if r.notifier == nil {
		return
	}
	r.notifier.Publish(ctx, Change{Source: source, Date: date})
}

func scanMember(row pgx.Row) (members.Member, error) {
	var m members.Member
	var sessions, cache []byte
	if err := row.Scan(&m.ID, &m.Name, &sessions, &m.TotalSessions, &m.FirstSession, &m.LastSession, &m.DaysSinceLastSession, &cache); err != nil {
		return members.Member{}, err
	}
	if len(sessions) > 0 {
		if err := json.Unmarshal(sessions, &m.Sessions); err != nil {
			return members.Member{}, fmt.Errorf("store: decode sessions of %s: %w", m.ID, err)
		}
	}
	if len(cache) > 0 {
		m.RankingCache = new(members.RankingCache)
		if err := json.Unmarshal(cache, m.RankingCache); err != nil {
			return members.Member{}, fmt.Errorf("store: decode ranking cache of %s: %w", m.ID, err)
		}
	}
	return m, nil
}

func collectDocs[T any](rows pgx.Rows) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("store: decode document: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullableJSON(s *schedule.Session) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func decodeSession(raw []byte) (*schedule.Session, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s schedule.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("store: decode session: %w", err)
	}
	return &s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
