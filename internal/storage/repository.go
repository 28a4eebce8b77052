package storage

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

	"timebot/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timeLayout is fixed width so lexical order on the TEXT columns follows
// local wall-clock order. The numeric offset pins the instant when a wall
// time repeats as clocks fall back.
const (
	timeLayout       = "2006-01-02T15:04:05.000000-07:00"
	legacyTimeLayout = "2006-01-02T15:04:05.000000"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

// Option customizes a repository.
type Option func(*SQLiteRepository)

// WithClock replaces time.Now as the source of start and stop timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) {
		r.now = now
	}
}

var _ core.Tracker = (*SQLiteRepository)(nil)

// DSN builds the driver connection string used for both the repository and migrations.
func DSN(dbPath string) string {
	return "file:" + dbPath +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(repo)
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// EnsureDefaultCategories inserts any default category the user is missing.
func (r *SQLiteRepository) EnsureDefaultCategories(ctx context.Context, user core.UserID) error {
	inserted := int64(0)
	err := r.withTx(ctx, "ensure default categories", func(q *Queries) error {
		for _, name := range core.DefaultCategories {
			n, err := q.InsertCategoryIfMissing(ctx, int64(user), name)
			if err != nil {
				return storageErr("insert default category", err)
			}
			inserted += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	if inserted > 0 {
		slog.InfoContext(ctx, "Default categories created", "user_id", user, "inserted", inserted)
	}
	return nil
}

// ListCategories returns the user's categories in creation order.
func (r *SQLiteRepository) ListCategories(ctx context.Context, user core.UserID) ([]core.Category, error) {
	rows, err := r.queries.ListCategories(ctx, int64(user))
	if err != nil {
		return nil, storageErr("list categories", err)
	}

	categories := make([]core.Category, len(rows))
	for i, row := range rows {
		categories[i] = core.Category{
			ID:     row.ID,
			UserID: core.UserID(row.UserID),
			Name:   row.Name,
		}
	}
	return categories, nil
}

// AddCategory stores a normalized category name. It reports false when the
// user already has a category with that name.
func (r *SQLiteRepository) AddCategory(ctx context.Context, user core.UserID, name string) (bool, error) {
	normalized, err := core.NormalizeCategoryName(name)
	if err != nil {
		return false, err
	}

	n, err := r.queries.InsertCategoryIfMissing(ctx, int64(user), normalized)
	if err != nil {
		return false, storageErr("add category", err)
	}
	if n == 0 {
		return false, nil
	}

	slog.InfoContext(ctx, "Category added", "user_id", user, "category", normalized)
	return true, nil
}

// StartEntry creates an active entry for the user starting now. The category
// must belong to the user and the user must not have an active entry.
func (r *SQLiteRepository) StartEntry(ctx context.Context, user core.UserID, categoryID int64, taskName string) (core.Entry, error) {
	task, err := core.NormalizeTaskName(taskName)
	if err != nil {
		return core.Entry{}, err
	}

	var entry core.Entry
	err = r.withTx(ctx, "start entry", func(q *Queries) error {
		category, err := q.GetUserCategoryName(ctx, categoryID, int64(user))
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrUnknownCategory
		}
		if err != nil {
			return storageErr("lookup category", err)
		}

		if _, err := q.GetActiveEntry(ctx, int64(user)); err == nil {
			return core.ErrActiveEntryExists
		} else if !errors.Is(err, sql.ErrNoRows) {
			return storageErr("check active entry", err)
		}

		startedAt := r.now().In(time.Local)
		id, err := q.CreateEntry(ctx, CreateEntryParams{
			UserID:     int64(user),
			CategoryID: categoryID,
			TaskName:   task,
			StartedAt:  formatTime(startedAt),
		})
		if isUniqueViolation(err) {
			return core.ErrActiveEntryExists
		}
		if err != nil {
			return storageErr("create entry", err)
		}

		entry = core.Entry{
			ID:         id,
			UserID:     user,
			CategoryID: categoryID,
			Category:   category,
			TaskName:   task,
			StartedAt:  truncateToLayout(startedAt),
		}
		return nil
	})
	if err != nil {
		return core.Entry{}, err
	}

	slog.InfoContext(ctx, "Entry started",
		"user_id", user,
		"entry_id", entry.ID,
		"category", entry.Category,
		"task", entry.TaskName)
	return entry, nil
}

// GetActiveEntry returns the user's running entry, or nil when there is none.
func (r *SQLiteRepository) GetActiveEntry(ctx context.Context, user core.UserID) (*core.Entry, error) {
	row, err := r.queries.GetActiveEntry(ctx, int64(user))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get active entry", err)
	}

	entry, err := entryFromRow(row)
	if err != nil {
		return nil, storageErr("decode active entry", err)
	}
	return &entry, nil
}

// StopActiveEntry stops the user's running entry and returns it completed,
// or nil when nothing is running. Stop time and duration are written by a
// single UPDATE.
func (r *SQLiteRepository) StopActiveEntry(ctx context.Context, user core.UserID) (*core.Entry, error) {
	var stopped *core.Entry
	err := r.withTx(ctx, "stop active entry", func(q *Queries) error {
		row, err := q.GetActiveEntry(ctx, int64(user))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return storageErr("get active entry", err)
		}

		entry, err := entryFromRow(row)
		if err != nil {
			return storageErr("decode active entry", err)
		}

		stoppedAt := truncateToLayout(r.now().In(time.Local))
		duration := core.ElapsedSeconds(entry.StartedAt, stoppedAt)

		n, err := q.StopEntry(ctx, StopEntryParams{
			ID:              entry.ID,
			UserID:          int64(user),
			StoppedAt:       formatTime(stoppedAt),
			DurationSeconds: duration,
		})
		if err != nil {
			return storageErr("stop entry", err)
		}
		if n != 1 {
			return storageErr("stop entry", fmt.Errorf("entry %d: %d rows updated", entry.ID, n))
		}

		entry.StoppedAt = &stoppedAt
		entry.DurationSeconds = &duration
		stopped = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	if stopped != nil {
		slog.InfoContext(ctx, "Entry stopped",
			"user_id", user,
			"entry_id", stopped.ID,
			"category", stopped.Category,
			"duration_seconds", *stopped.DurationSeconds)
	}
	return stopped, nil
}

// GetStats sums completed entries started within the trailing window, per
// category, largest total first.
func (r *SQLiteRepository) GetStats(ctx context.Context, user core.UserID, windowDays int) ([]core.CategoryTotal, error) {
	if windowDays <= 0 {
		windowDays = core.DefaultStatsWindowDays
	}
	since := r.now().In(time.Local).AddDate(0, 0, -windowDays)

	rows, err := r.queries.GetCategoryTotals(ctx, int64(user), formatTime(since))
	if err != nil {
		return nil, storageErr("get category totals", err)
	}

	totals := make([]core.CategoryTotal, len(rows))
	for i, row := range rows {
		totals[i] = core.CategoryTotal{
			Category:     row.Category,
			TotalSeconds: row.TotalSeconds,
		}
	}
	return totals, nil
}

// GetHistory returns up to limit completed entries, most recent first.
func (r *SQLiteRepository) GetHistory(ctx context.Context, user core.UserID, limit int) ([]core.Entry, error) {
	if limit <= 0 {
		limit = core.DefaultHistoryLimit
	}

	rows, err := r.queries.GetHistory(ctx, int64(user), int64(limit))
	if err != nil {
		return nil, storageErr("get history", err)
	}
	return entriesFromRows(rows)
}

// GetEntry retrieves a single entry by ID regardless of owner.
func (r *SQLiteRepository) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	row, err := r.queries.GetEntry(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, fmt.Errorf("entry %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Entry{}, storageErr("get entry", err)
	}

	entry, err := entryFromRow(row)
	if err != nil {
		return core.Entry{}, storageErr("decode entry", err)
	}
	return entry, nil
}

// PendingExports returns completed entries not yet exported, oldest first.
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]core.Entry, error) {
	rows, err := r.queries.GetPendingExports(ctx, int64(limit))
	if err != nil {
		return nil, storageErr("get pending exports", err)
	}
	return entriesFromRows(rows)
}

// MarkExported records that a completed entry has been exported.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64) error {
	n, err := r.queries.MarkEntryExported(ctx, id, formatTime(r.now().In(time.Local)))
	if err != nil {
		return storageErr("mark entry exported", err)
	}
	if n == 0 {
		return fmt.Errorf("completed entry %d: %w", id, core.ErrNotFound)
	}

	slog.DebugContext(ctx, "Entry marked as exported", "entry_id", id)
	return nil
}

func (r *SQLiteRepository) withTx(ctx context.Context, op string, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op+": begin", err)
	}
	defer tx.Rollback()

	if err := fn(r.queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return core.ErrActiveEntryExists
		}
		return storageErr(op+": commit", err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", core.ErrStorage, op, err)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE"))
}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

// parseTime reads timestamps with an offset, and falls back to local wall
// time for rows written before the offset was stored.
func parseTime(s string) (time.Time, error) {
	if len(s) == len(legacyTimeLayout) {
		return time.ParseInLocation(legacyTimeLayout, s, time.Local)
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(time.Local), nil
}

// truncateToLayout drops precision the TEXT column cannot hold so returned
// values equal what a later read produces.
func truncateToLayout(t time.Time) time.Time {
	return t.Truncate(time.Microsecond)
}

func entryFromRow(row EntryRow) (core.Entry, error) {
	startedAt, err := parseTime(row.StartedAt)
	if err != nil {
		return core.Entry{}, fmt.Errorf("parse started_at %q: %w", row.StartedAt, err)
	}

	entry := core.Entry{
		ID:         row.ID,
		UserID:     core.UserID(row.UserID),
		CategoryID: row.CategoryID,
		Category:   row.Category,
		TaskName:   row.TaskName,
		StartedAt:  startedAt,
	}

	if row.StoppedAt.Valid {
		stoppedAt, err := parseTime(row.StoppedAt.String)
		if err != nil {
			return core.Entry{}, fmt.Errorf("parse stopped_at %q: %w", row.StoppedAt.String, err)
		}
		entry.StoppedAt = &stoppedAt
	}
	if row.DurationSeconds.Valid {
		d := row.DurationSeconds.Int64
		entry.DurationSeconds = &d
	}
	if row.ExportedAt.Valid {
		exportedAt, err := parseTime(row.ExportedAt.String)
		if err != nil {
			return core.Entry{}, fmt.Errorf("parse exported_at %q: %w", row.ExportedAt.String, err)
		}
		entry.ExportedAt = &exportedAt
	}
	return entry, nil
}

func entriesFromRows(rows []EntryRow) ([]core.Entry, error) {
	entries := make([]core.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := entryFromRow(row)
		if err != nil {
			return nil, storageErr("decode entry", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
