package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type CategoryRow struct {
	ID     int64
	UserID int64
	Name   string
}

type EntryRow struct {
	ID              int64
	UserID          int64
	CategoryID      int64
	Category        string
	TaskName        string
	StartedAt       string
	StoppedAt       sql.NullString
	DurationSeconds sql.NullInt64
	ExportedAt      sql.NullString
}

type CategoryTotalRow struct {
	Category     string
	TotalSeconds int64
}

const insertCategoryIfMissing = `
INSERT OR IGNORE INTO categories (user_id, name) VALUES (?, ?)
`

// InsertCategoryIfMissing returns the number of rows inserted (0 or 1).
func (q *Queries) InsertCategoryIfMissing(ctx context.Context, userID int64, name string) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertCategoryIfMissing, userID, name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listCategories = `
SELECT id, user_id, name FROM categories WHERE user_id = ? ORDER BY id
`

func (q *Queries) ListCategories(ctx context.Context, userID int64) ([]CategoryRow, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CategoryRow
	for rows.Next() {
		var i CategoryRow
		if err := rows.Scan(&i.ID, &i.UserID, &i.Name); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getUserCategoryName = `
SELECT name FROM categories WHERE id = ? AND user_id = ?
`

func (q *Queries) GetUserCategoryName(ctx context.Context, id, userID int64) (string, error) {
	var name string
	err := q.db.QueryRowContext(ctx, getUserCategoryName, id, userID).Scan(&name)
	return name, err
}

const entryColumns = `
SELECT te.id, te.user_id, te.category_id, c.name, te.task_name,
       te.started_at, te.stopped_at, te.duration_seconds, te.exported_at
FROM time_entries te
JOIN categories c ON c.id = te.category_id
`

func scanEntry(s interface{ Scan(...any) error }) (EntryRow, error) {
	var i EntryRow
	err := s.Scan(
		&i.ID,
		&i.UserID,
		&i.CategoryID,
		&i.Category,
		&i.TaskName,
		&i.StartedAt,
		&i.StoppedAt,
		&i.DurationSeconds,
		&i.ExportedAt,
	)
	return i, err
}

func (q *Queries) queryEntries(ctx context.Context, query string, args ...any) ([]EntryRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []EntryRow
	for rows.Next() {
		i, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getActiveEntry = entryColumns + `
WHERE te.user_id = ? AND te.stopped_at IS NULL
ORDER BY te.id DESC
LIMIT 1
`

func (q *Queries) GetActiveEntry(ctx context.Context, userID int64) (EntryRow, error) {
	return scanEntry(q.db.QueryRowContext(ctx, getActiveEntry, userID))
}

const getEntry = entryColumns + `
WHERE te.id = ?
`

func (q *Queries) GetEntry(ctx context.Context, id int64) (EntryRow, error) {
	return scanEntry(q.db.QueryRowContext(ctx, getEntry, id))
}

type CreateEntryParams struct {
	UserID     int64
	CategoryID int64
	TaskName   string
	StartedAt  string
}

const createEntry = `
INSERT INTO time_entries (user_id, category_id, task_name, started_at)
VALUES (?, ?, ?, ?)
RETURNING id
`

func (q *Queries) CreateEntry(ctx context.Context, arg CreateEntryParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createEntry,
		arg.UserID,
		arg.CategoryID,
		arg.TaskName,
		arg.StartedAt,
	).Scan(&id)
	return id, err
}

type StopEntryParams struct {
	ID              int64
	UserID          int64
	StoppedAt       string
	DurationSeconds int64
}

const stopEntry = `
UPDATE time_entries
SET stopped_at = ?, duration_seconds = ?
WHERE id = ? AND user_id = ? AND stopped_at IS NULL
`

// StopEntry returns the number of rows updated (0 if the entry was already stopped).
func (q *Queries) StopEntry(ctx context.Context, arg StopEntryParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, stopEntry,
		arg.StoppedAt,
		arg.DurationSeconds,
		arg.ID,
		arg.UserID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getCategoryTotals = `
SELECT c.name, SUM(te.duration_seconds) AS total
FROM time_entries te
JOIN categories c ON c.id = te.category_id
WHERE te.user_id = ? AND te.stopped_at IS NOT NULL AND te.started_at >= ?
GROUP BY c.id, c.name
ORDER BY total DESC, c.name ASC
`

func (q *Queries) GetCategoryTotals(ctx context.Context, userID int64, since string) ([]CategoryTotalRow, error) {
	rows, err := q.db.QueryContext(ctx, getCategoryTotals, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CategoryTotalRow
	for rows.Next() {
		var i CategoryTotalRow
		if err := rows.Scan(&i.Category, &i.TotalSeconds); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getHistory = entryColumns + `
WHERE te.user_id = ? AND te.stopped_at IS NOT NULL
ORDER BY te.id DESC
LIMIT ?
`

func (q *Queries) GetHistory(ctx context.Context, userID int64, limit int64) ([]EntryRow, error) {
	return q.queryEntries(ctx, getHistory, userID, limit)
}

const getPendingExports = entryColumns + `
WHERE te.stopped_at IS NOT NULL AND te.exported_at IS NULL
ORDER BY te.id ASC
LIMIT ?
`

func (q *Queries) GetPendingExports(ctx context.Context, limit int64) ([]EntryRow, error) {
	return q.queryEntries(ctx, getPendingExports, limit)
}

const markEntryExported = `
UPDATE time_entries SET exported_at = ? WHERE id = ? AND stopped_at IS NOT NULL
`

func (q *Queries) MarkEntryExported(ctx context.Context, id int64, exportedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markEntryExported, exportedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
