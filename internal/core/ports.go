package core

import "context"

// Tracker is the operation set front-ends drive. It is implemented by the
// SQLite repository and by the tracker service that wraps it.
type Tracker interface {
	EnsureDefaultCategories(ctx context.Context, user UserID) error
	ListCategories(ctx context.Context, user UserID) ([]Category, error)
	AddCategory(ctx context.Context, user UserID, name string) (bool, error)
	StartEntry(ctx context.Context, user UserID, categoryID int64, taskName string) (Entry, error)
	GetActiveEntry(ctx context.Context, user UserID) (*Entry, error)
	StopActiveEntry(ctx context.Context, user UserID) (*Entry, error)
	GetStats(ctx context.Context, user UserID, windowDays int) ([]CategoryTotal, error)
	GetHistory(ctx context.Context, user UserID, limit int) ([]Entry, error)
}
