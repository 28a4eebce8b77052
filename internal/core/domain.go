package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultStatsWindowDays is the trailing window used by stats when none is given.
	DefaultStatsWindowDays = 7
	// DefaultHistoryLimit is the number of completed entries returned by history.
	DefaultHistoryLimit = 10

	maxTaskNameLength     = 200
	maxCategoryNameLength = 64
)

// DefaultCategories is the fixed set every user starts with, in creation order.
var DefaultCategories = []string{"work", "study", "sport", "other"}

type (
	// UserID is the opaque identifier of the front-end user owning the data.
	UserID int64

	Category struct {
		ID     int64
		UserID UserID
		Name   string
	}

	// Entry is a time entry. StoppedAt and DurationSeconds are nil while the
	// entry is active and set together when it is stopped.
	Entry struct {
		ID              int64
		UserID          UserID
		CategoryID      int64
		Category        string
		TaskName        string
		StartedAt       time.Time
		StoppedAt       *time.Time
		DurationSeconds *int64
		// ExportedAt is set once the completed entry reached the spreadsheet.
		ExportedAt *time.Time
	}

	// CategoryTotal is the sum of completed durations for one category.
	CategoryTotal struct {
		Category     string
		TotalSeconds int64
	}
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmptyCategoryName = fmt.Errorf("%w: empty category name", ErrInvalidInput)
	ErrCategoryTooLong   = fmt.Errorf("%w: category name too long (max 64 characters)", ErrInvalidInput)
	ErrEmptyTaskName     = fmt.Errorf("%w: empty task name", ErrInvalidInput)
	ErrTaskNameTooLong   = fmt.Errorf("%w: task name too long (max 200 characters)", ErrInvalidInput)
	ErrUnknownCategory   = fmt.Errorf("%w: category does not belong to user", ErrInvalidInput)

	ErrActiveEntryExists = errors.New("user already has an active entry")
	ErrNotFound          = errors.New("not found")
	ErrStorage           = errors.New("storage fault")
)

// NormalizeCategoryName trims and lowercases a category name and validates it.
func NormalizeCategoryName(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", ErrEmptyCategoryName
	}
	if len(n) > maxCategoryNameLength {
		return "", ErrCategoryTooLong
	}
	return n, nil
}

// NormalizeTaskName trims a task name and validates it.
func NormalizeTaskName(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", ErrEmptyTaskName
	}
	if len(n) > maxTaskNameLength {
		return "", ErrTaskNameTooLong
	}
	return n, nil
}

// Active reports whether the entry has not been stopped yet.
func (e Entry) Active() bool {
	return e.StoppedAt == nil
}

// Elapsed returns the whole seconds between start and stop, or between start
// and now for an active entry. It never returns a negative value.
func (e Entry) Elapsed(now time.Time) int64 {
	if e.DurationSeconds != nil {
		return *e.DurationSeconds
	}
	return ElapsedSeconds(e.StartedAt, now)
}

// ElapsedSeconds is floor(stop - start) in seconds, clamped to zero.
func ElapsedSeconds(start, stop time.Time) int64 {
	d := stop.Sub(start)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}
