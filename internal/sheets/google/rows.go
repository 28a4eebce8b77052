package google

import (
	"errors"
	"fmt"
	"strings"

	"timebot/internal/core"
)

const cellTimeLayout = "2006-01-02 15:04:05"

// Header is the first row of a freshly created export sheet.
var Header = []any{"Started", "Stopped", "User", "Category", "Task", "Duration (s)", "Duration"}

var errEntryActive = errors.New("cannot export an active entry")

// entryRow renders a completed entry in Header column order.
func entryRow(e core.Entry) ([]any, error) {
	if e.Active() {
		return nil, fmt.Errorf("entry %d: %w", e.ID, errEntryActive)
	}
	return []any{
		e.StartedAt.Format(cellTimeLayout),
		e.StoppedAt.Format(cellTimeLayout),
		int64(e.UserID),
		e.Category,
		e.TaskName,
		*e.DurationSeconds,
		core.FormatDuration(*e.DurationSeconds),
	}, nil
}

// appendRange covers the whole table so the API appends after the last row.
func appendRange(sheetName string) string {
	return fmt.Sprintf("%s!A:%c", quoteSheetName(sheetName), 'A'+len(Header)-1)
}

// quoteSheetName wraps names that contain spaces or quotes, per A1 notation.
func quoteSheetName(name string) string {
	if !strings.ContainsAny(name, " '!") {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
