package bot

import (
	"fmt"
	"strings"
	"time"

	"timebot/internal/core"
)

const (
	greetingText = "Hello! I'm your time-tracker bot.\n\n" +
		"Use /track to start a timer.\n" +
		"Use /stop to stop it.\n" +
		"Use /help to see all commands."

	pickCategoryText   = "Pick a category:"
	enterTaskText      = "Now type the task name:"
	pickFromButtons    = "Pick a category from the buttons above, or /cancel."
	selectionExpired   = "This selection has expired. Use /track again."
	unknownCategory    = "Unknown category. Use /track again."
	emptyTaskText      = "The task name cannot be empty. Type the task name:"
	taskTooLongText    = "The task name is too long. Type a shorter one:"
	nothingToCancel    = "Nothing to cancel."
	cancelledText      = "Tracking cancelled."
	noActiveToStop     = "No active timer to stop."
	noActiveTimer      = "No active timer."
	noHistoryText      = "No completed entries yet."
	addCategoryUsage   = "Usage: /addcat <name>"
	failureText        = "Something went wrong, please try again."
	historyDateLayout  = "02.01 15:04"
	historyHeaderTitle = "Last entries:"
)

func helpText(windowDays, historyLimit int) string {
	return fmt.Sprintf("/track  - start a new timer\n"+
		"/stop   - stop the active timer\n"+
		"/status - show current timer\n"+
		"/stats  - time per category (%d days)\n"+
		"/history - last %d entries\n"+
		"/addcat <name> - add a category\n"+
		"/cancel - cancel /track\n"+
		"/help   - this message", windowDays, historyLimit)
}

func alreadyRunningText(e *core.Entry) string {
	return fmt.Sprintf("You already have a running timer: %s [%s].\nUse /stop first.", e.TaskName, e.Category)
}

func startedText(e core.Entry) string {
	return fmt.Sprintf("Timer started: %s [%s]", e.TaskName, e.Category)
}

func stoppedText(e *core.Entry) string {
	return fmt.Sprintf("Stopped: %s [%s]\nDuration: %s", e.TaskName, e.Category, core.FormatDuration(*e.DurationSeconds))
}

func statusText(e *core.Entry, now time.Time) string {
	return fmt.Sprintf("Tracking: %s [%s]\nElapsed: %s", e.TaskName, e.Category, core.FormatDuration(e.Elapsed(now)))
}

func statsText(totals []core.CategoryTotal, windowDays int) string {
	if len(totals) == 0 {
		return fmt.Sprintf("No data for the last %d days.", windowDays)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Time per category (last %d days):\n", windowDays)
	for _, t := range totals {
		fmt.Fprintf(&b, "\n  %s: %s", t.Category, core.FormatDuration(t.TotalSeconds))
	}
	return b.String()
}

func historyText(entries []core.Entry) string {
	if len(entries) == 0 {
		return noHistoryText
	}
	var b strings.Builder
	b.WriteString(historyHeaderTitle + "\n")
	for _, e := range entries {
		var d int64
		if e.DurationSeconds != nil {
			d = *e.DurationSeconds
		}
		fmt.Fprintf(&b, "\n  %s | %s | %s | %s",
			e.StartedAt.Format(historyDateLayout), e.Category, e.TaskName, core.FormatDuration(d))
	}
	return b.String()
}
