package bot

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"timebot/internal/core"
	"timebot/internal/log"
	"timebot/internal/session"
	"timebot/internal/storage"
)

type harness struct {
	h        *Handler
	repo     *storage.SQLiteRepository
	sessions *session.Store
	now      time.Time
	logs     *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hs := &harness{
		now:  time.Date(2026, 6, 10, 14, 30, 0, 0, time.Local),
		logs: &bytes.Buffer{},
	}
	clock := func() time.Time { return hs.now }

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "bot.db"), storage.WithClock(clock))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	logger := log.New(log.Config{Handler: slog.NewTextHandler(hs.logs, nil)})
	hs.repo = repo
	hs.sessions = session.NewStore(15 * time.Minute).WithClock(clock)
	hs.h = NewHandler(repo, hs.sessions, WithClock(clock), WithLogger(logger))
	return hs
}

func (hs *harness) send(t *testing.T, user core.UserID, text string) Reply {
	t.Helper()
	return hs.h.HandleMessage(context.Background(), user, text)
}

func (hs *harness) startTimer(t *testing.T, user core.UserID, category, task string) {
	t.Helper()
	r := hs.send(t, user, "/track")
	for _, b := range r.Buttons {
		if b.Text == category {
			hs.h.HandleCallback(context.Background(), user, b.Data)
			if got := hs.send(t, user, task); !strings.HasPrefix(got.Text, "Timer started") {
				t.Fatalf("task reply = %q", got.Text)
			}
			return
		}
	}
	t.Fatalf("category %q not offered in %+v", category, r.Buttons)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in        string
		cmd, args string
		ok        bool
	}{
		{"/start", "start", "", true},
		{"/addcat Music lessons", "addcat", "Music lessons", true},
		{"/STATS@timebot", "stats", "", true},
		{"/history@timebot  ", "history", "", true},
		{"write report", "", "", false},
		{"/", "", "", false},
	}
	for _, tt := range tests {
		cmd, args, ok := parseCommand(strings.TrimSpace(tt.in))
		if cmd != tt.cmd || args != tt.args || ok != tt.ok {
			t.Errorf("parseCommand(%q) = %q, %q, %v; want %q, %q, %v", tt.in, cmd, args, ok, tt.cmd, tt.args, tt.ok)
		}
	}
}

func TestStartAndHelp(t *testing.T) {
	hs := newHarness(t)

	if r := hs.send(t, 1, "/start"); r.Text != greetingText {
		t.Fatalf("/start = %q", r.Text)
	}
	cats, err := hs.repo.ListCategories(context.Background(), 1)
	if err != nil || len(cats) != 4 {
		t.Fatalf("defaults not created: %v, %v", cats, err)
	}

	help := hs.send(t, 1, "/help").Text
	for _, want := range []string{"/track", "/stop", "/status", "(7 days)", "last 10 entries", "/addcat <name>"} {
		if !strings.Contains(help, want) {
			t.Errorf("help text missing %q", want)
		}
	}
}

func TestTrackFlow(t *testing.T) {
	hs := newHarness(t)
	ctx := context.Background()

	r := hs.send(t, 1, "/track")
	if r.Text != pickCategoryText {
		t.Fatalf("/track = %q", r.Text)
	}
	want := []string{"work", "study", "sport", "other"}
	if len(r.Buttons) != len(want) {
		t.Fatalf("buttons = %+v", r.Buttons)
	}
	for i, b := range r.Buttons {
		if b.Text != want[i] {
			t.Errorf("button %d = %q, want %q", i, b.Text, want[i])
		}
	}

	if got := hs.send(t, 1, "too early"); got.Text != pickFromButtons {
		t.Fatalf("text while picking = %q", got.Text)
	}

	cb := hs.h.HandleCallback(ctx, 1, r.Buttons[0].Data)
	if cb.Text != enterTaskText || !cb.Edit {
		t.Fatalf("callback reply = %+v", cb)
	}

	if got := hs.send(t, 1, "   "); got.Text != emptyTaskText {
		t.Fatalf("blank task reply = %q", got.Text)
	}
	if got := hs.sessions.Get(1).Step; got != session.StepAwaitingTask {
		t.Fatalf("blank task should keep the session, step = %v", got)
	}

	if got := hs.send(t, 1, "  write report "); got.Text != "Timer started: write report [work]" {
		t.Fatalf("start reply = %q", got.Text)
	}
	if got := hs.sessions.Get(1).Step; got != session.StepIdle {
		t.Fatalf("session should be cleared, step = %v", got)
	}

	hs.now = hs.now.Add(65 * time.Second)
	if got := hs.send(t, 1, "/status"); got.Text != "Tracking: write report [work]\nElapsed: 1m 5s" {
		t.Fatalf("/status = %q", got.Text)
	}

	if got := hs.send(t, 1, "/track"); !strings.HasPrefix(got.Text, "You already have a running timer: write report [work].") {
		t.Fatalf("second /track = %q", got.Text)
	}

	hs.now = hs.now.Add(3600 * time.Second)
	if got := hs.send(t, 1, "/stop"); got.Text != "Stopped: write report [work]\nDuration: 1h 1m 5s" {
		t.Fatalf("/stop = %q", got.Text)
	}
	if got := hs.send(t, 1, "/stop"); got.Text != noActiveToStop {
		t.Fatalf("second /stop = %q", got.Text)
	}
	if got := hs.send(t, 1, "/status"); got.Text != noActiveTimer {
		t.Fatalf("/status after stop = %q", got.Text)
	}
}

func TestCancel(t *testing.T) {
	hs := newHarness(t)
	ctx := context.Background()

	if got := hs.send(t, 1, "/cancel"); got.Text != nothingToCancel {
		t.Fatalf("idle /cancel = %q", got.Text)
	}

	r := hs.send(t, 1, "/track")
	if got := hs.send(t, 1, "/cancel"); got.Text != cancelledText {
		t.Fatalf("/cancel while picking = %q", got.Text)
	}
	if cb := hs.h.HandleCallback(ctx, 1, r.Buttons[0].Data); cb.Text != selectionExpired {
		t.Fatalf("callback after cancel = %q", cb.Text)
	}

	r = hs.send(t, 1, "/track")
	hs.h.HandleCallback(ctx, 1, r.Buttons[1].Data)
	if got := hs.send(t, 1, "/cancel"); got.Text != cancelledText {
		t.Fatalf("/cancel while awaiting task = %q", got.Text)
	}
	if got := hs.send(t, 1, "orphan task"); got.Text != "" {
		t.Fatalf("plain text when idle should be ignored, got %q", got.Text)
	}

	active, err := hs.repo.GetActiveEntry(ctx, 1)
	if err != nil || active != nil {
		t.Fatalf("no entry should be created: %v, %v", active, err)
	}
}

func TestCallbackRejectsForeignCategory(t *testing.T) {
	hs := newHarness(t)
	ctx := context.Background()

	hs.send(t, 2, "/start")
	other, _ := hs.repo.ListCategories(ctx, 2)

	hs.send(t, 1, "/track")
	if cb := hs.h.HandleCallback(ctx, 1, strconv.FormatInt(other[0].ID, 10)); cb.Text != unknownCategory {
		t.Fatalf("foreign category callback = %q", cb.Text)
	}

	hs.send(t, 1, "/track")
	if cb := hs.h.HandleCallback(ctx, 1, "not-a-number"); cb.Text != unknownCategory {
		t.Fatalf("malformed callback = %q", cb.Text)
	}
}

func TestSessionExpiry(t *testing.T) {
	hs := newHarness(t)

	r := hs.send(t, 1, "/track")
	hs.h.HandleCallback(context.Background(), 1, r.Buttons[0].Data)

	hs.now = hs.now.Add(16 * time.Minute)
	if got := hs.send(t, 1, "late task"); got.Text != "" {
		t.Fatalf("expired session should ignore text, got %q", got.Text)
	}
}

func TestStatsAndHistory(t *testing.T) {
	hs := newHarness(t)

	if got := hs.send(t, 1, "/stats"); got.Text != "No data for the last 7 days." {
		t.Fatalf("empty /stats = %q", got.Text)
	}
	if got := hs.send(t, 1, "/history"); got.Text != noHistoryText {
		t.Fatalf("empty /history = %q", got.Text)
	}

	hs.startTimer(t, 1, "work", "report")
	hs.now = hs.now.Add(30 * time.Minute)
	hs.send(t, 1, "/stop")

	hs.startTimer(t, 1, "sport", "run")
	hs.now = hs.now.Add(time.Hour + 5*time.Second)
	hs.send(t, 1, "/stop")

	stats := hs.send(t, 1, "/stats").Text
	wantStats := "Time per category (last 7 days):\n\n  sport: 1h 5s\n  work: 30m 0s"
	if stats != wantStats {
		t.Fatalf("/stats = %q, want %q", stats, wantStats)
	}

	history := hs.send(t, 1, "/history").Text
	wantHistory := "Last entries:\n\n  10.06 15:00 | sport | run | 1h 5s\n  10.06 14:30 | work | report | 30m 0s"
	if history != wantHistory {
		t.Fatalf("/history = %q, want %q", history, wantHistory)
	}
}

func TestAddCategory(t *testing.T) {
	hs := newHarness(t)

	tests := []struct {
		text string
		want string
	}{
		{"/addcat", addCategoryUsage},
		{"/addcat   ", addCategoryUsage},
		{"/addcat Music lessons", "Category 'music' added."},
		{"/addcat music", "Category 'music' already exists."},
		{"/addcat " + strings.Repeat("x", 65), "Invalid category name: category name too long (max 64 characters)"},
	}
	for _, tt := range tests {
		if got := hs.send(t, 1, tt.text); got.Text != tt.want {
			t.Errorf("%q -> %q, want %q", tt.text, got.Text, tt.want)
		}
	}

	r := hs.send(t, 1, "/track")
	if last := r.Buttons[len(r.Buttons)-1]; last.Text != "music" {
		t.Fatalf("new category not offered last: %+v", r.Buttons)
	}
}

func TestStorageFaultReportsFailure(t *testing.T) {
	hs := newHarness(t)
	hs.repo.Close()

	if got := hs.send(t, 1, "/stop"); got.Text != failureText {
		t.Fatalf("/stop on closed storage = %q", got.Text)
	}
	if !strings.Contains(hs.logs.String(), "Command failed") {
		t.Fatalf("failure should be logged, logs: %s", hs.logs.String())
	}
}

func TestUnknownCommandIsIgnored(t *testing.T) {
	hs := newHarness(t)
	if got := hs.send(t, 1, "/dance"); got.Text != "" {
		t.Fatalf("unknown command reply = %q", got.Text)
	}
}
