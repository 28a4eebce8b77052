// Package bot turns chat commands into tracker calls and renders the
// results as plain text. It knows nothing about the chat transport.
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"timebot/internal/core"
	"timebot/internal/log"
	"timebot/internal/session"
)

// Button is one inline keyboard choice; Data comes back in HandleCallback.
type Button struct {
	Text string
	Data string
}

// Reply is what the transport sends back. An empty Text means stay silent.
// Edit asks the transport to replace the message that carried the keyboard.
type Reply struct {
	Text    string
	Buttons []Button
	Edit    bool
}

type Handler struct {
	tracker      core.Tracker
	sessions     *session.Store
	logger       *log.Logger
	now          func() time.Time
	windowDays   int
	historyLimit int
}

type Option func(*Handler)

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(h *Handler) { h.logger = l.WithComponent(log.ComponentBot) }
}

// WithLimits overrides the stats window and history length; values <= 0 keep the defaults.
func WithLimits(windowDays, historyLimit int) Option {
	return func(h *Handler) {
		if windowDays > 0 {
			h.windowDays = windowDays
		}
		if historyLimit > 0 {
			h.historyLimit = historyLimit
		}
	}
}

func NewHandler(tracker core.Tracker, sessions *session.Store, opts ...Option) *Handler {
	h := &Handler{
		tracker:      tracker,
		sessions:     sessions,
		logger:       log.New(log.DefaultConfig()).WithComponent(log.ComponentBot),
		now:          time.Now,
		windowDays:   core.DefaultStatsWindowDays,
		historyLimit: core.DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleMessage dispatches a text message: a /command, or the task name
// while the user is in the middle of /track.
func (h *Handler) HandleMessage(ctx context.Context, user core.UserID, text string) Reply {
	text = strings.TrimSpace(text)
	cmd, args, ok := parseCommand(text)
	if !ok {
		return h.handleText(ctx, user, text)
	}

	switch cmd {
	case "start":
		return h.start(ctx, user)
	case "help":
		return Reply{Text: helpText(h.windowDays, h.historyLimit)}
	case "track":
		return h.track(ctx, user)
	case "cancel":
		return h.cancel(user)
	case "stop":
		return h.stop(ctx, user)
	case "status":
		return h.status(ctx, user)
	case "stats":
		return h.stats(ctx, user)
	case "history":
		return h.history(ctx, user)
	case "addcat":
		return h.addCategory(ctx, user, args)
	default:
		return Reply{}
	}
}

// HandleCallback processes an inline keyboard selection from /track.
func (h *Handler) HandleCallback(ctx context.Context, user core.UserID, data string) Reply {
	if h.sessions.Get(user).Step != session.StepPickingCategory {
		return Reply{Text: selectionExpired, Edit: true}
	}

	categoryID, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		return Reply{Text: unknownCategory, Edit: true}
	}

	categories, err := h.tracker.ListCategories(ctx, user)
	if err != nil {
		return h.fail(ctx, user, "list categories", err)
	}
	for _, c := range categories {
		if c.ID == categoryID {
			h.sessions.ChooseCategory(user, c.ID, c.Name)
			return Reply{Text: enterTaskText, Edit: true}
		}
	}

	h.sessions.Cancel(user)
	return Reply{Text: unknownCategory, Edit: true}
}

func (h *Handler) handleText(ctx context.Context, user core.UserID, text string) Reply {
	st := h.sessions.Get(user)
	switch st.Step {
	case session.StepAwaitingTask:
		return h.enterTask(ctx, user, st, text)
	case session.StepPickingCategory:
		return Reply{Text: pickFromButtons}
	default:
		return Reply{}
	}
}

func (h *Handler) start(ctx context.Context, user core.UserID) Reply {
	if err := h.tracker.EnsureDefaultCategories(ctx, user); err != nil {
		return h.fail(ctx, user, "ensure default categories", err)
	}
	return Reply{Text: greetingText}
}

func (h *Handler) track(ctx context.Context, user core.UserID) Reply {
	active, err := h.tracker.GetActiveEntry(ctx, user)
	if err != nil {
		return h.fail(ctx, user, "get active entry", err)
	}
	if active != nil {
		return Reply{Text: alreadyRunningText(active)}
	}

	categories, err := h.tracker.ListCategories(ctx, user)
	if err != nil {
		return h.fail(ctx, user, "list categories", err)
	}
	if len(categories) == 0 {
		if err := h.tracker.EnsureDefaultCategories(ctx, user); err != nil {
			return h.fail(ctx, user, "ensure default categories", err)
		}
		if categories, err = h.tracker.ListCategories(ctx, user); err != nil {
			return h.fail(ctx, user, "list categories", err)
		}
	}

	buttons := make([]Button, 0, len(categories))
	for _, c := range categories {
		buttons = append(buttons, Button{Text: c.Name, Data: strconv.FormatInt(c.ID, 10)})
	}

	h.sessions.BeginPick(user)
	return Reply{Text: pickCategoryText, Buttons: buttons}
}

func (h *Handler) enterTask(ctx context.Context, user core.UserID, st session.State, text string) Reply {
	entry, err := h.tracker.StartEntry(ctx, user, st.CategoryID, text)
	switch {
	case errors.Is(err, core.ErrEmptyTaskName):
		return Reply{Text: emptyTaskText}
	case errors.Is(err, core.ErrTaskNameTooLong):
		return Reply{Text: taskTooLongText}
	case errors.Is(err, core.ErrActiveEntryExists):
		h.sessions.Complete(user)
		active, getErr := h.tracker.GetActiveEntry(ctx, user)
		if getErr != nil || active == nil {
			return Reply{Text: failureText}
		}
		return Reply{Text: alreadyRunningText(active)}
	case errors.Is(err, core.ErrInvalidInput):
		h.sessions.Complete(user)
		return Reply{Text: unknownCategory}
	case err != nil:
		return h.fail(ctx, user, "start entry", err)
	}

	h.sessions.Complete(user)
	h.logger.InfoContext(ctx, "Timer started",
		log.FieldUserID, int64(user),
		log.FieldEntryID, entry.ID,
		log.FieldCategory, entry.Category)
	return Reply{Text: startedText(entry)}
}

func (h *Handler) cancel(user core.UserID) Reply {
	if !h.sessions.Cancel(user) {
		return Reply{Text: nothingToCancel}
	}
	return Reply{Text: cancelledText}
}

func (h *Handler) stop(ctx context.Context, user core.UserID) Reply {
	entry, err := h.tracker.StopActiveEntry(ctx, user)
	if err != nil {
		return h.fail(ctx, user, "stop entry", err)
	}
	if entry == nil {
		return Reply{Text: noActiveToStop}
	}
	return Reply{Text: stoppedText(entry)}
}

func (h *Handler) status(ctx context.Context, user core.UserID) Reply {
	entry, err := h.tracker.GetActiveEntry(ctx, user)
	if err != nil {
		return h.fail(ctx, user, "get active entry", err)
	}
	if entry == nil {
		return Reply{Text: noActiveTimer}
	}
	return Reply{Text: statusText(entry, h.now())}
}

func (h *Handler) stats(ctx context.Context, user core.UserID) Reply {
	totals, err := h.tracker.GetStats(ctx, user, h.windowDays)
	if err != nil {
		return h.fail(ctx, user, "get stats", err)
	}
	return Reply{Text: statsText(totals, h.windowDays)}
}

func (h *Handler) history(ctx context.Context, user core.UserID) Reply {
	entries, err := h.tracker.GetHistory(ctx, user, h.historyLimit)
	if err != nil {
		return h.fail(ctx, user, "get history", err)
	}
	return Reply{Text: historyText(entries)}
}

func (h *Handler) addCategory(ctx context.Context, user core.UserID, args string) Reply {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return Reply{Text: addCategoryUsage}
	}
	name := strings.ToLower(fields[0])

	added, err := h.tracker.AddCategory(ctx, user, name)
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		return Reply{Text: "Invalid category name: " + strings.TrimPrefix(err.Error(), core.ErrInvalidInput.Error()+": ")}
	case err != nil:
		return h.fail(ctx, user, "add category", err)
	case added:
		return Reply{Text: "Category '" + name + "' added."}
	default:
		return Reply{Text: "Category '" + name + "' already exists."}
	}
}

func (h *Handler) fail(ctx context.Context, user core.UserID, op string, err error) Reply {
	fields := log.NewFields().WithUser(int64(user)).WithOperation(op).WithError(err)
	h.logger.ErrorContext(ctx, "Command failed", fields.ToSlice()...)
	return Reply{Text: failureText}
}

// parseCommand splits "/cmd@botname args" into ("cmd", "args").
func parseCommand(text string) (cmd, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest), head != ""
}
