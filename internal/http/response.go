package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"timebot/internal/core"
	"timebot/internal/log"
)

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type categoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type addCategoryResponse struct {
	Name    string `json:"name"`
	Created bool   `json:"created"`
}

type entryResponse struct {
	ID              int64      `json:"id"`
	CategoryID      int64      `json:"category_id"`
	Category        string     `json:"category"`
	TaskName        string     `json:"task_name"`
	StartedAt       time.Time  `json:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
	Duration        string     `json:"duration,omitempty"`
}

type categoryTotalResponse struct {
	Category     string `json:"category"`
	TotalSeconds int64  `json:"total_seconds"`
	Total        string `json:"total"`
}

func toCategories(cats []core.Category) []categoryResponse {
	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryResponse{ID: c.ID, Name: c.Name})
	}
	return out
}

func toEntry(e core.Entry) entryResponse {
	resp := entryResponse{
		ID:              e.ID,
		CategoryID:      e.CategoryID,
		Category:        e.Category,
		TaskName:        e.TaskName,
		StartedAt:       e.StartedAt,
		StoppedAt:       e.StoppedAt,
		DurationSeconds: e.DurationSeconds,
	}
	if e.DurationSeconds != nil {
		resp.Duration = core.FormatDuration(*e.DurationSeconds)
	}
	return resp
}

func toEntries(entries []core.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntry(e))
	}
	return out
}

func toTotals(totals []core.CategoryTotal) []categoryTotalResponse {
	out := make([]categoryTotalResponse, 0, len(totals))
	for _, t := range totals {
		out = append(out, categoryTotalResponse{
			Category:     t.Category,
			TotalSeconds: t.TotalSeconds,
			Total:        core.FormatDuration(t.TotalSeconds),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy onto status codes. Storage faults are
// logged and reported without internal detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	msg := err.Error()
	switch {
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrInvalidInput):
		status = http.StatusUnprocessableEntity
		msg = strings.TrimPrefix(msg, core.ErrInvalidInput.Error()+": ")
	case errors.Is(err, core.ErrActiveEntryExists):
		status = http.StatusConflict
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
		msg = "internal error"
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
