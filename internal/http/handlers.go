package http

import (
	"fmt"
	"net/http"

	"timebot/internal/core"
)

type addCategoryRequest struct {
	Name string `json:"name"`
}

type startEntryRequest struct {
	CategoryID int64  `json:"category_id"`
	TaskName   string `json:"task_name"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	user, err := parseUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	cats, err := s.tracker.ListCategories(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategories(cats))
}

func (s *Server) handleEnsureDefaults(w http.ResponseWriter, r *http.Request) {
	user, err := parseUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.tracker.EnsureDefaultCategories(r.Context(), user); err != nil {
		writeError(w, r, err)
		return
	}
	cats, err := s.tracker.ListCategories(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategories(cats))
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	user, err := parseUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req addCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.tracker.AddCategory(r.Context(), user, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	name, _ := core.NormalizeCategoryName(req.Name)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, addCategoryResponse{Name: name, Created: created})
}

func (s *Server) handleStartEntry(w http.ResponseWriter, r *http.Request) {
	user, err := parseUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req startEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := s.tracker.StartEntry(r.Context(), user, req.CategoryID, req.TaskName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntry(entry))
}

func (s *Server) handleGetActive(w http.ResponseWriter, r *http.Request) {
	user, err := parseUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := s.tracker.GetActiveEntry(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entry == nil {
		writeError(w, r, fmt.Errorf("active entry: %w", core.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, toEntry(*entry))
}

func (s *Server) handleStopActive(w http.ResponseWriter, r *http.Request) {
	user, err := parseUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := s.tracker.StopActiveEntry(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entry == nil {
		writeError(w, r, fmt.Errorf("active entry: %w", core.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, toEntry(*entry))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	user, err := parseUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	days, err := queryInt(r, "days")
	if err != nil {
		writeError(w, r, err)
		return
	}

	totals, err := s.tracker.GetStats(r.Context(), user, days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTotals(totals))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user, err := parseUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, err := s.tracker.GetHistory(r.Context(), user, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntries(entries))
}
