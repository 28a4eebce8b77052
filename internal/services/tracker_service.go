package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"timebot/internal/core"
)

// EventPublisher announces completed entries to the export pipeline.
type EventPublisher interface {
	PublishEntryStopped(ctx context.Context, entryID, userID int64) error
}

// Store is the storage engine surface the service needs.
type Store interface {
	core.Tracker
	Close() error
}

// TrackerService orchestrates tracker operations across SQLite and AMQP.
// Every operation delegates to the store; a successful stop also publishes
// an entry.stopped event without failing the stop if publishing fails.
type TrackerService struct {
	store     Store
	publisher EventPublisher
}

var _ core.Tracker = (*TrackerService)(nil)

// NewTrackerService wires a store and an optional publisher (nil disables events).
func NewTrackerService(store Store, publisher EventPublisher) *TrackerService {
	return &TrackerService{
		store:     store,
		publisher: publisher,
	}
}

func (s *TrackerService) EnsureDefaultCategories(ctx context.Context, user core.UserID) error {
	return s.store.EnsureDefaultCategories(ctx, user)
}

func (s *TrackerService) ListCategories(ctx context.Context, user core.UserID) ([]core.Category, error) {
	return s.store.ListCategories(ctx, user)
}

func (s *TrackerService) AddCategory(ctx context.Context, user core.UserID, name string) (bool, error) {
	return s.store.AddCategory(ctx, user, name)
}

func (s *TrackerService) StartEntry(ctx context.Context, user core.UserID, categoryID int64, taskName string) (core.Entry, error) {
	return s.store.StartEntry(ctx, user, categoryID, taskName)
}

func (s *TrackerService) GetActiveEntry(ctx context.Context, user core.UserID) (*core.Entry, error) {
	return s.store.GetActiveEntry(ctx, user)
}

// StopActiveEntry stops the user's active entry and publishes it for export.
func (s *TrackerService) StopActiveEntry(ctx context.Context, user core.UserID) (*core.Entry, error) {
	entry, err := s.store.StopActiveEntry(ctx, user)
	if err != nil || entry == nil {
		return entry, err
	}

	if err := s.publishStopped(ctx, entry); err != nil {
		// The entry is stopped locally; the export sweep picks it up later
		slog.ErrorContext(ctx, "Failed to publish entry stopped message",
			"entry_id", entry.ID,
			"user_id", int64(user),
			"error", err)
	}

	return entry, nil
}

func (s *TrackerService) GetStats(ctx context.Context, user core.UserID, windowDays int) ([]core.CategoryTotal, error) {
	return s.store.GetStats(ctx, user, windowDays)
}

func (s *TrackerService) GetHistory(ctx context.Context, user core.UserID, limit int) ([]core.Entry, error) {
	return s.store.GetHistory(ctx, user, limit)
}

func (s *TrackerService) publishStopped(ctx context.Context, entry *core.Entry) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not available, skipping entry stopped message",
			"entry_id", entry.ID)
		return nil
	}
	return s.publisher.PublishEntryStopped(ctx, entry.ID, int64(entry.UserID))
}

// Close closes the store and, when it supports it, the publisher.
func (s *TrackerService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(interface{ Close() error }); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close tracker service: %w", errors.Join(errs...))
	}
	return nil
}
