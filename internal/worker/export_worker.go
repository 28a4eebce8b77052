package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"timebot/internal/amqp"
	"timebot/internal/core"
	"timebot/internal/log"
	"timebot/internal/sheets"
)

// EntrySource is the storage surface the export pipeline reads and updates.
type EntrySource interface {
	GetEntry(ctx context.Context, id int64) (core.Entry, error)
	PendingExports(ctx context.Context, limit int) ([]core.Entry, error)
	MarkExported(ctx context.Context, id int64) error
}

// ExportWorker copies completed time entries from SQLite to a spreadsheet.
// The message handler and the pending sweep may run concurrently; exportMu
// makes the read-export-mark sequence for an entry atomic between them.
type ExportWorker struct {
	store     EntrySource
	exporter  sheets.EntryExporter
	batchSize int

	exportMu sync.Mutex
}

func NewExportWorker(store EntrySource, exporter sheets.EntryExporter, batchSize int) *ExportWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	return &ExportWorker{
		store:     store,
		exporter:  exporter,
		batchSize: batchSize,
	}
}

// HandleEntryStopped processes a single entry.stopped message from AMQP.
// Entries already exported are acknowledged without a second row.
func (w *ExportWorker) HandleEntryStopped(ctx context.Context, msg *amqp.EntryStoppedMessage) error {
	slog.InfoContext(ctx, "Processing entry stopped message",
		"entry_id", msg.ID,
		"user_id", msg.UserID,
		"message_id", msg.MessageID)

	err := w.exportByID(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		// Nothing will ever appear under this id; requeueing would loop forever
		slog.WarnContext(ctx, "Entry from message not found, dropping", "entry_id", msg.ID)
		return nil
	}
	return err
}

// ProcessPendingExports exports entries whose messages were lost.
func (w *ExportWorker) ProcessPendingExports(ctx context.Context) error {
	_, _, err := w.processPending(ctx, w.batchSize)
	return err
}

// StartupExportCheck drains a larger backlog once when the worker starts.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	total, failed, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup export check: %w", err)
	}

	if total == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Startup export completed",
		"total", total,
		"exported", total-failed,
		"errors", failed)
	return nil
}

func (w *ExportWorker) processPending(ctx context.Context, limit int) (total, failed int, err error) {
	pending, err := w.store.PendingExports(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	for _, entry := range pending {
		if ctx.Err() != nil {
			return len(pending), failed, ctx.Err()
		}
		if err := w.exportByID(ctx, entry.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to export entry", "entry_id", entry.ID, "error", err)
			failed++
		}
	}
	return len(pending), failed, nil
}

// exportByID re-reads the entry under exportMu and exports it unless it is
// still active or another path already exported it.
func (w *ExportWorker) exportByID(ctx context.Context, id int64) error {
	w.exportMu.Lock()
	defer w.exportMu.Unlock()

	entry, err := w.store.GetEntry(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("get entry from storage: %w", err)
	}

	if entry.ExportedAt != nil {
		slog.DebugContext(ctx, "Entry already exported, skipping", "entry_id", entry.ID)
		return nil
	}
	if entry.Active() {
		slog.WarnContext(ctx, "Entry is still active, skipping", "entry_id", entry.ID)
		return nil
	}

	return w.exportEntry(ctx, entry)
}

func (w *ExportWorker) exportEntry(ctx context.Context, entry core.Entry) error {
	ref, err := w.exporter.Export(ctx, entry)
	if err != nil {
		return fmt.Errorf("export entry %d: %w", entry.ID, err)
	}

	if err := w.store.MarkExported(ctx, entry.ID); err != nil {
		// The row exists in the sheet; a retry would duplicate it, so only log
		slog.ErrorContext(ctx, "Failed to mark entry as exported", "entry_id", entry.ID, "error", err)
	}

	fields := log.NewFields().
		WithUser(int64(entry.UserID)).
		WithEntry(entry.ID, entry.Category, entry.TaskName)
	fields[log.FieldSheetsRef] = ref
	slog.InfoContext(ctx, "Exported entry", fields.ToSlice()...)

	return nil
}
