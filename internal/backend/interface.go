// Package backend selects and builds the spreadsheet exporter the worker
// writes completed entries to.
package backend

import (
	"context"

	"timebot/internal/sheets"
)

// CleanupFunc releases resources held by an exporter.
type CleanupFunc func() error

// ExporterResult contains the exporter and an optional cleanup function.
type ExporterResult struct {
	Exporter sheets.EntryExporter
	Cleanup  CleanupFunc
}

// Factory creates exporters based on configuration.
type Factory interface {
	CreateExporter(ctx context.Context, config Config) (*ExporterResult, error)
}

// Config holds configuration for exporter creation.
type Config struct {
	Type ExporterType

	// Google Sheets specific
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// ExporterType names an export destination.
type ExporterType string

const (
	SheetsExporter ExporterType = "sheets"
	MemoryExporter ExporterType = "memory"
)

func (t ExporterType) String() string {
	return string(t)
}

func (t ExporterType) IsValid() bool {
	switch t {
	case SheetsExporter, MemoryExporter:
		return true
	default:
		return false
	}
}
