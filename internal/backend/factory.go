package backend

import (
	"context"
	"fmt"

	"timebot/internal/log"
	gsheet "timebot/internal/sheets/google"
	"timebot/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface.
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentSheets),
	}
}

// CreateExporter implements Factory.CreateExporter.
func (f *DefaultFactory) CreateExporter(ctx context.Context, config Config) (*ExporterResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsExporter:
		return f.createSheetsExporter(ctx, config)
	case MemoryExporter:
		return f.createMemoryExporter()
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSheetsExporter(ctx context.Context, config Config) (*ExporterResult, error) {
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      config.SpreadsheetID,
		SheetName:          config.SheetName,
		ServiceAccountJSON: config.ServiceAccountJSON,
		ServiceAccountFile: config.ServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	if err := client.EnsureHeader(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare sheet header: %w", err)
	}

	f.logger.Info("Initialized Google Sheets exporter",
		"spreadsheet_id", config.SpreadsheetID,
		"sheet", config.SheetName)

	return &ExporterResult{Exporter: client}, nil
}

func (f *DefaultFactory) createMemoryExporter() (*ExporterResult, error) {
	f.logger.Info("Initialized memory exporter; entries are kept in process only")
	return &ExporterResult{Exporter: memory.New()}, nil
}
