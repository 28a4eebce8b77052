package backend

import (
	"fmt"

	"timebot/internal/config"
)

// FromAppConfig picks Google Sheets when a spreadsheet id is configured and
// the in-memory exporter otherwise.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	if appConfig.GoogleSpreadsheetID == "" {
		return Config{Type: MemoryExporter}, nil
	}
	return Config{
		Type:               SheetsExporter,
		SpreadsheetID:      appConfig.GoogleSpreadsheetID,
		SheetName:          appConfig.GoogleSheetName,
		ServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		ServiceAccountFile: appConfig.GoogleServiceAccountFile,
	}, nil
}

// Validate validates the exporter configuration.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid exporter type: %s", c.Type)
	}

	if c.Type == SheetsExporter {
		if c.SpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets exporter")
		}
		if c.ServiceAccountJSON == "" && c.ServiceAccountFile == "" {
			return fmt.Errorf("either ServiceAccountJSON or ServiceAccountFile must be provided for sheets exporter")
		}
	}
	return nil
}

// GetExporterTypes returns all valid exporter types.
func GetExporterTypes() []ExporterType {
	return []ExporterType{SheetsExporter, MemoryExporter}
}
