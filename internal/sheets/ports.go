package sheets

import (
	"context"

	"timebot/internal/core"
)

// Ports for outbound adapters.
type (
	// EntryExporter appends one completed time entry to an external sheet.
	EntryExporter interface {
		Export(ctx context.Context, e core.Entry) (rowRef string, err error)
	}
)
