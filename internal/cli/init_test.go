package cli

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"timebot/internal/log"
)

func TestInitSQLiteLogsSchemaVersion(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Handler: slog.NewTextHandler(&buf, nil)})

	repo := InitSQLite(logger, filepath.Join(t.TempDir(), "init.db"))
	defer repo.Close()

	out := buf.String()
	if !strings.Contains(out, "SQLite repository ready") {
		t.Fatalf("missing ready log:\n%s", out)
	}
	if !strings.Contains(out, "schema_version=2") {
		t.Errorf("expected schema_version=2 in:\n%s", out)
	}
}

func TestLogSchemaVersionUnreadableDatabase(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Handler: slog.NewTextHandler(&buf, nil)})

	logSchemaVersion(logger, filepath.Join(t.TempDir(), "missing", "nested", "x.db"))
	if !strings.Contains(buf.String(), "Could not read schema version") {
		t.Errorf("expected warning, got:\n%s", buf.String())
	}
}
