package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"timebot/internal/core"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

type categoryRecord struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type entryRecord struct {
	ID              int64      `json:"id" yaml:"id"`
	Category        string     `json:"category" yaml:"category"`
	Task            string     `json:"task" yaml:"task"`
	StartedAt       time.Time  `json:"started_at" yaml:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty" yaml:"stopped_at,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	Duration        string     `json:"duration,omitempty" yaml:"duration,omitempty"`
}

type totalRecord struct {
	Category     string `json:"category" yaml:"category"`
	TotalSeconds int64  `json:"total_seconds" yaml:"total_seconds"`
	Total        string `json:"total" yaml:"total"`
}

func validOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

// render writes v as JSON or YAML. Text output is handled by each command.
func render(out io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return validOutput(format)
	}
}

func categoryRecords(cats []core.Category) []categoryRecord {
	out := make([]categoryRecord, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryRecord{ID: c.ID, Name: c.Name})
	}
	return out
}

func entryRecordOf(e core.Entry) entryRecord {
	r := entryRecord{
		ID:              e.ID,
		Category:        e.Category,
		Task:            e.TaskName,
		StartedAt:       e.StartedAt,
		StoppedAt:       e.StoppedAt,
		DurationSeconds: e.DurationSeconds,
	}
	if e.DurationSeconds != nil {
		r.Duration = core.FormatDuration(*e.DurationSeconds)
	}
	return r
}

func entryRecords(entries []core.Entry) []entryRecord {
	out := make([]entryRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryRecordOf(e))
	}
	return out
}

func totalRecords(totals []core.CategoryTotal) []totalRecord {
	out := make([]totalRecord, 0, len(totals))
	for _, t := range totals {
		out = append(out, totalRecord{Category: t.Category, TotalSeconds: t.TotalSeconds, Total: core.FormatDuration(t.TotalSeconds)})
	}
	return out
}
