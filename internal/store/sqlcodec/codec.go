// Package sqlcodec converts job records to and from the column layout
// shared by the SQL stores. Structured fields are stored as JSON text.
package sqlcodec

import (
	"encoding/json"
	"fmt"
	"time"

	"scholarsource/internal/job"
)

// Row is the flattened form of a job.Record.
type Row struct {
	ID            string
	Status        string
	Inputs        []byte
	StatusMessage string
	SearchTitle   string
	Results       []byte
	RawOutput     *string
	Error         *string
	Metadata      []byte
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// Encode flattens rec. A nil Results slice encodes as JSON null and an
// empty one as [], so the distinction survives a round trip.
func Encode(rec *job.Record) (*Row, error) {
	inputs, err := json.Marshal(rec.Inputs)
	if err != nil {
		return nil, fmt.Errorf("encode inputs: %w", err)
	}
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	return &Row{
		ID:            rec.ID,
		Status:        string(rec.Status),
		Inputs:        inputs,
		StatusMessage: rec.StatusMessage,
		SearchTitle:   rec.SearchTitle,
		Results:       results,
		RawOutput:     rec.RawOutput,
		Error:         rec.Error,
		Metadata:      metadata,
		CreatedAt:     rec.CreatedAt.UTC(),
		CompletedAt:   utcPtr(rec.CompletedAt),
	}, nil
}

// Decode rebuilds a record from a row.
func Decode(row *Row) (*job.Record, error) {
	status := job.Status(row.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("job %s has unknown status %q", row.ID, row.Status)
	}

	rec := &job.Record{
		ID:            row.ID,
		Status:        status,
		StatusMessage: row.StatusMessage,
		SearchTitle:   row.SearchTitle,
		RawOutput:     row.RawOutput,
		Error:         row.Error,
		CreatedAt:     row.CreatedAt.UTC(),
		CompletedAt:   utcPtr(row.CompletedAt),
	}
	if err := unmarshal(row.Inputs, &rec.Inputs); err != nil {
		return nil, fmt.Errorf("decode inputs of job %s: %w", row.ID, err)
	}
	if err := unmarshal(row.Results, &rec.Results); err != nil {
		return nil, fmt.Errorf("decode results of job %s: %w", row.ID, err)
	}
	if err := unmarshal(row.Metadata, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of job %s: %w", row.ID, err)
	}
	return rec, nil
}

func unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
