package job

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Status is the lifecycle position of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Inputs is the discovery request submitted by a client.
type Inputs struct {
	CourseURL            string   `json:"course_url,omitempty"`
	CourseName           string   `json:"course_name,omitempty"`
	UniversityName       string   `json:"university_name,omitempty"`
	BookTitle            string   `json:"book_title,omitempty"`
	BookAuthor           string   `json:"book_author,omitempty"`
	ISBN                 string   `json:"isbn,omitempty"`
	BookPDFPath          string   `json:"book_pdf_path,omitempty"`
	BookURL              string   `json:"book_url,omitempty"`
	TopicsList           string   `json:"topics_list,omitempty"`
	DesiredResourceTypes []string `json:"desired_resource_types,omitempty"`
	Email                string   `json:"email,omitempty"`
	ForceRefresh         bool     `json:"force_refresh,omitempty"`
}

// Normalize trims surrounding whitespace from every text field and drops
// empty resource types.
func (in *Inputs) Normalize() {
	for _, f := range []*string{
		&in.CourseURL, &in.CourseName, &in.UniversityName,
		&in.BookTitle, &in.BookAuthor, &in.ISBN,
		&in.BookPDFPath, &in.BookURL, &in.TopicsList, &in.Email,
	} {
		*f = strings.TrimSpace(*f)
	}
	types := in.DesiredResourceTypes[:0]
	for _, t := range in.DesiredResourceTypes {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	in.DesiredResourceTypes = types
}

// Subject is a short human label for the request, used when the engine
// does not supply a title.
func (in Inputs) Subject() string {
	switch {
	case in.CourseName != "":
		return in.CourseName
	case in.BookTitle != "":
		return in.BookTitle
	case in.UniversityName != "":
		return in.UniversityName
	case in.ISBN != "":
		return "ISBN " + in.ISBN
	default:
		return "Course"
	}
}

// Resource is one discovered study resource. Its fields are produced by
// the engine and passed through untouched.
type Resource struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Source      string `json:"source,omitempty"`
	Description string `json:"description,omitempty"`
}

// Record is the persisted state of one job.
type Record struct {
	ID            string            `json:"id"`
	Status        Status            `json:"status"`
	Inputs        Inputs            `json:"inputs"`
	StatusMessage string            `json:"status_message,omitempty"`
	SearchTitle   string            `json:"search_title,omitempty"`
	Results       []Resource        `json:"results"`
	RawOutput     *string           `json:"raw_output"`
	Error         *string           `json:"error"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at"`
}

// Clone returns a deep copy so callers never share mutable state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Inputs.DesiredResourceTypes = slices.Clone(r.Inputs.DesiredResourceTypes)
	if r.Results != nil {
		c.Results = slices.Clone(r.Results)
	}
	c.RawOutput = clonePtr(r.RawOutput)
	c.Error = clonePtr(r.Error)
	c.Metadata = maps.Clone(r.Metadata)
	c.CompletedAt = clonePtr(r.CompletedAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Result is what a discovery run produced.
type Result struct {
	Title     string
	Resources []Resource
	RawOutput string
}

// SubmitResponse is returned to a client that submitted a job.
type SubmitResponse struct {
	JobID   string `json:"job_id"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// StatusResponse is the public projection of a Record.
type StatusResponse struct {
	JobID         string            `json:"job_id"`
	Status        Status            `json:"status"`
	StatusMessage string            `json:"status_message,omitempty"`
	SearchTitle   string            `json:"search_title,omitempty"`
	Results       []Resource        `json:"results"`
	RawOutput     *string           `json:"raw_output"`
	Error         *string           `json:"error"`
	Metadata      map[string]string `json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at"`
}

// Project maps a record onto its client-facing shape.
func Project(r *Record) *StatusResponse {
	r = r.Clone()
	return &StatusResponse{
		JobID:         r.ID,
		Status:        r.Status,
		StatusMessage: r.StatusMessage,
		SearchTitle:   r.SearchTitle,
		Results:       r.Results,
		RawOutput:     r.RawOutput,
		Error:         r.Error,
		Metadata:      r.Metadata,
		CreatedAt:     r.CreatedAt,
		CompletedAt:   r.CompletedAt,
	}
}
