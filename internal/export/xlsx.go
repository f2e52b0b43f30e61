// Package export renders completed job results as an XLSX workbook.
package export

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"scholarsource/internal/job"
)

// ContentType is the MIME type of the workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	resourcesSheet = "Resources"
	searchSheet    = "Search"
)

// ErrNotCompleted is returned for records that have no results yet.
var ErrNotCompleted = errors.New("job is not completed")

var resourceHeaders = []string{"Type", "Title", "URL", "Source", "Description"}

// Workbook builds an XLSX file with one row per resource and a second
// sheet describing the search that produced them.
func Workbook(rec *job.Record) ([]byte, error) {
	if rec == nil || rec.Status != job.StatusCompleted {
		return nil, ErrNotCompleted
	}

	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with "Sheet1"; rename it instead of adding a sheet.
	if err := f.SetSheetName(f.GetSheetName(0), resourcesSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeResources(f, rec.Results); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(searchSheet); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}
	if err := writeSearch(f, rec); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeResources(f *excelize.File, resources []job.Resource) error {
	if err := f.SetSheetRow(resourcesSheet, "A1", &resourceHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	_ = f.SetRowStyle(resourcesSheet, 1, 1, bold)

	for i, r := range resources {
		row := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []any{r.Type, r.Title, r.URL, r.Source, r.Description}
		if err := f.SetSheetRow(resourcesSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		if r.URL != "" {
			link, _ := excelize.CoordinatesToCellName(3, row)
			_ = f.SetCellHyperLink(resourcesSheet, link, r.URL, "External")
		}
	}

	_ = f.SetColWidth(resourcesSheet, "A", "A", 14)
	_ = f.SetColWidth(resourcesSheet, "B", "B", 40)
	_ = f.SetColWidth(resourcesSheet, "C", "C", 50)
	_ = f.SetColWidth(resourcesSheet, "D", "D", 24)
	_ = f.SetColWidth(resourcesSheet, "E", "E", 60)
	return f.AutoFilter(resourcesSheet, fmt.Sprintf("A1:E%d", len(resources)+1), nil)
}

func writeSearch(f *excelize.File, rec *job.Record) error {
	rows := [][2]string{
		{"Job ID", rec.ID},
		{"Title", rec.SearchTitle},
		{"Course", rec.Inputs.CourseName},
		{"Course URL", rec.Inputs.CourseURL},
		{"University", rec.Inputs.UniversityName},
		{"Book", rec.Inputs.BookTitle},
		{"Author", rec.Inputs.BookAuthor},
		{"ISBN", rec.Inputs.ISBN},
		{"Topics", rec.Inputs.TopicsList},
		{"Resource types", strings.Join(rec.Inputs.DesiredResourceTypes, ", ")},
		{"Submitted", rec.CreatedAt.UTC().Format(time.RFC3339)},
	}
	if rec.CompletedAt != nil {
		rows = append(rows, [2]string{"Completed", rec.CompletedAt.UTC().Format(time.RFC3339)})
	}

	line := 1
	for _, kv := range rows {
		if kv[1] == "" {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(1, line)
		values := []any{kv[0], kv[1]}
		if err := f.SetSheetRow(searchSheet, cell, &values); err != nil {
			return fmt.Errorf("write search row: %w", err)
		}
		line++
	}
	_ = f.SetColWidth(searchSheet, "A", "A", 16)
	_ = f.SetColWidth(searchSheet, "B", "B", 60)
	return nil
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9]+`)

// Filename returns a download name like "intro-to-algorithms-resources.xlsx".
func Filename(rec *job.Record) string {
	base := strings.Trim(unsafeFilename.ReplaceAllString(strings.ToLower(rec.SearchTitle), "-"), "-")
	if base == "" {
		base = "scholarsource-" + rec.ID
	}
	if len(base) > 80 {
		base = strings.TrimRight(base[:80], "-")
	}
	return base + ".xlsx"
}
