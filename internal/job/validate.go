package job

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"scholarsource/internal/apperrors"
)

// Boundary limits on submitted inputs.
const (
	maxFieldLength   = 2048
	maxTopicsLength  = 8192
	maxResourceTypes = 16
)

// MissingInputsMessage explains which input groups satisfy validation.
const MissingInputsMessage = "You must provide at least one of the following: " +
	"course information (course_name, university_name, or course_url), " +
	"book information (book_title + book_author, or ISBN), " +
	"book file (book_pdf_path), or book URL (book_url)"

// ValidateInputs reports whether at least one input group is present:
// course info, book title with author or ISBN, a book file, or a book URL.
func ValidateInputs(in Inputs) bool {
	has := func(s string) bool { return strings.TrimSpace(s) != "" }

	course := has(in.CourseName) || has(in.UniversityName) || has(in.CourseURL)
	book := (has(in.BookTitle) && has(in.BookAuthor)) || has(in.ISBN)
	return course || book || has(in.BookPDFPath) || has(in.BookURL)
}

// CheckInputs validates normalized inputs and returns an apperrors
// validation error describing the first problem found.
func CheckInputs(in Inputs) error {
	if !ValidateInputs(in) {
		return apperrors.Validation("inputs", MissingInputsMessage)
	}

	fields := []struct {
		name  string
		value string
		limit int
	}{
		{"course_url", in.CourseURL, maxFieldLength},
		{"course_name", in.CourseName, maxFieldLength},
		{"university_name", in.UniversityName, maxFieldLength},
		{"book_title", in.BookTitle, maxFieldLength},
		{"book_author", in.BookAuthor, maxFieldLength},
		{"isbn", in.ISBN, 32},
		{"book_pdf_path", in.BookPDFPath, maxFieldLength},
		{"book_url", in.BookURL, maxFieldLength},
		{"topics_list", in.TopicsList, maxTopicsLength},
		{"email", in.Email, 320},
	}
	for _, f := range fields {
		if len(f.value) > f.limit {
			return apperrors.Validation(f.name, fmt.Sprintf("%s exceeds maximum length of %d", f.name, f.limit))
		}
	}

	for _, u := range []struct{ name, raw string }{{"course_url", in.CourseURL}, {"book_url", in.BookURL}} {
		if err := validateURL(u.raw); err != nil {
			return apperrors.Validation(u.name, fmt.Sprintf("invalid %s: %v", u.name, err))
		}
	}

	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return apperrors.Validation("email", "email is not a valid address")
		}
	}

	if len(in.DesiredResourceTypes) > maxResourceTypes {
		return apperrors.Validation("desired_resource_types",
			fmt.Sprintf("desired_resource_types exceeds maximum of %d entries", maxResourceTypes))
	}
	return nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
