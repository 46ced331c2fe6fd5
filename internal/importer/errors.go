package importer

import (
	"fmt"
	"strings"
)

// ParseError reports a spreadsheet that could not be read at all.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("spreadsheet parse failed: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a request that cannot start (nothing selected, bad method).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// MatchError reports that none of the selected images could be matched.
type MatchError struct {
	Unmatched []string
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("no images matched: %s", strings.Join(e.Unmatched, ", "))
}

// UploadError reports that every required image upload failed.
type UploadError struct {
	Failed []string
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("all %d image uploads failed: %v", len(e.Failed), e.Err)
}
func (e *UploadError) Unwrap() error { return e.Err }

// SubmissionError reports that the store rejected the import batch.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("import submission failed: %v", e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }
