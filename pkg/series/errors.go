package series

import (
	"fmt"

	"ximed/internal/models"
)

// Reason classifies a whole-series failure.
type Reason int

const (
	// EmptyDirectory means no candidate files were found.
	EmptyDirectory Reason = iota + 1

	// AllFilesFailed means candidates were found but none decoded.
	AllFilesFailed
)

func (r Reason) String() string {
	switch r {
	case EmptyDirectory:
		return "EmptyDirectory"
	case AllFilesFailed:
		return "AllFilesFailed"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// SeriesError is returned when a directory yields no usable record.
type SeriesError struct {
	Reason   Reason
	Dir      string
	Failures []models.FileFailure
	// Err is the first failure's cause when every file failed.
	Err error
}

var (
	ErrEmptyDirectory error = &SeriesError{Reason: EmptyDirectory}
	ErrAllFilesFailed error = &SeriesError{Reason: AllFilesFailed}
)

func (e *SeriesError) Error() string {
	msg := fmt.Sprintf("load series %s: %s", e.Dir, e.Reason)
	if e.Reason == AllFilesFailed {
		msg += fmt.Sprintf(" (%d files)", len(e.Failures))
		if len(e.Failures) > 0 {
			msg += ", first: " + e.Failures[0].FileName
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SeriesError) Unwrap() error {
	return e.Err
}

// Is matches on Reason alone.
func (e *SeriesError) Is(target error) bool {
	t, ok := target.(*SeriesError)
	return ok && t.Reason == e.Reason
}
