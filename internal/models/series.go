package models

// FileFailure records a file that could not be decoded while loading a series.
type FileFailure struct {
	FileName string
	Err      error
}

// Inconsistency records a record that does not match the rest of its series.
type Inconsistency struct {
	FileName string
	Reason   string
}

// SeriesIndex is the ordered set of records decoded from one directory.
type SeriesIndex struct {
	Dir     string
	Records []*DicomRecord

	// Failures lists files that were skipped. Loading a series never fails
	// because of a single bad file.
	Failures []FileFailure

	// Inconsistencies lists records whose shape or modality differs from
	// the first record. They are kept in Records.
	Inconsistencies []Inconsistency
}

// Len returns the number of decoded records.
func (s *SeriesIndex) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Consistent reports whether every record shares shape and modality.
func (s *SeriesIndex) Consistent() bool {
	return len(s.Inconsistencies) == 0
}
