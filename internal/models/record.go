package models

import (
	"path/filepath"
	"strings"
)

// DicomRecord is one decoded file: its pixel buffer plus every decoded
// attribute. It is created by the decoder and not modified afterwards;
// callers must treat the buffer returned by Buffer as read-only.
type DicomRecord struct {
	path   string
	buffer *PixelBuffer
	tags   map[Tag]TagValue
}

// NewDicomRecord takes ownership of buffer and tags.
func NewDicomRecord(path string, buffer *PixelBuffer, tags map[Tag]TagValue) *DicomRecord {
	if tags == nil {
		tags = make(map[Tag]TagValue)
	}
	return &DicomRecord{path: path, buffer: buffer, tags: tags}
}

// Path is the file the record was decoded from.
func (r *DicomRecord) Path() string { return r.path }

// FileName is the base name of Path.
func (r *DicomRecord) FileName() string { return filepath.Base(r.path) }

// Buffer returns the decoded pixels.
func (r *DicomRecord) Buffer() *PixelBuffer { return r.buffer }

// Tag looks up a raw attribute.
func (r *DicomRecord) Tag(t Tag) (TagValue, bool) {
	v, ok := r.tags[t]
	if !ok || v.Len() == 0 {
		return TagValue{}, false
	}
	return v, true
}

// Raw looks up an attribute as decoded, including zero-length values.
func (r *DicomRecord) Raw(t Tag) (TagValue, bool) {
	v, ok := r.tags[t]
	return v, ok
}

// Tags returns a copy of the attribute map.
func (r *DicomRecord) Tags() map[Tag]TagValue {
	out := make(map[Tag]TagValue, len(r.tags))
	for k, v := range r.tags {
		out[k] = v
	}
	return out
}

// String returns the attribute rendered as text. Blank values count as absent.
func (r *DicomRecord) String(t Tag) (string, bool) {
	v, ok := r.Tag(t)
	if !ok {
		return "", false
	}
	s := strings.TrimSpace(v.String())
	if s == "" {
		return "", false
	}
	return s, true
}

// Int returns the attribute's first value as an integer.
func (r *DicomRecord) Int(t Tag) (int, bool) {
	v, ok := r.Tag(t)
	if !ok {
		return 0, false
	}
	return v.Int()
}

// Float returns the attribute's first value as a float.
func (r *DicomRecord) Float(t Tag) (float64, bool) {
	v, ok := r.Tag(t)
	if !ok {
		return 0, false
	}
	return v.Float()
}

// Rows is the pixel buffer height.
func (r *DicomRecord) Rows() int {
	if r.buffer == nil {
		return 0
	}
	return r.buffer.Height
}

// Columns is the pixel buffer width.
func (r *DicomRecord) Columns() int {
	if r.buffer == nil {
		return 0
	}
	return r.buffer.Width
}

// Modality returns the Modality attribute or "" when absent.
func (r *DicomRecord) Modality() string {
	s, _ := r.String(TagModality)
	return s
}
