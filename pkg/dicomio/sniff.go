package dicomio

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	preambleLen = 128

	// Extension is the conventional file suffix. Matching on it alone is a
	// weak heuristic: plenty of DICOM files have no suffix at all.
	Extension = ".dcm"
)

var magicWord = []byte("DICM")

// headerLen is the number of bytes needed to recognise a DICOM Part 10 file.
const headerLen = preambleLen + 4

// HasDicomExtension reports whether name carries the .dcm suffix.
func HasDicomExtension(name string) bool {
	return strings.EqualFold(filepath.Ext(name), Extension)
}

// Sniff reads the first 132 bytes of r and reports whether they form a DICOM
// preamble followed by the DICM magic word. The bytes consumed are returned
// so the caller can replay them.
func Sniff(r io.Reader) (bool, []byte, error) {
	head := make([]byte, headerLen)
	n, err := io.ReadFull(r, head)
	head = head[:n]
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return false, head, nil
	}
	if err != nil {
		return false, head, err
	}
	return bytes.Equal(head[preambleLen:], magicWord), head, nil
}

// IsDicomFile sniffs the file at path.
func IsDicomFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	ok, _, err := Sniff(f)
	return ok, err
}
