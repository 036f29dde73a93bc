package dicomio

import "fmt"

// Reason classifies why a file could not be decoded.
type Reason int

const (
	// NotDicom means the file lacks a DICOM preamble/header or the header
	// could not be parsed.
	NotDicom Reason = iota + 1

	// UnsupportedTransferSyntax means the tags parsed but the pixel payload
	// is compressed or otherwise cannot be decoded natively.
	UnsupportedTransferSyntax

	// MissingPixelData means the tags parsed but no usable pixel payload exists.
	MissingPixelData
)

func (r Reason) String() string {
	switch r {
	case NotDicom:
		return "NotDicom"
	case UnsupportedTransferSyntax:
		return "UnsupportedTransferSyntax"
	case MissingPixelData:
		return "MissingPixelData"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// DecodeError is returned by every decode failure.
type DecodeError struct {
	Reason Reason
	Path   string
	Err    error
}

// Sentinels for errors.Is; they match any DecodeError with the same reason.
var (
	ErrNotDicom                  error = &DecodeError{Reason: NotDicom}
	ErrUnsupportedTransferSyntax error = &DecodeError{Reason: UnsupportedTransferSyntax}
	ErrMissingPixelData          error = &DecodeError{Reason: MissingPixelData}
)

func (e *DecodeError) Error() string {
	msg := "decode"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is matches on Reason alone.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Reason == e.Reason
}

func newDecodeError(reason Reason, path string, err error) *DecodeError {
	return &DecodeError{Reason: reason, Path: path, Err: err}
}
