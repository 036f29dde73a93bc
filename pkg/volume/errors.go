package volume

import "fmt"

// Reason classifies a volume construction failure.
type Reason int

const (
	// EmptySeries means there were no slices to stack.
	EmptySeries Reason = iota + 1

	// InconsistentSliceShape means the slices do not share rows and columns.
	InconsistentSliceShape
)

func (r Reason) String() string {
	switch r {
	case EmptySeries:
		return "EmptySeries"
	case InconsistentSliceShape:
		return "InconsistentSliceShape"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// VolumeError is returned when no volume could be built.
type VolumeError struct {
	Reason   Reason
	FileName string
	Detail   string
}

var (
	ErrEmptySeries            error = &VolumeError{Reason: EmptySeries}
	ErrInconsistentSliceShape error = &VolumeError{Reason: InconsistentSliceShape}
)

func (e *VolumeError) Error() string {
	msg := "build volume: " + e.Reason.String()
	if e.FileName != "" {
		msg += ": " + e.FileName
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches on Reason alone.
func (e *VolumeError) Is(target error) bool {
	t, ok := target.(*VolumeError)
	return ok && t.Reason == e.Reason
}
