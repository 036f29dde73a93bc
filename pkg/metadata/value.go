package metadata

import "strconv"

// UnknownText is rendered for every key whose attribute is absent.
const UnknownText = "Unknown"

// Kind tags the populated member of a Value.
type Kind int

const (
	KindUnknown Kind = iota
	KindString
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Value is one normalized metadata value.
type Value struct {
	Kind  Kind
	Str   string
	Int   int
	Float float64
}

// Unknown is the value of a key whose attribute is absent.
var Unknown = Value{Kind: KindUnknown}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func IntValue(i int) Value       { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// IsUnknown reports whether the value is the Unknown sentinel.
func (v Value) IsUnknown() bool {
	return v.Kind == KindUnknown
}

func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return strconv.Itoa(v.Int)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return UnknownText
	}
}
