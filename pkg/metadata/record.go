package metadata

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Field is one key of a Record.
type Field struct {
	Key   string
	Value Value
}

// Record is an ordered list of normalized metadata fields.
type Record []Field

// Get returns the value of key. A key that is not part of the record is
// reported as absent.
func (r Record) Get(key string) (Value, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Unknown, false
}

// Map returns the record as display strings.
func (r Record) Map() map[string]string {
	out := make(map[string]string, len(r))
	for _, f := range r {
		out[f.Key] = f.Value.String()
	}
	return out
}

// WriteText writes "Key: Value" lines.
func WriteText(w io.Writer, rec Record) error {
	bw := bufio.NewWriter(w)
	for _, f := range rec {
		if _, err := fmt.Fprintf(bw, "%s: %s\n", f.Key, f.Value); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteSeriesText writes every slice record separated by a blank line.
func WriteSeriesText(w io.Writer, recs []Record) error {
	for i, rec := range recs {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := WriteText(w, rec); err != nil {
			return err
		}
	}
	return nil
}

// wireField is the msgpack form of a Field: a key-value pair whose value
// keeps its kind.
type wireField struct {
	Key   string  `json:"key"`
	Kind  string  `json:"kind"`
	Str   string  `json:"str,omitempty"`
	Int   int64   `json:"int,omitempty"`
	Float float64 `json:"float,omitempty"`
}

func toWire(rec Record) []wireField {
	out := make([]wireField, len(rec))
	for i, f := range rec {
		w := wireField{Key: f.Key, Kind: f.Value.Kind.String()}
		switch f.Value.Kind {
		case KindString:
			w.Str = f.Value.Str
		case KindInt:
			w.Int = int64(f.Value.Int)
		case KindFloat:
			w.Float = f.Value.Float
		}
		out[i] = w
	}
	return out
}

func fromWire(in []wireField) (Record, error) {
	out := make(Record, len(in))
	for i, w := range in {
		var v Value
		switch w.Kind {
		case "string":
			v = StringValue(w.Str)
		case "int":
			v = IntValue(int(w.Int))
		case "float":
			v = FloatValue(w.Float)
		case "unknown":
			v = Unknown
		default:
			return nil, fmt.Errorf("field %q: unknown kind %q", w.Key, w.Kind)
		}
		out[i] = Field{Key: w.Key, Value: v}
	}
	return out, nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, "encode metadata")
	}
	return buf.Bytes(), nil
}

func decoder(data []byte) *msgpack.Decoder {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec
}

// MarshalMsgpack encodes rec as a msgpack array of key-value maps.
func MarshalMsgpack(rec Record) ([]byte, error) {
	return encode(toWire(rec))
}

// UnmarshalMsgpack decodes the output of MarshalMsgpack.
func UnmarshalMsgpack(data []byte) (Record, error) {
	var in []wireField
	if err := decoder(data).Decode(&in); err != nil {
		return nil, errors.Wrap(err, "decode metadata")
	}
	return fromWire(in)
}

// MarshalSeriesMsgpack encodes one array per slice.
func MarshalSeriesMsgpack(recs []Record) ([]byte, error) {
	wire := make([][]wireField, len(recs))
	for i, rec := range recs {
		wire[i] = toWire(rec)
	}
	return encode(wire)
}

// UnmarshalSeriesMsgpack decodes the output of MarshalSeriesMsgpack.
func UnmarshalSeriesMsgpack(data []byte) ([]Record, error) {
	var in [][]wireField
	if err := decoder(data).Decode(&in); err != nil {
		return nil, errors.Wrap(err, "decode series metadata")
	}
	out := make([]Record, len(in))
	for i, w := range in {
		rec, err := fromWire(w)
		if err != nil {
			return nil, errors.Wrapf(err, "slice %d", i)
		}
		out[i] = rec
	}
	return out, nil
}
