package transcode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"

	"github.com/ValentinKolb/dDoc/lib/codec"
	"github.com/vmihailenco/msgpack/v5"
)

// childrenField holds nested documents in the JSON form of a document.
const childrenField = "_childDocuments_"

// --------------------------------------------------------------------------
// Reading
// --------------------------------------------------------------------------

// readJSON decodes one JSON value keeping the key order of objects, which
// become codec.OrderedMap. Integral numbers become int32 or int64, all other
// numbers float64.
func readJSON(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := codec.OrderedMap{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				v, err := readJSON(dec)
				if err != nil {
					return nil, err
				}
				m = m.Add(keyTok.(string), v)
			}
			_, err = dec.Token()
			return m, err
		case '[':
			arr := []any{}
			for dec.More() {
				v, err := readJSON(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			_, err = dec.Token()
			return arr, err
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case json.Number:
		return number(t), nil
	default:
		// string, bool or nil
		return t, nil
	}
}

func number(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return int32(i)
		}
		return i
	}
	f, _ := n.Float64()
	return f
}

// ReadValue reads a single JSON or msgpack value from r.
func ReadValue(r io.Reader, format string) (any, error) {
	switch format {
	case "json":
		dec := json.NewDecoder(r)
		dec.UseNumber()
		v, err := readJSON(dec)
		if err != nil {
			return nil, fmt.Errorf("read json: %w", err)
		}
		return v, nil
	case "msgpack":
		v, err := msgpack.NewDecoder(r).DecodeInterfaceLoose()
		if err != nil {
			return nil, fmt.Errorf("read msgpack: %w", err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("invalid format %q (expected json or msgpack)", format)
}

// --------------------------------------------------------------------------
// Documents
// --------------------------------------------------------------------------

// pairs returns the entries of a JSON or msgpack object, or false.
func pairs(v any) ([]codec.Pair, bool) {
	switch m := v.(type) {
	case codec.OrderedMap:
		return m, true
	case map[string]any:
		out := make([]codec.Pair, 0, len(m))
		for _, k := range slices.Sorted(maps.Keys(m)) {
			out = append(out, codec.Pair{Name: k, Value: m[k]})
		}
		return out, true
	}
	return nil, false
}

var errNotObject = errors.New("expected an object or an array of objects")

// AsDocuments turns an object into a *codec.Document and an array of objects
// into a *codec.DocumentList. Objects under _childDocuments_ become children.
func AsDocuments(v any) (any, error) {
	if arr, ok := v.([]any); ok {
		list := &codec.DocumentList{NumFound: int64(len(arr)), NumFoundExact: true}
		for _, item := range arr {
			d, err := asDocument(item)
			if err != nil {
				return nil, err
			}
			list.Docs = append(list.Docs, d)
		}
		return list, nil
	}
	return asDocument(v)
}

func asDocument(v any) (*codec.Document, error) {
	fields, ok := pairs(v)
	if !ok {
		return nil, errNotObject
	}
	d := codec.NewDocument()
	for _, f := range fields {
		if f.Name != childrenField {
			d.Set(f.Name, f.Value)
			continue
		}
		children, _ := f.Value.([]any)
		for _, c := range children {
			child, err := asDocument(c)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", childrenField, err)
			}
			d.AddChild(child)
		}
	}
	return d, nil
}

// AsInputDocuments is AsDocuments for input documents. An array becomes a
// list of input documents.
func AsInputDocuments(v any) (any, error) {
	if arr, ok := v.([]any); ok {
		out := make([]any, 0, len(arr))
		for _, item := range arr {
			d, err := asInputDocument(item)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		return out, nil
	}
	return asInputDocument(v)
}

func asInputDocument(v any) (*codec.InputDocument, error) {
	fields, ok := pairs(v)
	if !ok {
		return nil, errNotObject
	}
	d := codec.NewInputDocument()
	for _, f := range fields {
		if f.Name != childrenField {
			d.Set(f.Name, f.Value)
			continue
		}
		children, _ := f.Value.([]any)
		for _, c := range children {
			child, err := asInputDocument(c)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", childrenField, err)
			}
			d.AddChild(child)
		}
	}
	return d, nil
}

// --------------------------------------------------------------------------
// Writing
// --------------------------------------------------------------------------

// object is an ordered JSON / msgpack object.
type object []codec.Pair

func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", p.Name, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o object) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(o)); err != nil {
		return err
	}
	for _, p := range o {
		if err := enc.EncodeString(p.Name); err != nil {
			return err
		}
		if err := enc.Encode(p.Value); err != nil {
			return err
		}
	}
	return nil
}

// Plain converts a decoded codec value to plain values JSON and msgpack can
// encode. Ordered codec types keep their order.
func Plain(v any) any {
	switch x := v.(type) {
	case codec.OrderedMap:
		return plainPairs(x)
	case codec.NamedList:
		return plainPairs(x)
	case *codec.Document:
		o := plainPairs(x.Fields)
		if len(x.Children) > 0 {
			children := make([]any, len(x.Children))
			for i, c := range x.Children {
				children[i] = Plain(c)
			}
			o = append(o, codec.Pair{Name: childrenField, Value: children})
		}
		return o
	case *codec.InputDocument:
		o := plainPairs(x.Fields)
		if len(x.Children) > 0 {
			children := make([]any, len(x.Children))
			for i, c := range x.Children {
				children[i] = Plain(c)
			}
			o = append(o, codec.Pair{Name: childrenField, Value: children})
		}
		return o
	case *codec.DocumentList:
		docs := make([]any, len(x.Docs))
		for i, d := range x.Docs {
			docs[i] = Plain(d)
		}
		var maxScore any
		if x.MaxScore != nil {
			maxScore = *x.MaxScore
		}
		return object{
			{Name: "numFound", Value: x.NumFound},
			{Name: "start", Value: x.Start},
			{Name: "maxScore", Value: maxScore},
			{Name: "numFoundExact", Value: x.NumFoundExact},
			{Name: "docs", Value: docs},
		}
	case codec.EnumFieldValue:
		return object{{Name: "value", Value: x.Value}, {Name: "name", Value: x.Name}}
	case codec.MapEntry:
		return object{{Name: "key", Value: Plain(x.Key)}, {Name: "value", Value: Plain(x.Value)}}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Plain(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = Plain(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Plain(e)
		}
		return out
	}
	return v
}

func plainPairs(ps []codec.Pair) object {
	o := make(object, len(ps))
	for i, p := range ps {
		o[i] = codec.Pair{Name: p.Name, Value: Plain(p.Value)}
	}
	return o
}

// WriteValue writes v, a decoded codec value, as JSON or msgpack.
func WriteValue(w io.Writer, v any, format string, pretty bool) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		if pretty {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(Plain(v))
	case "msgpack":
		return msgpack.NewEncoder(w).Encode(Plain(v))
	}
	return fmt.Errorf("invalid format %q (expected json or msgpack)", format)
}
