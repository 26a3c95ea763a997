package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"slices"
	"sort"
	"sync/atomic"
	"time"
)

// childDocumentsField is never written as a regular input document field;
// nested input documents travel in Children.
const childDocumentsField = "_childDocuments_"

// --------------------------------------------------------------------------
// Value Dispatch
// --------------------------------------------------------------------------

// WriteVal writes any supported value. Unknown types go to the value's own
// ObjectResolver, then the codec's resolver, and finally fall back to the
// string "<type>:<value>" with a warning.
func (c *Codec) WriteVal(v any) error {
	ok, err := c.writeKnownType(v)
	if ok || err != nil {
		return err
	}

	resolver := c.resolver
	if r, isResolver := v.(ObjectResolver); isResolver {
		resolver = r
	}
	if resolver != nil {
		resolved, err := resolver.Resolve(v, c)
		if err != nil {
			return &EncodeError{Err: fmt.Errorf("resolve %T: %w", v, err)}
		}
		if resolved == nil {
			return nil
		}
		if ok, err := c.writeKnownType(resolved); ok || err != nil {
			return err
		}
	}

	fallback := fmt.Sprintf("%T:%v", v, v)
	log.Warningf("no encoding for type %T, writing it as string %q", v, fallback)
	return c.WriteStr(fallback)
}

func (c *Codec) writeKnownType(v any) (bool, error) {
	switch val := v.(type) {
	case nil:
		return true, c.w.WriteByte(tagNull)
	case string:
		return true, c.WriteStr(val)
	case ExternString:
		return true, c.WriteExternString(string(val))
	case bool:
		return true, c.WriteBool(val)
	case int8:
		return true, c.writeByteVal(val)
	case int16:
		return true, c.writeShort(val)
	case uint8:
		return true, c.WriteInt(int32(val))
	case uint16:
		return true, c.WriteInt(int32(val))
	case int32:
		return true, c.WriteInt(val)
	case int:
		if val >= math.MinInt32 && val <= math.MaxInt32 {
			return true, c.WriteInt(int32(val))
		}
		return true, c.WriteLong(int64(val))
	case int64:
		return true, c.WriteLong(val)
	case uint32:
		return true, c.WriteLong(int64(val))
	case uint:
		if uint64(val) > math.MaxInt64 {
			return false, nil
		}
		return true, c.WriteLong(int64(val))
	case uint64:
		if val > math.MaxInt64 {
			return false, nil
		}
		return true, c.WriteLong(int64(val))
	case float32:
		return true, c.WriteFloat(val)
	case float64:
		return true, c.WriteDouble(val)
	case time.Time:
		return true, c.WriteDate(val)
	case *atomic.Int32:
		return true, c.WriteInt(val.Load())
	case *atomic.Int64:
		return true, c.WriteLong(val.Load())
	case *atomic.Bool:
		return true, c.WriteBool(val.Load())
	case []byte:
		return true, c.WriteByteArray(val)
	case NamedList:
		return true, c.writePairs(tagNamedList, val)
	case OrderedMap:
		return true, c.writePairs(tagOrderedMap, val)
	case *Document:
		return true, c.writeDocument(val)
	case *DocumentList:
		return true, c.writeDocumentList(val)
	case *InputDocument:
		return true, c.writeInputDocument(val)
	case EnumFieldValue:
		return true, c.writeEnumFieldValue(val)
	case *EnumFieldValue:
		return true, c.writeEnumFieldValue(*val)
	case MapEntry:
		return true, c.writeMapEntry(val)
	case *MapEntry:
		return true, c.writeMapEntry(*val)
	case []any:
		return true, c.writeArray(val)
	case []string:
		if err := c.writeTag(tagArray, len(val)); err != nil {
			return true, err
		}
		for _, s := range val {
			if err := c.WriteStr(s); err != nil {
				return true, err
			}
		}
		return true, nil
	case map[string]any:
		return true, c.writeStringMap(val)
	case map[any]any:
		return true, c.writeAnyMap(val)
	case Iterator:
		return true, c.writeIterator(val)
	case func(func(any) bool):
		return true, c.writeIterator(val)
	case MapWriter:
		return true, c.writeMapEntries(val)
	case func(func(string, any) bool):
		return true, c.writeMapEntries(val)
	}
	return c.writeReflected(v)
}

var byteType = reflect.TypeOf(byte(0))

// writeReflected handles slices, arrays and maps of arbitrary element types.
func (c *Codec) writeReflected(v any) (bool, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem() == byteType {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return true, c.WriteByteArray(b)
		}
		if err := c.writeTag(tagArray, rv.Len()); err != nil {
			return true, err
		}
		for i := 0; i < rv.Len(); i++ {
			if err := c.WriteVal(rv.Index(i).Interface()); err != nil {
				return true, err
			}
		}
		return true, nil
	case reflect.Map:
		m := make(map[any]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().Interface()] = iter.Value().Interface()
		}
		return true, c.writeAnyMap(m)
	}
	return false, nil
}

// --------------------------------------------------------------------------
// Primitives
// --------------------------------------------------------------------------

// writeTag writes a tag and its size. Packed tags carry sizes below 0x1f in
// their low bits; larger sizes set all five bits and append a var-int with
// the remainder. Full-byte tags are followed by the size as a var-int.
func (c *Codec) writeTag(tag byte, size int) error {
	if tag&0xe0 != 0 {
		if size < packedSizeMask {
			return c.w.WriteByte(tag | byte(size))
		}
		if err := c.w.WriteByte(tag | packedSizeMask); err != nil {
			return err
		}
		return writeVInt(c.w, uint64(size-packedSizeMask))
	}
	if err := c.w.WriteByte(tag); err != nil {
		return err
	}
	return writeVInt(c.w, uint64(size))
}

// WriteStr writes a UTF-8 string.
func (c *Codec) WriteStr(s string) error {
	if err := c.writeTag(tagStr, len(s)); err != nil {
		return err
	}
	_, err := c.w.WriteString(s)
	return err
}

// WriteExternString writes s through the per-stream interning table.
// The first occurrence is written in full and assigned the next 1-based
// index; later occurrences write only that index.
func (c *Codec) WriteExternString(s string) error {
	if idx, ok := c.externKeys[s]; ok {
		return c.writeTag(tagExternString, idx)
	}
	if err := c.writeTag(tagExternString, 0); err != nil {
		return err
	}
	if err := c.WriteStr(s); err != nil {
		return err
	}
	if c.externKeys == nil {
		c.externKeys = make(map[string]int)
	}
	c.externKeys[s] = len(c.externKeys) + 1
	return nil
}

// WriteBool writes a boolean.
func (c *Codec) WriteBool(b bool) error {
	if b {
		return c.w.WriteByte(tagBoolTrue)
	}
	return c.w.WriteByte(tagBoolFalse)
}

// WriteInt writes a 32-bit integer. Positive values use the packed small
// int form: four value bits in the tag, the rest as a var-int. Zero and
// negative values use the fixed 4-byte form.
func (c *Codec) WriteInt(v int32) error {
	if v > 0 {
		b := tagSmallInt | byte(v&smallNumMask)
		if v >= smallNumMask {
			if err := c.w.WriteByte(b | smallNumMore); err != nil {
				return err
			}
			return writeVInt(c.w, uint64(uint32(v)>>4))
		}
		return c.w.WriteByte(b)
	}
	if err := c.w.WriteByte(tagInt); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(c.num[:4], uint32(v))
	_, err := c.w.Write(c.num[:4])
	return err
}

// WriteLong writes a 64-bit integer. Positive values whose top byte is zero
// use the packed small long form; everything else uses the fixed 8-byte form.
func (c *Codec) WriteLong(v int64) error {
	if v > 0 && uint64(v)&0xff00000000000000 == 0 {
		b := tagSmallLong | byte(v&smallNumMask)
		if v >= smallNumMask {
			if err := c.w.WriteByte(b | smallNumMore); err != nil {
				return err
			}
			return writeVInt(c.w, uint64(v)>>4)
		}
		return c.w.WriteByte(b)
	}
	if err := c.w.WriteByte(tagLong); err != nil {
		return err
	}
	return c.writeFixed64(uint64(v))
}

// WriteFloat writes a 32-bit IEEE-754 float.
func (c *Codec) WriteFloat(f float32) error {
	if err := c.w.WriteByte(tagFloat); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(c.num[:4], math.Float32bits(f))
	_, err := c.w.Write(c.num[:4])
	return err
}

// WriteDouble writes a 64-bit IEEE-754 float.
func (c *Codec) WriteDouble(f float64) error {
	if err := c.w.WriteByte(tagDouble); err != nil {
		return err
	}
	return c.writeFixed64(math.Float64bits(f))
}

// WriteDate writes t as milliseconds since the epoch.
func (c *Codec) WriteDate(t time.Time) error {
	if err := c.w.WriteByte(tagDate); err != nil {
		return err
	}
	return c.writeFixed64(uint64(t.UnixMilli()))
}

// WriteByteArray writes raw bytes with a var-int length.
func (c *Codec) WriteByteArray(b []byte) error {
	if err := c.writeTag(tagByteArray, len(b)); err != nil {
		return err
	}
	_, err := c.w.Write(b)
	return err
}

func (c *Codec) writeByteVal(v int8) error {
	if err := c.w.WriteByte(tagByte); err != nil {
		return err
	}
	return c.w.WriteByte(byte(v))
}

func (c *Codec) writeShort(v int16) error {
	if err := c.w.WriteByte(tagShort); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(c.num[:2], uint16(v))
	_, err := c.w.Write(c.num[:2])
	return err
}

func (c *Codec) writeFixed64(v uint64) error {
	binary.BigEndian.PutUint64(c.num[:], v)
	_, err := c.w.Write(c.num[:])
	return err
}

// --------------------------------------------------------------------------
// Containers
// --------------------------------------------------------------------------

func (c *Codec) writeArray(values []any) error {
	if err := c.writeTag(tagArray, len(values)); err != nil {
		return err
	}
	for _, v := range values {
		if err := c.WriteVal(v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) writePairs(tag byte, pairs []Pair) error {
	if err := c.writeTag(tag, len(pairs)); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := c.WriteStr(p.Name); err != nil {
			return err
		}
		if err := c.WriteVal(p.Value); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) writeStringMap(m map[string]any) error {
	if err := c.writeTag(tagMap, len(m)); err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := c.WriteExternString(k); err != nil {
			return err
		}
		if err := c.WriteVal(m[k]); err != nil {
			return err
		}
	}
	return nil
}

// writeAnyMap writes keys in the order of their formatted representation so
// equal maps produce equal bytes.
func (c *Codec) writeAnyMap(m map[any]any) error {
	if err := c.writeTag(tagMap, len(m)); err != nil {
		return err
	}
	type entry struct {
		sortKey string
		key     any
	}
	entries := make([]entry, 0, len(m))
	for k := range m {
		entries = append(entries, entry{fmt.Sprintf("%T:%v", k, k), k})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		switch {
		case a.sortKey < b.sortKey:
			return -1
		case a.sortKey > b.sortKey:
			return 1
		}
		return 0
	})
	for _, e := range entries {
		var err error
		if s, ok := e.key.(string); ok {
			err = c.WriteExternString(s)
		} else {
			err = c.WriteVal(e.key)
		}
		if err != nil {
			return err
		}
		if err := c.WriteVal(m[e.key]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) writeIterator(seq func(func(any) bool)) error {
	if err := c.w.WriteByte(tagIterator); err != nil {
		return err
	}
	var err error
	seq(func(v any) bool {
		err = c.WriteVal(v)
		return err == nil
	})
	if err != nil {
		return err
	}
	return c.w.WriteByte(tagEnd)
}

func (c *Codec) writeMapEntries(seq func(func(string, any) bool)) error {
	if err := c.w.WriteByte(tagMapEntryIter); err != nil {
		return err
	}
	var err error
	seq(func(k string, v any) bool {
		if err = c.WriteExternString(k); err != nil {
			return false
		}
		err = c.WriteVal(v)
		return err == nil
	})
	if err != nil {
		return err
	}
	return c.w.WriteByte(tagEnd)
}

func (c *Codec) writeEnumFieldValue(e EnumFieldValue) error {
	if err := c.w.WriteByte(tagEnumFieldValue); err != nil {
		return err
	}
	if err := c.WriteInt(e.Value); err != nil {
		return err
	}
	return c.WriteStr(e.Name)
}

func (c *Codec) writeMapEntry(e MapEntry) error {
	if err := c.w.WriteByte(tagMapEntry); err != nil {
		return err
	}
	if err := c.WriteVal(e.Key); err != nil {
		return err
	}
	return c.WriteVal(e.Value)
}

// --------------------------------------------------------------------------
// Documents
// --------------------------------------------------------------------------

// writeDocument writes the document as an ORDERED_MAP whose entries are the
// writable fields (interned names) followed by the child documents.
func (c *Codec) writeDocument(d *Document) error {
	if d == nil {
		return c.w.WriteByte(tagNull)
	}
	count := 0
	for _, f := range d.Fields {
		if c.isWritable(f.Name) {
			count++
		}
	}
	if err := c.w.WriteByte(tagDocument); err != nil {
		return err
	}
	if err := c.writeTag(tagOrderedMap, count+nonNil(d.Children)); err != nil {
		return err
	}
	for _, f := range d.Fields {
		if !c.isWritable(f.Name) {
			continue
		}
		if err := c.WriteExternString(f.Name); err != nil {
			return err
		}
		if err := c.WriteVal(f.Value); err != nil {
			return err
		}
	}

	c.childDepth++
	defer func() { c.childDepth-- }()
	for _, child := range d.Children {
		if child == nil {
			continue
		}
		if err := c.writeDocument(child); err != nil {
			return err
		}
	}
	return nil
}

// nonNil counts the non-nil entries of docs. Nil children and list entries
// are not written.
func nonNil[D any](docs []*D) int {
	n := 0
	for _, d := range docs {
		if d != nil {
			n++
		}
	}
	return n
}

func (c *Codec) isWritable(name string) bool {
	return c.writable == nil || c.childDepth > 0 || c.writable(name)
}

// writeDocumentList writes the metadata array (numFound, start, maxScore,
// numFoundExact) followed by the array of documents.
func (c *Codec) writeDocumentList(l *DocumentList) error {
	if l == nil {
		return c.w.WriteByte(tagNull)
	}
	if err := c.w.WriteByte(tagDocumentList); err != nil {
		return err
	}
	var maxScore any
	if l.MaxScore != nil {
		maxScore = *l.MaxScore
	}
	if err := c.writeArray([]any{l.NumFound, l.Start, maxScore, l.NumFoundExact}); err != nil {
		return err
	}
	if err := c.writeTag(tagArray, nonNil(l.Docs)); err != nil {
		return err
	}
	for _, d := range l.Docs {
		if d == nil {
			continue
		}
		if err := c.writeDocument(d); err != nil {
			return err
		}
	}
	return nil
}

// writeInputDocument writes the entry count, a document boost of 1.0, the
// fields with interned names and then the child input documents.
func (c *Codec) writeInputDocument(d *InputDocument) error {
	if d == nil {
		return c.w.WriteByte(tagNull)
	}
	count := nonNil(d.Children)
	for _, f := range d.Fields {
		if f.Name != childDocumentsField {
			count++
		}
	}
	if err := c.writeTag(tagInputDocument, count); err != nil {
		return err
	}
	if err := c.WriteFloat(1); err != nil {
		return err
	}
	for _, f := range d.Fields {
		if f.Name == childDocumentsField {
			continue
		}
		if err := c.WriteExternString(f.Name); err != nil {
			return err
		}
		if err := c.WriteVal(f.Value); err != nil {
			return err
		}
	}
	for _, child := range d.Children {
		if child == nil {
			continue
		}
		if err := c.writeInputDocument(child); err != nil {
			return err
		}
	}
	return nil
}
