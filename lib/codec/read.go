package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// largeRead is the size above which payloads are read incrementally instead
// of allocating the announced length up front.
const (
	largeRead   = 1 << 20
	maxPrealloc = 1024
)

// MaxDepth is the deepest container nesting the reader accepts.
const MaxDepth = 1000

// endMarker is returned by readAny when an END tag terminates a stream.
type endMarker struct{}

// --------------------------------------------------------------------------
// Value Dispatch
// --------------------------------------------------------------------------

// ReadVal reads one value. It can be called by code that decodes custom
// payloads while an Unmarshal is in progress.
func (c *Codec) ReadVal() (any, error) {
	v, err := c.readAny()
	if err != nil {
		return nil, err
	}
	if _, end := v.(endMarker); end {
		return nil, errors.New("unexpected END outside of a streamed collection")
	}
	return v, nil
}

// readAny reads one tagged value and bounds the nesting of containers, so
// hostile input fails with ErrTooDeep instead of exhausting the stack.
func (c *Codec) readAny() (any, error) {
	if c.depth >= MaxDepth {
		return nil, fmt.Errorf("%w: more than %d levels", ErrTooDeep, MaxDepth)
	}
	c.depth++
	v, err := c.readTagged()
	c.depth--
	return v, err
}

func (c *Codec) readTagged() (any, error) {
	tag, err := c.readByte()
	if err != nil {
		return nil, err
	}
	c.tag = tag

	switch tag >> 5 {
	case tagStr >> 5:
		return c.readStr(tag)
	case tagSmallInt >> 5:
		return c.readSmallInt(tag)
	case tagSmallLong >> 5:
		return c.readSmallLong(tag)
	case tagArray >> 5:
		return c.readArray(tag)
	case tagOrderedMap >> 5:
		pairs, err := c.readPairs(tag)
		return OrderedMap(pairs), err
	case tagNamedList >> 5:
		pairs, err := c.readPairs(tag)
		return NamedList(pairs), err
	case tagExternString >> 5:
		return c.readExternString(tag)
	}

	switch tag {
	case tagNull:
		return nil, nil
	case tagBoolTrue:
		return true, nil
	case tagBoolFalse:
		return false, nil
	case tagByte:
		b, err := c.readByte()
		return int8(b), err
	case tagShort:
		b, err := c.readFixed(2)
		if err != nil {
			return nil, err
		}
		return int16(binary.BigEndian.Uint16(b)), nil
	case tagInt:
		b, err := c.readFixed(4)
		if err != nil {
			return nil, err
		}
		return int32(binary.BigEndian.Uint32(b)), nil
	case tagLong:
		b, err := c.readFixed(8)
		if err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint64(b)), nil
	case tagFloat:
		return c.readFloat()
	case tagDouble:
		b, err := c.readFixed(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	case tagDate:
		b, err := c.readFixed(8)
		if err != nil {
			return nil, err
		}
		return time.UnixMilli(int64(binary.BigEndian.Uint64(b))).UTC(), nil
	case tagByteArray:
		n, err := c.readVSize()
		if err != nil {
			return nil, err
		}
		return c.readBytes(n)
	case tagMap:
		return c.readMap()
	case tagMapEntryIter:
		return c.readMapEntries()
	case tagIterator:
		return c.readIterator()
	case tagEnd:
		return endMarker{}, nil
	case tagDocument:
		return c.readDocument()
	case tagDocumentList:
		return c.readDocumentList()
	case tagInputDocument:
		return c.readInputDocument()
	case tagEnumFieldValue:
		return c.readEnumFieldValue()
	case tagMapEntry:
		return c.readMapEntry()
	}
	return nil, fmt.Errorf("%w 0x%02x", ErrUnknownTag, tag)
}

// --------------------------------------------------------------------------
// Primitives
// --------------------------------------------------------------------------

// countingReader tracks how many bytes were consumed for error reporting.
type countingReader struct {
	r *bufio.Reader
	n int64
}

func (cr *countingReader) ReadByte() (byte, error) {
	b, err := cr.r.ReadByte()
	if err == nil {
		cr.n++
	}
	return b, err
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

func (c *Codec) readByte() (byte, error) {
	return c.in.ReadByte()
}

// readFixed reads n (at most 8) bytes into the codec's number buffer.
func (c *Codec) readFixed(n int) ([]byte, error) {
	_, err := io.ReadFull(c.in, c.num[:n])
	return c.num[:n], err
}

// readBytes reads n bytes into a newly allocated slice.
func (c *Codec) readBytes(n int) ([]byte, error) {
	if n <= largeRead {
		b := make([]byte, n)
		_, err := io.ReadFull(c.in, b)
		return b, err
	}
	var buf bytes.Buffer
	_, err := io.CopyN(&buf, c.in, int64(n))
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readSize decodes the size carried by a packed tag.
func (c *Codec) readSize(tag byte) (int, error) {
	size := int(tag & packedSizeMask)
	if size != packedSizeMask {
		return size, nil
	}
	more, err := c.readVSize()
	if err != nil {
		return 0, err
	}
	return size + more, nil
}

// readVSize reads a var-int that is used as a length or count.
func (c *Codec) readVSize() (int, error) {
	v, err := readVInt(c.in)
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 {
		return 0, fmt.Errorf("size %d out of range", v)
	}
	return int(v), nil
}

func (c *Codec) readSmallInt(tag byte) (int32, error) {
	v := int32(tag & smallNumMask)
	if tag&smallNumMore != 0 {
		more, err := readVInt(c.in)
		if err != nil {
			return 0, err
		}
		if more > math.MaxInt32>>4 {
			return 0, fmt.Errorf("small int continuation %d out of range", more)
		}
		v |= int32(uint32(more << 4))
	}
	return v, nil
}

func (c *Codec) readSmallLong(tag byte) (int64, error) {
	v := int64(tag & smallNumMask)
	if tag&smallNumMore != 0 {
		more, err := readVInt(c.in)
		if err != nil {
			return 0, err
		}
		if more > math.MaxInt64>>4 {
			return 0, fmt.Errorf("small long continuation %d out of range", more)
		}
		v |= int64(more << 4)
	}
	return v, nil
}

func (c *Codec) readFloat() (float32, error) {
	b, err := c.readFixed(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
}

// readStr reads the payload of a STR tag.
func (c *Codec) readStr(tag byte) (string, error) {
	if tag>>5 != tagStr>>5 {
		return "", fmt.Errorf("expected STR, found tag 0x%02x", tag)
	}
	n, err := c.readSize(tag)
	if err != nil {
		return "", err
	}
	if n > largeRead {
		b, err := c.readBytes(n)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	if cap(c.scratch) < n {
		c.scratch = make([]byte, n)
	}
	b := c.scratch[:n]
	if _, err := io.ReadFull(c.in, b); err != nil {
		return "", err
	}
	if c.cache != nil {
		return c.cache.Get(b), nil
	}
	return string(b), nil
}

// readExternString resolves a back-reference, or reads and records a new
// string when the index is zero.
func (c *Codec) readExternString(tag byte) (string, error) {
	idx, err := c.readSize(tag)
	if err != nil {
		return "", err
	}
	if idx != 0 {
		if idx > len(c.externTable) {
			return "", fmt.Errorf("extern string index %d out of range (%d known)", idx, len(c.externTable))
		}
		return c.externTable[idx-1], nil
	}
	strTag, err := c.readByte()
	if err != nil {
		return "", err
	}
	c.tag = strTag
	s, err := c.readStr(strTag)
	if err != nil {
		return "", err
	}
	c.externTable = append(c.externTable, s)
	return s, nil
}

// --------------------------------------------------------------------------
// Containers
// --------------------------------------------------------------------------

func (c *Codec) readArray(tag byte) ([]any, error) {
	n, err := c.readSize(tag)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, min(n, maxPrealloc))
	for i := 0; i < n; i++ {
		v, err := c.ReadVal()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Codec) readPairs(tag byte) ([]Pair, error) {
	n, err := c.readSize(tag)
	if err != nil {
		return nil, err
	}
	out := make([]Pair, 0, min(n, maxPrealloc))
	for i := 0; i < n; i++ {
		name, err := c.readName()
		if err != nil {
			return nil, err
		}
		v, err := c.ReadVal()
		if err != nil {
			return nil, err
		}
		out = append(out, Pair{name, v})
	}
	return out, nil
}

// readName reads the name of a named list or ordered map entry. Null names
// are allowed there and read as "".
func (c *Codec) readName() (string, error) {
	v, err := c.ReadVal()
	if err != nil || v == nil {
		return "", err
	}
	return asName(v)
}

// asName returns v as a field name. Document fields must have string names.
func asName(v any) (string, error) {
	if n, ok := v.(string); ok {
		return n, nil
	}
	return "", fmt.Errorf("expected a name, found %T", v)
}

func (c *Codec) readMap() (any, error) {
	n, err := c.readVSize()
	if err != nil {
		return nil, err
	}
	keys := make([]any, 0, min(n, maxPrealloc))
	vals := make([]any, 0, min(n, maxPrealloc))
	for i := 0; i < n; i++ {
		k, err := c.ReadVal()
		if err != nil {
			return nil, err
		}
		v, err := c.ReadVal()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}
	return buildMap(keys, vals)
}

func (c *Codec) readMapEntries() (any, error) {
	var keys, vals []any
	for {
		k, err := c.readAny()
		if err != nil {
			return nil, err
		}
		if _, end := k.(endMarker); end {
			break
		}
		v, err := c.ReadVal()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}
	return buildMap(keys, vals)
}

// buildMap returns map[string]any when every key is a string and
// map[any]any otherwise.
func buildMap(keys, vals []any) (m any, err error) {
	allStrings := true
	for _, k := range keys {
		if _, ok := k.(string); !ok {
			allStrings = false
			break
		}
	}
	if allStrings {
		sm := make(map[string]any, len(keys))
		for i, k := range keys {
			sm[k.(string)] = vals[i]
		}
		return sm, nil
	}

	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("map key is not hashable: %v", r)
		}
	}()
	am := make(map[any]any, len(keys))
	for i, k := range keys {
		am[k] = vals[i]
	}
	return am, nil
}

func (c *Codec) readIterator() ([]any, error) {
	out := []any{}
	for {
		v, err := c.readAny()
		if err != nil {
			return nil, err
		}
		if _, end := v.(endMarker); end {
			return out, nil
		}
		out = append(out, v)
	}
}

func (c *Codec) readEnumFieldValue() (EnumFieldValue, error) {
	v, err := c.ReadVal()
	if err != nil {
		return EnumFieldValue{}, err
	}
	ordinal, ok := v.(int32)
	if !ok {
		return EnumFieldValue{}, fmt.Errorf("enum value must be an int, found %T", v)
	}
	strTag, err := c.readByte()
	if err != nil {
		return EnumFieldValue{}, err
	}
	c.tag = strTag
	name, err := c.readStr(strTag)
	if err != nil {
		return EnumFieldValue{}, err
	}
	return EnumFieldValue{Value: ordinal, Name: name}, nil
}

func (c *Codec) readMapEntry() (MapEntry, error) {
	k, err := c.ReadVal()
	if err != nil {
		return MapEntry{}, err
	}
	v, err := c.ReadVal()
	if err != nil {
		return MapEntry{}, err
	}
	return MapEntry{Key: k, Value: v}, nil
}

// --------------------------------------------------------------------------
// Documents
// --------------------------------------------------------------------------

// readDocument reads the ORDERED_MAP body of a document. An entry whose key
// decodes to a document is a child; any other key is a field name followed
// by its value.
func (c *Codec) readDocument() (*Document, error) {
	mapTag, err := c.readByte()
	if err != nil {
		return nil, err
	}
	c.tag = mapTag
	if mapTag>>5 != tagOrderedMap>>5 {
		return nil, fmt.Errorf("document body must be ORDERED_MAP, found tag 0x%02x", mapTag)
	}
	n, err := c.readSize(mapTag)
	if err != nil {
		return nil, err
	}
	doc := NewDocument()
	for i := 0; i < n; i++ {
		k, err := c.ReadVal()
		if err != nil {
			return nil, err
		}
		if child, ok := k.(*Document); ok {
			doc.AddChild(child)
			continue
		}
		name, err := asName(k)
		if err != nil {
			return nil, err
		}
		v, err := c.ReadVal()
		if err != nil {
			return nil, err
		}
		doc.Set(name, v)
	}
	return doc, nil
}

func (c *Codec) readDocumentList() (*DocumentList, error) {
	v, err := c.ReadVal()
	if err != nil {
		return nil, err
	}
	meta, ok := v.([]any)
	if !ok || len(meta) < 3 {
		return nil, fmt.Errorf("document list header must be an array of at least 3 values, found %T", v)
	}
	list := &DocumentList{}
	if list.NumFound, ok = meta[0].(int64); !ok {
		return nil, fmt.Errorf("document list numFound must be a long, found %T", meta[0])
	}
	if list.Start, ok = meta[1].(int64); !ok {
		return nil, fmt.Errorf("document list start must be a long, found %T", meta[1])
	}
	switch score := meta[2].(type) {
	case nil:
	case float32:
		list.MaxScore = &score
	default:
		return nil, fmt.Errorf("document list maxScore must be a float, found %T", meta[2])
	}
	if len(meta) > 3 {
		if list.NumFoundExact, ok = meta[3].(bool); !ok {
			return nil, fmt.Errorf("document list numFoundExact must be a bool, found %T", meta[3])
		}
	}

	v, err = c.ReadVal()
	if err != nil {
		return nil, err
	}
	docs, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("document list body must be an array, found %T", v)
	}
	for _, d := range docs {
		doc, ok := d.(*Document)
		if !ok {
			return nil, fmt.Errorf("document list entry must be a document, found %T", d)
		}
		list.Docs = append(list.Docs, doc)
	}
	return list, nil
}

// readInputDocument reads the entry count and document boost, then fields
// and children. A float in name position is a field boost and the name
// follows it. Boosts other than 1.0 are ignored.
func (c *Codec) readInputDocument() (*InputDocument, error) {
	n, err := c.readVSize()
	if err != nil {
		return nil, err
	}
	v, err := c.ReadVal()
	if err != nil {
		return nil, err
	}
	boost, ok := v.(float32)
	if !ok {
		return nil, fmt.Errorf("input document boost must be a float, found %T", v)
	}
	if boost != 1 {
		log.Debugf("ignoring document boost %v, index-time boosts are not supported", boost)
	}

	doc := NewInputDocument()
	for i := 0; i < n; i++ {
		k, err := c.ReadVal()
		if err != nil {
			return nil, err
		}
		switch key := k.(type) {
		case *InputDocument:
			doc.AddChild(key)
			continue
		case float32:
			if key != 1 {
				log.Debugf("ignoring field boost %v, index-time boosts are not supported", key)
			}
			if k, err = c.ReadVal(); err != nil {
				return nil, err
			}
		}
		name, err := asName(k)
		if err != nil {
			return nil, err
		}
		fv, err := c.ReadVal()
		if err != nil {
			return nil, err
		}
		doc.Set(name, fv)
	}
	return doc, nil
}

// decodeErr wraps err with the current position. End of input anywhere in
// a value is reported as io.ErrUnexpectedEOF.
func (c *Codec) decodeErr(err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	var offset int64
	if c.in != nil {
		offset = c.in.n
	}
	return &DecodeError{Offset: offset, Tag: c.tag, Err: err}
}
