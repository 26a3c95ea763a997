package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v any, opts ...Option) any {
	t.Helper()
	data, err := Encode(v, opts...)
	require.NoError(t, err)
	out, err := Decode(data, opts...)
	require.NoError(t, err)
	return out
}

// --------------------------------------------------------------------------
// Byte Layout
// --------------------------------------------------------------------------

func TestEncodedBytes(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []byte
	}{
		{"null", nil, []byte{2, 0x00}},
		{"true", true, []byte{2, 0x01}},
		{"false", false, []byte{2, 0x02}},
		{"int 14 is one byte", int32(14), []byte{2, 0x4e}},
		{"int 15 needs continuation", int32(15), []byte{2, 0x5f, 0x00}},
		{"int 16", int32(16), []byte{2, 0x50, 0x01}},
		{"int 300", int32(300), []byte{2, 0x5c, 0x12}},
		{"int 0 is fixed width", int32(0), []byte{2, 0x06, 0, 0, 0, 0}},
		{"int -1 is fixed width", int32(-1), []byte{2, 0x06, 0xff, 0xff, 0xff, 0xff}},
		{"long 0 is fixed width", int64(0), []byte{2, 0x07, 0, 0, 0, 0, 0, 0, 0, 0}},
		{"long 15", int64(15), []byte{2, 0x7f, 0x00}},
		{"long -1 is fixed width", int64(-1), []byte{2, 0x07, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"long with top byte set", int64(1) << 56, []byte{2, 0x07, 0x01, 0, 0, 0, 0, 0, 0, 0}},
		{"byte", int8(-2), []byte{2, 0x03, 0xfe}},
		{"short", int16(258), []byte{2, 0x04, 0x01, 0x02}},
		{"float", float32(1), []byte{2, 0x08, 0x3f, 0x80, 0, 0}},
		{"double", float64(2), []byte{2, 0x05, 0x40, 0, 0, 0, 0, 0, 0, 0}},
		{"date", time.UnixMilli(258), []byte{2, 0x09, 0, 0, 0, 0, 0, 0, 0x01, 0x02}},
		{"empty string", "", []byte{2, 0x20}},
		{"string", "ab", []byte{2, 0x22, 'a', 'b'}},
		{"byte array", []byte{7, 8}, []byte{2, 0x0d, 0x02, 7, 8}},
		{"array", []any{true, nil}, []byte{2, 0x82, 0x01, 0x00}},
		{"named list", NamedList{{"a", true}}, []byte{2, 0xc1, 0x21, 'a', 0x01}},
		{"ordered map", OrderedMap{{"a", false}}, []byte{2, 0xa1, 0x21, 'a', 0x02}},
		{"map", map[string]any{"k": nil}, []byte{2, 0x0a, 0x01, 0xe0, 0x21, 'k', 0x00}},
		{"map entry", MapEntry{Key: "k", Value: true}, []byte{2, 0x13, 0x21, 'k', 0x01}},
		{"enum", EnumFieldValue{Value: 3, Name: "c"}, []byte{2, 0x12, 0x43, 0x21, 'c'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPackedSizeBoundary(t *testing.T) {
	s30 := strings.Repeat("x", 30)
	s31 := strings.Repeat("x", 31)
	s200 := strings.Repeat("x", 200)

	got, err := Encode(s30)
	require.NoError(t, err)
	assert.Equal(t, byte(0x3e), got[1])
	assert.Len(t, got, 2+30)

	got, err = Encode(s31)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x3f, 0x00}, got[1:3])
	assert.Len(t, got, 3+31)

	got, err = Encode(s200)
	require.NoError(t, err)
	assert.Equal(t, byte(0x3f), got[1])
	assert.Len(t, got, 2+vIntLen(200-31)+200)

	for _, s := range []string{s30, s31, s200} {
		assert.Equal(t, s, roundTrip(t, s))
	}

	arr := make([]any, 40)
	for i := range arr {
		arr[i] = int32(i)
	}
	assert.Equal(t, arr, roundTrip(t, arr))
}

func TestExternStringsAreInterned(t *testing.T) {
	in := []any{ExternString("alpha"), ExternString("beta"), ExternString("alpha")}
	data, err := Encode(in)
	require.NoError(t, err)

	want := []byte{2, 0x83,
		0xe0, 0x25, 'a', 'l', 'p', 'h', 'a',
		0xe0, 0x24, 'b', 'e', 't', 'a',
		0xe1,
	}
	assert.Equal(t, want, data)
	assert.Equal(t, 1, bytes.Count(data, []byte("alpha")))

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []any{"alpha", "beta", "alpha"}, out)
}

func TestMapKeysAreInterned(t *testing.T) {
	in := []any{
		map[string]any{"field": int32(1)},
		map[string]any{"field": int32(2)},
	}
	data, err := Encode(in)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, []byte("field")))
	assert.Equal(t, in, roundTrip(t, in))
}

// --------------------------------------------------------------------------
// Round Trips
// --------------------------------------------------------------------------

func TestRoundTrip(t *testing.T) {
	score := float32(3.5)
	tests := []struct {
		name string
		in   any
	}{
		{"nil", nil},
		{"true", true},
		{"false", false},
		{"byte", int8(-128)},
		{"short", int16(-32768)},
		{"int min", int32(-2147483648)},
		{"int max", int32(2147483647)},
		{"int small", int32(1)},
		{"int large", int32(1 << 20)},
		{"long min", int64(-9223372036854775808)},
		{"long max", int64(9223372036854775807)},
		{"long small packed max", int64(1)<<56 - 1},
		{"long 15", int64(15)},
		{"float", float32(-0.25)},
		{"double", 3.141592653589793},
		{"date", time.UnixMilli(1700000000123).UTC()},
		{"string", "héllo wörld"},
		{"empty bytes", []byte{}},
		{"bytes", []byte{0, 1, 2, 255}},
		{"nested arrays", []any{[]any{[]any{[]any{[]any{int32(5)}}}}}},
		{"named list with repeated names", NamedList{{"a", int32(1)}, {"a", int32(2)}, {"", nil}}},
		{"string map", map[string]any{"b": int64(2), "a": "x", "c": []any{true}}},
		{"mixed key map", map[any]any{int32(1): "one", "two": int64(2)}},
		{"enum", EnumFieldValue{Value: 7, Name: "seven"}},
		{"map entry", MapEntry{Key: int32(1), Value: "v"}},
		{"document list", &DocumentList{
			NumFound:      12,
			Start:         10,
			MaxScore:      &score,
			NumFoundExact: true,
			Docs: []*Document{
				NewDocument().Set("id", "1"),
				NewDocument().Set("id", "2"),
			},
		}},
		{"document list without score", &DocumentList{NumFound: 0, Start: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.in, roundTrip(t, tt.in))
		})
	}
}

func TestOrderedMapEndToEnd(t *testing.T) {
	in := OrderedMap{{"q", "*:*"}, {"rows", int32(10)}, {"tags", []any{"a", "b"}}}

	data, err := Encode(in)
	require.NoError(t, err)
	want := []byte{
		2, 0xa3,
		0x21, 'q', 0x23, '*', ':', '*',
		0x24, 'r', 'o', 'w', 's', 0x4a, // rows: one byte instead of INT + 4
		0x24, 't', 'a', 'g', 's', 0x82, 0x21, 'a', 0x21, 'b',
	}
	assert.Equal(t, want, data)
	// a value outside the packed range needs the 5 byte INT form
	wide, err := Encode(OrderedMap{{"q", "*:*"}, {"rows", int32(-10)}, {"tags", []any{"a", "b"}}})
	require.NoError(t, err)
	assert.Equal(t, len(wide)-4, len(data))

	out, err := Decode(data)
	require.NoError(t, err)
	m, ok := out.(OrderedMap)
	require.True(t, ok, "decoded %T", out)
	assert.Equal(t, []string{"q", "rows", "tags"}, m.Names())
	rows, ok := m.Get("rows")
	require.True(t, ok)
	assert.Equal(t, int32(10), rows)
	tags, _ := m.Get("tags")
	assert.Equal(t, []any{"a", "b"}, tags)
	assert.Equal(t, in, m)
}

func TestGoKindsMapping(t *testing.T) {
	var ai atomic.Int64
	ai.Store(99)
	var ab atomic.Bool
	ab.Store(true)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int fits int32", 5, int32(5)},
		{"int needs long", 1 << 40, int64(1 << 40)},
		{"uint8", uint8(200), int32(200)},
		{"uint16", uint16(60000), int32(60000)},
		{"uint32", uint32(4000000000), int64(4000000000)},
		{"uint64", uint64(7), int64(7)},
		{"string slice", []string{"a", "b"}, []any{"a", "b"}},
		{"int slice", []int{1, 2}, []any{int32(1), int32(2)}},
		{"array", [2]int64{3, 4}, []any{int64(3), int64(4)}},
		{"typed map", map[string]int{"a": 1}, map[string]any{"a": int32(1)}},
		{"int keyed map", map[int]bool{1: true}, map[any]any{int32(1): true}},
		{"atomic long", &ai, int64(99)},
		{"atomic bool", &ab, true},
		{"extern string", ExternString("x"), "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, roundTrip(t, tt.in))
		})
	}
}

func TestMapEncodingIsDeterministic(t *testing.T) {
	m := map[string]any{}
	for i := 0; i < 50; i++ {
		m[fmt.Sprintf("k%02d", i)] = int32(i)
	}
	first, err := Encode(m)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Encode(m)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

// --------------------------------------------------------------------------
// Streaming Collections
// --------------------------------------------------------------------------

func TestIterator(t *testing.T) {
	seq := Iterator(func(yield func(any) bool) {
		for i := int32(1); i <= 3; i++ {
			if !yield(i) {
				return
			}
		}
	})
	data, err := Encode(seq)
	require.NoError(t, err)
	assert.Equal(t, byte(0x0e), data[1])
	assert.Equal(t, byte(0x0f), data[len(data)-1])

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []any{int32(1), int32(2), int32(3)}, out)

	empty := func(yield func(any) bool) {}
	assert.Equal(t, []any{}, roundTrip(t, empty))
}

func TestMapWriter(t *testing.T) {
	mw := MapWriter(func(yield func(string, any) bool) {
		_ = yield("a", int32(1)) && yield("b", "two")
	})
	data, err := Encode(mw)
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), data[1])

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int32(1), "b": "two"}, out)
}

// --------------------------------------------------------------------------
// Documents
// --------------------------------------------------------------------------

func TestDocumentWithChildren(t *testing.T) {
	child := NewDocument().Set("id", "c1").Set("kind", "child")
	doc := NewDocument().
		Set("id", "p1").
		Set("title", "parent").
		Set("tags", []any{"a", "b"}).
		AddChild(child).
		AddChild(NewDocument().Set("id", "c2"))

	out := roundTrip(t, doc)
	got, ok := out.(*Document)
	require.True(t, ok)
	assert.Equal(t, doc, got)
	require.Len(t, got.Children, 2)
	id, _ := got.Children[0].Get("id")
	assert.Equal(t, "c1", id)
}

func TestNilChildrenAreSkipped(t *testing.T) {
	doc := NewDocument().Set("id", "1").AddChild(nil).AddChild(NewDocument().Set("id", "2"))
	input := NewInputDocument().Set("id", "1").AddChild(nil)
	list := &DocumentList{NumFound: 2, Docs: []*Document{nil, NewDocument().Set("id", "3")}}

	out := roundTrip(t, []any{doc, input, list, "after"})
	got := out.([]any)
	require.Len(t, got, 4)

	assert.Equal(t, NewDocument().Set("id", "1").AddChild(NewDocument().Set("id", "2")), got[0])
	assert.Equal(t, NewInputDocument().Set("id", "1"), got[1])
	gotList := got[2].(*DocumentList)
	require.Len(t, gotList.Docs, 1)
	assert.Equal(t, NewDocument().Set("id", "3"), gotList.Docs[0])
	assert.Equal(t, "after", got[3])
}

func TestDocumentFieldNamesInterned(t *testing.T) {
	docs := []any{
		NewDocument().Set("identifier", "1"),
		NewDocument().Set("identifier", "2"),
	}
	data, err := Encode(docs)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, []byte("identifier")))
	assert.Equal(t, docs, roundTrip(t, docs))
}

func TestWritableFields(t *testing.T) {
	doc := NewDocument().
		Set("id", "1").
		Set("secret", "s").
		AddChild(NewDocument().Set("id", "2").Set("secret", "child"))

	out := roundTrip(t, doc, WithWritableFields(func(name string) bool { return name != "secret" }))
	got := out.(*Document)

	_, ok := got.Get("secret")
	assert.False(t, ok, "filtered field must not be written")
	id, _ := got.Get("id")
	assert.Equal(t, "1", id)

	require.Len(t, got.Children, 1)
	secret, ok := got.Children[0].Get("secret")
	require.True(t, ok, "children are written in full")
	assert.Equal(t, "child", secret)
}

func TestInputDocument(t *testing.T) {
	doc := NewInputDocument().
		Set("id", "1").
		Set("price", 9.5).
		AddChild(NewInputDocument().Set("id", "1.1"))
	assert.Equal(t, doc, roundTrip(t, doc))

	withChildField := NewInputDocument().Set("id", "2").Set(childDocumentsField, "ignored")
	out := roundTrip(t, withChildField).(*InputDocument)
	assert.Equal(t, NewInputDocument().Set("id", "2"), out)
}

func TestInputDocumentBoostsAreIgnored(t *testing.T) {
	data := []byte{
		2,
		0x10, 0x01, // input document with one entry
		0x08, 0x3f, 0x80, 0x00, 0x00, // document boost 1.0
		0x08, 0x40, 0x00, 0x00, 0x00, // field boost 2.0
		0x21, 'a', // field name
		0x45, // value 5
	}
	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, NewInputDocument().Set("a", int32(5)), out)
}

// --------------------------------------------------------------------------
// Resolvers
// --------------------------------------------------------------------------

type point struct{ X, Y int }

type selfResolving struct{ name string }

func (s selfResolving) Resolve(_ any, c *Codec) (any, error) {
	return nil, c.WriteStr("self:" + s.name)
}

type unknown struct{ A int }

func TestResolver(t *testing.T) {
	replace := WithResolver(ResolverFunc(func(v any, _ *Codec) (any, error) {
		if p, ok := v.(point); ok {
			return OrderedMap{{"x", p.X}, {"y", p.Y}}, nil
		}
		return v, nil
	}))

	t.Run("replacement value", func(t *testing.T) {
		out := roundTrip(t, point{1, 2}, replace)
		assert.Equal(t, OrderedMap{{"x", int32(1)}, {"y", int32(2)}}, out)
	})

	t.Run("resolver writes directly", func(t *testing.T) {
		direct := WithResolver(ResolverFunc(func(v any, c *Codec) (any, error) {
			return nil, c.WriteLong(42)
		}))
		assert.Equal(t, int64(42), roundTrip(t, point{}, direct))
	})

	t.Run("value resolves itself", func(t *testing.T) {
		assert.Equal(t, "self:me", roundTrip(t, selfResolving{"me"}))
	})

	t.Run("unresolved value falls back to string", func(t *testing.T) {
		assert.Equal(t, "codec.unknown:{1}", roundTrip(t, unknown{A: 1}))
		assert.Equal(t, "codec.unknown:{3}", roundTrip(t, unknown{A: 3}, replace))
	})

	t.Run("resolver error", func(t *testing.T) {
		failing := WithResolver(ResolverFunc(func(v any, _ *Codec) (any, error) {
			return nil, errors.New("boom")
		}))
		_, err := Encode(point{}, failing)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEncode)
	})
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

func TestUnknownTags(t *testing.T) {
	for _, tag := range []byte{20, 21, 22, 23, 31} {
		t.Run(fmt.Sprintf("tag %d", tag), func(t *testing.T) {
			_, err := Decode([]byte{2, tag})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)
			assert.ErrorIs(t, err, ErrUnknownTag)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tag, de.Tag)
			assert.Equal(t, int64(2), de.Offset)
		})
	}
}

func TestTruncatedInput(t *testing.T) {
	data, err := Encode(OrderedMap{
		{"q", "*:*"},
		{"rows", int32(1000)},
		{"doc", NewDocument().Set("id", "1").Set("n", int64(-1))},
		{"bytes", []byte{1, 2, 3}},
	})
	require.NoError(t, err)

	for n := 0; n < len(data); n++ {
		_, err := Decode(data[:n])
		require.Error(t, err, "prefix of %d bytes", n)
		assert.ErrorIs(t, err, ErrDecode)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	}
}

func TestMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		is   error
	}{
		{"version mismatch", []byte{1, 0}, ErrVersionMismatch},
		{"end outside iterator", []byte{2, 0x0f}, nil},
		{"extern index out of range", []byte{2, 0xe3}, nil},
		{"unhashable map key", []byte{2, 0x0a, 0x01, 0x80, 0x00}, nil},
		{"document without ordered map", []byte{2, 0x0b, 0x80}, nil},
		{"ordered map name not a string", []byte{2, 0xa1, 0x01, 0x01}, nil},
		{"document field without name", []byte{2, 0x0b, 0xa1, 0x00, 0x01}, nil},
		{"input document field without name", []byte{2, 0x10, 0x01, 0x08, 0x3f, 0x80, 0, 0, 0x00, 0x01}, nil},
		{"small int out of range", []byte{2, 0x5f, 0xff, 0xff, 0xff, 0xff, 0x0f}, nil},
		{"small long out of range", []byte{2, 0x7f, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f}, nil},
		{"var-int overflow", []byte{2, 0x0d, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestNestingLimit(t *testing.T) {
	// ARR of one element, repeated
	nested := func(levels int) []byte {
		return append(append([]byte{2}, bytes.Repeat([]byte{0x81}, levels)...), 0x00)
	}

	v, err := Decode(nested(MaxDepth - 1))
	require.NoError(t, err)
	for i := 0; i < MaxDepth-1; i++ {
		arr, ok := v.([]any)
		require.True(t, ok, "level %d", i)
		v = arr[0]
	}
	assert.Nil(t, v)

	for _, levels := range []int{MaxDepth, 8_000_000} {
		_, err := Decode(nested(levels))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDecode)
		assert.ErrorIs(t, err, ErrTooDeep)
	}

	// documents count as levels too
	doc := NewDocument().Set("id", "0")
	for i := 1; i < MaxDepth; i++ {
		doc = NewDocument().Set("id", fmt.Sprint(i)).AddChild(doc)
	}
	data, err := Encode(doc)
	require.NoError(t, err)
	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrTooDeep)
}

func TestCodecIsSingleUse(t *testing.T) {
	c := New()
	var buf bytes.Buffer
	require.NoError(t, c.Marshal(&buf, int32(1)))
	assert.ErrorIs(t, c.Marshal(&buf, int32(2)), ErrCodecUsed)

	r := New()
	v, err := r.Unmarshal(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, int32(1), v)
	_, err = r.Unmarshal(bytes.NewReader(buf.Bytes()))
	assert.ErrorIs(t, err, ErrCodecUsed)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestMarshalWriterError(t *testing.T) {
	err := New().Marshal(failingWriter{}, "value")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncode)
	assert.Contains(t, err.Error(), "disk full")
}

// --------------------------------------------------------------------------
// String Cache
// --------------------------------------------------------------------------

func TestStringCache(t *testing.T) {
	cache := NewStringCache(16, 0)
	data, err := Encode(OrderedMap{{"name", "value"}, {"long", strings.Repeat("z", 40)}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := Decode(data, WithStringCache(cache))
			assert.NoError(t, err)
			m := out.(OrderedMap)
			assert.Equal(t, []string{"name", "long"}, m.Names())
		}()
	}
	wg.Wait()

	// "name", "value" and "long" are cached, the 40 byte value is too long
	assert.Equal(t, 3, cache.Len())
	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}

func TestStringCacheMaxSize(t *testing.T) {
	cache := NewStringCache(0, 2)
	assert.Equal(t, "a", cache.Get([]byte("a")))
	assert.Equal(t, "b", cache.Get([]byte("b")))
	assert.Equal(t, "c", cache.Get([]byte("c")))
	assert.Equal(t, 2, cache.Len())
}

// --------------------------------------------------------------------------
// Var-Ints
// --------------------------------------------------------------------------

func TestVInt(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 16383, 16384, 1<<32 - 1, 1<<63 + 5, ^uint64(0)} {
		var buf bytes.Buffer
		require.NoError(t, writeVInt(&buf, v))
		assert.Equal(t, vIntLen(v), buf.Len(), "length of %d", v)
		got, err := readVInt(&buf)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}
