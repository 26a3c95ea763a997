package codec

import (
	"iter"
)

// --------------------------------------------------------------------------
// Ordered Collections
// --------------------------------------------------------------------------

// Pair is a single name/value entry of an OrderedMap, NamedList or document.
type Pair struct {
	Name  string
	Value any
}

// NamedList is an ordered list of name/value pairs. Names may repeat.
// It is written with the NAMED_LST tag.
type NamedList []Pair

// OrderedMap has the same shape as NamedList but is written with the
// ORDERED_MAP tag. Names may repeat; Get returns the first match.
type OrderedMap []Pair

// Add appends a pair and returns the extended list.
func (l NamedList) Add(name string, v any) NamedList { return append(l, Pair{name, v}) }

// Get returns the value of the first pair called name.
func (l NamedList) Get(name string) (any, bool) { return lookup(l, name) }

// Names returns the names in order.
func (l NamedList) Names() []string { return names(l) }

// Add appends a pair and returns the extended map.
func (m OrderedMap) Add(name string, v any) OrderedMap { return append(m, Pair{name, v}) }

// Get returns the value of the first pair called name.
func (m OrderedMap) Get(name string) (any, bool) { return lookup(m, name) }

// Names returns the names in order.
func (m OrderedMap) Names() []string { return names(m) }

func lookup(pairs []Pair, name string) (any, bool) {
	for _, p := range pairs {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

func names(pairs []Pair) []string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.Name
	}
	return out
}

// --------------------------------------------------------------------------
// Documents
// --------------------------------------------------------------------------

// Document is a record of uniquely named fields (kept in insertion order)
// plus optional nested child documents.
type Document struct {
	Fields   []Pair
	Children []*Document
}

// NewDocument returns an empty document.
func NewDocument() *Document { return &Document{} }

// Set stores v under name, replacing an existing field of that name in place.
func (d *Document) Set(name string, v any) *Document {
	d.Fields = setField(d.Fields, name, v)
	return d
}

// Get returns the value of a field.
func (d *Document) Get(name string) (any, bool) { return lookup(d.Fields, name) }

// Remove deletes a field and reports whether it existed.
func (d *Document) Remove(name string) bool {
	var ok bool
	d.Fields, ok = removeField(d.Fields, name)
	return ok
}

// AddChild appends a nested document.
func (d *Document) AddChild(c *Document) *Document {
	d.Children = append(d.Children, c)
	return d
}

// InputDocument is the write-side form of a document. It is encoded with an
// explicit size and a document boost that is always 1.0.
type InputDocument struct {
	Fields   []Pair
	Children []*InputDocument
}

// NewInputDocument returns an empty input document.
func NewInputDocument() *InputDocument { return &InputDocument{} }

// Set stores v under name, replacing an existing field of that name in place.
func (d *InputDocument) Set(name string, v any) *InputDocument {
	d.Fields = setField(d.Fields, name, v)
	return d
}

// Get returns the value of a field.
func (d *InputDocument) Get(name string) (any, bool) { return lookup(d.Fields, name) }

// AddChild appends a nested input document.
func (d *InputDocument) AddChild(c *InputDocument) *InputDocument {
	d.Children = append(d.Children, c)
	return d
}

func setField(fields []Pair, name string, v any) []Pair {
	for i := range fields {
		if fields[i].Name == name {
			fields[i].Value = v
			return fields
		}
	}
	return append(fields, Pair{name, v})
}

func removeField(fields []Pair, name string) ([]Pair, bool) {
	for i := range fields {
		if fields[i].Name == name {
			return append(fields[:i], fields[i+1:]...), true
		}
	}
	return fields, false
}

// DocumentList is a page of documents with its result metadata.
type DocumentList struct {
	NumFound      int64
	Start         int64
	MaxScore      *float32 // nil when no score was computed
	NumFoundExact bool
	Docs          []*Document
}

// --------------------------------------------------------------------------
// Small Value Kinds
// --------------------------------------------------------------------------

// EnumFieldValue is an enum value carrying both its ordinal and its label.
type EnumFieldValue struct {
	Value int32
	Name  string
}

// MapEntry is a single key/value association written on its own.
type MapEntry struct {
	Key   any
	Value any
}

// ExternString is a string written through the interning path: the first
// occurrence is sent in full, later ones as a back-reference. It decodes to a
// plain string.
type ExternString string

// Iterator is written as ITERATOR, its values, END. The reader returns []any.
type Iterator = iter.Seq[any]

// MapWriter is written as MAP_ENTRY_ITER, its pairs with interned keys, END.
// The reader returns a map.
type MapWriter = iter.Seq2[string, any]
