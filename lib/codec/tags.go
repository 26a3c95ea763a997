package codec

// Version is the format version written as the first byte of every stream.
const Version byte = 2

// Full-byte tags. The value follows the tag directly.
const (
	tagNull           byte = 0
	tagBoolTrue       byte = 1
	tagBoolFalse      byte = 2
	tagByte           byte = 3
	tagShort          byte = 4
	tagDouble         byte = 5
	tagInt            byte = 6
	tagLong           byte = 7
	tagFloat          byte = 8
	tagDate           byte = 9
	tagMap            byte = 10
	tagDocument       byte = 11
	tagDocumentList   byte = 12
	tagByteArray      byte = 13
	tagIterator       byte = 14
	tagEnd            byte = 15
	tagInputDocument  byte = 16
	tagMapEntryIter   byte = 17
	tagEnumFieldValue byte = 18
	tagMapEntry       byte = 19

	// 20, 21 and 22 are reserved (uuid and two unused string forms) and are
	// rejected by the reader.
	tagUUID byte = 20
)

// Packed tags. The upper three bits select the kind and the lower five bits
// carry a small size or value; 0x1f means a var-int with the remainder follows.
const (
	tagStr          byte = 1 << 5
	tagSmallInt     byte = 2 << 5
	tagSmallLong    byte = 3 << 5
	tagArray        byte = 4 << 5
	tagOrderedMap   byte = 5 << 5
	tagNamedList    byte = 6 << 5
	tagExternString byte = 7 << 5
)

const (
	packedSizeMask = 0x1f
	smallNumMask   = 0x0f
	smallNumMore   = 0x10
)

// tagName returns a readable name for a tag byte, used in error messages.
func tagName(tag byte) string {
	switch tag >> 5 {
	case tagStr >> 5:
		return "STR"
	case tagSmallInt >> 5:
		return "SINT"
	case tagSmallLong >> 5:
		return "SLONG"
	case tagArray >> 5:
		return "ARR"
	case tagOrderedMap >> 5:
		return "ORDERED_MAP"
	case tagNamedList >> 5:
		return "NAMED_LST"
	case tagExternString >> 5:
		return "EXTERN_STRING"
	}
	switch tag {
	case tagNull:
		return "NULL"
	case tagBoolTrue:
		return "BOOL_TRUE"
	case tagBoolFalse:
		return "BOOL_FALSE"
	case tagByte:
		return "BYTE"
	case tagShort:
		return "SHORT"
	case tagDouble:
		return "DOUBLE"
	case tagInt:
		return "INT"
	case tagLong:
		return "LONG"
	case tagFloat:
		return "FLOAT"
	case tagDate:
		return "DATE"
	case tagMap:
		return "MAP"
	case tagDocument:
		return "SOLRDOC"
	case tagDocumentList:
		return "SOLRDOCLST"
	case tagByteArray:
		return "BYTEARR"
	case tagIterator:
		return "ITERATOR"
	case tagEnd:
		return "END"
	case tagInputDocument:
		return "SOLRINPUTDOC"
	case tagMapEntryIter:
		return "MAP_ENTRY_ITER"
	case tagEnumFieldValue:
		return "ENUM_FIELD_VALUE"
	case tagMapEntry:
		return "MAP_ENTRY"
	case tagUUID:
		return "UUID"
	}
	return "UNKNOWN"
}
