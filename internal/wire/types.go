// Package wire implements the AllJoyn/D-Bus-style argument encoding used
// by every message body on the bus: the type flag table, the signature
// grammar, in-place endian swapping, and the byte-level marshal/
// unmarshal primitives for each type category. The message-level state
// machine (header, signature cursor, container chain) lives one layer
// up in package message; this package only knows how to read or write
// one value at a time out of an iobuf.IOBuf.
package wire

import "github.com/alljoyn-go/thinclient/internal/status"

// Category groups type characters that share an on-wire shape.
type Category int

const (
	CategoryScalar Category = iota
	CategoryString          // 4-byte length + NUL (STRING, OBJ_PATH)
	CategorySignature       // 1-byte length + NUL (SIGNATURE)
	CategoryVariant         // inline signature, then one value
	CategoryArray
	CategoryStruct
	CategoryDictEntry
)

// Type characters, matching the D-Bus-derived signature grammar the
// bus uses on the wire.
const (
	Byte      = 'y'
	Bool      = 'b'
	Int16     = 'n'
	Uint16    = 'q'
	Int32     = 'i'
	Uint32    = 'u'
	Int64     = 'x'
	Uint64    = 't'
	Double    = 'd'
	Handle    = 'h'
	String    = 's'
	ObjPath   = 'o'
	Signature = 'g'
	Variant   = 'v'
	Array     = 'a'
	StructOpen  = '('
	StructClose = ')'
	DictOpen    = '{'
	DictClose   = '}'
)

// TypeInfo describes the natural alignment, wire category and (for
// fixed-size scalars) byte width of a type character.
type TypeInfo struct {
	Align    int
	Category Category
	Size     int // scalar byte width; 0 for variable-length categories
}

var table = map[byte]TypeInfo{
	Byte:      {1, CategoryScalar, 1},
	Bool:      {4, CategoryScalar, 4},
	Int16:     {2, CategoryScalar, 2},
	Uint16:    {2, CategoryScalar, 2},
	Int32:     {4, CategoryScalar, 4},
	Uint32:    {4, CategoryScalar, 4},
	Int64:     {8, CategoryScalar, 8},
	Uint64:    {8, CategoryScalar, 8},
	Double:    {8, CategoryScalar, 8},
	Handle:    {4, CategoryScalar, 4},
	String:    {4, CategoryString, 0},
	ObjPath:   {4, CategoryString, 0},
	Signature: {1, CategorySignature, 0},
	Variant:   {1, CategoryVariant, 0},
	Array:     {4, CategoryArray, 0},
	StructOpen: {8, CategoryStruct, 0},
	DictOpen:   {8, CategoryDictEntry, 0},
}

// Lookup returns the TypeInfo for a type character, or ok=false if the
// character is not a valid type tag (including the bare close
// characters ')' and '}', which never start a complete type).
func Lookup(c byte) (TypeInfo, bool) {
	info, ok := table[c]
	return info, ok
}

// IsBasic reports whether c is a basic (non-container, non-variant)
// type usable as a dict-entry key or in UnmarshalArgs/MarshalArgs.
func IsBasic(c byte) bool {
	info, ok := table[c]
	return ok && (info.Category == CategoryScalar || info.Category == CategoryString || info.Category == CategorySignature)
}

// CompleteTypeLen returns the length, in characters, of the first
// complete type in sig. A complete type is a single scalar/string
// character, 'v', 'a' followed by a complete type, a parenthesized
// struct, or a braced dict-entry.
func CompleteTypeLen(sig string) (int, status.Status) {
	if len(sig) == 0 {
		return 0, status.EndOfData
	}
	c := sig[0]
	info, ok := table[c]
	if !ok {
		return 0, status.Signature
	}
	switch info.Category {
	case CategoryScalar, CategoryString, CategorySignature, CategoryVariant:
		return 1, status.OK
	case CategoryArray:
		n, st := CompleteTypeLen(sig[1:])
		if st != status.OK {
			return 0, st
		}
		return 1 + n, status.OK
	case CategoryStruct, CategoryDictEntry:
		depth := 1
		i := 1
		for depth > 0 {
			if i >= len(sig) {
				return 0, status.EndOfData
			}
			switch sig[i] {
			case StructOpen, DictOpen:
				depth++
			case StructClose, DictClose:
				depth--
			}
			i++
		}
		return i, status.OK
	}
	return 0, status.Signature
}
