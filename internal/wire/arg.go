package wire

// Arg is a typed value unmarshalled from, or about to be marshalled
// into, an IOBuf. Value is a borrowed view into the owning buffer for
// scalar, string and scalar-array categories: it stays valid only
// until the next cursor-advancing call on that buffer. Containers
// (array-of-container, struct, dict-entry, variant) carry no Value;
// instead Sig describes what comes next and is consumed front-to-back
// as nested arguments are read or written.
type Arg struct {
	Type     byte
	Category Category

	// Value is the raw payload for scalar, string/obj-path, signature
	// and scalar-element-array categories. For scalars it is exactly
	// TypeInfo.Size bytes, already in host (little-endian) order.
	Value []byte

	// Sig is, depending on Category:
	//   Variant: the single complete type that follows (the variant's
	//     inline signature).
	//   Array (non-scalar elements): the element type, reused for
	//     every element.
	//   Struct / DictEntry: the remaining member types not yet
	//     consumed; shrinks from the front as each member is read or
	//     written.
	Sig string

	// ArrayDataStart/ArrayLen bound a non-scalar array's payload in
	// the owning buffer's read-cursor space, so the message layer can
	// detect exhaustion (ERR_NO_MORE) without a separate counter.
	ArrayDataStart int
	ArrayLen       int

	// Outer is the enclosing container, or nil at top level.
	Outer *Arg
}

// IsContainer reports whether this Arg was opened as a container
// (array with non-scalar elements, struct, or dict-entry) and
// therefore needs a matching close.
func (a *Arg) IsContainer() bool {
	switch a.Category {
	case CategoryArray:
		return a.Value == nil
	case CategoryStruct, CategoryDictEntry:
		return true
	default:
		return false
	}
}
