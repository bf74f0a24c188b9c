package wire

import (
	"encoding/binary"
	"time"

	"github.com/alljoyn-go/thinclient/internal/iobuf"
	"github.com/alljoyn-go/thinclient/internal/status"
)

// ReadScalar consumes one fixed-size scalar of type t, aligning first.
// The returned Arg's Value is always in host (little-endian) order.
func ReadScalar(b *iobuf.IOBuf, t byte, endian Endianness, timeout time.Duration) (*Arg, status.Status) {
	info, ok := Lookup(t)
	if !ok || info.Category != CategoryScalar {
		return nil, status.Signature
	}
	pad := iobuf.PadFor(b.ReadPos(), info.Align)
	if st := b.Fill(info.Size+pad, timeout); st != status.OK {
		return nil, st
	}
	b.SkipRead(pad)
	view, ok := b.Consume(info.Size)
	if !ok {
		return nil, status.EndOfData
	}
	if NeedsSwap(endian) && info.Size > 1 {
		SwapBytes(view)
	}
	return &Arg{Type: t, Category: CategoryScalar, Value: view}, status.OK
}

// ReadString consumes a 4-byte-length-prefixed, NUL-terminated string
// (STRING or OBJ_PATH).
func ReadString(b *iobuf.IOBuf, t byte, endian Endianness, timeout time.Duration) (*Arg, status.Status) {
	pad := iobuf.PadFor(b.ReadPos(), 4)
	if st := b.Fill(4+pad, timeout); st != status.OK {
		return nil, st
	}
	b.SkipRead(pad)
	lenView, ok := b.Consume(4)
	if !ok {
		return nil, status.EndOfData
	}
	n := decodeU32(lenView, endian)
	if st := b.Fill(int(n)+1, timeout); st != status.OK {
		return nil, st
	}
	data, ok := b.Consume(int(n))
	if !ok {
		return nil, status.EndOfData
	}
	b.SkipRead(1) // NUL terminator, not part of the length
	return &Arg{Type: t, Category: CategoryString, Value: data}, status.OK
}

// readLenPrefixed1 consumes a 1-byte-length-prefixed, NUL-terminated
// string: shared shape for SIGNATURE and a variant's inline signature.
func readLenPrefixed1(b *iobuf.IOBuf, timeout time.Duration) ([]byte, status.Status) {
	if st := b.Fill(1, timeout); st != status.OK {
		return nil, st
	}
	lenView, ok := b.Consume(1)
	if !ok {
		return nil, status.EndOfData
	}
	n := int(lenView[0])
	if st := b.Fill(n+1, timeout); st != status.OK {
		return nil, st
	}
	data, ok := b.Consume(n)
	if !ok {
		return nil, status.EndOfData
	}
	b.SkipRead(1)
	return data, status.OK
}

// ReadSignature consumes a SIGNATURE argument.
func ReadSignature(b *iobuf.IOBuf, timeout time.Duration) (*Arg, status.Status) {
	data, st := readLenPrefixed1(b, timeout)
	if st != status.OK {
		return nil, st
	}
	return &Arg{Type: Signature, Category: CategorySignature, Value: data}, status.OK
}

// ReadVariantHeader consumes a variant's inline signature and returns
// a container Arg whose Sig is the one complete type that follows.
func ReadVariantHeader(b *iobuf.IOBuf, timeout time.Duration) (*Arg, status.Status) {
	data, st := readLenPrefixed1(b, timeout)
	if st != status.OK {
		return nil, st
	}
	if _, lenSt := CompleteTypeLen(string(data)); lenSt != status.OK {
		return nil, status.Signature
	}
	return &Arg{Type: Variant, Category: CategoryVariant, Sig: string(data)}, status.OK
}

// ReadArrayHeader consumes an array's 4-byte length and pads to the
// element alignment. elemSig is the element's complete type signature
// (sig[1:CompleteTypeLen(sig)] of the 'a' entry). When the element is a
// fixed-size scalar, the whole payload is consumed and swapped in
// place, producing a single Arg flagged as a scalar array; otherwise a
// container Arg is returned describing the element bounds for the
// message layer to iterate.
func ReadArrayHeader(b *iobuf.IOBuf, endian Endianness, elemSig string, timeout time.Duration) (*Arg, status.Status) {
	pad4 := iobuf.PadFor(b.ReadPos(), 4)
	if st := b.Fill(4+pad4, timeout); st != status.OK {
		return nil, st
	}
	b.SkipRead(pad4)
	lenView, ok := b.Consume(4)
	if !ok {
		return nil, status.EndOfData
	}
	n := decodeU32(lenView, endian)

	elemInfo, ok := Lookup(elemSig[0])
	if !ok {
		return nil, status.Signature
	}
	padElem := iobuf.PadFor(b.ReadPos(), elemInfo.Align)
	if st := b.Fill(int(n)+padElem, timeout); st != status.OK {
		return nil, st
	}
	b.SkipRead(padElem)
	dataStart := b.ReadPos()

	if elemInfo.Category == CategoryScalar {
		payload, ok := b.Consume(int(n))
		if !ok {
			return nil, status.EndOfData
		}
		if NeedsSwap(endian) && elemInfo.Size > 1 {
			for off := 0; off+elemInfo.Size <= len(payload); off += elemInfo.Size {
				SwapBytes(payload[off : off+elemInfo.Size])
			}
		}
		return &Arg{Type: Array, Category: CategoryArray, Value: payload, Sig: elemSig, ArrayLen: int(n)}, status.OK
	}

	return &Arg{Type: Array, Category: CategoryArray, Sig: elemSig, ArrayDataStart: dataStart, ArrayLen: int(n)}, status.OK
}

// ReadStructOpen/ReadDictOpen align to 8 bytes (structs and dict
// entries carry no length field of their own) and return a container
// Arg whose Sig holds the member types to be consumed in order.
func ReadStructOpen(b *iobuf.IOBuf, innerSig string, timeout time.Duration) (*Arg, status.Status) {
	pad := iobuf.PadFor(b.ReadPos(), 8)
	if st := b.Fill(pad, timeout); st != status.OK {
		return nil, st
	}
	b.SkipRead(pad)
	return &Arg{Type: StructOpen, Category: CategoryStruct, Sig: innerSig}, status.OK
}

func ReadDictOpen(b *iobuf.IOBuf, innerSig string, timeout time.Duration) (*Arg, status.Status) {
	pad := iobuf.PadFor(b.ReadPos(), 8)
	if st := b.Fill(pad, timeout); st != status.OK {
		return nil, st
	}
	b.SkipRead(pad)
	return &Arg{Type: DictOpen, Category: CategoryDictEntry, Sig: innerSig}, status.OK
}

// --- marshal side ---

// WriteScalar writes host (little-endian) bytes hostVal, aligning and
// swapping to the wire endianness first.
func WriteScalar(b *iobuf.IOBuf, t byte, endian Endianness, hostVal []byte) status.Status {
	info, ok := Lookup(t)
	if !ok || info.Category != CategoryScalar || len(hostVal) != info.Size {
		return status.Marshal
	}
	pad := iobuf.PadFor(b.WritePos(), info.Align)
	if !b.WriteZeros(pad) {
		return status.Resources
	}
	view, ok := b.Grow(info.Size)
	if !ok {
		return status.Resources
	}
	copy(view, hostVal)
	if NeedsSwap(endian) && info.Size > 1 {
		SwapBytes(view)
	}
	return status.OK
}

// WriteString writes a 4-byte-length-prefixed, NUL-terminated string.
func WriteString(b *iobuf.IOBuf, endian Endianness, data []byte) status.Status {
	pad := iobuf.PadFor(b.WritePos(), 4)
	if !b.WriteZeros(pad) {
		return status.Resources
	}
	var lenBuf [4]byte
	encodeU32(lenBuf[:], uint32(len(data)), endian)
	if !b.Write(lenBuf[:]) || !b.Write(data) || !b.WriteZeros(1) {
		return status.Resources
	}
	return status.OK
}

// WriteSignature writes a 1-byte-length-prefixed, NUL-terminated
// signature string (used directly for SIGNATURE and as the shared
// shape for a variant's inline type tag).
func WriteSignature(b *iobuf.IOBuf, data []byte) status.Status {
	if len(data) > 255 {
		return status.Marshal
	}
	if !b.Write([]byte{byte(len(data))}) || !b.Write(data) || !b.WriteZeros(1) {
		return status.Resources
	}
	return status.OK
}

// ArrayLenPatch describes a pending array length field to be filled in
// once the element payload has been written.
type ArrayLenPatch struct {
	buf     *iobuf.IOBuf
	lenPos  int
	dataPos int
	endian  Endianness
}

// WriteArrayHeader reserves the 4-byte length field, pads to the
// element's alignment, and returns a patch handle; call Close once all
// elements have been written.
func WriteArrayHeader(b *iobuf.IOBuf, endian Endianness, elemAlign int) (ArrayLenPatch, status.Status) {
	pad4 := iobuf.PadFor(b.WritePos(), 4)
	if !b.WriteZeros(pad4) {
		return ArrayLenPatch{}, status.Resources
	}
	lenPos := b.WritePos()
	if !b.WriteZeros(4) {
		return ArrayLenPatch{}, status.Resources
	}
	padElem := iobuf.PadFor(b.WritePos(), elemAlign)
	if !b.WriteZeros(padElem) {
		return ArrayLenPatch{}, status.Resources
	}
	return ArrayLenPatch{buf: b, lenPos: lenPos, dataPos: b.WritePos(), endian: endian}, status.OK
}

// Close patches the array's length field now that the payload has
// been fully written. The payload length excludes the padding between
// the length field and the first element, per the wire invariant.
func (p ArrayLenPatch) Close() status.Status {
	n := p.buf.WritePos() - p.dataPos
	encodeU32(p.buf.Bytes()[p.lenPos:p.lenPos+4], uint32(n), p.endian)
	return status.OK
}

// WriteStructOpen/WriteDictOpen align the write cursor to 8 bytes.
func WriteStructOpen(b *iobuf.IOBuf) status.Status {
	pad := iobuf.PadFor(b.WritePos(), 8)
	if !b.WriteZeros(pad) {
		return status.Resources
	}
	return status.OK
}

func WriteDictOpen(b *iobuf.IOBuf) status.Status {
	return WriteStructOpen(b)
}

func decodeU32(b []byte, endian Endianness) uint32 {
	if endian == BigEndian {
		return binary.BigEndian.Uint32(b)
	}
	return binary.LittleEndian.Uint32(b)
}

func encodeU32(dst []byte, v uint32, endian Endianness) {
	if endian == BigEndian {
		binary.BigEndian.PutUint32(dst, v)
	} else {
		binary.LittleEndian.PutUint32(dst, v)
	}
}
