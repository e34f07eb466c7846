// Package compact implements a byte-sequence value that is either a
// borrowed view of caller-owned memory or an exclusively owned buffer,
// packed into the footprint of a bare pointer/length pair.
package compact

import (
	"bytes"
	"errors"
	"hash/fnv"
	"strings"
	"unicode/utf8"
	"unsafe"
)

// MaxLen is the largest content length a Bytes value can record.
const MaxLen = 1<<32 - 1

// ErrLengthOverflow is returned when new content does not fit the
// 32-bit length field.
var ErrLengthOverflow = errors.New("compact: content length overflows 32-bit length field")

// ownedFlag marks the meta word of values that own their storage. The
// low 32 bits of the meta word hold the content length.
const ownedFlag = 1 << 32

// Bytes holds a byte sequence in two machine words on 64-bit targets:
// the address of the first byte plus a meta word carrying a 32-bit
// length and the ownership bit. That is the same size as a bare
// pointer/length pair, the price being a 4 GiB cap per value.
//
// A borrowed value references memory owned by the caller; the memory
// must stay alive and unmodified for as long as the value is read. An
// owned value holds the sole release obligation for its buffer.
//
// Assignment copies the representation. Handing an owned value off
// transfers the release obligation: the previous copy must no longer be
// released or read. Clone is the only way to duplicate an owned value
// safely.
//
// The zero value is an empty borrowed view and is ready to use.
type Bytes struct {
	ptr  unsafe.Pointer
	meta uint64
}

// Borrow wraps b without copying. The returned value neither allocates
// nor releases anything; b remains owned by the caller.
func Borrow(b []byte) Bytes {
	if uint64(len(b)) > MaxLen {
		panic("compact: borrowed slice exceeds MaxLen")
	}
	return Bytes{ptr: unsafe.Pointer(unsafe.SliceData(b)), meta: uint64(len(b))}
}

// BorrowString wraps the bytes of s without copying.
func BorrowString(s string) Bytes {
	if uint64(len(s)) > MaxLen {
		panic("compact: borrowed string exceeds MaxLen")
	}
	return Bytes{ptr: unsafe.Pointer(unsafe.StringData(s)), meta: uint64(len(s))}
}

// Own adopts b as exclusively owned storage. No bytes are copied:
// ownership of b transfers to the returned value, the caller must stop
// using b, and whoever ends up holding the value must release it
// exactly once.
func Own(b []byte) (Bytes, error) {
	if uint64(len(b)) > MaxLen {
		return Bytes{}, ErrLengthOverflow
	}
	adopt()
	return Bytes{ptr: unsafe.Pointer(unsafe.SliceData(b)), meta: uint64(len(b)) | ownedFlag}, nil
}

// Len returns the content length in bytes.
func (b Bytes) Len() int {
	return int(uint32(b.meta))
}

// Owned reports whether the value exclusively owns its storage.
func (b Bytes) Owned() bool {
	return b.meta&ownedFlag != 0
}

// Bytes returns a read-only view of the content. The view is valid for
// either variant, but only while the value itself is alive and
// unreleased.
func (b Bytes) Bytes() []byte {
	return unsafe.Slice((*byte)(b.ptr), b.Len())
}

// BorrowedBytes returns the content with the lifetime of the referenced
// external memory, which may exceed the value's own. It reports false
// for owned values: nothing else references an owned buffer, so no view
// of it may outlive the value.
func (b Bytes) BorrowedBytes() ([]byte, bool) {
	if b.Owned() {
		return nil, false
	}
	return b.Bytes(), true
}

// Pointer returns the address of the first content byte. It identifies
// storage, not content, and takes no part in equality or hashing.
func (b Bytes) Pointer() unsafe.Pointer {
	return b.ptr
}

// Text decodes the content as UTF-8, substituting U+FFFD for invalid
// sequences. Valid content comes back as a zero-copy view; the result
// allocates only when replacement is actually needed.
func (b Bytes) Text() string {
	if utf8.Valid(b.Bytes()) {
		return unsafe.String((*byte)(b.ptr), b.Len())
	}
	return strings.ToValidUTF8(string(b.Bytes()), string(utf8.RuneError))
}

// Set replaces the content with data, adopting it as owned storage
// without copying. If data exceeds MaxLen, the value is left completely
// untouched and ErrLengthOverflow is returned. On success prior owned
// storage is released; prior borrowed storage is simply dropped, since
// it was never ours to release.
func (b *Bytes) Set(data []byte) error {
	if uint64(len(data)) > MaxLen {
		return ErrLengthOverflow
	}
	if b.Owned() {
		free(b.Bytes())
	}
	adopt()
	b.ptr = unsafe.Pointer(unsafe.SliceData(data))
	b.meta = uint64(len(data)) | ownedFlag
	return nil
}

// Release surrenders owned storage and resets the value to an empty
// borrow. For borrowed values the referenced memory is untouched.
// Release is idempotent on the same copy of a value; releasing two
// copies of one owned value violates the single-owner contract.
func (b *Bytes) Release() {
	if b.Owned() {
		free(b.Bytes())
	}
	b.ptr = nil
	b.meta = 0
}

// Clone returns an independent value with identical content.
//
// A borrowed value clones to another borrow of the same memory: no
// allocation, same address. An owned value clones into a fresh buffer,
// never aliasing the source: a representation bit-copy would leave two
// values racing to release one allocation.
func (b Bytes) Clone() Bytes {
	if !b.Owned() {
		return Bytes{ptr: b.ptr, meta: b.meta}
	}
	dup := allocCopy(b.Bytes())
	return Bytes{ptr: unsafe.Pointer(unsafe.SliceData(dup)), meta: uint64(len(dup)) | ownedFlag}
}

// Equal reports whether both values hold identical content. The storage
// variant and address never participate.
func (b Bytes) Equal(other Bytes) bool {
	return bytes.Equal(b.Bytes(), other.Bytes())
}

// Compare orders values lexicographically by content, returning -1, 0
// or 1 in the manner of bytes.Compare.
func (b Bytes) Compare(other Bytes) int {
	return bytes.Compare(b.Bytes(), other.Bytes())
}

// Sum64 returns an FNV-1a hash of the content. Content-equal values
// hash equally whatever their variant.
func (b Bytes) Sum64() uint64 {
	h := fnv.New64a()
	h.Write(b.Bytes())
	return h.Sum64()
}

// String renders the content as best-effort text for logs, never the
// address.
func (b Bytes) String() string {
	return b.Text()
}
