// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// maxVarintGroups bounds an unsigned varint to ten 7-bit groups.
const maxVarintGroups = 10

var (
	// ErrInsufficientBytes is returned when a read runs past the end of the buffer.
	ErrInsufficientBytes = errors.New("insufficient bytes")
	// ErrTaggedFieldsUnsupported is returned when a tagged-field section is not empty.
	ErrTaggedFieldsUnsupported = errors.New("tagged fields are not supported")
)

// Reader decodes big-endian primitives from a byte slice. Slices returned by
// Read and the bytes readers alias the underlying buffer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for decoding.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining reports how many bytes are left.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Offset reports how many bytes were consumed.
func (r *Reader) Offset() int {
	return r.pos
}

// Read consumes n bytes.
func (r *Reader) Read(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid read length %d", n)
	}
	if r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d have %d", ErrInsufficientBytes, n, r.Remaining())
	}
	start := r.pos
	r.pos += n
	return r.buf[start:r.pos:r.pos], nil
}

// Peek returns the next byte without consuming it.
func (r *Reader) Peek() (byte, error) {
	if r.Remaining() < 1 {
		return 0, fmt.Errorf("%w: need 1 have 0", ErrInsufficientBytes)
	}
	return r.buf[r.pos], nil
}

func (r *Reader) Int8() (int8, error) {
	b, err := r.Read(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

func (r *Reader) Int16() (int16, error) {
	b, err := r.Read(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (r *Reader) Int32() (int32, error) {
	b, err := r.Read(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *Reader) Int64() (int64, error) {
	b, err := r.Read(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.Read(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool: %d", b[0])
	}
}

// UUID reads the most significant half followed by the least significant half.
func (r *Reader) UUID() (uuid.UUID, error) {
	hi, err := r.Int64()
	if err != nil {
		return uuid.Nil, err
	}
	lo, err := r.Int64()
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	binary.BigEndian.PutUint64(id[:8], uint64(hi))
	binary.BigEndian.PutUint64(id[8:], uint64(lo))
	return id, nil
}

// UVarint reads up to ten 7-bit groups, least significant group first. The
// tenth group contributes only its lowest bit.
func (r *Reader) UVarint() (uint64, error) {
	var value uint64
	for i := 0; i < maxVarintGroups; i++ {
		b, err := r.Read(1)
		if err != nil {
			return 0, fmt.Errorf("read uvarint: %w", err)
		}
		if i == maxVarintGroups-1 {
			return value | uint64(b[0])<<63, nil
		}
		value |= uint64(b[0]&0x7f) << (7 * i)
		if b[0]&0x80 == 0 {
			return value, nil
		}
	}
	return value, nil
}

func (r *Reader) String() (string, error) {
	l, err := r.Int16()
	if err != nil {
		return "", err
	}
	if l < 0 {
		return "", fmt.Errorf("invalid string length: %d", l)
	}
	b, err := r.Read(int(l))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) NullableString() (*string, error) {
	l, err := r.Int16()
	if err != nil {
		return nil, err
	}
	if l == -1 {
		return nil, nil
	}
	if l < 0 {
		return nil, fmt.Errorf("invalid string length: %d", l)
	}
	b, err := r.Read(int(l))
	if err != nil {
		return nil, err
	}
	str := string(b)
	return &str, nil
}

// CompactString reads a compact string, mapping null to "".
func (r *Reader) CompactString() (string, error) {
	s, err := r.CompactNullableString()
	if err != nil || s == nil {
		return "", err
	}
	return *s, nil
}

func (r *Reader) CompactNullableString() (*string, error) {
	b, err := r.CompactBytes()
	if err != nil || b == nil {
		return nil, err
	}
	str := string(b)
	return &str, nil
}

// Bytes reads int32-length bytes; -1 is null.
func (r *Reader) Bytes() ([]byte, error) {
	length, err := r.Int32()
	if err != nil {
		return nil, err
	}
	if length == -1 {
		return nil, nil
	}
	if length < 0 {
		return nil, fmt.Errorf("invalid bytes length %d", length)
	}
	return r.Read(int(length))
}

// CompactBytes returns nil for a null value and an empty non-nil slice for
// an empty one.
func (r *Reader) CompactBytes() ([]byte, error) {
	length, err := r.compactLength()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, nil
	}
	if length == 0 {
		return []byte{}, nil
	}
	return r.Read(length)
}

// SkipTaggedFields consumes an empty tagged-field section.
func (r *Reader) SkipTaggedFields() error {
	count, err := r.UVarint()
	if err != nil {
		return fmt.Errorf("read tagged fields: %w", err)
	}
	if count != 0 {
		return fmt.Errorf("%w: %d fields", ErrTaggedFieldsUnsupported, count)
	}
	return nil
}

func (r *Reader) compactLength() (int, error) {
	val, err := r.UVarint()
	if err != nil {
		return 0, err
	}
	if val == 0 {
		return -1, nil
	}
	if val-1 > uint64(r.Remaining()) {
		return 0, fmt.Errorf("%w: need %d have %d", ErrInsufficientBytes, val-1, r.Remaining())
	}
	return int(val - 1), nil
}

// ReadArray reads an int32-counted array. A count of -1 yields nil.
func ReadArray[T any](r *Reader, elem func(*Reader) (T, error)) ([]T, error) {
	n, err := r.Int32()
	if err != nil {
		return nil, fmt.Errorf("read array length: %w", err)
	}
	if n == -1 {
		return nil, nil
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid array length %d", n)
	}
	return readElements(r, int(n), elem)
}

// ReadCompactArray reads a compact array. A null array yields nil.
func ReadCompactArray[T any](r *Reader, elem func(*Reader) (T, error)) ([]T, error) {
	n, err := r.compactLength()
	if err != nil {
		return nil, fmt.Errorf("read compact array length: %w", err)
	}
	if n < 0 {
		return nil, nil
	}
	return readElements(r, n, elem)
}

// ReadCompactDict reads a compact count followed by key/value pairs. A null
// dictionary yields nil.
func ReadCompactDict[K comparable, V any](r *Reader, key func(*Reader) (K, error), value func(*Reader) (V, error)) (map[K]V, error) {
	n, err := r.compactLength()
	if err != nil {
		return nil, fmt.Errorf("read compact dict length: %w", err)
	}
	if n < 0 {
		return nil, nil
	}
	out := make(map[K]V, n)
	for i := 0; i < n; i++ {
		k, err := key(r)
		if err != nil {
			return nil, fmt.Errorf("read dict key %d: %w", i, err)
		}
		v, err := value(r)
		if err != nil {
			return nil, fmt.Errorf("read dict value %d: %w", i, err)
		}
		out[k] = v
	}
	return out, nil
}

func readElements[T any](r *Reader, n int, elem func(*Reader) (T, error)) ([]T, error) {
	if n > r.Remaining() {
		return nil, fmt.Errorf("%w: array of %d elements with %d bytes left", ErrInsufficientBytes, n, r.Remaining())
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		v, err := elem(r)
		if err != nil {
			return nil, fmt.Errorf("read element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Int32Elem and friends adapt Reader methods for the array helpers.
func Int32Elem(r *Reader) (int32, error) { return r.Int32() }
func UUIDElem(r *Reader) (uuid.UUID, error) { return r.UUID() }
func CompactStringElem(r *Reader) (string, error) { return r.CompactString() }
func CompactBytesElem(r *Reader) ([]byte, error) { return r.CompactBytes() }

// Writer appends big-endian primitives to a growing buffer.
type Writer struct {
	buf []byte
}

// NewWriter preallocates capacity bytes.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Write appends raw bytes.
func (w *Writer) Write(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *Writer) Int8(v int8) {
	w.buf = append(w.buf, byte(v))
}

func (w *Writer) Int16(v int16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
}

func (w *Writer) Int32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *Writer) Int64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

func (w *Writer) Bool(v bool) {
	if v {
		w.Int8(1)
	} else {
		w.Int8(0)
	}
}

func (w *Writer) UUID(id uuid.UUID) {
	w.Write(id[:])
}

func (w *Writer) UVarint(v uint64) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

func (w *Writer) String(v string) {
	if len(v) > 0x7fff {
		panic("string too long")
	}
	w.Int16(int16(len(v)))
	w.Write([]byte(v))
}

func (w *Writer) NullableString(v *string) {
	if v == nil {
		w.Int16(-1)
		return
	}
	w.String(*v)
}

func (w *Writer) CompactString(v string) {
	w.compactLength(len(v))
	w.Write([]byte(v))
}

func (w *Writer) CompactNullableString(v *string) {
	if v == nil {
		w.compactLength(-1)
		return
	}
	w.CompactString(*v)
}

// BytesWithLength writes int32-length bytes; nil is written as -1.
func (w *Writer) BytesWithLength(b []byte) {
	if b == nil {
		w.Int32(-1)
		return
	}
	w.Int32(int32(len(b)))
	w.Write(b)
}

// CompactBytes writes nil as null and an empty slice as empty.
func (w *Writer) CompactBytes(b []byte) {
	if b == nil {
		w.compactLength(-1)
		return
	}
	w.compactLength(len(b))
	w.Write(b)
}

// WriteTaggedFields writes an empty tagged-field section.
func (w *Writer) WriteTaggedFields() {
	w.UVarint(0)
}

// Bytes returns the encoded buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) compactLength(length int) {
	if length < 0 {
		w.UVarint(0)
		return
	}
	w.UVarint(uint64(length) + 1)
}

// WriteArray writes an int32-counted array; nil is written as -1.
func WriteArray[T any](w *Writer, items []T, elem func(*Writer, T)) {
	if items == nil {
		w.Int32(-1)
		return
	}
	w.Int32(int32(len(items)))
	for _, item := range items {
		elem(w, item)
	}
}

// WriteCompactArray writes a compact array; nil is written as null.
func WriteCompactArray[T any](w *Writer, items []T, elem func(*Writer, T)) {
	if items == nil {
		w.compactLength(-1)
		return
	}
	w.compactLength(len(items))
	for _, item := range items {
		elem(w, item)
	}
}

// WriteCompactDict writes a compact count followed by key/value pairs in
// map iteration order.
func WriteCompactDict[K comparable, V any](w *Writer, items map[K]V, key func(*Writer, K), value func(*Writer, V)) {
	if items == nil {
		w.compactLength(-1)
		return
	}
	w.compactLength(len(items))
	for k, v := range items {
		key(w, k)
		value(w, v)
	}
}

func Int32Writer(w *Writer, v int32) { w.Int32(v) }
func UUIDWriter(w *Writer, v uuid.UUID) { w.UUID(v) }
func CompactStringWriter(w *Writer, v string) { w.CompactString(v) }
func CompactBytesWriter(w *Writer, v []byte) { w.CompactBytes(v) }
