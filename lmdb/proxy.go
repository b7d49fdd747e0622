// Copyright 2023 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.
package lmdb

import (
	"bytes"
)

// BufferProxy marshals a caller buffer type to and from the MDB_val slots
// the binding routes all native traffic through. The base transaction and
// cursor API works on byte slices; a proxy lets a Database expose any
// buffer representation on top of that without copies.
//
// In returns the readable bytes of buf. The returned slice must stay
// reachable and unmodified for the duration of the native call it feeds.
// Out materializes a buffer from a result slot; for a zero-copy proxy the
// result aliases LMDB-owned memory and follows the same invalidation rules
// as Val.Bytes.
type BufferProxy[T any] interface {
	// Alloc returns a fresh, empty buffer.
	Alloc() T
	// Dealloc releases a buffer obtained from Alloc. Proxies over
	// garbage-collected representations may treat this as a no-op.
	Dealloc(buf T)
	// In returns the readable bytes of buf for a native call.
	In(buf T) []byte
	// Size returns the readable length of buf.
	Size(buf T) int
	// Out materializes a buffer from the given slot.
	Out(v *Val) T
	// Comparator returns the proxy-native comparator matching the
	// ordering of a database opened with flags.
	Comparator(flags DBFlags) func(a, b T) int
	// ContainsPrefix reports whether key starts with prefix.
	ContainsPrefix(key, prefix T) bool
	// IncrementLSB returns prefix with its least significant byte
	// incremented (carrying into higher bytes), and false if the
	// increment overflowed past the most significant byte.
	IncrementLSB(prefix T) (T, bool)
}

// BytesProxy is the direct []byte proxy. Out aliases LMDB memory; callers
// that retain results across operations must copy them, or use
// CopyBytesProxy.
type BytesProxy struct{}

func (BytesProxy) Alloc() []byte { return nil }

func (BytesProxy) Dealloc(buf []byte) {}

func (BytesProxy) In(buf []byte) []byte { return buf }

func (BytesProxy) Size(buf []byte) int { return len(buf) }

func (BytesProxy) Out(v *Val) []byte { return v.Bytes() }

func (BytesProxy) Comparator(flags DBFlags) func(a, b []byte) int {
	return comparatorFor(flags)
}

func (BytesProxy) ContainsPrefix(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}

func (BytesProxy) IncrementLSB(prefix []byte) ([]byte, bool) {
	return incrementLSB(prefix)
}

// CopyBytesProxy behaves like BytesProxy except that Out returns a copy
// that survives subsequent operations on the owning transaction or cursor.
type CopyBytesProxy struct {
	BytesProxy
}

func (CopyBytesProxy) Out(v *Val) []byte { return copyBytes(v.Bytes()) }

// incrementLSB returns a copy of prefix treated as a big unsigned number
// and incremented by one. The second return is false when every byte was
// 0xff and the increment overflowed.
func incrementLSB(prefix []byte) ([]byte, bool) {
	out := copyBytes(prefix)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			return out, true
		}
	}
	return out, false
}
