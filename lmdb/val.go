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

/*
#include <stdlib.h>
#include "lmdbenv.h"
*/
import "C"

import (
	"unsafe"
)

// Val is a single MDB_val slot allocated on the C heap. The slot is reused
// for every native call made by its owning transaction or cursor, so the
// byte view returned by Bytes is only valid until the next such call.
type Val struct {
	p *C.MDB_val
}

func newVal() *Val {
	return &Val{
		p: (*C.MDB_val)(C.malloc(C.size_t(unsafe.Sizeof(C.MDB_val{})))),
	}
}

func (v *Val) free() {
	if v.p != nil {
		C.free(unsafe.Pointer(v.p))
		v.p = nil
	}
}

func (v *Val) clear() {
	v.p.mv_data = nil
	v.p.mv_size = 0
}

// Bytes returns the current contents of the slot as a byte slice aliasing
// LMDB-owned memory. The slice is invalidated by the next operation on the
// owning transaction or cursor. Returns nil for an empty slot.
func (v *Val) Bytes() []byte {
	if v.p == nil || v.p.mv_data == nil {
		return nil
	}
	return unsafe.Slice((*byte)(v.p.mv_data), int(v.p.mv_size))
}

// Size returns the size recorded in the slot.
func (v *Val) Size() int {
	if v.p == nil {
		return 0
	}
	return int(v.p.mv_size)
}

// KeyVal owns the pair of MDB_val slots a transaction or cursor routes all
// of its key and value traffic through. The same two slots are reused for
// every call; callers must consume (or copy) the contents before the next
// one.
type KeyVal struct {
	key *Val
	val *Val
}

func newKeyVal() *KeyVal {
	return &KeyVal{key: newVal(), val: newVal()}
}

func (kv *KeyVal) free() {
	kv.key.free()
	kv.val.free()
}

func (kv *KeyVal) clear() {
	kv.key.clear()
	kv.val.clear()
}

// Key returns the current key view. It aliases LMDB-owned memory.
func (kv *KeyVal) Key() []byte { return kv.key.Bytes() }

// Val returns the current value view. It aliases LMDB-owned memory.
func (kv *KeyVal) Val() []byte { return kv.val.Bytes() }

// CopyKey returns a copy of the current key that survives further
// operations.
func (kv *KeyVal) CopyKey() []byte { return copyBytes(kv.key.Bytes()) }

// CopyVal returns a copy of the current value that survives further
// operations.
func (kv *KeyVal) CopyVal() []byte { return copyBytes(kv.val.Bytes()) }

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

// valBytes returns the data pointer and length of b for passing to the C
// calling wrappers. A nil or empty slice is passed as a one-byte dummy
// pointer with zero length so that cgo does not reject the call.
func valBytes(b []byte) (*C.char, C.size_t) {
	if len(b) == 0 {
		return (*C.char)(unsafe.Pointer(&zeroByte)), 0
	}
	return (*C.char)(unsafe.Pointer(&b[0])), C.size_t(len(b))
}

var zeroByte byte
