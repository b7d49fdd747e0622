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
#include "lmdbenv.h"
*/
import "C"

import (
	"bytes"
	"encoding/binary"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// Comparator orders two keys. Negative means a sorts before b, zero means
// equal, positive means a sorts after b.
type Comparator func(a, b []byte) int

// CompareBytes is the unsigned byte-wise comparator: lexicographic over the
// common prefix with bytes treated as unsigned, the longer key winning on
// an equal prefix. This matches LMDB's default key ordering.
func CompareBytes(a, b []byte) int {
	return bytes.Compare(a, b)
}

// CompareUint compares keys as native-byte-order unsigned integers of 4 or
// 8 bytes, the ordering LMDB applies to IntegerKey databases. Keys of any
// other width fall back to byte-wise comparison.
func CompareUint(a, b []byte) int {
	if len(a) == len(b) {
		switch len(a) {
		case 4:
			x, y := binary.NativeEndian.Uint32(a), binary.NativeEndian.Uint32(b)
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		case 8:
			x, y := binary.NativeEndian.Uint64(a), binary.NativeEndian.Uint64(b)
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	return bytes.Compare(a, b)
}

// comparatorFor picks the in-process comparator matching the ordering of a
// database opened with flags.
func comparatorFor(flags DBFlags) Comparator {
	if flags.Has(IntegerKey) {
		return CompareUint
	}
	return CompareBytes
}

// User comparator callbacks are dispatched through a fixed table of C
// trampolines because mdb_set_compare carries no user-data argument. Each
// registered (env, dbi) pair claims one slot; slots are released when the
// environment closes, matching the lifetime LMDB itself gives installed
// comparators.

var cmpRegistry struct {
	sync.Mutex
	slots [C.LMDBENV_CMP_SLOTS]Comparator
	owner [C.LMDBENV_CMP_SLOTS]*Env
}

var errCmpSlotsExhausted = errors.Errorf(
	"no free comparator slots (max %d per process)", C.LMDBENV_CMP_SLOTS)

func registerComparator(env *Env, cmp Comparator) (int, error) {
	cmpRegistry.Lock()
	defer cmpRegistry.Unlock()
	for i := range cmpRegistry.slots {
		if cmpRegistry.slots[i] == nil {
			cmpRegistry.slots[i] = cmp
			cmpRegistry.owner[i] = env
			return i, nil
		}
	}
	return -1, errCmpSlotsExhausted
}

// releaseComparators frees every slot owned by env. Called from Env.Close.
func releaseComparators(env *Env) {
	cmpRegistry.Lock()
	defer cmpRegistry.Unlock()
	for i := range cmpRegistry.slots {
		if cmpRegistry.owner[i] == env {
			cmpRegistry.slots[i] = nil
			cmpRegistry.owner[i] = nil
		}
	}
}

//export lmdbenvGoCompare
func lmdbenvGoCompare(slot C.int, a, b *C.MDB_val) C.int {
	// Runs on the thread performing the insert or lookup, inside the
	// native call. It must not call back into LMDB.
	cmpRegistry.Lock()
	cmp := cmpRegistry.slots[slot]
	cmpRegistry.Unlock()
	if cmp == nil {
		return 0
	}
	ab := unsafe.Slice((*byte)(a.mv_data), int(a.mv_size))
	bb := unsafe.Slice((*byte)(b.mv_data), int(b.mv_size))
	return C.int(cmp(ab, bb))
}
