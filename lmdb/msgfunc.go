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
	"sync"
)

// mdb_reader_list delivers one text line per callback invocation. The
// callback carries an opaque context word which indexes this registry, so
// no Go pointer crosses the boundary.

type msgctx struct {
	fn  func(string) error
	err error
}

var msgRegistry struct {
	sync.Mutex
	next uintptr
	ctx  map[uintptr]*msgctx
}

func newMsgFunc(fn func(string) error) (uintptr, *msgctx, func()) {
	msgRegistry.Lock()
	defer msgRegistry.Unlock()
	if msgRegistry.ctx == nil {
		msgRegistry.ctx = make(map[uintptr]*msgctx)
	}
	msgRegistry.next++
	handle := msgRegistry.next
	ctx := &msgctx{fn: fn}
	msgRegistry.ctx[handle] = ctx
	done := func() {
		msgRegistry.Lock()
		delete(msgRegistry.ctx, handle)
		msgRegistry.Unlock()
	}
	return handle, ctx, done
}

//export lmdbenvGoMsgFunc
func lmdbenvGoMsgFunc(handle C.size_t, msg *C.char) C.int {
	msgRegistry.Lock()
	ctx := msgRegistry.ctx[uintptr(handle)]
	msgRegistry.Unlock()
	if ctx == nil || ctx.fn == nil {
		return 0
	}
	if err := ctx.fn(C.GoString(msg)); err != nil {
		ctx.err = err
		return -1
	}
	return 0
}
