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

/*
Package lmdb provides a safe, typed binding to the LMDB C library.

An Env holds one memory-mapped database file and hands out transactions.
A Txn is either a read-only snapshot or a pending mutation; write
transactions may nest. A DBI names a sub-database inside the environment
and is opened within a transaction, optionally through a DatabaseBuilder
that also installs a key comparator. Cursors give positional access within
a (Txn, DBI) pair, and CursorIterable drives a cursor through a declarative
KeyRange as a lazy sequence.

Buffers returned from Get and cursor operations alias memory owned by LMDB
and stay valid only until the next operation on the same transaction, or
until the transaction ends. Callers that retain data across operations
must copy it first, or go through a CopyBytesProxy.

Write transactions are bound to their OS thread. Use the managed Env.Update
and Env.View helpers unless the calling goroutine is already locked with
runtime.LockOSThread.
*/
package lmdb

/*
#cgo CFLAGS: -pthread -W -Wall -Wno-unused-parameter -O2 -g
#cgo LDFLAGS: -llmdb

#include "lmdbenv.h"
*/
import "C"

// success is the value returned from the LMDB API on a successful call.
const success = C.MDB_SUCCESS

// Version returns the major, minor, and patch version numbers of the LMDB C
// library and a string representation of the version.
//
// See mdb_version.
func Version() (major, minor, patch int, s string) {
	var maj, min, pat C.int
	verstr := C.mdb_version(&maj, &min, &pat)
	return int(maj), int(min), int(pat), C.GoString(verstr)
}

// VersionString returns a string representation of the LMDB C library
// version.
//
// See mdb_version.
func VersionString() string {
	var maj, min, pat C.int
	verstr := C.mdb_version(&maj, &min, &pat)
	return C.GoString(verstr)
}

func cbool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}
