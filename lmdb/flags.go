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

// EnvFlags is a set of flags for Env.Open.
//
// See mdb_env_open.
type EnvFlags uint

const (
	FixedMap    EnvFlags = C.MDB_FIXEDMAP   // Danger zone. Map memory at a fixed address.
	NoSubdir    EnvFlags = C.MDB_NOSUBDIR   // Argument to Open is a file, not a directory.
	Readonly    EnvFlags = C.MDB_RDONLY     // Open the environment read-only.
	WriteMap    EnvFlags = C.MDB_WRITEMAP   // Use a writable memory map.
	NoMetaSync  EnvFlags = C.MDB_NOMETASYNC // Don't fsync metapage after commit.
	NoSync      EnvFlags = C.MDB_NOSYNC     // Don't fsync after commit.
	MapAsync    EnvFlags = C.MDB_MAPASYNC   // Flush asynchronously when using the WriteMap flag.
	NoTLS       EnvFlags = C.MDB_NOTLS      // Danger zone. When unset reader locktable slots are tied to their thread.
	NoLock      EnvFlags = C.MDB_NOLOCK     // Danger zone. LMDB does not use any locks.
	NoReadahead EnvFlags = C.MDB_NORDAHEAD  // Disable readahead. Requires OS support.
	NoMemInit   EnvFlags = C.MDB_NOMEMINIT  // Disable LMDB memory initialization.
)

// DBFlags is a set of flags for Txn.OpenDBI and the DatabaseBuilder.
//
// See mdb_dbi_open.
type DBFlags uint

const (
	ReverseKey DBFlags = C.MDB_REVERSEKEY // Compare keys as reversed byte strings.
	DupSort    DBFlags = C.MDB_DUPSORT    // Allow multiple sorted values per key.
	IntegerKey DBFlags = C.MDB_INTEGERKEY // Keys are native-order unsigned integers.
	DupFixed   DBFlags = C.MDB_DUPFIXED   // With DupSort, values are all the same size.
	IntegerDup DBFlags = C.MDB_INTEGERDUP // With DupSort, values are native-order unsigned integers.
	ReverseDup DBFlags = C.MDB_REVERSEDUP // With DupSort, compare values as reversed byte strings.
	Create     DBFlags = C.MDB_CREATE     // Create the named database if it does not exist.
)

// TxnFlags is a set of flags for Env.BeginTxn.
type TxnFlags uint

const (
	// TxnReadonly begins a read-only transaction. It aliases the
	// environment MDB_RDONLY bit.
	TxnReadonly TxnFlags = C.MDB_RDONLY
)

// PutFlags is a set of flags for Txn.Put and Cursor.Put.
//
// See mdb_put and mdb_cursor_put.
type PutFlags uint

const (
	NoOverwrite PutFlags = C.MDB_NOOVERWRITE // Do not overwrite an existing key.
	NoDupData   PutFlags = C.MDB_NODUPDATA   // With DupSort, do not insert a duplicate (key, value).
	Current     PutFlags = C.MDB_CURRENT     // Cursor only. Replace the value at the current position.
	Reserve     PutFlags = C.MDB_RESERVE     // Reserve space and return a writable buffer instead of copying.
	Append      PutFlags = C.MDB_APPEND      // Append to the database, keys must arrive in order.
	AppendDup   PutFlags = C.MDB_APPENDDUP   // With DupSort, append a duplicate in order.
	Multiple    PutFlags = C.MDB_MULTIPLE    // Cursor only, DupFixed only. Store a batch of values.
)

// CopyFlags is a set of flags for Env.Copy.
//
// See mdb_env_copy2.
type CopyFlags uint

const (
	CopyCompact CopyFlags = C.MDB_CP_COMPACT // Perform compaction while copying.
)

// Has reports whether all bits of flag are present in the set.
func (f EnvFlags) Has(flag EnvFlags) bool { return f&flag == flag }

// With returns the union of f and flag.
func (f EnvFlags) With(flag EnvFlags) EnvFlags { return f | flag }

// Mask returns the combined native bit mask.
func (f EnvFlags) Mask() uint { return uint(f) }

// Has reports whether all bits of flag are present in the set.
func (f DBFlags) Has(flag DBFlags) bool { return f&flag == flag }

// With returns the union of f and flag.
func (f DBFlags) With(flag DBFlags) DBFlags { return f | flag }

// Mask returns the combined native bit mask.
func (f DBFlags) Mask() uint { return uint(f) }

// Has reports whether all bits of flag are present in the set.
func (f TxnFlags) Has(flag TxnFlags) bool { return f&flag == flag }

// With returns the union of f and flag.
func (f TxnFlags) With(flag TxnFlags) TxnFlags { return f | flag }

// Mask returns the combined native bit mask.
func (f TxnFlags) Mask() uint { return uint(f) }

// Has reports whether all bits of flag are present in the set.
func (f PutFlags) Has(flag PutFlags) bool { return f&flag == flag }

// With returns the union of f and flag.
func (f PutFlags) With(flag PutFlags) PutFlags { return f | flag }

// Mask returns the combined native bit mask.
func (f PutFlags) Mask() uint { return uint(f) }

// Has reports whether all bits of flag are present in the set.
func (f CopyFlags) Has(flag CopyFlags) bool { return f&flag == flag }

// With returns the union of f and flag.
func (f CopyFlags) With(flag CopyFlags) CopyFlags { return f | flag }

// Mask returns the combined native bit mask.
func (f CopyFlags) Mask() uint { return uint(f) }
