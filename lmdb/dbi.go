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

	"github.com/pkg/errors"
)

// OpenDBI opens the named database, creating it if flags contains Create.
// The returned handle stays valid for the whole environment lifetime once
// the opening transaction commits.
//
// See mdb_dbi_open.
func (txn *Txn) OpenDBI(name string, flags DBFlags) (DBI, error) {
	if err := txn.readyErr(); err != nil {
		return 0, err
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return txn.openDBI(cname, flags)
}

// CreateDBI is a shorthand for OpenDBI(name, Create).
func (txn *Txn) CreateDBI(name string) (DBI, error) {
	return txn.OpenDBI(name, Create)
}

// OpenRoot opens the environment's unnamed (root) database. Use caution
// storing data in the root database when named databases are in use: the
// root database doubles as the index of named databases.
func (txn *Txn) OpenRoot(flags DBFlags) (DBI, error) {
	if err := txn.readyErr(); err != nil {
		return 0, err
	}
	return txn.openDBI(nil, flags)
}

func (txn *Txn) openDBI(cname *C.char, flags DBFlags) (DBI, error) {
	var dbi C.MDB_dbi
	ret := C.mdb_dbi_open(txn._txn, cname, C.uint(flags), &dbi)
	if ret != success {
		return 0, operrno("mdb_dbi_open", ret)
	}
	return DBI(dbi), nil
}

// DBIFlags returns the flags the database dbi was opened with.
//
// See mdb_dbi_flags.
func (txn *Txn) DBIFlags(dbi DBI) (DBFlags, error) {
	if err := txn.readyErr(); err != nil {
		return 0, err
	}
	var flags C.uint
	ret := C.mdb_dbi_flags(txn._txn, C.MDB_dbi(dbi), &flags)
	if ret != success {
		return 0, operrno("mdb_dbi_flags", ret)
	}
	return DBFlags(flags), nil
}

// setCompare installs cmp as the database's key comparator through one of
// the process-wide trampoline slots. The installation lasts until the
// environment closes.
//
// See mdb_set_compare.
func (txn *Txn) setCompare(dbi DBI, cmp Comparator) error {
	slot, err := registerComparator(txn.env, cmp)
	if err != nil {
		return err
	}
	ret := C.mdb_set_compare(txn._txn, C.MDB_dbi(dbi),
		C.lmdbenv_cmp_trampoline(C.int(slot)))
	return operrno("mdb_set_compare", ret)
}

// ComparatorChoice selects how keys of a database are ordered.
type ComparatorChoice int

const (
	// NativeComparator keeps LMDB's built-in ordering and never calls
	// back into this process. Iteration policy uses the proxy's
	// equivalent in-process comparator.
	NativeComparator ComparatorChoice = iota
	// ProxyComparator installs the proxy's comparator as the database's
	// comparator callback.
	ProxyComparator
	// IterationOnlyComparator uses the proxy's comparator to drive range
	// iteration but installs nothing into LMDB.
	IterationOnlyComparator
	// CallbackComparator installs a user-supplied comparator callback.
	// The callback is invoked on the thread performing the native call;
	// it must be reentrant and must not call back into LMDB.
	CallbackComparator
)

// DatabaseBuilder stages the opening of a database handle: pick a name (or
// none for the root database), pick a comparator strategy, then Open.
type DatabaseBuilder[T any] struct {
	env      *Env
	proxy    BufferProxy[T]
	name     string
	unnamed  bool
	choice   ComparatorChoice
	callback func(a, b T) int
}

// NewDatabase starts a DatabaseBuilder on env with the given buffer proxy.
func NewDatabase[T any](env *Env, proxy BufferProxy[T]) *DatabaseBuilder[T] {
	return &DatabaseBuilder[T]{env: env, proxy: proxy, unnamed: true}
}

// WithName selects a named sub-database.
func (b *DatabaseBuilder[T]) WithName(name string) *DatabaseBuilder[T] {
	b.name = name
	b.unnamed = false
	return b
}

// Unnamed selects the environment's root database.
func (b *DatabaseBuilder[T]) Unnamed() *DatabaseBuilder[T] {
	b.name = ""
	b.unnamed = true
	return b
}

// WithComparator selects a non-callback comparator strategy.
func (b *DatabaseBuilder[T]) WithComparator(
	choice ComparatorChoice) *DatabaseBuilder[T] {
	b.choice = choice
	return b
}

// WithCallbackComparator installs cmp as the database's comparator.
func (b *DatabaseBuilder[T]) WithCallbackComparator(
	cmp func(a, b T) int) *DatabaseBuilder[T] {
	b.choice = CallbackComparator
	b.callback = cmp
	return b
}

// Open opens the database handle inside txn. If txn is nil a single-shot
// transaction is begun and committed around the open: a write transaction
// normally, a read-only one when the environment itself is read-only.
func (b *DatabaseBuilder[T]) Open(txn *Txn, flags DBFlags) (*Database[T], error) {
	if txn != nil {
		return b.open(txn, flags)
	}
	var db *Database[T]
	op := func(txn *Txn) (err error) {
		db, err = b.open(txn, flags)
		return err
	}
	var err error
	if envFlags, ferr := b.env.Flags(); ferr == nil && envFlags.Has(Readonly) {
		err = b.env.View(op)
	} else {
		err = b.env.Update(op)
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (b *DatabaseBuilder[T]) open(txn *Txn, flags DBFlags) (*Database[T], error) {
	var (
		dbi DBI
		err error
	)
	if b.unnamed {
		dbi, err = txn.OpenRoot(flags)
	} else {
		dbi, err = txn.OpenDBI(b.name, flags)
	}
	if err != nil {
		return nil, err
	}

	cmp := b.proxy.Comparator(flags)
	switch b.choice {
	case NativeComparator, IterationOnlyComparator:
	case ProxyComparator:
		err = txn.setCompare(dbi, func(x, y []byte) int {
			return cmp(b.proxy.Out(&Val{p: mdbValFromBytes(x)}),
				b.proxy.Out(&Val{p: mdbValFromBytes(y)}))
		})
	case CallbackComparator:
		if b.callback == nil {
			return nil, errors.New("callback comparator requires a function")
		}
		cmp = b.callback
		proxy := b.proxy
		err = txn.setCompare(dbi, func(x, y []byte) int {
			return b.callback(proxy.Out(&Val{p: mdbValFromBytes(x)}),
				proxy.Out(&Val{p: mdbValFromBytes(y)}))
		})
	}
	if err != nil {
		return nil, err
	}

	return &Database[T]{
		env:   b.env,
		dbi:   dbi,
		name:  b.name,
		flags: flags,
		proxy: b.proxy,
		cmp:   cmp,
	}, nil
}

// Database is a convenience wrapper pairing a DBI with the buffer proxy
// and comparator it was opened with.
type Database[T any] struct {
	env   *Env
	dbi   DBI
	name  string
	flags DBFlags
	proxy BufferProxy[T]
	cmp   func(a, b T) int
}

// DBI returns the underlying database handle.
func (db *Database[T]) DBI() DBI { return db.dbi }

// Name returns the database name, empty for the root database.
func (db *Database[T]) Name() string { return db.name }

// Flags returns the flags the database was opened with.
func (db *Database[T]) Flags() DBFlags { return db.flags }

// Get retrieves the value stored for key. The result is materialized
// through the database's proxy; for a zero-copy proxy it aliases LMDB
// memory with the usual validity rules.
func (db *Database[T]) Get(txn *Txn, key T) (T, error) {
	var zero T
	if _, err := txn.Get(db.dbi, db.proxy.In(key)); err != nil {
		return zero, err
	}
	return db.proxy.Out(txn.kv.val), nil
}

// Put stores val for key.
func (db *Database[T]) Put(txn *Txn, key, val T, flags PutFlags) error {
	return txn.Put(db.dbi, db.proxy.In(key), db.proxy.In(val), flags)
}

// Del deletes the item stored for key.
func (db *Database[T]) Del(txn *Txn, key T) error {
	return txn.Del(db.dbi, db.proxy.In(key), nil)
}

// Stat returns statistics for the database.
func (db *Database[T]) Stat(txn *Txn) (*Stat, error) {
	return txn.Stat(db.dbi)
}

// Count returns the number of entries in the database.
func (db *Database[T]) Count(txn *Txn) (uint64, error) {
	stat, err := txn.Stat(db.dbi)
	if err != nil {
		return 0, err
	}
	return stat.Entries, nil
}

// Drop empties the database; when del is true the database itself is
// deleted and the handle becomes invalid.
func (db *Database[T]) Drop(txn *Txn, del bool) error {
	return txn.Drop(db.dbi, del)
}

// OpenCursor opens a cursor over the database within txn.
func (db *Database[T]) OpenCursor(txn *Txn) (*Cursor, error) {
	return txn.OpenCursor(db.dbi)
}

// Iterate opens a one-shot iterable over the window described by rng.
func (db *Database[T]) Iterate(txn *Txn, rng KeyRange[T]) (*CursorIterable[T], error) {
	return newCursorIterable(txn, db.dbi, rng, db.proxy, db.cmp)
}

// mdbValFromBytes builds a transient MDB_val header describing b. Used
// only to hand comparator callbacks their operands through the proxy; the
// header lives on the Go heap and is never passed to C.
func mdbValFromBytes(b []byte) *C.MDB_val {
	v := &C.MDB_val{}
	if len(b) > 0 {
		v.mv_data = unsafe.Pointer(&b[0])
		v.mv_size = C.size_t(len(b))
	}
	return v
}
