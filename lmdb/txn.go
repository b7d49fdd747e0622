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
	"runtime"

	log "github.com/sirupsen/logrus"
)

// Transaction status.
const (
	txnReady int32 = iota
	txnReset
	txnCommitted
	txnAborted
)

// Txn is a transaction: a point-in-time view of the environment when
// read-only, a pending mutation otherwise. Write transactions may nest; a
// nested transaction must match its parent's read-only mode.
//
// A Txn has thread affinity inherited from LMDB. A write transaction must
// only be used from the OS thread it was created on; a read-only
// transaction may move between threads as long as a single goroutine uses
// it at a time.
//
// See MDB_txn.
type Txn struct {
	env    *Env
	_txn   *C.MDB_txn
	parent *Txn

	readonly bool
	status   int32
	stripe   int

	// kv is the transaction's key/value flyweight. Every Get routes its
	// result through the same val slot.
	kv *KeyVal

	// cursors opened on a write transaction; LMDB closes these when the
	// transaction ends, so they are only marked closed here.
	cursors []*Cursor
}

func beginTxn(env *Env, parent *Txn, flags TxnFlags) (*Txn, error) {
	readonly := flags.Has(TxnReadonly)
	var parentPtr *C.MDB_txn
	if parent != nil {
		if err := parent.readyErr(); err != nil {
			return nil, err
		}
		if parent.readonly != readonly {
			return nil, ErrIncompatibleParent
		}
		parentPtr = parent._txn
	}

	stripe, err := env.acquireRef()
	if err != nil {
		return nil, err
	}

	txn := &Txn{
		env:      env,
		parent:   parent,
		readonly: readonly,
		stripe:   stripe,
		kv:       newKeyVal(),
	}
	ret := C.mdb_txn_begin(env._env, parentPtr, C.uint(flags), &txn._txn)
	if ret != success {
		env.releaseRef(stripe)
		txn.kv.free()
		return nil, operrno("mdb_txn_begin", ret)
	}
	return txn, nil
}

// readyErr returns nil only when the transaction can execute operations.
func (txn *Txn) readyErr() error {
	switch txn.status {
	case txnReady:
		return nil
	case txnReset:
		return ErrAlreadyReset
	case txnCommitted:
		return ErrAlreadyCommitted
	default:
		return ErrAlreadyAborted
	}
}

// Env returns the environment the transaction was created on.
func (txn *Txn) Env() *Env {
	return txn.env
}

// ID returns the transaction's serial number.
//
// See mdb_txn_id.
func (txn *Txn) ID() uintptr {
	return uintptr(C.mdb_txn_id(txn._txn))
}

// Readonly reports whether the transaction was begun with TxnReadonly.
func (txn *Txn) Readonly() bool {
	return txn.readonly
}

// terminate releases the transaction's native handle, flyweight slots, and
// environment reference. Exactly one terminal transition runs it.
func (txn *Txn) terminate(status int32) {
	txn.status = status
	for _, cur := range txn.cursors {
		cur.invalidate()
	}
	txn.cursors = nil
	txn._txn = nil
	txn.kv.free()
	txn.env.releaseRef(txn.stripe)
	runtime.SetFinalizer(txn, nil)
}

// Commit persists the transaction's writes. For a read-only transaction
// Commit simply releases the snapshot.
//
// See mdb_txn_commit.
func (txn *Txn) Commit() error {
	if err := txn.readyErr(); err != nil {
		return err
	}
	ret := C.mdb_txn_commit(txn._txn)
	txn.terminate(txnCommitted)
	if ret != success {
		txn.status = txnAborted
		return operrno("mdb_txn_commit", ret)
	}
	return nil
}

// Abort discards the transaction.
//
// See mdb_txn_abort.
func (txn *Txn) Abort() error {
	switch txn.status {
	case txnReady, txnReset:
	case txnCommitted:
		return ErrAlreadyCommitted
	default:
		return ErrAlreadyAborted
	}
	C.mdb_txn_abort(txn._txn)
	txn.terminate(txnAborted)
	return nil
}

// Close terminates the transaction if it is still live: a READY or RESET
// transaction is aborted, a terminal one is left alone. Close is
// idempotent and safe on every exit path.
func (txn *Txn) Close() error {
	switch txn.status {
	case txnCommitted, txnAborted:
		return nil
	}
	return txn.Abort()
}

// Reset releases the read-only transaction's snapshot while keeping its
// reader slot for a later Renew. Only read-only transactions reset.
//
// See mdb_txn_reset.
func (txn *Txn) Reset() error {
	if !txn.readonly {
		return ErrReadOnlyRequired
	}
	if err := txn.readyErr(); err != nil {
		return err
	}
	C.mdb_txn_reset(txn._txn)
	txn.status = txnReset
	return nil
}

// Renew acquires a fresh snapshot on a transaction previously Reset,
// reusing its reader slot.
//
// See mdb_txn_renew.
func (txn *Txn) Renew() error {
	if !txn.readonly {
		return ErrReadOnlyRequired
	}
	if txn.status != txnReset {
		return ErrNotReset
	}
	ret := C.mdb_txn_renew(txn._txn)
	if ret != success {
		return operrno("mdb_txn_renew", ret)
	}
	txn.status = txnReady
	return nil
}

// Get retrieves the value stored for key in the database dbi. A missing
// key surfaces as an MDB_NOTFOUND error; test with IsNotFound.
//
// The returned slice aliases memory owned by LMDB and is valid only until
// the next operation on this transaction, or its end. Copy the bytes to
// retain them.
//
// See mdb_get.
func (txn *Txn) Get(dbi DBI, key []byte) ([]byte, error) {
	if err := txn.readyErr(); err != nil {
		return nil, err
	}
	kdata, kn := valBytes(key)
	ret := C.lmdbenv_mdb_get(txn._txn, C.MDB_dbi(dbi), kdata, kn, txn.kv.val.p)
	runtime.KeepAlive(key)
	if ret != success {
		return nil, operrno("mdb_get", ret)
	}
	return txn.kv.Val(), nil
}

// Put stores val for key in the database dbi.
//
// See mdb_put.
func (txn *Txn) Put(dbi DBI, key, val []byte, flags PutFlags) error {
	if err := txn.writableErr(); err != nil {
		return err
	}
	kdata, kn := valBytes(key)
	vdata, vn := valBytes(val)
	ret := C.lmdbenv_mdb_put2(txn._txn, C.MDB_dbi(dbi),
		kdata, kn, vdata, vn, C.uint(flags))
	runtime.KeepAlive(key)
	runtime.KeepAlive(val)
	return operrno("mdb_put", ret)
}

// PutReserve reserves size bytes for key in dbi and returns a writable
// slice of LMDB-owned page memory the caller must fill before the
// transaction commits.
//
// See mdb_put with MDB_RESERVE.
func (txn *Txn) PutReserve(dbi DBI, key []byte, size int,
	flags PutFlags) ([]byte, error) {
	if err := txn.writableErr(); err != nil {
		return nil, err
	}
	txn.kv.val.p.mv_size = C.size_t(size)
	txn.kv.val.p.mv_data = nil
	kdata, kn := valBytes(key)
	ret := C.lmdbenv_mdb_put1(txn._txn, C.MDB_dbi(dbi), kdata, kn,
		txn.kv.val.p, C.uint(flags|Reserve))
	runtime.KeepAlive(key)
	if ret != success {
		return nil, operrno("mdb_put", ret)
	}
	return txn.kv.Val(), nil
}

// Del deletes an item from the database dbi. When the database is
// DupSort a non-nil val deletes only that duplicate; a nil val deletes
// all items for the key.
//
// See mdb_del.
func (txn *Txn) Del(dbi DBI, key, val []byte) error {
	if err := txn.writableErr(); err != nil {
		return err
	}
	kdata, kn := valBytes(key)
	var ret C.int
	if val == nil {
		ret = C.lmdbenv_mdb_del_nodata(txn._txn, C.MDB_dbi(dbi), kdata, kn)
	} else {
		vdata, vn := valBytes(val)
		ret = C.lmdbenv_mdb_del(txn._txn, C.MDB_dbi(dbi), kdata, kn, vdata, vn)
	}
	runtime.KeepAlive(key)
	runtime.KeepAlive(val)
	return operrno("mdb_del", ret)
}

func (txn *Txn) writableErr() error {
	if err := txn.readyErr(); err != nil {
		return err
	}
	if txn.readonly {
		return ErrReadWriteRequired
	}
	return nil
}

// Cmp compares two keys according to the ordering of the database dbi,
// including any installed comparator.
//
// See mdb_cmp.
func (txn *Txn) Cmp(dbi DBI, a, b []byte) int {
	adata, an := valBytes(a)
	bdata, bn := valBytes(b)
	ret := C.lmdbenv_mdb_cmp(txn._txn, C.MDB_dbi(dbi), adata, an, bdata, bn)
	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
	return int(ret)
}

// Stat returns statistics for the database dbi.
//
// See mdb_stat.
func (txn *Txn) Stat(dbi DBI) (*Stat, error) {
	if err := txn.readyErr(); err != nil {
		return nil, err
	}
	var _stat C.MDB_stat
	ret := C.mdb_stat(txn._txn, C.MDB_dbi(dbi), &_stat)
	if ret != success {
		return nil, operrno("mdb_stat", ret)
	}
	return &Stat{
		PSize:         uint(_stat.ms_psize),
		Depth:         uint(_stat.ms_depth),
		BranchPages:   uint64(_stat.ms_branch_pages),
		LeafPages:     uint64(_stat.ms_leaf_pages),
		OverflowPages: uint64(_stat.ms_overflow_pages),
		Entries:       uint64(_stat.ms_entries),
	}, nil
}

// Drop empties the database dbi. When del is true the database is deleted
// from the environment and its handle invalidated.
//
// See mdb_drop.
func (txn *Txn) Drop(dbi DBI, del bool) error {
	if err := txn.writableErr(); err != nil {
		return err
	}
	ret := C.mdb_drop(txn._txn, C.MDB_dbi(dbi), cbool(del))
	return operrno("mdb_drop", ret)
}

// runOpTerm runs fn and terminates the transaction: commit if fn returned
// nil, abort otherwise. Abort runs on every exit path, including a panic
// in fn.
func (txn *Txn) runOpTerm(fn TxnOp) error {
	defer txn.Close()
	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// finalize aborts transactions that became unreachable while still live.
// Their presence is an application bug; unterminated transactions pin old
// pages and can grow the database until the map is full.
func (txn *Txn) finalize() {
	if txn.status == txnReady || txn.status == txnReset {
		log.Warnf("lmdb: aborting unreachable transaction (id=%d, readonly=%t)",
			txn.ID(), txn.readonly)
		_ = txn.Abort()
	}
}
