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
	"os"
	"runtime"
	"sync/atomic"
	"unsafe"
)

// Environment status. Configuration setters are legal only in INITIAL
// (except SetMapSize, which is also accepted in OPENED), all other
// operations require OPENED, and nothing is legal in CLOSED.
const (
	envInitial int32 = iota
	envOpened
	envClosing
	envClosed
)

// DBI is a handle for a database in an Env.
//
// See MDB_dbi.
type DBI C.MDB_dbi

// Env is a database environment: one memory-mapped data file holding any
// number of named databases. An Env is shared by all goroutines in a
// process and stays usable until Close.
//
// See MDB_env.
type Env struct {
	_env *C.MDB_env

	status atomic.Int32

	// Configured limits, kept so the native handle can be rebuilt after a
	// failed Open (LMDB requires discarding the handle on open failure,
	// while this environment stays INITIAL and reusable).
	mapSize    int64
	maxReaders int
	maxDBs     int

	// refs counts open transactions. Close refuses while it is non-zero.
	refs refCounter
}

// NewEnv allocates and initializes a new Env in the INITIAL state.
//
// See mdb_env_create.
func NewEnv() (*Env, error) {
	env := &Env{}
	ret := C.mdb_env_create(&env._env)
	if ret != success {
		return nil, operrno("mdb_env_create", ret)
	}
	runtime.SetFinalizer(env, func(v interface{}) { v.(*Env).finalize() })
	return env, nil
}

func (env *Env) finalize() {
	if env.status.Load() != envClosed && env._env != nil {
		C.mdb_env_close(env._env)
		env._env = nil
		env.status.Store(envClosed)
	}
}

// configErr maps the current status to the error a configuration setter
// must return outside the INITIAL state.
func (env *Env) configErr() error {
	switch env.status.Load() {
	case envInitial:
		return nil
	case envOpened:
		return ErrAlreadyOpen
	default:
		return ErrAlreadyClosed
	}
}

// openedErr returns nil only in the OPENED state.
func (env *Env) openedErr() error {
	switch env.status.Load() {
	case envInitial:
		return ErrNotOpen
	case envOpened:
		return nil
	default:
		return ErrAlreadyClosed
	}
}

// SetMapSize sets the size of the environment memory map. Legal before
// Open; after Open it may only be called with no transactions active, and
// a size of 0 adopts the size on disk (used to recover from MapResized).
//
// See mdb_env_set_mapsize.
func (env *Env) SetMapSize(size int64) error {
	if st := env.status.Load(); st != envInitial && st != envOpened {
		return ErrAlreadyClosed
	}
	ret := C.mdb_env_set_mapsize(env._env, C.size_t(size))
	err := operrno("mdb_env_set_mapsize", ret)
	if err == nil && env.status.Load() == envInitial {
		env.mapSize = size
	}
	return err
}

// SetMaxReaders sets the maximum number of reader slots in the
// environment. Legal only before Open.
//
// See mdb_env_set_maxreaders.
func (env *Env) SetMaxReaders(size int) error {
	if err := env.configErr(); err != nil {
		return err
	}
	ret := C.mdb_env_set_maxreaders(env._env, C.uint(size))
	err := operrno("mdb_env_set_maxreaders", ret)
	if err == nil {
		env.maxReaders = size
	}
	return err
}

// SetMaxDBs sets the maximum number of named databases for the
// environment. Legal only before Open.
//
// See mdb_env_set_maxdbs.
func (env *Env) SetMaxDBs(size int) error {
	if err := env.configErr(); err != nil {
		return err
	}
	ret := C.mdb_env_set_maxdbs(env._env, C.MDB_dbi(size))
	err := operrno("mdb_env_set_maxdbs", ret)
	if err == nil {
		env.maxDBs = size
	}
	return err
}

// Open opens the environment at path. On success the environment
// transitions to OPENED; on failure it stays INITIAL and may be opened
// again with different parameters.
//
// See mdb_env_open.
func (env *Env) Open(path string, flags EnvFlags, mode os.FileMode) error {
	if err := env.configErr(); err != nil {
		return err
	}
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	ret := C.mdb_env_open(env._env, cpath, C.uint(flags), C.mdb_mode_t(mode))
	err := operrno("mdb_env_open", ret)
	if err == nil {
		env.status.Store(envOpened)
		return nil
	}
	// LMDB invalidates the handle on a failed open. Rebuild it with the
	// configured limits so the environment genuinely stays INITIAL.
	C.mdb_env_close(env._env)
	env._env = nil
	if ret := C.mdb_env_create(&env._env); ret != success {
		env.status.Store(envClosed)
		return err
	}
	if env.mapSize > 0 {
		C.mdb_env_set_mapsize(env._env, C.size_t(env.mapSize))
	}
	if env.maxReaders > 0 {
		C.mdb_env_set_maxreaders(env._env, C.uint(env.maxReaders))
	}
	if env.maxDBs > 0 {
		C.mdb_env_set_maxdbs(env._env, C.MDB_dbi(env.maxDBs))
	}
	return err
}

// Stat contains database status information.
//
// See MDB_stat.
type Stat struct {
	PSize         uint   // Size of a database page.
	Depth         uint   // Depth (height) of the B-tree.
	BranchPages   uint64 // Number of internal (non-leaf) pages.
	LeafPages     uint64 // Number of leaf pages.
	OverflowPages uint64 // Number of overflow pages.
	Entries       uint64 // Number of data items.
}

// Stat returns statistics about the environment.
//
// See mdb_env_stat.
func (env *Env) Stat() (*Stat, error) {
	if err := env.openedErr(); err != nil {
		return nil, err
	}
	var _stat C.MDB_stat
	ret := C.mdb_env_stat(env._env, &_stat)
	if ret != success {
		return nil, operrno("mdb_env_stat", ret)
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

// EnvInfo contains information about an environment.
//
// See MDB_envinfo.
type EnvInfo struct {
	MapSize    int64 // Size of the data memory map.
	LastPNO    int64 // ID of the last used page.
	LastTxnID  int64 // ID of the last committed transaction.
	MaxReaders uint  // Maximum number of reader slots.
	NumReaders uint  // Number of reader slots currently used.
}

// Info returns information about the environment.
//
// See mdb_env_info.
func (env *Env) Info() (*EnvInfo, error) {
	if err := env.openedErr(); err != nil {
		return nil, err
	}
	var _info C.MDB_envinfo
	ret := C.mdb_env_info(env._env, &_info)
	if ret != success {
		return nil, operrno("mdb_env_info", ret)
	}
	return &EnvInfo{
		MapSize:    int64(_info.me_mapsize),
		LastPNO:    int64(_info.me_last_pgno),
		LastTxnID:  int64(_info.me_last_txnid),
		MaxReaders: uint(_info.me_maxreaders),
		NumReaders: uint(_info.me_numreaders),
	}, nil
}

// Sync flushes buffers to disk. If force is true a synchronous flush
// occurs, ignoring any NoSync or MapAsync flag on the environment.
//
// See mdb_env_sync.
func (env *Env) Sync(force bool) error {
	if err := env.openedErr(); err != nil {
		return err
	}
	ret := C.mdb_env_sync(env._env, cbool(force))
	return operrno("mdb_env_sync", ret)
}

// Copy copies the environment to an empty directory at path, optionally
// compacting it. The destination must exist, be a directory, and be empty.
//
// See mdb_env_copy2.
func (env *Env) Copy(path string, flags CopyFlags) error {
	if err := env.openedErr(); err != nil {
		return err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return &InvalidCopyDestinationError{Path: path, Reason: "does not exist"}
	}
	if !fi.IsDir() {
		return &InvalidCopyDestinationError{Path: path, Reason: "not a directory"}
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return &InvalidCopyDestinationError{Path: path, Reason: err.Error()}
	}
	if len(entries) > 0 {
		return &InvalidCopyDestinationError{Path: path, Reason: "not empty"}
	}
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	ret := C.mdb_env_copy2(env._env, cpath, C.uint(flags))
	return operrno("mdb_env_copy2", ret)
}

// Flags returns the flags set in the environment.
//
// See mdb_env_get_flags.
func (env *Env) Flags() (EnvFlags, error) {
	if err := env.openedErr(); err != nil {
		return 0, err
	}
	var _flags C.uint
	ret := C.mdb_env_get_flags(env._env, &_flags)
	if ret != success {
		return 0, operrno("mdb_env_get_flags", ret)
	}
	return EnvFlags(_flags), nil
}

// Path returns the path argument passed to Open.
//
// See mdb_env_get_path.
func (env *Env) Path() (string, error) {
	if err := env.openedErr(); err != nil {
		return "", err
	}
	var cpath *C.char
	ret := C.mdb_env_get_path(env._env, &cpath)
	if ret != success {
		return "", operrno("mdb_env_get_path", ret)
	}
	if cpath == nil {
		return "", ErrNotOpen
	}
	return C.GoString(cpath), nil
}

// MaxKeySize returns the maximum allowed length for a key.
//
// See mdb_env_get_maxkeysize.
func (env *Env) MaxKeySize() int {
	if env == nil {
		return int(C.mdb_env_get_maxkeysize(nil))
	}
	return int(C.mdb_env_get_maxkeysize(env._env))
}

// MaxReaders returns the maximum number of reader slots for the
// environment.
//
// See mdb_env_get_maxreaders.
func (env *Env) MaxReaders() (int, error) {
	var max C.uint
	ret := C.mdb_env_get_maxreaders(env._env, &max)
	return int(max), operrno("mdb_env_get_maxreaders", ret)
}

// ReaderCheck clears stale entries from the reader lock table and returns
// the number of entries cleared.
//
// See mdb_reader_check.
func (env *Env) ReaderCheck() (int, error) {
	if err := env.openedErr(); err != nil {
		return 0, err
	}
	var dead C.int
	ret := C.mdb_reader_check(env._env, &dead)
	return int(dead), operrno("mdb_reader_check", ret)
}

// ReaderList dumps the contents of the reader lock table as text, one line
// per call to fn. Readers start on the second line as space-delimited
// fields described by the first line.
//
// See mdb_reader_list.
func (env *Env) ReaderList(fn func(string) error) error {
	if err := env.openedErr(); err != nil {
		return err
	}
	handle, ctx, done := newMsgFunc(fn)
	defer done()
	ret := C.lmdbenv_mdb_reader_list(env._env, C.size_t(handle))
	if ret >= 0 {
		return nil
	}
	if ctx.err != nil {
		return ctx.err
	}
	return operrno("mdb_reader_list", ret)
}

// CloseDBI closes the database handle db. Normally calling CloseDBI
// explicitly is not necessary; handles stay valid for the environment's
// lifetime. It is the caller's responsibility to serialize calls to
// CloseDBI.
//
// See mdb_dbi_close.
func (env *Env) CloseDBI(db DBI) {
	C.mdb_dbi_close(env._env, C.MDB_dbi(db))
}

// Close shuts down the environment and releases the memory map. Close is
// idempotent: closing an already-closed environment returns nil. While
// open transactions remain, Close refuses with EnvInUseError and the
// environment stays OPENED.
//
// See mdb_env_close.
func (env *Env) Close() error {
	for {
		switch st := env.status.Load(); st {
		case envClosed:
			return nil
		case envClosing:
			// Another goroutine is in the transition; treat as closed.
			return nil
		case envInitial, envOpened:
			if !env.status.CompareAndSwap(st, envClosing) {
				continue
			}
			if n := env.refs.total(); n > 0 {
				env.status.Store(st)
				return &EnvInUseError{Count: n}
			}
			releaseComparators(env)
			C.mdb_env_close(env._env)
			env._env = nil
			env.status.Store(envClosed)
			runtime.SetFinalizer(env, nil)
			return nil
		}
	}
}

// acquireRef registers a new dependent. It fails once the environment has
// begun closing.
func (env *Env) acquireRef() (int, error) {
	stripe := env.refs.acquire()
	if env.status.Load() != envOpened {
		env.refs.release(stripe)
		if env.status.Load() == envInitial {
			return -1, ErrNotOpen
		}
		return -1, ErrAlreadyClosed
	}
	return stripe, nil
}

func (env *Env) releaseRef(stripe int) {
	env.refs.release(stripe)
}

// TxnOp is an operation applied to a managed transaction. The Txn passed
// to it must not be retained or used after the operation returns.
//
// IMPORTANT: Transactions are long-lived objects. Operations must not
// leak the Txn to other goroutines.
type TxnOp func(txn *Txn) error

// RunTxn creates a new Txn and calls fn with it as an argument, committing
// if fn returns nil and aborting otherwise.
//
// RunTxn does not call runtime.LockOSThread. Unless TxnReadonly is passed
// the calling goroutine must be locked to its thread.
//
// See mdb_txn_begin.
func (env *Env) RunTxn(flags TxnFlags, fn TxnOp) error {
	return env.run(false, flags, fn)
}

// View creates a readonly transaction with a consistent view of the
// environment and passes it to fn, aborting it when fn returns.
func (env *Env) View(fn TxnOp) error {
	return env.run(false, TxnReadonly, fn)
}

// Update calls fn with a writable transaction, committing if fn returns
// nil and aborting otherwise. The calling goroutine is locked to its OS
// thread for the duration, as LMDB requires for write transactions.
func (env *Env) Update(fn TxnOp) error {
	return env.run(true, 0, fn)
}

// UpdateLocked behaves like Update but does not lock the calling goroutine
// to its thread. Use it when the goroutine is already locked for another
// purpose.
func (env *Env) UpdateLocked(fn TxnOp) error {
	return env.run(false, 0, fn)
}

func (env *Env) run(lock bool, flags TxnFlags, fn TxnOp) error {
	if lock {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	txn, err := env.BeginTxn(nil, flags)
	if err != nil {
		return err
	}
	return txn.runOpTerm(fn)
}

// NewReadTxn begins an unmanaged read-only transaction.
func (env *Env) NewReadTxn() (*Txn, error) {
	return env.BeginTxn(nil, TxnReadonly)
}

// NewWriteTxn begins an unmanaged write transaction. The calling goroutine
// must be locked to its OS thread until the transaction terminates.
func (env *Env) NewWriteTxn() (*Txn, error) {
	return env.BeginTxn(nil, 0)
}

// BeginTxn is the low-level method to initialize a new transaction on env,
// optionally nested under parent. The returned Txn is unmanaged and must
// be terminated by calling its Commit, Abort, or Close methods.
//
// A write transaction's methods must be called from the goroutine's locked
// OS thread. Prefer View and Update, which manage this.
//
// See mdb_txn_begin.
func (env *Env) BeginTxn(parent *Txn, flags TxnFlags) (*Txn, error) {
	txn, err := beginTxn(env, parent, flags)
	if txn != nil {
		runtime.SetFinalizer(txn, func(v interface{}) { v.(*Txn).finalize() })
	}
	return txn, err
}
