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
	"fmt"
	"os"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// OpError is an operation error. It holds the failed native call and the
// translated result code.
type OpError struct {
	Op    string
	Errno error
}

func (err *OpError) Error() string {
	return fmt.Sprintf("%s: %s", err.Op, err.Errno)
}

// Unwrap returns the underlying Errno or syscall.Errno.
func (err *OpError) Unwrap() error {
	return err.Errno
}

const (
	// Error codes defined by LMDB.  See the list of LMDB return codes for
	// more information about each.
	//
	//		http://www.lmdb.tech/doc/group__errors.html

	KeyExist        Errno = C.MDB_KEYEXIST
	NotFound        Errno = C.MDB_NOTFOUND
	PageNotFound    Errno = C.MDB_PAGE_NOTFOUND
	Corrupted       Errno = C.MDB_CORRUPTED
	Panic           Errno = C.MDB_PANIC
	VersionMismatch Errno = C.MDB_VERSION_MISMATCH
	Invalid         Errno = C.MDB_INVALID
	MapFull         Errno = C.MDB_MAP_FULL
	DBsFull         Errno = C.MDB_DBS_FULL
	ReadersFull     Errno = C.MDB_READERS_FULL
	TLSFull         Errno = C.MDB_TLS_FULL
	TxnFull         Errno = C.MDB_TXN_FULL
	CursorFull      Errno = C.MDB_CURSOR_FULL
	PageFull        Errno = C.MDB_PAGE_FULL
	MapResized      Errno = C.MDB_MAP_RESIZED
	Incompatible    Errno = C.MDB_INCOMPATIBLE
	BadRSlot        Errno = C.MDB_BAD_RSLOT
	BadTxn          Errno = C.MDB_BAD_TXN
	BadValSize      Errno = C.MDB_BAD_VALSIZE
	BadDBI          Errno = C.MDB_BAD_DBI
)

// Errno represents the errno values reserved by LMDB. Other errno values
// (such as EINVAL) are represented with type syscall.Errno.
//
// Most often helper functions such as IsNotFound may be used instead of
// dealing with Errno values directly.
//
//	lmdb.IsNotFound(err)
//	lmdb.IsErrno(err, lmdb.TxnFull)
//	lmdb.IsErrnoSys(err, syscall.EINVAL)
type Errno C.int

// minimum and maximum values produced for the Errno type. syscall.Errnos of
// other values may still be produced.
const minErrno, maxErrno C.int = C.MDB_KEYEXIST, C.MDB_LAST_ERRCODE

func (e Errno) Error() string {
	return C.GoString(C.mdb_strerror(C.int(e)))
}

// _operrno is for use by tests that can't import C.
func _operrno(op string, ret int) error {
	return operrno(op, C.int(ret))
}

// operrno translates a native result code into an error. Codes inside
// LMDB's reserved range become Errno values, anything else is treated as a
// platform errno. A zero code yields nil.
func operrno(op string, ret C.int) error {
	if ret == success {
		return nil
	}
	if minErrno <= ret && ret <= maxErrno {
		return &OpError{Op: op, Errno: Errno(ret)}
	}
	return &OpError{Op: op, Errno: syscall.Errno(ret)}
}

// ErrnoSymbol returns the symbolic name ("EACCES", "MDB_NOTFOUND", ...) of
// the errno underlying err, or an empty string if err carries no errno.
func ErrnoSymbol(err error) string {
	op, ok := err.(*OpError)
	if !ok {
		return ""
	}
	switch e := op.Errno.(type) {
	case syscall.Errno:
		return unix.ErrnoName(e)
	case Errno:
		return mdbErrnoNames[e]
	}
	return ""
}

var mdbErrnoNames = map[Errno]string{
	KeyExist:        "MDB_KEYEXIST",
	NotFound:        "MDB_NOTFOUND",
	PageNotFound:    "MDB_PAGE_NOTFOUND",
	Corrupted:       "MDB_CORRUPTED",
	Panic:           "MDB_PANIC",
	VersionMismatch: "MDB_VERSION_MISMATCH",
	Invalid:         "MDB_INVALID",
	MapFull:         "MDB_MAP_FULL",
	DBsFull:         "MDB_DBS_FULL",
	ReadersFull:     "MDB_READERS_FULL",
	TLSFull:         "MDB_TLS_FULL",
	TxnFull:         "MDB_TXN_FULL",
	CursorFull:      "MDB_CURSOR_FULL",
	PageFull:        "MDB_PAGE_FULL",
	MapResized:      "MDB_MAP_RESIZED",
	Incompatible:    "MDB_INCOMPATIBLE",
	BadRSlot:        "MDB_BAD_RSLOT",
	BadTxn:          "MDB_BAD_TXN",
	BadValSize:      "MDB_BAD_VALSIZE",
	BadDBI:          "MDB_BAD_DBI",
}

// Lifecycle errors raised by this layer, as opposed to result codes
// translated from LMDB itself.
var (
	ErrAlreadyOpen   = errors.New("environment is already open")
	ErrAlreadyClosed = errors.New("environment is already closed")
	ErrNotOpen       = errors.New("environment is not open")

	ErrAlreadyCommitted = errors.New("transaction has already been committed")
	ErrAlreadyAborted   = errors.New("transaction has already been aborted")
	ErrAlreadyReset     = errors.New("transaction has already been reset")
	ErrNotReset         = errors.New("transaction has not been reset")
	ErrReadOnlyRequired = errors.New("operation requires a read-only transaction")
	ErrReadWriteRequired = errors.New(
		"operation requires a read-write transaction")
	ErrIncompatibleParent = errors.New(
		"nested transaction must match the parent's read-only mode")

	ErrCursorClosed = errors.New("cursor is closed")

	// ErrIllegalState is returned on iterator misuse, such as requesting
	// the iterator of a one-shot iterable twice.
	ErrIllegalState = errors.New("illegal state")
)

// EnvInUseError is returned by Env.Close while dependent transactions or
// cursors are still outstanding.
type EnvInUseError struct {
	Count int
}

func (err *EnvInUseError) Error() string {
	return fmt.Sprintf("environment still has %d open transactions or cursors",
		err.Count)
}

// InvalidCopyDestinationError is returned by Env.Copy when the destination
// is missing, not a directory, or not empty.
type InvalidCopyDestinationError struct {
	Path   string
	Reason string
}

func (err *InvalidCopyDestinationError) Error() string {
	return fmt.Sprintf("invalid copy destination %s: %s", err.Path, err.Reason)
}

// IsNotFound returns true if the key requested in Txn.Get or Cursor.Get
// does not exist or if a cursor reached the end of the database without
// locating a value.
func IsNotFound(err error) bool {
	return IsErrno(err, NotFound)
}

// IsNotExist returns true if the path passed to Env.Open does not exist.
func IsNotExist(err error) bool {
	return IsErrnoFn(err, os.IsNotExist)
}

// IsMapFull returns true if the environment map size has been reached.
func IsMapFull(err error) bool {
	return IsErrno(err, MapFull)
}

// IsMapResized returns true if the environment has grown beyond the map
// size this process opened it with. The caller is responsible for calling
// Env.SetMapSize(0) and restarting the transaction.
func IsMapResized(err error) bool {
	return IsErrno(err, MapResized)
}

// IsErrno returns true if err's errno is the given errno.
func IsErrno(err error, errno Errno) bool {
	return IsErrnoFn(err, func(err error) bool { return err == errno })
}

// IsErrnoSys returns true if err's errno is the given errno.
func IsErrnoSys(err error, errno syscall.Errno) bool {
	return IsErrnoFn(err, func(err error) bool { return err == errno })
}

// IsErrnoFn calls fn on the error underlying err and returns the result.
// If err is an *OpError then err.Errno is passed to fn. Otherwise err is
// passed directly to fn.
func IsErrnoFn(err error, fn func(error) bool) bool {
	if err == nil {
		return false
	}
	if err, ok := err.(*OpError); ok {
		return fn(err.Errno)
	}
	return fn(err)
}
