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
)

// CursorOp is a seek operation for Cursor.Get.
//
// See MDB_cursor_op.
type CursorOp uint

const (
	OpFirst        CursorOp = C.MDB_FIRST          // First item.
	OpFirstDup     CursorOp = C.MDB_FIRST_DUP      // First duplicate of the current key. DupSort.
	OpGetBoth      CursorOp = C.MDB_GET_BOTH       // Position at (key, value). DupSort.
	OpGetBothRange CursorOp = C.MDB_GET_BOTH_RANGE // Position at key, nearest value >= value. DupSort.
	OpGetCurrent   CursorOp = C.MDB_GET_CURRENT    // Item at the current position.
	OpGetMultiple  CursorOp = C.MDB_GET_MULTIPLE   // Page of duplicates at the current key. DupFixed.
	OpLast         CursorOp = C.MDB_LAST           // Last item.
	OpLastDup      CursorOp = C.MDB_LAST_DUP       // Last duplicate of the current key. DupSort.
	OpNext         CursorOp = C.MDB_NEXT           // Next item.
	OpNextDup      CursorOp = C.MDB_NEXT_DUP       // Next duplicate of the current key. DupSort.
	OpNextMultiple CursorOp = C.MDB_NEXT_MULTIPLE  // Next page of duplicates. DupFixed.
	OpNextNoDup    CursorOp = C.MDB_NEXT_NODUP     // First duplicate of the next key. DupSort.
	OpPrev         CursorOp = C.MDB_PREV           // Previous item.
	OpPrevDup      CursorOp = C.MDB_PREV_DUP       // Previous duplicate of the current key. DupSort.
	OpPrevNoDup    CursorOp = C.MDB_PREV_NODUP     // Last duplicate of the previous key. DupSort.
	OpSet          CursorOp = C.MDB_SET            // Position at the exact key.
	OpSetKey       CursorOp = C.MDB_SET_KEY        // Position at the exact key, returning key and value.
	OpSetRange     CursorOp = C.MDB_SET_RANGE      // Position at the first key >= the given key.
)

// Cursor is a position within one database of one transaction. Its Key and
// Val views alias LMDB-owned memory and are invalidated by the next cursor
// operation, or by the end of the transaction.
//
// A cursor created on a write transaction is closed implicitly when the
// transaction ends. A cursor created on a read-only transaction must be
// closed explicitly, and may be renewed onto another read-only
// transaction instead.
//
// See MDB_cursor.
type Cursor struct {
	txn  *Txn
	_cur *C.MDB_cursor

	// kv is the cursor's own key/value flyweight, distinct from the
	// transaction's.
	kv *KeyVal

	readonlyOwner bool
	closed        bool

	// setKey keeps the caller's key visible through Key() after an OpSet
	// seek, which positions the cursor without filling the key slot.
	setKey []byte
}

// OpenCursor creates a cursor over the database dbi.
//
// See mdb_cursor_open.
func (txn *Txn) OpenCursor(dbi DBI) (*Cursor, error) {
	if err := txn.readyErr(); err != nil {
		return nil, err
	}
	cur := &Cursor{txn: txn, readonlyOwner: txn.readonly}
	ret := C.mdb_cursor_open(txn._txn, C.MDB_dbi(dbi), &cur._cur)
	if ret != success {
		return nil, operrno("mdb_cursor_open", ret)
	}
	cur.kv = newKeyVal()
	if !txn.readonly {
		txn.cursors = append(txn.cursors, cur)
	}
	return cur, nil
}

// Txn returns the cursor's owning transaction, or nil after Close.
func (cur *Cursor) Txn() *Txn {
	if cur.closed {
		return nil
	}
	return cur.txn
}

// DBI returns the cursor's database handle. After Close it returns an
// invalid handle (^DBI(0)).
//
// See mdb_cursor_dbi.
func (cur *Cursor) DBI() DBI {
	if cur.closed {
		return ^DBI(0)
	}
	return DBI(C.mdb_cursor_dbi(cur._cur))
}

func (cur *Cursor) liveErr() error {
	if cur.closed {
		return ErrCursorClosed
	}
	return cur.txn.readyErr()
}

// Key returns the key at the cursor's position. The slice aliases
// LMDB-owned memory.
func (cur *Cursor) Key() []byte {
	if k := cur.kv.Key(); k != nil {
		return k
	}
	return cur.setKey
}

// Val returns the value at the cursor's position. The slice aliases
// LMDB-owned memory.
func (cur *Cursor) Val() []byte {
	return cur.kv.Val()
}

// Get retrieves items from the database according to op. The key argument
// feeds the Set/SetKey/SetRange family; the val argument feeds
// GetBoth/GetBothRange. Both may be nil for positional ops like First or
// Next.
//
// Returned slices alias LMDB-owned memory and are invalidated by the next
// cursor operation.
//
// See mdb_cursor_get.
func (cur *Cursor) Get(key, val []byte, op CursorOp) ([]byte, []byte, error) {
	if err := cur.liveErr(); err != nil {
		return nil, nil, err
	}
	var ret C.int
	switch {
	case key == nil && val == nil:
		ret = C.lmdbenv_mdb_cursor_get0(cur._cur, C.MDB_cursor_op(op),
			cur.kv.key.p, cur.kv.val.p)
	case val == nil:
		kdata, kn := valBytes(key)
		ret = C.lmdbenv_mdb_cursor_get1(cur._cur, kdata, kn,
			C.MDB_cursor_op(op), cur.kv.key.p, cur.kv.val.p)
	default:
		kdata, kn := valBytes(key)
		vdata, vn := valBytes(val)
		ret = C.lmdbenv_mdb_cursor_get2(cur._cur, kdata, kn, vdata, vn,
			C.MDB_cursor_op(op), cur.kv.key.p, cur.kv.val.p)
	}
	runtime.KeepAlive(key)
	runtime.KeepAlive(val)
	if op == OpSet {
		cur.setKey = key
	} else {
		cur.setKey = nil
	}
	if ret != success {
		return nil, nil, operrno("mdb_cursor_get", ret)
	}
	return cur.Key(), cur.Val(), nil
}

// First positions the cursor at the first item. Returns false at an empty
// database.
func (cur *Cursor) First() (bool, error) { return cur.move(OpFirst) }

// Last positions the cursor at the last item.
func (cur *Cursor) Last() (bool, error) { return cur.move(OpLast) }

// Next advances the cursor. Returns false past the last item.
func (cur *Cursor) Next() (bool, error) { return cur.move(OpNext) }

// Prev steps the cursor back. Returns false before the first item.
func (cur *Cursor) Prev() (bool, error) { return cur.move(OpPrev) }

func (cur *Cursor) move(op CursorOp) (bool, error) {
	_, _, err := cur.Get(nil, nil, op)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SeekRange positions the cursor at the first key greater than or equal to
// key. Returns false when no such key exists.
func (cur *Cursor) SeekRange(key []byte) (bool, error) {
	_, _, err := cur.Get(key, nil, OpSetRange)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Put stores val for key at the cursor.
//
// See mdb_cursor_put.
func (cur *Cursor) Put(key, val []byte, flags PutFlags) error {
	if err := cur.writableErr(); err != nil {
		return err
	}
	kdata, kn := valBytes(key)
	vdata, vn := valBytes(val)
	ret := C.lmdbenv_mdb_cursor_put2(cur._cur, kdata, kn, vdata, vn,
		C.uint(flags))
	runtime.KeepAlive(key)
	runtime.KeepAlive(val)
	return operrno("mdb_cursor_put", ret)
}

// PutReserve reserves size bytes for key and returns a writable slice of
// LMDB-owned page memory.
//
// See mdb_cursor_put with MDB_RESERVE.
func (cur *Cursor) PutReserve(key []byte, size int, flags PutFlags) ([]byte, error) {
	if err := cur.writableErr(); err != nil {
		return nil, err
	}
	cur.kv.val.p.mv_size = C.size_t(size)
	cur.kv.val.p.mv_data = nil
	kdata, kn := valBytes(key)
	ret := C.lmdbenv_mdb_cursor_put1(cur._cur, kdata, kn, cur.kv.val.p,
		C.uint(flags|Reserve))
	runtime.KeepAlive(key)
	if ret != success {
		return nil, operrno("mdb_cursor_put", ret)
	}
	return cur.kv.Val(), nil
}

// PutMulti stores a batch of fixed-size values for key in one call. The
// page slice holds the values contiguously, stride bytes each. The
// database must be DupFixed.
//
// See mdb_cursor_put with MDB_MULTIPLE.
func (cur *Cursor) PutMulti(key, page []byte, stride int, flags PutFlags) error {
	if err := cur.writableErr(); err != nil {
		return err
	}
	kdata, kn := valBytes(key)
	vdata, vn := valBytes(page)
	ret := C.lmdbenv_mdb_cursor_putmulti(cur._cur, kdata, kn, vdata, vn,
		C.size_t(stride), C.uint(flags|Multiple))
	runtime.KeepAlive(key)
	runtime.KeepAlive(page)
	return operrno("mdb_cursor_put", ret)
}

// Del deletes the item at the cursor's position. With NoDupData every
// duplicate of the current key is deleted.
//
// See mdb_cursor_del.
func (cur *Cursor) Del(flags PutFlags) error {
	if err := cur.writableErr(); err != nil {
		return err
	}
	ret := C.mdb_cursor_del(cur._cur, C.uint(flags))
	return operrno("mdb_cursor_del", ret)
}

func (cur *Cursor) writableErr() error {
	if err := cur.liveErr(); err != nil {
		return err
	}
	if cur.txn.readonly {
		return ErrReadWriteRequired
	}
	return nil
}

// Count returns the number of duplicates stored for the current key. The
// database must be DupSort.
//
// See mdb_cursor_count.
func (cur *Cursor) Count() (uint64, error) {
	if err := cur.liveErr(); err != nil {
		return 0, err
	}
	var count C.size_t
	ret := C.mdb_cursor_count(cur._cur, &count)
	if ret != success {
		return 0, operrno("mdb_cursor_count", ret)
	}
	return uint64(count), nil
}

// Renew rebinds a cursor created on a read-only transaction to another
// read-only transaction, reusing its native handle.
//
// See mdb_cursor_renew.
func (cur *Cursor) Renew(txn *Txn) error {
	if cur.closed {
		return ErrCursorClosed
	}
	if !cur.readonlyOwner || !txn.readonly {
		return ErrReadOnlyRequired
	}
	if err := txn.readyErr(); err != nil {
		return err
	}
	ret := C.mdb_cursor_renew(txn._txn, cur._cur)
	if ret != success {
		return operrno("mdb_cursor_renew", ret)
	}
	cur.txn = txn
	cur.kv.clear()
	cur.setKey = nil
	return nil
}

// Close releases the cursor. Close is idempotent. Closing a cursor owned
// by a read-only transaction is mandatory; one owned by a write
// transaction is closed implicitly when the transaction ends.
//
// See mdb_cursor_close.
func (cur *Cursor) Close() {
	if cur.closed {
		return
	}
	// A write transaction that already ended closed the native handle
	// along with it; invalidate() handled that case.
	C.mdb_cursor_close(cur._cur)
	cur.invalidate()
}

// invalidate marks the cursor closed without touching the native handle,
// used when LMDB already closed it as part of ending a write transaction.
func (cur *Cursor) invalidate() {
	if cur.closed {
		return
	}
	cur.closed = true
	cur._cur = nil
	cur.kv.free()
	cur.setKey = nil
}
