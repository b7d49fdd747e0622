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

// CursorIterable drives a cursor through a KeyRange as a lazy sequence.
// It opens its cursor on construction and closes it again on Close. The
// iterable is one-shot: Iterator may be called once.
//
// The iterator reuses the cursor's key/value flyweight for every entry.
// With a zero-copy proxy the views handed out alias LMDB-owned memory and
// are re-aliased by the next iteration step; copy them to retain them, or
// iterate through a copying proxy.
type CursorIterable[T any] struct {
	cur   *Cursor
	rng   KeyRange[T]
	proxy BufferProxy[T]
	cmp   func(a, b T) int
	taken bool
}

func newCursorIterable[T any](txn *Txn, dbi DBI, rng KeyRange[T],
	proxy BufferProxy[T], cmp func(a, b T) int) (*CursorIterable[T], error) {
	if err := rng.validate(); err != nil {
		return nil, err
	}
	cur, err := txn.OpenCursor(dbi)
	if err != nil {
		return nil, err
	}
	if cmp == nil {
		cmp = proxy.Comparator(0)
	}
	return &CursorIterable[T]{cur: cur, rng: rng, proxy: proxy, cmp: cmp}, nil
}

// Iterate opens a one-shot iterable over the window rng of database dbi,
// using the plain byte-slice proxy.
func Iterate(txn *Txn, dbi DBI, rng KeyRange[[]byte]) (*CursorIterable[[]byte], error) {
	return newCursorIterable[[]byte](txn, dbi, rng, BytesProxy{}, nil)
}

// Iterator returns the iterable's single iterator. A second call fails
// with ErrIllegalState.
func (ci *CursorIterable[T]) Iterator() (*RangeIterator[T], error) {
	if ci.taken {
		return nil, ErrIllegalState
	}
	ci.taken = true
	return &RangeIterator[T]{ci: ci, state: stateRequiresInitialOp}, nil
}

// ForEach runs fn over every entry of the sequence. The key and value
// views passed to fn follow the iterable's aliasing rules.
func (ci *CursorIterable[T]) ForEach(fn func(key, val T) error) error {
	it, err := ci.Iterator()
	if err != nil {
		return err
	}
	for it.Next() {
		if err := fn(it.Key(), it.Val()); err != nil {
			return err
		}
	}
	return it.Err()
}

// Close releases the iterable's cursor. Close is idempotent.
func (ci *CursorIterable[T]) Close() {
	ci.cur.Close()
}

// Iterator state machine, one per sequence.
const (
	stateRequiresInitialOp int = iota
	stateRequiresNextOp
	stateRequiresIteratorOp
	stateReleased
	stateTerminated
)

// RangeIterator is a lazy iterator over one KeyRange window. Use it in the
// scanner style:
//
//	it, err := iterable.Iterator()
//	...
//	for it.Next() {
//		use(it.Key(), it.Val())
//	}
//	err = it.Err()
type RangeIterator[T any] struct {
	ci    *CursorIterable[T]
	state int
	err   error
}

// Next advances to the next entry in the window, returning false when the
// sequence ends or an error occurs.
func (it *RangeIterator[T]) Next() bool {
	if it.err != nil {
		return false
	}
	if it.state == stateReleased {
		it.state = stateRequiresNextOp
	}
	for it.state != stateReleased && it.state != stateTerminated {
		it.step()
		if it.err != nil {
			it.state = stateTerminated
			return false
		}
	}
	return it.state == stateReleased
}

// Err returns the first error encountered while iterating.
func (it *RangeIterator[T]) Err() error {
	return it.err
}

// Key returns the key of the current entry. The view is re-aliased by the
// next call to Next.
func (it *RangeIterator[T]) Key() T {
	return it.ci.proxy.Out(it.ci.cur.kv.key)
}

// Val returns the value of the current entry. The view is re-aliased by
// the next call to Next.
func (it *RangeIterator[T]) Val() T {
	return it.ci.proxy.Out(it.ci.cur.kv.val)
}

func (it *RangeIterator[T]) step() {
	if _, prefixed := it.ci.rng.Prefix(); prefixed {
		it.stepPrefix()
		return
	}
	switch it.state {
	case stateRequiresInitialOp:
		found, err := it.executeInitialOp()
		if err != nil {
			it.err = err
			return
		}
		if !found {
			it.state = stateTerminated
			return
		}
		it.state = stateRequiresIteratorOp
	case stateRequiresNextOp:
		found, err := it.ci.cur.move(it.ci.rng.typ.nextOp())
		if err != nil {
			it.err = err
			return
		}
		if !found {
			it.state = stateTerminated
			return
		}
		it.state = stateRequiresIteratorOp
	case stateRequiresIteratorOp:
		rng := &it.ci.rng
		switch iteratorOp(rng.typ, rng.start, rng.stop, it.Key(), it.ci.cmp) {
		case CallNextOp:
			it.state = stateRequiresNextOp
		case Release:
			it.state = stateReleased
		case Terminate:
			it.state = stateTerminated
		}
	}
}

func (it *RangeIterator[T]) executeInitialOp() (bool, error) {
	cur := it.ci.cur
	rng := &it.ci.rng
	switch rng.typ.initialOp() {
	case opInitFirst:
		return cur.First()
	case opInitLast:
		return cur.Last()
	case opInitStartKey:
		return cur.SeekRange(it.ci.proxy.In(rng.start))
	default:
		return it.seekStartKeyBackward()
	}
}

// seekStartKeyBackward places the cursor on the last key <= start. A plain
// SET_RANGE lands on the first key >= start, which for DupSort databases
// with duplicate entries is the wrong end of the duplicate run; when the
// start bound is inclusive the cursor walks past the boundary and steps
// back one.
func (it *RangeIterator[T]) seekStartKeyBackward() (bool, error) {
	cur := it.ci.cur
	rng := &it.ci.rng
	found, err := cur.SeekRange(it.ci.proxy.In(rng.start))
	if err != nil {
		return false, err
	}
	if found && rng.typ.startInclusive() {
		for {
			if it.ci.cmp(it.Key(), rng.start) > 0 {
				// Step back past the boundary. When no predecessor
				// exists the cursor keeps its position and the range
				// policy rewinds or terminates.
				if _, err = cur.Prev(); err != nil {
					return false, err
				}
				break
			}
			var ok bool
			ok, err = cur.Next()
			if err != nil {
				return false, err
			}
			if !ok {
				found, err = cur.Last()
				break
			}
		}
		if err != nil {
			return false, err
		}
	}
	if !found {
		found, err = cur.Last()
	}
	return found, err
}

// Prefix iteration is its own little machine: seek to the prefix (or just
// past it when running backward) and keep going while the current key
// still carries the prefix.
func (it *RangeIterator[T]) stepPrefix() {
	cur := it.ci.cur
	rng := &it.ci.rng
	forward := rng.typ.Forward()

	var found bool
	var err error
	switch it.state {
	case stateRequiresInitialOp:
		if forward {
			found, err = cur.SeekRange(it.ci.proxy.In(rng.prefix))
		} else {
			found, err = it.seekPrefixBackward()
		}
	case stateRequiresNextOp:
		found, err = cur.move(rng.typ.nextOp())
	case stateRequiresIteratorOp:
		if it.ci.proxy.ContainsPrefix(it.Key(), rng.prefix) {
			it.state = stateReleased
		} else {
			it.state = stateTerminated
		}
		return
	}
	if err != nil {
		it.err = err
		return
	}
	if !found {
		it.state = stateTerminated
		return
	}
	it.state = stateRequiresIteratorOp
}

// seekPrefixBackward positions the cursor on the last key carrying the
// prefix: seek to the prefix's upper neighbor and step back, falling back
// to the last key when incrementing the prefix overflows.
func (it *RangeIterator[T]) seekPrefixBackward() (bool, error) {
	cur := it.ci.cur
	rng := &it.ci.rng
	next, ok := it.ci.proxy.IncrementLSB(rng.prefix)
	if !ok {
		return cur.Last()
	}
	found, err := cur.SeekRange(it.ci.proxy.In(next))
	if err != nil {
		return false, err
	}
	if !found {
		return cur.Last()
	}
	return cur.Prev()
}
