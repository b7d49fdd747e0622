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

import (
	"github.com/pkg/errors"
)

// KeyRangeType classifies an ordered iteration window: direction, and
// which of the start and stop bounds exist and whether they are inclusive.
type KeyRangeType int

const (
	// ForwardAll iterates every key, ascending.
	ForwardAll KeyRangeType = iota
	// ForwardAtLeast iterates keys >= start, ascending.
	ForwardAtLeast
	// ForwardAtMost iterates keys <= stop, ascending.
	ForwardAtMost
	// ForwardClosed iterates start <= key <= stop, ascending.
	ForwardClosed
	// ForwardGreaterThan iterates keys > start, ascending.
	ForwardGreaterThan
	// ForwardLessThan iterates keys < stop, ascending.
	ForwardLessThan
	// ForwardOpen iterates start < key < stop, ascending.
	ForwardOpen
	// BackwardAll iterates every key, descending.
	BackwardAll
	// BackwardAtLeast iterates keys <= start, descending.
	BackwardAtLeast
	// BackwardAtMost iterates keys >= stop, descending.
	BackwardAtMost
	// BackwardClosed iterates stop <= key <= start, descending.
	BackwardClosed
	// BackwardGreaterThan iterates keys < start, descending.
	BackwardGreaterThan
	// BackwardLessThan iterates keys > stop, descending.
	BackwardLessThan
	// BackwardOpen iterates stop < key < start, descending.
	BackwardOpen
)

// rangeCursorOp is the cursor operation that establishes a range's initial
// position.
type rangeCursorOp int

const (
	opInitFirst rangeCursorOp = iota
	opInitLast
	opInitStartKey
	opInitStartKeyBackward
)

// IteratorOp is the range policy's verdict on the current cursor position.
type IteratorOp int

const (
	// CallNextOp skips the current key and advances again.
	CallNextOp IteratorOp = iota
	// Release yields the current entry to the caller.
	Release
	// Terminate ends the sequence.
	Terminate
)

// Forward reports whether the range iterates in ascending key order.
func (t KeyRangeType) Forward() bool {
	return t <= ForwardOpen
}

// RequiresStart reports whether the range needs a start key.
func (t KeyRangeType) RequiresStart() bool {
	switch t {
	case ForwardAtLeast, ForwardClosed, ForwardGreaterThan, ForwardOpen,
		BackwardAtLeast, BackwardClosed, BackwardGreaterThan, BackwardOpen:
		return true
	}
	return false
}

// RequiresStop reports whether the range needs a stop key.
func (t KeyRangeType) RequiresStop() bool {
	switch t {
	case ForwardAtMost, ForwardClosed, ForwardLessThan, ForwardOpen,
		BackwardAtMost, BackwardClosed, BackwardLessThan, BackwardOpen:
		return true
	}
	return false
}

// startInclusive reports whether the start bound itself belongs to the
// window. Drives the duplicate-aware backward seek adjustment.
func (t KeyRangeType) startInclusive() bool {
	switch t {
	case ForwardAtLeast, ForwardClosed, BackwardAtLeast, BackwardClosed:
		return true
	}
	return false
}

// initialOp returns the cursor operation establishing the initial
// position.
func (t KeyRangeType) initialOp() rangeCursorOp {
	switch t {
	case ForwardAll, ForwardAtMost, ForwardLessThan:
		return opInitFirst
	case ForwardAtLeast, ForwardClosed, ForwardGreaterThan, ForwardOpen:
		return opInitStartKey
	case BackwardAll, BackwardAtMost, BackwardLessThan:
		return opInitLast
	default:
		return opInitStartKeyBackward
	}
}

// nextOp returns the cursor operation advancing the iteration.
func (t KeyRangeType) nextOp() CursorOp {
	if t.Forward() {
		return OpNext
	}
	return OpPrev
}

// iteratorOp decides what to do with the key at the cursor's current
// position. current must be non-nil; a cursor without a position
// terminates before the policy is consulted.
func iteratorOp[T any](t KeyRangeType, start, stop, current T,
	cmp func(a, b T) int) IteratorOp {
	switch t {
	case ForwardAll, ForwardAtLeast, BackwardAll:
		return Release
	case ForwardAtMost, ForwardClosed:
		if cmp(current, stop) > 0 {
			return Terminate
		}
		return Release
	case ForwardGreaterThan:
		if cmp(current, start) == 0 {
			return CallNextOp
		}
		return Release
	case ForwardLessThan:
		if cmp(current, stop) >= 0 {
			return Terminate
		}
		return Release
	case ForwardOpen:
		if cmp(current, start) == 0 {
			return CallNextOp
		}
		if cmp(current, stop) >= 0 {
			return Terminate
		}
		return Release
	case BackwardAtLeast:
		if cmp(current, start) > 0 {
			return CallNextOp
		}
		return Release
	case BackwardAtMost:
		if cmp(current, stop) >= 0 {
			return Release
		}
		return Terminate
	case BackwardClosed:
		if cmp(current, start) > 0 {
			return CallNextOp
		}
		if cmp(current, stop) >= 0 {
			return Release
		}
		return Terminate
	case BackwardGreaterThan:
		if cmp(current, start) >= 0 {
			return CallNextOp
		}
		return Release
	case BackwardLessThan:
		if cmp(current, stop) > 0 {
			return Release
		}
		return Terminate
	default: // BackwardOpen
		if cmp(current, start) >= 0 {
			return CallNextOp
		}
		if cmp(current, stop) > 0 {
			return Release
		}
		return Terminate
	}
}

// KeyRange is an immutable descriptor of an ordered iteration window:
// a type, its bounds, and optionally a key prefix. Build one with the
// Range* constructors.
type KeyRange[T any] struct {
	typ      KeyRangeType
	start    T
	stop     T
	hasStart bool
	hasStop  bool

	prefix    T
	hasPrefix bool
}

// Type returns the range classification.
func (r KeyRange[T]) Type() KeyRangeType { return r.typ }

// Start returns the start bound and whether one is present.
func (r KeyRange[T]) Start() (T, bool) { return r.start, r.hasStart }

// Stop returns the stop bound and whether one is present.
func (r KeyRange[T]) Stop() (T, bool) { return r.stop, r.hasStop }

// Prefix returns the key prefix and whether one is present.
func (r KeyRange[T]) Prefix() (T, bool) { return r.prefix, r.hasPrefix }

func (r KeyRange[T]) validate() error {
	if r.hasPrefix {
		return nil
	}
	if r.typ.RequiresStart() && !r.hasStart {
		return errors.Errorf("key range %d requires a start key", r.typ)
	}
	if r.typ.RequiresStop() && !r.hasStop {
		return errors.Errorf("key range %d requires a stop key", r.typ)
	}
	return nil
}

// RangeAll iterates every key, ascending.
func RangeAll[T any]() KeyRange[T] {
	return KeyRange[T]{typ: ForwardAll}
}

// RangeAllBackward iterates every key, descending.
func RangeAllBackward[T any]() KeyRange[T] {
	return KeyRange[T]{typ: BackwardAll}
}

// RangeAtLeast iterates keys >= start, ascending.
func RangeAtLeast[T any](start T) KeyRange[T] {
	return KeyRange[T]{typ: ForwardAtLeast, start: start, hasStart: true}
}

// RangeAtLeastBackward iterates keys <= start, descending from start.
func RangeAtLeastBackward[T any](start T) KeyRange[T] {
	return KeyRange[T]{typ: BackwardAtLeast, start: start, hasStart: true}
}

// RangeAtMost iterates keys <= stop, ascending.
func RangeAtMost[T any](stop T) KeyRange[T] {
	return KeyRange[T]{typ: ForwardAtMost, stop: stop, hasStop: true}
}

// RangeAtMostBackward iterates keys >= stop, descending.
func RangeAtMostBackward[T any](stop T) KeyRange[T] {
	return KeyRange[T]{typ: BackwardAtMost, stop: stop, hasStop: true}
}

// RangeClosed iterates start <= key <= stop, ascending.
func RangeClosed[T any](start, stop T) KeyRange[T] {
	return KeyRange[T]{
		typ: ForwardClosed, start: start, stop: stop,
		hasStart: true, hasStop: true,
	}
}

// RangeClosedBackward iterates stop <= key <= start, descending.
func RangeClosedBackward[T any](start, stop T) KeyRange[T] {
	return KeyRange[T]{
		typ: BackwardClosed, start: start, stop: stop,
		hasStart: true, hasStop: true,
	}
}

// RangeGreaterThan iterates keys > start, ascending.
func RangeGreaterThan[T any](start T) KeyRange[T] {
	return KeyRange[T]{typ: ForwardGreaterThan, start: start, hasStart: true}
}

// RangeGreaterThanBackward iterates keys < start, descending.
func RangeGreaterThanBackward[T any](start T) KeyRange[T] {
	return KeyRange[T]{typ: BackwardGreaterThan, start: start, hasStart: true}
}

// RangeLessThan iterates keys < stop, ascending.
func RangeLessThan[T any](stop T) KeyRange[T] {
	return KeyRange[T]{typ: ForwardLessThan, stop: stop, hasStop: true}
}

// RangeLessThanBackward iterates keys > stop, descending.
func RangeLessThanBackward[T any](stop T) KeyRange[T] {
	return KeyRange[T]{typ: BackwardLessThan, stop: stop, hasStop: true}
}

// RangeOpen iterates start < key < stop, ascending.
func RangeOpen[T any](start, stop T) KeyRange[T] {
	return KeyRange[T]{
		typ: ForwardOpen, start: start, stop: stop,
		hasStart: true, hasStop: true,
	}
}

// RangeOpenBackward iterates stop < key < start, descending.
func RangeOpenBackward[T any](start, stop T) KeyRange[T] {
	return KeyRange[T]{
		typ: BackwardOpen, start: start, stop: stop,
		hasStart: true, hasStop: true,
	}
}

// RangePrefix iterates every key starting with prefix, ascending.
func RangePrefix[T any](prefix T) KeyRange[T] {
	return KeyRange[T]{typ: ForwardAll, prefix: prefix, hasPrefix: true}
}

// RangePrefixBackward iterates every key starting with prefix, descending.
func RangePrefixBackward[T any](prefix T) KeyRange[T] {
	return KeyRange[T]{typ: BackwardAll, prefix: prefix, hasPrefix: true}
}
