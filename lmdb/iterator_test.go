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
	"reflect"
	"testing"
)

// collect drains the window rng over db and returns the keys seen.
func collect(t *testing.T, env *Env, db DBI, rng KeyRange[[]byte]) []string {
	t.Helper()
	var keys []string
	err := env.View(func(txn *Txn) error {
		it, err := Iterate(txn, db, rng)
		if err != nil {
			return err
		}
		defer it.Close()
		return it.ForEach(func(key, val []byte) error {
			keys = append(keys, string(key))
			return nil
		})
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	return keys
}

// The terminal-range scenarios use keys 2, 4, 6, 8 like the classic
// cursor range tables.
func rangeEnv(t *testing.T) (*Env, DBI) {
	env := setup(t)
	db := openRoot(env, t)
	fill(env, db, t, "2", "4", "6", "8")
	return env, db
}

func TestIterate_ForwardRanges(t *testing.T) {
	env, db := rangeEnv(t)
	defer clean(env, t)

	cases := []struct {
		name string
		rng  KeyRange[[]byte]
		want []string
	}{
		{"all", RangeAll[[]byte](), []string{"2", "4", "6", "8"}},
		{"atLeast", RangeAtLeast([]byte("5")), []string{"6", "8"}},
		{"atLeastExisting", RangeAtLeast([]byte("4")), []string{"4", "6", "8"}},
		{"atMost", RangeAtMost([]byte("5")), []string{"2", "4"}},
		{"atMostExisting", RangeAtMost([]byte("6")), []string{"2", "4", "6"}},
		{"closed", RangeClosed([]byte("3"), []byte("7")), []string{"4", "6"}},
		{"closedExisting", RangeClosed([]byte("2"), []byte("6")),
			[]string{"2", "4", "6"}},
		{"greaterThan", RangeGreaterThan([]byte("4")), []string{"6", "8"}},
		{"greaterThanMissing", RangeGreaterThan([]byte("3")),
			[]string{"4", "6", "8"}},
		{"lessThan", RangeLessThan([]byte("6")), []string{"2", "4"}},
		{"open", RangeOpen([]byte("2"), []byte("8")), []string{"4", "6"}},
		{"openMissingBounds", RangeOpen([]byte("1"), []byte("9")),
			[]string{"2", "4", "6", "8"}},
	}
	for _, c := range cases {
		if got := collect(t, env, db, c.rng); !reflect.DeepEqual(got, c.want) {
			t.Errorf("%s: got %v, expected %v", c.name, got, c.want)
		}
	}
}

func TestIterate_BackwardRanges(t *testing.T) {
	env, db := rangeEnv(t)
	defer clean(env, t)

	cases := []struct {
		name string
		rng  KeyRange[[]byte]
		want []string
	}{
		{"all", RangeAllBackward[[]byte](), []string{"8", "6", "4", "2"}},
		{"atLeast", RangeAtLeastBackward([]byte("5")), []string{"4", "2"}},
		{"atLeastExisting", RangeAtLeastBackward([]byte("6")),
			[]string{"6", "4", "2"}},
		{"atMost", RangeAtMostBackward([]byte("5")), []string{"8", "6"}},
		{"atMostExisting", RangeAtMostBackward([]byte("4")),
			[]string{"8", "6", "4"}},
		{"closed", RangeClosedBackward([]byte("7"), []byte("3")),
			[]string{"6", "4"}},
		{"closedExisting", RangeClosedBackward([]byte("8"), []byte("4")),
			[]string{"8", "6", "4"}},
		{"greaterThan", RangeGreaterThanBackward([]byte("6")),
			[]string{"4", "2"}},
		{"lessThan", RangeLessThanBackward([]byte("4")), []string{"8", "6"}},
		{"open", RangeOpenBackward([]byte("7"), []byte("2")),
			[]string{"6", "4"}},
		{"openWideBounds", RangeOpenBackward([]byte("8"), []byte("1")),
			[]string{"6", "4", "2"}},
	}
	for _, c := range cases {
		if got := collect(t, env, db, c.rng); !reflect.DeepEqual(got, c.want) {
			t.Errorf("%s: got %v, expected %v", c.name, got, c.want)
		}
	}
}

func TestIterate_EmptyDatabase(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)

	if got := collect(t, env, db, RangeAll[[]byte]()); len(got) != 0 {
		t.Errorf("expected empty sequence, got %v", got)
	}
	if got := collect(t, env, db, RangeAllBackward[[]byte]()); len(got) != 0 {
		t.Errorf("expected empty backward sequence, got %v", got)
	}
}

func TestIterate_CoversCount(t *testing.T) {
	env, db := rangeEnv(t)
	defer clean(env, t)

	forward := collect(t, env, db, RangeAll[[]byte]())
	backward := collect(t, env, db, RangeAllBackward[[]byte]())

	var entries uint64
	err := env.View(func(txn *Txn) error {
		stat, err := txn.Stat(db)
		if err != nil {
			return err
		}
		entries = stat.Entries
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if uint64(len(forward)) != entries || uint64(len(backward)) != entries {
		t.Errorf("iteration covered %d/%d entries, count %d",
			len(forward), len(backward), entries)
	}
	for i := 1; i < len(forward); i++ {
		if forward[i-1] >= forward[i] {
			t.Errorf("forward keys out of order: %v", forward)
		}
	}
	for i := 1; i < len(backward); i++ {
		if backward[i-1] <= backward[i] {
			t.Errorf("backward keys out of order: %v", backward)
		}
	}
}

func TestIterate_Prefix(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)
	fill(env, db, t, "a", "app", "apple", "apply", "b", "banana")

	got := collect(t, env, db, RangePrefix([]byte("app")))
	want := []string{"app", "apple", "apply"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("prefix forward: got %v, expected %v", got, want)
	}

	got = collect(t, env, db, RangePrefixBackward([]byte("app")))
	want = []string{"apply", "apple", "app"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("prefix backward: got %v, expected %v", got, want)
	}

	if got := collect(t, env, db, RangePrefix([]byte("zz"))); len(got) != 0 {
		t.Errorf("expected empty prefix sequence, got %v", got)
	}
}

func TestIterate_PrefixBackwardOverflow(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)
	err := env.Update(func(txn *Txn) error {
		for _, k := range [][]byte{{0x01}, {0xff}, {0xff, 0x01}, {0xff, 0x02}} {
			if err := txn.Put(db, k, k, 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// Incrementing 0xff overflows; iteration must fall back to the last
	// key and still yield every prefixed entry.
	got := collect(t, env, db, RangePrefixBackward([]byte{0xff}))
	want := []string{"\xff\x02", "\xff\x01", "\xff"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, expected %q", got, want)
	}
}

func TestIterate_DupSortDistinctKeys(t *testing.T) {
	env := setup(t)
	defer clean(env, t)

	var db DBI
	err := env.Update(func(txn *Txn) (err error) {
		db, err = txn.OpenDBI("dup", Create|DupSort)
		if err != nil {
			return err
		}
		for _, kv := range [][2]string{
			{"2", "x"}, {"4", "x"}, {"4", "y"}, {"6", "x"},
		} {
			if err := txn.Put(db, []byte(kv[0]), []byte(kv[1]), 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// Backward iteration over a DupSort database must start from the
	// last duplicate of the start key.
	var pairs [][2]string
	err = env.View(func(txn *Txn) error {
		it, err := Iterate(txn, db, RangeAtLeastBackward([]byte("4")))
		if err != nil {
			return err
		}
		defer it.Close()
		return it.ForEach(func(key, val []byte) error {
			pairs = append(pairs, [2]string{string(key), string(val)})
			return nil
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]string{{"4", "y"}, {"4", "x"}, {"2", "x"}}
	if !reflect.DeepEqual(pairs, want) {
		t.Errorf("got %v, expected %v", pairs, want)
	}
}

func TestIterate_OneShot(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)
	fill(env, db, t, "a")

	err := env.View(func(txn *Txn) error {
		it, err := Iterate(txn, db, RangeAll[[]byte]())
		if err != nil {
			return err
		}
		defer it.Close()
		if _, err := it.Iterator(); err != nil {
			return err
		}
		if _, err := it.Iterator(); err != ErrIllegalState {
			t.Errorf("expected ErrIllegalState, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// The iterator hands out the same underlying slots on every step; copying
// is the caller's job when entries are retained.
func TestIterate_HolderAliasing(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)
	fill(env, db, t, "a", "b", "c")

	err := env.View(func(txn *Txn) error {
		it, err := Iterate(txn, db, RangeAll[[]byte]())
		if err != nil {
			return err
		}
		defer it.Close()
		iter, err := it.Iterator()
		if err != nil {
			return err
		}
		var copied []string
		for iter.Next() {
			copied = append(copied, string(iter.Key()))
		}
		if err := iter.Err(); err != nil {
			return err
		}
		want := []string{"a", "b", "c"}
		if !reflect.DeepEqual(copied, want) {
			t.Errorf("got %v, expected %v", copied, want)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
