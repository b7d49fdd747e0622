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
	"bytes"
	"reflect"
	"testing"
)

func TestOpenDBI_NamedAndFlags(t *testing.T) {
	env := setup(t)
	defer clean(env, t)

	var db DBI
	err := env.Update(func(txn *Txn) (err error) {
		db, err = txn.OpenDBI("named", Create|DupSort)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	err = env.View(func(txn *Txn) error {
		flags, err := txn.DBIFlags(db)
		if err != nil {
			return err
		}
		if !flags.Has(DupSort) {
			t.Errorf("expected DupSort in flags %x", flags)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// Opening a missing database without Create fails.
	err = env.View(func(txn *Txn) error {
		_, err := txn.OpenDBI("missing", 0)
		if !IsNotFound(err) {
			t.Errorf("expected NotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDatabase_Convenience(t *testing.T) {
	env := setup(t)
	defer clean(env, t)

	db, err := NewDatabase[[]byte](env, BytesProxy{}).
		WithName("conv").
		Open(nil, Create)
	if err != nil {
		t.Fatal(err)
	}

	err = env.Update(func(txn *Txn) error {
		if err := db.Put(txn, []byte("a"), []byte("1"), 0); err != nil {
			return err
		}
		return db.Put(txn, []byte("b"), []byte("2"), 0)
	})
	if err != nil {
		t.Fatal(err)
	}

	err = env.View(func(txn *Txn) error {
		v, err := db.Get(txn, []byte("a"))
		if err != nil {
			return err
		}
		if !bytes.Equal(v, []byte("1")) {
			t.Errorf("got %q", v)
		}
		n, err := db.Count(txn)
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("count %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = env.Update(func(txn *Txn) error {
		return db.Del(txn, []byte("a"))
	})
	if err != nil {
		t.Fatal(err)
	}

	err = env.Update(func(txn *Txn) error {
		return db.Drop(txn, false)
	})
	if err != nil {
		t.Fatal(err)
	}
	err = env.View(func(txn *Txn) error {
		n, err := db.Count(txn)
		if err != nil {
			return err
		}
		if n != 0 {
			t.Errorf("count %d after drop", n)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDatabase_Iterate(t *testing.T) {
	env := setup(t)
	defer clean(env, t)

	db, err := NewDatabase[[]byte](env, BytesProxy{}).
		WithName("iter").
		Open(nil, Create)
	if err != nil {
		t.Fatal(err)
	}
	err = env.Update(func(txn *Txn) error {
		for _, k := range []string{"1", "2", "3"} {
			if err := db.Put(txn, []byte(k), []byte(k), 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	var keys []string
	err = env.View(func(txn *Txn) error {
		it, err := db.Iterate(txn, RangeAtLeast([]byte("2")))
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
		t.Fatal(err)
	}
	if !reflect.DeepEqual(keys, []string{"2", "3"}) {
		t.Errorf("got %v", keys)
	}
}

// A callback comparator that reverses the byte order must control both
// insert position and iteration order.
func TestDatabase_CallbackComparator(t *testing.T) {
	env := setup(t)
	defer clean(env, t)

	reverse := func(a, b []byte) int { return -CompareBytes(a, b) }
	db, err := NewDatabase[[]byte](env, BytesProxy{}).
		WithName("reversed").
		WithCallbackComparator(reverse).
		Open(nil, Create)
	if err != nil {
		t.Fatal(err)
	}

	err = env.Update(func(txn *Txn) error {
		for _, k := range []string{"b", "a", "c"} {
			if err := db.Put(txn, []byte(k), []byte(k), 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	var keys []string
	err = env.View(func(txn *Txn) error {
		cur, err := db.OpenCursor(txn)
		if err != nil {
			return err
		}
		defer cur.Close()
		for found, err := cur.First(); found; found, err = cur.Next() {
			if err != nil {
				return err
			}
			keys = append(keys, string(cur.Key()))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(keys, []string{"c", "b", "a"}) {
		t.Errorf("reversed order got %v", keys)
	}
}

func TestDatabase_Unnamed(t *testing.T) {
	env := setup(t)
	defer clean(env, t)

	db, err := NewDatabase[[]byte](env, BytesProxy{}).
		Unnamed().
		Open(nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if db.Name() != "" {
		t.Errorf("unexpected name %q", db.Name())
	}
	err = env.Update(func(txn *Txn) error {
		return db.Put(txn, []byte("k"), []byte("v"), 0)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDatabase_OpenInExplicitTxn(t *testing.T) {
	env := setup(t)
	defer clean(env, t)

	err := env.Update(func(txn *Txn) error {
		db, err := NewDatabase[[]byte](env, BytesProxy{}).
			WithName("explicit").
			Open(txn, Create)
		if err != nil {
			return err
		}
		return db.Put(txn, []byte("k"), []byte("v"), 0)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTxn_Cmp(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)

	err := env.View(func(txn *Txn) error {
		if txn.Cmp(db, []byte("a"), []byte("b")) >= 0 {
			t.Error("expected a < b")
		}
		if txn.Cmp(db, []byte("b"), []byte("a")) <= 0 {
			t.Error("expected b > a")
		}
		if txn.Cmp(db, []byte("a"), []byte("a")) != 0 {
			t.Error("expected a == a")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
