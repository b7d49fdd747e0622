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
	"fmt"
	"runtime"
	"testing"
)

func TestTxn_PutGetRoundTrip(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)

	err := env.Update(func(txn *Txn) error {
		if err := txn.Put(db, []byte("a"), []byte("1"), 0); err != nil {
			return err
		}
		if err := txn.Put(db, []byte("b"), []byte("2"), 0); err != nil {
			return err
		}
		// Visible within the same transaction.
		v, err := txn.Get(db, []byte("a"))
		if err != nil {
			return err
		}
		if !bytes.Equal(v, []byte("1")) {
			t.Errorf("got %q inside txn", v)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = env.View(func(txn *Txn) error {
		for k, want := range map[string]string{"a": "1", "b": "2"} {
			v, err := txn.Get(db, []byte(k))
			if err != nil {
				return err
			}
			if string(v) != want {
				t.Errorf("get %q: got %q, expected %q", k, v, want)
			}
		}
		if _, err := txn.Get(db, []byte("c")); !IsNotFound(err) {
			t.Errorf("expected NotFound for c, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	stat, err := env.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if stat.Entries != 2 {
		t.Errorf("expected 2 entries, got %d", stat.Entries)
	}
}

func TestTxn_NoOverwrite(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)
	fill(env, db, t, "k")

	err := env.Update(func(txn *Txn) error {
		err := txn.Put(db, []byte("k"), []byte("other"), NoOverwrite)
		if !IsErrno(err, KeyExist) {
			t.Errorf("expected KeyExist, got %v", err)
		}
		// The failed put changed nothing.
		v, err := txn.Get(db, []byte("k"))
		if err != nil {
			return err
		}
		if !bytes.Equal(v, []byte("k")) {
			t.Errorf("value changed to %q", v)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTxn_Del(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)
	fill(env, db, t, "k")

	err := env.Update(func(txn *Txn) error {
		if err := txn.Del(db, []byte("k"), nil); err != nil {
			return err
		}
		if _, err := txn.Get(db, []byte("k")); !IsNotFound(err) {
			t.Errorf("expected NotFound after delete, got %v", err)
		}
		if err := txn.Del(db, []byte("k"), nil); !IsNotFound(err) {
			t.Errorf("expected NotFound for second delete, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTxn_PutReserve(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)

	err := env.Update(func(txn *Txn) error {
		buf, err := txn.PutReserve(db, []byte("k"), 6, 0)
		if err != nil {
			return err
		}
		copy(buf, "foobar")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	err = env.View(func(txn *Txn) error {
		v, err := txn.Get(db, []byte("k"))
		if err != nil {
			return err
		}
		if !bytes.Equal(v, []byte("foobar")) {
			t.Errorf("got %q", v)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTxn_StateMachine(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	txn, err := env.NewWriteTxn()
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != ErrAlreadyCommitted {
		t.Errorf("expected ErrAlreadyCommitted, got %v", err)
	}
	if err := txn.Abort(); err != ErrAlreadyCommitted {
		t.Errorf("expected ErrAlreadyCommitted, got %v", err)
	}
	if _, err := txn.Get(db, []byte("k")); err != ErrAlreadyCommitted {
		t.Errorf("expected ErrAlreadyCommitted, got %v", err)
	}
	// Close after a terminal state is a no-op.
	if err := txn.Close(); err != nil {
		t.Errorf("close after commit: %v", err)
	}

	txn, err = env.NewWriteTxn()
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.Abort(); err != nil {
		t.Fatal(err)
	}
	if err := txn.Abort(); err != ErrAlreadyAborted {
		t.Errorf("expected ErrAlreadyAborted, got %v", err)
	}
	if err := txn.Commit(); err != ErrAlreadyAborted {
		t.Errorf("expected ErrAlreadyAborted, got %v", err)
	}
}

func TestTxn_ReadonlyGuards(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)

	txn, err := env.NewReadTxn()
	if err != nil {
		t.Fatal(err)
	}
	defer txn.Abort()

	if err := txn.Put(db, []byte("k"), []byte("v"), 0); err != ErrReadWriteRequired {
		t.Errorf("expected ErrReadWriteRequired, got %v", err)
	}
	if err := txn.Del(db, []byte("k"), nil); err != ErrReadWriteRequired {
		t.Errorf("expected ErrReadWriteRequired, got %v", err)
	}
	if err := txn.Drop(db, false); err != ErrReadWriteRequired {
		t.Errorf("expected ErrReadWriteRequired, got %v", err)
	}
}

func TestTxn_ResetRenew(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)
	fill(env, db, t, "k")

	txn, err := env.NewReadTxn()
	if err != nil {
		t.Fatal(err)
	}
	defer txn.Close()

	if err := txn.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := txn.Reset(); err != ErrAlreadyReset {
		t.Errorf("expected ErrAlreadyReset, got %v", err)
	}
	if _, err := txn.Get(db, []byte("k")); err != ErrAlreadyReset {
		t.Errorf("expected ErrAlreadyReset, got %v", err)
	}
	if err := txn.Renew(); err != nil {
		t.Fatal(err)
	}
	if err := txn.Renew(); err != ErrNotReset {
		t.Errorf("expected ErrNotReset, got %v", err)
	}
	if _, err := txn.Get(db, []byte("k")); err != nil {
		t.Errorf("get after renew: %v", err)
	}
}

func TestTxn_ResetRequiresReadonly(t *testing.T) {
	env := setup(t)
	defer clean(env, t)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	txn, err := env.NewWriteTxn()
	if err != nil {
		t.Fatal(err)
	}
	defer txn.Close()

	if err := txn.Reset(); err != ErrReadOnlyRequired {
		t.Errorf("expected ErrReadOnlyRequired, got %v", err)
	}
	if err := txn.Renew(); err != ErrReadOnlyRequired {
		t.Errorf("expected ErrReadOnlyRequired, got %v", err)
	}
}

// A long reset/renew cycle must keep reusing the same reader slot instead
// of leaking one per iteration.
func TestTxn_ResetRenewCycle(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)
	fill(env, db, t, "k")

	txn, err := env.NewReadTxn()
	if err != nil {
		t.Fatal(err)
	}
	defer txn.Close()

	for i := 0; i < 1000; i++ {
		if err := txn.Reset(); err != nil {
			t.Fatal(err)
		}
		if err := txn.Renew(); err != nil {
			t.Fatal(err)
		}
		if _, err := txn.Get(db, []byte("k")); err != nil {
			t.Fatal(err)
		}
	}

	info, err := env.Info()
	if err != nil {
		t.Fatal(err)
	}
	if info.NumReaders > 1 {
		t.Errorf("reader slots leaked: %d in use", info.NumReaders)
	}
}

func TestTxn_NestedParentMismatch(t *testing.T) {
	env := setup(t)
	defer clean(env, t)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	parent, err := env.NewWriteTxn()
	if err != nil {
		t.Fatal(err)
	}
	defer parent.Close()

	if _, err := env.BeginTxn(parent, TxnReadonly); err != ErrIncompatibleParent {
		t.Errorf("expected ErrIncompatibleParent, got %v", err)
	}
}

func TestTxn_NestedCommitAbort(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	parent, err := env.NewWriteTxn()
	if err != nil {
		t.Fatal(err)
	}

	child, err := env.BeginTxn(parent, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := child.Put(db, []byte("kept"), []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if err := child.Commit(); err != nil {
		t.Fatal(err)
	}

	child, err = env.BeginTxn(parent, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := child.Put(db, []byte("dropped"), []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if err := child.Abort(); err != nil {
		t.Fatal(err)
	}

	if err := parent.Commit(); err != nil {
		t.Fatal(err)
	}

	err = env.View(func(txn *Txn) error {
		if _, err := txn.Get(db, []byte("kept")); err != nil {
			t.Errorf("kept: %v", err)
		}
		if _, err := txn.Get(db, []byte("dropped")); !IsNotFound(err) {
			t.Errorf("dropped: expected NotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// A reader keeps its begin-time snapshot while a writer commits, and a new
// reader sees the committed value.
func TestTxn_ReaderWriterIsolation(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)
	err := env.Update(func(txn *Txn) error {
		return txn.Put(db, []byte("k"), []byte("v1"), 0)
	})
	if err != nil {
		t.Fatal(err)
	}

	reader, err := env.NewReadTxn()
	if err != nil {
		t.Fatal(err)
	}

	err = env.Update(func(txn *Txn) error {
		return txn.Put(db, []byte("k"), []byte("v2"), 0)
	})
	if err != nil {
		t.Fatal(err)
	}

	v, err := reader.Get(db, []byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(v, []byte("v1")) {
		t.Errorf("reader sees %q, expected v1", v)
	}
	if err := reader.Commit(); err != nil {
		t.Fatal(err)
	}

	err = env.View(func(txn *Txn) error {
		v, err := txn.Get(db, []byte("k"))
		if err != nil {
			return err
		}
		if !bytes.Equal(v, []byte("v2")) {
			t.Errorf("new reader sees %q, expected v2", v)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTxn_UpdateAbortsOnError(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)

	boom := _operrno("test", int(MapFull))
	err := env.Update(func(txn *Txn) error {
		if err := txn.Put(db, []byte("k"), []byte("v"), 0); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("expected propagated error, got %v", err)
	}
	err = env.View(func(txn *Txn) error {
		if _, err := txn.Get(db, []byte("k")); !IsNotFound(err) {
			t.Errorf("aborted write visible: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// Concurrent readers and a writer goroutine hammering the same
// environment must neither race nor deadlock, and every reader must see a
// consistent snapshot.
func TestConcurrentReadingAndWriting(t *testing.T) {
	env := setup(t)
	defer clean(env, t)
	db := openRoot(env, t)

	const rounds = 100
	done := make(chan error, 4)

	go func() {
		for i := 0; i < rounds; i++ {
			err := env.Update(func(txn *Txn) error {
				return txn.Put(db, []byte("counter"),
					[]byte(fmt.Sprintf("%08d", i)), 0)
			})
			if err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for r := 0; r < 3; r++ {
		go func() {
			for i := 0; i < rounds; i++ {
				err := env.View(func(txn *Txn) error {
					v, err := txn.Get(db, []byte("counter"))
					if IsNotFound(err) {
						return nil
					}
					if err != nil {
						return err
					}
					if len(v) != 8 {
						return fmt.Errorf("torn read: %q", v)
					}
					return nil
				})
				if err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}()
	}

	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
}
