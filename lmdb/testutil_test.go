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
	"os"
	"testing"
)

// setup returns an open Env over a fresh temporary directory.
func setup(t *testing.T) *Env {
	t.Helper()
	return setupFlags(t, 0)
}

func setupFlags(t *testing.T, flags EnvFlags) *Env {
	t.Helper()
	env, err := NewEnv()
	if err != nil {
		t.Fatalf("env create: %v", err)
	}
	if err := env.SetMaxDBs(64); err != nil {
		t.Fatalf("setmaxdbs: %v", err)
	}
	if err := env.SetMapSize(1 << 26); err != nil {
		t.Fatalf("setmapsize: %v", err)
	}
	dir, err := os.MkdirTemp("", "lmdbenv-test-")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	if err := env.Open(dir, flags, 0644); err != nil {
		os.RemoveAll(dir)
		t.Fatalf("env open: %v", err)
	}
	return env
}

// clean closes env and removes its directory.
func clean(env *Env, t *testing.T) {
	t.Helper()
	path, perr := env.Path()
	if err := env.Close(); err != nil {
		t.Errorf("env close: %v", err)
	}
	if perr == nil {
		os.RemoveAll(path)
	}
}

// openRoot opens the root database handle through a throwaway write
// transaction.
func openRoot(env *Env, t *testing.T) DBI {
	t.Helper()
	var db DBI
	err := env.Update(func(txn *Txn) (err error) {
		db, err = txn.OpenRoot(0)
		return err
	})
	if err != nil {
		t.Fatalf("open root: %v", err)
	}
	return db
}

// fill writes the given keys with themselves as values.
func fill(env *Env, db DBI, t *testing.T, keys ...string) {
	t.Helper()
	err := env.Update(func(txn *Txn) error {
		for _, k := range keys {
			if err := txn.Put(db, []byte(k), []byte(k), 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
}
