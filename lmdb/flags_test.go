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
	"testing"
)

// The masks are part of LMDB's ABI; a header change would be a breaking
// event and must fail loudly.
func TestFlagMasks(t *testing.T) {
	envFlags := map[EnvFlags]uint{
		FixedMap:    0x01,
		NoSubdir:    0x4000,
		NoSync:      0x10000,
		Readonly:    0x20000,
		NoMetaSync:  0x40000,
		WriteMap:    0x80000,
		MapAsync:    0x100000,
		NoTLS:       0x200000,
		NoLock:      0x400000,
		NoReadahead: 0x800000,
		NoMemInit:   0x1000000,
	}
	for flag, want := range envFlags {
		if flag.Mask() != want {
			t.Errorf("env flag: got %#x, expected %#x", flag.Mask(), want)
		}
	}

	dbFlags := map[DBFlags]uint{
		ReverseKey: 0x02,
		DupSort:    0x04,
		IntegerKey: 0x08,
		DupFixed:   0x10,
		IntegerDup: 0x20,
		ReverseDup: 0x40,
		Create:     0x40000,
	}
	for flag, want := range dbFlags {
		if flag.Mask() != want {
			t.Errorf("db flag: got %#x, expected %#x", flag.Mask(), want)
		}
	}

	putFlags := map[PutFlags]uint{
		NoOverwrite: 0x10,
		NoDupData:   0x20,
		Current:     0x40,
		Reserve:     0x10000,
		Append:      0x20000,
		AppendDup:   0x40000,
		Multiple:    0x80000,
	}
	for flag, want := range putFlags {
		if flag.Mask() != want {
			t.Errorf("put flag: got %#x, expected %#x", flag.Mask(), want)
		}
	}

	if TxnReadonly.Mask() != uint(Readonly) {
		t.Error("transaction read-only flag must alias the env flag")
	}
	if CopyCompact.Mask() != 0x01 {
		t.Errorf("copy flag: got %#x", CopyCompact.Mask())
	}

	if OpSet != 15 || OpSetKey != 16 || OpSetRange != 17 {
		t.Errorf("cursor seek op codes drifted: %d %d %d",
			OpSet, OpSetKey, OpSetRange)
	}
}

func TestFlagSetOps(t *testing.T) {
	var f DBFlags
	f = f.With(Create).With(DupSort)
	if !f.Has(Create) || !f.Has(DupSort) {
		t.Error("With/Has broken")
	}
	if f.Has(DupFixed) {
		t.Error("unexpected flag present")
	}
	if f.Mask() != uint(Create)|uint(DupSort) {
		t.Error("mask mismatch")
	}
	// The zero value is the empty set.
	if EnvFlags(0).Has(NoSync) {
		t.Error("empty set contains a flag")
	}
	if !WriteMap.Has(WriteMap) {
		t.Error("singleton set misses its own flag")
	}
}
