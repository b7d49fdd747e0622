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
	"encoding/binary"
	"testing"
)

func nativeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.NativeEndian.PutUint32(b, v)
	return b
}

func nativeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.NativeEndian.PutUint64(b, v)
	return b
}

func TestCompareBytes_Laws(t *testing.T) {
	keys := [][]byte{
		nil,
		{},
		{0x00},
		{0x00, 0x01},
		{0x01},
		{0x7f},
		{0x80},
		{0xff},
		{0xff, 0x00},
	}
	for _, a := range keys {
		for _, b := range keys {
			ab := CompareBytes(a, b)
			ba := CompareBytes(b, a)
			if ab == 0 != (string(a) == string(b)) {
				t.Errorf("equality mismatch for %x vs %x", a, b)
			}
			if ab < 0 && ba <= 0 || ab > 0 && ba >= 0 {
				t.Errorf("antisymmetry violated for %x vs %x", a, b)
			}
		}
	}
	// Bytes are unsigned: 0x80 sorts above 0x7f.
	if CompareBytes([]byte{0x80}, []byte{0x7f}) <= 0 {
		t.Error("signed comparison detected")
	}
	// Longer buffer wins on equal prefix.
	if CompareBytes([]byte{0x01, 0x00}, []byte{0x01}) <= 0 {
		t.Error("longer buffer must sort above its prefix")
	}
}

func TestCompareBytes_Transitive(t *testing.T) {
	a, b, c := []byte{0x01}, []byte{0x01, 0x00}, []byte{0x02}
	if !(CompareBytes(a, b) < 0 && CompareBytes(b, c) < 0 &&
		CompareBytes(a, c) < 0) {
		t.Error("transitivity violated")
	}
}

func TestCompareUint(t *testing.T) {
	if CompareUint(nativeUint32(1), nativeUint32(256)) >= 0 {
		t.Error("uint32 compare broken")
	}
	if CompareUint(nativeUint64(1), nativeUint64(1<<40)) >= 0 {
		t.Error("uint64 compare broken")
	}
	if CompareUint(nativeUint32(7), nativeUint32(7)) != 0 {
		t.Error("uint32 compare not reflexive")
	}
	// Mixed widths fall back to bytewise.
	if CompareUint([]byte{0x01}, []byte{0x01, 0x00}) >= 0 {
		t.Error("fallback compare broken")
	}
}
