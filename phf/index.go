// Copyright 2025 Ian Lewis
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package phf

import (
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bitset"

	dicterrors "github.com/ianlewis/go-yomidict/errors"
)

// Index is an immutable minimal perfect hash over a fixed key set. It is safe
// for concurrent use.
type Index struct {
	hash       HashKind
	seed       uint64
	n          uint32
	numSlots   uint32
	numBuckets uint32
	pilots     []uint16

	// remap[s-n] is the hole in [0, n) that overflow slot s maps to.
	remap []uint32
}

// Len returns the number of keys the index was built over.
func (x *Index) Len() int {
	return int(x.n)
}

// Hash returns the key hash the index uses.
func (x *Index) Hash() HashKind {
	return x.hash
}

// Slot returns the slot of key. For a key in the build set the result is the
// key's unique slot. For any other key the result is an arbitrary slot in
// [0, Len()) and callers must confirm the match against stored data.
func (x *Index) Slot(key string) uint32 {
	lo, hi := hashKey(x.hash, x.seed, key)
	b := cubicEpsBucket(hi, x.numBuckets)
	s := slotFolded(foldSlotInput(lo, hi), pilotHash(x.pilots[b], x.seed), x.numSlots)
	if s >= x.n {
		s = x.remap[s-x.n]
	}
	return s
}

// Verify checks that keys map bijectively onto [0, Len()).
func (x *Index) Verify(keys []string) error {
	if len(keys) != int(x.n) {
		return fmt.Errorf("%w: %d keys for index of %d", dicterrors.ErrIndexBuildFailed, len(keys), x.n)
	}
	seen := bitset.New(uint(x.n))
	for _, key := range keys {
		s := x.Slot(key)
		if s >= x.n {
			return fmt.Errorf("%w: key %q maps to slot %d out of range", dicterrors.ErrIndexBuildFailed, key, s)
		}
		if seen.Test(uint(s)) {
			return fmt.Errorf("%w: key %q collides at slot %d", dicterrors.ErrIndexBuildFailed, key, s)
		}
		seen.Set(uint(s))
	}
	if seen.Count() != uint(x.n) {
		return fmt.Errorf("%w: %d of %d slots used", dicterrors.ErrIndexBuildFailed, seen.Count(), x.n)
	}
	return nil
}

// Binary format:
//
//	magic      4 bytes "YPHF"
//	version    1 byte
//	hash       1 byte
//	seed       8 bytes little-endian
//	n          uvarint
//	numSlots   uvarint
//	numBuckets uvarint
//	pilots     numBuckets x 2 bytes little-endian
//	remap      (numSlots - n) x uvarint
const (
	indexMagic   = "YPHF"
	indexVersion = 1
	headerSize   = len(indexMagic) + 1 + 1 + 8
)

// MarshalBinary implements [encoding.BinaryMarshaler].
func (x *Index) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, headerSize+3*binary.MaxVarintLen32+2*len(x.pilots)+2*len(x.remap))
	buf = append(buf, indexMagic...)
	buf = append(buf, indexVersion, byte(x.hash))
	buf = binary.LittleEndian.AppendUint64(buf, x.seed)
	buf = binary.AppendUvarint(buf, uint64(x.n))
	buf = binary.AppendUvarint(buf, uint64(x.numSlots))
	buf = binary.AppendUvarint(buf, uint64(x.numBuckets))
	for _, p := range x.pilots {
		buf = binary.LittleEndian.AppendUint16(buf, p)
	}
	for _, r := range x.remap {
		buf = binary.AppendUvarint(buf, uint64(r))
	}
	return buf, nil
}

// UnmarshalBinary implements [encoding.BinaryUnmarshaler]. Every field is
// validated so that a decoded index never indexes out of range.
func (x *Index) UnmarshalBinary(data []byte) error {
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", dicterrors.ErrCorruptIndex, fmt.Sprintf(format, args...))
	}

	if len(data) < headerSize || string(data[:len(indexMagic)]) != indexMagic {
		return corrupt("bad magic")
	}
	if v := data[len(indexMagic)]; v != indexVersion {
		return corrupt("unsupported version %d", v)
	}
	kind := HashKind(data[len(indexMagic)+1])
	if !kind.valid() {
		return corrupt("unknown hash %d", kind)
	}
	seed := binary.LittleEndian.Uint64(data[len(indexMagic)+2:])
	rest := data[headerSize:]

	readUvarint := func(name string, limit uint64) (uint32, error) {
		v, k := binary.Uvarint(rest)
		if k <= 0 {
			return 0, corrupt("truncated %s", name)
		}
		if v > limit {
			return 0, corrupt("%s %d out of range", name, v)
		}
		rest = rest[k:]
		return uint32(v), nil
	}

	n, err := readUvarint("key count", MaxKeys)
	if err != nil {
		return err
	}
	if n == 0 {
		return corrupt("empty index")
	}
	numSlots, err := readUvarint("slot count", 2*uint64(n)+1)
	if err != nil {
		return err
	}
	if numSlots < n {
		return corrupt("slot count %d below key count %d", numSlots, n)
	}
	numBuckets, err := readUvarint("bucket count", uint64(n))
	if err != nil {
		return err
	}
	if numBuckets == 0 {
		return corrupt("no buckets")
	}
	if uint64(len(rest)) < 2*uint64(numBuckets) {
		return corrupt("truncated pilots")
	}
	pilots := make([]uint16, numBuckets)
	for i := range pilots {
		pilots[i] = binary.LittleEndian.Uint16(rest[2*i:])
	}
	rest = rest[2*int(numBuckets):]

	remap := make([]uint32, numSlots-n)
	for i := range remap {
		if remap[i], err = readUvarint("remap entry", uint64(n)-1); err != nil {
			return err
		}
	}
	if len(rest) != 0 {
		return corrupt("%d trailing bytes", len(rest))
	}

	*x = Index{
		hash:       kind,
		seed:       seed,
		n:          n,
		numSlots:   numSlots,
		numBuckets: numBuckets,
		pilots:     pilots,
		remap:      remap,
	}
	return nil
}

// Unmarshal decodes an index produced by MarshalBinary.
func Unmarshal(data []byte) (*Index, error) {
	var x Index
	if err := x.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &x, nil
}
