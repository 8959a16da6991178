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
	"fmt"
	"math/bits"

	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// HashKind selects the 128-bit key hash.
type HashKind uint8

const (
	// HashXXH3 hashes keys with XXH3-128. It is the default.
	HashXXH3 HashKind = iota

	// HashMurmur3 hashes keys with MurmurHash3 x64 128.
	HashMurmur3
)

// String implements [fmt.Stringer].
func (k HashKind) String() string {
	switch k {
	case HashXXH3:
		return "xxh3"
	case HashMurmur3:
		return "murmur3"
	default:
		return fmt.Sprintf("HashKind(%d)", k)
	}
}

func (k HashKind) valid() bool {
	return k == HashXXH3 || k == HashMurmur3
}

// hashKey returns the two halves of the key's 128-bit hash. hi selects the
// bucket and lo^hi feeds slot placement.
func hashKey(kind HashKind, seed uint64, key string) (lo, hi uint64) {
	switch kind {
	case HashMurmur3:
		return murmur3.Sum128WithSeed([]byte(key), uint32(seed^seed>>32))
	default:
		h := xxh3.Hash128Seed([]byte(key), seed)
		return h.Lo, h.Hi
	}
}

// pilotHashC is the PTRHash pilot mixing constant.
const pilotHashC = 0x517cc1b727220a95

// pilotHash mixes a pilot with the seed through a SplitMix64 finalizer. The
// result is forced odd so that multiplying by it is a bijection mod 2^64.
func pilotHash(pilot uint16, seed uint64) uint64 {
	x := pilotHashC * (uint64(pilot) ^ seed)
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x | 1
}

// foldSlotInput is hoisted out of the pilot loop.
func foldSlotInput(lo, hi uint64) uint64 {
	h := lo ^ hi
	return h ^ (h >> 32)
}

// slotFolded maps a folded hash and pilot hash onto [0, numSlots).
func slotFolded(hFolded, hp uint64, numSlots uint32) uint32 {
	s, _ := bits.Mul64(hFolded*hp, uint64(numSlots))
	return uint32(s)
}

// fastRange32 maps x uniformly onto [0, n).
func fastRange32(x uint64, n uint32) uint32 {
	hi, _ := bits.Mul64(x, uint64(n))
	return uint32(hi)
}

// cubicEpsBucket assigns a bucket with a skewed distribution: a few large
// buckets that are placed first while the table is empty and many small ones
// that fill the remaining gaps.
//
// Formula: x² × (1+x)/2 × 255/256 + x/256
func cubicEpsBucket(x uint64, numBuckets uint32) uint32 {
	if numBuckets <= 1 {
		return 0
	}
	x2, _ := bits.Mul64(x, x)
	xHalf := (x >> 1) | (1 << 63)
	cubic, _ := bits.Mul64(x2, xHalf)
	scaled := (cubic/256)*255 + x/256
	return fastRange32(scaled, numBuckets)
}

// splitMix64 derives the seed of each build attempt.
func splitMix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
