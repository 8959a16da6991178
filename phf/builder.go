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
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/bits-and-blooms/bitset"

	dicterrors "github.com/ianlewis/go-yomidict/errors"
)

const (
	// lambda is the average number of keys per bucket.
	lambda = 3.0

	// alpha is the load factor of the slot table before remapping.
	alpha = 0.99

	// numPilotValues is the size of the pilot search space.
	numPilotValues = 1 << 16

	// maxAttempts is the number of seeds tried before giving up.
	maxAttempts = 16

	// ctxCheckInterval is the number of buckets placed between checks for
	// cancellation.
	ctxCheckInterval = 1024

	// MaxKeys is the largest key set an index can hold.
	MaxKeys = math.MaxUint32 / 2
)

const defaultSeed = 0x9e3779b97f4a7c15

// errPilotSearchFailed is returned by a single attempt when some bucket has
// no pilot placing all of its keys. The builder retries with the next seed.
var errPilotSearchFailed = errors.New("pilot search failed")

// Option configures a Builder.
type Option func(*config)

type config struct {
	seed uint64
	hash HashKind
}

// WithSeed sets the base seed from which every attempt's seed is derived.
// Builds with the same seed over the same keys produce identical indexes.
func WithSeed(seed uint64) Option {
	return func(c *config) {
		c.seed = seed
	}
}

// WithHash selects the key hash function.
func WithHash(kind HashKind) Option {
	return func(c *config) {
		c.hash = kind
	}
}

// Builder collects a key set and constructs a minimal perfect hash for it. A
// Builder is consumed by Build and cannot be reused.
type Builder struct {
	cfg      config
	keys     []string
	seen     map[string]struct{}
	consumed bool
}

// NewBuilder returns an empty Builder.
func NewBuilder(opts ...Option) *Builder {
	cfg := config{seed: defaultSeed, hash: HashXXH3}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Builder{
		cfg:  cfg,
		seen: make(map[string]struct{}),
	}
}

// Add adds a key. Duplicate keys are ignored and Add returns false.
func (b *Builder) Add(key string) bool {
	if _, ok := b.seen[key]; ok {
		return false
	}
	b.seen[key] = struct{}{}
	b.keys = append(b.keys, key)
	return true
}

// Len returns the number of distinct keys added.
func (b *Builder) Len() int {
	return len(b.keys)
}

// Keys returns the distinct keys in the order they were first added.
func (b *Builder) Keys() []string {
	return slices.Clone(b.keys)
}

// Build constructs the index. The index maps every added key to a distinct
// slot in [0, Len()). Build checks ctx between placement phases and returns
// its error if it is done.
func (b *Builder) Build(ctx context.Context) (*Index, error) {
	if b.consumed {
		return nil, dicterrors.ErrBuilderConsumed
	}
	b.consumed = true
	keys := b.keys
	b.seen = nil

	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %w", dicterrors.ErrIndexBuildFailed, dicterrors.ErrEmptyKeySet)
	}
	if len(keys) > MaxKeys {
		return nil, fmt.Errorf("%w: %d keys exceeds maximum %d", dicterrors.ErrIndexBuildFailed, len(keys), MaxKeys)
	}
	if !b.cfg.hash.valid() {
		return nil, fmt.Errorf("%w: unknown hash %v", dicterrors.ErrIndexBuildFailed, b.cfg.hash)
	}

	var lastErr error
	for attempt := range maxAttempts {
		seed := splitMix64(b.cfg.seed + uint64(attempt))
		idx, err := solve(ctx, keys, b.cfg.hash, seed)
		if err == nil {
			if err = idx.Verify(keys); err == nil {
				return idx, nil
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %d attempts: %v", dicterrors.ErrIndexBuildFailed, maxAttempts, lastErr)
}

type hashedKey struct {
	folded uint64
	bucket uint32
}

// solve runs one placement attempt with the given seed.
func solve(ctx context.Context, keys []string, kind HashKind, seed uint64) (*Index, error) {
	n := uint32(len(keys))
	numSlots := computeNumSlots(n)
	numBuckets := computeNumBuckets(n)

	hashed := make([]hashedKey, n)
	sizes := make([]uint32, numBuckets)
	for i, key := range keys {
		lo, hi := hashKey(kind, seed, key)
		b := cubicEpsBucket(hi, numBuckets)
		hashed[i] = hashedKey{folded: foldSlotInput(lo, hi), bucket: b}
		sizes[b]++
	}

	// Counting sort of keys by bucket.
	starts := make([]uint32, numBuckets+1)
	for b := range numBuckets {
		starts[b+1] = starts[b] + sizes[b]
	}
	byBucket := make([]uint64, n)
	fill := slices.Clone(starts[:numBuckets])
	for _, h := range hashed {
		byBucket[fill[h.bucket]] = h.folded
		fill[h.bucket]++
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Largest buckets first, ties by bucket index.
	order := make([]uint32, 0, numBuckets)
	for b := range numBuckets {
		if sizes[b] > 0 {
			order = append(order, b)
		}
	}
	slices.SortStableFunc(order, func(x, y uint32) int {
		return cmp.Compare(sizes[y], sizes[x])
	})

	taken := bitset.New(uint(numSlots))
	pilots := make([]uint16, numBuckets)
	placed := make([]uint32, 0, 16)

	for i, b := range order {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		bucket := byBucket[starts[b]:starts[b+1]]

		found := false
		for p := range numPilotValues {
			hp := pilotHash(uint16(p), seed)
			placed = placed[:0]
			ok := true
			for _, folded := range bucket {
				s := slotFolded(folded, hp, numSlots)
				if taken.Test(uint(s)) {
					ok = false
					break
				}
				taken.Set(uint(s))
				placed = append(placed, s)
			}
			if ok {
				pilots[b] = uint16(p)
				found = true
				break
			}
			for _, s := range placed {
				taken.Clear(uint(s))
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: bucket %d of size %d", errPilotSearchFailed, b, len(bucket))
		}
	}

	// Map each taken overflow slot onto a hole in [0, n).
	remap := make([]uint32, numSlots-n)
	hole := uint(0)
	for s := n; s < numSlots; s++ {
		if !taken.Test(uint(s)) {
			continue
		}
		next, ok := taken.NextClear(hole)
		if !ok || next >= uint(n) {
			return nil, fmt.Errorf("remap: no hole for overflow slot %d", s)
		}
		remap[s-n] = uint32(next)
		hole = next + 1
	}

	return &Index{
		hash:       kind,
		seed:       seed,
		n:          n,
		numSlots:   numSlots,
		numBuckets: numBuckets,
		pilots:     pilots,
		remap:      remap,
	}, nil
}

// computeNumSlots returns ceil(n / alpha).
func computeNumSlots(n uint32) uint32 {
	s := uint32(math.Ceil(float64(n) / alpha))
	return max(s, n)
}

// computeNumBuckets returns ceil(n / lambda), at least one.
func computeNumBuckets(n uint32) uint32 {
	b := uint32(math.Ceil(float64(n) / lambda))
	return max(b, 1)
}
