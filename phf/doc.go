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

// Package phf builds minimal perfect hash functions over string key sets.
//
// The construction follows PTRHash: keys are hashed to 128 bits and assigned
// to skewed buckets, and each bucket, largest first, searches for the
// smallest pilot that sends all of its keys to free slots. The slot table is
// slightly larger than the key set and the few keys landing past the end are
// remapped onto the holes left below it, so that every key maps to a distinct
// slot in [0, n).
//
// Builds are deterministic: the same keys, in the same order, with the same
// options always produce byte-identical indexes.
package phf
