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

// Package blobstore persists imported dictionaries in a single embedded
// sqlite database.
//
// Each dictionary is stored as a metadata row holding its manifest and
// serialized index, a registry row holding its priority, its tags, its
// frequency and pitch rows keyed by normalized term, and one compressed blob
// per index slot. A blob is a codec byte followed by a zstd
// or lz4 stream of the slot's serialized bucket. All rows of a dictionary are
// written in one transaction so a failed or cancelled import leaves nothing
// behind.
package blobstore
