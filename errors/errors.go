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

// Package errors defines the error sentinels shared by every yomidict
// package. Errors returned by the library wrap one of these values so callers
// can match them with [errors.Is] regardless of which package produced them.
package errors

import "errors"

// Archive errors.
var (
	// ErrCorruptArchive indicates the archive container or its manifest is
	// unreadable or malformed.
	ErrCorruptArchive = errors.New("yomidict: corrupt archive")

	// ErrMissingEntry indicates a named entry does not exist in the archive.
	ErrMissingEntry = errors.New("yomidict: missing archive entry")
)

// Import errors.
var (
	// ErrImportFailed indicates an import could not produce a dictionary, for
	// example because no term shard was readable.
	ErrImportFailed = errors.New("yomidict: import failed")

	// ErrAlreadyImporting indicates an import of the same dictionary is
	// already in progress.
	ErrAlreadyImporting = errors.New("yomidict: dictionary is already being imported")
)

// Index errors.
var (
	ErrEmptyKeySet      = errors.New("yomidict: cannot build index with zero keys")
	ErrIndexBuildFailed = errors.New("yomidict: index build failed")
	ErrBuilderConsumed  = errors.New("yomidict: index builder already consumed")
	ErrCorruptIndex     = errors.New("yomidict: corrupt index parameters")
)

// Storage errors.
var (
	// ErrBlobCorrupt indicates a stored bucket failed to decompress or
	// deserialize.
	ErrBlobCorrupt = errors.New("yomidict: corrupt blob")

	// ErrSlotNotFound indicates the store has no bucket for a slot the index
	// produced.
	ErrSlotNotFound = errors.New("yomidict: slot not found")

	// ErrUnsupportedSchema indicates the storage file was written by an
	// incompatible schema version.
	ErrUnsupportedSchema = errors.New("yomidict: unsupported storage schema")
)

// Registry errors.
var (
	ErrNotFound = errors.New("yomidict: dictionary not found")
	ErrClosed   = errors.New("yomidict: closed")
)
