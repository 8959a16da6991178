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

package yomidict

import (
	dicterrors "github.com/ianlewis/go-yomidict/errors"
)

// Errors returned by the engine. Every error wraps one of these so it can be
// matched with [errors.Is].
var (
	ErrCorruptArchive    = dicterrors.ErrCorruptArchive
	ErrMissingEntry      = dicterrors.ErrMissingEntry
	ErrImportFailed      = dicterrors.ErrImportFailed
	ErrAlreadyImporting  = dicterrors.ErrAlreadyImporting
	ErrEmptyKeySet       = dicterrors.ErrEmptyKeySet
	ErrIndexBuildFailed  = dicterrors.ErrIndexBuildFailed
	ErrBuilderConsumed   = dicterrors.ErrBuilderConsumed
	ErrCorruptIndex      = dicterrors.ErrCorruptIndex
	ErrBlobCorrupt       = dicterrors.ErrBlobCorrupt
	ErrSlotNotFound      = dicterrors.ErrSlotNotFound
	ErrUnsupportedSchema = dicterrors.ErrUnsupportedSchema
	ErrNotFound          = dicterrors.ErrNotFound
	ErrClosed            = dicterrors.ErrClosed
)
