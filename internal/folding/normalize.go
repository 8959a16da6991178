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

// Package folding implements the text normalization applied to both
// dictionary keys at import time and queries at lookup time.
package folding

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NewTransformer returns a transformer applying compatibility composition
// (NFKC), whitespace folding and Unicode case folding, in that order. The
// returned transformer holds state and must not be shared between
// goroutines.
func NewTransformer() transform.Transformer {
	return transform.Chain(norm.NFKC, &WhitespaceFolder{}, cases.Fold())
}

// Normalize returns the lookup key form of s. Hiragana and katakana are
// left distinct; full-width Latin letters and digits fold to ASCII.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	out, _, err := transform.String(NewTransformer(), s)
	if err != nil {
		// The chain only fails on internal buffer errors; the raw
		// input is a better key than nothing.
		return s
	}
	return out
}
