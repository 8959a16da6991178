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

package folding

import (
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/transform"
)

// WhitespaceFolder will perform whitespace folding on the input. It removes
// spaces from the beginning and end of the input and replaces all internal
// whitespace spans with a single ASCII space rune. Zero-width characters that
// dictionaries use as invisible separators are dropped entirely.
type WhitespaceFolder struct {
	// notStart is true after encounting the first non-whitespace rune.
	notStart bool

	// wsSpan is true if the transformer is currently handling a whitespace span.
	wsSpan bool
}

// isZeroWidth reports whether c renders as nothing and should be removed
// rather than folded into a space.
func isZeroWidth(c rune) bool {
	switch c {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
		return true
	}
	return false
}

// Transform implements [transform.Transformer.Transform].
func (w *WhitespaceFolder) Transform(dst, src []byte, atEOF bool) (int, int, error) {
	var nSrc, nDst int
	for nSrc < len(src) {
		c, size := utf8.DecodeRune(src[nSrc:])
		if c == utf8.RuneError && !atEOF && !utf8.FullRune(src[nSrc:]) {
			return nDst, nSrc, transform.ErrShortSrc
		}

		if isZeroWidth(c) {
			nSrc += size
			continue
		}

		if unicode.IsSpace(c) {
			nSrc += size
			// Leading whitespace is dropped; anything later opens a span
			// that is emitted only if a non-space rune follows.
			if w.notStart {
				w.wsSpan = true
			}
			continue
		}

		if w.wsSpan {
			if nDst+1 > len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = ' '
			nDst++
			w.wsSpan = false
		}

		// NOTE: size cannot be used here because c could be utf8.RuneError
		// in which case size would be 1 but the encoded length is 3.
		if nDst+utf8.RuneLen(c) > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		w.notStart = true
		nSrc += size
		nDst += utf8.EncodeRune(dst[nDst:], c)
	}

	return nDst, nSrc, nil
}

// Reset implements [transform.Transformer.Reset].
func (w *WhitespaceFolder) Reset() {
	*w = WhitespaceFolder{}
}
