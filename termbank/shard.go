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

package termbank

import (
	"cmp"
	"path"
	"slices"
	"strconv"
	"strings"
)

// Bank name prefixes.
const (
	TermBankPrefix     = "term_bank_"
	TermMetaBankPrefix = "term_meta_bank_"
	TagBankPrefix      = "tag_bank_"
)

// ShardIndex returns the numeric suffix of a bank entry name such as
// "term_bank_12.json". It returns false if name is not a bank with the given
// prefix. Entries inside directories are not banks.
func ShardIndex(name, prefix string) (int, bool) {
	if path.Dir(name) != "." {
		return 0, false
	}
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, ".json")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// SortBanks returns the bank entry names with the given prefix ordered by
// their numeric suffix, so "term_bank_2.json" sorts before
// "term_bank_10.json".
func SortBanks(names []string, prefix string) []string {
	type bank struct {
		name string
		n    int
	}
	var banks []bank
	for _, name := range names {
		if n, ok := ShardIndex(name, prefix); ok {
			banks = append(banks, bank{name: name, n: n})
		}
	}
	slices.SortStableFunc(banks, func(a, b bank) int {
		return cmp.Compare(a.n, b.n)
	})

	sorted := make([]string, len(banks))
	for i, b := range banks {
		sorted[i] = b.name
	}
	return sorted
}
