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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestDecodeMeta(t *testing.T) {
	t.Parallel()

	input := `[
		["猫", "freq", 120],
		["犬", "freq", {"value": 300, "displayValue": "300★"}],
		["日本", "freq", {"reading": "にほん", "frequency": 42}],
		["日本", "freq", {"reading": "にっぽん", "frequency": {"value": 900}}],
		["猫", "pitch", {"reading": "ねこ", "pitches": [{"position": 1}]}],
		["箸", "pitch", {"reading": "はし", "pitches": [{"position": 1, "nasal": 2, "devoice": [1, 3], "tags": ["P"]}, {"position": "HLL"}]}],
		["猫", "pitch", {"reading": "ねこ", "pitches": []}],
		["猫", "ipa", {"reading": "ねこ", "transcriptions": []}],
		["bad", "freq", "high"],
		["short"]
	]`

	got, err := DecodeMeta(strings.NewReader(input), 0)
	if err != nil {
		t.Fatalf("DecodeMeta: %v", err)
	}

	want := &MetaBank{
		Frequencies: []FrequencyMeta{
			{Term: "猫", Frequency: Frequency{Value: 120, Display: "120"}},
			{Term: "犬", Frequency: Frequency{Value: 300, Display: "300★"}},
			{Term: "日本", Reading: "にほん", Frequency: Frequency{Value: 42, Display: "42"}},
			{Term: "日本", Reading: "にっぽん", Frequency: Frequency{Value: 900, Display: "900"}},
		},
		Pitches: []PitchMeta{
			{Term: "猫", Reading: "ねこ", Pitches: []Pitch{{Position: 1}}},
			{Term: "箸", Reading: "はし", Pitches: []Pitch{
				{Position: 1, Nasal: []int{2}, Devoice: []int{1, 3}, Tags: []string{"P"}},
			}},
		},
		Ignored: 1,
		Skipped: 3,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("DecodeMeta (-want, +got):\n%s", diff)
	}
}

func TestDecodeTags(t *testing.T) {
	t.Parallel()

	input := `[["n", "partOfSpeech", -3, "noun", 0], ["P", "popular", 10, "common word", 5], [null]]`
	got, err := DecodeTags(strings.NewReader(input), 0)
	if err != nil {
		t.Fatalf("DecodeTags: %v", err)
	}

	want := []Tag{
		{Name: "n", Category: "partOfSpeech", Order: -3, Notes: "noun"},
		{Name: "P", Category: "popular", Order: 10, Notes: "common word", Score: 5},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("DecodeTags (-want, +got):\n%s", diff)
	}
}

func TestSortBanks(t *testing.T) {
	t.Parallel()

	names := []string{
		"index.json",
		"term_bank_10.json",
		"term_meta_bank_1.json",
		"term_bank_2.json",
		"media/term_bank_3.json",
		"term_bank_x.json",
		"term_bank_1.json",
	}

	got := SortBanks(names, TermBankPrefix)
	want := []string{"term_bank_1.json", "term_bank_2.json", "term_bank_10.json"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("SortBanks (-want, +got):\n%s", diff)
	}
}
