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

package render

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ianlewis/go-yomidict/termbank"
)

func structured(content string) termbank.Definition {
	return termbank.Definition{
		Kind: termbank.DefinitionStructured,
		Raw:  []byte(`{"type": "structured-content", "content": ` + content + `}`),
	}
}

func TestHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		def      termbank.Definition
		expected string
	}{
		{
			name:     "text",
			def:      termbank.Definition{Text: "cats & dogs"},
			expected: "cats &amp; dogs",
		},
		{
			name:     "string content",
			def:      structured(`"plain"`),
			expected: "plain",
		},
		{
			name:     "nested elements",
			def:      structured(`[{"tag": "span", "content": "a"}, {"tag": "br"}, {"tag": "div", "content": ["b", {"tag": "span", "content": "<c>"}]}]`),
			expected: "<span>a</span><br><div>b<span>&lt;c&gt;</span></div>",
		},
		{
			name:     "unknown tags keep content",
			def:      structured(`{"tag": "blink", "content": "x"}`),
			expected: "x",
		},
		{
			name:     "link",
			def:      structured(`{"tag": "a", "href": "?query=猫", "content": "猫"}`),
			expected: `<a href="?query=猫">猫</a>`,
		},
		{
			name:     "image alt",
			def:      structured(`{"tag": "img", "path": "a.png", "alt": "diagram"}`),
			expected: "[image: diagram]",
		},
		{
			name:     "image",
			def:      termbank.Definition{Kind: termbank.DefinitionImage, Text: "img/a.png"},
			expected: "[image: img/a.png]",
		},
		{
			name:     "deinflection",
			def:      termbank.Definition{Kind: termbank.DefinitionDeinflection, Text: "食べる", Raw: []byte(`["食べる", ["past"]]`)},
			expected: "form of 食べる (past)",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			got, err := HTML(test.def)
			if err != nil {
				t.Fatalf("HTML: %v", err)
			}
			if diff := cmp.Diff(test.expected, got); diff != "" {
				t.Errorf("HTML (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestHTML_invalid(t *testing.T) {
	t.Parallel()

	deep := strings.Repeat("[", maxDepth+2) + strings.Repeat("]", maxDepth+2)
	for _, content := range []string{`42`, deep} {
		if _, err := HTML(structured(content)); err == nil {
			t.Errorf("HTML(%.20s): expected error", content)
		}
	}
	if _, err := HTML(termbank.Definition{Kind: termbank.DefinitionStructured, Raw: []byte(`{`)}); err == nil {
		t.Errorf("HTML(truncated): expected error")
	}
}

func TestText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		def      termbank.Definition
		expected string
	}{
		{
			name:     "text is unchanged",
			def:      termbank.Definition{Text: "a <b> & c"},
			expected: "a <b> & c",
		},
		{
			name:     "structured entities",
			def:      structured(`{"tag": "span", "content": "a & b"}`),
			expected: "a & b",
		},
		{
			name:     "structured line break",
			def:      structured(`["one", {"tag": "br"}, "two"]`),
			expected: "one\ntwo",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			if diff := cmp.Diff(test.expected, Text(test.def)); diff != "" {
				t.Errorf("Text (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestRecord(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	err := Record(&b, termbank.TermRecord{
		Term:           "猫",
		Reading:        "ねこ",
		DefinitionTags: []string{"n"},
		Definitions: []termbank.Definition{
			{Text: "cat"},
			{Text: "shamisen"},
		},
		Frequency: &termbank.Frequency{Value: 120, Display: "120"},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	want := "猫 [ねこ] (n) #120\n 1. cat\n 2. shamisen\n"
	if diff := cmp.Diff(want, b.String()); diff != "" {
		t.Errorf("Record (-want, +got):\n%s", diff)
	}
}
