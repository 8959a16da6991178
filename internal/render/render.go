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

// Package render formats term records for display. Structured-content
// definitions are rendered to HTML and then converted to plain text.
package render

import (
	"fmt"
	"html"
	"io"
	"slices"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/k3a/html2text"

	"github.com/ianlewis/go-yomidict/termbank"
)

// maxDepth bounds the nesting of structured content that is rendered.
const maxDepth = 64

// voidTags have no content or closing tag.
var voidTags = []string{"br", "img"}

// keptTags are emitted as HTML elements. Other tags only contribute their
// content.
var keptTags = []string{
	"a", "br", "details", "div", "li", "ol", "rp", "rt", "ruby", "span",
	"summary", "table", "tbody", "td", "tfoot", "th", "thead", "tr", "ul",
}

type node struct {
	Tag     string          `json:"tag"`
	Content json.RawMessage `json:"content"`
	Href    string          `json:"href"`
	Alt     string          `json:"alt"`
	Path    string          `json:"path"`
}

// HTML renders a definition as an HTML fragment.
func HTML(def termbank.Definition) (string, error) {
	switch def.Kind {
	case termbank.DefinitionText:
		return html.EscapeString(def.Text), nil
	case termbank.DefinitionImage:
		return html.EscapeString(imageText(def.Text)), nil
	case termbank.DefinitionDeinflection:
		return html.EscapeString(deinflectionText(def)), nil
	case termbank.DefinitionStructured:
		var root struct {
			Content json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal(def.Raw, &root); err != nil {
			return "", fmt.Errorf("decoding structured content: %w", err)
		}
		var b strings.Builder
		if err := writeNode(&b, root.Content, 0); err != nil {
			return "", err
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("unknown definition kind %v", def.Kind)
	}
}

// Text renders a definition as plain text.
func Text(def termbank.Definition) string {
	if def.Kind != termbank.DefinitionStructured {
		switch def.Kind {
		case termbank.DefinitionImage:
			return imageText(def.Text)
		case termbank.DefinitionDeinflection:
			return deinflectionText(def)
		default:
			return def.Text
		}
	}
	h, err := HTML(def)
	if err != nil {
		return string(def.Raw)
	}
	return strings.TrimSpace(html2text.HTML2TextWithOptions(h, html2text.WithUnixLineBreaks()))
}

func writeNode(b *strings.Builder, raw json.RawMessage, depth int) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if depth > maxDepth {
		return fmt.Errorf("structured content nested deeper than %d", maxDepth)
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("decoding text node: %w", err)
		}
		b.WriteString(html.EscapeString(s))
		return nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("decoding node list: %w", err)
		}
		for _, item := range items {
			if err := writeNode(b, item, depth+1); err != nil {
				return err
			}
		}
		return nil
	case '{':
	default:
		return fmt.Errorf("unexpected structured content %.20s", raw)
	}

	var n node
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("decoding element: %w", err)
	}
	if n.Tag == "img" {
		// Images are not stored; show their description instead.
		if n.Alt != "" {
			b.WriteString(html.EscapeString(imageText(n.Alt)))
		}
		return nil
	}
	if !slices.Contains(keptTags, n.Tag) {
		return writeNode(b, n.Content, depth+1)
	}

	b.WriteString("<" + n.Tag)
	if n.Tag == "a" && n.Href != "" {
		b.WriteString(` href="` + html.EscapeString(n.Href) + `"`)
	}
	b.WriteString(">")
	if slices.Contains(voidTags, n.Tag) {
		return nil
	}
	if err := writeNode(b, n.Content, depth+1); err != nil {
		return err
	}
	b.WriteString("</" + n.Tag + ">")
	return nil
}

func imageText(s string) string {
	return "[image: " + s + "]"
}

func deinflectionText(def termbank.Definition) string {
	var pair []json.RawMessage
	var rules []string
	if err := json.Unmarshal(def.Raw, &pair); err == nil && len(pair) == 2 {
		_ = json.Unmarshal(pair[1], &rules)
	}
	if len(rules) == 0 {
		return "form of " + def.Text
	}
	return "form of " + def.Text + " (" + strings.Join(rules, ", ") + ")"
}

// Record writes a record as a headword line followed by one numbered line
// per definition.
func Record(w io.Writer, rec termbank.TermRecord) error {
	head := rec.Term
	if rec.Reading != "" && rec.Reading != rec.Term {
		head += " [" + rec.Reading + "]"
	}
	if tags := append(slices.Clone(rec.DefinitionTags), rec.TermTags...); len(tags) > 0 {
		head += " (" + strings.Join(tags, ", ") + ")"
	}
	if rec.Frequency != nil {
		head += " #" + rec.Frequency.Display
	}
	if _, err := fmt.Fprintln(w, head); err != nil {
		return err
	}

	for i, def := range rec.Definitions {
		text := strings.ReplaceAll(Text(def), "\n", "\n   ")
		if _, err := fmt.Fprintf(w, "%2d. %s\n", i+1, text); err != nil {
			return err
		}
	}
	return nil
}
