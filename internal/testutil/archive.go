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

// Package testutil writes dictionary archive fixtures for tests.
package testutil

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
)

// File is an archive entry fixture.
type File struct {
	Name string
	Body []byte
}

// WriteArchive writes the files, in order, to a new zip archive under a
// temporary directory and returns its path.
func WriteArchive(t testing.TB, files ...File) string {
	t.Helper()
	return WriteArchiveTo(t, filepath.Join(t.TempDir(), "dict.zip"), files...)
}

// WriteArchiveTo writes the files to a zip archive at path.
func WriteArchiveTo(t testing.TB, path string, files ...File) string {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, file := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   file.Name,
			Method: zip.Deflate,
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(file.Body); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// JSON marshals v or fails the test.
func JSON(t testing.TB, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// Manifest returns an index.json fixture.
func Manifest(t testing.TB, title, revision string) File {
	t.Helper()
	return File{
		Name: "index.json",
		Body: JSON(t, struct {
			Title    string `json:"title"`
			Revision string `json:"revision"`
			Format   int    `json:"format"`
		}{title, revision, 3}),
	}
}

// Term is a format 3 term row fixture.
type Term struct {
	Term        string
	Reading     string
	Tags        string
	Score       int
	Definitions []string
	Sequence    int
}

func (r Term) row() []any {
	defs := make([]any, len(r.Definitions))
	for i, d := range r.Definitions {
		defs[i] = d
	}
	return []any{r.Term, r.Reading, r.Tags, "", r.Score, defs, r.Sequence, ""}
}

// TermBank returns a term_bank_N.json fixture.
func TermBank(t testing.TB, n int, terms ...Term) File {
	t.Helper()
	rows := make([][]any, len(terms))
	for i, term := range terms {
		rows[i] = term.row()
	}
	return File{
		Name: fmt.Sprintf("term_bank_%d.json", n),
		Body: JSON(t, rows),
	}
}

// Raw returns a fixture with the given name and literal body.
func Raw(name, body string) File {
	return File{Name: name, Body: []byte(body)}
}

// WriteFile writes body to path or fails the test.
func WriteFile(t testing.TB, path string, body []byte) {
	t.Helper()
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
}
