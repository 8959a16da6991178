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
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// Tag describes a tag referenced by term definitions.
type Tag struct {
	Name     string
	Category string
	Order    int64
	Notes    string
	Score    int64
}

// String implements [fmt.Stringer].
func (t Tag) String() string {
	return t.Name
}

// DecodeTags decodes a tag bank. Rows without a name are dropped.
func DecodeTags(r io.Reader, maxSize int64) ([]Tag, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxShardSize
	}
	b, err := readLimited(r, maxSize)
	if err != nil {
		return nil, fmt.Errorf("reading tag bank: %w", err)
	}
	var rows [][]json.RawMessage
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("decoding tag bank: %w", err)
	}

	tags := make([]Tag, 0, len(rows))
	for _, row := range rows {
		name := optString(row, 0)
		if name == "" {
			continue
		}
		tags = append(tags, Tag{
			Name:     name,
			Category: optString(row, 1),
			Order:    optInt(row, 2),
			Notes:    optString(row, 3),
			Score:    optInt(row, 4),
		})
	}
	return tags, nil
}
