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
	"strconv"

	json "github.com/goccy/go-json"
)

// FrequencyMeta is a "freq" row of a term meta bank. Reading is empty when
// the frequency applies to every reading of the term.
type FrequencyMeta struct {
	Term    string
	Reading string
	Frequency
}

// Pitch is one pitch accent pattern of a reading.
type Pitch struct {
	// Position is the mora after which the pitch drops. Zero means the
	// pitch never drops.
	Position int

	// Nasal and Devoice list the mora positions that are nasalized or
	// devoiced.
	Nasal   []int
	Devoice []int

	Tags []string
}

// PitchMeta is a "pitch" row of a term meta bank.
type PitchMeta struct {
	Term    string
	Reading string
	Pitches []Pitch
}

// MetaBank is the decoded content of a term meta bank.
type MetaBank struct {
	Frequencies []FrequencyMeta
	Pitches     []PitchMeta

	// Ignored counts rows of modes that are not decoded, such as ipa.
	Ignored int

	// Skipped counts malformed rows.
	Skipped int
}

// DecodeMeta decodes a term meta bank.
func DecodeMeta(r io.Reader, maxSize int64) (*MetaBank, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxShardSize
	}
	b, err := readLimited(r, maxSize)
	if err != nil {
		return nil, fmt.Errorf("reading term meta bank: %w", err)
	}
	var rows [][]json.RawMessage
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("decoding term meta bank: %w", err)
	}

	var bank MetaBank
	for _, row := range rows {
		if len(row) < 3 {
			bank.Skipped++
			continue
		}
		term := optString(row, 0)
		mode := optString(row, 1)
		if term == "" {
			bank.Skipped++
			continue
		}
		switch mode {
		case "freq":
			fm, ok := decodeFrequency(row[2])
			if !ok {
				bank.Skipped++
				continue
			}
			fm.Term = term
			bank.Frequencies = append(bank.Frequencies, fm)
		case "pitch":
			pm, ok := decodePitch(row[2])
			if !ok {
				bank.Skipped++
				continue
			}
			pm.Term = term
			bank.Pitches = append(bank.Pitches, pm)
		default:
			bank.Ignored++
		}
	}
	return &bank, nil
}

// decodeFrequency accepts a bare number, a {value, displayValue} object or a
// {reading, frequency} object whose frequency is either of the former.
func decodeFrequency(raw json.RawMessage) (FrequencyMeta, bool) {
	var fm FrequencyMeta

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		fm.Value = int64(n)
		fm.Display = strconv.FormatInt(fm.Value, 10)
		return fm, true
	}

	var obj struct {
		Reading      *string         `json:"reading"`
		Frequency    json.RawMessage `json:"frequency"`
		Value        *float64        `json:"value"`
		DisplayValue *string         `json:"displayValue"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fm, false
	}

	switch {
	case obj.Reading != nil || len(obj.Frequency) > 0:
		if len(obj.Frequency) == 0 {
			return fm, false
		}
		inner, ok := decodeFrequency(obj.Frequency)
		if !ok {
			return fm, false
		}
		inner.Reading = ""
		if obj.Reading != nil {
			inner.Reading = *obj.Reading
		}
		return inner, true
	case obj.Value != nil:
		fm.Value = int64(*obj.Value)
		fm.Display = strconv.FormatInt(fm.Value, 10)
		if obj.DisplayValue != nil {
			fm.Display = *obj.DisplayValue
		}
		return fm, true
	}
	return fm, false
}

// decodePitch accepts a {reading, pitches} object. Pitches whose position is
// not a number, such as the high/low pattern form, are dropped.
func decodePitch(raw json.RawMessage) (PitchMeta, bool) {
	var obj struct {
		Reading string `json:"reading"`
		Pitches []struct {
			Position json.RawMessage `json:"position"`
			Nasal    json.RawMessage `json:"nasal"`
			Devoice  json.RawMessage `json:"devoice"`
			Tags     []string        `json:"tags"`
		} `json:"pitches"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Reading == "" {
		return PitchMeta{}, false
	}

	pm := PitchMeta{Reading: obj.Reading}
	for _, p := range obj.Pitches {
		var pos float64
		if err := json.Unmarshal(p.Position, &pos); err != nil {
			continue
		}
		pitch := Pitch{
			Position: int(pos),
			Nasal:    positions(p.Nasal),
			Devoice:  positions(p.Devoice),
		}
		if len(p.Tags) > 0 {
			pitch.Tags = p.Tags
		}
		pm.Pitches = append(pm.Pitches, pitch)
	}
	if len(pm.Pitches) == 0 {
		return PitchMeta{}, false
	}
	return pm, true
}

// positions decodes a mora position given as a number or a list of numbers.
func positions(raw json.RawMessage) []int {
	if len(raw) == 0 {
		return nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return []int{int(n)}
	}
	var ns []float64
	if err := json.Unmarshal(raw, &ns); err != nil || len(ns) == 0 {
		return nil
	}
	out := make([]int, len(ns))
	for i, n := range ns {
		out[i] = int(n)
	}
	return out
}
