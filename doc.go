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

// Package yomidict implements an embedded import-and-lookup engine for
// yomitan dictionaries in pure Go.
//
// A yomitan dictionary is a zip archive that contains several files:
//  1. An index.json file with the dictionary title, revision and format.
//  2. One or more term_bank_N.json files. Each holds an array of term rows
//     carrying the term, its reading, tags, inflection rules, a score, the
//     definitions and a sequence number.
//  3. Optional term_meta_bank_N.json files with frequency metadata.
//  4. Optional tag_bank_N.json files describing the tags used by terms.
//  5. An optional styles.css used to display structured definitions.
//
// Import reads an archive once, builds a minimal perfect hash over the
// normalized terms and readings, and stores compressed buckets of records in
// a single sqlite file. Lookup hashes the normalized query into each loaded
// dictionary and merges the matches in priority order.
//
//	e, err := yomidict.Open("dicts.db")
//	if err != nil {
//		// handle error
//	}
//	defer e.Close()
//
//	if _, err := e.Import(ctx, "jmdict.zip"); err != nil {
//		// handle error
//	}
//	res, err := e.Lookup(ctx, "猫", &yomidict.LookupOptions{MatchReadings: true})
//
// More info on the dictionary format can be found at this URL:
// https://github.com/yomidevs/yomitan/tree/master/ext/data/schemas
package yomidict
