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

// Package termbank decodes the JSON banks of a yomitan dictionary archive.
//
// An archive carries a manifest (index.json) and any number of numbered
// shards:
//  1. term_bank_N.json: an array of term rows
//     [expression, reading, definitionTags, rules, score, glossary, sequence, termTags].
//     Format 1 archives put the glossary items inline from position 5 on.
//  2. term_meta_bank_N.json: an array of [expression, mode, data] rows.
//     Only the "freq" mode is decoded.
//  3. tag_bank_N.json: an array of [name, category, order, notes, score] rows.
//
// Shards are decoded independently so that one malformed shard does not
// prevent the rest of the dictionary from being imported.
package termbank
