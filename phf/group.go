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

package phf

// Group assigns items to slots. keys returns the lookup keys of an item; an
// item is placed in the slot of each of its distinct keys. The result has one
// entry per slot listing item indexes in the order items were given, so an
// item appears at most once per slot even if two of its keys coincide.
func Group[T any](x *Index, items []T, keys func(T) []string) [][]int {
	slots := make([][]int, x.Len())
	for i, item := range items {
		for _, key := range keys(item) {
			s := x.Slot(key)
			if l := slots[s]; len(l) > 0 && l[len(l)-1] == i {
				continue
			}
			slots[s] = append(slots[s], i)
		}
	}
	return slots
}
