/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

// SingleValue returns the only value of a one-column row.
func SingleValue(row map[string]any) (any, bool) {
	if len(row) != 1 {
		return nil, false
	}
	for _, v := range row {
		return v, true
	}
	return nil, false
}

// CollapseResult shapes rows scanned by either ORM the way a diagnostic query
// expects them: a single row with a single column yields that value, anything
// else yields the rows. Text returned as []byte by some drivers becomes a
// string, and a statement without a result set yields an empty slice.
func CollapseResult(rows []map[string]any) any {
	if rows == nil {
		rows = make([]map[string]any, 0)
	}
	for _, row := range rows {
		for column, v := range row {
			if b, ok := v.([]byte); ok {
				row[column] = string(b)
			}
		}
	}
	if len(rows) == 1 {
		if v, ok := SingleValue(rows[0]); ok {
			return v
		}
	}
	return rows
}
