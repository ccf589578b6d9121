// Copyright 2022 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dataset holds the raw tabular data as fetched from the provider and
// its normalized per-domain form ready to be written to a destination table.
package dataset

import (
	"fmt"
	"strconv"

	"github.com/stockparfait/errors"
)

// Canonical column names of a normalized dataset.
const (
	KeyColumn  = "Country_Code"
	YearColumn = "Year"
)

// Value is an arbitrary value of a raw table cell: string, int, float64 or nil.
type Value interface{}

// Frame is a raw table: named columns and rows of loosely typed cells.
type Frame struct {
	Columns []string
	Rows    [][]Value
}

// NewFrame creates an empty Frame with the given columns.
func NewFrame(columns ...string) *Frame {
	return &Frame{Columns: columns}
}

// AddRow appends a row, which must have one value per column.
func (f *Frame) AddRow(row ...Value) error {
	if len(row) != len(f.Columns) {
		return errors.Reason("row size [%d] != number of columns [%d]",
			len(row), len(f.Columns))
	}
	f.Rows = append(f.Rows, row)
	return nil
}

// ColumnIndex returns the index of the named column, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Row is a single normalized observation: one country in one year, with one
// value per dataset column. A nil value means the provider has no data.
type Row struct {
	Key    string
	Year   int
	Values []*float64
}

// Dataset is the normalized table of a domain, sorted by (Key, Year).
type Dataset struct {
	KeyColumn string
	Columns   []string // value columns, excluding the key and the year
	Rows      []Row
}

// Header returns all the column names, including the key and the year.
func (d *Dataset) Header() []string {
	return append([]string{d.KeyColumn, YearColumn}, d.Columns...)
}

// ColumnIndex returns the index of the named value column, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Frame converts the dataset back into a raw Frame with the canonical column
// names. Normalizing the result yields the same dataset.
func (d *Dataset) Frame() *Frame {
	f := NewFrame(d.Header()...)
	f.Rows = make([][]Value, len(d.Rows))
	for i, r := range d.Rows {
		row := make([]Value, 0, len(d.Columns)+2)
		row = append(row, r.Key, r.Year)
		for _, v := range r.Values {
			if v == nil {
				row = append(row, nil)
			} else {
				row = append(row, *v)
			}
		}
		f.Rows[i] = row
	}
	return f
}

// Duplicates lists the "key/year" pairs occurring more than once, in the order
// of their first repetition.
func (d *Dataset) Duplicates() []string {
	type keyYear struct {
		key  string
		year int
	}
	seen := make(map[keyYear]int)
	var res []string
	for _, r := range d.Rows {
		k := keyYear{r.Key, r.Year}
		seen[k]++
		if seen[k] == 2 {
			res = append(res, fmt.Sprintf("%s/%d", r.Key, r.Year))
		}
	}
	return res
}

// CSV returns the encoding/csv compatible representation of the row. Missing
// values are empty strings.
func (r Row) CSV() []string {
	res := make([]string, 0, len(r.Values)+2)
	res = append(res, r.Key, strconv.Itoa(r.Year))
	for _, v := range r.Values {
		if v == nil {
			res = append(res, "")
		} else {
			res = append(res, strconv.FormatFloat(*v, 'f', -1, 64))
		}
	}
	return res
}

// Float is a convenience for creating a non-nil value.
func Float(v float64) *float64 {
	return &v
}
