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

// Package table renders tabular results, such as run summaries or the
// contents of a destination table, as aligned text or CSV.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/wbindicators/dataset"
)

// Row interface that a table row representation must implement.
type Row interface {
	CSV() []string // an encoding/csv compatible row representation
}

// Cells is the simplest Row: a list of already formatted values.
type Cells []string

// CSV implements Row.
func (c Cells) CSV() []string { return c }

// Table container.
//
// A typical use:
//
//	t := NewTable("Domain", "Status")
//	t.AddRow(Cells{"fertility", "ok"}, Cells{"education", "failed"})
//	t.WriteText(os.Stdout, Params{})
type Table struct {
	Header []string // optional, may be nil
	Rows   []Row
}

// NewTable creates a new Table instance with optional column headers.  It is
// expected that, when present, the number of column headers is the same as the
// number of elements in each Row.
func NewTable(header ...string) *Table {
	return &Table{Header: header}
}

// FromDataset creates a table with the dataset's columns and rows.
func FromDataset(ds *dataset.Dataset) *Table {
	t := NewTable(ds.Header()...)
	for _, r := range ds.Rows {
		t.AddRow(r)
	}
	return t
}

// AddRow adds one or more rows to the table.
func (t *Table) AddRow(rows ...Row) {
	t.Rows = append(t.Rows, rows...)
}

// Params are parameters for pretty-printing or CSV export of Table data.
type Params struct {
	Rows        int  // max. number of rows to write; 0 = unlimited (default)
	NoHeader    bool // whether to print the header, default - yes
	MaxColWidth int  // for WriteText only; 0 = unlimited, otherwise must be >= 4
}

// rows returns the header (unless disabled) followed by up to p.Rows rows.
func (t *Table) rows(p Params) [][]string {
	var res [][]string
	if !p.NoHeader && len(t.Header) > 0 {
		res = append(res, t.Header)
	}
	for i, r := range t.Rows {
		if p.Rows > 0 && i >= p.Rows {
			break
		}
		res = append(res, r.CSV())
	}
	return res
}

// WriteCSV writes the table to w in CSV format.
func (t *Table) WriteCSV(w io.Writer, p Params) error {
	cw := csv.NewWriter(w)
	for i, row := range t.rows(p) {
		if err := cw.Write(row); err != nil {
			return errors.Annotate(err, "failed to write row %d", i)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Annotate(err, "failed to flush written rows")
	}
	return nil
}

// WriteText writes the table as a text formatted for ease of reading. Column
// widths are measured in terminal cells, so wide characters in country names
// stay aligned.
func (t *Table) WriteText(w io.Writer, p Params) error {
	if p.MaxColWidth != 0 && p.MaxColWidth < 4 {
		return errors.Reason("MaxColWidth [%d] must be 0 or >= 4", p.MaxColWidth)
	}
	rows := t.rows(p)
	var widths []int
	for i, row := range rows {
		if len(row) == 0 {
			return errors.Reason("row %d has size 0", i)
		}
		if widths == nil {
			widths = make([]int, len(row))
		}
		if len(row) != len(widths) {
			return errors.Reason("row size [%d] != expected size [%d]",
				len(row), len(widths))
		}
		for j, s := range row {
			if sw := runewidth.StringWidth(s); sw > widths[j] {
				widths[j] = sw
			}
			if p.MaxColWidth > 0 && widths[j] > p.MaxColWidth {
				widths[j] = p.MaxColWidth
			}
		}
	}

	write := func(row []string) error {
		cells := make([]string, len(row))
		for i, s := range row {
			cells[i] = runewidth.FillLeft(runewidth.Truncate(s, widths[i], ".."), widths[i])
		}
		_, err := fmt.Fprintf(w, "%s\n", strings.Join(cells, " | "))
		return err
	}

	for i, row := range rows {
		if err := write(row); err != nil {
			return errors.Annotate(err, "failed to write row %d", i)
		}
		if i == 0 && !p.NoHeader && len(t.Header) > 0 {
			dashes := make([]string, len(widths))
			for j, wd := range widths {
				dashes[j] = strings.Repeat("-", wd)
			}
			if err := write(dashes); err != nil {
				return errors.Annotate(err, "failed to write header separator")
			}
		}
	}
	return nil
}
