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

package dataset

import (
	"cmp"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/wbindicators/catalog"
	"github.com/stockparfait/wbindicators/errkind"

	"golang.org/x/exp/slices"
)

// Column names of the raw provider frame.
const (
	EconomyColumn = "economy"
	TimeColumn    = "time"
)

// DefaultKeyAliases are the accepted names of the entity column in a raw
// frame, in the order of preference.
var DefaultKeyAliases = []string{EconomyColumn, KeyColumn, "Country"}

var timeLabelRe = regexp.MustCompile(`^YR(\d{4})$`)

// ParseYear converts a provider time label like "YR2020" to the year. Integral
// numbers are accepted as already parsed years.
func ParseYear(v Value) (int, error) {
	switch t := v.(type) {
	case string:
		m := timeLabelRe.FindStringSubmatch(t)
		if m == nil {
			return 0, errkind.Mark(errkind.Parse, errors.Reason(
				"time label %q does not match YR<4 digits>", t))
		}
		y, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, errkind.Mark(errkind.Parse, errors.Annotate(err, "bad year in %q", t))
		}
		return y, nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, errkind.Mark(errkind.Parse, errors.Reason("year %v is not an integer", t))
		}
		return int(t), nil
	}
	return 0, errkind.Mark(errkind.Parse, errors.Reason(
		"unsupported time value %v of type %T", v, v))
}

func parseValue(v Value) (*float64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		if math.IsNaN(t) {
			return nil, nil
		}
		return &t, nil
	case int:
		f := float64(t)
		return &f, nil
	case int64:
		f := float64(t)
		return &f, nil
	}
	return nil, errkind.Mark(errkind.Parse, errors.Reason("non-numeric value %v of type %T", v, v))
}

// findColumn returns the index of the first of the names present in f, or -1.
func findColumn(f *Frame, names ...string) int {
	for _, n := range names {
		if i := f.ColumnIndex(n); i >= 0 {
			return i
		}
	}
	return -1
}

// Normalize converts a raw frame into a sorted Dataset: indicator columns are
// renamed to their display names, time labels become integer years, and the
// entity column becomes KeyColumn. Columns not listed in indicators are
// dropped. When keyAliases is empty, DefaultKeyAliases are used.
//
// Normalize is idempotent: normalizing the Frame() of its result yields the
// same dataset.
func Normalize(raw *Frame, indicators []catalog.Indicator, keyAliases []string) (*Dataset, error) {
	if raw == nil {
		return nil, errkind.Mark(errkind.SchemaMismatch, errors.Reason("no raw data"))
	}
	if len(keyAliases) == 0 {
		keyAliases = DefaultKeyAliases
	}
	keyIdx := findColumn(raw, keyAliases...)
	if keyIdx < 0 {
		return nil, errkind.Mark(errkind.SchemaMismatch, errors.Reason(
			"no key column (one of %s) in [%s]",
			strings.Join(keyAliases, ", "), strings.Join(raw.Columns, ", ")))
	}
	timeIdx := findColumn(raw, TimeColumn, YearColumn)
	if timeIdx < 0 {
		return nil, errkind.Mark(errkind.SchemaMismatch, errors.Reason(
			"no time column in [%s]", strings.Join(raw.Columns, ", ")))
	}
	valueIdx := make([]int, len(indicators))
	var missing []string
	for i, ind := range indicators {
		valueIdx[i] = findColumn(raw, ind.Code, ind.Name)
		if valueIdx[i] < 0 {
			missing = append(missing, ind.Code)
		}
	}
	if len(missing) > 0 {
		return nil, errkind.Mark(errkind.SchemaMismatch, errors.Reason(
			"missing indicator columns: %s", strings.Join(missing, ", ")))
	}

	d := &Dataset{
		KeyColumn: KeyColumn,
		Columns:   make([]string, len(indicators)),
		Rows:      make([]Row, len(raw.Rows)),
	}
	for i, ind := range indicators {
		d.Columns[i] = ind.Name
	}
	for i, r := range raw.Rows {
		if len(r) != len(raw.Columns) {
			return nil, errkind.Mark(errkind.SchemaMismatch, errors.Reason(
				"row %d has %d values, expected %d", i, len(r), len(raw.Columns)))
		}
		key, ok := r[keyIdx].(string)
		if !ok || key == "" {
			return nil, errkind.Mark(errkind.Parse, errors.Reason(
				"row %d: bad key %v of type %T", i, r[keyIdx], r[keyIdx]))
		}
		year, err := ParseYear(r[timeIdx])
		if err != nil {
			return nil, errkind.Mark(errkind.Parse, errors.Annotate(err, "row %d (%s)", i, key))
		}
		row := Row{Key: key, Year: year, Values: make([]*float64, len(indicators))}
		for j, idx := range valueIdx {
			if row.Values[j], err = parseValue(r[idx]); err != nil {
				return nil, errkind.Mark(errkind.Parse, errors.Annotate(err,
					"row %d (%s/%d), column %s", i, key, year, indicators[j].Code))
			}
		}
		d.Rows[i] = row
	}
	slices.SortStableFunc(d.Rows, func(a, b Row) int {
		if c := strings.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		return cmp.Compare(a.Year, b.Year)
	})
	return d, nil
}
