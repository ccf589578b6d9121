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

// Package stats summarizes the columns of a normalized dataset, for previews
// and sanity checks of a run.
package stats

import (
	"fmt"
	"strconv"

	"github.com/stockparfait/wbindicators/dataset"
)

// Summary of a single value column.
type Summary struct {
	Column    string
	Count     int // non-missing values
	Missing   int
	FirstYear int // of a non-missing value; 0 when Count = 0
	LastYear  int
	Min       float64
	Median    float64
	Max       float64
	Mean      float64
	StdDev    float64
}

// SummaryHeader is the table header matching Summary.CSV.
var SummaryHeader = []string{
	"Column", "Count", "Missing", "Years", "Min", "Median", "Max", "Mean", "StdDev"}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', 6, 64)
}

// CSV implements table.Row.
func (s Summary) CSV() []string {
	years := ""
	if s.Count > 0 {
		years = fmt.Sprintf("%d-%d", s.FirstYear, s.LastYear)
	}
	return []string{
		s.Column,
		strconv.Itoa(s.Count),
		strconv.Itoa(s.Missing),
		years,
		formatFloat(s.Min),
		formatFloat(s.Median),
		formatFloat(s.Max),
		formatFloat(s.Mean),
		formatFloat(s.StdDev),
	}
}

// Summarize each value column of the dataset, in column order.
func Summarize(ds *dataset.Dataset) []Summary {
	res := make([]Summary, len(ds.Columns))
	for c, name := range ds.Columns {
		s := Summary{Column: name}
		var data []float64
		for _, r := range ds.Rows {
			v := r.Values[c]
			if v == nil {
				s.Missing++
				continue
			}
			data = append(data, *v)
			if s.FirstYear == 0 || r.Year < s.FirstYear {
				s.FirstYear = r.Year
			}
			if r.Year > s.LastYear {
				s.LastYear = r.Year
			}
		}
		sample := NewSample(data)
		s.Count = sample.Len()
		s.Min = sample.Min()
		s.Median = sample.Quantile(0.5)
		s.Max = sample.Max()
		s.Mean = sample.Mean()
		s.StdDev = sample.StdDev()
		res[c] = s
	}
	return res
}

// Economies is the number of distinct keys in the dataset.
func Economies(ds *dataset.Dataset) int {
	keys := make(map[string]struct{})
	for _, r := range ds.Rows {
		keys[r.Key] = struct{}{}
	}
	return len(keys)
}
