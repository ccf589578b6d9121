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

package stats

import (
	"sort"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/stat"
)

// Sample stores unordered set of numerical data (float64) and computes various
// statistics over it.
type Sample struct {
	data   []float64 // keep it private, so we correctly update caches.
	sorted []float64 // cached sorted copy of data, for quantiles
	mean   *float64
}

// NewSample creates a new sample. Note, that it reuses the same slice without
// copying.
func NewSample(data []float64) *Sample {
	return &Sample{data: data}
}

// Data returns the sample data.
func (s *Sample) Data() []float64 { return s.data }

// Len is the number of samples.
func (s *Sample) Len() int { return len(s.data) }

// Mean of the Sample, cached. Zero for an empty sample.
func (s *Sample) Mean() float64 {
	if len(s.data) == 0 {
		return 0.0
	}
	if s.mean == nil {
		m := stat.Mean(s.data, nil)
		s.mean = &m
	}
	return *s.mean
}

// StdDev is the unbiased standard deviation. Zero for fewer than 2 samples.
func (s *Sample) StdDev() float64 {
	if len(s.data) < 2 {
		return 0.0
	}
	_, std := stat.MeanStdDev(s.data, nil)
	return std
}

func (s *Sample) sortedData() []float64 {
	if s.sorted == nil {
		s.sorted = make([]float64, len(s.data))
		copy(s.sorted, s.data)
		sort.Float64s(s.sorted)
	}
	return s.sorted
}

// Quantile of the empirical distribution, q in [0..1]. Zero for an empty
// sample.
func (s *Sample) Quantile(q float64) float64 {
	if len(s.data) == 0 {
		return 0.0
	}
	return stat.Quantile(clamp(q, 0.0, 1.0), stat.Empirical, s.sortedData(), nil)
}

// Min value, zero for an empty sample.
func (s *Sample) Min() float64 {
	if len(s.data) == 0 {
		return 0.0
	}
	return s.sortedData()[0]
}

// Max value, zero for an empty sample.
func (s *Sample) Max() float64 {
	if len(s.data) == 0 {
		return 0.0
	}
	d := s.sortedData()
	return d[len(d)-1]
}

func clamp[T constraints.Ordered](x, lo, hi T) T {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
