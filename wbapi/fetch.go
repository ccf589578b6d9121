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

package wbapi

import (
	"context"
	"strings"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/wbindicators/dataset"
	"github.com/stockparfait/wbindicators/errkind"

	"golang.org/x/sync/errgroup"
)

// Default values of FetchOptions.
const (
	DefaultPerPage           = 1000
	DefaultMaxSeriesPerQuery = 60
)

// FetchOptions configure Fetch.
type FetchOptions struct {
	Economies         []string // default: all
	Lookback          int      // most recent periods, must be > 0
	PerPage           int      // default: DefaultPerPage
	MaxSeriesPerQuery int      // default: DefaultMaxSeriesPerQuery
	Workers           int      // concurrent batch queries; default: 1
}

func (o *FetchOptions) setDefaults() {
	if o.PerPage <= 0 {
		o.PerPage = DefaultPerPage
	}
	if o.MaxSeriesPerQuery <= 0 {
		o.MaxSeriesPerQuery = DefaultMaxSeriesPerQuery
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
}

// batches splits codes into consecutive chunks of at most n.
func batches(codes []string, n int) [][]string {
	var res [][]string
	for len(codes) > n {
		res = append(res, codes[:n])
		codes = codes[n:]
	}
	if len(codes) > 0 {
		res = append(res, codes)
	}
	return res
}

// FetchObservations reads all the observations of the query.
func FetchObservations(ctx context.Context, q *Query) ([]Observation, error) {
	it := q.Read(ctx)
	var res []Observation
	for {
		var o Observation
		ok, err := it.Next(&o)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		res = append(res, o)
	}
	return res, nil
}

// Fetch downloads the lookback window of the given series for the economies
// and pivots them into a frame with the columns "economy", "time" and one
// column per code, in the order of codes. Rows appear in the order their
// (economy, time) pair was first received.
//
// Every requested code must be present in the response; otherwise the whole
// fetch fails, since a silently missing column would corrupt the dataset.
func Fetch(ctx context.Context, codes []string, opts FetchOptions) (*dataset.Frame, error) {
	if len(codes) == 0 {
		return nil, errkind.Mark(errkind.Configuration, errors.Reason(
			"no indicator codes to fetch"))
	}
	if opts.Lookback <= 0 {
		return nil, errkind.Mark(errkind.Configuration, errors.Reason(
			"lookback = %d must be positive", opts.Lookback))
	}
	colIdx := make(map[string]int, len(codes))
	for i, c := range codes {
		if _, ok := colIdx[c]; ok {
			return nil, errkind.Mark(errkind.Configuration, errors.Reason("duplicate code %s", c))
		}
		colIdx[c] = i
	}
	if GetClient(ctx) == nil {
		return nil, errkind.Mark(errkind.Configuration, errors.Reason("no wbapi client in context"))
	}
	opts.setDefaults()

	bs := batches(codes, opts.MaxSeriesPerQuery)
	results := make([][]Observation, len(bs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, b := range bs {
		i, b := i, b
		g.Go(func() error {
			q := NewQuery(b...).Economies(opts.Economies...).
				MostRecent(opts.Lookback).PerPage(opts.PerPage)
			obs, err := FetchObservations(gctx, q)
			if err != nil {
				return errors.Annotate(err, "failed to fetch series %s", strings.Join(b, ";"))
			}
			results[i] = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errkind.Mark(errkind.Fetch, errors.Annotate(err, "fetch failed"))
	}

	type rowKey struct{ economy, time string }
	frame := dataset.NewFrame(append([]string{dataset.EconomyColumn, dataset.TimeColumn}, codes...)...)
	rowIdx := make(map[rowKey]int)
	seen := make(map[string]bool, len(codes))
	total := 0
	for _, obs := range results {
		for _, o := range obs {
			col, ok := colIdx[o.Series]
			if !ok {
				logging.Debugf(ctx, "ignoring unrequested series %s", o.Series)
				continue
			}
			seen[o.Series] = true
			k := rowKey{o.Economy, o.Time}
			r, ok := rowIdx[k]
			if !ok {
				r = len(frame.Rows)
				rowIdx[k] = r
				row := make([]dataset.Value, len(frame.Columns))
				row[0], row[1] = o.Economy, o.Time
				frame.Rows = append(frame.Rows, row)
			}
			if o.Value != nil {
				frame.Rows[r][col+2] = *o.Value
			}
			total++
		}
	}
	var missing []string
	for _, c := range codes {
		if !seen[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, errkind.Mark(errkind.Fetch, errors.Reason(
			"provider returned no data for indicators: %s", strings.Join(missing, ", ")))
	}
	logging.Infof(ctx, "World Bank: %d observations of %d series in %d rows",
		total, len(codes), len(frame.Rows))
	return frame, nil
}
