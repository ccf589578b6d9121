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

// Package pipeline runs the World Bank indicator domains end to end: fetch the
// catalog's series, normalize them into a dataset and replace the destination
// table with it.
//
// A run is driven by a Session, which owns the sink, the run history and the
// metrics:
//
//	s, err := pipeline.Open(ctx, config)
//	...
//	defer s.Close()
//	domains, err := config.Select("demographics", "education")
//	results := pipeline.RunAll(ctx, s, domains)
//
// Each domain succeeds or fails on its own; a failed domain leaves its
// destination table untouched.
package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/iterator"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/wbindicators/catalog"
	"github.com/stockparfait/wbindicators/dataset"
	"github.com/stockparfait/wbindicators/errkind"
	"github.com/stockparfait/wbindicators/history"
	"github.com/stockparfait/wbindicators/sink"
	"github.com/stockparfait/wbindicators/stats"
	"github.com/stockparfait/wbindicators/table"
	"github.com/stockparfait/wbindicators/wbapi"
)

// Status of a domain run.
type Status string

// Values of Status.
const (
	StatusOK      = Status("ok")
	StatusFailed  = Status("failed")
	StatusSkipped = Status("skipped") // the run was cancelled before it started
)

// Result of a domain run.
type Result struct {
	RunID       string
	Domain      string
	Destination string
	StartedAt   time.Time
	Duration    time.Duration
	Status      Status
	Kind        errkind.Kind // of Err, if any
	Rows        int
	Err         error
}

// ResultHeader is the table header matching Result.CSV.
var ResultHeader = []string{
	"Domain", "Destination", "Status", "Rows", "Duration", "Error"}

// CSV implements table.Row.
func (r Result) CSV() []string {
	e := ""
	if r.Err != nil {
		e = r.Err.Error()
		if r.Kind != "" {
			e = string(r.Kind) + ": " + e
		}
	}
	return []string{
		r.Domain,
		r.Destination,
		string(r.Status),
		strconv.Itoa(r.Rows),
		r.Duration.Round(time.Millisecond).String(),
		e,
	}
}

// Record converts the result to a run history record.
func (r Result) Record() history.Record {
	rec := history.Record{
		RunID:       r.RunID,
		Domain:      r.Domain,
		Destination: r.Destination,
		StartedAt:   r.StartedAt,
		Duration:    r.Duration,
		Status:      string(r.Status),
		Kind:        string(r.Kind),
		Rows:        r.Rows,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// Summary renders the results as a table.
func Summary(results []Result) *table.Table {
	t := table.NewTable(ResultHeader...)
	for _, r := range results {
		t.AddRow(r)
	}
	return t
}

// Failed counts the results which did not succeed.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Status != StatusOK {
			n++
		}
	}
	return n
}

// Entry resolves the domain's catalog entry with the config overrides applied.
func Entry(dc DomainConfig) (*catalog.Entry, error) {
	e, err := catalog.Lookup(dc.Name)
	if err != nil {
		return nil, err
	}
	if dc.Lookback > 0 {
		e.Lookback = dc.Lookback
	}
	if err := e.Validate(); err != nil {
		return nil, errors.Annotate(err, "invalid catalog entry %s", e.Name)
	}
	return e, nil
}

func (s *Session) allowSchemaChange(dc DomainConfig) bool {
	if dc.AllowSchemaChange != nil {
		return *dc.AllowSchemaChange
	}
	return s.Config.AllowSchemaChange
}

// Prepare fetches and normalizes the domain's dataset without writing it.
func Prepare(ctx context.Context, s *Session, dc DomainConfig) (*catalog.Entry, *dataset.Dataset, error) {
	e, err := Entry(dc)
	if err != nil {
		return nil, nil, err
	}
	frame, err := wbapi.Fetch(s.Context(ctx), e.Codes(), wbapi.FetchOptions{
		Lookback:          e.Lookback,
		PerPage:           s.Config.PerPage,
		MaxSeriesPerQuery: s.Config.MaxSeriesPerQuery,
		Workers:           s.Config.FetchWorkers,
	})
	if err != nil {
		return e, nil, errors.Annotate(err, "failed to fetch %s", e.Name)
	}
	logging.Debugf(ctx, "%s: fetched %d raw rows", e.Name, len(frame.Rows))
	ds, err := dataset.Normalize(frame, e.Indicators, dataset.DefaultKeyAliases)
	if err != nil {
		return e, nil, errors.Annotate(err, "failed to normalize %s", e.Name)
	}
	if dups := ds.Duplicates(); len(dups) > 0 {
		logging.Warningf(ctx, "%s: %d duplicate (key, year) pairs, e.g. %s",
			e.Name, len(dups), dups[0])
	}
	for _, sm := range stats.Summarize(ds) {
		logging.Debugf(ctx, "%s: %s: %d values, %d missing, years %d-%d",
			e.Name, sm.Column, sm.Count, sm.Missing, sm.FirstYear, sm.LastYear)
	}
	return e, ds, nil
}

func runDomain(ctx context.Context, s *Session, runID string, dc DomainConfig) Result {
	r := Result{RunID: runID, Domain: dc.Name, StartedAt: time.Now()}
	if err := ctx.Err(); err != nil {
		r.Status = StatusSkipped
		r.Err = err
		s.record(ctx, r)
		return r
	}
	logging.Infof(ctx, "%s: starting", dc.Name)
	err := func() error {
		e, ds, err := Prepare(ctx, s, dc)
		if e != nil {
			r.Domain = e.Name
			r.Destination = e.FullTable()
		}
		if err != nil {
			return err
		}
		dest := sink.Destination{Schema: e.Schema, Table: e.Table, Description: e.Description}
		opts := sink.Options{Mode: sink.Overwrite, AllowSchemaChange: s.allowSchemaChange(dc)}
		if err := s.Sink.Write(ctx, ds, dest, opts); err != nil {
			return errors.Annotate(err, "failed to write %s", dest)
		}
		r.Rows = len(ds.Rows)
		return nil
	}()
	r.Duration = time.Since(r.StartedAt)
	if err != nil {
		r.Status = StatusFailed
		r.Kind = errkind.Of(err)
		r.Err = err
		logging.Errorf(ctx, "%s: failed after %s: %s", r.Domain,
			r.Duration.Round(time.Millisecond), err.Error())
	} else {
		r.Status = StatusOK
		logging.Infof(ctx, "%s: wrote %d rows to %s in %s", r.Domain, r.Rows,
			r.Destination, r.Duration.Round(time.Millisecond))
	}
	s.record(ctx, r)
	return r
}

// record the result in the metrics and the history. Failing to record does not
// fail the run.
func (s *Session) record(ctx context.Context, r Result) {
	s.Metrics.Observe(r)
	if s.History == nil {
		return
	}
	if err := s.History.Add(context.WithoutCancel(ctx), r.Record()); err != nil {
		logging.Warningf(ctx, "failed to record the run of %s: %s", r.Domain, err.Error())
	}
}

func (s *Session) writeMetrics(ctx context.Context) {
	if s.Config.Metrics == "" {
		return
	}
	if err := s.Metrics.WriteFile(s.Config.Metrics); err != nil {
		logging.Warningf(ctx, "%s", err.Error())
	}
}

// RunDomain runs a single domain: fetch, normalize and overwrite its table.
// Errors are reported in the result.
func RunDomain(ctx context.Context, s *Session, dc DomainConfig) Result {
	r := runDomain(ctx, s, NewRunID(), dc)
	s.writeMetrics(ctx)
	return r
}

type indexedResult struct {
	i int
	r Result
}

// RunAll runs the domains with up to Config.Workers of them in parallel, and
// returns their results in the order of domains. A failed domain does not
// affect the others. Once ctx is cancelled, the domains not yet started are
// skipped.
func RunAll(ctx context.Context, s *Session, domains []DomainConfig) []Result {
	runID := NewRunID()
	logging.Infof(ctx, "run %s: %d domains, %d workers", runID, len(domains), s.Config.Workers)
	idx := make([]int, len(domains))
	for i := range idx {
		idx[i] = i
	}
	f := func(i int) indexedResult {
		return indexedResult{i: i, r: runDomain(ctx, s, runID, domains[i])}
	}
	pm := iterator.ParallelMap(ctx, s.Config.Workers, iterator.FromSlice(idx), f)
	defer pm.Close()

	done := make([]bool, len(domains))
	results := iterator.Reduce[indexedResult, []Result](pm, make([]Result, len(domains)),
		func(ir indexedResult, acc []Result) []Result {
			acc[ir.i] = ir.r
			done[ir.i] = true
			return acc
		})
	for i, ok := range done {
		if !ok {
			results[i] = Result{
				RunID:     runID,
				Domain:    domains[i].Name,
				StartedAt: time.Now(),
				Status:    StatusSkipped,
				Err:       errors.Annotate(context.Cause(ctx), "not started"),
			}
			s.record(ctx, results[i])
		}
	}
	s.writeMetrics(ctx)
	logging.Infof(ctx, "run %s: %d of %d domains did not succeed", runID, Failed(results), len(results))
	return results
}
