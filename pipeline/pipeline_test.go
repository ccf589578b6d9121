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

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/fetch"
	"github.com/stockparfait/testutil"
	"github.com/stockparfait/wbindicators/catalog"
	"github.com/stockparfait/wbindicators/dataset"
	"github.com/stockparfait/wbindicators/errkind"
	"github.com/stockparfait/wbindicators/history"
	"github.com/stockparfait/wbindicators/sink"
	"github.com/stockparfait/wbindicators/table"
	"github.com/stockparfait/wbindicators/wbapi"

	. "github.com/smartystreets/goconvey/convey"
)

// domainPage is an API response with the values of all the domains' series
// for ARG and USA in 2019 and 2020.
func domainPage(names ...string) (string, error) {
	var obs []wbapi.Observation
	for _, name := range names {
		e, err := catalog.Lookup(name)
		if err != nil {
			return "", err
		}
		for i, code := range e.Codes() {
			for _, economy := range []string{"USA", "ARG"} {
				for _, year := range []int{2020, 2019} {
					obs = append(obs, wbapi.Observation{
						Economy: economy,
						Time:    fmt.Sprintf("YR%d", year),
						Series:  code,
						Value:   dataset.Float(float64(year + i)),
					})
				}
			}
		}
	}
	return wbapi.TestPage(1, 1, obs)
}

func boolPtr(b bool) *bool { return &b }

func TestConfig(t *testing.T) {
	t.Parallel()

	tmpdir, tmpdirErr := os.MkdirTemp("", "test_pipeline_config")
	defer os.RemoveAll(tmpdir)

	Convey("Setup succeeded", t, func() {
		So(tmpdirErr, ShouldBeNil)
	})

	Convey("ParseConfig", t, func() {
		path := filepath.Join(tmpdir, "config.toml")

		Convey("missing file prints a sample", func() {
			_, err := ParseConfig(filepath.Join(tmpdir, "nonexistent.toml"))
			So(err, ShouldNotBeNil)
			So(errkind.Of(err), ShouldEqual, errkind.Configuration)
			So(err.Error(), ShouldContainSubstring, SampleConfig)
		})

		Convey("the sample config is valid", func() {
			So(testutil.WriteFile(path, SampleConfig), ShouldBeNil)
			c, err := ParseConfig(path)
			So(err, ShouldBeNil)
			So(c.Workers, ShouldEqual, 1)
			So(c.FetchWorkers, ShouldEqual, 4)
			So(c.Sink.Kind, ShouldEqual, SinkDuckDB)
			So(c.Sink.Path, ShouldEqual,
				filepath.Join(os.Getenv("HOME"), ".wbindicators", "lake.duckdb"))
			So(c.Domains, ShouldResemble, []DomainConfig{{Name: "demographics", Lookback: 50}})
		})

		Convey("full config with defaults", func() {
			So(testutil.WriteFile(path, `
per_page = 500
allow_schema_change = true

[sink]
kind = "parquet"
path = "/tmp/lake"

[[domains]]
name = "Fertility"
allow_schema_change = false

[[domains]]
name = "education"
lookback = 10
`), ShouldBeNil)
			c, err := ParseConfig(path)
			So(err, ShouldBeNil)
			So(c, ShouldResemble, &Config{
				APIURL:            wbapi.URL,
				PerPage:           500,
				MaxSeriesPerQuery: wbapi.DefaultMaxSeriesPerQuery,
				Workers:           1,
				FetchWorkers:      1,
				AllowSchemaChange: true,
				Retry: RetryConfig{
					Attempts: 3, InitialDelayMs: 1000, Multiplier: 2.0, TimeoutSec: 60},
				Sink: SinkConfig{Kind: SinkParquet, Path: "/tmp/lake"},
				Domains: []DomainConfig{
					{Name: "Fertility", AllowSchemaChange: boolPtr(false)},
					{Name: "education", Lookback: 10},
				},
			})
			So(c.Retry.Policy(), ShouldResemble, wbapi.DefaultRetryPolicy())
		})

		Convey("unknown fields are rejected", func() {
			So(testutil.WriteFile(path, `per_pages = 5`), ShouldBeNil)
			_, err := ParseConfig(path)
			So(errkind.Of(err), ShouldEqual, errkind.Configuration)
		})

		Convey("invalid values are configuration errors", func() {
			So(testutil.WriteFile(path, `
[[domains]]
name = "astrology"
`), ShouldBeNil)
			_, err := ParseConfig(path)
			So(errkind.Of(err), ShouldEqual, errkind.Configuration)
			So(err.Error(), ShouldContainSubstring, "astrology")
		})
	})

	Convey("Validate", t, func() {
		check := func(c Config) error {
			return c.Init()
		}
		So(check(Config{}), ShouldBeNil)
		So(errkind.Of(check(Config{PerPage: -1})), ShouldEqual, errkind.Configuration)
		So(errkind.Of(check(Config{PerPage: wbapi.MaxPerPage + 1})), ShouldEqual,
			errkind.Configuration)
		So(errkind.Of(check(Config{Workers: -2})), ShouldEqual, errkind.Configuration)
		So(errkind.Of(check(Config{RequestsPerSecond: -1})), ShouldEqual,
			errkind.Configuration)
		So(errkind.Of(check(Config{Retry: RetryConfig{Multiplier: 0.5}})), ShouldEqual,
			errkind.Configuration)
		So(errkind.Of(check(Config{Sink: SinkConfig{Kind: "csv"}})), ShouldEqual,
			errkind.Configuration)
		So(errkind.Of(check(Config{Sink: SinkConfig{Kind: SinkParquet}})), ShouldEqual,
			errkind.Configuration)
		So(errkind.Of(check(Config{Sink: SinkConfig{Kind: SinkDuckLake, Path: "meta.sqlite"}})),
			ShouldEqual, errkind.Configuration)
		So(errkind.Of(check(Config{Domains: []DomainConfig{
			{Name: "education"}, {Name: "Education"}}})), ShouldEqual, errkind.Configuration)
		So(errkind.Of(check(Config{Domains: []DomainConfig{
			{Name: "education", Lookback: -1}}})), ShouldEqual, errkind.Configuration)
	})

	Convey("Select", t, func() {
		Convey("defaults to the catalog order", func() {
			var c Config
			ds, err := c.Select()
			So(err, ShouldBeNil)
			So(len(ds), ShouldEqual, len(catalog.Domains()))
			So(ds[0], ShouldResemble, DomainConfig{Name: catalog.Domains()[0].Name})
		})

		Convey("configured domains", func() {
			c := Config{Domains: []DomainConfig{{Name: "fertility", Lookback: 5}}}
			ds, err := c.Select()
			So(err, ShouldBeNil)
			So(ds, ShouldResemble, []DomainConfig{{Name: "fertility", Lookback: 5}})

			ds, err = c.Select("Education", "Fertility")
			So(err, ShouldBeNil)
			So(ds, ShouldResemble, []DomainConfig{
				{Name: "education"},
				{Name: "fertility", Lookback: 5},
			})
		})

		Convey("bad names", func() {
			var c Config
			_, err := c.Select("astrology")
			So(errkind.Of(err), ShouldEqual, errkind.Configuration)
			_, err = c.Select("education", "EDUCATION")
			So(errkind.Of(err), ShouldEqual, errkind.Configuration)
		})
	})

	Convey("ExpandHome", t, func() {
		home := os.Getenv("HOME")
		So(ExpandHome("~/a/b"), ShouldEqual, filepath.Join(home, "a", "b"))
		So(ExpandHome("/a/~/b"), ShouldEqual, "/a/~/b")
		So(ExpandHome(""), ShouldEqual, "")
	})
}

func TestPipeline(t *testing.T) {
	t.Parallel()

	tmpdir, tmpdirErr := os.MkdirTemp("", "test_pipeline")
	defer os.RemoveAll(tmpdir)

	Convey("Setup succeeded", t, func() {
		So(tmpdirErr, ShouldBeNil)
	})

	Convey("Pipeline runs", t, func() {
		server := testutil.NewTestServer()
		defer server.Close()
		server.ResponseBody = []string{"{}"}

		ctx := fetch.UseClient(context.Background(), server.Client())
		historyPath := filepath.Join(tmpdir, "history.db")
		metricsPath := filepath.Join(tmpdir, "metrics", "wb.prom")
		defer func() {
			os.Remove(historyPath)
			os.RemoveAll(filepath.Dir(metricsPath))
		}()

		s, err := Open(ctx, &Config{
			APIURL:  server.URL() + "/v2",
			Retry:   RetryConfig{Attempts: 1, InitialDelayMs: 1},
			History: historyPath,
			Metrics: metricsPath,
		})
		So(err, ShouldBeNil)
		defer s.Close()

		fertility, err := catalog.Lookup("fertility")
		So(err, ShouldBeNil)
		fertilityDest := sink.Destination{Schema: fertility.Schema, Table: fertility.Table}

		Convey("RunDomain writes the table", func() {
			page, err := domainPage("fertility")
			So(err, ShouldBeNil)
			server.ResponseBody = []string{page}

			r := RunDomain(ctx, s, DomainConfig{Name: "Fertility", Lookback: 3})
			So(r.Err, ShouldBeNil)
			So(r.Status, ShouldEqual, StatusOK)
			So(r.Domain, ShouldEqual, "fertility")
			So(r.Destination, ShouldEqual, fertility.FullTable())
			So(r.Rows, ShouldEqual, 4)
			So(server.RequestQuery.Get("mrv"), ShouldEqual, "3")

			ds, err := s.Sink.ReadTable(ctx, fertilityDest)
			So(err, ShouldBeNil)
			So(ds.Columns, ShouldResemble, []string{"Fertility_Rate_Births_Per_Woman"})
			So(ds.Rows, ShouldResemble, []dataset.Row{
				{Key: "ARG", Year: 2019, Values: []*float64{dataset.Float(2019)}},
				{Key: "ARG", Year: 2020, Values: []*float64{dataset.Float(2020)}},
				{Key: "USA", Year: 2019, Values: []*float64{dataset.Float(2019)}},
				{Key: "USA", Year: 2020, Values: []*float64{dataset.Float(2020)}},
			})

			recs, err := s.History.List(ctx, history.Filter{RunID: r.RunID})
			So(err, ShouldBeNil)
			So(len(recs), ShouldEqual, 1)
			So(recs[0].Status, ShouldEqual, "ok")
			So(recs[0].Rows, ShouldEqual, 4)

			_, err = os.Stat(metricsPath)
			So(err, ShouldBeNil)

			Convey("and overwrites it with identical contents", func() {
				server.ResponseBody = []string{page}
				r2 := RunDomain(ctx, s, DomainConfig{Name: "fertility"})
				So(r2.Status, ShouldEqual, StatusOK)
				So(r2.RunID, ShouldNotEqual, r.RunID)
				ds2, err := s.Sink.ReadTable(ctx, fertilityDest)
				So(err, ShouldBeNil)
				So(ds2, ShouldResemble, ds)
			})
		})

		Convey("RunDomain respects the table schema", func() {
			other := &dataset.Dataset{
				KeyColumn: dataset.KeyColumn,
				Columns:   []string{"Other"},
				Rows: []dataset.Row{
					{Key: "USA", Year: 2000, Values: []*float64{dataset.Float(1)}},
				},
			}
			So(s.Sink.Write(ctx, other, fertilityDest, sink.Options{AllowSchemaChange: true}),
				ShouldBeNil)
			page, err := domainPage("fertility")
			So(err, ShouldBeNil)

			Convey("fails without the permission", func() {
				server.ResponseBody = []string{page}
				r := RunDomain(ctx, s, DomainConfig{Name: "fertility"})
				So(r.Status, ShouldEqual, StatusFailed)
				So(r.Kind, ShouldEqual, errkind.SchemaMismatch)
				ds, err := s.Sink.ReadTable(ctx, fertilityDest)
				So(err, ShouldBeNil)
				So(ds, ShouldResemble, other)
			})

			Convey("replaces it with the permission", func() {
				server.ResponseBody = []string{page}
				r := RunDomain(ctx, s, DomainConfig{
					Name: "fertility", AllowSchemaChange: boolPtr(true)})
				So(r.Err, ShouldBeNil)
				So(r.Status, ShouldEqual, StatusOK)
				ds, err := s.Sink.ReadTable(ctx, fertilityDest)
				So(err, ShouldBeNil)
				So(ds.Columns, ShouldResemble, fertility.ColumnNames())
			})
		})

		Convey("unknown domain fails before any request", func() {
			server.RequestPath = ""
			r := RunDomain(ctx, s, DomainConfig{Name: "astrology"})
			So(r.Status, ShouldEqual, StatusFailed)
			So(r.Kind, ShouldEqual, errkind.Configuration)
			So(server.RequestPath, ShouldEqual, "")
		})

		Convey("RunAll isolates a failing domain", func() {
			page, err := domainPage("fertility")
			So(err, ShouldBeNil)
			server.ResponseBody = []string{
				page,
				wbapi.TestErrorPage("120", "Invalid value", "The provided parameter value is not valid"),
			}
			results := RunAll(ctx, s, []DomainConfig{{Name: "fertility"}, {Name: "employment"}})
			So(len(results), ShouldEqual, 2)
			So(results[0].Domain, ShouldEqual, "fertility")
			So(results[0].Status, ShouldEqual, StatusOK)
			So(results[1].Domain, ShouldEqual, "employment")
			So(results[1].Status, ShouldEqual, StatusFailed)
			So(results[1].Kind, ShouldEqual, errkind.Fetch)
			So(results[0].RunID, ShouldEqual, results[1].RunID)
			So(Failed(results), ShouldEqual, 1)

			tables, err := s.Sink.Tables(ctx)
			So(err, ShouldBeNil)
			So(tables, ShouldResemble, []sink.Destination{{
				Schema:      fertility.Schema,
				Table:       fertility.Table,
				Description: fertility.Description,
			}})

			recs, err := s.History.List(ctx, history.Filter{
				RunID: results[0].RunID, Status: "failed"})
			So(err, ShouldBeNil)
			So(len(recs), ShouldEqual, 1)
			So(recs[0].Kind, ShouldEqual, "fetch")

			So(Summary(results).Rows, ShouldResemble, []table.Row{results[0], results[1]})
		})

		Convey("RunAll runs domains in parallel", func() {
			names := []string{"employment", "fertility", "electricity"}
			page, err := domainPage(names...)
			So(err, ShouldBeNil)
			server.ResponseBody = []string{page, page, page, page, page}
			s.Config.Workers = 2

			var domains []DomainConfig
			for _, n := range names {
				domains = append(domains, DomainConfig{Name: n})
			}
			results := RunAll(ctx, s, domains)
			So(len(results), ShouldEqual, len(names))
			for i, r := range results {
				e, err := catalog.Lookup(names[i])
				So(err, ShouldBeNil)
				So(r.Err, ShouldBeNil)
				So(r.Status, ShouldEqual, StatusOK)
				So(r.Domain, ShouldEqual, names[i])
				So(r.Destination, ShouldEqual, e.FullTable())
				So(r.Rows, ShouldEqual, 4)
				So(r.RunID, ShouldEqual, results[0].RunID)

				ds, err := s.Sink.ReadTable(ctx, sink.Destination{Schema: e.Schema, Table: e.Table})
				So(err, ShouldBeNil)
				So(ds.Columns, ShouldResemble, e.ColumnNames())
				So(len(ds.Rows), ShouldEqual, 4)
			}
			So(Failed(results), ShouldEqual, 0)
		})

		Convey("RunAll skips domains after cancellation", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			results := RunAll(cctx, s, []DomainConfig{{Name: "fertility"}, {Name: "education"}})
			So(len(results), ShouldEqual, 2)
			for _, r := range results {
				So(r.Status, ShouldEqual, StatusSkipped)
			}
			So(Failed(results), ShouldEqual, 2)
		})

		Convey("metrics count the runs", func() {
			page, err := domainPage("fertility")
			So(err, ShouldBeNil)
			server.ResponseBody = []string{page}
			RunDomain(ctx, s, DomainConfig{Name: "fertility"})
			RunDomain(ctx, s, DomainConfig{Name: "astrology"})

			mfs, err := s.Metrics.Registry.Gather()
			So(err, ShouldBeNil)
			values := make(map[string]float64)
			for _, mf := range mfs {
				for _, m := range mf.GetMetric() {
					switch {
					case m.GetCounter() != nil:
						values[mf.GetName()] += m.GetCounter().GetValue()
					case m.GetGauge() != nil:
						values[mf.GetName()] += m.GetGauge().GetValue()
					}
				}
			}
			So(values["wbindicators_domain_runs_total"], ShouldEqual, 2)
			So(values["wbindicators_domain_rows"], ShouldEqual, 4)
			So(values["wbindicators_api_requests_total"], ShouldEqual, 1)
		})
	})

	Convey("Result", t, func() {
		r := Result{
			Domain:      "education",
			Destination: "s.t",
			Duration:    1500 * time.Millisecond,
			Status:      StatusFailed,
			Kind:        errkind.Fetch,
			Err:         fmt.Errorf("timeout"),
		}
		So(r.CSV(), ShouldResemble, []string{
			"education", "s.t", "failed", "0", "1.5s", "fetch: timeout"})
		So(len(r.CSV()), ShouldEqual, len(ResultHeader))
		So(r.Record().Error, ShouldEqual, "timeout")
		So(r.Record().Kind, ShouldEqual, "fetch")

		Convey("with an annotated error", func() {
			r.Err = errkind.Mark(errkind.Fetch, errors.Reason("timeout"))
			So(r.CSV()[5], ShouldStartWith, "fetch: ERROR: ")
			So(r.CSV()[5], ShouldEndWith, "timeout")
			So(r.CSV()[5], ShouldContainSubstring, "pipeline_test.go:")
			So(r.Record().Error, ShouldEqual, r.Err.Error())
		})
	})
}
