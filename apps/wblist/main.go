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

package main

import (
	"context"
	"flag"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/wbindicators/catalog"
	"github.com/stockparfait/wbindicators/history"
	"github.com/stockparfait/wbindicators/pipeline"
	"github.com/stockparfait/wbindicators/sink"
	"github.com/stockparfait/wbindicators/table"
)

type Flags struct {
	Config   string // default: ~/.wbindicators/config.toml
	LogLevel logging.Level
	// Exactly one of catalog, tables, table or history must be present.
	Catalog bool
	Tables  bool
	Table   string // domain name or schema.table to print
	History bool
	Domain  string // filter catalog or history by domain
	Limit   int    // max. rows to print; 0 = all
	CSV     bool   // dump CSV format; default: text.
}

func parseFlags(args []string) (*Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("wblist", flag.ExitOnError)
	fs.StringVar(&flags.Config, "config", pipeline.DefaultConfigPath(),
		"configuration file")
	flags.LogLevel = logging.Info
	fs.Var(&flags.LogLevel, "log-level", "Log level: debug, info, warning, error")
	fs.BoolVar(&flags.Catalog, "catalog", false, "print the indicator catalog")
	fs.BoolVar(&flags.Tables, "tables", false, "print the destination tables")
	fs.StringVar(&flags.Table, "table", "",
		"print the contents of the domain's table or of schema.table")
	fs.BoolVar(&flags.History, "history", false, "print the run history")
	fs.StringVar(&flags.Domain, "domain", "", "only this domain in -catalog or -history")
	fs.IntVar(&flags.Limit, "limit", 0, "max. number of rows to print; default: all")
	fs.BoolVar(&flags.CSV, "csv", false, "print table in CSV format; default: text")

	err := fs.Parse(args)
	if err != nil {
		return nil, err
	}
	kinds := 0
	for _, b := range []bool{flags.Catalog, flags.Tables, flags.Table != "", flags.History} {
		if b {
			kinds++
		}
	}
	if kinds != 1 {
		return nil, errors.Reason(
			"expected exactly one of -catalog, -tables, -table or -history")
	}
	if flags.Limit < 0 {
		return nil, errors.Reason("-limit must be non-negative")
	}
	return &flags, nil
}

// CatalogHeader is the header of the catalog table, one row per indicator.
var CatalogHeader = []string{
	"Name", "Domain", "Destination", "Lookback", "Code", "Column"}

func catalogTable(domain string) (*table.Table, error) {
	entries := catalog.Domains()
	if domain != "" {
		e, err := catalog.Lookup(domain)
		if err != nil {
			return nil, err
		}
		entries = []catalog.Entry{*e}
	}
	tbl := table.NewTable(CatalogHeader...)
	for _, e := range entries {
		for _, ind := range e.Indicators {
			tbl.AddRow(table.Cells{
				e.Name, string(e.Domain), e.FullTable(), strconv.Itoa(e.Lookback),
				ind.Code, ind.Name,
			})
		}
	}
	return tbl, nil
}

func tablesTable(ctx context.Context, s sink.Sink) (*table.Table, error) {
	dests, err := s.Tables(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "failed to list tables")
	}
	tbl := table.NewTable("Schema", "Table", "Description")
	for _, d := range dests {
		tbl.AddRow(table.Cells{d.Schema, d.Table, d.Description})
	}
	return tbl, nil
}

// destination of a domain name or a schema.table reference.
func destination(name string) (sink.Destination, error) {
	if e, err := catalog.Lookup(name); err == nil {
		return sink.Destination{Schema: e.Schema, Table: e.Table}, nil
	}
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return sink.Destination{}, errors.Reason(
			"'%s' is neither a domain nor schema.table", name)
	}
	d := sink.Destination{Schema: parts[0], Table: parts[1]}
	if err := d.Validate(); err != nil {
		return sink.Destination{}, err
	}
	return d, nil
}

func contentsTable(ctx context.Context, s sink.Sink, name string) (*table.Table, error) {
	dest, err := destination(name)
	if err != nil {
		return nil, err
	}
	ds, err := s.ReadTable(ctx, dest)
	if err != nil {
		return nil, errors.Annotate(err, "failed to read %s", dest)
	}
	return table.FromDataset(ds), nil
}

func historyTable(ctx context.Context, store *history.Store, flags *Flags) (*table.Table, error) {
	if store == nil {
		return nil, errors.Reason("run history is not configured")
	}
	domain := flags.Domain
	if domain != "" {
		e, err := catalog.Lookup(domain)
		if err != nil {
			return nil, err
		}
		domain = e.Name
	}
	recs, err := store.List(ctx, history.Filter{Domain: domain, Limit: flags.Limit})
	if err != nil {
		return nil, errors.Annotate(err, "failed to read run history")
	}
	tbl := table.NewTable(history.Header...)
	for _, r := range recs {
		tbl.AddRow(r)
	}
	return tbl, nil
}

func printData(ctx context.Context, flags *Flags, w io.Writer) error {
	var tbl *table.Table
	var err error
	if flags.Catalog {
		if tbl, err = catalogTable(flags.Domain); err != nil {
			return errors.Annotate(err, "failed to list catalog")
		}
	} else {
		config, err := pipeline.ParseConfig(flags.Config)
		if err != nil {
			return errors.Annotate(err, "failed to parse config")
		}
		s, err := pipeline.Open(ctx, config)
		if err != nil {
			return errors.Annotate(err, "failed to open session")
		}
		defer s.Close()

		switch {
		case flags.Tables:
			tbl, err = tablesTable(ctx, s.Sink)
		case flags.Table != "":
			tbl, err = contentsTable(ctx, s.Sink, flags.Table)
		case flags.History:
			tbl, err = historyTable(ctx, s.History, flags)
		}
		if err != nil {
			return err
		}
	}
	if tbl == nil {
		return errors.Reason("no data")
	}
	if flags.CSV {
		if err := tbl.WriteCSV(w, table.Params{Rows: flags.Limit}); err != nil {
			return errors.Annotate(err, "failed to print CSV")
		}
		return nil
	}
	if err := tbl.WriteText(w, table.Params{Rows: flags.Limit}); err != nil {
		return errors.Annotate(err, "failed to print text")
	}
	return nil
}

func main() {
	ctx := context.Background()
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		ctx = logging.Use(ctx, logging.DefaultGoLogger(logging.Info))
		logging.Errorf(ctx, "failed to parse flags: %s", err.Error())
		os.Exit(1)
	}
	ctx = logging.Use(ctx, logging.DefaultGoLogger(flags.LogLevel))

	if err := printData(ctx, flags, os.Stdout); err != nil {
		logging.Errorf(ctx, "%s", err.Error())
		os.Exit(1)
	}
}
