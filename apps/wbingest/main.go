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
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/wbindicators/pipeline"
	"github.com/stockparfait/wbindicators/stats"
	"github.com/stockparfait/wbindicators/table"
)

type Flags struct {
	Config   string   // default: ~/.wbindicators/config.toml
	Domains  []string // default: from the config
	LogLevel logging.Level
	Schedule string // cron spec; run once when empty
	DryRun   bool   // fetch and normalize, print a preview, do not write
	CSV      bool   // print tables in CSV format; default: text.
}

func parseFlags(args []string) (*Flags, error) {
	var flags Flags
	var domains string
	fs := flag.NewFlagSet("wbingest", flag.ExitOnError)
	fs.StringVar(&flags.Config, "config", pipeline.DefaultConfigPath(),
		"configuration file")
	fs.StringVar(&domains, "domains", "",
		"comma-separated domains to run; default: as configured")
	flags.LogLevel = logging.Info
	fs.Var(&flags.LogLevel, "log-level", "Log level: debug, info, warning, error")
	fs.StringVar(&flags.Schedule, "schedule", "",
		"cron schedule to run on, e.g. \"0 3 * * 1\"; default: run once")
	fs.BoolVar(&flags.DryRun, "dry-run", false,
		"fetch and normalize only, print a summary of the data")
	fs.BoolVar(&flags.CSV, "csv", false, "print tables in CSV format; default: text")

	err := fs.Parse(args)
	if err != nil {
		return nil, err
	}
	for _, d := range strings.Split(domains, ",") {
		if d = strings.TrimSpace(d); d != "" {
			flags.Domains = append(flags.Domains, d)
		}
	}
	if flags.Schedule != "" {
		if flags.DryRun {
			return nil, errors.Reason("-schedule and -dry-run are incompatible")
		}
		if _, err := cron.ParseStandard(flags.Schedule); err != nil {
			return nil, errors.Annotate(err, "invalid -schedule")
		}
	}
	return &flags, nil
}

func printTable(tbl *table.Table, flags *Flags, w io.Writer) error {
	if flags.CSV {
		if err := tbl.WriteCSV(w, table.Params{}); err != nil {
			return errors.Annotate(err, "failed to print CSV")
		}
		return nil
	}
	if err := tbl.WriteText(w, table.Params{MaxColWidth: 80}); err != nil {
		return errors.Annotate(err, "failed to print text")
	}
	return nil
}

// ingest runs the domains once and prints the summary.
func ingest(ctx context.Context, config *pipeline.Config, domains []pipeline.DomainConfig, flags *Flags, w io.Writer) error {
	s, err := pipeline.Open(ctx, config)
	if err != nil {
		return errors.Annotate(err, "failed to open session")
	}
	defer s.Close()

	results := pipeline.RunAll(ctx, s, domains)
	if err := printTable(pipeline.Summary(results), flags, w); err != nil {
		return err
	}
	if n := pipeline.Failed(results); n > 0 {
		return errors.Reason("%d of %d domains did not succeed", n, len(results))
	}
	return nil
}

type previewRow struct {
	domain string
	stats.Summary
}

func (r previewRow) CSV() []string {
	return append([]string{r.domain}, r.Summary.CSV()...)
}

// preview fetches and normalizes the domains without writing anything, and
// prints a summary of each column.
func preview(ctx context.Context, config *pipeline.Config, domains []pipeline.DomainConfig, flags *Flags, w io.Writer) error {
	c := *config
	c.Sink = pipeline.SinkConfig{Kind: pipeline.SinkDuckDB}
	c.History = ""
	c.Metrics = ""
	s, err := pipeline.Open(ctx, &c)
	if err != nil {
		return errors.Annotate(err, "failed to open session")
	}
	defer s.Close()

	tbl := table.NewTable(append([]string{"Domain"}, stats.SummaryHeader...)...)
	failed := 0
	for _, dc := range domains {
		e, ds, err := pipeline.Prepare(ctx, s, dc)
		if err != nil {
			logging.Errorf(ctx, "%s: %s", dc.Name, err.Error())
			failed++
			continue
		}
		logging.Infof(ctx, "%s: %d rows for %d economies would be written to %s",
			e.Name, len(ds.Rows), stats.Economies(ds), e.FullTable())
		for _, sm := range stats.Summarize(ds) {
			tbl.AddRow(previewRow{domain: e.Name, Summary: sm})
		}
	}
	if err := printTable(tbl, flags, w); err != nil {
		return err
	}
	if failed > 0 {
		return errors.Reason("%d of %d domains failed", failed, len(domains))
	}
	return nil
}

// schedule runs the domains on the cron schedule until ctx is cancelled. A
// run still in progress delays the next one.
func schedule(ctx context.Context, config *pipeline.Config, domains []pipeline.DomainConfig, flags *Flags, w io.Writer) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(flags.Schedule, func() {
		if err := ingest(ctx, config, domains, flags, w); err != nil {
			logging.Errorf(ctx, "scheduled run: %s", err.Error())
		}
	})
	if err != nil {
		return errors.Annotate(err, "invalid schedule '%s'", flags.Schedule)
	}
	c.Start()
	logging.Infof(ctx, "running %d domains on schedule '%s'", len(domains), flags.Schedule)
	<-ctx.Done()
	<-c.Stop().Done()
	logging.Infof(ctx, "scheduler stopped")
	return nil
}

func run(ctx context.Context, flags *Flags, w io.Writer) error {
	config, err := pipeline.ParseConfig(flags.Config)
	if err != nil {
		return errors.Annotate(err, "failed to parse config")
	}
	domains, err := config.Select(flags.Domains...)
	if err != nil {
		return errors.Annotate(err, "failed to select domains")
	}
	switch {
	case flags.DryRun:
		return preview(ctx, config, domains, flags, w)
	case flags.Schedule != "":
		return schedule(ctx, config, domains, flags, w)
	default:
		return ingest(ctx, config, domains, flags, w)
	}
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
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags, os.Stdout); err != nil {
		logging.Errorf(ctx, "%s", err.Error())
		stop()
		os.Exit(1)
	}
}
