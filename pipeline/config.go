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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/wbindicators/catalog"
	"github.com/stockparfait/wbindicators/errkind"
	"github.com/stockparfait/wbindicators/wbapi"

	toml "github.com/pelletier/go-toml/v2"
)

// Sink kinds.
const (
	SinkDuckDB   = "duckdb"
	SinkDuckLake = "ducklake"
	SinkParquet  = "parquet"
)

// RetryConfig of the API requests.
type RetryConfig struct {
	Attempts       int     `toml:"attempts"`         // default: 3
	InitialDelayMs int     `toml:"initial_delay_ms"` // default: 1000
	Multiplier     float64 `toml:"multiplier"`       // default: 2.0
	TimeoutSec     int     `toml:"timeout_sec"`      // per attempt; default: 60
}

// Policy converts the config to the client's retry policy.
func (r RetryConfig) Policy() wbapi.RetryPolicy {
	return wbapi.RetryPolicy{
		Attempts:     r.Attempts,
		InitialDelay: time.Duration(r.InitialDelayMs) * time.Millisecond,
		Multiplier:   r.Multiplier,
		Timeout:      time.Duration(r.TimeoutSec) * time.Second,
	}
}

// SinkConfig selects and configures the destination store.
type SinkConfig struct {
	Kind string `toml:"kind"` // duckdb (default), ducklake or parquet
	// DuckDB file, DuckLake metadata catalog or Parquet root directory. Empty
	// DuckDB path is an in-memory database.
	Path     string `toml:"path"`
	DataPath string `toml:"data_path"` // DuckLake data files
}

// DomainConfig selects a catalog entry to run, with optional overrides.
type DomainConfig struct {
	Name              string `toml:"name"`
	Lookback          int    `toml:"lookback"` // 0 = catalog default
	AllowSchemaChange *bool  `toml:"allow_schema_change"`
}

// Config of the pipeline.
type Config struct {
	APIURL            string  `toml:"api_url"`
	PerPage           int     `toml:"per_page"`
	MaxSeriesPerQuery int     `toml:"max_series_per_query"`
	Workers           int     `toml:"workers"`       // parallel domains
	FetchWorkers      int     `toml:"fetch_workers"` // parallel series batches per domain
	RequestsPerSecond float64 `toml:"requests_per_second"`
	AllowSchemaChange bool    `toml:"allow_schema_change"`
	History           string  `toml:"history"` // run history DB; "" = none
	Metrics           string  `toml:"metrics"` // metrics textfile; "" = none

	Retry   RetryConfig    `toml:"retry"`
	Sink    SinkConfig     `toml:"sink"`
	Domains []DomainConfig `toml:"domains"` // default: the whole catalog
}

// SampleConfig is printed when the config file is missing.
const SampleConfig = `per_page = 1000
workers = 1
fetch_workers = 4
requests_per_second = 5.0
allow_schema_change = false
history = "~/.wbindicators/history.db"
metrics = "~/.wbindicators/metrics.prom"

[retry]
attempts = 3
initial_delay_ms = 1000
multiplier = 2.0
timeout_sec = 60

[sink]
kind = "duckdb"
path = "~/.wbindicators/lake.duckdb"

[[domains]]
name = "demographics"
lookback = 50
`

// DefaultConfigPath is ~/.wbindicators/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(os.Getenv("HOME"), ".wbindicators", "config.toml")
}

// ExpandHome replaces the leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		return filepath.Join(os.Getenv("HOME"), path[1:])
	}
	return path
}

func (c *Config) setDefaults() {
	if c.APIURL == "" {
		c.APIURL = wbapi.URL
	}
	if c.PerPage == 0 {
		c.PerPage = wbapi.DefaultPerPage
	}
	if c.MaxSeriesPerQuery == 0 {
		c.MaxSeriesPerQuery = wbapi.DefaultMaxSeriesPerQuery
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.FetchWorkers == 0 {
		c.FetchWorkers = 1
	}
	d := wbapi.DefaultRetryPolicy()
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = d.Attempts
	}
	if c.Retry.InitialDelayMs == 0 {
		c.Retry.InitialDelayMs = int(d.InitialDelay / time.Millisecond)
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = d.Multiplier
	}
	if c.Retry.TimeoutSec == 0 {
		c.Retry.TimeoutSec = int(d.Timeout / time.Second)
	}
	if c.Sink.Kind == "" {
		c.Sink.Kind = SinkDuckDB
	}
	c.Sink.Path = ExpandHome(c.Sink.Path)
	c.Sink.DataPath = ExpandHome(c.Sink.DataPath)
	c.History = ExpandHome(c.History)
	c.Metrics = ExpandHome(c.Metrics)
}

// Init sets the default values and validates the config.
func (c *Config) Init() error {
	c.setDefaults()
	return c.Validate()
}

// Validate the config. All errors are Configuration errors.
func (c *Config) Validate() error {
	cfgErr := func(format string, args ...interface{}) error {
		return errkind.Mark(errkind.Configuration, errors.Reason(format, args...))
	}
	if c.PerPage < 1 || c.PerPage > wbapi.MaxPerPage {
		return cfgErr("per_page = %d must be in [1..%d]", c.PerPage, wbapi.MaxPerPage)
	}
	if c.MaxSeriesPerQuery < 1 {
		return cfgErr("max_series_per_query = %d must be positive", c.MaxSeriesPerQuery)
	}
	if c.Workers < 1 {
		return cfgErr("workers = %d must be positive", c.Workers)
	}
	if c.FetchWorkers < 1 {
		return cfgErr("fetch_workers = %d must be positive", c.FetchWorkers)
	}
	if c.RequestsPerSecond < 0 {
		return cfgErr("requests_per_second = %g must be non-negative", c.RequestsPerSecond)
	}
	if c.Retry.Attempts < 1 {
		return cfgErr("retry.attempts = %d must be positive", c.Retry.Attempts)
	}
	if c.Retry.InitialDelayMs < 0 || c.Retry.TimeoutSec < 0 {
		return cfgErr("retry delays must be non-negative")
	}
	if c.Retry.Multiplier < 1.0 {
		return cfgErr("retry.multiplier = %g must be >= 1", c.Retry.Multiplier)
	}
	switch c.Sink.Kind {
	case SinkDuckDB:
	case SinkDuckLake:
		if c.Sink.Path == "" || c.Sink.DataPath == "" {
			return cfgErr("sink kind %s requires path and data_path", c.Sink.Kind)
		}
	case SinkParquet:
		if c.Sink.Path == "" {
			return cfgErr("sink kind %s requires path", c.Sink.Kind)
		}
	default:
		return cfgErr("unknown sink kind '%s'; expected one of %s, %s, %s",
			c.Sink.Kind, SinkDuckDB, SinkDuckLake, SinkParquet)
	}
	seen := make(map[string]struct{})
	for _, d := range c.Domains {
		e, err := catalog.Lookup(d.Name)
		if err != nil {
			return err
		}
		if _, ok := seen[e.Name]; ok {
			return cfgErr("domain %s is listed more than once", e.Name)
		}
		seen[e.Name] = struct{}{}
		if d.Lookback < 0 {
			return cfgErr("domain %s: lookback = %d must be non-negative", e.Name, d.Lookback)
		}
	}
	return nil
}

// Select the domains to run, by name. With no names, these are the domains in
// the config, or else the whole catalog in its order. Domains named but not in
// the config run with the catalog defaults.
func (c *Config) Select(names ...string) ([]DomainConfig, error) {
	configured := make(map[string]DomainConfig)
	for _, d := range c.Domains {
		configured[strings.ToLower(d.Name)] = d
	}
	if len(names) == 0 {
		if len(c.Domains) > 0 {
			return append([]DomainConfig(nil), c.Domains...), nil
		}
		entries := catalog.Domains()
		names = make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name
		}
	}
	res := make([]DomainConfig, 0, len(names))
	seen := make(map[string]struct{})
	for _, n := range names {
		e, err := catalog.Lookup(n)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[e.Name]; ok {
			return nil, errkind.Mark(errkind.Configuration, errors.Reason(
				"domain %s is selected more than once", e.Name))
		}
		seen[e.Name] = struct{}{}
		d, ok := configured[e.Name]
		if !ok {
			d = DomainConfig{Name: e.Name}
		}
		res = append(res, d)
	}
	return res, nil
}

// ParseConfig reads the TOML config file, sets the defaults and validates it.
func ParseConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errkind.Mark(errkind.Configuration, errors.Annotate(err,
				"config file '%s' does not exist.\nPlease create config file containing:\n%s",
				path, SampleConfig))
		}
		return nil, errkind.Mark(errkind.Configuration, errors.Annotate(err,
			"cannot check config file for existence: '%s'", path))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errkind.Mark(errkind.Configuration, errors.Annotate(
			err, "failed to open config file %s", path))
	}
	defer f.Close()

	d := toml.NewDecoder(f)
	d.DisallowUnknownFields()
	var c Config
	if err := d.Decode(&c); err != nil {
		return nil, errkind.Mark(errkind.Configuration, errors.Annotate(
			err, "failed to read config file %s", path))
	}
	if err := c.Init(); err != nil {
		return nil, errors.Annotate(err, "invalid config file %s", path)
	}
	return &c, nil
}
