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

// Package sink writes normalized datasets into destination tables.
//
// Two implementations are available: DuckDB, optionally backed by a DuckLake
// catalog, and a directory of Parquet files. Both replace a table atomically,
// so a failed write leaves the previous version intact.
package sink

import (
	"context"
	"strings"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/wbindicators/catalog"
	"github.com/stockparfait/wbindicators/dataset"
	"github.com/stockparfait/wbindicators/errkind"
)

// Mode of writing a table.
type Mode string

// Values of Mode. Only Overwrite is currently supported.
const (
	Overwrite = Mode("overwrite")
)

// Destination table.
type Destination struct {
	Schema      string
	Table       string
	Description string // optional table comment
}

func (d Destination) String() string {
	return d.Schema + "." + d.Table
}

// Validate the schema and table names.
func (d Destination) Validate() error {
	if !catalog.ValidIdentifier(d.Schema) {
		return errkind.Mark(errkind.Configuration, errors.Reason(
			"invalid schema name %q", d.Schema))
	}
	if !catalog.ValidIdentifier(d.Table) {
		return errkind.Mark(errkind.Configuration, errors.Reason("invalid table name %q", d.Table))
	}
	return nil
}

// Options of a write.
type Options struct {
	Mode Mode // default: Overwrite
	// AllowSchemaChange permits replacing a table whose columns differ from
	// the dataset's. Otherwise such a write fails with a SchemaMismatch error.
	AllowSchemaChange bool
}

// Sink is a destination store of datasets.
type Sink interface {
	// Write creates the destination schema if needed and replaces the table
	// contents with ds.
	Write(ctx context.Context, ds *dataset.Dataset, dest Destination, opts Options) error
	// ReadTable reads the whole table back, sorted by its key and year.
	ReadTable(ctx context.Context, dest Destination) (*dataset.Dataset, error)
	// Tables lists the existing tables.
	Tables(ctx context.Context) ([]Destination, error)
	Close() error
}

func checkWrite(ds *dataset.Dataset, dest Destination, opts Options) error {
	if err := dest.Validate(); err != nil {
		return err
	}
	if opts.Mode != "" && opts.Mode != Overwrite {
		return errkind.Mark(errkind.Configuration, errors.Reason(
			"unsupported write mode %q", opts.Mode))
	}
	if ds == nil {
		return errkind.Mark(errkind.Configuration, errors.Reason("no dataset to write to %s", dest))
	}
	seen := make(map[string]struct{})
	for _, c := range ds.Header() {
		if _, ok := seen[c]; ok {
			return errkind.Mark(errkind.SchemaMismatch, errors.Reason(
				"duplicate column %s", columnList(c)))
		}
		seen[c] = struct{}{}
	}
	return nil
}

// checkColumns fails when a table exists with columns other than the
// incoming ones, unless schema changes are allowed. Empty existing means no
// table.
func checkColumns(dest Destination, existing, incoming []string, allowChange bool) error {
	if len(existing) == 0 || allowChange {
		return nil
	}
	same := len(existing) == len(incoming)
	for i := 0; same && i < len(existing); i++ {
		same = existing[i] == incoming[i]
	}
	if same {
		return nil
	}
	return errkind.Mark(errkind.SchemaMismatch, errors.Reason(
		"%s has columns [%s], dataset has [%s]; set allow_schema_change to replace it",
		dest, columnList(existing...), columnList(incoming...)))
}

// columnList joins column names for an errors.Reason message. Reason formats
// the message twice, and column names may contain '%'.
func columnList(cols ...string) string {
	return strings.ReplaceAll(strings.Join(cols, ", "), "%", "%%")
}
