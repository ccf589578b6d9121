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

package sink

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/wbindicators/dataset"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

const (
	parquetExt         = ".parquet"
	descriptionMetaKey = "description"
)

// Parquet is a Sink storing each table as <root>/<schema>/<table>.parquet.
type Parquet struct {
	root string
	mem  memory.Allocator
}

var _ Sink = &Parquet{}

// NewParquet creates a Parquet sink rooted at the directory.
func NewParquet(root string) *Parquet {
	return &Parquet{root: root, mem: memory.NewGoAllocator()}
}

// Close implements Sink.
func (p *Parquet) Close() error { return nil }

func (p *Parquet) path(dest Destination) string {
	return filepath.Join(p.root, dest.Schema, dest.Table+parquetExt)
}

func arrowSchema(ds *dataset.Dataset, description string) *arrow.Schema {
	fields := []arrow.Field{
		{Name: ds.KeyColumn, Type: arrow.BinaryTypes.String},
		{Name: dataset.YearColumn, Type: arrow.PrimitiveTypes.Int64},
	}
	for _, c := range ds.Columns {
		fields = append(fields, arrow.Field{Name: c, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
	}
	var md *arrow.Metadata
	if description != "" {
		m := arrow.NewMetadata([]string{descriptionMetaKey}, []string{description})
		md = &m
	}
	return arrow.NewSchema(fields, md)
}

func (p *Parquet) record(ds *dataset.Dataset, schema *arrow.Schema) arrow.Record {
	keys := array.NewStringBuilder(p.mem)
	defer keys.Release()
	years := array.NewInt64Builder(p.mem)
	defer years.Release()
	values := make([]*array.Float64Builder, len(ds.Columns))
	for i := range values {
		values[i] = array.NewFloat64Builder(p.mem)
		defer values[i].Release()
	}
	for _, r := range ds.Rows {
		keys.Append(r.Key)
		years.Append(int64(r.Year))
		for i, v := range r.Values {
			if v == nil {
				values[i].AppendNull()
			} else {
				values[i].Append(*v)
			}
		}
	}
	cols := []arrow.Array{keys.NewArray(), years.NewArray()}
	for _, b := range values {
		cols = append(cols, b.NewArray())
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()
	return array.NewRecord(schema, cols, int64(len(ds.Rows)))
}

// readTable reads the whole Parquet file. The caller must release the table.
func (p *Parquet) readTable(ctx context.Context, path string) (arrow.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tbl, err := pqarrow.ReadTable(ctx, f, parquet.NewReaderProperties(p.mem),
		pqarrow.ArrowReadProperties{}, p.mem)
	if err != nil {
		return nil, errors.Annotate(err, "failed to read %s", path)
	}
	return tbl, nil
}

func fieldNames(s *arrow.Schema) []string {
	res := make([]string, len(s.Fields()))
	for i, f := range s.Fields() {
		res[i] = f.Name
	}
	return res
}

// Write implements Sink. The file is written under a temporary name and then
// renamed over the previous version.
func (p *Parquet) Write(ctx context.Context, ds *dataset.Dataset, dest Destination, opts Options) error {
	if err := checkWrite(ds, dest, opts); err != nil {
		return err
	}
	path := p.path(dest)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Annotate(err, "failed to create schema directory for %s", dest)
	}
	tbl, err := p.readTable(ctx, path)
	switch {
	case err == nil:
		existing := fieldNames(tbl.Schema())
		tbl.Release()
		if err := checkColumns(dest, existing, ds.Header(), opts.AllowSchemaChange); err != nil {
			return err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return errors.Annotate(err, "failed to check the existing table %s", dest)
	}

	schema := arrowSchema(ds, dest.Description)
	rec := p.record(ds, schema)
	defer rec.Release()

	var buf bytes.Buffer
	w, err := pqarrow.NewFileWriter(schema, &buf, parquet.NewWriterProperties(),
		pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return errors.Annotate(err, "failed to create Parquet writer")
	}
	if err := w.Write(rec); err != nil {
		return errors.Annotate(err, "failed to write %s", dest)
	}
	if err := w.Close(); err != nil {
		return errors.Annotate(err, "failed to finalize %s", dest)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+dest.Table+".*.tmp")
	if err != nil {
		return errors.Annotate(err, "failed to create temporary file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return errors.Annotate(err, "failed to write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Annotate(err, "failed to close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Annotate(err, "failed to replace %s", path)
	}
	logging.Infof(ctx, "Parquet: wrote %d rows into %s", len(ds.Rows), path)
	return nil
}

// ReadTable implements Sink.
func (p *Parquet) ReadTable(ctx context.Context, dest Destination) (*dataset.Dataset, error) {
	if err := dest.Validate(); err != nil {
		return nil, err
	}
	tbl, err := p.readTable(ctx, p.path(dest))
	if err != nil {
		return nil, errors.Annotate(err, "failed to read table %s", dest)
	}
	defer tbl.Release()

	header := fieldNames(tbl.Schema())
	if len(header) < 2 {
		return nil, errors.Reason("table %s has too few columns: %v", dest, header)
	}
	ds := &dataset.Dataset{KeyColumn: header[0], Columns: header[2:]}
	ds.Rows = make([]dataset.Row, int(tbl.NumRows()))
	for i := range ds.Rows {
		ds.Rows[i].Values = make([]*float64, len(ds.Columns))
	}
	for c := 0; c < int(tbl.NumCols()); c++ {
		row := 0
		for _, chunk := range tbl.Column(c).Data().Chunks() {
			for i := 0; i < chunk.Len(); i++ {
				r := &ds.Rows[row]
				row++
				switch a := chunk.(type) {
				case *array.String:
					r.Key = a.Value(i)
				case *array.Int64:
					r.Year = int(a.Value(i))
				case *array.Float64:
					if !a.IsNull(i) {
						r.Values[c-2] = dataset.Float(a.Value(i))
					}
				default:
					return nil, errors.Reason("unexpected column type %s in %s",
						chunk.DataType(), dest)
				}
			}
		}
	}
	return ds, nil
}

// Tables implements Sink.
func (p *Parquet) Tables(ctx context.Context) ([]Destination, error) {
	matches, err := filepath.Glob(filepath.Join(p.root, "*", "*"+parquetExt))
	if err != nil {
		return nil, errors.Annotate(err, "failed to list %s", p.root)
	}
	sort.Strings(matches)
	var res []Destination
	for _, m := range matches {
		d := Destination{
			Schema: filepath.Base(filepath.Dir(m)),
			Table:  strings.TrimSuffix(filepath.Base(m), parquetExt),
		}
		if tbl, err := p.readTable(ctx, m); err == nil {
			if i := tbl.Schema().Metadata().FindKey(descriptionMetaKey); i >= 0 {
				d.Description = tbl.Schema().Metadata().Values()[i]
			}
			tbl.Release()
		} else {
			logging.Warningf(ctx, "skipping unreadable %s: %s", m, err.Error())
			continue
		}
		res = append(res, d)
	}
	return res, nil
}
