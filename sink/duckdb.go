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
	"context"
	"database/sql"
	"sync"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/wbindicators/dataset"
	"github.com/stockparfait/wbindicators/errkind"

	_ "github.com/duckdb/duckdb-go/v2"
)

// LakeCatalog is the name under which a DuckLake catalog is attached.
const LakeCatalog = "lake"

// DuckDBConfig configures the DuckDB sink.
type DuckDBConfig struct {
	// Path of the DuckDB database file; "" = in memory. With DuckLake, the
	// path of the SQLite metadata catalog.
	Path string
	// DuckLake attaches Path as a DuckLake catalog storing the table data as
	// Parquet files in DataPath.
	DuckLake bool
	DataPath string
}

// DuckDB is a Sink writing into DuckDB tables.
type DuckDB struct {
	db      *sql.DB
	catalog string // "" = the default database
	mu      sync.Mutex
}

var _ Sink = &DuckDB{}

// OpenDuckDB opens (or creates) the database.
func OpenDuckDB(ctx context.Context, cfg DuckDBConfig) (*DuckDB, error) {
	dsn := cfg.Path
	if cfg.DuckLake {
		if cfg.Path == "" || cfg.DataPath == "" {
			return nil, errkind.Mark(errkind.Configuration, errors.Reason(
				"DuckLake requires both the metadata path and the data path"))
		}
		dsn = ""
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open DuckDB '%s'", dsn)
	}
	s := &DuckDB{db: db}
	if cfg.DuckLake {
		stmts := []string{
			"INSTALL ducklake; LOAD ducklake;",
			"INSTALL sqlite; LOAD sqlite;",
			attachDuckLakeSQL(LakeCatalog, cfg.Path, cfg.DataPath),
		}
		for _, stmt := range stmts {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				db.Close()
				return nil, errors.Annotate(err, "DuckLake setup failed: %s", stmt)
			}
		}
		s.catalog = LakeCatalog
		logging.Infof(ctx, "attached DuckLake catalog %s (data: %s)", cfg.Path, cfg.DataPath)
	}
	return s, nil
}

// Close the database.
func (s *DuckDB) Close() error {
	return s.db.Close()
}

func (s *DuckDB) columns(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
}, dest Destination) ([]string, error) {
	rows, err := q.QueryContext(ctx, columnsSQL(s.catalog), dest.Schema, dest.Table)
	if err != nil {
		return nil, errors.Annotate(err, "failed to query columns of %s", dest)
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errors.Annotate(err, "failed to scan column name")
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// Write implements Sink. All the statements run in one transaction, so
// readers see either the old or the new table.
func (s *DuckDB) Write(ctx context.Context, ds *dataset.Dataset, dest Destination, opts Options) error {
	if err := checkWrite(ds, dest, opts); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Annotate(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createSchemaSQL(s.catalog, dest.Schema)); err != nil {
		return errors.Annotate(err, "failed to create schema %s", dest.Schema)
	}
	existing, err := s.columns(ctx, tx, dest)
	if err != nil {
		return err
	}
	if err := checkColumns(dest, existing, ds.Header(), opts.AllowSchemaChange); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(s.catalog, dest, ds)); err != nil {
		return errors.Annotate(err, "failed to create table %s", dest)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL(s.catalog, dest, ds))
	if err != nil {
		return errors.Annotate(err, "failed to prepare insert into %s", dest)
	}
	defer stmt.Close()
	args := make([]interface{}, len(ds.Columns)+2)
	for i, r := range ds.Rows {
		args[0], args[1] = r.Key, r.Year
		for j, v := range r.Values {
			if v == nil {
				args[j+2] = nil
			} else {
				args[j+2] = *v
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.Annotate(err, "failed to insert row %d into %s", i, dest)
		}
	}
	if dest.Description != "" {
		if _, err := tx.ExecContext(ctx, commentSQL(s.catalog, dest)); err != nil {
			return errors.Annotate(err, "failed to comment on %s", dest)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Annotate(err, "failed to commit %s", dest)
	}
	logging.Infof(ctx, "DuckDB: wrote %d rows into %s", len(ds.Rows), dest)
	return nil
}

// ReadTable implements Sink. The first column is the key, the second is the
// year.
func (s *DuckDB) ReadTable(ctx context.Context, dest Destination) (*dataset.Dataset, error) {
	if err := dest.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	header, err := s.columns(ctx, s.db, dest)
	if err != nil {
		return nil, err
	}
	if len(header) < 2 {
		return nil, errors.Reason("table %s does not exist", dest)
	}
	rows, err := s.db.QueryContext(ctx, selectSQL(s.catalog, dest, header))
	if err != nil {
		return nil, errors.Annotate(err, "failed to read %s", dest)
	}
	defer rows.Close()

	ds := &dataset.Dataset{KeyColumn: header[0], Columns: header[2:]}
	values := make([]sql.NullFloat64, len(ds.Columns))
	scanArgs := make([]interface{}, len(header))
	for rows.Next() {
		var r dataset.Row
		var year int64
		scanArgs[0], scanArgs[1] = &r.Key, &year
		for i := range values {
			scanArgs[i+2] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, errors.Annotate(err, "failed to scan row of %s", dest)
		}
		r.Year = int(year)
		r.Values = make([]*float64, len(values))
		for i, v := range values {
			if v.Valid {
				r.Values[i] = dataset.Float(v.Float64)
			}
		}
		ds.Rows = append(ds.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Annotate(err, "failed to read %s", dest)
	}
	return ds, nil
}

// Tables implements Sink.
func (s *DuckDB) Tables(ctx context.Context) ([]Destination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, tablesSQL(s.catalog))
	if err != nil {
		return nil, errors.Annotate(err, "failed to list tables")
	}
	defer rows.Close()
	var res []Destination
	for rows.Next() {
		var d Destination
		if err := rows.Scan(&d.Schema, &d.Table, &d.Description); err != nil {
			return nil, errors.Annotate(err, "failed to scan table name")
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
