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
	"os"
	"path/filepath"
	"testing"

	"github.com/stockparfait/wbindicators/dataset"
	"github.com/stockparfait/wbindicators/errkind"

	. "github.com/smartystreets/goconvey/convey"
)

func testDataset() *dataset.Dataset {
	return &dataset.Dataset{
		KeyColumn: dataset.KeyColumn,
		Columns:   []string{"GDP_USD", "GDP_Growth_Annual_%"},
		Rows: []dataset.Row{
			{Key: "ARG", Year: 2019, Values: []*float64{dataset.Float(4.5e11), nil}},
			{Key: "ARG", Year: 2020, Values: []*float64{dataset.Float(3.9e11), dataset.Float(-9.9)}},
			{Key: "USA", Year: 2020, Values: []*float64{nil, dataset.Float(-2.2)}},
		},
	}
}

// sinkContract is the behavior expected of every Sink.
func sinkContract(ctx context.Context, s Sink) {
	dest := Destination{
		Schema:      "World_Bank_Economic_Statistics_Database",
		Table:       "country_economic_indicators",
		Description: "Economic indicators sourced from World Bank API",
	}
	ds := testDataset()

	Convey("creates the schema and writes the table", func() {
		So(s.Write(ctx, ds, dest, Options{}), ShouldBeNil)
		got, err := s.ReadTable(ctx, dest)
		So(err, ShouldBeNil)
		So(got, ShouldResemble, ds)

		tables, err := s.Tables(ctx)
		So(err, ShouldBeNil)
		So(tables, ShouldResemble, []Destination{dest})
	})

	Convey("overwrite twice leaves the same table", func() {
		So(s.Write(ctx, ds, dest, Options{Mode: Overwrite}), ShouldBeNil)
		first, err := s.ReadTable(ctx, dest)
		So(err, ShouldBeNil)
		So(s.Write(ctx, ds, dest, Options{Mode: Overwrite}), ShouldBeNil)
		second, err := s.ReadTable(ctx, dest)
		So(err, ShouldBeNil)
		So(second, ShouldResemble, first)
	})

	Convey("overwrite replaces all the rows", func() {
		So(s.Write(ctx, ds, dest, Options{}), ShouldBeNil)
		ds2 := testDataset()
		ds2.Rows = ds2.Rows[2:]
		So(s.Write(ctx, ds2, dest, Options{}), ShouldBeNil)
		got, err := s.ReadTable(ctx, dest)
		So(err, ShouldBeNil)
		So(got, ShouldResemble, ds2)
	})

	Convey("schema change", func() {
		So(s.Write(ctx, ds, dest, Options{}), ShouldBeNil)
		wider := testDataset()
		wider.Columns = append(wider.Columns, "GDP_PPP")
		for i := range wider.Rows {
			wider.Rows[i].Values = append(wider.Rows[i].Values, dataset.Float(1))
		}

		Convey("is rejected by default and keeps the old table", func() {
			err := s.Write(ctx, wider, dest, Options{})
			So(errkind.Of(err), ShouldEqual, errkind.SchemaMismatch)
			So(err.Error(), ShouldContainSubstring, "sink/sink.go:")
			got, err := s.ReadTable(ctx, dest)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, ds)
		})

		Convey("is allowed with the flag", func() {
			So(s.Write(ctx, wider, dest, Options{AllowSchemaChange: true}), ShouldBeNil)
			got, err := s.ReadTable(ctx, dest)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, wider)
		})
	})

	Convey("rejects bad arguments", func() {
		err := s.Write(ctx, ds, Destination{Schema: "x; drop", Table: "t"}, Options{})
		So(errkind.Of(err), ShouldEqual, errkind.Configuration)
		err = s.Write(ctx, ds, dest, Options{Mode: "append"})
		So(errkind.Of(err), ShouldEqual, errkind.Configuration)
		err = s.Write(ctx, nil, dest, Options{})
		So(errkind.Of(err), ShouldEqual, errkind.Configuration)
	})

	Convey("reading a missing table fails", func() {
		_, err := s.ReadTable(ctx, Destination{Schema: "nope", Table: "nope"})
		So(err, ShouldNotBeNil)
	})
}

func TestSink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tmpdir, tmpdirErr := os.MkdirTemp("", "test_sink")
	defer os.RemoveAll(tmpdir)

	Convey("Setup succeeded", t, func() {
		So(tmpdirErr, ShouldBeNil)
	})

	Convey("SQL builders", t, func() {
		So(quoteIdentifier(`GDP_Growth_Annual_%`), ShouldEqual, `"GDP_Growth_Annual_%"`)
		So(quoteIdentifier(`a"b`), ShouldEqual, `"a""b"`)
		So(quoteLiteral(`it's`), ShouldEqual, `'it''s'`)
		dest := Destination{Schema: "s", Table: "t", Description: "d"}
		ds := &dataset.Dataset{KeyColumn: "Country_Code", Columns: []string{"A_%"}}
		So(createTableSQL("", dest, ds), ShouldEqual,
			`CREATE OR REPLACE TABLE "s"."t" ("Country_Code" VARCHAR, "Year" INTEGER, "A_%" DOUBLE)`)
		So(insertSQL("lake", dest, ds), ShouldEqual,
			`INSERT INTO "lake"."s"."t" ("Country_Code", "Year", "A_%") VALUES (?, ?, ?)`)
		So(createSchemaSQL("lake", "s"), ShouldEqual, `CREATE SCHEMA IF NOT EXISTS "lake"."s"`)
		So(commentSQL("", dest), ShouldEqual, `COMMENT ON TABLE "s"."t" IS 'd'`)
		So(attachDuckLakeSQL("lake", "/m/meta.sqlite", "/d/"), ShouldEqual,
			`ATTACH 'ducklake:sqlite:/m/meta.sqlite' AS "lake" (DATA_PATH '/d/')`)
	})

	Convey("checkColumns", t, func() {
		dest := Destination{Schema: "s", Table: "t"}
		So(checkColumns(dest, nil, []string{"a"}, false), ShouldBeNil)
		So(checkColumns(dest, []string{"a", "b"}, []string{"a", "b"}, false), ShouldBeNil)
		So(errkind.Of(checkColumns(dest, []string{"a", "b"}, []string{"b", "a"}, false)),
			ShouldEqual, errkind.SchemaMismatch)
		So(checkColumns(dest, []string{"a"}, []string{"a", "b"}, true), ShouldBeNil)

		Convey("column names with percent signs", func() {
			err := checkColumns(dest, []string{"GDP_Growth_Annual_%"},
				[]string{"GDP_Growth_Annual_%", "Inflation_CPI_%"}, false)
			So(errkind.Of(err), ShouldEqual, errkind.SchemaMismatch)
			So(err.Error(), ShouldContainSubstring,
				"s.t has columns [GDP_Growth_Annual_%], dataset has [GDP_Growth_Annual_%, Inflation_CPI_%]")
			So(err.Error(), ShouldNotContainSubstring, "%!")
			So(err.Error(), ShouldContainSubstring, "sink/sink.go:")
		})
	})

	Convey("DuckDB sink", t, func() {
		s, err := OpenDuckDB(ctx, DuckDBConfig{})
		So(err, ShouldBeNil)
		defer s.Close()
		sinkContract(ctx, s)
	})

	Convey("DuckDB sink persists to a file", t, func() {
		path := filepath.Join(tmpdir, "persist.duckdb")
		s, err := OpenDuckDB(ctx, DuckDBConfig{Path: path})
		So(err, ShouldBeNil)
		dest := Destination{Schema: "s", Table: "t"}
		So(s.Write(ctx, testDataset(), dest, Options{}), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		s, err = OpenDuckDB(ctx, DuckDBConfig{Path: path})
		So(err, ShouldBeNil)
		defer s.Close()
		got, err := s.ReadTable(ctx, dest)
		So(err, ShouldBeNil)
		So(got, ShouldResemble, testDataset())
		os.Remove(path)
	})

	Convey("DuckLake requires both paths", t, func() {
		_, err := OpenDuckDB(ctx, DuckDBConfig{DuckLake: true, Path: "meta.sqlite"})
		So(errkind.Of(err), ShouldEqual, errkind.Configuration)
	})

	Convey("Parquet sink", t, func() {
		root, err := os.MkdirTemp(tmpdir, "parquet")
		So(err, ShouldBeNil)
		s := NewParquet(root)
		defer s.Close()
		sinkContract(ctx, s)
	})
}
