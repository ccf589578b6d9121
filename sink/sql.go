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
	"fmt"
	"strings"

	"github.com/stockparfait/wbindicators/dataset"
)

// quoteIdentifier always quotes: display names contain characters like '%'.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// qualifiedName is [catalog.]schema.table, quoted.
func qualifiedName(catalogName string, dest Destination) string {
	name := quoteIdentifier(dest.Schema) + "." + quoteIdentifier(dest.Table)
	if catalogName != "" {
		name = quoteIdentifier(catalogName) + "." + name
	}
	return name
}

func createSchemaSQL(catalogName, schema string) string {
	name := quoteIdentifier(schema)
	if catalogName != "" {
		name = quoteIdentifier(catalogName) + "." + name
	}
	return "CREATE SCHEMA IF NOT EXISTS " + name
}

func createTableSQL(catalogName string, dest Destination, ds *dataset.Dataset) string {
	cols := []string{
		quoteIdentifier(ds.KeyColumn) + " VARCHAR",
		quoteIdentifier(dataset.YearColumn) + " INTEGER",
	}
	for _, c := range ds.Columns {
		cols = append(cols, quoteIdentifier(c)+" DOUBLE")
	}
	return fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)",
		qualifiedName(catalogName, dest), strings.Join(cols, ", "))
}

func insertSQL(catalogName string, dest Destination, ds *dataset.Dataset) string {
	header := ds.Header()
	cols := make([]string, len(header))
	params := make([]string, len(header))
	for i, c := range header {
		cols[i] = quoteIdentifier(c)
		params[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualifiedName(catalogName, dest), strings.Join(cols, ", "), strings.Join(params, ", "))
}

func commentSQL(catalogName string, dest Destination) string {
	return fmt.Sprintf("COMMENT ON TABLE %s IS %s",
		qualifiedName(catalogName, dest), quoteLiteral(dest.Description))
}

// catalogExpr is the SQL expression selecting the catalog in system views.
func catalogExpr(catalogName string) string {
	if catalogName == "" {
		return "current_database()"
	}
	return quoteLiteral(catalogName)
}

func columnsSQL(catalogName string) string {
	return "SELECT column_name FROM information_schema.columns " +
		"WHERE table_catalog = " + catalogExpr(catalogName) +
		" AND table_schema = ? AND table_name = ? ORDER BY ordinal_position"
}

func tablesSQL(catalogName string) string {
	return "SELECT schema_name, table_name, COALESCE(comment, '') FROM duckdb_tables() " +
		"WHERE database_name = " + catalogExpr(catalogName) +
		" ORDER BY schema_name, table_name"
}

func selectSQL(catalogName string, dest Destination, header []string) string {
	cols := make([]string, len(header))
	for i, c := range header {
		cols[i] = quoteIdentifier(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY 1, 2",
		strings.Join(cols, ", "), qualifiedName(catalogName, dest))
}

func attachDuckLakeSQL(catalogName, metadataPath, dataPath string) string {
	return fmt.Sprintf("ATTACH %s AS %s (DATA_PATH %s)",
		quoteLiteral("ducklake:sqlite:"+metadataPath),
		quoteIdentifier(catalogName),
		quoteLiteral(dataPath))
}
