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

package table

import (
	"bytes"
	"testing"

	"github.com/stockparfait/wbindicators/dataset"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTable(t *testing.T) {
	t.Parallel()

	Convey("Table methods work", t, func() {
		t := NewTable("Domain", "Status")
		headless := NewTable()

		So(t.Header, ShouldResemble, []string{"Domain", "Status"})
		t.AddRow(Cells{"fertility", "ok"}, Cells{"education", "failed"})
		headless.AddRow(Cells{"fertility", "ok"}, Cells{"education", "failed"})

		Convey("WriteCSV", func() {
			Convey("Default Params", func() {
				var buf bytes.Buffer
				So(t.WriteCSV(&buf, Params{}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
Domain,Status
fertility,ok
education,failed
`)
			})

			Convey("Limited rows, no header", func() {
				var buf bytes.Buffer
				So(t.WriteCSV(&buf, Params{Rows: 1, NoHeader: true}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
fertility,ok
`)
			})
		})

		Convey("WriteText", func() {
			Convey("Default Params", func() {
				var buf bytes.Buffer
				So(t.WriteText(&buf, Params{}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
   Domain | Status
--------- | ------
fertility |     ok
education | failed
`)
			})

			Convey("Default Params, headless", func() {
				var buf bytes.Buffer
				So(headless.WriteText(&buf, Params{}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
fertility |     ok
education | failed
`)
			})

			Convey("Limited rows and width, no header", func() {
				var buf bytes.Buffer
				So(t.WriteText(&buf, Params{Rows: 1, NoHeader: true, MaxColWidth: 4}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
fe.. |   ok
`)
			})

			Convey("Wide characters", func() {
				wide := NewTable("Name", "Code")
				wide.AddRow(Cells{"日本", "JPN"}, Cells{"Chad", "TCD"})
				var buf bytes.Buffer
				So(wide.WriteText(&buf, Params{}), ShouldBeNil)
				So("\n"+buf.String(), ShouldEqual, `
Name | Code
---- | ----
日本 |  JPN
Chad |  TCD
`)
			})

			Convey("Bad MaxColWidth", func() {
				var buf bytes.Buffer
				So(t.WriteText(&buf, Params{MaxColWidth: 2}), ShouldNotBeNil)
			})
		})
	})

	Convey("FromDataset", t, func() {
		ds := &dataset.Dataset{
			KeyColumn: dataset.KeyColumn,
			Columns:   []string{"Pop_Total_Count"},
			Rows: []dataset.Row{
				{Key: "USA", Year: 2020, Values: []*float64{dataset.Float(331000000)}},
				{Key: "USA", Year: 2021, Values: []*float64{nil}},
			},
		}
		var buf bytes.Buffer
		So(FromDataset(ds).WriteCSV(&buf, Params{}), ShouldBeNil)
		So("\n"+buf.String(), ShouldEqual, `
Country_Code,Year,Pop_Total_Count
USA,2020,331000000
USA,2021,
`)
	})
}
