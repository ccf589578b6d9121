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

package wbapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/wbindicators/errkind"
)

// WDI is the source ID of World Development Indicators.
const WDI = "2"

// MaxPerPage is the largest page size the API accepts.
const MaxPerPage = 32500

// Observation is a single value of a series for a country and a time period.
type Observation struct {
	Economy string   // country or aggregate code, e.g. USA
	Time    string   // period label, e.g. YR2020
	Series  string   // indicator code, e.g. SP.POP.TOTL
	Value   *float64 // nil when the provider has no data
}

// Query is a builder for a "sources" API query.
type Query struct {
	source    string
	economies []string
	series    []string
	options   queryOptions
}

type queryOptions struct {
	MostRecent int // number of most recent periods; 0 = all
	PerPage    int // 0 = server default (50)
	Page       int // 1-based; 0 = first
}

// NewQuery creates a new query for the given series of the WDI source across
// all economies.
func NewQuery(series ...string) *Query {
	return &Query{source: WDI, series: series}
}

// Copy creates a deep copy of the query. It is primarily used in its builder
// methods.
func (q *Query) Copy() *Query {
	q2 := Query{source: q.source, options: q.options}
	q2.economies = append([]string{}, q.economies...)
	q2.series = append([]string{}, q.series...)
	return &q2
}

// Source sets the source ID. This and other builder methods always create a
// deep copy of the query, leaving the original intact.
func (q *Query) Source(id string) *Query {
	q2 := q.Copy()
	q2.source = id
	return q2
}

// Economies restricts the query to the given country codes. No codes means all
// economies.
func (q *Query) Economies(codes ...string) *Query {
	q2 := q.Copy()
	q2.economies = codes
	return q2
}

// MostRecent requests only n most recent periods of each series.
func (q *Query) MostRecent(n int) *Query {
	if n < 0 {
		n = 0
	}
	q2 := q.Copy()
	q2.options.MostRecent = n
	return q2
}

// PerPage sets the page size, [0..MaxPerPage].
func (q *Query) PerPage(size int) *Query {
	if size < 0 {
		size = 0
	}
	if size > MaxPerPage {
		size = MaxPerPage
	}
	q2 := q.Copy()
	q2.options.PerPage = size
	return q2
}

// Page sets the page number to fetch.
func (q *Query) Page(n int) *Query {
	q2 := q.Copy()
	q2.options.Page = n
	return q2
}

// Path returns the URL path to add to the base URL.
func (q *Query) Path() string {
	economies := "all"
	if len(q.economies) > 0 {
		economies = strings.Join(q.economies, ";")
	}
	return fmt.Sprintf("sources/%s/country/%s/series/%s/time/all",
		q.source, economies, strings.Join(q.series, ";"))
}

// Values returns the query values for the query. Each call creates a new
// object, so the caller is free to modify it without affecting the query.
func (q *Query) Values() url.Values {
	v := make(url.Values)
	v.Set("format", "json")
	if q.options.MostRecent > 0 {
		v.Set("mrv", strconv.Itoa(q.options.MostRecent))
	}
	if q.options.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.options.PerPage))
	}
	if q.options.Page > 0 {
		v.Set("page", strconv.Itoa(q.options.Page))
	}
	return v
}

// Read sets up the iterator over the resulting observations, which will
// execute the query as needed and handle paging transparently.
func (q *Query) Read(ctx context.Context) *ObservationIterator {
	return &ObservationIterator{context: ctx, query: q}
}

// flexInt is a number which the API sometimes sends as a string.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return errors.Annotate(err, "not an integer: %s", string(b))
	}
	*n = flexInt(i)
	return nil
}

type variable struct {
	Concept string `json:"concept"`
	ID      string `json:"id"`
	Value   string `json:"value,omitempty"`
}

type observation struct {
	Variable []variable `json:"variable"`
	Value    *float64   `json:"value"`
}

// load converts the raw observation.
func (o *observation) load(obs *Observation) error {
	*obs = Observation{Value: o.Value}
	for _, v := range o.Variable {
		switch v.Concept {
		case "Country", "Economy":
			obs.Economy = v.ID
		case "Series":
			obs.Series = v.ID
		case "Time":
			obs.Time = v.ID
		}
	}
	if obs.Economy == "" || obs.Series == "" || obs.Time == "" {
		return errors.Reason("incomplete observation: %+v", o.Variable)
	}
	return nil
}

type sourceData struct {
	ID   string        `json:"id"`
	Name string        `json:"name,omitempty"`
	Data []observation `json:"data"`
}

// sourceList is sent either as a single object or as an array of objects.
type sourceList []sourceData

func (s *sourceList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var one sourceData
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*s = sourceList{one}
		return nil
	}
	var many []sourceData
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// page is the format of a single page of a "sources" response.
type page struct {
	Page        flexInt    `json:"page"`
	Pages       flexInt    `json:"pages"`
	PerPage     flexInt    `json:"per_page"`
	Total       flexInt    `json:"total"`
	LastUpdated string     `json:"lastupdated,omitempty"`
	Source      sourceList `json:"source"`
}

func (p *page) observations() []observation {
	var res []observation
	for _, s := range p.Source {
		res = append(res, s.Data...)
	}
	return res
}

// TestPage generates the JSON string in a format as returned by the "sources"
// API. For use in tests.
func TestPage(pageNum, pages int, obs []Observation) (string, error) {
	data := make([]observation, len(obs))
	for i, o := range obs {
		data[i] = observation{
			Variable: []variable{
				{Concept: "Country", ID: o.Economy},
				{Concept: "Series", ID: o.Series},
				{Concept: "Time", ID: o.Time},
			},
			Value: o.Value,
		}
	}
	bytes, err := json.Marshal(&page{
		Page:    flexInt(pageNum),
		Pages:   flexInt(pages),
		PerPage: flexInt(len(obs)),
		Total:   flexInt(len(obs)),
		Source:  sourceList{{ID: WDI, Data: data}},
	})
	return string(bytes), err
}

// TestErrorPage generates the JSON error document as returned by the API. For
// use in tests.
func TestErrorPage(id, key, value string) string {
	bytes, _ := json.Marshal([]apiError{{Message: []apiMessage{{id, key, value}}}})
	return string(bytes)
}

// ObservationIterator iterates over query results one observation at a time.
// Paging is handled transparently.
type ObservationIterator struct {
	context   context.Context
	query     *Query
	page      page
	data      []observation
	index     int  // the data element for Next() to return
	pageCount int  // how many pages were fetched
	started   bool // if at least one Next call was ever made
}

// nextPage fetches and populates the iterator with the next page of data. When
// there are no more pages to load, or loading a page results in an error, the
// first return value becomes false.
func (it *ObservationIterator) nextPage() (bool, error) {
	if it.started && int(it.page.Page) >= int(it.page.Pages) {
		return false, nil
	}
	q := it.query
	if it.started {
		q = q.Page(int(it.page.Page) + 1)
	}
	it.started = true
	client := GetClient(it.context)
	if client == nil {
		return false, errkind.Mark(errkind.Configuration, errors.Reason(
			"no wbapi client in context"))
	}
	it.page = page{}
	if err := client.get(it.context, q.Path(), q.Values(), &it.page); err != nil {
		return false, errkind.Mark(errkind.Fetch, errors.Annotate(
			err, "failed to query page %d", it.pageCount+1))
	}
	it.data = it.page.observations()
	it.index = 0
	it.pageCount++
	logging.Infof(it.context, "World Bank: fetched page %d of %d with %d observations",
		int(it.page.Page), int(it.page.Pages), len(it.data))
	return true, nil
}

// Next loads the next observation. If there are no more observations, the
// first value is false. Note, that error may be non-nil regardless of the end
// of iterator.
func (it *ObservationIterator) Next(obs *Observation) (bool, error) {
	if it.query == nil {
		return false, nil
	}
	for !it.started || it.index >= len(it.data) {
		if ok, err := it.nextPage(); !ok {
			return false, err
		}
	}
	err := it.data[it.index].load(obs)
	it.index++
	if err != nil {
		return true, errkind.Mark(errkind.Fetch, errors.Annotate(err,
			"failed to parse observation %d in page %d", it.index, it.pageCount))
	}
	return true, nil
}

// Pages is the number of pages fetched so far.
func (it *ObservationIterator) Pages() int {
	return it.pageCount
}
