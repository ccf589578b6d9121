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

// Package catalog is the static list of World Bank indicator groups ingested by
// the pipeline, and where each group lands.
package catalog

import (
	"regexp"
	"sort"
	"strings"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/wbindicators/errkind"
)

// Domain is the thematic grouping of an entry.
type Domain string

// Values of Domain.
const (
	Demographics = Domain("Demographics")
	Education    = Domain("Education")
	Development  = Domain("Development")
	Economics    = Domain("Economics")
	Employment   = Domain("Employment")
)

// Indicator maps a provider series code to its destination column name.
type Indicator struct {
	Code string // e.g. SP.POP.TOTL
	Name string // e.g. Pop_Total_Count
}

// Entry describes one ingested table.
type Entry struct {
	Name        string // short unique name, e.g. "demographics"
	Domain      Domain
	Indicators  []Indicator // in destination column order
	Lookback    int         // most recent periods to request
	Schema      string
	Table       string
	Description string
}

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier checks that s can be used as an unquoted schema or table
// name.
func ValidIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}

// Codes of the entry's indicators, in order.
func (e *Entry) Codes() []string {
	res := make([]string, len(e.Indicators))
	for i, ind := range e.Indicators {
		res[i] = ind.Code
	}
	return res
}

// ColumnNames are the destination names of the entry's indicators, in order.
func (e *Entry) ColumnNames() []string {
	res := make([]string, len(e.Indicators))
	for i, ind := range e.Indicators {
		res[i] = ind.Name
	}
	return res
}

// CodeToName is the rename mapping of the entry.
func (e *Entry) CodeToName() map[string]string {
	res := make(map[string]string, len(e.Indicators))
	for _, ind := range e.Indicators {
		res[ind.Code] = ind.Name
	}
	return res
}

// FullTable is the "schema.table" name of the destination.
func (e *Entry) FullTable() string {
	return e.Schema + "." + e.Table
}

// Validate the entry. A duplicate destination name would silently overwrite a
// column during rename, so it is rejected here, before any network call.
func (e *Entry) Validate() error {
	if e.Name == "" {
		return errkind.Mark(errkind.Configuration, errors.Reason("entry name is required"))
	}
	if len(e.Indicators) == 0 {
		return errkind.Mark(errkind.Configuration, errors.Reason("%s: no indicators", e.Name))
	}
	if e.Lookback <= 0 {
		return errkind.Mark(errkind.Configuration, errors.Reason(
			"%s: lookback = %d must be positive", e.Name, e.Lookback))
	}
	if !ValidIdentifier(e.Schema) {
		return errkind.Mark(errkind.Configuration, errors.Reason(
			"%s: invalid schema name %q", e.Name, e.Schema))
	}
	if !ValidIdentifier(e.Table) {
		return errkind.Mark(errkind.Configuration, errors.Reason(
			"%s: invalid table name %q", e.Name, e.Table))
	}
	codes := make(map[string]struct{})
	names := make(map[string]struct{})
	for _, ind := range e.Indicators {
		if ind.Code == "" || ind.Name == "" {
			return errkind.Mark(errkind.Configuration, errors.Reason(
				"%s: indicator with empty code or name: %+v", e.Name, ind))
		}
		if _, ok := codes[ind.Code]; ok {
			return errkind.Mark(errkind.Configuration, errors.Reason(
				"%s: duplicate indicator code %s", e.Name, ind.Code))
		}
		if _, ok := names[ind.Name]; ok {
			return errkind.Mark(errkind.Configuration, errors.Reason(
				"%s: duplicate column name %s", e.Name, strings.ReplaceAll(ind.Name, "%", "%%")))
		}
		codes[ind.Code] = struct{}{}
		names[ind.Name] = struct{}{}
	}
	return nil
}

// Domains returns a copy of all the built-in entries in their canonical order.
func Domains() []Entry {
	res := make([]Entry, len(entries))
	for i, e := range entries {
		res[i] = e
		res[i].Indicators = append([]Indicator{}, e.Indicators...)
	}
	return res
}

// Names of the built-in entries, sorted.
func Names() []string {
	res := make([]string, len(entries))
	for i, e := range entries {
		res[i] = e.Name
	}
	sort.Strings(res)
	return res
}

// Lookup finds a built-in entry by its name, case-insensitive. The result is a
// copy that the caller may modify.
func Lookup(name string) (*Entry, error) {
	for _, e := range Domains() {
		if strings.EqualFold(e.Name, name) {
			e := e
			return &e, nil
		}
	}
	return nil, errkind.Mark(errkind.Configuration, errors.Reason(
		"unknown domain %q, expected one of: %s", name, strings.Join(Names(), ", ")))
}
