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

// Package wbapi is a client for the World Bank data API (v2).
//
// The API is documented at
// https://datahelpdesk.worldbank.org/knowledgebase/topics/125589-developer-information
//
// Only the "sources" endpoint is used: it returns observations of several
// series at once, each observation identified by its country, series and time
// period. The basic usage is as follows:
//
//	ctx = wbapi.UseClient(ctx, wbapi.Options{})
//	frame, err := wbapi.Fetch(ctx, []string{"SP.POP.TOTL"}, wbapi.FetchOptions{
//		Lookback: 10,
//	})
//
// The resulting frame has the columns "economy", "time" and one column per
// requested series. For lower level access, use Query and iterate over
// individual observations:
//
//	it := wbapi.NewQuery("SP.POP.TOTL").MostRecent(10).Read(ctx)
//	for {
//		var o wbapi.Observation
//		ok, err := it.Next(&o)
//		...
//	}
//
// Paging, request pacing and retries are handled transparently by the Client.
// The HTTP client itself is taken from the context, see fetch.UseClient.
package wbapi
