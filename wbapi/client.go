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
	"net/url"
	"strings"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/fetch"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/wbindicators/errkind"

	"golang.org/x/time/rate"
)

type contextKey int

const (
	clientContextKey contextKey = iota
)

// URL is the default base URL of the server. It may be overwritten in tests
// before creating a new client.
var URL = "https://api.worldbank.org/v2"

// RetryPolicy for a single API request.
type RetryPolicy struct {
	Attempts     int           // total attempts, including the first one
	InitialDelay time.Duration // delay before the second attempt
	Multiplier   float64       // delay growth factor per attempt
	Timeout      time.Duration // per attempt; 0 = no timeout
}

// DefaultRetryPolicy: 3 attempts, 1s and 2s apart, each limited to 1 minute.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:     3,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		Timeout:      time.Minute,
	}
}

// Options of the Client.
type Options struct {
	BaseURL           string  // default: URL
	RequestsPerSecond float64 // 0 = unlimited
	Retry             RetryPolicy
	// OnAttempt, when not nil, is called after each request attempt with its
	// result. It must be safe for concurrent use.
	OnAttempt func(err error)
}

// Client for querying the World Bank API.
type Client struct {
	baseURL   string
	limiter   *rate.Limiter // nil = unlimited
	retry     RetryPolicy
	onAttempt func(err error)
}

// NewClient creates a new client. Zero fields in opts get default values.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:   opts.BaseURL,
		retry:     opts.Retry,
		onAttempt: opts.OnAttempt,
	}
	if c.baseURL == "" {
		c.baseURL = URL
	}
	c.baseURL = strings.TrimSuffix(c.baseURL, "/")
	if c.retry.Attempts <= 0 {
		c.retry = DefaultRetryPolicy()
	}
	if c.retry.Multiplier < 1.0 {
		c.retry.Multiplier = 1.0
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// GetClient extracts the Client from the context, if any.
func GetClient(ctx context.Context) *Client {
	c, ok := ctx.Value(clientContextKey).(*Client)
	if !ok {
		return nil
	}
	return c
}

// UseClient creates a new client and injects it into the context.
func UseClient(ctx context.Context, opts Options) context.Context {
	return WithClient(ctx, NewClient(opts))
}

// WithClient injects an existing client into the context.
func WithClient(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, clientContextKey, c)
}

// permanentError is not worth retrying.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retry calls op until it succeeds, up to p.Attempts times, with exponential
// backoff between the attempts. Each attempt gets its own timeout. Permanent
// errors and cancellation of ctx stop the retries. The final error is a Fetch
// error.
func Retry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	delay := p.InitialDelay
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		actx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			actx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		err = op(actx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errkind.Mark(errkind.Fetch, errors.Annotate(
				err, "cancelled at attempt %d", attempt))
		}
		if isPermanent(err) {
			return errkind.Mark(errkind.Fetch, errors.Annotate(err, "attempt %d", attempt))
		}
		if attempt == p.Attempts {
			break
		}
		logging.Warningf(ctx, "attempt %d of %d failed, retrying in %s: %s",
			attempt, p.Attempts, delay, err.Error())
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return errkind.Mark(errkind.Fetch, errors.Annotate(
				ctx.Err(), "cancelled while waiting to retry"))
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
	}
	return errkind.Mark(errkind.Fetch, errors.Annotate(err, "failed after %d attempts", p.Attempts))
}

// apiMessage is an element of the error document returned by the API.
type apiMessage struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type apiError struct {
	Message []apiMessage `json:"message"`
}

// decodeResponse decodes the API response into v. The API reports errors with
// HTTP 200 and a JSON array instead of an object; such errors are permanent.
func decodeResponse(raw json.RawMessage, v interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var apiErrs []apiError
		if err := json.Unmarshal(trimmed, &apiErrs); err != nil {
			return &permanentError{errors.Annotate(err, "unexpected response format")}
		}
		var msgs []string
		for _, e := range apiErrs {
			for _, m := range e.Message {
				msgs = append(msgs, m.ID+" "+m.Key+": "+m.Value)
			}
		}
		return &permanentError{errors.Reason("API error: %s", strings.Join(msgs, "; "))}
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return &permanentError{errors.Annotate(err, "failed to decode response")}
	}
	return nil
}

// get fetches the API path with the query, decoding the result into v.
func (c *Client) get(ctx context.Context, path string, query url.Values, v interface{}) error {
	uri := c.baseURL + "/" + path
	return Retry(ctx, c.retry, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return errors.Annotate(err, "rate limiter")
			}
		}
		var raw json.RawMessage
		err := fetch.FetchJSON(ctx, uri, &raw, query, nil)
		if err == nil {
			err = decodeResponse(raw, v)
		}
		if c.onAttempt != nil {
			c.onAttempt(err)
		}
		if err != nil {
			return errors.Annotate(err, "failed to fetch %s", uri)
		}
		return nil
	})
}
