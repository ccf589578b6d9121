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

package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/wbindicators/history"
	"github.com/stockparfait/wbindicators/sink"
	"github.com/stockparfait/wbindicators/wbapi"
)

// Session is the execution context of pipeline runs: the destination sink,
// the run history, the metrics and the API client. It must be closed.
type Session struct {
	Config  *Config
	Sink    sink.Sink
	History *history.Store // nil when not configured
	Metrics *Metrics

	client *wbapi.Client
	closed bool
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return errors.Annotate(err, "failed to create directory for %s", path)
	}
	return nil
}

func openSink(ctx context.Context, c SinkConfig) (sink.Sink, error) {
	switch c.Kind {
	case SinkParquet:
		if err := os.MkdirAll(c.Path, 0777); err != nil {
			return nil, errors.Annotate(err, "failed to create %s", c.Path)
		}
		return sink.NewParquet(c.Path), nil
	case SinkDuckLake:
		if err := ensureDir(c.Path); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(c.DataPath, 0777); err != nil {
			return nil, errors.Annotate(err, "failed to create %s", c.DataPath)
		}
		return sink.OpenDuckDB(ctx, sink.DuckDBConfig{
			Path: c.Path, DuckLake: true, DataPath: c.DataPath})
	default:
		if c.Path == "" {
			logging.Warningf(ctx, "DuckDB sink is in memory, nothing will be persisted")
		}
		if err := ensureDir(c.Path); err != nil {
			return nil, err
		}
		return sink.OpenDuckDB(ctx, sink.DuckDBConfig{Path: c.Path})
	}
}

// Open a session. The config is copied, and its defaults are set before it is
// validated.
func Open(ctx context.Context, config *Config) (*Session, error) {
	if config == nil {
		config = &Config{}
	}
	c := *config
	if err := c.Init(); err != nil {
		return nil, errors.Annotate(err, "invalid config")
	}
	s := &Session{Config: &c, Metrics: NewMetrics()}
	s.client = wbapi.NewClient(wbapi.Options{
		BaseURL:           c.APIURL,
		RequestsPerSecond: c.RequestsPerSecond,
		Retry:             c.Retry.Policy(),
		OnAttempt:         s.Metrics.OnAttempt,
	})
	var err error
	if s.Sink, err = openSink(ctx, c.Sink); err != nil {
		return nil, errors.Annotate(err, "failed to open %s sink", c.Sink.Kind)
	}
	if c.History != "" {
		if err := ensureDir(c.History); err != nil {
			s.Sink.Close()
			return nil, err
		}
		if s.History, err = history.Open(ctx, c.History); err != nil {
			s.Sink.Close()
			return nil, errors.Annotate(err, "failed to open run history")
		}
	}
	logging.Debugf(ctx, "opened session: %s sink at '%s'", c.Sink.Kind, c.Sink.Path)
	return s, nil
}

// Close the session, releasing the sink and the history. Closing twice is a
// no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var res error
	if err := s.Sink.Close(); err != nil {
		res = errors.Annotate(err, "failed to close sink")
	}
	if s.History != nil {
		if err := s.History.Close(); err != nil && res == nil {
			res = errors.Annotate(err, "failed to close run history")
		}
	}
	return res
}

// Context injects the session's API client into ctx.
func (s *Session) Context(ctx context.Context) context.Context {
	return wbapi.WithClient(ctx, s.client)
}

// NewRunID generates a unique ID of a pipeline run.
func NewRunID() string {
	return uuid.NewString()
}
