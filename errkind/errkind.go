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

// Package errkind classifies pipeline errors into a small set of kinds that
// decide how a failure is reported to the operator.
//
// A kind is attached once, where the failure is detected, and survives any
// number of errors.Annotate layers added on the way up. The error itself is
// created at the failure site, so that it records that location:
//
//	err := errkind.Mark(errkind.Parse, errors.Reason("bad time label %q", label))
//	err = errors.Annotate(err, "failed to normalize %s", domain)
//	errkind.Of(err) == errkind.Parse        // true
//	errors.Is(err, errkind.Parse)           // true
package errkind

import "github.com/stockparfait/errors"

// Kind of an error. Kind itself implements error so it can be used as the
// target of errors.Is.
type Kind string

// Values of Kind.
const (
	Configuration  = Kind("configuration")
	Fetch          = Kind("fetch")
	SchemaMismatch = Kind("schema mismatch")
	Parse          = Kind("parse")
)

// Kinds lists all the known kinds, e.g. for pre-registering metric labels.
var Kinds = []Kind{Configuration, Fetch, SchemaMismatch, Parse}

func (k Kind) Error() string { return string(k) + " error" }

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

func (e *kindError) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.kind
}

// Mark err with the kind. A nil err stays nil.
func Mark(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Of returns the outermost kind attached to err, or "" if there is none.
func Of(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return ""
}
