// Copyright 2025 StoreForge
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package base

import (
	"errors"
	"fmt"
)

// ErrorClass groups backend-native failures into the categories the rest of
// the platform branches on. Classification matters: a missing table is a
// normal state for an unprovisioned store, not a failure.
type ErrorClass string

const (
	// ClassConnection covers network, TLS and credential failures.
	ClassConnection ErrorClass = "connection"
	// ClassMissingTable covers "relation/table does not exist".
	ClassMissingTable ErrorClass = "missing_table"
	// ClassDuplicate covers unique-constraint conflicts.
	ClassDuplicate ErrorClass = "duplicate"
	// ClassOther covers everything else.
	ClassOther ErrorClass = "other"
)

// QueryError is the uniform failure type for one operation against an
// established connection. It carries the backend's native code and message
// so operators see the real diagnostic, while callers branch only on Class.
type QueryError struct {
	Backend   Kind
	Operation string
	Code      string
	Message   string
	Class     ErrorClass
	Cause     error
}

func (e *QueryError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: [%s] %s", e.Backend, e.Operation, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Backend, e.Operation, e.Message)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a QueryError.
func NewQueryError(backend Kind, operation, code, message string, class ErrorClass, cause error) *QueryError {
	return &QueryError{
		Backend:   backend,
		Operation: operation,
		Code:      code,
		Message:   message,
		Class:     class,
		Cause:     cause,
	}
}

// UnsupportedError reports an operation the backend's access channel does
// not permit at all, as opposed to one that merely failed.
type UnsupportedError struct {
	Backend   Kind
	Operation string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Backend, e.Operation)
}

// IsMissingTable reports whether err is a QueryError classified as a
// missing table.
func IsMissingTable(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Class == ClassMissingTable
}

// IsDuplicate reports whether err is a QueryError classified as a
// unique-constraint conflict.
func IsDuplicate(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Class == ClassDuplicate
}

// IsConnectionFailure reports whether err is a QueryError classified as a
// network/credential failure.
func IsConnectionFailure(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Class == ClassConnection
}

// IsUnsupported reports whether err is an UnsupportedError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedError
	return errors.As(err, &ue)
}
