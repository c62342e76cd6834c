// Package result provides the Result value returned by every step of a flow.
//
// A Result is either Ok or Err. Both variants carry a status tag and a data
// payload; which variant a step returns decides how the pipeline routes.
// Results are immutable: constructors copy the supplied data and accessors
// hand out copies.
package result

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
)

// Status tags a Result, e.g. "success" or "validation_error".
type Status string

const (
	// StatusSuccess is the default status of Ok results.
	StatusSuccess Status = "success"
	// StatusFailure is the default status of Err results.
	StatusFailure Status = "failure"
)

// Data is the payload of a Result.
type Data map[string]any

// Clone returns a shallow copy of d. A nil Data clones to an empty one.
func (d Data) Clone() Data {
	if d == nil {
		return Data{}
	}
	return maps.Clone(d)
}

var (
	// ErrUnwrap is matched by *UnwrapError.
	ErrUnwrap = errors.New("result: unwrap called on err result")

	// ErrNoError is matched by *NoErrorError.
	ErrNoError = errors.New("result: error data requested from ok result")
)

// UnwrapError is returned when success data is requested from an Err result.
type UnwrapError struct {
	Status Status
	Data   Data
}

func (e *UnwrapError) Error() string {
	return fmt.Sprintf("result: cannot unwrap err result with status %q: %v", e.Status, map[string]any(e.Data))
}

func (e *UnwrapError) Is(target error) bool { return target == ErrUnwrap }

// NoErrorError is returned when failure data is requested from an Ok result.
type NoErrorError struct {
	Status Status
	Data   Data
}

func (e *NoErrorError) Error() string {
	return fmt.Sprintf("result: no error in ok result with status %q: %v", e.Status, map[string]any(e.Data))
}

func (e *NoErrorError) Is(target error) bool { return target == ErrNoError }

// Result is the tagged Ok/Err value produced by steps.
// The zero value is an Err with empty status; use the constructors.
type Result struct {
	ok     bool
	status Status
	data   Data
	meta   map[string]any
}

// Ok returns a successful result with status "success".
func Ok(data Data) Result {
	return OkWith(StatusSuccess, data)
}

// OkWith returns a successful result with the given status.
func OkWith(status Status, data Data) Result {
	return Result{ok: true, status: status, data: data.Clone()}
}

// Err returns a failed result with status "failure".
func Err(data Data) Result {
	return ErrWith(StatusFailure, data)
}

// ErrWith returns a failed result with the given status.
func ErrWith(status Status, data Data) Result {
	return Result{ok: false, status: status, data: data.Clone()}
}

// IsOk reports whether r is the Ok variant.
func (r Result) IsOk() bool { return r.ok }

// IsErr reports whether r is the Err variant.
func (r Result) IsErr() bool { return !r.ok }

// Status returns the status tag.
func (r Result) Status() Status { return r.status }

// Data returns a copy of the payload regardless of the variant.
func (r Result) Data() Data { return r.data.Clone() }

// Meta returns a copy of the metadata attached with WithMeta.
func (r Result) Meta() map[string]any {
	if r.meta == nil {
		return map[string]any{}
	}
	return maps.Clone(r.meta)
}

// WithMeta returns a copy of r with meta merged over the existing metadata.
func (r Result) WithMeta(meta map[string]any) Result {
	merged := r.Meta()
	maps.Copy(merged, meta)
	r.meta = merged
	return r
}

// OkData returns the payload of an Ok result. For an Err result it returns
// an *UnwrapError.
func (r Result) OkData() (Data, error) {
	if !r.ok {
		return nil, &UnwrapError{Status: r.status, Data: r.data.Clone()}
	}
	return r.data.Clone(), nil
}

// MustUnwrap is like OkData but panics on an Err result.
func (r Result) MustUnwrap() Data {
	d, err := r.OkData()
	if err != nil {
		panic(err)
	}
	return d
}

// ErrData returns the payload of an Err result. For an Ok result it returns
// a *NoErrorError.
func (r Result) ErrData() (Data, error) {
	if r.ok {
		return nil, &NoErrorError{Status: r.status, Data: r.data.Clone()}
	}
	return r.data.Clone(), nil
}

// MustError is like ErrData but panics on an Ok result.
func (r Result) MustError() Data {
	d, err := r.ErrData()
	if err != nil {
		panic(err)
	}
	return d
}

// Equal compares variant, status and data. Metadata is ignored.
func (r Result) Equal(other Result) bool {
	if r.ok != other.ok || r.status != other.status {
		return false
	}
	if len(r.data) != len(other.data) {
		return false
	}
	return reflect.DeepEqual(r.data.Clone(), other.data.Clone())
}

func (r Result) String() string {
	variant := "err"
	if r.ok {
		variant = "ok"
	}
	return fmt.Sprintf("%s(%s) %v", variant, r.status, map[string]any(r.data))
}

// From extracts a Result from v, accepting both values and non-nil pointers.
func From(v any) (Result, bool) {
	switch r := v.(type) {
	case Result:
		return r, true
	case *Result:
		if r != nil {
			return *r, true
		}
	}
	return Result{}, false
}
