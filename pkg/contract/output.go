package contract

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/petrijr/flows/pkg/result"
)

// ErrNoSuccessContract is returned when an Output declares failure shapes
// but no success shape.
var ErrNoSuccessContract = errors.New("flows: no success output contract defined")

// StatusError reports a Result whose status has no declared contract.
type StatusError struct {
	Ok     bool
	Status result.Status
}

func (e *StatusError) Error() string {
	variant := "failure"
	if e.Ok {
		variant = "success"
	}
	return fmt.Sprintf("flows: no %s output contract for status %q", variant, e.Status)
}

// DataError reports Result data rejected by its contract.
type DataError struct {
	Status result.Status
	Err    error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("flows: output data for status %q: %v", e.Status, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// Operation is anything producing a Result from keyword data, typically a
// built pipeline's Call.
type Operation func(ctx context.Context, data result.Data) (result.Result, error)

// Output holds the shapes a Result may take, keyed by variant and status.
// The zero value declares nothing.
type Output struct {
	success map[result.Status]Contract
	failure map[result.Status]Contract
}

// SuccessWith declares the data shape of Ok results with status.
func (o *Output) SuccessWith(status result.Status, c Contract) *Output {
	if o.success == nil {
		o.success = make(map[result.Status]Contract)
	}
	o.success[status] = c
	return o
}

// FailureWith declares the data shape of Err results with status.
func (o *Output) FailureWith(status result.Status, c Contract) *Output {
	if o.failure == nil {
		o.failure = make(map[result.Status]Contract)
	}
	o.failure[status] = c
	return o
}

// Empty reports whether no shape has been declared.
func (o *Output) Empty() bool {
	return o == nil || (len(o.success) == 0 && len(o.failure) == 0)
}

// Validate checks the declaration itself.
func (o *Output) Validate() error {
	if o == nil || len(o.success) == 0 {
		return ErrNoSuccessContract
	}
	return nil
}

// Clone returns an independent copy.
func (o *Output) Clone() *Output {
	if o == nil {
		return nil
	}
	return &Output{success: maps.Clone(o.success), failure: maps.Clone(o.failure)}
}

// Apply checks res against the declared shapes and returns it with its data
// transformed. Err results pass unchecked when no failure shape is declared.
func (o *Output) Apply(res result.Result) (result.Result, error) {
	if err := o.Validate(); err != nil {
		return res, err
	}

	shapes := o.success
	if res.IsErr() {
		if len(o.failure) == 0 {
			return res, nil
		}
		shapes = o.failure
	}

	c, ok := shapes[res.Status()]
	if !ok {
		return res, &StatusError{Ok: res.IsOk(), Status: res.Status()}
	}

	out, err := c.Transform(map[string]any(res.Data()))
	if err != nil {
		return res, &DataError{Status: res.Status(), Err: err}
	}
	data, ok := asMap(out)
	if !ok {
		return res, &DataError{Status: res.Status(), Err: failf("transformed data must be a map (got %T)", out)}
	}

	var next result.Result
	if res.IsOk() {
		next = result.OkWith(res.Status(), data)
	} else {
		next = result.ErrWith(res.Status(), data)
	}
	if meta := res.Meta(); len(meta) > 0 {
		next = next.WithMeta(meta)
	}
	return next, nil
}

// Wrap decorates op so every Result it returns goes through Apply. Errors
// from op are returned untouched.
func (o *Output) Wrap(op Operation) Operation {
	return func(ctx context.Context, data result.Data) (result.Result, error) {
		res, err := op(ctx, data)
		if err != nil {
			return res, err
		}
		return o.Apply(res)
	}
}
