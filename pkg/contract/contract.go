// Package contract validates and transforms values, most often the data of
// a pipeline's final Result.
//
// A Contract answers two questions about a value: does it conform (Check)
// and what does it look like once normalised (Transform). Contracts compose:
// Hash checks map keys, Array checks slice elements, Compose chains
// contracts and Either accepts the first one that passes.
package contract

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// Contract checks and transforms values.
type Contract interface {
	Check(v any) error
	Transform(v any) (any, error)
}

// Error is a contract violation.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

func failf(format string, args ...any) error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

type predicate struct {
	msg string
	fn  func(any) bool
}

// Predicate accepts values for which fn returns true; msg describes the
// violation otherwise.
func Predicate(msg string, fn func(v any) bool) Contract {
	return predicate{msg: msg, fn: fn}
}

func (p predicate) Check(v any) error {
	if !p.fn(v) {
		return failf("%s (got %v)", p.msg, v)
	}
	return nil
}

func (p predicate) Transform(v any) (any, error) {
	if err := p.Check(v); err != nil {
		return nil, err
	}
	return v, nil
}

type transformer struct {
	fn func(any) (any, error)
}

// Transformer accepts values fn can transform.
func Transformer(fn func(v any) (any, error)) Contract {
	return transformer{fn: fn}
}

func (t transformer) Check(v any) error {
	_, err := t.Transform(v)
	return err
}

func (t transformer) Transform(v any) (any, error) {
	out, err := t.fn(v)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &Error{Message: err.Error()}
	}
	return out, nil
}

type typed struct {
	typ reflect.Type
}

// Type accepts values of type T (or implementations, when T is an interface).
func Type[T any]() Contract {
	return typed{typ: reflect.TypeFor[T]()}
}

func (c typed) Check(v any) error {
	if v == nil {
		return failf("must be a %s (got nil)", c.typ)
	}
	t := reflect.TypeOf(v)
	if t == c.typ || (c.typ.Kind() == reflect.Interface && t.Implements(c.typ)) {
		return nil
	}
	return failf("must be a %s (got %T)", c.typ, v)
}

func (c typed) Transform(v any) (any, error) {
	if err := c.Check(v); err != nil {
		return nil, err
	}
	return v, nil
}

type compose []Contract

// Compose requires every contract to pass. Transform feeds the output of
// each contract into the next.
func Compose(cs ...Contract) Contract {
	return compose(slices.Clone(cs))
}

func (c compose) Check(v any) error {
	_, err := c.Transform(v)
	return err
}

func (c compose) Transform(v any) (any, error) {
	out := v
	for _, inner := range c {
		var err error
		out, err = inner.Transform(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

type either []Contract

// Either accepts values matching at least one contract. Transform uses the
// first matching contract.
func Either(cs ...Contract) Contract {
	return either(slices.Clone(cs))
}

func (c either) Check(v any) error {
	_, err := c.Transform(v)
	return err
}

func (c either) Transform(v any) (any, error) {
	msgs := make([]string, 0, len(c))
	for _, inner := range c {
		out, err := inner.Transform(v)
		if err == nil {
			return out, nil
		}
		msgs = append(msgs, err.Error())
	}
	return nil, failf("no alternative matched: %s", strings.Join(msgs, "; "))
}

type hash map[string]Contract

// Hash accepts map[string]any values holding every listed key, each
// satisfying its contract. Keys not listed are kept untouched.
func Hash(fields map[string]Contract) Contract {
	h := make(hash, len(fields))
	for k, c := range fields {
		h[k] = c
	}
	return h
}

func (h hash) Check(v any) error {
	_, err := h.Transform(v)
	return err
}

func (h hash) Transform(v any) (any, error) {
	m, ok := asMap(v)
	if !ok {
		return nil, failf("must be a map with string keys (got %T)", v)
	}

	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = val
	}

	var msgs []string
	for _, key := range slices.Sorted(maps.Keys(h)) {
		val, present := m[key]
		if !present {
			msgs = append(msgs, fmt.Sprintf("missing key %q", key))
			continue
		}
		tv, err := h[key].Transform(val)
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		out[key] = tv
	}
	if len(msgs) > 0 {
		return nil, &Error{Message: strings.Join(msgs, "; ")}
	}
	return out, nil
}

type array struct {
	elem Contract
}

// Array accepts slices whose elements all satisfy elem.
func Array(elem Contract) Contract {
	return array{elem: elem}
}

func (a array) Check(v any) error {
	_, err := a.Transform(v)
	return err
}

func (a array) Transform(v any) (any, error) {
	rv := reflect.ValueOf(v)
	if v == nil || rv.Kind() != reflect.Slice {
		return nil, failf("must be a slice (got %T)", v)
	}
	out := make([]any, rv.Len())
	for i := range rv.Len() {
		tv, err := a.elem.Transform(rv.Index(i).Interface())
		if err != nil {
			return nil, failf("[%d]: %v", i, err)
		}
		out[i] = tv
	}
	return out, nil
}

// asMap accepts map[string]any and any named type with that underlying type
// (such as result.Data).
func asMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if v == nil || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	if rv.Type().Elem().Kind() != reflect.Interface || rv.Type().Elem().NumMethod() != 0 {
		return nil, false
	}
	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}
	return m, true
}
