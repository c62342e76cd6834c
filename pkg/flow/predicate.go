package flow

import (
	"reflect"

	"github.com/petrijr/flows/pkg/result"
)

type predicateKind int

const (
	predicateExact predicateKind = iota + 1
	predicateType
	predicateFunc
)

// Predicate decides whether a router output matches a route. It is one of
// three kinds: an exact value (Equals), a type (TypeOf) or a function (Func).
type Predicate struct {
	kind  predicateKind
	value any
	typ   reflect.Type
	fn    func(any) bool
}

// Equals matches outputs equal to v. Results compare with result.Result.Equal,
// other values with reflect.DeepEqual.
func Equals(v any) Predicate {
	return Predicate{kind: predicateExact, value: v}
}

// TypeOf matches outputs whose dynamic type is T. When T is an interface
// type, any implementation matches.
func TypeOf[T any]() Predicate {
	return Predicate{kind: predicateType, typ: reflect.TypeFor[T]()}
}

// Func matches outputs for which fn returns true.
func Func(fn func(output any) bool) Predicate {
	if fn == nil {
		panic("flows: predicate function must not be nil")
	}
	return Predicate{kind: predicateFunc, fn: fn}
}

// Always matches every output.
func Always() Predicate {
	return Func(func(any) bool { return true })
}

// WhenOk matches any Ok result.
func WhenOk() Predicate {
	return Func(func(out any) bool {
		r, ok := result.From(out)
		return ok && r.IsOk()
	})
}

// WhenErr matches any Err result.
func WhenErr() Predicate {
	return Func(func(out any) bool {
		r, ok := result.From(out)
		return ok && r.IsErr()
	})
}

// MatchOk matches Ok results with the given status.
func MatchOk(status result.Status) Predicate {
	return Func(func(out any) bool {
		r, ok := result.From(out)
		return ok && r.IsOk() && r.Status() == status
	})
}

// MatchErr matches Err results with the given status.
func MatchErr(status result.Status) Predicate {
	return Func(func(out any) bool {
		r, ok := result.From(out)
		return ok && r.IsErr() && r.Status() == status
	})
}

// Match reports whether output satisfies p. The zero Predicate matches nothing.
func (p Predicate) Match(output any) bool {
	switch p.kind {
	case predicateExact:
		if want, ok := result.From(p.value); ok {
			got, ok := result.From(output)
			return ok && want.Equal(got)
		}
		return reflect.DeepEqual(p.value, output)
	case predicateType:
		if output == nil {
			return false
		}
		t := reflect.TypeOf(output)
		if p.typ.Kind() == reflect.Interface {
			return t.Implements(p.typ)
		}
		return t == p.typ
	case predicateFunc:
		return p.fn(output)
	default:
		return false
	}
}
