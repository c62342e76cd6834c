package step

import (
	"context"
	"sync"

	"github.com/petrijr/flows/pkg/result"
)

// Caller is a built pipeline.
type Caller interface {
	Call(ctx context.Context, data result.Data) (result.Result, error)
}

// Lazy builds a pipeline on its first Call and reuses it afterwards. The
// build runs at most once even when the first calls race; a build error is
// returned from every Call.
type Lazy struct {
	get func() (Caller, error)
}

// NewLazy wraps build.
func NewLazy(build func() (Caller, error)) *Lazy {
	return &Lazy{get: sync.OnceValues(build)}
}

// Pipeline returns the built pipeline, building it if needed.
func (l *Lazy) Pipeline() (Caller, error) {
	return l.get()
}

func (l *Lazy) Call(ctx context.Context, data result.Data) (result.Result, error) {
	p, err := l.get()
	if err != nil {
		return result.Result{}, err
	}
	return p.Call(ctx, data)
}
