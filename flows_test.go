package flows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type greeter struct{}

func (greeter) Step(name string) (StepFunc, bool) {
	if name != "greet" {
		return nil, false
	}
	return func(ctx context.Context, data Data) (Result, error) {
		return Ok(Data{"greeting": "hello " + data["name"].(string)}), nil
	}, true
}

func TestStepSourceAcceptsAnyImplementation(t *testing.T) {
	sources := map[string]StepSource{
		"custom": greeter{},
		"map": StepMap{"greet": func(ctx context.Context, data Data) (Result, error) {
			return Ok(Data{"greeting": "hello " + data["name"].(string)}), nil
		}},
		"registry": &StepRegistry{Steps: map[string]StepFunc{"greet": func(ctx context.Context, data Data) (Result, error) {
			return Ok(Data{"greeting": "hello " + data["name"].(string)}), nil
		}}},
	}

	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			rw, err := NewRailway("hello").Step("greet").Build(WithSource(src))
			require.NoError(t, err)

			res, err := rw.Call(context.Background(), Data{"name": "gopher"})
			require.NoError(t, err)
			require.Equal(t, "hello gopher", res.MustUnwrap()["greeting"])
		})
	}
}
