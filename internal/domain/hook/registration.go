package hook

import (
	"context"
	"fmt"
)

// Registration maps a method name, or MethodAll, to one interceptor or a
// slice of them.
type Registration map[string]interface{}

// NormalizeRegistration folds the accepted registration shapes into a map
// of method-or-"all" to an ordered interceptor list:
//
//   - a single interceptor (or a bare direct/callback func) becomes {all: [x]}
//   - a list of interceptors or bare funcs becomes {all: list}
//   - a map keeps its keys; single values are wrapped in a one-element list
//
// Keys are not checked here; Registry.Register validates them.
func NormalizeRegistration(input interface{}) (map[string][]Interceptor, error) {
	switch in := input.(type) {
	case map[string][]Interceptor:
		out := make(map[string][]Interceptor, len(in))
		for k, list := range in {
			out[k] = list
		}
		return out, nil
	case map[string]Interceptor:
		out := make(map[string][]Interceptor, len(in))
		for k, fn := range in {
			out[k] = []Interceptor{fn}
		}
		return out, nil
	case Registration:
		return normalizeMap(in)
	case map[string]interface{}:
		return normalizeMap(in)
	}

	list, err := toInterceptors(input)
	if err != nil {
		return nil, err
	}
	return map[string][]Interceptor{MethodAll: list}, nil
}

func normalizeMap(in map[string]interface{}) (map[string][]Interceptor, error) {
	out := make(map[string][]Interceptor, len(in))
	for k, v := range in {
		list, err := toInterceptors(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = list
	}
	return out, nil
}

// toInterceptors wraps a single value into a list, or passes a list through.
// A []interface{} is accepted when every element is a single interceptor.
func toInterceptors(v interface{}) ([]Interceptor, error) {
	switch fn := v.(type) {
	case []Interceptor:
		return fn, nil
	case []DirectFunc:
		out := make([]Interceptor, len(fn))
		for i, f := range fn {
			out[i] = f
		}
		return out, nil
	case []CallbackFunc:
		out := make([]Interceptor, len(fn))
		for i, f := range fn {
			out[i] = f
		}
		return out, nil
	case []func(context.Context, *Record) (*Record, error):
		out := make([]Interceptor, len(fn))
		for i, f := range fn {
			out[i] = DirectFunc(f)
		}
		return out, nil
	case []func(context.Context, *Record, Done):
		out := make([]Interceptor, len(fn))
		for i, f := range fn {
			out[i] = CallbackFunc(f)
		}
		return out, nil
	case []interface{}:
		out := make([]Interceptor, len(fn))
		for i, elem := range fn {
			ic, err := toInterceptor(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = ic
		}
		return out, nil
	}

	ic, err := toInterceptor(v)
	if err != nil {
		return nil, err
	}
	return []Interceptor{ic}, nil
}

func toInterceptor(v interface{}) (Interceptor, error) {
	switch fn := v.(type) {
	case Interceptor:
		return fn, nil
	case func(context.Context, *Record) (*Record, error):
		return DirectFunc(fn), nil
	case func(context.Context, *Record, Done):
		return CallbackFunc(fn), nil
	}
	return nil, fmt.Errorf("%w: unsupported value %T", ErrInvalidRegistration, v)
}
