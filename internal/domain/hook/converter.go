package hook

import (
	"fmt"
	"reflect"
)

// converter maps the positional arguments of one method to and from the
// record fields that method carries.
type converter struct {
	toRecord func(args []interface{}) (*Record, error)
	toArgs   func(rec *Record) []interface{}
}

var converters = map[Method]converter{
	MethodFind: {
		toRecord: func(args []interface{}) (*Record, error) {
			params, err := toParams(argAt(args, 0))
			if err != nil {
				return nil, err
			}
			return &Record{Params: params}, nil
		},
		toArgs: func(rec *Record) []interface{} {
			return []interface{}{paramsOrEmpty(rec.Params)}
		},
	},
	MethodGet:    idConverter,
	MethodRemove: idConverter,
	MethodCreate: {
		toRecord: func(args []interface{}) (*Record, error) {
			params, err := toParams(argAt(args, 1))
			if err != nil {
				return nil, err
			}
			return &Record{Data: argAt(args, 0), Params: params}, nil
		},
		toArgs: func(rec *Record) []interface{} {
			return []interface{}{rec.Data, paramsOrEmpty(rec.Params)}
		},
	},
	MethodUpdate: idDataConverter,
	MethodPatch:  idDataConverter,
}

// idConverter serves get and remove: (id, params).
var idConverter = converter{
	toRecord: func(args []interface{}) (*Record, error) {
		params, err := toParams(argAt(args, 1))
		if err != nil {
			return nil, err
		}
		return &Record{ID: argAt(args, 0), Params: params}, nil
	},
	toArgs: func(rec *Record) []interface{} {
		return []interface{}{rec.ID, paramsOrEmpty(rec.Params)}
	},
}

// idDataConverter serves update and patch: (id, data, params).
var idDataConverter = converter{
	toRecord: func(args []interface{}) (*Record, error) {
		params, err := toParams(argAt(args, 2))
		if err != nil {
			return nil, err
		}
		return &Record{ID: argAt(args, 0), Data: argAt(args, 1), Params: params}, nil
	},
	toArgs: func(rec *Record) []interface{} {
		return []interface{}{rec.ID, rec.Data, paramsOrEmpty(rec.Params)}
	},
}

// ToRecord converts positional call arguments for method into a partial
// record holding only the fields that method defines. Method and Type are
// left for BuildRecord to stamp.
func ToRecord(method Method, args []interface{}) (*Record, error) {
	conv, ok := converters[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	rec, err := conv.toRecord(args)
	if err != nil {
		return nil, fmt.Errorf("%s arguments: %w", method, err)
	}
	return rec, nil
}

// ToArgs converts a record back into the positional arguments of its
// method. Params is always the last argument.
//
// Methods without a converter get a best-effort reconstruction: ID if set,
// Data if truthy, then Params.
func ToArgs(rec *Record) []interface{} {
	if conv, ok := converters[rec.Method]; ok {
		return conv.toArgs(rec)
	}

	args := make([]interface{}, 0, 3)
	if rec.ID != nil {
		args = append(args, rec.ID)
	}
	if truthy(rec.Data) {
		args = append(args, rec.Data)
	}
	return append(args, paramsOrEmpty(rec.Params))
}

// ArgsNormalizer converts between the positional arguments of a call and
// the canonical record, using the per-method converters.
type ArgsNormalizer struct{}

// Normalize converts args for method into a partial record. See ToRecord.
func (ArgsNormalizer) Normalize(method Method, args []interface{}) (*Record, error) {
	return ToRecord(method, args)
}

// Denormalize converts rec back into positional arguments. See ToArgs.
func (ArgsNormalizer) Denormalize(rec *Record) []interface{} {
	return ToArgs(rec)
}

// HasConverter reports whether method has a registered argument converter.
func HasConverter(method Method) bool {
	_, ok := converters[method]
	return ok
}

func argAt(args []interface{}, i int) interface{} {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func toParams(v interface{}) (Params, error) {
	switch p := v.(type) {
	case nil:
		return Params{}, nil
	case Params:
		if p == nil {
			return Params{}, nil
		}
		return p, nil
	case map[string]interface{}:
		if p == nil {
			return Params{}, nil
		}
		return Params(p), nil
	default:
		return nil, fmt.Errorf("%w, got %T", ErrInvalidParams, v)
	}
}

func paramsOrEmpty(p Params) Params {
	if p == nil {
		return Params{}
	}
	return p
}

// truthy follows the loose truthiness used for the fallback data slot:
// nil, false, zero numbers, empty strings and nil references are false.
func truthy(v interface{}) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsZero()
	default:
		return true
	}
}
