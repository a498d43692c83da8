package cel

import (
	"path/filepath"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/Sentinel-Gate/hookchain/internal/domain/hook"
)

// NewRecordEnvironment creates a CEL environment exposing the fields of a
// hook.Record:
//   - method, type, provider: strings
//   - id, data: dynamic values (null when absent)
//   - params: map of string to dynamic
//   - has_result: whether a before interceptor already produced a result
//   - Custom functions: glob, param
func NewRecordEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("method", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("provider", cel.StringType),
		cel.Variable("id", cel.DynType),
		cel.Variable("data", cel.DynType),
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("has_result", cel.BoolType),

		// glob: shell-style pattern match.
		// Usage: glob("find*", method)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p := pattern.Value().(string)
					n := name.Value().(string)
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),

		// param: read a param by key, null when missing.
		// Usage: param(params, "tenant") == "acme"
		cel.Function("param",
			cel.Overload("param_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.DynType,
				cel.BinaryBinding(func(mapVal, keyVal ref.Val) ref.Val {
					m, ok := mapVal.(interface {
						Find(ref.Val) (ref.Val, bool)
					})
					if !ok {
						return types.NullValue
					}
					if v, found := m.Find(keyVal); found {
						return v
					}
					return types.NullValue
				}),
			),
		),
	)
}

// BuildRecordActivation maps a record onto the variables declared by
// NewRecordEnvironment.
func BuildRecordActivation(rec *hook.Record) map[string]any {
	params := map[string]interface{}(rec.Params)
	if params == nil {
		params = map[string]interface{}{}
	}

	return map[string]any{
		"method":     string(rec.Method),
		"type":       string(rec.Type),
		"provider":   rec.Provider,
		"id":         rec.ID,
		"data":       rec.Data,
		"params":     params,
		"has_result": rec.Result != nil,
	}
}
