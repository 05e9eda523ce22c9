package schema

import (
	"fmt"
	"strings"
	"sync"

	"github.com/carina-iac/carina/internal/value"
	"github.com/google/cel-go/cel"
)

// customEnv/customPrograms back AttributeType.Custom: a validator-id of the
// form "cel:<boolean expression>" is compiled once and cached. The
// expression is evaluated with a single variable, "value", bound to the
// attribute's coerced Go representation.
var (
	customEnv      *cel.Env
	customEnvOnce  sync.Once
	customEnvErr   error
	customPrograms sync.Map // validatorID -> cel.Program
)

func getCustomEnv() (*cel.Env, error) {
	customEnvOnce.Do(func() {
		customEnv, customEnvErr = cel.NewEnv(
			cel.Variable("value", cel.DynType),
		)
	})
	return customEnv, customEnvErr
}

func validateCustom(v value.Value, validatorID string) error {
	expr, ok := strings.CutPrefix(validatorID, "cel:")
	if !ok {
		return fmt.Errorf("unknown custom validator id %q (expected \"cel:<expr>\")", validatorID)
	}

	prg, err := compileCustom(expr)
	if err != nil {
		return fmt.Errorf("custom validator %q failed to compile: %w", expr, err)
	}

	out, _, err := prg.Eval(map[string]interface{}{"value": toCELValue(v)})
	if err != nil {
		return fmt.Errorf("custom validator %q evaluation error: %w", expr, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return fmt.Errorf("custom validator %q did not return a boolean", expr)
	}
	if !ok {
		return fmt.Errorf("value failed custom validator %q", expr)
	}
	return nil
}

func compileCustom(expr string) (cel.Program, error) {
	if cached, ok := customPrograms.Load(expr); ok {
		return cached.(cel.Program), nil
	}

	env, err := getCustomEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	customPrograms.Store(expr, prg)
	return prg, nil
}

func toCELValue(v value.Value) interface{} {
	switch v.Kind {
	case value.KindString:
		return v.AsString()
	case value.KindInteger:
		return v.AsInt()
	case value.KindBoolean:
		return v.AsBool()
	case value.KindList:
		out := make([]interface{}, 0, len(v.AsList()))
		for _, item := range v.AsList() {
			out = append(out, toCELValue(item))
		}
		return out
	case value.KindMap:
		out := make(map[string]interface{}, len(v.AsMap()))
		for k, item := range v.AsMap() {
			out[k] = toCELValue(item)
		}
		return out
	default:
		return nil
	}
}
