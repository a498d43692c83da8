package cel

import (
	"context"
	"strings"
	"testing"

	"github.com/Sentinel-Gate/hookchain/internal/domain/hook"
)

func testRecord() *hook.Record {
	return &hook.Record{
		Method:   hook.MethodGet,
		Type:     hook.PhaseBefore,
		ID:       5,
		Params:   hook.Params{"tenant": "acme", "limit": 10},
		Provider: "rest",
	}
}

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	if eval == nil {
		t.Fatal("NewEvaluator() returned nil")
	}
}

func TestCompile_CachesPrograms(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	if _, err := eval.Compile(`method == "get"`); err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if _, err := eval.Compile(`method == "get"`); err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if got := len(eval.programs); got != 1 {
		t.Errorf("cached programs = %d, want 1", got)
	}
}

func TestCompile_InvalidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	_, err = eval.Compile(`this is not valid CEL !!!`)
	if err == nil {
		t.Fatal("Compile() expected error for invalid expression, got nil")
	}
}

func TestEvaluate_RecordVariables(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`method == "get"`, true},
		{`type == "after"`, false},
		{`provider == "rest"`, true},
		{`id == 5`, true},
		{`data == null`, true},
		{`params.tenant == "acme"`, true},
		{`"limit" in params && params.limit > 5`, true},
		{`param(params, "missing") == null`, true},
		{`glob("g*", method)`, true},
		{`has_result`, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			prg, err := eval.Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile() error: %v", err)
			}
			got, err := eval.Evaluate(context.Background(), prg, testRecord())
			if err != nil {
				t.Fatalf("Evaluate() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%s) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_NonBoolean(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`method`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if _, err := eval.Evaluate(context.Background(), prg, testRecord()); err == nil {
		t.Fatal("Evaluate() expected error for non-boolean result")
	}
}

func TestValidateExpression_Limits(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	if err := eval.ValidateExpression(""); err == nil {
		t.Error("empty expression should fail validation")
	}
	if err := eval.ValidateExpression(strings.Repeat("a", maxExpressionLength+1)); err == nil {
		t.Error("overlong expression should fail validation")
	}
	deep := strings.Repeat("(", maxNestingDepth+1) + "true" + strings.Repeat(")", maxNestingDepth+1)
	if err := eval.ValidateExpression(deep); err == nil {
		t.Error("deeply nested expression should fail validation")
	}
}

func TestCondition_WithHookWhen(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	cond, err := eval.Condition(`params.tenant == "acme"`)
	if err != nil {
		t.Fatalf("Condition() error: %v", err)
	}

	tag := hook.Direct(func(ctx context.Context, rec *hook.Record) (*hook.Record, error) {
		next := rec.Clone()
		next.Params["tagged"] = true
		return next, nil
	})

	got, err := hook.NewChain(nil).Run(context.Background(), []hook.Interceptor{hook.When(cond, tag)}, testRecord(), nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got.Params["tagged"] != true {
		t.Errorf("params.tagged = %v, want true", got.Params["tagged"])
	}

	other := testRecord()
	other.Params["tenant"] = "globex"
	got, err = hook.NewChain(nil).Run(context.Background(), []hook.Interceptor{hook.When(cond, tag)}, other, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if _, ok := got.Params["tagged"]; ok {
		t.Error("non-matching record should not be tagged")
	}
}

func TestCondition_InvalidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	if _, err := eval.Condition(`params.`); err == nil {
		t.Fatal("Condition() expected error for invalid expression")
	}
}
