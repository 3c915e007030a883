package core

import (
	"context"
	"testing"
	"time"

	"codeforge/core/sourcelang"
)

func buildFor(t *testing.T, src string) *Artifact {
	t.Helper()
	a, err := NewBuilder().Build(src)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func sigOf(params []sourcelang.Param, ret sourcelang.Type, entry string) CallSignature {
	return CallSignature{Entry: entry, Params: params, Return: ret}
}

func TestSandboxExecutesScalarFunction(t *testing.T) {
	a := buildFor(t, `func mul(a: i32, b: i32) -> i32 { return a * b; }`)
	sb := NewSandbox()
	sig := sigOf([]sourcelang.Param{{Name: "a", Type: sourcelang.TypeI32}, {Name: "b", Type: sourcelang.TypeI32}}, sourcelang.TypeI32, "mul")

	res, err := sb.Execute(context.Background(), a.WASM, sig, ExecInput{Positional: []any{6, 7}}, DefaultExecLimits(), ExecOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.FinalState != StateCompleted {
		t.Fatalf("expected completion, got %+v", res)
	}
	if out, ok := res.Output.(int32); !ok || out != 42 {
		t.Fatalf("expected 42, got %v", res.Output)
	}
}

func TestSandboxBoolCoercion(t *testing.T) {
	a := buildFor(t, `func gt(a: i32, b: i32) -> bool { return a > b; }`)
	sb := NewSandbox()
	sig := sigOf([]sourcelang.Param{{Name: "a", Type: sourcelang.TypeI32}, {Name: "b", Type: sourcelang.TypeI32}}, sourcelang.TypeBool, "gt")

	res, err := sb.Execute(context.Background(), a.WASM, sig, ExecInput{Positional: []any{5, 3}}, DefaultExecLimits(), ExecOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if out, ok := res.Output.(bool); !ok || !out {
		t.Fatalf("expected true, got %v (%T)", res.Output, res.Output)
	}
}

func TestSandboxOutOfGas(t *testing.T) {
	a := buildFor(t, `func spin(n: i32) -> i32 { let i = 0; while (i < n) { i = i + 1; } return i; }`)
	sb := NewSandbox()
	sig := sigOf([]sourcelang.Param{{Name: "n", Type: sourcelang.TypeI32}}, sourcelang.TypeI32, "spin")

	limits := ExecLimits{Gas: MinGas, Timeout: 10 * time.Second}
	res, err := sb.Execute(context.Background(), a.WASM, sig, ExecInput{Positional: []any{100_000_000}}, limits, ExecOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.ErrorType != ErrTypeOutOfGas {
		t.Fatalf("expected out_of_gas, got %+v", res)
	}
	if res.GasUsed != MinGas {
		t.Fatalf("reported gas must stop at the budget, got %d", res.GasUsed)
	}
}

func TestSandboxTimeout(t *testing.T) {
	a := buildFor(t, `func forever() -> i32 { let i = 0; while (0 < 1) { i = i + 1; } return i; }`)
	sb := NewSandbox()
	sig := sigOf(nil, sourcelang.TypeI32, "forever")

	limits := ExecLimits{Gas: MaxGas, Timeout: 150 * time.Millisecond}
	res, err := sb.Execute(context.Background(), a.WASM, sig, ExecInput{}, limits, ExecOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.ErrorType != ErrTypeTimeout {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if res.Duration < 100*time.Millisecond {
		t.Fatalf("duration must roughly cover the deadline, got %s", res.Duration)
	}
}

func TestSandboxRejectsWrongArity(t *testing.T) {
	a := buildFor(t, `func add(a: i32, b: i32) -> i32 { return a + b; }`)
	sb := NewSandbox()
	sig := sigOf([]sourcelang.Param{{Name: "a", Type: sourcelang.TypeI32}, {Name: "b", Type: sourcelang.TypeI32}}, sourcelang.TypeI32, "add")

	_, err := sb.Execute(context.Background(), a.WASM, sig, ExecInput{Positional: []any{1}}, DefaultExecLimits(), ExecOptions{})
	if err == nil {
		t.Fatal("expected arity mismatch to fail")
	}
}

func TestSandboxRejectsUnsupportedType(t *testing.T) {
	a := buildFor(t, `func id(a: i32) -> i32 { return a; }`)
	sb := NewSandbox()
	sig := sigOf([]sourcelang.Param{{Name: "a", Type: sourcelang.TypeI32}}, sourcelang.TypeI32, "id")

	_, err := sb.Execute(context.Background(), a.WASM, sig, ExecInput{Positional: []any{"a string"}}, DefaultExecLimits(), ExecOptions{})
	if err == nil {
		t.Fatal("expected unsupported scalar to fail")
	}
}

func TestSandboxMissingExport(t *testing.T) {
	a := buildFor(t, `func real() -> i32 { return 1; }`)
	sb := NewSandbox()
	sig := sigOf(nil, sourcelang.TypeI32, "imaginary")

	if _, err := sb.Execute(context.Background(), a.WASM, sig, ExecInput{}, DefaultExecLimits(), ExecOptions{}); err == nil {
		t.Fatal("expected missing export to be a setup error")
	}
}

func TestExecLimitsClamp(t *testing.T) {
	l := ExecLimits{MemoryBytes: 1, Gas: 1, Timeout: time.Millisecond}.Clamp()
	if l.MemoryBytes != MinMemoryBytes || l.Gas != MinGas || l.Timeout != MinTimeout {
		t.Fatalf("under-range limits must clamp up, got %+v", l)
	}
	h := ExecLimits{MemoryBytes: 1 << 40, Gas: 1 << 62, Timeout: time.Hour}.Clamp()
	if h.MemoryBytes != MaxMemoryBytes || h.Gas != MaxGas || h.Timeout != MaxTimeout {
		t.Fatalf("over-range limits must clamp down, got %+v", h)
	}
	z := ExecLimits{}.Clamp()
	if z != DefaultExecLimits() {
		t.Fatalf("zero limits must become defaults, got %+v", z)
	}
}
