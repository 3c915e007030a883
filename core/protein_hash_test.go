package core

import (
	"strings"
	"testing"

	"codeforge/core/sourcelang"
)

func mustParse(t *testing.T, src string) *sourcelang.FuncDecl {
	t.Helper()
	fn, err := sourcelang.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return fn
}

func TestProteinHashFormat(t *testing.T) {
	fn := mustParse(t, `func add(a: i32, b: i32) -> i32 { return a + b; }`)
	ph, _, err := ComputeProteinHash(fn)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(ph), "phash:v1:sha256:") {
		t.Fatalf("unexpected format: %s", ph)
	}
}

func TestProteinHashStableAcrossRenaming(t *testing.T) {
	a := mustParse(t, `func add(a: i32, b: i32) -> i32 { return a + b; }`)
	b := mustParse(t, `func sum(x: i32, y: i32) -> i32 { return x + y; }`)
	ha, _, err := ComputeProteinHash(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, _, err := ComputeProteinHash(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("expected identical structural hash under renaming, got %s vs %s", ha, hb)
	}
}

func TestProteinHashDiffersOnStructure(t *testing.T) {
	a := mustParse(t, `func f(a: i32, b: i32) -> i32 { return a + b; }`)
	b := mustParse(t, `func f(a: i32, b: i32) -> i32 { return a - b; }`)
	ha, _, _ := ComputeProteinHash(a)
	hb, _, _ := ComputeProteinHash(b)
	if ha == hb {
		t.Fatal("expected different structural hash for different operators")
	}
}

func TestComplexityAndPurity(t *testing.T) {
	pure := mustParse(t, `func f(a: i32) -> i32 { return abs(a); }`)
	_, m, err := ComputeProteinHash(pure)
	if err != nil {
		t.Fatal(err)
	}
	if m.Purity != 1.0 {
		t.Fatalf("expected pure-math call to have full purity, got %f", m.Purity)
	}

	impure := mustParse(t, `func f(a: i32) -> i32 { return mystery(a); }`)
	_, m2, err := ComputeProteinHash(impure)
	if err != nil {
		t.Fatal(err)
	}
	if m2.Purity >= m.Purity {
		t.Fatalf("expected unrecognized call to reduce purity below %f, got %f", m.Purity, m2.Purity)
	}

	if m.Complexity < 0 {
		t.Fatalf("complexity should never be negative, got %f", m.Complexity)
	}
}
