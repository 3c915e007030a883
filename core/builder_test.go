package core

import "testing"

func TestBuildProducesDeterministicCID(t *testing.T) {
	b := NewBuilder()
	src := `func add(a: i32, b: i32) -> i32 { return a + b; }`
	a1, err := b.Build(src)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := b.Build(src)
	if err != nil {
		t.Fatal(err)
	}
	if a1.CID != a2.CID {
		t.Fatalf("expected stable cid, got %s vs %s", a1.CID, a2.CID)
	}
	if a1.ProteinHash != a2.ProteinHash {
		t.Fatalf("expected stable protein hash, got %s vs %s", a1.ProteinHash, a2.ProteinHash)
	}
}

func TestBuildRejectsMalformedSource(t *testing.T) {
	b := NewBuilder()
	if _, err := b.Build(`func f(a: i32) -> i32 { return a +; }`); err == nil {
		t.Fatal("expected parse error to surface")
	}
}

func TestVerifyDetectsTamperedBytes(t *testing.T) {
	b := NewBuilder()
	a, err := b.Build(`func f(a: i32) -> i32 { return a; }`)
	if err != nil {
		t.Fatal(err)
	}
	if err := Verify(a.WASM, a.CID); err != nil {
		t.Fatalf("expected verification of untouched bytes to pass: %v", err)
	}
	tampered := append([]byte{}, a.WASM...)
	tampered[len(tampered)-1] ^= 0xff
	if err := Verify(tampered, a.CID); err == nil {
		t.Fatal("expected tampered bytes to fail verification")
	}
}
