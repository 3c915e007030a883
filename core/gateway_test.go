package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	logrus "github.com/sirupsen/logrus"

	"codeforge/pkg/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Runtime.Enabled = true
	cfg.Runtime.CanaryFraction = 1.0
	cfg.Limits.DefaultMemoryBytes = 1 << 20
	cfg.Limits.DefaultGas = 1_000_000
	cfg.Limits.DefaultTimeoutMS = 5_000
	return cfg
}

// newTestGateway builds a full gateway over a freshly built `add`
// artifact whose bytes sit on disk behind a manifest hint, so the first
// resolution exercises the local-file path and later ones the cache.
func newTestGateway(t *testing.T) (*Gateway, CID) {
	t.Helper()
	dir := t.TempDir()

	artifact, err := NewBuilder().Build(`func add(a: i32, b: i32) -> i32 { return a + b; }`)
	if err != nil {
		t.Fatal(err)
	}
	wasmPath := filepath.Join(dir, "add.wasm")
	if err := os.WriteFile(wasmPath, artifact.WASM, 0o644); err != nil {
		t.Fatal(err)
	}

	cache, err := NewCache(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	idx := NewManifestIndex()
	rec := ArtifactRecord{
		Name: "add", Lang: "codeforge", CID: artifact.CID,
		SHA256: sha256Hex(artifact.WASM), Size: int64(len(artifact.WASM)),
		ASTHash: artifact.ProteinHash, ManifestPath: wasmPath, Entry: "add",
		Signature: &Signature{
			Params: []ParamSignature{{Name: "a", Type: "i32"}, {Name: "b", Type: "i32"}},
			Return: "i32",
		},
	}
	if err := idx.Insert(rec); err != nil {
		t.Fatal(err)
	}

	lg := logrus.New()
	lg.SetLevel(logrus.ErrorLevel)
	g := &Gateway{
		Control:     NewControlPlane(testConfig()),
		Engine:      NewPolicyEngine(),
		Rules:       RuleSet{Rules: []Rule{{Name: "allow-all", Decision: DecisionAllow}}},
		Resolver:    &Resolver{Cache: cache, Index: idx, Logger: lg},
		Sandbox:     NewSandbox(),
		Limiter:     NewRateLimiter(DefaultRateLimitConfig()),
		Idempotency: NewIdempotencyStore(time.Minute),
		Metrics:     NewMetrics(),
		Logger:      lg,
		Node:        "test-node",
	}
	return g, artifact.CID
}

func TestGatewaySubmitExecutes(t *testing.T) {
	g, cid := newTestGateway(t)
	res, err := g.Submit(context.Background(), ExecutionRequest{
		CID:    string(cid),
		Caller: "alice",
		Inputs: ExecInput{Positional: []any{2, 3}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if out, ok := res.Output.(int32); !ok || out != 5 {
		t.Fatalf("expected output 5, got %v (%T)", res.Output, res.Output)
	}
	if res.GasUsed == 0 {
		t.Fatal("expected nonzero gas accounting")
	}
	if res.ExecutorNode != "test-node" {
		t.Fatalf("expected executor node on result, got %q", res.ExecutorNode)
	}
}

func TestGatewayNamedInputs(t *testing.T) {
	g, cid := newTestGateway(t)
	res, err := g.Submit(context.Background(), ExecutionRequest{
		CID:    string(cid),
		Caller: "alice",
		Inputs: ExecInput{Named: map[string]any{"a": 10, "b": 4}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out, ok := res.Output.(int32); !ok || out != 14 {
		t.Fatalf("expected output 14, got %v", res.Output)
	}
}

func TestGatewayIdempotentReplay(t *testing.T) {
	g, cid := newTestGateway(t)
	req := ExecutionRequest{
		CID:            string(cid),
		Caller:         "alice",
		Inputs:         ExecInput{Positional: []any{2, 3}},
		IdempotencyKey: "order-12345",
	}
	first, err := g.Submit(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := g.Submit(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if first.RequestID != second.RequestID {
		t.Fatalf("replay must return the stored record: %s vs %s", first.RequestID, second.RequestID)
	}
}

func TestGatewayFrozenAndDisabled(t *testing.T) {
	g, cid := newTestGateway(t)
	req := ExecutionRequest{CID: string(cid), Caller: "alice", Inputs: ExecInput{Positional: []any{1, 2}}}

	tr, fa := true, false
	g.Control.Update(ControlPatch{Frozen: &tr})
	if _, err := g.Submit(context.Background(), req); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}

	g.Control.Update(ControlPatch{Frozen: &fa, Enabled: &fa})
	if _, err := g.Submit(context.Background(), req); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestGatewayCanaryRejection(t *testing.T) {
	g, cid := newTestGateway(t)
	zero := 0.0
	g.Control.Update(ControlPatch{CanaryFraction: &zero})
	_, err := g.Submit(context.Background(), ExecutionRequest{
		CID: string(cid), Caller: "alice", Inputs: ExecInput{Positional: []any{1, 2}},
	})
	if !errors.Is(err, ErrNotInCanary) {
		t.Fatalf("expected ErrNotInCanary, got %v", err)
	}
}

func TestGatewayRateLimit(t *testing.T) {
	g, cid := newTestGateway(t)
	g.Limiter = NewRateLimiter(RateLimitConfig{Limit: 2, Window: time.Minute, Burst: 2})
	req := ExecutionRequest{CID: string(cid), Caller: "bob", Inputs: ExecInput{Positional: []any{1, 2}}}

	for i := 0; i < 2; i++ {
		if _, err := g.Submit(context.Background(), req); err != nil {
			t.Fatalf("request %d should be admitted: %v", i, err)
		}
	}
	_, err := g.Submit(context.Background(), req)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rle *RateLimitError
	if !errors.As(err, &rle) || rle.RetryAfter != time.Minute {
		t.Fatalf("expected retry-after hint of one window, got %v", err)
	}

	// A different caller is unaffected.
	other := req
	other.Caller = "carol"
	if _, err := g.Submit(context.Background(), other); err != nil {
		t.Fatalf("other caller should be unaffected: %v", err)
	}
}

func TestGatewayPolicyDeny(t *testing.T) {
	g, cid := newTestGateway(t)
	g.Rules = RuleSet{} // no rules: default deny
	_, err := g.Submit(context.Background(), ExecutionRequest{
		CID: string(cid), Caller: "alice", Inputs: ExecInput{Positional: []any{1, 2}},
	})
	if !errors.Is(err, ErrPolicyDenied) {
		t.Fatalf("expected ErrPolicyDenied, got %v", err)
	}
}

func TestGatewayPolicyWarnMarksResult(t *testing.T) {
	g, cid := newTestGateway(t)
	g.Rules = RuleSet{Rules: []Rule{{Name: "flagged", Decision: DecisionWarn}}}
	res, err := g.Submit(context.Background(), ExecutionRequest{
		CID: string(cid), Caller: "alice", Inputs: ExecInput{Positional: []any{1, 2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.PolicyNotice == "" {
		t.Fatalf("warn must execute but mark the result, got %+v", res)
	}
}

func TestGatewayValidation(t *testing.T) {
	g, cid := newTestGateway(t)
	cases := []ExecutionRequest{
		{Caller: "alice"},           // missing cid
		{CID: string(cid)},          // missing caller
		{CID: string(cid), Caller: "a", IdempotencyKey: "short"},
		{CID: string(cid), Caller: "a", IdempotencyKey: "bad key with spaces"},
		{CID: string(cid), Caller: "a", Inputs: ExecInput{Positional: []any{1}, Named: map[string]any{"a": 1}}},
	}
	for i, req := range cases {
		if _, err := g.Submit(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}

func TestGatewayMalformedIdentifier(t *testing.T) {
	g, _ := newTestGateway(t)
	_, err := g.Submit(context.Background(), ExecutionRequest{
		CID: "definitely-not-a-cid", Caller: "alice",
	})
	if !errors.Is(err, ErrMalformedIdentifier) {
		t.Fatalf("expected ErrMalformedIdentifier, got %v", err)
	}
}

func TestGatewayLifecycleEventOrder(t *testing.T) {
	g, cid := newTestGateway(t)
	pub := NewEventPublisher()
	_, err := g.SubmitWithEvents(context.Background(), ExecutionRequest{
		CID: string(cid), Caller: "alice", Inputs: ExecInput{Positional: []any{1, 2}},
	}, pub)
	if err != nil {
		t.Fatal(err)
	}
	pub.Close()

	var kinds []EventKind
	for ev := range pub.Events() {
		kinds = append(kinds, ev.Kind)
	}
	want := []EventKind{EventQueued, EventStarted, EventCompleted}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
}

func TestGatewayOutOfGas(t *testing.T) {
	dir := t.TempDir()
	g, _ := newTestGateway(t)

	artifact, err := NewBuilder().Build(
		`func spin(n: i32) -> i32 { let i = 0; while (i < n) { i = i + 1; } return i; }`)
	if err != nil {
		t.Fatal(err)
	}
	wasmPath := filepath.Join(dir, "spin.wasm")
	if err := os.WriteFile(wasmPath, artifact.WASM, 0o644); err != nil {
		t.Fatal(err)
	}
	rec := ArtifactRecord{
		Name: "spin", Lang: "codeforge", CID: artifact.CID,
		SHA256: sha256Hex(artifact.WASM), Size: int64(len(artifact.WASM)),
		ManifestPath: wasmPath, Entry: "spin",
		Signature: &Signature{
			Params: []ParamSignature{{Name: "n", Type: "i32"}},
			Return: "i32",
		},
	}
	if err := g.Resolver.Index.Insert(rec); err != nil {
		t.Fatal(err)
	}

	res, err := g.Submit(context.Background(), ExecutionRequest{
		CID:    string(artifact.CID),
		Caller: "alice",
		Inputs: ExecInput{Positional: []any{10_000_000}},
		Policy: &RequestPolicy{MaxGas: 1_000},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.ErrorType != ErrTypeOutOfGas {
		t.Fatalf("expected out_of_gas termination, got %+v", res)
	}
	if res.GasUsed != 1_000 {
		t.Fatalf("expected gas_used clamped to the budget, got %d", res.GasUsed)
	}
}
