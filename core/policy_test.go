package core

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func TestPolicyDefaultDeny(t *testing.T) {
	e := NewPolicyEngine()
	decision, reason := e.Decide(PolicyInput{CID: "bafy-x"}, RuleSet{})
	if decision != DecisionDeny {
		t.Fatalf("expected default deny, got %s (%s)", decision, reason)
	}
}

func TestPolicyFirstMatchWins(t *testing.T) {
	e := NewPolicyEngine()
	rules := RuleSet{Rules: []Rule{
		{Name: "warn-everything", Decision: DecisionWarn},
		{Name: "allow-everything", Decision: DecisionAllow},
	}}
	decision, _ := e.Decide(PolicyInput{}, rules)
	if decision != DecisionWarn {
		t.Fatalf("expected first matching rule to win, got %s", decision)
	}
}

func TestPolicyResonanceRule(t *testing.T) {
	e := NewPolicyEngine()
	hz := 432
	rules := RuleSet{Rules: []Rule{{
		Name: "resonance-gate", Decision: DecisionAllow, RequireResonanceHz: &hz,
	}}}

	if d, _ := e.Decide(PolicyInput{ResonanceHz: 432}, rules); d != DecisionAllow {
		t.Fatalf("matching resonance should allow, got %s", d)
	}
	if d, _ := e.Decide(PolicyInput{ResonanceHz: 440}, rules); d != DecisionDeny {
		t.Fatalf("mismatched resonance should fall through to deny, got %s", d)
	}
}

func TestPolicyCIDWhitelist(t *testing.T) {
	e := NewPolicyEngine()
	rules := RuleSet{Rules: []Rule{{
		Name: "whitelist", Decision: DecisionAllow,
		RequireCIDInWhitelist: true, CIDWhitelist: []CID{"bafy-good"},
	}}}

	if d, _ := e.Decide(PolicyInput{CID: "bafy-good"}, rules); d != DecisionAllow {
		t.Fatalf("whitelisted cid should allow, got %s", d)
	}
	if d, _ := e.Decide(PolicyInput{CID: "bafy-evil"}, rules); d != DecisionDeny {
		t.Fatalf("unlisted cid should deny, got %s", d)
	}
}

func TestPolicyGasBudgetRule(t *testing.T) {
	e := NewPolicyEngine()
	maxGas := uint64(10_000)
	rules := RuleSet{Rules: []Rule{{
		Name: "budget", Decision: DecisionAllow, MaxDeclaredGas: &maxGas,
	}}}

	if d, _ := e.Decide(PolicyInput{DeclaredGas: 10_000}, rules); d != DecisionAllow {
		t.Fatalf("gas at cap should allow, got %s", d)
	}
	if d, _ := e.Decide(PolicyInput{DeclaredGas: 10_001}, rules); d != DecisionDeny {
		t.Fatalf("gas over cap should deny, got %s", d)
	}
}

func TestPolicyStructuralSimilarityRule(t *testing.T) {
	e := NewPolicyEngine()
	min := 0.95
	rules := RuleSet{Rules: []Rule{{
		Name: "lookalike", Decision: DecisionAllow,
		MinStructuralSimilarity: &min, SimilarityReference: "phash:v1:sha256:ref",
	}}}

	similar := PolicyInput{StructuralSimilarityTo: func(ProteinHash) float64 { return 0.99 }}
	if d, _ := e.Decide(similar, rules); d != DecisionAllow {
		t.Fatalf("similar input should allow, got %s", d)
	}
	distant := PolicyInput{StructuralSimilarityTo: func(ProteinHash) float64 { return 0.5 }}
	if d, _ := e.Decide(distant, rules); d != DecisionDeny {
		t.Fatalf("distant input should deny, got %s", d)
	}
	// No similarity oracle at all: the predicate cannot hold.
	if d, _ := e.Decide(PolicyInput{}, rules); d != DecisionDeny {
		t.Fatalf("missing similarity oracle should deny, got %s", d)
	}
}

func TestPolicyTrustedSignatureRule(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	cid := CID("bafy-signed")
	digest := sha256.Sum256([]byte(cid))
	r, s, err := ecdsa.Sign(rand.Reader, priv.ToECDSA(), digest[:])
	if err != nil {
		t.Fatal(err)
	}
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])

	e := NewPolicyEngine()
	rules := RuleSet{
		Rules:             []Rule{{Name: "signed", Decision: DecisionAllow, RequireTrustedSignature: true}},
		TrustedPublicKeys: []*secp256k1.PublicKey{priv.PubKey()},
	}

	if d, _ := e.Decide(PolicyInput{CID: cid, SignatureToken: sig}, rules); d != DecisionAllow {
		t.Fatalf("valid signature should allow, got %s", d)
	}
	bad := append([]byte{}, sig...)
	bad[10] ^= 0xff
	if d, _ := e.Decide(PolicyInput{CID: cid, SignatureToken: bad}, rules); d != DecisionDeny {
		t.Fatalf("tampered signature should deny, got %s", d)
	}
	if d, _ := e.Decide(PolicyInput{CID: cid}, rules); d != DecisionDeny {
		t.Fatalf("absent signature should deny, got %s", d)
	}
}
