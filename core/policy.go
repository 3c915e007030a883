// core/policy.go
package core

// The policy engine evaluates an admission decision for an execution
// request against a set of declarative rules. Evaluation is pure and
// side-effect free: no storage is read or written, and rule conditions
// are never compiled from strings — every rule is one of the fixed
// comparators below.

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Decision is the outcome of evaluating a PolicyInput against a rule set.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionWarn  Decision = "warn"
	DecisionDeny  Decision = "deny"
)

// PolicyInput is the structured, transient record describing one
// execution request. It is never persisted.
type PolicyInput struct {
	CID              CID
	Structural       ProteinHash
	HasVerifiedCID   bool // true only once the resolver has actually verified bytes for CID
	StructuralSimilarityTo func(ProteinHash) float64 // cosine similarity against a reference set, nil if unavailable
	DeclaredGas      uint64
	DeclaredMemory   uint64
	DeclaredTimeoutMS int
	CallerIdentity   string
	FunctionName     string
	Version          string
	Tags             []string
	ResonanceHz      int
	Complexity       float64
	SignatureToken   []byte // raw signature bytes over CID, checked against TrustedPublicKeys
}

// Rule is one declarative predicate over a PolicyInput. Decision names
// what happens if the predicate holds. The schema is fixed and
// non-Turing-complete; arbitrary code evaluation is not a rule form.
type Rule struct {
	Name     string
	Decision Decision

	RequireVerifiedStructural bool
	MinStructuralSimilarity   *float64
	SimilarityReference       ProteinHash

	RequireTrustedSignature bool

	RequireCIDInWhitelist bool
	CIDWhitelist          []CID

	MaxDeclaredGas    *uint64
	MaxComplexity     *float64
	ComplexityGasRatioMax *float64 // declared gas must be >= complexity * this, else fails consistency

	RequireResonanceHz *int
}

// RuleSet is an ordered list of rules, evaluated in order; the first rule
// whose predicate matches determines the decision. If no rule matches,
// the default is deny.
type RuleSet struct {
	Rules             []Rule
	TrustedPublicKeys []*secp256k1.PublicKey
}

// PolicyEngine evaluates requests against a RuleSet. It holds no mutable
// state: Decide is a pure function of its two arguments.
type PolicyEngine struct{}

// NewPolicyEngine constructs a PolicyEngine.
func NewPolicyEngine() *PolicyEngine { return &PolicyEngine{} }

// Decide evaluates input against rules in order and returns the first
// matching rule's decision plus a human-readable reason. Absent any match,
// the result is deny with a generic "no matching rule" reason.
func (e *PolicyEngine) Decide(input PolicyInput, rules RuleSet) (Decision, string) {
	for _, r := range rules.Rules {
		if ruleMatches(r, input, rules.TrustedPublicKeys) {
			return r.Decision, fmt.Sprintf("rule %q matched", r.Name)
		}
	}
	return DecisionDeny, "no matching rule: default deny"
}

func ruleMatches(r Rule, in PolicyInput, trusted []*secp256k1.PublicKey) bool {
	if r.RequireVerifiedStructural && !in.HasVerifiedCID {
		return false
	}
	if r.MinStructuralSimilarity != nil {
		if in.StructuralSimilarityTo == nil {
			return false
		}
		if in.StructuralSimilarityTo(r.SimilarityReference) < *r.MinStructuralSimilarity {
			return false
		}
	}
	if r.RequireTrustedSignature {
		if !verifyTrustedSignature(in.CID, in.SignatureToken, trusted) {
			return false
		}
	}
	if r.RequireCIDInWhitelist {
		if !cidInList(in.CID, r.CIDWhitelist) {
			return false
		}
	}
	if r.MaxDeclaredGas != nil && in.DeclaredGas > *r.MaxDeclaredGas {
		return false
	}
	if r.MaxComplexity != nil && in.Complexity > *r.MaxComplexity {
		return false
	}
	if r.ComplexityGasRatioMax != nil {
		required := in.Complexity * (*r.ComplexityGasRatioMax)
		if float64(in.DeclaredGas) < required {
			return false
		}
	}
	if r.RequireResonanceHz != nil && in.ResonanceHz != *r.RequireResonanceHz {
		return false
	}
	return true
}

func cidInList(cid CID, list []CID) bool {
	for _, c := range list {
		if c == cid {
			return true
		}
	}
	return false
}

// verifyTrustedSignature checks sig (a raw 64-byte r||s ECDSA signature)
// over cid's bytes against every key in trusted, succeeding if any one
// verifies. This is the policy engine's only cryptographic rule;
// everything else is plain attribute comparison.
func verifyTrustedSignature(cid CID, sig []byte, trusted []*secp256k1.PublicKey) bool {
	r, s, err := decodeFixedSig(sig)
	if err != nil {
		return false
	}
	digest := sha256.Sum256([]byte(cid))
	for _, pk := range trusted {
		if ecdsa.Verify(pk.ToECDSA(), digest[:], r, s) {
			return true
		}
	}
	return false
}

func decodeFixedSig(sig []byte) (r, s *big.Int, err error) {
	if len(sig) != 64 {
		return nil, nil, errors.New("core: policy: signature must be 64 bytes (r||s)")
	}
	return new(big.Int).SetBytes(sig[:32]), new(big.Int).SetBytes(sig[32:]), nil
}
