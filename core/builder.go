// core/builder.go
package core

// The artifact builder turns one function's source text into a
// content-addressed, executable artifact: parse, compile to WASM with the
// deterministic toolchain in core/wasmgen, derive the structural
// fingerprint, and derive the byte-CID over the compiled bytes. Because
// wasmgen.Compile is a pure function of the parsed AST, building the same
// source twice always yields the same CID.

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"codeforge/core/sourcelang"
	"codeforge/core/wasmgen"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Artifact is the output of a successful build: a compiled module plus the
// metadata the manifest, cache, and policy engine all key off of.
type Artifact struct {
	CID         CID
	ProteinHash ProteinHash
	Metrics     StructuralMetrics
	WASM        []byte
	FuncName    string
}

// Builder compiles source functions into artifacts.
type Builder struct{}

// NewBuilder constructs a Builder. It holds no state; every Build call is
// independent and side-effect free.
func NewBuilder() *Builder { return &Builder{} }

// Build parses src as a single function declaration, compiles it to WASM,
// and returns the resulting artifact.
func (b *Builder) Build(src string) (*Artifact, error) {
	fn, err := sourcelang.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("core: build: parse: %w", err)
	}

	wasmBytes, err := wasmgen.Compile(fn)
	if err != nil {
		return nil, fmt.Errorf("core: build: compile %s: %w", fn.Name, err)
	}

	phash, metrics, err := ComputeProteinHash(fn)
	if err != nil {
		return nil, fmt.Errorf("core: build: structural hash %s: %w", fn.Name, err)
	}

	cid, err := ComputeCID(wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("core: build: cid %s: %w", fn.Name, err)
	}

	return &Artifact{
		CID:         cid,
		ProteinHash: phash,
		Metrics:     metrics,
		WASM:        wasmBytes,
		FuncName:    fn.Name,
	}, nil
}

// Verify recomputes data's CID and compares it against the artifact's,
// returning ErrCIDMismatch if the bytes have been altered in transit or on
// disk. It is a thin alias of VerifyCID, which is what the resolver's
// non-cache paths call (through verifyAgainst) before trusting the bytes.
func Verify(data []byte, want CID) error {
	return VerifyCID(data, want)
}

// ToRecord builds the manifest row for a freshly built artifact: byte
// length and SHA-256 recomputed from the artifact's own bytes (never
// trusted from elsewhere), the structural hash and its quantized
// eigenvalue sidecar, and the declared signature sourcelang.Parse
// produced, so execute-time marshalling can honor the source's declared
// scalar types even though the compiled WASM export only exposes
// i32/i64/f64.
func (a *Artifact) ToRecord(fn *sourcelang.FuncDecl, lang, manifestPath string, labels []string) ArtifactRecord {
	sum := sha256Hex(a.WASM)
	params := make([]ParamSignature, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = ParamSignature{Name: p.Name, Type: p.Type.String()}
	}
	return ArtifactRecord{
		Name:         a.FuncName,
		Lang:         lang,
		CID:          a.CID,
		SHA256:       sum,
		Size:         int64(len(a.WASM)),
		ASTHash:      a.ProteinHash,
		Phi: &PhiVector{
			Op:     "laplacian-topk",
			K:      proteinTopK,
			Quant:  proteinQuantizeScale,
			Values: a.Metrics.Eigenvalues,
		},
		Labels:       labels,
		ManifestPath: manifestPath,
		Entry:        a.FuncName,
		Signature:    &Signature{Params: params, Return: fn.Return.String()},
	}
}
