// core/protein_hash.go
package core

// Structural hashing ("protein hashing"): reduce a function to its logical
// graph, derive the graph Laplacian, extract its top eigenvalues by power
// iteration with deflation, quantize them, and hash the quantized sequence
// together with the sorted node labels (which carry operator and callee
// names the spectrum cannot see). The result is stable under variable
// renaming and reformatting but changes whenever the graph's shape or an
// operator or callee changes — which is the point:
// it is a structural fingerprint, not a text fingerprint.

import (
	"crypto/sha256"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"codeforge/core/sourcelang"
)

const (
	proteinTopK         = 5
	proteinMaxIter       = 50
	proteinQuantizeScale = 1000
)

// ProteinHash is the structural fingerprint of a function, formatted
// "phash:v1:sha256:<hex>".
type ProteinHash string

// StructuralMetrics accompanies a ProteinHash with the scalar summaries
// and eigenvalue sidecar the manifest record and policy engine read:
// cyclomatic complexity, a purity score, the graph's node/edge counts,
// and the quantized top-K eigenvalue vector itself.
type StructuralMetrics struct {
	Complexity  float64
	Purity      float64
	NodeCount   int
	EdgeCount   int
	Eigenvalues []float64
}

// CosineSimilarity compares two eigenvalue vectors, zero-padding the
// shorter to the longer's length. It is the similarity measure between
// two structural hashes.
func CosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		var av, bv float64
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ComputeProteinHash reduces fn to its logical graph and returns its
// structural fingerprint together with complexity/purity metrics.
func ComputeProteinHash(fn *sourcelang.FuncDecl) (ProteinHash, StructuralMetrics, error) {
	g := BuildLogicalGraph(fn)
	n := len(g.Nodes)
	if n == 0 {
		return "", StructuralMetrics{}, fmt.Errorf("core: empty logical graph")
	}

	laplacian := buildLaplacian(g, n)
	eigenvalues := topKEigenvalues(laplacian, proteinTopK, proteinMaxIter, int64(n))
	sort.Sort(sort.Reverse(sort.Float64Slice(eigenvalues)))

	quantized := make([]string, len(eigenvalues))
	for i, ev := range eigenvalues {
		q := math.Round(ev*proteinQuantizeScale) / proteinQuantizeScale
		quantized[i] = strconvFloat(q)
	}
	// The Laplacian ignores node labels, so a + b and a - b share a
	// spectrum; the sorted label multiset is hashed with the eigenvalues so
	// that an operator or callee change still changes the hash.
	labels := make([]string, n)
	for i, node := range g.Nodes {
		labels[i] = node.label
	}
	sort.Strings(labels)
	joined := strings.Join(quantized, ",") + "|" + strings.Join(labels, ",")
	sum := sha256.Sum256([]byte(joined))
	ph := ProteinHash(fmt.Sprintf("phash:v1:sha256:%x", sum))

	quantizedValues := make([]float64, len(eigenvalues))
	for i, ev := range eigenvalues {
		quantizedValues[i] = math.Round(ev*proteinQuantizeScale) / proteinQuantizeScale
	}

	metrics := StructuralMetrics{
		Complexity:  complexityOf(g),
		Purity:      purityOf(g),
		NodeCount:   n,
		EdgeCount:   len(g.Edges),
		Eigenvalues: quantizedValues,
	}
	return ph, metrics, nil
}

// strconvFloat formats a quantized eigenvalue at the fixed precision
// implied by the Q=1000 grid (three decimal places), so the comma-joined
// sequence hashed in step 5 is byte-stable across platforms.
func strconvFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func buildLaplacian(g *LogicalGraph, n int) *mat.Dense {
	adjacency := mat.NewDense(n, n, nil)
	degree := make([]float64, n)
	for _, e := range g.Edges {
		a, b := e[0], e[1]
		adjacency.Set(a, b, adjacency.At(a, b)+1)
		adjacency.Set(b, a, adjacency.At(b, a)+1)
		degree[a]++
		degree[b]++
	}
	laplacian := mat.NewDense(n, n, nil)
	laplacian.Sub(diagMatrix(degree), adjacency)
	return laplacian
}

func diagMatrix(d []float64) *mat.Dense {
	n := len(d)
	m := mat.NewDense(n, n, nil)
	for i, v := range d {
		m.Set(i, i, v)
	}
	return m
}

// topKEigenvalues extracts up to k dominant eigenvalues of the symmetric
// matrix L by power iteration with Hotelling deflation. The starting vector
// for each iteration is drawn from a PRNG seeded by the graph size, so the
// same graph always yields the same sequence of eigenvalues.
func topKEigenvalues(l *mat.Dense, k, maxIter int, seed int64) []float64 {
	n, _ := l.Dims()
	if k > n {
		k = n
	}
	working := mat.DenseCopyOf(l)
	rng := rand.New(rand.NewSource(seed))
	eigenvalues := make([]float64, 0, k)

	for i := 0; i < k; i++ {
		v := randomUnitVector(n, rng)
		lambda := powerIterate(working, v, maxIter)
		eigenvalues = append(eigenvalues, lambda)
		deflate(working, v, lambda)
	}
	return eigenvalues
}

func randomUnitVector(n int, rng *rand.Rand) *mat.VecDense {
	data := make([]float64, n)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	v := mat.NewVecDense(n, data)
	normalize(v)
	return v
}

func normalize(v *mat.VecDense) {
	norm := mat.Norm(v, 2)
	if norm == 0 {
		return
	}
	v.ScaleVec(1/norm, v)
}

// powerIterate mutates v in place across maxIter iterations and returns the
// Rayleigh quotient v^T A v / v^T v for the final vector.
func powerIterate(a *mat.Dense, v *mat.VecDense, maxIter int) float64 {
	n, _ := a.Dims()
	next := mat.NewVecDense(n, nil)
	for iter := 0; iter < maxIter; iter++ {
		next.MulVec(a, v)
		if mat.Norm(next, 2) == 0 {
			break
		}
		normalize(next)
		v.CopyVec(next)
	}
	av := mat.NewVecDense(n, nil)
	av.MulVec(a, v)
	return mat.Dot(v, av)
}

// deflate removes v's contribution from a (Hotelling deflation), so the
// next power iteration converges to the next-largest eigenvalue.
func deflate(a *mat.Dense, v *mat.VecDense, lambda float64) {
	n, _ := a.Dims()
	outer := mat.NewDense(n, n, nil)
	outer.Outer(lambda, v, v)
	a.Sub(a, outer)
}

// complexityOf computes a McCabe-style complexity from the logical graph's
// edge and node counts: max(0, |E| - |V| + 2) / |V|.
func complexityOf(g *LogicalGraph) float64 {
	v := len(g.Nodes)
	if v == 0 {
		return 0
	}
	e := len(g.Edges)
	raw := float64(e-v+2)
	if raw < 0 {
		raw = 0
	}
	return raw / float64(v)
}

// purityOf starts at 1.0 and applies a multiplicative penalty per node
// kind: 0.9 for each call-like node that isn't a recognized pure-math
// call, 0.8 for each assignment-like node (let/assign). The source
// language has no suspension-like construct (no yield/coroutine form), so
// that term never applies here.
func purityOf(g *LogicalGraph) float64 {
	impureCalls, assignments := g.CountCallsNotIn(sourcelang.PureMathCalls)
	purity := 1.0
	for i := 0; i < impureCalls; i++ {
		purity *= 0.9
	}
	for i := 0; i < assignments; i++ {
		purity *= 0.8
	}
	if purity < 0 {
		purity = 0
	}
	return purity
}
