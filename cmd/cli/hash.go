package cli

// cmd/cli/hash.go — CLI wrapper for the protein hasher.

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codeforge/core"
	"codeforge/core/sourcelang"
)

// ---------------------------------------------------------------------------
// Controllers
// ---------------------------------------------------------------------------

func hashSource(path string) (core.ProteinHash, core.StructuralMetrics) {
	src, err := os.ReadFile(path)
	bail(err)
	fn, err := sourcelang.Parse(string(src))
	bail(err)
	ph, metrics, err := core.ComputeProteinHash(fn)
	bail(err)
	return ph, metrics
}

func hashHandler(cmd *cobra.Command, args []string) {
	ph, m := hashSource(args[0])
	fmt.Printf("%s\n", ph)
	fmt.Printf("   nodes: %d  edges: %d\n", m.NodeCount, m.EdgeCount)
	fmt.Printf("   complexity: %.4f  purity: %.4f\n", m.Complexity, m.Purity)
	fmt.Printf("   eigenvalues: %v\n", m.Eigenvalues)
}

func hashCompareHandler(cmd *cobra.Command, args []string) {
	phA, mA := hashSource(args[0])
	phB, mB := hashSource(args[1])
	sim := core.CosineSimilarity(mA.Eigenvalues, mB.Eigenvalues)
	fmt.Printf("a: %s\nb: %s\n", phA, phB)
	fmt.Printf("similarity: %.6f  identical: %v\n", sim, phA == phB)
}

// ---------------------------------------------------------------------------
// CLI definitions
// ---------------------------------------------------------------------------

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "structural (protein) hashing of source functions",
}

var hashOfCmd = &cobra.Command{
	Use:   "of <source-file>",
	Short: "print the structural hash and metrics of a source function",
	Args:  cobra.ExactArgs(1),
	Run:   hashHandler,
}

var hashCompareCmd = &cobra.Command{
	Use:   "compare <source-a> <source-b>",
	Short: "cosine similarity between two functions' eigenvalue vectors",
	Args:  cobra.ExactArgs(2),
	Run:   hashCompareHandler,
}

func init() {
	hashCmd.AddCommand(hashOfCmd, hashCompareCmd)
}

// ---------------------------------------------------------------------------
// Consolidated route export
// ---------------------------------------------------------------------------

// HashCmd is the hash command group exported to the root CLI.
var HashCmd = hashCmd
