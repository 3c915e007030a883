package cli

// cmd/cli/resolve.go — CLI wrapper for the multi-layer resolver.

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codeforge/core"
)

// ---------------------------------------------------------------------------
// Controllers
// ---------------------------------------------------------------------------

func resolveHandler(cmd *cobra.Command, args []string) {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	structural, _ := cmd.Flags().GetBool("structural")
	outPath, _ := cmd.Flags().GetString("out")

	target := core.ResolveTarget{}
	if structural {
		target.Structural = core.ProteinHash(args[0])
	} else {
		cid, err := core.ParseCID(args[0])
		bail(err)
		target.CID = cid
	}

	mode := core.ModeFull
	if dryRun {
		mode = core.ModeDryRun
	}

	res, err := cliResolver.Resolve(cmd.Context(), target, mode)
	bail(err)

	switch {
	case res.Source == core.SourcePlan:
		fmt.Printf("plan: would try %v\n", res.PlannedSources)
	case structural:
		fmt.Printf("✅ %d record(s) share %s (not byte-verified)\n", len(res.Records), args[0])
		for _, r := range res.Records {
			fmt.Printf("   %s  %s  %d bytes\n", r.CID, r.Name, r.Size)
		}
	default:
		fmt.Printf("✅ resolved %s from %s (%d bytes, verified=%v)\n",
			target.CID, res.Source, len(res.Data), res.Verified)
		if outPath != "" {
			bail(os.WriteFile(outPath, res.Data, 0o644))
			fmt.Printf("   wrote %s\n", outPath)
		}
	}
}

// ---------------------------------------------------------------------------
// CLI definitions
// ---------------------------------------------------------------------------

var resolveCmd = &cobra.Command{
	Use:               "resolve <cid|phash>",
	Short:             "resolve an artifact through cache → local → peers → mirrors",
	Args:              cobra.ExactArgs(1),
	PersistentPreRun:  initRuntime,
	Run:               resolveHandler,
}

func init() {
	resolveCmd.Flags().Bool("dry-run", false, "report the resolution plan without contacting the network")
	resolveCmd.Flags().Bool("structural", false, "treat the argument as a structural hash (index-only lookup)")
	resolveCmd.Flags().String("out", "", "write resolved bytes to this path")
}

// ---------------------------------------------------------------------------
// Consolidated route export
// ---------------------------------------------------------------------------

// ResolveCmd is the resolve command exported to the root CLI.
var ResolveCmd = resolveCmd
