package cli

// cmd/cli/policy.go — evaluate the configured rule set against a
// hypothetical request, so operators can answer "would this be admitted"
// without submitting anything.

import (
	"fmt"

	"github.com/spf13/cobra"

	"codeforge/core"
)

// ---------------------------------------------------------------------------
// Controllers
// ---------------------------------------------------------------------------

func policyEvalHandler(cmd *cobra.Command, args []string) {
	cidText, _ := cmd.Flags().GetString("cid")
	resonance, _ := cmd.Flags().GetInt("resonance-hz")
	gas, _ := cmd.Flags().GetUint64("gas")
	complexity, _ := cmd.Flags().GetFloat64("complexity")
	caller, _ := cmd.Flags().GetString("caller")

	input := core.PolicyInput{
		CallerIdentity: caller,
		DeclaredGas:    gas,
		Complexity:     complexity,
		ResonanceHz:    resonance,
	}
	if cidText != "" {
		cid, err := core.ParseCID(cidText)
		bail(err)
		input.CID = cid
		if rec, ok := cliIndex.FindByCID(cid); ok {
			input.Structural = rec.ASTHash
			_, inCache := cliCache.Get(cid)
			input.HasVerifiedCID = inCache && rec.ASTHash != ""
		}
	}

	decision, reason := core.NewPolicyEngine().Decide(input, rulesFromConfig(cliCfg))
	fmt.Printf("decision: %s\nreason:   %s\n", decision, reason)
}

func policyRulesHandler(cmd *cobra.Command, args []string) {
	rules := rulesFromConfig(cliCfg)
	for i, r := range rules.Rules {
		fmt.Printf("%d. %s → %s\n", i+1, r.Name, r.Decision)
		if r.RequireResonanceHz != nil {
			fmt.Printf("   requires resonance_hz == %d\n", *r.RequireResonanceHz)
		}
	}
	fmt.Println("no matching rule → deny")
}

// ---------------------------------------------------------------------------
// CLI definitions
// ---------------------------------------------------------------------------

var policyCmd = &cobra.Command{
	Use:               "policy",
	Short:             "inspect and dry-evaluate the admission policy",
	PersistentPreRun:  initRuntime,
}

var policyEvalCmd = &cobra.Command{
	Use:   "eval",
	Short: "evaluate the configured rules against a hypothetical request",
	Run:   policyEvalHandler,
}

var policyRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "print the effective rule set",
	Run:   policyRulesHandler,
}

func init() {
	policyEvalCmd.Flags().String("cid", "", "target byte-CID")
	policyEvalCmd.Flags().String("caller", "cli", "caller identity")
	policyEvalCmd.Flags().Int("resonance-hz", 0, "resonance attestation")
	policyEvalCmd.Flags().Uint64("gas", 0, "declared gas")
	policyEvalCmd.Flags().Float64("complexity", 0, "declared complexity")
	policyCmd.AddCommand(policyEvalCmd, policyRulesCmd)
}

// ---------------------------------------------------------------------------
// Consolidated route export
// ---------------------------------------------------------------------------

// PolicyCmd is the policy command group exported to the root CLI.
var PolicyCmd = policyCmd
