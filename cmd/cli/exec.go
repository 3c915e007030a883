package cli

// cmd/cli/exec.go — CLI wrapper for the intent gateway: submits a full
// execution request through admission, resolution, and the sandbox.

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"codeforge/core"
)

// ---------------------------------------------------------------------------
// Controllers
// ---------------------------------------------------------------------------

func execHandler(cmd *cobra.Command, args []string) {
	caller, _ := cmd.Flags().GetString("caller")
	key, _ := cmd.Flags().GetString("idempotency-key")
	gas, _ := cmd.Flags().GetUint64("gas")
	mem, _ := cmd.Flags().GetUint64("memory")
	timeoutMS, _ := cmd.Flags().GetInt("timeout-ms")
	resonance, _ := cmd.Flags().GetInt("resonance-hz")
	gasProfile, _ := cmd.Flags().GetBool("gas-profile")
	denied, _ := cmd.Flags().GetString("deny-caps")

	inputs := core.ExecInput{}
	for _, a := range args[1:] {
		inputs.Positional = append(inputs.Positional, parseScalar(a))
	}

	req := core.ExecutionRequest{
		CID:            args[0],
		Caller:         caller,
		Inputs:         inputs,
		IdempotencyKey: key,
		Attestations:   core.Attestations{ResonanceHz: resonance},
		Options: core.RequestOptions{
			ReturnGasProfile: gasProfile,
			TimeoutMS:        timeoutMS,
		},
	}
	if gas > 0 || mem > 0 || denied != "" {
		req.Policy = &core.RequestPolicy{
			MaxGas:             gas,
			MaxMemoryBytes:     mem,
			DeniedCapabilities: splitCSV(denied),
		}
	}

	result, err := cliGateway.Submit(cmd.Context(), req)
	bail(err)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	bail(enc.Encode(result))
}

// ---------------------------------------------------------------------------
// CLI definitions
// ---------------------------------------------------------------------------

var execCmd = &cobra.Command{
	Use:               "exec <cid> [inputs...]",
	Short:             "submit an execution request through the gateway",
	Args:              cobra.MinimumNArgs(1),
	PersistentPreRun:  initRuntime,
	Run:               execHandler,
}

func init() {
	execCmd.Flags().String("caller", "cli", "caller identity for rate limiting and idempotency scoping")
	execCmd.Flags().String("idempotency-key", "", "idempotency key (8-128 chars of [A-Za-z0-9_-])")
	execCmd.Flags().Uint64("gas", 0, "gas cap (0 = control-plane default)")
	execCmd.Flags().Uint64("memory", 0, "memory cap in bytes (0 = control-plane default)")
	execCmd.Flags().Int("timeout-ms", 0, "wall-clock timeout in ms (0 = control-plane default)")
	execCmd.Flags().Int("resonance-hz", 0, "resonance attestation forwarded to the policy engine")
	execCmd.Flags().Bool("gas-profile", false, "include the gas/syscall profile in the result")
	execCmd.Flags().String("deny-caps", "", "comma-separated capabilities the sandbox must refuse")
}

// ---------------------------------------------------------------------------
// Consolidated route export
// ---------------------------------------------------------------------------

// ExecCmd is the exec command exported to the root CLI.
var ExecCmd = execCmd
