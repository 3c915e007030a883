package cli

// cmd/cli/control.go — control-plane inspection and the admin mutation
// path. `show` prints the local effective snapshot; `set` talks to a
// running node's serialized admin endpoint so a live process is patched
// rather than the on-disk file.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// ---------------------------------------------------------------------------
// Controllers
// ---------------------------------------------------------------------------

func controlShowHandler(cmd *cobra.Command, args []string) {
	snap := cliControl.Snapshot()
	fmt.Printf("status:          %s\n", snap.Status())
	fmt.Printf("enabled:         %v\n", snap.Enabled)
	fmt.Printf("frozen:          %v\n", snap.Frozen)
	fmt.Printf("canary_fraction: %.3f\n", snap.CanaryFraction)
	fmt.Printf("default gas=%d memory=%d timeout_ms=%d\n",
		snap.DefaultGas, snap.DefaultMemoryBytes, snap.DefaultTimeoutMS)
	fmt.Printf("cache root:      %s\n", snap.CacheRoot)
	fmt.Printf("manifests:       %v\n", snap.ManifestPaths)
	fmt.Printf("mirrors:         %d  trusted signatures: %d\n",
		len(snap.Mirrors), len(snap.TrustedSignatures))
}

func controlSetHandler(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")

	patch := map[string]any{}
	if cmd.Flags().Changed("enabled") {
		v, _ := cmd.Flags().GetBool("enabled")
		patch["enabled"] = v
	}
	if cmd.Flags().Changed("frozen") {
		v, _ := cmd.Flags().GetBool("frozen")
		patch["frozen"] = v
	}
	if cmd.Flags().Changed("canary") {
		v, _ := cmd.Flags().GetFloat64("canary")
		patch["canary_fraction"] = v
	}
	if len(patch) == 0 {
		bail(fmt.Errorf("nothing to set: pass --enabled, --frozen, or --canary"))
	}

	body, err := json.Marshal(patch)
	bail(err)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(addr+"/admin/control", "application/json", bytes.NewReader(body))
	bail(err)
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		bail(fmt.Errorf("admin endpoint: status %d: %s", resp.StatusCode, string(out)))
	}
	fmt.Printf("✅ %s\n", string(out))
}

// ---------------------------------------------------------------------------
// CLI definitions
// ---------------------------------------------------------------------------

var controlCmd = &cobra.Command{
	Use:               "control",
	Short:             "inspect and patch the control plane",
	PersistentPreRun:  initRuntime,
}

var controlShowCmd = &cobra.Command{
	Use:   "show",
	Short: "print the effective control-plane snapshot",
	Run:   controlShowHandler,
}

var controlSetCmd = &cobra.Command{
	Use:   "set",
	Short: "patch a running node's control plane over its admin endpoint",
	Run:   controlSetHandler,
}

func init() {
	controlSetCmd.Flags().String("addr", "http://127.0.0.1:8954", "base URL of the running node's admin endpoint")
	controlSetCmd.Flags().Bool("enabled", true, "enable or disable execution traffic")
	controlSetCmd.Flags().Bool("frozen", false, "freeze (hard kill switch) or unfreeze")
	controlSetCmd.Flags().Float64("canary", 1.0, "canary fraction in [0,1]")
	controlCmd.AddCommand(controlShowCmd, controlSetCmd)
}

// ---------------------------------------------------------------------------
// Consolidated route export
// ---------------------------------------------------------------------------

// ControlCmd is the control command group exported to the root CLI.
var ControlCmd = controlCmd
