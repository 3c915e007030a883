package cli

import "github.com/spf13/cobra"

// RegisterRoutes attaches every command group defined in the cli package
// to the provided root command, so the main binary exposes all of them:
// `codeforge build`, `codeforge exec`, and so on.
func RegisterRoutes(root *cobra.Command) {
	root.AddCommand(
		BuildCmd,
		HashCmd,
		ResolveCmd,
		ExecCmd,
		PolicyCmd,
		CacheCmd,
		ControlCmd,
		ServeCmd,
	)
}
