package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"codeforge/cmd/cli"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "codeforge",
		Short: "content-addressed WASM artifact build, distribution, and execution",
	}
	cli.RegisterRoutes(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
