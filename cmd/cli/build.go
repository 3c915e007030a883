package cli

// cmd/cli/build.go — CLI wrapper for the artifact builder.
// ----------------------------------------------------------------------------
// Layout
//   1. Controllers — build a source function into a WASM artifact and
//      publish its record to a manifest file.
//   2. CLI definitions.
//   3. Consolidated route export (BOTTOM).
// ----------------------------------------------------------------------------

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"codeforge/core"
	"codeforge/core/sourcelang"
)

// ---------------------------------------------------------------------------
// Controllers
// ---------------------------------------------------------------------------

func buildHandler(cmd *cobra.Command, args []string) {
	srcPath := args[0]
	outDir, _ := cmd.Flags().GetString("out")
	manifestPath, _ := cmd.Flags().GetString("manifest")
	lang, _ := cmd.Flags().GetString("lang")
	labels, _ := cmd.Flags().GetString("labels")

	src, err := os.ReadFile(srcPath)
	bail(err)

	fn, err := sourcelang.Parse(string(src))
	bail(err)

	artifact, err := core.NewBuilder().Build(string(src))
	bail(err)

	bail(os.MkdirAll(outDir, 0o755))
	wasmPath := filepath.Join(outDir, string(artifact.CID)+".wasm")
	bail(os.WriteFile(wasmPath, artifact.WASM, 0o644))

	record := artifact.ToRecord(fn, lang, wasmPath, splitCSV(labels))
	bail(appendManifestRecord(manifestPath, record))
	bail(cliIndex.Insert(record))

	fmt.Printf("✅ built %s\n", artifact.FuncName)
	fmt.Printf("   cid:   %s\n", artifact.CID)
	fmt.Printf("   phash: %s\n", artifact.ProteinHash)
	fmt.Printf("   size:  %d bytes → %s\n", len(artifact.WASM), wasmPath)
}

// appendManifestRecord reads the manifest (a YAML array of records),
// appends, and rewrites it. A missing file starts a new manifest.
func appendManifestRecord(path string, record core.ArtifactRecord) error {
	var records []core.ArtifactRecord
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("manifest %s: %w", path, err)
		}
	}
	records = append(records, record)
	data, err := yaml.Marshal(records)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ---------------------------------------------------------------------------
// CLI definitions
// ---------------------------------------------------------------------------

var buildCmd = &cobra.Command{
	Use:               "build <source-file>",
	Short:             "compile a source function into a content-addressed WASM artifact",
	Args:              cobra.ExactArgs(1),
	PersistentPreRun:  initRuntime,
	Run:               buildHandler,
}

func init() {
	buildCmd.Flags().String("out", "./data/artifacts", "directory for compiled .wasm output")
	buildCmd.Flags().String("manifest", "./data/manifests/build.yaml", "manifest file to append the record to")
	buildCmd.Flags().String("lang", "codeforge", "source language tag recorded in the manifest")
	buildCmd.Flags().String("labels", "", "comma-separated label set for the record")
}

// ---------------------------------------------------------------------------
// Consolidated route export
// ---------------------------------------------------------------------------

// BuildCmd is the build command group exported to the root CLI.
var BuildCmd = buildCmd
