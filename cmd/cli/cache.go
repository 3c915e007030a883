package cli

// cmd/cli/cache.go — CLI wrapper for the on-disk artifact cache.

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"codeforge/core"
)

// ---------------------------------------------------------------------------
// Controllers
// ---------------------------------------------------------------------------

func cacheLsHandler(cmd *cobra.Command, args []string) {
	root := cliControl.Snapshot().CacheRoot
	entries, err := os.ReadDir(root)
	bail(err)
	total := int64(0)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
		fmt.Printf("%s  %d bytes\n", e.Name(), info.Size())
	}
	fmt.Printf("%d entries, %d bytes in %s\n", len(entries), total, root)
}

func cachePathHandler(cmd *cobra.Command, args []string) {
	cid, err := core.ParseCID(args[0])
	bail(err)
	path, ok := cliCache.Get(cid)
	if !ok {
		bail(fmt.Errorf("%s not in cache", cid))
	}
	abs, _ := filepath.Abs(path)
	fmt.Println(abs)
}

// ---------------------------------------------------------------------------
// CLI definitions
// ---------------------------------------------------------------------------

var cacheCmd = &cobra.Command{
	Use:               "cache",
	Short:             "inspect the content-addressed artifact cache",
	PersistentPreRun:  initRuntime,
}

var cacheLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "list cache entries",
	Run:   cacheLsHandler,
}

var cachePathCmd = &cobra.Command{
	Use:   "path <cid>",
	Short: "print the on-disk path of a cached artifact",
	Args:  cobra.ExactArgs(1),
	Run:   cachePathHandler,
}

func init() {
	cacheCmd.AddCommand(cacheLsCmd, cachePathCmd)
}

// ---------------------------------------------------------------------------
// Consolidated route export
// ---------------------------------------------------------------------------

// CacheCmd is the cache command group exported to the root CLI.
var CacheCmd = cacheCmd
