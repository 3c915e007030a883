package cli

// cmd/cli/serve.go — run a codeforge node: health/admin/metrics HTTP
// surface plus, when configured, the libp2p fetch protocol serving this
// node's cache to peers.

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"codeforge/core"
)

// ---------------------------------------------------------------------------
// Controllers
// ---------------------------------------------------------------------------

func serveHandler(cmd *cobra.Command, args []string) {
	listen, _ := cmd.Flags().GetString("listen")

	if cliCfg.Peer.Enabled {
		peerRes, err := core.NewPeerResolver(cliCfg.Peer.ListenAddr, cliLG)
		bail(err)
		defer peerRes.Close()
		peerRes.ServeFromCache(cliCache)
		cliResolver.Peer = peerRes
		for _, addr := range cliCfg.Peer.BootstrapPeers {
			pid, err := peerRes.Connect(cmd.Context(), addr)
			if err != nil {
				cliLG.WithError(err).Warnf("bootstrap peer %s unreachable", addr)
				continue
			}
			cliResolver.PeerIDs = append(cliResolver.PeerIDs, pid)
		}
	}

	router := core.NewAdminRouter(cliControl, cliMetrics, cliLG)
	srv := &http.Server{Addr: listen, Handler: router}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	cliLG.Infof("admin surface listening on %s", listen)
	fmt.Printf("✅ codeforge node up: http://%s/healthz\n", listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		bail(err)
	case sig := <-sigCh:
		cliLG.Infof("received %s, shutting down", sig)
		_ = srv.Close()
	}
}

// ---------------------------------------------------------------------------
// CLI definitions
// ---------------------------------------------------------------------------

var serveCmd = &cobra.Command{
	Use:               "serve",
	Short:             "run a node: health/admin/metrics endpoint and peer fetch service",
	PersistentPreRun:  initRuntime,
	Run:               serveHandler,
}

func init() {
	serveCmd.Flags().String("listen", "127.0.0.1:8954", "listen address for the admin/health surface")
}

// ---------------------------------------------------------------------------
// Consolidated route export
// ---------------------------------------------------------------------------

// ServeCmd is the serve command exported to the root CLI.
var ServeCmd = serveCmd
