// core/peer_resolver.go
package core

// The peer-network resolver step is a small libp2p-backed content
// exchange: a single custom protocol where the request is a CID and the
// response is the raw verified bytes (or a zero-length response meaning
// "don't have it"). Any peer running codeforge can serve out of its own
// cache; this file implements both the client side the resolver calls and
// the server side the CLI registers so a node can act as a mirror for
// others.

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	logrus "github.com/sirupsen/logrus"
)

// FetchProtocolID is codeforge's custom libp2p protocol for artifact
// exchange between peers.
const FetchProtocolID protocol.ID = "/codeforge/fetch/1.0.0"

const maxPeerResponseBytes = 64 << 20 // 64 MiB, generous for a single WASM artifact

// PeerResolver fetches artifacts from other codeforge nodes over libp2p.
type PeerResolver struct {
	host   host.Host
	logger *logrus.Logger
}

// NewPeerResolver starts a libp2p host listening on listenAddr (a
// multiaddr string, e.g. "/ip4/0.0.0.0/tcp/4010"). listenAddr is passed to
// libp2p as given; there is no empty-address special case, and a Resolver
// without peer resolution simply leaves its Peer field nil.
func NewPeerResolver(listenAddr string, lg *logrus.Logger) (*PeerResolver, error) {
	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		return nil, fmt.Errorf("core: peer resolver: listen %s: %w", listenAddr, err)
	}
	lg.Infof("peer resolver: listening as %s", h.ID())
	return &PeerResolver{host: h, logger: lg}, nil
}

// Close shuts down the underlying libp2p host.
func (p *PeerResolver) Close() error { return p.host.Close() }

// Connect dials a full peer multiaddr (including its /p2p/<id> suffix)
// and returns the peer id for subsequent Fetch calls.
func (p *PeerResolver) Connect(ctx context.Context, addr string) (peer.ID, error) {
	info, err := peer.AddrInfoFromString(addr)
	if err != nil {
		return "", fmt.Errorf("%w: peer addr %q: %v", ErrMalformedIdentifier, addr, err)
	}
	if err := p.host.Connect(ctx, *info); err != nil {
		return "", fmt.Errorf("%w: connect %s: %v", ErrNetworkTransient, info.ID, err)
	}
	return info.ID, nil
}

// ServeFromCache registers the fetch protocol handler, answering requests
// for any CID currently present in cache.
func (p *PeerResolver) ServeFromCache(cache *Cache) {
	p.host.SetStreamHandler(FetchProtocolID, func(s network.Stream) {
		defer s.Close()
		reader := bufio.NewReader(s)
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		cid := CID(line[:len(line)-1])
		path, ok := cache.Get(cid)
		if !ok {
			writeFrame(s, nil)
			return
		}
		data, err := cache.Read(path)
		if err != nil {
			writeFrame(s, nil)
			return
		}
		writeFrame(s, data)
	})
}

// Fetch requests cid from peer pid and returns the raw bytes, or
// ErrNotFound if the peer reports it doesn't have it. The caller is
// responsible for verifying the returned bytes.
func (p *PeerResolver) Fetch(ctx context.Context, pid peer.ID, cid CID) ([]byte, error) {
	s, err := p.host.NewStream(ctx, pid, FetchProtocolID)
	if err != nil {
		return nil, fmt.Errorf("%w: open stream to %s: %v", ErrNotFound, pid, err)
	}
	defer s.Close()

	if _, err := io.WriteString(s, string(cid)+"\n"); err != nil {
		return nil, fmt.Errorf("core: peer resolver: write request: %w", err)
	}

	data, err := readFrame(s)
	if err != nil {
		return nil, fmt.Errorf("core: peer resolver: read response: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

func writeFrame(w io.Writer, data []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return
	}
	if len(data) > 0 {
		_, _ = w.Write(data)
	}
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, nil
	}
	if n > maxPeerResponseBytes {
		return nil, fmt.Errorf("core: peer resolver: response too large (%d bytes)", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
