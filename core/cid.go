// core/cid.go
package core

// Byte-CID codec — every artifact is addressed by a CIDv1, raw codec,
// SHA-256 multihash, rendered in lower-case base32 text form: compute the
// multihash, wrap it as a raw CIDv1, and use its String() form as the
// canonical key.

import (
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// CID wraps the canonical text form of a content identifier. It is a named
// string type, not a bare string, so call sites can't accidentally pass a
// manifest key or a cache path where a CID is expected.
type CID string

// ComputeCID derives the canonical byte-CID for data: a CIDv1 with the raw
// codec over a SHA2-256 multihash, in lower-case base32 text form.
func ComputeCID(data []byte) (CID, error) {
	sum, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("cid: multihash sum: %w", err)
	}
	c := cid.NewCidV1(cid.Raw, sum)
	return CID(c.String()), nil
}

// VerifyCID recomputes data's byte-CID and compares it against want,
// returning ErrCIDMismatch on any mismatch. Every non-cache resolver path
// calls this before handing an artifact back to a caller.
func VerifyCID(data []byte, want CID) error {
	got, err := ComputeCID(data)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: want %s, got %s", ErrCIDMismatch, want, got)
	}
	return nil
}

// ParseCID validates that s decodes as a well-formed CID and returns its
// canonical form. It exists so config and manifest parsing can reject
// garbage early instead of deferring failure to resolve time.
func ParseCID(s string) (CID, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedIdentifier, s, err)
	}
	return CID(c.String()), nil
}
