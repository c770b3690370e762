// Package frost implements the two-round FROST threshold Schnorr scheme over
// secp256k1: distributed key generation, nonce commitment, partial signing,
// and aggregation.
//
// The ceremony orchestration layers consume this package through plain
// function calls and never touch scalar arithmetic themselves. All hashing is
// domain separated through a Suite, which carries the network identifier as
// an explicit construction parameter rather than process-global state.
package frost

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/polarsign/frost-ceremony/pkg/party"
)

// Network identifiers mixed into every derived challenge. A signature
// produced for one network never verifies on another.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

const suitePrefix = "FROST-secp256k1-BLAKE3-v1"

// Suite fixes the hashing context for one network. Construct it once and
// thread it through every ceremony call; there is no package-level default.
type Suite struct {
	context string
}

// NewSuite returns a Suite bound to the given network identifier
// (NetworkMainnet, NetworkTestnet, or any other domain string).
func NewSuite(networkID string) *Suite {
	return &Suite{context: suitePrefix + ":" + networkID}
}

// NetworkContext returns the full domain-separation string.
func (s *Suite) NetworkContext() string { return s.context }

// hash computes a domain-separated 32-byte digest. Every input part is
// length-framed so that concatenations cannot collide.
func (s *Suite) hash(tag string, parts ...[]byte) [32]byte {
	h := blake3.New()
	writeFramed(h, []byte(s.context))
	writeFramed(h, []byte(tag))
	for _, p := range parts {
		writeFramed(h, p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// hashToScalar reduces a domain-separated digest into the scalar field.
func (s *Suite) hashToScalar(tag string, parts ...[]byte) *Scalar {
	digest := s.hash(tag, parts...)
	out := NewScalar()
	out.n.SetBytes(&digest)
	return out
}

func writeFramed(h *blake3.Hasher, b []byte) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(b)))
	_, _ = h.Write(length[:])
	_, _ = h.Write(b)
}

// lagrange returns λ_j, the Lagrange coefficient at zero for signer j within
// the signer set ids.
//
//	λ_j = Π_{l≠j} l / (l − j)
func lagrange(ids party.IDSlice, j party.ID) *Scalar {
	num := scalarFromID(1)
	den := scalarFromID(1)
	xJ := scalarFromID(j)
	for _, l := range ids {
		if l == j {
			continue
		}
		xL := scalarFromID(l)
		num.Mul(xL)
		den.Mul(xL.Sub(xJ))
	}
	return num.Mul(den.Invert())
}
