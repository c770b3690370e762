// Package comms defines the transport contracts the ceremony orchestrators
// run over, the wire envelope every transport exchanges, and the structured
// errors the orchestration layer reports.
//
// Implementations are free to fan requests out concurrently within a round,
// but every operation blocks until its round's data is complete or fails.
// None of the operations enforce quorum; that is the orchestrator's job. They
// must however fail rather than return a map they know to be incomplete.
package comms

import (
	"context"
	"encoding/hex"

	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/party"
)

// PubKey is a participant's long-lived communication public key, in hex. It
// outlives any single ceremony and binds a wire peer to the ceremony-scoped
// identifier the transport assigned it.
type PubKey string

// PubKeyFromBytes encodes raw key bytes as a PubKey.
func PubKeyFromBytes(b []byte) PubKey { return PubKey(hex.EncodeToString(b)) }

// Bytes decodes the key back to raw bytes.
func (pk PubKey) Bytes() ([]byte, error) { return hex.DecodeString(string(pk)) }

// Coordinator is the signing-ceremony transport as seen by the coordinator.
type Coordinator interface {
	// GetSigningCommitments blocks until commitments from numSigners
	// participants have been collected, or fails. The returned map never
	// contains an entry the transport knows to be malformed.
	GetSigningCommitments(ctx context.Context, pub *frost.PublicKeyPackage, numSigners uint16) (map[party.ID]*frost.Commitment, error)

	// SendSigningPackageAndGetShares distributes the finished package to the
	// committed participants and blocks until all of their shares are in.
	SendSigningPackageAndGetShares(ctx context.Context, sp *frost.SigningPackage) (map[party.ID]*frost.SignatureShare, error)

	// CleanupOnError releases transport resources after a failed ceremony.
	// It is best effort: the caller logs its error and propagates the
	// ceremony failure instead.
	CleanupOnError(ctx context.Context) error
}

// Participant is the signing-ceremony transport as seen by a participant.
type Participant interface {
	// GetSigningPackage publishes our commitment and blocks until the
	// coordinator's signing package arrives.
	GetSigningPackage(ctx context.Context, id party.ID, commitment *frost.Commitment) (*frost.SigningPackage, error)

	// SendSignatureShare delivers our share to the coordinator.
	SendSignatureShare(ctx context.Context, id party.ID, share *frost.SignatureShare) error

	// CleanupOnError releases transport resources after a failed ceremony.
	CleanupOnError(ctx context.Context) error
}

// DKG is the key-generation transport, identical for every participant.
type DKG interface {
	// GetIdentifierAndMaxSigners resolves our ceremony identifier and the
	// group size; both may come from transport-level registration rather
	// than local configuration.
	GetIdentifierAndMaxSigners(ctx context.Context) (party.ID, uint16, error)

	// GetRound1Packages echo-broadcasts our round-1 package and blocks until
	// every other participant's package is in. The returned map excludes the
	// local package.
	GetRound1Packages(ctx context.Context, pkg *frost.Round1Package) (map[party.ID]*frost.Round1Package, error)

	// GetRound2Packages sends each round-2 package to exactly its addressee
	// and blocks until the packages addressed to us are in. Packages must
	// never be visible to participants other than their addressee.
	GetRound2Packages(ctx context.Context, pkgs map[party.ID]*frost.Round2Package) (map[party.ID]*frost.Round2Package, error)

	// PubKeyIdentifierMap resolves the binding between long-lived
	// communication keys and ceremony identifiers, for every participant.
	PubKeyIdentifierMap(ctx context.Context) (map[PubKey]party.ID, error)

	// CleanupOnError releases transport resources after a failed ceremony.
	CleanupOnError(ctx context.Context) error
}
