// Package coordinator drives a signing ceremony: it collects round-1
// commitments, builds the signing package, collects round-2 shares, and
// aggregates them into the group signature.
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/polarsign/frost-ceremony/pkg/comms"
	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/party"
)

// State is the coordinator's position in the ceremony.
type State uint8

const (
	StateInit State = iota
	StateCollectingCommitments
	StateBuildingPackage
	StateCollectingShares
	StateAggregating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateCollectingCommitments:
		return "collecting commitments"
	case StateBuildingPackage:
		return "building package"
	case StateCollectingShares:
		return "collecting shares"
	case StateAggregating:
		return "aggregating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config is the coordinator's input for one signing ceremony.
type Config struct {
	Suite            *frost.Suite
	PublicKeyPackage *frost.PublicKeyPackage

	// Messages to sign. The ceremony signs the first message; the slice
	// shape matches the wire format, which reserves room for batches.
	Messages [][]byte

	// NumSigners is how many participants this ceremony waits for. Must lie
	// within the group's [MinSigners, MaxSigners].
	NumSigners uint16

	Logger zerolog.Logger
}

// ParticipantsConfig is the quorum selected for one ceremony: the collected
// commitments plus the group's public key package. Its lifetime is a single
// signing run.
type ParticipantsConfig struct {
	Commitments      map[party.ID]*frost.Commitment
	PublicKeyPackage *frost.PublicKeyPackage
}

// Coordinator runs exactly one signing ceremony. There is no retry and no
// checkpointing: a failed ceremony leaves the coordinator in StateFailed and
// a fresh Coordinator must be constructed for another attempt.
type Coordinator struct {
	cfg   Config
	state State

	participants   *ParticipantsConfig
	signingPackage *frost.SigningPackage
	signature      *frost.Signature
}

// New validates the configuration against the group parameters.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Suite == nil {
		return nil, errors.New("coordinator: suite required")
	}
	if err := cfg.PublicKeyPackage.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Messages) == 0 || len(cfg.Messages[0]) == 0 {
		return nil, errors.New("coordinator: no message to sign")
	}
	pub := cfg.PublicKeyPackage
	if cfg.NumSigners < pub.MinSigners || cfg.NumSigners > pub.MaxSigners {
		return nil, fmt.Errorf("coordinator: %d signers outside group bounds [%d, %d]",
			cfg.NumSigners, pub.MinSigners, pub.MaxSigners)
	}
	return &Coordinator{cfg: cfg}, nil
}

// State returns the current ceremony state.
func (c *Coordinator) State() State { return c.state }

// Signature returns the group signature once the ceremony is Done.
func (c *Coordinator) Signature() *frost.Signature { return c.signature }

// Run drives the ceremony over conn and returns the aggregated group
// signature. On any failure the transport's cleanup is invoked exactly once,
// its own error is logged and suppressed, and the original error, always a
// *comms.Error, propagates.
func (c *Coordinator) Run(ctx context.Context, conn comms.Coordinator) (*frost.Signature, error) {
	if c.state != StateInit {
		return nil, fmt.Errorf("coordinator: ceremony already ran (state %s)", c.state)
	}
	sig, err := c.run(ctx, conn)
	if err != nil {
		c.state = StateFailed
		if cleanupErr := conn.CleanupOnError(ctx); cleanupErr != nil {
			c.cfg.Logger.Warn().Err(cleanupErr).Msg("cleanup after failed ceremony")
		}
		return nil, err
	}
	c.state = StateDone
	c.signature = sig
	return sig, nil
}

func (c *Coordinator) run(ctx context.Context, conn comms.Coordinator) (*frost.Signature, error) {
	log := c.cfg.Logger

	c.state = StateCollectingCommitments
	commitments, err := conn.GetSigningCommitments(ctx, c.cfg.PublicKeyPackage, c.cfg.NumSigners)
	if err != nil {
		return nil, comms.NewError(comms.KindTransport, c.state.String(), err)
	}
	if err := c.checkQuorum(commitments); err != nil {
		return nil, err
	}
	c.participants = &ParticipantsConfig{
		Commitments:      commitments,
		PublicKeyPackage: c.cfg.PublicKeyPackage,
	}
	log.Info().Int("commitments", len(commitments)).Msg("quorum reached")

	c.state = StateBuildingPackage
	sp, err := frost.NewSigningPackage(commitments, c.cfg.Messages[0])
	if err != nil {
		return nil, comms.NewError(comms.KindCrypto, c.state.String(), err)
	}
	c.signingPackage = sp

	c.state = StateCollectingShares
	shares, err := conn.SendSigningPackageAndGetShares(ctx, sp)
	if err != nil {
		return nil, comms.NewError(comms.KindTransport, c.state.String(), err)
	}
	if err := c.checkShares(sp, shares); err != nil {
		return nil, err
	}
	log.Info().Int("shares", len(shares)).Msg("signature shares collected")

	c.state = StateAggregating
	sig, err := frost.Aggregate(c.cfg.Suite, sp, shares, c.cfg.PublicKeyPackage)
	if err != nil {
		var invalid *frost.InvalidShareError
		if errors.As(err, &invalid) {
			return nil, comms.NewPeerError(comms.KindCrypto, c.state.String(), invalid.ID, err)
		}
		return nil, comms.NewError(comms.KindCrypto, c.state.String(), err)
	}
	log.Info().Str("signature", sig.String()).Msg("ceremony complete")
	return sig, nil
}

// checkQuorum enforces min ≤ collected ≤ max before any package is built.
// A sub-quorum map never reaches package construction.
func (c *Coordinator) checkQuorum(commitments map[party.ID]*frost.Commitment) error {
	pub := c.cfg.PublicKeyPackage
	round := c.state.String()
	if len(commitments) < int(pub.MinSigners) {
		return comms.NewError(comms.KindQuorum, round,
			fmt.Errorf("collected %d commitments, quorum is %d", len(commitments), pub.MinSigners))
	}
	if len(commitments) > int(pub.MaxSigners) {
		return comms.NewError(comms.KindMisuse, round,
			fmt.Errorf("collected %d commitments for a group of %d", len(commitments), pub.MaxSigners))
	}
	for id, commitment := range commitments {
		if _, ok := pub.VerifyingShares[id]; !ok {
			return comms.NewPeerError(comms.KindMisuse, round, id,
				errors.New("commitment from identifier outside the group"))
		}
		if err := commitment.Validate(); err != nil {
			return comms.NewPeerError(comms.KindCrypto, round, id, err)
		}
	}
	return nil
}

// checkShares rejects unsolicited shares and distinguishes an incomplete
// share set (quorum) from a structurally bad one (misuse).
func (c *Coordinator) checkShares(sp *frost.SigningPackage, shares map[party.ID]*frost.SignatureShare) error {
	round := c.state.String()
	for id := range shares {
		if _, ok := sp.Commitments[id]; !ok {
			return comms.NewPeerError(comms.KindMisuse, round, id,
				errors.New("signature share from a participant outside the signing package"))
		}
	}
	if len(shares) < len(sp.Commitments) {
		return comms.NewError(comms.KindQuorum, round,
			fmt.Errorf("collected %d shares for %d selected signers", len(shares), len(sp.Commitments)))
	}
	return nil
}
