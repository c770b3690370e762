// Package dkg drives distributed key generation. Every participant runs the
// same orchestrator; whoever also operates the transport plays no special
// cryptographic role.
package dkg

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/polarsign/frost-ceremony/pkg/comms"
	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/party"
)

// State is the orchestrator's position in the key generation ceremony.
type State uint8

const (
	StateInit State = iota
	StateIdentifierResolved
	StateRound1Exchanged
	StateRound2Exchanged
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateIdentifierResolved:
		return "identifier resolved"
	case StateRound1Exchanged:
		return "round 1 exchanged"
	case StateRound2Exchanged:
		return "round 2 exchanged"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// stateRound maps the state being worked towards to the round name used in
// structured errors.
func (s State) round() string {
	switch s {
	case StateIdentifierResolved:
		return "resolving identifier"
	case StateRound1Exchanged:
		return "dkg round 1"
	case StateRound2Exchanged:
		return "dkg round 2"
	default:
		return "dkg finalization"
	}
}

// Config parameterizes one key generation run.
type Config struct {
	Suite *frost.Suite

	// MinSigners is the signing threshold the new group will enforce.
	MinSigners uint16

	// Rand defaults to crypto/rand.Reader.
	Rand io.Reader

	Logger zerolog.Logger
}

// Result is the terminal output of a successful ceremony. The
// PublicKeyPackage is byte-identical across all honest participants.
type Result struct {
	KeyPackage       *frost.KeyPackage
	PublicKeyPackage *frost.PublicKeyPackage
	// PubKeyMap binds every participant's long-lived communication key to
	// its ceremony identifier.
	PubKeyMap map[comms.PubKey]party.ID
}

// Keygen runs exactly one key generation ceremony. Like the signing
// coordinator it has no retry semantics: construct a fresh one per attempt.
type Keygen struct {
	cfg   Config
	state State
}

// New validates the configuration.
func New(cfg Config) (*Keygen, error) {
	if cfg.Suite == nil {
		return nil, errors.New("dkg: suite required")
	}
	if cfg.MinSigners < 2 {
		return nil, fmt.Errorf("dkg: invalid threshold %d", cfg.MinSigners)
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	return &Keygen{cfg: cfg}, nil
}

// State returns the current ceremony state.
func (k *Keygen) State() State { return k.state }

// Run drives the ceremony over conn. On failure the transport cleanup runs
// exactly once, its error is suppressed, and the original error propagates.
// All round secrets are destroyed on every exit path.
func (k *Keygen) Run(ctx context.Context, conn comms.DKG) (*Result, error) {
	if k.state != StateInit {
		return nil, fmt.Errorf("dkg: ceremony already ran (state %s)", k.state)
	}
	res, err := k.run(ctx, conn)
	if err != nil {
		k.state = StateFailed
		if cleanupErr := conn.CleanupOnError(ctx); cleanupErr != nil {
			k.cfg.Logger.Warn().Err(cleanupErr).Msg("cleanup after failed ceremony")
		}
		return nil, err
	}
	k.state = StateDone
	return res, nil
}

func (k *Keygen) run(ctx context.Context, conn comms.DKG) (*Result, error) {
	log := k.cfg.Logger

	selfID, maxSigners, err := conn.GetIdentifierAndMaxSigners(ctx)
	if err != nil {
		return nil, comms.NewError(comms.KindTransport, StateIdentifierResolved.round(), err)
	}
	if !selfID.Valid() || maxSigners < k.cfg.MinSigners {
		return nil, comms.NewError(comms.KindMisuse, StateIdentifierResolved.round(),
			fmt.Errorf("transport assigned identifier %s in a group of %d (threshold %d)",
				selfID, maxSigners, k.cfg.MinSigners))
	}
	k.state = StateIdentifierResolved
	log = log.With().Stringer("participant", selfID).Logger()
	log.Info().Uint16("max_signers", maxSigners).Uint16("min_signers", k.cfg.MinSigners).
		Msg("identifier resolved")

	sec1, pkg1, err := frost.DKGPart1(k.cfg.Suite, k.cfg.Rand, selfID, k.cfg.MinSigners, maxSigners)
	if err != nil {
		return nil, comms.NewError(comms.KindCrypto, StateRound1Exchanged.round(), err)
	}
	// Destroyed by DKGPart2 on success; this covers the failure paths.
	defer sec1.Zeroize()

	round1, err := conn.GetRound1Packages(ctx, pkg1)
	if err != nil {
		return nil, comms.NewError(comms.KindTransport, StateRound1Exchanged.round(), err)
	}
	if err := k.checkPeerSet(StateRound1Exchanged, selfID, maxSigners, round1Keys(round1)); err != nil {
		return nil, err
	}
	k.state = StateRound1Exchanged
	log.Debug().Int("packages", len(round1)).Msg("round 1 packages exchanged")

	sec2, outgoing, err := frost.DKGPart2(k.cfg.Suite, sec1, round1)
	if err != nil {
		return nil, k.cryptoError(StateRound1Exchanged, err)
	}
	defer sec2.Zeroize()

	round2, err := conn.GetRound2Packages(ctx, outgoing)
	if err != nil {
		return nil, comms.NewError(comms.KindTransport, StateRound2Exchanged.round(), err)
	}
	if err := k.checkPeerSet(StateRound2Exchanged, selfID, maxSigners, round2Keys(round2)); err != nil {
		return nil, err
	}
	k.state = StateRound2Exchanged
	log.Debug().Int("packages", len(round2)).Msg("round 2 packages exchanged")

	keyPackage, pub, err := frost.DKGPart3(sec2, round1, round2)
	if err != nil {
		return nil, k.cryptoError(StateRound2Exchanged, err)
	}

	pubKeyMap, err := conn.PubKeyIdentifierMap(ctx)
	if err != nil {
		return nil, comms.NewError(comms.KindTransport, "dkg finalization", err)
	}
	log.Info().Msg("key generation complete")
	return &Result{KeyPackage: keyPackage, PublicKeyPackage: pub, PubKeyMap: pubKeyMap}, nil
}

// checkPeerSet validates an inbound round map: no self-addressed entries (a
// misrouted package indicates a broken or hostile transport) and exactly one
// entry per other participant.
func (k *Keygen) checkPeerSet(state State, selfID party.ID, maxSigners uint16, senders []party.ID) error {
	round := state.round()
	expected := int(maxSigners) - 1
	for _, id := range senders {
		if id == selfID {
			return comms.NewPeerError(comms.KindMisuse, round, id,
				errors.New("received a package attributed to ourselves"))
		}
		if !id.Valid() || int(id) > int(maxSigners) {
			return comms.NewPeerError(comms.KindMisuse, round, id,
				errors.New("package from identifier outside the ceremony"))
		}
	}
	if len(senders) < expected {
		return comms.NewError(comms.KindQuorum, round,
			fmt.Errorf("received packages from %d of %d peers", len(senders), expected))
	}
	if len(senders) > expected {
		return comms.NewError(comms.KindMisuse, round,
			fmt.Errorf("received %d packages for %d peers", len(senders), expected))
	}
	return nil
}

func (k *Keygen) cryptoError(state State, err error) error {
	var peerErr *frost.PeerError
	if errors.As(err, &peerErr) {
		return comms.NewPeerError(comms.KindCrypto, state.round(), peerErr.ID, err)
	}
	return comms.NewError(comms.KindCrypto, state.round(), err)
}

func round1Keys(m map[party.ID]*frost.Round1Package) []party.ID {
	out := make([]party.ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

func round2Keys(m map[party.ID]*frost.Round2Package) []party.ID {
	out := make([]party.ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}
