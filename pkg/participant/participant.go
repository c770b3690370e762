// Package participant drives one signer's side of a signing ceremony.
package participant

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/polarsign/frost-ceremony/pkg/comms"
	"github.com/polarsign/frost-ceremony/pkg/frost"
)

// Config carries everything a participant needs for signing ceremonies.
type Config struct {
	Suite      *frost.Suite
	KeyPackage *frost.KeyPackage

	// Confirm, when set, is shown the message before a share is produced.
	// Returning an error aborts the ceremony without signing anything.
	Confirm func(message []byte) error

	// Rand defaults to crypto/rand.Reader. Nonces are drawn from it.
	Rand io.Reader

	Logger zerolog.Logger
}

// Participant answers signing rounds with its long-lived key share. It holds
// no state across ceremonies: every Sign call generates fresh nonces and
// destroys them before returning, on every exit path.
type Participant struct {
	cfg Config
}

// New validates the configuration.
func New(cfg Config) (*Participant, error) {
	if cfg.Suite == nil {
		return nil, errors.New("participant: suite required")
	}
	if err := cfg.KeyPackage.Validate(); err != nil {
		return nil, err
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	return &Participant{cfg: cfg}, nil
}

// Round names reported in structured errors.
const (
	roundCommit  = "generating commitment"
	roundPackage = "receiving signing package"
	roundSign    = "producing signature share"
	roundSend    = "sending signature share"
)

// Sign runs one ceremony over conn: commit, receive the signing package,
// sign, reply with the share. Any failure triggers the transport's
// best-effort cleanup and propagates; the nonces never outlive the call.
func (p *Participant) Sign(ctx context.Context, conn comms.Participant) error {
	err := p.sign(ctx, conn)
	if err != nil {
		if cleanupErr := conn.CleanupOnError(ctx); cleanupErr != nil {
			p.cfg.Logger.Warn().Err(cleanupErr).Msg("cleanup after failed ceremony")
		}
	}
	return err
}

func (p *Participant) sign(ctx context.Context, conn comms.Participant) error {
	kp := p.cfg.KeyPackage
	log := p.cfg.Logger.With().Stringer("participant", kp.ID).Logger()

	nonces, commitment, err := frost.Commit(p.cfg.Rand, kp.SigningShare)
	if err != nil {
		return comms.NewError(comms.KindCrypto, roundCommit, err)
	}
	// The nonces must die with this ceremony, whichever way it ends.
	defer nonces.Zeroize()

	log.Debug().Msg("commitment published, waiting for signing package")
	sp, err := conn.GetSigningPackage(ctx, kp.ID, commitment)
	if err != nil {
		return comms.NewError(comms.KindTransport, roundPackage, err)
	}
	if _, ok := sp.Commitments[kp.ID]; !ok {
		return comms.NewError(comms.KindMisuse, roundPackage,
			errors.New("signing package does not select us"))
	}

	if p.cfg.Confirm != nil {
		if err := p.cfg.Confirm(sp.Message); err != nil {
			return fmt.Errorf("participant: signing rejected: %w", err)
		}
	}

	share, err := frost.Sign(p.cfg.Suite, sp, nonces, kp)
	if err != nil {
		return comms.NewError(comms.KindCrypto, roundSign, err)
	}

	if err := conn.SendSignatureShare(ctx, kp.ID, share); err != nil {
		return comms.NewError(comms.KindTransport, roundSend, err)
	}
	log.Debug().Msg("signature share sent")
	return nil
}
