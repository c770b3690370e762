// Package memory provides in-process transports implementing the Comms
// contracts. They back the simulated multi-party tests and serve as the
// reference semantics for the network transports: identical round data, no
// wire mechanics.
package memory

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/polarsign/frost-ceremony/pkg/comms"
	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/party"
)

// ErrClosed is returned by every operation after a cleanup tore the hub down.
var ErrClosed = errors.New("memory: hub closed")

type identifiedCommitment struct {
	id         party.ID
	commitment *frost.Commitment
}

type identifiedShare struct {
	id    party.ID
	share *frost.SignatureShare
}

// SigningHub connects one coordinator with a fixed set of participants for a
// single signing ceremony.
type SigningHub struct {
	commitments chan identifiedCommitment
	shares      chan identifiedShare

	mu       sync.Mutex
	packages map[party.ID]chan *frost.SigningPackage

	done      chan struct{}
	closeOnce sync.Once

	// cleanups counts CleanupOnError invocations, for tests asserting the
	// exactly-once discipline.
	cleanups int
}

// NewSigningHub creates a hub for the given participant set.
func NewSigningHub(participants party.IDSlice) *SigningHub {
	n := len(participants)
	h := &SigningHub{
		commitments: make(chan identifiedCommitment, n),
		shares:      make(chan identifiedShare, n),
		packages:    make(map[party.ID]chan *frost.SigningPackage, n),
		done:        make(chan struct{}),
	}
	for _, id := range participants {
		h.packages[id] = make(chan *frost.SigningPackage, 1)
	}
	return h
}

// Cleanups reports how many times any side invoked CleanupOnError.
func (h *SigningHub) Cleanups() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cleanups
}

func (h *SigningHub) close(ctx context.Context) error {
	h.mu.Lock()
	h.cleanups++
	h.mu.Unlock()
	h.closeOnce.Do(func() { close(h.done) })
	return ctx.Err()
}

// Coordinator returns the coordinator's view of the hub.
func (h *SigningHub) Coordinator() comms.Coordinator { return (*coordinatorConn)(h) }

// Participant returns one participant's view of the hub.
func (h *SigningHub) Participant() comms.Participant { return (*participantConn)(h) }

type coordinatorConn SigningHub

func (c *coordinatorConn) hub() *SigningHub { return (*SigningHub)(c) }

// GetSigningCommitments waits for commitments from up to numSigners
// participants, but never for more than the hub has: everyone who will ever
// answer is known, so waiting longer would block forever instead of letting
// the coordinator apply its quorum rule to what arrived.
func (c *coordinatorConn) GetSigningCommitments(ctx context.Context, _ *frost.PublicKeyPackage, numSigners uint16) (map[party.ID]*frost.Commitment, error) {
	h := c.hub()
	want := int(numSigners)
	if reachable := len(h.packages); want > reachable {
		want = reachable
	}
	out := make(map[party.ID]*frost.Commitment, want)
	for len(out) < want {
		select {
		case ic := <-h.commitments:
			out[ic.id] = ic.commitment
		case <-h.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

func (c *coordinatorConn) SendSigningPackageAndGetShares(ctx context.Context, sp *frost.SigningPackage) (map[party.ID]*frost.SignatureShare, error) {
	h := c.hub()
	selected := sp.SignerIDs()
	h.mu.Lock()
	for _, id := range selected {
		ch, ok := h.packages[id]
		if !ok {
			h.mu.Unlock()
			return nil, errors.Errorf("memory: no participant %s on this hub", id)
		}
		ch <- sp
	}
	h.mu.Unlock()

	out := make(map[party.ID]*frost.SignatureShare, len(selected))
	for len(out) < len(selected) {
		select {
		case is := <-h.shares:
			out[is.id] = is.share
		case <-h.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

func (c *coordinatorConn) CleanupOnError(ctx context.Context) error {
	return c.hub().close(ctx)
}

type participantConn SigningHub

func (p *participantConn) hub() *SigningHub { return (*SigningHub)(p) }

func (p *participantConn) GetSigningPackage(ctx context.Context, id party.ID, commitment *frost.Commitment) (*frost.SigningPackage, error) {
	h := p.hub()
	h.mu.Lock()
	ch, ok := h.packages[id]
	h.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("memory: participant %s not registered", id)
	}
	select {
	case h.commitments <- identifiedCommitment{id: id, commitment: commitment}:
	case <-h.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case sp := <-ch:
		return sp, nil
	case <-h.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *participantConn) SendSignatureShare(ctx context.Context, id party.ID, share *frost.SignatureShare) error {
	h := p.hub()
	select {
	case h.shares <- identifiedShare{id: id, share: share}:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *participantConn) CleanupOnError(ctx context.Context) error {
	// Participants dropping out must not tear the hub down for everyone.
	h := p.hub()
	h.mu.Lock()
	h.cleanups++
	h.mu.Unlock()
	return ctx.Err()
}
