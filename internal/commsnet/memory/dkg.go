package memory

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/polarsign/frost-ceremony/pkg/comms"
	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/party"
)

// DKGHub connects maxSigners participants for one key generation ceremony.
// Identifiers are assigned in join order, starting at 1.
type DKGHub struct {
	maxSigners uint16

	mu        sync.Mutex
	pubKeys   map[party.ID]comms.PubKey
	round1    map[party.ID]*frost.Round1Package
	round2    map[party.ID]map[party.ID]*frost.Round2Package
	round1All chan struct{} // closed once every round 1 package arrived
	round2All chan struct{} // closed once every round 2 package arrived
	sent2     int
	next      party.ID

	done      chan struct{}
	closeOnce sync.Once
	cleanups  int
}

// NewDKGHub creates a hub expecting exactly maxSigners participants.
func NewDKGHub(maxSigners uint16) *DKGHub {
	return &DKGHub{
		maxSigners: maxSigners,
		pubKeys:    make(map[party.ID]comms.PubKey, maxSigners),
		round1:     make(map[party.ID]*frost.Round1Package, maxSigners),
		round2:     make(map[party.ID]map[party.ID]*frost.Round2Package, maxSigners),
		round1All:  make(chan struct{}),
		round2All:  make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Cleanups reports how many times any participant invoked CleanupOnError.
func (h *DKGHub) Cleanups() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cleanups
}

// Join registers one participant under its long-term public key and returns
// its view of the ceremony.
func (h *DKGHub) Join(pubKey comms.PubKey) (comms.DKG, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.next >= party.ID(h.maxSigners) {
		return nil, errors.Errorf("memory: dkg hub full, %d participants already joined", h.maxSigners)
	}
	h.next++
	id := h.next
	h.pubKeys[id] = pubKey
	h.round2[id] = make(map[party.ID]*frost.Round2Package, h.maxSigners-1)
	return &dkgConn{hub: h, id: id}, nil
}

func (h *DKGHub) close(ctx context.Context) error {
	h.mu.Lock()
	h.cleanups++
	h.mu.Unlock()
	h.closeOnce.Do(func() { close(h.done) })
	return ctx.Err()
}

type dkgConn struct {
	hub *DKGHub
	id  party.ID
}

func (c *dkgConn) GetIdentifierAndMaxSigners(ctx context.Context) (party.ID, uint16, error) {
	select {
	case <-c.hub.done:
		return 0, 0, ErrClosed
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	default:
		return c.id, c.hub.maxSigners, nil
	}
}

// GetRound1Packages posts this participant's commitment package and blocks
// until every other participant has done the same.
func (c *dkgConn) GetRound1Packages(ctx context.Context, pkg *frost.Round1Package) (map[party.ID]*frost.Round1Package, error) {
	h := c.hub
	h.mu.Lock()
	h.round1[c.id] = pkg
	if len(h.round1) == int(h.maxSigners) {
		close(h.round1All)
	}
	h.mu.Unlock()

	select {
	case <-h.round1All:
	case <-h.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[party.ID]*frost.Round1Package, h.maxSigners-1)
	for id, p := range h.round1 {
		if id != c.id {
			out[id] = p
		}
	}
	return out, nil
}

// GetRound2Packages delivers each addressed share to its recipient's mailbox
// and blocks until this participant's own mailbox is complete.
func (c *dkgConn) GetRound2Packages(ctx context.Context, pkgs map[party.ID]*frost.Round2Package) (map[party.ID]*frost.Round2Package, error) {
	h := c.hub
	h.mu.Lock()
	for recipient, pkg := range pkgs {
		box, ok := h.round2[recipient]
		if !ok {
			h.mu.Unlock()
			return nil, errors.Errorf("memory: round 2 package addressed to unknown participant %s", recipient)
		}
		box[c.id] = pkg
	}
	h.sent2++
	if h.sent2 == int(h.maxSigners) {
		close(h.round2All)
	}
	h.mu.Unlock()

	select {
	case <-h.round2All:
	case <-h.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[party.ID]*frost.Round2Package, len(h.round2[c.id]))
	for id, p := range h.round2[c.id] {
		out[id] = p
	}
	return out, nil
}

func (c *dkgConn) PubKeyIdentifierMap(ctx context.Context) (map[comms.PubKey]party.ID, error) {
	select {
	case <-c.hub.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[comms.PubKey]party.ID, len(h.pubKeys))
	for id, pk := range h.pubKeys {
		out[pk] = id
	}
	return out, nil
}

func (c *dkgConn) CleanupOnError(ctx context.Context) error {
	return c.hub.close(ctx)
}
