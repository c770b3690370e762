package coordinator

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarsign/frost-ceremony/pkg/comms"
	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/party"
)

var testSuite = frost.NewSuite(frost.NetworkTestnet)

// fakeConn scripts the transport side of a ceremony and counts cleanups.
type fakeConn struct {
	commitments    func(numSigners uint16) (map[party.ID]*frost.Commitment, error)
	shares         func(sp *frost.SigningPackage) (map[party.ID]*frost.SignatureShare, error)
	cleanups       int
	packageReached bool
}

func (f *fakeConn) GetSigningCommitments(_ context.Context, _ *frost.PublicKeyPackage, numSigners uint16) (map[party.ID]*frost.Commitment, error) {
	return f.commitments(numSigners)
}

func (f *fakeConn) SendSigningPackageAndGetShares(_ context.Context, sp *frost.SigningPackage) (map[party.ID]*frost.SignatureShare, error) {
	f.packageReached = true
	return f.shares(sp)
}

func (f *fakeConn) CleanupOnError(context.Context) error {
	f.cleanups++
	return nil
}

type group struct {
	keys map[party.ID]*frost.KeyPackage
	pub  *frost.PublicKeyPackage
}

func newGroup(t *testing.T, minSigners, maxSigners uint16) *group {
	t.Helper()
	keys, pub, err := frost.DealKeys(rand.Reader, minSigners, maxSigners)
	require.NoError(t, err)
	return &group{keys: keys, pub: pub}
}

// liveSigners returns a scripted transport backed by real signers for the
// given identifiers.
func (g *group) liveSigners(t *testing.T, ids ...party.ID) *fakeConn {
	t.Helper()
	nonces := make(map[party.ID]*frost.Nonces, len(ids))
	return &fakeConn{
		commitments: func(uint16) (map[party.ID]*frost.Commitment, error) {
			out := make(map[party.ID]*frost.Commitment, len(ids))
			for _, id := range ids {
				n, c, err := frost.Commit(rand.Reader, g.keys[id].SigningShare)
				require.NoError(t, err)
				nonces[id] = n
				out[id] = c
			}
			return out, nil
		},
		shares: func(sp *frost.SigningPackage) (map[party.ID]*frost.SignatureShare, error) {
			out := make(map[party.ID]*frost.SignatureShare, len(ids))
			for _, id := range ids {
				share, err := frost.Sign(testSuite, sp, nonces[id], g.keys[id])
				require.NoError(t, err)
				out[id] = share
			}
			return out, nil
		},
	}
}

func newCoordinator(t *testing.T, pub *frost.PublicKeyPackage, numSigners uint16) *Coordinator {
	t.Helper()
	c, err := New(Config{
		Suite:            testSuite,
		PublicKeyPackage: pub,
		Messages:         [][]byte{[]byte("pay alice 10")},
		NumSigners:       numSigners,
		Logger:           zerolog.Nop(),
	})
	require.NoError(t, err)
	return c
}

func TestRunProducesValidSignature(t *testing.T) {
	g := newGroup(t, 2, 3)
	conn := g.liveSigners(t, 1, 3)
	c := newCoordinator(t, g.pub, 2)

	sig, err := c.Run(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, StateDone, c.State())
	assert.Same(t, sig, c.Signature())
	assert.True(t, frost.Verify(testSuite, []byte("pay alice 10"), sig, g.pub.VerifyingKey))
	assert.Zero(t, conn.cleanups)
}

func TestConfigValidation(t *testing.T) {
	g := newGroup(t, 3, 5)
	for _, tc := range []struct {
		name string
		cfg  Config
	}{
		{"below threshold", Config{Suite: testSuite, PublicKeyPackage: g.pub, Messages: [][]byte{[]byte("m")}, NumSigners: 2}},
		{"above group size", Config{Suite: testSuite, PublicKeyPackage: g.pub, Messages: [][]byte{[]byte("m")}, NumSigners: 6}},
		{"no message", Config{Suite: testSuite, PublicKeyPackage: g.pub, NumSigners: 3}},
		{"no suite", Config{PublicKeyPackage: g.pub, Messages: [][]byte{[]byte("m")}, NumSigners: 3}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestCleanupOnCommitmentCollectionFailure(t *testing.T) {
	g := newGroup(t, 2, 3)
	conn := &fakeConn{
		commitments: func(uint16) (map[party.ID]*frost.Commitment, error) {
			return nil, errors.New("connection reset")
		},
	}
	c := newCoordinator(t, g.pub, 2)

	_, err := c.Run(context.Background(), conn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, comms.ErrTransport))
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, 1, conn.cleanups)
	assert.False(t, conn.packageReached)
}

func TestCleanupOnShareCollectionFailure(t *testing.T) {
	g := newGroup(t, 2, 3)
	conn := g.liveSigners(t, 1, 2)
	conn.shares = func(*frost.SigningPackage) (map[party.ID]*frost.SignatureShare, error) {
		return nil, errors.New("peer went away")
	}
	c := newCoordinator(t, g.pub, 2)

	_, err := c.Run(context.Background(), conn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, comms.ErrTransport))
	assert.Equal(t, 1, conn.cleanups)
}

func TestQuorumErrorBeforePackageConstruction(t *testing.T) {
	g := newGroup(t, 4, 5)
	// Transport delivers three commitments against a threshold of four.
	conn := g.liveSigners(t, 1, 2, 3)
	c := newCoordinator(t, g.pub, 4)

	_, err := c.Run(context.Background(), conn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, comms.ErrQuorum))
	assert.Equal(t, 1, conn.cleanups)
	// A sub-quorum commitment set must never turn into a signing package.
	assert.False(t, conn.packageReached)
}

func TestRejectsCommitmentFromOutsideGroup(t *testing.T) {
	g := newGroup(t, 2, 3)
	conn := g.liveSigners(t, 1, 2)
	inner := conn.commitments
	conn.commitments = func(n uint16) (map[party.ID]*frost.Commitment, error) {
		out, err := inner(n)
		if err != nil {
			return nil, err
		}
		out[99] = out[1]
		delete(out, 2)
		return out, nil
	}
	c := newCoordinator(t, g.pub, 2)

	_, err := c.Run(context.Background(), conn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, comms.ErrMisuse))
	var cerr *comms.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, party.ID(99), cerr.Culprit)
	assert.Equal(t, 1, conn.cleanups)
}

func TestRejectsUnsolicitedShare(t *testing.T) {
	g := newGroup(t, 2, 3)
	conn := g.liveSigners(t, 1, 2)
	inner := conn.shares
	conn.shares = func(sp *frost.SigningPackage) (map[party.ID]*frost.SignatureShare, error) {
		out, err := inner(sp)
		if err != nil {
			return nil, err
		}
		out[3] = out[1]
		return out, nil
	}
	c := newCoordinator(t, g.pub, 2)

	_, err := c.Run(context.Background(), conn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, comms.ErrMisuse))
	assert.Equal(t, 1, conn.cleanups)
}

func TestIncompleteShareSetIsQuorumError(t *testing.T) {
	g := newGroup(t, 2, 3)
	conn := g.liveSigners(t, 1, 2)
	inner := conn.shares
	conn.shares = func(sp *frost.SigningPackage) (map[party.ID]*frost.SignatureShare, error) {
		out, err := inner(sp)
		if err != nil {
			return nil, err
		}
		delete(out, 2)
		return out, nil
	}
	c := newCoordinator(t, g.pub, 2)

	_, err := c.Run(context.Background(), conn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, comms.ErrQuorum))
	assert.Equal(t, 1, conn.cleanups)
}

func TestBadShareBlamesItsSender(t *testing.T) {
	g := newGroup(t, 2, 3)
	conn := g.liveSigners(t, 1, 2)
	inner := conn.shares
	conn.shares = func(sp *frost.SigningPackage) (map[party.ID]*frost.SignatureShare, error) {
		out, err := inner(sp)
		if err != nil {
			return nil, err
		}
		out[2] = out[1]
		return out, nil
	}
	c := newCoordinator(t, g.pub, 2)

	_, err := c.Run(context.Background(), conn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, comms.ErrCrypto))
	var cerr *comms.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, party.ID(2), cerr.Culprit)
	assert.Equal(t, 1, conn.cleanups)
}

func TestCoordinatorIsSingleUse(t *testing.T) {
	g := newGroup(t, 2, 3)
	conn := &fakeConn{
		commitments: func(uint16) (map[party.ID]*frost.Commitment, error) {
			return nil, errors.New("down")
		},
	}
	c := newCoordinator(t, g.pub, 2)

	_, err := c.Run(context.Background(), conn)
	require.Error(t, err)

	_, err = c.Run(context.Background(), conn)
	require.Error(t, err)
	// The second call must fail fast without touching the transport again.
	assert.Equal(t, 1, conn.cleanups)
}
