package httpcomms

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/polarsign/frost-ceremony/internal/relay"
	"github.com/polarsign/frost-ceremony/pkg/comms"
	"github.com/polarsign/frost-ceremony/pkg/coordinator"
	"github.com/polarsign/frost-ceremony/pkg/dkg"
	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/participant"
	"github.com/polarsign/frost-ceremony/pkg/party"
)

var testSuite = frost.NewSuite(frost.NetworkTestnet)

func startRelay(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(relay.NewServer(zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func fastPoll() Option { return WithPollInterval(10 * time.Millisecond) }

func newIdentity(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv
}

func pubOf(priv ed25519.PrivateKey) comms.PubKey {
	return comms.PubKeyFromBytes(priv.Public().(ed25519.PublicKey))
}

func TestKeygenAndSigningThroughRelay(t *testing.T) {
	srv := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const (
		minSigners = 2
		maxSigners = 3
	)
	session, err := CreateKeygenSession(ctx, srv.URL, maxSigners)
	require.NoError(t, err)

	identities := make([]ed25519.PrivateKey, maxSigners)
	for i := range identities {
		identities[i] = newIdentity(t)
	}

	results := make([]*dkg.Result, maxSigners)
	var g errgroup.Group
	for i := 0; i < maxSigners; i++ {
		i := i
		g.Go(func() error {
			conn := NewDKG(NewClient(srv.URL, session, fastPoll(), WithIdentity(identities[i])))
			kg, err := dkg.New(dkg.Config{Suite: testSuite, MinSigners: minSigners, Logger: zerolog.Nop()})
			if err != nil {
				return err
			}
			results[i], err = kg.Run(ctx, conn)
			return err
		})
	}
	require.NoError(t, g.Wait())

	byID := make(map[party.ID]*dkg.Result, maxSigners)
	keyByID := make(map[party.ID]ed25519.PrivateKey, maxSigners)
	var reference []byte
	for i, res := range results {
		byID[res.KeyPackage.ID] = res
		keyByID[res.KeyPackage.ID] = identities[i]
		b, err := res.PublicKeyPackage.Bytes()
		require.NoError(t, err)
		if reference == nil {
			reference = b
		} else {
			require.Equal(t, reference, b)
		}
	}
	require.Len(t, byID, maxSigners)

	message := []byte("i am a message")
	pub := byID[1].PublicKeyPackage

	signSession, err := CreateSigningSession(ctx, srv.URL, results[0].PubKeyMap)
	require.NoError(t, err)

	var sig *frost.Signature
	var sg errgroup.Group
	sg.Go(func() error {
		coord, err := coordinator.New(coordinator.Config{
			Suite:            testSuite,
			PublicKeyPackage: pub,
			Messages:         [][]byte{message},
			NumSigners:       minSigners,
			Logger:           zerolog.Nop(),
		})
		if err != nil {
			return err
		}
		sig, err = coord.Run(ctx, NewCoordinator(NewClient(srv.URL, signSession, fastPoll())))
		return err
	})
	for _, id := range []party.ID{2, 3} {
		id := id
		sg.Go(func() error {
			p, err := participant.New(participant.Config{
				Suite:      testSuite,
				KeyPackage: byID[id].KeyPackage,
				Logger:     zerolog.Nop(),
			})
			if err != nil {
				return err
			}
			conn := NewParticipant(NewClient(srv.URL, signSession, fastPoll(), WithIdentity(keyByID[id])))
			return p.Sign(ctx, conn)
		})
	}
	require.NoError(t, sg.Wait())

	require.NotNil(t, sig)
	assert.True(t, frost.Verify(testSuite, message, sig, pub.VerifyingKey))
}

func TestCleanupDeletesSession(t *testing.T) {
	srv := startRelay(t)
	ctx := context.Background()

	priv := newIdentity(t)
	session, err := CreateSigningSession(ctx, srv.URL, map[comms.PubKey]party.ID{pubOf(priv): 1})
	require.NoError(t, err)

	coord := NewCoordinator(NewClient(srv.URL, session, fastPoll()))
	require.NoError(t, coord.CleanupOnError(ctx))

	// The session is gone: posting to it fails.
	keys, _, err := frost.DealKeys(rand.Reader, 2, 3)
	require.NoError(t, err)
	_, commitment, err := frost.Commit(rand.Reader, keys[1].SigningShare)
	require.NoError(t, err)

	p := NewParticipant(NewClient(srv.URL, session, fastPoll(), WithIdentity(priv)))
	shortCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err = p.GetSigningPackage(shortCtx, 1, commitment)
	require.Error(t, err)
}

func TestJoinIsIdempotentPerKey(t *testing.T) {
	srv := startRelay(t)
	ctx := context.Background()

	session, err := CreateKeygenSession(ctx, srv.URL, 3)
	require.NoError(t, err)
	privA, privB := newIdentity(t), newIdentity(t)

	conn := NewDKG(NewClient(srv.URL, session, fastPoll(), WithIdentity(privA)))
	id1, max, err := conn.GetIdentifierAndMaxSigners(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), max)

	again := NewDKG(NewClient(srv.URL, session, fastPoll(), WithIdentity(privA)))
	id2, _, err := again.GetIdentifierAndMaxSigners(ctx)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	other := NewDKG(NewClient(srv.URL, session, fastPoll(), WithIdentity(privB)))
	id3, _, err := other.GetIdentifierAndMaxSigners(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestRound2MailboxReadableByAddresseeOnly(t *testing.T) {
	srv := startRelay(t)
	ctx := context.Background()

	session, err := CreateKeygenSession(ctx, srv.URL, 3)
	require.NoError(t, err)

	// Three participants join in order, so identifiers follow key order.
	keys := make(map[party.ID]ed25519.PrivateKey, 3)
	for i := 0; i < 3; i++ {
		priv := newIdentity(t)
		conn := NewDKG(NewClient(srv.URL, session, fastPoll(), WithIdentity(priv)))
		id, _, err := conn.GetIdentifierAndMaxSigners(ctx)
		require.NoError(t, err)
		keys[id] = priv
	}

	sender := NewClient(srv.URL, session, fastPoll(), WithIdentity(keys[1]))
	err = sender.do(ctx, http.MethodPost, sender.sessionPath("/round2"),
		relay.PostRound2Request{From: 1, To: 2, Package: "aabb"}, nil)
	require.NoError(t, err)

	// A peer holding the session id but not the addressee's key is refused.
	attacker := NewClient(srv.URL, session, fastPoll(), WithIdentity(keys[3]))
	var resp relay.Round2Response
	err = attacker.do(ctx, http.MethodGet, attacker.sessionPath("/round2?to=2"), nil, &resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Empty(t, resp.Packages)

	// So is anyone who does not sign the request at all.
	anonymous := NewClient(srv.URL, session, fastPoll())
	err = anonymous.do(ctx, http.MethodGet, anonymous.sessionPath("/round2?to=2"), nil, &resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	// The addressee reads its own mailbox.
	addressee := NewClient(srv.URL, session, fastPoll(), WithIdentity(keys[2]))
	require.NoError(t, addressee.do(ctx, http.MethodGet, addressee.sessionPath("/round2?to=2"), nil, &resp))
	assert.Equal(t, map[uint16]string{1: "aabb"}, resp.Packages)
}

func TestPostRejectsImpersonatedIdentifier(t *testing.T) {
	srv := startRelay(t)
	ctx := context.Background()

	privA, privB := newIdentity(t), newIdentity(t)
	session, err := CreateSigningSession(ctx, srv.URL, map[comms.PubKey]party.ID{
		pubOf(privA): 1,
		pubOf(privB): 2,
	})
	require.NoError(t, err)

	// Participant 2 cannot post a commitment under identifier 1, and a key
	// outside the declared member set cannot post at all.
	b := NewClient(srv.URL, session, fastPoll(), WithIdentity(privB))
	err = b.do(ctx, http.MethodPost, b.sessionPath("/commitment"),
		relay.PostCommitmentRequest{Identifier: 1, Commitment: "cc"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	outsider := NewClient(srv.URL, session, fastPoll(), WithIdentity(newIdentity(t)))
	err = outsider.do(ctx, http.MethodPost, outsider.sessionPath("/commitment"),
		relay.PostCommitmentRequest{Identifier: 1, Commitment: "cc"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	// The identifier's real holder still posts, unimpeded by the attempts.
	a := NewClient(srv.URL, session, fastPoll(), WithIdentity(privA))
	require.NoError(t, a.do(ctx, http.MethodPost, a.sessionPath("/commitment"),
		relay.PostCommitmentRequest{Identifier: 1, Commitment: "cc"}, nil))
}

func TestRound1PostRequiresOwnIdentifier(t *testing.T) {
	srv := startRelay(t)
	ctx := context.Background()

	session, err := CreateKeygenSession(ctx, srv.URL, 2)
	require.NoError(t, err)

	privA, privB := newIdentity(t), newIdentity(t)
	connA := NewDKG(NewClient(srv.URL, session, fastPoll(), WithIdentity(privA)))
	idA, _, err := connA.GetIdentifierAndMaxSigners(ctx)
	require.NoError(t, err)
	connB := NewDKG(NewClient(srv.URL, session, fastPoll(), WithIdentity(privB)))
	_, _, err = connB.GetIdentifierAndMaxSigners(ctx)
	require.NoError(t, err)

	// B posting round 1 data under A's identifier is refused, so A's own
	// post is never shadowed into a conflict.
	err = connB.do(ctx, http.MethodPost, connB.sessionPath("/round1"),
		relay.PostRound1Request{Identifier: uint16(idA), Package: "dd"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	require.NoError(t, connA.do(ctx, http.MethodPost, connA.sessionPath("/round1"),
		relay.PostRound1Request{Identifier: uint16(idA), Package: "dd"}, nil))
}
