package participant

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

// fakeConn plays the coordinator side against a single participant.
type fakeConn struct {
	getPackage func(id party.ID, commitment *frost.Commitment) (*frost.SigningPackage, error)
	sent       map[party.ID]*frost.SignatureShare
	sendErr    error
	cleanups   int
}

func (f *fakeConn) GetSigningPackage(_ context.Context, id party.ID, commitment *frost.Commitment) (*frost.SigningPackage, error) {
	return f.getPackage(id, commitment)
}

func (f *fakeConn) SendSignatureShare(_ context.Context, id party.ID, share *frost.SignatureShare) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.sent == nil {
		f.sent = make(map[party.ID]*frost.SignatureShare)
	}
	f.sent[id] = share
	return nil
}

func (f *fakeConn) CleanupOnError(context.Context) error {
	f.cleanups++
	return nil
}

func newParticipant(t *testing.T, kp *frost.KeyPackage, confirm func([]byte) error) *Participant {
	t.Helper()
	p, err := New(Config{
		Suite:      testSuite,
		KeyPackage: kp,
		Confirm:    confirm,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return p
}

func TestSignProducesVerifiableShare(t *testing.T) {
	keys, pub, err := frost.DealKeys(rand.Reader, 2, 3)
	require.NoError(t, err)
	message := []byte("rotate the root key")

	// The fake coordinator completes the quorum with a real second signer.
	otherNonces, otherCommitment, err := frost.Commit(rand.Reader, keys[2].SigningShare)
	require.NoError(t, err)

	var sp *frost.SigningPackage
	conn := &fakeConn{
		getPackage: func(id party.ID, commitment *frost.Commitment) (*frost.SigningPackage, error) {
			var err error
			sp, err = frost.NewSigningPackage(map[party.ID]*frost.Commitment{
				id: commitment,
				2:  otherCommitment,
			}, message)
			return sp, err
		},
	}

	p := newParticipant(t, keys[1], nil)
	require.NoError(t, p.Sign(context.Background(), conn))
	require.Contains(t, conn.sent, party.ID(1))
	assert.Zero(t, conn.cleanups)

	otherShare, err := frost.Sign(testSuite, sp, otherNonces, keys[2])
	require.NoError(t, err)
	sig, err := frost.Aggregate(testSuite, sp, map[party.ID]*frost.SignatureShare{
		1: conn.sent[1],
		2: otherShare,
	}, pub)
	require.NoError(t, err)
	assert.True(t, frost.Verify(testSuite, message, sig, pub.VerifyingKey))
}

func TestSignCleansUpOnTransportFailure(t *testing.T) {
	keys, _, err := frost.DealKeys(rand.Reader, 2, 3)
	require.NoError(t, err)

	conn := &fakeConn{
		getPackage: func(party.ID, *frost.Commitment) (*frost.SigningPackage, error) {
			return nil, errors.New("relay unreachable")
		},
	}
	p := newParticipant(t, keys[1], nil)

	err = p.Sign(context.Background(), conn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, comms.ErrTransport))
	assert.Equal(t, 1, conn.cleanups)
	assert.Empty(t, conn.sent)
}

func TestSignRejectsPackageNotSelectingUs(t *testing.T) {
	keys, _, err := frost.DealKeys(rand.Reader, 2, 3)
	require.NoError(t, err)

	// A package built from other participants' commitments only.
	_, c2, err := frost.Commit(rand.Reader, keys[2].SigningShare)
	require.NoError(t, err)
	_, c3, err := frost.Commit(rand.Reader, keys[3].SigningShare)
	require.NoError(t, err)
	foreign, err := frost.NewSigningPackage(map[party.ID]*frost.Commitment{2: c2, 3: c3}, []byte("m"))
	require.NoError(t, err)

	conn := &fakeConn{
		getPackage: func(party.ID, *frost.Commitment) (*frost.SigningPackage, error) {
			return foreign, nil
		},
	}
	p := newParticipant(t, keys[1], nil)

	err = p.Sign(context.Background(), conn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, comms.ErrMisuse))
	assert.Equal(t, 1, conn.cleanups)
	assert.Empty(t, conn.sent)
}

func TestConfirmRejectionAbortsWithoutSigning(t *testing.T) {
	keys, _, err := frost.DealKeys(rand.Reader, 2, 3)
	require.NoError(t, err)

	var shown []byte
	conn := &fakeConn{
		getPackage: func(id party.ID, commitment *frost.Commitment) (*frost.SigningPackage, error) {
			return frost.NewSigningPackage(map[party.ID]*frost.Commitment{id: commitment}, []byte("drain the treasury"))
		},
	}
	p := newParticipant(t, keys[1], func(message []byte) error {
		shown = message
		return errors.New("operator declined")
	})

	err = p.Sign(context.Background(), conn)
	require.Error(t, err)
	assert.Equal(t, []byte("drain the treasury"), shown)
	assert.Empty(t, conn.sent)
	assert.Equal(t, 1, conn.cleanups)
}

func TestSignCleansUpOnSendFailure(t *testing.T) {
	keys, _, err := frost.DealKeys(rand.Reader, 2, 3)
	require.NoError(t, err)

	_, c2, err := frost.Commit(rand.Reader, keys[2].SigningShare)
	require.NoError(t, err)
	conn := &fakeConn{
		getPackage: func(id party.ID, commitment *frost.Commitment) (*frost.SigningPackage, error) {
			return frost.NewSigningPackage(map[party.ID]*frost.Commitment{id: commitment, 2: c2}, []byte("m"))
		},
		sendErr: errors.New("broken pipe"),
	}
	p := newParticipant(t, keys[1], nil)

	err = p.Sign(context.Background(), conn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, comms.ErrTransport))
	assert.Equal(t, 1, conn.cleanups)
}
