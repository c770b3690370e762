package comms

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/party"
)

func testCommitment(t *testing.T) *frost.Commitment {
	t.Helper()
	keys, _, err := frost.DealKeys(rand.Reader, 2, 2)
	require.NoError(t, err)
	_, c, err := frost.Commit(rand.Reader, keys[1].SigningShare)
	require.NoError(t, err)
	return c
}

func TestEnvelopeExactlyOnePayload(t *testing.T) {
	c := testCommitment(t)
	sp, err := frost.NewSigningPackage(map[party.ID]*frost.Commitment{1: c}, []byte("m"))
	require.NoError(t, err)

	empty := &Envelope{}
	assert.Error(t, empty.Validate())

	double := &Envelope{
		IdentifiedCommitments: &IdentifiedCommitments{Identifier: 1, Commitments: c},
		SigningPackage:        sp,
	}
	assert.Error(t, double.Validate())

	single := &Envelope{SigningPackage: sp}
	assert.NoError(t, single.Validate())
}

func TestEnvelopeRejectsInvalidIdentifier(t *testing.T) {
	e := &Envelope{IdentifiedCommitments: &IdentifiedCommitments{
		Identifier:  0,
		Commitments: testCommitment(t),
	}}
	assert.Error(t, e.Validate())
}

func TestEnvelopeEncodeDecode(t *testing.T) {
	c := testCommitment(t)
	e := &Envelope{IdentifiedCommitments: &IdentifiedCommitments{Identifier: 7, Commitments: c}}

	data, err := e.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)
	require.NotNil(t, decoded.IdentifiedCommitments)
	assert.Equal(t, party.ID(7), decoded.IdentifiedCommitments.Identifier)
	assert.Nil(t, decoded.SigningPackage)
	assert.Nil(t, decoded.SignatureShare)
}

func TestFrameRoundTrip(t *testing.T) {
	c := testCommitment(t)
	e := &Envelope{IdentifiedCommitments: &IdentifiedCommitments{Identifier: 3, Commitments: c}}

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, e))

	decoded, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, party.ID(3), decoded.IdentifiedCommitments.Identifier)
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}

func TestErrorKinds(t *testing.T) {
	err := NewPeerError(KindMisuse, "collecting shares", 4, assert.AnError)
	assert.ErrorIs(t, err, ErrMisuse)
	assert.NotErrorIs(t, err, ErrQuorum)
	assert.Equal(t, KindMisuse, KindOf(err))
	assert.Contains(t, err.Error(), "participant 4")
	assert.ErrorIs(t, err, assert.AnError)
}
