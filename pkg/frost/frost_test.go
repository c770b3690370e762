package frost

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarsign/frost-ceremony/pkg/party"
)

var testSuite = NewSuite(NetworkTestnet)

// signOnce runs one full signing ceremony over the given key material with
// exactly the signers in quorum.
func signOnce(t *testing.T, keys map[party.ID]*KeyPackage, pub *PublicKeyPackage, quorum party.IDSlice, message []byte) *Signature {
	t.Helper()

	nonces := make(map[party.ID]*Nonces, len(quorum))
	commitments := make(map[party.ID]*Commitment, len(quorum))
	for _, id := range quorum {
		n, c, err := Commit(rand.Reader, keys[id].SigningShare)
		require.NoError(t, err)
		nonces[id] = n
		commitments[id] = c
	}

	sp, err := NewSigningPackage(commitments, message)
	require.NoError(t, err)

	shares := make(map[party.ID]*SignatureShare, len(quorum))
	for _, id := range quorum {
		share, err := Sign(testSuite, sp, nonces[id], keys[id])
		require.NoError(t, err)
		nonces[id].Zeroize()
		shares[id] = share
	}

	sig, err := Aggregate(testSuite, sp, shares, pub)
	require.NoError(t, err)
	return sig
}

func TestDealerSignVerify(t *testing.T) {
	message := []byte("hello threshold world")
	for _, bounds := range [][2]uint16{{2, 2}, {2, 3}, {3, 5}, {5, 5}} {
		minSigners, maxSigners := bounds[0], bounds[1]
		keys, pub, err := DealKeys(rand.Reader, minSigners, maxSigners)
		require.NoError(t, err)
		require.NoError(t, pub.Validate())
		require.Len(t, keys, int(maxSigners))

		quorum := party.Sequential(int(minSigners))
		sig := signOnce(t, keys, pub, quorum, message)
		assert.True(t, Verify(testSuite, message, sig, pub.VerifyingKey),
			"min=%d max=%d", minSigners, maxSigners)
		assert.False(t, Verify(testSuite, []byte("different message"), sig, pub.VerifyingKey))
	}
}

func TestDealerRejectsBadBounds(t *testing.T) {
	_, _, err := DealKeys(rand.Reader, 1, 3)
	assert.Error(t, err)
	_, _, err = DealKeys(rand.Reader, 4, 3)
	assert.Error(t, err)
}

func TestVerifyWrongNetwork(t *testing.T) {
	keys, pub, err := DealKeys(rand.Reader, 2, 3)
	require.NoError(t, err)
	message := []byte("network separation")
	sig := signOnce(t, keys, pub, party.IDSlice{1, 2}, message)
	assert.True(t, Verify(testSuite, message, sig, pub.VerifyingKey))
	assert.False(t, Verify(NewSuite(NetworkMainnet), message, sig, pub.VerifyingKey))
}

// runDKG executes the three DKG parts for every participant in-process and
// returns each participant's key material.
func runDKG(t *testing.T, minSigners, maxSigners uint16) (map[party.ID]*KeyPackage, map[party.ID]*PublicKeyPackage) {
	t.Helper()
	ids := party.Sequential(int(maxSigners))

	secrets1 := make(map[party.ID]*Round1Secret, len(ids))
	round1 := make(map[party.ID]*Round1Package, len(ids))
	for _, id := range ids {
		sec, pkg, err := DKGPart1(testSuite, rand.Reader, id, minSigners, maxSigners)
		require.NoError(t, err)
		secrets1[id] = sec
		round1[id] = pkg
	}

	secrets2 := make(map[party.ID]*Round2Secret, len(ids))
	outgoing := make(map[party.ID]map[party.ID]*Round2Package, len(ids))
	for _, id := range ids {
		received := make(map[party.ID]*Round1Package, len(ids)-1)
		for _, other := range ids {
			if other != id {
				received[other] = round1[other]
			}
		}
		sec, pkgs, err := DKGPart2(testSuite, secrets1[id], received)
		require.NoError(t, err)
		secrets2[id] = sec
		outgoing[id] = pkgs
	}

	keys := make(map[party.ID]*KeyPackage, len(ids))
	pubs := make(map[party.ID]*PublicKeyPackage, len(ids))
	for _, id := range ids {
		receivedRound1 := make(map[party.ID]*Round1Package, len(ids)-1)
		receivedRound2 := make(map[party.ID]*Round2Package, len(ids)-1)
		for _, other := range ids {
			if other == id {
				continue
			}
			receivedRound1[other] = round1[other]
			receivedRound2[other] = outgoing[other][id]
		}
		kp, pub, err := DKGPart3(secrets2[id], receivedRound1, receivedRound2)
		require.NoError(t, err)
		require.NoError(t, kp.Validate())
		keys[id] = kp
		pubs[id] = pub
	}
	return keys, pubs
}

func TestDKGProducesConsistentGroup(t *testing.T) {
	keys, pubs := runDKG(t, 3, 5)

	reference, err := pubs[1].Bytes()
	require.NoError(t, err)
	for id, pub := range pubs {
		b, err := pub.Bytes()
		require.NoError(t, err)
		assert.Equal(t, reference, b, "public key package of participant %s diverges", id)
	}

	message := []byte("signed under a dkg key")
	sig := signOnce(t, keys, pubs[1], party.IDSlice{1, 3, 5}, message)
	assert.True(t, Verify(testSuite, message, sig, pubs[1].VerifyingKey))
}

func TestDKGRejectsTamperedShare(t *testing.T) {
	minSigners, maxSigners := uint16(2), uint16(3)
	ids := party.Sequential(int(maxSigners))

	secrets1 := make(map[party.ID]*Round1Secret)
	round1 := make(map[party.ID]*Round1Package)
	for _, id := range ids {
		sec, pkg, err := DKGPart1(testSuite, rand.Reader, id, minSigners, maxSigners)
		require.NoError(t, err)
		secrets1[id] = sec
		round1[id] = pkg
	}

	received := map[party.ID]*Round1Package{2: round1[2], 3: round1[3]}
	sec2, _, err := DKGPart2(testSuite, secrets1[1], received)
	require.NoError(t, err)

	// Participant 1 receives a share that does not match participant 2's
	// polynomial commitments.
	bogus, err := randomScalar(rand.Reader)
	require.NoError(t, err)
	_, _, err = DKGPart3(sec2, received, map[party.ID]*Round2Package{
		2: {Share: bogus},
		3: {Share: bogus},
	})
	require.Error(t, err)
	var peerErr *PeerError
	assert.ErrorAs(t, err, &peerErr)
}

func TestSignRejectsForeignPackage(t *testing.T) {
	keys, _, err := DealKeys(rand.Reader, 2, 3)
	require.NoError(t, err)

	// Nonces from one ceremony offered against a package built around a
	// different commitment of the same participant.
	noncesA, _, err := Commit(rand.Reader, keys[1].SigningShare)
	require.NoError(t, err)
	defer noncesA.Zeroize()
	noncesB, commitB, err := Commit(rand.Reader, keys[1].SigningShare)
	require.NoError(t, err)
	defer noncesB.Zeroize()
	_, commit2, err := Commit(rand.Reader, keys[2].SigningShare)
	require.NoError(t, err)

	sp, err := NewSigningPackage(map[party.ID]*Commitment{1: commitB, 2: commit2}, []byte("b"))
	require.NoError(t, err)

	_, err = Sign(testSuite, sp, noncesA, keys[1])
	assert.Error(t, err, "nonces are bound to the package that carries their commitment")

	// The nonces whose commitment the package actually selects still work.
	_, err = Sign(testSuite, sp, noncesB, keys[1])
	assert.NoError(t, err)
}

func TestShareBoundToPackage(t *testing.T) {
	keys, pub, err := DealKeys(rand.Reader, 2, 3)
	require.NoError(t, err)
	quorum := party.IDSlice{1, 2}

	buildPackage := func(message []byte) (*SigningPackage, map[party.ID]*SignatureShare) {
		nonces := make(map[party.ID]*Nonces)
		commitments := make(map[party.ID]*Commitment)
		for _, id := range quorum {
			n, c, err := Commit(rand.Reader, keys[id].SigningShare)
			require.NoError(t, err)
			nonces[id] = n
			commitments[id] = c
		}
		sp, err := NewSigningPackage(commitments, message)
		require.NoError(t, err)
		shares := make(map[party.ID]*SignatureShare)
		for _, id := range quorum {
			share, err := Sign(testSuite, sp, nonces[id], keys[id])
			require.NoError(t, err)
			nonces[id].Zeroize()
			shares[id] = share
		}
		return sp, shares
	}

	packageA, sharesA := buildPackage([]byte("message a"))
	packageB, sharesB := buildPackage([]byte("message b"))

	// Swapping participant 1's share from ceremony A into ceremony B's share
	// set must fail aggregation: shares are package-scoped.
	mixed := map[party.ID]*SignatureShare{1: sharesA[1], 2: sharesB[2]}
	_, err = Aggregate(testSuite, packageB, mixed, pub)
	require.Error(t, err)
	var invalid *InvalidShareError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, party.ID(1), invalid.ID)

	// Untouched share sets still aggregate.
	_, err = Aggregate(testSuite, packageA, sharesA, pub)
	assert.NoError(t, err)
}

func TestAggregateRejectsUnsolicitedShare(t *testing.T) {
	keys, pub, err := DealKeys(rand.Reader, 2, 3)
	require.NoError(t, err)

	nonces := make(map[party.ID]*Nonces)
	commitments := make(map[party.ID]*Commitment)
	for _, id := range []party.ID{1, 2} {
		n, c, err := Commit(rand.Reader, keys[id].SigningShare)
		require.NoError(t, err)
		nonces[id] = n
		commitments[id] = c
	}
	sp, err := NewSigningPackage(commitments, []byte("m"))
	require.NoError(t, err)

	shares := make(map[party.ID]*SignatureShare)
	for _, id := range []party.ID{1, 2} {
		share, err := Sign(testSuite, sp, nonces[id], keys[id])
		require.NoError(t, err)
		shares[id] = share
	}
	// Participant 3 was never selected; its identifier must be rejected even
	// with an otherwise plausible share value.
	shares[3] = shares[2]
	_, err = Aggregate(testSuite, sp, shares, pub)
	assert.ErrorIs(t, err, ErrUnsolicitedShare)
}

func TestSigningPackageDeterministic(t *testing.T) {
	keys, _, err := DealKeys(rand.Reader, 2, 3)
	require.NoError(t, err)

	commitments := make(map[party.ID]*Commitment)
	for _, id := range []party.ID{1, 2} {
		_, c, err := Commit(rand.Reader, keys[id].SigningShare)
		require.NoError(t, err)
		commitments[id] = c
	}
	message := []byte("determinism")

	first, err := NewSigningPackage(commitments, message)
	require.NoError(t, err)
	second, err := NewSigningPackage(commitments, message)
	require.NoError(t, err)

	firstBytes, err := first.Bytes()
	require.NoError(t, err)
	secondBytes, err := second.Bytes()
	require.NoError(t, err)
	assert.Equal(t, firstBytes, secondBytes)
}

func TestNonceSingleUse(t *testing.T) {
	keys, _, err := DealKeys(rand.Reader, 2, 2)
	require.NoError(t, err)

	n1, c1, err := Commit(rand.Reader, keys[1].SigningShare)
	require.NoError(t, err)
	_, c2, err := Commit(rand.Reader, keys[2].SigningShare)
	require.NoError(t, err)

	sp, err := NewSigningPackage(map[party.ID]*Commitment{1: c1, 2: c2}, []byte("once"))
	require.NoError(t, err)

	_, err = Sign(testSuite, sp, n1, keys[1])
	require.NoError(t, err)
	_, err = Sign(testSuite, sp, n1, keys[1])
	assert.ErrorIs(t, err, ErrNonceReuse)
}

func TestSignatureSerializeRoundTrip(t *testing.T) {
	keys, pub, err := DealKeys(rand.Reader, 2, 2)
	require.NoError(t, err)
	message := []byte("serialize me")
	sig := signOnce(t, keys, pub, party.IDSlice{1, 2}, message)

	b, err := sig.Serialize()
	require.NoError(t, err)
	require.Len(t, b, 65)

	decoded, err := DeserializeSignature(b)
	require.NoError(t, err)
	assert.True(t, Verify(testSuite, message, decoded, pub.VerifyingKey))
}
