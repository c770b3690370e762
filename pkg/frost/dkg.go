package frost

import (
	"errors"
	"fmt"
	"io"

	"github.com/polarsign/frost-ceremony/pkg/party"
)

// Round1Package is a participant's contribution to DKG round 1: commitments
// to its secret polynomial and a proof of knowledge of the constant term.
// It is echo-broadcast to every other participant.
type Round1Package struct {
	Commitments []*Element `cbor:"1,keyasint"`
	ProofR      *Element   `cbor:"2,keyasint"`
	ProofMu     *Scalar    `cbor:"3,keyasint"`
}

// Validate rejects structurally unusable round-1 packages.
func (p *Round1Package) Validate(minSigners uint16) error {
	if p == nil || p.ProofR == nil || p.ProofMu == nil {
		return errors.New("frost: incomplete round 1 package")
	}
	if len(p.Commitments) != int(minSigners) {
		return fmt.Errorf("frost: expected %d polynomial commitments, got %d",
			minSigners, len(p.Commitments))
	}
	for _, c := range p.Commitments {
		if c == nil || c.IsIdentity() {
			return errors.New("frost: polynomial commitment is the identity point")
		}
	}
	return nil
}

// Round2Package carries the secret polynomial evaluation f_i(j) addressed to
// one specific recipient j. It is never broadcast.
type Round2Package struct {
	Share *Scalar `cbor:"1,keyasint"`
}

// Round1Secret is the private DKG state between part 1 and part 2.
type Round1Secret struct {
	id         party.ID
	minSigners uint16
	maxSigners uint16
	f          *polynomial
}

// Zeroize destroys the secret polynomial.
func (r *Round1Secret) Zeroize() {
	if r.f != nil {
		r.f.zeroize()
	}
}

// Round2Secret is the private DKG state between part 2 and part 3. The own
// commitment vector is public data, carried along because part 3 needs every
// participant's committed polynomial including ours.
type Round2Secret struct {
	id             party.ID
	minSigners     uint16
	maxSigners     uint16
	ownShare       *Scalar
	ownCommitments []*Element
}

// Zeroize destroys the retained share.
func (r *Round2Secret) Zeroize() {
	if r.ownShare != nil {
		r.ownShare.Zeroize()
	}
}

// DKGPart1 begins key generation for one participant: it samples the secret
// polynomial and produces the package to echo-broadcast.
func DKGPart1(suite *Suite, rng io.Reader, id party.ID, minSigners, maxSigners uint16) (*Round1Secret, *Round1Package, error) {
	if !id.Valid() {
		return nil, nil, errors.New("frost: invalid participant identifier")
	}
	if minSigners < 2 || minSigners > maxSigners {
		return nil, nil, fmt.Errorf("frost: invalid signer bounds %d/%d", minSigners, maxSigners)
	}
	secret, err := randomScalar(rng)
	if err != nil {
		return nil, nil, err
	}
	f, err := newPolynomial(rng, int(minSigners), secret)
	if err != nil {
		return nil, nil, err
	}
	commitments := f.commitments()

	// Schnorr proof of knowledge of the constant term:
	// R = k·G, c = H(id, φ_0, R), μ = k + a_0·c.
	k, err := randomScalar(rng)
	if err != nil {
		return nil, nil, err
	}
	proofR := k.ActOnBase()
	c, err := pokChallenge(suite, id, commitments[0], proofR)
	if err != nil {
		return nil, nil, err
	}
	mu := NewScalar().Set(secret).Mul(c).Add(k)
	k.Zeroize()
	secret.Zeroize()

	sec := &Round1Secret{id: id, minSigners: minSigners, maxSigners: maxSigners, f: f}
	pkg := &Round1Package{Commitments: commitments, ProofR: proofR, ProofMu: mu}
	return sec, pkg, nil
}

// PeerError attributes a DKG failure to the peer that produced bad data.
type PeerError struct {
	ID  party.ID
	Err error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("frost: participant %s: %s", e.ID, e.Err)
}

func (e *PeerError) Unwrap() error { return e.Err }

// DKGPart2 verifies every other participant's round-1 package and produces
// one addressed round-2 package per peer. The received map must not contain
// our own package. The round-1 secret is destroyed before returning.
func DKGPart2(suite *Suite, sec *Round1Secret, round1 map[party.ID]*Round1Package) (*Round2Secret, map[party.ID]*Round2Package, error) {
	defer sec.Zeroize()

	if _, ok := round1[sec.id]; ok {
		return nil, nil, &PeerError{ID: sec.id, Err: errors.New("received our own round 1 package")}
	}
	if len(round1) != int(sec.maxSigners)-1 {
		return nil, nil, fmt.Errorf("frost: expected round 1 packages from %d peers, got %d",
			sec.maxSigners-1, len(round1))
	}
	for id, pkg := range round1 {
		if err := pkg.Validate(sec.minSigners); err != nil {
			return nil, nil, &PeerError{ID: id, Err: err}
		}
		c, err := pokChallenge(suite, id, pkg.Commitments[0], pkg.ProofR)
		if err != nil {
			return nil, nil, &PeerError{ID: id, Err: err}
		}
		// μ·G == R + c·φ_0
		expected := c.Act(pkg.Commitments[0])
		expected.Add(pkg.ProofR)
		if !pkg.ProofMu.ActOnBase().Equal(expected) {
			return nil, nil, &PeerError{ID: id, Err: errors.New("invalid proof of knowledge")}
		}
	}

	out := make(map[party.ID]*Round2Package, len(round1))
	for id := range round1 {
		out[id] = &Round2Package{Share: sec.f.evaluate(scalarFromID(id))}
	}
	sec2 := &Round2Secret{
		id:             sec.id,
		minSigners:     sec.minSigners,
		maxSigners:     sec.maxSigners,
		ownShare:       sec.f.evaluate(scalarFromID(sec.id)),
		ownCommitments: sec.f.commitments(),
	}
	return sec2, out, nil
}

// DKGPart3 verifies the received shares against the round-1 commitments and
// derives the final key material. Honest participants compute byte-identical
// public key packages. The round-2 secret is destroyed before returning.
func DKGPart3(sec *Round2Secret, round1 map[party.ID]*Round1Package, round2 map[party.ID]*Round2Package) (*KeyPackage, *PublicKeyPackage, error) {
	defer sec.Zeroize()

	if len(round2) != len(round1) {
		return nil, nil, fmt.Errorf("frost: expected round 2 packages from %d peers, got %d",
			len(round1), len(round2))
	}

	signingScalar := NewScalar().Set(sec.ownShare)
	for id, pkg := range round2 {
		sender, ok := round1[id]
		if !ok {
			return nil, nil, &PeerError{ID: id, Err: errors.New("round 2 package without a round 1 package")}
		}
		if pkg == nil || pkg.Share == nil {
			return nil, nil, &PeerError{ID: id, Err: errors.New("empty round 2 package")}
		}
		// f_i(j)·G == Σ_k j^k·φ_ik
		expected := evaluateCommitments(sender.Commitments, scalarFromID(sec.id))
		if !pkg.Share.ActOnBase().Equal(expected) {
			return nil, nil, &PeerError{ID: id, Err: errors.New("share does not match polynomial commitments")}
		}
		signingScalar.Add(pkg.Share)
	}

	allIDs := make([]party.ID, 0, len(round1)+1)
	allIDs = append(allIDs, sec.id)
	for id := range round1 {
		allIDs = append(allIDs, id)
	}
	participants := party.NewIDSlice(allIDs)

	// Y_j = Σ_i Φ_i(j), summing every participant's committed polynomial,
	// our own included.
	verifyingKey := NewElement()
	commitmentSets := make([][]*Element, 0, len(round1)+1)
	commitmentSets = append(commitmentSets, sec.ownCommitments)
	verifyingKey.Add(sec.ownCommitments[0])
	for _, pkg := range round1 {
		commitmentSets = append(commitmentSets, pkg.Commitments)
		verifyingKey.Add(pkg.Commitments[0])
	}

	verifyingShares := make(map[party.ID]*Element, len(participants))
	for _, id := range participants {
		x := scalarFromID(id)
		share := NewElement()
		for _, set := range commitmentSets {
			share.Add(evaluateCommitments(set, x))
		}
		verifyingShares[id] = share
	}

	verifyingShare := verifyingShares[sec.id]
	if !signingScalar.ActOnBase().Equal(verifyingShare) {
		return nil, nil, errors.New("frost: derived signing share contradicts the group commitments")
	}

	keyPackage := &KeyPackage{
		ID:             sec.id,
		SigningShare:   &SigningShare{s: *NewScalar().Set(signingScalar)},
		VerifyingShare: verifyingShare,
		VerifyingKey:   verifyingKey,
		MinSigners:     sec.minSigners,
	}
	signingScalar.Zeroize()
	pub := &PublicKeyPackage{
		VerifyingShares: verifyingShares,
		VerifyingKey:    verifyingKey,
		MinSigners:      sec.minSigners,
		MaxSigners:      sec.maxSigners,
	}
	return keyPackage, pub, nil
}

func pokChallenge(suite *Suite, id party.ID, constant, proofR *Element) (*Scalar, error) {
	cBytes, err := constant.MarshalBinary()
	if err != nil {
		return nil, err
	}
	rBytes, err := proofR.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return suite.hashToScalar("pok", id.Bytes(), cBytes, rBytes), nil
}
