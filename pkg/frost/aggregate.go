package frost

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/polarsign/frost-ceremony/pkg/party"
)

// Signature is an aggregated Schnorr signature satisfying
//
//	z·G = R + H(R, Y, m)·Y
//
// for the group verifying key Y.
type Signature struct {
	R *Element `cbor:"1,keyasint"`
	Z *Scalar  `cbor:"2,keyasint"`
}

// Serialize returns the 65-byte encoding: compressed R followed by z.
func (sig *Signature) Serialize() ([]byte, error) {
	r, err := sig.R.MarshalBinary()
	if err != nil {
		return nil, err
	}
	z, err := sig.Z.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(r, z...), nil
}

// String returns the hex encoding used for interactive display.
func (sig *Signature) String() string {
	b, err := sig.Serialize()
	if err != nil {
		return "<invalid signature>"
	}
	return hex.EncodeToString(b)
}

// DeserializeSignature parses a 65-byte signature.
func DeserializeSignature(data []byte) (*Signature, error) {
	if len(data) != 65 {
		return nil, fmt.Errorf("frost: invalid signature length %d", len(data))
	}
	sig := &Signature{R: NewElement(), Z: NewScalar()}
	if err := sig.R.UnmarshalBinary(data[:33]); err != nil {
		return nil, err
	}
	if err := sig.Z.UnmarshalBinary(data[33:]); err != nil {
		return nil, err
	}
	return sig, nil
}

// InvalidShareError identifies the participant whose signature share failed
// verification during aggregation.
type InvalidShareError struct {
	ID party.ID
}

func (e *InvalidShareError) Error() string {
	return fmt.Sprintf("frost: invalid signature share from participant %s", e.ID)
}

// ErrUnsolicitedShare is returned when a share's identifier does not appear
// in the signing package's commitment map.
var ErrUnsolicitedShare = errors.New("frost: signature share from participant outside the signing package")

// Aggregate combines the collected signature shares into a group signature.
//
// Every share is verified against its sender's verifying share before the
// sum is formed, so a malformed share is attributed to its producer instead
// of surfacing as an unverifiable group signature. The share set must match
// the package's commitment set exactly.
func Aggregate(suite *Suite, sp *SigningPackage, shares map[party.ID]*SignatureShare, pub *PublicKeyPackage) (*Signature, error) {
	if err := pub.Validate(); err != nil {
		return nil, err
	}
	for id := range shares {
		if _, ok := sp.Commitments[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsolicitedShare, id)
		}
	}
	if len(shares) != len(sp.Commitments) {
		return nil, fmt.Errorf("frost: have %d shares for %d selected signers",
			len(shares), len(sp.Commitments))
	}

	factors, err := sp.bindingFactors(suite)
	if err != nil {
		return nil, err
	}
	r, commitmentShares := sp.groupCommitment(factors)
	challenge, err := suite.challenge(r, pub.VerifyingKey, sp.Message)
	if err != nil {
		return nil, err
	}

	signerIDs := sp.SignerIDs()
	z := NewScalar()
	for _, id := range signerIDs {
		share := shares[id]
		if share == nil || share.Z == nil {
			return nil, &InvalidShareError{ID: id}
		}
		verifyingShare, ok := pub.VerifyingShares[id]
		if !ok {
			return nil, fmt.Errorf("frost: no verifying share for participant %s", id)
		}
		// z_l·G == R_l + c·λ_l·Y_l
		expected := NewScalar().Set(challenge).Mul(lagrange(signerIDs, id)).Act(verifyingShare)
		expected.Add(commitmentShares[id])
		if !share.Z.ActOnBase().Equal(expected) {
			return nil, &InvalidShareError{ID: id}
		}
		z.Add(share.Z)
	}

	sig := &Signature{R: r, Z: z}
	if !Verify(suite, sp.Message, sig, pub.VerifyingKey) {
		return nil, errors.New("frost: aggregated signature failed final verification")
	}
	return sig, nil
}

// Verify reports whether sig is a valid group signature over message.
func Verify(suite *Suite, message []byte, sig *Signature, verifyingKey *Element) bool {
	if sig == nil || sig.R == nil || sig.Z == nil || verifyingKey == nil {
		return false
	}
	if sig.R.IsIdentity() || verifyingKey.IsIdentity() {
		return false
	}
	challenge, err := suite.challenge(sig.R, verifyingKey, message)
	if err != nil {
		return false
	}
	expected := challenge.Act(verifyingKey)
	expected.Add(sig.R)
	return sig.Z.ActOnBase().Equal(expected)
}
