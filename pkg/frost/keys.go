package frost

import (
	"errors"
	"fmt"
	"io"

	"github.com/polarsign/frost-ceremony/pkg/party"
)

// SigningShare is a participant's long-lived secret scalar. It is the only
// secret that survives across signing ceremonies, and it never crosses the
// Comms boundary.
type SigningShare struct {
	s Scalar
}

// Scalar exposes the underlying scalar for signing arithmetic.
func (ss *SigningShare) scalar() *Scalar { return &ss.s }

// Zeroize overwrites the share.
func (ss *SigningShare) Zeroize() { ss.s.Zeroize() }

// MarshalBinary encodes the share for keystore persistence.
func (ss *SigningShare) MarshalBinary() ([]byte, error) { return ss.s.MarshalBinary() }

// UnmarshalBinary decodes a persisted share.
func (ss *SigningShare) UnmarshalBinary(data []byte) error { return ss.s.UnmarshalBinary(data) }

// KeyPackage is everything one participant holds after key generation.
type KeyPackage struct {
	ID             party.ID      `cbor:"1,keyasint"`
	SigningShare   *SigningShare `cbor:"2,keyasint"`
	VerifyingShare *Element      `cbor:"3,keyasint"`
	VerifyingKey   *Element      `cbor:"4,keyasint"`
	MinSigners     uint16        `cbor:"5,keyasint"`
}

// Validate checks internal consistency of a key package.
func (kp *KeyPackage) Validate() error {
	switch {
	case kp == nil:
		return errors.New("frost: nil key package")
	case !kp.ID.Valid():
		return errors.New("frost: key package has invalid identifier")
	case kp.SigningShare == nil || kp.SigningShare.s.IsZero():
		return errors.New("frost: key package has empty signing share")
	case kp.VerifyingShare == nil || kp.VerifyingKey == nil:
		return errors.New("frost: key package missing verifying material")
	case kp.MinSigners < 2:
		return fmt.Errorf("frost: invalid min signers %d", kp.MinSigners)
	}
	if !kp.SigningShare.s.ActOnBase().Equal(kp.VerifyingShare) {
		return errors.New("frost: signing share does not match verifying share")
	}
	return nil
}

// PublicKeyPackage is the public output of key generation: the group
// verifying key and every participant's verifying share. It is identical,
// byte for byte, for every honest participant of the same ceremony.
type PublicKeyPackage struct {
	VerifyingShares map[party.ID]*Element `cbor:"1,keyasint"`
	VerifyingKey    *Element              `cbor:"2,keyasint"`
	MinSigners      uint16                `cbor:"3,keyasint"`
	MaxSigners      uint16                `cbor:"4,keyasint"`
}

// Bytes returns the deterministic encoding of the package, suitable for
// cross-participant equality checks.
func (pkp *PublicKeyPackage) Bytes() ([]byte, error) {
	return encodeDeterministic(pkp)
}

// ParticipantIDs returns the sorted identifiers holding verifying shares.
func (pkp *PublicKeyPackage) ParticipantIDs() party.IDSlice {
	ids := make([]party.ID, 0, len(pkp.VerifyingShares))
	for id := range pkp.VerifyingShares {
		ids = append(ids, id)
	}
	return party.NewIDSlice(ids)
}

// Validate checks structural soundness of the package.
func (pkp *PublicKeyPackage) Validate() error {
	switch {
	case pkp == nil:
		return errors.New("frost: nil public key package")
	case pkp.VerifyingKey == nil || pkp.VerifyingKey.IsIdentity():
		return errors.New("frost: missing group verifying key")
	case pkp.MinSigners < 2 || pkp.MinSigners > pkp.MaxSigners:
		return fmt.Errorf("frost: invalid signer bounds %d/%d", pkp.MinSigners, pkp.MaxSigners)
	case len(pkp.VerifyingShares) != int(pkp.MaxSigners):
		return fmt.Errorf("frost: %d verifying shares for %d participants",
			len(pkp.VerifyingShares), pkp.MaxSigners)
	}
	for id, share := range pkp.VerifyingShares {
		if !id.Valid() || share == nil || share.IsIdentity() {
			return fmt.Errorf("frost: invalid verifying share for participant %s", id)
		}
	}
	return nil
}

// polynomial is a secret polynomial of degree min-1 whose constant term is
// the shared secret contribution.
type polynomial struct {
	coefficients []*Scalar
}

func newPolynomial(rng io.Reader, degreePlusOne int, constant *Scalar) (*polynomial, error) {
	coeffs := make([]*Scalar, degreePlusOne)
	coeffs[0] = NewScalar().Set(constant)
	for i := 1; i < degreePlusOne; i++ {
		c, err := randomScalar(rng)
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}
	return &polynomial{coefficients: coeffs}, nil
}

// evaluate computes f(x) by Horner's rule.
func (f *polynomial) evaluate(x *Scalar) *Scalar {
	out := NewScalar().Set(f.coefficients[len(f.coefficients)-1])
	for i := len(f.coefficients) - 2; i >= 0; i-- {
		out.Mul(x).Add(f.coefficients[i])
	}
	return out
}

// commitments returns φ_j = a_j·G for every coefficient.
func (f *polynomial) commitments() []*Element {
	out := make([]*Element, len(f.coefficients))
	for i, c := range f.coefficients {
		out[i] = c.ActOnBase()
	}
	return out
}

func (f *polynomial) zeroize() {
	for _, c := range f.coefficients {
		c.Zeroize()
	}
}

// evaluateCommitments evaluates a committed polynomial in the exponent:
// Σ_k x^k·φ_k. Used to derive verifying shares and to check dealt shares.
func evaluateCommitments(commitments []*Element, x *Scalar) *Element {
	out := NewElement()
	xPow := scalarFromID(1)
	for _, phi := range commitments {
		out.Add(xPow.Act(phi))
		xPow.Mul(x)
	}
	return out
}

func randomScalar(rng io.Reader) (*Scalar, error) {
	var buf [32]byte
	for {
		if _, err := io.ReadFull(rng, buf[:]); err != nil {
			return nil, fmt.Errorf("frost: reading randomness: %w", err)
		}
		s := NewScalar()
		if s.n.SetBytes(&buf) == 0 && !s.IsZero() {
			return s, nil
		}
	}
}

// DealKeys runs a trusted-dealer key generation: it samples a group secret
// centrally and splits it into maxSigners shares with threshold minSigners.
// Use DKG instead whenever no single machine may see the group secret.
func DealKeys(rng io.Reader, minSigners, maxSigners uint16) (map[party.ID]*KeyPackage, *PublicKeyPackage, error) {
	if minSigners < 2 || minSigners > maxSigners {
		return nil, nil, fmt.Errorf("frost: invalid signer bounds %d/%d", minSigners, maxSigners)
	}
	secret, err := randomScalar(rng)
	if err != nil {
		return nil, nil, err
	}
	defer secret.Zeroize()

	f, err := newPolynomial(rng, int(minSigners), secret)
	if err != nil {
		return nil, nil, err
	}
	defer f.zeroize()

	verifyingKey := secret.ActOnBase()
	keyPackages := make(map[party.ID]*KeyPackage, maxSigners)
	verifyingShares := make(map[party.ID]*Element, maxSigners)
	for _, id := range party.Sequential(int(maxSigners)) {
		share := f.evaluate(scalarFromID(id))
		verifyingShare := share.ActOnBase()
		keyPackages[id] = &KeyPackage{
			ID:             id,
			SigningShare:   &SigningShare{s: *share},
			VerifyingShare: verifyingShare,
			VerifyingKey:   verifyingKey,
			MinSigners:     minSigners,
		}
		verifyingShares[id] = verifyingShare
	}
	pub := &PublicKeyPackage{
		VerifyingShares: verifyingShares,
		VerifyingKey:    verifyingKey,
		MinSigners:      minSigners,
		MaxSigners:      maxSigners,
	}
	return keyPackages, pub, nil
}
