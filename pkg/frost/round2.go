package frost

import (
	"errors"
	"fmt"
)

// SignatureShare is one participant's partial signature over a specific
// signing package. It is meaningless outside that package's context: the
// binding factors tie the share to the exact commitment set and message.
type SignatureShare struct {
	Z *Scalar `cbor:"1,keyasint"`
}

// ErrNonceReuse is returned when a nonce pair is offered to Sign twice.
var ErrNonceReuse = errors.New("frost: nonces already consumed")

// Sign produces this participant's signature share for the package.
//
// The nonces must be the ones whose commitment the coordinator placed in the
// package for our identifier; Sign rejects any mismatch so a commitment can
// never be smuggled out of its originating package. The nonces are marked
// consumed on every path; the caller still zeroizes them.
func Sign(suite *Suite, sp *SigningPackage, nonces *Nonces, kp *KeyPackage) (*SignatureShare, error) {
	if err := kp.Validate(); err != nil {
		return nil, err
	}
	if nonces == nil || nonces.consumed {
		return nil, ErrNonceReuse
	}
	// Single use, even when we fail below.
	nonces.consumed = true

	ourCommitment, ok := sp.Commitments[kp.ID]
	if !ok {
		return nil, fmt.Errorf("frost: signing package does not select participant %s", kp.ID)
	}
	if !nonces.hiding.ActOnBase().Equal(ourCommitment.Hiding) ||
		!nonces.binding.ActOnBase().Equal(ourCommitment.Binding) {
		return nil, errors.New("frost: package commitment does not match local nonces")
	}
	if len(sp.Commitments) < int(kp.MinSigners) {
		return nil, fmt.Errorf("frost: package selects %d signers, need at least %d",
			len(sp.Commitments), kp.MinSigners)
	}

	factors, err := sp.bindingFactors(suite)
	if err != nil {
		return nil, err
	}
	r, _ := sp.groupCommitment(factors)
	challenge, err := suite.challenge(r, kp.VerifyingKey, sp.Message)
	if err != nil {
		return nil, err
	}

	// z_i = d_i + ρ_i·e_i + λ_i·s_i·c
	z := NewScalar().Set(lagrange(sp.SignerIDs(), kp.ID))
	z.Mul(kp.SigningShare.scalar()).Mul(challenge)
	rhoE := NewScalar().Set(factors[kp.ID]).Mul(&nonces.binding)
	z.Add(&nonces.hiding).Add(rhoE)
	rhoE.Zeroize()

	return &SignatureShare{Z: z}, nil
}

// challenge computes c = H(R, Y, m).
func (s *Suite) challenge(r, verifyingKey *Element, message []byte) (*Scalar, error) {
	rBytes, err := r.MarshalBinary()
	if err != nil {
		return nil, err
	}
	yBytes, err := verifyingKey.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return s.hashToScalar("chal", rBytes, yBytes, message), nil
}
