package frost

import (
	"errors"
	"io"
)

// Commitment is the public half of one signing nonce pair. It is produced by
// Commit, sent to the coordinator, and consumed exactly once inside the
// signing package that selects it.
type Commitment struct {
	Hiding  *Element `cbor:"1,keyasint"`
	Binding *Element `cbor:"2,keyasint"`
}

// Validate rejects structurally unusable commitments.
func (c *Commitment) Validate() error {
	if c == nil || c.Hiding == nil || c.Binding == nil {
		return errors.New("frost: incomplete commitment")
	}
	if c.Hiding.IsIdentity() || c.Binding.IsIdentity() {
		return errors.New("frost: commitment contains the identity point")
	}
	return nil
}

// Nonces is the secret half of one signing commitment. A value can only be
// obtained from Commit, carries no serialization, and is consumed by a single
// Sign call; reusing a nonce pair under the same key leaks the signing share.
type Nonces struct {
	hiding   Scalar
	binding  Scalar
	consumed bool
}

// Zeroize overwrites both nonces. Callers defer this immediately after
// Commit so that every exit path destroys the secrets.
func (n *Nonces) Zeroize() {
	n.hiding.Zeroize()
	n.binding.Zeroize()
	n.consumed = true
}

// Commit samples a fresh nonce pair from rng and returns it together with
// the matching public commitment.
func Commit(rng io.Reader, share *SigningShare) (*Nonces, *Commitment, error) {
	if share == nil || share.s.IsZero() {
		return nil, nil, errors.New("frost: signing share required to commit")
	}
	d, err := randomScalar(rng)
	if err != nil {
		return nil, nil, err
	}
	e, err := randomScalar(rng)
	if err != nil {
		return nil, nil, err
	}
	nonces := &Nonces{}
	nonces.hiding.Set(d)
	nonces.binding.Set(e)
	commitment := &Commitment{
		Hiding:  d.ActOnBase(),
		Binding: e.ActOnBase(),
	}
	d.Zeroize()
	e.Zeroize()
	return nonces, commitment, nil
}
