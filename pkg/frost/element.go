package frost

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/polarsign/frost-ceremony/pkg/party"
)

// Scalar is an element of the secp256k1 scalar field.
type Scalar struct {
	n secp256k1.ModNScalar
}

// NewScalar returns the zero scalar.
func NewScalar() *Scalar { return &Scalar{} }

func scalarFromID(id party.ID) *Scalar {
	s := NewScalar()
	s.n.SetInt(uint32(id))
	return s
}

// Set assigns t to s and returns s.
func (s *Scalar) Set(t *Scalar) *Scalar {
	s.n.Set(&t.n)
	return s
}

// Add computes s += t and returns s.
func (s *Scalar) Add(t *Scalar) *Scalar {
	s.n.Add(&t.n)
	return s
}

// Sub computes s -= t and returns s.
func (s *Scalar) Sub(t *Scalar) *Scalar {
	var neg secp256k1.ModNScalar
	neg.Set(&t.n)
	neg.Negate()
	s.n.Add(&neg)
	return s
}

// Mul computes s *= t and returns s.
func (s *Scalar) Mul(t *Scalar) *Scalar {
	s.n.Mul(&t.n)
	return s
}

// Negate computes s = -s and returns s.
func (s *Scalar) Negate() *Scalar {
	s.n.Negate()
	return s
}

// Invert computes s = s⁻¹ and returns s.
func (s *Scalar) Invert() *Scalar {
	s.n.InverseNonConst()
	return s
}

// IsZero reports whether s is the zero scalar.
func (s *Scalar) IsZero() bool { return s.n.IsZero() }

// Equal reports whether s and t represent the same scalar.
func (s *Scalar) Equal(t *Scalar) bool { return s.n.Equals(&t.n) }

// ActOnBase returns s·G.
func (s *Scalar) ActOnBase() *Element {
	e := NewElement()
	secp256k1.ScalarBaseMultNonConst(&s.n, &e.p)
	return e
}

// Act returns s·e.
func (s *Scalar) Act(e *Element) *Element {
	out := NewElement()
	secp256k1.ScalarMultNonConst(&s.n, &e.p, &out.p)
	return out
}

// Zeroize overwrites the scalar with zero. It is called on every secret
// scalar when its holder releases it, on all exit paths.
func (s *Scalar) Zeroize() { s.n.Zero() }

// MarshalBinary returns the canonical 32-byte big-endian encoding.
func (s *Scalar) MarshalBinary() ([]byte, error) {
	b := s.n.Bytes()
	return b[:], nil
}

// UnmarshalBinary decodes a canonical 32-byte scalar, rejecting values that
// are not fully reduced.
func (s *Scalar) UnmarshalBinary(data []byte) error {
	if len(data) != 32 {
		return fmt.Errorf("frost: invalid scalar length %d", len(data))
	}
	var buf [32]byte
	copy(buf[:], data)
	if s.n.SetBytes(&buf) != 0 {
		return errors.New("frost: scalar not in canonical form")
	}
	return nil
}

// Element is a point on secp256k1. The zero value is the identity.
type Element struct {
	p secp256k1.JacobianPoint
}

// NewElement returns the identity element.
func NewElement() *Element { return &Element{} }

// Add computes e += o and returns e.
func (e *Element) Add(o *Element) *Element {
	var sum secp256k1.JacobianPoint
	secp256k1.AddNonConst(&e.p, &o.p, &sum)
	e.p = sum
	return e
}

// IsIdentity reports whether e is the point at infinity.
func (e *Element) IsIdentity() bool {
	return e.p.Z.IsZero() || (e.p.X.IsZero() && e.p.Y.IsZero())
}

// Equal reports whether e and o are the same point.
func (e *Element) Equal(o *Element) bool {
	if e.IsIdentity() || o.IsIdentity() {
		return e.IsIdentity() == o.IsIdentity()
	}
	a, b := e.p, o.p
	a.ToAffine()
	b.ToAffine()
	return a.X.Equals(&b.X) && a.Y.Equals(&b.Y)
}

// MarshalBinary returns the 33-byte compressed encoding. The identity has no
// valid encoding and is rejected: no protocol message ever carries it.
func (e *Element) MarshalBinary() ([]byte, error) {
	if e.IsIdentity() {
		return nil, errors.New("frost: cannot encode identity element")
	}
	affine := e.p
	affine.ToAffine()
	return secp256k1.NewPublicKey(&affine.X, &affine.Y).SerializeCompressed(), nil
}

// UnmarshalBinary decodes a 33-byte compressed point.
func (e *Element) UnmarshalBinary(data []byte) error {
	pub, err := secp256k1.ParsePubKey(data)
	if err != nil {
		return fmt.Errorf("frost: invalid element encoding: %w", err)
	}
	pub.AsJacobian(&e.p)
	return nil
}
