package frost

import (
	"errors"
	"fmt"

	"github.com/polarsign/frost-ceremony/pkg/party"
)

// SigningPackage is the round-2 input: the message to sign and the
// commitments of the quorum chosen for this ceremony. It is immutable once
// built; signers and the aggregator derive identical binding factors from
// identical packages.
type SigningPackage struct {
	Commitments map[party.ID]*Commitment `cbor:"1,keyasint"`
	Message     []byte                   `cbor:"2,keyasint"`
}

// NewSigningPackage builds a package from the collected commitments. The
// commitment map is copied so later mutation of the argument cannot change
// the package. Building is deterministic: the same commitments and message
// always produce the same bytes.
func NewSigningPackage(commitments map[party.ID]*Commitment, message []byte) (*SigningPackage, error) {
	if len(commitments) == 0 {
		return nil, errors.New("frost: signing package needs at least one commitment")
	}
	copied := make(map[party.ID]*Commitment, len(commitments))
	for id, c := range commitments {
		if !id.Valid() {
			return nil, fmt.Errorf("frost: invalid identifier %s in commitment map", id)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("frost: commitment from %s: %w", id, err)
		}
		copied[id] = &Commitment{Hiding: c.Hiding, Binding: c.Binding}
	}
	msg := make([]byte, len(message))
	copy(msg, message)
	return &SigningPackage{Commitments: copied, Message: msg}, nil
}

// SignerIDs returns the sorted identifiers of the selected quorum.
func (sp *SigningPackage) SignerIDs() party.IDSlice {
	ids := make([]party.ID, 0, len(sp.Commitments))
	for id := range sp.Commitments {
		ids = append(ids, id)
	}
	return party.NewIDSlice(ids)
}

// Bytes returns the deterministic encoding of the package.
func (sp *SigningPackage) Bytes() ([]byte, error) {
	return encodeDeterministic(sp)
}

// bindingFactors derives ρ_l = H(m, B, l) for every selected signer, with B
// the full commitment list in identifier order. Signers and the aggregator
// recompute these independently and must agree.
func (sp *SigningPackage) bindingFactors(suite *Suite) (map[party.ID]*Scalar, error) {
	ids := sp.SignerIDs()
	commitmentList := make([]byte, 0, len(ids)*(party.ByteSize+66))
	for _, id := range ids {
		c := sp.Commitments[id]
		hiding, err := c.Hiding.MarshalBinary()
		if err != nil {
			return nil, err
		}
		binding, err := c.Binding.MarshalBinary()
		if err != nil {
			return nil, err
		}
		commitmentList = append(commitmentList, id.Bytes()...)
		commitmentList = append(commitmentList, hiding...)
		commitmentList = append(commitmentList, binding...)
	}
	factors := make(map[party.ID]*Scalar, len(ids))
	for _, id := range ids {
		factors[id] = suite.hashToScalar("rho", sp.Message, commitmentList, id.Bytes())
	}
	return factors, nil
}

// groupCommitment computes R = Σ_l D_l + ρ_l·E_l and the per-signer
// commitment shares R_l used to verify individual signature shares.
func (sp *SigningPackage) groupCommitment(factors map[party.ID]*Scalar) (*Element, map[party.ID]*Element) {
	r := NewElement()
	shares := make(map[party.ID]*Element, len(sp.Commitments))
	for id, c := range sp.Commitments {
		rl := factors[id].Act(c.Binding)
		rl.Add(c.Hiding)
		shares[id] = rl
		r.Add(rl)
	}
	return r, shares
}
