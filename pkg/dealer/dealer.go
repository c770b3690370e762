// Package dealer generates threshold groups centrally. The dealer machine
// sees the group secret, so this is for development setups and for
// operators who explicitly accept a trusted dealer; everyone else runs the
// distributed generation in pkg/dkg.
package dealer

import (
	"crypto/rand"
	"io"

	"github.com/pkg/errors"

	"github.com/polarsign/frost-ceremony/pkg/comms"
	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/keystore"
	"github.com/polarsign/frost-ceremony/pkg/party"
)

// Output is one dealt group: a key package per participant and the shared
// public description.
type Output struct {
	KeyPackages      map[party.ID]*frost.KeyPackage
	PublicKeyPackage *frost.PublicKeyPackage
}

// Deal splits a fresh group secret into maxSigners shares with threshold
// minSigners. rng defaults to crypto/rand.Reader.
func Deal(rng io.Reader, minSigners, maxSigners uint16) (*Output, error) {
	if rng == nil {
		rng = rand.Reader
	}
	keyPackages, pub, err := frost.DealKeys(rng, minSigners, maxSigners)
	if err != nil {
		return nil, err
	}
	return &Output{KeyPackages: keyPackages, PublicKeyPackage: pub}, nil
}

// Group assembles the keystore entry for one participant of the dealt group.
// participants may be nil when the communication bindings are managed out of
// band.
func (o *Output) Group(id party.ID, name, network, server string, participants map[comms.PubKey]party.ID) (keystore.Group, error) {
	kp, ok := o.KeyPackages[id]
	if !ok {
		return keystore.Group{}, errors.Errorf("dealer: no key package for participant %s", id)
	}
	return keystore.Group{
		Name:             name,
		Network:          network,
		Server:           server,
		KeyPackage:       kp,
		PublicKeyPackage: o.PublicKeyPackage,
		Participants:     participants,
	}, nil
}
