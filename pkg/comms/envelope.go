package comms

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/party"
)

// maxFrameSize bounds a single envelope on the wire. Signing packages grow
// linearly with the quorum, so this is generous.
const maxFrameSize = 1 << 20

// IdentifiedCommitments is the round-1 payload: who committed, and to what.
type IdentifiedCommitments struct {
	Identifier  party.ID          `cbor:"1,keyasint"`
	Commitments *frost.Commitment `cbor:"2,keyasint"`
}

// Envelope is the only payload shape transports exchange during signing: a
// closed union over exactly the three message types of the protocol. Exactly
// one field is set; anything else is rejected before the payload is looked
// at. CBOR keeps the encoding self-describing, so a peer needs no
// out-of-band schema to decode it.
type Envelope struct {
	IdentifiedCommitments *IdentifiedCommitments `cbor:"1,keyasint,omitempty"`
	SigningPackage        *frost.SigningPackage  `cbor:"2,keyasint,omitempty"`
	SignatureShare        *frost.SignatureShare  `cbor:"3,keyasint,omitempty"`
}

// Validate enforces the tagged-union invariant.
func (e *Envelope) Validate() error {
	set := 0
	if e.IdentifiedCommitments != nil {
		set++
	}
	if e.SigningPackage != nil {
		set++
	}
	if e.SignatureShare != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("comms: envelope must carry exactly one payload, has %d", set)
	}
	if ic := e.IdentifiedCommitments; ic != nil {
		if !ic.Identifier.Valid() {
			return errors.New("comms: identified commitments without a valid identifier")
		}
		if err := ic.Commitments.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Encode serializes the envelope.
func (e *Envelope) Encode() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return cbor.Marshal(e)
}

// DecodeEnvelope parses and validates an envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("comms: decoding envelope: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// WriteFrame writes one length-prefixed envelope: a 4-byte big-endian length
// followed by the CBOR payload. Both socket peers use this framing.
func WriteFrame(w io.Writer, e *Envelope) error {
	payload, err := e.Encode()
	if err != nil {
		return err
	}
	if len(payload) > maxFrameSize {
		return fmt.Errorf("comms: envelope of %d bytes exceeds frame limit", len(payload))
	}
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(payload)))
	if _, err := w.Write(length[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed envelope.
func ReadFrame(r io.Reader) (*Envelope, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(length[:])
	if size == 0 || size > maxFrameSize {
		return nil, fmt.Errorf("comms: invalid frame length %d", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return DecodeEnvelope(payload)
}
