package party

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// ByteSize is the number of bytes required to encode an ID.
const ByteSize = 2

// MaxID bounds the integer value an ID may take, and therefore the number of
// participants in any ceremony.
const MaxID = (1 << (ByteSize * 8)) - 1

// ID identifies a ceremony participant.
//
// IDs are totally ordered, and every map keyed by ID is serialized in
// ascending ID order so that all participants derive identical byte strings
// from identical maps. The zero value is not a valid ID; FROST identifiers
// are non-zero field elements and an ID maps directly onto one.
type ID uint16

// Valid reports whether the ID may appear in a ceremony.
func (id ID) Valid() bool { return id != 0 }

// Bytes returns the big-endian encoding of the ID, always ByteSize bytes.
func (id ID) Bytes() []byte {
	b := make([]byte, ByteSize)
	binary.BigEndian.PutUint16(b, uint16(id))
	return b
}

// String returns the base-10 representation of the ID.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// FromBytes decodes an ID from the first ByteSize bytes of b.
func FromBytes(b []byte) (ID, error) {
	if len(b) < ByteSize {
		return 0, fmt.Errorf("party: need %d bytes for an ID, got %d", ByteSize, len(b))
	}
	id := ID(binary.BigEndian.Uint16(b))
	if !id.Valid() {
		return 0, fmt.Errorf("party: zero is not a valid ID")
	}
	return id, nil
}

// FromString parses a base-10 ID.
func FromString(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("party: invalid ID %q: %w", s, err)
	}
	id := ID(v)
	if !id.Valid() {
		return 0, fmt.Errorf("party: zero is not a valid ID")
	}
	return id, nil
}
