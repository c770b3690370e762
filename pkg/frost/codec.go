package frost

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// detMode is the deterministic CBOR encoder shared by every type whose bytes
// must be reproducible across participants: map keys sorted, shortest-form
// integers, no floating point shenanigans.
var detMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	detMode = mode
}

func encodeDeterministic(v interface{}) ([]byte, error) {
	b, err := detMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "frost: deterministic encoding")
	}
	return b, nil
}
