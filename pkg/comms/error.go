package comms

import (
	"errors"
	"fmt"

	"github.com/polarsign/frost-ceremony/pkg/party"
)

// Kind classifies a ceremony failure so callers can branch on it.
type Kind uint8

const (
	// KindTransport covers connection failures, timeouts, and malformed
	// peer responses.
	KindTransport Kind = iota + 1
	// KindQuorum marks too few valid commitments or shares: distinct from
	// transport failure so "nobody answered" and "not enough valid answers"
	// are distinguishable.
	KindQuorum
	// KindCrypto covers rejected commitments, shares, and aggregation
	// failures. The underlying data is proven bad; never retried.
	KindCrypto
	// KindMisuse marks protocol violations, like a response keyed by an
	// unexpected identifier or a misaddressed round-2 package. They indicate
	// a compromised or buggy peer and are always fatal.
	KindMisuse
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindQuorum:
		return "quorum"
	case KindCrypto:
		return "crypto"
	case KindMisuse:
		return "protocol misuse"
	default:
		return "unknown"
	}
}

// Error is the structured failure every orchestrator returns: the kind, the
// round that failed, the culprit when one can be named, and the cause.
type Error struct {
	Kind Kind
	// Round names the ceremony phase that failed ("collecting commitments",
	// "dkg round 2", …).
	Round string
	// Culprit is zero when no single party can be blamed.
	Culprit party.ID
	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	if e.Culprit.Valid() {
		return fmt.Sprintf("%s: %s: participant %s: %s", e.Round, e.Kind, e.Culprit, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Round, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on the kind via the sentinel values below.
func (e *Error) Is(target error) bool {
	if s, ok := target.(sentinel); ok {
		return e.Kind == s.kind
	}
	return false
}

type sentinel struct{ kind Kind }

func (s sentinel) Error() string { return s.kind.String() + " error" }

// Sentinels for errors.Is checks against any *Error of the matching kind.
var (
	ErrTransport = sentinel{KindTransport}
	ErrQuorum    = sentinel{KindQuorum}
	ErrCrypto    = sentinel{KindCrypto}
	ErrMisuse    = sentinel{KindMisuse}
)

// NewError builds a structured ceremony error.
func NewError(kind Kind, round string, err error) *Error {
	return &Error{Kind: kind, Round: round, Err: err}
}

// NewPeerError builds a structured ceremony error attributed to a peer.
func NewPeerError(kind Kind, round string, culprit party.ID, err error) *Error {
	return &Error{Kind: kind, Round: round, Culprit: culprit, Err: err}
}

// KindOf extracts the kind from err, or zero when err carries none.
func KindOf(err error) Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return 0
}
