package relay

// The relay never decodes ceremony payloads: everything a participant or
// coordinator posts travels as hex-encoded CBOR and is stored opaquely.
// Identifiers are the only structure the relay understands, because routing
// round 2 packages needs them.

// Headers carrying the request signature. A request acting as an identifier
// must be signed by the ed25519 communication key bound to that identifier,
// over SigningInput of the request.
const (
	HeaderPubKey    = "X-Frost-Pubkey"
	HeaderSignature = "X-Frost-Signature"
)

// SigningInput is the byte string an authenticated request signs: method,
// request URI including the query, and body, newline separated. Client and
// server share this so the two cannot drift.
func SigningInput(method, uri string, body []byte) []byte {
	out := make([]byte, 0, len(method)+len(uri)+len(body)+2)
	out = append(out, method...)
	out = append(out, '\n')
	out = append(out, uri...)
	out = append(out, '\n')
	return append(out, body...)
}

// CreateSessionRequest opens a new ceremony session. Key generation sessions
// set MaxSigners and let the relay assign identifiers as participants join.
// Signing sessions instead declare the group's communication keys up front,
// keyed by hex public key; only those keys may act in the session.
type CreateSessionRequest struct {
	MaxSigners uint16            `json:"max_signers,omitempty"`
	PubKeys    map[string]uint16 `json:"pubkeys,omitempty"`
}

// CreateSessionResponse returns the session handle.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// PostCommitmentRequest publishes one participant's signing commitment.
type PostCommitmentRequest struct {
	Identifier uint16 `json:"identifier"`
	Commitment string `json:"commitment"`
}

// CommitmentsResponse lists the commitments posted so far, keyed by
// identifier.
type CommitmentsResponse struct {
	Commitments map[uint16]string `json:"commitments"`
}

// PostPackageRequest publishes the coordinator's signing package.
type PostPackageRequest struct {
	Package string `json:"package"`
}

// PackageResponse returns the signing package once the coordinator posted it.
type PackageResponse struct {
	Package string `json:"package"`
}

// PostShareRequest publishes one participant's signature share.
type PostShareRequest struct {
	Identifier uint16 `json:"identifier"`
	Share      string `json:"share"`
}

// SharesResponse lists the signature shares posted so far.
type SharesResponse struct {
	Shares map[uint16]string `json:"shares"`
}

// JoinRequest registers a key generation participant under its long-lived
// communication public key. The request must be signed by that same key, so
// nobody can register a key they do not hold.
type JoinRequest struct {
	PubKey string `json:"pubkey"`
}

// JoinResponse assigns the ceremony identifier. Joining twice with the same
// key returns the same identifier.
type JoinResponse struct {
	Identifier uint16 `json:"identifier"`
	MaxSigners uint16 `json:"max_signers"`
}

// PostRound1Request publishes a round 1 package for echo broadcast.
type PostRound1Request struct {
	Identifier uint16 `json:"identifier"`
	Package    string `json:"package"`
}

// Round1Response lists all round 1 packages posted so far.
type Round1Response struct {
	Packages map[uint16]string `json:"packages"`
}

// PostRound2Request routes one addressed round 2 package.
type PostRound2Request struct {
	From    uint16 `json:"from"`
	To      uint16 `json:"to"`
	Package string `json:"package"`
}

// Round2Response lists the round 2 packages addressed to the requester,
// keyed by sender.
type Round2Response struct {
	Packages map[uint16]string `json:"packages"`
}

// PubKeysResponse binds every registered communication key to its assigned
// identifier.
type PubKeysResponse struct {
	PubKeys map[string]uint16 `json:"pubkeys"`
}
