// Package httpcomms implements the Comms contracts against the HTTP relay.
// Clients poll: the relay holds round data until the slowest party caught
// up, which suits ceremonies where a human must approve each step.
package httpcomms

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/polarsign/frost-ceremony/internal/relay"
	"github.com/polarsign/frost-ceremony/pkg/comms"
	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/party"
)

const defaultPollInterval = 500 * time.Millisecond

// errNotReady marks a poll round that returned no data yet.
var errNotReady = errors.New("httpcomms: not ready")

// Client talks to one relay session.
type Client struct {
	base     string
	session  string
	http     *http.Client
	poll     time.Duration
	identity ed25519.PrivateKey
}

// Option adjusts a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithPollInterval changes how often the client polls the relay.
func WithPollInterval(d time.Duration) Option { return func(c *Client) { c.poll = d } }

// WithIdentity sets the communication key the client signs its requests
// with. The relay refuses identifier-bound requests without it.
func WithIdentity(key ed25519.PrivateKey) Option { return func(c *Client) { c.identity = key } }

// NewClient binds a client to an existing session on the relay at base.
func NewClient(base, session string, opts ...Option) *Client {
	c := &Client{
		base:    base,
		session: session,
		http:    http.DefaultClient,
		poll:    defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateKeygenSession opens a key generation session for maxSigners
// participants and returns its id.
func CreateKeygenSession(ctx context.Context, base string, maxSigners uint16, opts ...Option) (string, error) {
	return createSession(ctx, base, relay.CreateSessionRequest{MaxSigners: maxSigners}, opts...)
}

// CreateSigningSession opens a signing session restricted to the given
// members, binding each communication key to its ceremony identifier.
func CreateSigningSession(ctx context.Context, base string, members map[comms.PubKey]party.ID, opts ...Option) (string, error) {
	pubKeys := make(map[string]uint16, len(members))
	for pk, id := range members {
		pubKeys[string(pk)] = uint16(id)
	}
	return createSession(ctx, base, relay.CreateSessionRequest{PubKeys: pubKeys}, opts...)
}

func createSession(ctx context.Context, base string, req relay.CreateSessionRequest, opts ...Option) (string, error) {
	c := NewClient(base, "", opts...)
	var resp relay.CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/session", req, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var (
		raw  []byte
		body io.Reader
	)
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "httpcomms: encoding request")
		}
		raw = b
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return errors.Wrap(err, "httpcomms: building request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.identity != nil {
		sig := ed25519.Sign(c.identity, relay.SigningInput(method, path, raw))
		req.Header.Set(relay.HeaderPubKey, hex.EncodeToString(c.identity.Public().(ed25519.PublicKey)))
		req.Header.Set(relay.HeaderSignature, hex.EncodeToString(sig))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "httpcomms: relay request")
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooEarly {
		return errNotReady
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("httpcomms: relay returned %d: %s", resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "httpcomms: decoding response")
}

// pollUntil repeats fn every poll interval until it stops returning
// errNotReady or the context expires.
func (c *Client) pollUntil(ctx context.Context, fn func() error) error {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		err := fn()
		if err == nil || !errors.Is(err, errNotReady) {
			return err
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) sessionPath(suffix string) string {
	return fmt.Sprintf("/v1/session/%s%s", c.session, suffix)
}

func (c *Client) deleteSession(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, c.sessionPath(""), nil, nil)
}

func encodePayload(v interface{}) (string, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "httpcomms: encoding payload")
	}
	return hex.EncodeToString(b), nil
}

func decodePayload(s string, v interface{}) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return errors.Wrap(err, "httpcomms: payload is not hex")
	}
	return errors.Wrap(cbor.Unmarshal(b, v), "httpcomms: decoding payload")
}

// Coordinator drives the coordinator side of a signing session.
type Coordinator struct{ *Client }

var _ comms.Coordinator = Coordinator{}

// NewCoordinator wraps the client in the coordinator contract.
func NewCoordinator(c *Client) Coordinator { return Coordinator{c} }

func (c Coordinator) GetSigningCommitments(ctx context.Context, pub *frost.PublicKeyPackage, numSigners uint16) (map[party.ID]*frost.Commitment, error) {
	out := make(map[party.ID]*frost.Commitment, numSigners)
	err := c.pollUntil(ctx, func() error {
		var resp relay.CommitmentsResponse
		if err := c.do(ctx, http.MethodGet, c.sessionPath("/commitments"), nil, &resp); err != nil {
			return err
		}
		if len(resp.Commitments) < int(numSigners) {
			return errNotReady
		}
		for raw, payload := range resp.Commitments {
			id := party.ID(raw)
			var commitment frost.Commitment
			if err := decodePayload(payload, &commitment); err != nil {
				return err
			}
			out[id] = &commitment
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c Coordinator) SendSigningPackageAndGetShares(ctx context.Context, sp *frost.SigningPackage) (map[party.ID]*frost.SignatureShare, error) {
	payload, err := sp.Bytes()
	if err != nil {
		return nil, err
	}
	err = c.do(ctx, http.MethodPost, c.sessionPath("/package"),
		relay.PostPackageRequest{Package: hex.EncodeToString(payload)}, nil)
	if err != nil {
		return nil, err
	}

	want := len(sp.Commitments)
	out := make(map[party.ID]*frost.SignatureShare, want)
	err = c.pollUntil(ctx, func() error {
		var resp relay.SharesResponse
		if err := c.do(ctx, http.MethodGet, c.sessionPath("/shares"), nil, &resp); err != nil {
			return err
		}
		if len(resp.Shares) < want {
			return errNotReady
		}
		for raw, payload := range resp.Shares {
			var share frost.SignatureShare
			if err := decodePayload(payload, &share); err != nil {
				return err
			}
			out[party.ID(raw)] = &share
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c Coordinator) CleanupOnError(ctx context.Context) error {
	return c.deleteSession(ctx)
}

// Participant drives a signer's side of a signing session.
type Participant struct{ *Client }

var _ comms.Participant = Participant{}

// NewParticipant wraps the client in the participant contract.
func NewParticipant(c *Client) Participant { return Participant{c} }

func (p Participant) GetSigningPackage(ctx context.Context, id party.ID, commitment *frost.Commitment) (*frost.SigningPackage, error) {
	payload, err := encodePayload(commitment)
	if err != nil {
		return nil, err
	}
	err = p.do(ctx, http.MethodPost, p.sessionPath("/commitment"),
		relay.PostCommitmentRequest{Identifier: uint16(id), Commitment: payload}, nil)
	if err != nil {
		return nil, err
	}

	var sp frost.SigningPackage
	err = p.pollUntil(ctx, func() error {
		var resp relay.PackageResponse
		if err := p.do(ctx, http.MethodGet, p.sessionPath("/package"), nil, &resp); err != nil {
			return err
		}
		return decodePayload(resp.Package, &sp)
	})
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

func (p Participant) SendSignatureShare(ctx context.Context, id party.ID, share *frost.SignatureShare) error {
	payload, err := encodePayload(share)
	if err != nil {
		return err
	}
	return p.do(ctx, http.MethodPost, p.sessionPath("/share"),
		relay.PostShareRequest{Identifier: uint16(id), Share: payload}, nil)
}

func (p Participant) CleanupOnError(ctx context.Context) error {
	return p.deleteSession(ctx)
}

// DKG drives one participant through a key generation session.
type DKG struct {
	*Client

	identifier party.ID
	maxSigners uint16
}

var _ comms.DKG = (*DKG)(nil)

// NewDKG wraps the client in the key generation contract. The client's
// identity key doubles as the registration key, so it is mandatory here.
func NewDKG(c *Client) *DKG {
	return &DKG{Client: c}
}

func (d *DKG) GetIdentifierAndMaxSigners(ctx context.Context) (party.ID, uint16, error) {
	if d.identity == nil {
		return 0, 0, errors.New("httpcomms: key generation requires an identity key")
	}
	pubKey := comms.PubKeyFromBytes(d.identity.Public().(ed25519.PublicKey))
	var resp relay.JoinResponse
	err := d.do(ctx, http.MethodPost, d.sessionPath("/join"),
		relay.JoinRequest{PubKey: string(pubKey)}, &resp)
	if err != nil {
		return 0, 0, err
	}
	d.identifier = party.ID(resp.Identifier)
	d.maxSigners = resp.MaxSigners
	return d.identifier, d.maxSigners, nil
}

func (d *DKG) GetRound1Packages(ctx context.Context, pkg *frost.Round1Package) (map[party.ID]*frost.Round1Package, error) {
	payload, err := encodePayload(pkg)
	if err != nil {
		return nil, err
	}
	err = d.do(ctx, http.MethodPost, d.sessionPath("/round1"),
		relay.PostRound1Request{Identifier: uint16(d.identifier), Package: payload}, nil)
	if err != nil {
		return nil, err
	}

	out := make(map[party.ID]*frost.Round1Package, d.maxSigners-1)
	err = d.pollUntil(ctx, func() error {
		var resp relay.Round1Response
		if err := d.do(ctx, http.MethodGet, d.sessionPath("/round1"), nil, &resp); err != nil {
			return err
		}
		if len(resp.Packages) < int(d.maxSigners) {
			return errNotReady
		}
		for raw, payload := range resp.Packages {
			id := party.ID(raw)
			if id == d.identifier {
				continue
			}
			var p frost.Round1Package
			if err := decodePayload(payload, &p); err != nil {
				return err
			}
			out[id] = &p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DKG) GetRound2Packages(ctx context.Context, pkgs map[party.ID]*frost.Round2Package) (map[party.ID]*frost.Round2Package, error) {
	for recipient, pkg := range pkgs {
		payload, err := encodePayload(pkg)
		if err != nil {
			return nil, err
		}
		err = d.do(ctx, http.MethodPost, d.sessionPath("/round2"), relay.PostRound2Request{
			From:    uint16(d.identifier),
			To:      uint16(recipient),
			Package: payload,
		}, nil)
		if err != nil {
			return nil, err
		}
	}

	want := int(d.maxSigners) - 1
	out := make(map[party.ID]*frost.Round2Package, want)
	err := d.pollUntil(ctx, func() error {
		var resp relay.Round2Response
		path := fmt.Sprintf("%s?to=%d", d.sessionPath("/round2"), d.identifier)
		if err := d.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return err
		}
		if len(resp.Packages) < want {
			return errNotReady
		}
		for raw, payload := range resp.Packages {
			var p frost.Round2Package
			if err := decodePayload(payload, &p); err != nil {
				return err
			}
			out[party.ID(raw)] = &p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DKG) PubKeyIdentifierMap(ctx context.Context) (map[comms.PubKey]party.ID, error) {
	out := make(map[comms.PubKey]party.ID, d.maxSigners)
	err := d.pollUntil(ctx, func() error {
		var resp relay.PubKeysResponse
		if err := d.do(ctx, http.MethodGet, d.sessionPath("/pubkeys"), nil, &resp); err != nil {
			return err
		}
		if len(resp.PubKeys) < int(d.maxSigners) {
			return errNotReady
		}
		for pk, id := range resp.PubKeys {
			out[comms.PubKey(pk)] = party.ID(id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DKG) CleanupOnError(ctx context.Context) error {
	return d.deleteSession(ctx)
}
