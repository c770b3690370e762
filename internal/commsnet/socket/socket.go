// Package socket implements the signing Comms contracts over plain TCP. The
// coordinator listens, each participant dials, and every message is one
// length-prefixed envelope. Key generation is not served here: it runs over
// the HTTP relay, which can park ceremonies across slow human-driven rounds.
package socket

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/polarsign/frost-ceremony/pkg/comms"
	"github.com/polarsign/frost-ceremony/pkg/frost"
	"github.com/polarsign/frost-ceremony/pkg/party"
)

// CoordinatorServer accepts participant connections for one signing ceremony
// and exposes them through the comms.Coordinator contract.
type CoordinatorServer struct {
	listener net.Listener
	log      zerolog.Logger

	mu    sync.Mutex
	conns map[party.ID]net.Conn

	closeOnce sync.Once
}

var _ comms.Coordinator = (*CoordinatorServer)(nil)

// ListenCoordinator binds the ceremony listener.
func ListenCoordinator(addr string, log zerolog.Logger) (*CoordinatorServer, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "socket: listening")
	}
	return &CoordinatorServer{
		listener: l,
		log:      log,
		conns:    make(map[party.ID]net.Conn),
	}, nil
}

// Addr returns the bound address, for callers that listened on port 0.
func (s *CoordinatorServer) Addr() net.Addr { return s.listener.Addr() }

// GetSigningCommitments accepts connections until numSigners distinct
// participants have sent their commitment. Connections stay open: the same
// socket later carries the signing package and the share.
func (s *CoordinatorServer) GetSigningCommitments(ctx context.Context, pub *frost.PublicKeyPackage, numSigners uint16) (map[party.ID]*frost.Commitment, error) {
	stop := context.AfterFunc(ctx, func() { s.listener.Close() })
	defer stop()

	out := make(map[party.ID]*frost.Commitment, numSigners)
	for len(out) < int(numSigners) {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Wrap(err, "socket: accepting participant")
		}
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetDeadline(deadline)
		}

		env, err := comms.ReadFrame(conn)
		if err != nil {
			s.log.Warn().Err(err).Stringer("peer", conn.RemoteAddr()).Msg("dropping connection with bad first frame")
			conn.Close()
			continue
		}
		ic := env.IdentifiedCommitments
		if ic == nil {
			conn.Close()
			return nil, errors.New("socket: first frame was not a commitment")
		}
		if _, ok := pub.VerifyingShares[ic.Identifier]; !ok {
			conn.Close()
			return nil, errors.Errorf("socket: commitment from identifier %s outside the group", ic.Identifier)
		}

		s.mu.Lock()
		if _, dup := s.conns[ic.Identifier]; dup {
			s.mu.Unlock()
			conn.Close()
			return nil, errors.Errorf("socket: duplicate commitment from %s", ic.Identifier)
		}
		s.conns[ic.Identifier] = conn
		s.mu.Unlock()

		out[ic.Identifier] = ic.Commitments
		s.log.Debug().Stringer("participant", ic.Identifier).Msg("commitment received")
	}
	return out, nil
}

// SendSigningPackageAndGetShares fans the package out over the held
// connections and reads one share back from each, concurrently.
func (s *CoordinatorServer) SendSigningPackageAndGetShares(ctx context.Context, sp *frost.SigningPackage) (map[party.ID]*frost.SignatureShare, error) {
	var mu sync.Mutex
	out := make(map[party.ID]*frost.SignatureShare, len(sp.Commitments))

	g, ctx := errgroup.WithContext(ctx)
	for _, id := range sp.SignerIDs() {
		id := id
		s.mu.Lock()
		conn, ok := s.conns[id]
		s.mu.Unlock()
		if !ok {
			return nil, errors.Errorf("socket: no connection for selected signer %s", id)
		}
		g.Go(func() error {
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			defer stop()

			if err := comms.WriteFrame(conn, &comms.Envelope{SigningPackage: sp}); err != nil {
				return errors.Wrapf(err, "socket: sending package to %s", id)
			}
			env, err := comms.ReadFrame(conn)
			if err != nil {
				return errors.Wrapf(err, "socket: reading share from %s", id)
			}
			if env.SignatureShare == nil {
				return errors.Errorf("socket: %s replied with something other than a share", id)
			}
			mu.Lock()
			out[id] = env.SignatureShare
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// CleanupOnError tears every connection down. Participants blocked on a read
// observe the close and abort their own ceremony.
func (s *CoordinatorServer) CleanupOnError(ctx context.Context) error {
	s.Close()
	return ctx.Err()
}

// Close releases the listener and all participant connections.
func (s *CoordinatorServer) Close() {
	s.closeOnce.Do(func() {
		s.listener.Close()
		s.mu.Lock()
		for _, conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
	})
}

// ParticipantClient is a participant's dialed connection to the coordinator.
type ParticipantClient struct {
	conn      net.Conn
	closeOnce sync.Once
}

var _ comms.Participant = (*ParticipantClient)(nil)

// DialParticipant connects to the coordinator's ceremony listener.
func DialParticipant(ctx context.Context, addr string) (*ParticipantClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "socket: dialing coordinator")
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	return &ParticipantClient{conn: conn}, nil
}

// GetSigningPackage sends our identified commitment and blocks on the
// coordinator's package.
func (c *ParticipantClient) GetSigningPackage(ctx context.Context, id party.ID, commitment *frost.Commitment) (*frost.SigningPackage, error) {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	err := comms.WriteFrame(c.conn, &comms.Envelope{
		IdentifiedCommitments: &comms.IdentifiedCommitments{Identifier: id, Commitments: commitment},
	})
	if err != nil {
		return nil, errors.Wrap(err, "socket: sending commitment")
	}
	env, err := comms.ReadFrame(c.conn)
	if err != nil {
		return nil, errors.Wrap(err, "socket: reading signing package")
	}
	if env.SigningPackage == nil {
		return nil, errors.New("socket: coordinator replied with something other than a signing package")
	}
	return env.SigningPackage, nil
}

// SendSignatureShare delivers our share over the open connection.
func (c *ParticipantClient) SendSignatureShare(ctx context.Context, _ party.ID, share *frost.SignatureShare) error {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()
	return errors.Wrap(comms.WriteFrame(c.conn, &comms.Envelope{SignatureShare: share}), "socket: sending share")
}

// CleanupOnError drops the connection.
func (c *ParticipantClient) CleanupOnError(ctx context.Context) error {
	c.Close()
	return ctx.Err()
}

// Close releases the connection.
func (c *ParticipantClient) Close() {
	c.closeOnce.Do(func() { c.conn.Close() })
}
