// Package relay implements an HTTP message relay for signing and key
// generation ceremonies. Clients poll it; the relay itself holds no secret
// key material, sees only opaque payloads, and is trusted for availability,
// not for integrity. Every request acting as a participant carries an
// ed25519 signature by the communication key bound to that identifier, and
// round 2 mailboxes are served to their addressee only. Everything else a
// peer relays is verified cryptographically by its recipient.
package relay

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/polarsign/frost-ceremony/pkg/party"
)

type session struct {
	mu sync.Mutex

	// pubKeys binds communication keys to identifiers: declared at creation
	// for signing sessions, built up by join for key generation sessions.
	pubKeys map[string]party.ID

	// Signing state.
	commitments map[party.ID]string
	pkg         string
	shares      map[party.ID]string

	// Key generation state.
	maxSigners uint16
	round1     map[party.ID]string
	round2     map[party.ID]map[party.ID]string
}

func newSession(maxSigners uint16) *session {
	return &session{
		commitments: make(map[party.ID]string),
		shares:      make(map[party.ID]string),
		maxSigners:  maxSigners,
		pubKeys:     make(map[string]party.ID),
		round1:      make(map[party.ID]string),
		round2:      make(map[party.ID]map[party.ID]string),
	}
}

// Server is the relay. One Server hosts many concurrent sessions.
type Server struct {
	echo *echo.Echo
	log  zerolog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// NewServer wires the routes.
func NewServer(log zerolog.Logger) *Server {
	s := &Server{
		echo:     echo.New(),
		log:      log,
		sessions: make(map[uuid.UUID]*session),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())

	v1 := s.echo.Group("/v1")
	v1.POST("/session", s.createSession)
	v1.DELETE("/session/:id", s.deleteSession)

	v1.POST("/session/:id/commitment", s.postCommitment)
	v1.GET("/session/:id/commitments", s.getCommitments)
	v1.POST("/session/:id/package", s.postPackage)
	v1.GET("/session/:id/package", s.getPackage)
	v1.POST("/session/:id/share", s.postShare)
	v1.GET("/session/:id/shares", s.getShares)

	v1.POST("/session/:id/join", s.join)
	v1.POST("/session/:id/round1", s.postRound1)
	v1.GET("/session/:id/round1", s.getRound1)
	v1.POST("/session/:id/round2", s.postRound2)
	v1.GET("/session/:id/round2", s.getRound2)
	v1.GET("/session/:id/pubkeys", s.getPubKeys)
	return s
}

// Start blocks serving on addr.
func (s *Server) Start(addr string) error { return s.echo.Start(addr) }

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Close shuts the listener down.
func (s *Server) Close() error { return s.echo.Close() }

// authenticate verifies the request signature and returns the presenting
// key in hex, together with the request body the signature covers. It does
// not decide what the key may act as; that is the handler's job.
func authenticate(c echo.Context) (string, []byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "reading body")
	}
	keyHex := c.Request().Header.Get(HeaderPubKey)
	sigHex := c.Request().Header.Get(HeaderSignature)
	if keyHex == "" || sigHex == "" {
		return "", nil, echo.NewHTTPError(http.StatusUnauthorized, "request signature required")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return "", nil, echo.NewHTTPError(http.StatusUnauthorized, "malformed public key")
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return "", nil, echo.NewHTTPError(http.StatusUnauthorized, "malformed signature")
	}
	input := SigningInput(c.Request().Method, c.Request().RequestURI, body)
	if !ed25519.Verify(key, input, sig) {
		return "", nil, echo.NewHTTPError(http.StatusUnauthorized, "bad request signature")
	}
	return keyHex, body, nil
}

// actor resolves a verified key to the identifier it is bound to in this
// session. Callers hold sess.mu.
func (sess *session) actor(keyHex string) (party.ID, error) {
	id, ok := sess.pubKeys[keyHex]
	if !ok {
		return 0, echo.NewHTTPError(http.StatusForbidden, "key not registered in this session")
	}
	return id, nil
}

func (s *Server) session(c echo.Context) (*session, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "malformed session id")
	}
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no such session")
	}
	return sess, nil
}

func (s *Server) createSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if (req.MaxSigners == 0) == (len(req.PubKeys) == 0) {
		return echo.NewHTTPError(http.StatusBadRequest,
			"key generation sessions set max_signers, signing sessions declare pubkeys")
	}
	sess := newSession(req.MaxSigners)
	seen := make(map[party.ID]bool, len(req.PubKeys))
	for pk, raw := range req.PubKeys {
		memberID := party.ID(raw)
		key, err := hex.DecodeString(pk)
		if err != nil || len(key) != ed25519.PublicKeySize || !memberID.Valid() || seen[memberID] {
			return echo.NewHTTPError(http.StatusBadRequest,
				"pubkeys must bind distinct ed25519 keys to distinct identifiers")
		}
		seen[memberID] = true
		sess.pubKeys[pk] = memberID
	}
	id := uuid.New()
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	s.log.Info().Stringer("session", id).Uint16("max_signers", req.MaxSigners).Msg("session created")
	return c.JSON(http.StatusCreated, CreateSessionResponse{SessionID: id.String()})
}

func (s *Server) deleteSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed session id")
	}
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no such session")
	}
	s.log.Info().Stringer("session", id).Msg("session deleted")
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) postCommitment(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	keyHex, body, err := authenticate(c)
	if err != nil {
		return err
	}
	var req PostCommitmentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id := party.ID(req.Identifier)
	if !id.Valid() || req.Commitment == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identifier and commitment required")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	actor, err := sess.actor(keyHex)
	if err != nil {
		return err
	}
	if actor != id {
		return echo.NewHTTPError(http.StatusForbidden, "identifier not bound to the presented key")
	}
	if _, dup := sess.commitments[id]; dup {
		return echo.NewHTTPError(http.StatusConflict, "commitment already posted")
	}
	sess.commitments[id] = req.Commitment
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getCommitments(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make(map[uint16]string, len(sess.commitments))
	for id, v := range sess.commitments {
		out[uint16(id)] = v
	}
	return c.JSON(http.StatusOK, CommitmentsResponse{Commitments: out})
}

func (s *Server) postPackage(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	var req PostPackageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Package == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "package required")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.pkg != "" {
		return echo.NewHTTPError(http.StatusConflict, "package already posted")
	}
	sess.pkg = req.Package
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getPackage(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.pkg == "" {
		// Distinct from 404 so pollers can tell "not yet" from "session
		// gone".
		return echo.NewHTTPError(http.StatusTooEarly, "package not yet posted")
	}
	return c.JSON(http.StatusOK, PackageResponse{Package: sess.pkg})
}

func (s *Server) postShare(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	keyHex, body, err := authenticate(c)
	if err != nil {
		return err
	}
	var req PostShareRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id := party.ID(req.Identifier)
	if !id.Valid() || req.Share == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identifier and share required")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	actor, err := sess.actor(keyHex)
	if err != nil {
		return err
	}
	if actor != id {
		return echo.NewHTTPError(http.StatusForbidden, "identifier not bound to the presented key")
	}
	if _, dup := sess.shares[id]; dup {
		return echo.NewHTTPError(http.StatusConflict, "share already posted")
	}
	sess.shares[id] = req.Share
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getShares(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make(map[uint16]string, len(sess.shares))
	for id, v := range sess.shares {
		out[uint16(id)] = v
	}
	return c.JSON(http.StatusOK, SharesResponse{Shares: out})
}

func (s *Server) join(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	keyHex, body, err := authenticate(c)
	if err != nil {
		return err
	}
	var req JoinRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PubKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "pubkey required")
	}
	if req.PubKey != keyHex {
		return echo.NewHTTPError(http.StatusForbidden, "join must be signed by the registering key")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.maxSigners == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "not a key generation session")
	}
	if id, ok := sess.pubKeys[req.PubKey]; ok {
		return c.JSON(http.StatusOK, JoinResponse{Identifier: uint16(id), MaxSigners: sess.maxSigners})
	}
	if len(sess.pubKeys) >= int(sess.maxSigners) {
		return echo.NewHTTPError(http.StatusConflict, "session full")
	}
	id := party.ID(len(sess.pubKeys) + 1)
	sess.pubKeys[req.PubKey] = id
	sess.round2[id] = make(map[party.ID]string)
	return c.JSON(http.StatusOK, JoinResponse{Identifier: uint16(id), MaxSigners: sess.maxSigners})
}

func (s *Server) postRound1(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	keyHex, body, err := authenticate(c)
	if err != nil {
		return err
	}
	var req PostRound1Request
	if err := json.Unmarshal(body, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id := party.ID(req.Identifier)
	if !id.Valid() || req.Package == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identifier and package required")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	actor, err := sess.actor(keyHex)
	if err != nil {
		return err
	}
	if actor != id {
		return echo.NewHTTPError(http.StatusForbidden, "identifier not bound to the presented key")
	}
	if _, dup := sess.round1[id]; dup {
		return echo.NewHTTPError(http.StatusConflict, "round 1 package already posted")
	}
	sess.round1[id] = req.Package
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getRound1(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make(map[uint16]string, len(sess.round1))
	for id, v := range sess.round1 {
		out[uint16(id)] = v
	}
	return c.JSON(http.StatusOK, Round1Response{Packages: out})
}

func (s *Server) postRound2(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	keyHex, body, err := authenticate(c)
	if err != nil {
		return err
	}
	var req PostRound2Request
	if err := json.Unmarshal(body, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	from, to := party.ID(req.From), party.ID(req.To)
	if !from.Valid() || !to.Valid() || req.Package == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "from, to and package required")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	actor, err := sess.actor(keyHex)
	if err != nil {
		return err
	}
	if actor != from {
		return echo.NewHTTPError(http.StatusForbidden, "sender not bound to the presented key")
	}
	box, ok := sess.round2[to]
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "recipient never joined")
	}
	if _, dup := box[from]; dup {
		return echo.NewHTTPError(http.StatusConflict, "round 2 package already posted")
	}
	box[from] = req.Package
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getRound2(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	keyHex, _, err := authenticate(c)
	if err != nil {
		return err
	}
	to, err := strconv.ParseUint(c.QueryParam("to"), 10, 16)
	if err != nil || !party.ID(to).Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "valid to parameter required")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	actor, err := sess.actor(keyHex)
	if err != nil {
		return err
	}
	if actor != party.ID(to) {
		return echo.NewHTTPError(http.StatusForbidden, "round 2 mailboxes are readable by their addressee only")
	}
	box := sess.round2[party.ID(to)]
	out := make(map[uint16]string, len(box))
	for id, v := range box {
		out[uint16(id)] = v
	}
	return c.JSON(http.StatusOK, Round2Response{Packages: out})
}

func (s *Server) getPubKeys(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make(map[string]uint16, len(sess.pubKeys))
	for pk, id := range sess.pubKeys {
		out[pk] = uint16(id)
	}
	return c.JSON(http.StatusOK, PubKeysResponse{PubKeys: out})
}
