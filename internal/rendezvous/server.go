package rendezvous

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/quantarax/relay/internal/observability"
)

// Config configures one rendezvous server instance (§6 Server CLI).
type Config struct {
	MaxSessions    int
	SessionTTL     time.Duration
	RelayRateBytes float64 // bytes/second
}

// DefaultConfig matches the CLI defaults in §6.
func DefaultConfig() Config {
	return Config{
		MaxSessions:    1000,
		SessionTTL:     10 * time.Minute,
		RelayRateBytes: 10 * 1024 * 1024,
	}
}

// Server is the rendezvous HTTP service: GET /health and GET /ws/{code}.
type Server struct {
	cfg       Config
	registry  *Registry
	upgrader  websocket.Upgrader
	logger    *observability.Logger
	metrics   *observability.Metrics
	startTime time.Time
}

// NewServer builds a Server from cfg.
func NewServer(cfg Config, logger *observability.Logger) *Server {
	return &Server{
		cfg:      cfg,
		registry: NewRegistry(cfg.MaxSessions, cfg.SessionTTL),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:    logger,
		startTime: time.Now(),
	}
}

// Routes builds the HTTP mux: GET /health, GET /ws/{code}.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws/", s.handleWS)
	return mux
}

// Diagnostics builds an internal HealthChecker reporting on this
// server's own state (registry capacity). It is deliberately separate
// from the external /health contract in §6, which stays the simple
// {"status","active_sessions"} shape other peers poll.
func (s *Server) Diagnostics(version string) *observability.HealthChecker {
	hc := observability.NewHealthChecker(version)
	hc.RegisterCheck("session_registry", observability.RegistrySizeCheck(s.SessionCount, s.MaxSessions))
	return hc
}

// SetMetrics attaches the Prometheus metrics this server updates as it
// admits peers, expires sessions, and forwards relay bytes. Leaving it
// unset (nil) disables instrumentation without changing behavior.
func (s *Server) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// SessionCount reports the registry's current live-code count, for the
// internal health checker's RegistrySizeCheck.
func (s *Server) SessionCount() int {
	return s.registry.Count()
}

// MaxSessions reports the configured session capacity, for the
// internal health checker's RegistrySizeCheck.
func (s *Server) MaxSessions() int {
	return s.cfg.MaxSessions
}

func (s *Server) reportSessionCount() {
	if s.metrics != nil {
		s.metrics.SetRendezvousSessionsActive(s.registry.Count())
	}
}

// StartCleanup launches the background TTL sweep (§4.5) and, if
// metrics are attached, a periodic session-count sample so expiry
// (which doesn't pass through admit/disconnect) is still reflected.
// Callers stop both by closing stop.
func (s *Server) StartCleanup(stop <-chan struct{}) {
	go s.registry.RunCleanup(stop)
	go s.sampleSessionCount(stop)
}

func (s *Server) sampleSessionCount(stop <-chan struct{}) {
	if s.metrics == nil {
		return
	}
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.reportSessionCount()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":          "ok",
		"active_sessions": s.registry.Count(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimPrefix(r.URL.Path, "/ws/")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed: " + err.Error())
		return
	}

	remoteIP, _, _ := net.SplitHostPort(conn.RemoteAddr().String())

	peer, session, ok := s.admit(conn, code, remoteIP)
	if !ok {
		_ = conn.Close()
		return
	}

	s.announceIfReady(session)
	s.signalingLoop(session, peer, code)
}

// admit reads and validates the register frame and installs the peer
// in its session slot (§4.5 Session admission).
func (s *Server) admit(conn *websocket.Conn, code, remoteIP string) (*Peer, *Session, bool) {
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		_ = conn.WriteJSON(Envelope{Type: TypeError, Code: ErrInvalidMessage, Message: "failed to read register frame"})
		return nil, nil, false
	}
	if env.Type != TypeRegister || (env.Role != RoleSender && env.Role != RoleReceiver) {
		_ = conn.WriteJSON(Envelope{Type: TypeError, Code: ErrInvalidMessage, Message: "first frame must be register with a valid role"})
		return nil, nil, false
	}

	info := PeerInfo{}
	if env.PeerInfo != nil {
		info = *env.PeerInfo
	}
	info.PublicIP = remoteIP

	session, err := s.registry.GetOrCreate(code)
	if err != nil {
		_ = conn.WriteJSON(Envelope{Type: TypeError, Code: ErrCodeInUse, Message: "session capacity exceeded"})
		return nil, nil, false
	}

	peer := newPeer(conn, env.Role, info)
	if !session.Admit(peer) {
		_ = conn.WriteJSON(Envelope{Type: TypeError, Code: ErrCodeInUse, Message: "role already occupied for this code"})
		return nil, nil, false
	}

	s.reportSessionCount()
	return peer, session, true
}

// announceIfReady sends peer_joined to both sides once both slots are
// occupied (§4.5 Peer announcement).
func (s *Server) announceIfReady(session *Session) {
	sender, receiver := session.Peers()
	if sender == nil || receiver == nil {
		return
	}
	senderAnnounce := announcement(receiver)
	receiverAnnounce := announcement(sender)
	_ = sender.writeJSON(Envelope{Type: TypePeerJoined, PeerInfo: &senderAnnounce})
	_ = receiver.writeJSON(Envelope{Type: TypePeerJoined, PeerInfo: &receiverAnnounce})
}

// announcement builds the peer_info the OTHER side is told about: the
// observed public IP, the declared QUIC port standing in for the
// public port, and the peer's own declared local address.
func announcement(p *Peer) PeerInfo {
	return PeerInfo{
		PublicIP:   p.Info.PublicIP,
		PublicPort: p.Info.LocalPort,
		LocalIP:    p.Info.LocalIP,
		LocalPort:  p.Info.LocalPort,
	}
}

// signalingLoop forwards spake2/cert_fingerprint frames and negotiates
// the relay handoff until this peer disconnects or relay mode starts.
func (s *Server) signalingLoop(session *Session, peer *Peer, code string) {
	defer func() {
		if session.Remove(peer) {
			s.registry.removeIfEmpty(code, session)
		}
		if other := session.Other(oppositeRole(peer.Role)); other != nil {
			_ = other.writeJSON(Envelope{Type: TypePeerDisconnected, Message: "peer disconnected"})
		}
		s.reportSessionCount()
	}()

	type readResult struct {
		env Envelope
		err error
	}
	reads := make(chan readResult, 1)
	go func() {
		for {
			var env Envelope
			err := peer.Conn.ReadJSON(&env)
			reads <- readResult{env, err}
			if err != nil {
				return
			}
		}
	}()

	for {
		res := <-reads
		if res.err != nil {
			if session.RelayActive() {
				// The other peer's relay_request completed the transition
				// and its handler's deadline nudge on this connection
				// caused this read to error out; fall through to the
				// relay phase.
				break
			}
			return
		}

		switch res.env.Type {
		case TypeSpake2, TypeCertFingerprint:
			if other := session.Other(peer.Role); other != nil {
				_ = other.writeJSON(res.env)
			}

		case TypeRelayRequest:
			transition := session.RequestRelay(peer)
			if other := session.Other(peer.Role); other != nil {
				_ = other.writeJSON(res.env)
			}
			if transition {
				session.EnterRelay()
				sender, receiver := session.Peers()
				_ = sender.writeJSON(Envelope{Type: TypeRelayActive})
				_ = receiver.writeJSON(Envelope{Type: TypeRelayActive})
				// Interrupt the peer loop's sibling goroutine for the
				// OTHER connection so its read loop exits before we
				// start binary forwarding.
				if other := session.Other(peer.Role); other != nil {
					_ = other.Conn.SetReadDeadline(time.Now())
				}
				// Our own background reader goroutine is still blocked
				// in ReadJSON; interrupt it the same way and wait for
				// it to return before this goroutine reads from the
				// same connection directly in relayPhase, or the two
				// would race on one *websocket.Conn.
				_ = peer.Conn.SetReadDeadline(time.Now())
				select {
				case <-reads:
				case <-time.After(2 * time.Second):
				}
				goto relayPhase
			}

		case TypeDisconnect:
			return

		default:
			_ = peer.writeJSON(Envelope{Type: TypeError, Code: ErrUnknownType, Message: "unrecognized message type"})
		}
	}

relayPhase:
	_ = peer.Conn.SetReadDeadline(time.Time{})
	s.relayPhase(session, peer)
}

func oppositeRole(r Role) Role {
	if r == RoleSender {
		return RoleReceiver
	}
	return RoleSender
}

// relayPhase waits for this peer's relay_ready acknowledgement, then
// pumps binary frames from this connection to the other one,
// rate-limited, until a close or error (§4.5 Binary forwarding).
func (s *Server) relayPhase(session *Session, peer *Peer) {
	_ = peer.Conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var ready Envelope
	_ = peer.Conn.ReadJSON(&ready) // best-effort; proceed regardless of content
	_ = peer.Conn.SetReadDeadline(time.Time{})

	limiter := newSessionLimiter(session, s.cfg.RelayRateBytes)

	for {
		mt, data, err := peer.Conn.ReadMessage()
		if err != nil {
			break
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		waitTokens(limiter, len(data))
		other := session.Other(peer.Role)
		if other == nil {
			break
		}
		if err := other.writeBinary(data); err != nil {
			break
		}
		if s.metrics != nil {
			s.metrics.RecordRelayBytesForwarded(len(data))
		}
	}

	if other := session.Other(peer.Role); other != nil {
		_ = other.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "peer closed"),
			time.Now().Add(time.Second))
	}

	if peer.Role == RoleSender {
		session.MarkRelayDone()
	} else {
		select {
		case <-session.RelayDone():
		case <-time.After(5 * time.Second):
		}
	}
	_ = peer.Conn.Close()
}

// newSessionLimiter returns the one rate.Limiter shared by both
// forwarding pumps of session, creating it on first use (§4.5 Rate
// limiter: "the limiter is shared by the two directions so aggregate
// throughput is bounded").
func newSessionLimiter(session *Session, bytesPerSecond float64) *rate.Limiter {
	session.limiterOnce.Do(func() {
		session.limiter = newRelayLimiter(bytesPerSecond)
	})
	return session.limiter
}
