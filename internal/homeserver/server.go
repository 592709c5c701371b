// Package homeserver implements the server side of the protocol:
// connection classification, per-sender counter enforcement, directory
// maintenance, and message routing (§4.5, §4.8).
package homeserver

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"olafchat/internal/codec"
	"olafchat/internal/config"
	"olafchat/internal/crypto"
	"olafchat/internal/directory"
	"olafchat/internal/logging"
	"olafchat/internal/metrics"
	"olafchat/internal/session"
	"olafchat/internal/store"
)

// Server is one home server's protocol core: the WebSocket/HTTP surface,
// the shared directory, and the live session registry routing decisions
// are played against.
type Server struct {
	cfg config.ServerConfig
	dir *directory.Directory

	mu             sync.RWMutex
	clientSessions map[string]*session.Session // fingerprint -> session
	serverSessions map[string]*session.Session // host:port -> session

	offlineQueue *store.OfflineQueue // optional

	upgrader websocket.Upgrader
}

// New builds a Server. offlineQueue may be nil to disable local-client
// message buffering.
func New(cfg config.ServerConfig, offlineQueue *store.OfflineQueue) *Server {
	return &Server{
		cfg:            cfg,
		dir:            directory.New(cfg.Address()),
		clientSessions: make(map[string]*session.Session),
		serverSessions: make(map[string]*session.Session),
		offlineQueue:   offlineQueue,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Directory exposes the server's directory, e.g. for the neighbourhood
// manager to register dialled peers.
func (s *Server) Directory() *directory.Directory { return s.dir }

// Router builds the HTTP surface. Callers (cmd/server) add the file
// transfer endpoints to the same router before serving it.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleWS).Methods(http.MethodGet)
	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	sess := session.New(conn, r.RemoteAddr)
	go s.serve(sess)
}

// serve runs one accepted connection's lifetime: classification, then
// steady-state dispatch, until the transport fails or the session is
// closed for a protocol violation.
func (s *Server) serve(sess *session.Session) {
	s.run(&peerConn{sess: sess, role: RoleUnverified})
}

// AdoptOutbound runs the dispatch loop for a session this process
// dialled itself (internal/neighbourhood): the server_hello has already
// been sent, so the connection starts pre-classified as a server peer
// instead of going through Unverified classification. Blocks until the
// session ends.
func (s *Server) AdoptOutbound(address string, sess *session.Session) {
	pc := &peerConn{sess: sess, role: RoleServer, address: address}

	s.mu.Lock()
	s.serverSessions[address] = sess
	s.mu.Unlock()
	s.dir.AddPeerServer(address)
	metrics.ConnectedPeerServers.Set(float64(len(s.dir.ConnectedPeerServers())))

	s.run(pc)
}

func (s *Server) run(pc *peerConn) {
	defer s.cleanup(pc)
	for {
		raw, err := pc.sess.Receive()
		if err != nil {
			logging.Debug("session closed", zap.String("session", pc.sess.ID()), zap.Error(err))
			return
		}
		if closeSession := s.dispatch(pc, raw); closeSession {
			return
		}
	}
}

// dispatch processes one frame for pc, returning true if the session
// must be closed (UnverifiedSender violation).
func (s *Server) dispatch(pc *peerConn, raw []byte) (closeSession bool) {
	typ, err := codec.PeekType(raw)
	if err != nil {
		if pc.role == RoleUnverified {
			logging.Info("unverified session sent malformed frame, closing", zap.Error(err))
			return true
		}
		logging.Debug("dropping malformed frame", zap.Error(err))
		metrics.EnvelopesDropped.WithLabelValues("parse_error").Inc()
		return false
	}

	if pc.role == RoleUnverified && typ != codec.TypeSignedData {
		logging.Info("unverified session sent non-hello frame, closing", zap.String("type", typ))
		return true
	}

	switch typ {
	case codec.TypeSignedData:
		return s.dispatchSignedData(pc, raw)
	case codec.TypeClientListRequest:
		return s.handleClientListRequest(pc)
	case codec.TypeClientList:
		return s.handleClientList(pc, raw)
	default:
		logging.Debug("dropping unknown/disallowed frame", zap.String("type", typ))
		metrics.EnvelopesDropped.WithLabelValues("unknown_type").Inc()
		return false
	}
}

func (s *Server) dispatchSignedData(pc *peerConn, raw []byte) (closeSession bool) {
	env, err := codec.DecodeEnvelope(raw)
	if err != nil {
		if pc.role == RoleUnverified {
			return true
		}
		logging.Debug("dropping malformed signed_data", zap.Error(err))
		metrics.EnvelopesDropped.WithLabelValues("parse_error").Inc()
		return false
	}

	payloadType, err := codec.DecodePayloadType(env.Data)
	if err != nil {
		if pc.role == RoleUnverified {
			return true
		}
		logging.Debug("dropping signed_data with malformed payload", zap.Error(err))
		metrics.EnvelopesDropped.WithLabelValues("parse_error").Inc()
		return false
	}

	switch pc.role {
	case RoleUnverified:
		return s.classify(pc, env, payloadType, raw)
	case RoleClient:
		return s.handleFromClient(pc, env, payloadType, raw)
	case RoleServer:
		return s.handleFromServer(pc, env, payloadType, raw)
	default:
		return true
	}
}

// classify handles the first signed_data an Unverified connection sends:
// hello promotes it to RoleClient, server_hello tentatively promotes it
// to RoleServer (subject to the configured peer list). Anything else is
// an UnverifiedSender violation.
func (s *Server) classify(pc *peerConn, env *codec.Envelope, payloadType string, raw []byte) (closeSession bool) {
	switch payloadType {
	case codec.PayloadHello:
		return s.classifyClient(pc, env)
	case codec.PayloadServerHello:
		return s.classifyServer(pc, env)
	default:
		logging.Info("unverified session's first signed_data is not hello/server_hello, closing")
		return true
	}
}

func (s *Server) classifyClient(pc *peerConn, env *codec.Envelope) (closeSession bool) {
	hello, err := codec.DecodeHello(env.Data)
	if err != nil {
		return true
	}
	pub, err := crypto.DecodePublicKey(hello.PublicKey)
	if err != nil {
		logging.Info("hello carries bad public key, closing", zap.Error(err))
		return true
	}
	if err := codec.VerifyEnvelope(pub, env); err != nil {
		logging.Info("hello signature invalid, closing", zap.Error(err))
		return true
	}
	fp, err := crypto.Fingerprint(pub)
	if err != nil {
		return true
	}

	pc.role = RoleClient
	pc.fingerprint = fp
	pc.publicKey = pub

	s.mu.Lock()
	s.clientSessions[fp] = pc.sess
	s.mu.Unlock()

	s.dir.AddLocalClient(fp, pub, env.Counter, pc.sess.ID())
	metrics.ConnectedLocalClients.Set(float64(len(s.dir.LocalClients())))
	logging.Info("client connected", zap.String("fingerprint", fp))

	s.flushBacklog(pc.sess)
	s.pushClientListToPeers()
	return false
}

func (s *Server) classifyServer(pc *peerConn, env *codec.Envelope) (closeSession bool) {
	hello, err := codec.DecodeServerHello(env.Data)
	if err != nil {
		return true
	}
	if !s.isConfiguredPeer(hello.Sender) {
		logging.Info("server_hello from unconfigured peer, closing", zap.String("sender", hello.Sender))
		return true
	}

	pc.role = RoleServer
	pc.address = hello.Sender

	s.mu.Lock()
	s.serverSessions[hello.Sender] = pc.sess
	s.mu.Unlock()

	s.dir.AddPeerServer(hello.Sender)
	metrics.ConnectedPeerServers.Set(float64(len(s.dir.ConnectedPeerServers())))
	logging.Info("peer server connected", zap.String("address", hello.Sender))
	return false
}

func (s *Server) isConfiguredPeer(address string) bool {
	for _, p := range s.cfg.PeerServers {
		if p == address {
			return true
		}
	}
	return false
}

// handleFromClient enforces the allowed-type set and counter invariant
// for an already-classified client peer, then routes.
func (s *Server) handleFromClient(pc *peerConn, env *codec.Envelope, payloadType string, raw []byte) (closeSession bool) {
	switch payloadType {
	case codec.PayloadPublicChat, codec.PayloadChat:
		// fall through to shared handling below
	default:
		logging.Debug("dropping disallowed type from client", zap.String("type", payloadType))
		metrics.EnvelopesDropped.WithLabelValues("disallowed_type").Inc()
		return false
	}

	if err := codec.VerifyEnvelope(pc.publicKey, env); err != nil {
		logging.Debug("dropping client envelope with bad signature", zap.String("fingerprint", pc.fingerprint))
		metrics.EnvelopesDropped.WithLabelValues("bad_signature").Inc()
		return false
	}
	if !s.dir.CheckAndAdvanceCounter(pc.fingerprint, env.Counter) {
		logging.Debug("dropping stale/replayed counter", zap.String("fingerprint", pc.fingerprint), zap.Uint64("counter", env.Counter))
		metrics.EnvelopesDropped.WithLabelValues("stale_counter").Inc()
		return false
	}

	metrics.EnvelopesAccepted.Inc()
	s.route(payloadType, env, raw, pc.sess)
	return false
}

// handleFromServer enforces the allowed-type set for an already
// -classified server peer. Peer servers never re-sign, so there is no
// counter check here — we simply forward what we received.
func (s *Server) handleFromServer(pc *peerConn, env *codec.Envelope, payloadType string, raw []byte) (closeSession bool) {
	switch payloadType {
	case codec.PayloadServerHello:
		// idempotent re-hello: no-op, already classified.
		return false
	case codec.PayloadPublicChat, codec.PayloadChat:
		metrics.EnvelopesAccepted.Inc()
		s.route(payloadType, env, raw, pc.sess)
		return false
	default:
		logging.Debug("dropping disallowed type from server", zap.String("type", payloadType))
		metrics.EnvelopesDropped.WithLabelValues("disallowed_type").Inc()
		return false
	}
}

// cleanup releases pc's directory entry on socket close, per §5
// cancellation semantics.
func (s *Server) cleanup(pc *peerConn) {
	_ = pc.sess.Close()
	switch pc.role {
	case RoleClient:
		s.mu.Lock()
		delete(s.clientSessions, pc.fingerprint)
		s.mu.Unlock()
		s.dir.RemoveLocalClient(pc.fingerprint)
		metrics.ConnectedLocalClients.Set(float64(len(s.dir.LocalClients())))
		logging.Info("client disconnected", zap.String("fingerprint", pc.fingerprint))
		s.pushClientListToPeers()
	case RoleServer:
		s.mu.Lock()
		delete(s.serverSessions, pc.address)
		s.mu.Unlock()
		s.dir.RemovePeerServer(pc.address)
		metrics.ConnectedPeerServers.Set(float64(len(s.dir.ConnectedPeerServers())))
		logging.Info("peer server disconnected", zap.String("address", pc.address))
	}
}

// flushBacklog replays every frame this server buffered while it had no
// locally-attached client to deliver to, to a client that just
// connected. Frames not addressed to this client are dropped by its
// own decryption/participants check, same as live traffic.
func (s *Server) flushBacklog(sess *session.Session) {
	if s.offlineQueue == nil {
		return
	}
	frames, err := s.offlineQueue.Peek(context.Background(), s.cfg.Address())
	if err != nil {
		logging.Warn("backlog peek failed", zap.Error(err))
		return
	}
	for _, frame := range frames {
		if err := sess.Send(frame); err != nil {
			logging.Debug("failed to flush backlog frame", zap.Error(err))
			return
		}
	}
}

func (s *Server) serverSession(address string) (*session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.serverSessions[address]
	return sess, ok
}
