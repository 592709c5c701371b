package homeserver

import (
	"context"

	"go.uber.org/zap"

	"olafchat/internal/codec"
	"olafchat/internal/logging"
	"olafchat/internal/metrics"
	"olafchat/internal/protoerr"
	"olafchat/internal/session"
)

// route implements §4.5's forwarding policy for the two broadcast
// -shaped payload types. raw is re-emitted byte-for-byte — routing never
// reconstructs a frame from its decoded struct, so a forwarded envelope
// is indistinguishable from the one the server received.
func (s *Server) route(payloadType string, env *codec.Envelope, raw []byte, origin *session.Session) {
	switch payloadType {
	case codec.PayloadPublicChat:
		s.routePublicChat(raw, origin)
	case codec.PayloadChat:
		s.routeChat(env, raw)
	}
}

// routePublicChat fans raw out to every local client and every connected
// peer server other than the one it arrived on.
func (s *Server) routePublicChat(raw []byte, origin *session.Session) {
	s.mu.RLock()
	clients := make([]*session.Session, 0, len(s.clientSessions))
	for _, sess := range s.clientSessions {
		clients = append(clients, sess)
	}
	servers := make([]*session.Session, 0, len(s.serverSessions))
	for _, sess := range s.serverSessions {
		if sess != origin {
			servers = append(servers, sess)
		}
	}
	s.mu.RUnlock()

	if len(clients) == 0 {
		s.pushBacklog(raw)
	}
	for _, sess := range clients {
		if sess == origin {
			continue
		}
		if err := sess.Send(raw); err != nil {
			logging.Debug("public_chat fan-out to client failed", zap.Error(err))
		}
	}
	for _, sess := range servers {
		if err := sess.Send(raw); err != nil {
			logging.Debug("public_chat fan-out to peer server failed", zap.Error(err))
		}
	}
}

// routeChat delivers or forwards a private message according to its
// destination_servers list: local clients receive it directly (buffered
// if offline), every other named server gets one forwarded copy, and an
// unrecognized destination server is dropped with a count, never an
// error surfaced back to the sender.
func (s *Server) routeChat(env *codec.Envelope, raw []byte) {
	chat, err := codec.DecodeChat(env.Data)
	if err != nil {
		logging.Debug("dropping malformed chat", zap.Error(err))
		metrics.EnvelopesDropped.WithLabelValues("parse_error").Inc()
		return
	}

	self := s.cfg.Address()
	for _, dest := range chat.DestinationServers {
		switch {
		case dest == self:
			s.deliverLocal(raw)
		case s.dir.HasPeerServer(dest):
			s.forwardToPeer(dest, raw)
		default:
			logging.Debug("dropping chat for unknown destination server",
				zap.String("destination", dest), zap.Error(protoerr.ErrUnknownRecipientServer))
			metrics.EnvelopesDropped.WithLabelValues("unknown_recipient_server").Inc()
		}
	}
}

// deliverLocal hands raw to every currently-attached client session.
// Recipients a chat is actually addressed to are identified by their
// own decryption attempt (§4.6); the server has no visibility into
// who among its local clients is a participant, so it fans out to all
// of them, same as public_chat.
func (s *Server) deliverLocal(raw []byte) {
	s.mu.RLock()
	clients := make([]*session.Session, 0, len(s.clientSessions))
	for _, sess := range s.clientSessions {
		clients = append(clients, sess)
	}
	s.mu.RUnlock()

	if len(clients) == 0 {
		s.pushBacklog(raw)
		return
	}
	for _, sess := range clients {
		if err := sess.Send(raw); err != nil {
			logging.Debug("chat delivery to local client failed", zap.Error(err))
		}
	}
}

func (s *Server) pushBacklog(raw []byte) {
	if s.offlineQueue == nil {
		return
	}
	if err := s.offlineQueue.Push(context.Background(), s.cfg.Address(), raw); err != nil {
		logging.Warn("backlog push failed", zap.Error(err))
	}
}

func (s *Server) forwardToPeer(address string, raw []byte) {
	sess, ok := s.serverSession(address)
	if !ok {
		metrics.EnvelopesDropped.WithLabelValues("unknown_recipient_server").Inc()
		return
	}
	if err := sess.Send(raw); err != nil {
		logging.Debug("chat forward to peer server failed", zap.String("peer", address), zap.Error(err))
	}
}

// handleClientListRequest answers a directory pull with this server's
// current snapshot. Both classified roles may send it: a Client uses it
// to populate its initial directory (§4.4's AwaitingDirectory state),
// a peer Server uses it to pull gossip on demand (§4.5).
func (s *Server) handleClientListRequest(pc *peerConn) (closeSession bool) {
	if err := s.sendClientList(pc.sess); err != nil {
		logging.Debug("failed to answer client_list_request", zap.Error(err))
	}
	return false
}

// handleClientList absorbs a peer server's pushed directory update.
func (s *Server) handleClientList(pc *peerConn, raw []byte) (closeSession bool) {
	if pc.role != RoleServer {
		logging.Debug("dropping client_list from non-server peer")
		metrics.EnvelopesDropped.WithLabelValues("disallowed_type").Inc()
		return false
	}
	list, err := codec.DecodeClientList(raw)
	if err != nil {
		logging.Debug("dropping malformed client_list", zap.Error(err))
		metrics.EnvelopesDropped.WithLabelValues("parse_error").Inc()
		return false
	}
	self := s.cfg.Address()
	for _, entry := range list.Servers {
		if entry.Address == self {
			continue
		}
		s.dir.SetAdvertisedClients(entry.Address, entry.Clients)
	}
	return false
}

// pushClientListToPeers broadcasts the current directory snapshot to
// every connected peer server, called whenever the local client set
// changes so gossip stays close to real time (§4.8).
func (s *Server) pushClientListToPeers() {
	s.mu.RLock()
	peers := make([]*session.Session, 0, len(s.serverSessions))
	for _, sess := range s.serverSessions {
		peers = append(peers, sess)
	}
	s.mu.RUnlock()

	for _, sess := range peers {
		if err := s.sendClientList(sess); err != nil {
			logging.Debug("failed to push client_list to peer", zap.Error(err))
		}
	}
}

func (s *Server) sendClientList(sess *session.Session) error {
	snap, err := s.dir.Snapshot()
	if err != nil {
		return err
	}

	servers := make([]codec.ClientListServer, 0, len(snap.Peers)+1)
	servers = append(servers, codec.ClientListServer{
		Address: snap.SelfAddress,
		Clients: snap.SelfClients,
	})
	for addr, clients := range snap.Peers {
		servers = append(servers, codec.ClientListServer{Address: addr, Clients: clients})
	}

	raw, err := codec.EncodeClientList(servers)
	if err != nil {
		return err
	}
	return sess.Send(raw)
}
