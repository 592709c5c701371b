package homeserver

import (
	"crypto/rsa"

	"olafchat/internal/session"
)

// Role is an inbound peer connection's classification, assigned from its
// first signed envelope per §4.5.
type Role int

const (
	RoleUnverified Role = iota
	RoleClient
	RoleServer
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	default:
		return "unverified"
	}
}

// peerConn is one accepted connection's session-layer state: its
// transport, its classification, and the identity it was classified
// under (fingerprint for a client peer, host:port for a server peer).
type peerConn struct {
	sess *session.Session

	role Role

	// Set once classified.
	fingerprint string         // RoleClient
	publicKey   *rsa.PublicKey // RoleClient
	address     string         // RoleServer
}
