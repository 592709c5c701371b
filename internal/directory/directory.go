// Package directory implements the authoritative map of known clients
// per home server (§4.8): locally-attached client sessions and the most
// recent client lists advertised by each peer server. A single RWMutex
// gives routing decisions a consistent snapshot per message and makes
// counter updates atomic with respect to the envelope that validated
// them.
package directory

import (
	"crypto/rsa"
	"sync"

	"olafchat/internal/crypto"
)

// LocalClient is one fingerprint's entry in this server's locally
// -connected client set.
type LocalClient struct {
	PublicKey   *rsa.PublicKey
	LastCounter uint64
	// SessionID identifies the attached session for the caller's own
	// session registry; the directory itself holds no transport
	// reference so it stays decoupled from the session layer.
	SessionID string
}

// PeerServer is one entry in the peer-server registry: whether we
// currently have a session to it, and the public keys it most recently
// advertised for its own locally-connected clients.
type PeerServer struct {
	Connected         bool
	AdvertisedClients []string // base64 DER SubjectPublicKeyInfo
}

// Directory is the single shared directory a server maintains.
type Directory struct {
	mu sync.RWMutex

	localClients map[string]*LocalClient    // fingerprint -> entry
	peerServers  map[string]*PeerServer     // host:port -> entry
	selfAddress  string
}

// New creates an empty directory. selfAddress is this server's own
// host:port, reported as Snapshot.SelfAddress so the server's own
// locally-connected clients are listed under it.
func New(selfAddress string) *Directory {
	return &Directory{
		localClients: make(map[string]*LocalClient),
		peerServers:  make(map[string]*PeerServer),
		selfAddress:  selfAddress,
	}
}

// AddLocalClient registers a newly-hello'd client.
func (d *Directory) AddLocalClient(fingerprint string, pub *rsa.PublicKey, counter uint64, sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.localClients[fingerprint] = &LocalClient{PublicKey: pub, LastCounter: counter, SessionID: sessionID}
}

// RemoveLocalClient drops a client's directory entry, e.g. on socket
// close.
func (d *Directory) RemoveLocalClient(fingerprint string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.localClients, fingerprint)
}

// LocalClient returns a client's entry and whether it was known.
func (d *Directory) LocalClient(fingerprint string) (LocalClient, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.localClients[fingerprint]
	if !ok {
		return LocalClient{}, false
	}
	return *c, true
}

// LocalClients returns a snapshot of every locally-connected client's
// fingerprint and session ID.
func (d *Directory) LocalClients() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.localClients))
	for fp, c := range d.localClients {
		out[fp] = c.SessionID
	}
	return out
}

// CheckAndAdvanceCounter atomically enforces the strictly-increasing
// counter invariant: it succeeds and records the new counter iff counter
// > the stored last-seen value.
func (d *Directory) CheckAndAdvanceCounter(fingerprint string, counter uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.localClients[fingerprint]
	if !ok {
		return false
	}
	if counter <= c.LastCounter {
		return false
	}
	c.LastCounter = counter
	return true
}

// AddPeerServer registers a verified peer-server session.
func (d *Directory) AddPeerServer(address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peerServers[address]
	if !ok {
		p = &PeerServer{}
		d.peerServers[address] = p
	}
	p.Connected = true
}

// RemovePeerServer clears the advertised set and marks a peer server
// disconnected, e.g. on socket close.
func (d *Directory) RemovePeerServer(address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.peerServers, address)
}

// ConnectedPeerServers returns the host:port of every peer server this
// process currently has a live session to.
func (d *Directory) ConnectedPeerServers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.peerServers))
	for addr, p := range d.peerServers {
		if p.Connected {
			out = append(out, addr)
		}
	}
	return out
}

// HasPeerServer reports whether address is a currently-connected peer.
func (d *Directory) HasPeerServer(address string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peerServers[address]
	return ok && p.Connected
}

// SetAdvertisedClients records the most recent client list received from
// a peer server.
func (d *Directory) SetAdvertisedClients(address string, clients []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peerServers[address]
	if !ok {
		p = &PeerServer{Connected: true}
		d.peerServers[address] = p
	}
	p.AdvertisedClients = clients
}

// Snapshot captures the full directory for building a client_list
// response: this server's own locally-connected clients (by public key)
// plus each peer server's most recently advertised set.
type Snapshot struct {
	SelfAddress string
	SelfClients []string // base64 DER SubjectPublicKeyInfo
	Peers       map[string][]string
}

// Snapshot returns a consistent point-in-time view of the directory.
func (d *Directory) Snapshot() (Snapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	self := make([]string, 0, len(d.localClients))
	for _, c := range d.localClients {
		enc, err := crypto.EncodePublicKey(c.PublicKey)
		if err != nil {
			return Snapshot{}, err
		}
		self = append(self, enc)
	}

	peers := make(map[string][]string, len(d.peerServers))
	for addr, p := range d.peerServers {
		peers[addr] = append([]string(nil), p.AdvertisedClients...)
	}

	return Snapshot{SelfAddress: d.selfAddress, SelfClients: self, Peers: peers}, nil
}
