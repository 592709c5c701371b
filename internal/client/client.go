// Package client implements the client side of the protocol (§4.4): a
// session whose state moves Connecting → AwaitingDirectory → Ready →
// Closed, tracking its own outbound counter and a directory of known
// fingerprints merged from client_list pushes.
package client

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"olafchat/internal/codec"
	"olafchat/internal/crypto"
	"olafchat/internal/logging"
	"olafchat/internal/session"
)

// State is the client session's lifecycle stage.
type State int

const (
	StateConnecting State = iota
	StateAwaitingDirectory
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingDirectory:
		return "awaiting_directory"
	case StateReady:
		return "ready"
	default:
		return "closed"
	}
}

// PublicChatEvent is delivered for an accepted public_chat.
type PublicChatEvent struct {
	Sender  string // fingerprint
	Message string
}

// ChatEvent is delivered for a chat this client successfully decrypted
// and for which its own fingerprint is among the participants.
type ChatEvent struct {
	Participants []string // Participants[0] is the sender
	Message      string
}

// Handler receives events as they arrive. Implementations must not
// block; long-running work should be handed off to another goroutine.
type Handler interface {
	OnPublicChat(PublicChatEvent)
	OnChat(ChatEvent)
	OnDirectoryUpdated()
}

// knownClient is one directory entry: a fingerprint's public key, the
// home server address it is attached to, and the last counter this
// client observed from it.
type knownClient struct {
	pub         *rsa.PublicKey
	address     string
	lastCounter uint64
}

// Client is one user's connection to its home server.
type Client struct {
	priv        *rsa.PrivateKey
	pub         *rsa.PublicKey
	fingerprint string
	selfAddress string

	sess    *session.Session
	handler Handler

	mu      sync.RWMutex
	counter uint64
	state   State
	known   map[string]*knownClient // fingerprint -> entry
}

// Dial opens a transport to homeServer, sends hello, and requests the
// initial directory. startCounter is the first counter value to use
// (normally 1, or one past the last value a persisted identity used).
func Dial(ctx context.Context, homeServer string, priv *rsa.PrivateKey, startCounter uint64, handler Handler) (*Client, error) {
	pub := &priv.PublicKey
	fp, err := crypto.Fingerprint(pub)
	if err != nil {
		return nil, err
	}

	u := url.URL{Scheme: "ws", Host: homeServer, Path: "/"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", homeServer, err)
	}

	c := &Client{
		priv:        priv,
		pub:         pub,
		fingerprint: fp,
		selfAddress: homeServer,
		sess:        session.New(conn, fp),
		handler:     handler,
		counter:     startCounter - 1, // nextCounter pre-increments, so hello goes out at startCounter
		state:       StateConnecting,
		known:       make(map[string]*knownClient),
	}

	if err := c.sendHello(); err != nil {
		_ = c.sess.Close()
		return nil, err
	}
	c.setState(StateAwaitingDirectory)

	if err := c.requestDirectory(); err != nil {
		_ = c.sess.Close()
		return nil, err
	}

	go c.run()
	return c, nil
}

// Fingerprint returns this client's own stable identifier.
func (c *Client) Fingerprint() string { return c.fingerprint }

// State returns the client's current lifecycle stage.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Close shuts down the session.
func (c *Client) Close() error {
	c.setState(StateClosed)
	return c.sess.Close()
}

// KnownFingerprints lists every fingerprint currently in the merged
// directory, for a "list users" command.
func (c *Client) KnownFingerprints() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.known))
	for fp := range c.known {
		out = append(out, fp)
	}
	return out
}

func (c *Client) nextCounter() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	return c.counter
}

// LastCounter returns the last counter value this client has signed
// with, for a caller to persist across restarts (§9).
func (c *Client) LastCounter() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counter
}

// sendEnvelope canonicalizes payload, signs it with the current
// counter (incremented before signing, per §4.4), and sends it.
func (c *Client) sendEnvelope(payload []byte) error {
	raw, err := codec.SignPayload(c.priv, payload, c.nextCounter())
	if err != nil {
		return err
	}
	return c.sess.Send(raw)
}

func (c *Client) sendHello() error {
	pubB64, err := crypto.EncodePublicKey(c.pub)
	if err != nil {
		return err
	}
	payload, err := codec.EncodeHello(pubB64)
	if err != nil {
		return err
	}
	return c.sendEnvelope(payload)
}

func (c *Client) requestDirectory() error {
	raw, err := codec.EncodeClientListRequest()
	if err != nil {
		return err
	}
	return c.sess.Send(raw)
}

// RequestDirectory asks the home server for a fresh client_list, e.g.
// for a "/list" command to pick up clients that joined after this
// client's own directory snapshot was taken (§8 scenario: "a fresh
// client_list_request from A no longer shows B").
func (c *Client) RequestDirectory() error {
	return c.requestDirectory()
}

// SendPublicChat broadcasts a plaintext message to every client on
// every server in the mesh.
func (c *Client) SendPublicChat(message string) error {
	payload, err := codec.EncodePublicChat(c.fingerprint, message)
	if err != nil {
		return err
	}
	return c.sendEnvelope(payload)
}

// SendChat hybrid-encrypts message for the given recipient fingerprints
// (which must already be known from the merged directory) and sends
// one chat envelope naming every home server those recipients are
// attached to.
func (c *Client) SendChat(recipients []string, message string) error {
	c.mu.RLock()
	pubs := make([]*rsa.PublicKey, 0, len(recipients)+1)
	serverSet := make(map[string]struct{})
	for _, fp := range recipients {
		entry, ok := c.known[fp]
		if !ok {
			c.mu.RUnlock()
			return fmt.Errorf("unknown recipient %q", fp)
		}
		pubs = append(pubs, entry.pub)
		serverSet[entry.address] = struct{}{}
	}
	c.mu.RUnlock()

	participants := append([]string{c.fingerprint}, recipients...)
	innerPayload, err := marshalChatPlaintext(participants, message)
	if err != nil {
		return err
	}

	// The sender must also be able to read its own sent message back.
	pubs = append(pubs, c.pub)

	ct, encErr := crypto.HybridEncrypt(pubs, innerPayload)
	if encErr != nil {
		return encErr
	}

	destServers := make([]string, 0, len(serverSet)+1)
	destServers = append(destServers, c.selfAddress)
	for addr := range serverSet {
		if addr != c.selfAddress {
			destServers = append(destServers, addr)
		}
	}

	symmKeys := make([]string, len(ct.WrappedKeys))
	for i, wk := range ct.WrappedKeys {
		symmKeys[i] = b64(wk)
	}

	payload, err := codec.EncodeChat(destServers, b64(ct.IV), symmKeys, b64(ct.Ciphertext))
	if err != nil {
		return err
	}
	return c.sendEnvelope(payload)
}

// run is the client's inbound dispatch loop, per §4.4's Ready-state
// accept set.
func (c *Client) run() {
	defer c.Close()
	for {
		raw, err := c.sess.Receive()
		if err != nil {
			logging.Debug("client session closed", zap.Error(err))
			return
		}
		c.dispatch(raw)
	}
}

func (c *Client) dispatch(raw []byte) {
	typ, err := codec.PeekType(raw)
	if err != nil {
		logging.Debug("dropping malformed frame", zap.Error(err))
		return
	}

	switch typ {
	case codec.TypeClientList:
		c.handleClientList(raw)
	case codec.TypeSignedData:
		c.handleSignedData(raw)
	default:
		logging.Debug("dropping unexpected frame type", zap.String("type", typ))
	}
}

func (c *Client) handleClientList(raw []byte) {
	list, err := codec.DecodeClientList(raw)
	if err != nil {
		logging.Debug("dropping malformed client_list", zap.Error(err))
		return
	}

	merged := make(map[string]*knownClient)

	c.mu.Lock()
	for _, server := range list.Servers {
		for _, pubB64 := range server.Clients {
			pub, err := crypto.DecodePublicKey(pubB64)
			if err != nil {
				continue
			}
			fp, err := crypto.Fingerprint(pub)
			if err != nil {
				continue
			}
			entry := &knownClient{pub: pub, address: server.Address}
			if existing, ok := c.known[fp]; ok {
				entry.lastCounter = existing.lastCounter
			}
			merged[fp] = entry
		}
	}
	c.known = merged
	wasAwaiting := c.state == StateAwaitingDirectory
	if wasAwaiting {
		c.state = StateReady
	}
	c.mu.Unlock()

	if c.handler != nil {
		c.handler.OnDirectoryUpdated()
	}
}

func (c *Client) handleSignedData(raw []byte) {
	env, err := codec.DecodeEnvelope(raw)
	if err != nil {
		logging.Debug("dropping malformed signed_data", zap.Error(err))
		return
	}
	payloadType, err := codec.DecodePayloadType(env.Data)
	if err != nil {
		logging.Debug("dropping signed_data with malformed payload", zap.Error(err))
		return
	}

	switch payloadType {
	case codec.PayloadPublicChat:
		c.handlePublicChat(env)
	case codec.PayloadChat:
		c.handleChat(env)
	default:
		logging.Debug("dropping disallowed payload type", zap.String("type", payloadType))
	}
}

func (c *Client) handlePublicChat(env *codec.Envelope) {
	pc, err := codec.DecodePublicChat(env.Data)
	if err != nil {
		logging.Debug("dropping malformed public_chat", zap.Error(err))
		return
	}
	pub, ok := c.lookupKey(pc.Sender)
	if !ok {
		logging.Debug("dropping public_chat from unknown sender", zap.String("sender", pc.Sender))
		return
	}
	if !c.verifyAndAdvance(pc.Sender, pub, env) {
		return
	}
	if c.handler != nil {
		c.handler.OnPublicChat(PublicChatEvent{Sender: pc.Sender, Message: pc.Message})
	}
}

func (c *Client) handleChat(env *codec.Envelope) {
	chat, err := codec.DecodeChat(env.Data)
	if err != nil {
		logging.Debug("dropping malformed chat", zap.Error(err))
		return
	}

	plain, err := c.tryDecrypt(chat)
	if err != nil {
		logging.Debug("chat did not decrypt for this client, dropping", zap.Error(err))
		return
	}

	cp, err := codec.DecodeChatPlaintext(plain)
	if err != nil {
		logging.Debug("dropping chat with malformed plaintext", zap.Error(err))
		return
	}
	if !containsFingerprint(cp.Participants, c.fingerprint) {
		logging.Debug("dropping chat not addressed to this client")
		return
	}

	sender := cp.Participants[0]
	pub, ok := c.lookupKey(sender)
	if !ok {
		logging.Debug("dropping chat from unknown sender", zap.String("sender", sender))
		return
	}
	if !c.verifyAndAdvance(sender, pub, env) {
		return
	}

	if c.handler != nil {
		c.handler.OnChat(ChatEvent{Participants: cp.Participants, Message: cp.Message})
	}
}

func (c *Client) tryDecrypt(chat *codec.Chat) ([]byte, error) {
	iv, err := b64Decode(chat.IV)
	if err != nil {
		return nil, err
	}
	ciphertext, err := b64Decode(chat.CipherChat)
	if err != nil {
		return nil, err
	}
	wrapped := make([][]byte, len(chat.SymmKeys))
	for i, k := range chat.SymmKeys {
		wk, err := b64Decode(k)
		if err != nil {
			return nil, err
		}
		wrapped[i] = wk
	}
	return crypto.HybridDecrypt(c.priv, iv, ciphertext, wrapped)
}

// verifyAndAdvance checks the envelope's signature under the sender's
// public key and enforces strict counter monotonicity per fingerprint,
// exactly as the server does for inbound client traffic.
func (c *Client) verifyAndAdvance(fingerprint string, pub *rsa.PublicKey, env *codec.Envelope) bool {
	if err := codec.VerifyEnvelope(pub, env); err != nil {
		logging.Debug("dropping envelope with bad signature", zap.String("sender", fingerprint))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.known[fingerprint]
	if !ok {
		return false
	}
	if env.Counter <= entry.lastCounter {
		logging.Debug("dropping stale/replayed counter", zap.String("sender", fingerprint))
		return false
	}
	entry.lastCounter = env.Counter
	return true
}

func (c *Client) lookupKey(fingerprint string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.known[fingerprint]
	if !ok {
		return nil, false
	}
	return e.pub, true
}

func containsFingerprint(list []string, fp string) bool {
	for _, f := range list {
		if f == fp {
			return true
		}
	}
	return false
}
