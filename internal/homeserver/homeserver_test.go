package homeserver

import (
	"crypto/rsa"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"olafchat/internal/codec"
	"olafchat/internal/config"
	"olafchat/internal/crypto"
)

// testClient dials a test server and speaks just enough of the protocol
// for these tests: hello, read/write raw frames.
type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	priv *rsa.PrivateKey
	fp   string
}

func dialTestServer(t *testing.T, url string) *testClient {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	priv, err := crypto.GenerateClientKey()
	require.NoError(t, err)
	fp, err := crypto.Fingerprint(&priv.PublicKey)
	require.NoError(t, err)

	return &testClient{t: t, conn: conn, priv: priv, fp: fp}
}

func (c *testClient) sendHello(counter uint64) {
	c.t.Helper()
	pubB64, err := crypto.EncodePublicKey(&c.priv.PublicKey)
	require.NoError(c.t, err)
	data, err := codec.EncodeHello(pubB64)
	require.NoError(c.t, err)
	frame, err := codec.SignPayload(c.priv, data, counter)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, frame))
}

func (c *testClient) sendPublicChat(counter uint64, message string) {
	c.t.Helper()
	data, err := codec.EncodePublicChat(c.fp, message)
	require.NoError(c.t, err)
	frame, err := codec.SignPayload(c.priv, data, counter)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, frame))
}

func (c *testClient) readFrame(timeout time.Duration) ([]byte, error) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.ServerConfig{Host: "localhost", Port: 0}
	srv := New(cfg, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestHelloClassifiesClientAndAnswersDirectory(t *testing.T) {
	srv, ts := newTestServer(t)
	c := dialTestServer(t, ts.URL)
	defer c.conn.Close()

	c.sendHello(1)

	data, err := codec.EncodeClientListRequest()
	require.NoError(t, err)
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, data))

	raw, err := c.readFrame(15 * time.Second)
	require.NoError(t, err)

	list, err := codec.DecodeClientList(raw)
	require.NoError(t, err)
	require.Len(t, list.Servers, 1)
	require.Equal(t, srv.cfg.Address(), list.Servers[0].Address)
	require.Len(t, list.Servers[0].Clients, 1)
}

func TestUnverifiedSessionSendingNonHelloIsClosed(t *testing.T) {
	_, ts := newTestServer(t)
	c := dialTestServer(t, ts.URL)
	defer c.conn.Close()

	data, err := codec.EncodePublicChat(c.fp, "too early")
	require.NoError(t, err)
	frame, err := codec.SignPayload(c.priv, data, 1)
	require.NoError(t, err)
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, frame))

	_, err = c.readFrame(15 * time.Second)
	require.Error(t, err)
}

func TestUnverifiedSessionPullingDirectoryIsClosed(t *testing.T) {
	_, ts := newTestServer(t)
	c := dialTestServer(t, ts.URL)
	defer c.conn.Close()

	data, err := codec.EncodeClientListRequest()
	require.NoError(t, err)
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, data))

	_, err = c.readFrame(15 * time.Second)
	require.Error(t, err, "an unverified session must not be able to pull the directory, and must be closed")
}

func TestReplayedCounterIsDropped(t *testing.T) {
	_, ts := newTestServer(t)

	sender := dialTestServer(t, ts.URL)
	defer sender.conn.Close()
	sender.sendHello(1)

	receiver := dialTestServer(t, ts.URL)
	defer receiver.conn.Close()
	receiver.sendHello(1)

	sender.sendPublicChat(2, "first")
	_, err := receiver.readFrame(15 * time.Second)
	require.NoError(t, err)

	sender.sendPublicChat(2, "replayed") // same counter again: must be dropped
	_, err = receiver.readFrame(3 * time.Second)
	require.Error(t, err, "replayed counter must not be forwarded")
}

func TestPublicChatBroadcastsToOtherLocalClients(t *testing.T) {
	_, ts := newTestServer(t)

	alice := dialTestServer(t, ts.URL)
	defer alice.conn.Close()
	alice.sendHello(1)

	bob := dialTestServer(t, ts.URL)
	defer bob.conn.Close()
	bob.sendHello(1)

	alice.sendPublicChat(2, "hello bob")

	raw, err := bob.readFrame(15 * time.Second)
	require.NoError(t, err)

	env, err := codec.DecodeEnvelope(raw)
	require.NoError(t, err)
	pc, err := codec.DecodePublicChat(env.Data)
	require.NoError(t, err)
	require.Equal(t, "hello bob", pc.Message)
	require.Equal(t, alice.fp, pc.Sender)

	// sender never gets its own broadcast echoed back.
	_, err = alice.readFrame(3 * time.Second)
	require.Error(t, err)
}

func TestBadSignatureDropsMessageSessionStaysOpen(t *testing.T) {
	_, ts := newTestServer(t)

	attacker := dialTestServer(t, ts.URL)
	defer attacker.conn.Close()
	attacker.sendHello(1)

	witness := dialTestServer(t, ts.URL)
	defer witness.conn.Close()
	witness.sendHello(1)

	data, err := codec.EncodePublicChat(attacker.fp, "forged")
	require.NoError(t, err)
	otherPriv, err := crypto.GenerateClientKey()
	require.NoError(t, err)
	frame, err := codec.SignPayload(otherPriv, data, 2) // signed by the wrong key
	require.NoError(t, err)
	require.NoError(t, attacker.conn.WriteMessage(websocket.TextMessage, frame))

	_, err = witness.readFrame(3 * time.Second)
	require.Error(t, err, "badly signed message must not be forwarded")

	// the attacker's session itself should remain usable afterwards.
	attacker.sendPublicChat(3, "legit now")
	raw, err := witness.readFrame(15 * time.Second)
	require.NoError(t, err)
	env, err := codec.DecodeEnvelope(raw)
	require.NoError(t, err)
	pc, err := codec.DecodePublicChat(env.Data)
	require.NoError(t, err)
	require.Equal(t, "legit now", pc.Message)
}
