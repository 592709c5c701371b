package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"olafchat/internal/config"
	"olafchat/internal/crypto"
	"olafchat/internal/homeserver"
)

// recordingHandler collects events for assertions instead of rendering
// a UI, standing in for clientui.UI in these tests.
type recordingHandler struct {
	mu          sync.Mutex
	publicChats []PublicChatEvent
	chats       []ChatEvent
	dirUpdates  int
}

func (h *recordingHandler) OnPublicChat(e PublicChatEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publicChats = append(h.publicChats, e)
}

func (h *recordingHandler) OnChat(e ChatEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chats = append(h.chats, e)
}

func (h *recordingHandler) OnDirectoryUpdated() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dirUpdates++
}

func (h *recordingHandler) waitForPublicChats(t *testing.T, n int, timeout time.Duration) []PublicChatEvent {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		if len(h.publicChats) >= n {
			out := append([]PublicChatEvent(nil), h.publicChats...)
			h.mu.Unlock()
			return out
		}
		h.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d public chats", n)
	return nil
}

func (h *recordingHandler) waitForChats(t *testing.T, n int, timeout time.Duration) []ChatEvent {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		if len(h.chats) >= n {
			out := append([]ChatEvent(nil), h.chats...)
			h.mu.Unlock()
			return out
		}
		h.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d chats", n)
	return nil
}

func newTestHomeServer(t *testing.T) string {
	t.Helper()
	cfg := config.ServerConfig{Host: "localhost", Port: 0}
	srv := homeserver.New(cfg, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return strings.TrimPrefix(ts.URL, "http://")
}

func dialTestClient(t *testing.T, addr string) (*Client, *recordingHandler) {
	t.Helper()
	priv, err := crypto.GenerateClientKey()
	require.NoError(t, err)

	h := &recordingHandler{}
	c, err := Dial(context.Background(), addr, priv, 1, h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, h
}

func TestDialReachesReadyState(t *testing.T) {
	addr := newTestHomeServer(t)
	c, h := dialTestClient(t, addr)

	require.Eventually(t, func() bool { return c.State() == StateReady }, time.Second, 10*time.Millisecond)
	require.GreaterOrEqual(t, h.dirUpdates, 1)
}

func TestPublicChatDeliveredToOtherClient(t *testing.T) {
	addr := newTestHomeServer(t)
	alice, _ := dialTestClient(t, addr)
	_, bobHandler := dialTestClient(t, addr)

	require.Eventually(t, func() bool { return alice.State() == StateReady }, time.Second, 10*time.Millisecond)

	require.NoError(t, alice.SendPublicChat("hi there"))

	events := bobHandler.waitForPublicChats(t, 1, 2*time.Second)
	require.Equal(t, alice.Fingerprint(), events[0].Sender)
	require.Equal(t, "hi there", events[0].Message)
}

func TestPrivateChatOnlyDeliveredToParticipant(t *testing.T) {
	addr := newTestHomeServer(t)
	// bob and eve connect first so alice's own directory request (sent
	// during her Dial) already includes both of them.
	bob, bobHandler := dialTestClient(t, addr)
	_, eveHandler := dialTestClient(t, addr)
	alice, _ := dialTestClient(t, addr)

	require.Eventually(t, func() bool {
		return len(alice.KnownFingerprints()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	// bob joined before alice, so he must refresh to learn her key
	// before he can verify anything she sends him.
	require.NoError(t, bob.RequestDirectory())
	require.Eventually(t, func() bool {
		return len(bob.KnownFingerprints()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.SendChat([]string{bob.Fingerprint()}, "just for you"))

	events := bobHandler.waitForChats(t, 1, 2*time.Second)
	require.Equal(t, "just for you", events[0].Message)
	require.Equal(t, alice.Fingerprint(), events[0].Participants[0])

	// eve is not a participant and must never decrypt or surface it.
	time.Sleep(200 * time.Millisecond)
	eveHandler.mu.Lock()
	defer eveHandler.mu.Unlock()
	require.Empty(t, eveHandler.chats)
}

func TestSendChatToUnknownRecipientFails(t *testing.T) {
	addr := newTestHomeServer(t)
	alice, _ := dialTestClient(t, addr)

	err := alice.SendChat([]string{"not-a-real-fingerprint"}, "hello")
	require.Error(t, err)
}

func TestLastCounterAdvancesOnSend(t *testing.T) {
	addr := newTestHomeServer(t)
	alice, _ := dialTestClient(t, addr)

	before := alice.LastCounter()
	require.NoError(t, alice.SendPublicChat("one"))
	require.Greater(t, alice.LastCounter(), before)
}
