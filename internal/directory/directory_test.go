package directory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"olafchat/internal/crypto"
)

func TestAddAndLookupLocalClient(t *testing.T) {
	priv, err := crypto.GenerateClientKey()
	require.NoError(t, err)

	d := New("127.0.0.1:8000")
	d.AddLocalClient("fp1", &priv.PublicKey, 0, "sess-1")

	c, ok := d.LocalClient("fp1")
	require.True(t, ok)
	require.Equal(t, "sess-1", c.SessionID)
	require.Equal(t, uint64(0), c.LastCounter)

	_, ok = d.LocalClient("nonexistent")
	require.False(t, ok)
}

func TestRemoveLocalClient(t *testing.T) {
	priv, err := crypto.GenerateClientKey()
	require.NoError(t, err)

	d := New("127.0.0.1:8000")
	d.AddLocalClient("fp1", &priv.PublicKey, 0, "sess-1")
	d.RemoveLocalClient("fp1")

	_, ok := d.LocalClient("fp1")
	require.False(t, ok)
}

func TestCheckAndAdvanceCounterMonotonic(t *testing.T) {
	priv, err := crypto.GenerateClientKey()
	require.NoError(t, err)

	d := New("127.0.0.1:8000")
	d.AddLocalClient("fp1", &priv.PublicKey, 0, "sess-1")

	require.True(t, d.CheckAndAdvanceCounter("fp1", 1))
	require.True(t, d.CheckAndAdvanceCounter("fp1", 2))
	require.True(t, d.CheckAndAdvanceCounter("fp1", 100))
}

func TestCheckAndAdvanceCounterRejectsReplay(t *testing.T) {
	priv, err := crypto.GenerateClientKey()
	require.NoError(t, err)

	d := New("127.0.0.1:8000")
	d.AddLocalClient("fp1", &priv.PublicKey, 0, "sess-1")

	require.True(t, d.CheckAndAdvanceCounter("fp1", 5))
	require.False(t, d.CheckAndAdvanceCounter("fp1", 5))
	require.False(t, d.CheckAndAdvanceCounter("fp1", 3))

	c, ok := d.LocalClient("fp1")
	require.True(t, ok)
	require.Equal(t, uint64(5), c.LastCounter)
}

func TestCheckAndAdvanceCounterUnknownClient(t *testing.T) {
	d := New("127.0.0.1:8000")
	require.False(t, d.CheckAndAdvanceCounter("ghost", 1))
}

func TestPeerServerLifecycle(t *testing.T) {
	d := New("127.0.0.1:8000")
	require.False(t, d.HasPeerServer("127.0.0.1:9000"))

	d.AddPeerServer("127.0.0.1:9000")
	require.True(t, d.HasPeerServer("127.0.0.1:9000"))
	require.Contains(t, d.ConnectedPeerServers(), "127.0.0.1:9000")

	d.SetAdvertisedClients("127.0.0.1:9000", []string{"keyA", "keyB"})

	d.RemovePeerServer("127.0.0.1:9000")
	require.False(t, d.HasPeerServer("127.0.0.1:9000"))
	require.NotContains(t, d.ConnectedPeerServers(), "127.0.0.1:9000")
}

func TestSetAdvertisedClientsImplicitlyConnects(t *testing.T) {
	d := New("127.0.0.1:8000")
	d.SetAdvertisedClients("127.0.0.1:9001", []string{"keyA"})
	require.True(t, d.HasPeerServer("127.0.0.1:9001"))
}

func TestSnapshotIncludesSelfAndPeers(t *testing.T) {
	priv, err := crypto.GenerateClientKey()
	require.NoError(t, err)

	d := New("127.0.0.1:8000")
	d.AddLocalClient("fp1", &priv.PublicKey, 0, "sess-1")
	d.SetAdvertisedClients("127.0.0.1:9000", []string{"keyA", "keyB"})

	snap, err := d.Snapshot()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8000", snap.SelfAddress)
	require.Len(t, snap.SelfClients, 1)
	require.ElementsMatch(t, []string{"keyA", "keyB"}, snap.Peers["127.0.0.1:9000"])
}

func TestLocalClientsSnapshot(t *testing.T) {
	privA, err := crypto.GenerateClientKey()
	require.NoError(t, err)
	privB, err := crypto.GenerateClientKey()
	require.NoError(t, err)

	d := New("127.0.0.1:8000")
	d.AddLocalClient("fpA", &privA.PublicKey, 0, "sess-A")
	d.AddLocalClient("fpB", &privB.PublicKey, 0, "sess-B")

	clients := d.LocalClients()
	require.Equal(t, "sess-A", clients["fpA"])
	require.Equal(t, "sess-B", clients["fpB"])
}
