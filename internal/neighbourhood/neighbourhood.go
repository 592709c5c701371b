// Package neighbourhood maintains the outbound half of the
// server-to-server mesh (§4.5, §4.8): for each configured peer address
// it keeps one dial loop alive, reconnecting on failure with bounded
// exponential backoff and jitter, and re-establishes gossip (a
// server_hello followed by a client_list_request) every time a dial
// succeeds.
package neighbourhood

import (
	"context"
	"crypto/rsa"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"olafchat/internal/codec"
	"olafchat/internal/crypto"
	"olafchat/internal/logging"
	"olafchat/internal/session"
)

const (
	backoffBase   = 1 * time.Second
	backoffMax    = 30 * time.Second
	backoffJitter = 500 * time.Millisecond
)

// Adopter runs a dialled session's steady-state dispatch loop,
// pre-classified as a server peer, until it ends. homeserver.Server
// implements this via AdoptOutbound so routing, directory maintenance,
// and gossip all flow through the one dispatch path regardless of
// which side initiated the connection.
type Adopter interface {
	AdoptOutbound(address string, sess *session.Session)
}

// Manager dials every configured peer server and keeps the connection
// alive for as long as the process runs.
type Manager struct {
	selfAddress string
	signingKey  *rsa.PrivateKey
	adopter     Adopter
	dialer      *websocket.Dialer
}

// New builds a Manager for the given self address and configured peers.
// signingKey signs each outbound server_hello's envelope; peers never
// verify it against any known key (a server has no registered identity
// the way a client does), so any process-lifetime key pair will do.
func New(selfAddress string, signingKey *rsa.PrivateKey, adopter Adopter) *Manager {
	return &Manager{
		selfAddress: selfAddress,
		signingKey:  signingKey,
		adopter:     adopter,
		dialer:      websocket.DefaultDialer,
	}
}

// Start launches one reconnecting dial loop per configured peer. It
// returns immediately; loops run until ctx is canceled.
func (m *Manager) Start(ctx context.Context, peers []string) {
	for _, addr := range peers {
		go m.dialLoop(ctx, addr)
	}
}

func (m *Manager) dialLoop(ctx context.Context, address string) {
	backoff := backoffBase
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sess, err := m.dial(ctx, address)
		if err != nil {
			logging.Debug("peer dial failed, backing off",
				zap.String("peer", address), zap.Duration("backoff", backoff), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(jitter(backoff)):
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = backoffBase
		logging.Info("connected to peer server", zap.String("peer", address))
		m.adopter.AdoptOutbound(address, sess)
		logging.Info("peer server connection lost, will retry", zap.String("peer", address))
	}
}

// dial opens the transport and immediately sends server_hello followed
// by client_list_request, per §4.5's "after each successful dial"
// requirement.
func (m *Manager) dial(ctx context.Context, address string) (*session.Session, error) {
	u := url.URL{Scheme: "ws", Host: address, Path: "/"}
	conn, _, err := m.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	sess := session.New(conn, address)

	const helloCounter = 1
	hello, err := codec.EncodeServerHello(m.selfAddress)
	if err != nil {
		_ = sess.Close()
		return nil, err
	}
	sig, err := crypto.Sign(m.signingKey, hello, helloCounter)
	if err != nil {
		_ = sess.Close()
		return nil, err
	}
	env, err := codec.EncodeEnvelope(hello, helloCounter, sig)
	if err != nil {
		_ = sess.Close()
		return nil, err
	}
	if err := sess.Send(env); err != nil {
		_ = sess.Close()
		return nil, err
	}

	req, err := codec.EncodeClientListRequest()
	if err != nil {
		_ = sess.Close()
		return nil, err
	}
	if err := sess.Send(req); err != nil {
		_ = sess.Close()
		return nil, err
	}

	return sess, nil
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > backoffMax {
		return backoffMax
	}
	return next
}

func jitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(backoffJitter)))
}
