// Package network gossips ledger notifications between verifier nodes over
// QUIC. Connections are authenticated by the Ed25519 key inside each
// node's self-signed certificate; messages are length-prefixed encoded
// ledger events, deduplicated by content hash.
package network

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"ProofNest/internal/ledger"
	"ProofNest/internal/logger"
)

// alpnProtocol is the ALPN protocol identifier.
const alpnProtocol = "proofnest/1"

// EventHandler receives events gossiped by remote nodes.
type EventHandler func(from ed25519.PublicKey, event ledger.Event)

// Mesh is the QUIC notification mesh.
type Mesh struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	listenAddr string
	tlsConfig  *tls.Config
	quicConfig *quic.Config

	listener *quic.Listener

	peers   map[string]*peer // peers maps public key hex to peer
	peersMu sync.RWMutex

	dedup   *dedup
	onEvent EventHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMesh creates a mesh node listening on the given address.
func NewMesh(privateKey ed25519.PrivateKey, listenAddr string) (*Mesh, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	if listenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	cert, err := selfSignedCertificate(privateKey)
	if err != nil {
		return nil, fmt.Errorf("generate certificate:\n%w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mesh{
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
		listenAddr: listenAddr,
		tlsConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			ClientAuth:   tls.RequireAnyClientCert,
			// Identity is the ed25519 key inside the cert, checked manually
			InsecureSkipVerify: true,
			NextProtos:         []string{alpnProtocol},
		},
		quicConfig: &quic.Config{
			MaxIdleTimeout:  30 * time.Second,
			KeepAlivePeriod: 10 * time.Second,
		},
		peers:  make(map[string]*peer),
		dedup:  newDedup(),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// OnEvent registers the handler for events received from peers.
// Must be called before Start.
func (m *Mesh) OnEvent(handler EventHandler) {
	m.onEvent = handler
}

// PublicKey returns the mesh node's public key.
func (m *Mesh) PublicKey() ed25519.PublicKey {
	return m.publicKey
}

// Addr returns the listener's address, or "" before Start.
func (m *Mesh) Addr() string {
	if m.listener == nil {
		return ""
	}

	return m.listener.Addr().String()
}

// Start begins accepting peer connections.
func (m *Mesh) Start() error {
	listener, err := quic.ListenAddr(m.listenAddr, m.tlsConfig, m.quicConfig)
	if err != nil {
		return fmt.Errorf("listen:\n%w", err)
	}

	m.listener = listener

	m.wg.Add(1)
	go m.acceptLoop()

	logger.Info("notification mesh started", "addr", listener.Addr().String())

	return nil
}

// Connect dials a remote mesh node.
func (m *Mesh) Connect(addr string) error {
	ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
	defer cancel()

	conn, err := quic.DialAddr(ctx, addr, m.tlsConfig, m.quicConfig)
	if err != nil {
		return fmt.Errorf("dial %s:\n%w", addr, err)
	}

	return m.adoptConn(conn, addr)
}

// Broadcast gossips a ledger event to every connected peer.
func (m *Mesh) Broadcast(event ledger.Event) {
	data := EncodeEvent(event)

	// Record our own broadcast so an echo from a peer is filtered.
	m.dedup.check(data)

	m.peersMu.RLock()
	defer m.peersMu.RUnlock()

	for _, p := range m.peers {
		if err := p.send(data); err != nil {
			logger.Debug("broadcast to peer failed", "peer", p.address, "error", err)
		}
	}
}

// PeerCount returns the number of connected peers.
func (m *Mesh) PeerCount() int {
	m.peersMu.RLock()
	defer m.peersMu.RUnlock()

	return len(m.peers)
}

// Close shuts the mesh down, closing every peer connection.
func (m *Mesh) Close() error {
	m.cancel()

	if m.listener != nil {
		m.listener.Close()
	}

	m.peersMu.Lock()
	for _, p := range m.peers {
		p.close()
	}
	m.peers = make(map[string]*peer)
	m.peersMu.Unlock()

	m.wg.Wait()
	m.dedup.close()

	return nil
}

// acceptLoop accepts inbound connections until the mesh closes.
func (m *Mesh) acceptLoop() {
	defer m.wg.Done()

	for {
		conn, err := m.listener.Accept(m.ctx)
		if err != nil {
			return
		}

		if err := m.adoptConn(conn, conn.RemoteAddr().String()); err != nil {
			logger.Debug("inbound peer rejected", "error", err)
			conn.CloseWithError(1, "rejected")
		}
	}
}

// adoptConn registers a connection as a peer and starts its receive loop.
func (m *Mesh) adoptConn(conn quic.Connection, addr string) error {
	remoteKey, err := peerPublicKey(conn.ConnectionState().TLS)
	if err != nil {
		return fmt.Errorf("extract peer key:\n%w", err)
	}

	keyHex := hex.EncodeToString(remoteKey)

	p := &peer{
		publicKey: remoteKey,
		address:   addr,
		conn:      conn,
		mesh:      m,
	}

	m.peersMu.Lock()
	if _, ok := m.peers[keyHex]; ok {
		// Keep the existing connection, drop the new one.
		m.peersMu.Unlock()
		conn.CloseWithError(0, "duplicate peer")

		return nil
	}
	m.peers[keyHex] = p
	m.peersMu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		p.receiveLoop(m.ctx)
	}()

	logger.Info("peer connected", "peer", addr, "key", keyHex[:16])

	return nil
}

// dropPeer removes a disconnected peer.
func (m *Mesh) dropPeer(p *peer) {
	keyHex := hex.EncodeToString(p.publicKey)

	m.peersMu.Lock()
	if m.peers[keyHex] == p {
		delete(m.peers, keyHex)
	}
	m.peersMu.Unlock()

	logger.Info("peer disconnected", "peer", p.address)
}

// deliver dispatches a received gossip message after dedup filtering.
func (m *Mesh) deliver(p *peer, data []byte) {
	if !m.dedup.check(data) {
		return
	}

	event, err := DecodeEvent(data)
	if err != nil {
		logger.Debug("malformed gossip message", "peer", p.address, "error", err)
		return
	}

	// Relay so events reach peers not directly connected to the origin.
	m.peersMu.RLock()
	for _, other := range m.peers {
		if other != p {
			if err := other.send(data); err != nil {
				logger.Debug("relay failed", "peer", other.address, "error", err)
			}
		}
	}
	m.peersMu.RUnlock()

	if m.onEvent != nil {
		m.onEvent(p.publicKey, event)
	}
}
