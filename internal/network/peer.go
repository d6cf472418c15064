package network

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/quic-go/quic-go"

	"ProofNest/internal/logger"
)

// peer is one authenticated mesh connection.
type peer struct {
	publicKey ed25519.PublicKey // publicKey is the remote node's identity
	address   string            // address is the remote address
	conn      quic.Connection   // conn is the underlying QUIC connection
	mesh      *Mesh             // mesh is the owning mesh node
	closed    atomic.Bool       // closed indicates the peer is gone
	mu        sync.Mutex        // mu serializes sends
}

// send delivers one message on a fresh unidirectional stream.
func (p *peer) send(data []byte) error {
	if p.closed.Load() {
		return fmt.Errorf("peer is closed")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	stream, err := p.conn.OpenUniStreamSync(context.Background())
	if err != nil {
		return fmt.Errorf("open stream:\n%w", err)
	}

	if err := writeFrame(stream, data); err != nil {
		stream.Close()
		return fmt.Errorf("write frame:\n%w", err)
	}

	return stream.Close()
}

// close tears the connection down.
func (p *peer) close() error {
	if p.closed.Swap(true) {
		return nil
	}

	return p.conn.CloseWithError(0, "closed")
}

// receiveLoop accepts incoming streams until the connection dies.
func (p *peer) receiveLoop(ctx context.Context) {
	for {
		stream, err := p.conn.AcceptUniStream(ctx)
		if err != nil {
			break
		}

		go p.handleStream(stream)
	}

	if !p.closed.Swap(true) {
		p.mesh.dropPeer(p)
	}
}

// handleStream reads one message from a unidirectional stream.
func (p *peer) handleStream(stream quic.ReceiveStream) {
	data, err := readFrame(stream)
	if err != nil {
		logger.Debug("stream read error", "peer", p.address, "error", err)
		return
	}

	p.mesh.deliver(p, data)
}
