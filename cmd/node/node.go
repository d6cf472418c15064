package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ProofNest/internal/api"
	"ProofNest/internal/attest"
	"ProofNest/internal/ledger"
	"ProofNest/internal/logger"
	"ProofNest/internal/network"
	"ProofNest/internal/storage"
)

// Node represents a running ProofNest node.
type Node struct {
	cfg      *Config
	storage  *storage.Store
	ledger   *ledger.Ledger
	attestor *attest.KeyPair
	mesh     *network.Mesh
	api      *api.Server

	done chan struct{} // done stops the event-forwarding loop
}

// NewNode creates and initializes a new node.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{
		cfg:  cfg,
		done: make(chan struct{}),
	}

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	if err := n.initLedger(); err != nil {
		n.Close()
		return nil, err
	}

	if err := n.initAttestor(); err != nil {
		n.Close()
		return nil, err
	}

	if err := n.initMesh(); err != nil {
		n.Close()
		return nil, err
	}

	return n, nil
}

// initStorage initializes the Pebble storage.
func (n *Node) initStorage() error {
	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.Open(n.cfg.DataPath + "/db")
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db

	return nil
}

// initLedger initializes the aggregation ledger.
func (n *Node) initLedger() error {
	l, err := ledger.New(n.storage)
	if err != nil {
		return fmt.Errorf("init ledger:\n%w", err)
	}

	n.ledger = l

	return nil
}

// initAttestor derives the BLS attestation keypair from the node key, so
// the same identity file yields the same attestor across restarts.
func (n *Node) initAttestor() error {
	kp, err := attest.DeriveFromED25519(n.cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("derive attestor:\n%w", err)
	}

	n.attestor = kp

	return nil
}

// initMesh initializes the QUIC notification mesh.
func (n *Node) initMesh() error {
	mesh, err := network.NewMesh(n.cfg.PrivateKey, n.cfg.QUICAddress)
	if err != nil {
		return fmt.Errorf("init mesh:\n%w", err)
	}

	mesh.OnEvent(func(from ed25519.PublicKey, event ledger.Event) {
		logger.Debug("remote ledger event",
			"kind", event.Kind.String(),
			"commitment", event.Commitment,
			"from", hex.EncodeToString(from)[:16],
		)
	})

	n.mesh = mesh

	return nil
}

// Run starts the node and blocks until shutdown.
func (n *Node) Run() error {
	if err := n.mesh.Start(); err != nil {
		return fmt.Errorf("start mesh:\n%w", err)
	}

	for _, addr := range n.cfg.Peers {
		if err := n.mesh.Connect(addr); err != nil {
			logger.Warn("peer connection failed", "peer", addr, "error", err)
		}
	}

	n.api = api.New(n.cfg.HTTPAddress, n.ledger, n.attestor, n.mesh)
	if err := n.api.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	go n.forwardEvents()

	return n.waitForShutdown()
}

// forwardEvents gossips local ledger events to the mesh.
func (n *Node) forwardEvents() {
	for {
		select {
		case event := <-n.ledger.Events():
			n.mesh.Broadcast(event)

		case <-n.done:
			return
		}
	}
}

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return n.Close()
}

// Close shuts down the node components in reverse start order.
func (n *Node) Close() error {
	close(n.done)

	if n.api != nil {
		n.api.Stop()
	}

	if n.mesh != nil {
		n.mesh.Close()
	}

	if n.storage != nil {
		n.storage.Close()
	}

	return nil
}
