// Package peers holds the configured identities of remote SLE peers: the
// shared authentication secrets and accepted hash algorithm per peer id.
package peers

import (
	"encoding/hex"
	"fmt"
	"sync"

	"sle-engine/internal/isp1"
)

// RemotePeer is the authentication material known for one remote peer.
type RemotePeer struct {
	ID       string
	Password []byte
	Hash     isp1.HashAlgorithm
}

// Directory maps peer ids to their configured identities. Lookups are safe
// for concurrent use; the directory is populated once at startup.
type Directory struct {
	peers map[string]RemotePeer
	mu    sync.RWMutex
}

// NewDirectory creates an empty peer directory.
func NewDirectory() *Directory {
	return &Directory{peers: make(map[string]RemotePeer)}
}

// Add registers a peer. The password is given hex-encoded, as it appears in
// the configuration file.
func (d *Directory) Add(id, passwordHex, hashName string) error {
	password, err := hex.DecodeString(passwordHex)
	if err != nil {
		return fmt.Errorf("invalid password hex for peer %s: %w", id, err)
	}
	algo, err := isp1.ParseHashAlgorithm(hashName)
	if err != nil {
		return fmt.Errorf("invalid hash algorithm for peer %s: %w", id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.peers[id]; exists {
		return fmt.Errorf("duplicate peer id %s", id)
	}
	d.peers[id] = RemotePeer{ID: id, Password: password, Hash: algo}
	return nil
}

// Lookup returns the identity of the peer with the given id.
func (d *Directory) Lookup(id string) (RemotePeer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	peer, ok := d.peers[id]
	if !ok {
		return RemotePeer{}, fmt.Errorf("unknown peer id %s", id)
	}
	return peer, nil
}

// Len returns the number of configured peers.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}
