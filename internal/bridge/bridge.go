// Package bridge ties the tailscale status query to the known_hosts file.
// Every operation takes a fresh snapshot, rewrites the file from it and
// answers from that same snapshot, so the file and the answer always agree.
package bridge

import (
	"fmt"

	"tssh/internal/knownhosts"
	"tssh/internal/model"
)

// PeerSource yields the current set of peers with SSH host keys.
type PeerSource interface {
	Peers() ([]model.Peer, error)
}

type Bridge struct {
	src            PeerSource
	knownHostsFile string
}

func New(src PeerSource, knownHostsFile string) *Bridge {
	return &Bridge{src: src, knownHostsFile: knownHostsFile}
}

// Refresh fetches peers and replaces the known_hosts file with them. Nothing
// is written when the fetch fails.
func (b *Bridge) Refresh() ([]model.Peer, error) {
	peers, err := b.src.Peers()
	if err != nil {
		return nil, fmt.Errorf("fetch peers: %w", err)
	}
	if err := knownhosts.Write(b.knownHostsFile, peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// Check refreshes the file and reports whether host names a peer.
func (b *Bridge) Check(host string) (bool, error) {
	peers, err := b.Refresh()
	if err != nil {
		return false, err
	}
	return knownhosts.IsKnownHost(peers, host), nil
}
