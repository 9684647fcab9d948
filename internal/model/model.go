package model

import (
	"net/netip"
	"strings"
)

// Peer is one tailnet peer that publishes SSH host keys.
type Peer struct {
	ID        string // opaque status map key, ordering only
	HostName  string
	DNSName   string
	Addresses []netip.Addr
	HostKeys  []string
}

// ShortDNSName returns DNSName without a single trailing root dot.
func (p Peer) ShortDNSName() string {
	return strings.TrimSuffix(p.DNSName, ".")
}

// Aliases lists the names OpenSSH may use for the peer, in known_hosts order.
func (p Peer) Aliases() []string {
	return []string{p.HostName, p.DNSName, p.ShortDNSName()}
}
