package mqttsn

import "net"

// PeerAddr is the identity key for every per-peer table: an IP address and
// UDP port pair (spec §3). It is comparable and usable as a map key, unlike
// net.Addr implementations in general.
type PeerAddr string

// NewPeerAddr derives a PeerAddr from a transport-level address. Transport
// implementations (transport.go) hand these to the core on every ingress
// datagram; the core never parses or reconstructs a net.Addr from one.
func NewPeerAddr(addr net.Addr) PeerAddr {
	return PeerAddr(addr.String())
}
