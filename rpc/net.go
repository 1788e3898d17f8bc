package rpc

import (
	"net/http"

	"github.com/xmrbtcswap/swapd/net"
)

// NetService answers queries about this node's libp2p identity and
// transport state, the BTC/XMR analog of bingcicle's "net" namespace (which
// also covered peer discovery for offers; swapd has no offer-discovery
// surface, so this is narrowed to identity/address reporting).
type NetService struct {
	host *net.Host
}

// NewNetService returns a NetService backed by host.
func NewNetService(host *net.Host) *NetService {
	return &NetService{host: host}
}

// AddressesRequest is the (empty) request for NetService.Addresses.
type AddressesRequest struct{}

// AddressesResponse lists this node's libp2p identity and listen addresses.
type AddressesResponse struct {
	PeerID    string   `json:"peerID"`
	Addresses []string `json:"addresses"`
}

// Addresses returns this daemon's peer ID and the multiaddrs it listens on,
// the information an operator needs to hand to a counterparty's --peer-id/
// --peer-addr flags.
func (s *NetService) Addresses(_ *http.Request, _ *AddressesRequest, resp *AddressesResponse) error {
	resp.PeerID = s.host.ID().String()
	addrs := s.host.Addrs()
	resp.Addresses = make([]string, len(addrs))
	for i, a := range addrs {
		resp.Addresses[i] = a.String()
	}
	return nil
}
