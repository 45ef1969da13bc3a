// Package discovery provides the peer registry: the capability that
// periodically yields the current set of live peer endpoints. The core only
// requires eventual consistency of the returned membership.
package discovery

import (
	"context"
	"fmt"
)

// Peer is one live endpoint.
type Peer struct {
	Host string
	Port int
}

// Addr returns the peer's host:port address.
func (p Peer) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// Registry lists the peers currently alive. Implementations may block on
// network I/O and must honour the context.
type Registry interface {
	ListPeers(ctx context.Context) ([]Peer, error)
}
