package cluster

import (
	"fmt"
)

// Node describes a single cluster member. The ID is the canonical
// "host:port" string and is the hashing input for ring placement; Hash is
// cached at insertion time and never changes afterwards.
type Node struct {
	ID     string `json:"nodeId"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Hash   uint32 `json:"hashValue"`
	Active bool   `json:"active"`
}

func NewNode(host string, port int) *Node {
	id := fmt.Sprintf("%s:%d", host, port)
	return &Node{
		ID:     id,
		Host:   host,
		Port:   port,
		Hash:   HashKey(id),
		Active: true,
	}
}

// Addr returns the host:port address peers dial.
func (n *Node) Addr() string {
	return n.ID
}

// Equal compares nodes by identity only.
func (n *Node) Equal(other *Node) bool {
	return other != nil && n.ID == other.ID
}
