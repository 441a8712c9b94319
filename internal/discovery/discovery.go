// Package discovery implements §4.15: peer discovery behind one
// interface, with static, Consul-style, and etcd-style backends selected
// by configuration. Generalizes the teacher's single static PEER_NODES
// env convention into a pluggable interface.
package discovery

import "context"

// Peer is one other node in the cluster.
type Peer struct {
	ID      string
	Address string
}

// Discovery registers this node, deregisters it on shutdown, lists
// current peers, and notifies watchers of membership changes.
type Discovery interface {
	Register(ctx context.Context, self Peer) error
	Deregister(ctx context.Context, self Peer) error
	Discover(ctx context.Context) ([]Peer, error)
	// Watch streams peer-set snapshots until ctx is cancelled.
	Watch(ctx context.Context) (<-chan []Peer, error)
}
