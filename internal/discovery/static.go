package discovery

import "context"

// Static is the simplest Discovery backend: a fixed peer list supplied
// at startup, mirroring the teacher's PEER_NODES env convention.
type Static struct {
	peers []Peer
}

// NewStatic creates a Static discovery backend from a fixed peer list.
func NewStatic(peers []Peer) *Static {
	return &Static{peers: peers}
}

func (s *Static) Register(ctx context.Context, self Peer) error   { return nil }
func (s *Static) Deregister(ctx context.Context, self Peer) error { return nil }

func (s *Static) Discover(ctx context.Context) ([]Peer, error) {
	return s.peers, nil
}

func (s *Static) Watch(ctx context.Context) (<-chan []Peer, error) {
	ch := make(chan []Peer, 1)
	ch <- s.peers
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}
