package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticDiscoverReturnsConfiguredPeers(t *testing.T) {
	peers := []Peer{{ID: "a", Address: "10.0.0.1:7000"}, {ID: "b", Address: "10.0.0.2:7000"}}
	s := NewStatic(peers)

	got, err := s.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, peers, got)
}

func TestStaticRegisterDeregisterAreNoOps(t *testing.T) {
	s := NewStatic(nil)
	assert.NoError(t, s.Register(context.Background(), Peer{ID: "self"}))
	assert.NoError(t, s.Deregister(context.Background(), Peer{ID: "self"}))
}

func TestStaticWatchEmitsInitialSnapshotThenClosesOnCancel(t *testing.T) {
	peers := []Peer{{ID: "a", Address: "10.0.0.1:7000"}}
	s := NewStatic(peers)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.Watch(ctx)
	require.NoError(t, err)

	got := <-ch
	assert.Equal(t, peers, got)

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}
