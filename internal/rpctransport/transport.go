package rpctransport

import (
	"context"
	"sync"
	"time"

	"github.com/falconmind/clustercenter/api/raftpb"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Transport is what internal/consensus depends on to reach peers —
// kept as an interface so the consensus core can be tested with an
// in-memory fake instead of real network connections.
type Transport interface {
	RequestVote(ctx context.Context, peerID string, req *raftpb.RequestVoteRequest) (*raftpb.RequestVoteResponse, error)
	AppendEntries(ctx context.Context, peerID string, req *raftpb.AppendEntriesRequest) (*raftpb.AppendEntriesResponse, error)
	InstallSnapshot(ctx context.Context, peerID string, req *raftpb.InstallSnapshotRequest) (*raftpb.InstallSnapshotResponse, error)
}

const dialTimeout = 3 * time.Second

// GRPCTransport is the real Transport, holding one lazily-dialed
// connection per peer address.
type GRPCTransport struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]raftpb.RaftClient
	conns   map[string]*grpc.ClientConn
}

// NewGRPCTransport creates a transport with no connections yet; peers
// are dialed on first use.
func NewGRPCTransport(logger *zap.Logger) *GRPCTransport {
	return &GRPCTransport{
		logger:  logger,
		clients: make(map[string]raftpb.RaftClient),
		conns:   make(map[string]*grpc.ClientConn),
	}
}

func (t *GRPCTransport) clientFor(peerAddr string) (raftpb.RaftClient, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[peerAddr]; ok {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	conn, err := grpc.DialContext(ctx, peerAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, err
	}
	client := raftpb.NewRaftClient(conn)
	t.conns[peerAddr] = conn
	t.clients[peerAddr] = client
	return client, nil
}

// Close tears down every dialed connection.
func (t *GRPCTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, conn := range t.conns {
		if err := conn.Close(); err != nil {
			t.logger.Warn("error closing peer connection", zap.String("peer", addr), zap.Error(err))
		}
	}
}

func (t *GRPCTransport) RequestVote(ctx context.Context, peerAddr string, req *raftpb.RequestVoteRequest) (*raftpb.RequestVoteResponse, error) {
	c, err := t.clientFor(peerAddr)
	if err != nil {
		return nil, err
	}
	return c.RequestVote(ctx, req)
}

func (t *GRPCTransport) AppendEntries(ctx context.Context, peerAddr string, req *raftpb.AppendEntriesRequest) (*raftpb.AppendEntriesResponse, error) {
	c, err := t.clientFor(peerAddr)
	if err != nil {
		return nil, err
	}
	return c.AppendEntries(ctx, req)
}

func (t *GRPCTransport) InstallSnapshot(ctx context.Context, peerAddr string, req *raftpb.InstallSnapshotRequest) (*raftpb.InstallSnapshotResponse, error) {
	c, err := t.clientFor(peerAddr)
	if err != nil {
		return nil, err
	}
	return c.InstallSnapshot(ctx, req)
}

// Server wraps a raftpb.RaftServer implementation (the consensus Node)
// with a gRPC listener.
type Server struct {
	grpcServer *grpc.Server
}

// NewServer creates a gRPC server registered to forward Raft RPCs to
// handler.
func NewServer(handler raftpb.RaftServer) *Server {
	s := grpc.NewServer()
	raftpb.RegisterRaftServer(s, handler)
	return &Server{grpcServer: s}
}

// GRPCServer exposes the underlying *grpc.Server so callers can invoke
// Serve(net.Listener) and GracefulStop directly.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}
