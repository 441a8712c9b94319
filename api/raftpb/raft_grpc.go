package raftpb

import (
	"context"

	"google.golang.org/grpc"
)

const (
	Raft_RequestVote_FullMethodName      = "/raftpb.Raft/RequestVote"
	Raft_AppendEntries_FullMethodName    = "/raftpb.Raft/AppendEntries"
	Raft_InstallSnapshot_FullMethodName  = "/raftpb.Raft/InstallSnapshot"
)

type raftClient struct {
	cc grpc.ClientConnInterface
}

// NewRaftClient wraps a ClientConn with the Raft service's typed client
// methods, the same shape protoc-gen-go-grpc emits.
func NewRaftClient(cc grpc.ClientConnInterface) RaftClient {
	return &raftClient{cc}
}

func (c *raftClient) RequestVote(ctx context.Context, req *RequestVoteRequest) (*RequestVoteResponse, error) {
	out := new(RequestVoteResponse)
	if err := c.cc.Invoke(ctx, Raft_RequestVote_FullMethodName, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *raftClient) AppendEntries(ctx context.Context, req *AppendEntriesRequest) (*AppendEntriesResponse, error) {
	out := new(AppendEntriesResponse)
	if err := c.cc.Invoke(ctx, Raft_AppendEntries_FullMethodName, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *raftClient) InstallSnapshot(ctx context.Context, req *InstallSnapshotRequest) (*InstallSnapshotResponse, error) {
	out := new(InstallSnapshotResponse)
	if err := c.cc.Invoke(ctx, Raft_InstallSnapshot_FullMethodName, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// UnimplementedRaftServer must be embedded by server implementations to
// satisfy forward compatibility, following protoc-gen-go-grpc's
// "unimplemented" pattern.
type UnimplementedRaftServer struct{}

func (UnimplementedRaftServer) RequestVote(context.Context, *RequestVoteRequest) (*RequestVoteResponse, error) {
	return nil, grpcUnimplemented("RequestVote")
}
func (UnimplementedRaftServer) AppendEntries(context.Context, *AppendEntriesRequest) (*AppendEntriesResponse, error) {
	return nil, grpcUnimplemented("AppendEntries")
}
func (UnimplementedRaftServer) InstallSnapshot(context.Context, *InstallSnapshotRequest) (*InstallSnapshotResponse, error) {
	return nil, grpcUnimplemented("InstallSnapshot")
}

func grpcUnimplemented(method string) error {
	return &unimplementedError{method: method}
}

type unimplementedError struct{ method string }

func (e *unimplementedError) Error() string {
	return "raftpb.Raft." + e.method + " not implemented"
}

func _Raft_RequestVote_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RequestVoteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RaftServer).RequestVote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Raft_RequestVote_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RaftServer).RequestVote(ctx, req.(*RequestVoteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Raft_AppendEntries_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AppendEntriesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RaftServer).AppendEntries(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Raft_AppendEntries_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RaftServer).AppendEntries(ctx, req.(*AppendEntriesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Raft_InstallSnapshot_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(InstallSnapshotRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RaftServer).InstallSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Raft_InstallSnapshot_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RaftServer).InstallSnapshot(ctx, req.(*InstallSnapshotRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Raft_ServiceDesc is the grpc.ServiceDesc for the Raft service, the same
// shape protoc-gen-go-grpc emits for RegisterRaftServer.
var Raft_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "raftpb.Raft",
	HandlerType: (*RaftServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestVote", Handler: _Raft_RequestVote_Handler},
		{MethodName: "AppendEntries", Handler: _Raft_AppendEntries_Handler},
		{MethodName: "InstallSnapshot", Handler: _Raft_InstallSnapshot_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raft.proto",
}

// RegisterRaftServer registers srv with s.
func RegisterRaftServer(s grpc.ServiceRegistrar, srv RaftServer) {
	s.RegisterService(&Raft_ServiceDesc, srv)
}
