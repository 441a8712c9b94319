// Package raftpb holds the wire types and service descriptor for the
// inter-node Raft RPC service defined in raft.proto. Hand-maintained
// rather than protoc-generated (the module's build has no protoc step);
// the .proto file remains the source of truth for the wire contract, and
// these types mirror it field-for-field. Encoding is handled by the JSON
// codec in internal/rpctransport rather than protobuf's generated
// marshalers — see DESIGN.md for why.
package raftpb

import "context"

// LogEntry mirrors raft.proto's LogEntry message.
type LogEntry struct {
	Term              uint64
	Index             uint64
	Command           []byte
	TimestampUnixNano int64
}

type RequestVoteRequest struct {
	Term         uint64
	CandidateID  string
	LastLogIndex uint64
	LastLogTerm  uint64
}

type RequestVoteResponse struct {
	Term        uint64
	VoteGranted bool
}

type AppendEntriesRequest struct {
	Term         uint64
	LeaderID     string
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []*LogEntry
	LeaderCommit uint64
}

type AppendEntriesResponse struct {
	Term          uint64
	Success       bool
	ConflictIndex uint64
}

type InstallSnapshotRequest struct {
	Term              uint64
	LeaderID          string
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	Data              []byte
}

type InstallSnapshotResponse struct {
	Term uint64
}

// RaftClient is the hand-written client-side interface for the Raft
// service.
type RaftClient interface {
	RequestVote(ctx context.Context, req *RequestVoteRequest) (*RequestVoteResponse, error)
	AppendEntries(ctx context.Context, req *AppendEntriesRequest) (*AppendEntriesResponse, error)
	InstallSnapshot(ctx context.Context, req *InstallSnapshotRequest) (*InstallSnapshotResponse, error)
}

// RaftServer is the server-side interface a consensus node implements to
// handle incoming Raft RPCs.
type RaftServer interface {
	RequestVote(ctx context.Context, req *RequestVoteRequest) (*RequestVoteResponse, error)
	AppendEntries(ctx context.Context, req *AppendEntriesRequest) (*AppendEntriesResponse, error)
	InstallSnapshot(ctx context.Context, req *InstallSnapshotRequest) (*InstallSnapshotResponse, error)
}
