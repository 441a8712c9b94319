// Package consensus implements C8: a Raft-style consensus node providing
// leader election, log replication, and snapshot installation over the
// peer set reached through internal/rpctransport. Every mutation to
// fleet state is proposed here before internal/datasync applies it, so
// every node in the cluster converges on the same command sequence.
package consensus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/falconmind/clustercenter/api/raftpb"
	"github.com/falconmind/clustercenter/internal/repository"
	"github.com/falconmind/clustercenter/internal/rpctransport"
	"github.com/falconmind/clustercenter/pkg/clock"
	"github.com/falconmind/clustercenter/pkg/events"
	"github.com/falconmind/clustercenter/pkg/models"
	"go.uber.org/zap"
)

// State is one of the three Raft roles.
type State string

const (
	Follower  State = "FOLLOWER"
	Candidate State = "CANDIDATE"
	Leader    State = "LEADER"
)

const (
	tickInterval  = 50 * time.Millisecond
	rpcTimeout    = 2 * time.Second
	defaultHBTime = 500 * time.Millisecond
)

// ApplyFunc is invoked, in log order, for every committed entry. It is
// the C10 data-sync layer's hook into the replicated log.
type ApplyFunc func(ctx context.Context, command []byte)

// ErrNotLeader is returned by Propose when this node cannot accept writes.
type ErrNotLeader struct {
	LeaderID string
}

func (e *ErrNotLeader) Error() string {
	if e.LeaderID == "" {
		return "consensus: not leader, no known leader"
	}
	return "consensus: not leader, current leader is " + e.LeaderID
}

// Config tunes one node's timing and peer set.
type Config struct {
	NodeID             string
	Peers              []string // peer node ids, used as rpctransport peer addresses
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
	SnapshotThreshold  int
}

// Node is one Raft participant.
type Node struct {
	cfg       Config
	transport rpctransport.Transport
	repo      *repository.Repository
	bus       *events.Bus
	clock     *clock.Clock
	logger    *zap.Logger
	apply     ApplyFunc

	mu          sync.Mutex
	state       State
	currentTerm uint64
	votedFor    string
	log         []*models.LogEntry // entries after the snapshot prefix, Index strictly increasing

	commitIndex uint64
	lastApplied uint64

	snapshotLastIndex uint64
	snapshotLastTerm  uint64

	leaderID         string
	electionDeadline time.Time
	lastHeartbeatAt  time.Time

	nextIndex  map[string]uint64
	matchIndex map[string]uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Node in the FOLLOWER state. Call Start to begin the
// election/heartbeat loop.
func New(cfg Config, transport rpctransport.Transport, repo *repository.Repository, bus *events.Bus, clk *clock.Clock, logger *zap.Logger, apply ApplyFunc) *Node {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultHBTime
	}
	if cfg.ElectionTimeoutMin == 0 {
		cfg.ElectionTimeoutMin = 1500 * time.Millisecond
	}
	if cfg.ElectionTimeoutMax == 0 {
		cfg.ElectionTimeoutMax = 3000 * time.Millisecond
	}
	return &Node{
		cfg:       cfg,
		transport: transport,
		repo:      repo,
		bus:       bus,
		clock:     clk,
		logger:    logger,
		apply:     apply,
		state:     Follower,
		stopCh:    make(chan struct{}),
	}
}

// Start recovers persisted state and begins the background tick loop.
func (n *Node) Start(ctx context.Context) error {
	persisted, err := n.repo.GetRaftState(ctx, n.cfg.NodeID)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.currentTerm = persisted.CurrentTerm
	n.votedFor = persisted.VotedFor
	n.log = persisted.Log
	n.resetElectionDeadlineLocked()
	n.mu.Unlock()

	n.wg.Add(1)
	go n.tickLoop(ctx)
	return nil
}

// Stop halts the background loop.
func (n *Node) Stop() {
	close(n.stopCh)
	n.wg.Wait()
}

func (n *Node) tickLoop(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.tick(ctx)
		}
	}
}

func (n *Node) tick(ctx context.Context) {
	n.mu.Lock()
	state := n.state
	now := n.clock.Now()
	electionDue := !now.Before(n.electionDeadline)
	hbDue := now.Sub(n.lastHeartbeatAt) >= n.cfg.HeartbeatInterval
	n.mu.Unlock()

	switch state {
	case Follower, Candidate:
		if electionDue {
			n.startElection(ctx)
		}
	case Leader:
		if hbDue {
			n.replicateToAll(ctx)
		}
	}
}

func (n *Node) resetElectionDeadlineLocked() {
	timeout := n.clock.JitterRange(n.cfg.ElectionTimeoutMin, n.cfg.ElectionTimeoutMax)
	n.electionDeadline = n.clock.Now().Add(timeout)
}

func (n *Node) persistLocked(ctx context.Context) {
	state := &repository.RaftPersistentState{CurrentTerm: n.currentTerm, VotedFor: n.votedFor, Log: n.log}
	if err := n.repo.PutRaftState(ctx, n.cfg.NodeID, state); err != nil {
		n.logger.Error("failed to persist raft state", zap.Error(err))
	}
}

// lastLogIndexTermLocked returns the index/term of the last entry,
// accounting for a truncated snapshot prefix.
func (n *Node) lastLogIndexTermLocked() (uint64, uint64) {
	if len(n.log) == 0 {
		return n.snapshotLastIndex, n.snapshotLastTerm
	}
	last := n.log[len(n.log)-1]
	return last.Index, last.Term
}

func (n *Node) entryAtLocked(index uint64) (*models.LogEntry, bool) {
	for _, e := range n.log {
		if e.Index == index {
			return e, true
		}
	}
	return nil, false
}

func (n *Node) logicalLengthLocked() uint64 {
	if len(n.log) == 0 {
		return n.snapshotLastIndex
	}
	return n.log[len(n.log)-1].Index
}

func (n *Node) startElection(ctx context.Context) {
	n.mu.Lock()
	n.state = Candidate
	n.currentTerm++
	n.votedFor = n.cfg.NodeID
	term := n.currentTerm
	n.resetElectionDeadlineLocked()
	n.persistLocked(ctx)
	lastLogIndex, lastLogTerm := n.lastLogIndexTermLocked()
	peers := append([]string(nil), n.cfg.Peers...)
	n.mu.Unlock()

	n.logger.Info("starting election", zap.String("node", n.cfg.NodeID), zap.Uint64("term", term))

	if len(peers) == 0 {
		n.becomeLeader(ctx, term)
		return
	}

	votes := 1 // self
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, peer := range peers {
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			rctx, cancel := context.WithTimeout(ctx, rpcTimeout)
			defer cancel()
			resp, err := n.transport.RequestVote(rctx, peer, &raftpb.RequestVoteRequest{
				Term:         term,
				CandidateID:  n.cfg.NodeID,
				LastLogIndex: lastLogIndex,
				LastLogTerm:  lastLogTerm,
			})
			if err != nil {
				return
			}
			if resp.Term > term {
				n.stepDown(ctx, resp.Term)
				return
			}
			if resp.VoteGranted {
				mu.Lock()
				votes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	majority := len(peers)/2 + 1
	n.mu.Lock()
	stillCandidate := n.state == Candidate && n.currentTerm == term
	n.mu.Unlock()
	if stillCandidate && votes >= majority {
		n.becomeLeader(ctx, term)
	}
}

func (n *Node) becomeLeader(ctx context.Context, term uint64) {
	n.mu.Lock()
	if n.currentTerm != term || n.state == Leader {
		n.mu.Unlock()
		return
	}
	n.state = Leader
	n.leaderID = n.cfg.NodeID
	nextIdx := n.logicalLengthLocked() + 1
	n.nextIndex = make(map[string]uint64, len(n.cfg.Peers))
	n.matchIndex = make(map[string]uint64, len(n.cfg.Peers))
	for _, p := range n.cfg.Peers {
		n.nextIndex[p] = nextIdx
		n.matchIndex[p] = 0
	}
	n.lastHeartbeatAt = time.Time{}
	n.mu.Unlock()

	n.logger.Info("elected leader", zap.String("node", n.cfg.NodeID), zap.Uint64("term", term))
	n.publish(ctx, events.EventConsensusLeaderElected, map[string]interface{}{"node_id": n.cfg.NodeID, "term": term})
	n.replicateToAll(ctx)
}

func (n *Node) stepDown(ctx context.Context, term uint64) {
	n.mu.Lock()
	if term <= n.currentTerm && n.state != Candidate {
		n.mu.Unlock()
		return
	}
	n.currentTerm = term
	n.votedFor = ""
	n.state = Follower
	n.resetElectionDeadlineLocked()
	n.persistLocked(ctx)
	n.mu.Unlock()
	n.publish(ctx, events.EventConsensusTermChanged, map[string]interface{}{"node_id": n.cfg.NodeID, "term": term})
}

func (n *Node) replicateToAll(ctx context.Context) {
	n.mu.Lock()
	n.lastHeartbeatAt = n.clock.Now()
	peers := append([]string(nil), n.cfg.Peers...)
	n.mu.Unlock()

	var wg sync.WaitGroup
	for _, peer := range peers {
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.replicateToPeer(ctx, peer)
		}()
	}
	wg.Wait()
	n.updateCommitIndex(ctx)
}

func (n *Node) replicateToPeer(ctx context.Context, peer string) {
	n.mu.Lock()
	if n.state != Leader {
		n.mu.Unlock()
		return
	}
	term := n.currentTerm
	next := n.nextIndex[peer]
	var prevIndex, prevTerm uint64
	if next > 1 {
		if entry, ok := n.entryAtLocked(next - 1); ok {
			prevIndex, prevTerm = entry.Index, entry.Term
		} else if next-1 == n.snapshotLastIndex {
			prevIndex, prevTerm = n.snapshotLastIndex, n.snapshotLastTerm
		}
	}
	var entries []*raftpb.LogEntry
	for _, e := range n.log {
		if e.Index >= next {
			entries = append(entries, &raftpb.LogEntry{
				Term: e.Term, Index: e.Index, Command: e.Command,
				TimestampUnixNano: e.Timestamp.UnixNano(),
			})
		}
	}
	commit := n.commitIndex
	n.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	resp, err := n.transport.AppendEntries(rctx, peer, &raftpb.AppendEntriesRequest{
		Term: term, LeaderID: n.cfg.NodeID, PrevLogIndex: prevIndex, PrevLogTerm: prevTerm,
		Entries: entries, LeaderCommit: commit,
	})
	if err != nil {
		n.logger.Debug("append entries failed", zap.String("peer", peer), zap.Error(err))
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if resp.Term > n.currentTerm {
		n.mu.Unlock()
		n.stepDown(ctx, resp.Term)
		n.mu.Lock()
		return
	}
	if n.state != Leader || n.currentTerm != term {
		return
	}
	if resp.Success {
		if len(entries) > 0 {
			n.matchIndex[peer] = entries[len(entries)-1].Index
			n.nextIndex[peer] = n.matchIndex[peer] + 1
		}
	} else {
		if resp.ConflictIndex > 0 {
			n.nextIndex[peer] = resp.ConflictIndex
		} else if n.nextIndex[peer] > 1 {
			n.nextIndex[peer]--
		}
	}
}

func (n *Node) updateCommitIndex(ctx context.Context) {
	n.mu.Lock()
	if n.state != Leader {
		n.mu.Unlock()
		return
	}
	matches := make([]uint64, 0, len(n.matchIndex)+1)
	matches = append(matches, n.logicalLengthLocked()) // leader's own match
	for _, m := range n.matchIndex {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })
	majorityIdx := len(matches) / 2
	candidate := matches[majorityIdx]

	if candidate > n.commitIndex {
		if entry, ok := n.entryAtLocked(candidate); ok && entry.Term == n.currentTerm {
			n.commitIndex = candidate
			n.applyCommittedLocked(ctx)
		}
	}
	n.mu.Unlock()
}

func (n *Node) applyCommittedLocked(ctx context.Context) {
	for n.lastApplied < n.commitIndex {
		n.lastApplied++
		if entry, ok := n.entryAtLocked(n.lastApplied); ok {
			cmd := entry.Command
			go n.apply(ctx, cmd)
		}
	}
}

func (n *Node) publish(ctx context.Context, eventType events.EventType, payload map[string]interface{}) {
	if n.bus == nil {
		return
	}
	_ = n.bus.Publish(ctx, events.NewEvent(eventType, n.cfg.NodeID, payload))
}

// Propose appends a command to the log if this node is the leader,
// returning the assigned log index. Replication to followers starts
// immediately in the background and continues on every heartbeat tick.
func (n *Node) Propose(ctx context.Context, command []byte) (uint64, error) {
	n.mu.Lock()
	if n.state != Leader {
		leader := n.leaderID
		n.mu.Unlock()
		return 0, &ErrNotLeader{LeaderID: leader}
	}
	index := n.logicalLengthLocked() + 1
	entry := &models.LogEntry{Term: n.currentTerm, Index: index, Command: command, Timestamp: n.clock.Now()}
	n.log = append(n.log, entry)
	n.persistLocked(ctx)
	n.mu.Unlock()

	go n.replicateToAll(ctx)
	return index, nil
}

// IsLeader reports whether this node currently believes itself to be leader.
func (n *Node) IsLeader() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state == Leader
}

// Status is a read-only snapshot of node state, for admin/debug endpoints.
type Status struct {
	NodeID      string
	State       State
	Term        uint64
	LeaderID    string
	CommitIndex uint64
	LastApplied uint64
	LogLength   uint64
}

func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Status{
		NodeID:      n.cfg.NodeID,
		State:       n.state,
		Term:        n.currentTerm,
		LeaderID:    n.leaderID,
		CommitIndex: n.commitIndex,
		LastApplied: n.lastApplied,
		LogLength:   n.logicalLengthLocked(),
	}
}

// RequestVote implements raftpb.RaftServer.
func (n *Node) RequestVote(ctx context.Context, req *raftpb.RequestVoteRequest) (*raftpb.RequestVoteResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Term > n.currentTerm {
		n.currentTerm = req.Term
		n.votedFor = ""
		n.state = Follower
		n.persistLocked(ctx)
	}
	if req.Term < n.currentTerm {
		return &raftpb.RequestVoteResponse{Term: n.currentTerm, VoteGranted: false}, nil
	}

	lastIndex, lastTerm := n.lastLogIndexTermLocked()
	upToDate := req.LastLogTerm > lastTerm || (req.LastLogTerm == lastTerm && req.LastLogIndex >= lastIndex)
	grant := (n.votedFor == "" || n.votedFor == req.CandidateID) && upToDate
	if grant {
		n.votedFor = req.CandidateID
		n.persistLocked(ctx)
		n.resetElectionDeadlineLocked()
	}
	return &raftpb.RequestVoteResponse{Term: n.currentTerm, VoteGranted: grant}, nil
}

// AppendEntries implements raftpb.RaftServer.
func (n *Node) AppendEntries(ctx context.Context, req *raftpb.AppendEntriesRequest) (*raftpb.AppendEntriesResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Term < n.currentTerm {
		return &raftpb.AppendEntriesResponse{Term: n.currentTerm, Success: false}, nil
	}
	if req.Term > n.currentTerm {
		n.currentTerm = req.Term
		n.votedFor = ""
	}
	n.state = Follower
	n.leaderID = req.LeaderID
	n.resetElectionDeadlineLocked()
	n.persistLocked(ctx)

	if req.PrevLogIndex > 0 {
		entry, ok := n.entryAtLocked(req.PrevLogIndex)
		switch {
		case !ok && req.PrevLogIndex == n.snapshotLastIndex:
			// prev entry covered by snapshot, term matches by definition
		case !ok:
			return &raftpb.AppendEntriesResponse{Term: n.currentTerm, Success: false, ConflictIndex: n.logicalLengthLocked() + 1}, nil
		case entry.Term != req.PrevLogTerm:
			conflictIndex := n.firstIndexOfTermLocked(entry.Term)
			n.truncateFromLocked(req.PrevLogIndex)
			n.persistLocked(ctx)
			return &raftpb.AppendEntriesResponse{Term: n.currentTerm, Success: false, ConflictIndex: conflictIndex}, nil
		}
	}

	for _, e := range req.Entries {
		existing, ok := n.entryAtLocked(e.Index)
		if ok && existing.Term == e.Term {
			continue
		}
		if ok {
			n.truncateFromLocked(e.Index)
		}
		n.log = append(n.log, &models.LogEntry{
			Term: e.Term, Index: e.Index, Command: e.Command,
			Timestamp: time.Unix(0, e.TimestampUnixNano),
		})
	}
	n.persistLocked(ctx)

	if req.LeaderCommit > n.commitIndex {
		logical := n.logicalLengthLocked()
		if req.LeaderCommit < logical {
			n.commitIndex = req.LeaderCommit
		} else {
			n.commitIndex = logical
		}
		n.applyCommittedLocked(ctx)
	}

	return &raftpb.AppendEntriesResponse{Term: n.currentTerm, Success: true}, nil
}

func (n *Node) firstIndexOfTermLocked(term uint64) uint64 {
	for _, e := range n.log {
		if e.Term == term {
			return e.Index
		}
	}
	return n.snapshotLastIndex + 1
}

func (n *Node) truncateFromLocked(fromIndex uint64) {
	kept := n.log[:0]
	for _, e := range n.log {
		if e.Index < fromIndex {
			kept = append(kept, e)
		}
	}
	n.log = kept
}

// InstallSnapshot implements raftpb.RaftServer.
func (n *Node) InstallSnapshot(ctx context.Context, req *raftpb.InstallSnapshotRequest) (*raftpb.InstallSnapshotResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Term < n.currentTerm {
		return &raftpb.InstallSnapshotResponse{Term: n.currentTerm}, nil
	}
	if req.Term > n.currentTerm {
		n.currentTerm = req.Term
		n.votedFor = ""
		n.state = Follower
	}
	n.resetElectionDeadlineLocked()

	newer := req.LastIncludedTerm > n.snapshotLastTerm ||
		(req.LastIncludedTerm == n.snapshotLastTerm && req.LastIncludedIndex > n.snapshotLastIndex)
	if newer {
		n.snapshotLastIndex = req.LastIncludedIndex
		n.snapshotLastTerm = req.LastIncludedTerm
		kept := n.log[:0]
		for _, e := range n.log {
			if e.Index > req.LastIncludedIndex {
				kept = append(kept, e)
			}
		}
		n.log = kept
		if n.lastApplied < req.LastIncludedIndex {
			n.lastApplied = req.LastIncludedIndex
		}
		if n.commitIndex < req.LastIncludedIndex {
			n.commitIndex = req.LastIncludedIndex
		}
		n.persistLocked(ctx)
		go n.apply(ctx, req.Data)
	}

	return &raftpb.InstallSnapshotResponse{Term: n.currentTerm}, nil
}

// Snapshot discards the in-memory log prefix up through lastIncludedIndex
// once the state machine has serialised its own state, records
// lastIncludedIndex/Term, and persists the result. Nothing in this module
// calls it; the caller decides when, by comparing LogLength with
// SnapshotThreshold.
func (n *Node) Snapshot(ctx context.Context, lastIncludedIndex, lastIncludedTerm uint64, state []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if lastIncludedIndex <= n.snapshotLastIndex {
		return
	}
	n.snapshotLastIndex = lastIncludedIndex
	n.snapshotLastTerm = lastIncludedTerm
	kept := n.log[:0]
	for _, e := range n.log {
		if e.Index > lastIncludedIndex {
			kept = append(kept, e)
		}
	}
	n.log = kept
	n.persistLocked(ctx)
	_ = state // the serialized state machine snapshot itself is stored by the caller, not replayed here
}

// LogLength reports the number of entries held in the in-memory log, i.e.
// those after the snapshot prefix; a caller compares it with
// SnapshotThreshold to decide when to trigger Snapshot.
func (n *Node) LogLength() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.log)
}
