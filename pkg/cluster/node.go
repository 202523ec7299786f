package cluster

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/scrappyAI/toka/pkg/metrics"
)

// watchLeadership reports every leadership transition raft delivers on
// LeaderCh to the health subsystem, so an operator probing /ready can tell
// a node that lost leadership mid-term from one that never started Raft at
// all. The channel closes when the Raft instance shuts down.
func (n *Node) watchLeadership() {
	go func() {
		for isLeader := range n.raft.LeaderCh() {
			if isLeader {
				metrics.UpdateComponent("raft", true, fmt.Sprintf("%s became leader", n.nodeID))
			} else {
				metrics.UpdateComponent("raft", true, fmt.Sprintf("%s is now a follower", n.nodeID))
			}
		}
	}()
}

// Raft timeout tuning: the hashicorp/raft defaults are tuned for WAN
// deployments, and these values keep LAN/edge failover in the
// single-digit-seconds range.
const (
	heartbeatTimeout  = 500 * time.Millisecond
	electionTimeout   = 500 * time.Millisecond
	commitTimeout     = 50 * time.Millisecond
	leaderLeaseTimeout = 250 * time.Millisecond
	raftApplyTimeout  = 5 * time.Second
	raftJoinTimeout   = 10 * time.Second
)

// Node wraps hashicorp/raft with the bootstrap/join/membership surface
// the kernel's Raft layer needs: Bootstrap/Join/AddVoter/RemoveServer/
// GetClusterServers/IsLeader/LeaderAddr/GetRaftStats.
type Node struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft *raft.Raft
	fsm  *FSM
}

// NewNode creates a Node that is not yet part of any cluster; call
// Bootstrap or Join to start Raft.
func NewNode(nodeID, bindAddr, dataDir string, fsm *FSM) (*Node, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("cluster: create data directory: %w", err)
	}
	return &Node{nodeID: nodeID, bindAddr: bindAddr, dataDir: dataDir, fsm: fsm}, nil
}

func (n *Node) raftConfig() *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(n.nodeID)
	config.HeartbeatTimeout = heartbeatTimeout
	config.ElectionTimeout = electionTimeout
	config.CommitTimeout = commitTimeout
	config.LeaderLeaseTimeout = leaderLeaseTimeout
	return config
}

func (n *Node) newRaft() (*raft.Raft, error) {
	addr, err := net.ResolveTCPAddr("tcp", n.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("cluster: resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(n.bindAddr, addr, 3, raftJoinTimeout, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("cluster: create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(n.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("cluster: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("cluster: create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("cluster: create stable store: %w", err)
	}

	r, err := raft.NewRaft(n.raftConfig(), n.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("cluster: create raft: %w", err)
	}
	return r, nil
}

// Bootstrap initializes a new single-node cluster with this node as the
// only voter.
func (n *Node) Bootstrap() error {
	r, err := n.newRaft()
	if err != nil {
		metrics.RegisterComponent("raft", false, err.Error())
		return err
	}
	n.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(n.nodeID), Address: raft.ServerAddress(n.bindAddr)},
		},
	}
	future := n.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		metrics.RegisterComponent("raft", false, err.Error())
		return fmt.Errorf("cluster: bootstrap: %w", err)
	}

	metrics.RegisterComponent("raft", true, "bootstrapped")
	n.watchLeadership()
	return nil
}

// Join starts this node's Raft instance so it can be added as a voter by
// the leader via AddVoter; it does not itself contact the leader. Reaching
// the leader and invoking AddVoter is a network-protocol concern left to
// the embedder's own transport layer.
func (n *Node) Join() error {
	r, err := n.newRaft()
	if err != nil {
		metrics.RegisterComponent("raft", false, err.Error())
		return err
	}
	n.raft = r

	metrics.RegisterComponent("raft", true, "joined, awaiting AddVoter")
	n.watchLeadership()
	return nil
}

// AddVoter adds nodeID at address as a full voting member. Must be
// called on the current leader.
func (n *Node) AddVoter(nodeID, address string) error {
	if n.raft == nil {
		return fmt.Errorf("cluster: raft not initialized")
	}
	if !n.IsLeader() {
		return fmt.Errorf("cluster: not the leader, current leader: %s", n.LeaderAddr())
	}
	future := n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, raftJoinTimeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("cluster: add voter: %w", err)
	}
	return nil
}

// RemoveServer removes nodeID from the cluster configuration. Must be
// called on the current leader.
func (n *Node) RemoveServer(nodeID string) error {
	if n.raft == nil {
		return fmt.Errorf("cluster: raft not initialized")
	}
	if !n.IsLeader() {
		return fmt.Errorf("cluster: not the leader")
	}
	future := n.raft.RemoveServer(raft.ServerID(nodeID), 0, raftJoinTimeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("cluster: remove server: %w", err)
	}
	return nil
}

// GetClusterServers reports the current cluster membership.
func (n *Node) GetClusterServers() ([]raft.Server, error) {
	if n.raft == nil {
		return nil, fmt.Errorf("cluster: raft not initialized")
	}
	future := n.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("cluster: get configuration: %w", err)
	}
	return future.Configuration().Servers, nil
}

// IsLeader reports whether this node currently holds Raft leadership.
func (n *Node) IsLeader() bool {
	return n.raft != nil && n.raft.State() == raft.Leader
}

// LeaderAddr returns the address this node currently believes is leader,
// or "" if unknown.
func (n *Node) LeaderAddr() string {
	if n.raft == nil {
		return ""
	}
	return string(n.raft.Leader())
}

// GetRaftStats reports a snapshot of Raft state for introspection and
// metrics.
func (n *Node) GetRaftStats() map[string]interface{} {
	if n.raft == nil {
		return nil
	}
	stats := map[string]interface{}{
		"state":          n.raft.State().String(),
		"last_log_index": n.raft.LastIndex(),
		"applied_index":  n.raft.AppliedIndex(),
		"leader":         string(n.raft.Leader()),
	}
	var peers uint64
	if future := n.raft.GetConfiguration(); future.Error() == nil {
		peers = uint64(len(future.Configuration().Servers))
	}
	stats["peers"] = peers

	metrics.RaftLogIndex.Set(float64(n.raft.LastIndex()))
	metrics.RaftAppliedIndex.Set(float64(n.raft.AppliedIndex()))
	metrics.RaftPeers.Set(float64(peers))
	if n.IsLeader() {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}
	return stats
}

// Propose submits cmd to the Raft log and blocks until it is applied,
// returning the ApplyResult the FSM produced.
func (n *Node) Propose(cmd Command) (ApplyResult, error) {
	if n.raft == nil {
		return ApplyResult{}, fmt.Errorf("cluster: raft not initialized")
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	data, err := encodeCommand(cmd)
	if err != nil {
		return ApplyResult{}, err
	}

	future := n.raft.Apply(data, raftApplyTimeout)
	if err := future.Error(); err != nil {
		metrics.UpdateComponent("raft", false, err.Error())
		return ApplyResult{}, fmt.Errorf("cluster: apply: %w", err)
	}

	result, ok := future.Response().(ApplyResult)
	if !ok {
		err := fmt.Errorf("cluster: unexpected apply response type %T", future.Response())
		metrics.UpdateComponent("raft", false, err.Error())
		return ApplyResult{}, err
	}
	metrics.UpdateComponent("raft", true, "")
	return result, result.Err
}

// NodeID returns this node's Raft server ID.
func (n *Node) NodeID() string { return n.nodeID }

// Shutdown cleanly stops the local Raft instance.
func (n *Node) Shutdown() error {
	if n.raft == nil {
		return nil
	}
	return n.raft.Shutdown().Error()
}
