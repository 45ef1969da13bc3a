package cluster

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"ringkv/replication"
	"ringkv/storage"
)

const (
	msgRebalancing      = "System is rebalancing, please try again later"
	msgNoNodes          = "No nodes available"
	msgKeyNotFound      = "Key not found"
	msgUnknownOperation = "Unknown operation"
)

// Coordinator drives the full protocol: it routes client requests through
// the ring, fans writes out to replica tiers, and reshapes data placement on
// membership changes. It is the only writer that moves bulk data between
// tiers, and the sole owner of the rebalance gate.
type Coordinator struct {
	self  *Node
	ring  *Ring
	store *storage.TieredStore
	peers replication.PeerClient
	rf    int

	// rebalancing is an advisory gate: client writes and deletes bounce
	// with a transient error while membership work is in flight.
	rebalancing atomic.Bool

	rebalances atomic.Int64
}

func NewCoordinator(self *Node, ring *Ring, store *storage.TieredStore, peers replication.PeerClient, replicationFactor int) *Coordinator {
	if replicationFactor < 1 {
		replicationFactor = 1
	}
	return &Coordinator{
		self:  self,
		ring:  ring,
		store: store,
		peers: peers,
		rf:    replicationFactor,
	}
}

func (c *Coordinator) Self() *Node {
	return c.self
}

// Rebalancing reports whether membership work currently holds the gate.
func (c *Coordinator) Rebalancing() bool {
	return c.rebalancing.Load()
}

// RebalanceCount reports how many rebalance operations completed locally.
func (c *Coordinator) RebalanceCount() int64 {
	return c.rebalances.Load()
}

// Put stores a value at the key's owner and propagates it to the next R-1
// distinct successors at replica levels 1..R-1.
func (c *Coordinator) Put(key, value string) replication.DataResponse {
	if c.rebalancing.Load() {
		return replication.DataResponse{Found: false, Message: msgRebalancing}
	}

	owner := c.ring.OwnerOf(key)
	if owner == nil {
		return replication.DataResponse{Found: false, Message: msgNoNodes}
	}
	if owner.ID != c.self.ID {
		// Single hop: the owner repeats the lookup and serves locally.
		return c.peers.Put(owner.Addr(), key, value)
	}

	c.store.SetPrimary(key, value)
	c.walkSuccessors(func(n *Node, level int) {
		c.peers.Replicate(n.Addr(), key, value, level)
	})
	return replication.DataResponse{Value: value, Found: true}
}

// Get serves a read. The owner answers from its primary, falling back to
// its replica tiers; a non-owner forwards, and on a remote miss probes the
// owner's successors for a surviving replica copy.
func (c *Coordinator) Get(key string) replication.DataResponse {
	owner := c.ring.OwnerOf(key)
	if owner == nil {
		return replication.DataResponse{Found: false, Message: msgNoNodes}
	}

	if owner.ID == c.self.ID {
		return c.LocalGet(key)
	}

	resp := c.peers.Get(owner.Addr(), key)
	if resp.Found {
		return resp
	}

	// The owner may have just inherited the range without its data yet;
	// its successors can still hold replica copies.
	cursor := c.ring.Successor(owner.ID)
	for level := 1; cursor != nil && cursor.ID != owner.ID && level < c.rf; level++ {
		if cursor.ID == c.self.ID {
			if local := c.LocalGet(key); local.Found {
				return local
			}
		} else if probe := c.peers.GetLocal(cursor.Addr(), key); probe.Found {
			return probe
		}
		cursor = c.ring.Successor(cursor.ID)
	}

	return replication.DataResponse{Found: false, Message: msgKeyNotFound}
}

// LocalGet answers from this node's own tiers only: primary first, then
// replica levels in order.
func (c *Coordinator) LocalGet(key string) replication.DataResponse {
	if v, ok := c.store.GetPrimary(key); ok {
		return replication.DataResponse{Value: v, Found: true}
	}
	for level := 1; level < c.rf; level++ {
		if v, ok := c.store.GetReplica(level, key); ok {
			return replication.DataResponse{Value: v, Found: true}
		}
	}
	return replication.DataResponse{Found: false, Message: msgKeyNotFound}
}

// Delete removes a key from the owner's primary and sweeps the replica
// copies off the successors.
func (c *Coordinator) Delete(key string) replication.DataResponse {
	if c.rebalancing.Load() {
		return replication.DataResponse{Found: false, Message: msgRebalancing}
	}

	owner := c.ring.OwnerOf(key)
	if owner == nil {
		return replication.DataResponse{Found: false, Message: msgNoNodes}
	}
	if owner.ID != c.self.ID {
		return c.peers.Delete(owner.Addr(), key)
	}

	if !c.store.DeletePrimary(key) {
		return replication.DataResponse{Found: false, Message: msgKeyNotFound}
	}
	c.walkSuccessors(func(n *Node, level int) {
		c.peers.DeleteReplica(n.Addr(), key, level)
	})
	return replication.DataResponse{Found: true}
}

// walkSuccessors visits up to R-1 distinct successors, advancing from the
// last visited node so each hop lands one position further around the ring.
func (c *Coordinator) walkSuccessors(visit func(n *Node, level int)) {
	cursor := c.ring.Successor(c.self.ID)
	for level := 1; cursor != nil && cursor.ID != c.self.ID && level < c.rf; level++ {
		visit(cursor, level)
		cursor = c.ring.Successor(cursor.ID)
	}
}

// NodeJoined inserts a newly discovered peer. Data movement for a join is
// pulled by the joining node itself, so nothing moves here. Returns false
// when the gate is contended; the watcher re-emits the event next sweep.
func (c *Coordinator) NodeJoined(n *Node) bool {
	if !c.rebalancing.CompareAndSwap(false, true) {
		logrus.WithField("node", n.ID).Info("rebalance in progress, deferring join")
		return false
	}
	defer c.rebalancing.Store(false)

	if err := c.ring.Add(n); err != nil {
		logrus.WithField("node", n.ID).WithError(err).Error("failed to add node to ring")
		return true
	}
	logrus.WithFields(logrus.Fields{"node": n.ID, "hash": n.Hash}).Info("node joined ring")
	return true
}

// NodeLeft removes a departed peer. When the leaver was this node's
// immediate predecessor, its key range now belongs here: the first replica
// tier is promoted to primary, re-replicated downstream, and replica[1]
// is refilled from the new predecessor.
func (c *Coordinator) NodeLeft(n *Node) bool {
	if !c.rebalancing.CompareAndSwap(false, true) {
		logrus.WithField("node", n.ID).Info("rebalance in progress, deferring leave")
		return false
	}
	defer c.rebalancing.Store(false)

	pred := c.ring.Predecessor(c.self.ID)
	wasPredecessor := pred != nil && pred.Equal(n)
	c.ring.Remove(n)
	logrus.WithFields(logrus.Fields{"node": n.ID, "predecessor": wasPredecessor}).Info("node left ring")

	if wasPredecessor {
		c.inheritFromPredecessor()
		c.rebalances.Add(1)
	}
	return true
}

// inheritFromPredecessor runs after the immediate predecessor vanished:
// its keys live in this node's replica[1] and become primary here.
func (c *Coordinator) inheritFromPredecessor() {
	promoted := c.store.PromoteReplicaToPrimary(1)
	if len(promoted) > 0 {
		c.walkSuccessors(func(n *Node, level int) {
			c.peers.ReplicateBulk(n.Addr(), promoted, level)
		})
		logrus.WithField("keys", len(promoted)).Info("promoted predecessor keys to primary")
	}

	// Refill replica[1] with the new predecessor's primary so the chain
	// invariant holds again.
	pred := c.ring.Predecessor(c.self.ID)
	if pred == nil || pred.ID == c.self.ID {
		return
	}
	snapshot, err := c.peers.FetchPrimary(pred.Addr())
	if err != nil {
		logrus.WithField("predecessor", pred.ID).WithError(err).Warn("failed to fetch predecessor primary")
		return
	}
	c.store.SetBulkReplica(1, snapshot)
}

// SelfJoined runs once, when this node first appears in its own discovery
// sweep: it takes its place on the ring and pulls its key range from the
// successor. The pull completes before any client write is accepted here,
// because the gate stays held for its whole duration.
func (c *Coordinator) SelfJoined() bool {
	if !c.rebalancing.CompareAndSwap(false, true) {
		logrus.Info("rebalance in progress, deferring self join")
		return false
	}
	defer c.rebalancing.Store(false)

	if err := c.ring.Add(c.self); err != nil {
		logrus.WithError(err).Error("failed to add self to ring")
		return true
	}

	succ := c.ring.Successor(c.self.ID)
	if succ == nil || succ.ID == c.self.ID {
		return true
	}

	var start uint32
	if pred := c.ring.Predecessor(c.self.ID); pred != nil && pred.ID != c.self.ID {
		start = pred.Hash + 1
	}

	req := replication.RebalanceRequest{
		Operation:    replication.OperationAdd,
		NodeID:       c.self.ID,
		StartRange:   start,
		EndRange:     c.self.Hash,
		ReplicaIndex: c.rf - 1,
	}
	resp := c.peers.Rebalance(succ.Addr(), req)
	if !resp.Success {
		logrus.WithFields(logrus.Fields{"successor": succ.ID, "message": resp.Message}).
			Error("rebalance pull from successor failed")
		return true
	}

	c.store.PutAllPrimary(resp.NewNodePrimaryData)
	c.store.SetBulkReplica(1, resp.NewNodeSecondaryData)
	c.rebalances.Add(1)
	logrus.WithFields(logrus.Fields{
		"successor": succ.ID,
		"primary":   len(resp.NewNodePrimaryData),
		"secondary": len(resp.NewNodeSecondaryData),
	}).Info("pulled key range from successor")
	return true
}

// HandleRebalance serves the successor side of a newcomer's pull: the keys
// in the newcomer's range leave this node's primary, the farthest replica
// tier is shed, and the newcomer's primary takes its place at that level.
func (c *Coordinator) HandleRebalance(req replication.RebalanceRequest) replication.RebalanceResponse {
	if req.Operation != replication.OperationAdd {
		return replication.RebalanceResponse{Success: false, Message: msgUnknownOperation}
	}

	if !c.rebalancing.CompareAndSwap(false, true) {
		return replication.RebalanceResponse{Success: false, Message: msgRebalancing}
	}
	defer c.rebalancing.Store(false)

	primary := c.store.ExtractRange(req.StartRange, req.EndRange)
	secondary := c.store.ExtractReplica(req.ReplicaIndex)
	c.store.SetBulkReplica(req.ReplicaIndex, primary)
	c.rebalances.Add(1)

	logrus.WithFields(logrus.Fields{
		"requester": req.NodeID,
		"primary":   len(primary),
		"secondary": len(secondary),
	}).Info("shed key range to joining node")

	return replication.RebalanceResponse{
		NewNodePrimaryData:   primary,
		NewNodeSecondaryData: secondary,
		Success:              true,
	}
}
