package cluster

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ringkv/discovery"
)

// DefaultWatchInterval is the fixed delay between membership sweeps.
const DefaultWatchInterval = 10 * time.Second

// MembershipHandler receives the events a sweep produces. The coordinator
// implements it. A false return means the event was declined (rebalance gate
// contended) and must be re-emitted on a later sweep.
type MembershipHandler interface {
	NodeJoined(n *Node) bool
	NodeLeft(n *Node) bool
	SelfJoined() bool
	Rebalancing() bool
}

// Watcher polls the peer registry on a fixed delay, diffs the result against
// its cached view, and dispatches join/leave events. It runs on a single
// goroutine and never overlaps with itself.
type Watcher struct {
	self     *Node
	registry discovery.Registry
	handler  MembershipHandler
	interval time.Duration

	known map[string]*Node
	stop  chan struct{}
	done  chan struct{}
}

func NewWatcher(self *Node, registry discovery.Registry, handler MembershipHandler, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{
		self:     self,
		registry: registry,
		handler:  handler,
		interval: interval,
		known:    make(map[string]*Node),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the watch loop. The delay starts after each completed
// sweep, so slow registries stretch the period rather than piling up ticks.
func (w *Watcher) Start() {
	go func() {
		defer close(w.done)
		for {
			w.tick()
			select {
			case <-w.stop:
				return
			case <-time.After(w.interval):
			}
		}
	}()
}

// Stop terminates the loop and waits for the in-flight sweep to finish.
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.done
}

// tick runs one membership sweep.
func (w *Watcher) tick() {
	if w.handler.Rebalancing() {
		logrus.Debug("skipping membership sweep during rebalance")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	peers, err := w.registry.ListPeers(ctx)
	if err != nil {
		logrus.WithError(err).Warn("peer registry sweep failed")
		return
	}

	live := make(map[string]*Node, len(peers))
	for _, p := range peers {
		n := NewNode(p.Host, p.Port)
		live[n.ID] = n
	}

	selfJoined := false
	for id, n := range live {
		if _, ok := w.known[id]; ok {
			continue
		}
		if id == w.self.ID {
			w.known[id] = n
			selfJoined = true
			continue
		}
		if w.handler.NodeJoined(n) {
			w.known[id] = n
		}
	}

	// One departure per sweep; further simultaneous losses surface on the
	// following ticks.
	for id, n := range w.known {
		if _, ok := live[id]; ok {
			continue
		}
		if w.handler.NodeLeft(n) {
			delete(w.known, id)
		}
		break
	}

	if selfJoined && !w.handler.SelfJoined() {
		delete(w.known, w.self.ID)
	}
}
