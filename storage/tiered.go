package storage

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// HashFunc maps a key to its 32-bit ring position. Injected so the store
// shares the exact hash the ring uses without depending on it.
type HashFunc func(key string) uint32

// tier is one concurrent-safe key/value map.
type tier struct {
	mu   sync.RWMutex
	data map[string]string
}

func newTier() *tier {
	return &tier{data: make(map[string]string)}
}

func (t *tier) set(key, value string) {
	t.mu.Lock()
	t.data[key] = value
	t.mu.Unlock()
}

func (t *tier) get(key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.data[key]
	return v, ok
}

func (t *tier) delete(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.data[key]
	if ok {
		delete(t.data, key)
	}
	return ok
}

func (t *tier) merge(entries map[string]string) {
	t.mu.Lock()
	for k, v := range entries {
		t.data[k] = v
	}
	t.mu.Unlock()
}

func (t *tier) snapshot() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.data))
	for k, v := range t.data {
		out[k] = v
	}
	return out
}

func (t *tier) drain() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.data
	t.data = make(map[string]string)
	return out
}

func (t *tier) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

// TieredStore is the per-node data tier: one primary map plus replicaFactor-1
// replica maps keyed by replica level (1..R-1). Level 0 is reserved for the
// primary and never materialised as a replica tier.
//
// Each tier is individually concurrent-safe. ExtractRange moves keys one at
// a time; ExtractReplica swaps out a whole tier under its lock;
// PromoteReplicaToPrimary drains the replica tier and then merges into the
// primary under a separate lock, so the move is not atomic across both tiers.
// The coordinator rejects client writes while these run.
type TieredStore struct {
	primary  *tier
	replicas []*tier // index i holds level i+1
	hash     HashFunc
}

// NewTieredStore allocates the primary tier and replicationFactor-1 replica
// tiers. The hash function must match the ring's.
func NewTieredStore(replicationFactor int, hash HashFunc) *TieredStore {
	if replicationFactor < 1 {
		replicationFactor = 1
	}
	replicas := make([]*tier, replicationFactor-1)
	for i := range replicas {
		replicas[i] = newTier()
	}
	return &TieredStore{
		primary:  newTier(),
		replicas: replicas,
		hash:     hash,
	}
}

func (s *TieredStore) SetPrimary(key, value string) {
	s.primary.set(key, value)
}

func (s *TieredStore) GetPrimary(key string) (string, bool) {
	return s.primary.get(key)
}

// DeletePrimary removes a key from the primary tier and reports whether it
// existed.
func (s *TieredStore) DeletePrimary(key string) bool {
	return s.primary.delete(key)
}

// PutAllPrimary merges the supplied mapping into the primary tier.
func (s *TieredStore) PutAllPrimary(entries map[string]string) {
	s.primary.merge(entries)
}

// PrimarySnapshot returns a copy of the primary tier.
func (s *TieredStore) PrimarySnapshot() map[string]string {
	return s.primary.snapshot()
}

func (s *TieredStore) PrimarySize() int {
	return s.primary.size()
}

// ReplicaLevels reports how many replica tiers are allocated.
func (s *TieredStore) ReplicaLevels() int {
	return len(s.replicas)
}

// SetReplica writes into the given replica level. Writes to an unallocated
// level are dropped with a warning.
func (s *TieredStore) SetReplica(level int, key, value string) {
	t := s.replicaTier(level)
	if t == nil {
		logrus.WithFields(logrus.Fields{"level": level, "key": key}).
			Warn("dropping write to unallocated replica level")
		return
	}
	t.set(key, value)
}

func (s *TieredStore) GetReplica(level int, key string) (string, bool) {
	t := s.replicaTier(level)
	if t == nil {
		return "", false
	}
	return t.get(key)
}

// DeleteReplica removes a key from the given level; false for unallocated
// levels or absent keys.
func (s *TieredStore) DeleteReplica(level int, key string) bool {
	t := s.replicaTier(level)
	if t == nil {
		return false
	}
	return t.delete(key)
}

// SetBulkReplica merges a mapping into one replica tier in a single call.
func (s *TieredStore) SetBulkReplica(level int, entries map[string]string) {
	t := s.replicaTier(level)
	if t == nil {
		if len(entries) > 0 {
			logrus.WithFields(logrus.Fields{"level": level, "entries": len(entries)}).
				Warn("dropping bulk write to unallocated replica level")
		}
		return
	}
	t.merge(entries)
}

// ReplicaSnapshot returns a copy of one replica tier; nil for unallocated
// levels.
func (s *TieredStore) ReplicaSnapshot(level int) map[string]string {
	t := s.replicaTier(level)
	if t == nil {
		return nil
	}
	return t.snapshot()
}

func (s *TieredStore) ReplicaSize(level int) int {
	t := s.replicaTier(level)
	if t == nil {
		return 0
	}
	return t.size()
}

// ExtractRange removes every primary key whose hash falls in the inclusive
// interval [lo, hi] and returns the removed entries. lo > hi means the range
// wraps: [lo, MaxUint32] plus [0, hi].
func (s *TieredStore) ExtractRange(lo, hi uint32) map[string]string {
	snapshot := s.primary.snapshot()
	extracted := make(map[string]string)
	for k, v := range snapshot {
		if !hashInRange(s.hash(k), lo, hi) {
			continue
		}
		if s.primary.delete(k) {
			extracted[k] = v
		}
	}
	return extracted
}

// ExtractReplica drains an entire replica tier and returns its contents.
// Unallocated levels yield an empty map.
func (s *TieredStore) ExtractReplica(level int) map[string]string {
	t := s.replicaTier(level)
	if t == nil {
		return map[string]string{}
	}
	return t.drain()
}

// PromoteReplicaToPrimary merges one replica tier into the primary tier.
// Keys already present in primary keep their value; the tier is cleared and
// its full snapshot returned.
func (s *TieredStore) PromoteReplicaToPrimary(level int) map[string]string {
	t := s.replicaTier(level)
	if t == nil {
		return map[string]string{}
	}
	promoted := t.drain()
	s.primary.mu.Lock()
	for k, v := range promoted {
		if _, exists := s.primary.data[k]; !exists {
			s.primary.data[k] = v
		}
	}
	s.primary.mu.Unlock()
	return promoted
}

func (s *TieredStore) replicaTier(level int) *tier {
	if level < 1 || level > len(s.replicas) {
		return nil
	}
	return s.replicas[level-1]
}

// hashInRange checks the unsigned interval with wrap-around semantics.
func hashInRange(h, lo, hi uint32) bool {
	if lo <= hi {
		return h >= lo && h <= hi
	}
	return h >= lo || h <= hi
}
