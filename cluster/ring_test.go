package cluster

import (
	"fmt"
	"testing"
)

func ringNodes(count int) []*Node {
	nodes := make([]*Node, count)
	for i := range nodes {
		nodes[i] = NewNode(fmt.Sprintf("10.0.0.%d", i+1), 8080)
	}
	return nodes
}

func buildRing(t *testing.T, nodes []*Node) *Ring {
	t.Helper()
	ring := NewRing()
	for _, n := range nodes {
		if err := ring.Add(n); err != nil {
			t.Fatalf("Add(%s) failed: %v", n.ID, err)
		}
	}
	return ring
}

func TestRingAdd(t *testing.T) {
	t.Run("nil node", func(t *testing.T) {
		ring := NewRing()
		if err := ring.Add(nil); err != ErrNilNode {
			t.Errorf("Expected ErrNilNode, got %v", err)
		}
	})

	t.Run("duplicate is a no-op", func(t *testing.T) {
		ring := NewRing()
		n := NewNode("10.0.0.1", 8080)
		ring.Add(n)
		ring.Add(NewNode("10.0.0.1", 8080))
		if ring.Len() != 1 {
			t.Errorf("Expected 1 node after duplicate add, got %d", ring.Len())
		}
	})

	t.Run("hash cached on insert", func(t *testing.T) {
		ring := NewRing()
		n := NewNode("10.0.0.1", 8080)
		ring.Add(n)
		if n.Hash != HashKey(n.ID) {
			t.Errorf("Expected cached hash %d, got %d", HashKey(n.ID), n.Hash)
		}
	})
}

func TestRingRemove(t *testing.T) {
	nodes := ringNodes(3)
	ring := buildRing(t, nodes)

	ring.Remove(nodes[1])
	if ring.Len() != 2 {
		t.Fatalf("Expected 2 nodes after remove, got %d", ring.Len())
	}
	if ring.Contains(nodes[1].ID) {
		t.Error("Removed node still on ring")
	}

	// Removing an absent node is a no-op
	ring.Remove(nodes[1])
	if ring.Len() != 2 {
		t.Errorf("Expected 2 nodes after double remove, got %d", ring.Len())
	}

	ring.Remove(nil)
}

func TestRingDeterminism(t *testing.T) {
	nodes := ringNodes(8)

	forward := buildRing(t, nodes)

	reversed := NewRing()
	for i := len(nodes) - 1; i >= 0; i-- {
		reversed.Add(NewNode(nodes[i].Host, nodes[i].Port))
	}

	a, b := forward.Nodes(), reversed.Nodes()
	if len(a) != len(b) {
		t.Fatalf("Ring sizes differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Errorf("Order differs at %d: %s vs %s", i, a[i].ID, b[i].ID)
		}
	}
}

func TestOwnerOfClosure(t *testing.T) {
	nodes := ringNodes(5)
	ring := buildRing(t, nodes)

	members := make(map[string]bool)
	for _, n := range nodes {
		members[n.ID] = true
	}

	for i := 0; i < 50; i++ {
		owner := ring.OwnerOf(fmt.Sprintf("key-%d", i))
		if owner == nil {
			t.Fatalf("OwnerOf returned nil on a non-empty ring")
		}
		if !members[owner.ID] {
			t.Errorf("Owner %s is not a ring member", owner.ID)
		}
	}
}

func TestOwnerOfNodeID(t *testing.T) {
	nodes := ringNodes(4)
	ring := buildRing(t, nodes)

	// A key hashing exactly onto a node's position is owned by that node.
	for _, n := range nodes {
		owner := ring.OwnerOf(n.ID)
		if owner == nil || owner.ID != n.ID {
			t.Errorf("Expected %s to own its own position, got %v", n.ID, owner)
		}
	}
}

func TestSuccessorPredecessorSymmetry(t *testing.T) {
	for _, size := range []int{2, 3, 7} {
		nodes := ringNodes(size)
		ring := buildRing(t, nodes)

		for _, n := range nodes {
			succ := ring.Successor(n.ID)
			if succ == nil {
				t.Fatalf("Successor(%s) is nil", n.ID)
			}
			if back := ring.Predecessor(succ.ID); back.ID != n.ID {
				t.Errorf("size=%d: predecessor(successor(%s)) = %s", size, n.ID, back.ID)
			}

			pred := ring.Predecessor(n.ID)
			if forward := ring.Successor(pred.ID); forward.ID != n.ID {
				t.Errorf("size=%d: successor(predecessor(%s)) = %s", size, n.ID, forward.ID)
			}
		}
	}
}

func TestSuccessorWalkCoversRing(t *testing.T) {
	nodes := ringNodes(6)
	ring := buildRing(t, nodes)

	start := nodes[0]
	visited := map[string]bool{start.ID: true}
	cursor := ring.Successor(start.ID)
	for cursor.ID != start.ID {
		if visited[cursor.ID] {
			t.Fatalf("Successor walk revisited %s before wrapping", cursor.ID)
		}
		visited[cursor.ID] = true
		cursor = ring.Successor(cursor.ID)
	}

	if len(visited) != len(nodes) {
		t.Errorf("Walk visited %d of %d nodes", len(visited), len(nodes))
	}
}

func TestSingleNodeRing(t *testing.T) {
	n := NewNode("10.0.0.1", 8080)
	ring := NewRing()
	ring.Add(n)

	if succ := ring.Successor(n.ID); succ == nil || succ.ID != n.ID {
		t.Errorf("Expected self as successor in single-node ring, got %v", succ)
	}
	if pred := ring.Predecessor(n.ID); pred == nil || pred.ID != n.ID {
		t.Errorf("Expected self as predecessor in single-node ring, got %v", pred)
	}
	if owner := ring.OwnerOf("anything"); owner == nil || owner.ID != n.ID {
		t.Errorf("Expected single node to own every key, got %v", owner)
	}
}

func TestEmptyRing(t *testing.T) {
	ring := NewRing()

	if ring.OwnerOf("k") != nil {
		t.Error("OwnerOf on empty ring should be nil")
	}
	if ring.Successor("a") != nil {
		t.Error("Successor on empty ring should be nil")
	}
	if ring.Predecessor("a") != nil {
		t.Error("Predecessor on empty ring should be nil")
	}
	if got := ring.Replicas("k", 3); len(got) != 0 {
		t.Errorf("Replicas on empty ring should be empty, got %d", len(got))
	}
	if got := ring.Nodes(); len(got) != 0 {
		t.Errorf("Nodes on empty ring should be empty, got %d", len(got))
	}
}

func TestReplicas(t *testing.T) {
	nodes := ringNodes(5)
	ring := buildRing(t, nodes)

	for _, rf := range []int{1, 3, 5, 8} {
		got := ring.Replicas("some-key", rf)

		want := rf
		if want > len(nodes) {
			want = len(nodes)
		}
		if len(got) != want {
			t.Errorf("rf=%d: expected %d replicas, got %d", rf, want, len(got))
		}

		seen := make(map[string]bool)
		for _, n := range got {
			if seen[n.ID] {
				t.Errorf("rf=%d: duplicate replica %s", rf, n.ID)
			}
			seen[n.ID] = true
		}
	}

	t.Run("first replica is the owner", func(t *testing.T) {
		owner := ring.OwnerOf("some-key")
		got := ring.Replicas("some-key", 3)
		if got[0].ID != owner.ID {
			t.Errorf("Expected replica set to start at owner %s, got %s", owner.ID, got[0].ID)
		}
	})
}
