package storage

import (
	"strconv"
	"testing"
)

// numericHash lets tests place keys at exact ring positions: the key "1234"
// hashes to 1234.
func numericHash(key string) uint32 {
	v, _ := strconv.ParseUint(key, 10, 32)
	return uint32(v)
}

func TestPrimaryTier(t *testing.T) {
	store := NewTieredStore(2, numericHash)

	t.Run("set and get", func(t *testing.T) {
		store.SetPrimary("k", "v")
		if v, ok := store.GetPrimary("k"); !ok || v != "v" {
			t.Errorf("Expected (v, true), got (%s, %v)", v, ok)
		}
	})

	t.Run("overwrite wins", func(t *testing.T) {
		store.SetPrimary("k", "v2")
		if v, _ := store.GetPrimary("k"); v != "v2" {
			t.Errorf("Expected v2, got %s", v)
		}
	})

	t.Run("delete reports existence", func(t *testing.T) {
		if !store.DeletePrimary("k") {
			t.Error("Expected delete of existing key to report true")
		}
		if store.DeletePrimary("k") {
			t.Error("Expected delete of absent key to report false")
		}
		if _, ok := store.GetPrimary("k"); ok {
			t.Error("Key still present after delete")
		}
	})

	t.Run("bulk merge", func(t *testing.T) {
		store.PutAllPrimary(map[string]string{"a": "1", "b": "2"})
		if store.PrimarySize() != 2 {
			t.Errorf("Expected 2 keys, got %d", store.PrimarySize())
		}
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		snap := store.PrimarySnapshot()
		snap["c"] = "3"
		if _, ok := store.GetPrimary("c"); ok {
			t.Error("Mutating a snapshot leaked into the store")
		}
	})
}

func TestReplicaTiers(t *testing.T) {
	store := NewTieredStore(3, numericHash)

	if store.ReplicaLevels() != 2 {
		t.Fatalf("Expected 2 replica tiers for R=3, got %d", store.ReplicaLevels())
	}

	t.Run("allocated levels", func(t *testing.T) {
		store.SetReplica(1, "k", "v1")
		store.SetReplica(2, "k", "v2")

		if v, ok := store.GetReplica(1, "k"); !ok || v != "v1" {
			t.Errorf("level 1: expected (v1, true), got (%s, %v)", v, ok)
		}
		if v, ok := store.GetReplica(2, "k"); !ok || v != "v2" {
			t.Errorf("level 2: expected (v2, true), got (%s, %v)", v, ok)
		}
	})

	t.Run("unallocated levels drop writes", func(t *testing.T) {
		store.SetReplica(0, "dropped", "v")
		store.SetReplica(3, "dropped", "v")

		if _, ok := store.GetReplica(0, "dropped"); ok {
			t.Error("Level 0 is reserved and must never hold data")
		}
		if _, ok := store.GetReplica(3, "dropped"); ok {
			t.Error("Level 3 is unallocated for R=3")
		}
		if store.DeleteReplica(0, "dropped") || store.DeleteReplica(3, "dropped") {
			t.Error("Delete on unallocated level must report false")
		}
	})

	t.Run("bulk merge", func(t *testing.T) {
		store.SetBulkReplica(1, map[string]string{"x": "1", "y": "2"})
		if store.ReplicaSize(1) != 3 { // k, x, y
			t.Errorf("Expected 3 entries at level 1, got %d", store.ReplicaSize(1))
		}
		// Dropped silently for unallocated level
		store.SetBulkReplica(9, map[string]string{"z": "1"})
	})

	t.Run("delete", func(t *testing.T) {
		if !store.DeleteReplica(1, "x") {
			t.Error("Expected delete of existing replica entry to report true")
		}
		if store.DeleteReplica(1, "x") {
			t.Error("Expected delete of absent replica entry to report false")
		}
	})
}

func TestSingleNodeStoreHasNoReplicaTiers(t *testing.T) {
	store := NewTieredStore(1, numericHash)
	if store.ReplicaLevels() != 0 {
		t.Fatalf("Expected no replica tiers for R=1, got %d", store.ReplicaLevels())
	}
	store.SetReplica(1, "k", "v")
	if _, ok := store.GetReplica(1, "k"); ok {
		t.Error("R=1 store accepted a replica write")
	}
}

func TestExtractRange(t *testing.T) {
	t.Run("plain interval", func(t *testing.T) {
		store := NewTieredStore(2, numericHash)
		for _, k := range []string{"100", "200", "300", "400"} {
			store.SetPrimary(k, "v"+k)
		}

		before := store.PrimarySnapshot()
		extracted := store.ExtractRange(150, 350)

		if len(extracted) != 2 {
			t.Fatalf("Expected 2 extracted keys, got %d", len(extracted))
		}
		for _, k := range []string{"200", "300"} {
			if _, ok := extracted[k]; !ok {
				t.Errorf("Expected %s in extracted set", k)
			}
			if _, ok := store.GetPrimary(k); ok {
				t.Errorf("Key %s still in primary after extraction", k)
			}
		}

		// Union of remainder and extraction equals the original; the two
		// sets are disjoint.
		remainder := store.PrimarySnapshot()
		if len(remainder)+len(extracted) != len(before) {
			t.Errorf("Extraction lost or duplicated keys: %d + %d != %d",
				len(remainder), len(extracted), len(before))
		}
		for k := range extracted {
			if _, ok := remainder[k]; ok {
				t.Errorf("Key %s present on both sides of the extraction", k)
			}
		}
	})

	t.Run("inclusive bounds", func(t *testing.T) {
		store := NewTieredStore(2, numericHash)
		store.SetPrimary("150", "a")
		store.SetPrimary("350", "b")

		extracted := store.ExtractRange(150, 350)
		if len(extracted) != 2 {
			t.Errorf("Bounds must be inclusive; extracted %d of 2", len(extracted))
		}
	})

	t.Run("wrap-around interval", func(t *testing.T) {
		store := NewTieredStore(2, numericHash)
		store.SetPrimary("4000000000", "high")
		store.SetPrimary("5", "low")
		store.SetPrimary("2000000000", "mid")

		extracted := store.ExtractRange(3000000000, 10)
		if len(extracted) != 2 {
			t.Fatalf("Expected wrap-around to extract 2 keys, got %d", len(extracted))
		}
		if _, ok := extracted["4000000000"]; !ok {
			t.Error("High key missing from wrapped extraction")
		}
		if _, ok := extracted["5"]; !ok {
			t.Error("Low key missing from wrapped extraction")
		}
		if _, ok := store.GetPrimary("2000000000"); !ok {
			t.Error("Key outside the wrapped range was extracted")
		}
	})
}

func TestExtractReplica(t *testing.T) {
	store := NewTieredStore(3, numericHash)
	store.SetReplica(2, "a", "1")
	store.SetReplica(2, "b", "2")

	extracted := store.ExtractReplica(2)
	if len(extracted) != 2 {
		t.Fatalf("Expected 2 drained entries, got %d", len(extracted))
	}
	if store.ReplicaSize(2) != 0 {
		t.Errorf("Tier not empty after drain: %d entries", store.ReplicaSize(2))
	}

	if got := store.ExtractReplica(0); len(got) != 0 {
		t.Errorf("Unallocated level drain should be empty, got %d", len(got))
	}
}

func TestPromoteReplicaToPrimary(t *testing.T) {
	store := NewTieredStore(2, numericHash)
	store.SetPrimary("shared", "primary-wins")
	store.SetReplica(1, "shared", "replica-loses")
	store.SetReplica(1, "fresh", "promoted")

	promoted := store.PromoteReplicaToPrimary(1)
	if len(promoted) != 2 {
		t.Fatalf("Expected full tier snapshot of 2 entries, got %d", len(promoted))
	}

	if v, _ := store.GetPrimary("shared"); v != "primary-wins" {
		t.Errorf("Existing primary value overwritten: got %s", v)
	}
	if v, ok := store.GetPrimary("fresh"); !ok || v != "promoted" {
		t.Errorf("Promoted value missing: got (%s, %v)", v, ok)
	}
	if store.ReplicaSize(1) != 0 {
		t.Errorf("Replica tier not cleared after promotion: %d entries", store.ReplicaSize(1))
	}

	t.Run("idempotent", func(t *testing.T) {
		primaryBefore := store.PrimarySize()
		again := store.PromoteReplicaToPrimary(1)
		if len(again) != 0 {
			t.Errorf("Second promotion should return an empty map, got %d entries", len(again))
		}
		if store.PrimarySize() != primaryBefore {
			t.Error("Second promotion changed the primary tier")
		}
	})
}
