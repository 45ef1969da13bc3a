package monitoring

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ringkv/cluster"
	"ringkv/storage"
)

type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

type ComponentHealth struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

type HealthChecker struct {
	store       *storage.TieredStore
	ring        *cluster.Ring
	coordinator *cluster.Coordinator
}

func NewHealthChecker(store *storage.TieredStore, ring *cluster.Ring, coordinator *cluster.Coordinator) *HealthChecker {
	return &HealthChecker{
		store:       store,
		ring:        ring,
		coordinator: coordinator,
	}
}

func (h *HealthChecker) Check() HealthStatus {
	status := HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}

	status.Components["storage"] = ComponentHealth{
		Status:  "healthy",
		Details: fmt.Sprintf("%d primary keys, %d replica tiers", h.store.PrimarySize(), h.store.ReplicaLevels()),
	}

	if h.ring.Len() == 0 {
		status.Components["ring"] = ComponentHealth{
			Status:  "unhealthy",
			Details: "no nodes on the ring",
		}
		status.Status = "degraded"
	} else {
		status.Components["ring"] = ComponentHealth{
			Status:  "healthy",
			Details: fmt.Sprintf("%d nodes", h.ring.Len()),
		}
	}

	if h.coordinator.Rebalancing() {
		status.Components["coordinator"] = ComponentHealth{
			Status:  "rebalancing",
			Details: "membership change in progress",
		}
	} else {
		status.Components["coordinator"] = ComponentHealth{Status: "healthy"}
	}

	return status
}

func (h *HealthChecker) Handler(w http.ResponseWriter, r *http.Request) {
	status := h.Check()

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
