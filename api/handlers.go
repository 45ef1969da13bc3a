package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"ringkv/cluster"
	"ringkv/replication"
	"ringkv/storage"
)

// Handlers exposes the client and inter-node HTTP surface.
type Handlers struct {
	coordinator *cluster.Coordinator
	ring        *cluster.Ring
	store       *storage.TieredStore
}

func NewHandlers(coordinator *cluster.Coordinator, ring *cluster.Ring, store *storage.TieredStore) *Handlers {
	return &Handlers{
		coordinator: coordinator,
		ring:        ring,
		store:       store,
	}
}

// Register wires every route. Fixed paths go first so mux does not swallow
// them into {key}.
func (h *Handlers) Register(router *mux.Router) {
	router.HandleFunc("/api/data/all", h.DumpHandler).Methods("GET")
	router.HandleFunc("/api/data/primary", h.PrimaryHandler).Methods("GET")
	router.HandleFunc("/api/data", h.PutHandler).Methods("POST")
	router.HandleFunc("/api/data/{key}", h.GetHandler).Methods("GET")
	router.HandleFunc("/api/data/{key}", h.DeleteHandler).Methods("DELETE")
	router.HandleFunc("/api/replica/bulk/{level:[0-9]+}", h.BulkReplicaHandler).Methods("POST")
	router.HandleFunc("/api/replica/{level:[0-9]+}", h.ReplicaPutHandler).Methods("POST")
	router.HandleFunc("/api/replica/{key}", h.ReplicaDeleteHandler).Methods("DELETE")
	router.HandleFunc("/api/nodes", h.NodesHandler).Methods("GET")
	router.HandleFunc("/api/rebalance", h.RebalanceHandler).Methods("POST")
	router.HandleFunc("/api/health", h.HealthHandler).Methods("GET")
}

// PutHandler stores a value, routing it to the key's owner.
func (h *Handlers) PutHandler(w http.ResponseWriter, r *http.Request) {
	var kv storage.KeyValue
	if err := json.NewDecoder(r.Body).Decode(&kv); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if kv.Key == "" {
		http.Error(w, "Key is required", http.StatusBadRequest)
		return
	}

	writeJSON(w, h.coordinator.Put(kv.Key, kv.Value))
}

// GetHandler reads a value. A forwarded replica probe carries the local-read
// header and is answered from this node's own tiers without re-routing.
func (h *Handlers) GetHandler(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	if r.Header.Get(replication.LocalReadHeader) != "" {
		writeJSON(w, h.coordinator.LocalGet(key))
		return
	}
	writeJSON(w, h.coordinator.Get(key))
}

// DeleteHandler removes a value, routing the delete to the key's owner.
func (h *Handlers) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	writeJSON(w, h.coordinator.Delete(key))
}

// ReplicaPutHandler receives one propagated entry for a replica tier.
func (h *Handlers) ReplicaPutHandler(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(mux.Vars(r)["level"])
	if err != nil {
		http.Error(w, "Invalid replica level", http.StatusBadRequest)
		return
	}

	var kv storage.KeyValue
	if err := json.NewDecoder(r.Body).Decode(&kv); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if kv.Key == "" {
		http.Error(w, "Key is required", http.StatusBadRequest)
		return
	}

	h.store.SetReplica(level, kv.Key, kv.Value)
	writeJSON(w, replication.DataResponse{Value: kv.Value, Found: true})
}

// BulkReplicaHandler merges a whole mapping into a replica tier.
func (h *Handlers) BulkReplicaHandler(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(mux.Vars(r)["level"])
	if err != nil {
		http.Error(w, "Invalid replica level", http.StatusBadRequest)
		return
	}

	var req replication.BulkReplicaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.store.SetBulkReplica(level, req.Data)
	writeJSON(w, replication.BulkReplicaResponse{
		Message: "Replicated " + strconv.Itoa(len(req.Data)) + " entries",
		Found:   true,
	})
}

// ReplicaDeleteHandler removes one entry from a replica tier: 200 if it
// existed, 404 otherwise.
func (h *Handlers) ReplicaDeleteHandler(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	level, err := strconv.Atoi(r.URL.Query().Get("replicaIndex"))
	if err != nil {
		http.Error(w, "Invalid replicaIndex", http.StatusBadRequest)
		return
	}

	if h.store.DeleteReplica(level, key) {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusNotFound)
	}
}

// DumpHandler returns the node's full contents by tier.
func (h *Handlers) DumpHandler(w http.ResponseWriter, r *http.Request) {
	replicas := make(map[int]map[string]string, h.store.ReplicaLevels())
	for level := 1; level <= h.store.ReplicaLevels(); level++ {
		replicas[level] = h.store.ReplicaSnapshot(level)
	}

	writeJSON(w, map[string]interface{}{
		"primary":  h.store.PrimarySnapshot(),
		"replicas": replicas,
	})
}

// PrimaryHandler returns the bare primary snapshot.
func (h *Handlers) PrimaryHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.store.PrimarySnapshot())
}

// NodesHandler lists ring members as {"host:port": hash} in ascending hash
// order. Encoded by hand: a Go map would marshal its keys lexically.
func (h *Handlers) NodesHandler(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range h.ring.Nodes() {
		if i > 0 {
			buf.WriteByte(',')
		}
		id, _ := json.Marshal(n.ID)
		buf.Write(id)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatUint(uint64(n.Hash), 10))
	}
	buf.WriteByte('}')

	w.Header().Set("Content-Type", "application/json")
	w.Write(buf.Bytes())
}

// RebalanceHandler serves the successor side of a rebalance exchange.
func (h *Handlers) RebalanceHandler(w http.ResponseWriter, r *http.Request) {
	var req replication.RebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, h.coordinator.HandleRebalance(req))
}

// HealthHandler answers the plain liveness probe.
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}
