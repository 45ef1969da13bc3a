package testutils

import (
	"context"
	"strconv"

	"ringkv/discovery"
	"ringkv/replication"
)

// PeerCall records one outbound peer-client invocation.
type PeerCall struct {
	Op    string
	Peer  string
	Key   string
	Value string
	Level int
}

// MockPeerClient implements replication.PeerClient with canned responses
// and full call recording.
type MockPeerClient struct {
	Calls []PeerCall

	PutResponses       map[string]replication.DataResponse      // by peer
	GetResponses       map[string]replication.DataResponse      // by peer+"/"+key
	LocalGetResponses  map[string]replication.DataResponse      // by peer+"/"+key
	DeleteResponses    map[string]replication.DataResponse      // by peer+"/"+key
	RebalanceResponses map[string]replication.RebalanceResponse // by peer
	PrimarySnapshots   map[string]map[string]string             // by peer
	FetchErr           error
}

func NewMockPeerClient() *MockPeerClient {
	return &MockPeerClient{
		PutResponses:       make(map[string]replication.DataResponse),
		GetResponses:       make(map[string]replication.DataResponse),
		LocalGetResponses:  make(map[string]replication.DataResponse),
		DeleteResponses:    make(map[string]replication.DataResponse),
		RebalanceResponses: make(map[string]replication.RebalanceResponse),
		PrimarySnapshots:   make(map[string]map[string]string),
	}
}

func (m *MockPeerClient) record(call PeerCall) {
	m.Calls = append(m.Calls, call)
}

// CallsFor returns the recorded calls with the given op.
func (m *MockPeerClient) CallsFor(op string) []PeerCall {
	var out []PeerCall
	for _, c := range m.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockPeerClient) Put(peer, key, value string) replication.DataResponse {
	m.record(PeerCall{Op: "put", Peer: peer, Key: key, Value: value})
	return m.PutResponses[peer]
}

func (m *MockPeerClient) Get(peer, key string) replication.DataResponse {
	m.record(PeerCall{Op: "get", Peer: peer, Key: key})
	return m.GetResponses[peer+"/"+key]
}

func (m *MockPeerClient) GetLocal(peer, key string) replication.DataResponse {
	m.record(PeerCall{Op: "getLocal", Peer: peer, Key: key})
	return m.LocalGetResponses[peer+"/"+key]
}

func (m *MockPeerClient) Delete(peer, key string) replication.DataResponse {
	m.record(PeerCall{Op: "delete", Peer: peer, Key: key})
	return m.DeleteResponses[peer+"/"+key]
}

func (m *MockPeerClient) Replicate(peer, key, value string, level int) {
	m.record(PeerCall{Op: "replicate", Peer: peer, Key: key, Value: value, Level: level})
}

func (m *MockPeerClient) ReplicateBulk(peer string, entries map[string]string, level int) {
	m.record(PeerCall{Op: "replicateBulk", Peer: peer, Level: level, Value: mapFingerprint(entries)})
}

func (m *MockPeerClient) DeleteReplica(peer, key string, level int) {
	m.record(PeerCall{Op: "deleteReplica", Peer: peer, Key: key, Level: level})
}

func (m *MockPeerClient) Rebalance(peer string, req replication.RebalanceRequest) replication.RebalanceResponse {
	m.record(PeerCall{Op: "rebalance", Peer: peer, Key: req.NodeID, Level: req.ReplicaIndex})
	if resp, ok := m.RebalanceResponses[peer]; ok {
		return resp
	}
	return replication.RebalanceResponse{Success: false, Message: "no canned response"}
}

func (m *MockPeerClient) FetchPrimary(peer string) (map[string]string, error) {
	m.record(PeerCall{Op: "fetchPrimary", Peer: peer})
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	return m.PrimarySnapshots[peer], nil
}

func mapFingerprint(entries map[string]string) string {
	// Enough for assertions on bulk sizes without ordering headaches.
	return "entries:" + strconv.Itoa(len(entries))
}

var _ replication.PeerClient = (*MockPeerClient)(nil)

// MockRegistry serves a fixed peer list.
type MockRegistry struct {
	Peers []discovery.Peer
	Err   error
}

func (m *MockRegistry) ListPeers(ctx context.Context) ([]discovery.Peer, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Peers, nil
}

var _ discovery.Registry = (*MockRegistry)(nil)
