package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func healthyPeer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("OK"))
	}))
	t.Cleanup(ts.Close)
	return ts, strings.TrimPrefix(ts.URL, "http://")
}

func TestStaticRegistryFiltersDeadPeers(t *testing.T) {
	_, aliveA := healthyPeer(t)
	_, aliveB := healthyPeer(t)

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadAddr := strings.TrimPrefix(dead.URL, "http://")
	dead.Close()

	registry := NewStaticRegistry([]string{aliveA, deadAddr, aliveB}, 500*time.Millisecond)

	peers, err := registry.ListPeers(context.Background())
	if err != nil {
		t.Fatalf("ListPeers failed: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("Expected 2 live peers, got %d", len(peers))
	}
	if peers[0].Addr() != aliveA || peers[1].Addr() != aliveB {
		t.Errorf("Live peers out of seed order: %v", peers)
	}
}

func TestStaticRegistryUnhealthyStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(ts.Close)

	registry := NewStaticRegistry([]string{strings.TrimPrefix(ts.URL, "http://")}, 500*time.Millisecond)

	peers, err := registry.ListPeers(context.Background())
	if err != nil {
		t.Fatalf("ListPeers failed: %v", err)
	}
	if len(peers) != 0 {
		t.Errorf("Peer answering 503 counted as live: %v", peers)
	}
}

func TestStaticRegistrySkipsMalformedSeeds(t *testing.T) {
	_, alive := healthyPeer(t)

	registry := NewStaticRegistry([]string{"not-an-address", "host:notaport", alive}, 500*time.Millisecond)

	peers, err := registry.ListPeers(context.Background())
	if err != nil {
		t.Fatalf("ListPeers failed: %v", err)
	}
	if len(peers) != 1 || peers[0].Addr() != alive {
		t.Errorf("Expected only the well-formed live seed, got %v", peers)
	}
}

func TestPeerAddr(t *testing.T) {
	p := Peer{Host: "10.0.0.1", Port: 8080}
	if p.Addr() != "10.0.0.1:8080" {
		t.Errorf("Unexpected address %s", p.Addr())
	}
}
