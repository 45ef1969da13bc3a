package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// StaticRegistry works from a fixed seed list and reports the subset that
// answers its health endpoint. Seeds that go dark disappear from the
// membership until they answer again.
type StaticRegistry struct {
	seeds      []Peer
	httpClient *http.Client
}

// NewStaticRegistry parses "host:port" seed strings. Malformed entries are
// skipped with a warning.
func NewStaticRegistry(seeds []string, probeTimeout time.Duration) *StaticRegistry {
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}

	peers := make([]Peer, 0, len(seeds))
	for _, s := range seeds {
		host, portStr, err := net.SplitHostPort(s)
		if err != nil {
			logrus.WithField("seed", s).WithError(err).Warn("skipping malformed seed node")
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			logrus.WithField("seed", s).WithError(err).Warn("skipping malformed seed port")
			continue
		}
		peers = append(peers, Peer{Host: host, Port: port})
	}

	return &StaticRegistry{
		seeds:      peers,
		httpClient: &http.Client{Timeout: probeTimeout},
	}
}

// ListPeers probes every seed concurrently and returns the live ones in
// seed order.
func (r *StaticRegistry) ListPeers(ctx context.Context) ([]Peer, error) {
	alive := make([]bool, len(r.seeds))
	var wg sync.WaitGroup

	for i, p := range r.seeds {
		wg.Add(1)
		go func(i int, p Peer) {
			defer wg.Done()
			alive[i] = r.probe(ctx, p)
		}(i, p)
	}
	wg.Wait()

	live := make([]Peer, 0, len(r.seeds))
	for i, p := range r.seeds {
		if alive[i] {
			live = append(live, p)
		}
	}
	return live, nil
}

func (r *StaticRegistry) probe(ctx context.Context, p Peer) bool {
	url := fmt.Sprintf("http://%s/api/health", p.Addr())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

var _ Registry = (*StaticRegistry)(nil)
