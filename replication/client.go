package replication

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrNodeUnavailable = errors.New("node unavailable")

// LocalReadHeader marks a forwarded read that must be answered from the
// receiving node's own tiers, without re-routing. Used when probing the
// owner's successors for replica copies.
const LocalReadHeader = "X-Ring-Local-Read"

const defaultTimeout = 2 * time.Second

// PeerClient sends one logical message to one named peer address and
// returns the peer's reply. Put/Get/Delete surface transport errors as
// found=false responses; the replica-propagation calls log and swallow them.
type PeerClient interface {
	Put(peer, key, value string) DataResponse
	Get(peer, key string) DataResponse
	GetLocal(peer, key string) DataResponse
	Delete(peer, key string) DataResponse
	Replicate(peer, key, value string, level int)
	ReplicateBulk(peer string, entries map[string]string, level int)
	DeleteReplica(peer, key string, level int)
	Rebalance(peer string, req RebalanceRequest) RebalanceResponse
	FetchPrimary(peer string) (map[string]string, error)
}

// Client is the HTTP implementation of PeerClient. It is stateless apart
// from the shared connection pool.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{MaxIdleConnsPerHost: 10},
		},
	}
}

func (c *Client) Put(peer, key, value string) DataResponse {
	body, _ := json.Marshal(map[string]string{"key": key, "value": value})
	return c.dataCall(peer, http.MethodPost, "/api/data", body, nil)
}

func (c *Client) Get(peer, key string) DataResponse {
	return c.dataCall(peer, http.MethodGet, "/api/data/"+url.PathEscape(key), nil, nil)
}

// GetLocal reads a key from the peer's own tiers only.
func (c *Client) GetLocal(peer, key string) DataResponse {
	headers := map[string]string{LocalReadHeader: "1"}
	return c.dataCall(peer, http.MethodGet, "/api/data/"+url.PathEscape(key), nil, headers)
}

func (c *Client) Delete(peer, key string) DataResponse {
	return c.dataCall(peer, http.MethodDelete, "/api/data/"+url.PathEscape(key), nil, nil)
}

// Replicate pushes one entry into the peer's replica tier. Best effort.
func (c *Client) Replicate(peer, key, value string, level int) {
	body, _ := json.Marshal(map[string]string{"key": key, "value": value})
	path := fmt.Sprintf("/api/replica/%d", level)
	if err := c.fireAndForget(peer, http.MethodPost, path, body); err != nil {
		logrus.WithFields(logrus.Fields{"peer": peer, "key": key, "level": level}).
			WithError(err).Warn("replica propagation failed")
	}
}

// ReplicateBulk merges a whole mapping into the peer's replica tier. Best
// effort.
func (c *Client) ReplicateBulk(peer string, entries map[string]string, level int) {
	if len(entries) == 0 {
		return
	}
	body, _ := json.Marshal(BulkReplicaRequest{Data: entries})
	path := fmt.Sprintf("/api/replica/bulk/%d", level)
	if err := c.fireAndForget(peer, http.MethodPost, path, body); err != nil {
		logrus.WithFields(logrus.Fields{"peer": peer, "entries": len(entries), "level": level}).
			WithError(err).Warn("bulk replica propagation failed")
	}
}

// DeleteReplica removes one entry from the peer's replica tier. Best effort;
// a 404 simply means the peer never had the key.
func (c *Client) DeleteReplica(peer, key string, level int) {
	path := fmt.Sprintf("/api/replica/%s?replicaIndex=%d", url.PathEscape(key), level)
	if err := c.fireAndForget(peer, http.MethodDelete, path, nil); err != nil && !errors.Is(err, errNotFound) {
		logrus.WithFields(logrus.Fields{"peer": peer, "key": key, "level": level}).
			WithError(err).Warn("replica delete propagation failed")
	}
}

// Rebalance runs the rebalance exchange; transport failures come back as a
// synthetic failure response.
func (c *Client) Rebalance(peer string, req RebalanceRequest) RebalanceResponse {
	body, _ := json.Marshal(req)
	resp, err := c.do(peer, http.MethodPost, "/api/rebalance", body, nil)
	if err != nil {
		return RebalanceResponse{Success: false, Message: err.Error()}
	}
	defer resp.Body.Close()

	var out RebalanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return RebalanceResponse{Success: false, Message: err.Error()}
	}
	return out
}

// FetchPrimary pulls the peer's full primary snapshot.
func (c *Client) FetchPrimary(peer string) (map[string]string, error) {
	resp, err := c.do(peer, http.MethodGet, "/api/data/primary", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrNodeUnavailable, resp.StatusCode)
	}

	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

var errNotFound = errors.New("not found")

func (c *Client) dataCall(peer, method, path string, body []byte, headers map[string]string) DataResponse {
	resp, err := c.do(peer, method, path, body, headers)
	if err != nil {
		return DataResponse{Found: false, Message: err.Error()}
	}
	defer resp.Body.Close()

	var out DataResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return DataResponse{Found: false, Message: err.Error()}
	}
	return out
}

func (c *Client) fireAndForget(peer, method, path string, body []byte) error {
	resp, err := c.do(peer, method, path, body, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HTTP %d", ErrNodeUnavailable, resp.StatusCode)
	}
	return nil
}

// do issues one request. The shared client's Timeout bounds the whole
// exchange including the body read, so no per-request context is needed.
func (c *Client) do(peer, method, path string, body []byte, headers map[string]string) (*http.Response, error) {
	reader := bytes.NewReader(body)

	req, err := http.NewRequest(method, "http://"+peer+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNodeUnavailable, err)
	}
	return resp, nil
}

var _ PeerClient = (*Client)(nil)
