package discovery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	etcdWatchInterval = 10 * time.Second
	etcdLeaseTTLSec   = 30
)

// Etcd is an HTTP-backed Discovery backend speaking etcd's v3 JSON
// gateway: members are keys under a common prefix, PUT to register, a
// range GET to list. Grounded on service_discovery.py's etcd adapter.
type Etcd struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
}

// NewEtcd creates an Etcd discovery backend against baseURL (e.g.
// http://etcd:2379) storing peers under prefix (e.g. "/clustercenter/peers/").
func NewEtcd(baseURL, prefix string) *Etcd {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Etcd{baseURL: baseURL, prefix: prefix, httpClient: &http.Client{Timeout: 5 * time.Second}}
}

type etcdPutRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (e *Etcd) key(peerID string) string {
	return e.prefix + peerID
}

func (e *Etcd) put(ctx context.Context, key string, value []byte) error {
	body, err := json.Marshal(etcdPutRequest{
		Key:   base64.StdEncoding.EncodeToString([]byte(key)),
		Value: base64.StdEncoding.EncodeToString(value),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v3/kv/put", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("etcd put: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (e *Etcd) deleteKey(ctx context.Context, key string) error {
	body, err := json.Marshal(map[string]string{"key": base64.StdEncoding.EncodeToString([]byte(key))})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v3/kv/deleterange", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (e *Etcd) Register(ctx context.Context, self Peer) error {
	return e.put(ctx, e.key(self.ID), []byte(self.Address))
}

func (e *Etcd) Deregister(ctx context.Context, self Peer) error {
	return e.deleteKey(ctx, e.key(self.ID))
}

type etcdRangeRequest struct {
	Key      string `json:"key"`
	RangeEnd string `json:"range_end"`
}

type etcdKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type etcdRangeResponse struct {
	Kvs []etcdKV `json:"kvs"`
}

// prefixRangeEnd computes etcd's conventional range_end for a prefix scan:
// the prefix with its last byte incremented.
func prefixRangeEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

func (e *Etcd) Discover(ctx context.Context) ([]Peer, error) {
	body, err := json.Marshal(etcdRangeRequest{
		Key:      base64.StdEncoding.EncodeToString([]byte(e.prefix)),
		RangeEnd: base64.StdEncoding.EncodeToString([]byte(prefixRangeEnd(e.prefix))),
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v3/kv/range", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var rangeResp etcdRangeResponse
	if err := json.Unmarshal(data, &rangeResp); err != nil {
		return nil, err
	}

	peers := make([]Peer, 0, len(rangeResp.Kvs))
	for _, kv := range rangeResp.Kvs {
		keyBytes, err := base64.StdEncoding.DecodeString(kv.Key)
		if err != nil {
			continue
		}
		valBytes, err := base64.StdEncoding.DecodeString(kv.Value)
		if err != nil {
			continue
		}
		id := strings.TrimPrefix(string(keyBytes), e.prefix)
		peers = append(peers, Peer{ID: id, Address: string(valBytes)})
	}
	return peers, nil
}

func (e *Etcd) Watch(ctx context.Context) (<-chan []Peer, error) {
	ch := make(chan []Peer, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(etcdWatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if peers, err := e.Discover(ctx); err == nil {
					select {
					case ch <- peers:
					default:
					}
				}
			}
		}
	}()
	return ch, nil
}
