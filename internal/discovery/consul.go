package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const consulWatchInterval = 10 * time.Second

// Consul is an HTTP-backed Discovery backend speaking a
// Consul-style catalog API: PUT to register, GET to list. Registrations
// carry no health check. Grounded on service_discovery.py's Consul
// adapter.
type Consul struct {
	baseURL    string
	httpClient *http.Client
}

// NewConsul creates a Consul discovery backend against baseURL (e.g.
// http://consul:8500).
func NewConsul(baseURL string) *Consul {
	return &Consul{baseURL: baseURL, httpClient: &http.Client{Timeout: 5 * time.Second}}
}

type consulRegistration struct {
	ID      string `json:"ID"`
	Name    string `json:"Name"`
	Address string `json:"Address"`
	Check   *struct {
		HTTP     string `json:"HTTP"`
		Interval string `json:"Interval"`
	} `json:"Check,omitempty"`
}

func (c *Consul) Register(ctx context.Context, self Peer) error {
	reg := consulRegistration{ID: self.ID, Name: "clustercenter", Address: self.Address}
	body, err := json.Marshal(reg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/v1/agent/service/register", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("consul register: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Consul) Deregister(ctx context.Context, self Peer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/v1/agent/service/deregister/"+self.ID, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

type consulCatalogEntry struct {
	ServiceID      string `json:"ServiceID"`
	ServiceAddress string `json:"ServiceAddress"`
}

func (c *Consul) Discover(ctx context.Context) ([]Peer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/catalog/service/clustercenter", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var entries []consulCatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	peers := make([]Peer, len(entries))
	for i, e := range entries {
		peers[i] = Peer{ID: e.ServiceID, Address: e.ServiceAddress}
	}
	return peers, nil
}

func (c *Consul) Watch(ctx context.Context) (<-chan []Peer, error) {
	ch := make(chan []Peer, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(consulWatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if peers, err := c.Discover(ctx); err == nil {
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
