package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsulRegisterPUTsToAgentServiceRegister(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewConsul(srv.URL)
	err := c.Register(context.Background(), Peer{ID: "node-1", Address: "10.0.0.1:9091"})
	require.NoError(t, err)
	assert.Equal(t, "/v1/agent/service/register", gotPath)
	assert.Equal(t, http.MethodPut, gotMethod)
}

func TestConsulRegisterReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewConsul(srv.URL)
	err := c.Register(context.Background(), Peer{ID: "node-1", Address: "10.0.0.1:9091"})
	assert.Error(t, err)
}

func TestConsulDiscoverParsesCatalogEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/catalog/service/clustercenter", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"ServiceID":"node-1","ServiceAddress":"10.0.0.1:9091"},{"ServiceID":"node-2","ServiceAddress":"10.0.0.2:9091"}]`))
	}))
	defer srv.Close()

	c := NewConsul(srv.URL)
	peers, err := c.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Peer{{ID: "node-1", Address: "10.0.0.1:9091"}, {ID: "node-2", Address: "10.0.0.2:9091"}}, peers)
}

func TestConsulDeregisterHitsDeregisterEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewConsul(srv.URL)
	require.NoError(t, c.Deregister(context.Background(), Peer{ID: "node-1"}))
	assert.Equal(t, "/v1/agent/service/deregister/node-1", gotPath)
}
