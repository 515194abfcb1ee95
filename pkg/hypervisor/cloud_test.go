package hypervisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cyris/pkg/types"
)

func TestCloudXDriverCloneAndObserve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/instances":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "inst-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/instances/inst-1":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "inst-1", "state": "running", "leased_ip": "10.0.0.5"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	driver := NewCloudXDriver(srv.URL)

	handle, err := driver.CloneGuest(context.Background(), DomainSpec{Name: "guest-1", VCPU: 2, MemoryMB: 2048, DiskGB: 20})
	require.NoError(t, err)
	assert.Equal(t, "inst-1", handle.ID)

	obs, err := driver.Observe(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, PowerStateRunning, obs.State)
	assert.Equal(t, "10.0.0.5", obs.LeasedIP)
}

func TestCloudXDriverNotFoundMapsToResourceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	driver := NewCloudXDriver(srv.URL)
	_, err := driver.Observe(context.Background(), DomainHandle{ID: "missing"})
	require.Error(t, err)

	var coreErr *types.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, types.ErrorResource, coreErr.Kind)
}

func TestCloudXDriverEnsureAndDestroyNetwork(t *testing.T) {
	var destroyedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/networks":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "net-1"})
		case r.Method == http.MethodDelete:
			destroyedPath = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	driver := NewCloudXDriver(srv.URL)

	handle, err := driver.EnsureNetwork(context.Background(), NetworkSpec{Name: "net-a", CIDR: "10.0.0.0/24"})
	require.NoError(t, err)
	assert.Equal(t, "net-1", handle.ID)

	require.NoError(t, driver.DestroyNetwork(context.Background(), handle))
	assert.Equal(t, "/v1/networks/net-1", destroyedPath)
}

func TestCloudXDriverShutdownRespectsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	driver := NewCloudXDriver(srv.URL)
	err := driver.Shutdown(context.Background(), DomainHandle{ID: "inst-1"}, 5*time.Millisecond)
	require.Error(t, err)
}
