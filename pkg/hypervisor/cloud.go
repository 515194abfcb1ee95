package hypervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/cyris/pkg/log"
)

// CloudXDriver maps the Driver capability set onto a generic REST-based
// cloud control plane. No specific cloud SDK is wired here: none of the
// retrieved examples import one, so this talks plain JSON-over-HTTP against
// whatever endpoint the host config points at, and classifies the
// provider's error vocabulary through cloudErrorTable (see
// cloud_errors.go).
type CloudXDriver struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewCloudXDriver builds a driver against the given API base URL.
func NewCloudXDriver(baseURL string) *CloudXDriver {
	return &CloudXDriver{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.WithComponent("hypervisor.cloudx"),
	}
}

var _ Driver = (*CloudXDriver)(nil)

type cloudDomainResponse struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	LeasedIP string `json:"leased_ip"`
}

func (d *CloudXDriver) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cloudx request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classifyCloudError(resp.StatusCode, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode cloudx response: %w", err)
		}
	}
	return nil
}

func (d *CloudXDriver) EnsureNetwork(ctx context.Context, spec NetworkSpec) (NetworkHandle, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := d.do(ctx, http.MethodPost, "/v1/networks", spec, &out); err != nil {
		return NetworkHandle{}, err
	}
	return NetworkHandle{ID: out.ID}, nil
}

func (d *CloudXDriver) DestroyNetwork(ctx context.Context, handle NetworkHandle) error {
	return d.do(ctx, http.MethodDelete, "/v1/networks/"+handle.ID, nil, nil)
}

func (d *CloudXDriver) CloneGuest(ctx context.Context, spec DomainSpec) (DomainHandle, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := d.do(ctx, http.MethodPost, "/v1/instances", spec, &out); err != nil {
		return DomainHandle{}, err
	}
	return DomainHandle{ID: out.ID}, nil
}

func (d *CloudXDriver) Start(ctx context.Context, handle DomainHandle) error {
	return d.do(ctx, http.MethodPost, "/v1/instances/"+handle.ID+"/start", nil, nil)
}

func (d *CloudXDriver) Shutdown(ctx context.Context, handle DomainHandle, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.do(ctx, http.MethodPost, "/v1/instances/"+handle.ID+"/shutdown", nil, nil)
}

func (d *CloudXDriver) ForceOff(ctx context.Context, handle DomainHandle) error {
	return d.do(ctx, http.MethodPost, "/v1/instances/"+handle.ID+"/poweroff", nil, nil)
}

func (d *CloudXDriver) Destroy(ctx context.Context, handle DomainHandle) error {
	return d.do(ctx, http.MethodDelete, "/v1/instances/"+handle.ID, nil, nil)
}

func (d *CloudXDriver) Observe(ctx context.Context, handle DomainHandle) (Observation, error) {
	var out cloudDomainResponse
	if err := d.do(ctx, http.MethodGet, "/v1/instances/"+handle.ID, nil, &out); err != nil {
		return Observation{State: PowerStateUnknown}, err
	}

	state := PowerStateUnknown
	switch out.State {
	case "running":
		state = PowerStateRunning
	case "stopped", "terminated":
		state = PowerStateStopped
	}
	return Observation{State: state, LeasedIP: out.LeasedIP}, nil
}

func (d *CloudXDriver) ListDomains(ctx context.Context, labelKey, labelValue string) ([]DomainHandle, error) {
	var out struct {
		Instances []cloudDomainResponse `json:"instances"`
	}
	path := fmt.Sprintf("/v1/instances?label=%s:%s", labelKey, labelValue)
	if err := d.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	handles := make([]DomainHandle, 0, len(out.Instances))
	for _, inst := range out.Instances {
		handles = append(handles, DomainHandle{ID: inst.ID})
	}
	return handles, nil
}
