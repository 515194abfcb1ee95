package hypervisor

import (
	"fmt"
	"net/http"

	"github.com/cuemby/cyris/pkg/types"
)

// classifyCloudError maps a cloud REST API's status code vocabulary onto
// the closed ErrorKind taxonomy. Cloud provider error mapping is inherently
// provider-specific; this table covers the common REST status-code idiom
// (4xx client error, 429 throttling, 5xx backend fault) and is the
// documented, easily-extended seam for adding a concrete provider's richer
// error codes later.
func classifyCloudError(statusCode int, path string) error {
	switch {
	case statusCode == http.StatusNotFound:
		return types.NewCoreError(types.ErrorResource, "hypervisor.cloudx", path, "resource not found", nil)
	case statusCode == http.StatusTooManyRequests:
		return types.NewCoreError(types.ErrorResource, "hypervisor.cloudx", path, "rate limited", nil)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return types.NewCoreError(types.ErrorTimeout, "hypervisor.cloudx", path, "request timed out", nil)
	case statusCode >= 500:
		return types.NewCoreError(types.ErrorHypervisor, "hypervisor.cloudx", path, fmt.Sprintf("backend fault (status %d)", statusCode), nil)
	case statusCode >= 400:
		return types.NewCoreError(types.ErrorValidation, "hypervisor.cloudx", path, fmt.Sprintf("rejected (status %d)", statusCode), nil)
	default:
		return types.NewCoreError(types.ErrorInternal, "hypervisor.cloudx", path, fmt.Sprintf("unexpected status %d", statusCode), nil)
	}
}
