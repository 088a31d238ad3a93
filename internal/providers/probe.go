// internal/providers/probe.go
package providers

import (
	"context"
	"net/http"
	"time"
)

// DefaultProbeURL is the well-known endpoint hit when a remote API call fails
// for a reason other than authentication.
const DefaultProbeURL = "https://www.google.com"

const probeTimeout = 2 * time.Second

// ProbeConnectivity reports whether url answers an HTTP HEAD within two
// seconds. Any HTTP status counts as reachable.
func ProbeConnectivity(ctx context.Context, client *http.Client, url string) error {
	if url == "" {
		url = DefaultProbeURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Diagnose classifies a failed readiness call that was not an authentication
// failure: ErrNetwork when the probe fails, otherwise the original error.
func Diagnose(ctx context.Context, client *http.Client, probeURL string, cause error) error {
	if perr := ProbeConnectivity(ctx, client, probeURL); perr != nil {
		return NetworkError(cause)
	}
	return cause
}
