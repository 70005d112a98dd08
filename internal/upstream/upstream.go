// Package upstream maps transport failures of third-party providers onto the
// shared error taxonomy.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/menta2k/medref/pkg/types"
)

// maxErrorBody caps how much of an error response is kept
const maxErrorBody = 4096

// TransportError classifies an error returned by an HTTP round trip made
// with ctx
func TransportError(ctx context.Context, provider string, err error) error {
	if err == nil {
		return nil
	}
	if IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &types.UpstreamTimeoutError{Provider: provider, Err: err}
	}
	return fmt.Errorf("%s request failed: %w", provider, err)
}

// IsTimeout reports whether err was caused by a deadline or network timeout
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CheckStatus turns a non-2xx response into an UpstreamError. The body is
// consumed only on failure.
func CheckStatus(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &types.UpstreamError{
		Provider: provider,
		Status:   resp.StatusCode,
		Body:     string(body),
	}
}

// ReadBody reads a successful response body, classifying read timeouts
func ReadBody(ctx context.Context, provider string, resp *http.Response) ([]byte, error) {
	if err := CheckStatus(provider, resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, TransportError(ctx, provider, err)
	}
	return body, nil
}
