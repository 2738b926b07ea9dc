package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 60 * time.Second

// HTTPRunner forwards inference requests to a sidecar serving
// POST {base}/models/{id}/infer. Timeouts and connection failures map to
// ErrUnavailable so callers can distinguish an outage from a denial.
type HTTPRunner struct {
	base string
	http *http.Client

	// Timeout applies per run when the context has no earlier deadline.
	Timeout time.Duration
}

var _ Runner = (*HTTPRunner)(nil)

type HTTPOptions struct {
	// HTTPClient overrides the transport. Nil uses http.DefaultClient.
	HTTPClient *http.Client

	// Timeout applies per run when non-zero. Default 60s; model execution
	// is slow by nature.
	Timeout time.Duration
}

func NewHTTPRunner(base string, opts HTTPOptions) *HTTPRunner {
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	t := opts.Timeout
	if t <= 0 {
		t = defaultTimeout
	}
	return &HTTPRunner{base: base, http: hc, Timeout: t}
}

func (r *HTTPRunner) Run(ctx context.Context, modelID string, inputs json.RawMessage) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(map[string]json.RawMessage{"inputs": inputs})
	if err != nil {
		return nil, fmt.Errorf("%w: encode inputs: %v", ErrExecution, err)
	}
	url := fmt.Sprintf("%s/models/%s/infer", r.base, modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrModelNotFound
	case resp.StatusCode/100 != 2:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: runner returned %s: %s", ErrExecution, resp.Status, bytes.TrimSpace(msg))
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read outputs: %v", ErrUnavailable, err)
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("%w: runner returned invalid JSON", ErrExecution)
	}
	return out, nil
}
