package credential

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// Executor issues one HTTP request and returns the raw response. The default
// implementation is an *http.Client with a request timeout; tests substitute
// stubs.
type Executor interface {
	Do(req *http.Request) (*http.Response, error)
}

// OutcomeKind tags a CallResult. The tag is assigned once, at the executor
// boundary, so callers never re-derive meaning from response shapes.
type OutcomeKind string

const (
	// OutcomeOK carries whatever the provider returned, 401 excepted.
	OutcomeOK OutcomeKind = "ok"
	// OutcomeDenied is a final authorization failure: the 401 that survived
	// the single refresh-and-retry cycle.
	OutcomeDenied OutcomeKind = "denied"
	// OutcomeNotLinked means no credential exists; no network call was made.
	OutcomeNotLinked OutcomeKind = "not_linked"
)

// CallResult is the tagged outcome of one dispatched call.
type CallResult struct {
	Kind       OutcomeKind
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Dispatcher wraps the Executor with bearer injection and a bounded
// refresh-and-retry cycle.
type Dispatcher struct {
	manager *Manager
	exec    Executor
}

// NewDispatcher builds a Dispatcher. A nil exec falls back to an HTTP client
// with a 30 second timeout.
func NewDispatcher(m *Manager, exec Executor) *Dispatcher {
	if exec == nil {
		exec = &http.Client{Timeout: 30 * time.Second}
	}
	return &Dispatcher{manager: m, exec: exec}
}

// Call dispatches one authenticated request on behalf of the owner's active
// account. On a 401, and only then, it refreshes the credential once and
// retries the request exactly once, returning whatever the second attempt
// yields. If the refresh fails the original 401 is returned untouched.
// Transport failures, timeouts included, surface as errors and never trigger
// a refresh.
func (d *Dispatcher) Call(ctx context.Context, ownerID, preferredXUserID, method, rawURL string, header http.Header, body []byte) (*CallResult, error) {
	cred, err := d.manager.ActiveCredential(ctx, ownerID, preferredXUserID)
	if err != nil {
		var notLinked *NotLinkedError
		if errors.As(err, &notLinked) {
			dispatchTotal.WithLabelValues(string(OutcomeNotLinked)).Inc()
			return &CallResult{Kind: OutcomeNotLinked}, nil
		}
		return nil, err
	}

	first, err := d.roundTrip(ctx, method, rawURL, header, body, cred.AccessToken)
	if err != nil {
		return nil, err
	}
	if first.StatusCode != http.StatusUnauthorized {
		dispatchTotal.WithLabelValues(string(OutcomeOK)).Inc()
		return first, nil
	}

	refreshed, errRefresh := d.manager.ForceRefresh(ctx, cred.OwnerID, cred.XUserID)
	if errRefresh != nil || refreshed.AccessToken == "" {
		dispatchTotal.WithLabelValues(string(OutcomeDenied)).Inc()
		return first, nil
	}

	dispatchRetries.Inc()
	second, err := d.roundTrip(ctx, method, rawURL, header, body, refreshed.AccessToken)
	if err != nil {
		return nil, err
	}
	// Whatever the retry yields is final; there is no third attempt.
	dispatchTotal.WithLabelValues(string(second.Kind)).Inc()
	return second, nil
}

func (d *Dispatcher) roundTrip(ctx context.Context, method, rawURL string, header http.Header, body []byte, accessToken string) (*CallResult, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	if header != nil {
		req.Header = header.Clone()
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := d.exec.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	kind := OutcomeOK
	if resp.StatusCode == http.StatusUnauthorized {
		kind = OutcomeDenied
	}
	return &CallResult{
		Kind:       kind,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       respBody,
	}, nil
}
