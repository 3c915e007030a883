// core/http_mirror.go
package core

// HTTP mirrors are the resolver's last-resort source: a declared, priority
// ordered list of gateways, each tried up to N times with bounded backoff.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	logrus "github.com/sirupsen/logrus"
)

// Mirror is one configured HTTP source, in declared priority order.
type Mirror struct {
	URL      string
	Priority int
}

// HTTPMirrorResolver fetches artifact bytes from a prioritized list of
// HTTP gateways, retrying each with exponential backoff before moving on.
type HTTPMirrorResolver struct {
	mirrors    []Mirror
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	logger     *logrus.Logger
}

// NewHTTPMirrorResolver builds a resolver over a copy of mirrors sorted by
// priority (ascending = tried first; equal priorities keep declared order).
func NewHTTPMirrorResolver(mirrors []Mirror, timeout time.Duration, lg *logrus.Logger) *HTTPMirrorResolver {
	sorted := append([]Mirror(nil), mirrors...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	return &HTTPMirrorResolver{
		mirrors:    sorted,
		client:     &http.Client{Timeout: timeout},
		maxRetries: 3,
		baseDelay:  200 * time.Millisecond,
		logger:     lg,
	}
}

// Fetch tries each mirror in priority order, retrying each up to
// maxRetries times with exponential backoff, and returns the first
// response body that passes verify. A mirror whose bytes fail
// verification is abandoned — integrity failures are never retried on
// the same source — and the next mirror is tried instead.
func (r *HTTPMirrorResolver) Fetch(ctx context.Context, cid CID, verify func([]byte) error) ([]byte, error) {
	var lastErr error
	for _, m := range r.mirrors {
		data, err := r.fetchFromMirror(ctx, m, cid)
		if err != nil {
			r.logger.Warnf("http mirror %s failed for %s: %v", m.URL, cid, err)
			lastErr = err
			continue
		}
		if verify != nil {
			if err := verify(data); err != nil {
				r.logger.Warnf("http mirror %s returned unverifiable bytes for %s: %v", m.URL, cid, err)
				lastErr = err
				continue
			}
		}
		return data, nil
	}
	if lastErr == nil {
		lastErr = ErrNotFound
	}
	return nil, fmt.Errorf("%w: all mirrors exhausted: %v", ErrNotFound, lastErr)
}

func (r *HTTPMirrorResolver) fetchFromMirror(ctx context.Context, m Mirror, cid CID) ([]byte, error) {
	url := m.URL + "/" + string(cid)
	var lastErr error
	delay := r.baseDelay
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
		data, err := r.doFetch(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		// Only transient failures earn a retry on the same mirror; a 404
		// or a fatal status will not change on the next attempt.
		if !errors.Is(err, ErrNetworkTransient) {
			break
		}
	}
	return nil, lastErr
}

func (r *HTTPMirrorResolver) doFetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkTransient, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
		return io.ReadAll(resp.Body)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: mirror has no entry", ErrNotFound)
	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("%w: status %d: %s", ErrNetworkTransient, resp.StatusCode, string(body))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("%w: status %d: %s", ErrNetworkFatal, resp.StatusCode, string(body))
	}
}
