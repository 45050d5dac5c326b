package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/madcrx/FADirect/internal/docstore"
	"github.com/madcrx/FADirect/internal/domain"
)

// DefaultAttempts is how many times an idempotent request is tried.
const DefaultAttempts = 4

// HTTPClient is a domain.DocumentStore backed by a relay server.
type HTTPClient struct {
	Base     string
	HTTP     *http.Client
	Attempts int
	Backoff  backoff.Backoff

	log *zap.SugaredLogger
}

// NewHTTP returns a client for the relay at base, e.g. http://127.0.0.1:8080.
// A nil httpClient means http.DefaultClient.
func NewHTTP(base string, httpClient *http.Client, log *zap.SugaredLogger) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{
		Base:     strings.TrimRight(base, "/"),
		HTTP:     httpClient,
		Attempts: DefaultAttempts,
		Backoff:  backoff.Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: true},
		log:      log,
	}
}

func (c *HTTPClient) Get(ctx context.Context, table, id string) (domain.Stored, error) {
	var out domain.Stored
	err := c.do(ctx, http.MethodGet, docPath(table, id), nil, nil, &out)
	return out, err
}

func (c *HTTPClient) Set(ctx context.Context, table, id string, doc domain.Document) error {
	return c.do(ctx, http.MethodPut, docPath(table, id), nil, doc, nil)
}

func (c *HTTPClient) Update(ctx context.Context, table, id string, patch domain.Document) error {
	return c.do(ctx, http.MethodPatch, docPath(table, id), nil, patch, nil)
}

func (c *HTTPClient) Delete(ctx context.Context, table, id string) error {
	return c.do(ctx, http.MethodDelete, docPath(table, id), nil, nil, nil)
}

func (c *HTTPClient) Insert(ctx context.Context, table string, doc domain.Document) (string, error) {
	var out insertResponse
	if err := c.do(ctx, http.MethodPost, "/docs/"+url.PathEscape(table), nil, doc, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *HTTPClient) Find(ctx context.Context, table string, filter domain.Filter) ([]domain.Stored, error) {
	var out []domain.Stored
	err := c.do(ctx, http.MethodGet, "/docs/"+url.PathEscape(table), filterQuery(filter), nil, &out)
	return out, err
}

func (c *HTTPClient) TakeOne(ctx context.Context, table, id, field string, pick domain.Pick) (json.RawMessage, bool, error) {
	var out takeResponse
	q := url.Values{"order": {pickName(pick)}}
	err := c.do(ctx, http.MethodPost, docPath(table, id)+"/take/"+url.PathEscape(field), q, nil, &out)
	if err != nil {
		return nil, false, err
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}
	return out.Item, true, nil
}

func (c *HTTPClient) Append(ctx context.Context, table, id, field string, items []json.RawMessage) error {
	if items == nil {
		items = []json.RawMessage{}
	}
	return c.do(ctx, http.MethodPost, docPath(table, id)+"/append/"+url.PathEscape(field), nil, items, nil)
}

// Subscribe opens a change stream. Notifications are relayed through a local
// hub, so Cancel has the same guarantees as an in-process subscription.
func (c *HTTPClient) Subscribe(ctx context.Context, table string, filter domain.Filter) (domain.Subscription, error) {
	u := c.Base + "/watch/" + url.PathEscape(table)
	if q := filterQuery(filter); len(q) > 0 {
		u += "?" + q.Encode()
	}
	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("relay watch %s: %w", table, err)
	}
	if resp.StatusCode/100 != 2 {
		err := statusError(http.MethodGet, u, resp)
		resp.Body.Close()
		cancel()
		return nil, err
	}

	hub := docstore.NewHub(c.log)
	sub := &streamSubscription{Subscription: hub.Subscribe(streamCtx, table, domain.Filter{}), cancel: cancel}
	go func() {
		defer resp.Body.Close()
		defer sub.Cancel()
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 64*1024), maxBody)
		for sc.Scan() {
			var change domain.Change
			if err := json.Unmarshal(sc.Bytes(), &change); err != nil {
				c.log.Warnf("relay watch %s: bad change: %s", table, err)
				continue
			}
			hub.Publish(change)
		}
		if err := sc.Err(); err != nil && streamCtx.Err() == nil {
			c.log.Warnf("relay watch %s ended: %s", table, err)
		}
	}()
	return sub, nil
}

// streamSubscription ends the HTTP stream when cancelled.
type streamSubscription struct {
	domain.Subscription
	cancel context.CancelFunc
}

func (s *streamSubscription) Cancel() {
	s.Subscription.Cancel()
	s.cancel()
}

// do sends one request, retrying idempotent methods on transport errors and
// 5xx responses. out may be nil; a 204 leaves it untouched.
func (c *HTTPClient) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := c.Base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}

	attempts := 1
	if idempotent(method) && c.Attempts > 1 {
		attempts = c.Attempts
	}
	b := c.Backoff
	b.Reset()
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := b.Duration()
			c.log.Debugf("relay %s %s: retrying in %s after %s", method, path, delay, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		retry, err := c.once(ctx, method, u, body, out)
		if err == nil {
			return nil
		}
		if !retry || ctx.Err() != nil {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *HTTPClient) once(ctx context.Context, method, u string, body []byte, out any) (retry bool, err error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return false, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return true, fmt.Errorf("relay %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, fmt.Errorf("relay %s %s: %w", method, u, domain.ErrDocumentNotFound)
	case resp.StatusCode/100 == 5:
		return true, statusError(method, u, resp)
	case resp.StatusCode/100 != 2:
		return false, statusError(method, u, resp)
	case resp.StatusCode == http.StatusNoContent || out == nil:
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("relay %s %s: decode: %w", method, u, err)
	}
	return false, nil
}

func statusError(method, u string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("relay %s %s: %s: %s", method, u, resp.Status, strings.TrimSpace(string(msg)))
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func docPath(table, id string) string {
	return "/docs/" + url.PathEscape(table) + "/" + url.PathEscape(id)
}

func filterQuery(f domain.Filter) url.Values {
	if f.Field == "" {
		return nil
	}
	return url.Values{"field": {f.Field}, "value": {f.Value}}
}

// Compile-time assertion that HTTPClient implements domain.DocumentStore.
var _ domain.DocumentStore = (*HTTPClient)(nil)
