package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Remote mirrors the server's document for client processes. It talks to the
// /api/config endpoints, keeps the last redacted copy in memory and carries
// the admin session cookie in its jar.
type Remote struct {
	baseURL string
	client  *http.Client

	once sync.Once

	mu     sync.RWMutex
	doc    Document
	synced bool
}

type RemoteOption func(*Remote)

// WithHTTPClient replaces the default client. A cookie jar is attached when
// the given client has none.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) {
		r.client = c
	}
}

func NewRemote(baseURL string, opts ...RemoteOption) *Remote {
	r := &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		doc:     Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client.Jar == nil {
		jar, _ := cookiejar.New(nil)
		r.client.Jar = jar
	}
	return r
}

func (r *Remote) BaseURL() string {
	return r.baseURL
}

func (r *Remote) HTTPClient() *http.Client {
	return r.client
}

// Init fetches the document once. Failures leave the template in place and
// are only logged; later calls do nothing. The fetch runs outside mu, so
// Config keeps answering from the cache meanwhile.
func (r *Remote) Init(ctx context.Context) {
	r.once.Do(func() {
		var doc Document
		if err := r.do(ctx, http.MethodGet, "/api/config", nil, &doc); err != nil {
			logrus.WithError(err).Errorln("Error loading config from server")
			return
		}
		r.store(doc, false)
	})
}

// store swaps the cached document. A fetched copy never replaces one that an
// Update already brought back.
func (r *Remote) store(doc Document, fromUpdate bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !fromUpdate && r.synced {
		return
	}
	r.doc = doc
	r.synced = true
}

func (r *Remote) Config() Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc
}

// Update sends patch to the server and caches the merged result. On failure
// the cache is left untouched.
func (r *Remote) Update(ctx context.Context, patch Patch) (Document, error) {
	var doc Document
	if err := r.do(ctx, http.MethodPost, "/api/config", patch, &doc); err != nil {
		logrus.WithError(err).Errorln("Error updating config")
		return Document{}, err
	}
	r.store(doc, true)
	return doc, nil
}

// UpdateStorage sends the whole storage group, filled in from the cache
// where s leaves fields empty.
func (r *Remote) UpdateStorage(ctx context.Context, s Storage) (Document, error) {
	current := r.Config().Storage
	patch, err := PatchOf(map[string]any{"storage": current})
	if err != nil {
		return Document{}, err
	}
	override, err := PatchOf(map[string]any{"storage": s})
	if err != nil {
		return Document{}, err
	}
	return r.Update(ctx, Merge(patch, dropEmpty(override)))
}

// UpdateApp is UpdateStorage for the app group.
func (r *Remote) UpdateApp(ctx context.Context, a App) (Document, error) {
	current := r.Config().App
	patch, err := PatchOf(map[string]any{"app": current})
	if err != nil {
		return Document{}, err
	}
	override, err := PatchOf(map[string]any{"app": a})
	if err != nil {
		return Document{}, err
	}
	return r.Update(ctx, Merge(patch, dropEmpty(override)))
}

// IsComplete gates uploads: all five credential fields of the cached
// document must be non-empty. A masked secret counts as set.
func (r *Remote) IsComplete() bool {
	return r.Config().Storage.Cloudflare.Complete()
}

// Login exchanges the admin password for a session cookie.
func (r *Remote) Login(ctx context.Context, password string) error {
	return r.do(ctx, http.MethodPost, "/api/login", map[string]string{"password": password}, nil)
}

func (r *Remote) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			logrus.Errorln("Error closing response body", err)
		}
	}()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return responseError(res)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// StatusError is returned when the server answers outside the 2xx range.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func responseError(res *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(res.Body, 1<<16)).Decode(&payload)
	return &StatusError{StatusCode: res.StatusCode, Message: payload.Error}
}

// dropEmpty removes empty strings, nil values and empty objects so they do
// not clobber cached values when merged.
func dropEmpty(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		switch x := v.(type) {
		case nil:
			continue
		case string:
			if x == "" {
				continue
			}
		case float64:
			if x == 0 {
				continue
			}
		case map[string]any:
			inner := dropEmpty(x)
			if len(inner) == 0 {
				continue
			}
			v = inner
		}
		out[k] = v
	}
	return out
}
