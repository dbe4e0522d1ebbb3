package main

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eko/gocache/lib/v4/marshaler"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"freeimages/config"
	"freeimages/settings"
	"freeimages/storage"
	"freeimages/upload"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var fixedNow = time.UnixMilli(1700000000123)

const fixedToken = "abc123def4567"

type putCall struct {
	key         string
	contentType string
	size        int64
	body        []byte
}

type fakeBucket struct {
	mu       sync.Mutex
	host     string
	puts     []putCall
	presigns []string
}

func (b *fakeBucket) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presigns = append(b.presigns, key)
	return "https://" + b.host + "/photos/" + key + "?X-Amz-Signature=abc", nil
}

func (b *fakeBucket) Put(_ context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts = append(b.puts, putCall{key: key, contentType: contentType, size: size, body: data})
	return nil
}

func (b *fakeBucket) EndpointHost() string {
	return b.host
}

type fakeProvider struct {
	obj   *storage.Object
	err   error
	calls atomic.Int32
}

func (p *fakeProvider) Fetch(_ context.Context, _ *url.URL) (*storage.Object, error) {
	p.calls.Add(1)
	return p.obj, p.err
}

type testServer struct {
	router   *gin.Engine
	local    *settings.Local
	sessions *Sessions
	bucket   *fakeBucket
	opened   atomic.Int32
	fromR2   *fakeProvider
	remote   *fakeProvider
}

func testConfig() *config.Config {
	return &config.Config{
		Server:       config.Server{MaxUpload: 1 << 20},
		Log:          config.Log{Level: "info", Format: "text"},
		Session:      config.Session{Secret: "test-secret", TTL: time.Hour},
		RateLimit:    config.RateLimit{LoginRate: 100, LoginBurst: 100},
		Storage:      config.Storage{PresignTTL: time.Hour},
		CacheControl: config.CacheControl{Enabled: true, MaxAge: time.Minute},
	}
}

func completeStorage() settings.Patch {
	return settings.Patch{
		"storage": map[string]any{
			"cloudflare": map[string]any{
				"accountId":       "acct123",
				"accessKeyId":     "key-id",
				"secretAccessKey": "secret",
				"bucketName":      "photos",
				"publicDomain":    "https://img.example.com",
			},
		},
		"app": map[string]any{
			"images": map[string]any{"domains": []any{"cdn.example.com"}},
		},
	}
}

func newTestServer(t *testing.T, patch settings.Patch, tune ...func(*config.Config)) *testServer {
	t.Helper()
	cfg := testConfig()
	for _, f := range tune {
		f(cfg)
	}

	local := settings.NewLocal(settings.NewStore(filepath.Join(t.TempDir(), "freeimages.config.json")))
	if patch != nil {
		_, err := local.Update(context.Background(), patch)
		require.NoError(t, err)
	}
	sessions, err := NewSessions(cfg.Session)
	require.NoError(t, err)

	ts := &testServer{
		local:    local,
		sessions: sessions,
		bucket:   &fakeBucket{host: "acct123.r2.cloudflarestorage.com"},
		fromR2:   &fakeProvider{},
		remote:   &fakeProvider{},
	}
	buckets := func(context.Context, settings.Cloudflare) (upload.Bucket, error) {
		ts.opened.Add(1)
		return ts.bucket, nil
	}
	svc := upload.NewService(local, buckets,
		upload.WithClock(func() time.Time { return fixedNow }),
		upload.WithTokens(func() (string, error) { return fixedToken, nil }),
	)

	ts.router = NewRouter(&Server{
		Config:   cfg,
		Local:    local,
		Sessions: sessions,
		Uploads:  svc,
		Images:   NewSourceRouter(local, ts.fromR2, ts.remote),
		Cache:    mustMarshaler(t, cfg),
	})
	return ts
}

func mustMarshaler(t *testing.T, cfg *config.Config) *marshaler.Marshaler {
	if !cfg.ResponseCache.Enabled {
		return nil
	}
	m, err := storage.NewMarshaler(context.Background(), time.Minute)
	require.NoError(t, err)
	return m
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// login returns the session cookie for the admin password.
func (ts *testServer) login(t *testing.T, password string) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString(`{"password":"`+password+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

type formFilePart struct {
	name        string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, target string, fields map[string]string, file *formFilePart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+file.name+`"`)
		h.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
