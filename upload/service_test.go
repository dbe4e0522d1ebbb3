package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freeimages/settings"
)

var fixedNow = time.UnixMilli(1700000000123)

type putCall struct {
	key         string
	contentType string
	size        int64
	body        []byte
}

type fakeBucket struct {
	host     string
	putErr   error
	puts     []putCall
	presigns []string
}

func (b *fakeBucket) PresignPut(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	b.presigns = append(b.presigns, key)
	return "https://" + b.host + "/bucket/" + key + "?ttl=" + ttl.String(), nil
}

func (b *fakeBucket) Put(_ context.Context, key string, body io.Reader, size int64, contentType string) error {
	if b.putErr != nil {
		return b.putErr
	}
	data, _ := io.ReadAll(body)
	b.puts = append(b.puts, putCall{key: key, contentType: contentType, size: size, body: data})
	return nil
}

func (b *fakeBucket) EndpointHost() string {
	return b.host
}

type staticSource struct {
	doc settings.Document
}

func (s staticSource) Config() settings.Document {
	return s.doc
}

func completeDocument() settings.Document {
	doc := settings.Default()
	doc.Storage.Cloudflare = settings.Cloudflare{
		AccountID:       "acct",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		BucketName:      "bucket",
		PublicDomain:    "https://img.example.com",
	}
	return doc
}

func newTestService(doc settings.Document, bucket *fakeBucket) (*Service, *int) {
	calls := 0
	factory := func(context.Context, settings.Cloudflare) (Bucket, error) {
		calls++
		return bucket, nil
	}
	s := NewService(staticSource{doc: doc}, factory,
		WithClock(func() time.Time { return fixedNow }),
		WithTokens(func() (string, error) { return "abc123def4567", nil }),
	)
	return s, &calls
}

func TestPresignBuildsPublicURL(t *testing.T) {
	doc := completeDocument()
	bucket := &fakeBucket{host: "acct.r2.cloudflarestorage.com"}
	s, _ := newTestService(doc, bucket)

	res, err := s.Presign(context.Background(), doc.Storage.Cloudflare, doc.Storage.Upload, File{Name: "photo.png", ContentType: "image/png", Size: 10})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "https://img.example.com/uploads/1700000000123-abc123def4567.png", res.PublicURL)
	assert.Equal(t, "image/png", res.ContentType)
	assert.Contains(t, res.SignedURL, "uploads/1700000000123-abc123def4567.png")
	assert.Equal(t, []string{"uploads/1700000000123-abc123def4567.png"}, bucket.presigns)
}

func TestPresignPublicURLShape(t *testing.T) {
	doc := completeDocument()
	doc.Storage.Cloudflare.PublicDomain = "pub.r2.dev"
	s := NewService(staticSource{doc: doc}, func(context.Context, settings.Cloudflare) (Bucket, error) {
		return &fakeBucket{host: "h"}, nil
	})

	res, err := s.Presign(context.Background(), doc.Storage.Cloudflare, doc.Storage.Upload, File{Name: "photo.png", Size: -1})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^https://pub\.r2\.dev/uploads/\d+-[0-9a-z]{13}\.png$`), res.PublicURL)
}

func TestPresignRejectsBeforeStorage(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*settings.Document)
		file   File
		want   error
	}{
		{"missing file", nil, File{}, ErrMissingFile},
		{"incomplete config", func(d *settings.Document) { d.Storage.Cloudflare.PublicDomain = "" }, File{Name: "a.png"}, ErrIncompleteConfig},
		{"type not allowed", nil, File{Name: "a.svg", ContentType: "image/svg+xml"}, ErrUnsupportedType},
		{"too large", nil, File{Name: "a.png", Size: 11 * 1024 * 1024}, ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := completeDocument()
			if tt.mutate != nil {
				tt.mutate(&doc)
			}
			bucket := &fakeBucket{host: "h"}
			s, calls := newTestService(doc, bucket)

			_, err := s.Presign(context.Background(), doc.Storage.Cloudflare, doc.Storage.Upload, tt.file)
			require.ErrorIs(t, err, tt.want)
			assert.Zero(t, *calls)
			assert.Empty(t, bucket.presigns)
		})
	}
}

func TestDirectWritesWithStoredCredentials(t *testing.T) {
	doc := completeDocument()
	bucket := &fakeBucket{host: "h"}
	s, _ := newTestService(doc, bucket)

	res, err := s.Direct(context.Background(), File{Name: "cat.jpg", ContentType: "image/jpeg", Size: 4, Body: strings.NewReader("meow")})
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/uploads/1700000000123-abc123def4567.jpg", res.PublicURL)
	assert.Equal(t, res.PublicURL, res.URL)

	require.Len(t, bucket.puts, 1)
	assert.Equal(t, putCall{key: "uploads/1700000000123-abc123def4567.jpg", contentType: "image/jpeg", size: 4, body: []byte("meow")}, bucket.puts[0])
}

func TestDirectIncompleteMakesNoStorageCall(t *testing.T) {
	bucket := &fakeBucket{host: "h"}
	s, calls := newTestService(settings.Default(), bucket)

	_, err := s.Direct(context.Background(), File{Name: "cat.jpg", Size: 4, Body: strings.NewReader("meow")})
	require.ErrorIs(t, err, ErrIncompleteConfig)
	assert.Zero(t, *calls)
}

func TestDirectWrapsStoreErrors(t *testing.T) {
	bucket := &fakeBucket{host: "h", putErr: errors.New("AccessDenied: Access Denied")}
	s, _ := newTestService(completeDocument(), bucket)

	_, err := s.Direct(context.Background(), File{Name: "cat.jpg", Size: 4, Body: strings.NewReader("meow")})
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "upload to R2 failed: AccessDenied: Access Denied", err.Error())
}

func TestProxy(t *testing.T) {
	type received struct {
		body        []byte
		contentType string
	}
	seen := make(chan received, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen <- received{body: body, contentType: r.Header.Get("Content-Type")}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()
	u, _ := url.Parse(ts.URL)

	s, _ := newTestService(completeDocument(), &fakeBucket{host: u.Host})
	res, err := s.Proxy(context.Background(), ts.URL+"/bucket/k.png?sig=1", "image/png", File{Name: "k.png", Size: 3, Body: bytes.NewReader([]byte("abc"))})
	require.NoError(t, err)
	assert.True(t, res.Success)
	got := <-seen
	assert.Equal(t, []byte("abc"), got.body)
	assert.Equal(t, "image/png", got.contentType)
}

func TestProxyReportsStoreStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "SignatureDoesNotMatch")
	}))
	defer ts.Close()
	u, _ := url.Parse(ts.URL)

	s, _ := newTestService(completeDocument(), &fakeBucket{host: u.Host})
	_, err := s.Proxy(context.Background(), ts.URL+"/k", "image/png", File{Name: "k.png", Size: 1, Body: strings.NewReader("a")})
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "SignatureDoesNotMatch")
}

func TestProxyRejectsForeignHosts(t *testing.T) {
	s, _ := newTestService(completeDocument(), &fakeBucket{host: "acct.r2.cloudflarestorage.com"})

	_, err := s.Proxy(context.Background(), "https://evil.example.com/x", "image/png", File{Name: "k.png", Size: 1, Body: strings.NewReader("a")})
	require.ErrorIs(t, err, ErrUntrustedTarget)

	_, err = s.Proxy(context.Background(), "", "image/png", File{Name: "k.png", Size: 1, Body: strings.NewReader("a")})
	require.ErrorIs(t, err, ErrMissingSignedURL)

	_, err = s.Proxy(context.Background(), "https://acct.r2.cloudflarestorage.com/x", "image/png", File{})
	require.ErrorIs(t, err, ErrMissingFile)
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "image/png", DetectContentType("a.png", ""))
	assert.Equal(t, "image/jpeg", DetectContentType("a.bin", "image/jpeg; charset=binary"))
	assert.Equal(t, "application/octet-stream", DetectContentType("noext", ""))
}
