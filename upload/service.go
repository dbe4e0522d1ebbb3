package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"freeimages/settings"
)

// PresignTTL is how long a signed upload URL stays valid.
const PresignTTL = time.Hour

var (
	ErrMissingFile      = errors.New("no file provided")
	ErrMissingSignedURL = errors.New("no signed URL provided")
	ErrIncompleteConfig = errors.New("storage configuration is incomplete")
	ErrUnsupportedType  = errors.New("file type is not allowed")
	ErrTooLarge         = errors.New("file exceeds the maximum upload size")
	ErrUntrustedTarget  = errors.New("signed URL does not point at the configured bucket")
)

// UpstreamError is a failure reported by, or on the way to, the object store.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return "upload to R2 failed: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Bucket is the part of the object store the orchestrator writes through.
type Bucket interface {
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	EndpointHost() string
}

type BucketFactory func(ctx context.Context, cf settings.Cloudflare) (Bucket, error)

// Source yields the current stored document.
type Source interface {
	Config() settings.Document
}

// File describes one upload. Size is -1 when unknown; Body may be nil when
// only a signed URL is requested.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Service struct {
	source  Source
	buckets BucketFactory
	client  *http.Client
	now     func() time.Time
	token   func() (string, error)
	ttl     time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithTokens(token func() (string, error)) Option {
	return func(s *Service) { s.token = token }
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.client = c }
}

func WithPresignTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewService(source Source, buckets BucketFactory, opts ...Option) *Service {
	s := &Service{
		source:  source,
		buckets: buckets,
		client:  http.DefaultClient,
		now:     time.Now,
		token:   NewToken,
		ttl:     PresignTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Presign issues a signed PUT URL for f under the given credentials and
// upload settings. Nothing is written to the store.
func (s *Service) Presign(ctx context.Context, cf settings.Cloudflare, up settings.Upload, f File) (*Response, error) {
	key, contentType, err := s.prepare(cf, up, f)
	if err != nil {
		return nil, err
	}
	bucket, err := s.buckets(ctx, cf)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	signed, err := bucket.PresignPut(ctx, key, contentType, s.ttl)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	logrus.WithFields(logrus.Fields{"bucket": cf.BucketName, "key": key}).Infoln("Signed upload URL issued")
	return &Response{
		Success:     true,
		SignedURL:   signed,
		PublicURL:   PublicURL(cf.PublicDomain, key),
		ContentType: contentType,
	}, nil
}

// Direct writes f to the bucket with the stored credentials.
func (s *Service) Direct(ctx context.Context, f File) (*Response, error) {
	if f.Body == nil {
		return nil, ErrMissingFile
	}
	doc := s.source.Config()
	cf := doc.Storage.Cloudflare
	key, contentType, err := s.prepare(cf, doc.Storage.Upload, f)
	if err != nil {
		return nil, err
	}
	bucket, err := s.buckets(ctx, cf)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	if err := bucket.Put(ctx, key, f.Body, f.Size, contentType); err != nil {
		return nil, &UpstreamError{Err: err}
	}
	publicURL := PublicURL(cf.PublicDomain, key)
	logrus.WithFields(logrus.Fields{"bucket": cf.BucketName, "key": key, "size": f.Size}).Infoln("Upload stored")
	return &Response{Success: true, URL: publicURL, PublicURL: publicURL}, nil
}

// Proxy PUTs f to a URL previously signed for the configured bucket. Used
// when a browser cannot reach the store directly.
func (s *Service) Proxy(ctx context.Context, signedURL, contentType string, f File) (*Response, error) {
	if f.Body == nil {
		return nil, ErrMissingFile
	}
	if signedURL == "" {
		return nil, ErrMissingSignedURL
	}
	cf := s.source.Config().Storage.Cloudflare
	if !cf.Complete() {
		return nil, ErrIncompleteConfig
	}
	bucket, err := s.buckets(ctx, cf)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	target, err := url.Parse(signedURL)
	if err != nil || target.Host == "" || target.Host != bucket.EndpointHost() {
		return nil, ErrUntrustedTarget
	}
	if contentType == "" {
		contentType = f.ContentType
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), f.Body)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	if f.Size >= 0 {
		req.ContentLength = f.Size
	}
	req.Header.Set("Content-Type", contentType)
	res, err := s.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			logrus.Errorln("Error closing response body", err)
		}
	}()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &UpstreamError{Err: fmt.Errorf("%s: %s", res.Status, detail)}
	}
	logrus.WithField("host", target.Host).Infoln("Proxied upload stored")
	return &Response{Success: true}, nil
}

func (s *Service) prepare(cf settings.Cloudflare, up settings.Upload, f File) (key, contentType string, err error) {
	if f.Name == "" {
		return "", "", ErrMissingFile
	}
	if !cf.Complete() {
		return "", "", ErrIncompleteConfig
	}
	contentType = DetectContentType(f.Name, f.ContentType)
	if len(up.AllowedTypes) > 0 && !slices.Contains(up.AllowedTypes, contentType) {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	if up.MaxSize > 0 && f.Size > int64(up.MaxSize*1024*1024) {
		return "", "", fmt.Errorf("%w: limit is %g MB", ErrTooLarge, up.MaxSize)
	}
	token, err := s.token()
	if err != nil {
		return "", "", fmt.Errorf("generate file name: %w", err)
	}
	return Key(up.Path, Filename(f.Name, s.now(), token)), contentType, nil
}

// DetectContentType prefers the declared type and falls back to the file
// extension.
func DetectContentType(name, declared string) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return mt
		}
	}
	if byExt := mime.TypeByExtension(path.Ext(name)); byExt != "" {
		if mt, _, err := mime.ParseMediaType(byExt); err == nil {
			return mt
		}
	}
	return "application/octet-stream"
}
