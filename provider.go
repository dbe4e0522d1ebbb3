package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"freeimages/settings"
	"freeimages/storage"
)

// maxSourceBytes bounds how much of a remote image is read.
const maxSourceBytes = 32 << 20

var ErrSourceNotFound = errors.New("source image not found")

// Provider fetches the original bytes of an image to optimize.
type Provider interface {
	Fetch(ctx context.Context, u *url.URL) (*storage.Object, error)
}

type httpProvider struct {
	client *http.Client
}

func NewHTTPProvider(client *http.Client) Provider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &httpProvider{client: client}
}

func (p *httpProvider) Fetch(ctx context.Context, u *url.URL) (*storage.Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")
	res, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			logrus.Errorln("Error closing response body", err)
		}
	}()
	if res.StatusCode == http.StatusNotFound {
		return nil, ErrSourceNotFound
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", u.Host, res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxSourceBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxSourceBytes {
		return nil, fmt.Errorf("fetch %s: image larger than %d bytes", u.Host, maxSourceBytes)
	}
	obj := &storage.Object{
		ObjectAttribute: storage.ObjectAttribute{
			ETag:        res.Header.Get("ETag"),
			ContentType: res.Header.Get("Content-Type"),
		},
		Body: body,
	}
	if lm, err := http.ParseTime(res.Header.Get("Last-Modified")); err == nil {
		obj.LastModified = lm
	}
	return obj, nil
}

// SourceRouter reads images on the bucket's public domain straight from the
// bucket and everything else over HTTP.
type SourceRouter struct {
	local  *settings.Local
	bucket Provider
	remote Provider
}

func NewSourceRouter(local *settings.Local, bucket, remote Provider) *SourceRouter {
	return &SourceRouter{local: local, bucket: bucket, remote: remote}
}

// Route picks the provider for u and names it for metrics.
func (r *SourceRouter) Route(u *url.URL) (Provider, string) {
	cf := r.local.Config().Storage.Cloudflare
	public := strings.TrimSuffix(settings.StripProtocol(cf.PublicDomain), "/")
	if r.bucket != nil && cf.Complete() && public != "" && strings.EqualFold(u.Host, public) {
		return r.bucket, "bucket"
	}
	return r.remote, "remote"
}

func (r *SourceRouter) Fetch(ctx context.Context, u *url.URL) (*storage.Object, error) {
	p, _ := r.Route(u)
	return p.Fetch(ctx, u)
}
