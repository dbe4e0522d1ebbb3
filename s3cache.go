package main

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"freeimages/settings"
	"freeimages/storage"
)

// BucketOpener builds a client for the bucket described by cf.
type BucketOpener func(ctx context.Context, cf settings.Cloudflare) (storage.Getter, error)

// S3Provider serves public-domain URLs from the bucket through the object
// cache. The client is rebuilt only when the stored credentials change.
type S3Provider struct {
	local   *settings.Local
	objects *storage.ObjectCache
	open    BucketOpener

	mu     sync.Mutex
	opened settings.Cloudflare
	getter storage.Getter
}

func NewS3ProviderWithObjectCache(local *settings.Local, objects *storage.ObjectCache, open BucketOpener) *S3Provider {
	return &S3Provider{
		local:   local,
		objects: objects,
		open:    open,
	}
}

func (s *S3Provider) bucket(ctx context.Context, cf settings.Cloudflare) (storage.Getter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getter != nil && s.opened == cf {
		return s.getter, nil
	}
	g, err := s.open(ctx, cf)
	if err != nil {
		return nil, err
	}
	s.opened, s.getter = cf, g
	return g, nil
}

func (s *S3Provider) Fetch(ctx context.Context, u *url.URL) (*storage.Object, error) {
	cf := s.local.Config().Storage.Cloudflare
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return nil, ErrSourceNotFound
	}
	g, err := s.bucket(ctx, cf)
	if err != nil {
		return nil, err
	}
	obj, err := s.objects.Get(ctx, g, cf.BucketName, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSourceNotFound
	}
	return obj, err
}
