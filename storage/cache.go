package storage

import (
	"context"
	"errors"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/marshaler"
	"github.com/eko/gocache/lib/v4/store"
	bigCacheStore "github.com/eko/gocache/store/bigcache/v4"
	"github.com/sirupsen/logrus"
)

// NewMarshaler builds the in-memory cache shared by the object cache and the
// response cache. Entries live for ttl.
func NewMarshaler(ctx context.Context, ttl time.Duration) (*marshaler.Marshaler, error) {
	client, err := bigcache.New(ctx, bigcache.DefaultConfig(ttl))
	if err != nil {
		return nil, err
	}
	return marshaler.New(cache.New[any](bigCacheStore.NewBigcache(client))), nil
}

type Getter interface {
	Get(ctx context.Context, key string, cond *Conditions) (*Object, error)
}

type cachedObject struct {
	ETag         string
	LastModified time.Time
	ContentType  string
	Body         []byte
}

// ObjectCache keeps object bodies and revalidates them with the bucket on
// every read using the stored ETag and Last-Modified.
type ObjectCache struct {
	cache *marshaler.Marshaler
	ttl   time.Duration
}

// NewObjectCache uses the marshaler's default lifetime when ttl <= 0.
func NewObjectCache(m *marshaler.Marshaler, ttl time.Duration) *ObjectCache {
	return &ObjectCache{cache: m, ttl: ttl}
}

func (c *ObjectCache) lookup(ctx context.Context, key string) (*Object, error) {
	data := &cachedObject{}
	if _, err := c.cache.Get(ctx, key, data); err != nil {
		return nil, err
	}
	return &Object{
		ObjectAttribute: ObjectAttribute{
			ETag:         data.ETag,
			LastModified: data.LastModified,
			ContentType:  data.ContentType,
		},
		Body: data.Body,
	}, nil
}

func (c *ObjectCache) store(ctx context.Context, key string, obj *Object) error {
	var opts []store.Option
	if c.ttl > 0 {
		opts = append(opts, store.WithExpiration(c.ttl))
	}
	return c.cache.Set(ctx, key, &cachedObject{
		ETag:         obj.ETag,
		LastModified: obj.LastModified,
		ContentType:  obj.ContentType,
		Body:         obj.Body,
	}, opts...)
}

// Get returns key from bucket, answering from the cache when the bucket
// reports the cached copy is still current.
func (c *ObjectCache) Get(ctx context.Context, g Getter, bucket, key string) (*Object, error) {
	cacheKey := bucket + "/" + key

	var cond *Conditions
	cached, err := c.lookup(ctx, cacheKey)
	if err == nil {
		cond = &Conditions{IfNoneMatch: cached.ETag, IfModifiedSince: cached.LastModified}
	}

	obj, err := g.Get(ctx, key, cond)
	if errors.Is(err, ErrNotModified) && cached != nil {
		logrus.Debugln("Object not modified", cacheKey)
		return cached, nil
	}
	if err != nil {
		return nil, err
	}
	if err := c.store(ctx, cacheKey, obj); err != nil {
		logrus.Errorln("Error setting cache", err)
	}
	return obj, nil
}
