package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"net/http"

	"github.com/eko/gocache/lib/v4/marshaler"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"freeimages/metrics"
)

// cachedWriter keeps a copy of the body alongside the real response.
type cachedWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *cachedWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.body.Write(b[:n])
	return n, err
}

func (w *cachedWriter) WriteString(s string) (int, error) {
	n, err := w.ResponseWriter.WriteString(s)
	w.body.WriteString(s[:n])
	return n, err
}

type responseCache struct {
	Status int
	Header http.Header
	Data   []byte
}

func requestKey(request *ImageRequest) (string, error) {
	hash := sha256.New()
	if err := gob.NewEncoder(hash).Encode(request); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// CacheRequestHandle replays successful optimizer responses for identical
// requests.
func CacheRequestHandle(ctx context.Context, marshal *marshaler.Marshaler) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := c.MustGet("request").(*ImageRequest)

		key, err := requestKey(request)
		if err != nil {
			logrus.Errorln("Error encoding request", err)
			c.Next()
			return
		}

		response := &responseCache{}
		if _, err := marshal.Get(ctx, key, response); err == nil {
			metrics.ImageRequests.WithLabelValues("cache", "hit").Inc()
			for k, values := range response.Header {
				if k == http.CanonicalHeaderKey(requestIDHeader) {
					continue
				}
				c.Writer.Header()[k] = values
			}
			if etag := response.Header.Get("ETag"); etag != "" && c.GetHeader("If-None-Match") == etag {
				c.AbortWithStatus(http.StatusNotModified)
				return
			}
			c.Writer.WriteHeader(response.Status)
			if _, err := c.Writer.Write(response.Data); err != nil {
				logrus.Errorln("Error writing cached response", err)
			}
			c.Abort()
			return
		}

		writer := &cachedWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		if writer.Status() != http.StatusOK || len(c.Errors) > 0 || writer.body.Len() == 0 {
			return
		}
		entry := &responseCache{
			Status: writer.Status(),
			Header: writer.Header().Clone(),
			Data:   writer.body.Bytes(),
		}
		if err := marshal.Set(ctx, key, entry); err != nil {
			logrus.Errorln("Error caching response", err)
		}
	}
}
