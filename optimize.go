package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"freeimages/config"
	"freeimages/metrics"
	"freeimages/settings"
	"freeimages/storage"
)

type imageQuery struct {
	URL       string `form:"url"`
	Width     int    `form:"w"`
	Quality   int    `form:"q"`
	Signature string `form:"s"`
}

func abortImage(c *gin.Context, status int, message string) {
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// CacheControlHandle marks responses cacheable up front; every error path
// replaces the header with no-store before writing.
func CacheControlHandle(cfg config.CacheControl) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Enabled {
			c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cfg.MaxAge.Seconds())))
		}
		c.Next()
	}
}

func ParseImageRequestHandle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var query imageQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			abortImage(c, http.StatusBadRequest, "Invalid image parameters")
			return
		}
		if query.URL == "" {
			abortImage(c, http.StatusBadRequest, "Missing url parameter")
			return
		}
		u, err := url.Parse(query.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			abortImage(c, http.StatusBadRequest, "Invalid url parameter")
			return
		}
		if query.Width < 0 {
			abortImage(c, http.StatusBadRequest, fmt.Sprintf("Invalid width %d", query.Width))
			return
		}
		if query.Quality == 0 {
			query.Quality = defaultQuality
		}
		if query.Quality < 1 || query.Quality > 100 {
			abortImage(c, http.StatusBadRequest, fmt.Sprintf("Invalid quality %d", query.Quality))
			return
		}

		request := newImageRequest(u.String())
		request.Width = query.Width
		request.Quality = query.Quality
		c.Set("request", request)
		c.Set("source", u)
		c.Set("hmac", query.Signature)
		c.Next()
	}
}

func VerifyHMACHandle(cfg config.Signing) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		request := c.MustGet("request").(*ImageRequest)
		message := imageMessage(request.Source, request.Width, request.Quality)
		if !hmacVerify(cfg, message, c.GetString("hmac")) {
			abortImage(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		c.Next()
	}
}

// AllowedDomainHandle rejects sources outside the configured image domains.
func AllowedDomainHandle(local *settings.Local) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := c.MustGet("source").(*url.URL)
		domains := local.ImageDomains()
		if !slices.ContainsFunc(domains, func(d string) bool {
			return strings.EqualFold(d, u.Host) || strings.EqualFold(d, u.Hostname())
		}) {
			abortImage(c, http.StatusBadRequest, "Domain not allowed")
			return
		}
		c.Next()
	}
}

// NegotiateFormatHandle picks the first configured output format the client
// accepts. Without a match the source format is kept.
func NegotiateFormatHandle(local *settings.Local) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := c.MustGet("request").(*ImageRequest)
		c.Header("Vary", "Accept")
		accept := strings.ToLower(c.GetHeader("Accept"))
		for _, format := range local.ImageFormats() {
			t := typeFromMime(format)
			if t != vips.ImageTypeUnknown && strings.Contains(accept, mimeOf(t)) {
				request.Type = t
				break
			}
		}
		c.Next()
	}
}

// imageETag identifies one rendition of one source version.
func imageETag(obj *storage.Object, request *ImageRequest) string {
	hash := sha256.New()
	if obj.ETag != "" {
		hash.Write([]byte(obj.ETag))
	} else {
		hash.Write(obj.Body)
	}
	fmt.Fprintf(hash, "|%d|%d|%d", request.Width, request.Quality, request.Type)
	return `"` + hex.EncodeToString(hash.Sum(nil))[:32] + `"`
}

func GetImageHandle(p *SourceRouter) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := c.MustGet("request").(*ImageRequest)
		u := c.MustGet("source").(*url.URL)

		provider, source := p.Route(u)
		obj, err := provider.Fetch(c.Request.Context(), u)
		if errors.Is(err, ErrSourceNotFound) {
			abortImage(c, http.StatusNotFound, "File not found")
			return
		}
		if err != nil {
			logrus.WithError(err).WithField("source", source).Errorln("Error fetching image")
			abortImage(c, http.StatusBadGateway, "Error fetching image")
			return
		}
		metrics.ImageRequests.WithLabelValues(source, "miss").Inc()

		etag := imageETag(obj, request)
		c.Header("ETag", etag)
		if !obj.LastModified.IsZero() {
			c.Header("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
		}
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}

		img, err := vips.NewImageFromBuffer(obj.Body)
		if err != nil {
			logrus.Errorln("Error reading image:", err)
			abortImage(c, http.StatusUnsupportedMediaType, "Invalid Image")
			return
		}
		defer img.Close()

		if !encodable(img.Format()) && request.Type == vips.ImageTypeUnknown {
			// Formats the optimizer cannot write, such as GIF or SVG, pass through.
			contentType := obj.ContentType
			if contentType == "" {
				contentType = http.DetectContentType(obj.Body)
			}
			c.Data(http.StatusOK, contentType, obj.Body)
			return
		}

		logrus.Debugf("Image option: %+v", request.Options)
		imageBytes, t, err := Process(img, request.Options)
		if err != nil {
			logrus.Errorln("Error processing image:", err)
			abortImage(c, http.StatusInternalServerError, "Error processing image")
			return
		}
		c.Data(http.StatusOK, mimeOf(t), imageBytes)
	}
}
