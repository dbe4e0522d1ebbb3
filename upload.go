package main

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"freeimages/metrics"
	"freeimages/settings"
	"freeimages/upload"
)

// LimitBodyHandle caps the request body at max bytes.
func LimitBodyHandle(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}

// formFile reads the "file" part. When required is false a missing part
// falls back to the filename, contentType and size form fields.
func formFile(c *gin.Context, required bool) (upload.File, io.Closer, error) {
	header, err := c.FormFile("file")
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return upload.File{}, nil, upload.ErrTooLarge
	}
	if err == nil {
		return openPart(header)
	}
	if required {
		return upload.File{}, nil, upload.ErrMissingFile
	}
	size, perr := strconv.ParseInt(c.PostForm("size"), 10, 64)
	if perr != nil {
		size = -1
	}
	return upload.File{
		Name:        c.PostForm("filename"),
		ContentType: c.PostForm("contentType"),
		Size:        size,
	}, nil, nil
}

func openPart(header *multipart.FileHeader) (upload.File, io.Closer, error) {
	f, err := header.Open()
	if err != nil {
		return upload.File{}, nil, err
	}
	return upload.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        f,
	}, f, nil
}

func closePart(closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logrus.Errorln("Error closing upload", err)
	}
}

func uploadStatus(err error) int {
	var upstream *upload.UpstreamError
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, upload.ErrMissingFile),
		errors.Is(err, upload.ErrMissingSignedURL),
		errors.Is(err, upload.ErrIncompleteConfig),
		errors.Is(err, upload.ErrUntrustedTarget):
		return http.StatusBadRequest
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeUploadError(c *gin.Context, strategy string, err error) {
	status := uploadStatus(err)
	entry := logrus.WithError(err).WithField("strategy", strategy)
	if status >= 500 {
		entry.Errorln("Upload failed")
	} else {
		entry.Warnln("Upload rejected")
	}
	metrics.Uploads.WithLabelValues(strategy, "error").Inc()
	c.JSON(status, upload.Response{Success: false, Error: err.Error()})
}

// PresignHandle answers with a signed PUT URL. Credentials in the request
// headers take precedence over the stored ones; see LayerCredentialHeaders
// for when the stored secret still applies.
func PresignHandle(local *settings.Local, svc *upload.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, closer, err := formFile(c, false)
		defer closePart(closer)
		if err != nil {
			writeUploadError(c, "presigned", err)
			return
		}

		cf, up := upload.LayerCredentialHeaders(local.Config(), c.Request.Header)
		res, err := svc.Presign(c.Request.Context(), cf, up, f)
		if err != nil {
			writeUploadError(c, "presigned", err)
			return
		}
		metrics.Uploads.WithLabelValues("presigned", "ok").Inc()
		c.JSON(http.StatusOK, res)
	}
}

func DirectUploadHandle(svc *upload.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, closer, err := formFile(c, true)
		defer closePart(closer)
		if err != nil {
			writeUploadError(c, "direct", err)
			return
		}

		res, err := svc.Direct(c.Request.Context(), f)
		if err != nil {
			writeUploadError(c, "direct", err)
			return
		}
		metrics.Uploads.WithLabelValues("direct", "ok").Inc()
		c.JSON(http.StatusOK, res)
	}
}

func ProxyUploadHandle(svc *upload.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, closer, err := formFile(c, true)
		defer closePart(closer)
		if err != nil {
			writeUploadError(c, "proxy", err)
			return
		}

		res, err := svc.Proxy(c.Request.Context(), c.PostForm("signedUrl"), c.PostForm("contentType"), f)
		if err != nil {
			writeUploadError(c, "proxy", err)
			return
		}
		metrics.Uploads.WithLabelValues("proxy", "ok").Inc()
		c.JSON(http.StatusOK, res)
	}
}
