package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freeimages/metrics"
	"freeimages/upload"
)

func decodeUpload(t *testing.T, w *httptest.ResponseRecorder) upload.Response {
	t.Helper()
	var res upload.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return res
}

func TestPresignIncompleteConfig(t *testing.T) {
	ts := newTestServer(t, nil)
	before := testutil.ToFloat64(metrics.Uploads.WithLabelValues("presigned", "error"))

	w := ts.do(multipartRequest(t, "/api/upload", map[string]string{
		"filename": "photo.png", "contentType": "image/png", "size": "100",
	}, nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	res := decodeUpload(t, w)
	assert.False(t, res.Success)
	assert.Equal(t, upload.ErrIncompleteConfig.Error(), res.Error)
	assert.Zero(t, ts.opened.Load(), "no bucket client for an incomplete config")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Uploads.WithLabelValues("presigned", "error")))
}

func TestPresignFromFields(t *testing.T) {
	ts := newTestServer(t, completeStorage())

	w := ts.do(multipartRequest(t, "/api/upload", map[string]string{
		"filename": "photo.png", "contentType": "image/png", "size": "100",
	}, nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeUpload(t, w)
	assert.True(t, res.Success)
	assert.Equal(t, "https://img.example.com/uploads/1700000000123-abc123def4567.png", res.PublicURL)
	assert.Equal(t, "image/png", res.ContentType)
	assert.Contains(t, res.SignedURL, "acct123.r2.cloudflarestorage.com")
	assert.Equal(t, []string{"uploads/1700000000123-abc123def4567.png"}, ts.bucket.presigns)
	assert.Empty(t, ts.bucket.puts)
}

func TestPresignHeadersOverrideStored(t *testing.T) {
	ts := newTestServer(t, completeStorage())

	req := multipartRequest(t, "/api/upload", nil, &formFilePart{name: "cat.jpg", contentType: "image/jpeg", data: []byte("jpeg")})
	req.Header.Set(upload.HeaderPublicDomain, "cdn.example.com")
	req.Header.Set(upload.HeaderUploadPath, "cats/")
	req.Header.Set(upload.HeaderSecretAccessKey, "******")
	w := ts.do(req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeUpload(t, w)
	assert.Equal(t, "https://cdn.example.com/cats/1700000000123-abc123def4567.jpg", res.PublicURL)
}

func TestPresignForeignBucketWithoutSecret(t *testing.T) {
	ts := newTestServer(t, completeStorage())

	req := multipartRequest(t, "/api/upload", map[string]string{
		"filename": "photo.png", "contentType": "image/png", "size": "100",
	}, nil)
	req.Header.Set(upload.HeaderBucketName, "private-backups")
	req.Header.Set(upload.HeaderUploadPath, "dump/")
	w := ts.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, upload.ErrIncompleteConfig.Error(), decodeUpload(t, w).Error)
	assert.Zero(t, ts.opened.Load())
	assert.Empty(t, ts.bucket.presigns)
}

func TestPresignValidation(t *testing.T) {
	ts := newTestServer(t, completeStorage())

	cases := map[string]struct {
		fields map[string]string
		status int
	}{
		"missing name":  {map[string]string{"contentType": "image/png"}, http.StatusBadRequest},
		"wrong type":    {map[string]string{"filename": "notes.txt", "contentType": "text/plain"}, http.StatusUnsupportedMediaType},
		"over max size": {map[string]string{"filename": "big.png", "size": strconv.Itoa(11 * 1024 * 1024)}, http.StatusRequestEntityTooLarge},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := ts.do(multipartRequest(t, "/api/upload", tc.fields, nil))
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.False(t, decodeUpload(t, w).Success)
		})
	}
	assert.Empty(t, ts.bucket.presigns)
}

func TestDirectUpload(t *testing.T) {
	ts := newTestServer(t, completeStorage())
	before := testutil.ToFloat64(metrics.Uploads.WithLabelValues("direct", "ok"))

	w := ts.do(multipartRequest(t, "/api/upload/direct", nil, &formFilePart{name: "photo.png", contentType: "image/png", data: []byte("pngdata")}))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeUpload(t, w)
	assert.True(t, res.Success)
	assert.Equal(t, "https://img.example.com/uploads/1700000000123-abc123def4567.png", res.URL)
	require.Len(t, ts.bucket.puts, 1)
	put := ts.bucket.puts[0]
	assert.Equal(t, "uploads/1700000000123-abc123def4567.png", put.key)
	assert.Equal(t, "image/png", put.contentType)
	assert.Equal(t, int64(7), put.size)
	assert.Equal(t, "pngdata", string(put.body))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Uploads.WithLabelValues("direct", "ok")))
}

func TestDirectUploadMissingFile(t *testing.T) {
	ts := newTestServer(t, completeStorage())

	w := ts.do(multipartRequest(t, "/api/upload/direct", map[string]string{"filename": "photo.png"}, nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, upload.ErrMissingFile.Error(), decodeUpload(t, w).Error)
	assert.Empty(t, ts.bucket.puts)
}

func TestProxyUpload(t *testing.T) {
	received := make(chan string, 1)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- r.Method + " " + r.Header.Get("Content-Type") + " " + string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	ts := newTestServer(t, completeStorage())
	ts.bucket.host = strings.TrimPrefix(target.URL, "http://")

	w := ts.do(multipartRequest(t, "/api/upload/proxy", map[string]string{
		"signedUrl":   target.URL + "/photos/uploads/a.png?X-Amz-Signature=abc",
		"contentType": "image/png",
	}, &formFilePart{name: "a.png", contentType: "image/png", data: []byte("png")}))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decodeUpload(t, w).Success)
	assert.Equal(t, "PUT image/png png", <-received)
}

func TestProxyUploadRejectsForeignTarget(t *testing.T) {
	ts := newTestServer(t, completeStorage())

	w := ts.do(multipartRequest(t, "/api/upload/proxy", map[string]string{
		"signedUrl": "https://evil.example.com/steal",
	}, &formFilePart{name: "a.png", contentType: "image/png", data: []byte("png")}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, upload.ErrUntrustedTarget.Error(), decodeUpload(t, w).Error)
}

func TestUploadStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, uploadStatus(&upload.UpstreamError{Err: io.ErrUnexpectedEOF}))
	assert.Equal(t, http.StatusInternalServerError, uploadStatus(io.EOF))
	assert.Equal(t, http.StatusBadRequest, uploadStatus(upload.ErrMissingSignedURL))
}
