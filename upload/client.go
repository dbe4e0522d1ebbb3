package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/sirupsen/logrus"

	"freeimages/settings"
)

type Strategy int

const (
	// Presigned asks the server for a signed URL and writes to the store itself.
	Presigned Strategy = iota
	// Direct sends the file to the server, which writes it to the store.
	Direct
)

func (s Strategy) String() string {
	switch s {
	case Presigned:
		return "presigned"
	case Direct:
		return "direct"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Client uploads files from outside the server, gated on the remote
// configuration being complete.
type Client struct {
	remote *settings.Remote
	client *http.Client
}

func NewClient(remote *settings.Remote) *Client {
	return &Client{remote: remote, client: remote.HTTPClient()}
}

type LocalFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Upload stores f and returns its public URL. The configuration gate and the
// empty file check happen before any request is made.
func (c *Client) Upload(ctx context.Context, f LocalFile, strategy Strategy) (string, error) {
	if f.Name == "" || len(f.Data) == 0 {
		return "", ErrMissingFile
	}
	if !c.remote.IsComplete() {
		return "", ErrIncompleteConfig
	}
	f.ContentType = DetectContentType(f.Name, f.ContentType)

	switch strategy {
	case Presigned:
		return c.presigned(ctx, f)
	case Direct:
		return c.direct(ctx, f)
	}
	return "", fmt.Errorf("unknown upload strategy %v", strategy)
}

func (c *Client) presigned(ctx context.Context, f LocalFile) (string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	_ = w.WriteField("filename", f.Name)
	_ = w.WriteField("contentType", f.ContentType)
	_ = w.WriteField("size", fmt.Sprint(len(f.Data)))
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.remote.BaseURL()+"/api/upload", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	SetCredentialHeaders(req.Header, c.remote.Config())

	result, err := c.send(req)
	if err != nil {
		return "", fmt.Errorf("request signed URL: %w", err)
	}
	logrus.WithField("publicUrl", result.PublicURL).Debugln("Signed URL received")

	put, err := http.NewRequestWithContext(ctx, http.MethodPut, result.SignedURL, bytes.NewReader(f.Data))
	if err != nil {
		return "", err
	}
	put.Header.Set("Content-Type", result.ContentType)
	res, err := c.client.Do(put)
	if err != nil {
		return "", fmt.Errorf("upload to signed URL: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("upload to signed URL: %s", res.Status)
	}
	return result.PublicURL, nil
}

func (c *Client) direct(ctx context.Context, f LocalFile) (string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
	h.Set("Content-Type", f.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(f.Data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.remote.BaseURL()+"/api/upload/direct", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	result, err := c.send(req)
	if err != nil {
		return "", fmt.Errorf("direct upload: %w", err)
	}
	return result.PublicURL, nil
}

func (c *Client) send(req *http.Request) (*Response, error) {
	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = res.Body.Close()
	}()
	var result Response
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response (%s): %w", res.Status, err)
	}
	if !result.Success {
		if result.Error == "" {
			result.Error = res.Status
		}
		return nil, errors.New(result.Error)
	}
	return &result, nil
}
