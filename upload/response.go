package upload

import (
	"net/http"
	"strings"

	"freeimages/settings"
)

// Response is the JSON body of every upload endpoint.
type Response struct {
	Success     bool   `json:"success"`
	URL         string `json:"url,omitempty"`
	PublicURL   string `json:"publicUrl,omitempty"`
	SignedURL   string `json:"signedUrl,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Credential headers accepted by the presign endpoint.
const (
	HeaderAccountID       = "X-Account-Id"
	HeaderAccessKeyID     = "X-Access-Key-Id"
	HeaderSecretAccessKey = "X-Secret-Access-Key"
	HeaderBucketName      = "X-Bucket-Name"
	HeaderUploadPath      = "X-Upload-Path"
	HeaderPublicDomain    = "X-Public-Domain"
)

// SetCredentialHeaders writes the storage fields of doc onto h.
func SetCredentialHeaders(h http.Header, doc settings.Document) {
	cf := doc.Storage.Cloudflare
	h.Set(HeaderAccountID, cf.AccountID)
	h.Set(HeaderAccessKeyID, cf.AccessKeyID)
	h.Set(HeaderSecretAccessKey, cf.SecretAccessKey)
	h.Set(HeaderBucketName, cf.BucketName)
	h.Set(HeaderUploadPath, doc.Storage.Upload.Path)
	h.Set(HeaderPublicDomain, cf.PublicDomain)
}

// LayerCredentialHeaders overrides stored storage settings with non-empty
// header values. The stored secret is only reused while account, access key
// and bucket still match the stored ones; a request aiming anywhere else has
// to bring its own secret. A masked secret counts as absent.
func LayerCredentialHeaders(doc settings.Document, h http.Header) (settings.Cloudflare, settings.Upload) {
	stored := doc.Storage.Cloudflare
	cf := stored
	up := doc.Storage.Upload
	pick := func(dst *string, name string) {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			*dst = v
		}
	}
	pick(&cf.AccountID, HeaderAccountID)
	pick(&cf.AccessKeyID, HeaderAccessKeyID)
	pick(&cf.BucketName, HeaderBucketName)
	pick(&up.Path, HeaderUploadPath)
	pick(&cf.PublicDomain, HeaderPublicDomain)

	if v := strings.TrimSpace(h.Get(HeaderSecretAccessKey)); v != "" && v != settings.Mask {
		cf.SecretAccessKey = v
	} else if !sameTarget(cf, stored) {
		cf.SecretAccessKey = ""
	}
	return cf, up
}

func sameTarget(a, b settings.Cloudflare) bool {
	same := func(x, y string) bool {
		return strings.TrimSpace(x) == strings.TrimSpace(y)
	}
	return same(a.AccountID, b.AccountID) && same(a.AccessKeyID, b.AccessKeyID) && same(a.BucketName, b.BucketName)
}
