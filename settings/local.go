package settings

import (
	"context"
	"regexp"
)

// Manager is the read/update surface shared by the server process and its
// remote clients.
type Manager interface {
	Config() Document
	Update(ctx context.Context, patch Patch) (Document, error)
}

var protocolPattern = regexp.MustCompile(`^https?://`)

// StripProtocol removes a leading http:// or https:// from a domain.
func StripProtocol(domain string) string {
	return protocolPattern.ReplaceAllString(domain, "")
}

// Local is the store-backed Manager used by the server. Every read goes back
// to the file.
type Local struct {
	store *Store
}

func NewLocal(store *Store) *Local {
	return &Local{store: store}
}

func (l *Local) Config() Document {
	return l.store.Load()
}

func (l *Local) Update(_ context.Context, patch Patch) (Document, error) {
	return l.store.Update(patch)
}

// ImageDomains lists the hosts images may be served from: configured domains
// first, then the bucket's public domain, without duplicates.
func (l *Local) ImageDomains() []string {
	return ImageDomains(l.Config())
}

func (l *Local) ImageFormats() []string {
	return l.Config().App.Images.Formats
}

func ImageDomains(doc Document) []string {
	configured := doc.App.Images.Domains
	domains := make([]string, 0, len(configured)+1)
	seen := make(map[string]struct{}, len(configured)+1)
	add := func(d string) {
		if d == "" {
			return
		}
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		domains = append(domains, d)
	}
	for _, d := range configured {
		add(d)
	}
	add(StripProtocol(doc.Storage.Cloudflare.PublicDomain))
	return domains
}

// Redact returns a copy of doc safe to send to clients.
func Redact(doc Document) Document {
	if doc.Storage.Cloudflare.SecretAccessKey != "" {
		doc.Storage.Cloudflare.SecretAccessKey = Mask
	}
	return doc
}

// RedactPassword masks the admin password as well, for callers without a
// session.
func RedactPassword(doc Document) Document {
	if doc.App.Security.AdminPassword != "" {
		doc.App.Security.AdminPassword = Mask
	}
	return doc
}

// StripMask removes masked values from patch so that a client sending back
// its redacted copy keeps the stored secret and password. patch is modified
// in place.
func StripMask(patch Patch) Patch {
	dropMasked(patch, "storage", "cloudflare", "secretAccessKey")
	dropMasked(patch, "app", "security", "adminPassword")
	return patch
}

func dropMasked(patch Patch, group, section, key string) {
	g, ok := asObject(patch[group])
	if !ok {
		return
	}
	sec, ok := asObject(g[section])
	if !ok {
		return
	}
	if v, ok := sec[key].(string); ok && v == Mask {
		delete(sec, key)
	}
}
