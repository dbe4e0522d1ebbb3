package upload

import (
	"fmt"
	"path"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"freeimages/settings"
)

const (
	tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	tokenLength   = 13
)

// NewToken returns a short random lowercase base36 token.
func NewToken() (string, error) {
	return gonanoid.Generate(tokenAlphabet, tokenLength)
}

// Filename builds the stored name: the upload time in milliseconds, the
// token and the original extension.
func Filename(original string, now time.Time, token string) string {
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), token, path.Ext(original))
}

func Key(prefix, filename string) string {
	return prefix + filename
}

func PublicURL(domain, key string) string {
	return "https://" + strings.TrimRight(settings.StripProtocol(domain), "/") + "/" + key
}
