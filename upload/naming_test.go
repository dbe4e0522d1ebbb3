package upload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToken(t *testing.T) {
	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)

	assert.Regexp(t, `^[0-9a-z]{13}$`, a)
	assert.NotEqual(t, a, b)
}

func TestFilename(t *testing.T) {
	now := time.UnixMilli(1712345678901)
	assert.Equal(t, "1712345678901-tok.png", Filename("photo.png", now, "tok"))
	assert.Equal(t, "1712345678901-tok.gz", Filename("archive.tar.gz", now, "tok"))
	assert.Equal(t, "1712345678901-tok", Filename("README", now, "tok"))
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "https://pub.r2.dev/uploads/a.png", PublicURL("pub.r2.dev", "uploads/a.png"))
	assert.Equal(t, "https://img.example.com/uploads/a.png", PublicURL("https://img.example.com/", Key("uploads/", "a.png")))
	assert.Equal(t, "https://img.example.com/a.png", PublicURL("http://img.example.com", Key("", "a.png")))
}
