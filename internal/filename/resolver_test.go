package filename

import (
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var synthesized = regexp.MustCompile(`^file_[a-zA-Z0-9]{8}(\.[a-z0-9]+)$`)

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func TestResolveFromURL(t *testing.T) {
	r := NewSeededResolver(1, 2)
	tests := []struct {
		url      string
		expected string
	}{
		{"https://example.com/a.zip", "a.zip"},
		{"https://example.com/dir/sub/archive.tar.gz?token=abc", "archive.tar.gz"},
		{"https://example.com/files/report%20final.pdf", "report final.pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, r.Resolve(tt.url, nil), tt.url)
	}
	// last segment without an extension is replaced
	assert.Regexp(t, synthesized, r.Resolve("https://example.com/dir/", nil))
}

func TestResolveContentDispositionOverrides(t *testing.T) {
	r := NewSeededResolver(1, 2)
	tests := []struct {
		name        string
		disposition string
		expected    string
	}{
		{"quoted", `attachment; filename="report.pdf"`, "report.pdf"},
		{"bare", `attachment; filename=data.csv`, "data.csv"},
		{"rfc2231", `attachment; filename*=UTF-8''na%C3%AFve.txt`, "naïve.txt"},
		{"malformed", `attachment; filename=weird name.zip`, "weird name.zip"},
		{"single quotes", `attachment; filename='x y.iso`, "x y.iso"},
		{"path traversal", `attachment; filename="../../etc/passwd.txt"`, ".._.._etc_passwd.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve("https://example.com/download.php", headers("Content-Disposition", tt.disposition))
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolveDispositionWithoutFilenameKeepsURLName(t *testing.T) {
	r := NewSeededResolver(1, 2)
	assert.Equal(t, "a.zip", r.Resolve("https://example.com/a.zip", headers("Content-Disposition", "inline")))
}

func TestResolveSynthesizesExtension(t *testing.T) {
	tests := []struct {
		contentType string
		ext         string
	}{
		{"application/pdf", ".pdf"},
		{"image/png; charset=binary", ".png"},
		{"Application/JSON", ".json"},
		{"application/x-unknown", ".bin"},
		{"", ".bin"},
	}
	for _, tt := range tests {
		r := NewSeededResolver(7, 7)
		name := r.Resolve("https://example.com/download", headers("Content-Type", tt.contentType))
		require.Regexp(t, synthesized, name)
		assert.Equal(t, tt.ext, synthesized.FindStringSubmatch(name)[1], tt.contentType)
	}
}

func TestResolveNoHeadersDefaultsToBin(t *testing.T) {
	r := NewSeededResolver(3, 4)
	name := r.Resolve("https://example.com/", nil)
	assert.Regexp(t, `^file_[a-zA-Z0-9]{8}\.bin$`, name)
}

func TestResolveDeterministic(t *testing.T) {
	h := headers("Content-Type", "video/mp4")
	first := NewSeededResolver(42, 99).Resolve("https://example.com/stream", h)
	second := NewSeededResolver(42, 99).Resolve("https://example.com/stream", h)
	assert.Equal(t, first, second)

	other := NewSeededResolver(43, 99).Resolve("https://example.com/stream", h)
	assert.NotEqual(t, first, other)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".apk", ExtensionFor("application/vnd.android.package-archive"))
	assert.Equal(t, ".mp3", ExtensionFor(" audio/mpeg ; q=1"))
	assert.Equal(t, ".bin", ExtensionFor("application/octet-stream"))
}
