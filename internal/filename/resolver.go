package filename

import (
	"math/rand/v2"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"
)

const (
	fallbackPrefix = "file_"
	fallbackExt    = ".bin"
	randomLength   = 8
	alphanumerics  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var unsafeChars = regexp.MustCompile(`[/\\:*?"<>|\x00-\x1f]+`)

var extensions = map[string]string{
	"image/jpeg":                              ".jpg",
	"image/png":                               ".png",
	"image/gif":                               ".gif",
	"image/webp":                              ".webp",
	"application/pdf":                         ".pdf",
	"application/zip":                         ".zip",
	"application/gzip":                        ".gz",
	"application/x-tar":                       ".tar",
	"text/plain":                              ".txt",
	"text/csv":                                ".csv",
	"text/html":                               ".html",
	"application/json":                        ".json",
	"application/xml":                         ".xml",
	"video/mp4":                               ".mp4",
	"audio/mpeg":                              ".mp3",
	"application/msword":                      ".doc",
	"application/vnd.android.package-archive": ".apk",
}

// Resolver picks the local file name for a download. Given the same random
// source it always produces the same name for the same URL and headers.
type Resolver struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewResolver(src rand.Source) *Resolver {
	return &Resolver{rng: rand.New(src)}
}

// NewSeededResolver is a convenience for a PCG source with fixed seeds.
func NewSeededResolver(seed1, seed2 uint64) *Resolver {
	return NewResolver(rand.NewPCG(seed1, seed2))
}

func (r *Resolver) Resolve(rawURL string, header http.Header) string {
	name := fromURL(rawURL)
	if fromHeader := fromContentDisposition(header.Get("Content-Disposition")); fromHeader != "" {
		name = fromHeader
	}
	name = sanitize(name)
	if name == "" || !strings.Contains(name, ".") {
		name = fallbackPrefix + r.randomString(randomLength) + ExtensionFor(header.Get("Content-Type"))
	}
	return name
}

// ExtensionFor maps a Content-Type value (parameters ignored) to a file
// extension, defaulting to .bin.
func ExtensionFor(contentType string) string {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if ext, ok := extensions[mediaType]; ok {
		return ext
	}
	return fallbackExt
}

func (r *Resolver) randomString(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumerics[r.rng.IntN(len(alphanumerics))]
	}
	return string(b)
}

func fromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" {
		return ""
	}
	base := path.Base(parsed.Path)
	if base == "/" || base == "." {
		return ""
	}
	return base
}

func fromContentDisposition(value string) string {
	if value == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(value); err == nil {
		if fn := params["filename"]; fn != "" {
			return fn
		}
		return ""
	}
	// Malformed header: take whatever follows filename=
	_, after, found := strings.Cut(value, "filename=")
	if !found {
		return ""
	}
	after, _, _ = strings.Cut(after, ";")
	return strings.Trim(strings.TrimSpace(after), `"'`)
}

func sanitize(name string) string {
	name = strings.TrimSpace(name)
	name = unsafeChars.ReplaceAllString(name, "_")
	if name == "." || name == ".." {
		return ""
	}
	return name
}
