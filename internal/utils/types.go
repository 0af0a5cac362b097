package utils

import (
	"net/http"
	"time"
)

// DownloadConfig is the snapshot the engine takes on every Start.
type DownloadConfig struct {
	URL         string
	TargetDir   string
	DeleteDelay int // seconds, 0 disables the delete/restart cycle
}

type HTTPClientConfig struct {
	Timeout       time.Duration
	KATimeout     time.Duration
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	UserAgent     string
	BearerToken   string
	Headers       map[string]string
	LargeBuffers  bool // 1 MiB socket buffers for fast links
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Status tags a user-facing notice with how it should be displayed.
type Status string

const (
	StatusInfo    Status = "info"
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusPending Status = "pending"
)
