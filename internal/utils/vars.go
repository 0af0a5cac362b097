package utils

import (
	"errors"
	"time"
)

const DefaultChunkSize = 32 * 1024
const DefaultRetryBackoff = 5 * time.Second
const MaxDeleteDelay = 86400
const PartSuffix = ".part"
const LogFile = ".refetch.log"
const ToolUserAgent = "refetch/1.0"

const socketBufferSize = 1024 * 1024

var (
	ErrInvalidURL  = errors.New("invalid URL, use an http or https link with a host")
	ErrBusy        = errors.New("download already running")
	ErrProbeFailed = errors.New("probe request failed")
	ErrNetwork     = errors.New("network failure")
	ErrFileLocked  = errors.New("file is locked by another process")
	ErrFilesystem  = errors.New("filesystem failure")
)

// Local-only User-Agent list
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.3 Safari/605.1.15",
	"curl/7.88.1",
	"Wget/1.21.4",
}
