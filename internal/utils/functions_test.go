package utils

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"https://example.com/a.zip", true},
		{"http://example.com", true},
		{"http://127.0.0.1:8080/file", true},
		{"  https://example.com/padded  ", true},
		{"ftp://example.com/a.zip", false},
		{"s3://bucket/key", false},
		{"https://", false},
		{"example.com/a.zip", false},
		{"", false},
		{"http://%zz", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ValidateURL(tt.input), "ValidateURL(%q)", tt.input)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("%w: status 500", ErrProbeFailed)))
	assert.True(t, IsRetryable(fmt.Errorf("reading body: %w", ErrNetwork)))
	assert.False(t, IsRetryable(ErrFilesystem))
	assert.False(t, IsRetryable(ErrFileLocked))
	assert.False(t, IsRetryable(nil))
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    uint64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1024 * 1024, "1.00 MB"},
		{5 * 1024 * 1024 * 1024, "5.00 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatBytes(tt.input))
	}
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, "0 B/s", FormatSpeed(1024, 0))
	assert.Equal(t, "512 B/s", FormatSpeed(1024, 2))
	assert.Equal(t, "1.00 MB/s", FormatRate(1024*1024))
	assert.Equal(t, "0 B/s", FormatRate(-5))
}

func TestParseHeaderArgs(t *testing.T) {
	headers := ParseHeaderArgs([]string{"Authorization: Basic abc", "X-Empty:", "broken", "Accept:  */* "})
	assert.Equal(t, map[string]string{
		"Authorization": "Basic abc",
		"X-Empty":       "",
		"Accept":        "*/*",
	}, headers)
}

func TestCleanPartials(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/downloads"
	for _, name := range []string{"a.zip", "a.zip.part", "b.iso.part", "notes.txt"} {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, fs.MkdirAll(filepath.Join(dir, "sub.part"), 0755))

	removed, err := CleanPartials(fs, dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.zip.part"), filepath.Join(dir, "b.iso.part")}, removed)

	for _, name := range []string{"a.zip", "notes.txt", "sub.part"} {
		exists, err := afero.Exists(fs, filepath.Join(dir, name))
		require.NoError(t, err)
		assert.True(t, exists, name)
	}
}

func TestCleanPartialsMissingDir(t *testing.T) {
	_, err := CleanPartials(afero.NewMemMapFs(), "/nowhere")
	assert.Error(t, err)
}
