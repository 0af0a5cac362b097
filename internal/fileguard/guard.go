package fileguard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/tanq16/refetch/internal/utils"
)

const (
	DefaultMaxRetries = 5
	DefaultRetryDelay = time.Second
	unlockSuffix      = ".unlock"
)

// Guard wraps the filesystem operations that can collide with another
// process holding the target open.
type Guard struct {
	fs         afero.Fs
	maxRetries int
	retryDelay time.Duration
}

type Option func(*Guard)

func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(g *Guard) {
		if maxRetries > 0 {
			g.maxRetries = maxRetries
		}
		if delay >= 0 {
			g.retryDelay = delay
		}
	}
}

func New(fsys afero.Fs, opts ...Option) *Guard {
	g := &Guard{
		fs:         fsys,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) Fs() afero.Fs {
	return g.fs
}

// CommitResult describes how a staging file reached its final name.
type CommitResult struct {
	Attempts     int
	CopyFallback bool
}

// IsLocked probes path with a non-destructive open for append. A missing file
// is never locked.
func (g *Guard) IsLocked(path string) bool {
	if _, err := g.fs.Stat(path); err != nil {
		return !errors.Is(err, fs.ErrNotExist)
	}
	f, err := g.fs.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		log.Debug().Str("op", "fileguard/lock").Err(err).Msgf("Open probe failed for %s", path)
		return true
	}
	f.Close()
	return false
}

// CommitRename moves tmp to final, retrying the rename and finally falling
// back to copy + delete. The error only surfaces when the fallback fails too.
func (g *Guard) CommitRename(ctx context.Context, tmp, final string) (CommitResult, error) {
	var lastErr error
	attempts := 0
retry:
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		attempts = attempt
		err := g.fs.Rename(tmp, final)
		if err == nil {
			return CommitResult{Attempts: attempt}, nil
		}
		lastErr = err
		log.Warn().Str("op", "fileguard/commit").Err(err).Msgf("Rename to %s failed (attempt %d/%d)", final, attempt, g.maxRetries)
		if attempt == g.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			// the staging file is complete, go straight to the fallback
			break retry
		case <-time.After(g.retryDelay):
		}
	}
	if err := g.copyThenRemove(tmp, final); err != nil {
		return CommitResult{Attempts: attempts}, fmt.Errorf("rename %s: %v; copy fallback: %w", final, lastErr, err)
	}
	log.Info().Str("op", "fileguard/commit").Msgf("Committed %s through copy fallback", final)
	return CommitResult{Attempts: attempts, CopyFallback: true}, nil
}

// Remove deletes path unless another process holds it. A missing file is not
// an error.
func (g *Guard) Remove(path string) error {
	if g.IsLocked(path) {
		return fmt.Errorf("%w: %s", utils.ErrFileLocked, path)
	}
	if err := g.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Unlock renames path away and back, which drops stale handles some
// platforms keep on a name.
func (g *Guard) Unlock(path string) error {
	parked := path + unlockSuffix
	if err := g.fs.Rename(path, parked); err != nil {
		return fmt.Errorf("park %s: %w", path, err)
	}
	if err := g.fs.Rename(parked, path); err != nil {
		return fmt.Errorf("restore %s from %s: %w", path, parked, err)
	}
	return nil
}

func (g *Guard) copyThenRemove(src, dst string) error {
	in, err := g.fs.Open(src)
	if err != nil {
		return err
	}
	info, err := in.Stat()
	if err != nil {
		in.Close()
		return err
	}
	out, err := g.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		in.Close()
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		in.Close()
		return err
	}
	in.Close()
	if err := out.Close(); err != nil {
		return err
	}
	g.fs.Chtimes(dst, info.ModTime(), info.ModTime())
	return g.fs.Remove(src)
}
