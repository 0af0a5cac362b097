package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/afero"
	"github.com/tanq16/refetch/internal/fileguard"
	"github.com/tanq16/refetch/internal/filename"
	"github.com/tanq16/refetch/internal/progress"
	"github.com/tanq16/refetch/internal/utils"
)

// SpaceChecker reports the free bytes available under dir.
type SpaceChecker func(ctx context.Context, dir string) (uint64, error)

func DiskFree(ctx context.Context, dir string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Executor performs single download attempts. It holds no per-attempt state
// and can be shared by several engines.
type Executor struct {
	client     utils.HTTPDoer
	guard      *fileguard.Guard
	fs         afero.Fs
	resolver   *filename.Resolver
	chunkSize  int
	freeSpace  SpaceChecker
	trackerOps []progress.Option
}

type Option func(*Executor)

func WithChunkSize(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithSpaceChecker replaces the free-space preflight; nil disables it.
func WithSpaceChecker(fn SpaceChecker) Option {
	return func(e *Executor) {
		e.freeSpace = fn
	}
}

func WithTrackerOptions(opts ...progress.Option) Option {
	return func(e *Executor) {
		e.trackerOps = append(e.trackerOps, opts...)
	}
}

func NewExecutor(client utils.HTTPDoer, guard *fileguard.Guard, resolver *filename.Resolver, opts ...Option) *Executor {
	e := &Executor{
		client:    client,
		guard:     guard,
		fs:        guard.Fs(),
		resolver:  resolver,
		chunkSize: utils.DefaultChunkSize,
		freeSpace: DiskFree,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attempt runs probe, stream and commit once. It never retries; classifying
// Result.Err with utils.IsRetryable is up to the caller.
func (e *Executor) Attempt(ctx context.Context, req Request, hooks Hooks) Result {
	start := time.Now()
	res := e.attempt(ctx, req, hooks)
	res.Duration = time.Since(start)
	if res.Outcome == Failed {
		log.Error().Str("op", "transfer/executor").Str("reason", req.Reason.String()).Err(res.Err).Msgf("Attempt for %s failed", req.Config.URL)
	}
	return res
}

func (e *Executor) attempt(ctx context.Context, req Request, hooks Hooks) Result {
	cfg := req.Config
	total, header, err := e.probe(ctx, cfg.URL)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Outcome: Cancelled}
		}
		return Result{Outcome: Failed, Err: err}
	}

	dir := cfg.TargetDir
	if dir == "" {
		dir = "."
	}
	if err := e.fs.MkdirAll(dir, 0755); err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("%w: create %s: %v", utils.ErrFilesystem, dir, err)}
	}
	finalPath := filepath.Join(dir, e.resolver.Resolve(cfg.URL, header))
	partPath := finalPath + utils.PartSuffix

	if req.Reason != ReasonCycle {
		if exists, _ := afero.Exists(e.fs, finalPath); exists {
			decision := Overwrite
			if hooks.OnConflict != nil {
				decision = hooks.OnConflict(finalPath)
			}
			if ctx.Err() != nil {
				return Result{Outcome: Cancelled, Path: finalPath}
			}
			if decision == Abort {
				logf(hooks, utils.StatusWarning, "Kept existing file %s, download aborted", finalPath)
				return Result{Outcome: Aborted, Path: finalPath}
			}
			if err := e.guard.Remove(finalPath); err != nil {
				if errors.Is(err, utils.ErrFileLocked) {
					return Result{Outcome: Failed, Path: finalPath, Err: err}
				}
				return Result{Outcome: Failed, Path: finalPath, Err: fmt.Errorf("%w: remove %s: %v", utils.ErrFilesystem, finalPath, err)}
			}
			logf(hooks, utils.StatusInfo, "Removed existing file %s", finalPath)
		}
	}

	if total > 0 && e.freeSpace != nil {
		free, err := e.freeSpace(ctx, dir)
		if err != nil {
			log.Debug().Str("op", "transfer/executor").Err(err).Msgf("Free space check skipped for %s", dir)
		} else if free < uint64(total) {
			return Result{Outcome: Failed, Path: finalPath, Err: fmt.Errorf("%w: %s needs %s, only %s free", utils.ErrFilesystem,
				dir, utils.FormatBytes(uint64(total)), utils.FormatBytes(free))}
		}
	}

	res := e.stream(ctx, cfg.URL, total, partPath, finalPath, hooks)
	if res.Outcome != Success {
		return res
	}

	commit, err := e.guard.CommitRename(ctx, partPath, finalPath)
	if err != nil {
		e.removePartial(partPath)
		return Result{Outcome: Failed, Path: finalPath, Err: fmt.Errorf("%w: commit %s: %v", utils.ErrFilesystem, finalPath, err)}
	}
	if commit.CopyFallback {
		logf(hooks, utils.StatusWarning, "Rename of %s kept failing, committed through a copy", finalPath)
	}
	res.CopyFallback = commit.CopyFallback
	log.Debug().Str("op", "transfer/executor").Int("renameAttempts", commit.Attempts).Msgf("Committed %s", finalPath)
	return res
}

// probe issues the HEAD request. Redirects are followed by the client.
func (e *Executor) probe(ctx context.Context, url string) (int64, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", utils.ErrProbeFailed, err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", utils.ErrProbeFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, nil, fmt.Errorf("%w: server returned %d", utils.ErrProbeFailed, resp.StatusCode)
	}
	log.Debug().Str("op", "transfer/probe").Int64("length", resp.ContentLength).Msgf("Probed %s", url)
	return max(resp.ContentLength, 0), resp.Header, nil
}

func (e *Executor) stream(ctx context.Context, url string, total int64, partPath, finalPath string, hooks Hooks) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Outcome: Failed, Path: finalPath, Err: fmt.Errorf("%w: %v", utils.ErrNetwork, err)}
	}
	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Outcome: Cancelled, Path: finalPath}
		}
		return Result{Outcome: Failed, Path: finalPath, Err: fmt.Errorf("%w: %v", utils.ErrNetwork, err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Outcome: Failed, Path: finalPath, Err: fmt.Errorf("%w: GET returned %d", utils.ErrNetwork, resp.StatusCode)}
	}
	if resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	out, err := e.fs.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return Result{Outcome: Failed, Path: finalPath, Err: fmt.Errorf("%w: create %s: %v", utils.ErrFilesystem, partPath, err)}
	}
	if hooks.OnStart != nil {
		hooks.OnStart(finalPath, total)
	}

	started := time.Now()
	tracker := progress.NewTracker(total, e.trackerOps...)
	buffer := make([]byte, e.chunkSize)
	var written int64
	for {
		if ctx.Err() != nil {
			e.discard(out, partPath)
			return Result{Outcome: Cancelled, Path: finalPath, Bytes: written}
		}
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			if _, err := out.Write(buffer[:n]); err != nil {
				e.discard(out, partPath)
				return Result{Outcome: Failed, Path: finalPath, Bytes: written, Err: fmt.Errorf("%w: write %s: %v", utils.ErrFilesystem, partPath, err)}
			}
			written += int64(n)
			snap, emit := tracker.OnBytes(int64(n))
			if hooks.OnProgress != nil {
				hooks.OnProgress(snap, emit)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			e.discard(out, partPath)
			if ctx.Err() != nil {
				return Result{Outcome: Cancelled, Path: finalPath, Bytes: written}
			}
			return Result{Outcome: Failed, Path: finalPath, Bytes: written, Err: fmt.Errorf("%w: read body: %v", utils.ErrNetwork, readErr)}
		}
	}
	if err := out.Close(); err != nil {
		e.removePartial(partPath)
		return Result{Outcome: Failed, Path: finalPath, Bytes: written, Err: fmt.Errorf("%w: close %s: %v", utils.ErrFilesystem, partPath, err)}
	}
	if total > 0 && written != total {
		e.removePartial(partPath)
		return Result{Outcome: Failed, Path: finalPath, Bytes: written, Err: fmt.Errorf("%w: got %d of %d bytes", utils.ErrNetwork, written, total)}
	}
	if hooks.OnProgress != nil {
		hooks.OnProgress(tracker.Final(time.Since(started)), true)
	}
	return Result{Outcome: Success, Path: finalPath, Bytes: written}
}

func (e *Executor) discard(f afero.File, path string) {
	f.Close()
	e.removePartial(path)
}

func (e *Executor) removePartial(path string) {
	if err := e.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("op", "transfer/executor").Err(err).Msgf("Could not remove partial file %s", path)
	}
}

func logf(hooks Hooks, status utils.Status, format string, args ...any) {
	if hooks.OnLog != nil {
		hooks.OnLog(status, fmt.Sprintf(format, args...))
	}
}
