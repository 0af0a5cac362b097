package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tanq16/refetch/internal/fileguard"
	"github.com/tanq16/refetch/internal/progress"
	"github.com/tanq16/refetch/internal/transfer"
	"github.com/tanq16/refetch/internal/utils"
)

const DefaultNoticeEvery = 10

// Attempter runs one download attempt; *transfer.Executor is the production one.
type Attempter interface {
	Attempt(ctx context.Context, req transfer.Request, hooks transfer.Hooks) transfer.Result
}

type Option func(*Engine)

func WithRetryBackoff(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.retryBackoff = d
		}
	}
}

// WithDelayUnit sets the length of one unit of DownloadConfig.DeleteDelay.
func WithDelayUnit(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.delayUnit = d
		}
	}
}

func WithNoticeEvery(units int) Option {
	return func(e *Engine) {
		if units > 0 {
			e.noticeEvery = units
		}
	}
}

func WithConflictResolver(r ConflictResolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.resolver = r
		}
	}
}

// Engine drives one download configuration through attempts, retries and the
// optional delete/restart cycle. The zero value is not usable; call New.
type Engine struct {
	exec     Attempter
	guard    *fileguard.Guard
	observer Observer
	resolver ConflictResolver
	log      zerolog.Logger

	retryBackoff time.Duration
	delayUnit    time.Duration
	noticeEvery  int

	startMu sync.Mutex // serialises Start

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	deletion context.CancelFunc // armed deletion task, nil when none
	done     chan struct{}
}

func New(exec Attempter, guard *fileguard.Guard, observer Observer, opts ...Option) *Engine {
	if observer == nil {
		observer = nopObserver{}
	}
	e := &Engine{
		exec:         exec,
		guard:        guard,
		observer:     observer,
		resolver:     Policy(transfer.Overwrite),
		log:          utils.GetLogger("engine"),
		retryBackoff: utils.DefaultRetryBackoff,
		delayUnit:    time.Second,
		noticeEvery:  DefaultNoticeEvery,
		state:        State{Phase: Idle},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches a cycle for cfg and returns immediately. cfg is copied, so
// later changes by the caller do not affect the running cycle.
func (e *Engine) Start(cfg utils.DownloadConfig) error {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	e.mu.Lock()
	phase := e.state.Phase
	e.mu.Unlock()
	if phase.Active() {
		e.notify(utils.StatusWarning, "A download is already running, stop it first")
		return utils.ErrBusy
	}
	cfg.URL = strings.TrimSpace(cfg.URL)
	if !utils.ValidateURL(cfg.URL) {
		e.log.Error().Str("op", "engine/start").Msgf("Rejected URL %q", cfg.URL)
		e.notify(utils.StatusError, fmt.Sprintf("Invalid URL %q, use an http or https link", cfg.URL))
		return fmt.Errorf("%w: %q", utils.ErrInvalidURL, cfg.URL)
	}
	cfg.DeleteDelay = min(max(cfg.DeleteDelay, 0), utils.MaxDeleteDelay)

	// a stopped cycle may still be unwinding
	e.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.mu.Lock()
	e.cancel, e.done = cancel, done
	e.state = State{Phase: Resolving, CycleID: uuid.New()}
	cycleID := e.state.CycleID
	e.mu.Unlock()

	e.log.Info().Str("op", "engine/start").Str("cycle", cycleID.String()).Int("delay", cfg.DeleteDelay).Msgf("Starting download of %s", cfg.URL)
	go e.run(ctx, cfg, done)
	return nil
}

// Stop cancels the running attempt and any armed deletion task. It is safe to
// call repeatedly and from any phase.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	if e.deletion != nil {
		e.deletion()
		e.deletion = nil
	}
	wasActive := e.state.Phase.Active()
	e.state.Phase = Stopped
	e.mu.Unlock()
	if wasActive {
		e.log.Info().Str("op", "engine/stop").Msg("Cycle stopped")
		e.notify(utils.StatusWarning, "Download stopped")
	}
}

// Wait blocks until the current cycle goroutine, if any, has returned.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) run(ctx context.Context, cfg utils.DownloadConfig, done chan struct{}) {
	defer close(done)
	reason := transfer.ReasonInitial
	for {
		res := e.attemptUntilSettled(ctx, cfg, reason)
		switch res.Outcome {
		case transfer.Cancelled:
			return
		case transfer.Aborted:
			e.finish(ctx, Idle)
			return
		case transfer.Failed:
			e.log.Error().Str("op", "engine/cycle").Err(res.Err).Msg("Cycle ended on a fatal error")
			e.notify(utils.StatusError, fmt.Sprintf("Download failed: %v", res.Err))
			e.finish(ctx, Idle)
			return
		}

		e.report(res)
		if cfg.DeleteDelay == 0 {
			e.finish(ctx, Idle)
			return
		}
		if !e.update(ctx, func(s *State) { s.Phase = AwaitingDeletion }) {
			return
		}
		if !e.awaitDeletion(ctx, cfg.DeleteDelay, res.Path) {
			return
		}
		reason = transfer.ReasonCycle
	}
}

// attemptUntilSettled retries retryable failures with a fixed backoff until
// an attempt settles or ctx is cancelled.
func (e *Engine) attemptUntilSettled(ctx context.Context, cfg utils.DownloadConfig, reason transfer.Reason) transfer.Result {
	for {
		if !e.update(ctx, func(s *State) {
			s.Phase = Resolving
			s.Downloaded, s.Total, s.Percent, s.Speed = 0, 0, 0, 0
			s.Attempt++
		}) {
			return transfer.Result{Outcome: transfer.Cancelled}
		}
		res := e.exec.Attempt(ctx, transfer.Request{Config: cfg, Reason: reason}, e.hooks(ctx))
		if res.Outcome != transfer.Failed || !utils.IsRetryable(res.Err) {
			return res
		}
		e.log.Warn().Str("op", "engine/retry").Err(res.Err).Dur("backoff", e.retryBackoff).Msg("Retryable failure")
		e.notify(utils.StatusWarning, fmt.Sprintf("Download failed (%v), retrying in %s", res.Err, e.retryBackoff))
		select {
		case <-ctx.Done():
			return transfer.Result{Outcome: transfer.Cancelled}
		case <-time.After(e.retryBackoff):
		}
		if reason != transfer.ReasonCycle {
			reason = transfer.ReasonRetry
		}
	}
}

func (e *Engine) hooks(ctx context.Context) transfer.Hooks {
	return transfer.Hooks{
		OnStart: func(path string, total int64) {
			e.update(ctx, func(s *State) {
				s.Phase = Downloading
				s.TargetPath = path
				s.Total = total
			})
		},
		OnProgress: func(snap progress.Snapshot, emit bool) {
			if !e.update(ctx, func(s *State) {
				s.Downloaded, s.Total, s.Percent, s.Speed = snap.Downloaded, snap.Total, snap.Percent, snap.Speed
			}) {
				return
			}
			if emit {
				e.observer.OnProgress(snap)
			}
		},
		OnLog: e.notify,
		OnConflict: func(path string) transfer.Decision {
			if ctx.Err() != nil {
				return transfer.Abort
			}
			return e.resolver.ResolveConflict(path)
		},
	}
}

// scheduleDeletion arms the single deletion task, cancelling whichever task
// was armed before. The returned context ends when the task is disarmed.
func (e *Engine) scheduleDeletion(ctx context.Context) (context.Context, context.CancelFunc) {
	taskCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	if e.deletion != nil {
		e.deletion()
	}
	e.deletion = cancel
	e.mu.Unlock()
	return taskCtx, cancel
}

func (e *Engine) disarm() {
	e.mu.Lock()
	if e.deletion != nil {
		e.deletion()
		e.deletion = nil
	}
	e.mu.Unlock()
}

// awaitDeletion counts delay units down, then deletes path. It reports
// whether the cycle should restart.
func (e *Engine) awaitDeletion(ctx context.Context, delay int, path string) bool {
	taskCtx, cancel := e.scheduleDeletion(ctx)
	defer cancel()
	e.notify(utils.StatusPending, fmt.Sprintf("%s will be deleted in %d seconds", path, delay))

	ticker := time.NewTicker(e.delayUnit)
	defer ticker.Stop()
	for remaining := delay; remaining > 0; {
		select {
		case <-taskCtx.Done():
			return false
		case <-ticker.C:
		}
		remaining--
		if remaining > 0 && remaining%e.noticeEvery == 0 {
			e.notify(utils.StatusPending, fmt.Sprintf("%d seconds until deletion", remaining))
		}
	}
	e.disarm()
	if ctx.Err() != nil {
		return false
	}

	if e.guard.IsLocked(path) {
		e.notify(utils.StatusError, fmt.Sprintf("Cannot delete %s, it is locked%s; cycle ended", path, e.describeHolders(ctx, path)))
		e.log.Warn().Str("op", "engine/deletion").Msgf("Target %s locked at deletion time", path)
		e.finish(ctx, Idle)
		return false
	}
	// Stop cancels under e.mu: it lands either before this check or after the removal.
	e.mu.Lock()
	if ctx.Err() != nil {
		e.mu.Unlock()
		return false
	}
	err := e.guard.Remove(path)
	e.mu.Unlock()
	if err != nil {
		e.log.Error().Str("op", "engine/deletion").Err(err).Msgf("Deleting %s failed", path)
		e.notify(utils.StatusError, fmt.Sprintf("Deleting %s failed: %v; cycle ended", path, err))
		e.finish(ctx, Idle)
		return false
	}
	e.log.Info().Str("op", "engine/deletion").Msgf("Deleted %s", path)
	e.notify(utils.StatusSuccess, fmt.Sprintf("Deleted %s, downloading again", path))
	return true
}

func (e *Engine) describeHolders(ctx context.Context, path string) string {
	holders, err := fileguard.Holders(ctx, path)
	if err != nil {
		e.log.Debug().Str("op", "engine/deletion").Err(err).Msg("Listing file holders failed")
		return ""
	}
	if len(holders) == 0 {
		return ""
	}
	names := make([]string, 0, len(holders))
	for _, h := range holders {
		names = append(names, fmt.Sprintf("%s (pid %d)", h.Name, h.PID))
	}
	return " by " + strings.Join(names, ", ")
}

func (e *Engine) report(res transfer.Result) {
	secs := res.Duration.Seconds()
	e.log.Info().Str("op", "engine/report").Int64("bytes", res.Bytes).Dur("elapsed", res.Duration).Bool("copyFallback", res.CopyFallback).Msgf("Downloaded %s", res.Path)
	e.notify(utils.StatusSuccess, fmt.Sprintf("Downloaded %s: %s in %s (%s)", res.Path, utils.FormatBytes(uint64(res.Bytes)),
		res.Duration.Round(time.Millisecond), utils.FormatSpeed(res.Bytes, secs)))
}

// update applies fn unless ctx was cancelled, which keeps a stopped cycle from
// overwriting the Stopped phase. It reports whether fn ran.
func (e *Engine) update(ctx context.Context, fn func(s *State)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	fn(&e.state)
	return true
}

func (e *Engine) finish(ctx context.Context, phase Phase) {
	e.update(ctx, func(s *State) { s.Phase = phase })
}

func (e *Engine) notify(status utils.Status, msg string) {
	e.observer.OnLog(status, msg)
}
