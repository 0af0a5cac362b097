package progress

import "time"

const DefaultWindow = time.Second

// Snapshot is a point-in-time view of a single attempt.
type Snapshot struct {
	Downloaded int64
	Total      int64 // 0 when unknown
	Percent    float64
	Speed      float64 // bytes per second over the last window
}

// Tracker accumulates chunk arrivals for one attempt. It is not safe for
// concurrent use; the transfer loop owns it.
type Tracker struct {
	total       int64
	downloaded  int64
	speed       float64
	window      time.Duration
	windowStart time.Time
	windowBytes int64
	now         func() time.Time
}

type Option func(*Tracker)

func WithWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.window = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

func NewTracker(total int64, opts ...Option) *Tracker {
	t := &Tracker{
		total:  max(total, 0),
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.windowStart = t.now()
	return t
}

// OnBytes records n new bytes. emit is true when a window has closed and the
// speed figure was refreshed, which happens at most once per window.
func (t *Tracker) OnBytes(n int64) (Snapshot, bool) {
	if n > 0 {
		t.downloaded += n
	}
	now := t.now()
	elapsed := now.Sub(t.windowStart)
	emit := false
	if elapsed >= t.window {
		t.speed = float64(t.downloaded-t.windowBytes) / elapsed.Seconds()
		t.windowStart = now
		t.windowBytes = t.downloaded
		emit = true
	}
	return t.Snapshot(), emit
}

func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Downloaded: t.downloaded,
		Total:      t.total,
		Percent:    Percent(t.downloaded, t.total),
		Speed:      t.speed,
	}
}

// Final closes the attempt, reporting the average speed since the last
// window when no full window has elapsed yet.
func (t *Tracker) Final(elapsed time.Duration) Snapshot {
	s := t.Snapshot()
	if s.Speed == 0 && elapsed > 0 {
		s.Speed = float64(t.downloaded) / elapsed.Seconds()
	}
	return s
}

func Percent(downloaded, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return min(float64(downloaded)/float64(total)*100, 100)
}
