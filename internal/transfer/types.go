package transfer

import (
	"time"

	"github.com/tanq16/refetch/internal/progress"
	"github.com/tanq16/refetch/internal/utils"
)

// Reason tells the executor why an attempt is being made.
type Reason int

const (
	ReasonInitial Reason = iota
	ReasonRetry
	ReasonCycle // restart after the deletion timer fired, skips the conflict check
)

func (r Reason) String() string {
	switch r {
	case ReasonInitial:
		return "initial"
	case ReasonRetry:
		return "retry"
	case ReasonCycle:
		return "cycle"
	}
	return "unknown"
}

// Decision answers an existence conflict on the target path.
type Decision int

const (
	Overwrite Decision = iota
	Abort
)

func (d Decision) String() string {
	if d == Abort {
		return "abort"
	}
	return "overwrite"
}

type Outcome int

const (
	Success Outcome = iota
	Failed
	Cancelled
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

type Request struct {
	Config utils.DownloadConfig
	Reason Reason
}

// Hooks are called synchronously from the attempt. Any of them may be nil.
type Hooks struct {
	OnStart    func(path string, total int64)
	OnProgress func(s progress.Snapshot, emit bool)
	OnLog      func(status utils.Status, msg string)
	OnConflict func(path string) Decision
}

type Result struct {
	Outcome      Outcome
	Path         string
	Bytes        int64
	Duration     time.Duration
	Err          error
	CopyFallback bool
}
