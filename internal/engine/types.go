package engine

import (
	"github.com/google/uuid"
	"github.com/tanq16/refetch/internal/progress"
	"github.com/tanq16/refetch/internal/transfer"
	"github.com/tanq16/refetch/internal/utils"
)

type Phase int

const (
	Idle Phase = iota
	Resolving
	Downloading
	AwaitingDeletion
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Resolving:
		return "resolving"
	case Downloading:
		return "downloading"
	case AwaitingDeletion:
		return "awaiting deletion"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Active reports whether a cycle goroutine owns the engine in this phase.
func (p Phase) Active() bool {
	return p == Resolving || p == Downloading || p == AwaitingDeletion
}

// State is a copy of the engine's view of the current cycle.
type State struct {
	Phase      Phase
	Downloaded int64
	Total      int64 // 0 when unknown
	Percent    float64
	Speed      float64
	TargetPath string
	CycleID    uuid.UUID
	Attempt    int
}

type Observer interface {
	OnLog(status utils.Status, msg string)
	OnProgress(s progress.Snapshot)
}

// ConflictResolver is asked, from the cycle goroutine, what to do when the
// target exists before a non-restart attempt.
type ConflictResolver interface {
	ResolveConflict(path string) transfer.Decision
}

// Policy answers every conflict the same way.
type Policy transfer.Decision

func (p Policy) ResolveConflict(string) transfer.Decision {
	return transfer.Decision(p)
}

type nopObserver struct{}

func (nopObserver) OnLog(utils.Status, string)   {}
func (nopObserver) OnProgress(progress.Snapshot) {}
