package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/refetch/internal/engine"
	"github.com/tanq16/refetch/internal/progress"
	"github.com/tanq16/refetch/internal/utils"
)

// Console renders engine notices as status lines and keeps a single
// self-overwriting progress line below them. It implements engine.Observer.
type Console struct {
	mu           sync.Mutex
	out          io.Writer
	width        func() int
	now          func() time.Time
	started      time.Time
	lastProgress int64
	progressLine bool
}

func NewConsole(out io.Writer) *Console {
	return &Console{
		out:          out,
		width:        terminalWidth,
		now:          time.Now,
		lastProgress: -1,
	}
}

func (c *Console) OnLog(status utils.Status, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearProgress()
	fmt.Fprintf(c.out, "%s%s %s\n", strings.Repeat(" ", 2), statusIndicator(status), styleFor(status, msg))
}

func (c *Console) OnProgress(s progress.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// a smaller count than the last one means a new attempt began
	if s.Downloaded < c.lastProgress || c.lastProgress < 0 {
		c.started = c.now()
	}
	c.lastProgress = s.Downloaded
	fmt.Fprintf(c.out, "\r\033[K%s%s", strings.Repeat(" ", 4), ProgressLine(s, c.now().Sub(c.started), c.width()))
	c.progressLine = true
}

// Ask prints a question without a trailing newline.
func (c *Console) Ask(question string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearProgress()
	fmt.Fprintf(c.out, "%s%s %s", strings.Repeat(" ", 2), statusIndicator(utils.StatusPending), FPending(question))
}

func (c *Console) Print(status utils.Status, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearProgress()
	fmt.Fprintf(c.out, "%s%s %s\n", strings.Repeat(" ", 2), statusIndicator(status), styleFor(status, text))
}

// State prints a summary of st for the interactive status view.
func (c *Console) State(st engine.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearProgress()
	indent := strings.Repeat(" ", 4)
	fmt.Fprintf(c.out, "%s%s %s\n", strings.Repeat(" ", 2), statusIndicator(phaseStatus(st.Phase)), FHeader(st.Phase.String()))
	if st.TargetPath != "" {
		fmt.Fprintf(c.out, "%s%s %s\n", indent, FDebug("file"), FDetail(st.TargetPath))
	}
	if st.Attempt > 0 {
		fmt.Fprintf(c.out, "%s%s %d %s %s\n", indent, FDebug("attempt"), st.Attempt, StyleSymbols["bullet"], FDebug(st.CycleID.String()))
		if st.Total > 0 {
			fmt.Fprintf(c.out, "%s%s%s\n", indent, ProgressBar(st.Downloaded, st.Total, 30), FDebug(utils.FormatRate(st.Speed)))
		} else {
			fmt.Fprintf(c.out, "%s%s\n", indent, FDebug(utils.FormatBytes(uint64(st.Downloaded))))
		}
	}
}

func (c *Console) clearProgress() {
	if c.progressLine {
		fmt.Fprint(c.out, "\r\033[K")
		c.progressLine = false
	}
}

func phaseStatus(p engine.Phase) utils.Status {
	switch p {
	case engine.Downloading, engine.Resolving:
		return utils.StatusPending
	case engine.AwaitingDeletion:
		return utils.StatusSuccess
	case engine.Stopped:
		return utils.StatusWarning
	}
	return utils.StatusInfo
}
