package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/refetch/internal/engine"
	"github.com/tanq16/refetch/internal/progress"
	"github.com/tanq16/refetch/internal/transfer"
	"github.com/tanq16/refetch/internal/utils"
)

func testConsole(buf *bytes.Buffer) *Console {
	c := NewConsole(buf)
	c.width = func() int { return 100 }
	return c
}

func TestConsoleStatusSymbols(t *testing.T) {
	cases := []struct {
		status utils.Status
		symbol string
	}{
		{utils.StatusSuccess, StyleSymbols["pass"]},
		{utils.StatusError, StyleSymbols["fail"]},
		{utils.StatusWarning, StyleSymbols["warning"]},
		{utils.StatusPending, StyleSymbols["pending"]},
		{utils.StatusInfo, StyleSymbols["info"]},
		{"", StyleSymbols["info"]},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		testConsole(&buf).OnLog(tc.status, "Download stopped")
		assert.Contains(t, buf.String(), tc.symbol, string(tc.status))
		assert.Contains(t, buf.String(), "Download stopped")
	}
}

func TestProgressBar(t *testing.T) {
	assert.Contains(t, ProgressBar(50, 100, 10), "50.0%")
	assert.Contains(t, ProgressBar(500, 100, 10), "100.0%")
	assert.Contains(t, ProgressBar(10, 0, 10), "0.0%")
	assert.Contains(t, ProgressBar(-5, 100, 10), "0.0%")
}

func TestProgressLineUnknownTotal(t *testing.T) {
	line := ProgressLine(progress.Snapshot{Downloaded: 2048, Speed: 1024}, 3*time.Second, 80)
	assert.Contains(t, line, "2.00 KB")
	assert.Contains(t, line, "1.00 KB/s")
	assert.NotContains(t, line, "%")
}

func TestConsoleClearsProgressBeforeLogs(t *testing.T) {
	var buf bytes.Buffer
	c := testConsole(&buf)

	c.OnProgress(progress.Snapshot{Downloaded: 512, Total: 1024, Percent: 50})
	c.OnLog(utils.StatusSuccess, "Downloaded /dl/a.bin")
	out := buf.String()

	progressAt := strings.Index(out, "50.0%")
	clearAt := strings.LastIndex(out, "\r\033[K")
	logAt := strings.Index(out, "Downloaded /dl/a.bin")
	require.True(t, progressAt >= 0 && clearAt >= 0 && logAt >= 0, out)
	assert.Less(t, progressAt, clearAt)
	assert.Less(t, clearAt, logAt)
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestConsoleState(t *testing.T) {
	var buf bytes.Buffer
	c := testConsole(&buf)
	c.State(engine.State{Phase: engine.Downloading, TargetPath: "/dl/a.bin", Attempt: 2, Downloaded: 10, Total: 20})
	out := buf.String()
	assert.Contains(t, out, "downloading")
	assert.Contains(t, out, "/dl/a.bin")
	assert.Contains(t, out, "50.0%")

	buf.Reset()
	c.State(engine.State{Phase: engine.Idle})
	assert.Contains(t, buf.String(), "idle")
	assert.NotContains(t, buf.String(), "attempt")
}

func TestParseAnswer(t *testing.T) {
	for _, yes := range []string{"y", "Y", " yes ", "YES"} {
		assert.Equal(t, transfer.Overwrite, ParseAnswer(yes), yes)
	}
	for _, no := range []string{"", "n", "no", "maybe", "1"} {
		assert.Equal(t, transfer.Abort, ParseAnswer(no), no)
	}
}

func TestPrompterRoutesAnswer(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrompter(testConsole(&buf))
	assert.False(t, p.Offer("y"), "no question is waiting")

	decided := make(chan transfer.Decision, 1)
	go func() { decided <- p.ResolveConflict("/dl/a.bin") }()
	require.Eventually(t, func() bool { return p.Offer("y") }, 2*time.Second, time.Millisecond)

	select {
	case d := <-decided:
		assert.Equal(t, transfer.Overwrite, d)
	case <-time.After(2 * time.Second):
		t.Fatal("no decision")
	}
	assert.Contains(t, buf.String(), "/dl/a.bin already exists")
	assert.False(t, p.Offer("y"), "answer is consumed once")
}

func TestPrompterClose(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrompter(testConsole(&buf))

	decided := make(chan transfer.Decision, 1)
	go func() { decided <- p.ResolveConflict("/dl/a.bin") }()
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.pending != nil
	}, 2*time.Second, time.Millisecond)
	p.Close()
	assert.Equal(t, transfer.Abort, <-decided)
	assert.Equal(t, transfer.Abort, p.ResolveConflict("/dl/b.bin"))
}
