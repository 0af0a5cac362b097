package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tanq16/refetch/internal/progress"
	"github.com/tanq16/refetch/internal/utils"
	"golang.org/x/term"
)

// ProgressBar renders a bar for current out of total. An unknown total
// renders an empty bar.
func ProgressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	percent := progress.Percent(max(current, 0), total) / 100
	filled := max(0, min(int(percent*float64(width)), width))
	bar := StyleSymbols["bullet"]
	bar += strings.Repeat(StyleSymbols["hline"], filled)
	if filled < width {
		bar += strings.Repeat(" ", width-filled)
	}
	bar += StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %5.1f%% %s ", bar, percent*100, StyleSymbols["bullet"]))
}

// ProgressLine is the single status line shown while bytes arrive.
func ProgressLine(s progress.Snapshot, elapsed time.Duration, width int) string {
	amount := utils.FormatBytes(uint64(max(s.Downloaded, 0)))
	if s.Total > 0 {
		amount += " / " + utils.FormatBytes(uint64(s.Total))
	}
	details := fmt.Sprintf("%s %s %s %s %s", amount, StyleSymbols["bullet"], utils.FormatRate(s.Speed),
		StyleSymbols["bullet"], elapsed.Round(time.Second))
	barWidth := min(30, max(width-len(details)-16, 10))
	if s.Total <= 0 {
		return debugStyle.Render(details)
	}
	return ProgressBar(s.Downloaded, s.Total, barWidth) + debugStyle.Render(details)
}

func statusIndicator(status utils.Status) string {
	switch status {
	case utils.StatusSuccess:
		return FSuccess(StyleSymbols["pass"])
	case utils.StatusError:
		return FError(StyleSymbols["fail"])
	case utils.StatusWarning:
		return FWarning(StyleSymbols["warning"])
	case utils.StatusPending:
		return FPending(StyleSymbols["pending"])
	default:
		return FInfo(StyleSymbols["info"])
	}
}

func styleFor(status utils.Status, text string) string {
	switch status {
	case utils.StatusSuccess:
		return FSuccess(text)
	case utils.StatusError:
		return FError(text)
	case utils.StatusWarning:
		return FWarning(text)
	case utils.StatusPending:
		return FPending(text)
	default:
		return FInfo(text)
	}
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}
