package output

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tanq16/refetch/internal/transfer"
)

// Prompter asks the user about existing files. The input loop that owns
// stdin hands every line to Offer first; a line is consumed only while a
// question is waiting.
type Prompter struct {
	console *Console
	mu      sync.Mutex
	pending chan string
	closed  bool
}

func NewPrompter(console *Console) *Prompter {
	return &Prompter{console: console}
}

func (p *Prompter) ResolveConflict(path string) transfer.Decision {
	answer := make(chan string, 1)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return transfer.Abort
	}
	p.pending = answer
	p.mu.Unlock()

	p.console.Ask(fmt.Sprintf("%s already exists, overwrite it? [y/N]: ", path))
	return ParseAnswer(<-answer)
}

// Offer passes line to a waiting question and reports whether it was used.
func (p *Prompter) Offer(line string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return false
	}
	p.pending <- line
	p.pending = nil
	return true
}

// Close answers a waiting question with "no" and makes later questions
// return Abort without asking. Used when input ends.
func (p *Prompter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.pending != nil {
		p.pending <- ""
		p.pending = nil
	}
}

func ParseAnswer(line string) transfer.Decision {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return transfer.Overwrite
	}
	return transfer.Abort
}
