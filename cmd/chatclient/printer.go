package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/weiawesome/market-chat/internal/session"
)

const lineWidth = 64

// printer renders transcript entries to a terminal: notices centered, own
// messages right-aligned, others left-aligned with the sender's name.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) OnEntry(e session.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, format(e))
}

func (p *printer) OnStateChange(s session.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch s {
	case session.Joining:
		fmt.Fprintln(p.out, "(connecting...)")
	case session.Active:
		fmt.Fprintln(p.out, "(joined, type to chat)")
	case session.Closed:
		fmt.Fprintln(p.out, "(left)")
	}
}

func format(e session.Entry) string {
	stamp := ""
	if !e.Time.IsZero() {
		stamp = e.Time.Local().Format("15:04")
	}

	switch e.Kind {
	case session.Notice:
		return pad("-- "+e.Text+" --", (lineWidth+len(e.Text)+6)/2)
	case session.Own:
		return pad(strings.TrimSpace(stamp+" "+e.Text), lineWidth)
	default:
		return strings.TrimSpace(fmt.Sprintf("%s: %s %s", e.Sender, e.Text, stamp))
	}
}

// pad right-aligns s in width columns.
func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}
