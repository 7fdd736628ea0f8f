package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"thirdcoast.systems/mediagrab/internal/events"
	"thirdcoast.systems/mediagrab/pkg/utils/format"
)

const barWidth = 30

// progressPrinter renders job events. On a terminal it redraws one line;
// otherwise it prints a line every 10 percent.
type progressPrinter struct {
	out   io.Writer
	tty   bool
	start time.Time

	mu       sync.Mutex
	lastStep int
	final    events.Event
	done     chan struct{}
}

func newProgressPrinter(out io.Writer, tty bool) *progressPrinter {
	return &progressPrinter{out: out, tty: tty, start: time.Now(), lastStep: -1, done: make(chan struct{})}
}

func (p *progressPrinter) listen(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case events.KindProgress:
		p.progress(ev)
	case events.KindCompleted:
		p.finishLine()
		fmt.Fprintf(p.out, "Saved: %s (%s)\n", ev.Path, format.Bytes(ev.Downloaded))
	case events.KindFailed:
		p.finishLine()
		fmt.Fprintf(p.out, "Failed: %s\n", ev.Reason())
	}

	if ev.Terminal() {
		p.final = ev
		close(p.done)
	}
}

func (p *progressPrinter) progress(ev events.Event) {
	if p.tty {
		fmt.Fprintf(p.out, "\r%s %s %s", bar(ev.Percent, ev.Total), format.Progress(ev.Downloaded, ev.Total, ev.Percent), format.Rate(ev.Downloaded, time.Since(p.start)))
		p.lastStep = 0
		return
	}

	step := int(ev.Percent) / 10
	if ev.Total <= 0 || step == p.lastStep {
		return
	}
	p.lastStep = step
	fmt.Fprintf(p.out, "%s\n", format.Progress(ev.Downloaded, ev.Total, ev.Percent))
}

func (p *progressPrinter) finishLine() {
	if p.tty && p.lastStep >= 0 {
		fmt.Fprintln(p.out)
	}
}

// err returns the failure of the finished job, nil on success.
func (p *progressPrinter) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.final.Kind == events.KindFailed {
		return p.final.Err
	}
	return nil
}

func bar(percent float64, total int64) string {
	if total <= 0 {
		return "[" + strings.Repeat("?", barWidth) + "]"
	}
	filled := int(percent / 100 * barWidth)
	filled = min(max(filled, 0), barWidth)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled) + "]"
}
