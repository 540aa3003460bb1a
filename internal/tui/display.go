package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// DisplayEvent is an event sent to a Display via the update channel.
// Implemented by StatusUpdateMsg, RunDoneMsg, and RunErrorMsg.
type DisplayEvent interface {
	isDisplayEvent()
}

// Verify at compile time that message types implement DisplayEvent.
var (
	_ DisplayEvent = StatusUpdateMsg{}
	_ DisplayEvent = RunDoneMsg{}
	_ DisplayEvent = RunErrorMsg{}
)

// Display renders run status updates.
type Display interface {
	Run(ctx context.Context, events <-chan DisplayEvent) error
}

// DisplayOptions configures display creation.
type DisplayOptions struct {
	Writer     io.Writer          // Output destination (default: os.Stdout).
	ForcePlain bool               // Force plain text even if TTY.
	Title      string             // Header line for the TUI.
	Targets    []string           // Package IDs or stage names for TUI initialization.
	CancelFunc context.CancelFunc // Called by TUI on abort keypress (ignored by PlainDisplay).
}

// NewDisplay returns a TUI display when the writer is a TTY, or a plain text
// display otherwise. ForcePlain overrides TTY detection.
func NewDisplay(opts DisplayOptions) Display {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	if opts.ForcePlain || !isTTY(opts.Writer) {
		return &PlainDisplay{w: opts.Writer, now: time.Now}
	}

	return &TUIDisplay{
		title:      opts.Title,
		targets:    opts.Targets,
		w:          opts.Writer,
		cancelFunc: opts.CancelFunc,
	}
}

// isTTY reports whether w is connected to a terminal.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Bridge manages the channel between a status producer and a Display consumer.
type Bridge struct {
	ch chan DisplayEvent
}

// NewBridge creates a Bridge with a buffered event channel.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan DisplayEvent, 16)}
}

// Events returns the read-only channel for Display.Run() to consume.
func (b *Bridge) Events() <-chan DisplayEvent {
	return b.ch
}

// Send delivers a StatusUpdateMsg to the display.
// It blocks if the channel buffer (16) is full.
func (b *Bridge) Send(msg StatusUpdateMsg) {
	b.ch <- msg
}

// Done signals that the run finished and closes the channel.
func (b *Bridge) Done() {
	b.ch <- RunDoneMsg{}
	close(b.ch)
}

// Error signals that the run aborted and closes the channel.
func (b *Bridge) Error(err error) {
	b.ch <- RunErrorMsg{Err: err}
	close(b.ch)
}

// PlainDisplay renders status updates as timestamped text lines.
type PlainDisplay struct {
	w   io.Writer
	now func() time.Time
}

// Run loops over events, printing each status update as a text line.
// Returns the run error if the run aborted, or context error if cancelled.
func (d *PlainDisplay) Run(ctx context.Context, events <-chan DisplayEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch msg := ev.(type) {
			case StatusUpdateMsg:
				d.renderUpdate(msg)
			case RunDoneMsg:
				return nil
			case RunErrorMsg:
				return msg.Err
			}
		}
	}
}

func (d *PlainDisplay) renderUpdate(su StatusUpdateMsg) {
	now := time.Now
	if d.now != nil {
		now = d.now
	}
	ts := now().Format("15:04:05")

	progress := su.Progress
	if progress == "" {
		progress = "-"
	}
	batch := ""
	if su.Batch > 0 {
		batch = fmt.Sprintf(" (batch %d)", su.Batch)
	}
	_, _ = fmt.Fprintf(d.w, "[%s] [%s] %s %s%s\n", ts, progress, su.Target, su.Status, batch)

	if su.Status == StatusRunning || su.Status == StatusPending {
		return
	}
	if su.Passed+su.Failed > 0 || su.Duration > 0 {
		_, _ = fmt.Fprintf(d.w, "         tests: %d passed, %d failed (%.1fs)\n", su.Passed, su.Failed, su.Duration.Seconds())
	}
	if su.Error != "" && su.Status == StatusFailed {
		_, _ = fmt.Fprintf(d.w, "         error: %s\n", su.Error)
	}
}

// TUIDisplay renders status updates using a Bubble Tea terminal UI.
// Falls back to PlainDisplay if the TUI program fails to start.
type TUIDisplay struct {
	title      string
	targets    []string
	w          io.Writer
	cancelFunc context.CancelFunc
}

// Run starts the Bubble Tea program and feeds events from the channel.
// If the TUI fails to initialize, it falls back to plain text output.
func (d *TUIDisplay) Run(ctx context.Context, events <-chan DisplayEvent) error {
	opts := []ModelOption{WithTitle(d.title)}
	if d.cancelFunc != nil {
		opts = append(opts, WithCancelFunc(d.cancelFunc))
	}
	model := NewModel(d.targets, opts...)
	p := tea.NewProgram(model, tea.WithOutput(d.w), tea.WithContext(ctx))

	// Forward events through an intermediate channel so we can stop
	// the goroutine cleanly on TUI failure before falling back.
	fwd := make(chan DisplayEvent, 16)
	stop := make(chan struct{})

	go func() {
		defer close(fwd)
		for ev := range events {
			select {
			case fwd <- ev:
			case <-stop:
				return
			}
		}
	}()

	go func() {
		for ev := range fwd {
			p.Send(ev)
		}
	}()

	final, err := p.Run()
	if err != nil {
		close(stop)
		// Fall back to plain text for remaining events from the original channel.
		plain := &PlainDisplay{w: d.w, now: time.Now}
		return plain.Run(ctx, events)
	}
	if m, ok := final.(Model); ok && m.err != nil {
		return m.err
	}
	return nil
}
