// Package progress renders the fuzzer's long-running commands as a small
// set of terminal spinners, one per named stage, each carrying its own
// status line and elapsed-time readout.
package progress

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/term"
)

var spinChars = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

type spinnerState struct {
	label       string
	status      string
	statusIsNew bool
	spinIndex   int
	started     time.Time
	stopped     time.Time
	done        bool
}

// elapsed returns how long the spinner has been running: from its Start
// time to Finish if it has already stopped, otherwise to now.
func (s spinnerState) elapsed() time.Duration {
	if s.done {
		return s.stopped.Sub(s.started)
	}
	return time.Since(s.started)
}

// multiSpinner drives a fixed set of named spinners that redraw in place on
// a terminal, falling back to one line per status change on a non-terminal
// stream (piped output, CI logs).
type multiSpinner struct {
	spinners []spinnerState
	ticker   *time.Ticker
	done     chan bool
	spinning bool
}

// NewMultiSpinner builds an empty MultiSpinner; call AddSpinner for each
// named stage before Start.
func NewMultiSpinner() *multiSpinner {
	return &multiSpinner{done: make(chan bool)}
}

// AddSpinner registers a new named stage, started at the current time.
func (ms *multiSpinner) AddSpinner(label string) error {
	for _, spinner := range ms.spinners {
		if spinner.label == label {
			return fmt.Errorf("spinner with label %s already exists", label)
		}
	}
	ms.spinners = append(ms.spinners, spinnerState{label: label, status: "?", started: time.Now()})
	return nil
}

// Start draws the initial frame and begins the redraw ticker.
func (ms *multiSpinner) Start() {
	ms.draw(true)
	ms.ticker = time.NewTicker(250 * time.Millisecond)
	ms.spinning = true
	go ms.onTick()
}

// Finish stops every spinner, freezing each one's elapsed time, and draws a
// final frame.
func (ms *multiSpinner) Finish() {
	if !ms.spinning {
		return
	}
	ms.ticker.Stop()
	ms.done <- true
	now := time.Now()
	for i := range ms.spinners {
		ms.spinners[i].done = true
		ms.spinners[i].stopped = now
	}
	ms.draw(false)
	ms.spinning = false
}

// Status updates a spinner's status line, marking it dirty so a
// non-terminal stream still emits the change even between ticks.
func (ms *multiSpinner) Status(label string, status string) error {
	for i, spinner := range ms.spinners {
		if spinner.label == label {
			if status != spinner.status {
				ms.spinners[i].status = status
				ms.spinners[i].statusIsNew = true
			}
			return nil
		}
	}
	return fmt.Errorf("did not find spinner with label %s", label)
}

func (ms *multiSpinner) onTick() {
	for {
		select {
		case <-ms.done:
			return
		case <-ms.ticker.C:
			ms.draw(true)
		}
	}
}

// frameGlyph returns a finished spinner's fixed checkmark or the next frame
// of the running animation, advancing spinIndex as a side effect.
func (ms *multiSpinner) frameGlyph(i int) string {
	if ms.spinners[i].done {
		return "✓"
	}
	glyph := spinChars[ms.spinners[i].spinIndex]
	ms.spinners[i].spinIndex = (ms.spinners[i].spinIndex + 1) % len(spinChars)
	return glyph
}

func (ms *multiSpinner) draw(goUp bool) {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	for i, spinner := range ms.spinners {
		if !isTerminal && !spinner.statusIsNew {
			continue
		}
		fmt.Fprintf(os.Stderr, "%-20s  %s  %-40s  %s\n", spinner.label, ms.frameGlyph(i), spinner.status, spinner.elapsed().Round(time.Second))
		ms.spinners[i].statusIsNew = false
	}
	if goUp && isTerminal {
		for range ms.spinners {
			fmt.Fprintf(os.Stderr, "\x1b[1A")
		}
	}
}
