package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner animates a single status line while the CLI waits on a slow
// operation. It redraws with carriage returns, so nothing else may print to
// stdout between Start and Stop.
type Spinner struct {
	message  string
	frames   []string
	interval time.Duration
	done     chan struct{}
	stopped  bool
}

func newSpinner(style spinner.Spinner, interval time.Duration, message string) *Spinner {
	return &Spinner{
		message:  message,
		frames:   style.Frames,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// NewWaitingSpinner animates waiting on the other party, ringing or
// listening for an incoming call.
func NewWaitingSpinner(message string) *Spinner {
	return newSpinner(spinner.Points, 100*time.Millisecond, message)
}

// Start begins the animation in the background.
func (s *Spinner) Start() {
	go func() {
		for i := 0; ; i++ {
			select {
			case <-s.done:
				return
			default:
			}
			fmt.Printf("\r%s %s", SpinnerStyle.Render(s.frames[i%len(s.frames)]), s.message)
			time.Sleep(s.interval)
		}
	}()
}

// Stop halts the animation and clears the status line.
func (s *Spinner) Stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)
	fmt.Print("\r\033[K")
}

// Success replaces the spinner with a final success line.
func (s *Spinner) Success(message string) {
	s.Stop()
	fmt.Printf("%s %s\n", SuccessStyle.Render(IconSuccess), message)
}

// Error replaces the spinner with a final failure line.
func (s *Spinner) Error(message string) {
	s.Stop()
	fmt.Printf("%s %s\n", ErrorStyle.Render(IconError), message)
}

// RunSpinner shows a generic loading animation and returns its stop function.
func RunSpinner(message string) func() {
	s := newSpinner(spinner.Dot, 80*time.Millisecond, message)
	s.Start()
	return s.Stop
}

// RunConnectionSpinner shows a network animation and returns its stop
// function.
func RunConnectionSpinner(message string) func() {
	s := newSpinner(spinner.Globe, 180*time.Millisecond, message)
	s.Start()
	return s.Stop
}
