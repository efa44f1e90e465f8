package termui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"fortuneteller/pkg/fortune"
)

//nolint:gochecknoglobals // animation frames
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// patienceAfter is when the spinner switches to its "please wait" message.
const patienceAfter = time.Minute

// Spinner animates one line while a slow call runs.
type Spinner struct {
	w        io.Writer
	theme    *Theme
	message  string
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewSpinner creates a stopped spinner.
func NewSpinner(w io.Writer, theme *Theme, message string) *Spinner {
	return &Spinner{
		w:        w,
		theme:    theme,
		message:  message,
		interval: 100 * time.Millisecond,
		now:      time.Now,
	}
}

// Start begins animating. Starting a running spinner does nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.now(), s.stop, s.done)
}

func (s *Spinner) loop(started time.Time, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		s.frame(i, s.now().Sub(started))
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func (s *Spinner) frame(i int, elapsed time.Duration) {
	secs := int(elapsed / time.Second)
	if elapsed > patienceAfter {
		fmt.Fprintf(s.w, "\r%s %s，请耐心等待 (%d秒)...", s.theme.Tone("⏳", fortune.ToneHighlight), s.message, secs)
		return
	}
	fmt.Fprintf(s.w, "\r%s %s (%d秒)...", s.theme.Tone(spinnerFrames[i%len(spinnerFrames)], fortune.ToneHighlight), s.message, secs)
}

// Stop halts the animation and clears its line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	s.theme.out.ClearLine()
	fmt.Fprint(s.w, "\r")
}
