package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/logic/capture"
)

// State is the scheduler's position in its two-state machine.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// CycleRunner performs one acquisition attempt. *capture.Cycle satisfies it.
type CycleRunner interface {
	Run(ctx context.Context) capture.Outcome
}

// Counter is the process-wide capture counter, incremented on Accepted only.
// It must be safe for concurrent reads while incrementing.
// prometheus.Counter satisfies it.
type Counter interface {
	Inc()
}

// Reporter receives every outcome after the counter has been updated
// (metrics, SSE broadcast, indicator LED, ...).
type Reporter interface {
	Report(out capture.Outcome)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(out capture.Outcome)

func (f ReporterFunc) Report(out capture.Outcome) { f(out) }

// Config is the runtime config the scheduler needs.
type Config struct {
	Interval  time.Duration // measured from the end of one cycle to the start of the next
	MaxCycles int           // 0 = run until ctx is cancelled
}

// Status is a point-in-time view of the scheduler, safe to serialize.
type Status struct {
	State    string      `json:"state"`
	Cycles   uint64      `json:"cycles"`
	Accepted uint64      `json:"accepted"`
	Rejected uint64      `json:"rejected"`
	Failed   uint64      `json:"failed"`
	Last     *LastResult `json:"last,omitempty"`
	NextRun  *time.Time  `json:"next_run,omitempty"`
}

// LastResult summarizes the most recent outcome.
type LastResult struct {
	ID       string    `json:"id"`
	Result   string    `json:"result"`
	Path     string    `json:"path,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Error    string    `json:"error,omitempty"`
	Category string    `json:"category,omitempty"`
	Started  time.Time `json:"started"`
	Duration string    `json:"duration"`
}

// Scheduler runs the acquisition cycle sequentially at a fixed interval.
// Cycles never overlap; failures never stop the loop.
type Scheduler struct {
	cycle     CycleRunner
	counter   Counter
	reporters []Reporter
	cfg       Config
	trigger   chan struct{}

	mu     sync.RWMutex
	state  State
	status Status
}

// New creates a scheduler with immutable config.
func New(cycle CycleRunner, counter Counter, cfg Config, reporters ...Reporter) (*Scheduler, error) {
	if cycle == nil {
		return nil, errors.New("schedule: cycle required")
	}
	if counter == nil {
		return nil, errors.New("schedule: counter required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("schedule: interval must be > 0")
	}
	if cfg.MaxCycles < 0 {
		return nil, errors.New("schedule: max cycles must be >= 0")
	}
	return &Scheduler{
		cycle:     cycle,
		counter:   counter,
		reporters: reporters,
		cfg:       cfg,
		trigger:   make(chan struct{}, 1),
	}, nil
}

// Run executes the first cycle immediately, then one cycle per interval.
// It returns nil when ctx is cancelled or after MaxCycles cycles.
func (s *Scheduler) Run(ctx context.Context) error {
	for n := 1; ; n++ {
		if ctx.Err() != nil {
			return nil
		}

		s.runOnce(ctx)

		if s.cfg.MaxCycles > 0 && n >= s.cfg.MaxCycles {
			debug.Info("Reached %d cycles, stopping", n)
			return nil
		}

		next := time.Now().Add(s.cfg.Interval)
		s.setNextRun(&next)
		debug.Verbose("Sleeping %v", s.cfg.Interval)

		timer := time.NewTimer(s.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setNextRun(nil)
			return nil
		case <-timer.C:
		case <-s.trigger:
			timer.Stop()
			debug.Info("Manual trigger, running cycle early")
		}
		s.setNextRun(nil)
	}
}

// Trigger asks an idle scheduler to start the next cycle now.
// Requests are coalesced: it returns false if one is already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status returns a snapshot of the scheduler state and counts.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.status
	st.State = s.state.String()
	if s.status.Last != nil {
		last := *s.status.Last
		st.Last = &last
	}
	if s.status.NextRun != nil {
		next := *s.status.NextRun
		st.NextRun = &next
	}
	return st
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.setState(Running)
	debug.Live("Fetching snapshot...")

	out := s.cycle.Run(ctx)

	switch out.Result {
	case capture.Accepted:
		s.counter.Inc()
		debug.Accepted(out.ID, out.Path)
	case capture.Rejected:
		debug.Rejected(out.ID, out.Reason)
	default:
		debug.Failed(out.ID, out.Category().String(), out.Err)
	}

	s.record(out)
	s.setState(Idle)

	for _, r := range s.reporters {
		report(r, out)
	}
}

// report isolates one reporter so a panic in it never stops the loop
// or starves the reporters after it.
func report(r Reporter, out capture.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			debug.Error(fmt.Errorf("reporter %T panicked on cycle %s: %v", r, out.ID, p))
		}
	}()
	r.Report(out)
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Scheduler) setNextRun(t *time.Time) {
	s.mu.Lock()
	s.status.NextRun = t
	s.mu.Unlock()
}

func (s *Scheduler) record(out capture.Outcome) {
	last := &LastResult{
		ID:       out.ID,
		Result:   out.Result.String(),
		Path:     out.Path,
		Reason:   out.Reason,
		Started:  out.Started,
		Duration: out.Duration.String(),
	}
	if out.Err != nil {
		last.Error = out.Err.Error()
		last.Category = out.Category().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Cycles++
	switch out.Result {
	case capture.Accepted:
		s.status.Accepted++
	case capture.Rejected:
		s.status.Rejected++
	default:
		s.status.Failed++
	}
	s.status.Last = last
}
