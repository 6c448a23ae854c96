package skelanim

import (
	"runtime"
	"sync"
	"time"
)

// System updates a set of animators once per frame. Animators are updated
// in parallel; each one is only touched by one goroutine at a time.
type System struct {
	Time Time

	animators []*Animator
	workers   int
	logger    Logger
}

// NewSystem returns a system updating animators on up to workers
// goroutines. workers <= 0 uses one per CPU.
func NewSystem(workers int, logger Logger) *System {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &System{workers: workers, logger: orNop(logger)}
}

// Add registers a. It returns false when a is already registered: each
// animator is updated by a single worker per frame.
func (s *System) Add(a *Animator) bool {
	for _, other := range s.animators {
		if other == a {
			return false
		}
	}
	s.animators = append(s.animators, a)
	return true
}

func (s *System) Remove(a *Animator) bool {
	for i, other := range s.animators {
		if other == a {
			s.animators = append(s.animators[:i], s.animators[i+1:]...)
			return true
		}
	}
	return false
}

func (s *System) Animators() []*Animator { return s.animators }

// Tick advances the clock to now and updates every animator with the
// elapsed time. It returns the number of animators that failed to update.
func (s *System) Tick(now time.Time) int {
	s.Time.advance(now)
	return s.Update(s.Time.Dt)
}

// Update updates every animator by dt and waits for all of them.
func (s *System) Update(dt time.Duration) int {
	jobs := make(chan *Animator)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	workers := min(s.workers, len(s.animators))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range jobs {
				if !a.Update(dt) {
					mu.Lock()
					failed++
					mu.Unlock()
				}
			}
		}()
	}
	for _, a := range s.animators {
		jobs <- a
	}
	close(jobs)
	wg.Wait()

	if failed > 0 {
		s.logger.Warnf("frame %d: %d of %d animators failed to update", s.Time.Frame, failed, len(s.animators))
	}
	return failed
}
