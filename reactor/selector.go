// File: reactor/selector.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Selector: one-event-at-a-time readiness selection with busy-spin recovery.

package reactor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-reactor/api"
)

const (
	// DefaultSpinThreshold is the number of consecutive zero-result waits, each within
	// the spin window of the previous one, that triggers a poller rebuild.
	DefaultSpinThreshold = 512
	// DefaultSpinWindow replaces "same millisecond" with a monotonic window.
	DefaultSpinWindow = time.Millisecond

	defaultMaxEvents = 128
)

var (
	ErrKeyCancelled      = errors.New("reactor: selection key cancelled")
	ErrAlreadyRegistered = errors.New("reactor: fd already registered")
)

// Option configures a Selector.
type Option func(*Selector)

// WithSpinThreshold sets how many consecutive empty waits trigger a rebuild.
// Non-positive values keep DefaultSpinThreshold.
func WithSpinThreshold(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.spinThreshold = n
		}
	}
}

// WithSpinWindow sets the maximum gap between two empty waits counted as one spin.
func WithSpinWindow(d time.Duration) Option {
	return func(s *Selector) {
		if d > 0 {
			s.spinWindow = d
		}
	}
}

// WithLogger sets the logger used for rebuild and poller errors.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Selector) { s.log = l.With().Str("component", "selector").Logger() }
}

// WithClock overrides the clock used by the spin detector.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) { s.now = now }
}

// WithPollerFactory replaces the platform poller, both at Open and on every rebuild.
func WithPollerFactory(f PollerFactory) Option {
	return func(s *Selector) { s.newPoller = f }
}

// WithOnRebuild registers a hook run after every successful rebuild.
func WithOnRebuild(fn func()) Option {
	return func(s *Selector) { s.onRebuild = fn }
}

// WithMaxEvents caps the number of events taken from one poller wait.
func WithMaxEvents(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.maxEvents = n
		}
	}
}

// Selector multiplexes readiness over many file descriptors.
type Selector struct {
	// mu guards the live poller. Wait and registration changes hold it shared;
	// rebuild and Close hold it exclusively.
	mu        sync.RWMutex
	poller    Poller
	newPoller PollerFactory

	keysMu sync.Mutex
	keys   map[int]*SelectionKey

	closed   atomic.Bool
	rebuilds atomic.Uint64

	// owned by the goroutine calling Next
	events     []Event
	ready      []*SelectionKey
	gen        uint64
	emptyCount int
	lastEmpty  time.Time

	spinThreshold int
	spinWindow    time.Duration
	maxEvents     int
	now           func() time.Time
	onRebuild     func()
	log           zerolog.Logger
}

// Open creates a Selector backed by a fresh poller.
func Open(opts ...Option) (*Selector, error) {
	s := &Selector{
		newPoller:     NewPoller,
		keys:          make(map[int]*SelectionKey),
		spinThreshold: DefaultSpinThreshold,
		spinWindow:    DefaultSpinWindow,
		maxEvents:     defaultMaxEvents,
		now:           time.Now,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	p, err := s.newPoller()
	if err != nil {
		return nil, fmt.Errorf("open poller: %w", err)
	}
	s.poller = p
	s.events = make([]Event, s.maxEvents)
	return s, nil
}

// Register starts watching fd for ops. The attachment is returned by the key.
func (s *Selector) Register(fd int, ops Ops, attachment any) (*SelectionKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return nil, api.ErrSelectorClosed
	}

	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	if old, ok := s.keys[fd]; ok && old.valid {
		return nil, fmt.Errorf("%w: fd %d", ErrAlreadyRegistered, fd)
	}
	if ops != 0 {
		if err := s.poller.Add(fd, ops); err != nil {
			return nil, err
		}
	}
	k := &SelectionKey{sel: s, fd: fd, attachment: attachment, interest: ops, valid: true}
	s.keys[fd] = k
	return k, nil
}

// Next returns the next ready key, blocking until one is available.
// It returns api.ErrSelectorClosed once Close has been called.
func (s *Selector) Next() (*SelectionKey, error) {
	for {
		if s.closed.Load() {
			s.ready = nil
			return nil, api.ErrSelectorClosed
		}
		for len(s.ready) > 0 {
			k := s.ready[0]
			s.ready[0] = nil
			s.ready = s.ready[1:]
			if k.Valid() {
				return k, nil
			}
		}

		n, err := s.wait()
		if err != nil {
			if s.closed.Load() || errors.Is(err, api.ErrSelectorClosed) {
				return nil, api.ErrSelectorClosed
			}
			return nil, err
		}
		if n == 0 {
			if !s.closed.Load() {
				s.recordEmpty()
			}
			continue
		}
		s.emptyCount = 0
		s.collect(n)
	}
}

func (s *Selector) wait() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return 0, api.ErrSelectorClosed
	}
	return s.poller.Wait(s.events, -1)
}

// recordEmpty counts zero-result waits that follow each other within the spin
// window and rebuilds the poller once the threshold is reached.
func (s *Selector) recordEmpty() {
	now := s.now()
	if !s.lastEmpty.IsZero() && now.Sub(s.lastEmpty) < s.spinWindow {
		s.emptyCount++
	} else {
		s.emptyCount = 1
	}
	s.lastEmpty = now
	if s.emptyCount < s.spinThreshold {
		return
	}
	s.emptyCount = 0
	if err := s.rebuild(); err != nil {
		s.log.Error().Err(err).Msg("poller rebuild failed, keeping current poller")
	}
}

// collect turns the last n events into a batch of ready keys.
func (s *Selector) collect(n int) {
	s.gen++
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	for _, ev := range s.events[:n] {
		k := s.keys[ev.FD]
		if k == nil || !k.valid {
			continue
		}
		ready := readyOps(ev.Ops, k.interest)
		if ready == 0 {
			continue
		}
		if k.gen == s.gen {
			k.ready |= ready
			continue
		}
		k.gen = s.gen
		k.ready = ready
		s.ready = append(s.ready, k)
	}
}

func readyOps(ev, interest Ops) Ops {
	var r Ops
	if ev&OpRead != 0 {
		r |= interest & (OpRead | OpAccept)
	}
	if ev&OpWrite != 0 {
		r |= interest & OpWrite
	}
	return r
}

// rebuild moves every live registration to a new poller and closes the old one.
func (s *Selector) rebuild() error {
	np, err := s.newPoller()
	if err != nil {
		return fmt.Errorf("new poller: %w", err)
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return np.Close()
	}
	old := s.poller
	moved := 0
	s.keysMu.Lock()
	for fd, k := range s.keys {
		if !k.valid || k.interest == 0 {
			continue
		}
		_ = old.Delete(fd)
		if err := np.Add(fd, k.interest); err != nil {
			s.log.Warn().Err(err).Int("fd", fd).Msg("dropping registration during rebuild")
			k.valid = false
			delete(s.keys, fd)
			continue
		}
		moved++
	}
	s.keysMu.Unlock()
	s.poller = np
	s.mu.Unlock()

	if err := old.Close(); err != nil {
		s.log.Debug().Err(err).Msg("closing replaced poller")
	}
	total := s.rebuilds.Add(1)
	if s.onRebuild != nil {
		s.onRebuild()
	}
	s.log.Warn().
		Int("registrations", moved).
		Uint64("rebuilds", total).
		Msg("poller rebuilt after repeated empty waits")
	return nil
}

// Rebuilds returns how many times the poller has been replaced.
func (s *Selector) Rebuilds() uint64 { return s.rebuilds.Load() }

// Len returns the number of live registrations.
func (s *Selector) Len() int {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	return len(s.keys)
}

// Closed reports whether Close has been called.
func (s *Selector) Closed() bool { return s.closed.Load() }

// Close wakes any blocked Next and releases the poller. Safe to call from any
// goroutine, any number of times.
func (s *Selector) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.RLock()
	if err := s.poller.Wakeup(); err != nil {
		s.log.Debug().Err(err).Msg("wakeup on close")
	}
	s.mu.RUnlock()

	// Waits for an in-flight Wait to observe the wakeup.
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keysMu.Lock()
	for _, k := range s.keys {
		k.valid = false
	}
	s.keys = make(map[int]*SelectionKey)
	s.keysMu.Unlock()
	return s.poller.Close()
}

func (s *Selector) setInterest(k *SelectionKey, ops Ops) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return api.ErrSelectorClosed
	}
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	if !k.valid {
		return ErrKeyCancelled
	}
	old := k.interest
	var err error
	switch {
	case old == ops:
		return nil
	case old == 0:
		err = s.poller.Add(k.fd, ops)
	case ops == 0:
		err = s.poller.Delete(k.fd)
	default:
		err = s.poller.Modify(k.fd, ops)
	}
	if err != nil {
		return err
	}
	k.interest = ops
	return nil
}

func (s *Selector) cancel(k *SelectionKey) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	if !k.valid {
		return nil
	}
	k.valid = false
	if s.keys[k.fd] == k {
		delete(s.keys, k.fd)
	}
	if s.closed.Load() || k.interest == 0 {
		return nil
	}
	return s.poller.Delete(k.fd)
}
