// File: internal/monitoring/sampler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Periodic process resource sampling.

package monitoring

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// Sampler records process RSS and CPU on a ticker and runs registered probes
// on the same tick.
type Sampler struct {
	interval time.Duration
	log      zerolog.Logger
	proc     *process.Process

	mu     sync.Mutex
	probes []func()
}

// NewSampler prepares a sampler for the current process. If process information is
// unavailable only the probes run.
func NewSampler(interval time.Duration, log zerolog.Logger) *Sampler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	s := &Sampler{
		interval: interval,
		log:      log.With().Str("component", "sampler").Logger(),
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.log.Warn().Err(err).Msg("process info unavailable, resource gauges disabled")
	} else {
		s.proc = proc
	}
	return s
}

// AddProbe registers fn to run on every tick.
func (s *Sampler) AddProbe(fn func()) {
	s.mu.Lock()
	s.probes = append(s.probes, fn)
	s.mu.Unlock()
}

// Run samples until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	if s.proc != nil {
		if mem, err := s.proc.MemoryInfo(); err == nil {
			processRSS.Set(float64(mem.RSS))
		}
		if pct, err := s.proc.CPUPercent(); err == nil {
			processCPU.Set(pct)
		}
	}
	s.mu.Lock()
	probes := append([]func(){}, s.probes...)
	s.mu.Unlock()
	for _, fn := range probes {
		fn()
	}
}
