// File: pool/bufferpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Two-tier ring buffer pool: a resident core ring plus an idle-evicted overflow ring.

package pool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/momentics/hioload-reactor/api"
)

// ErrBuffersInUse is returned by Close while core buffers are still handed out.
// The direct memory is then released by the last Release.
var ErrBuffersInUse = errors.New("pool: buffers still in use")

// Config sizes a BufferPool.
type Config struct {
	BufferSize int           // capacity of every buffer
	CoreSize   int           // resident buffers
	MaxSize    int           // core + overflow upper bound
	KeepAlive  time.Duration // idle time after which the overflow ring is dropped
	Direct     bool          // back the core ring with off-heap memory where supported
}

// DefaultConfig returns the pool defaults used by the server.
func DefaultConfig() Config {
	return Config{
		BufferSize: 4096,
		CoreSize:   64,
		MaxSize:    256,
		KeepAlive:  60 * time.Second,
		Direct:     true,
	}
}

// Validate checks the sizing invariants.
func (c Config) Validate() error {
	if c.BufferSize <= 0 {
		return fmt.Errorf("%w: buffer size must be > 0, got %d", api.ErrInvalidArgument, c.BufferSize)
	}
	if c.CoreSize < 1 {
		return fmt.Errorf("%w: core size must be >= 1, got %d", api.ErrInvalidArgument, c.CoreSize)
	}
	if c.MaxSize < c.CoreSize {
		return fmt.Errorf("%w: max size %d below core size %d", api.ErrInvalidArgument, c.MaxSize, c.CoreSize)
	}
	if c.KeepAlive < 0 {
		return fmt.Errorf("%w: negative keep-alive %s", api.ErrInvalidArgument, c.KeepAlive)
	}
	return nil
}

// Stats is a point-in-time snapshot of pool accounting.
type Stats struct {
	BufferSize     int
	CoreSize       int
	OverflowCount  int
	InUse          int
	OverflowAllocs uint64
	UnpooledAllocs uint64
	Evictions      uint64
}

// BufferPool hands out fixed-size buffers from a core ring and an overflow ring.
// All methods are safe for concurrent use; buffers are typically taken on the reactor
// goroutine and released on executor goroutines.
type BufferPool struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	core            *PooledBuffer // cursor into the core ring
	overflow        *PooledBuffer // cursor into the overflow ring, nil when empty
	overflowCount   int
	lastOverflowUse time.Time

	regions [][]byte // direct mappings backing the core ring
	inUse   int
	closed  bool

	overflowAllocs uint64
	unpooledAllocs uint64
	evictions      uint64
}

// New allocates the core ring. Overflow buffers are created lazily.
func New(cfg Config) (*BufferPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &BufferPool{cfg: cfg, now: time.Now}

	var region []byte
	if cfg.Direct {
		if r, err := allocDirect(cfg.CoreSize * cfg.BufferSize); err == nil {
			region = r
			p.regions = append(p.regions, r)
		}
	}

	var first, prev *PooledBuffer
	for i := 0; i < cfg.CoreSize; i++ {
		b := &PooledBuffer{pool: p, tier: tierCore}
		if region != nil {
			lo, hi := i*cfg.BufferSize, (i+1)*cfg.BufferSize
			b.data = region[lo:hi:hi]
			b.direct = true
		} else {
			b.data = make([]byte, cfg.BufferSize)
		}
		if first == nil {
			first = b
		} else {
			prev.next = b
		}
		prev = b
	}
	prev.next = first
	p.core = first
	return p, nil
}

// BufferSize returns the capacity of every buffer from this pool.
func (p *BufferPool) BufferSize() int { return p.cfg.BufferSize }

// Get returns a cleared buffer that no other caller holds.
func (p *BufferPool) Get() *PooledBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		if b := claim(&p.core); b != nil {
			p.inUse++
			p.evictIdleOverflow()
			return b
		}
		if b := p.getOverflow(); b != nil {
			p.inUse++
			return b
		}
	}
	p.unpooledAllocs++
	return &PooledBuffer{data: make([]byte, p.cfg.BufferSize), tier: tierUnpooled, inUse: true}
}

// Release marks b available again. Buffers of other pools, unpooled fallbacks and
// evicted overflow buffers are ignored.
func (p *BufferPool) Release(b *PooledBuffer) {
	if b == nil || b.pool != p {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if b.tier == tierUnpooled || !b.inUse {
		return
	}
	b.inUse = false
	b.length = 0
	p.inUse--
	if b.tier == tierOverflow {
		p.lastOverflowUse = p.now()
	}
	if p.closed && p.inUse == 0 {
		p.freeRegions()
	}
}

// Stats returns current accounting.
func (p *BufferPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		BufferSize:     p.cfg.BufferSize,
		CoreSize:       p.cfg.CoreSize,
		OverflowCount:  p.overflowCount,
		InUse:          p.inUse,
		OverflowAllocs: p.overflowAllocs,
		UnpooledAllocs: p.unpooledAllocs,
		Evictions:      p.evictions,
	}
}

// Close stops pooling. Later Get calls return unpooled buffers. Direct memory is
// unmapped immediately when nothing is in use, otherwise on the last Release, and
// ErrBuffersInUse is returned.
func (p *BufferPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.dropOverflow()
	if p.inUse > 0 {
		return ErrBuffersInUse
	}
	return p.freeRegions()
}

func (p *BufferPool) getOverflow() *PooledBuffer {
	limit := p.cfg.MaxSize - p.cfg.CoreSize
	if limit == 0 {
		return nil
	}
	if b := claim(&p.overflow); b != nil {
		p.lastOverflowUse = p.now()
		return b
	}
	if p.overflowCount >= limit {
		return nil
	}

	b := &PooledBuffer{
		data:  make([]byte, p.cfg.BufferSize),
		pool:  p,
		tier:  tierOverflow,
		inUse: true,
	}
	if p.overflow == nil {
		b.next = b
		p.overflow = b
	} else {
		b.next = p.overflow.next
		p.overflow.next = b
	}
	p.overflowCount++
	p.overflowAllocs++
	p.lastOverflowUse = p.now()
	return b
}

func (p *BufferPool) evictIdleOverflow() {
	if p.overflow == nil || p.now().Sub(p.lastOverflowUse) <= p.cfg.KeepAlive {
		return
	}
	p.dropOverflow()
	p.evictions++
}

// dropOverflow detaches every overflow node. Nodes still held by callers become
// unpooled and their Release is ignored.
func (p *BufferPool) dropOverflow() {
	n := p.overflow
	for i := 0; i < p.overflowCount; i++ {
		next := n.next
		if n.inUse {
			p.inUse--
		}
		n.tier = tierUnpooled
		n.next = nil
		n = next
	}
	p.overflow = nil
	p.overflowCount = 0
}

func (p *BufferPool) freeRegions() error {
	var firstErr error
	for _, r := range p.regions {
		if err := freeDirect(r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.regions = nil
	return firstErr
}

// claim walks the ring from *cursor and takes the first free node, advancing the
// cursor past it. Returns nil when every node is in use.
func claim(cursor **PooledBuffer) *PooledBuffer {
	start := *cursor
	if start == nil {
		return nil
	}
	n := start
	for {
		if !n.inUse {
			n.inUse = true
			n.length = 0
			*cursor = n.next
			return n
		}
		n = n.next
		if n == start {
			return nil
		}
	}
}
