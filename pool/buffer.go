// File: pool/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// PooledBuffer: a fixed-capacity byte region owned by a BufferPool ring.

package pool

import "fmt"

type tier uint8

const (
	tierCore tier = iota
	tierOverflow
	tierUnpooled // never tracked, or detached by eviction
)

func (t tier) String() string {
	switch t {
	case tierCore:
		return "core"
	case tierOverflow:
		return "overflow"
	default:
		return "unpooled"
	}
}

// PooledBuffer is a reusable buffer of fixed capacity.
// Its ring link and in-use flag are owned by the pool and only touched under the pool lock.
type PooledBuffer struct {
	data   []byte
	length int
	direct bool
	pool   *BufferPool // immutable after creation; nil for unpooled fallbacks

	inUse bool
	tier  tier
	next  *PooledBuffer
}

// Bytes returns the filled part of the buffer. The slice is capped so appends never
// write into the pooled memory.
func (b *PooledBuffer) Bytes() []byte { return b.data[:b.length:b.length] }

// Raw returns the whole backing region, for filling from a read.
func (b *PooledBuffer) Raw() []byte { return b.data }

// SetLen sets the filled length after writing into Raw.
func (b *PooledBuffer) SetLen(n int) {
	if n < 0 || n > len(b.data) {
		panic(fmt.Sprintf("pool: length %d out of range [0,%d]", n, len(b.data)))
	}
	b.length = n
}

func (b *PooledBuffer) Len() int { return b.length }
func (b *PooledBuffer) Cap() int { return len(b.data) }

// Direct reports whether the backing memory lives outside the Go heap.
func (b *PooledBuffer) Direct() bool { return b.direct }

// Pooled reports whether the buffer is still tracked by a pool ring.
func (b *PooledBuffer) Pooled() bool {
	if b.pool == nil {
		return false
	}
	b.pool.mu.Lock()
	defer b.pool.mu.Unlock()
	return b.tier != tierUnpooled
}

// InUse reports whether the buffer is currently handed out.
func (b *PooledBuffer) InUse() bool {
	if b.pool == nil {
		return true
	}
	b.pool.mu.Lock()
	defer b.pool.mu.Unlock()
	return b.inUse
}

// Release hands the buffer back to its pool. No-op for unpooled buffers.
func (b *PooledBuffer) Release() {
	if b.pool != nil {
		b.pool.Release(b)
	}
}
