// File: reactor/key.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

// SelectionKey is the registration of one fd with a Selector.
type SelectionKey struct {
	sel        *Selector
	fd         int
	attachment any

	// guarded by sel.keysMu
	interest Ops
	valid    bool

	// written by the Next goroutine
	ready Ops
	gen   uint64
}

// FD returns the registered file descriptor.
func (k *SelectionKey) FD() int { return k.fd }

// Attachment returns the value passed to Register.
func (k *SelectionKey) Attachment() any { return k.attachment }

// Ready returns the operations found ready by the Next call that returned this key.
func (k *SelectionKey) Ready() Ops { return k.ready }

// IsAcceptable reports whether a listener key has connections to accept.
func (k *SelectionKey) IsAcceptable() bool { return k.ready&OpAccept != 0 }

// IsReadable reports whether the fd has data or end of stream pending.
func (k *SelectionKey) IsReadable() bool { return k.ready&OpRead != 0 }

// IsWritable reports whether the fd can take more bytes.
func (k *SelectionKey) IsWritable() bool { return k.ready&OpWrite != 0 }

// Interest returns the operations the key is currently registered for.
func (k *SelectionKey) Interest() Ops {
	k.sel.keysMu.Lock()
	defer k.sel.keysMu.Unlock()
	return k.interest
}

// SetInterest replaces the interest set. Setting the current set is a no-op.
func (k *SelectionKey) SetInterest(ops Ops) error {
	return k.sel.setInterest(k, ops)
}

// Valid reports whether the key is still registered.
func (k *SelectionKey) Valid() bool {
	k.sel.keysMu.Lock()
	defer k.sel.keysMu.Unlock()
	return k.valid
}

// Cancel removes the registration. Ready events already batched for this key are
// dropped by Next.
func (k *SelectionKey) Cancel() error {
	return k.sel.cancel(k)
}
