package reactor_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/reactor"
)

// stubPoller returns a scripted number of empty waits, then scripted events, then
// blocks until woken.
type stubPoller struct {
	mu      sync.Mutex
	regs    map[int]reactor.Ops
	empties int
	script  []reactor.Event
	closed  bool
	waits   int

	wake    chan struct{}
	blocked chan struct{}
}

func newStub(empties int, script ...reactor.Event) *stubPoller {
	return &stubPoller{
		regs:    make(map[int]reactor.Ops),
		empties: empties,
		script:  script,
		wake:    make(chan struct{}, 1),
		blocked: make(chan struct{}, 1),
	}
}

func (p *stubPoller) Add(fd int, ops reactor.Ops) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regs[fd] = ops
	return nil
}

func (p *stubPoller) Modify(fd int, ops reactor.Ops) error { return p.Add(fd, ops) }

func (p *stubPoller) Delete(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.regs, fd)
	return nil
}

func (p *stubPoller) Wait(events []reactor.Event, _ time.Duration) (int, error) {
	p.mu.Lock()
	p.waits++
	if p.empties > 0 {
		p.empties--
		p.mu.Unlock()
		return 0, nil
	}
	if len(p.script) > 0 {
		n := copy(events, p.script)
		p.script = p.script[n:]
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	select {
	case p.blocked <- struct{}{}:
	default:
	}
	<-p.wake
	return 0, nil
}

func (p *stubPoller) Wakeup() error {
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

func (p *stubPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *stubPoller) registration(fd int) (reactor.Ops, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops, ok := p.regs[fd]
	return ops, ok
}

// factory hands out the given pollers in order.
func factory(t *testing.T, pollers ...*stubPoller) (reactor.PollerFactory, *int) {
	calls := 0
	return func() (reactor.Poller, error) {
		if calls >= len(pollers) {
			t.Errorf("unexpected poller creation #%d", calls+1)
			return nil, errors.New("no more pollers")
		}
		p := pollers[calls]
		calls++
		return p, nil
	}, &calls
}

func fixedClock() func() time.Time {
	t0 := time.Unix(1700000000, 0)
	return func() time.Time { return t0 }
}

func TestSelector_RebuildOnRepeatedEmptyWaits(t *testing.T) {
	const threshold = 5
	first := newStub(threshold)
	second := newStub(0, reactor.Event{FD: 7, Ops: reactor.OpRead})
	f, calls := factory(t, first, second)

	rebuilt := 0
	sel, err := reactor.Open(
		reactor.WithPollerFactory(f),
		reactor.WithSpinThreshold(threshold),
		reactor.WithClock(fixedClock()),
		reactor.WithOnRebuild(func() { rebuilt++ }),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer sel.Close()

	key, err := sel.Register(7, reactor.OpRead, "attachment")
	if err != nil {
		t.Fatal(err)
	}

	got, err := sel.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got != key || !got.IsReadable() {
		t.Fatalf("unexpected key %+v", got)
	}
	if got.Attachment() != "attachment" {
		t.Errorf("attachment lost: %v", got.Attachment())
	}
	if sel.Rebuilds() != 1 || rebuilt != 1 || *calls != 2 {
		t.Fatalf("rebuilds=%d hook=%d factory calls=%d, want 1/1/2", sel.Rebuilds(), rebuilt, *calls)
	}
	if ops, ok := second.registration(7); !ok || ops != reactor.OpRead {
		t.Errorf("registration on new poller = %v/%v", ops, ok)
	}
	if key.Interest() != reactor.OpRead {
		t.Errorf("interest changed to %v", key.Interest())
	}
	if _, ok := first.registration(7); ok {
		t.Error("old registration not cancelled")
	}
	if !first.closed {
		t.Error("old poller not closed")
	}
}

func TestSelector_EmptyWaitsOutsideWindowDoNotRebuild(t *testing.T) {
	stub := newStub(20, reactor.Event{FD: 3, Ops: reactor.OpRead})
	f, _ := factory(t, stub)

	tick := time.Unix(1700000000, 0)
	clock := func() time.Time {
		tick = tick.Add(2 * time.Millisecond)
		return tick
	}
	sel, err := reactor.Open(
		reactor.WithPollerFactory(f),
		reactor.WithSpinThreshold(3),
		reactor.WithSpinWindow(time.Millisecond),
		reactor.WithClock(clock),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer sel.Close()
	if _, err := sel.Register(3, reactor.OpRead, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := sel.Next(); err != nil {
		t.Fatal(err)
	}
	if sel.Rebuilds() != 0 {
		t.Errorf("Rebuilds = %d, want 0", sel.Rebuilds())
	}
}

func TestSelector_BatchIsConsumedOneKeyAtATime(t *testing.T) {
	stub := newStub(0,
		reactor.Event{FD: 1, Ops: reactor.OpRead},
		reactor.Event{FD: 2, Ops: reactor.OpRead},
		reactor.Event{FD: 9, Ops: reactor.OpRead}, // not registered
	)
	f, _ := factory(t, stub)
	sel, err := reactor.Open(reactor.WithPollerFactory(f))
	if err != nil {
		t.Fatal(err)
	}
	defer sel.Close()

	lk, _ := sel.Register(1, reactor.OpAccept, nil)
	rk, _ := sel.Register(2, reactor.OpRead, nil)

	k1, err := sel.Next()
	if err != nil || k1 != lk || !k1.IsAcceptable() || k1.IsReadable() {
		t.Fatalf("first key = %+v, %v", k1, err)
	}
	k2, err := sel.Next()
	if err != nil || k2 != rk || !k2.IsReadable() {
		t.Fatalf("second key = %+v, %v", k2, err)
	}
	if stub.waits != 1 {
		t.Errorf("waits = %d, want a single wait for the batch", stub.waits)
	}
}

func TestSelector_MaxEventsBoundsBatch(t *testing.T) {
	stub := newStub(0,
		reactor.Event{FD: 1, Ops: reactor.OpRead},
		reactor.Event{FD: 2, Ops: reactor.OpRead},
		reactor.Event{FD: 3, Ops: reactor.OpRead},
	)
	f, _ := factory(t, stub)
	sel, err := reactor.Open(reactor.WithPollerFactory(f), reactor.WithMaxEvents(2))
	if err != nil {
		t.Fatal(err)
	}
	defer sel.Close()

	for fd := 1; fd <= 3; fd++ {
		if _, err := sel.Register(fd, reactor.OpRead, fd); err != nil {
			t.Fatal(err)
		}
	}
	for want := 1; want <= 3; want++ {
		k, err := sel.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if k.FD() != want || k.Attachment() != want {
			t.Fatalf("key fd=%d attachment=%v, want %d", k.FD(), k.Attachment(), want)
		}
	}
	stub.mu.Lock()
	waits := stub.waits
	stub.mu.Unlock()
	if waits != 2 {
		t.Errorf("waits = %d, want 2 with a batch limit of 2", waits)
	}
}

func TestSelector_LenAndClosed(t *testing.T) {
	stub := newStub(0)
	f, _ := factory(t, stub)
	sel, err := reactor.Open(reactor.WithPollerFactory(f))
	if err != nil {
		t.Fatal(err)
	}
	if sel.Len() != 0 || sel.Closed() {
		t.Fatalf("fresh selector Len=%d Closed=%v", sel.Len(), sel.Closed())
	}
	k1, _ := sel.Register(1, reactor.OpRead, nil)
	k2, _ := sel.Register(2, 0, nil)
	if sel.Len() != 2 {
		t.Errorf("Len = %d, want 2", sel.Len())
	}
	if err := k1.Cancel(); err != nil {
		t.Fatal(err)
	}
	if sel.Len() != 1 || k1.Valid() || !k2.Valid() {
		t.Errorf("after cancel Len=%d valid=%v/%v", sel.Len(), k1.Valid(), k2.Valid())
	}
	if err := sel.Close(); err != nil {
		t.Fatal(err)
	}
	if !sel.Closed() || sel.Len() != 0 || k2.Valid() {
		t.Errorf("after close Closed=%v Len=%d k2 valid=%v", sel.Closed(), sel.Len(), k2.Valid())
	}
}

func TestSelector_CancelledKeyIsSkipped(t *testing.T) {
	stub := newStub(0,
		reactor.Event{FD: 1, Ops: reactor.OpRead},
		reactor.Event{FD: 2, Ops: reactor.OpRead},
	)
	f, _ := factory(t, stub)
	sel, err := reactor.Open(reactor.WithPollerFactory(f))
	if err != nil {
		t.Fatal(err)
	}
	defer sel.Close()

	k1, _ := sel.Register(1, reactor.OpRead, nil)
	k2, _ := sel.Register(2, reactor.OpRead, nil)

	got, _ := sel.Next()
	if got != k1 {
		t.Fatal("expected fd 1 first")
	}
	if err := k2.Cancel(); err != nil {
		t.Fatal(err)
	}
	if _, ok := stub.registration(2); ok {
		t.Error("cancel did not remove poller registration")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := sel.Next(); !errors.Is(err, api.ErrSelectorClosed) {
			t.Errorf("Next = %v, want ErrSelectorClosed", err)
		}
	}()
	<-stub.blocked
	sel.Close()
	<-done
}

func TestSelector_CloseUnblocksNext(t *testing.T) {
	stub := newStub(0)
	f, _ := factory(t, stub)
	sel, err := reactor.Open(reactor.WithPollerFactory(f))
	if err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := sel.Next()
		errCh <- err
	}()
	<-stub.blocked

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sel.Close()
		}()
	}
	wg.Wait()

	select {
	case err := <-errCh:
		if !errors.Is(err, api.ErrSelectorClosed) {
			t.Fatalf("Next = %v, want ErrSelectorClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}
	if !stub.closed {
		t.Error("poller not closed")
	}

	// Subsequent calls fail fast.
	if _, err := sel.Next(); !errors.Is(err, api.ErrSelectorClosed) {
		t.Errorf("Next after close = %v", err)
	}
	if _, err := sel.Register(5, reactor.OpRead, nil); !errors.Is(err, api.ErrSelectorClosed) {
		t.Errorf("Register after close = %v", err)
	}
}

func TestSelector_SetInterest(t *testing.T) {
	stub := newStub(0)
	f, _ := factory(t, stub)
	sel, err := reactor.Open(reactor.WithPollerFactory(f))
	if err != nil {
		t.Fatal(err)
	}
	defer sel.Close()

	k, err := sel.Register(4, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := stub.registration(4); ok {
		t.Fatal("zero interest should not reach the poller")
	}
	if err := k.SetInterest(reactor.OpRead | reactor.OpWrite); err != nil {
		t.Fatal(err)
	}
	if ops, _ := stub.registration(4); ops != reactor.OpRead|reactor.OpWrite {
		t.Errorf("poller ops = %v", ops)
	}
	if err := k.SetInterest(0); err != nil {
		t.Fatal(err)
	}
	if _, ok := stub.registration(4); ok {
		t.Error("clearing interest should remove the poller registration")
	}
	if _, err := sel.Register(4, reactor.OpRead, nil); !errors.Is(err, reactor.ErrAlreadyRegistered) {
		t.Errorf("duplicate Register = %v", err)
	}
	k.Cancel()
	if err := k.SetInterest(reactor.OpRead); !errors.Is(err, reactor.ErrKeyCancelled) {
		t.Errorf("SetInterest on cancelled key = %v", err)
	}
}

func TestOps_String(t *testing.T) {
	if s := (reactor.OpRead | reactor.OpWrite).String(); s != "read|write" {
		t.Errorf("String = %q", s)
	}
	if s := reactor.Ops(0).String(); s != "none" {
		t.Errorf("String = %q", s)
	}
}
