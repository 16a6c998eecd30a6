package collector

import (
	"testing"
	"time"
)

func TestFifoQueuePreservesOrder(t *testing.T) {
	q := newFifoQueue()
	q.push(job{url: "a"})
	q.push(job{url: "b"})
	q.push(job{url: "c"})

	for _, want := range []string{"a", "b", "c"} {
		j, ok := q.pop()
		if !ok || j.url != want {
			t.Fatalf("pop() = %v, %v; want %q", j, ok, want)
		}
	}
}

func TestFifoQueuePopBlocksUntilPush(t *testing.T) {
	q := newFifoQueue()
	done := make(chan job)
	go func() {
		j, _ := q.pop()
		done <- j
	}()

	select {
	case <-done:
		t.Fatal("pop returned before any push")
	case <-time.After(50 * time.Millisecond):
	}

	q.push(job{url: "later"})
	select {
	case j := <-done:
		if j.url != "later" {
			t.Errorf("got %q", j.url)
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not wake after push")
	}
}

func TestFifoQueueCloseWakesBlockedPop(t *testing.T) {
	q := newFifoQueue()
	done := make(chan bool)
	go func() {
		_, ok := q.pop()
		done <- ok
	}()

	q.close()
	select {
	case ok := <-done:
		if ok {
			t.Error("expected ok=false from pop after close")
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not wake after close")
	}
}

func TestFifoQueuePushAfterCloseIsRejected(t *testing.T) {
	q := newFifoQueue()
	q.close()
	if q.push(job{url: "x"}) {
		t.Error("push after close should be rejected")
	}
}

func TestFifoQueueDrainPending(t *testing.T) {
	q := newFifoQueue()
	q.push(job{url: "a"})
	q.push(job{url: "b"})

	pending := q.drainPending()
	if len(pending) != 2 {
		t.Fatalf("expected 2 drained items, got %d", len(pending))
	}

	// queue should now report empty but not closed.
	q.push(job{url: "c"})
	j, ok := q.pop()
	if !ok || j.url != "c" {
		t.Errorf("queue should still accept pushes after drainPending, got %v %v", j, ok)
	}
}
