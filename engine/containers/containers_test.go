package containers

import (
	"errors"
	"testing"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](3)
	for i := 1; i <= 3; i++ {
		if err := rq.Enqueue(i); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}
	if err := rq.Enqueue(4); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Enqueue on full queue error = %v", err)
	}
	if v, _ := rq.Peek(); v != 1 {
		t.Errorf("Peek() = %d, want 1", v)
	}
	v, _ := rq.Dequeue()
	if v != 1 {
		t.Errorf("Dequeue() = %d, want 1", v)
	}
	// wrap around
	rq.Enqueue(4)
	want := []int{2, 3, 4}
	for _, w := range want {
		got, err := rq.Dequeue()
		if err != nil || got != w {
			t.Fatalf("Dequeue() = %d, %v, want %d", got, err, w)
		}
	}
	if _, err := rq.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Dequeue on empty queue error = %v", err)
	}
	if rq.Len() != 0 {
		t.Errorf("Len() = %d", rq.Len())
	}
}

func TestHandleTableNeverReuses(t *testing.T) {
	ht := NewHandleTable[string]()
	a := ht.Acquire("a")
	b := ht.Acquire("b")
	if a == 0 || b == 0 || a == b {
		t.Fatalf("bad handles %d %d", a, b)
	}
	if v, ok := ht.Release(a); !ok || v != "a" {
		t.Fatalf("Release(a) = %q, %v", v, ok)
	}
	if _, ok := ht.Release(a); ok {
		t.Error("second release of the same handle must be a no-op")
	}
	if _, ok := ht.Release(0); ok {
		t.Error("release of the zero handle must be a no-op")
	}
	c := ht.Acquire("c")
	if c == a {
		t.Error("released handle was reused")
	}
	if ht.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ht.Len())
	}
	seen := 0
	ht.Each(func(uint64, string) { seen++ })
	if seen != 2 {
		t.Errorf("Each visited %d entries, want 2", seen)
	}
}
