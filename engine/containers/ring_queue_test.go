package containers

import (
	"testing"

	"github.com/cockroachdb/errors"
)

func TestRingQueueWrapsAround(t *testing.T) {
	q := NewRingQueue[int](3)
	for i := 1; i <= 3; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatalf("Enqueue(%d) = %v", i, err)
		}
	}
	if err := q.Enqueue(4); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Enqueue on full = %v", err)
	}
	if v, _ := q.Dequeue(); v != 1 {
		t.Fatalf("Dequeue = %d, want 1", v)
	}
	if err := q.Enqueue(4); err != nil {
		t.Fatalf("Enqueue after dequeue = %v", err)
	}
	if v, _ := q.Peek(); v != 2 {
		t.Errorf("Peek = %d, want 2", v)
	}
	got := q.Drain()
	want := []int{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("Drain = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Drain = %v, want %v", got, want)
		}
	}
	if !q.IsEmpty() || q.Drain() != nil {
		t.Error("queue not empty after drain")
	}
	if _, err := q.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Dequeue on empty = %v", err)
	}
}

func TestRingQueueMinimumCapacity(t *testing.T) {
	q := NewRingQueue[string](0)
	if q.Cap() != 1 {
		t.Fatalf("Cap() = %d", q.Cap())
	}
	if err := q.Enqueue("a"); err != nil {
		t.Fatal(err)
	}
	if !q.IsFull() || q.Len() != 1 {
		t.Error("single slot queue should be full")
	}
}
