package queue

import (
	"testing"
	"testing/quick"
)

func TestQueue_DropsOldestOnOverflow(t *testing.T) {
	q := New[int](3)
	for i := 1; i <= 5; i++ {
		q.Push(i)
	}

	if got := q.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	want := []int{3, 4, 5}
	for _, w := range want {
		got, ok := q.TryPop()
		if !ok || got != w {
			t.Fatalf("TryPop() = (%d, %v), want (%d, true)", got, ok, w)
		}
	}
}

func TestQueue_FIFOOrderPreserved(t *testing.T) {
	f := func(items []int) bool {
		q := New[int](len(items) + 1) // capacity large enough: no drops
		for _, it := range items {
			q.Push(it)
		}
		for _, want := range items {
			got, ok := q.TryPop()
			if !ok || got != want {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestQueue_CountAfterOverflowIsCapacity(t *testing.T) {
	f := func(capacity uint8, pushes uint8) bool {
		cap := int(capacity)%16 + 1
		n := int(pushes) % 64
		q := New[int](cap)
		for i := 0; i < n; i++ {
			q.Push(i)
		}
		want := n
		if want > cap {
			want = cap
		}
		return q.Len() == want
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := New[int](4)
	done := make(chan int)
	go func() {
		v, ok := q.Pop()
		if !ok {
			done <- -1
			return
		}
		done <- v
	}()
	q.Push(42)
	if got := <-done; got != 42 {
		t.Fatalf("Pop() = %d, want 42", got)
	}
}

func TestQueue_CloseUnblocksPop(t *testing.T) {
	q := New[int](4)
	done := make(chan bool)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()
	q.Close()
	if ok := <-done; ok {
		t.Fatalf("Pop() ok = true after Close on empty queue, want false")
	}
}

func TestQueue_StatsTrackDrops(t *testing.T) {
	q := New[int](2)
	q.Push(1)
	q.Push(2)
	q.Push(3) // drops 1
	stats := q.Stats()
	if stats.Pushed != 3 || stats.Dropped != 1 || stats.Depth != 2 {
		t.Fatalf("Stats() = %+v, want Pushed=3 Dropped=1 Depth=2", stats)
	}
}
