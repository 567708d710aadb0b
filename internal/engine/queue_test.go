package engine

import "testing"

func TestWriteQueue_EnqueuePop(t *testing.T) {
	t.Parallel()
	q := newWriteQueue(4)

	if !q.Enqueue("a", "1") {
		t.Fatal("Enqueue should succeed under capacity")
	}
	item, ok := q.Pop()
	if !ok || item.key != "a" || item.value != "1" {
		t.Fatalf("Pop want (a,1,true), got (%+v,%v)", item, ok)
	}
}

func TestWriteQueue_EnqueueFailsAtCapacity(t *testing.T) {
	t.Parallel()
	q := newWriteQueue(1)

	if !q.Enqueue("a", "1") {
		t.Fatal("first Enqueue should succeed")
	}
	if q.Enqueue("b", "2") {
		t.Fatal("second Enqueue should fail, queue is at capacity")
	}
}

func TestWriteQueue_DrainKeyRemovesOnlyThatKey(t *testing.T) {
	t.Parallel()
	q := newWriteQueue(8)

	q.Enqueue("a", "1")
	q.Enqueue("b", "2")
	q.Enqueue("a", "3")

	n := q.DrainKey("a")
	if n != 2 {
		t.Fatalf("DrainKey(a) want 2 removed, got %d", n)
	}

	item, ok := q.Pop()
	if !ok || item.key != "b" {
		t.Fatalf("remaining item should be b, got %+v ok=%v", item, ok)
	}
}

func TestWriteQueue_DiscardAll(t *testing.T) {
	t.Parallel()
	q := newWriteQueue(8)

	q.Enqueue("a", "1")
	q.Enqueue("b", "2")
	q.DiscardAll()

	if q.Len() != 0 {
		t.Fatalf("Len after DiscardAll want 0, got %d", q.Len())
	}
}

func TestWriteQueue_BarrierClosesAfterPriorItemsPopped(t *testing.T) {
	t.Parallel()
	q := newWriteQueue(8)

	q.Enqueue("a", "1")
	done := q.Barrier()

	select {
	case <-done:
		t.Fatal("barrier must not close before the item ahead of it is popped")
	default:
	}

	if _, ok := q.Pop(); !ok {
		t.Fatal("Pop should return the queued item")
	}
	if _, ok := q.Pop(); !ok {
		t.Fatal("Pop should return the barrier item")
	}

	select {
	case <-done:
	default:
		t.Fatal("barrier channel should be closed once the writer reaches it")
	}
}

func TestWriteQueue_PopBlocksUntilClosedWhenEmpty(t *testing.T) {
	t.Parallel()
	q := newWriteQueue(8)

	done := make(chan struct{})
	go func() {
		_, ok := q.Pop()
		if ok {
			t.Error("Pop on a closed empty queue should return ok=false")
		}
		close(done)
	}()

	q.Close()
	<-done
}
