package queue

import (
	"context"
	"testing"
	"time"

	"github.com/mymmrac/telego"
)

func TestTryEnqueueDropsWhenFull(t *testing.T) {
	q := New(2)

	if !q.TryEnqueue(telego.Update{UpdateID: 1}) {
		t.Fatal("first enqueue rejected")
	}
	if !q.TryEnqueue(telego.Update{UpdateID: 2}) {
		t.Fatal("second enqueue rejected")
	}
	if q.TryEnqueue(telego.Update{UpdateID: 3}) {
		t.Fatal("enqueue beyond capacity accepted")
	}
	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2", q.Len())
	}
}

func TestDequeueOrder(t *testing.T) {
	q := New(4)
	q.TryEnqueue(telego.Update{UpdateID: 10})
	q.TryEnqueue(telego.Update{UpdateID: 20})

	update, ok := q.Dequeue(context.Background())
	if !ok || update.UpdateID != 10 {
		t.Fatalf("first dequeue = (%d, %v), want (10, true)", update.UpdateID, ok)
	}
	update, ok = q.Dequeue(context.Background())
	if !ok || update.UpdateID != 20 {
		t.Fatalf("second dequeue = (%d, %v), want (20, true)", update.UpdateID, ok)
	}
}

func TestDequeueContextCancel(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := q.Dequeue(ctx); ok {
		t.Fatal("dequeue on empty queue returned ok")
	}
}

func TestCloseDrainsThenStops(t *testing.T) {
	q := New(2)
	q.TryEnqueue(telego.Update{UpdateID: 1})
	q.Close()
	q.Close()

	if q.TryEnqueue(telego.Update{UpdateID: 2}) {
		t.Fatal("enqueue accepted after close")
	}

	update, ok := q.Dequeue(context.Background())
	if !ok || update.UpdateID != 1 {
		t.Fatalf("dequeue after close = (%d, %v), want buffered update", update.UpdateID, ok)
	}
	if _, ok := q.Dequeue(context.Background()); ok {
		t.Fatal("dequeue on drained closed queue returned ok")
	}
}
