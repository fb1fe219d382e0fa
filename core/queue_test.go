package core

import "testing"

func TestDeltaQueue_FIFO(t *testing.T) {
	q := NewDeltaQueue(10)
	q.Push(Delta{Type: OpRegister, Entry: Entry{Registration: Registration{Name: "a.vfs"}}})
	q.Push(Delta{Type: OpRegister, Entry: Entry{Registration: Registration{Name: "b.vfs"}}})

	d, ok := q.Pop()
	if !ok || d.Entry.Registration.Name != "a.vfs" {
		t.Fatalf("expected a.vfs first, got %+v ok=%v", d, ok)
	}
	d, ok = q.Pop()
	if !ok || d.Entry.Registration.Name != "b.vfs" {
		t.Fatalf("expected b.vfs second, got %+v ok=%v", d, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("queue should be empty")
	}
}

func TestDeltaQueue_OverflowDropsOldest(t *testing.T) {
	q := NewDeltaQueue(2)
	q.Push(Delta{Entry: Entry{Registration: Registration{Name: "a.vfs"}}})
	q.Push(Delta{Entry: Entry{Registration: Registration{Name: "b.vfs"}}})
	dropped := q.Push(Delta{Entry: Entry{Registration: Registration{Name: "c.vfs"}}})

	if !dropped {
		t.Fatal("pushing past capacity should report a drop")
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected Dropped()==1, got %d", q.Dropped())
	}
	d, _ := q.Pop()
	if d.Entry.Registration.Name != "b.vfs" {
		t.Fatalf("oldest entry (a.vfs) should have been evicted, head is %q", d.Entry.Registration.Name)
	}
}

func TestDeltaQueue_Len(t *testing.T) {
	q := NewDeltaQueue(5)
	if q.Len() != 0 {
		t.Fatalf("new queue should be empty, got len=%d", q.Len())
	}
	q.Push(Delta{})
	q.Push(Delta{})
	if q.Len() != 2 {
		t.Fatalf("expected len=2, got %d", q.Len())
	}
	q.Pop()
	if q.Len() != 1 {
		t.Fatalf("expected len=1 after one pop, got %d", q.Len())
	}
}

func TestNewDeltaQueue_DefaultsCapacity(t *testing.T) {
	q := NewDeltaQueue(0)
	if q.capacity != DeltaQueueCapacity {
		t.Fatalf("expected default capacity %d, got %d", DeltaQueueCapacity, q.capacity)
	}
}
