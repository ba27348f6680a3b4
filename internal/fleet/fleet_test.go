package fleet

import (
	"testing"
	"time"
)

func TestInsertRejectsOverCapacity(t *testing.T) {
	m := New[int](2, nil)
	defer m.Stop()

	if overload := m.Insert("a", 1); overload {
		t.Fatalf("expected first insert to succeed")
	}
	if overload := m.Insert("b", 2); overload {
		t.Fatalf("expected second insert to succeed")
	}
	if overload := m.Insert("c", 3); !overload {
		t.Fatalf("expected third insert to be rejected as overload")
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 active sessions, got %d", m.Len())
	}
}

func TestRetireFreesCapacityButKeepsSessionReachable(t *testing.T) {
	m := New[int](1, nil)
	defer m.Stop()

	m.Insert("a", 1)
	if overload := m.Insert("b", 2); !overload {
		t.Fatalf("expected overload while session a is still active")
	}

	m.Retire("a")
	if overload := m.Insert("b", 2); overload {
		t.Fatalf("expected capacity to free up after retiring a")
	}

	if _, ok := m.Get("a"); !ok {
		t.Fatalf("expected retired session to still be reachable during linger")
	}
}

func TestRemoveDeletesImmediately(t *testing.T) {
	m := New[int](1, nil)
	defer m.Stop()

	m.Insert("a", 1)
	m.Remove("a")

	if _, ok := m.Get("a"); ok {
		t.Fatalf("expected session to be gone after Remove")
	}
	if m.Len() != 0 {
		t.Fatalf("expected 0 active sessions after Remove")
	}
}

func TestOnEvictReceivesSessionValue(t *testing.T) {
	evicted := make(chan int, 1)
	m := New[int](1, func(id string, v int) {
		evicted <- v
	})
	defer m.Stop()

	m.Insert("a", 42)
	m.Remove("a")

	select {
	case v := <-evicted:
		if v != 42 {
			t.Fatalf("expected evicted value 42, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected eviction callback to fire")
	}
}
