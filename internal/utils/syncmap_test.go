package utils

import "testing"

func TestSyncMapWrapperStoreLoadDelete(t *testing.T) {
	m := NewSyncMapWrapper[string, int]()

	if _, ok := m.Load("a"); ok {
		t.Fatal("empty map reported a value")
	}

	m.Store("a", 1)
	m.Store("b", 2)

	if v, ok := m.Load("a"); !ok || v != 1 {
		t.Fatalf("Load(a) = %d, %v", v, ok)
	}
	if got := m.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}

	m.Delete("a")
	if _, ok := m.Load("a"); ok {
		t.Fatal("deleted key still present")
	}
}

func TestSyncMapWrapperLoadOrStore(t *testing.T) {
	m := NewSyncMapWrapper[string, int]()

	v, loaded := m.LoadOrStore("k", 10)
	if loaded || v != 10 {
		t.Fatalf("first LoadOrStore = %d, loaded %v", v, loaded)
	}
	v, loaded = m.LoadOrStore("k", 20)
	if !loaded || v != 10 {
		t.Fatalf("second LoadOrStore = %d, loaded %v; want existing 10", v, loaded)
	}
}

func TestSyncMapWrapperLoadAndDelete(t *testing.T) {
	m := NewSyncMapWrapper[string, int]()
	m.Store("k", 7)

	v, ok := m.LoadAndDelete("k")
	if !ok || v != 7 {
		t.Fatalf("LoadAndDelete = %d, %v", v, ok)
	}
	if _, ok := m.LoadAndDelete("k"); ok {
		t.Fatal("second LoadAndDelete found a value")
	}
}

func TestSyncMapWrapperRangeAndClear(t *testing.T) {
	m := NewSyncMapWrapper[int, string]()
	m.Store(1, "one")
	m.Store(2, "two")
	m.Store(3, "three")

	seen := map[int]string{}
	m.Range(func(k int, v string) bool {
		seen[k] = v
		return true
	})
	if len(seen) != 3 || seen[2] != "two" {
		t.Fatalf("Range visited %v", seen)
	}

	m.Clear()
	if got := m.Len(); got != 0 {
		t.Fatalf("Len after Clear = %d", got)
	}
}
