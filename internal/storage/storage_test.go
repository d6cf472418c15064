package storage

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
)

// newTestStore creates a temporary store for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

func TestSetGet(t *testing.T) {
	s := newTestStore(t)

	key := []byte("p:abc")
	value := []byte("record-bytes")

	if err := s.Set(key, value); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if !bytes.Equal(got, value) {
		t.Errorf("get: got %q, want %q", got, value)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get([]byte("missing"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got != nil {
		t.Errorf("missing key: got %q, want nil", got)
	}
}

func TestHas(t *testing.T) {
	s := newTestStore(t)

	ok, err := s.Has([]byte("k"))
	if err != nil {
		t.Fatalf("has: %v", err)
	}

	if ok {
		t.Errorf("missing key reported present")
	}

	if err := s.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}

	ok, err = s.Has([]byte("k"))
	if err != nil {
		t.Fatalf("has: %v", err)
	}

	if !ok {
		t.Errorf("present key reported missing")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	if err := s.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := s.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := s.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got != nil {
		t.Errorf("deleted key still present")
	}
}

func TestSetBatch(t *testing.T) {
	s := newTestStore(t)

	pairs := []KeyValue{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}

	if err := s.SetBatch(pairs); err != nil {
		t.Fatalf("set batch: %v", err)
	}

	for _, kv := range pairs {
		got, err := s.Get(kv.Key)
		if err != nil {
			t.Fatalf("get %q: %v", kv.Key, err)
		}

		if !bytes.Equal(got, kv.Value) {
			t.Errorf("get %q: got %q, want %q", kv.Key, got, kv.Value)
		}
	}
}

func TestIteratePrefix(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("p:%02d", i)
		if err := s.Set([]byte(key), []byte{byte(i)}); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	if err := s.Set([]byte("a:00"), []byte("other")); err != nil {
		t.Fatalf("set: %v", err)
	}

	var keys []string
	err := s.IteratePrefix([]byte("p:"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}

	if len(keys) != 5 {
		t.Errorf("prefix scan: got %d keys, want 5", len(keys))
	}

	for i, key := range keys {
		want := fmt.Sprintf("p:%02d", i)
		if key != want {
			t.Errorf("key %d: got %q, want %q", i, key, want)
		}
	}
}
