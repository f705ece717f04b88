package calllog

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeStore struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	block   chan struct{}
	closed  bool
}

func (f *fakeStore) Append(ctx context.Context, e Entry) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeStore) List(ctx context.Context, callID string, limit int) ([]Entry, error) {
	return nil, nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func TestAsyncWriter_FlushesOnClose(t *testing.T) {
	store := &fakeStore{}
	w := NewAsyncWriter(store, 10, nil)
	for i := 1; i <= 5; i++ {
		if !w.Record(Entry{CallID: "CA1", Turn: i}) {
			t.Fatalf("entry %d rejected", i)
		}
	}
	if err := w.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.entries) != 5 || !store.closed {
		t.Errorf("entries = %d, closed = %v", len(store.entries), store.closed)
	}
	if w.Record(Entry{CallID: "CA1"}) {
		t.Error("Record after Close should be rejected")
	}
}

func TestAsyncWriter_DropsWhenFull(t *testing.T) {
	store := &fakeStore{block: make(chan struct{})}
	w := NewAsyncWriter(store, 1, nil)

	accepted := 0
	for i := 0; i < 5; i++ {
		if w.Record(Entry{CallID: "CA1", Turn: i}) {
			accepted++
		}
	}
	if accepted >= 5 {
		t.Errorf("accepted %d, expected some entries to be dropped", accepted)
	}
	close(store.block)
	if err := w.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestAsyncWriter_StoreErrorsAreLogged(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	w := NewAsyncWriter(store, 4, nil)
	w.Record(Entry{CallID: "CA1"})
	if err := w.Close(context.Background()); err != nil {
		t.Fatalf("Close = %v, store errors must not surface", err)
	}
}
