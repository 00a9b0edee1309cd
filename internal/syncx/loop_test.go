package syncx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLoopRunsInOrder(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	var got []int
	for i := 0; i < 50; i++ {
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Do(context.Background(), func() error { return nil }); err != nil {
		t.Fatal(err)
	}

	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, tasks ran out of order", i, v)
		}
	}
	if len(got) != 50 {
		t.Errorf("ran %d tasks, want 50", len(got))
	}
}

func TestLoopSerializesConcurrentPosts(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("counter = %d, want 100", counter)
	}
}

func TestLoopDoReturnsError(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	want := errors.New("invalid transition")
	if err := l.Do(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Errorf("Do() = %v, want %v", err, want)
	}
}

func TestLoopDoHonoursContext(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	release := make(chan struct{})
	l.Post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Do(ctx, func() error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() = %v, want deadline exceeded", err)
	}
}

func TestLoopClose(t *testing.T) {
	l := NewLoop()

	ran := false
	l.Post(func() { ran = true })
	l.Close()

	if !ran {
		t.Error("queued work should run before Close returns")
	}
	if l.Post(func() {}) {
		t.Error("Post after Close should report false")
	}
	if err := l.Do(context.Background(), func() error { return nil }); !errors.Is(err, ErrLoopClosed) {
		t.Errorf("Do() after Close = %v, want ErrLoopClosed", err)
	}
	l.Close()
}

func TestLoopSurvivesPanic(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	l.Post(func() { panic("boom") })
	if err := l.Do(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("loop should keep running after a panic, got %v", err)
	}
}
